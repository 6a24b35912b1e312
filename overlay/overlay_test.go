package overlay

import (
	"testing"
	"time"
)

type countingIndicator struct {
	shows, hides int
}

func (c *countingIndicator) Show() { c.shows++ }
func (c *countingIndicator) Hide() { c.hides++ }

func TestMulti(t *testing.T) {
	a, b := &countingIndicator{}, &countingIndicator{}
	m := Multi{a, b, Nop{}, Log{}}
	m.Show()
	m.Hide()
	m.Hide()
	for _, c := range []*countingIndicator{a, b} {
		if c.shows != 1 || c.hides != 2 {
			t.Fatalf("shows=%d hides=%d, want 1 and 2", c.shows, c.hides)
		}
	}
}

func TestNotifierShowDoesNotBlock(t *testing.T) {
	release := make(chan struct{})
	calls := make(chan string, 4)
	n := &Notifier{notify: func(title, message string, _ any) error {
		calls <- title
		<-release
		return nil
	}}

	start := time.Now()
	n.Show()
	n.Show() // dropped while the first is pending
	if time.Since(start) > 100*time.Millisecond {
		t.Fatal("Show blocked")
	}

	select {
	case title := <-calls:
		if title != AppName {
			t.Fatalf("title = %q", title)
		}
	case <-time.After(time.Second):
		t.Fatal("notification not posted")
	}
	close(release)

	select {
	case <-calls:
		t.Fatal("second Show was not dropped")
	case <-time.After(50 * time.Millisecond):
	}
}
