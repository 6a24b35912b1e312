package clipboard

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// recorder captures clipboard writes and keystrokes along with the gate
// value seen at each call.
type recorder struct {
	mu       sync.Mutex
	gate     *atomic.Bool
	writes   []string
	presses  []Shortcut
	times    []time.Time
	gateSeen []bool
	writeErr error
	pressErr error
}

func (r *recorder) WriteText(text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gateSeen = append(r.gateSeen, r.gate.Load())
	if r.writeErr != nil {
		return r.writeErr
	}
	r.writes = append(r.writes, text)
	r.times = append(r.times, time.Now())
	return nil
}

func (r *recorder) Press(s Shortcut) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gateSeen = append(r.gateSeen, r.gate.Load())
	if r.pressErr != nil {
		return r.pressErr
	}
	r.presses = append(r.presses, s)
	return nil
}

type fixedApp App

func (f fixedApp) FocusedApp() (App, error) { return App(f), nil }

func quickOptions() Options {
	return Options{Shortcut: Shortcut{Ctrl: true, Key: "v"}}
}

func TestPasteRaisesGate(t *testing.T) {
	var gate atomic.Bool
	rec := &recorder{gate: &gate}
	c := NewCoordinator(rec, rec, nil, &gate, quickOptions())

	if !c.Paste(context.Background(), "hello") {
		t.Fatal("Paste returned false")
	}
	for i, seen := range rec.gateSeen {
		if !seen {
			t.Fatalf("call %d ran with the gate down", i)
		}
	}
	if gate.Load() {
		t.Fatal("gate left raised after paste")
	}
	if len(rec.writes) != 1 || rec.writes[0] != "hello" {
		t.Fatalf("writes = %q", rec.writes)
	}
	if len(rec.presses) != 1 || rec.presses[0].String() != "ctrl+v" {
		t.Fatalf("presses = %v", rec.presses)
	}
}

func TestPasteClearsGateOnError(t *testing.T) {
	tests := []struct {
		name     string
		writeErr error
		pressErr error
	}{
		{"clipboard error", errors.New("no display"), nil},
		{"keystroke error", nil, errors.New("uinput denied")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gate atomic.Bool
			rec := &recorder{gate: &gate, writeErr: tt.writeErr, pressErr: tt.pressErr}
			c := NewCoordinator(rec, rec, nil, &gate, quickOptions())

			if c.Paste(context.Background(), "text") {
				t.Fatal("Paste reported success")
			}
			if gate.Load() {
				t.Fatal("gate left raised after failure")
			}
		})
	}
}

func TestPasteNormalizesAndSkipsEmpty(t *testing.T) {
	var gate atomic.Bool
	rec := &recorder{gate: &gate}
	c := NewCoordinator(rec, rec, nil, &gate, quickOptions())

	if c.Paste(context.Background(), "") {
		t.Fatal("empty text pasted")
	}
	// "e" followed by a combining acute accent composes to "é".
	if !c.Paste(context.Background(), "cafe\u0301") {
		t.Fatal("Paste returned false")
	}
	if rec.writes[0] != "caf\u00e9" {
		t.Fatalf("got %q, want NFC form", rec.writes[0])
	}
}

func TestPasteCooldown(t *testing.T) {
	var gate atomic.Bool
	rec := &recorder{gate: &gate}
	opts := quickOptions()
	opts.Cooldown = 60 * time.Millisecond
	c := NewCoordinator(rec, rec, nil, &gate, opts)

	ctx := context.Background()
	if !c.Paste(ctx, "one") || !c.Paste(ctx, "two") {
		t.Fatal("paste failed")
	}
	if gap := rec.times[1].Sub(rec.times[0]); gap < opts.Cooldown {
		t.Fatalf("second paste after %v, want at least %v", gap, opts.Cooldown)
	}
}

func TestPasteCooldownHonorsContext(t *testing.T) {
	var gate atomic.Bool
	rec := &recorder{gate: &gate}
	opts := quickOptions()
	opts.Cooldown = time.Hour
	c := NewCoordinator(rec, rec, nil, &gate, opts)

	if !c.Paste(context.Background(), "one") {
		t.Fatal("first paste failed")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if c.Paste(ctx, "two") {
		t.Fatal("paste inside cooldown succeeded after cancel")
	}
	if len(rec.writes) != 1 {
		t.Fatalf("clipboard written %d times", len(rec.writes))
	}
}

func TestPasteUsesOverride(t *testing.T) {
	overrides, err := ParseOverrides(defaultOverrides("linux"), map[string]string{"code": "ctrl+v"})
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		app  App
		want string
	}{
		{App{Process: "gnome-terminal-server", Title: "user@host: ~"}, "ctrl+shift+v"},
		{App{Process: "kitty", Title: "vim"}, "ctrl+shift+v"},
		{App{Process: "firefox", Title: "Mozilla Firefox"}, "ctrl+v"},
		{App{Process: "code", Title: "main.go - Terminal"}, "ctrl+shift+v"},
	}
	for _, tt := range tests {
		t.Run(tt.app.Process, func(t *testing.T) {
			var gate atomic.Bool
			rec := &recorder{gate: &gate}
			opts := quickOptions()
			opts.Overrides = overrides
			c := NewCoordinator(rec, rec, fixedApp(tt.app), &gate, opts)

			if !c.Paste(context.Background(), "x") {
				t.Fatal("Paste returned false")
			}
			if got := rec.presses[0].String(); got != tt.want {
				t.Fatalf("shortcut = %s, want %s", got, tt.want)
			}
		})
	}
}
