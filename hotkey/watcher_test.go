package hotkey

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func plainAndFormat(t *testing.T) []Binding {
	t.Helper()
	plain, err := ParseBinding(BindingPlain, "alt+z", false)
	if err != nil {
		t.Fatalf("parse plain: %v", err)
	}
	format, err := ParseBinding(BindingFormat, "alt+m", true)
	if err != nil {
		t.Fatalf("parse format: %v", err)
	}
	return []Binding{plain, format}
}

type step struct {
	key      string
	down     bool
	wantEdge EdgeKind // 0 means no edge
	wantID   string
}

func runSteps(t *testing.T, w *Watcher, steps []step) {
	t.Helper()
	for i, s := range steps {
		edge, ok := w.Handle(RawEvent{Key: s.key, Down: s.down})
		if s.wantEdge == 0 {
			if ok {
				t.Fatalf("step %d (%s down=%v): unexpected %s edge", i, s.key, s.down, edge.Kind)
			}
			continue
		}
		if !ok {
			t.Fatalf("step %d (%s down=%v): expected %s edge, got none", i, s.key, s.down, s.wantEdge)
		}
		if edge.Kind != s.wantEdge || edge.Binding.ID != s.wantID {
			t.Fatalf("step %d: got %s/%s, want %s/%s", i, edge.Kind, edge.Binding.ID, s.wantEdge, s.wantID)
		}
	}
}

func TestWatcherSequences(t *testing.T) {
	tests := []struct {
		name  string
		steps []step
	}{
		{
			name: "modifier released last",
			steps: []step{
				{"alt", true, 0, ""},
				{"z", true, Activate, BindingPlain},
				{"z", false, Deactivate, BindingPlain},
				{"alt", false, 0, ""},
			},
		},
		{
			name: "modifier released first clears literal",
			steps: []step{
				{"alt", true, 0, ""},
				{"z", true, Activate, BindingPlain},
				{"alt", false, Deactivate, BindingPlain},
				{"z", false, 0, ""},
				// a fresh press of z alone must not re-arm
				{"z", true, 0, ""},
				{"z", false, 0, ""},
			},
		},
		{
			name: "right variant arms and left variant releases",
			steps: []step{
				{"ralt", true, 0, ""},
				{"m", true, Activate, BindingFormat},
				{"alt", false, Deactivate, BindingFormat},
			},
		},
		{
			name: "auto repeat does not re-activate",
			steps: []step{
				{"alt", true, 0, ""},
				{"z", true, Activate, BindingPlain},
				{"z", true, 0, ""},
				{"z", true, 0, ""},
				{"z", false, Deactivate, BindingPlain},
			},
		},
		{
			name: "second binding while armed is ignored",
			steps: []step{
				{"alt", true, 0, ""},
				{"z", true, Activate, BindingPlain},
				{"m", true, 0, ""},
				{"m", false, 0, ""},
				{"z", false, Deactivate, BindingPlain},
			},
		},
		{
			name: "release without activate",
			steps: []step{
				{"z", false, 0, ""},
				{"alt", false, 0, ""},
			},
		},
		{
			name: "letter pressed before modifier",
			steps: []step{
				{"z", true, 0, ""},
				{"alt", true, Activate, BindingPlain},
				{"alt", false, Deactivate, BindingPlain},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := NewWatcher(nil, plainAndFormat(t)...)
			runSteps(t, w, tt.steps)
			if _, armed := w.Armed(); armed {
				t.Fatal("binding still armed at end of sequence")
			}
		})
	}
}

func TestWatcherSuppressedEventsAreDiscarded(t *testing.T) {
	var gate atomic.Bool
	w := NewWatcher(&gate, plainAndFormat(t)...)

	gate.Store(true)
	runSteps(t, w, []step{
		{"alt", true, 0, ""},
		{"z", true, 0, ""},
	})
	if len(w.pressed) != 0 {
		t.Fatalf("suppressed events changed bookkeeping: %v", w.pressed)
	}

	gate.Store(false)
	runSteps(t, w, []step{
		{"alt", true, 0, ""},
		{"z", true, Activate, BindingPlain},
	})

	// Simulated paste keystrokes while armed must not release the binding.
	gate.Store(true)
	runSteps(t, w, []step{
		{"ctrl", true, 0, ""},
		{"z", false, 0, ""},
		{"ctrl", false, 0, ""},
	})
	if _, armed := w.Armed(); !armed {
		t.Fatal("binding released by a suppressed event")
	}
}

func TestWatcherRebindKeepsArmedBinding(t *testing.T) {
	w := NewWatcher(nil, plainAndFormat(t)...)
	runSteps(t, w, []step{
		{"alt", true, 0, ""},
		{"z", true, Activate, BindingPlain},
	})

	rebound, err := ParseBinding(BindingPlain, "alt+x", false)
	if err != nil {
		t.Fatal(err)
	}
	w.SetBinding(rebound)

	runSteps(t, w, []step{
		{"z", false, Deactivate, BindingPlain},
		{"x", true, Activate, BindingPlain},
	})
}

func TestWatcherRun(t *testing.T) {
	w := NewWatcher(nil, plainAndFormat(t)...)
	events := make(chan RawEvent, 8)
	edges := make(chan Edge, 8)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- w.Run(ctx, events, func(e Edge) { edges <- e })
	}()

	events <- RawEvent{Key: "alt", Down: true}
	events <- RawEvent{Key: "z", Down: true}
	events <- RawEvent{Key: "z", Down: false}

	for _, want := range []EdgeKind{Activate, Deactivate} {
		select {
		case e := <-edges:
			if e.Kind != want {
				t.Fatalf("got %s, want %s", e.Kind, want)
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for %s", want)
		}
	}

	close(events)
	select {
	case err := <-done:
		if err != ErrSourceClosed {
			t.Fatalf("Run returned %v, want ErrSourceClosed", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not return after source closed")
	}
}
