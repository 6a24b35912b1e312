package hotkey

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"time"
)

// ErrSourceClosed is returned by Run when the raw event stream ends.
var ErrSourceClosed = errors.New("hotkey: key event source closed")

// RawEvent is a single key transition as reported by the OS hook. Key is
// the physical key name; auto-repeat is reported as another Down.
type RawEvent struct {
	Key  string
	Down bool
}

// Source delivers raw key events from the OS.
type Source interface {
	Start() (<-chan RawEvent, error)
	Stop()
}

// Gate reports whether raw key events must currently be discarded.
// *atomic.Bool satisfies it.
type Gate interface {
	Load() bool
}

// EdgeKind distinguishes the two logical edges.
type EdgeKind int

const (
	Activate EdgeKind = iota + 1
	Deactivate
)

func (k EdgeKind) String() string {
	switch k {
	case Activate:
		return "activate"
	case Deactivate:
		return "deactivate"
	default:
		return "unknown"
	}
}

// Edge is a logical press-in or release-out of a binding.
type Edge struct {
	Kind    EdgeKind
	Binding Binding
	At      time.Time
}

// Watcher tracks pressed keys and arms at most one binding at a time.
type Watcher struct {
	mu       sync.Mutex
	bindings []Binding
	pressed  map[Key]bool
	armed    *Binding

	gate Gate
	now  func() time.Time
}

// NewWatcher creates a watcher for the given bindings. gate may be nil.
func NewWatcher(gate Gate, bindings ...Binding) *Watcher {
	w := &Watcher{
		pressed: make(map[Key]bool),
		gate:    gate,
		now:     time.Now,
	}
	for _, b := range bindings {
		w.SetBinding(b)
	}
	return w
}

// SetBinding adds b or replaces the binding with the same ID. An armed
// binding keeps its old keys until it is released.
func (w *Watcher) SetBinding(b Binding) {
	w.mu.Lock()
	defer w.mu.Unlock()

	idx := slices.IndexFunc(w.bindings, func(x Binding) bool { return x.ID == b.ID })
	if idx == -1 {
		w.bindings = append(w.bindings, b)
	} else {
		w.bindings[idx] = b
	}

	// Bindings with a literal key are matched before modifier-only ones.
	slices.SortStableFunc(w.bindings, func(a, b Binding) int {
		switch {
		case a.Key != "" && b.Key == "":
			return -1
		case a.Key == "" && b.Key != "":
			return 1
		}
		return 0
	})
}

// Bindings returns a copy of the registered bindings.
func (w *Watcher) Bindings() []Binding {
	w.mu.Lock()
	defer w.mu.Unlock()
	return slices.Clone(w.bindings)
}

// Armed returns the currently armed binding, if any.
func (w *Watcher) Armed() (Binding, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.armed == nil {
		return Binding{}, false
	}
	return *w.armed, true
}

// Handle applies one raw event and returns the resulting edge, if any.
func (w *Watcher) Handle(ev RawEvent) (Edge, bool) {
	if w.gate != nil && w.gate.Load() {
		return Edge{}, false
	}

	key := Normalize(ev.Key)
	if key == "" {
		return Edge{}, false
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if ev.Down {
		return w.press(key)
	}
	return w.release(key)
}

func (w *Watcher) press(key Key) (Edge, bool) {
	if w.pressed[key] {
		// auto-repeat
		return Edge{}, false
	}
	w.pressed[key] = true

	if w.armed != nil {
		return Edge{}, false
	}

	for _, b := range w.bindings {
		if !b.involves(key) || !w.pressed[b.Modifier] {
			continue
		}
		if b.Key != "" && !w.pressed[b.Key] {
			continue
		}
		armed := b
		w.armed = &armed
		return Edge{Kind: Activate, Binding: b, At: w.now()}, true
	}
	return Edge{}, false
}

func (w *Watcher) release(key Key) (Edge, bool) {
	delete(w.pressed, key)

	if w.armed == nil || !w.armed.involves(key) {
		return Edge{}, false
	}

	b := *w.armed
	w.armed = nil
	if b.Key != "" {
		// The hook may never report the literal's release once the
		// modifier is gone.
		delete(w.pressed, b.Key)
	}
	return Edge{Kind: Deactivate, Binding: b, At: w.now()}, true
}

// Run consumes raw events until ctx is done or the stream closes, passing
// every edge to sink.
func (w *Watcher) Run(ctx context.Context, events <-chan RawEvent, sink func(Edge)) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return ErrSourceClosed
			}
			edge, ok := w.Handle(ev)
			if !ok {
				continue
			}
			slog.Debug("hotkey edge", "kind", edge.Kind, "binding", edge.Binding.ID, "keys", edge.Binding.String())
			sink(edge)
		}
	}
}
