// Package clipboard inserts text at the cursor by writing it to the system
// clipboard and simulating the paste shortcut.
package clipboard

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/text/unicode/norm"
)

// Clipboard writes text to the system clipboard.
type Clipboard interface {
	WriteText(text string) error
}

// Keyboard synthesizes key chords.
type Keyboard interface {
	Press(s Shortcut) error
}

// App identifies the focused application.
type App struct {
	Process string
	Title   string
}

// FocusReader reports the focused application.
type FocusReader interface {
	FocusedApp() (App, error)
}

// Gate is raised for the duration of a simulated paste so the hotkey
// watcher ignores the synthetic key events. *atomic.Bool satisfies it.
type Gate interface {
	Store(v bool)
}

// Options tunes the Coordinator.
type Options struct {
	// Cooldown is the minimum time between two pastes.
	Cooldown time.Duration
	// SettleDelay is the wait between the clipboard write and the keystroke.
	SettleDelay time.Duration
	// ReleaseDelay is the wait after the keystroke before the gate drops.
	ReleaseDelay time.Duration
	// Shortcut is used when no override matches. Zero means PlatformShortcut.
	Shortcut  Shortcut
	Overrides []Override
}

// DefaultOptions returns the stock timings.
func DefaultOptions() Options {
	return Options{
		Cooldown:     100 * time.Millisecond,
		SettleDelay:  50 * time.Millisecond,
		ReleaseDelay: 50 * time.Millisecond,
		Shortcut:     PlatformShortcut(),
		Overrides:    DefaultOverrides(),
	}
}

// Coordinator serializes pastes.
type Coordinator struct {
	mu sync.Mutex

	clip  Clipboard
	keys  Keyboard
	focus FocusReader
	gate  Gate
	opts  Options

	lastPaste time.Time
	now       func() time.Time
}

// NewCoordinator creates a Coordinator. focus and gate may be nil.
func NewCoordinator(clip Clipboard, keys Keyboard, focus FocusReader, gate Gate, opts Options) *Coordinator {
	if opts.Shortcut.Key == "" {
		opts.Shortcut = PlatformShortcut()
	}
	return &Coordinator{
		clip:  clip,
		keys:  keys,
		focus: focus,
		gate:  gate,
		opts:  opts,
		now:   time.Now,
	}
}

// Paste writes text to the clipboard and presses the paste shortcut. It
// reports whether the keystroke was sent. Errors are logged.
func (c *Coordinator) Paste(ctx context.Context, text string) bool {
	text = norm.NFC.String(text)
	if text == "" {
		slog.Warn("skip paste of empty text")
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if wait := c.opts.Cooldown - c.now().Sub(c.lastPaste); !c.lastPaste.IsZero() && wait > 0 {
		slog.Debug("paste cooldown", "wait", wait)
		if !sleep(ctx, wait) {
			return false
		}
	}
	defer func() { c.lastPaste = c.now() }()

	if c.gate != nil {
		c.gate.Store(true)
		defer c.gate.Store(false)
	}

	if err := c.clip.WriteText(text); err != nil {
		slog.Error("write clipboard", "error", err)
		return false
	}
	if !sleep(ctx, c.opts.SettleDelay) {
		return false
	}

	shortcut := c.shortcut()
	if err := c.keys.Press(shortcut); err != nil {
		slog.Error("send paste keystroke", "shortcut", shortcut.String(), "error", err)
		return false
	}
	sleep(ctx, c.opts.ReleaseDelay)

	slog.Info("pasted text", "chars", len([]rune(text)), "shortcut", shortcut.String())
	return true
}

func (c *Coordinator) shortcut() Shortcut {
	if c.focus == nil || len(c.opts.Overrides) == 0 {
		return c.opts.Shortcut
	}
	app, err := c.focus.FocusedApp()
	if err != nil {
		slog.Debug("read focused app", "error", err)
		return c.opts.Shortcut
	}
	return resolve(c.opts.Overrides, app, c.opts.Shortcut)
}

// sleep waits for d or until ctx is done, reporting whether d elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
