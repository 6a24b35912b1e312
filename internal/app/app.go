// Package app wires the agent's collaborators together and owns their
// lifecycle.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"go.aimuz.me/localflow/audiocapture"
	"go.aimuz.me/localflow/clipboard"
	"go.aimuz.me/localflow/config"
	"go.aimuz.me/localflow/history"
	"go.aimuz.me/localflow/hotkey"
	"go.aimuz.me/localflow/internal/session"
	"go.aimuz.me/localflow/overlay"
	"go.aimuz.me/localflow/transport"
)

// Agent is the dictation client: hotkeys in, pasted text out.
type Agent struct {
	cfg *config.Config

	// suppress is raised while a paste is being synthesized so the watcher
	// ignores the agent's own keystrokes.
	suppress atomic.Bool
}

// New creates an agent for cfg. Nothing is opened until Run.
func New(cfg *config.Config) *Agent {
	return &Agent{cfg: cfg}
}

// platform holds the OS-facing pieces opened at startup.
type platform struct {
	device   audiocapture.Device
	keys     <-chan hotkey.RawEvent
	keyboard clipboard.Keyboard
	clip     clipboard.Clipboard
	focus    clipboard.FocusReader
}

// ─────────────────────────────────────────────────────────────────────────────
// Lifecycle
// ─────────────────────────────────────────────────────────────────────────────

// Run opens the microphone and the global key hook, then serves until ctx
// is done. A missing input device, a refused hook or an invalid server URL
// are returned as errors; everything after startup is logged and survived,
// except losing the key hook.
func (a *Agent) Run(ctx context.Context) error {
	terminate, err := audiocapture.InitPortAudio()
	if err != nil {
		return fmt.Errorf("init audio: %w", err)
	}
	defer terminate()

	hooks := hotkey.NewHookSource()
	keys, err := hooks.Start()
	if err != nil {
		return fmt.Errorf("start key hook: %w", err)
	}
	defer hooks.Stop()

	p := platform{
		device: audiocapture.PortAudioDevice{},
		keys:   keys,
		clip:   clipboard.SystemClipboard{},
		focus:  clipboard.WindowFocus{},
	}
	kb, err := clipboard.NewVirtualKeyboard()
	if err != nil {
		slog.Error("init virtual keyboard, results will stay on the clipboard", "error", err)
		p.keyboard = unavailableKeyboard{err: err}
	} else {
		p.keyboard = kb
	}

	return a.serve(ctx, p)
}

func (a *Agent) serve(ctx context.Context, p platform) error {
	cfg := a.cfg

	client, err := transport.NewClient(transport.Config{
		URL:               cfg.ServerURL,
		Namespace:         cfg.Namespace,
		ConnectTimeout:    cfg.ConnectTimeout,
		HeartbeatInterval: cfg.HeartbeatInterval,
	})
	if err != nil {
		return fmt.Errorf("create transport: %w", err)
	}

	capture := audiocapture.New(p.device, audiocapture.Format{SampleRate: cfg.SampleRate})
	defer func() {
		if err := capture.Close(); err != nil {
			slog.Warn("close capture", "error", err)
		}
	}()

	watcher := hotkey.NewWatcher(&a.suppress, parseBindings(cfg)...)

	deps := session.Deps{
		Capture:   capture,
		Transport: client,
		Paster:    a.newPaster(p),
		Overlay:   a.newOverlay(),
		Settings:  cfg,
		Bindings:  watcher,
	}
	store := a.openHistory()
	if store != nil {
		defer func() {
			if err := store.Close(); err != nil {
				slog.Error("close history", "error", err)
			}
		}()
		deps.History = store
	}

	ctrl := session.New(session.Config{
		Settings:   cfg.Settings(),
		FormatMode: cfg.FormatMode,
	}, deps)

	a.logBanner(watcher, store)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return client.Run(ctx)
	})
	g.Go(func() error {
		return ctrl.Run(ctx)
	})
	g.Go(func() error {
		if err := watcher.Run(ctx, p.keys, ctrl.HandleEdge); err != nil {
			return fmt.Errorf("watch hotkeys: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		forward(ctx, client.Messages(), ctrl)
		return nil
	})

	err = g.Wait()
	slog.Info("agent stopped")
	return err
}

// forward hands server messages to the controller until ctx is done or
// the controller stops.
func forward(ctx context.Context, msgs <-chan transport.Message, ctrl *session.Controller) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-msgs:
			if err := ctrl.Deliver(msg); err != nil {
				return
			}
		}
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Setup helpers
// ─────────────────────────────────────────────────────────────────────────────

// parseBindings returns the configured bindings. A binding that fails to
// parse is left unregistered.
func parseBindings(cfg *config.Config) []hotkey.Binding {
	specs := []struct {
		id     string
		spec   string
		format bool
	}{
		{hotkey.BindingPlain, cfg.Hotkey, false},
		{hotkey.BindingFormat, cfg.FormatHotkey, true},
	}

	var out []hotkey.Binding
	for _, s := range specs {
		if s.spec == "" {
			continue
		}
		b, err := hotkey.ParseBinding(s.id, s.spec, s.format)
		if err != nil {
			slog.Warn("ignore hotkey binding", "binding", s.id, "error", err)
			continue
		}
		out = append(out, b)
	}
	return out
}

func (a *Agent) newPaster(p platform) *clipboard.Coordinator {
	opts := clipboard.DefaultOptions()
	opts.Cooldown = a.cfg.PasteCooldown

	overrides, err := clipboard.ParseOverrides(opts.Overrides, a.cfg.PasteOverrides)
	if err != nil {
		slog.Warn("ignore paste overrides", "error", err)
	} else {
		opts.Overrides = overrides
	}
	return clipboard.NewCoordinator(p.clip, p.keyboard, p.focus, &a.suppress, opts)
}

func (a *Agent) newOverlay() overlay.Indicator {
	if !a.cfg.Notify {
		return overlay.Log{}
	}
	return overlay.Multi{overlay.Log{}, overlay.NewNotifier()}
}

// openHistory opens the history store. A store that fails to open is
// logged and skipped.
func (a *Agent) openHistory() *history.Store {
	if !a.cfg.History {
		return nil
	}
	dir := a.cfg.HistoryDir()
	store, err := history.Open(history.Options{Dir: dir})
	if err != nil {
		slog.Error("open history", "path", dir, "error", err)
		return nil
	}
	slog.Info("history opened", "path", dir)
	return store
}

func (a *Agent) logBanner(w *hotkey.Watcher, store *history.Store) {
	attrs := []any{
		"server", a.cfg.ServerURL,
		"mode", a.cfg.Mode,
		"format_mode", a.cfg.FormatMode,
		"processing_mode", a.cfg.ProcessingMode,
	}
	bindings := w.Bindings()
	for _, b := range bindings {
		attrs = append(attrs, b.ID+"_hotkey", b.String())
	}
	if store != nil {
		if n, err := store.Count(); err == nil {
			attrs = append(attrs, "history_entries", n)
		}
	}
	slog.Info("localflow agent ready", attrs...)

	if len(bindings) == 0 {
		slog.Warn("no hotkey bindings registered")
	}
}

// unavailableKeyboard stands in when the virtual keyboard could not be
// created. Text still reaches the clipboard.
type unavailableKeyboard struct {
	err error
}

func (k unavailableKeyboard) Press(clipboard.Shortcut) error {
	return k.err
}
