package hotkey

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	hook "github.com/robotn/gohook"
)

// ErrHookUnavailable is returned when the OS refuses the global key hook
// (for example missing accessibility permission).
var ErrHookUnavailable = errors.New("hotkey: global key hook unavailable")

// hookEnableTimeout bounds how long Start waits for the hook to come up.
const hookEnableTimeout = 2 * time.Second

// modifierNames are resolved first so left/right variants keep their own
// names before normalization folds them.
var modifierNames = []string{
	"alt", "ralt", "ctrl", "rctrl", "shift", "rshift", "cmd", "rcmd",
}

// HookSource reads key events from the libuiohook based global hook.
type HookSource struct {
	names map[uint16]string

	once sync.Once
}

// NewHookSource builds the keycode table used to name raw events.
func NewHookSource() *HookSource {
	names := make(map[uint16]string, len(hook.Keycode))
	fixed := make(map[uint16]bool, len(modifierNames))
	for _, n := range modifierNames {
		if code, ok := hook.Keycode[n]; ok {
			names[code] = n
			fixed[code] = true
		}
	}
	// Several names share a code; keep the shortest so lookups are stable.
	for n, code := range hook.Keycode {
		if fixed[code] {
			continue
		}
		if prev, ok := names[code]; ok && (len(prev) < len(n) || (len(prev) == len(n) && prev < n)) {
			continue
		}
		names[code] = n
	}
	return &HookSource{names: names}
}

// Start installs the hook and waits for it to report enabled.
func (s *HookSource) Start() (<-chan RawEvent, error) {
	events := hook.Start()

	timer := time.NewTimer(hookEnableTimeout)
	defer timer.Stop()

wait:
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return nil, ErrHookUnavailable
			}
			if ev.Kind == hook.HookEnabled {
				break wait
			}
		case <-timer.C:
			hook.End()
			return nil, ErrHookUnavailable
		}
	}

	out := make(chan RawEvent, 64)
	go func() {
		defer close(out)
		for ev := range events {
			switch ev.Kind {
			case hook.KeyDown, hook.KeyHold:
				out <- RawEvent{Key: s.name(ev), Down: true}
			case hook.KeyUp:
				out <- RawEvent{Key: s.name(ev), Down: false}
			case hook.HookDisabled:
				slog.Warn("global key hook disabled")
				return
			}
		}
	}()

	slog.Debug("global key hook started")
	return out, nil
}

// Stop removes the hook. Safe to call more than once.
func (s *HookSource) Stop() {
	s.once.Do(func() {
		hook.End()
		slog.Debug("global key hook stopped")
	})
}

func (s *HookSource) name(ev hook.Event) string {
	if n, ok := s.names[ev.Keycode]; ok {
		return n
	}
	if ev.Keychar != hook.CharUndefined && ev.Keychar > 0 {
		return string(ev.Keychar)
	}
	return hook.RawcodetoKeychar(ev.Rawcode)
}
