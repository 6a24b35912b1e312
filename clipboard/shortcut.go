package clipboard

import (
	"cmp"
	"fmt"
	"runtime"
	"slices"
	"strings"
)

// Shortcut is a paste key chord.
type Shortcut struct {
	Ctrl  bool
	Shift bool
	Alt   bool
	Super bool // Cmd on macOS
	Key   string
}

func (s Shortcut) String() string {
	var parts []string
	if s.Super {
		parts = append(parts, "cmd")
	}
	if s.Ctrl {
		parts = append(parts, "ctrl")
	}
	if s.Alt {
		parts = append(parts, "alt")
	}
	if s.Shift {
		parts = append(parts, "shift")
	}
	return strings.Join(append(parts, s.Key), "+")
}

// ParseShortcut parses a chord such as "ctrl+shift+v".
func ParseShortcut(spec string) (Shortcut, error) {
	var s Shortcut
	for _, part := range strings.Split(strings.ToLower(strings.TrimSpace(spec)), "+") {
		switch strings.TrimSpace(part) {
		case "ctrl", "control":
			s.Ctrl = true
		case "shift":
			s.Shift = true
		case "alt", "option":
			s.Alt = true
		case "cmd", "command", "super", "meta", "win":
			s.Super = true
		case "":
			return Shortcut{}, fmt.Errorf("clipboard: shortcut %q: empty key", spec)
		default:
			if s.Key != "" {
				return Shortcut{}, fmt.Errorf("clipboard: shortcut %q: more than one key", spec)
			}
			s.Key = strings.TrimSpace(part)
		}
	}
	if s.Key == "" {
		return Shortcut{}, fmt.Errorf("clipboard: shortcut %q: no key", spec)
	}
	if _, ok := keyCodes[s.Key]; !ok {
		return Shortcut{}, fmt.Errorf("clipboard: shortcut %q: unsupported key %q", spec, s.Key)
	}
	return s, nil
}

// PlatformShortcut is Cmd+V on macOS and Ctrl+V elsewhere.
func PlatformShortcut() Shortcut {
	return platformShortcut(runtime.GOOS)
}

func platformShortcut(goos string) Shortcut {
	if goos == "darwin" {
		return Shortcut{Super: true, Key: "v"}
	}
	return Shortcut{Ctrl: true, Key: "v"}
}

// Override selects a shortcut for focused applications whose process name
// or window title contains Match.
type Override struct {
	Match    string
	Shortcut Shortcut
}

var terminalEmulators = []string{
	"alacritty", "foot", "ghostty", "gnome-terminal", "kitty", "konsole",
	"terminal", "terminator", "tilix", "wezterm", "xterm",
}

// DefaultOverrides sends Ctrl+Shift+V to terminal emulators. macOS
// terminals accept Cmd+V, so there are none on darwin.
func DefaultOverrides() []Override {
	return defaultOverrides(runtime.GOOS)
}

func defaultOverrides(goos string) []Override {
	if goos == "darwin" {
		return nil
	}
	out := make([]Override, 0, len(terminalEmulators))
	for _, name := range terminalEmulators {
		out = append(out, Override{Match: name, Shortcut: Shortcut{Ctrl: true, Shift: true, Key: "v"}})
	}
	return out
}

// ParseOverrides converts match=shortcut pairs and merges them over base.
// Entries in m replace base entries with the same match.
func ParseOverrides(base []Override, m map[string]string) ([]Override, error) {
	merged := make(map[string]Shortcut, len(base)+len(m))
	for _, o := range base {
		merged[strings.ToLower(o.Match)] = o.Shortcut
	}
	for match, spec := range m {
		match = strings.ToLower(strings.TrimSpace(match))
		if match == "" {
			return nil, fmt.Errorf("clipboard: override %q: empty match", spec)
		}
		s, err := ParseShortcut(spec)
		if err != nil {
			return nil, err
		}
		merged[match] = s
	}

	out := make([]Override, 0, len(merged))
	for match, s := range merged {
		out = append(out, Override{Match: match, Shortcut: s})
	}
	// Longest match wins, so "gnome-terminal" beats "terminal".
	slices.SortFunc(out, func(a, b Override) int {
		if c := cmp.Compare(len(b.Match), len(a.Match)); c != 0 {
			return c
		}
		return strings.Compare(a.Match, b.Match)
	})
	return out, nil
}

// resolve returns the shortcut for app, or def when nothing matches.
func resolve(overrides []Override, app App, def Shortcut) Shortcut {
	process := strings.ToLower(app.Process)
	title := strings.ToLower(app.Title)
	for _, o := range overrides {
		match := strings.ToLower(o.Match)
		if match == "" {
			continue
		}
		if strings.Contains(process, match) || strings.Contains(title, match) {
			return o.Shortcut
		}
	}
	return def
}
