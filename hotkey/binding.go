// Package hotkey turns raw global key events into activate/deactivate edges
// for push-to-talk bindings.
package hotkey

import (
	"fmt"
	"strings"
)

// Key is a logical key identifier. Physical variants of a modifier (left,
// right, AltGr) share one Key.
type Key string

const (
	KeyAlt   Key = "alt"
	KeyCtrl  Key = "ctrl"
	KeyShift Key = "shift"
	KeyCmd   Key = "cmd"
)

// Binding IDs used by the agent.
const (
	BindingPlain  = "plain"
	BindingFormat = "format"
)

// families maps every physical key name the hook may report to its logical
// modifier family.
var families = map[string]Key{
	"alt": KeyAlt, "lalt": KeyAlt, "ralt": KeyAlt, "altgr": KeyAlt,
	"alt_l": KeyAlt, "alt_r": KeyAlt, "alt_gr": KeyAlt, "option": KeyAlt,

	"ctrl": KeyCtrl, "control": KeyCtrl, "lctrl": KeyCtrl, "rctrl": KeyCtrl,
	"ctrl_l": KeyCtrl, "ctrl_r": KeyCtrl,

	"shift": KeyShift, "lshift": KeyShift, "rshift": KeyShift,
	"shift_l": KeyShift, "shift_r": KeyShift,

	"cmd": KeyCmd, "lcmd": KeyCmd, "rcmd": KeyCmd, "command": KeyCmd,
	"super": KeyCmd, "win": KeyCmd, "meta": KeyCmd,
}

// aliases folds shifted characters onto the physical key that produces them.
var aliases = map[string]Key{
	"?": "/",
	"spacebar": "space",
}

// Normalize maps a physical key name to its logical Key. It returns "" for
// an empty name.
func Normalize(name string) Key {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return ""
	}
	if k, ok := families[name]; ok {
		return k
	}
	if k, ok := aliases[name]; ok {
		return k
	}
	return Key(name)
}

// IsModifier reports whether k is a modifier family.
func IsModifier(k Key) bool {
	switch k {
	case KeyAlt, KeyCtrl, KeyShift, KeyCmd:
		return true
	}
	return false
}

// Binding is one modifier plus an optional literal key.
type Binding struct {
	ID       string
	Modifier Key
	Key      Key // empty for modifier-only bindings
	Format   bool
}

func (b Binding) String() string {
	if b.Key == "" {
		return string(b.Modifier)
	}
	return string(b.Modifier) + "+" + string(b.Key)
}

// involves reports whether k is one of the binding's keys.
func (b Binding) involves(k Key) bool {
	return k == b.Modifier || (b.Key != "" && k == b.Key)
}

// ParseError reports an unusable binding string.
type ParseError struct {
	Spec   string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("hotkey: invalid binding %q: %s", e.Spec, e.Reason)
}

// ParseBinding parses strings such as "alt+z", "ctrl + m" or "alt".
func ParseBinding(id, spec string, format bool) (Binding, error) {
	parts := strings.Fields(strings.ReplaceAll(strings.ToLower(spec), "+", " "))
	if len(parts) == 0 {
		return Binding{}, &ParseError{Spec: spec, Reason: "empty"}
	}
	if len(parts) > 2 {
		return Binding{}, &ParseError{Spec: spec, Reason: "expected one modifier and at most one key"}
	}

	mod := Normalize(parts[0])
	if !IsModifier(mod) {
		return Binding{}, &ParseError{Spec: spec, Reason: fmt.Sprintf("%q is not a modifier", parts[0])}
	}

	b := Binding{ID: id, Modifier: mod, Format: format}
	if len(parts) == 2 {
		key := Normalize(parts[1])
		if IsModifier(key) {
			return Binding{}, &ParseError{Spec: spec, Reason: "second key must not be a modifier"}
		}
		b.Key = key
	}
	return b, nil
}
