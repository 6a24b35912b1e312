package clipboard

import (
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/atotto/clipboard"
	"github.com/go-vgo/robotgo"
	"github.com/micmonay/keybd_event"
)

// SystemClipboard writes to the OS clipboard.
type SystemClipboard struct{}

// WriteText replaces the clipboard contents with text.
func (SystemClipboard) WriteText(text string) error {
	if clipboard.Unsupported {
		return fmt.Errorf("clipboard: no clipboard utility available")
	}
	if err := clipboard.WriteAll(text); err != nil {
		return fmt.Errorf("write clipboard: %w", err)
	}
	return nil
}

var keyCodes = map[string]int{
	"v": keybd_event.VK_V,
}

// linuxDeviceSettle is how long the uinput device needs before the first
// synthesized event is delivered.
const linuxDeviceSettle = 2 * time.Second

// VirtualKeyboard synthesizes chords through a virtual input device.
type VirtualKeyboard struct {
	mu sync.Mutex
	kb keybd_event.KeyBonding
}

// NewVirtualKeyboard creates the virtual input device. It blocks for a
// moment on Linux while the device registers.
func NewVirtualKeyboard() (*VirtualKeyboard, error) {
	kb, err := keybd_event.NewKeyBonding()
	if err != nil {
		return nil, fmt.Errorf("create virtual keyboard: %w", err)
	}
	if runtime.GOOS == "linux" {
		time.Sleep(linuxDeviceSettle)
	}
	return &VirtualKeyboard{kb: kb}, nil
}

// Press sends s as one chord.
func (k *VirtualKeyboard) Press(s Shortcut) error {
	code, ok := keyCodes[s.Key]
	if !ok {
		return fmt.Errorf("clipboard: unsupported key %q", s.Key)
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	k.kb.Clear()
	k.kb.HasCTRL(s.Ctrl)
	k.kb.HasSHIFT(s.Shift)
	k.kb.HasALT(s.Alt)
	k.kb.HasSuper(s.Super)
	k.kb.SetKeys(code)
	if err := k.kb.Launching(); err != nil {
		return fmt.Errorf("send %s: %w", s, err)
	}
	return nil
}

// WindowFocus reads the focused window through robotgo.
type WindowFocus struct{}

// FocusedApp returns the process name and title of the active window.
func (WindowFocus) FocusedApp() (App, error) {
	app := App{Title: robotgo.GetTitle()}
	pid := robotgo.GetPid()
	if pid <= 0 {
		return app, nil
	}
	name, err := robotgo.FindName(pid)
	if err != nil {
		return app, fmt.Errorf("find process %d: %w", pid, err)
	}
	app.Process = name
	return app, nil
}
