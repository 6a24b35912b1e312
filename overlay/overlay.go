// Package overlay provides the recording indicator shown while a session
// records.
package overlay

import (
	"log/slog"
	"sync"

	"github.com/gen2brain/beeep"
)

// Indicator is told when recording starts and stops. Calls must not block.
type Indicator interface {
	Show()
	Hide()
}

// Nop is an Indicator that does nothing.
type Nop struct{}

func (Nop) Show() {}
func (Nop) Hide() {}

// Log reports indicator changes in the log.
type Log struct{}

func (Log) Show() { slog.Debug("show recording indicator") }
func (Log) Hide() { slog.Debug("hide recording indicator") }

// Multi fans calls out to several indicators.
type Multi []Indicator

func (m Multi) Show() {
	for _, i := range m {
		i.Show()
	}
}

func (m Multi) Hide() {
	for _, i := range m {
		i.Hide()
	}
}

// AppName is the sender name desktop notifications carry.
const AppName = "LocalFlow"

// Notifier posts a desktop notification when recording starts.
type Notifier struct {
	mu      sync.Mutex
	pending bool
	notify  func(title, message string, icon any) error
}

// NewNotifier creates a Notifier backed by beeep.
func NewNotifier() *Notifier {
	beeep.AppName = AppName
	return &Notifier{notify: beeep.Notify}
}

// Show posts the notification in the background. A second Show while one
// is still being delivered is dropped.
func (n *Notifier) Show() {
	n.mu.Lock()
	if n.pending {
		n.mu.Unlock()
		return
	}
	n.pending = true
	n.mu.Unlock()

	go func() {
		defer func() {
			n.mu.Lock()
			n.pending = false
			n.mu.Unlock()
		}()
		if err := n.notify(AppName, "Recording…", ""); err != nil {
			slog.Warn("post notification", "error", err)
		}
	}()
}

// Hide is a no-op; notifications expire on their own.
func (n *Notifier) Hide() {}
