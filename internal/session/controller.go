// Package session owns the recording session state machine. Hotkey edges,
// explicit stop requests and server messages all pass through one request
// channel consumed by Controller.Run, so state has a single writer.
package session

import (
	"context"
	"encoding/base64"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"go.aimuz.me/localflow/audiocapture"
	"go.aimuz.me/localflow/history"
	"go.aimuz.me/localflow/hotkey"
	"go.aimuz.me/localflow/internal/types"
	"go.aimuz.me/localflow/overlay"
	"go.aimuz.me/localflow/transport"
)

// ErrStopped is returned when a request is made after Run has returned.
var ErrStopped = errors.New("session: controller stopped")

// State is the session lifecycle state.
type State int32

const (
	Idle State = iota
	Recording
	Finalizing
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Recording:
		return "recording"
	case Finalizing:
		return "finalizing"
	default:
		return "unknown"
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Collaborators
// ─────────────────────────────────────────────────────────────────────────────

// Capture records one session at a time.
type Capture interface {
	Start() error
	Stop() (*audiocapture.Recording, error)
}

// Transport sends events to the server.
type Transport interface {
	Connected() bool
	Emit(ctx context.Context, event string, payload any) error
}

// Paster inserts text at the cursor.
type Paster interface {
	Paste(ctx context.Context, text string) bool
}

// History records delivered results.
type History interface {
	Add(e history.Entry) (history.Entry, error)
}

// SettingsStore persists runtime settings.
type SettingsStore interface {
	SaveSettings(s types.Settings) error
}

// Rebinder replaces a hotkey binding.
type Rebinder interface {
	SetBinding(b hotkey.Binding)
}

// Deps are the controller's collaborators. History, Settings and Bindings
// are optional.
type Deps struct {
	Capture   Capture
	Transport Transport
	Paster    Paster
	Overlay   overlay.Indicator
	History   History
	Settings  SettingsStore
	Bindings  Rebinder
}

// Config is the controller's initial configuration.
type Config struct {
	Settings types.Settings
	// FormatMode replaces the mode for sessions started with a format binding.
	FormatMode types.Mode
}

// Session is one Recording→Finalizing cycle.
type Session struct {
	ID        string
	BindingID string
	Format    bool
	StartedAt time.Time
}

// ─────────────────────────────────────────────────────────────────────────────
// Requests
// ─────────────────────────────────────────────────────────────────────────────

type request interface {
	isRequest()
}

type edgeRequest struct{ edge hotkey.Edge }

type stopRequest struct{}

type messageRequest struct{ msg transport.Message }

func (edgeRequest) isRequest()    {}
func (stopRequest) isRequest()    {}
func (messageRequest) isRequest() {}

const requestBuffer = 16

// ─────────────────────────────────────────────────────────────────────────────
// Controller
// ─────────────────────────────────────────────────────────────────────────────

// Controller drives sessions from edges to pasted text.
type Controller struct {
	deps     Deps
	requests chan request
	done     chan struct{}
	now      func() time.Time

	// Owned by the Run goroutine.
	state      State
	session    *Session
	settings   types.Settings
	formatMode types.Mode
	// Modes of recordings sent and not yet answered, oldest first. The
	// server answers process_audio events in order on one connection.
	pending []types.Mode

	view atomic.Int32
}

// New creates a controller in the Idle state.
func New(cfg Config, deps Deps) *Controller {
	if deps.Overlay == nil {
		deps.Overlay = overlay.Nop{}
	}
	if cfg.Settings.Mode == "" {
		cfg.Settings.Mode = types.DefaultMode
	}
	if cfg.FormatMode == "" {
		cfg.FormatMode = types.FormatOverrideMode
	}
	return &Controller{
		deps:       deps,
		requests:   make(chan request, requestBuffer),
		done:       make(chan struct{}),
		now:        time.Now,
		settings:   cfg.Settings,
		formatMode: cfg.FormatMode,
	}
}

// State returns the current state. It is safe to call from any goroutine.
func (c *Controller) State() State {
	return State(c.view.Load())
}

// HandleEdge queues a hotkey edge. It has the signature hotkey.Watcher.Run
// expects of its sink.
func (c *Controller) HandleEdge(e hotkey.Edge) {
	_ = c.enqueue(edgeRequest{edge: e})
}

// Stop asks the controller to finalize the current session, if any.
func (c *Controller) Stop() error {
	return c.enqueue(stopRequest{})
}

// Deliver queues a server message.
func (c *Controller) Deliver(msg transport.Message) error {
	return c.enqueue(messageRequest{msg: msg})
}

func (c *Controller) enqueue(r request) error {
	// A stopped controller must refuse even when the buffer has room.
	select {
	case <-c.done:
		return ErrStopped
	default:
	}
	select {
	case c.requests <- r:
		return nil
	case <-c.done:
		return ErrStopped
	}
}

// Run consumes requests until ctx is done. A session still recording at
// shutdown is discarded.
func (c *Controller) Run(ctx context.Context) error {
	defer close(c.done)
	for {
		select {
		case <-ctx.Done():
			c.shutdown()
			return nil
		case r := <-c.requests:
			c.handle(ctx, r)
		}
	}
}

func (c *Controller) handle(ctx context.Context, r request) {
	switch r := r.(type) {
	case edgeRequest:
		c.handleEdge(ctx, r.edge)
	case stopRequest:
		if c.state == Recording {
			c.finalize(ctx, "stop requested")
		}
	case messageRequest:
		c.handleMessage(ctx, r.msg)
	}
}

func (c *Controller) setState(s State) {
	c.state = s
	c.view.Store(int32(s))
}

func (c *Controller) handleEdge(ctx context.Context, e hotkey.Edge) {
	switch e.Kind {
	case hotkey.Activate:
		if c.state != Idle {
			slog.Debug("ignore activate", "state", c.state, "binding", e.Binding.ID)
			return
		}
		c.begin(ctx, e.Binding)
	case hotkey.Deactivate:
		if c.state != Recording || c.session.BindingID != e.Binding.ID {
			slog.Debug("ignore deactivate", "state", c.state, "binding", e.Binding.ID)
			return
		}
		c.finalize(ctx, "hotkey released")
	}
}

// begin moves Idle→Recording once the device is open.
func (c *Controller) begin(ctx context.Context, b hotkey.Binding) {
	if err := c.deps.Capture.Start(); err != nil {
		slog.Error("start recording", "binding", b.ID, "error", err)
		return
	}

	c.session = &Session{
		ID:        uuid.NewString(),
		BindingID: b.ID,
		Format:    b.Format,
		StartedAt: c.now(),
	}
	c.setState(Recording)
	c.deps.Overlay.Show()
	slog.Info("session started", "session", c.session.ID, "binding", b.ID, "format", b.Format)

	if !c.deps.Transport.Connected() {
		return
	}
	started := transport.RecordingStarted{Timestamp: c.session.StartedAt.UnixMilli(), FormatMode: b.Format}
	if err := c.deps.Transport.Emit(ctx, transport.EventRecordingStarted, started); err != nil {
		slog.Debug("notify recording start", "error", err)
	}
}

// finalize moves Recording→Finalizing→Idle. Idle is reached whatever
// happens to the audio.
func (c *Controller) finalize(ctx context.Context, reason string) {
	s := c.session
	c.setState(Finalizing)
	c.deps.Overlay.Hide()
	defer func() {
		c.session = nil
		c.setState(Idle)
	}()

	rec, err := c.deps.Capture.Stop()
	switch {
	case errors.Is(err, audiocapture.ErrNoAudio):
		slog.Warn("no audio captured", "session", s.ID)
		return
	case err != nil:
		slog.Error("stop recording", "session", s.ID, "error", err)
		return
	}

	mode := c.settings.Mode
	if s.Format {
		mode = c.formatMode
	}
	log := slog.With("session", s.ID, "mode", mode, "duration", rec.Duration.Round(10*time.Millisecond), "reason", reason)
	if rec.Silent() {
		log.Warn("recording looks silent, check the microphone", "level", rec.Level)
	}

	if !c.deps.Transport.Connected() {
		log.Error("drop recording, not connected to server")
		return
	}

	payload := transport.NewProcessAudio(
		base64.StdEncoding.EncodeToString(rec.WAV),
		mode,
		c.settings.ProcessingMode,
		c.now(),
	)
	if err := c.deps.Transport.Emit(ctx, transport.EventProcessAudio, payload); err != nil {
		log.Error("send recording", "error", err)
		return
	}
	c.pending = append(c.pending, mode)
	log.Info("audio sent for processing", "bytes", len(rec.WAV))
}

// shutdown stops an in-flight recording without sending it.
func (c *Controller) shutdown() {
	if c.state != Recording {
		return
	}
	c.deps.Overlay.Hide()
	if _, err := c.deps.Capture.Stop(); err != nil && !errors.Is(err, audiocapture.ErrNoAudio) {
		slog.Warn("stop recording", "error", err)
	}
	slog.Info("session discarded", "session", c.session.ID)
	c.session = nil
	c.setState(Idle)
}

// ─────────────────────────────────────────────────────────────────────────────
// Server messages
// ─────────────────────────────────────────────────────────────────────────────

func (c *Controller) handleMessage(ctx context.Context, msg transport.Message) {
	switch m := msg.(type) {
	case transport.ConnectionConfirmed:
		// Results for audio sent on a previous connection never arrive.
		if n := len(c.pending); n > 0 {
			slog.Warn("drop unanswered recordings", "count", n)
			c.pending = nil
		}
		slog.Info("connection confirmed", "server_time", m.ServerTime)
	case transport.DictationResult:
		c.handleResult(ctx, m)
	case transport.SettingsUpdate:
		c.handleSettings(m)
	default:
		slog.Warn("unhandled server message", "type", m)
	}
}

// nextMode pops the mode of the oldest unanswered recording, falling back
// to the current setting when the result was not requested by this client.
func (c *Controller) nextMode() types.Mode {
	if len(c.pending) == 0 {
		return c.settings.Mode
	}
	mode := c.pending[0]
	c.pending = c.pending[1:]
	return mode
}

func (c *Controller) handleResult(ctx context.Context, r transport.DictationResult) {
	mode := c.nextMode()
	if !r.Success {
		reason := r.Error
		if reason == "" {
			reason = "unknown error"
		}
		slog.Error("dictation failed", "error", reason)
		return
	}

	slog.Info("received result", "words", r.WordCount, "processing", r.Processing())
	if r.RefinedText == "" {
		slog.Warn("refined text is empty, skipping paste")
		return
	}

	pasted := c.deps.Paster.Paste(ctx, r.RefinedText)

	if c.deps.History == nil {
		return
	}
	_, err := c.deps.History.Add(history.Entry{
		Text:       r.RefinedText,
		Mode:       mode,
		WordCount:  r.WordCount,
		Processing: r.Processing(),
		Pasted:     pasted,
	})
	if err != nil {
		slog.Warn("save history entry", "error", err)
	}
}

func (c *Controller) handleSettings(u transport.SettingsUpdate) {
	next := c.settings

	if u.Mode != nil {
		if u.Mode.Valid() {
			next.Mode = *u.Mode
			slog.Info("mode updated", "mode", next.Mode)
		} else {
			slog.Warn("ignore unknown mode", "mode", *u.Mode)
		}
	}
	if u.ProcessingMode != nil {
		if u.ProcessingMode.Valid() {
			next.ProcessingMode = *u.ProcessingMode
			slog.Info("processing mode updated", "processing_mode", next.ProcessingMode)
		} else {
			slog.Warn("ignore unknown processing mode", "processing_mode", *u.ProcessingMode)
		}
	}
	if u.Hotkey != nil {
		b, err := hotkey.ParseBinding(hotkey.BindingPlain, *u.Hotkey, false)
		if err != nil {
			slog.Warn("ignore hotkey update", "error", err)
		} else {
			next.Hotkey = *u.Hotkey
			if c.deps.Bindings != nil {
				c.deps.Bindings.SetBinding(b)
			}
			slog.Info("hotkey updated", "hotkey", b.String())
		}
	}

	if next == c.settings {
		return
	}
	c.settings = next
	if c.deps.Settings != nil {
		if err := c.deps.Settings.SaveSettings(next); err != nil {
			slog.Warn("persist settings", "error", err)
		}
	}
}
