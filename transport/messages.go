package transport

import (
	"encoding/json"
	"fmt"
	"time"

	"go.aimuz.me/localflow/internal/types"
)

// ─────────────────────────────────────────────────────────────────────────────
// Outbound
// ─────────────────────────────────────────────────────────────────────────────

// Outbound event names.
const (
	EventProcessAudio     = "process_audio"
	EventRecordingStarted = "recording_started"
	EventPing             = "ping"
)

// ProcessAudio submits one finished recording for transcription.
type ProcessAudio struct {
	Type           string               `json:"type"`
	Audio          string               `json:"audio"` // base64 WAV
	Mode           types.Mode           `json:"mode"`
	ProcessingMode types.ProcessingMode `json:"processingMode"`
	Timestamp      int64                `json:"timestamp"` // unix ms
}

// NewProcessAudio fills in the type tag and timestamp.
func NewProcessAudio(audioB64 string, mode types.Mode, pm types.ProcessingMode, at time.Time) ProcessAudio {
	return ProcessAudio{
		Type:           EventProcessAudio,
		Audio:          audioB64,
		Mode:           mode,
		ProcessingMode: pm,
		Timestamp:      at.UnixMilli(),
	}
}

// RecordingStarted tells the server a session began.
type RecordingStarted struct {
	Timestamp  int64 `json:"timestamp"`
	FormatMode bool  `json:"format_mode"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Inbound
// ─────────────────────────────────────────────────────────────────────────────

// Inbound event names.
const (
	EventConnectionConfirmed = "connection_confirmed"
	EventDictationResult     = "dictation_result"
	EventSettingsUpdate      = "settings_update"
)

// Message is one decoded server event. The set of implementations is closed.
type Message interface {
	inbound()
}

// ConnectionConfirmed is sent by the server after the namespace connect.
type ConnectionConfirmed struct {
	ServerTime any `json:"serverTime"`
}

// DictationResult carries the refined text of one recording.
type DictationResult struct {
	Success        bool    `json:"success"`
	RefinedText    string  `json:"refinedText,omitempty"`
	WordCount      int     `json:"wordCount,omitempty"`
	ProcessingTime float64 `json:"processingTime,omitempty"` // ms
	Error          string  `json:"error,omitempty"`
}

// Processing returns the server-side processing time.
func (r DictationResult) Processing() time.Duration {
	return time.Duration(r.ProcessingTime * float64(time.Millisecond))
}

// SettingsUpdate changes runtime settings. Absent fields are left alone.
type SettingsUpdate struct {
	Mode           *types.Mode           `json:"mode,omitempty"`
	ProcessingMode *types.ProcessingMode `json:"processingMode,omitempty"`
	Hotkey         *string               `json:"hotkey,omitempty"`
}

func (ConnectionConfirmed) inbound() {}
func (DictationResult) inbound()     {}
func (SettingsUpdate) inbound()      {}

// UnknownEventError is returned for events outside the inbound set.
type UnknownEventError struct {
	Name string
}

func (e *UnknownEventError) Error() string {
	return fmt.Sprintf("transport: unknown event %q", e.Name)
}

// decodeMessage maps an event name and its argument to a Message.
func decodeMessage(name string, arg json.RawMessage) (Message, error) {
	if len(arg) == 0 {
		arg = json.RawMessage("{}")
	}
	switch name {
	case EventConnectionConfirmed:
		var m ConnectionConfirmed
		if err := json.Unmarshal(arg, &m); err != nil {
			return nil, fmt.Errorf("decode %s: %w", name, err)
		}
		return m, nil
	case EventDictationResult:
		var m DictationResult
		if err := json.Unmarshal(arg, &m); err != nil {
			return nil, fmt.Errorf("decode %s: %w", name, err)
		}
		return m, nil
	case EventSettingsUpdate:
		var m SettingsUpdate
		if err := json.Unmarshal(arg, &m); err != nil {
			return nil, fmt.Errorf("decode %s: %w", name, err)
		}
		return m, nil
	default:
		return nil, &UnknownEventError{Name: name}
	}
}
