// Package types provides shared type definitions for the agent.
package types

// Mode is the refinement style forwarded with the audio.
type Mode string

const (
	ModeDeveloper    Mode = "developer"
	ModeConcise      Mode = "concise"
	ModeProfessional Mode = "professional"
	ModeRaw          Mode = "raw"
	ModeOutline      Mode = "outline"
)

// Valid reports whether m is a known refinement style.
func (m Mode) Valid() bool {
	switch m {
	case ModeDeveloper, ModeConcise, ModeProfessional, ModeRaw, ModeOutline:
		return true
	}
	return false
}

// DefaultMode is used when nothing else is configured.
const DefaultMode = ModeDeveloper

// FormatOverrideMode is the fixed mode used by sessions started with the
// format binding.
const FormatOverrideMode = ModeOutline

// ProcessingMode is the deployment location of the refinement pipeline.
type ProcessingMode string

const (
	ProcessingCloud          ProcessingMode = "cloud"
	ProcessingNetworkedLocal ProcessingMode = "networked-local"
	ProcessingLocal          ProcessingMode = "local"
)

// Valid reports whether p is a known processing location.
func (p ProcessingMode) Valid() bool {
	switch p {
	case ProcessingCloud, ProcessingNetworkedLocal, ProcessingLocal:
		return true
	}
	return false
}

// Settings is the mutable subset of the configuration. The server may
// change any of these fields at runtime.
type Settings struct {
	Mode           Mode           `json:"mode"`
	ProcessingMode ProcessingMode `json:"processingMode"`
	Hotkey         string         `json:"hotkey"`
}
