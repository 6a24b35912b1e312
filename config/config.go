// Package config handles application configuration.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"go.aimuz.me/localflow/internal/types"
)

const (
	appName          = "localflow"
	settingsFileName = "settings.json"
	historyDirName   = "history"
	envFileName      = ".env"
)

// Config is the agent configuration. Values come from the environment
// (optionally seeded from a .env file), then settings persisted by earlier
// runs are laid over the runtime-mutable fields.
type Config struct {
	ServerURL string `env:"LOCALFLOW_WS_URL" envDefault:"http://localhost:3002" validate:"required,url"`
	Namespace string `env:"LOCALFLOW_NAMESPACE" envDefault:"/agent" validate:"required,startswith=/"`

	Hotkey       string `env:"LOCALFLOW_HOTKEY" envDefault:"alt+z" validate:"required"`
	FormatHotkey string `env:"LOCALFLOW_FORMAT_HOTKEY" envDefault:"alt+m"`

	Mode           types.Mode           `env:"LOCALFLOW_MODE" envDefault:"developer" validate:"required,mode"`
	FormatMode     types.Mode           `env:"LOCALFLOW_FORMAT_MODE" envDefault:"outline" validate:"required,mode"`
	ProcessingMode types.ProcessingMode `env:"PROCESSING_MODE" envDefault:"networked-local" validate:"required,processing_mode"`

	HeartbeatInterval time.Duration `env:"LOCALFLOW_HEARTBEAT_INTERVAL" envDefault:"5s" validate:"gt=0"`
	ConnectTimeout    time.Duration `env:"LOCALFLOW_CONNECT_TIMEOUT" envDefault:"10s" validate:"gt=0"`

	PasteCooldown  time.Duration     `env:"LOCALFLOW_PASTE_COOLDOWN" envDefault:"100ms" validate:"gte=0"`
	PasteOverrides map[string]string `env:"LOCALFLOW_PASTE_OVERRIDES" envKeyValSeparator:"="`

	SampleRate int `env:"LOCALFLOW_SAMPLE_RATE" envDefault:"16000" validate:"oneof=8000 16000 22050 44100 48000"`

	History bool   `env:"LOCALFLOW_HISTORY" envDefault:"true"`
	Notify  bool   `env:"LOCALFLOW_NOTIFY" envDefault:"false"`
	LogFile string `env:"LOCALFLOW_LOG_FILE"`
	Debug   bool   `env:"DEBUG" envDefault:"false"`

	dir string
}

// Load reads .env from the working directory when present, parses the
// environment and applies persisted settings.
func Load() (*Config, error) {
	if err := godotenv.Load(envFileName); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load %s: %w", envFileName, err)
	}

	dir, err := configDir()
	if err != nil {
		return nil, fmt.Errorf("get config dir: %w", err)
	}
	return load(dir, nil)
}

// load builds the config. A nil environ reads the process environment.
func load(dir string, environ map[string]string) (*Config, error) {
	cfg := &Config{dir: dir}

	opts := env.Options{}
	if environ != nil {
		opts.Environment = environ
	}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	saved, err := readSettings(cfg.settingsPath())
	if err != nil {
		return nil, err
	}
	if saved != nil {
		cfg.apply(*saved)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Settings returns the runtime-mutable subset.
func (c *Config) Settings() types.Settings {
	return types.Settings{
		Mode:           c.Mode,
		ProcessingMode: c.ProcessingMode,
		Hotkey:         c.Hotkey,
	}
}

// SaveSettings applies s and persists it for the next start.
func (c *Config) SaveSettings(s types.Settings) error {
	if !s.Mode.Valid() {
		return fmt.Errorf("invalid mode %q", s.Mode)
	}
	if !s.ProcessingMode.Valid() {
		return fmt.Errorf("invalid processing mode %q", s.ProcessingMode)
	}
	if s.Hotkey == "" {
		return errors.New("hotkey required")
	}
	c.apply(s)

	path := c.settingsPath()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	return nil
}

// HistoryDir is where the dictation history database lives.
func (c *Config) HistoryDir() string {
	return filepath.Join(c.dir, historyDirName)
}

func (c *Config) apply(s types.Settings) {
	if s.Mode != "" {
		c.Mode = s.Mode
	}
	if s.ProcessingMode != "" {
		c.ProcessingMode = s.ProcessingMode
	}
	if s.Hotkey != "" {
		c.Hotkey = s.Hotkey
	}
}

func (c *Config) settingsPath() string {
	return filepath.Join(c.dir, settingsFileName)
}

func readSettings(path string) (*types.Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read settings: %w", err)
	}

	var s types.Settings
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}
	return &s, nil
}

func configDir() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("get user config dir: %w", err)
	}
	return filepath.Join(dir, appName), nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Validation
// ─────────────────────────────────────────────────────────────────────────────

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("mode", func(fl validator.FieldLevel) bool {
		return types.Mode(fl.Field().String()).Valid()
	})
	_ = v.RegisterValidation("processing_mode", func(fl validator.FieldLevel) bool {
		return types.ProcessingMode(fl.Field().String()).Valid()
	})
	return v
}
