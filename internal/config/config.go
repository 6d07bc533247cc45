package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
)

// Mode selects which message store backend handles an operation.
type Mode string

const (
	// ModeEphemeral keeps messages in process memory only.
	ModeEphemeral Mode = "ephemeral"
	// ModePersisted talks to a shared chatd backend over HTTP.
	ModePersisted Mode = "persisted"
)

// Storage configures backend selection and the persisted endpoint.
type Storage struct {
	Mode     Mode   `toml:"mode"`
	ChatdURL string `toml:"chatd_url"`
}

// Server configures the chatd daemon.
type Server struct {
	Listen  string `toml:"listen"`
	DBPath  string `toml:"db_path"`
	LogPath string `toml:"log_path"`
}

// Polling configures the client-side poll intervals.
type Polling struct {
	ConversationSeconds int `toml:"conversation_seconds"`
	WindowSeconds       int `toml:"window_seconds"`
	HeartbeatSeconds    int `toml:"heartbeat_seconds"`
}

// User is a directory entry seeded from config.
type User struct {
	ID     string `toml:"id"`
	Name   string `toml:"name"`
	Avatar string `toml:"avatar"`
}

// Config is the on-disk configuration for chatd and chatctl.
type Config struct {
	Storage Storage `toml:"storage"`
	Server  Server  `toml:"server"`
	Polling Polling `toml:"polling"`
	Users   []User  `toml:"users"`
}

// Default returns a config with working defaults for a single-machine setup.
func Default() *Config {
	return &Config{
		Storage: Storage{
			Mode:     ModeEphemeral,
			ChatdURL: "http://127.0.0.1:8642",
		},
		Server: Server{
			Listen:  "127.0.0.1:8642",
			DBPath:  filepath.Join(baseDir(), "chatd.db"),
			LogPath: filepath.Join(baseDir(), "logs", "chatd.log"),
		},
		Polling: Polling{
			ConversationSeconds: 3,
			WindowSeconds:       3,
			HeartbeatSeconds:    5,
		},
	}
}

// Load reads config from path, layering it over Default.
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	if cfg.Storage.Mode != ModeEphemeral && cfg.Storage.Mode != ModePersisted {
		return nil, fmt.Errorf("unknown storage mode %q", cfg.Storage.Mode)
	}
	return cfg, nil
}

// Save writes config to path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}

// Path returns the default config file location.
func Path() string {
	return filepath.Join(baseDir(), "config.toml")
}

func baseDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".teamchat")
}

// ConversationInterval returns the aggregation poll interval.
func (p Polling) ConversationInterval() time.Duration {
	return secondsOr(p.ConversationSeconds, 3)
}

// WindowInterval returns the per-window poll interval.
func (p Polling) WindowInterval() time.Duration {
	return secondsOr(p.WindowSeconds, 3)
}

// HeartbeatInterval returns the presence heartbeat interval.
func (p Polling) HeartbeatInterval() time.Duration {
	return secondsOr(p.HeartbeatSeconds, 5)
}

func secondsOr(n, fallback int) time.Duration {
	if n <= 0 {
		n = fallback
	}
	return time.Duration(n) * time.Second
}

// ModeSource hands out the current storage mode. The switched store
// consults it on every operation, so flipping the mode mid-session is
// safe: the next call simply lands on the other backend.
type ModeSource struct {
	mu   sync.RWMutex
	mode Mode
}

// NewModeSource creates a source starting in the given mode.
func NewModeSource(m Mode) *ModeSource {
	return &ModeSource{mode: m}
}

// Mode returns the current mode.
func (s *ModeSource) Mode() Mode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mode
}

// Set switches the mode.
func (s *ModeSource) Set(m Mode) {
	s.mu.Lock()
	s.mode = m
	s.mu.Unlock()
}
