package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config represents the daemon configuration file (pingme.toml).
type Config struct {
	Node       string `toml:"node"`
	ListenAddr string `toml:"listen_addr"`
	DataDir    string `toml:"data_dir"`
	JWTSecret  string `toml:"jwt_secret"`

	// Optional cross-instance presence mirror. Empty disables it.
	RedisAddr string `toml:"redis_addr"`

	// Optional push-notification dispatch transport. Empty disables it.
	KafkaBrokers []string `toml:"kafka_brokers"`
	KafkaTopic   string   `toml:"kafka_topic"`

	// NotificationTTL bounds how long a queued notification stays
	// deliverable. Zero means the 24h default.
	NotificationTTL duration `toml:"notification_ttl"`

	// PresenceTimeout bounds how long a presence lookup may take before
	// the caller treats the user as offline. Zero means the 2s default.
	PresenceTimeout duration `toml:"presence_timeout"`

	// CounterRetries bounds unread-counter transaction retries.
	// Zero means the default of 5.
	CounterRetries int `toml:"counter_retries"`
}

// duration lets TOML files carry values like "24h" or "1500ms".
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults applied by the daemon when the file leaves fields unset.
const (
	DefaultListenAddr      = "127.0.0.1:8520"
	DefaultNotificationTTL = 24 * time.Hour
	DefaultPresenceTimeout = 2 * time.Second
	DefaultCounterRetries  = 5
)

// Load reads config from the given path. Returns zero config and error if file missing.
func Load(path string) (*Config, error) {
	var cfg Config
	_, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Node == "" {
		host, _ := os.Hostname()
		c.Node = host
	}
	if c.ListenAddr == "" {
		c.ListenAddr = DefaultListenAddr
	}
	if c.NotificationTTL.Duration == 0 {
		c.NotificationTTL.Duration = DefaultNotificationTTL
	}
	if c.PresenceTimeout.Duration == 0 {
		c.PresenceTimeout.Duration = DefaultPresenceTimeout
	}
	if c.CounterRetries == 0 {
		c.CounterRetries = DefaultCounterRetries
	}
}

// Save writes config to the given path, creating parent dirs as needed.
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
