package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	HTTP          HTTPConfig          `yaml:"http"`
	Registry      RegistryConfig      `yaml:"registry"`
	HomeAssistant HomeAssistantConfig `yaml:"homeassistant"`
	Tuya          TuyaConfig          `yaml:"tuya"`
	Store         StoreConfig         `yaml:"store"`
	Pushover      PushoverConfig      `yaml:"pushover"`
	Log           LogConfig           `yaml:"log"`
}

type HTTPConfig struct {
	Addr      string `yaml:"addr"`
	AuthToken string `yaml:"auth_token"`
	// RateLimit is the number of directives accepted per client per minute.
	RateLimit int `yaml:"rate_limit"`
	// TrustedProxies are addresses or CIDR ranges whose X-Forwarded-For
	// headers identify the client for rate limiting.
	TrustedProxies []string `yaml:"trusted_proxies"`
}

type RegistryConfig struct {
	File     string         `yaml:"file"`
	Defaults map[string]any `yaml:"defaults"`
}

type HomeAssistantConfig struct {
	URL   string `yaml:"url"`
	Token string `yaml:"token"`
}

// TuyaConfig enables the Tuya cloud backend when ClientID is set.
type TuyaConfig struct {
	ClientID     string `yaml:"client_id"`
	Secret       string `yaml:"secret"`
	Region       string `yaml:"region"`
	SyncInterval string `yaml:"sync_interval"`
}

func (t TuyaConfig) Enabled() bool {
	return t.ClientID != ""
}

// SyncEvery is how often the Tuya device list is refreshed.
func (t TuyaConfig) SyncEvery() (time.Duration, error) {
	interval, err := time.ParseDuration(t.SyncInterval)
	if err != nil {
		return 0, fmt.Errorf("invalid tuya sync_interval %q: %w", t.SyncInterval, err)
	}
	if interval <= 0 {
		return 0, fmt.Errorf("invalid tuya sync_interval %q: must be positive", t.SyncInterval)
	}
	return interval, nil
}

type StoreConfig struct {
	Backend       string `yaml:"backend"`
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
	TTL           string `yaml:"ttl"`
}

type PushoverConfig struct {
	Token   string `yaml:"token"`
	UserKey string `yaml:"user_key"`
	Title   string `yaml:"title"`
	Enabled bool   `yaml:"enabled"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	cfg.setDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) setDefaults() {
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = ":8080"
	}
	if c.HTTP.RateLimit == 0 {
		c.HTTP.RateLimit = 60
	}
	if c.Registry.File == "" {
		c.Registry.File = "registry.yaml"
	}
	if c.HomeAssistant.URL == "" {
		c.HomeAssistant.URL = "http://localhost:8123"
	}
	if c.Tuya.Region == "" {
		c.Tuya.Region = "us"
	}
	if c.Tuya.SyncInterval == "" {
		c.Tuya.SyncInterval = "5m"
	}
	if c.Store.Backend == "" {
		c.Store.Backend = "memory"
	}
	if c.Store.RedisAddr == "" {
		c.Store.RedisAddr = "localhost:6379"
	}
	if c.Store.TTL == "" {
		c.Store.TTL = "10m"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

func (c *Config) validate() error {
	switch c.Store.Backend {
	case "memory", "redis":
	default:
		return fmt.Errorf("invalid store backend %q: want memory or redis", c.Store.Backend)
	}
	if _, err := c.Store.ResponseTTL(); err != nil {
		return err
	}
	if c.Tuya.Enabled() {
		if c.Tuya.Secret == "" {
			return errors.New("tuya secret is required when client_id is set")
		}
		if _, err := c.Tuya.SyncEvery(); err != nil {
			return err
		}
	}
	return nil
}

// ResponseTTL is how long answered commands are remembered for redelivery.
func (s StoreConfig) ResponseTTL() (time.Duration, error) {
	ttl, err := time.ParseDuration(s.TTL)
	if err != nil {
		return 0, fmt.Errorf("invalid store ttl %q: %w", s.TTL, err)
	}
	return ttl, nil
}
