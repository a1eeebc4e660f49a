package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"askhome/config"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load(writeConfig(t, "{}\n"))
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}

	if cfg.HTTP.Addr != ":8080" || cfg.HTTP.RateLimit != 60 {
		t.Errorf("http defaults: got %+v", cfg.HTTP)
	}
	if cfg.Store.Backend != "memory" || cfg.Log.Level != "info" || cfg.Log.Format != "text" {
		t.Errorf("defaults: got store %+v log %+v", cfg.Store, cfg.Log)
	}
	if ttl, _ := cfg.Store.ResponseTTL(); ttl != 10*time.Minute {
		t.Errorf("ttl: got %v", ttl)
	}
}

func TestLoad_ExpandsEnv(t *testing.T) {
	t.Setenv("ASKHOME_TEST_HA_TOKEN", "secret")

	cfg, err := config.Load(writeConfig(t, `
homeassistant:
  url: http://ha.local:8123
  token: ${ASKHOME_TEST_HA_TOKEN}
registry:
  file: appliances.jsonc
  defaults:
    manufacturer: askhome
    reachable: true
store:
  backend: redis
  ttl: 30s
`))
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}

	if cfg.HomeAssistant.Token != "secret" {
		t.Errorf("token: got %q", cfg.HomeAssistant.Token)
	}
	if cfg.Registry.File != "appliances.jsonc" || cfg.Registry.Defaults["manufacturer"] != "askhome" || cfg.Registry.Defaults["reachable"] != true {
		t.Errorf("registry: got %+v", cfg.Registry)
	}
	if cfg.Store.Backend != "redis" || cfg.Store.RedisAddr != "localhost:6379" {
		t.Errorf("store: got %+v", cfg.Store)
	}
	if ttl, _ := cfg.Store.ResponseTTL(); ttl != 30*time.Second {
		t.Errorf("ttl: got %v", ttl)
	}
}

func TestLoad_TuyaAndProxies(t *testing.T) {
	cfg, err := config.Load(writeConfig(t, `
http:
  trusted_proxies: [10.0.0.0/8, 127.0.0.1]
tuya:
  client_id: abc
  secret: shh
`))
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}

	if len(cfg.HTTP.TrustedProxies) != 2 || cfg.HTTP.TrustedProxies[0] != "10.0.0.0/8" {
		t.Errorf("trusted proxies: got %v", cfg.HTTP.TrustedProxies)
	}
	if !cfg.Tuya.Enabled() || cfg.Tuya.Region != "us" {
		t.Errorf("tuya: got %+v", cfg.Tuya)
	}
	if interval, _ := cfg.Tuya.SyncEvery(); interval != 5*time.Minute {
		t.Errorf("sync interval: got %v", interval)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"bad yaml", "http: [\n"},
		{"bad backend", "store:\n  backend: etcd\n"},
		{"bad ttl", "store:\n  ttl: soon\n"},
		{"tuya without secret", "tuya:\n  client_id: abc\n"},
		{"bad tuya interval", "tuya:\n  client_id: abc\n  secret: s\n  sync_interval: never\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := config.Load(writeConfig(t, tt.content)); err == nil {
				t.Error("expected error")
			}
		})
	}

	if _, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}
