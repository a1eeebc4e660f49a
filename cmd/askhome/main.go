package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"askhome/config"
	"askhome/internal/alexa"
	"askhome/internal/application"
	"askhome/internal/infra/homeassistant"
	"askhome/internal/infra/pushover"
	"askhome/internal/infra/server"
	"askhome/internal/infra/store"
	"askhome/internal/infra/tuya"
	"askhome/internal/smarthome"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	discover := flag.Bool("discover", false, "print the discovery response for the registry and exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("loading config", "error", err)
		os.Exit(1)
	}

	logger := setupLogger(cfg.Log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		logger.Info("shutting down")
		cancel()
	}()

	haClient := homeassistant.NewClient(cfg.HomeAssistant.URL, cfg.HomeAssistant.Token)
	drivers := map[string]smarthome.Driver{
		"homeassistant": homeassistant.NewDriver(haClient, logger),
	}
	var health application.HealthChecks
	if cfg.HomeAssistant.Token != "" {
		health = append(health, haClient)
	}

	if cfg.Tuya.Enabled() {
		tuyaClient := tuya.NewClient(cfg.Tuya.ClientID, cfg.Tuya.Secret, cfg.Tuya.Region)
		tuyaDriver := tuya.NewDriver(tuyaClient, logger)
		if err := tuyaDriver.Sync(ctx); err != nil {
			logger.Warn("initial tuya sync failed, devices treated as lights until next sync", "error", err)
		}
		if !*discover {
			interval, _ := cfg.Tuya.SyncEvery()
			go tuyaDriver.StartSync(ctx, interval)
		}
		drivers["tuya"] = tuyaDriver
		health = append(health, tuyaClient)
	}

	registryFile, err := smarthome.LoadFile(cfg.Registry.File)
	if err != nil {
		logger.Error("loading registry", "error", err, "file", cfg.Registry.File)
		os.Exit(1)
	}
	registry, err := registryFile.Build(drivers, cfg.Registry.Defaults, logger)
	if err != nil {
		logger.Error("building registry", "error", err)
		os.Exit(1)
	}

	responses, closeStore := createStore(ctx, cfg.Store, logger)
	defer closeStore()

	var notifier application.Notifier
	if cfg.Pushover.Enabled {
		notifier = pushover.NewClient(cfg.Pushover.Token, cfg.Pushover.UserKey, cfg.Pushover.Title)
	} else {
		notifier = &application.NoopNotifier{}
	}

	ttl, _ := cfg.Store.ResponseTTL()
	skill := application.NewSkill(registry, responses, health, notifier, logger, ttl)

	if *discover {
		if err := printDiscovery(ctx, skill); err != nil {
			logger.Error("discovery", "error", err)
			os.Exit(1)
		}
		return
	}

	limiter := server.NewRateLimiter(cfg.HTTP.RateLimit, time.Minute)
	if err := limiter.TrustProxies(cfg.HTTP.TrustedProxies); err != nil {
		logger.Error("configuring rate limiter", "error", err)
		os.Exit(1)
	}
	srv := server.New(cfg.HTTP.Addr, cfg.HTTP.AuthToken, limiter, skill, logger)

	logger.Info("starting askhome",
		"addr", cfg.HTTP.Addr,
		"appliances", registry.Len(),
		"store", cfg.Store.Backend,
		"tuya", cfg.Tuya.Enabled(),
	)

	if err := srv.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

func createStore(ctx context.Context, cfg config.StoreConfig, logger *slog.Logger) (application.ResponseStore, func()) {
	if cfg.Backend != "redis" {
		return store.NewMemoryStore(), func() {}
	}

	redisStore := store.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err := redisStore.Ping(ctx); err != nil {
		logger.Warn("redis not reachable yet, continuing", "error", err, "addr", cfg.RedisAddr)
	}
	return redisStore, func() {
		if err := redisStore.Close(); err != nil {
			logger.Warn("closing redis", "error", err)
		}
	}
}

func printDiscovery(ctx context.Context, skill *application.Skill) error {
	raw, err := alexa.NewDirective(alexa.DiscoveryNamespace, "DiscoverAppliancesRequest", nil).Marshal()
	if err != nil {
		return err
	}

	body, err := skill.Handle(ctx, raw, nil)
	if err != nil {
		return err
	}

	var out bytes.Buffer
	if err := json.Indent(&out, body, "", "  "); err != nil {
		return fmt.Errorf("formatting response: %w", err)
	}
	out.WriteByte('\n')
	_, err = out.WriteTo(os.Stdout)
	return err
}

func setupLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	return slog.New(handler)
}
