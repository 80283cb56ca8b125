// Command csms is the Central System entrypoint: it loads configuration,
// wires the session registry, command dispatcher, inbound handler pipeline,
// event bus, background loops and WebSocket transport together, then serves
// until it receives SIGINT/SIGTERM. Adapted from the teacher's
// cmd/gateway/main.go wiring order and shutdown sequence.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ocpp-csms/central-system/internal/auth"
	"github.com/ocpp-csms/central-system/internal/background"
	"github.com/ocpp-csms/central-system/internal/command"
	"github.com/ocpp-csms/central-system/internal/config"
	"github.com/ocpp-csms/central-system/internal/eventbus"
	"github.com/ocpp-csms/central-system/internal/inbound"
	"github.com/ocpp-csms/central-system/internal/logger"
	"github.com/ocpp-csms/central-system/internal/ocppversion"
	"github.com/ocpp-csms/central-system/internal/repository/memory"
	"github.com/ocpp-csms/central-system/internal/session"
	"github.com/ocpp-csms/central-system/internal/storage"
	"github.com/ocpp-csms/central-system/internal/transport/ws"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
		Async:  cfg.Log.Async,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Close()

	zl := log.GetLogger().With().Str("app", cfg.App.Name).Logger()

	log.Infof("starting %s (profile=%s)", cfg.App.Name, cfg.App.Profile)

	var locationStore *storage.RedisConnectionLocationStore
	if cfg.Redis.Enabled {
		var storageErr error
		locationStore, storageErr = storage.NewRedisStorage(cfg.Redis)
		if storageErr != nil {
			log.Errorf("failed to connect to redis, continuing without connection routing cache: %v", storageErr)
			locationStore = nil
		} else {
			defer locationStore.Close()
			log.Info("connection routing cache ready")
		}
	}

	repos := memory.NewProvider()

	bus := eventbus.New(zl)

	var bridge *eventbus.KafkaBridge
	if cfg.Kafka.Enabled {
		bridge, err = eventbus.NewKafkaBridge(bus, cfg.Kafka.Brokers, cfg.Kafka.Topic, zl)
		if err != nil {
			log.Errorf("failed to start kafka bridge, continuing without external event fan-out: %v", err)
			bridge = nil
		} else {
			defer bridge.Close()
		}
	}

	hasher := auth.NewBcryptHasher(cfg.Security.BcryptCost)

	registry := session.NewRegistry(zl)
	if locationStore != nil {
		registry.SetLocationStore(locationStore, cfg.InstanceID, cfg.Redis.ConnTTL)
	}

	negotiator := session.NewNegotiator()
	for _, v := range supportedVersions(cfg.OCPP.SupportedVersions) {
		negotiator.Register(v)
	}

	sender := command.NewSender(registry, zl)
	dispatcher := command.NewDispatcher(sender, registry, zl)

	adapter := inbound.NewAdapter(repos, bus, sender, dispatcher, zl)

	runner := background.NewRunner(background.Config{
		HeartbeatCheckInterval:   cfg.OCPP.HeartbeatCheckInterval,
		HeartbeatStaleAfter:      cfg.OCPP.HeartbeatStaleAfter,
		ReservationCheckInterval: cfg.OCPP.ReservationCheckInterval,
	}, repos, bus, zl)

	wsConfig := ws.Config{
		Host: cfg.Server.Host,
		Port: cfg.Server.Port,
		Path: cfg.Server.WebSocketPath,

		ReadBufferSize:   cfg.WebSocket.ReadBufferSize,
		WriteBufferSize:  cfg.WebSocket.WriteBufferSize,
		HandshakeTimeout: cfg.WebSocket.HandshakeTimeout,
		ReadTimeout:      cfg.WebSocket.ReadTimeout,
		WriteTimeout:     cfg.WebSocket.WriteTimeout,
		PingInterval:     cfg.WebSocket.PingInterval,
		PongTimeout:      cfg.WebSocket.PongTimeout,
		MaxMessageSize:   cfg.WebSocket.MaxMessageSize,

		RequireBasicAuth: cfg.Security.RequireBasicAuth,
	}

	server := ws.NewServer(wsConfig, registry, negotiator, adapter, dispatcher, repos, bus, hasher, zl)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runner.Start(ctx)
	server.Start()

	log.Infof("csms listening on %s%s", cfg.ServerAddr(), cfg.Server.WebSocketPath)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("shutdown signal received, draining connections")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Errorf("error during websocket server shutdown: %v", err)
	}

	log.Info("csms stopped")
}

// supportedVersions maps the configured version strings to negotiable
// ocppversion.Version values, skipping anything unrecognized rather than
// failing startup over a config typo.
func supportedVersions(configured []string) []ocppversion.Version {
	var out []ocppversion.Version
	for _, raw := range configured {
		switch raw {
		case "1.6":
			out = append(out, ocppversion.V16)
		case "2.0.1":
			out = append(out, ocppversion.V201)
		case "2.1":
			out = append(out, ocppversion.V21)
		}
	}
	if len(out) == 0 {
		return []ocppversion.Version{ocppversion.V16, ocppversion.V201, ocppversion.V21}
	}
	return out
}
