package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"

	"github.com/AaronLay10/curaflow/internal/api"
	"github.com/AaronLay10/curaflow/internal/config"
	"github.com/AaronLay10/curaflow/internal/dataset"
	"github.com/AaronLay10/curaflow/internal/engine"
	"github.com/AaronLay10/curaflow/internal/events"
	"github.com/AaronLay10/curaflow/internal/graphstore"
	"github.com/AaronLay10/curaflow/internal/logging"
	"github.com/AaronLay10/curaflow/internal/mqtt"
	"github.com/AaronLay10/curaflow/internal/service"
	"github.com/AaronLay10/curaflow/internal/storage/postgres"
	"github.com/AaronLay10/curaflow/internal/version"
)

const (
	healthInterval = 15 * time.Second
	alertDelay     = 60 * time.Second
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		log.Fatalf("curaflow-api: %v", err)
	}
}

func loadConfig(args []string) (*config.Config, error) {
	fs := flag.NewFlagSet("curaflow-api", flag.ContinueOnError)
	path := fs.String("config", os.Getenv("CURAFLOW_CONFIG"), "Path to curaflow.yaml.")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if *path == "" {
		return config.Default(), nil
	}
	return config.Load(*path)
}

func loadDataset(path string) (*dataset.Dataset, error) {
	if path == "" {
		return dataset.New("default", nil), nil
	}
	return dataset.Load(path)
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	cfg, err := loadConfig(args)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := logging.New(cfg.LogLevel(), cfg.LogFormat(), os.Stderr)
	slog.SetDefault(logger)

	ds, err := loadDataset(cfg.Service.Dataset)
	if err != nil {
		return err
	}
	creds, err := config.LoadCredentials()
	if err != nil {
		return err
	}

	ready := &api.Readiness{
		MQTTEnabled:     cfg.MQTTEnabled(),
		PostgresEnabled: cfg.StorageBackend() == config.BackendPostgres,
	}
	busOpts := []events.Option{events.WithWriter(stdout), events.WithLogger(logger)}
	var kv graphstore.KV = graphstore.NewMemory()

	var pg *postgres.Client
	if ready.PostgresEnabled {
		pg, err = postgres.New(ctx)
		if err != nil {
			return err
		}
		defer pg.Close()
		ready.SetPostgresConnected(true)
		kv = pg
		busOpts = append(busOpts, events.WithPersister(pg))
	}
	bus := events.NewBus(busOpts...)

	alerter := api.NewAlerter(os.Getenv("CURAFLOW_ALERT_WEBHOOK_URL"), cfg.ServiceName(), logger)
	defer alerter.Wait()
	metrics := api.NewMetrics()
	sinks := []engine.Sink{metrics, alerter}

	var (
		client    *mqtt.Client
		publisher *mqtt.StatusPublisher
	)
	if ready.MQTTEnabled {
		client = mqtt.NewClient(cfg.MQTT.Broker, cfg.MQTTClientID(), logger)
		if err := client.Connect(); err != nil {
			logger.Warn("mqtt connect failed, continuing without it", "broker", cfg.MQTT.Broker, "error", err)
		}
		defer client.Disconnect()
		ready.SetMQTTConnected(client.IsConnected())
		publisher = mqtt.NewStatusPublisher(client, cfg.TopicPrefix(), logger)
		sinks = append(sinks, publisher)
	}

	svc, err := service.New(service.Options{
		Session:     dataset.NewSession(ds),
		Store:       graphstore.New(kv, ds.Name()),
		Bus:         bus,
		Logger:      logger,
		Parallelism: cfg.Parallelism(),
		Sinks:       sinks,
	})
	if err != nil {
		return err
	}

	if publisher != nil {
		go publisher.Run(ctx)
		commands := mqtt.NewCommandSubscriber(client, cfg.TopicPrefix(), svc.ExecuteDetached, logger)
		if err := commands.Start(ctx); err != nil {
			logger.Warn("mqtt command subscription failed", "topic", commands.ExecuteTopic(), "error", err)
		}
	}

	if ready.MQTTEnabled {
		alerter.Watch("mqtt", api.AlertMQTTDisconnected, api.SeverityCritical, "MQTT broker", alertDelay)
	}
	if ready.PostgresEnabled {
		alerter.Watch("postgres", api.AlertPostgresUnavailable, api.SeverityCritical, "PostgreSQL", alertDelay)
	}
	go watchBackends(ctx, ready, client, pg)
	go alerter.Monitor(ctx, healthInterval, ready)

	hostname, _ := os.Hostname()
	_, _ = bus.Emit(events.LevelInfo, "system.startup", "curaflow api starting", map[string]any{
		"service":  cfg.ServiceName(),
		"version":  version.Version,
		"hostname": hostname,
		"pid":      os.Getpid(),
		"dataset":  ds.Name(),
		"samples":  ds.Len(),
	})

	srv := api.New(svc,
		api.WithAuth(api.NewAuthenticator(creds)),
		api.WithMetrics(metrics),
		api.WithReadiness(ready),
		api.WithTLS(api.TLSConfig{CertFile: cfg.Server.TLSCert, KeyFile: cfg.Server.TLSKey}),
		api.WithName(cfg.ServiceName()),
		api.WithLogger(logger),
	)
	if !creds.Enabled() {
		logger.Warn("authentication disabled: CURAFLOW_ADMIN_USER and CURAFLOW_ADMIN_PASS are not set")
	}

	err = srv.ListenAndServe(ctx, cfg.HTTPPort())
	_, _ = bus.Emit(events.LevelInfo, "system.shutdown", "curaflow api stopping", map[string]any{
		"service": cfg.ServiceName(),
	})
	return err
}

// watchBackends refreshes readiness from the live connections.
func watchBackends(ctx context.Context, ready *api.Readiness, client *mqtt.Client, pg *postgres.Client) {
	ticker := time.NewTicker(healthInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if client != nil {
				ready.SetMQTTConnected(client.IsConnected())
			}
			if pg != nil {
				pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
				ready.SetPostgresConnected(pg.Ping(pingCtx) == nil)
				cancel()
			}
		}
	}
}
