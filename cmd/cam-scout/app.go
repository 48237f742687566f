// cmd/cam-scout/app.go
package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sua-org/cam-scout/internal/analysisjob"
	"github.com/sua-org/cam-scout/internal/analysislock"
	"github.com/sua-org/cam-scout/internal/api"
	"github.com/sua-org/cam-scout/internal/camhttp"
	"github.com/sua-org/cam-scout/internal/capture"
	"github.com/sua-org/cam-scout/internal/classifier"
	"github.com/sua-org/cam-scout/internal/config"
	"github.com/sua-org/cam-scout/internal/database"
	"github.com/sua-org/cam-scout/internal/discovery"
	"github.com/sua-org/cam-scout/internal/metrics"
	"github.com/sua-org/cam-scout/internal/mqttclient"
	"github.com/sua-org/cam-scout/internal/scanner"
	"github.com/sua-org/cam-scout/internal/storage"
	"github.com/sua-org/cam-scout/internal/supervisor"
)

// app segura as peças montadas e o que precisa ser fechado no fim.
type app struct {
	sup *supervisor.Supervisor
	api *api.Server

	mqtt *mqttclient.Client
	db   *database.MongoDB
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{}
	httpClient := camhttp.NewClient()

	scan := scanner.New(cfg.Scan)
	cls := classifier.New(cfg.Classify, httpClient)
	disc := discovery.NewService(
		discovery.NewDiscoverer(scan, cls, cfg.Classify.MaxConcurrency, cfg.Scan.Deadline),
		cfg.Discovery.CacheTTL,
	)
	locks := analysislock.New(analysislock.Config{
		Watchdog:  cfg.Analysis.WatchdogTimeout,
		Cooldown:  cfg.Analysis.Cooldown,
		Retention: cfg.Analysis.Retention,
	})

	m := metrics.New()
	if err := m.Register(&metrics.LockCollector{Stats: locks.Stats}); err != nil {
		return nil, fmt.Errorf("register lock collector: %w", err)
	}

	opts := supervisor.Options{
		Discovery:      disc,
		Ladder:         capture.New(cfg.Capture, httpClient),
		Locks:          locks,
		Metrics:        m,
		Schedule:       cfg.Discovery.Schedule,
		Subnet:         cfg.Discovery.Subnet,
		StatusInterval: cfg.MQTT.StatusInterval,
	}

	if cfg.Analysis.JobURL != "" {
		opts.Jobs = analysisjob.New(cfg.Analysis.JobURL, cfg.Analysis.JobTimeout)
	}

	// Integrações opcionais: se falharem, o serviço segue sem elas.
	if cfg.MQTT.Enabled() {
		cli, err := mqttclient.NewClient(cfg.MQTT)
		if err != nil {
			slog.Warn("MQTT disabled", "error", err)
		} else {
			a.mqtt = cli
			opts.MQTT = cli
		}
	}

	if cfg.MinIO.Enabled() {
		store, err := storage.NewMinioStore(ctx, cfg.MinIO)
		if err != nil {
			slog.Warn("MinIO disabled", "error", err)
		} else {
			opts.Store = store
		}
	}

	if cfg.Mongo.Enabled() {
		db, err := database.Connect(ctx, cfg.Mongo.URI, cfg.Mongo.Database, cfg.Mongo.Timeout)
		if err != nil {
			slog.Warn("MongoDB disabled", "error", err)
		} else if err := database.CreateIndexes(ctx, db); err != nil {
			slog.Warn("MongoDB disabled, index creation failed", "error", err)
			_ = db.Disconnect(context.Background())
		} else {
			a.db = db
			opts.Logs = database.NewCameraLogRepository(db)
		}
	}

	sup, err := supervisor.New(opts)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.sup = sup
	a.api = api.New(cfg, sup, cls, m.Handler(), version)
	return a, nil
}

func (a *app) Close() {
	if a.mqtt != nil {
		a.mqtt.Close()
	}
	if a.db != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.db.Disconnect(ctx); err != nil {
			slog.Error("Failed to disconnect from MongoDB", "error", err)
		}
	}
}
