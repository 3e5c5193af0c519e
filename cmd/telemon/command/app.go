package command

import (
	"context"
	"os"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/alpacanetworks/telemon/pkg/config"
	"github.com/alpacanetworks/telemon/pkg/db"
	"github.com/alpacanetworks/telemon/pkg/logger"
	"github.com/alpacanetworks/telemon/pkg/measurement"
	"github.com/alpacanetworks/telemon/pkg/metrics"
	"github.com/alpacanetworks/telemon/pkg/scheduler"
	"github.com/alpacanetworks/telemon/pkg/storage"
	"github.com/alpacanetworks/telemon/pkg/transporter"
	"github.com/alpacanetworks/telemon/pkg/version"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"
)

var shutdownGrace = 10 * time.Second

// app holds what every command needs: settings, the ping store and the
// upload pipeline.
type app struct {
	settings  config.Settings
	logFile   *os.File
	client    *entsql.Driver
	store     *storage.Store
	registry  *prometheus.Registry
	scheduler *scheduler.Scheduler
}

func configFiles() []string {
	if configPath != "" {
		return []string{configPath}
	}
	return config.Files(name)
}

// newApp aborts the process when any part cannot be initialized.
func newApp(ctx context.Context) *app {
	// Config & Settings
	settings := config.LoadConfig(configFiles())

	// Logger
	logFile := logger.InitLogger()

	// DB
	client := db.InitDB(ctx, settings.DBPath)
	store := storage.NewStore(client, settings.Location)

	// Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	uploads := metrics.NewUploads(registry)

	// Session
	session, err := transporter.NewSession(settings)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create HTTP session")
	}
	uploader := transporter.NewClient(settings, session, uploads)

	return &app{
		settings:  settings,
		logFile:   logFile,
		client:    client,
		store:     store,
		registry:  registry,
		scheduler: scheduler.NewScheduler(settings, store, uploader, uploads),
	}
}

func (a *app) builders() map[string]measurement.Builder {
	return measurement.Builders(measurement.App{
		Name:    name,
		Version: version.Version,
		Channel: a.settings.Channel,
	}, a.store)
}

// Close gives started batches up to shutdownGrace to finish before the
// store is closed.
func (a *app) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := a.scheduler.Wait(ctx); err != nil {
		log.Warn().Err(err).Msg("Closing with uploads still in flight")
	}
	a.scheduler.Close()
	if err := a.client.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close db")
	}
	_ = a.logFile.Close()
}
