package command

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alpacanetworks/telemon/cmd/telemon/command/setup"
	"github.com/alpacanetworks/telemon/pkg/agent"
	"github.com/alpacanetworks/telemon/pkg/metrics"
	"github.com/alpacanetworks/telemon/pkg/pidfile"
	"github.com/alpacanetworks/telemon/pkg/version"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

const (
	name = "telemon"

	shutdownTimeout = 5 * time.Second
)

var configPath string

var RootCmd = &cobra.Command{
	Use:     name,
	Short:   "Telemetry ping uploader",
	Version: version.Version,
	Run: func(cmd *cobra.Command, args []string) {
		runAgent()
	},
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default /etc/telemon/telemon.conf or ~/.telemon.conf)")

	setup.SetConfigPaths(name)
	RootCmd.AddCommand(setup.SetupCmd, uploadCmd, recordCmd)
}

func runAgent() {
	// Pid
	pidFilePath, err := pidfile.WritePID(pidfile.FilePath(name))
	if err != nil {
		_, _ = fmt.Fprintln(os.Stderr, "Failed to create PID file", err.Error())
		os.Exit(1)
	}
	defer func() { _ = pidfile.Remove(pidFilePath) }()

	fmt.Printf("%s version %s starting.\n", name, version.Version)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := newApp(ctx)
	defer a.Close()
	log.Info().Msgf("%s initialized and running.", name)

	// Metrics
	if a.settings.MetricsAddr != "" {
		server := &http.Server{
			Addr:              a.settings.MetricsAddr,
			Handler:           metricsMux(a),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			log.Info().Msgf("Serving metrics on %s.", a.settings.MetricsAddr)
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("Metrics server stopped")
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			_ = server.Shutdown(shutdownCtx)
		}()
	}

	// Agent
	uploadAgent := agent.NewAgent(a.settings, a.scheduler, a.store, a.builders())
	uploadAgent.Start(ctx)
	uploadAgent.Stop()

	log.Debug().Msg("Bye.")
}

func metricsMux(a *app) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(a.registry))
	return mux
}
