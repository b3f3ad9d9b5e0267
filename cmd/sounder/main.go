package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Honorable-Knights-of-the-Roundtable/chirpsounder/cmd/sounder/config"
	"github.com/Honorable-Knights-of-the-Roundtable/chirpsounder/internal/observe"
	"github.com/Honorable-Knights-of-the-Roundtable/chirpsounder/internal/session"
	"github.com/Honorable-Knights-of-the-Roundtable/chirpsounder/internal/sounder"
	"github.com/Honorable-Knights-of-the-Roundtable/chirpsounder/internal/utils"
	"github.com/spf13/afero"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
)

const metricsShutdownTimeout = 5 * time.Second

// Set up the metrics pipeline when metrics.enabled is set.
// Without it, instruments are recorded against the no-op global provider
// and server is nil.
func initializeMetrics() (*observe.Metrics, *http.Server, func(context.Context) error, error) {
	if !viper.GetBool("metrics.enabled") {
		return observe.DefaultMetrics(), nil, func(context.Context) error { return nil }, nil
	}

	provider, err := observe.InitProvider(observe.ProviderConfig{})
	if err != nil {
		return nil, nil, nil, err
	}
	metrics, err := observe.NewMetrics(provider.MeterProvider())
	if err != nil {
		return nil, nil, nil, errors.Join(err, provider.Shutdown(context.Background()))
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", provider.Handler())
	server := &http.Server{
		Addr:              viper.GetString("metrics.address"),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return metrics, server, provider.Shutdown, nil
}

func run(ctx context.Context) error {
	metrics, server, shutdownMetrics, err := initializeMetrics()
	if err != nil {
		return fmt.Errorf("could not initialize metrics: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
		defer cancel()
		if err := shutdownMetrics(shutdownCtx); err != nil {
			slog.Warn("error while shutting down metrics", "err", err)
		}
	}()

	audioPorts, err := initializePorts()
	if err != nil {
		return fmt.Errorf("could not initialize audio ports: %w", err)
	}
	defer func() {
		if err := audioPorts.Close(); err != nil {
			slog.Warn("error while releasing audio api", "err", err)
		}
	}()

	sessionOptions := config.SessionOptions()
	sessionOptions.Metrics = metrics
	duplexSession := session.NewDuplexSession(audioPorts.sink, audioPorts.source, sessionOptions)
	chirpSounder := sounder.NewSounder(duplexSession, afero.NewOsFs(), config.SounderConfig(), metrics)

	// --------------------------------------------------------------------------------

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()
	g, gctx := errgroup.WithContext(runCtx)

	g.Go(func() error {
		// The metrics server only lives as long as the sounder.
		defer cancelRun()
		paths, err := chirpSounder.Run(gctx)
		for _, path := range paths {
			fmt.Println(path)
		}
		return err
	})

	if server != nil {
		g.Go(func() error {
			slog.Info("serving metrics", "address", server.Addr)
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		})
	}

	return g.Wait()
}

func main() {
	configFilePath := flag.String("configFilePath", "config.yaml", "Set the file path to the config file.")
	flag.Parse()

	config.LoadConfig(*configFilePath)
	logCloser, err := utils.ConfigureDefaultLogger(
		viper.GetString("loglevel"),
		viper.GetString("logfile"),
		slog.HandlerOptions{},
	)
	if err != nil {
		slog.Error("error while configuring default logger", "err", err)
		panic(err)
	}

	// --------------------------------------------------------------------------------

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err = run(ctx)
	stop()
	if err != nil {
		slog.Error("chirpsounder failed", "err", err)
	}
	if logCloser != nil {
		logCloser.Close()
	}
	if err != nil {
		os.Exit(1)
	}
}
