// Command proxyd serves IP-reputation lookups backed by a periodically
// synced CSV feed.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/netrep/proxyd/pkg/config"
	"github.com/netrep/proxyd/pkg/metrics"
	"github.com/netrep/proxyd/pkg/proxydlog"
	"github.com/netrep/proxyd/pkg/scheduler"
	"github.com/netrep/proxyd/pkg/store"
)

// shutdownTimeout bounds how long the process waits for in-flight work to
// drain once a termination signal arrives.
const shutdownTimeout = 10 * time.Second

func main() {
	proxydlog.Init(proxydlog.Options{Level: proxydlog.InfoLevel, JSONOutput: true})
	log := proxydlog.Component("main")

	cfg := config.Load()
	metrics.Register()

	s, err := store.Open(cfg.DBPath())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open store")
	}
	defer s.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sched := scheduler.New(s, cfg)
	if err := sched.InitialSync(ctx); err != nil {
		log.Error().Err(err).Msg("initial sync failed, continuing with whatever data is on disk")
	}

	schedulerDone := make(chan struct{})
	go func() {
		sched.Run(ctx)
		close(schedulerDone)
	}()

	// The REST/RPC query surface and metrics exposition are left to an
	// external collaborator built on top of pkg/lookup and pkg/metrics;
	// this process exposes only the health check it needs for itself.
	httpServer := &http.Server{
		Addr:    fmtAddr(cfg.RESTPort),
		Handler: newMux(s),
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", httpServer.Addr).Msg("serving http")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
			return
		}
		serverErr <- nil
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			log.Error().Err(err).Msg("http server error")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("error during http shutdown")
	}

	stop()
	select {
	case <-schedulerDone:
		log.Info().Msg("shutdown complete")
	case <-shutdownCtx.Done():
		log.Warn().Msg("scheduler did not stop within the shutdown timeout, exiting")
	}
}

func fmtAddr(port int) string {
	return ":" + strconv.Itoa(port)
}

func newMux(s *store.Store) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if !s.IsHealthy() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	return mux
}
