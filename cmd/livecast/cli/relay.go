package cli

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"livecast/internal/platform/config"
	"livecast/internal/platform/logger"
	"livecast/internal/platform/metrics"
	"livecast/internal/relay"

	"github.com/go-chi/chi/v5"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

var relayCmd = &cobra.Command{
	Use:   "relay",
	Short: "Serve the session document store and blob store",
	RunE: func(cmd *cobra.Command, args []string) error {
		port := config.GetEnv("PORT", "8080")

		repo := relay.NewInMemoryRepository()
		blobs := relay.NewInMemoryBlobStore()
		met := metrics.New()
		h := relay.NewHandler(repo, blobs, log, met)

		r := chi.NewRouter()
		r.Use(logger.RequestLogger(log))
		r.Use(metrics.RequestMiddleware(met))
		r.Get("/metrics", func(w http.ResponseWriter, req *http.Request) {
			met.Handler(func() { met.SetActiveSessions(repo.ActiveSessionCount()) }).ServeHTTP(w, req)
		})
		h.Routes(r)

		srv := &http.Server{Addr: ":" + port, Handler: r}

		errCh := make(chan error, 1)
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				errCh <- err
			}
		}()

		log.Info("relay starting", slog.String("port", port))

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		select {
		case err := <-errCh:
			log.Error("relay error", slog.String("error", err.Error()))
			return err
		case <-sigCh:
		}

		log.Info("shutdown signal received, draining connections")

		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.Error("shutdown error", slog.String("error", err.Error()))
			return err
		}

		log.Info("relay stopped")
		return nil
	},
}
