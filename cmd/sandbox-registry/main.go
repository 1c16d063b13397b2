// Command sandbox-registry runs the in-memory volunteer registry for local
// development of the wizard.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/spf13/cobra"

	"relawan/internal/platform/httpserver"
	"relawan/internal/platform/logger"
	"relawan/internal/platform/middleware"
	"relawan/internal/registry/sandbox"
)

func main() {
	var (
		addr     string
		apiKey   string
		logLevel string
	)
	cmd := &cobra.Command{
		Use:          "sandbox-registry",
		Short:        "In-memory volunteer registry",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			log := logger.New(logLevel, "text")
			r := chi.NewRouter()
			r.Use(middleware.RequestID)
			r.Use(middleware.Logger(log))
			r.Use(middleware.Recovery(log))
			sandbox.New(nil, sandbox.WithAPIKey(apiKey), sandbox.WithLogger(log)).Register(r)

			srv := httpserver.New(addr, r)
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = srv.Shutdown(shutdownCtx)
			}()

			log.Info("sandbox registry listening", "addr", addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8081", "listen address")
	cmd.Flags().StringVar(&apiKey, "api-key", "", "bearer key required from clients")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "log level")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
