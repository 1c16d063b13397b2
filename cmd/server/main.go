package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	httpapi "relawan/internal/http"
	"relawan/internal/platform/config"
	"relawan/internal/platform/httpserver"
	"relawan/internal/platform/logger"
	"relawan/internal/platform/metrics"
	"relawan/internal/platform/redis"
	"relawan/internal/platform/tracing"
	"relawan/internal/registration/events"
	"relawan/internal/registration/handler"
	"relawan/internal/registration/handoff"
	"relawan/internal/registration/service"
	"relawan/internal/registry"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	v := viper.New()
	var configFile string

	cmd := &cobra.Command{
		Use:           "relawan-server",
		Short:         "Serves the volunteer registration wizard",
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(v, configFile)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg)
		},
	}
	cmd.Flags().StringVar(&configFile, "config", "", "path to a config file")
	cmd.Flags().String("addr", "", "listen address, overrides server.addr")
	_ = v.BindPFlag("server.addr", cmd.Flags().Lookup("addr"))
	return cmd
}

// run wires dependencies and blocks until ctx is cancelled or the server
// fails. Business logic lives in the registration packages.
func run(ctx context.Context, cfg config.Config) error {
	log := logger.New(cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(log)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	tp, err := tracing.NewProvider(cfg.Tracing)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}

	health := map[string]httpapi.HealthCheck{}
	store, closeStore, err := buildHandoffStore(ctx, cfg, health)
	if err != nil {
		return err
	}
	defer closeStore()

	publisher, closePublisher, err := buildPublisher(cfg, log)
	if err != nil {
		return err
	}
	defer closePublisher()

	client := registry.New(cfg.Registry.BaseURL, cfg.Registry.Timeout,
		registry.WithAPIKey(cfg.Registry.APIKey),
		registry.WithTracer(tp.Tracer()),
		registry.WithLogger(log),
	)
	svc := service.New(client, store,
		service.WithLogger(log),
		service.WithMetrics(m),
		service.WithEvents(publisher),
		service.WithSessionTTL(cfg.Wizard.SessionTTL),
		service.WithRegistryTimeout(cfg.Registry.Timeout),
	)
	defer svc.Close()

	router := httpapi.NewRouter(httpapi.Deps{
		Logger:        log,
		Gatherer:      reg,
		SecureCookies: cfg.Server.SecureCookies,
		Health:        health,
		Handlers:      []httpapi.Registrar{handler.New(svc, log)},
	})
	srv := httpserver.New(cfg.Server.Addr, router)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting relawan wizard", "addr", cfg.Server.Addr, "registry", cfg.Registry.BaseURL)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), cfg.Server.ShutdownTimeout)
		defer cancel()
		log.Info("shutting down")
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("graceful shutdown failed", "error", err)
		}
		if err := tp.Shutdown(shutdownCtx); err != nil {
			log.Error("tracer shutdown failed", "error", err)
		}
		return nil
	})
	return g.Wait()
}

func buildHandoffStore(ctx context.Context, cfg config.Config, health map[string]httpapi.HealthCheck) (handoff.Store, func(), error) {
	if cfg.Handoff.Backend != "redis" {
		return handoff.NewMemoryStore(cfg.Handoff.TTL), func() {}, nil
	}

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	client, err := redis.New(connectCtx, cfg.Redis)
	if err != nil {
		return nil, nil, fmt.Errorf("connect redis: %w", err)
	}
	health["redis"] = client.Health
	store := handoff.NewRedisStore(client.Client, cfg.Handoff.TTL, handoff.WithNamespace(cfg.Handoff.Namespace))
	return store, func() { _ = client.Close() }, nil
}

func buildPublisher(cfg config.Config, log *slog.Logger) (events.Publisher, func(), error) {
	if len(cfg.Events.Brokers) == 0 {
		return events.NopPublisher{}, func() {}, nil
	}
	p, err := events.NewKafkaPublisher(cfg.Events.Brokers, cfg.Events.Topic, log)
	if err != nil {
		return nil, nil, fmt.Errorf("init kafka publisher: %w", err)
	}
	return p, p.Close, nil
}
