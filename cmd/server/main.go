package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ocx/econcore/internal/advisor"
	"github.com/ocx/econcore/internal/api"
	"github.com/ocx/econcore/internal/circuitbreaker"
	"github.com/ocx/econcore/internal/clock"
	"github.com/ocx/econcore/internal/config"
	"github.com/ocx/econcore/internal/datasource"
	"github.com/ocx/econcore/internal/events"
	"github.com/ocx/econcore/internal/infra"
	"github.com/ocx/econcore/internal/middleware"
	"github.com/ocx/econcore/internal/monitoring"
	"github.com/ocx/econcore/internal/service"
	"github.com/ocx/econcore/internal/store"
	"github.com/ocx/econcore/internal/tracing"
	"github.com/ocx/econcore/internal/webhooks"
)

const (
	defaultConfigPath  = "configs/econ.yaml"
	defaultScopesPath  = "configs/scopes.yaml"
	defaultFixturePath = "configs/fixture.yaml"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file loaded", "error", err)
	}

	cfg, err := loadConfig()
	if err != nil {
		slog.Error("config", "error", err)
		os.Exit(1)
	}
	setupLogging(cfg.Log)

	if err := run(cfg); err != nil {
		slog.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	path := envOr("ECON_CONFIG", defaultConfigPath)
	global, err := config.LoadConfig(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
		d := config.Defaults()
		global = &d
	}
	global.ApplyEnv()
	if err := global.Validate(); err != nil {
		return nil, err
	}

	mgr, err := config.NewManager(global, envOr("ECON_SCOPES", defaultScopesPath))
	if err != nil {
		return nil, fmt.Errorf("scopes: %w", err)
	}
	return mgr.Get(global.Core.Scope), nil
}

func setupLogging(lc config.LogConfig) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(lc.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if strings.EqualFold(lc.Format, "json") {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := monitoring.NewMetrics(reg)

	var closers []func() error
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil {
				slog.Warn("[Server] close failed", "error", err)
			}
		}
	}()

	if cfg.Tracing.Enabled {
		shutdown, err := tracing.Setup(ctx, cfg.TracingSetup())
		if err != nil {
			return fmt.Errorf("tracing: %w", err)
		}
		closers = append(closers, func() error {
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return shutdown(flushCtx)
		})
	}

	var redis *infra.GoRedisAdapter
	if cfg.Store.Kind == "redis" || cfg.Redis.Forward {
		r, err := infra.NewGoRedisAdapter(ctx, infra.RedisOptions{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		redis = r
		closers = append(closers, r.Close)
	}

	src, records, err := buildBackends(ctx, cfg, redis, &closers)
	if err != nil {
		return err
	}

	var adv *advisor.Advisor
	if cfg.Advisor.APIKey != "" {
		gen, err := advisor.NewGeminiGenerator(ctx, cfg.Advisor.APIKey, cfg.Advisor.Model)
		if err != nil {
			return fmt.Errorf("advisor: %w", err)
		}
		closers = append(closers, gen.Close)
		adv = advisor.New(gen)
	}

	sess, err := service.New(service.Config{
		Scope:            cfg.Core.Scope,
		DefaultStepCount: cfg.Core.DefaultStepCount,
		DefaultProfileID: cfg.Core.DefaultProfileID,
		Seed:             cfg.Core.Seed,
		Feed:             cfg.SinkConfig(),
		Templates:        cfg.NotifyTemplates(),
		AuditCapacity:    cfg.Audit.Capacity,
		FaultCapacity:    cfg.Bus.FaultCapacity,
		DrainLimit:       cfg.Bus.DrainLimit,
	}, service.Deps{
		Source:  src,
		Store:   records,
		Metrics: metrics,
		Clock:   clock.Real{},
		Advisor: adv,
	})
	if err != nil {
		return err
	}
	defer sess.Close()

	if err := sess.Reload(ctx); err != nil {
		// Partial catalogs still serve; the reload endpoint retries.
		slog.Warn("[Server] initial catalog load incomplete", "error", err)
	}

	if cfg.Redis.Forward && redis != nil {
		fwd := events.NewRedisForwarder(redis, events.DefaultChannelPrefix)
		sess.Bus().Subscribe("redis-forwarder", fwd.Handle)
		slog.Info("[Server] forwarding events to redis", "prefix", events.DefaultChannelPrefix)
	}
	if cfg.PubSub.Project != "" {
		topic, err := events.DialPubSubTopic(ctx, cfg.PubSub.Project, cfg.PubSub.Topic, cfg.PubSub.CredentialsFile)
		if err != nil {
			return fmt.Errorf("pubsub: %w", err)
		}
		fwd := events.NewPubSubForwarder(topic)
		closers = append(closers, fwd.Close)
		sess.Bus().Subscribe("pubsub-forwarder", fwd.Handle)
		slog.Info("[Server] forwarding events to pubsub", "project", cfg.PubSub.Project, "topic", cfg.PubSub.Topic)
	}

	hooks := webhooks.NewRegistry()
	for _, sub := range cfg.Webhooks.Subscriptions {
		if _, err := hooks.Register(sub); err != nil {
			return fmt.Errorf("webhook %s: %w", sub.URL, err)
		}
	}
	dispatcher := webhooks.NewDispatcher(hooks,
		webhooks.WithWorkers(cfg.Webhooks.Workers),
		webhooks.WithMaxAttempts(cfg.Webhooks.MaxAttempts),
	)
	defer dispatcher.Close()
	sess.Bus().Subscribe("webhooks", dispatcher.Handle)

	hub := api.NewHub(cfg.Server.AllowedOrigins)
	defer hub.Close()
	sess.Bus().Subscribe("websocket", hub.Handle)

	router := api.NewServer(sess,
		api.WithHub(hub),
		api.WithWebhooks(hooks),
		api.WithIngestLimiter(middleware.NewRateLimiter(cfg.Server.IngestPerMinute, clock.Real{})),
		api.WithMetricsHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})),
	).Router()

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("[Server] listening", "port", cfg.Server.Port, "scope", cfg.Core.Scope,
			"datasource", cfg.DataSource.Kind, "store", cfg.Store.Kind, "advisor", adv.Enabled())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("[Server] shutdown signal received, draining")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout())
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	slog.Info("[Server] stopped")
	return nil
}

// buildBackends picks the catalog source and the record store.
func buildBackends(ctx context.Context, cfg *config.Config, redis *infra.GoRedisAdapter, closers *[]func() error) (datasource.Source, store.RecordStore, error) {
	var pg *sql.DB
	openPG := func() (*sql.DB, error) {
		if pg != nil {
			return pg, nil
		}
		if cfg.Postgres.DSN == "" {
			return nil, errors.New("postgres.dsn is required")
		}
		db, err := datasource.OpenPostgres(ctx, cfg.Postgres.DSN)
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		*closers = append(*closers, db.Close)
		pg = db
		return pg, nil
	}

	var src datasource.Source
	switch cfg.DataSource.Kind {
	case "supabase":
		s, err := datasource.NewSupabaseSource(cfg.Supabase.URL, cfg.Supabase.ServiceKey, cfg.Core.Scope)
		if err != nil {
			return nil, nil, fmt.Errorf("supabase: %w", err)
		}
		src = guard(s, "supabase")
	case "postgres":
		db, err := openPG()
		if err != nil {
			return nil, nil, err
		}
		src = guard(datasource.NewPostgresSource(db, cfg.Core.Scope), "postgres")
	default:
		path := cfg.DataSource.FixturePath
		if path == "" {
			path = defaultFixturePath
		}
		s, err := datasource.LoadFixture(path, cfg.Core.Scope)
		if err != nil {
			return nil, nil, fmt.Errorf("fixture: %w", err)
		}
		src = s
	}

	var records store.RecordStore
	switch cfg.Store.Kind {
	case "redis":
		records = store.NewRedisStore(redis, cfg.Core.Scope)
	case "postgres":
		db, err := openPG()
		if err != nil {
			return nil, nil, err
		}
		records = store.NewPostgresStore(db, cfg.Core.Scope)
	default:
		records = store.NewMemoryStore()
	}
	return src, records, nil
}

func guard(src datasource.Source, name string) datasource.Source {
	return datasource.NewGuardedSource(src, circuitbreaker.New(circuitbreaker.DefaultConfig("datasource:"+name), clock.Real{}))
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
