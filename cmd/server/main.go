package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"golang.org/x/sync/errgroup"

	"facestore/internal/facestore/cache"
	"facestore/internal/facestore/catalog"
	"facestore/internal/facestore/changefeed"
	"facestore/internal/facestore/dispatcher"
	"facestore/internal/facestore/events"
	"facestore/internal/facestore/handler"
	"facestore/internal/facestore/health"
	"facestore/internal/facestore/metrics"
	"facestore/internal/facestore/session"
	"facestore/internal/facestore/store"
	"facestore/internal/platform/config"
	"facestore/internal/platform/httpserver"
	"facestore/internal/platform/logger"
	platformmetrics "facestore/internal/platform/metrics"
	platformredis "facestore/internal/platform/redis"
)

const shutdownGrace = 10 * time.Second

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Protocol logic lives in internal/facestore.
func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "facestore:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}
	log := logger.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := platformmetrics.NewRegistry()
	m := metrics.New(reg)

	st, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	c, closeCache, err := openCache(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeCache()

	bus := events.NewBus(log, m,
		events.WithWorkers(cfg.Fanout.Workers),
		events.WithQueueDepth(cfg.Fanout.QueueDepth),
	)
	cat := catalog.New(st, c, bus, log, m)
	collector := health.NewCollector(health.WithRecentLimit(cfg.RecentMessages))
	sessions := session.NewRegistry(collector, log, m,
		session.WithQueueDepth(cfg.Fanout.SessionQueue),
	)
	disp := dispatcher.New(cat, sessions, collector, log, m)
	bus.Subscribe("broadcast", disp)

	if cfg.Kafka.Enabled() {
		client, err := changefeed.NewClient(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		if err != nil {
			return err
		}
		defer func() {
			flushCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
			defer cancel()
			if err := client.Flush(flushCtx); err != nil {
				log.Warn("flushing change feed", "error", err.Error())
			}
			client.Close()
		}()
		bus.Subscribe("changefeed", changefeed.New(client, cfg.Kafka.Topic, log))
		log.Info("change feed enabled", "brokers", cfg.Kafka.Brokers, "topic", cfg.Kafka.Topic)
	}

	checks := map[string]handler.Check{}
	if pg, ok := st.(*store.PostgresStore); ok {
		checks["postgres"] = pg.Health
	}
	if rc, ok := c.(*cache.RedisCache); ok {
		checks["redis"] = rc.Health
	}

	h := handler.New(sessions, disp, collector, log, m, handler.Config{
		WriteTimeout:    cfg.Server.WriteTimeout,
		MaxMessageBytes: cfg.Server.MaxMessageBytes,
		Checks:          checks,
	})
	srv := httpserver.New(cfg.Server.Addr, handler.NewRouter(h, platformmetrics.Handler(reg)))

	log.Info("starting facestore", "addr", cfg.Server.Addr, "store", cfg.Store, "redis", cfg.Redis.Enabled())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return httpserver.Run(gctx, srv, shutdownGrace)
	})
	g.Go(func() error {
		<-gctx.Done()
		sessions.CloseAll()
		return nil
	})
	err = g.Wait()

	// Sockets are closed; deliver whatever is still queued before the
	// change feed flushes.
	bus.Close()
	log.Info("facestore stopped")
	return err
}

func openStore(ctx context.Context, cfg config.Config, log *slog.Logger) (store.Store, func(), error) {
	if cfg.Store != config.StorePostgres {
		return store.NewInMemory(), func() {}, nil
	}

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("open postgres: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("ping postgres: %w", err)
	}
	pg := store.NewPostgres(db)
	if err := pg.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	log.Info("postgres store ready")
	return pg, func() { _ = db.Close() }, nil
}

func openCache(ctx context.Context, cfg config.Config, log *slog.Logger) (cache.Cache, func(), error) {
	client, err := platformredis.New(ctx, cfg.Redis)
	if err != nil {
		return nil, nil, err
	}
	if client == nil {
		return cache.NewInMemory(), func() {}, nil
	}
	log.Info("redis cache ready", "ttl", cfg.Redis.TTL.String())
	return cache.NewRedis(client, cache.WithTTL(cfg.Redis.TTL)), func() { _ = client.Close() }, nil
}
