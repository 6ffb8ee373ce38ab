// Package main is the entry point of the attendance tracker API.
//
// The server keeps per-subject attendance counters consistent with the
// day-by-day records, keeps a session undo/redo history of marks, and
// projects how many classes can still be skipped (or must be attended)
// to stay above a subject's attendance target.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/alem-hub/attendance-tracker/config"
	"github.com/alem-hub/attendance-tracker/internal/application/command"
	"github.com/alem-hub/attendance-tracker/internal/application/eventhandler"
	"github.com/alem-hub/attendance-tracker/internal/application/query"
	"github.com/alem-hub/attendance-tracker/internal/domain/attendance"
	"github.com/alem-hub/attendance-tracker/internal/domain/ledger"
	"github.com/alem-hub/attendance-tracker/internal/domain/shared"
	"github.com/alem-hub/attendance-tracker/internal/infrastructure/lock"
	"github.com/alem-hub/attendance-tracker/internal/infrastructure/messaging"
	"github.com/alem-hub/attendance-tracker/internal/infrastructure/metrics"
	"github.com/alem-hub/attendance-tracker/internal/infrastructure/persistence/bolt"
	"github.com/alem-hub/attendance-tracker/internal/infrastructure/persistence/memory"
	"github.com/alem-hub/attendance-tracker/internal/infrastructure/persistence/postgres"
	"github.com/alem-hub/attendance-tracker/internal/infrastructure/persistence/redis"
	"github.com/alem-hub/attendance-tracker/internal/infrastructure/scheduler"
	"github.com/alem-hub/attendance-tracker/internal/infrastructure/scheduler/jobs"
	"github.com/alem-hub/attendance-tracker/internal/interface/http"
	"github.com/alem-hub/attendance-tracker/internal/interface/http/handlers"
	"github.com/alem-hub/attendance-tracker/pkg/circuitbreaker"
	"github.com/alem-hub/attendance-tracker/pkg/logger"
	"github.com/alem-hub/attendance-tracker/pkg/timeutil"
)

func main() {
	ctx := context.Background()

	var err error
	if len(os.Args) > 1 && os.Args[1] == "migrate" {
		err = migrate(ctx, os.Args[2:])
	} else {
		err = run(ctx)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

// closer is run in reverse order on shutdown.
type closer struct {
	name string
	fn   func() error
}

func run(ctx context.Context) error {
	// ─── 1. Configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// ─── 2. Logger ───────────────────────────────────────────────────────────
	log := newLogger(cfg)
	defer func() { _ = log.Sync() }()

	log.Info("starting attendance tracker",
		logger.String("version", cfg.App.Version),
		logger.String("store", cfg.Store.Driver),
		logger.String("timezone", cfg.App.Location.String()),
	)

	var closers []closer
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i].fn(); err != nil {
				log.Warn("close failed", logger.String("resource", closers[i].name), logger.Err(err))
			}
		}
	}()

	// ─── 3. Metrics ──────────────────────────────────────────────────────────
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)

	health := handlers.NewCompositeHealthChecker(cfg.App.Version)

	// ─── 4. Store ────────────────────────────────────────────────────────────
	store, closeStore, err := openStore(ctx, cfg, log, health)
	if err != nil {
		return err
	}
	closers = append(closers, closer{"store", closeStore})

	// ─── 5. Redis (optional) ─────────────────────────────────────────────────
	// The engine and the subject handler must share one locker.
	var (
		locker       lock.Locker = lock.NewKeyedMutex()
		bus          eventBus
		subjectCache query.SubjectCache
	)
	localBus := messaging.DefaultInMemoryEventBusConfig()
	localBus.Logger = log
	localBus.Metrics = m
	localBus.AsyncMode = cfg.Features.EventWorkers > 0
	if localBus.AsyncMode {
		localBus.WorkerPoolSize = cfg.Features.EventWorkers
	}

	if cfg.Redis.Enabled {
		cache, err := redis.NewCache(ctx, redisConfig(cfg.Redis))
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		closers = append(closers, closer{"redis", cache.Close})
		health.AddCheck("redis", handlers.NewPingCheck(cache))
		log.Info("connected to redis")

		locker = redis.NewKeyLocker(cache, cfg.Redis.LockTTL, cfg.Redis.LockPoll)

		redisBus, err := messaging.NewRedisEventBus(ctx, messaging.RedisEventBusConfig{
			Client:         cache,
			Channel:        redis.PubSubChannel(cfg.Redis.EventChannel),
			LocalBusConfig: localBus,
			Logger:         log,
		})
		if err != nil {
			return fmt.Errorf("failed to start event relay: %w", err)
		}
		bus = redisBus

		breaker := circuitbreaker.CacheBreaker("subject-cache", func(name string, from, to circuitbreaker.State) {
			log.Warn("circuit breaker state changed",
				logger.String("breaker", name),
				logger.String("from", from.String()),
				logger.String("to", to.String()),
			)
		}, circuitbreaker.WithIsFailure(redis.IsOutage))
		sc := redis.NewSubjectCache(cache, cfg.Redis.SubjectCacheTTL).WithBreaker(breaker)
		if err := bus.SubscribeAll(sc.HandleEvent); err != nil {
			return fmt.Errorf("failed to subscribe subject cache: %w", err)
		}
		subjectCache = sc
	} else {
		log.Info("redis disabled, using in-process locks and events")
		bus = messaging.NewInMemoryEventBus(localBus)
	}
	closers = append(closers, closer{"event bus", bus.Close})

	if err := eventhandler.NewOnAttendanceChangedHandler(store, m, log).Register(bus); err != nil {
		return fmt.Errorf("failed to subscribe threshold watch: %w", err)
	}

	// ─── 6. Application ──────────────────────────────────────────────────────
	deps := command.Deps{
		Store:     store,
		Ledger:    ledger.New(cfg.Ledger.MaxDepth),
		Locker:    locker,
		Publisher: bus,
		Clock:     timeutil.SystemClock{Location: cfg.App.Location},
		Logger:    log,
		Metrics:   m,
	}
	engine := command.NewEngine(deps)

	// ─── 7. HTTP server ──────────────────────────────────────────────────────
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	httpCfg := http.DefaultConfig()
	httpCfg.Host = cfg.HTTP.Host
	httpCfg.Port = cfg.HTTP.Port
	httpCfg.ReadTimeout = cfg.HTTP.ReadTimeout
	httpCfg.WriteTimeout = cfg.HTTP.WriteTimeout
	httpCfg.IdleTimeout = cfg.HTTP.IdleTimeout
	httpCfg.MaxBodyBytes = cfg.HTTP.MaxBodyBytes
	httpCfg.AllowedOrigins = cfg.HTTP.AllowedOrigins
	httpCfg.EnableCORS = len(cfg.HTTP.AllowedOrigins) > 0
	httpCfg.RateLimitPerMinute = cfg.HTTP.RateLimitPerMinute
	httpCfg.TrustedProxies = cfg.HTTP.TrustedProxies
	httpCfg.EnableRawWrites = cfg.Features.RawStatusWrites
	httpCfg.EnableMetrics = cfg.Observability.MetricsEnabled
	httpCfg.Version = cfg.App.Version

	server, err := http.NewServer(httpCfg, http.Dependencies{
		Engine:         engine,
		Subjects:       command.NewSubjectHandler(deps),
		GetSubject:     query.NewGetSubjectHandler(store, subjectCache, log),
		Records:        query.NewListRecordsHandler(store),
		Schedule:       query.NewListScheduleHandler(store),
		Analytics:      query.NewBuildAnalyticsHandler(store, deps.Clock, log, m).WithHorizonMonths(cfg.Analytics.HorizonMonths),
		Logger:         log,
		HealthChecker:  health,
		MetricsHandler: promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}),
	})
	if err != nil {
		return fmt.Errorf("failed to build http server: %w", err)
	}

	// ─── 8. Background jobs ──────────────────────────────────────────────────
	if cfg.Features.StandingRefresh > 0 {
		sched := scheduler.New(scheduler.Config{Logger: log, Metrics: m, RunOnStart: true})
		if err := sched.Register(jobs.NewSubjectStandingJob(store, m, log), scheduler.Every(cfg.Features.StandingRefresh)); err != nil {
			return fmt.Errorf("failed to register jobs: %w", err)
		}
		if err := sched.Start(ctx); err != nil {
			return fmt.Errorf("failed to start scheduler: %w", err)
		}
		closers = append(closers, closer{"scheduler", sched.Stop})
	}

	// ─── 9. Run until signalled ──────────────────────────────────────────────
	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := server.StartAsync()

	select {
	case <-sigCtx.Done():
		log.Info("received shutdown signal")
	case err, ok := <-errCh:
		if ok && err != nil {
			return fmt.Errorf("http server stopped: %w", err)
		}
	}

	// ─── 10. Graceful shutdown ───────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", logger.Err(err))
	}

	log.Info("attendance tracker stopped")
	return nil
}

// eventBus is what the server needs from either bus implementation.
type eventBus interface {
	shared.EventBus
	Close() error
}

// openStore builds the configured store and registers its health check.
func openStore(ctx context.Context, cfg *config.Config, log *logger.Logger, health *handlers.CompositeHealthChecker) (attendance.Store, func() error, error) {
	switch cfg.Store.Driver {
	case config.DriverPostgres:
		conn, err := connectPostgres(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		log.Info("connected to PostgreSQL")

		migrator := postgres.NewMigrator(conn)
		if cfg.Database.AutoMigrate {
			if err := migrator.Migrate(ctx); err != nil {
				conn.Close()
				return nil, nil, fmt.Errorf("failed to run migrations: %w", err)
			}
			log.Info("database migrations applied")
		}

		health.AddCheck("postgres", handlers.NewPingCheck(conn))
		health.AddCheck("migrations", migrator.CheckPending)
		return postgres.NewStore(conn), func() error { conn.Close(); return nil }, nil

	case config.DriverBolt:
		st, err := bolt.Open(bolt.Config{Path: cfg.Store.BoltPath})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open bolt store: %w", err)
		}
		log.Info("opened bolt store", logger.String("path", cfg.Store.BoltPath))
		return st, st.Close, nil

	default:
		log.Warn("using in-memory store, data is lost on restart")
		return memory.New(), func() error { return nil }, nil
	}
}

func newLogger(cfg *config.Config) *logger.Logger {
	opts := logger.DefaultOptions()
	opts.Level = logger.ParseLevel(cfg.Observability.LogLevel)
	opts.Format = cfg.Observability.LogFormat
	return logger.New(opts).With(
		logger.String("service", cfg.App.Name),
		logger.String("env", string(cfg.App.Environment)),
	)
}

// connectPostgres opens the pool and checks it answers.
func connectPostgres(ctx context.Context, cfg *config.Config) (*postgres.Connection, error) {
	pgCfg := postgres.DefaultConfig()
	pgCfg.URL = cfg.Database.URL
	pgCfg.MaxConns = cfg.Database.MaxConns
	pgCfg.MinConns = cfg.Database.MinConns
	pgCfg.MaxConnLifetime = cfg.Database.ConnMaxLifetime
	pgCfg.MaxConnIdleTime = cfg.Database.ConnMaxIdleTime
	pgCfg.ConnectTimeout = cfg.Database.ConnectTimeout

	conn, err := postgres.NewConnection(ctx, pgCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := conn.Ping(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return conn, nil
}

func redisConfig(c config.RedisConfig) redis.Config {
	rc := redis.DefaultConfig()
	rc.URL = c.URL
	rc.Host = c.Host
	rc.Port = c.Port
	rc.Password = c.Password
	rc.DB = c.DB
	rc.PoolSize = c.PoolSize
	rc.DialTimeout = c.DialTimeout
	rc.ReadTimeout = c.ReadTimeout
	rc.WriteTimeout = c.WriteTimeout
	return rc
}
