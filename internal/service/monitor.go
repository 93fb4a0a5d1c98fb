package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"line-monitor/common/database"
	mqttcommon "line-monitor/common/mqtt"
	rediscommon "line-monitor/common/redis"
	"line-monitor/internal/config"
	httpapi "line-monitor/internal/http"
	"line-monitor/internal/indicator"
	"line-monitor/internal/publisher"
	"line-monitor/internal/repository"
	"line-monitor/internal/scheduler"
)

const readHeaderTimeout = 10 * time.Second

// MonitorService wires the store, engine, scheduler, publishers and HTTP API
type MonitorService struct {
	config    *config.Config
	logger    *zap.Logger
	engine    *indicator.Engine
	scheduler *scheduler.Scheduler
	server    *http.Server

	mu       sync.Mutex
	listener net.Listener
}

// NewMonitorService connects to every enabled backend. Configuration errors and
// unreachable backends fail here so the refresh loop never starts half wired.
func NewMonitorService(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*MonitorService, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var closers []io.Closer
	fail := func(err error) (*MonitorService, error) {
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i].Close()
		}
		return nil, err
	}

	store, storeCloser, err := OpenStore(ctx, cfg, logger)
	if err != nil {
		return fail(err)
	}
	if storeCloser != nil {
		closers = append(closers, storeCloser)
	}

	engine, err := indicator.NewEngine(store, cfg.Shift, logger)
	if err != nil {
		return fail(err)
	}

	hub := httpapi.NewHub(logger)
	metrics := httpapi.NewMetrics(logger)
	closers = append(closers, hub)

	opts := []scheduler.Option{
		scheduler.WithTickTimeout(cfg.Monitor.TickTimeout),
		scheduler.WithSubscriber(hub),
		scheduler.WithSubscriber(metrics),
	}

	if cfg.Redis.Enabled {
		client, err := rediscommon.Connect(ctx, &cfg.Redis)
		if err != nil {
			return fail(err)
		}
		closers = append(closers, client)

		pub := publisher.NewRedisPublisher(
			publisher.NewRedisKVStore(client),
			cfg.Monitor.CacheKey,
			cfg.Monitor.StreamKey,
			cfg.Monitor.StreamMaxLen,
			2*cfg.Shift.RefreshInterval,
			logger,
		)
		opts = append(opts, scheduler.WithSubscriber(pub))
		logger.Info("Redis publishing enabled",
			zap.String("cache_key", cfg.Monitor.CacheKey),
			zap.String("stream_key", cfg.Monitor.StreamKey),
		)
	}

	if cfg.MQTT.Enabled {
		client, err := mqttcommon.NewClient(&cfg.MQTT)
		if err != nil {
			return fail(err)
		}
		closers = append(closers, client)
		opts = append(opts, scheduler.WithSubscriber(
			publisher.NewMQTTPublisher(client, cfg.Monitor.MQTTTopic, cfg.MQTT.QoS, logger),
		))
		logger.Info("MQTT publishing enabled", zap.String("topic", cfg.Monitor.MQTTTopic))
	}

	for _, c := range closers {
		opts = append(opts, scheduler.WithCloser(c))
	}
	sched := scheduler.New(engine, cfg.Shift.RefreshInterval, logger, opts...)

	router := httpapi.NewRouter(logger)
	router.RegisterIndicatorRoutes(httpapi.NewIndicatorHandler(engine, sched, logger))
	router.HandleHandler("/ws", hub)
	router.HandleHandler("/metrics", metrics)

	return &MonitorService{
		config:    cfg,
		logger:    logger,
		engine:    engine,
		scheduler: sched,
		server: &http.Server{
			Addr:              cfg.Monitor.ListenAddr,
			Handler:           router,
			ReadHeaderTimeout: readHeaderTimeout,
		},
	}, nil
}

// OpenStore returns the Postgres repository (schema ensured) or, with the
// database disabled, an in-memory one. The closer is nil for the memory store.
func OpenStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (repository.StoppageRepository, io.Closer, error) {
	if !cfg.Database.Enabled {
		loc, err := cfg.Location()
		if err != nil {
			return nil, nil, err
		}
		logger.Warn("Database disabled, stoppages are kept in memory only")
		return repository.NewMemoryStoppageRepository(loc), nil, nil
	}

	db, err := database.NewPostgresDB(ctx, &cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	repo := repository.NewPostgresStoppageRepository(db, cfg.Database.QueryTimeout, logger)
	if err := repo.EnsureSchema(ctx); err != nil {
		_ = database.Close(db)
		return nil, nil, err
	}
	return repo, dbCloser{db}, nil
}

type dbCloser struct{ db *sql.DB }

func (c dbCloser) Close() error { return database.Close(c.db) }

// Engine exposes the indicator engine (CLI one-shot commands)
func (s *MonitorService) Engine() *indicator.Engine {
	return s.engine
}

// Start runs the scheduler and serves HTTP until Stop or a listener error.
func (s *MonitorService) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.server.Addr, err)
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	if err := s.scheduler.Start(ctx); err != nil {
		_ = ln.Close()
		return err
	}

	s.logger.Info("Starting line monitor",
		zap.String("addr", ln.Addr().String()),
		zap.Int64("units_per_minute", s.config.Shift.UnitsPerMinute),
		zap.Int64("shift_minutes", s.config.Shift.ShiftMinutes),
		zap.Duration("refresh_interval", s.config.Shift.RefreshInterval),
	)

	if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Addr listening address once Start has bound it
func (s *MonitorService) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop drains HTTP, lets an in-flight refresh finish and releases backends.
func (s *MonitorService) Stop(ctx context.Context) error {
	var errs []error
	if err := s.server.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}
	if err := s.scheduler.Stop(ctx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
