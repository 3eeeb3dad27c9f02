package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/campfees/installments/internal/installments"
	installmentshttp "github.com/campfees/installments/internal/installments/http"
	jobmetrics "github.com/campfees/installments/internal/jobs"
	"github.com/campfees/installments/internal/messaging"
	"github.com/campfees/installments/internal/observability"
	"github.com/campfees/installments/internal/parents"
	"github.com/campfees/installments/internal/payments"
	"github.com/campfees/installments/internal/platform/cache"
	"github.com/campfees/installments/internal/platform/db"
	"github.com/campfees/installments/internal/shared"
	"github.com/campfees/installments/jobs"
)

// ClaimStore records reminder claims and purges stale ones.
type ClaimStore interface {
	installments.ClaimStore
	jobs.ClaimCleaner
}

// Services holds the wired collaborators shared by the API, worker and CLI.
type Services struct {
	Config     *Config
	Logger     *slog.Logger
	Pool       *pgxpool.Pool
	Redis      *redis.Client
	Queue      *asynq.Client
	Engine     *installments.Engine
	Claims     ClaimStore
	Locker     *shared.Locker
	Email      *messaging.EmailSender
	Metrics    *observability.Metrics
	JobMetrics *jobmetrics.Metrics

	closers []func() error
}

// Bootstrap connects to the configured backends and builds the engine.
// Redis is optional for the memory driver with log delivery; in every other
// mode a failed ping is fatal.
func Bootstrap(ctx context.Context, cfg *Config, logger *slog.Logger) (*Services, error) {
	if logger == nil {
		logger = slog.Default()
	}
	svc := &Services{
		Config:  cfg,
		Logger:  logger,
		Metrics: observability.NewMetrics(),
	}
	svc.JobMetrics = jobmetrics.NewMetrics(svc.Metrics.Registerer())

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		if cfg.StorageDriver == StoragePostgres || cfg.DeliveryMode == DeliveryQueue {
			_ = redisClient.Close()
			return nil, err
		}
		logger.Warn("redis unavailable, running without cache and locks", slog.Any("error", err))
		_ = redisClient.Close()
		redisClient = nil
	}
	if redisClient != nil {
		svc.Redis = redisClient
		svc.closers = append(svc.closers, redisClient.Close)
		svc.Queue = asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
		svc.closers = append(svc.closers, svc.Queue.Close)
	}
	svc.Locker = shared.NewLocker(svc.Redis)

	var (
		store         installments.Store
		paymentStore  installments.PaymentStore
		parentsSource parents.Source
	)
	switch cfg.StorageDriver {
	case StoragePostgres:
		pool, err := db.New(ctx, cfg.PGDSN, db.Options{MaxConns: cfg.PGMaxConns})
		if err != nil {
			svc.Close()
			return nil, err
		}
		svc.Pool = pool
		svc.closers = append(svc.closers, func() error {
			pool.Close()
			return nil
		})
		store = installments.NewRepository(pool)
		paymentStore = payments.NewRepository(pool)
		parentsSource = parents.NewRepository(pool)
		svc.Claims = shared.NewIdempotencyStore(pool)
	case StorageMemory:
		paymentMem := payments.NewMemoryStore()
		parentMem := parents.NewMemoryRepository()
		if cfg.MemoryFixtures != "" {
			fx, err := LoadFixtures(cfg.MemoryFixtures)
			if err != nil {
				svc.Close()
				return nil, err
			}
			fx.Seed(paymentMem, parentMem)
			logger.Info("seeded memory storage",
				slog.String("fixtures", cfg.MemoryFixtures),
				slog.Int("parents", len(fx.Parents)),
				slog.Int("payments", len(fx.Payments)),
			)
		} else {
			logger.Warn("memory storage has no fixtures, plans cannot be created until MEMORY_FIXTURES is set")
		}
		store = installments.NewMemoryStore()
		paymentStore = paymentMem
		parentsSource = parentMem
		svc.Claims = shared.NewMemoryIdempotencyStore()
	default:
		svc.Close()
		return nil, fmt.Errorf("app: unsupported storage driver %q", cfg.StorageDriver)
	}

	svc.Email = messaging.NewEmailSender(messaging.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		From:     cfg.SMTPFrom,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		Currency: cfg.Currency,
	}, logger)

	deliverer, err := svc.deliverer()
	if err != nil {
		svc.Close()
		return nil, err
	}

	engine, err := installments.NewEngine(installments.EngineConfig{
		Store:       store,
		Payments:    paymentStore,
		Parents:     parents.NewDirectory(parentsSource, svc.Redis, cfg.ParentCacheTTL, logger),
		Deliverer:   deliverer,
		Claims:      svc.Claims,
		Logger:      logger,
		Location:    cfg.Location(),
		Concurrency: cfg.PassConcurrency,
		Metrics:     svc.JobMetrics,
	})
	if err != nil {
		svc.Close()
		return nil, err
	}
	svc.Engine = engine
	return svc, nil
}

func (s *Services) deliverer() (messaging.Deliverer, error) {
	switch s.Config.DeliveryMode {
	case DeliveryQueue:
		if s.Queue == nil {
			return nil, fmt.Errorf("app: delivery mode %q requires redis", DeliveryQueue)
		}
		return messaging.NewQueueDeliverer(s.Queue, jobs.QueueDefault), nil
	case DeliverySMTP:
		return s.Email, nil
	case DeliveryLog:
		return messaging.LogDeliverer{Logger: s.Logger}, nil
	default:
		return nil, fmt.Errorf("app: unsupported delivery mode %q", s.Config.DeliveryMode)
	}
}

// PassTrigger returns how the API requests a pass. Memory storage runs the
// pass in-process; otherwise it is queued for the worker. It returns nil when
// neither is possible.
func (s *Services) PassTrigger() installmentshttp.PassTrigger {
	switch {
	case s == nil:
		return nil
	case s.Config.StorageDriver == StorageMemory:
		return jobs.InlineTrigger{Job: s.SchedulingPassJob()}
	case s.Queue != nil:
		return jobs.WrapClient(s.Queue)
	default:
		return nil
	}
}

// SchedulingPassJob builds the pass handler bound to the engine and lock.
func (s *Services) SchedulingPassJob() *jobs.SchedulingPassJob {
	return jobs.NewSchedulingPassJob(s.Engine, s.Locker, s.Config.PassLockTTL, s.Logger, s.JobMetrics)
}

// Close releases every connection opened by Bootstrap, newest first.
func (s *Services) Close() {
	if s == nil {
		return
	}
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			s.Logger.Warn("close resource", slog.Any("error", err))
		}
	}
	s.closers = nil
}
