// Package app wires configuration, storage, the queue and the workers into
// the processes the conduit binary runs.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/xavierca1/conduit/internal/config"
	"github.com/xavierca1/conduit/internal/infra/ai"
	"github.com/xavierca1/conduit/internal/infra/broker"
	"github.com/xavierca1/conduit/internal/infra/channel"
	"github.com/xavierca1/conduit/internal/infra/database"
	"github.com/xavierca1/conduit/internal/infra/http/handlers"
	"github.com/xavierca1/conduit/internal/infra/http/middleware"
	"github.com/xavierca1/conduit/internal/infra/http/router"
	"github.com/xavierca1/conduit/internal/infra/memstore"
	"github.com/xavierca1/conduit/internal/infra/queue"
	"github.com/xavierca1/conduit/internal/infra/ratelimit"
	"github.com/xavierca1/conduit/internal/infra/worker"
	"github.com/xavierca1/conduit/internal/usecase"
)

const shutdownTimeout = 30 * time.Second

type repositories struct {
	leads    usecase.LeadRepository
	messages usecase.MessageRepository
	jobs     usecase.JobRepository
	events   usecase.EventRepository
}

type App struct {
	Config   *config.Config
	Logger   *slog.Logger
	Registry *prometheus.Registry

	DB     *sql.DB
	Redis  *redis.Client
	Broker *broker.RabbitMQ
	Queue  *queue.Queue

	Events   *usecase.EventService
	Leads    *usecase.LeadService
	Messages *usecase.MessageService

	repos repositories
}

// New connects to everything role needs. The dev role runs on in-memory
// storage and skips external services that are not configured.
func New(ctx context.Context, cfg *config.Config, role config.Role, logger *slog.Logger) (*App, error) {
	if err := cfg.Validate(role); err != nil {
		return nil, err
	}

	a := &App{Config: cfg, Logger: logger, Registry: prometheus.NewRegistry()}
	a.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	if err := a.connect(ctx, role); err != nil {
		a.Close()
		return nil, err
	}

	var publisher usecase.EventPublisher
	var deadHooks []queue.Option
	if a.Broker != nil {
		p := broker.NewPublisher(a.Broker.Ch, logger)
		publisher = p
		deadHooks = append(deadHooks, queue.WithDeadLetterHook(p.PublishDeadJob))
	}

	store, waker, err := a.queueStore(role)
	if err != nil {
		a.Close()
		return nil, err
	}

	opts := []queue.Option{
		queue.WithLogger(logger),
		queue.WithMetrics(queue.NewPrometheusMetrics(a.Registry)),
		queue.WithRetryPolicy(queue.RetryPolicy{
			MaxAttempts: cfg.Queue.RetryLimit,
			Delay:       cfg.Queue.RetryDelay,
			Backoff:     cfg.Queue.RetryBackoff,
		}),
		queue.WithPollInterval(cfg.Queue.PollInterval),
		queue.WithExpireAfter(cfg.Queue.ExpireAfter),
		queue.WithRetainCompleted(cfg.Queue.RetainCompleted),
		queue.WithActiveTimeout(cfg.Queue.ActiveTimeout),
		queue.WithFailureClassifier(worker.Classify),
	}
	if waker != nil {
		opts = append(opts, queue.WithWaker(waker))
	}
	a.Queue = queue.New(store, append(opts, deadHooks...)...)

	a.Events = usecase.NewEventService(a.repos.events, publisher, logger)
	a.Leads = usecase.NewLeadService(a.repos.leads, a.repos.messages, a.repos.jobs, a.Events, logger)
	a.Messages = usecase.NewMessageService(a.repos.messages, a.Leads, a.Queue, a.Events, logger)
	return a, nil
}

func (a *App) connect(ctx context.Context, role config.Role) error {
	cfg := a.Config

	if role == config.RoleDev && cfg.DatabaseURL == "" {
		mem := memstore.New()
		a.repos = repositories{leads: mem.Leads, messages: mem.Messages, jobs: mem.Jobs, events: mem.Events}
		a.Logger.Warn("DATABASE_URL not set, using in-memory storage")
	} else {
		db, err := database.NewDBConnection(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		a.DB = db
		a.repos = repositories{
			leads:    database.NewLeadRepository(db),
			messages: database.NewMessageRepository(db),
			jobs:     database.NewJobRepository(db),
			events:   database.NewEventRepository(db),
		}
	}

	if cfg.RedisAddr != "" {
		a.Redis = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		if err := a.Redis.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("connect to redis: %w", err)
		}
	}

	if cfg.RabbitMQURL != "" {
		rmq, err := broker.NewRabbitMQ(cfg.RabbitMQURL)
		if err != nil {
			return err
		}
		a.Broker = rmq
	}
	return nil
}

// queueStore is Postgres whenever a database is connected. Workers also
// LISTEN for new-job notifications so idle slots wake up without polling.
func (a *App) queueStore(role config.Role) (queue.Store, queue.Waker, error) {
	if a.DB == nil {
		return queue.NewMemoryStore(), nil, nil
	}

	store := queue.NewPostgresStore(a.DB, a.Logger)
	if role == config.RoleAPI {
		return store, nil, nil
	}

	listener, err := queue.NewPQListener(a.Config.DatabaseURL, a.Logger)
	if err != nil {
		return nil, nil, err
	}
	return store, listener, nil
}

// Migrate creates the domain tables and the queue table.
func Migrate(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	if cfg.DatabaseURL == "" {
		return errors.New("migrate: DATABASE_URL is required")
	}
	db, err := database.NewDBConnection(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := database.Migrate(ctx, db); err != nil {
		return err
	}
	if err := queue.NewPostgresStore(db, logger).Migrate(ctx); err != nil {
		return err
	}
	logger.Info("migrations applied")
	return nil
}

func (a *App) httpServer() *http.Server {
	cfg := a.Config

	health := handlers.NewHealthHandler(nil, nil, nil)
	if a.DB != nil {
		health.DB = handlers.PingFunc(a.DB.PingContext)
	}
	if a.Redis != nil {
		health.Redis = handlers.PingFunc(func(ctx context.Context) error { return a.Redis.Ping(ctx).Err() })
	}
	if a.Broker != nil {
		health.RabbitMQ = a.Broker.Conn
	}

	var limiter *middleware.RateLimiter
	if cfg.HTTPRateLimit > 0 {
		limiter = middleware.NewRateLimiter(cfg.HTTPRateLimit, time.Minute)
	}

	h := router.New(router.Deps{
		Leads:    handlers.NewLeadHandler(a.Leads, a.Messages, a.Logger),
		Health:   health,
		Logger:   a.Logger,
		Registry: a.Registry,
		Limiter:  limiter,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}
	if limiter != nil {
		stop := make(chan struct{})
		go limiter.Cleanup(10*time.Minute, stop)
		srv.RegisterOnShutdown(func() { close(stop) })
	}
	return srv
}

// RunAPI serves HTTP until ctx is done, then drains in-flight requests.
func (a *App) RunAPI(ctx context.Context) error {
	srv := a.httpServer()

	errCh := make(chan error, 1)
	go func() {
		a.Logger.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	a.Logger.Info("shutting down http server")
	return srv.Shutdown(shutdownCtx)
}

// RunWorker processes jobs until ctx is done, then waits for in-flight
// handlers before returning.
func (a *App) RunWorker(ctx context.Context) error {
	cfg := a.Config

	var limiter *ratelimit.Limiter
	if a.Redis != nil {
		limiter = ratelimit.New(a.Redis, "ai:"+cfg.AI.Backend, cfg.AI.RateLimit, cfg.AI.RateWindow)
	}
	generator, err := ai.New(cfg.AI, limiter, a.Logger)
	if err != nil {
		return err
	}
	dispatcher := channel.NewFromConfig(cfg, a.Logger).WithMetrics(a.Registry)

	send := worker.NewSendMessageWorker(a.Messages, a.Leads, dispatcher, a.repos.jobs, a.Logger)
	reply := worker.NewAIReplyWorker(a.Messages, a.Leads, a.Events, generator, a.repos.jobs, a.Logger)
	if err := worker.Register(a.Queue, cfg.Queue, send, reply); err != nil {
		return err
	}
	if err := a.Queue.Start(ctx); err != nil {
		return err
	}
	a.Logger.Info("workers started", "ai_backend", generator.Backend(), "channel_mode", cfg.ChannelMode)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		worker.NewMaintenanceWorker(a.Queue, cfg.Queue.MaintenanceInterval, a.Logger).Start(ctx)
	}()

	if a.Broker != nil {
		consumer := broker.NewReplyConsumer(a.Broker.Ch, a.Messages, a.Logger)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := consumer.Start(ctx); err != nil {
				a.Logger.Error("reply consumer stopped", "error", err)
			}
		}()
	}

	<-ctx.Done()
	wg.Wait()
	return a.stopQueue()
}

// RunDev runs the API and the workers in one process.
// The first one to fail stops the other.
func (a *App) RunDev(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.RunWorker(gctx) })
	g.Go(func() error { return a.RunAPI(gctx) })
	return g.Wait()
}

func (a *App) stopQueue() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return a.Queue.Stop(ctx)
}

// Close releases connections. The queue is stopped first so no handler is
// still using the pool.
func (a *App) Close() error {
	var errs []error
	if a.Queue != nil {
		errs = append(errs, a.stopQueue())
	}
	if a.Broker != nil {
		errs = append(errs, a.Broker.Close())
	}
	if a.Redis != nil {
		errs = append(errs, a.Redis.Close())
	}
	if a.DB != nil {
		errs = append(errs, a.DB.Close())
	}
	return errors.Join(errs...)
}
