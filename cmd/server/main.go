package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	ledgerapp "github.com/ledgerly/backend/internal/application/ledger"
	"github.com/ledgerly/backend/internal/domain/ledger"
	"github.com/ledgerly/backend/internal/infrastructure/audit"
	"github.com/ledgerly/backend/internal/infrastructure/cache"
	"github.com/ledgerly/backend/internal/infrastructure/config"
	"github.com/ledgerly/backend/internal/infrastructure/lock"
	"github.com/ledgerly/backend/internal/infrastructure/logger"
	"github.com/ledgerly/backend/internal/infrastructure/persistence"
	"github.com/ledgerly/backend/internal/infrastructure/scheduler"
	"github.com/ledgerly/backend/internal/infrastructure/telemetry"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// serviceActorNamespace derives a stable identity for the configured job actor name
var serviceActorNamespace = uuid.MustParse("6f1c2a9e-4b7d-4c0e-9a51-2d8f3e7b6c10")

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	baseLog, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
		Service:    cfg.App.Name,
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}

	ctx := context.Background()

	providers, err := telemetry.Setup(ctx, telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, baseLog)
	if err != nil {
		baseLog.Fatal("Failed to initialize telemetry", zap.Error(err))
	}
	log := telemetry.BridgeLogger(baseLog, providers, parseLevel(cfg.Log.Level))
	defer func() { _ = log.Sync() }()

	log.Info("Starting ledger engine",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
	)

	gormLog := logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.Level),
		logger.WithSlowThreshold(cfg.Telemetry.DBSlowQueryThresh))
	db, err := persistence.NewDatabase(&cfg.Database, persistence.WithLogger(gormLog))
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	if err := db.Use(telemetry.NewDBTracingPlugin(telemetry.DBTracingConfig{
		Enabled:         cfg.Telemetry.DBTraceEnabled,
		LogFullSQL:      cfg.Telemetry.DBLogFullSQL,
		SlowQueryThresh: cfg.Telemetry.DBSlowQueryThresh,
		DBName:          cfg.Database.DBName,
	}, log)); err != nil {
		log.Fatal("Failed to install database tracing", zap.Error(err))
	}
	log.Info("Database connected")

	var redisClient *redis.Client
	if needsRedis(cfg) {
		redisClient, err = cache.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			log.Fatal("Failed to connect to Redis", zap.Error(err), zap.String("addr", cfg.Redis.Addr()))
		}
		defer func() { _ = redisClient.Close() }()
		log.Info("Redis connected", zap.String("addr", cfg.Redis.Addr()))
	}

	locker := newLocker(cfg.Lock, redisClient, log)

	metrics, err := telemetry.NewLedgerMetrics(providers.Meter("ledger"))
	if err != nil {
		log.Fatal("Failed to create ledger metrics", zap.Error(err))
	}
	defer metrics.Stop()

	pipeline, err := audit.NewPipeline(cfg.Audit, persistence.NewGormAuditLogRepository(db.DB), log,
		audit.WithDropHandler(func(rec ledger.AuditRecord) {
			log.Warn("Audit record dropped", zap.String("action", rec.Action), zap.String("outcome", string(rec.Outcome)))
		}),
	)
	if err != nil {
		log.Fatal("Failed to build audit pipeline", zap.Error(err))
	}
	pipeline.Start()
	if err := metrics.ObserveAudit(providers.Meter("ledger"), pipeline); err != nil {
		log.Warn("Audit metrics unavailable", zap.Error(err))
	}

	engineOpts := []ledgerapp.EngineOption{
		ledgerapp.WithAuditSink(pipeline),
		ledgerapp.WithMetrics(metrics),
		ledgerapp.WithLogger(log),
		ledgerapp.WithMaxRetries(cfg.Lock.MaxRetries),
	}
	if cfg.Idempotency.Enabled {
		var client redis.UniversalClient
		if redisClient != nil {
			client = redisClient
		}
		store, err := cache.NewIdempotencyStore(cfg.Idempotency, client, log)
		if err != nil {
			log.Fatal("Failed to create idempotency store", zap.Error(err))
		}
		defer func() { _ = store.Close() }()
		engineOpts = append(engineOpts, ledgerapp.WithIdempotencyStore(store, cfg.Idempotency.TTL))
	}

	rules := ledger.NewRuleValidator(ledger.RuleConfig{
		AllowNegativeBalance:        cfg.BusinessRules.AllowNegativeBalance,
		MaxTransactionAmount:        cfg.BusinessRules.MaxTransactionAmount,
		MinTransactionAmount:        cfg.BusinessRules.MinTransactionAmount,
		MaxDailyTransactionLimit:    cfg.BusinessRules.MaxDailyTransactionLimit,
		RequireFutureDateValidation: cfg.BusinessRules.RequireFutureDateValidation,
	})
	uow := persistence.NewGormUnitOfWork(db.DB)
	engine := ledgerapp.NewEngine(uow, uow.Repositories(), locker, rules, engineOpts...)
	statusService := ledgerapp.NewPaymentStatusService(engine)

	var jobs *scheduler.Scheduler
	var trigger *scheduler.CronTrigger
	if cfg.Scheduler.Enabled {
		jobs, trigger = startOverdueSweep(ctx, cfg.Scheduler, statusService, log)
	}

	gin.SetMode(ginMode(cfg.App.Env))
	router := gin.New()
	router.Use(
		otelgin.Middleware(cfg.Telemetry.ServiceName),
		logger.GinMiddleware(log),
		logger.Recovery(log),
	)
	router.GET("/health", healthHandler(db))
	router.GET("/ready", readyHandler(db, redisClient))

	srv := &http.Server{
		Addr:         ":" + cfg.App.Port,
		Handler:      router,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}
	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	if trigger != nil {
		if err := trigger.Stop(shutdownCtx); err != nil {
			log.Error("Error stopping overdue trigger", zap.Error(err))
		}
	}
	if jobs != nil {
		if err := jobs.Stop(shutdownCtx); err != nil {
			log.Error("Error stopping scheduler", zap.Error(err))
		}
	}
	// the dispatcher drains after every writer has stopped
	if err := pipeline.Stop(shutdownCtx); err != nil {
		log.Error("Error draining audit pipeline", zap.Error(err), zap.Int("pending", pipeline.Pending()))
	}
	if err := pipeline.Close(); err != nil {
		log.Error("Error closing audit sinks", zap.Error(err))
	}
	if err := providers.Shutdown(shutdownCtx); err != nil {
		log.Error("Error shutting down telemetry", zap.Error(err))
	}

	log.Info("Server exited gracefully")
}

func needsRedis(cfg *config.Config) bool {
	return strings.EqualFold(cfg.Lock.Driver, "redis") ||
		(cfg.Idempotency.Enabled && strings.EqualFold(cfg.Idempotency.Driver, "redis"))
}

// newLocker picks the per-customer lock implementation named by cfg.Driver
func newLocker(cfg config.LockConfig, client *redis.Client, log *zap.Logger) ledgerapp.Locker {
	if strings.EqualFold(cfg.Driver, "redis") {
		log.Info("Using Redis customer locks", zap.Duration("expiry", cfg.Expiry), zap.Int("tries", cfg.Tries))
		return lock.NewRedisLocker(client, lock.RedisOptions{
			Expiry:     cfg.Expiry,
			Tries:      cfg.Tries,
			RetryDelay: cfg.RetryDelay,
		}, log)
	}
	log.Info("Using in-process customer locks")
	return lock.NewMemoryLocker()
}

// startOverdueSweep registers the overdue sweep and starts its daily trigger
func startOverdueSweep(ctx context.Context, cfg config.SchedulerConfig, statuses *ledgerapp.PaymentStatusService, log *zap.Logger) (*scheduler.Scheduler, *scheduler.CronTrigger) {
	hour, minute, err := scheduler.ParseCronSchedule(cfg.OverdueCronSchedule)
	if err != nil {
		log.Fatal("Invalid overdue cron schedule", zap.String("schedule", cfg.OverdueCronSchedule), zap.Error(err))
	}

	actor := ledger.ServiceActor(uuid.NewSHA1(serviceActorNamespace, []byte(cfg.ServiceActorName)), cfg.ServiceActorName)

	jobs := scheduler.NewScheduler(scheduler.SchedulerConfig{
		Enabled:           cfg.Enabled,
		MaxConcurrentJobs: cfg.MaxConcurrentJobs,
		JobTimeout:        cfg.JobTimeout,
		RetryAttempts:     cfg.RetryAttempts,
		RetryDelay:        cfg.RetryDelay,
	}, log)
	jobs.Register(scheduler.JobKindOverdueSweep, ledgerapp.NewOverdueSweepExecutor(statuses, actor, log))
	if err := jobs.Start(ctx); err != nil {
		log.Fatal("Failed to start scheduler", zap.Error(err))
	}

	trigger := scheduler.NewCronTrigger(scheduler.CronTriggerConfig{
		Hour:     hour,
		Minute:   minute,
		Location: time.Local,
	}, scheduler.JobKindOverdueSweep, jobs, log)
	if err := trigger.Start(ctx); err != nil {
		log.Fatal("Failed to start overdue trigger", zap.Error(err))
	}

	log.Info("Overdue sweep scheduled",
		zap.String("schedule", cfg.OverdueCronSchedule),
		zap.String("actor", actor.Name),
		zap.Time("next_run", trigger.NextRun()),
	)
	return jobs, trigger
}

// healthHandler reports liveness with a database ping
func healthHandler(db *persistence.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := db.Ping(); err != nil {
			logger.GetGinLogger(c).Warn("Health check failed", zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":   "unhealthy",
				"time":     time.Now().Format(time.RFC3339),
				"database": "error",
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"status":   "healthy",
			"time":     time.Now().Format(time.RFC3339),
			"database": "ok",
		})
	}
}

// readyHandler additionally checks Redis when it is in use
func readyHandler(db *persistence.Database, client *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		checks := gin.H{"database": "ok"}
		ready := true
		if err := db.Ping(); err != nil {
			checks["database"] = "error"
			ready = false
		}
		if client != nil {
			checks["redis"] = "ok"
			if err := client.Ping(c.Request.Context()).Err(); err != nil {
				checks["redis"] = "error"
				ready = false
			}
		}
		if stats, err := db.Stats(); err == nil {
			checks["open_connections"] = stats.OpenConnections
		}
		status := http.StatusOK
		if !ready {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"ready": ready, "checks": checks})
	}
}

func ginMode(env string) string {
	if strings.EqualFold(env, "production") {
		return gin.ReleaseMode
	}
	return gin.DebugMode
}

func parseLevel(level string) zapcore.Level {
	l, err := zapcore.ParseLevel(level)
	if err != nil {
		return zapcore.InfoLevel
	}
	return l
}
