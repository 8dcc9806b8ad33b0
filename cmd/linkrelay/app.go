package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/cenkalti/backoff/v4"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"golang.org/x/sync/errgroup"

	"linkrelay/internal/broker"
	"linkrelay/internal/config"
	"linkrelay/internal/constants"
	"linkrelay/internal/correlation"
	"linkrelay/internal/inflight"
	"linkrelay/internal/linkrelay"
	"linkrelay/internal/logger"
	"linkrelay/pkg/bootstrap"
	"linkrelay/pkg/health"
	"linkrelay/pkg/logging"
	"linkrelay/pkg/metrics"
	"linkrelay/pkg/middleware"
	"linkrelay/pkg/ratelimit"
	"linkrelay/pkg/retry"
	"linkrelay/pkg/tracing"
)

type App struct {
	*bootstrap.Base
	dbConnector    *bootstrap.DatabaseConnector
	redis          *redis.Client
	registry       inflight.Registry
	handler        *linkrelay.Handler
	router         *gin.Engine
	tracerProvider *tracing.TracerProvider
	server         *http.Server
}

func NewApp(cfg *config.Config, log logger.Logger) *App {
	if sugaredLogger, ok := log.(*logger.SugaredLogger); ok {
		sugaredLogger.SetServiceName(constants.ServiceName)
	}
	return &App{
		Base:        bootstrap.NewBase(cfg, log),
		dbConnector: bootstrap.NewDatabaseConnector(cfg, log),
	}
}

func (a *App) Initialize(ctx context.Context) error {
	if err := a.initRedis(ctx); err != nil {
		return fmt.Errorf("failed to initialize Redis: %w", err)
	}

	if err := a.InitBroker(broker.Dependencies{Redis: a.redis}); err != nil {
		return fmt.Errorf("failed to initialize broker: %w", err)
	}

	a.initRegistry()

	if err := a.initHandler(); err != nil {
		return fmt.Errorf("failed to initialize handler: %w", err)
	}

	tp, err := tracing.Init(a.Config.Tracing, constants.ServiceName)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	a.tracerProvider = tp

	metrics.Register()

	a.initRouter(ctx)
	a.initServer()

	return nil
}

func (a *App) initRedis(ctx context.Context) error {
	rdb, err := a.dbConnector.InitRedis(ctx)
	if err != nil {
		return err
	}
	a.redis = rdb
	return nil
}

func (a *App) initRegistry() {
	if a.Config.InFlight.Store != "redis" {
		a.registry = inflight.NewMemoryRegistry()
		return
	}

	base := inflight.NewRedisRegistry(a.redis, a.Config.InFlight.KeyPrefix)
	if a.Config.CircuitBreaker.Enabled {
		a.registry = inflight.NewCircuitBreakerRegistry(base, a.Config.CircuitBreaker)
		initCtx := logging.WithServiceName(context.Background(), constants.ServiceName)
		a.Logger.InfowCtx(initCtx, "Circuit breaker enabled for in-flight registry")
		return
	}
	a.registry = base
}

func (a *App) initHandler() error {
	validator, err := linkrelay.NewValidator(a.Config.Validation.Rules)
	if err != nil {
		return err
	}

	corr := a.Config.Correlation
	correlator := correlation.NewCorrelator(a.Consumer, a.Logger, correlation.WithBackoff(func() backoff.BackOff {
		return retry.PollBackoff(corr.PollBackoffInitial, corr.PollBackoffMax)
	}))
	dispatcher := correlation.NewDispatcher(a.Producer, a.Logger)

	svc := linkrelay.NewService(dispatcher, correlator, a.registry, corr, a.Config.InFlight.Grace, a.Logger)
	a.handler = linkrelay.NewHandler(svc, validator, a.Logger)
	return nil
}

func (a *App) initRouter(ctx context.Context) {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	if a.Config.Tracing.Enabled {
		router.Use(tracing.GinMiddleware(constants.ServiceName))
	}

	router.Use(middleware.RecoveryMiddleware(a.Logger))
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.LoggerMiddleware(a.Logger))

	router.GET("/health", a.healthHandler())
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	if a.Config.Server.Swagger {
		router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := router.Group("/")
	if a.Config.RateLimit.Enabled {
		rateLimitConfig := ratelimit.FromConfig(a.Config.RateLimit)
		api.Use(ratelimit.RateLimitMiddleware(ctx, rateLimitConfig))
		a.Logger.InfowCtx(ctx, "Rate limiting enabled", "rps", rateLimitConfig.RPS, "burst", rateLimitConfig.Burst)
	}
	a.handler.RegisterRoutes(api)

	a.router = router
}

func (a *App) healthHandler() gin.HandlerFunc {
	healthRegistry := health.NewCheckerRegistry()
	if a.redis != nil {
		healthRegistry.Register(health.NewRedisChecker(a.redis))
	}
	if a.Config.Broker.Work == broker.TransportKafka {
		healthRegistry.Register(health.NewKafkaChecker(a.Config.Broker.Kafka.Brokers))
	}
	if a.Breaker != nil {
		healthRegistry.Register(health.NewBreakerChecker("work-queue", a.Breaker.IsOpen))
	}
	if cb, ok := a.registry.(*inflight.CircuitBreakerRegistry); ok {
		healthRegistry.Register(health.NewBreakerChecker("inflight-registry", func() bool {
			return cb.State() == "open"
		}))
	}

	return func(c *gin.Context) {
		h := healthRegistry.Check(c.Request.Context())
		statusCode := http.StatusOK
		if h.Status == health.StatusUnhealthy {
			statusCode = http.StatusServiceUnavailable
		}
		c.JSON(statusCode, h)
	}
}

func (a *App) initServer() {
	a.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler:      a.router,
		ReadTimeout:  a.Config.Server.ReadTimeoutSeconds,
		WriteTimeout: a.Config.Server.WriteTimeoutSeconds,
	}
}

func (a *App) Run(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.Logger.InfowCtx(ctx, "HTTP server starting", "port", a.Config.Server.Port)
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		return a.Shutdown(context.WithoutCancel(ctx))
	})

	return g.Wait()
}

func (a *App) Shutdown(ctx context.Context) error {
	shutdownCtx := logging.WithServiceName(ctx, constants.ServiceName)
	a.Logger.InfowCtx(shutdownCtx, "Shutting down linkrelay")

	additionalShutdown := func(ctx context.Context) []error {
		var errs []error

		if a.server != nil {
			serverCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
			defer cancel()
			if err := a.server.Shutdown(serverCtx); err != nil {
				errs = append(errs, fmt.Errorf("HTTP server shutdown error: %w", err))
			}
		}

		if a.tracerProvider != nil {
			if err := a.tracerProvider.Shutdown(ctx); err != nil {
				errs = append(errs, fmt.Errorf("tracer provider shutdown error: %w", err))
			}
		}

		return errs
	}

	err := a.Base.Shutdown(ctx, additionalShutdown)
	if dbErrs := a.dbConnector.ShutdownDatabases(ctx, a.redis); len(dbErrs) > 0 && err == nil {
		err = fmt.Errorf("shutdown errors: %v", dbErrs)
	}
	return err
}
