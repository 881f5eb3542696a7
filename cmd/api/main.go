package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/citytransfer/platform/internal/bookings"
	"github.com/citytransfer/platform/internal/earnings"
	"github.com/citytransfer/platform/internal/partners"
	"github.com/citytransfer/platform/internal/payouts"
	"github.com/citytransfer/platform/internal/reports"
	"github.com/citytransfer/platform/pkg/cache"
	"github.com/citytransfer/platform/pkg/common"
	"github.com/citytransfer/platform/pkg/config"
	"github.com/citytransfer/platform/pkg/database"
	"github.com/citytransfer/platform/pkg/eventbus"
	"github.com/citytransfer/platform/pkg/logger"
	"github.com/citytransfer/platform/pkg/middleware"
	redisclient "github.com/citytransfer/platform/pkg/redis"
	"github.com/citytransfer/platform/pkg/resilience"
)

const (
	serviceName = "api"
	version     = "1.0.0"
)

func main() {
	cfg, err := config.Load(serviceName)
	if err != nil {
		panic(err)
	}

	logger.Init(cfg.Server.Environment)
	defer logger.Sync()

	if err := database.RunMigrations(&cfg.Database); err != nil {
		logger.Fatal("failed to run migrations", zap.Error(err))
	}

	db, err := database.NewPostgresPool(&cfg.Database)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer database.Close(db)
	logger.Info("connected to PostgreSQL")

	redisClient, err := redisclient.NewRedisClient(&cfg.Redis)
	if err != nil {
		logger.Fatal("failed to connect to Redis", zap.Error(err))
	}
	defer redisClient.Close()
	logger.Info("connected to Redis")

	cacheManager := cache.NewManager(redisClient)

	// Event bus is optional: without NATS the services run but publish
	// nothing, and earnings must be created administratively.
	var bus *eventbus.Bus
	if cfg.NATS.Enabled {
		busConfig := eventbus.DefaultConfig()
		busConfig.URL = cfg.NATS.URL
		busConfig.Name = serviceName
		busConfig.StreamName = cfg.NATS.Stream
		bus, err = eventbus.New(busConfig)
		if err != nil {
			logger.Fatal("failed to connect to NATS", zap.Error(err))
		}
		defer bus.Close()
		logger.Info("connected to NATS", zap.String("stream", cfg.NATS.Stream))
	}

	var partnerClient *partners.Client
	if cfg.PartnerDirectory.Enabled {
		var breaker *resilience.CircuitBreaker
		if cfg.Resilience.CircuitBreaker.Enabled {
			breaker = resilience.NewCircuitBreaker(resilience.Settings{
				Name:             "partner-directory",
				Interval:         time.Duration(cfg.Resilience.CircuitBreaker.IntervalSeconds) * time.Second,
				Timeout:          time.Duration(cfg.Resilience.CircuitBreaker.TimeoutSeconds) * time.Second,
				FailureThreshold: uint32(cfg.Resilience.CircuitBreaker.FailureThreshold),
				SuccessThreshold: uint32(cfg.Resilience.CircuitBreaker.SuccessThreshold),
			}, nil)
		}
		partnerClient = partners.NewClient(cfg.PartnerDirectory.BaseURL, cfg.PartnerDirectory.Timeout(), breaker, cacheManager)
	}

	// Assign through a typed variable so a disabled bus stays a true nil
	// inside the services' EventPublisher fields.
	var publisher bookings.EventPublisher
	if bus != nil {
		publisher = bus
	}

	bookingRepo := bookings.NewRepository(db)
	bookingService := bookings.NewService(bookingRepo, publisher)
	bookingHandler := bookings.NewHandler(bookingService)

	earningRepo := earnings.NewRepository(db)
	earningService := earnings.NewService(earningRepo, rateSource(partnerClient), publisher)
	earningHandler := earnings.NewHandler(earningService)

	payoutRepo := payouts.NewRepository(db)
	payoutService := payouts.NewService(payoutRepo, partnerVerifier(partnerClient), publisher, cfg.Payouts.MinimumAmount)
	payoutHandler := payouts.NewHandler(payoutService)

	reportRepo := reports.NewRepository(db)
	reportService := reports.NewService(reportRepo, cacheManager)
	reportHandler := reports.NewHandler(reportService)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if bus != nil {
		consumer := earnings.NewConsumer(earningService, bookingRepo, bus)
		if err := consumer.Start(ctx); err != nil {
			logger.Fatal("failed to start payment consumer", zap.Error(err))
		}
		logger.Info("payment consumer started")
	}

	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CorrelationID())
	router.Use(middleware.RequestLogger(serviceName))
	router.Use(middleware.Metrics(serviceName))
	router.Use(cors.New(corsConfig(cfg.Server.CORSOrigins)))

	router.GET("/healthz", common.HealthCheck(serviceName, version))
	router.GET("/livez", common.LivenessProbe(serviceName, version))
	readinessChecks := map[string]func() error{
		"postgres": func() error { return db.Ping(context.Background()) },
		"redis": func() error {
			return redisClient.Ping(context.Background()).Err()
		},
	}
	if bus != nil {
		readinessChecks["nats"] = func() error {
			if !bus.Connected() {
				return fmt.Errorf("nats connection lost")
			}
			return nil
		}
	}
	router.GET("/readyz", common.ReadinessProbe(serviceName, version, readinessChecks))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	jwtSecret := cfg.JWT.Secret
	bookingHandler.RegisterRoutes(router, jwtSecret)
	earningHandler.RegisterRoutes(router, jwtSecret)
	payoutHandler.RegisterRoutes(router, jwtSecret)
	reportHandler.RegisterRoutes(router, jwtSecret)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("server starting", zap.String("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

func corsConfig(origins string) cors.Config {
	corsCfg := cors.DefaultConfig()
	if origins != "" {
		list := strings.Split(origins, ",")
		for i := range list {
			list[i] = strings.TrimSpace(list[i])
		}
		corsCfg.AllowOrigins = list
	} else {
		corsCfg.AllowOrigins = []string{"http://localhost:3000"}
	}
	corsCfg.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsCfg.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", middleware.CorrelationIDHeader}
	corsCfg.AllowCredentials = true
	return corsCfg
}

func rateSource(client *partners.Client) earnings.RateSource {
	if client == nil {
		return nil
	}
	return client
}

func partnerVerifier(client *partners.Client) payouts.PartnerVerifier {
	if client == nil {
		return nil
	}
	return client
}
