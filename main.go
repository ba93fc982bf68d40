package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/tunguyen02/mobile-backend/controllers"
	"github.com/tunguyen02/mobile-backend/database"
	"github.com/tunguyen02/mobile-backend/gateway"
	"github.com/tunguyen02/mobile-backend/kafka"
	"github.com/tunguyen02/mobile-backend/logger"
	"github.com/tunguyen02/mobile-backend/middleware"
	aws_pkg "github.com/tunguyen02/mobile-backend/pkg/aws"
	"github.com/tunguyen02/mobile-backend/repository"
	"github.com/tunguyen02/mobile-backend/routes"
	"github.com/tunguyen02/mobile-backend/services"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const serviceName = "fulfillment-service"

func main() {
	boot, err := zap.NewProduction()
	if err != nil {
		panic("failed to initialize logger: " + err.Error())
	}
	database.LoadEnvFile(boot)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	cfg, err := LoadConfig(ctx)
	if err != nil {
		boot.Fatal("Config load failed", zap.Error(err))
	}

	// --- AWS setup ---
	awsCfg, err := aws_pkg.LoadAWSConfig(ctx)
	if err != nil {
		boot.Fatal("Failed to load AWS config", zap.Error(err))
	}

	var sink io.Writer
	if cfg.CloudWatchEnabled {
		cw, err := aws_pkg.NewCloudWatchLogsClient(ctx, awsCfg, cfg.CloudWatchLogGroup, serviceName)
		if err != nil {
			boot.Warn("CloudWatch Logs init failed (non-fatal)", zap.Error(err))
		} else {
			sink = cw
		}
	}
	log, err := logger.New(cfg.Env, sink)
	if err != nil {
		boot.Fatal("Logger init failed", zap.Error(err))
	}
	defer log.Sync()

	metricsClient := aws_pkg.NewMetricsClient(awsCfg, cfg.CloudWatchNamespace, cfg.CloudWatchEnabled)

	// --- Storage ---
	db, err := database.ConnectPostgres(cfg.Postgres, log)
	if err != nil {
		log.Fatal("DB connection failed", zap.Error(err))
	}
	store := repository.NewGormStore(db)

	var rdb *redis.Client
	var locker services.Locker
	if cfg.RedisURL != "" {
		rdb, err = database.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			log.Warn("Redis unavailable, running without product cache and sweeper lock", zap.Error(err))
			rdb = nil
		} else {
			locker = services.NewRedisLocker(rdb)
		}
	}

	// --- Collaborators ---
	var events services.EventPublisher
	var producer *kafka.Producer
	if len(cfg.KafkaBrokers) > 0 {
		producer = kafka.NewProducer(cfg.KafkaBrokers, cfg.OrderEventsTopic, log)
		events = producer
	}

	var notifier services.Notifier
	if cfg.NotificationARN != "" {
		notifier = services.NewSNSNotifier(aws_pkg.NewSNSClient(awsCfg, log), cfg.NotificationARN)
	}

	catalog := services.NewHTTPCatalog(cfg.ProductURL, rdb, log)
	pricing := services.NewPricing(catalog, store.FlashSales(), cfg.ShippingFee, log)
	gw := gateway.NewClient(cfg.Gateway, nil)
	orderCfg := services.OrderConfig{PaymentWindow: cfg.PaymentWindow}

	orderService := services.NewOrderService(store, pricing, gw, notifier, events, metricsClient, orderCfg, log)
	paymentService := services.NewPaymentService(store, gw, events, metricsClient, orderCfg, log)
	refundService := services.NewRefundService(store, gw, cfg.GatewayRetry, events, metricsClient, log)
	flashSaleService := services.NewFlashSaleService(store, catalog, log)

	// --- Background workers ---
	var workers sync.WaitGroup
	sweeper := services.NewExpirySweeper(store, cfg.SweepInterval, cfg.PaymentWindow, locker, events, metricsClient, log)
	workers.Add(1)
	go func() {
		defer workers.Done()
		sweeper.Start(ctx)
	}()

	if queueURL := resolveQueueURL(ctx, awsCfg, cfg, log); queueURL != "" {
		consumer := services.NewCheckoutConsumer(aws_pkg.NewSQSConsumer(awsCfg, queueURL, log), orderService, locker, log)
		workers.Add(1)
		go func() {
			defer workers.Done()
			consumer.Start(ctx)
		}()
	}

	callbackLimiter := middleware.NewRateLimiter(rate.Every(time.Second/10), 30, 5*time.Minute)
	go callbackLimiter.Cleanup(ctx)

	// --- HTTP router ---
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.MetricsMiddleware(metricsClient, serviceName))
	r.Use(middleware.RequestLogger(log))
	// Room for a refund approval to settle within the request.
	r.Use(middleware.Timeout(max(30*time.Second, cfg.GatewayRetry.Budget()+10*time.Second)))

	routes.Register(r, routes.Controllers{
		Orders:     controllers.NewOrderController(orderService),
		Payments:   controllers.NewPaymentController(paymentService, cfg.FrontendURL),
		Refunds:    controllers.NewRefundController(refundService),
		FlashSales: controllers.NewFlashSaleController(flashSaleService),
	}, callbackLimiter.Middleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "OK", "service": serviceName})
	})

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: r}
	go func() {
		log.Info("Fulfillment service started", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server failed", zap.Error(err))
		}
	}()

	// --- Graceful shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Initiating graceful shutdown...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server shutdown error", zap.Error(err))
	}

	stop()
	workers.Wait()

	if producer != nil {
		if err := producer.Close(); err != nil {
			log.Error("Kafka producer close error", zap.Error(err))
		}
	}
	if rdb != nil {
		_ = rdb.Close()
	}
	if err := database.Close(db); err != nil {
		log.Error("Database close error", zap.Error(err))
	}
	log.Info("Fulfillment service stopped gracefully")
}

func resolveQueueURL(ctx context.Context, awsCfg sdkaws.Config, cfg *Config, log *zap.Logger) string {
	if cfg.CheckoutQueueURL != "" || cfg.CheckoutQueue == "" {
		return cfg.CheckoutQueueURL
	}
	u, err := aws_pkg.GetQueueURL(ctx, awsCfg, cfg.CheckoutQueue)
	if err != nil {
		log.Warn("Checkout queue disabled", zap.String("queue", cfg.CheckoutQueue), zap.Error(err))
		return ""
	}
	return u
}
