package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/tunguyen02/mobile-backend/database"
	"github.com/tunguyen02/mobile-backend/gateway"
	aws_pkg "github.com/tunguyen02/mobile-backend/pkg/aws"
)

type Config struct {
	Port        string
	Env         string
	Postgres    database.PostgresConfig
	RedisURL    string
	ProductURL  string
	FrontendURL string

	KafkaBrokers     []string
	OrderEventsTopic string
	NotificationARN  string
	CheckoutQueueURL string
	CheckoutQueue    string

	CloudWatchEnabled   bool
	CloudWatchNamespace string
	CloudWatchLogGroup  string

	Gateway       gateway.Config
	GatewayRetry  gateway.RetryPolicy
	ShippingFee   int64
	PaymentWindow time.Duration
	SweepInterval time.Duration
}

func LoadConfig(ctx context.Context) (*Config, error) {
	cfg := &Config{
		Port: getEnv("PORT", "8090"),
		Env:  getEnv("APP_ENV", "development"),
		Postgres: database.PostgresConfig{
			Host:     getEnv("POSTGRES_HOST", "localhost"),
			Port:     getEnv("POSTGRES_PORT", "5432"),
			User:     os.Getenv("POSTGRES_USER"),
			Password: os.Getenv("POSTGRES_PASSWORD"),
			DBName:   os.Getenv("POSTGRES_DB"),
			SSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),
			TimeZone: getEnv("POSTGRES_TIMEZONE", "Asia/Ho_Chi_Minh"),
		},
		RedisURL:    os.Getenv("REDIS_URL"),
		ProductURL:  getEnv("PRODUCT_SERVICE_URL", "http://product-service:8082"),
		FrontendURL: getEnv("FRONTEND_URL", "http://localhost:3000"),

		KafkaBrokers:     splitList(os.Getenv("KAFKA_BROKERS")),
		OrderEventsTopic: getEnv("ORDER_EVENTS_TOPIC", "order.events"),
		NotificationARN:  os.Getenv("NOTIFICATION_SNS_TOPIC_ARN"),
		CheckoutQueueURL: os.Getenv("CHECKOUT_QUEUE_URL"),
		CheckoutQueue:    os.Getenv("CHECKOUT_QUEUE_NAME"),

		CloudWatchEnabled:   os.Getenv("CLOUDWATCH_ENABLED") == "true",
		CloudWatchNamespace: getEnv("CLOUDWATCH_NAMESPACE", "MobileStore"),
		CloudWatchLogGroup:  getEnv("CLOUDWATCH_LOG_GROUP", "/mobile-store/services"),

		Gateway: gateway.Config{
			TmnCode:     os.Getenv("GATEWAY_TMN_CODE"),
			HashSecret:  os.Getenv("GATEWAY_HASH_SECRET"),
			PayURL:      getEnv("GATEWAY_PAY_URL", "https://sandbox.vnpayment.vn/paymentv2/vpcpay.html"),
			APIURL:      getEnv("GATEWAY_API_URL", "https://sandbox.vnpayment.vn/merchant_webapi/api/transaction"),
			ReturnURL:   os.Getenv("GATEWAY_RETURN_URL"),
			Timezone:    getEnv("GATEWAY_TIMEZONE", "Asia/Ho_Chi_Minh"),
			ExpireAfter: time.Duration(getInt("GATEWAY_EXPIRE_MINUTES", 15)) * time.Minute,
		},
		GatewayRetry: gateway.RetryPolicy{
			MaxAttempts: getInt("GATEWAY_MAX_ATTEMPTS", 3),
			Timeout:     time.Duration(getInt("GATEWAY_TIMEOUT_SECONDS", 10)) * time.Second,
			Backoff:     500 * time.Millisecond,
		},
		ShippingFee:   int64(getInt("SHIPPING_FEE", 30000)),
		PaymentWindow: time.Duration(getInt("PAYMENT_WINDOW_HOURS", 24)) * time.Hour,
		SweepInterval: time.Duration(getInt("SWEEP_INTERVAL_MINUTES", 5)) * time.Minute,
	}

	if os.Getenv("AWS_USE_SECRETS") == "true" {
		if err := applySecrets(ctx, cfg); err != nil {
			return nil, err
		}
	}

	if cfg.Postgres.User == "" || cfg.Postgres.Password == "" || cfg.Postgres.DBName == "" {
		return nil, fmt.Errorf("database config incomplete")
	}
	if cfg.Gateway.TmnCode == "" || cfg.Gateway.HashSecret == "" || cfg.Gateway.ReturnURL == "" {
		return nil, fmt.Errorf("gateway config incomplete: GATEWAY_TMN_CODE, GATEWAY_HASH_SECRET and GATEWAY_RETURN_URL are required")
	}
	return cfg, nil
}

// applySecrets overrides DB credentials and the gateway secret with values
// kept in Secrets Manager.
func applySecrets(ctx context.Context, cfg *Config) error {
	awsCfg, err := aws_pkg.LoadAWSConfig(ctx)
	if err != nil {
		return err
	}
	sm := aws_pkg.NewSecretsClient(awsCfg)

	if m, err := sm.GetSecretMap(ctx, "fulfillment/DB_CREDENTIALS"); err == nil {
		override(&cfg.Postgres.User, m["POSTGRES_USER"])
		override(&cfg.Postgres.Password, m["POSTGRES_PASSWORD"])
		override(&cfg.Postgres.DBName, m["POSTGRES_DB"])
		override(&cfg.Postgres.Host, m["POSTGRES_HOST"])
		override(&cfg.Postgres.Port, m["POSTGRES_PORT"])
	}
	if secret, err := sm.GetSecret(ctx, "fulfillment/GATEWAY_SECRET"); err == nil {
		override(&cfg.Gateway.HashSecret, strings.TrimSpace(secret))
	}
	return nil
}

func override(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if n, err := strconv.Atoi(os.Getenv(key)); err == nil && n > 0 {
		return n
	}
	return fallback
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
