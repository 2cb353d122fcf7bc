package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	App           AppConfig
	HTTP          ServerConfig
	MySQL         MySQLConfig
	Log           LogConfig
	Provider      ProviderConfig
	Orders        OrdersConfig
	Compliance    ComplianceConfig
	Notifications NotificationsConfig
	Outbox        OutboxConfig
	Jobs          JobsConfig
}

type AppConfig struct {
	ServiceName    string
	APIKey         string
	AdminJWTSecret string
}

type ServerConfig struct {
	Host string
	Port string
}

type MySQLConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type LogConfig struct {
	Level string
}

type ProviderConfig struct {
	Name                      string
	SecretKey                 string
	WebhookSecret             string
	SignatureToleranceSeconds int64
	HTTPTimeout               time.Duration
}

type OrdersConfig struct {
	DisputeWindow      time.Duration
	ReservationWindow  time.Duration
	PlatformFeePercent float64
}

type ComplianceConfig struct {
	RestrictedCategories []string
	PermitCategories     []string
	AllowedRegion        string
	IntentLookupTimeout  time.Duration
}

type NotificationsConfig struct {
	EndpointURL string
	HTTPTimeout time.Duration
}

type OutboxConfig struct {
	MaxAttempts   int32
	RetryInterval time.Duration
	BatchSize     int32
}

type JobsConfig struct {
	OutboxDispatchInterval     time.Duration
	EscrowReleaseInterval      time.Duration
	ExpireReservationsInterval time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	mysqlDSN := os.Getenv("MYSQL_DSN")
	if mysqlDSN == "" {
		return nil, errors.New("MYSQL_DSN environment variable is required")
	}

	return &Config{
		App: AppConfig{
			ServiceName:    getEnv("APP_SERVICE_NAME", "orders-service"),
			APIKey:         getEnv("APP_API_KEY", ""),
			AdminJWTSecret: getEnv("ADMIN_JWT_SECRET", ""),
		},
		HTTP: ServerConfig{
			Host: getEnv("HTTP_HOST", "0.0.0.0"),
			Port: getEnv("HTTP_PORT", "8080"),
		},
		MySQL: MySQLConfig{
			DSN:             mysqlDSN,
			MaxOpenConns:    getIntEnv("MYSQL_MAX_OPEN_CONNS", 10),
			MaxIdleConns:    getIntEnv("MYSQL_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getMinutesEnv("MYSQL_CONN_MAX_LIFETIME_MINUTES", 30*time.Minute),
		},
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Provider: ProviderConfig{
			Name:                      strings.ToLower(getEnv("PAYMENT_PROVIDER", "stripe")),
			SecretKey:                 getEnv("STRIPE_SECRET_KEY", ""),
			WebhookSecret:             getEnv("STRIPE_WEBHOOK_SECRET", ""),
			SignatureToleranceSeconds: int64(getIntEnv("STRIPE_SIGNATURE_TOLERANCE_SECONDS", 300)),
			HTTPTimeout:               getSecondsEnv("STRIPE_HTTP_TIMEOUT_SECONDS", 10*time.Second),
		},
		Orders: OrdersConfig{
			DisputeWindow:      getHoursEnv("ORDERS_DISPUTE_WINDOW_HOURS", 72*time.Hour),
			ReservationWindow:  getHoursEnv("ORDERS_RESERVATION_WINDOW_HOURS", 168*time.Hour),
			PlatformFeePercent: getFloatEnv("ORDERS_PLATFORM_FEE_PERCENT", 0.08),
		},
		Compliance: ComplianceConfig{
			RestrictedCategories: getListEnv("COMPLIANCE_RESTRICTED_CATEGORIES", []string{}),
			PermitCategories:     getListEnv("COMPLIANCE_PERMIT_CATEGORIES", []string{}),
			AllowedRegion:        strings.ToUpper(strings.TrimSpace(getEnv("COMPLIANCE_ALLOWED_REGION", ""))),
			IntentLookupTimeout:  getSecondsEnv("COMPLIANCE_INTENT_LOOKUP_TIMEOUT_SECONDS", 5*time.Second),
		},
		Notifications: NotificationsConfig{
			EndpointURL: getEnv("NOTIFICATIONS_ENDPOINT_URL", ""),
			HTTPTimeout: getSecondsEnv("NOTIFICATIONS_HTTP_TIMEOUT_SECONDS", 10*time.Second),
		},
		Outbox: OutboxConfig{
			MaxAttempts:   int32(getIntEnv("OUTBOX_MAX_ATTEMPTS", 10)),
			RetryInterval: getMinutesEnv("OUTBOX_RETRY_INTERVAL_MINUTES", 5*time.Minute),
			BatchSize:     int32(getIntEnv("OUTBOX_BATCH_SIZE", 100)),
		},
		Jobs: JobsConfig{
			OutboxDispatchInterval:     getMinutesEnv("ORDERS_OUTBOX_DISPATCH_INTERVAL_MINUTES", time.Minute),
			EscrowReleaseInterval:      getMinutesEnv("ORDERS_ESCROW_RELEASE_INTERVAL_MINUTES", 5*time.Minute),
			ExpireReservationsInterval: getMinutesEnv("ORDERS_EXPIRE_RESERVATIONS_INTERVAL_MINUTES", 15*time.Minute),
		},
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getListEnv(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if strings.TrimSpace(value) == "" {
		return defaultValue
	}
	parts := strings.Split(value, ",")
	items := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.ToLower(strings.TrimSpace(part))
		if part != "" {
			items = append(items, part)
		}
	}
	if len(items) == 0 {
		return defaultValue
	}
	return items
}

func getMinutesEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if minutes, err := strconv.Atoi(value); err == nil {
			return time.Duration(minutes) * time.Minute
		}
	}
	return defaultValue
}

func getHoursEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if hours, err := strconv.Atoi(value); err == nil {
			return time.Duration(hours) * time.Hour
		}
	}
	return defaultValue
}

func getSecondsEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if seconds, err := strconv.Atoi(value); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}
	return defaultValue
}
