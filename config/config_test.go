package config

import (
	"os"
	"testing"
	"time"
)

func setEnv(t *testing.T, key, value string) {
	t.Helper()
	old, had := os.LookupEnv(key)
	if err := os.Setenv(key, value); err != nil {
		t.Fatalf("setenv %s failed: %v", key, err)
	}
	t.Cleanup(func() {
		if had {
			_ = os.Setenv(key, old)
		} else {
			_ = os.Unsetenv(key)
		}
	})
}

func unsetEnv(t *testing.T, key string) {
	t.Helper()
	old, had := os.LookupEnv(key)
	_ = os.Unsetenv(key)
	t.Cleanup(func() {
		if had {
			_ = os.Setenv(key, old)
		}
	})
}

func TestLoadRequiresMySQLDSN(t *testing.T) {
	unsetEnv(t, "MYSQL_DSN")
	_, err := Load()
	if err == nil {
		t.Fatal("expected error for missing MYSQL_DSN")
	}
}

func TestLoadDefaultsAndOverrides(t *testing.T) {
	setEnv(t, "MYSQL_DSN", "root:root@tcp(localhost:3306)/orders?parseTime=true")
	setEnv(t, "APP_SERVICE_NAME", "orders-test")
	setEnv(t, "HTTP_PORT", "8181")
	setEnv(t, "MYSQL_MAX_OPEN_CONNS", "20")
	setEnv(t, "MYSQL_MAX_IDLE_CONNS", "8")
	setEnv(t, "MYSQL_CONN_MAX_LIFETIME_MINUTES", "40")
	setEnv(t, "ORDERS_DISPUTE_WINDOW_HOURS", "48")
	setEnv(t, "ORDERS_RESERVATION_WINDOW_HOURS", "120")
	setEnv(t, "ORDERS_PLATFORM_FEE_PERCENT", "0.1")
	setEnv(t, "COMPLIANCE_RESTRICTED_CATEGORIES", "Firearms, Alcohol")
	setEnv(t, "COMPLIANCE_ALLOWED_REGION", "ca")
	setEnv(t, "OUTBOX_MAX_ATTEMPTS", "5")
	setEnv(t, "OUTBOX_RETRY_INTERVAL_MINUTES", "7")
	setEnv(t, "OUTBOX_BATCH_SIZE", "99")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if cfg.App.ServiceName != "orders-test" {
		t.Fatalf("unexpected app service name: %s", cfg.App.ServiceName)
	}
	if cfg.HTTP.Port != "8181" {
		t.Fatalf("unexpected http port: %s", cfg.HTTP.Port)
	}
	if cfg.MySQL.MaxOpenConns != 20 || cfg.MySQL.MaxIdleConns != 8 {
		t.Fatalf("unexpected mysql pool config: %+v", cfg.MySQL)
	}
	if cfg.MySQL.ConnMaxLifetime != 40*time.Minute {
		t.Fatalf("unexpected mysql lifetime: %v", cfg.MySQL.ConnMaxLifetime)
	}
	if cfg.Orders.DisputeWindow != 48*time.Hour {
		t.Fatalf("unexpected dispute window: %v", cfg.Orders.DisputeWindow)
	}
	if cfg.Orders.ReservationWindow != 120*time.Hour {
		t.Fatalf("unexpected reservation window: %v", cfg.Orders.ReservationWindow)
	}
	if cfg.Orders.PlatformFeePercent != 0.1 {
		t.Fatalf("unexpected fee percent: %v", cfg.Orders.PlatformFeePercent)
	}
	if len(cfg.Compliance.RestrictedCategories) != 2 || cfg.Compliance.RestrictedCategories[0] != "firearms" {
		t.Fatalf("unexpected restricted categories: %+v", cfg.Compliance.RestrictedCategories)
	}
	if cfg.Compliance.AllowedRegion != "CA" {
		t.Fatalf("unexpected allowed region: %s", cfg.Compliance.AllowedRegion)
	}
	if cfg.Outbox.MaxAttempts != 5 || cfg.Outbox.BatchSize != 99 {
		t.Fatalf("unexpected outbox config: %+v", cfg.Outbox)
	}
	if cfg.Outbox.RetryInterval != 7*time.Minute {
		t.Fatalf("unexpected outbox retry interval: %v", cfg.Outbox.RetryInterval)
	}
	if cfg.Provider.Name != "stripe" {
		t.Fatalf("unexpected provider name: %s", cfg.Provider.Name)
	}
}
