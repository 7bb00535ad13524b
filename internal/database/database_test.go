package database

import (
	"context"
	"io"
	"log/slog"
	"net/url"
	"os"
	"testing"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/bigkaa/goartstore/storage-gateway/internal/config"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

// setupTestDB поднимает PostgreSQL в testcontainers и возвращает
// конфигурацию, указывающую на него.
func setupTestDB(t *testing.T) *config.Config {
	t.Helper()

	if os.Getenv("TEST_INTEGRATION") == "" {
		t.Skip("TEST_INTEGRATION не задана, интеграционный тест пропущен")
	}

	ctx := context.Background()
	container, err := postgres.Run(ctx, "docker.io/postgres:17-alpine",
		postgres.WithDatabase("gateway_test"),
		postgres.WithUsername("gateway"),
		postgres.WithPassword("test-password"),
		postgres.BasicWaitStrategies(),
	)
	testcontainers.CleanupContainer(t, container)
	if err != nil {
		t.Fatalf("PostgreSQL не запустился: %v", err)
	}

	dsn, err := container.ConnectionString(ctx)
	if err != nil {
		t.Fatalf("ConnectionString: %v", err)
	}
	u, err := url.Parse(dsn)
	if err != nil {
		t.Fatalf("DSN контейнера не разбирается: %v", err)
	}

	envs := map[string]string{
		"SG_DB_HOST":                 u.Hostname(),
		"SG_DB_PORT":                 u.Port(),
		"SG_DB_NAME":                 "gateway_test",
		"SG_DB_USER":                 "gateway",
		"SG_DB_PASSWORD":             "test-password",
		"SG_SESSION_SECRET":          "test",
		"SG_ENVELOPE_SIGNING_SECRET": "test",
		"SG_ENVELOPE_PASSPHRASE":     "test",
		"SG_ENVELOPE_SALT":           "test",
	}
	for k, v := range envs {
		t.Setenv(k, v)
	}

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("config.Load: %v", err)
	}
	return cfg
}

func TestMigrate(t *testing.T) {
	cfg := setupTestDB(t)
	logger := testLogger()

	if err := Migrate(cfg, logger); err != nil {
		t.Fatalf("Migrate() вернул ошибку: %v", err)
	}
	// Повторное применение — ErrNoChange, без ошибки
	if err := Migrate(cfg, logger); err != nil {
		t.Fatalf("Повторный Migrate() вернул ошибку: %v", err)
	}

	ctx := context.Background()
	pool, err := Connect(ctx, cfg, logger)
	if err != nil {
		t.Fatalf("Connect() вернул ошибку: %v", err)
	}
	defer pool.Close()

	tables := []string{
		"resources", "users", "resource_contributors", "provider_settings",
		"file_nodes", "file_versions", "audit_log", "resource_usage",
	}
	for _, table := range tables {
		var exists bool
		err := pool.QueryRow(ctx,
			`SELECT EXISTS (
				SELECT FROM information_schema.tables
				WHERE table_schema = 'public' AND table_name = $1
			)`, table).Scan(&exists)
		if err != nil {
			t.Fatalf("Ошибка проверки таблицы %s: %v", table, err)
		}
		if !exists {
			t.Errorf("Таблица %s не создана", table)
		}
	}

	checker := NewReadinessChecker(pool)
	if status, msg := checker.CheckReady(); status != "ok" {
		t.Errorf("CheckReady() = %q, %q; хотели ok", status, msg)
	}
}

func TestMigrationURL(t *testing.T) {
	cfg := &config.Config{
		DBHost: "db.internal", DBPort: 6432, DBName: "gateway",
		DBUser: "gw user", DBPassword: "p@ss:w/rd?", DBSSLMode: "require",
	}

	u, err := url.Parse(migrationURL(cfg))
	if err != nil {
		t.Fatalf("URL не разбирается: %v", err)
	}
	pass, _ := u.User.Password()
	if u.Scheme != "pgx5" || u.Host != "db.internal:6432" || u.Path != "/gateway" {
		t.Errorf("URL = %s", u)
	}
	if u.User.Username() != "gw user" || pass != "p@ss:w/rd?" {
		t.Errorf("учётные данные искажены: %q / %q", u.User.Username(), pass)
	}
	if u.Query().Get("sslmode") != "require" {
		t.Errorf("sslmode = %q", u.Query().Get("sslmode"))
	}
}
