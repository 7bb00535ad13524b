// Пакет config — загрузка и валидация конфигурации Storage Gateway
// из переменных окружения.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Допустимые бэкенды хранилища метаданных.
const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// Config содержит все параметры конфигурации Storage Gateway.
type Config struct {
	// --- Сервер ---

	// Порт HTTP-сервера
	Port int
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string
	// Публичный базовый URL сервиса (для callback_url в ответном конверте)
	PublicURL string
	// Разрешённые CORS origins
	CORSAllowedOrigins []string
	// Лимит запросов к /api/v1 с одного IP в минуту (0 — без лимита)
	RateLimitPerMinute int

	// --- Хранилище ---

	// Бэкенд хранилища: postgres или memory
	Store string
	// Хост PostgreSQL
	DBHost string
	// Порт PostgreSQL
	DBPort int
	// Имя базы данных
	DBName string
	// Имя пользователя PostgreSQL
	DBUser string
	// Пароль пользователя PostgreSQL
	DBPassword string
	// Режим SSL: disable, require, verify-ca, verify-full
	DBSSLMode string
	// Максимальный размер пула соединений
	DBMaxConns int
	// JSON с начальными данными для SG_STORE=memory (необязательный)
	MemorySeedFile string

	// --- Аутентификация вызывающих ---

	// URL JWKS endpoint IdP (пустой — bearer-токены отклоняются)
	JWTJWKSURL string
	// Ожидаемый issuer bearer-токенов
	JWTIssuer string
	// Допустимое расхождение часов при проверке exp/nbf
	JWTLeeway time.Duration
	// Интервал обновления JWKS
	JWKSRefreshInterval time.Duration
	// Таймаут HTTP-клиента JWKS
	JWKSClientTimeout time.Duration
	// Секрет шифрования session cookie
	SessionSecret string
	// Домен синтетического контактного адреса (<id>@domain)
	ContactDomain string

	// --- Конверты ---

	// Секрет подписи JWS
	EnvelopeSigningSecret string
	// Парольная фраза для вывода ключа шифрования
	EnvelopePassphrase string
	// Соль для вывода ключа шифрования
	EnvelopeSalt string
	// Время жизни ответного конверта
	EnvelopeTTL time.Duration

	// --- osfstorage ---

	// Имя сервиса хранения бинарных данных osfstorage
	OSFStorageService string
	// Регион/бакет по умолчанию
	OSFStorageRegion string
	// Учётные данные исполнительного слоя для osfstorage
	OSFStorageCredentials string

	// --- Побочные эффекты ---

	// URL webhook уведомлений (пустой — уведомления только в лог)
	NotifyWebhookURL string
	// URL webhook аналитики (пустой — только счётчики Prometheus)
	AnalyticsWebhookURL string
	// Таймаут асинхронных обработчиков событий
	EventTimeout time.Duration

	// --- Кэш пользователей ---

	// Максимальное количество записей в кэше
	UserCacheSize int
	// TTL записи кэша
	UserCacheTTL time.Duration

	// --- topologymetrics ---

	// Группа зависимостей dephealth
	DephealthGroup string
	// Интервал проверки зависимостей
	DephealthCheckInterval time.Duration

	// --- Graceful shutdown ---

	// Таймаут graceful shutdown HTTP-сервера
	ShutdownTimeout time.Duration
}

// Load загружает конфигурацию из переменных окружения, валидирует
// обязательные поля и возвращает Config или ошибку.
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	// --- Сервер ---

	// SG_PORT — порт HTTP-сервера (по умолчанию 8040)
	cfg.Port, err = getEnvInt("SG_PORT", 8040)
	if err != nil {
		return nil, fmt.Errorf("SG_PORT: %w", err)
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("SG_PORT: значение %d вне допустимого диапазона 1-65535", cfg.Port)
	}

	// SG_LOG_LEVEL — уровень логирования (по умолчанию info)
	cfg.LogLevel, err = parseLogLevel(getEnvDefault("SG_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("SG_LOG_LEVEL: %w", err)
	}

	// SG_LOG_FORMAT — формат логов (по умолчанию json)
	cfg.LogFormat = getEnvDefault("SG_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("SG_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", cfg.LogFormat)
	}

	cfg.PublicURL = strings.TrimRight(
		getEnvDefault("SG_PUBLIC_URL", fmt.Sprintf("http://localhost:%d", cfg.Port)), "/")
	cfg.CORSAllowedOrigins = parseCSV(getEnvDefault("SG_CORS_ALLOWED_ORIGINS", ""))

	cfg.RateLimitPerMinute, err = getEnvInt("SG_RATE_LIMIT_PER_MINUTE", 0)
	if err != nil {
		return nil, fmt.Errorf("SG_RATE_LIMIT_PER_MINUTE: %w", err)
	}
	if cfg.RateLimitPerMinute < 0 {
		return nil, fmt.Errorf("SG_RATE_LIMIT_PER_MINUTE: отрицательное значение %d", cfg.RateLimitPerMinute)
	}

	// --- Хранилище ---

	cfg.Store = getEnvDefault("SG_STORE", StorePostgres)
	switch cfg.Store {
	case StorePostgres:
		if err := loadDatabase(cfg); err != nil {
			return nil, err
		}
	case StoreMemory:
		cfg.MemorySeedFile = getEnvDefault("SG_MEMORY_SEED_FILE", "")
	default:
		return nil, fmt.Errorf("SG_STORE: недопустимое значение %q, допустимые: postgres, memory", cfg.Store)
	}

	// --- Аутентификация вызывающих ---

	cfg.JWTJWKSURL = getEnvDefault("SG_JWT_JWKS_URL", "")
	cfg.JWTIssuer = getEnvDefault("SG_JWT_ISSUER", "")

	cfg.JWTLeeway, err = getEnvDuration("SG_JWT_LEEWAY", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("SG_JWT_LEEWAY: %w", err)
	}

	cfg.JWKSRefreshInterval, err = getEnvDuration("SG_JWKS_REFRESH_INTERVAL", 15*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("SG_JWKS_REFRESH_INTERVAL: %w", err)
	}

	cfg.JWKSClientTimeout, err = getEnvDuration("SG_JWKS_CLIENT_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("SG_JWKS_CLIENT_TIMEOUT: %w", err)
	}

	// SG_SESSION_SECRET — обязательный
	cfg.SessionSecret, err = getEnvRequired("SG_SESSION_SECRET")
	if err != nil {
		return nil, err
	}

	cfg.ContactDomain = getEnvDefault("SG_CONTACT_DOMAIN", "users.storage-gateway.local")

	// --- Конверты ---

	// SG_ENVELOPE_SIGNING_SECRET — обязательный
	cfg.EnvelopeSigningSecret, err = getEnvRequired("SG_ENVELOPE_SIGNING_SECRET")
	if err != nil {
		return nil, err
	}

	// SG_ENVELOPE_PASSPHRASE — обязательный
	cfg.EnvelopePassphrase, err = getEnvRequired("SG_ENVELOPE_PASSPHRASE")
	if err != nil {
		return nil, err
	}

	// SG_ENVELOPE_SALT — обязательный
	cfg.EnvelopeSalt, err = getEnvRequired("SG_ENVELOPE_SALT")
	if err != nil {
		return nil, err
	}

	// SG_ENVELOPE_TTL — время жизни ответного конверта (по умолчанию 15s)
	cfg.EnvelopeTTL, err = getEnvDuration("SG_ENVELOPE_TTL", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("SG_ENVELOPE_TTL: %w", err)
	}
	if cfg.EnvelopeTTL <= 0 {
		return nil, fmt.Errorf("SG_ENVELOPE_TTL: значение должно быть положительным, получено %s", cfg.EnvelopeTTL)
	}

	// --- osfstorage ---

	cfg.OSFStorageService = getEnvDefault("SG_OSFSTORAGE_SERVICE", "filesystem")
	cfg.OSFStorageRegion = getEnvDefault("SG_OSFSTORAGE_REGION", "default")
	cfg.OSFStorageCredentials = getEnvDefault("SG_OSFSTORAGE_CREDENTIALS", "{}")

	// --- Побочные эффекты ---

	cfg.NotifyWebhookURL = getEnvDefault("SG_NOTIFY_WEBHOOK_URL", "")
	cfg.AnalyticsWebhookURL = getEnvDefault("SG_ANALYTICS_WEBHOOK_URL", "")

	cfg.EventTimeout, err = getEnvDuration("SG_EVENT_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("SG_EVENT_TIMEOUT: %w", err)
	}

	// --- Кэш пользователей ---

	cfg.UserCacheSize, err = getEnvInt("SG_USER_CACHE_SIZE", 10000)
	if err != nil {
		return nil, fmt.Errorf("SG_USER_CACHE_SIZE: %w", err)
	}
	if cfg.UserCacheSize < 1 {
		return nil, fmt.Errorf("SG_USER_CACHE_SIZE: значение %d должно быть не меньше 1", cfg.UserCacheSize)
	}

	cfg.UserCacheTTL, err = getEnvDuration("SG_USER_CACHE_TTL", time.Minute)
	if err != nil {
		return nil, fmt.Errorf("SG_USER_CACHE_TTL: %w", err)
	}

	// --- topologymetrics ---

	cfg.DephealthGroup = getEnvDefault("SG_DEPHEALTH_GROUP", "storage-gateway")

	cfg.DephealthCheckInterval, err = getEnvDuration("SG_DEPHEALTH_CHECK_INTERVAL", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("SG_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}

	// --- Graceful shutdown ---

	cfg.ShutdownTimeout, err = getEnvDuration("SG_SHUTDOWN_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("SG_SHUTDOWN_TIMEOUT: %w", err)
	}

	return cfg, nil
}

// loadDatabase читает параметры PostgreSQL (только для SG_STORE=postgres).
func loadDatabase(cfg *Config) error {
	var err error

	cfg.DBHost, err = getEnvRequired("SG_DB_HOST")
	if err != nil {
		return err
	}

	cfg.DBPort, err = getEnvInt("SG_DB_PORT", 5432)
	if err != nil {
		return fmt.Errorf("SG_DB_PORT: %w", err)
	}

	cfg.DBName, err = getEnvRequired("SG_DB_NAME")
	if err != nil {
		return err
	}

	cfg.DBUser, err = getEnvRequired("SG_DB_USER")
	if err != nil {
		return err
	}

	cfg.DBPassword, err = getEnvRequired("SG_DB_PASSWORD")
	if err != nil {
		return err
	}

	cfg.DBMaxConns, err = getEnvInt("SG_DB_MAX_CONNS", 10)
	if err != nil {
		return fmt.Errorf("SG_DB_MAX_CONNS: %w", err)
	}
	if cfg.DBMaxConns < 1 || cfg.DBMaxConns > 1000 {
		return fmt.Errorf("SG_DB_MAX_CONNS: значение %d вне допустимого диапазона 1-1000", cfg.DBMaxConns)
	}

	cfg.DBSSLMode = getEnvDefault("SG_DB_SSL_MODE", "disable")
	validSSLModes := map[string]bool{
		"disable": true, "require": true, "verify-ca": true, "verify-full": true,
	}
	if !validSSLModes[cfg.DBSSLMode] {
		return fmt.Errorf("SG_DB_SSL_MODE: недопустимое значение %q, допустимые: disable, require, verify-ca, verify-full", cfg.DBSSLMode)
	}
	return nil
}

// DatabaseDSN возвращает строку подключения к PostgreSQL.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBName, c.DBUser, c.DBPassword, c.DBSSLMode,
	)
}

// DatabaseURL возвращает URL PostgreSQL без учётных данных (для лейблов метрик).
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%d/%s", c.DBHost, c.DBPort, c.DBName)
}

// CallbackURL возвращает адрес, на который исполнительный слой отправляет
// отчёт о завершённой операции для ресурса resourceID.
func (c *Config) CallbackURL(resourceID string) string {
	return fmt.Sprintf("%s/api/v1/resources/%s/waterbutler/logs", c.PublicURL, resourceID)
}

// SetupLogger настраивает глобальный slog-логгер на основе конфигурации.
func SetupLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// --- Вспомогательные функции ---

func getEnvRequired(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("%s: обязательная переменная окружения не задана", key)
	}
	return val, nil
}

func getEnvDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 1h, 15m)", val)
	}
	return d, nil
}

// parseLogLevel преобразует строку уровня логирования в slog.Level.
func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("недопустимый уровень %q, допустимые: debug, info, warn, error", level)
	}
}

// parseCSV разбирает строку, разделённую запятыми, на срез строк.
func parseCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
