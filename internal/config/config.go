// Пакет config: загрузка и валидация конфигурации Panel DOT
// из переменных окружения (и необязательного файла .env).
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Допустимые бэкенды хранилища.
const (
	BackendPostgres = "postgres"
	BackendLocal    = "local"
)

// Config содержит все параметры конфигурации Panel DOT.
type Config struct {
	// --- Сервер ---

	// Порт HTTP-сервера
	Port int
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string

	// --- Хранилище ---

	// Бэкенд хранилища: postgres или local
	StorageBackend string
	// Путь к JSON-файлу локального хранилища
	LocalStorePath string

	// --- PostgreSQL ---

	DBHost     string
	DBPort     int
	DBName     string
	DBUser     string
	DBPassword string
	// Режим SSL: disable, require, verify-ca, verify-full
	DBSSLMode string

	// --- Discord OAuth2 ---

	// Client ID приложения Discord
	DiscordClientID string
	// Client Secret приложения Discord
	DiscordClientSecret string
	// Базовый URL Discord API (OAuth2 + REST)
	DiscordAPIURL string
	// Запрашиваемые scopes (через пробел)
	DiscordScopes string

	// --- Сессии ---

	// Ключ шифрования cookie и подписи API-токенов
	SessionSecret string
	// Secure flag для cookie
	SecureCookie bool
	// Время жизни API bearer-токенов
	APITokenTTL time.Duration

	// --- Провижининг пользователей ---

	// Discord ID, получающий флаг superadmin при первом входе
	SuperAdminDiscordID string
	// Предприятие по умолчанию для новых пользователей
	DefaultEnterpriseID string
	// Ограничение ожидания начальной проверки сессии
	AuthCheckTimeout time.Duration
	// Размер и TTL кэша пользователей
	UserCacheSize int
	UserCacheTTL  time.Duration

	// --- NATS (необязательно) ---

	// URL NATS; пустой: публикация аудита отключена
	NATSURL string
	// Subject для событий аудита
	NATSSubject string

	// --- Мониторинг зависимостей ---

	DephealthGroup         string
	DephealthCheckInterval time.Duration

	// Таймаут graceful shutdown HTTP-сервера
	ShutdownTimeout time.Duration
}

// Load загружает конфигурацию из переменных окружения, валидирует
// обязательные поля и возвращает Config или ошибку.
// Файл .env в рабочем каталоге подхватывается, если существует;
// уже заданные переменные окружения им не перезаписываются.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf(".env: %w", err)
	}

	cfg := &Config{}
	var err error

	// --- Сервер ---

	cfg.Port, err = getEnvInt("PD_PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("PD_PORT: %w", err)
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("PD_PORT: значение %d вне допустимого диапазона 1-65535", cfg.Port)
	}

	cfg.LogLevel, err = parseLogLevel(getEnvDefault("PD_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("PD_LOG_LEVEL: %w", err)
	}

	cfg.LogFormat = getEnvDefault("PD_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("PD_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", cfg.LogFormat)
	}

	// --- Хранилище ---

	cfg.StorageBackend = getEnvDefault("PD_STORAGE_BACKEND", BackendPostgres)
	if cfg.StorageBackend != BackendPostgres && cfg.StorageBackend != BackendLocal {
		return nil, fmt.Errorf("PD_STORAGE_BACKEND: недопустимое значение %q, допустимые: postgres, local", cfg.StorageBackend)
	}
	cfg.LocalStorePath = getEnvDefault("PD_LOCAL_STORE_PATH", "data/panel-dot.json")

	// --- PostgreSQL (обязателен только для бэкенда postgres) ---

	if cfg.StorageBackend == BackendPostgres {
		if cfg.DBHost, err = getEnvRequired("PD_DB_HOST"); err != nil {
			return nil, err
		}
		if cfg.DBName, err = getEnvRequired("PD_DB_NAME"); err != nil {
			return nil, err
		}
		if cfg.DBUser, err = getEnvRequired("PD_DB_USER"); err != nil {
			return nil, err
		}
		if cfg.DBPassword, err = getEnvRequired("PD_DB_PASSWORD"); err != nil {
			return nil, err
		}
	}

	cfg.DBPort, err = getEnvInt("PD_DB_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("PD_DB_PORT: %w", err)
	}

	cfg.DBSSLMode = getEnvDefault("PD_DB_SSL_MODE", "disable")
	validSSLModes := map[string]bool{
		"disable": true, "require": true, "verify-ca": true, "verify-full": true,
	}
	if !validSSLModes[cfg.DBSSLMode] {
		return nil, fmt.Errorf("PD_DB_SSL_MODE: недопустимое значение %q, допустимые: disable, require, verify-ca, verify-full", cfg.DBSSLMode)
	}

	// --- Discord ---

	if cfg.DiscordClientID, err = getEnvRequired("PD_DISCORD_CLIENT_ID"); err != nil {
		return nil, err
	}
	if cfg.DiscordClientSecret, err = getEnvRequired("PD_DISCORD_CLIENT_SECRET"); err != nil {
		return nil, err
	}
	cfg.DiscordAPIURL = strings.TrimRight(getEnvDefault("PD_DISCORD_API_URL", "https://discord.com/api"), "/")
	if _, err := url.ParseRequestURI(cfg.DiscordAPIURL); err != nil {
		return nil, fmt.Errorf("PD_DISCORD_API_URL: некорректный URL %q", cfg.DiscordAPIURL)
	}
	cfg.DiscordScopes = getEnvDefault("PD_DISCORD_SCOPES", "identify guilds")

	// --- Сессии ---

	cfg.SessionSecret = getEnvDefault("PD_SESSION_SECRET", "")
	cfg.SecureCookie, err = getEnvBool("PD_SECURE_COOKIE", false)
	if err != nil {
		return nil, fmt.Errorf("PD_SECURE_COOKIE: %w", err)
	}
	cfg.APITokenTTL, err = getEnvDuration("PD_API_TOKEN_TTL", time.Hour)
	if err != nil {
		return nil, fmt.Errorf("PD_API_TOKEN_TTL: %w", err)
	}

	// --- Провижининг ---

	cfg.SuperAdminDiscordID = getEnvDefault("PD_SUPERADMIN_DISCORD_ID", "462716512252329996")
	cfg.DefaultEnterpriseID = getEnvDefault("PD_DEFAULT_ENTERPRISE_ID", "default")

	cfg.AuthCheckTimeout, err = getEnvDuration("PD_AUTH_CHECK_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("PD_AUTH_CHECK_TIMEOUT: %w", err)
	}
	if cfg.AuthCheckTimeout <= 0 {
		return nil, fmt.Errorf("PD_AUTH_CHECK_TIMEOUT: значение должно быть положительным")
	}

	cfg.UserCacheSize, err = getEnvInt("PD_USER_CACHE_SIZE", 1024)
	if err != nil {
		return nil, fmt.Errorf("PD_USER_CACHE_SIZE: %w", err)
	}
	if cfg.UserCacheSize < 1 {
		return nil, fmt.Errorf("PD_USER_CACHE_SIZE: значение %d должно быть >= 1", cfg.UserCacheSize)
	}
	cfg.UserCacheTTL, err = getEnvDuration("PD_USER_CACHE_TTL", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("PD_USER_CACHE_TTL: %w", err)
	}

	// --- NATS ---

	cfg.NATSURL = getEnvDefault("PD_NATS_URL", "")
	cfg.NATSSubject = getEnvDefault("PD_NATS_SUBJECT", "paneldot.audit")

	// --- Мониторинг ---

	cfg.DephealthGroup = getEnvDefault("PD_DEPHEALTH_GROUP", "paneldot")
	cfg.DephealthCheckInterval, err = getEnvDuration("PD_DEPHEALTH_CHECK_INTERVAL", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("PD_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}

	cfg.ShutdownTimeout, err = getEnvDuration("PD_SHUTDOWN_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("PD_SHUTDOWN_TIMEOUT: %w", err)
	}

	return cfg, nil
}

// DatabaseDSN возвращает строку подключения к PostgreSQL для pgxpool.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBName, c.DBUser, c.DBPassword, c.DBSSLMode,
	)
}

// DatabaseURL возвращает URL подключения к PostgreSQL (для лейблов dephealth).
func (c *Config) DatabaseURL() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.DBUser, c.DBPassword),
		Host:     fmt.Sprintf("%s:%d", c.DBHost, c.DBPort),
		Path:     "/" + c.DBName,
		RawQuery: "sslmode=" + c.DBSSLMode,
	}
	return u.String()
}

// MigrateURL возвращает URL в формате драйвера pgx5 для golang-migrate.
func (c *Config) MigrateURL() string {
	u := url.URL{
		Scheme:   "pgx5",
		User:     url.UserPassword(c.DBUser, c.DBPassword),
		Host:     fmt.Sprintf("%s:%d", c.DBHost, c.DBPort),
		Path:     "/" + c.DBName,
		RawQuery: "sslmode=" + c.DBSSLMode,
	}
	return u.String()
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

// getEnvRequired возвращает значение переменной окружения или ошибку, если она не задана.
func getEnvRequired(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("%s: обязательная переменная окружения не задана", key)
	}
	return val, nil
}

// getEnvDefault возвращает значение переменной окружения или значение по умолчанию.
func getEnvDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

// getEnvInt возвращает целочисленное значение переменной окружения или значение по умолчанию.
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

// getEnvBool возвращает булево значение переменной окружения или значение по умолчанию.
func getEnvBool(key string, defaultVal bool) (bool, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("некорректное булево значение: %q", val)
	}
	return b, nil
}

// getEnvDuration возвращает time.Duration из переменной окружения или значение по умолчанию.
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
