// dephealth.go: мониторинг зависимостей через topologymetrics SDK.
//
// Panel DOT мониторит:
//   - PostgreSQL: SQL checker через существующий pgxpool (pool mode, critical),
//     только при бэкенде postgres;
//   - Discord API: HTTP checker (не critical, вход уже выполненных пользователей
//     от него не зависит).
//
// Метрики доступны на /metrics вместе с остальными Prometheus-метриками.
package service

import (
	"context"
	"database/sql"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/BigKAA/topologymetrics/sdk-go/dephealth"
	_ "github.com/BigKAA/topologymetrics/sdk-go/dephealth/checks/httpcheck" // HTTP checker для Discord API
	"github.com/BigKAA/topologymetrics/sdk-go/dephealth/checks/pgcheck"
	"github.com/prometheus/client_golang/prometheus"
)

// DephealthConfig: параметры мониторинга зависимостей.
type DephealthConfig struct {
	// ServiceID: имя вершины графа текущего приложения
	ServiceID string
	Group     string
	// DB: *sql.DB поверх pgxpool; nil отключает проверку PostgreSQL
	DB *sql.DB
	// PostgresURL: URL PostgreSQL для лейблов (не для подключения)
	PostgresURL string
	// DiscordAPIURL: базовый URL Discord API
	DiscordAPIURL string
	CheckInterval time.Duration
	// Registerer: пусто означает глобальный Prometheus registry
	Registerer prometheus.Registerer
}

// DephealthService: сервис мониторинга зависимостей через topologymetrics.
type DephealthService struct {
	dh     *dephealth.DepHealth
	deps   []string
	logger *slog.Logger
}

// NewDephealthService создаёт сервис мониторинга зависимостей.
func NewDephealthService(cfg DephealthConfig, logger *slog.Logger) (*DephealthService, error) {
	opts := []dephealth.Option{
		dephealth.WithLogger(logger),
		dephealth.HTTP("discord-api",
			dephealth.FromURL(cfg.DiscordAPIURL),
			dephealth.WithHTTPHealthPath(discordHealthPath(cfg.DiscordAPIURL)),
			dephealth.CheckInterval(cfg.CheckInterval),
			dephealth.Critical(false),
		),
	}
	deps := []string{"discord-api"}

	if cfg.DB != nil {
		opts = append(opts, dephealth.AddDependency("postgresql", dephealth.TypePostgres,
			pgcheck.New(pgcheck.WithDB(cfg.DB)),
			dephealth.FromURL(cfg.PostgresURL),
			dephealth.CheckInterval(cfg.CheckInterval),
			dephealth.Critical(true),
		))
		deps = append(deps, "postgresql")
	}
	if cfg.Registerer != nil {
		opts = append(opts, dephealth.WithRegisterer(cfg.Registerer))
	}

	dh, err := dephealth.New(cfg.ServiceID, cfg.Group, opts...)
	if err != nil {
		return nil, err
	}

	return &DephealthService{
		dh:     dh,
		deps:   deps,
		logger: logger.With(slog.String("component", "dephealth")),
	}, nil
}

// Start запускает периодическую проверку зависимостей.
func (ds *DephealthService) Start(ctx context.Context) error {
	ds.logger.Info("Мониторинг зависимостей запущен", slog.Any("dependencies", ds.deps))
	return ds.dh.Start(ctx)
}

// Stop останавливает мониторинг зависимостей.
func (ds *DephealthService) Stop() {
	ds.dh.Stop()
	ds.logger.Info("Мониторинг зависимостей остановлен")
}

// Health возвращает текущее состояние зависимостей.
// Ключ: имя зависимости, значение: true если ok.
func (ds *DephealthService) Health() map[string]bool {
	return ds.dh.Health()
}

// discordHealthPath: путь публичного endpoint Discord для HTTP-проверки.
// /gateway не требует авторизации и отвечает 200.
func discordHealthPath(apiURL string) string {
	parsed, err := url.Parse(apiURL)
	if err != nil {
		return "/gateway"
	}
	return strings.TrimRight(parsed.Path, "/") + "/gateway"
}
