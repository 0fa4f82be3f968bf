// Точка входа Panel DOT: панель параметров налогообложения.
// Загружает конфигурацию, открывает хранилище (PostgreSQL или локальный файл),
// создаёт сервисный слой, вход через Discord и API-токены,
// запускает мониторинг зависимостей и HTTP-сервер с graceful shutdown.
package main

import (
	"context"
	"database/sql"
	"encoding/base64"
	"log/slog"
	"os"

	"github.com/bigkaa/paneldot/internal/api/handlers"
	"github.com/bigkaa/paneldot/internal/api/middleware"
	"github.com/bigkaa/paneldot/internal/api/openapi"
	"github.com/bigkaa/paneldot/internal/config"
	"github.com/bigkaa/paneldot/internal/database"
	"github.com/bigkaa/paneldot/internal/events"
	"github.com/bigkaa/paneldot/internal/repository"
	"github.com/bigkaa/paneldot/internal/repository/filestore"
	"github.com/bigkaa/paneldot/internal/server"
	"github.com/bigkaa/paneldot/internal/service"
	"github.com/bigkaa/paneldot/internal/ui/auth"
	uihandlers "github.com/bigkaa/paneldot/internal/ui/handlers"
	uimiddleware "github.com/bigkaa/paneldot/internal/ui/middleware"
)

func main() {
	if err := run(); err != nil {
		slog.Error("Panel DOT остановлен с ошибкой", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run() error {
	// 1. Конфигурация из переменных окружения (и .env)
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// 2. Логирование
	logger := config.SetupLogger(cfg)
	logger.Info("Panel DOT запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
		slog.String("storage", cfg.StorageBackend),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 3. Хранилище
	var (
		store       *repository.Store
		pgDB        *sql.DB
		postgresURL string
	)
	switch cfg.StorageBackend {
	case config.BackendPostgres:
		logger.Info("Применение миграций БД...")
		if err := database.Migrate(cfg, logger); err != nil {
			return err
		}
		pool, err := database.Connect(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer pool.Close()

		// *sql.DB поверх пула: topologymetrics проверяет тот же пул соединений
		pgDB = database.SQLDB(pool)
		defer pgDB.Close()

		store = repository.NewPostgresStore(pool, database.NewReadinessChecker(pool))
		postgresURL = cfg.DatabaseURL()
	default:
		db, err := filestore.Open(cfg.LocalStorePath, logger)
		if err != nil {
			return err
		}
		defer db.Close()
		store = db.Store()
		logger.Info("Локальное хранилище открыто", slog.String("path", cfg.LocalStorePath))
	}

	// 4. Публикация событий аудита
	var publisher events.Publisher = events.NewNoopPublisher()
	if cfg.NATSURL != "" {
		natsPub, err := events.NewNATSPublisher(cfg.NATSURL, cfg.NATSSubject, logger)
		if err != nil {
			logger.Warn("NATS недоступен, события аудита не публикуются",
				slog.String("error", err.Error()),
			)
		} else {
			publisher = natsPub
		}
	}
	defer publisher.Close()

	// 5. Сервисы
	users := service.NewCachedUserRepository(store.Users, cfg.UserCacheSize, cfg.UserCacheTTL)
	audit := service.NewAuditor(store.ActionLogs, publisher, logger)
	paramsSvc := service.NewParametrageService(store.Parametrage, audit, logger)
	discordSvc := service.NewDiscordSettingsService(store.DiscordSettings, audit, logger)
	logsSvc := service.NewActionLogService(store.ActionLogs)
	resolver := service.NewAuthResolver(
		users, audit,
		cfg.SuperAdminDiscordID, cfg.DefaultEnterpriseID,
		cfg.AuthCheckTimeout,
		logger,
	)

	// 6. Сессии и API-токены на одном ключе
	key, err := auth.DeriveKey(cfg.SessionSecret)
	if err != nil {
		return err
	}
	if cfg.SessionSecret == "" {
		logger.Warn("PD_SESSION_SECRET не задан, сессии не сохраняются между рестартами")
	}
	sessions, err := auth.NewSessionManager(base64.StdEncoding.EncodeToString(key), cfg.SecureCookie)
	if err != nil {
		return err
	}
	tokenAuth := middleware.NewTokenAuth(key, cfg.APITokenTTL, users, logger)

	discordClient := auth.NewDiscordClient(auth.DiscordConfig{
		APIURL:       cfg.DiscordAPIURL,
		ClientID:     cfg.DiscordClientID,
		ClientSecret: cfg.DiscordClientSecret,
		Scopes:       cfg.DiscordScopes,
	})

	validator, err := middleware.NewOpenAPIValidator(openapi.Spec, logger)
	if err != nil {
		return err
	}

	// 7. topologymetrics: мониторинг PostgreSQL и Discord API
	var deps handlers.DependencyReporter
	dephealthSvc, err := service.NewDephealthService(service.DephealthConfig{
		ServiceID:     "panel-dot",
		Group:         cfg.DephealthGroup,
		DB:            pgDB,
		PostgresURL:   postgresURL,
		DiscordAPIURL: cfg.DiscordAPIURL,
		CheckInterval: cfg.DephealthCheckInterval,
	}, logger)
	if err != nil {
		logger.Warn("topologymetrics недоступен, запуск без мониторинга зависимостей",
			slog.String("error", err.Error()),
		)
	} else if err := dephealthSvc.Start(ctx); err != nil {
		logger.Warn("Ошибка запуска topologymetrics", slog.String("error", err.Error()))
	} else {
		defer dephealthSvc.Stop()
		deps = dephealthSvc
	}

	// 8. Обработчики и сервер
	health := handlers.NewHealthHandler(store.Ready, cfg.StorageBackend, deps)
	h := server.Handlers{
		API:         handlers.NewAPIHandler(health, tokenAuth, paramsSvc, discordSvc, logsSvc, logger),
		TokenAuth:   tokenAuth,
		Validator:   validator,
		UIAuth:      uimiddleware.NewUIAuth(sessions, discordClient, resolver, logger),
		Auth:        uihandlers.NewAuthHandler(discordClient, sessions, resolver, logger),
		Home:        uihandlers.NewHomeHandler(sessions, logger),
		Parametrage: uihandlers.NewParametrageHandler(paramsSvc, discordSvc, sessions, logger),
		Logs:        uihandlers.NewLogsHandler(logsSvc, sessions, logger),
	}

	srv := server.New(cfg.Port, cfg.ShutdownTimeout, logger, h)
	if err := srv.Run(ctx); err != nil {
		return err
	}

	logger.Info("Panel DOT остановлен")
	return nil
}
