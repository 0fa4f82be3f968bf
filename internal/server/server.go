// Пакет server: HTTP-сервер Panel DOT с graceful shutdown.
// Без TLS: HTTP за reverse proxy, TLS termination на входе.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	apierrors "github.com/bigkaa/paneldot/internal/api/errors"
	"github.com/bigkaa/paneldot/internal/api/handlers"
	"github.com/bigkaa/paneldot/internal/api/middleware"
	uihandlers "github.com/bigkaa/paneldot/internal/ui/handlers"
	uimiddleware "github.com/bigkaa/paneldot/internal/ui/middleware"
	"github.com/bigkaa/paneldot/internal/ui/static"
)

// Handlers: обработчики и middleware, из которых собирается роутер.
type Handlers struct {
	API         *handlers.APIHandler
	TokenAuth   *middleware.TokenAuth
	Validator   *middleware.OpenAPIValidator
	UIAuth      *uimiddleware.UIAuth
	Auth        *uihandlers.AuthHandler
	Home        *uihandlers.HomeHandler
	Parametrage *uihandlers.ParametrageHandler
	Logs        *uihandlers.LogsHandler
}

// Server: HTTP-сервер Panel DOT.
type Server struct {
	httpServer      *http.Server
	logger          *slog.Logger
	shutdownTimeout time.Duration
}

// New создаёт новый HTTP-сервер с настроенными routes и middleware.
func New(port int, shutdownTimeout time.Duration, logger *slog.Logger, h Handlers) *Server {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           NewRouter(logger, h),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	return &Server{
		httpServer:      srv,
		logger:          logger.With(slog.String("component", "server")),
		shutdownTimeout: shutdownTimeout,
	}
}

// NewRouter собирает маршруты панели, JSON API и служебных endpoints.
func NewRouter(logger *slog.Logger, h Handlers) http.Handler {
	router := chi.NewRouter()

	// Глобальные middleware (применяются ко ВСЕМ маршрутам)
	router.Use(chimw.RealIP)
	router.Use(chimw.Recoverer)
	router.Use(middleware.MetricsMiddleware())
	router.Use(middleware.RequestLogger(logger))

	// Служебные endpoints без аутентификации
	router.Get("/health/live", h.API.HealthLive)
	router.Get("/health/ready", h.API.HealthReady)
	router.Get("/metrics", h.API.GetMetrics)
	router.Handle("/static/*", http.StripPrefix("/static", http.FileServer(static.FileSystem())))

	// JSON API
	router.Route("/api/v1", func(r chi.Router) {
		r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
			apierrors.NotFound(w, "Маршрут не найден")
		})
		r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
			apierrors.WriteError(w, http.StatusMethodNotAllowed, apierrors.CodeValidationError,
				"Метод "+r.Method+" не поддерживается")
		})

		// Выпуск токена по cookie-сессии панели
		r.With(h.UIAuth.Middleware()).Post("/auth/token", h.API.IssueToken)

		r.Group(func(r chi.Router) {
			r.Use(h.TokenAuth.Middleware())
			r.Use(h.Validator.Middleware())

			r.Get("/me", h.API.GetMe)
			r.Get("/parametrage", h.API.GetParametrage)
			r.Patch("/parametrage", h.API.UpdateParametrage)
			r.Get("/parametrage/versions", h.API.ListVersions)
			r.Post("/parametrage/versions", h.API.CreateVersion)
			r.Get("/parametrage/tax-preview", h.API.TaxPreview)
			r.Get("/discord-settings", h.API.GetDiscordSettings)
			r.Put("/discord-settings", h.API.UpdateDiscordSettings)
			r.Get("/action-logs", h.API.ListActionLogs)
		})
	})

	// Интерфейс панели: сессия восстанавливается на каждом запросе
	router.Group(func(r chi.Router) {
		r.Use(h.UIAuth.Middleware())

		r.With(uimiddleware.RedirectIfAuthenticated).Get(uimiddleware.LoginPath, h.Auth.HandleLoginPage)
		r.Get("/auth/login", h.Auth.HandleLogin)
		r.Get("/auth/callback", h.Auth.HandleCallback)
		r.Post("/auth/logout", h.Auth.HandleLogout)

		r.Group(func(r chi.Router) {
			r.Use(uimiddleware.RequireAuth)

			r.Get(uimiddleware.HomePath, h.Home.HandleHome)
			r.Get("/parametrage", h.Parametrage.HandlePage)
			r.Post("/parametrage", h.Parametrage.HandleUpdate)
			r.Post("/parametrage/brackets", h.Parametrage.HandleBrackets)
			r.Post("/parametrage/versions", h.Parametrage.HandleCreateVersion)
			r.Post("/parametrage/discord", h.Parametrage.HandleDiscord)
		})

		r.With(uimiddleware.RequireSuperAdmin).Get("/logs", h.Logs.HandleLogs)
	})

	// Страница 404 с шапкой вошедшего пользователя
	router.NotFound(h.UIAuth.Middleware()(http.HandlerFunc(h.Home.HandleNotFound)).ServeHTTP)

	return router
}

// Handler возвращает корневой HTTP-обработчик (для тестов).
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Run запускает сервер и ожидает сигнала завершения (SIGINT, SIGTERM)
// или отмены ctx. Затем выполняется graceful shutdown.
func (s *Server) Run(ctx context.Context) error {
	// Канал для ошибок сервера
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("HTTP-сервер запущен",
			slog.String("addr", s.httpServer.Addr),
		)

		err := s.httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Ожидание сигнала завершения
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case sig := <-quit:
		s.logger.Info("Получен сигнал завершения", slog.String("signal", sig.String()))
	case <-ctx.Done():
		s.logger.Info("Контекст отменён, остановка сервера")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("ошибка HTTP-сервера: %w", err)
		}
	}

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()

	s.logger.Info("Выполняется graceful shutdown...")
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("ошибка при graceful shutdown: %w", err)
	}

	s.logger.Info("HTTP-сервер остановлен")
	return nil
}
