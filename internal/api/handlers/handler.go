// handler.go: основной обработчик JSON API Panel DOT.
// Объединяет доменные обработчики и делегирует запросы в сервисный слой.
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/oapi-codegen/runtime"

	apierrors "github.com/bigkaa/paneldot/internal/api/errors"
	"github.com/bigkaa/paneldot/internal/api/middleware"
	"github.com/bigkaa/paneldot/internal/domain/model"
	"github.com/bigkaa/paneldot/internal/service"
)

// maxBodyBytes: предел размера JSON-тела запроса.
const maxBodyBytes = 1 << 20

// TokenIssuer выпускает API-токены.
type TokenIssuer interface {
	Issue(u *model.User) (token string, expiresAt time.Time, err error)
}

// APIHandler: основной обработчик API Panel DOT.
type APIHandler struct {
	health  *HealthHandler
	tokens  TokenIssuer
	params  *service.ParametrageService
	discord *service.DiscordSettingsService
	logs    *service.ActionLogService
	logger  *slog.Logger
}

// NewAPIHandler создаёт основной обработчик API.
func NewAPIHandler(
	health *HealthHandler,
	tokens TokenIssuer,
	params *service.ParametrageService,
	discord *service.DiscordSettingsService,
	logs *service.ActionLogService,
	logger *slog.Logger,
) *APIHandler {
	return &APIHandler{
		health:  health,
		tokens:  tokens,
		params:  params,
		discord: discord,
		logs:    logs,
		logger:  logger.With(slog.String("component", "api_handler")),
	}
}

// HealthLive: liveness probe (делегируется в HealthHandler).
func (h *APIHandler) HealthLive(w http.ResponseWriter, r *http.Request) {
	h.health.HealthLive(w, r)
}

// HealthReady: readiness probe (делегируется в HealthHandler).
func (h *APIHandler) HealthReady(w http.ResponseWriter, r *http.Request) {
	h.health.HealthReady(w, r)
}

// GetMetrics: Prometheus метрики (делегируется в HealthHandler).
func (h *APIHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	h.health.GetMetrics(w, r)
}

// --- Вспомогательные функции ---

// writeJSON записывает JSON-ответ с указанным статусом.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// fail отвечает ошибкой сервисного слоя; неизвестные ошибки логируются.
func (h *APIHandler) fail(w http.ResponseWriter, r *http.Request, msg string, err error) {
	if apierrors.FromService(w, err) {
		return
	}
	h.logger.Error(msg,
		"path", r.URL.Path,
		"user_id", middleware.StateFromContext(r.Context()).UserID(),
		"error", err,
	)
}

// decodeJSON читает тело строго: неизвестные поля и мусор после объекта отклоняются.
// Пустое тело при allowEmpty не считается ошибкой.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any, allowEmpty bool) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if allowEmpty && errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("некорректный JSON: %w", err)
	}
	if dec.More() {
		return errors.New("некорректный JSON: лишние данные после объекта")
	}
	return nil
}

// enterpriseParam читает необязательный параметр enterprise.
func enterpriseParam(r *http.Request) (string, error) {
	var enterprise *string
	if err := runtime.BindQueryParameter("form", true, false, "enterprise", r.URL.Query(), &enterprise); err != nil {
		return "", err
	}
	if enterprise == nil {
		return "", nil
	}
	return *enterprise, nil
}

// paginationDefaults нормализует параметры пагинации.
// Возвращает корректные limit и offset.
func paginationDefaults(limit *int, offset *int) (int, int) {
	l := service.DefaultLogLimit
	o := 0

	if limit != nil {
		l = *limit
		if l < 1 {
			l = 1
		}
		if l > service.MaxLogLimit {
			l = service.MaxLogLimit
		}
	}

	if offset != nil {
		o = *offset
		if o < 0 {
			o = 0
		}
	}

	return l, o
}
