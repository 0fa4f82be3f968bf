// logs.go: журнал действий пользователей (только superadmin).
package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/bigkaa/paneldot/internal/service"
	"github.com/bigkaa/paneldot/internal/ui/auth"
	uimiddleware "github.com/bigkaa/paneldot/internal/ui/middleware"
	"github.com/bigkaa/paneldot/internal/ui/pages"
)

// LogsHandler: страница журнала аудита.
type LogsHandler struct {
	renderer
	logs *service.ActionLogService
}

// NewLogsHandler создаёт новый LogsHandler.
func NewLogsHandler(logs *service.ActionLogService, sessions *auth.SessionManager, logger *slog.Logger) *LogsHandler {
	return &LogsHandler{
		renderer: renderer{sessions: sessions, logger: logger.With(slog.String("component", "ui.logs"))},
		logs:     logs,
	}
}

// HandleLogs обрабатывает GET /logs?q=: последние записи или поиск.
func (h *LogsHandler) HandleLogs(w http.ResponseWriter, r *http.Request) {
	state := uimiddleware.StateFromContext(r.Context())
	query := strings.TrimSpace(r.URL.Query().Get("q"))

	data := pages.LogsData{Query: query}
	status := http.StatusOK
	var flash *pages.Flash

	logs, err := h.logs.Search(r.Context(), state, query)
	if err != nil {
		h.logger.Error("Ошибка загрузки журнала",
			slog.String("query", query),
			slog.String("error", err.Error()),
		)
		flash = &pages.Flash{Kind: pages.FlashError, Message: userMessage(err)}
		status = http.StatusInternalServerError
		if errors.Is(err, service.ErrForbidden) {
			status = http.StatusForbidden
		}
	}
	data.Logs = logs

	h.render(w, r, status, "Logs d'Actions", flash, pages.Logs(data))
}
