package handlers

import (
	"log/slog"
	"net/http"

	"github.com/bigkaa/paneldot/internal/ui/auth"
	uimiddleware "github.com/bigkaa/paneldot/internal/ui/middleware"
	"github.com/bigkaa/paneldot/internal/ui/pages"
)

// HomeHandler: главная страница и страница 404.
type HomeHandler struct {
	renderer
}

// NewHomeHandler создаёт новый HomeHandler.
func NewHomeHandler(sessions *auth.SessionManager, logger *slog.Logger) *HomeHandler {
	return &HomeHandler{
		renderer: renderer{sessions: sessions, logger: logger.With(slog.String("component", "ui.home"))},
	}
}

// HandleHome обрабатывает GET /.
func (h *HomeHandler) HandleHome(w http.ResponseWriter, r *http.Request) {
	data := pages.LayoutData{State: uimiddleware.StateFromContext(r.Context())}
	h.render(w, r, http.StatusOK, "Accueil", nil, pages.Home(data))
}

// HandleNotFound отвечает 404 для неизвестных маршрутов.
func (h *HomeHandler) HandleNotFound(w http.ResponseWriter, r *http.Request) {
	h.logger.Debug("Маршрут не найден", slog.String("path", r.URL.Path))
	h.render(w, r, http.StatusNotFound, "Page introuvable", nil, pages.NotFound(r.URL.Path))
}
