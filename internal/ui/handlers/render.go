// Пакет handlers: HTTP-обработчики интерфейса панели.
// render.go: вывод страниц в общем макете и одноразовые уведомления.
package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/a-h/templ"

	"github.com/bigkaa/paneldot/internal/domain/tax"
	"github.com/bigkaa/paneldot/internal/service"
	"github.com/bigkaa/paneldot/internal/ui/auth"
	uimiddleware "github.com/bigkaa/paneldot/internal/ui/middleware"
	"github.com/bigkaa/paneldot/internal/ui/pages"
)

// Cookie одноразового уведомления.
const (
	flashCookieName   = "pd_flash"
	flashCookieMaxAge = 60
)

// renderer: общий вывод страниц для обработчиков.
type renderer struct {
	sessions *auth.SessionManager
	logger   *slog.Logger
}

// setFlash сохраняет уведомление для следующей страницы.
func (rd renderer) setFlash(w http.ResponseWriter, kind, message string) {
	err := rd.sessions.SetEncryptedCookie(w, flashCookieName, pages.Flash{Kind: kind, Message: message}, flashCookieMaxAge)
	if err != nil {
		rd.logger.Error("Ошибка установки flash cookie", slog.String("error", err.Error()))
	}
}

// popFlash читает и удаляет уведомление.
func (rd renderer) popFlash(w http.ResponseWriter, r *http.Request) *pages.Flash {
	var f pages.Flash
	if err := rd.sessions.ReadEncryptedCookie(r, flashCookieName, &f); err != nil {
		return nil
	}
	rd.sessions.ClearCookie(w, flashCookieName)
	return &f
}

// render выводит body в макете. flash, если задан, заменяет сохранённое уведомление.
func (rd renderer) render(w http.ResponseWriter, r *http.Request, status int, title string, flash *pages.Flash, body templ.Component) {
	if stored := rd.popFlash(w, r); flash == nil {
		flash = stored
	}

	data := pages.LayoutData{
		Title: title,
		State: uimiddleware.StateFromContext(r.Context()),
		Flash: flash,
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := pages.Layout(data, body).Render(r.Context(), w); err != nil {
		rd.logger.Error("Ошибка рендеринга страницы",
			slog.String("title", title),
			slog.String("error", err.Error()),
		)
	}
}

// userMessage переводит ошибку сервиса в сообщение для пользователя.
// Тексты нарушений проверки ступеней показываются как есть.
func userMessage(err error) string {
	var verr *tax.ValidationError
	switch {
	case errors.As(err, &verr):
		return "Paramètres invalides: " + strings.Join(verr.Problems, "; ")
	case errors.Is(err, service.ErrForbidden):
		return "Accès refusé. " + pages.ReadOnlyNotice
	case errors.Is(err, service.ErrValidation):
		return "Données invalides"
	case errors.Is(err, service.ErrConflict):
		return "Cette version existe déjà"
	case errors.Is(err, service.ErrNoTenant):
		return "Aucune entreprise associée à votre compte"
	default:
		return "Erreur lors de l'opération, veuillez réessayer"
	}
}
