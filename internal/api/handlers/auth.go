// auth.go: выпуск API-токенов и данные текущего пользователя.
package handlers

import (
	"net/http"
	"time"

	apierrors "github.com/bigkaa/paneldot/internal/api/errors"
	"github.com/bigkaa/paneldot/internal/api/middleware"
	"github.com/bigkaa/paneldot/internal/domain/model"
	uimiddleware "github.com/bigkaa/paneldot/internal/ui/middleware"
)

// tokenResponse: ответ POST /api/v1/auth/token.
type tokenResponse struct {
	AccessToken string    `json:"access_token"` //nolint:gosec // G117: ответ выдачи токена
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// meResponse: ответ GET /api/v1/me.
type meResponse struct {
	User         *model.User `json:"user"`
	CanEdit      bool        `json:"can_edit"`
	IsSuperAdmin bool        `json:"is_superadmin"`
}

// IssueToken: POST /api/v1/auth/token.
// Доступ по cookie-сессии панели (маршрут за UIAuth, без bearer-токена).
func (h *APIHandler) IssueToken(w http.ResponseWriter, r *http.Request) {
	state := uimiddleware.StateFromContext(r.Context())
	if !state.IsAuthenticated || state.CurrentUser == nil {
		apierrors.Unauthorized(w, "Требуется вход через Discord")
		return
	}

	token, expiresAt, err := h.tokens.Issue(state.CurrentUser)
	if err != nil {
		h.logger.Error("Ошибка выпуска API-токена", "user_id", state.UserID(), "error", err)
		apierrors.InternalError(w, "Ошибка выпуска токена")
		return
	}

	h.logger.Info("Выпущен API-токен", "user_id", state.UserID(), "expires_at", expiresAt)
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusCreated, tokenResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresAt:   expiresAt.UTC(),
	})
}

// GetMe: GET /api/v1/me.
func (h *APIHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	state := middleware.StateFromContext(r.Context())
	if !state.IsAuthenticated {
		apierrors.Unauthorized(w, "Требуется аутентификация")
		return
	}
	writeJSON(w, http.StatusOK, meResponse{
		User:         state.CurrentUser,
		CanEdit:      state.CanEdit,
		IsSuperAdmin: state.IsSuperAdmin,
	})
}
