// discord_settings.go: обработчики /api/v1/discord-settings endpoints.
package handlers

import (
	"net/http"

	apierrors "github.com/bigkaa/paneldot/internal/api/errors"
	"github.com/bigkaa/paneldot/internal/api/middleware"
	"github.com/bigkaa/paneldot/internal/service"
)

// GetDiscordSettings: GET /api/v1/discord-settings.
// При отсутствии записи создаются пустые настройки.
func (h *APIHandler) GetDiscordSettings(w http.ResponseWriter, r *http.Request) {
	enterprise, err := enterpriseParam(r)
	if err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}

	ds, err := h.discord.Fetch(r.Context(), middleware.StateFromContext(r.Context()), enterprise)
	if err != nil {
		h.fail(w, r, "Ошибка получения настроек Discord", err)
		return
	}
	if ds == nil {
		apierrors.FromService(w, service.ErrNoTenant)
		return
	}
	writeJSON(w, http.StatusOK, ds)
}

// UpdateDiscordSettings: PUT /api/v1/discord-settings.
// Переданные поля заменяются (пустая строка очищает), остальные сохраняются.
func (h *APIHandler) UpdateDiscordSettings(w http.ResponseWriter, r *http.Request) {
	state := middleware.StateFromContext(r.Context())
	if !state.CanEdit {
		apierrors.Forbidden(w, "Seuls les SUPERSTAFF peuvent modifier ces paramètres.")
		return
	}
	enterprise, err := enterpriseParam(r)
	if err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}

	var upd service.DiscordSettingsUpdate
	if err := decodeJSON(w, r, &upd, false); err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}

	ds, err := h.discord.Update(r.Context(), state, enterprise, upd)
	if err != nil {
		h.fail(w, r, "Ошибка обновления настроек Discord", err)
		return
	}
	if ds == nil {
		apierrors.FromService(w, service.ErrNoTenant)
		return
	}
	writeJSON(w, http.StatusOK, ds)
}
