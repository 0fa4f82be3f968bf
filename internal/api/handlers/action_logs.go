// action_logs.go: обработчик /api/v1/action-logs (только superadmin).
package handlers

import (
	"net/http"
	"strings"

	"github.com/oapi-codegen/runtime"

	apierrors "github.com/bigkaa/paneldot/internal/api/errors"
	"github.com/bigkaa/paneldot/internal/api/middleware"
	"github.com/bigkaa/paneldot/internal/domain/model"
	"github.com/bigkaa/paneldot/internal/service"
)

// actionLogListResponse: страница журнала аудита.
type actionLogListResponse struct {
	Items  []model.ActionLog `json:"items"`
	Total  int               `json:"total"`
	Limit  int               `json:"limit"`
	Offset int               `json:"offset"`
}

// ListActionLogs: GET /api/v1/action-logs?limit=&offset=&q=.
// С q выполняется поиск (первые service.DefaultLogLimit совпадений, offset не применяется).
func (h *APIHandler) ListActionLogs(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	var (
		limit  *int
		offset *int
		q      *string
	)
	if err := runtime.BindQueryParameter("form", true, false, "limit", query, &limit); err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}
	if err := runtime.BindQueryParameter("form", true, false, "offset", query, &offset); err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}
	if err := runtime.BindQueryParameter("form", true, false, "q", query, &q); err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}

	state := middleware.StateFromContext(r.Context())
	l, o := paginationDefaults(limit, offset)

	var (
		logs []model.ActionLog
		err  error
	)
	if q != nil && strings.TrimSpace(*q) != "" {
		logs, err = h.logs.Search(r.Context(), state, *q)
		l, o = service.DefaultLogLimit, 0
	} else {
		logs, err = h.logs.List(r.Context(), state, l, o)
	}
	if err != nil {
		h.fail(w, r, "Ошибка получения журнала", err)
		return
	}
	if logs == nil {
		logs = []model.ActionLog{}
	}

	writeJSON(w, http.StatusOK, actionLogListResponse{
		Items:  logs,
		Total:  len(logs),
		Limit:  l,
		Offset: o,
	})
}
