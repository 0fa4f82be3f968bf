// parametrage.go: обработчики /api/v1/parametrage endpoints.
// Чтение доступно всем ролям предприятия, изменение только SUPERSTAFF или superadmin.
package handlers

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/oapi-codegen/runtime"
	"github.com/shopspring/decimal"

	apierrors "github.com/bigkaa/paneldot/internal/api/errors"
	"github.com/bigkaa/paneldot/internal/api/middleware"
	"github.com/bigkaa/paneldot/internal/domain/model"
	"github.com/bigkaa/paneldot/internal/domain/tax"
	"github.com/bigkaa/paneldot/internal/service"
)

// parametrageResponse: параметры и предупреждения проверки ступеней.
type parametrageResponse struct {
	Parametrage *model.Parametrage `json:"parametrage"`
	Warnings    []string           `json:"warnings"`
}

// versionListResponse: список версий.
type versionListResponse struct {
	Items []model.Parametrage `json:"items"`
	Total int                 `json:"total"`
}

// createVersionRequest: тело POST /api/v1/parametrage/versions.
type createVersionRequest struct {
	Label string `json:"label"`
}

// GetParametrage: GET /api/v1/parametrage.
// При отсутствии версий создаётся запись по умолчанию.
func (h *APIHandler) GetParametrage(w http.ResponseWriter, r *http.Request) {
	enterprise, err := enterpriseParam(r)
	if err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}

	p, err := h.params.Fetch(r.Context(), middleware.StateFromContext(r.Context()), enterprise)
	if err != nil {
		h.fail(w, r, "Ошибка получения параметров", err)
		return
	}
	if p == nil {
		apierrors.FromService(w, service.ErrNoTenant)
		return
	}

	warnings, _ := tax.Check(*p)
	writeJSON(w, http.StatusOK, parametrageResponse{Parametrage: p, Warnings: nonNil(warnings)})
}

// UpdateParametrage: PATCH /api/v1/parametrage.
// Отсутствующие поля не меняются. Нарушения ступеней дают 400 со списком problems.
func (h *APIHandler) UpdateParametrage(w http.ResponseWriter, r *http.Request) {
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

	var upd service.ParametrageUpdate
	if err := decodeJSON(w, r, &upd, false); err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}

	p, warnings, err := h.params.Update(r.Context(), state, enterprise, upd)
	if err != nil {
		h.fail(w, r, "Ошибка обновления параметров", err)
		return
	}
	if p == nil {
		apierrors.FromService(w, service.ErrNoTenant)
		return
	}
	writeJSON(w, http.StatusOK, parametrageResponse{Parametrage: p, Warnings: nonNil(warnings)})
}

// ListVersions: GET /api/v1/parametrage/versions.
func (h *APIHandler) ListVersions(w http.ResponseWriter, r *http.Request) {
	enterprise, err := enterpriseParam(r)
	if err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}

	versions, err := h.params.ListVersions(r.Context(), middleware.StateFromContext(r.Context()), enterprise)
	if err != nil {
		h.fail(w, r, "Ошибка получения версий", err)
		return
	}
	if versions == nil {
		versions = []model.Parametrage{}
	}
	writeJSON(w, http.StatusOK, versionListResponse{Items: versions, Total: len(versions)})
}

// CreateVersion: POST /api/v1/parametrage/versions.
// Пустая метка заменяется следующей вида vN. Повтор метки даёт 409.
func (h *APIHandler) CreateVersion(w http.ResponseWriter, r *http.Request) {
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

	var req createVersionRequest
	if err := decodeJSON(w, r, &req, true); err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}

	p, err := h.params.CreateVersion(r.Context(), state, enterprise, req.Label)
	if err != nil {
		h.fail(w, r, "Ошибка создания версии", err)
		return
	}
	if p == nil {
		apierrors.FromService(w, service.ErrNoTenant)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

// TaxPreview: GET /api/v1/parametrage/tax-preview?revenue=&wealth=.
// Отсутствующая сумма считается нулём. Десятичная запятая допускается.
func (h *APIHandler) TaxPreview(w http.ResponseWriter, r *http.Request) {
	enterprise, err := enterpriseParam(r)
	if err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}

	revenue, err := amountParam(r, "revenue")
	if err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}
	wealth, err := amountParam(r, "wealth")
	if err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}

	pv, err := h.params.PreviewTax(r.Context(), middleware.StateFromContext(r.Context()), enterprise, revenue, wealth)
	if err != nil {
		h.fail(w, r, "Ошибка расчёта налога", err)
		return
	}
	if pv == nil {
		apierrors.FromService(w, service.ErrNoTenant)
		return
	}
	writeJSON(w, http.StatusOK, pv)
}

// amountParam читает необязательную сумму из query.
func amountParam(r *http.Request, name string) (decimal.Decimal, error) {
	var raw *string
	if err := runtime.BindQueryParameter("form", true, false, name, r.URL.Query(), &raw); err != nil {
		return decimal.Zero, err
	}
	if raw == nil || strings.TrimSpace(*raw) == "" {
		return decimal.Zero, nil
	}
	v, err := decimal.NewFromString(strings.ReplaceAll(strings.TrimSpace(*raw), ",", "."))
	if err != nil {
		return decimal.Zero, fmt.Errorf("параметр %s: некорректная сумма %q", name, *raw)
	}
	return v, nil
}

// nonNil заменяет nil пустым срезом для JSON.
func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
