// parametrage.go: страница налоговых параметров и настроек Discord предприятия.
// Изменения доступны только при AuthState.CanEdit, иначе 403 с уведомлением.
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/bigkaa/paneldot/internal/domain/model"
	"github.com/bigkaa/paneldot/internal/domain/tax"
	"github.com/bigkaa/paneldot/internal/repository"
	"github.com/bigkaa/paneldot/internal/service"
	"github.com/bigkaa/paneldot/internal/ui/auth"
	"github.com/bigkaa/paneldot/internal/ui/i18n"
	uimiddleware "github.com/bigkaa/paneldot/internal/ui/middleware"
	"github.com/bigkaa/paneldot/internal/ui/pages"
)

const parametragePath = "/parametrage"

// ParametrageHandler: обработчики страницы параметров.
type ParametrageHandler struct {
	renderer
	params  *service.ParametrageService
	discord *service.DiscordSettingsService
}

// NewParametrageHandler создаёт новый ParametrageHandler.
func NewParametrageHandler(
	params *service.ParametrageService,
	discord *service.DiscordSettingsService,
	sessions *auth.SessionManager,
	logger *slog.Logger,
) *ParametrageHandler {
	return &ParametrageHandler{
		renderer: renderer{sessions: sessions, logger: logger.With(slog.String("component", "ui.parametrage"))},
		params:   params,
		discord:  discord,
	}
}

// HandlePage обрабатывает GET /parametrage.
// Параметры revenue и wealth включают предварительный расчёт налога.
func (h *ParametrageHandler) HandlePage(w http.ResponseWriter, r *http.Request) {
	h.show(w, r, http.StatusOK, nil)
}

// show собирает данные страницы и выводит её со статусом status.
func (h *ParametrageHandler) show(w http.ResponseWriter, r *http.Request, status int, flash *pages.Flash) {
	ctx := r.Context()
	state := uimiddleware.StateFromContext(ctx)
	enterprise := requestedEnterprise(r)

	tenant, err := state.Tenant(enterprise)
	if err != nil {
		h.render(w, r, http.StatusForbidden, "Paramétrage",
			&pages.Flash{Kind: pages.FlashError, Message: "Accès refusé à cette entreprise"},
			pages.Parametrage(pages.ParametrageData{}))
		return
	}

	data := pages.ParametrageData{CanEdit: state.CanEdit, Enterprise: enterprise}

	p, err := h.params.Fetch(ctx, state, tenant)
	if err != nil {
		h.logger.Error("Ошибка загрузки параметров",
			slog.String("enterprise_id", tenant),
			slog.String("error", err.Error()),
		)
		flash = &pages.Flash{Kind: pages.FlashError, Message: "Erreur de chargement du paramétrage"}
	}
	data.Parametrage = p

	if p != nil {
		data.Warnings, _ = tax.Check(*p)
		data.TaxBracketsJSON = indentJSON(p.TaxBrackets)
		data.WealthBracketsJSON = indentJSON(p.WealthTaxBrackets)

		if data.Versions, err = h.params.ListVersions(ctx, state, tenant); err != nil {
			h.logger.Warn("Ошибка загрузки версий", slog.String("error", err.Error()))
		}
		if data.Discord, err = h.discord.Fetch(ctx, state, tenant); err != nil {
			h.logger.Warn("Ошибка загрузки настроек Discord", slog.String("error", err.Error()))
		}

		q := r.URL.Query()
		if q.Has("revenue") || q.Has("wealth") {
			data.PreviewRevenue, data.PreviewWealth = q.Get("revenue"), q.Get("wealth")
			pv, pvErr := h.preview(r, state, tenant, data.PreviewRevenue, data.PreviewWealth)
			if pvErr != nil && flash == nil {
				flash = &pages.Flash{Kind: pages.FlashError, Message: pvErr.Error()}
			}
			data.Preview = pv
		}
	}

	h.render(w, r, status, "Paramétrage", flash, pages.Parametrage(data))
}

func (h *ParametrageHandler) preview(r *http.Request, state service.AuthState, tenant, revenue, wealth string) (*tax.Preview, error) {
	rev, err := parseAmount(revenue)
	if err != nil {
		return nil, fmt.Errorf("CA Brut invalide: %s", revenue)
	}
	wl, err := parseAmount(wealth)
	if err != nil {
		return nil, fmt.Errorf("Patrimoine invalide: %s", wealth)
	}
	pv, err := h.params.PreviewTax(r.Context(), state, tenant, rev, wl)
	if err != nil {
		return nil, errors.New(userMessage(err))
	}
	return pv, nil
}

// HandleUpdate обрабатывает POST /parametrage: временные параметры и потолки.
func (h *ParametrageHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	state, tenant, ok := h.authorize(w, r)
	if !ok {
		return
	}

	upd, err := parseParametrageForm(r)
	if err != nil {
		h.redirectWith(w, r, pages.FlashError, err.Error())
		return
	}

	_, warnings, err := h.params.Update(r.Context(), state, tenant, upd)
	h.afterUpdate(w, r, err, warnings, "Paramètres sauvegardés")
}

// HandleBrackets обрабатывает POST /parametrage/brackets: ступени в JSON.
func (h *ParametrageHandler) HandleBrackets(w http.ResponseWriter, r *http.Request) {
	state, tenant, ok := h.authorize(w, r)
	if !ok {
		return
	}

	taxBrackets, err := repository.DecodeBrackets[model.TaxBracket]([]byte(r.PostFormValue("tax_brackets")))
	if err != nil {
		h.redirectWith(w, r, pages.FlashError, "Barème d'imposition invalide: "+err.Error())
		return
	}
	wealthBrackets, err := repository.DecodeBrackets[model.WealthTaxBracket]([]byte(r.PostFormValue("wealth_tax_brackets")))
	if err != nil {
		h.redirectWith(w, r, pages.FlashError, "Barème de richesse invalide: "+err.Error())
		return
	}

	_, warnings, err := h.params.Update(r.Context(), state, tenant, service.ParametrageUpdate{
		TaxBrackets:       &taxBrackets,
		WealthTaxBrackets: &wealthBrackets,
	})
	h.afterUpdate(w, r, err, warnings, "Barèmes sauvegardés")
}

// HandleCreateVersion обрабатывает POST /parametrage/versions.
func (h *ParametrageHandler) HandleCreateVersion(w http.ResponseWriter, r *http.Request) {
	state, tenant, ok := h.authorize(w, r)
	if !ok {
		return
	}

	p, err := h.params.CreateVersion(r.Context(), state, tenant, r.PostFormValue("label"))
	if err != nil {
		h.logger.Warn("Ошибка создания версии", slog.String("error", err.Error()))
		h.redirectWith(w, r, pages.FlashError, userMessage(err))
		return
	}
	h.redirectWith(w, r, pages.FlashSuccess, "Nouvelle version "+p.ActiveVersion+" créée")
}

// HandleDiscord обрабатывает POST /parametrage/discord.
// Отсутствующие в форме поля не меняются, пустые очищаются.
func (h *ParametrageHandler) HandleDiscord(w http.ResponseWriter, r *http.Request) {
	state, tenant, ok := h.authorize(w, r)
	if !ok {
		return
	}

	form := func(name string) *string {
		if !r.PostForm.Has(name) {
			return nil
		}
		v := strings.TrimSpace(r.PostForm.Get(name))
		return &v
	}
	upd := service.DiscordSettingsUpdate{
		MainGuildID:               form("main_guild_id"),
		MainGuildStaffRoleID:      form("main_guild_staff_role_id"),
		MainGuildPatronRoleID:     form("main_guild_patron_role_id"),
		MainGuildCoPatronRoleID:   form("main_guild_co_patron_role_id"),
		MainGuildEnterpriseRoleID: form("main_guild_enterprise_role_id"),
		DotGuildID:                form("dot_guild_id"),
		DotGuildStaffRoleID:       form("dot_guild_staff_role_id"),
		DotGuildDotRoleID:         form("dot_guild_dot_role_id"),
	}

	_, err := h.discord.Update(r.Context(), state, tenant, upd)
	h.afterUpdate(w, r, err, nil, "Paramètres Discord sauvegardés")
}

// authorize разбирает форму и проверяет право изменения.
// Без права отвечает 403 со страницей и уведомлением.
func (h *ParametrageHandler) authorize(w http.ResponseWriter, r *http.Request) (service.AuthState, string, bool) {
	if err := r.ParseForm(); err != nil {
		h.redirectWith(w, r, pages.FlashError, "Formulaire invalide")
		return service.AuthState{}, "", false
	}

	state := uimiddleware.StateFromContext(r.Context())
	if !state.CanEdit {
		h.logger.Warn("Попытка изменения без прав",
			slog.String("user_id", state.UserID()),
			slog.String("path", r.URL.Path),
		)
		h.show(w, r, http.StatusForbidden, &pages.Flash{
			Kind:    pages.FlashError,
			Message: "Accès refusé. " + pages.ReadOnlyNotice,
		})
		return service.AuthState{}, "", false
	}

	tenant, err := state.Tenant(requestedEnterprise(r))
	if err != nil {
		h.show(w, r, http.StatusForbidden, &pages.Flash{Kind: pages.FlashError, Message: "Accès refusé à cette entreprise"})
		return service.AuthState{}, "", false
	}
	return state, tenant, true
}

// afterUpdate переводит результат изменения в уведомление и redirect.
func (h *ParametrageHandler) afterUpdate(w http.ResponseWriter, r *http.Request, err error, warnings []string, success string) {
	switch {
	case errors.Is(err, service.ErrForbidden):
		h.show(w, r, http.StatusForbidden, &pages.Flash{Kind: pages.FlashError, Message: userMessage(err)})
	case err != nil:
		h.logger.Warn("Ошибка сохранения", slog.String("path", r.URL.Path), slog.String("error", err.Error()))
		h.redirectWith(w, r, pages.FlashError, userMessage(err))
	case len(warnings) > 0:
		h.redirectWith(w, r, pages.FlashWarning, success+" (avertissements: "+strings.Join(warnings, "; ")+")")
	default:
		h.redirectWith(w, r, pages.FlashSuccess, success)
	}
}

// redirectWith сохраняет уведомление и возвращает на страницу параметров.
func (h *ParametrageHandler) redirectWith(w http.ResponseWriter, r *http.Request, kind, message string) {
	h.setFlash(w, kind, message)
	target := parametragePath
	if e := requestedEnterprise(r); e != "" {
		target += "?enterprise=" + url.QueryEscape(e)
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

// requestedEnterprise: явно выбранное предприятие из формы или query.
func requestedEnterprise(r *http.Request) string {
	if v := strings.TrimSpace(r.PostFormValue("enterprise")); v != "" {
		return v
	}
	return strings.TrimSpace(r.URL.Query().Get("enterprise"))
}

// parseParametrageForm строит обновление из полей формы.
// Пустые поля не меняют значение.
func parseParametrageForm(r *http.Request) (service.ParametrageUpdate, error) {
	var upd service.ParametrageUpdate

	if v := strings.TrimSpace(r.PostFormValue("active_version")); v != "" {
		upd.ActiveVersion = &v
	}

	for _, f := range []struct {
		name  string
		label string
		set   func(v time.Time)
	}{
		{"open_datetime", "ouverture comptable", func(v time.Time) { upd.OpenDatetime = &v }},
		{"close_datetime", "fermeture comptable", func(v time.Time) { upd.CloseDatetime = &v }},
		{"effective_from", "début d'effet", func(v time.Time) { upd.EffectiveFrom = &v }},
		{"effective_to", "fin d'effet", func(v time.Time) { upd.EffectiveTo = &v }},
	} {
		raw := strings.TrimSpace(r.PostFormValue(f.name))
		if raw == "" {
			continue
		}
		t, err := i18n.ParseDateTimeInput(raw)
		if err != nil {
			return upd, fmt.Errorf("Date de %s invalide", f.label)
		}
		f.set(t)
	}

	for _, f := range []struct {
		name  string
		label string
		set   func(d decimal.Decimal)
	}{
		{"salary_max_employee", "Salaire Maximum employé", func(d decimal.Decimal) { upd.SalaryMaxEmployee = &d }},
		{"bonus_max_employee", "Prime Maximum employé", func(d decimal.Decimal) { upd.BonusMaxEmployee = &d }},
		{"salary_max_boss", "Salaire Maximum patron", func(d decimal.Decimal) { upd.SalaryMaxBoss = &d }},
		{"bonus_max_boss", "Prime Maximum patron", func(d decimal.Decimal) { upd.BonusMaxBoss = &d }},
	} {
		raw := strings.TrimSpace(r.PostFormValue(f.name))
		if raw == "" {
			continue
		}
		d, err := parseAmount(raw)
		if err != nil {
			return upd, fmt.Errorf("%s invalide: %s", f.label, raw)
		}
		f.set(d)
	}
	return upd, nil
}

// parseAmount разбирает сумму; допускается запятая как десятичный разделитель.
func parseAmount(raw string) (decimal.Decimal, error) {
	raw = strings.ReplaceAll(strings.TrimSpace(raw), ",", ".")
	if raw == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(raw)
}

func indentJSON(v any) string {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return ""
	}
	return string(b)
}
