package handlers

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/bigkaa/paneldot/internal/domain/model"
	"github.com/bigkaa/paneldot/internal/events"
	"github.com/bigkaa/paneldot/internal/repository"
	"github.com/bigkaa/paneldot/internal/repository/filestore"
	"github.com/bigkaa/paneldot/internal/service"
	"github.com/bigkaa/paneldot/internal/ui/auth"
	uimiddleware "github.com/bigkaa/paneldot/internal/ui/middleware"
	"github.com/bigkaa/paneldot/internal/ui/pages"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testEnv: сервисы поверх файлового хранилища во временном каталоге.
type testEnv struct {
	store    *repository.Store
	sessions *auth.SessionManager
	params   *service.ParametrageService
	discord  *service.DiscordSettingsService
	logs     *service.ActionLogService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := filestore.Open(filepath.Join(t.TempDir(), "store.json"), testLogger())
	if err != nil {
		t.Fatalf("filestore.Open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	sm, err := auth.NewSessionManager("handlers-test-key", false)
	if err != nil {
		t.Fatalf("NewSessionManager: %v", err)
	}

	store := db.Store()
	audit := service.NewAuditor(store.ActionLogs, events.NewNoopPublisher(), testLogger())
	return &testEnv{
		store:    store,
		sessions: sm,
		params:   service.NewParametrageService(store.Parametrage, audit, testLogger()),
		discord:  service.NewDiscordSettingsService(store.DiscordSettings, audit, testLogger()),
		logs:     service.NewActionLogService(store.ActionLogs),
	}
}

func (e *testEnv) parametrageHandler() *ParametrageHandler {
	return NewParametrageHandler(e.params, e.discord, e.sessions, testLogger())
}

func userState(role model.Role, superadmin bool) service.AuthState {
	return service.NewAuthState(&model.User{
		ID: "user-" + string(role), DiscordID: "100", Username: "tester",
		Role: role, EnterpriseID: "ent-1", IsSuperAdmin: superadmin,
	})
}

func withState(r *http.Request, state service.AuthState) *http.Request {
	return r.WithContext(uimiddleware.WithState(r.Context(), state))
}

func postForm(path string, form url.Values, state service.AuthState) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return withState(req, state)
}

// readFlash расшифровывает flash cookie из ответа.
func readFlash(t *testing.T, sm *auth.SessionManager, rec *httptest.ResponseRecorder) *pages.Flash {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == flashCookieName && c.MaxAge > 0 {
			var f pages.Flash
			if err := sm.DecryptInto(c.Value, &f); err != nil {
				t.Fatalf("flash cookie не расшифровывается: %v", err)
			}
			return &f
		}
	}
	return nil
}

func (e *testEnv) latest(t *testing.T) *model.Parametrage {
	t.Helper()
	p, err := e.store.Parametrage.Latest(context.Background(), "ent-1")
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	return p
}

func TestParametrage_ReadOnlyRolesCannotUpdate(t *testing.T) {
	routes := []struct {
		path string
		form url.Values
	}{
		{"/parametrage", url.Values{"salary_max_employee": {"1"}}},
		{"/parametrage/brackets", url.Values{"tax_brackets": {"[]"}}},
		{"/parametrage/versions", url.Values{"label": {"v9"}}},
		{"/parametrage/discord", url.Values{"main_guild_id": {"1"}}},
	}

	for _, role := range []model.Role{model.RoleStaff, model.RoleDot, model.RoleCoPatron, model.RolePatron} {
		for _, rt := range routes {
			t.Run(string(role)+rt.path, func(t *testing.T) {
				env := newTestEnv(t)
				h := env.parametrageHandler()
				state := userState(role, false)

				mux := map[string]http.HandlerFunc{
					"/parametrage":          h.HandleUpdate,
					"/parametrage/brackets": h.HandleBrackets,
					"/parametrage/versions": h.HandleCreateVersion,
					"/parametrage/discord":  h.HandleDiscord,
				}
				rec := httptest.NewRecorder()
				mux[rt.path](rec, postForm(rt.path, rt.form, state))

				if rec.Code != http.StatusForbidden {
					t.Fatalf("статус %d, ожидается 403", rec.Code)
				}
				body := rec.Body.String()
				if !strings.Contains(body, "Accès refusé") {
					t.Error("нет уведомления об отказе")
				}
				if strings.Contains(body, `action="/parametrage/versions"`) {
					t.Error("форма дублирования выведена для роли без права изменения")
				}

				p := env.latest(t)
				if !p.SalaryMaxEmployee.Equal(decimal.NewFromInt(100000)) || p.ActiveVersion != "v1" {
					t.Errorf("параметры изменены: salary=%s version=%s", p.SalaryMaxEmployee, p.ActiveVersion)
				}
				ds, _ := env.store.DiscordSettings.Get(context.Background(), "ent-1")
				if ds != nil && ds.MainGuildID != "" {
					t.Errorf("настройки Discord изменены: %q", ds.MainGuildID)
				}
			})
		}
	}
}

func TestParametrage_Update(t *testing.T) {
	env := newTestEnv(t)
	h := env.parametrageHandler()

	rec := httptest.NewRecorder()
	h.HandleUpdate(rec, postForm("/parametrage", url.Values{
		"salary_max_employee": {"123456,50"},
		"open_datetime":       {"2025-03-01T10:00"},
		"close_datetime":      {"2025-03-31T18:00"},
	}, userState(model.RoleSuperStaff, false)))

	if rec.Code != http.StatusSeeOther {
		t.Fatalf("статус %d, ожидается 303", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "/parametrage" {
		t.Errorf("Location = %q, ожидается /parametrage", loc)
	}
	if f := readFlash(t, env.sessions, rec); f == nil || f.Kind != pages.FlashSuccess {
		t.Errorf("flash = %+v, ожидается success", f)
	}

	p := env.latest(t)
	if !p.SalaryMaxEmployee.Equal(decimal.RequireFromString("123456.5")) {
		t.Errorf("SalaryMaxEmployee = %s, ожидается 123456.5", p.SalaryMaxEmployee)
	}
	if got := p.OpenDatetime.UTC().Format("2006-01-02T15:04"); got != "2025-03-01T09:00" {
		t.Errorf("OpenDatetime = %s UTC, ожидается 09:00 (10:00 Europe/Paris)", got)
	}
}

func TestParametrage_UpdateRejectsInvalid(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		form    url.Values
		handler func(h *ParametrageHandler) http.HandlerFunc
	}{
		{
			name:    "сумма не число",
			path:    "/parametrage",
			form:    url.Values{"bonus_max_boss": {"beaucoup"}},
			handler: func(h *ParametrageHandler) http.HandlerFunc { return h.HandleUpdate },
		},
		{
			name:    "отрицательный потолок",
			path:    "/parametrage",
			form:    url.Values{"bonus_max_boss": {"-5"}},
			handler: func(h *ParametrageHandler) http.HandlerFunc { return h.HandleUpdate },
		},
		{
			name: "пересечение ступеней",
			path: "/parametrage/brackets",
			form: url.Values{"tax_brackets": {`[
				{"min_inclusive":"0","max_inclusive":"1000","taux_imposition_percent":"5"},
				{"min_inclusive":"1000","max_inclusive":"5000","taux_imposition_percent":"10"}]`}},
			handler: func(h *ParametrageHandler) http.HandlerFunc { return h.HandleBrackets },
		},
		{
			name:    "неизвестное поле ступени",
			path:    "/parametrage/brackets",
			form:    url.Values{"tax_brackets": {`[{"rate":"5"}]`}},
			handler: func(h *ParametrageHandler) http.HandlerFunc { return h.HandleBrackets },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			before := env.latestOrDefault(t)

			rec := httptest.NewRecorder()
			tt.handler(env.parametrageHandler())(rec, postForm(tt.path, tt.form, userState(model.RoleSuperStaff, false)))

			if rec.Code != http.StatusSeeOther {
				t.Fatalf("статус %d, ожидается 303", rec.Code)
			}
			if f := readFlash(t, env.sessions, rec); f == nil || f.Kind != pages.FlashError {
				t.Errorf("flash = %+v, ожидается error", f)
			}
			after := env.latest(t)
			if !after.BonusMaxBoss.Equal(before.BonusMaxBoss) || len(after.TaxBrackets) != len(before.TaxBrackets) {
				t.Error("параметры изменились после отклонённого запроса")
			}
		})
	}
}

// latestOrDefault создаёт запись по умолчанию через сервис и возвращает её.
func (e *testEnv) latestOrDefault(t *testing.T) *model.Parametrage {
	t.Helper()
	p, err := e.params.Fetch(context.Background(), userState(model.RoleStaff, false), "")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	return p
}

func TestParametrage_BracketsGapWarns(t *testing.T) {
	env := newTestEnv(t)
	rec := httptest.NewRecorder()
	env.parametrageHandler().HandleBrackets(rec, postForm("/parametrage/brackets", url.Values{
		"tax_brackets": {`[
			{"min_inclusive":"0","max_inclusive":"1000","taux_imposition_percent":"5"},
			{"min_inclusive":"5000","max_inclusive":"9000","taux_imposition_percent":"10"}]`},
	}, userState(model.RoleSuperStaff, false)))

	f := readFlash(t, env.sessions, rec)
	if f == nil || f.Kind != pages.FlashWarning {
		t.Fatalf("flash = %+v, ожидается warning", f)
	}
	if got := len(env.latest(t).TaxBrackets); got != 2 {
		t.Errorf("сохранено %d ступеней, ожидается 2", got)
	}
}

func TestParametrage_CreateVersionAndDiscord(t *testing.T) {
	env := newTestEnv(t)
	h := env.parametrageHandler()
	state := userState(model.RoleStaff, true)

	rec := httptest.NewRecorder()
	h.HandleCreateVersion(rec, postForm("/parametrage/versions", url.Values{}, state))
	if f := readFlash(t, env.sessions, rec); f == nil || !strings.Contains(f.Message, "v2") {
		t.Errorf("flash = %+v, ожидается упоминание v2", f)
	}
	if v := env.latest(t).ActiveVersion; v != "v2" {
		t.Errorf("ActiveVersion = %q, ожидается v2", v)
	}

	rec = httptest.NewRecorder()
	h.HandleDiscord(rec, postForm("/parametrage/discord", url.Values{
		"main_guild_id": {" 123456789012345678 "},
		"dot_guild_id":  {""},
	}, state))
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("статус %d, ожидается 303", rec.Code)
	}
	ds, err := env.store.DiscordSettings.Get(context.Background(), "ent-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ds.MainGuildID != "123456789012345678" {
		t.Errorf("MainGuildID = %q", ds.MainGuildID)
	}
}

func TestParametrage_Page(t *testing.T) {
	env := newTestEnv(t)
	h := env.parametrageHandler()

	t.Run("только чтение с расчётом налога", func(t *testing.T) {
		req := withState(httptest.NewRequest(http.MethodGet, "/parametrage?revenue=1000&wealth=0", nil), userState(model.RoleStaff, false))
		rec := httptest.NewRecorder()
		h.HandlePage(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("статус %d, ожидается 200", rec.Code)
		}
		body := rec.Body.String()
		if !strings.Contains(body, pages.ReadOnlyNotice) {
			t.Error("нет баннера только для чтения")
		}
		if strings.Contains(body, `action="/parametrage/brackets"`) {
			t.Error("форма ступеней выведена для STAFF")
		}
		if !strings.Contains(body, `id="tax-preview"`) || !strings.Contains(body, `value="1000"`) {
			t.Error("нет результата расчёта налога")
		}
	})

	t.Run("чужое предприятие", func(t *testing.T) {
		req := withState(httptest.NewRequest(http.MethodGet, "/parametrage?enterprise=other", nil), userState(model.RoleSuperStaff, false))
		rec := httptest.NewRecorder()
		h.HandlePage(rec, req)
		if rec.Code != http.StatusForbidden {
			t.Errorf("статус %d, ожидается 403", rec.Code)
		}
	})

	t.Run("superadmin выбирает предприятие", func(t *testing.T) {
		req := withState(httptest.NewRequest(http.MethodGet, "/parametrage?enterprise=other", nil), userState(model.RoleStaff, true))
		rec := httptest.NewRecorder()
		h.HandlePage(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("статус %d, ожидается 200", rec.Code)
		}
		if !strings.Contains(rec.Body.String(), `name="enterprise" value="other"`) {
			t.Error("формы не передают выбранное предприятие")
		}
	})

	t.Run("flash выводится один раз", func(t *testing.T) {
		value, err := env.sessions.Encrypt(pages.Flash{Kind: pages.FlashSuccess, Message: "Paramètres sauvegardés"})
		if err != nil {
			t.Fatalf("Encrypt: %v", err)
		}
		req := withState(httptest.NewRequest(http.MethodGet, "/parametrage", nil), userState(model.RoleStaff, false))
		req.AddCookie(&http.Cookie{Name: flashCookieName, Value: value})
		rec := httptest.NewRecorder()
		h.HandlePage(rec, req)

		if !strings.Contains(rec.Body.String(), "Paramètres sauvegardés") {
			t.Error("уведомление не выведено")
		}
		cleared := false
		for _, c := range rec.Result().Cookies() {
			if c.Name == flashCookieName && c.MaxAge < 0 {
				cleared = true
			}
		}
		if !cleared {
			t.Error("flash cookie не удалён")
		}
	})
}

func TestLogsHandler(t *testing.T) {
	env := newTestEnv(t)
	h := NewLogsHandler(env.logs, env.sessions, testLogger())

	tests := []struct {
		name       string
		superadmin bool
		query      string
		wantStatus int
		want       string
	}{
		{"superadmin видит журнал", true, "", http.StatusOK, "badge-blue"},
		{"поиск без результатов", true, "?q=zzz-inexistant", http.StatusOK, "Aucun log trouvé"},
		{"не superadmin", false, "", http.StatusForbidden, "Accès refusé"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := withState(httptest.NewRequest(http.MethodGet, "/logs"+tt.query, nil), userState(model.RoleSuperStaff, tt.superadmin))
			rec := httptest.NewRecorder()
			h.HandleLogs(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("статус %d, ожидается %d", rec.Code, tt.wantStatus)
			}
			if !strings.Contains(rec.Body.String(), tt.want) {
				t.Errorf("нет %q в ответе", tt.want)
			}
		})
	}
}

func TestHomeHandler(t *testing.T) {
	env := newTestEnv(t)
	h := NewHomeHandler(env.sessions, testLogger())

	rec := httptest.NewRecorder()
	h.HandleHome(rec, withState(httptest.NewRequest(http.MethodGet, "/", nil), userState(model.RolePatron, false)))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `id="user-card"`) {
		t.Errorf("главная: статус %d, нет карточки пользователя", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.HandleNotFound(rec, httptest.NewRequest(http.MethodGet, "/inconnue", nil))
	if rec.Code != http.StatusNotFound || !strings.Contains(rec.Body.String(), "/inconnue") {
		t.Errorf("404: статус %d", rec.Code)
	}
}
