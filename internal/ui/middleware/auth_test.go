package middleware

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bigkaa/paneldot/internal/domain/model"
	"github.com/bigkaa/paneldot/internal/service"
	"github.com/bigkaa/paneldot/internal/ui/auth"
)

type fakeResolver struct {
	events []service.SessionEvent
	state  service.AuthState
	err    error
}

func (f *fakeResolver) Resolve(_ context.Context, ev service.SessionEvent) (service.AuthState, error) {
	f.events = append(f.events, ev)
	if ev.Type == service.EventSignedOut {
		return service.AuthState{}, nil
	}
	return f.state, f.err
}

type fakeRefresher struct {
	resp *auth.TokenResponse
	err  error
}

func (f *fakeRefresher) RefreshTokens(context.Context, string) (*auth.TokenResponse, error) {
	return f.resp, f.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func userState(superadmin bool) service.AuthState {
	return service.NewAuthState(&model.User{
		ID: "u-1", DiscordID: "42", Username: "bob", Role: model.RoleStaff,
		EnterpriseID: "default", IsSuperAdmin: superadmin,
	})
}

// runMiddleware выполняет запрос с cookie сессии и возвращает ответ и состояние из контекста.
func runMiddleware(t *testing.T, ua *UIAuth, sm *auth.SessionManager, session *auth.SessionData) (*httptest.ResponseRecorder, service.AuthState) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/parametrage", nil)
	req.RemoteAddr = "10.1.2.3:5555"
	req.Header.Set("User-Agent", "test-agent")
	if session != nil {
		rec := httptest.NewRecorder()
		if err := sm.SetSessionCookie(rec, session); err != nil {
			t.Fatalf("SetSessionCookie: %v", err)
		}
		for _, c := range rec.Result().Cookies() {
			req.AddCookie(c)
		}
	}

	var got service.AuthState
	var ci service.ClientInfo
	rec := httptest.NewRecorder()
	ua.Middleware()(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		got = StateFromContext(r.Context())
		ci = service.ClientInfoFromContext(r.Context())
	})).ServeHTTP(rec, req)

	if ci.IPAddress != "10.1.2.3" || ci.UserAgent != "test-agent" {
		t.Errorf("ClientInfo = %+v", ci)
	}
	return rec, got
}

func TestUIAuth_NoCookie(t *testing.T) {
	sm, _ := auth.NewSessionManager("", false)
	resolver := &fakeResolver{state: userState(false)}
	ua := NewUIAuth(sm, &fakeRefresher{}, resolver, testLogger())

	_, state := runMiddleware(t, ua, sm, nil)
	if state.IsAuthenticated {
		t.Error("без cookie состояние должно быть пустым")
	}
	if len(resolver.events) != 0 {
		t.Errorf("резолвер не должен вызываться, события: %v", resolver.events)
	}
}

func TestUIAuth_InitialSession(t *testing.T) {
	sm, _ := auth.NewSessionManager("", false)
	resolver := &fakeResolver{state: userState(false)}
	ua := NewUIAuth(sm, &fakeRefresher{}, resolver, testLogger())

	rec, state := runMiddleware(t, ua, sm, &auth.SessionData{
		AccessToken: "at", ExpiresAt: time.Now().Add(time.Hour).Unix(), DiscordID: "42",
	})

	if !state.IsAuthenticated {
		t.Fatal("ожидается аутентифицированное состояние")
	}
	if len(resolver.events) != 1 || resolver.events[0].Type != service.EventInitialSession {
		t.Fatalf("события: %+v", resolver.events)
	}
	if resolver.events[0].Session.Identity.DiscordID != "42" {
		t.Errorf("DiscordID = %q", resolver.events[0].Session.Identity.DiscordID)
	}

	// cookie дополнен внутренним id
	cookies := rec.Result().Cookies()
	if len(cookies) != 1 {
		t.Fatalf("ожидается обновлённый cookie, получено %d", len(cookies))
	}
	updated, err := sm.Decrypt(cookies[0].Value)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if updated.UserID != "u-1" {
		t.Errorf("UserID в cookie = %q, ожидается u-1", updated.UserID)
	}
}

func TestUIAuth_RefreshExpiredToken(t *testing.T) {
	sm, _ := auth.NewSessionManager("", false)
	resolver := &fakeResolver{state: userState(false)}
	refresher := &fakeRefresher{resp: &auth.TokenResponse{AccessToken: "new-at", RefreshToken: "new-rt", ExpiresIn: 3600}}
	ua := NewUIAuth(sm, refresher, resolver, testLogger())

	rec, state := runMiddleware(t, ua, sm, &auth.SessionData{
		AccessToken: "old", RefreshToken: "rt", ExpiresAt: time.Now().Add(-time.Minute).Unix(), DiscordID: "42", UserID: "u-1",
	})

	if !state.IsAuthenticated {
		t.Fatal("ожидается аутентифицированное состояние")
	}
	if resolver.events[0].Type != service.EventTokenRefreshed {
		t.Errorf("тип события = %s, ожидается TOKEN_REFRESHED", resolver.events[0].Type)
	}
	updated, err := sm.Decrypt(rec.Result().Cookies()[0].Value)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if updated.AccessToken != "new-at" || updated.RefreshToken != "new-rt" {
		t.Errorf("токены не обновлены: %+v", updated)
	}
}

func TestUIAuth_RefreshFailureSignsOut(t *testing.T) {
	sm, _ := auth.NewSessionManager("", false)
	resolver := &fakeResolver{state: userState(false)}
	ua := NewUIAuth(sm, &fakeRefresher{err: errors.New("invalid_grant")}, resolver, testLogger())

	rec, state := runMiddleware(t, ua, sm, &auth.SessionData{
		AccessToken: "old", RefreshToken: "rt", ExpiresAt: time.Now().Add(-time.Minute).Unix(), DiscordID: "42",
	})

	if state.IsAuthenticated {
		t.Error("после неудачного refresh состояние должно быть пустым")
	}
	if resolver.events[0].Type != service.EventSignedOut {
		t.Errorf("тип события = %s, ожидается SIGNED_OUT", resolver.events[0].Type)
	}
	assertCleared(t, rec)
}

func TestUIAuth_ForceSignOutClearsCookie(t *testing.T) {
	sm, _ := auth.NewSessionManager("", false)
	resolver := &fakeResolver{state: service.AuthState{ForceSignOut: true}, err: service.ErrSessionInvalid}
	ua := NewUIAuth(sm, &fakeRefresher{}, resolver, testLogger())

	rec, state := runMiddleware(t, ua, sm, &auth.SessionData{
		AccessToken: "at", ExpiresAt: time.Now().Add(time.Hour).Unix(), DiscordID: "42",
	})

	if state.IsAuthenticated || state.ForceSignOut {
		t.Errorf("ожидается пустое состояние, получено %+v", state)
	}
	assertCleared(t, rec)
}

func TestUIAuth_CorruptCookie(t *testing.T) {
	sm, _ := auth.NewSessionManager("", false)
	ua := NewUIAuth(sm, &fakeRefresher{}, &fakeResolver{}, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: auth.SessionCookieName, Value: "garbage"})
	rec := httptest.NewRecorder()
	ua.Middleware()(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})).ServeHTTP(rec, req)

	assertCleared(t, rec)
}

func assertCleared(t *testing.T, rec *httptest.ResponseRecorder) {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == auth.SessionCookieName && c.MaxAge < 0 {
			return
		}
	}
	t.Error("cookie сессии не очищен")
}

func TestUIAuth_UnresolvedSessionRedirectsToLogin(t *testing.T) {
	sm, _ := auth.NewSessionManager("", false)
	// так резолвер отвечает по истечении PD_AUTH_CHECK_TIMEOUT
	resolver := &fakeResolver{state: service.AuthState{}}
	ua := NewUIAuth(sm, &fakeRefresher{}, resolver, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/parametrage", nil)
	set := httptest.NewRecorder()
	if err := sm.SetSessionCookie(set, &auth.SessionData{
		AccessToken: "at", ExpiresAt: time.Now().Add(time.Hour).Unix(), DiscordID: "42",
	}); err != nil {
		t.Fatal(err)
	}
	for _, c := range set.Result().Cookies() {
		req.AddCookie(c)
	}

	reached := false
	rec := httptest.NewRecorder()
	ua.Middleware()(RequireAuth(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		reached = true
	}))).ServeHTTP(rec, req)

	if reached {
		t.Fatal("обработчик вызван без пользователя")
	}
	if rec.Code != http.StatusFound || rec.Header().Get("Location") != LoginPath {
		t.Errorf("ответ %d → %q, ожидается редирект на %s", rec.Code, rec.Header().Get("Location"), LoginPath)
	}
	if len(rec.Result().Cookies()) != 0 {
		t.Error("cookie сессии изменён, хотя выход не требовался")
	}
}

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name              string
		state             service.AuthState
		requireSuperAdmin bool
		want              GuardDecision
	}{
		{"force sign-out", service.AuthState{ForceSignOut: true}, false, DecisionRedirectLogin},
		{"anonymous", service.AuthState{}, false, DecisionRedirectLogin},
		{"anonymous superadmin route", service.AuthState{}, true, DecisionRedirectLogin},
		{"user", userState(false), false, DecisionAllow},
		{"user on superadmin route", userState(false), true, DecisionRedirectHome},
		{"superadmin", userState(true), true, DecisionAllow},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Evaluate(tt.state, tt.requireSuperAdmin); got != tt.want {
				t.Errorf("Evaluate() = %s, хотели %s", got, tt.want)
			}
		})
	}
}

func TestGuards(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusTeapot) })

	tests := []struct {
		name     string
		handler  http.Handler
		state    service.AuthState
		wantCode int
		wantLoc  string
	}{
		{"auth anonymous", RequireAuth(ok), service.AuthState{}, http.StatusFound, LoginPath},
		{"auth user", RequireAuth(ok), userState(false), http.StatusTeapot, ""},
		{"logs user", RequireSuperAdmin(ok), userState(false), http.StatusFound, HomePath},
		{"logs superadmin", RequireSuperAdmin(ok), userState(true), http.StatusTeapot, ""},
		{"auth after timeout", RequireAuth(ok), service.AuthState{}, http.StatusFound, LoginPath},
		{"login page when signed in", RedirectIfAuthenticated(ok), userState(false), http.StatusFound, HomePath},
		{"login page anonymous", RedirectIfAuthenticated(ok), service.AuthState{}, http.StatusTeapot, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/x", nil)
			req = req.WithContext(WithState(req.Context(), tt.state))
			rec := httptest.NewRecorder()
			tt.handler.ServeHTTP(rec, req)

			if rec.Code != tt.wantCode {
				t.Errorf("код = %d, хотели %d", rec.Code, tt.wantCode)
			}
			if loc := rec.Header().Get("Location"); loc != tt.wantLoc {
				t.Errorf("Location = %q, хотели %q", loc, tt.wantLoc)
			}
		})
	}
}
