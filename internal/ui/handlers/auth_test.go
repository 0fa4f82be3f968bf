package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/bigkaa/paneldot/internal/domain/model"
	"github.com/bigkaa/paneldot/internal/service"
	"github.com/bigkaa/paneldot/internal/ui/auth"
	uimiddleware "github.com/bigkaa/paneldot/internal/ui/middleware"
)

// fakeOAuth: OAuthClient без сети.
type fakeOAuth struct {
	exchangeErr error
	exchanged   []string
	revoked     []string
}

func (f *fakeOAuth) AuthorizeURL(redirectURI, state, challenge string) string {
	return "https://discord.test/oauth2/authorize?" + url.Values{
		"redirect_uri":   {redirectURI},
		"state":          {state},
		"code_challenge": {challenge},
	}.Encode()
}

func (f *fakeOAuth) ExchangeCode(_ context.Context, code, _, verifier string) (*auth.TokenResponse, error) {
	f.exchanged = append(f.exchanged, code+"/"+verifier)
	if f.exchangeErr != nil {
		return nil, f.exchangeErr
	}
	return &auth.TokenResponse{AccessToken: "at-1", RefreshToken: "rt-1", ExpiresIn: 3600}, nil
}

func (f *fakeOAuth) FetchProfile(context.Context, string) (*auth.Profile, error) {
	return &auth.Profile{ID: "555", Username: "alice", GlobalName: "Alice"}, nil
}

func (f *fakeOAuth) Revoke(_ context.Context, token string) error {
	f.revoked = append(f.revoked, token)
	return nil
}

// fakeResolver запоминает события.
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

func newAuthHandler(t *testing.T, client *fakeOAuth, resolver *fakeResolver) (*AuthHandler, *auth.SessionManager) {
	t.Helper()
	sm, err := auth.NewSessionManager("auth-test-key", false)
	if err != nil {
		t.Fatalf("NewSessionManager: %v", err)
	}
	return NewAuthHandler(client, sm, resolver, testLogger()), sm
}

func findCookie(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// callbackRequest строит callback с state cookie.
func callbackRequest(t *testing.T, sm *auth.SessionManager, cookieState, queryState string) *http.Request {
	t.Helper()
	value, err := sm.Encrypt(stateData{State: cookieState, CodeVerifier: "verifier"})
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	req := httptest.NewRequest(http.MethodGet, "/auth/callback?code=abc&state="+queryState, nil)
	req.AddCookie(&http.Cookie{Name: stateCookieName, Value: value})
	return req
}

func TestHandleLogin(t *testing.T) {
	h, sm := newAuthHandler(t, &fakeOAuth{}, &fakeResolver{})

	req := httptest.NewRequest(http.MethodGet, "/auth/login", nil)
	req.Host = "panel.local"
	req.Header.Set("X-Forwarded-Proto", "https")
	rec := httptest.NewRecorder()
	h.HandleLogin(rec, req)

	if rec.Code != http.StatusFound {
		t.Fatalf("статус %d, ожидается 302", rec.Code)
	}
	loc, err := url.Parse(rec.Header().Get("Location"))
	if err != nil {
		t.Fatalf("Location не разбирается: %v", err)
	}
	if got := loc.Query().Get("redirect_uri"); got != "https://panel.local/auth/callback" {
		t.Errorf("redirect_uri = %q", got)
	}

	c := findCookie(rec, stateCookieName)
	if c == nil {
		t.Fatal("state cookie не установлен")
	}
	var sd stateData
	if err := sm.DecryptInto(c.Value, &sd); err != nil {
		t.Fatalf("state cookie не расшифровывается: %v", err)
	}
	if sd.State != loc.Query().Get("state") || sd.CodeVerifier == "" {
		t.Errorf("state cookie не совпадает с запросом: %+v", sd)
	}
}

func TestHandleCallback_Success(t *testing.T) {
	client := &fakeOAuth{}
	resolver := &fakeResolver{state: service.NewAuthState(&model.User{ID: "u-1", DiscordID: "555", Role: model.RoleStaff})}
	h, sm := newAuthHandler(t, client, resolver)

	rec := httptest.NewRecorder()
	h.HandleCallback(rec, callbackRequest(t, sm, "s-1", "s-1"))

	if rec.Code != http.StatusFound || rec.Header().Get("Location") != uimiddleware.HomePath {
		t.Fatalf("ответ %d %q, ожидается redirect на главную", rec.Code, rec.Header().Get("Location"))
	}
	if len(client.exchanged) != 1 || client.exchanged[0] != "abc/verifier" {
		t.Errorf("обмен code: %v", client.exchanged)
	}
	if len(resolver.events) != 1 || resolver.events[0].Type != service.EventSignedIn {
		t.Fatalf("события резолвера: %+v, ожидается одно SIGNED_IN", resolver.events)
	}
	if id := resolver.events[0].Session.Identity; id.DiscordID != "555" || id.GlobalName != "Alice" {
		t.Errorf("identity = %+v", id)
	}

	c := findCookie(rec, auth.SessionCookieName)
	if c == nil {
		t.Fatal("session cookie не установлен")
	}
	session, err := sm.Decrypt(c.Value)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if session.UserID != "u-1" || session.AccessToken != "at-1" || session.IsExpired() {
		t.Errorf("сессия = %+v", session)
	}
	if sc := findCookie(rec, stateCookieName); sc == nil || sc.MaxAge >= 0 {
		t.Error("state cookie не удалён")
	}
}

func TestHandleCallback_Failures(t *testing.T) {
	tests := []struct {
		name         string
		queryState   string
		client       *fakeOAuth
		resolver     *fakeResolver
		wantExchange bool
	}{
		{
			name:       "state mismatch",
			queryState: "s-2",
			client:     &fakeOAuth{},
			resolver:   &fakeResolver{},
		},
		{
			name:         "ошибка обмена code",
			queryState:   "s-1",
			client:       &fakeOAuth{exchangeErr: errors.New("invalid_grant")},
			resolver:     &fakeResolver{},
			wantExchange: true,
		},
		{
			name:         "принудительный выход",
			queryState:   "s-1",
			client:       &fakeOAuth{},
			resolver:     &fakeResolver{state: service.AuthState{ForceSignOut: true}, err: service.ErrSessionInvalid},
			wantExchange: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, sm := newAuthHandler(t, tt.client, tt.resolver)
			rec := httptest.NewRecorder()
			h.HandleCallback(rec, callbackRequest(t, sm, "s-1", tt.queryState))

			if loc := rec.Header().Get("Location"); !strings.HasPrefix(loc, uimiddleware.LoginPath+"?error=") {
				t.Errorf("Location = %q, ожидается страница входа с ошибкой", loc)
			}
			if got := len(tt.client.exchanged) > 0; got != tt.wantExchange {
				t.Errorf("обмен code выполнен = %v, ожидается %v", got, tt.wantExchange)
			}
			if c := findCookie(rec, auth.SessionCookieName); c != nil && c.MaxAge >= 0 {
				t.Error("session cookie установлен при неудачном входе")
			}
		})
	}
}

func TestHandleCallback_ProviderError(t *testing.T) {
	client := &fakeOAuth{}
	h, _ := newAuthHandler(t, client, &fakeResolver{})

	rec := httptest.NewRecorder()
	h.HandleCallback(rec, httptest.NewRequest(http.MethodGet, "/auth/callback?error=access_denied", nil))

	if !strings.HasPrefix(rec.Header().Get("Location"), uimiddleware.LoginPath+"?error=") {
		t.Errorf("Location = %q", rec.Header().Get("Location"))
	}
	if len(client.exchanged) != 0 {
		t.Error("обмен code выполнен при ошибке провайдера")
	}
}

func TestHandleLogout(t *testing.T) {
	client := &fakeOAuth{}
	resolver := &fakeResolver{}
	h, _ := newAuthHandler(t, client, resolver)

	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	ctx := context.WithValue(req.Context(), uimiddleware.ContextKeyUISession, &auth.SessionData{AccessToken: "at-9"})
	rec := httptest.NewRecorder()
	h.HandleLogout(rec, req.WithContext(ctx))

	if rec.Code != http.StatusSeeOther || rec.Header().Get("Location") != uimiddleware.LoginPath {
		t.Errorf("ответ %d %q, ожидается redirect на /auth", rec.Code, rec.Header().Get("Location"))
	}
	if len(client.revoked) != 1 || client.revoked[0] != "at-9" {
		t.Errorf("отозваны %v, ожидается at-9", client.revoked)
	}
	if len(resolver.events) != 1 || resolver.events[0].Type != service.EventSignedOut {
		t.Errorf("события резолвера: %+v, ожидается SIGNED_OUT", resolver.events)
	}
	if c := findCookie(rec, auth.SessionCookieName); c == nil || c.MaxAge >= 0 {
		t.Error("session cookie не удалён")
	}
}

func TestHandleLoginPage(t *testing.T) {
	h, _ := newAuthHandler(t, &fakeOAuth{}, &fakeResolver{})
	rec := httptest.NewRecorder()
	h.HandleLoginPage(rec, httptest.NewRequest(http.MethodGet, "/auth?error=Connexion+refus%C3%A9e", nil))

	body := rec.Body.String()
	if !strings.Contains(body, "Se connecter avec Discord") || !strings.Contains(body, "Connexion refusée") {
		t.Error("страница входа без кнопки или сообщения об ошибке")
	}
}
