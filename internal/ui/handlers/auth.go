// auth.go: вход через Discord OAuth2 (Authorization Code + PKCE) и выход.
package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/bigkaa/paneldot/internal/service"
	"github.com/bigkaa/paneldot/internal/ui/auth"
	uimiddleware "github.com/bigkaa/paneldot/internal/ui/middleware"
	"github.com/bigkaa/paneldot/internal/ui/pages"
)

// Имя cookie для хранения PKCE state (code_verifier + state).
const stateCookieName = "pd_auth_state"

// stateCookieMaxAge: максимальный возраст state cookie (5 минут).
const stateCookieMaxAge = 5 * 60

// revokeTimeout ограничивает отзыв токена при выходе.
const revokeTimeout = 5 * time.Second

// OAuthClient: операции OAuth2-провайдера, нужные обработчикам входа.
type OAuthClient interface {
	AuthorizeURL(redirectURI, state, codeChallenge string) string
	ExchangeCode(ctx context.Context, code, redirectURI, codeVerifier string) (*auth.TokenResponse, error)
	FetchProfile(ctx context.Context, accessToken string) (*auth.Profile, error)
	Revoke(ctx context.Context, token string) error
}

// AuthHandler: обработчики аутентификации.
type AuthHandler struct {
	renderer
	client   OAuthClient
	resolver uimiddleware.SessionResolver
}

// NewAuthHandler создаёт новый AuthHandler.
func NewAuthHandler(
	client OAuthClient,
	sessions *auth.SessionManager,
	resolver uimiddleware.SessionResolver,
	logger *slog.Logger,
) *AuthHandler {
	return &AuthHandler{
		renderer: renderer{sessions: sessions, logger: logger.With(slog.String("component", "ui.auth"))},
		client:   client,
		resolver: resolver,
	}
}

// stateData: данные, сохраняемые в state cookie на время auth flow.
type stateData struct {
	State        string `json:"state"`
	CodeVerifier string `json:"code_verifier"`
}

// HandleLoginPage обрабатывает GET /auth: страница входа.
func (h *AuthHandler) HandleLoginPage(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, "Connexion", nil, pages.Login(r.URL.Query().Get("error")))
}

// HandleLogin обрабатывает GET /auth/login.
// Генерирует PKCE и state, сохраняет их в зашифрованном cookie,
// redirect на страницу авторизации Discord.
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	pkce, err := auth.GeneratePKCE()
	if err != nil {
		h.logger.Error("Ошибка генерации PKCE", slog.String("error", err.Error()))
		http.Error(w, "Erreur interne", http.StatusInternalServerError)
		return
	}

	state, err := auth.GenerateState()
	if err != nil {
		h.logger.Error("Ошибка генерации state", slog.String("error", err.Error()))
		http.Error(w, "Erreur interne", http.StatusInternalServerError)
		return
	}

	sd := stateData{State: state, CodeVerifier: pkce.CodeVerifier}
	if err := h.sessions.SetEncryptedCookie(w, stateCookieName, sd, stateCookieMaxAge); err != nil {
		h.logger.Error("Ошибка установки state cookie", slog.String("error", err.Error()))
		http.Error(w, "Erreur interne", http.StatusInternalServerError)
		return
	}

	authorizeURL := h.client.AuthorizeURL(buildRedirectURI(r), state, pkce.CodeChallenge)
	h.logger.Debug("Redirect на Discord", slog.String("authorize_url", authorizeURL))
	http.Redirect(w, r, authorizeURL, http.StatusFound)
}

// HandleCallback обрабатывает GET /auth/callback.
// Обменивает code на токены, получает профиль, создаёт сессию и
// разрешает пользователя (событие SIGNED_IN).
func (h *AuthHandler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if errCode := q.Get("error"); errCode != "" {
		h.logger.Warn("Discord вернул ошибку авторизации",
			slog.String("error", errCode),
			slog.String("description", q.Get("error_description")),
		)
		h.fail(w, r, "Connexion refusée par Discord")
		return
	}

	code, state := q.Get("code"), q.Get("state")
	if code == "" || state == "" {
		h.fail(w, r, "Paramètres de connexion manquants")
		return
	}

	var sd stateData
	if err := h.sessions.ReadEncryptedCookie(r, stateCookieName, &sd); err != nil {
		h.logger.Warn("State cookie отсутствует или повреждён", slog.String("error", err.Error()))
		h.fail(w, r, "Session de connexion expirée, veuillez réessayer")
		return
	}
	h.sessions.ClearCookie(w, stateCookieName)

	if sd.State != state {
		h.logger.Warn("State mismatch (возможная CSRF атака)",
			slog.String("expected", sd.State),
			slog.String("received", state),
		)
		h.fail(w, r, "Session de connexion invalide")
		return
	}

	ctx := r.Context()
	tokenResp, err := h.client.ExchangeCode(ctx, code, buildRedirectURI(r), sd.CodeVerifier)
	if err != nil {
		h.logger.Error("Ошибка обмена code на токены", slog.String("error", err.Error()))
		h.fail(w, r, "Erreur d'authentification")
		return
	}

	profile, err := h.client.FetchProfile(ctx, tokenResp.AccessToken)
	if err != nil {
		h.logger.Error("Ошибка получения профиля Discord", slog.String("error", err.Error()))
		h.fail(w, r, "Impossible de récupérer le profil Discord")
		return
	}

	session := &auth.SessionData{
		DiscordID:  profile.ID,
		Username:   profile.Username,
		GlobalName: profile.GlobalName,
	}
	session.ApplyTokens(tokenResp, time.Now())

	authState, err := h.resolver.Resolve(ctx, uimiddleware.SessionEvent(service.EventSignedIn, session))
	if authState.ForceSignOut || !authState.IsAuthenticated {
		h.logger.Warn("Вход отклонён",
			slog.String("discord_id", profile.ID),
			slog.Any("error", err),
		)
		h.sessions.ClearSessionCookie(w)
		h.fail(w, r, "Connexion impossible, veuillez réessayer")
		return
	}
	session.UserID = authState.UserID()

	if err := h.sessions.SetSessionCookie(w, session); err != nil {
		h.logger.Error("Ошибка установки session cookie", slog.String("error", err.Error()))
		h.fail(w, r, "Erreur de création de session")
		return
	}

	h.logger.Info("Пользователь вошёл",
		slog.String("discord_id", profile.ID),
		slog.String("user_id", session.UserID),
		slog.Bool("first_login", authState.FirstLogin),
	)
	h.setFlash(w, pages.FlashSuccess, "Connexion réussie")
	http.Redirect(w, r, uimiddleware.HomePath, http.StatusFound)
}

// HandleLogout обрабатывает POST /auth/logout.
// Токен отзывается без ожидания результата для пользователя.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	h.sessions.ClearSessionCookie(w)

	if session := uimiddleware.SessionFromContext(r.Context()); session != nil && session.AccessToken != "" {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), revokeTimeout)
		if err := h.client.Revoke(ctx, session.AccessToken); err != nil {
			h.logger.Warn("Ошибка отзыва токена", slog.String("error", err.Error()))
		}
		cancel()
	}

	if _, err := h.resolver.Resolve(r.Context(), service.SessionEvent{Type: service.EventSignedOut}); err != nil {
		h.logger.Warn("Ошибка обработки выхода", slog.String("error", err.Error()))
	}

	h.logger.Info("Пользователь вышел")
	http.Redirect(w, r, uimiddleware.LoginPath, http.StatusSeeOther)
}

// fail возвращает на страницу входа с сообщением.
func (h *AuthHandler) fail(w http.ResponseWriter, r *http.Request, message string) {
	http.Redirect(w, r, uimiddleware.LoginPath+"?error="+url.QueryEscape(message), http.StatusFound)
}

// buildRedirectURI формирует callback redirect URI на основе текущего запроса.
func buildRedirectURI(r *http.Request) string {
	return buildBaseURL(r) + "/auth/callback"
}

// buildBaseURL формирует базовый URL (scheme + host) из заголовков запроса.
// Учитывает X-Forwarded-* заголовки от reverse proxy.
func buildBaseURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}

	host := r.Host
	if fwdHost := r.Header.Get("X-Forwarded-Host"); fwdHost != "" {
		host = fwdHost
	}
	return scheme + "://" + host
}
