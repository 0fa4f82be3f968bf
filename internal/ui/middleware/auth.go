// Пакет middleware: HTTP middleware интерфейса панели.
// auth.go: восстановление сессии из cookie, обновление токенов,
// разрешение пользователя и защита маршрутов.
package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/bigkaa/paneldot/internal/service"
	"github.com/bigkaa/paneldot/internal/ui/auth"
)

// contextKey: тип ключей контекста UI.
type contextKey string

const (
	// ContextKeyUISession: данные сессии в контексте запроса.
	ContextKeyUISession contextKey = "ui_session"
	// ContextKeyAuthState: разрешённое состояние аутентификации.
	ContextKeyAuthState contextKey = "auth_state"
)

// Маршруты, на которые ведут защитники.
const (
	LoginPath = "/auth"
	HomePath  = "/"
)

// SessionResolver сопоставляет событие сессии с пользователем панели.
type SessionResolver interface {
	Resolve(ctx context.Context, ev service.SessionEvent) (service.AuthState, error)
}

// TokenRefresher обновляет access token.
type TokenRefresher interface {
	RefreshTokens(ctx context.Context, refreshToken string) (*auth.TokenResponse, error)
}

// UIAuth восстанавливает сессию на каждом запросе и кладёт AuthState в контекст.
// Сам по себе не перенаправляет: решение принимают RequireAuth и RequireSuperAdmin.
type UIAuth struct {
	sessionManager *auth.SessionManager
	refresher      TokenRefresher
	resolver       SessionResolver
	logger         *slog.Logger
}

// NewUIAuth создаёт новый UIAuth middleware.
func NewUIAuth(
	sessionManager *auth.SessionManager,
	refresher TokenRefresher,
	resolver SessionResolver,
	logger *slog.Logger,
) *UIAuth {
	return &UIAuth{
		sessionManager: sessionManager,
		refresher:      refresher,
		resolver:       resolver,
		logger:         logger.With(slog.String("component", "ui_auth_middleware")),
	}
}

// Middleware возвращает HTTP middleware восстановления сессии.
func (ua *UIAuth) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := service.WithClientInfo(r.Context(), ClientInfo(r))

			session, state := ua.restore(ctx, w, r)

			ctx = context.WithValue(ctx, ContextKeyAuthState, state)
			if session != nil {
				ctx = context.WithValue(ctx, ContextKeyUISession, session)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// restore читает cookie, обновляет токен при необходимости и разрешает пользователя.
func (ua *UIAuth) restore(ctx context.Context, w http.ResponseWriter, r *http.Request) (*auth.SessionData, service.AuthState) {
	session, err := ua.sessionManager.GetSessionFromRequest(r)
	if err != nil {
		ua.logger.Debug("Ошибка чтения UI-сессии",
			slog.String("error", err.Error()),
			slog.String("remote_addr", r.RemoteAddr),
		)
		ua.sessionManager.ClearSessionCookie(w)
		return nil, service.AuthState{}
	}
	if session == nil {
		return nil, service.AuthState{}
	}

	eventType := service.EventInitialSession
	if session.IsExpired() {
		if err := ua.refreshSession(ctx, session); err != nil {
			ua.logger.Info("Не удалось обновить сессию, выход",
				slog.String("discord_id", session.DiscordID),
				slog.String("error", err.Error()),
			)
			ua.sessionManager.ClearSessionCookie(w)
			state, _ := ua.resolver.Resolve(ctx, service.SessionEvent{Type: service.EventSignedOut})
			return nil, state
		}
		eventType = service.EventTokenRefreshed
	}

	state, err := ua.resolver.Resolve(ctx, SessionEvent(eventType, session))
	if state.ForceSignOut {
		ua.logger.Warn("Принудительный выход",
			slog.String("discord_id", session.DiscordID),
			slog.Any("error", err),
		)
		ua.sessionManager.ClearSessionCookie(w)
		return nil, service.AuthState{}
	}
	if err != nil {
		ua.logger.Error("Ошибка разрешения сессии", slog.String("error", err.Error()))
	}

	dirty := eventType == service.EventTokenRefreshed
	if id := state.UserID(); id != "" && id != session.UserID {
		session.UserID = id
		dirty = true
	}
	if dirty {
		if err := ua.sessionManager.SetSessionCookie(w, session); err != nil {
			ua.logger.Error("Ошибка обновления session cookie", slog.String("error", err.Error()))
		}
	}
	return session, state
}

// refreshSession обновляет токены в session.
func (ua *UIAuth) refreshSession(ctx context.Context, session *auth.SessionData) error {
	if session.RefreshToken == "" {
		return errors.New("refresh token отсутствует")
	}
	tokenResp, err := ua.refresher.RefreshTokens(ctx, session.RefreshToken)
	if err != nil {
		return err
	}
	session.ApplyTokens(tokenResp, time.Now())
	return nil
}

// SessionEvent строит событие резолвера по данным cookie.
func SessionEvent(t service.SessionEventType, s *auth.SessionData) service.SessionEvent {
	return service.SessionEvent{
		Type: t,
		Session: &service.Session{
			UserID: s.UserID,
			Identity: service.Identity{
				DiscordID:  s.DiscordID,
				Username:   s.Username,
				GlobalName: s.GlobalName,
			},
		},
	}
}

// ClientInfo извлекает адрес и User-Agent клиента.
// RemoteAddr уже учитывает X-Forwarded-For (chi RealIP).
func ClientInfo(r *http.Request) service.ClientInfo {
	ip := r.RemoteAddr
	if host, _, err := net.SplitHostPort(ip); err == nil {
		ip = host
	}
	return service.ClientInfo{IPAddress: ip, UserAgent: r.UserAgent()}
}

// SessionFromContext извлекает SessionData из контекста запроса.
func SessionFromContext(ctx context.Context) *auth.SessionData {
	session, ok := ctx.Value(ContextKeyUISession).(*auth.SessionData)
	if !ok {
		return nil
	}
	return session
}

// StateFromContext возвращает AuthState из контекста (пустое, если нет).
func StateFromContext(ctx context.Context) service.AuthState {
	state, _ := ctx.Value(ContextKeyAuthState).(service.AuthState)
	return state
}

// WithState кладёт AuthState в контекст (для обработчиков и тестов).
func WithState(ctx context.Context, state service.AuthState) context.Context {
	return context.WithValue(ctx, ContextKeyAuthState, state)
}

// GuardDecision: решение защитника маршрута.
type GuardDecision int

// Решения защитника. Состояния «загрузка» нет: UIAuth разрешает сессию
// до вызова обработчика, истечение PD_AUTH_CHECK_TIMEOUT даёт анонима.
const (
	DecisionAllow GuardDecision = iota
	DecisionRedirectLogin
	DecisionRedirectHome
)

// String возвращает имя решения.
func (d GuardDecision) String() string {
	switch d {
	case DecisionAllow:
		return "allow"
	case DecisionRedirectLogin:
		return "redirect_login"
	case DecisionRedirectHome:
		return "redirect_home"
	default:
		return "unknown"
	}
}

// Evaluate решает, можно ли открыть маршрут.
func Evaluate(state service.AuthState, requireSuperAdmin bool) GuardDecision {
	switch {
	case !state.IsAuthenticated || state.CurrentUser == nil:
		return DecisionRedirectLogin
	case requireSuperAdmin && !state.IsSuperAdmin:
		return DecisionRedirectHome
	default:
		return DecisionAllow
	}
}

// RequireAuth пропускает только аутентифицированных пользователей.
func RequireAuth(next http.Handler) http.Handler {
	return guard(next, false)
}

// RequireSuperAdmin пропускает только superadmin, остальных ведёт на главную.
func RequireSuperAdmin(next http.Handler) http.Handler {
	return guard(next, true)
}

func guard(next http.Handler, requireSuperAdmin bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch Evaluate(StateFromContext(r.Context()), requireSuperAdmin) {
		case DecisionAllow:
			next.ServeHTTP(w, r)
		case DecisionRedirectLogin:
			http.Redirect(w, r, LoginPath, http.StatusFound)
		default:
			http.Redirect(w, r, HomePath, http.StatusFound)
		}
	})
}

// RedirectIfAuthenticated уводит вошедшего пользователя со страницы входа на главную.
func RedirectIfAuthenticated(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if StateFromContext(r.Context()).IsAuthenticated {
			http.Redirect(w, r, HomePath, http.StatusFound)
			return
		}
		next.ServeHTTP(w, r)
	})
}
