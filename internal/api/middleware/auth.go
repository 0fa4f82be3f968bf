// auth.go: bearer-токены JSON API.
// Токен выдаётся пользователю с действующей сессией панели (POST /api/v1/auth/token),
// подписывается HS256 ключом сессий. На каждом запросе пользователь перечитывается
// из каталога, поэтому смена роли действует без перевыпуска токена.
package middleware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	apierrors "github.com/bigkaa/paneldot/internal/api/errors"
	"github.com/bigkaa/paneldot/internal/domain/model"
	"github.com/bigkaa/paneldot/internal/repository"
	"github.com/bigkaa/paneldot/internal/service"
	uimiddleware "github.com/bigkaa/paneldot/internal/ui/middleware"
)

// TokenIssuer: значение claim iss.
const TokenIssuer = "panel-dot"

// contextKey: тип для ключей контекста (избегаем коллизий).
type contextKey string

// ContextKeyAuthState: состояние пользователя API-запроса.
const ContextKeyAuthState contextKey = "api_auth_state"

// UserLookup: чтение пользователя по внутреннему id.
type UserLookup interface {
	GetByID(ctx context.Context, id string) (*model.User, error)
}

// TokenClaims: claims API-токена. sub содержит внутренний id пользователя.
type TokenClaims struct {
	jwt.RegisteredClaims
	DiscordID string `json:"discord_id"`
}

// TokenAuth выпускает и проверяет API-токены.
type TokenAuth struct {
	key    []byte
	ttl    time.Duration
	users  UserLookup
	logger *slog.Logger
	now    func() time.Time
}

// NewTokenAuth создаёт TokenAuth. key: 32-байтовый ключ HMAC.
func NewTokenAuth(key []byte, ttl time.Duration, users UserLookup, logger *slog.Logger) *TokenAuth {
	return &TokenAuth{
		key:    key,
		ttl:    ttl,
		users:  users,
		logger: logger.With(slog.String("component", "api_token_auth")),
		now:    time.Now,
	}
}

// Issue выпускает токен для пользователя.
func (a *TokenAuth) Issue(u *model.User) (string, time.Time, error) {
	if u == nil || u.ID == "" {
		return "", time.Time{}, errors.New("пользователь не определён")
	}
	now := a.now()
	expiresAt := now.Add(a.ttl)
	claims := TokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    TokenIssuer,
			Subject:   u.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		DiscordID: u.DiscordID,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.key)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("ошибка подписи токена: %w", err)
	}
	return signed, expiresAt, nil
}

// Parse проверяет подпись, срок и издателя токена.
func (a *TokenAuth) Parse(tokenString string) (*TokenClaims, error) {
	claims := &TokenClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims,
		func(*jwt.Token) (any, error) { return a.key, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuer(TokenIssuer),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil {
		return nil, err
	}
	if claims.Subject == "" {
		return nil, errors.New("claim sub отсутствует")
	}
	return claims, nil
}

// Middleware возвращает HTTP middleware проверки bearer-токена.
// Кладёт в контекст AuthState и данные клиента для журнала аудита.
func (a *TokenAuth) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				apierrors.Unauthorized(w, "Отсутствует заголовок Authorization")
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
				apierrors.Unauthorized(w, "Неверный формат Authorization: ожидается Bearer <token>")
				return
			}

			claims, err := a.Parse(parts[1])
			if err != nil {
				a.logger.Debug("Токен не прошёл проверку",
					slog.String("error", err.Error()),
					slog.String("remote_addr", r.RemoteAddr),
				)
				apierrors.Unauthorized(w, "Невалидный или просроченный токен")
				return
			}

			u, err := a.users.GetByID(r.Context(), claims.Subject)
			if err != nil {
				if errors.Is(err, repository.ErrNotFound) {
					apierrors.Unauthorized(w, "Пользователь токена не найден")
					return
				}
				a.logger.Error("Ошибка чтения пользователя токена",
					slog.String("user_id", claims.Subject),
					slog.String("error", err.Error()),
				)
				apierrors.InternalError(w, "Внутренняя ошибка сервера")
				return
			}
			if u.DiscordID != claims.DiscordID {
				apierrors.Unauthorized(w, "Токен выпущен для другого пользователя")
				return
			}

			ctx := service.WithClientInfo(r.Context(), uimiddleware.ClientInfo(r))
			ctx = WithState(ctx, service.NewAuthState(u))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// StateFromContext возвращает AuthState API-запроса (пустое, если нет).
func StateFromContext(ctx context.Context) service.AuthState {
	state, _ := ctx.Value(ContextKeyAuthState).(service.AuthState)
	return state
}

// WithState кладёт AuthState в контекст (для обработчиков и тестов).
func WithState(ctx context.Context, state service.AuthState) context.Context {
	return context.WithValue(ctx, ContextKeyAuthState, state)
}
