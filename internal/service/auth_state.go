package service

import (
	"context"
	"fmt"

	"github.com/bigkaa/paneldot/internal/domain/model"
	"github.com/bigkaa/paneldot/internal/domain/rbac"
)

// AuthState: результат разрешения сессии в пользователя панели.
// Resolve завершается до ответа на запрос, поэтому состояние всегда окончательное.
type AuthState struct {
	CurrentUser     *model.User
	IsAuthenticated bool
	IsSuperAdmin    bool
	CanEdit         bool
	// ForceSignOut: сессию нужно принудительно закрыть
	ForceSignOut bool
	// FirstLogin: пользователь создан при этом входе
	FirstLogin bool
}

// NewAuthState строит состояние для найденного пользователя.
func NewAuthState(u *model.User) AuthState {
	if u == nil {
		return AuthState{}
	}
	return AuthState{
		CurrentUser:     u,
		IsAuthenticated: true,
		IsSuperAdmin:    u.IsSuperAdmin,
		CanEdit:         rbac.CanEdit(u.Role, u.IsSuperAdmin),
	}
}

// UserID возвращает внутренний id текущего пользователя или пустую строку.
func (s AuthState) UserID() string {
	if s.CurrentUser == nil {
		return ""
	}
	return s.CurrentUser.ID
}

// Tenant определяет предприятие для операции.
// Пустой requested означает предприятие пользователя. Чужое предприятие
// доступно только superadmin. Неаутентифицированный вызов даёт пустой tenant.
func (s AuthState) Tenant(requested string) (string, error) {
	if !s.IsAuthenticated || s.CurrentUser == nil {
		return "", nil
	}
	own := s.CurrentUser.EnterpriseID
	if requested == "" || requested == own {
		return own, nil
	}
	if !s.IsSuperAdmin {
		return "", fmt.Errorf("%w: доступ к предприятию %s", ErrForbidden, requested)
	}
	return requested, nil
}

// ClientInfo: сетевые данные клиента для журнала аудита.
type ClientInfo struct {
	IPAddress string
	UserAgent string
}

type clientInfoKey struct{}

// WithClientInfo сохраняет данные клиента в контексте запроса.
func WithClientInfo(ctx context.Context, ci ClientInfo) context.Context {
	return context.WithValue(ctx, clientInfoKey{}, ci)
}

// ClientInfoFromContext возвращает данные клиента из контекста.
func ClientInfoFromContext(ctx context.Context) ClientInfo {
	ci, _ := ctx.Value(clientInfoKey{}).(ClientInfo)
	return ci
}
