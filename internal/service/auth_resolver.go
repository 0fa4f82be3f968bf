package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bigkaa/paneldot/internal/domain/model"
	"github.com/bigkaa/paneldot/internal/domain/rbac"
	"github.com/bigkaa/paneldot/internal/repository"
)

// SessionEventType: тип изменения внешней сессии.
type SessionEventType string

// События сессии.
const (
	// EventSignedIn: пользователь только что вошёл через Discord
	EventSignedIn SessionEventType = "SIGNED_IN"
	// EventInitialSession: восстановление существующей сессии (каждый запрос)
	EventInitialSession SessionEventType = "INITIAL_SESSION"
	// EventTokenRefreshed: access token обновлён
	EventTokenRefreshed SessionEventType = "TOKEN_REFRESHED"
	EventSignedOut      SessionEventType = "SIGNED_OUT"
	EventNone           SessionEventType = "NONE"
)

// Identity: профиль внешней учётной записи (Discord).
type Identity struct {
	DiscordID  string
	Username   string
	GlobalName string
	Name       string
	FullName   string
}

// DisplayName выбирает отображаемое имя: global name, name, full name, username,
// иначе "User-" и последние 4 символа внешнего id.
func (i Identity) DisplayName() string {
	for _, candidate := range []string{i.GlobalName, i.Name, i.FullName, i.Username} {
		if s := strings.TrimSpace(candidate); s != "" {
			return s
		}
	}
	id := i.DiscordID
	if len(id) > 4 {
		id = id[len(id)-4:]
	}
	return "User-" + id
}

// Session: данные внешней сессии, доступные резолверу.
type Session struct {
	// UserID: внутренний id пользователя, если уже известен
	UserID   string
	Identity Identity
}

// SessionEvent: изменение состояния внешней сессии.
type SessionEvent struct {
	Type    SessionEventType
	Session *Session
}

// AuthResolver сопоставляет внешнюю сессию с пользователем панели,
// создавая пользователя при первом входе.
type AuthResolver struct {
	users             repository.UserRepository
	audit             AuditLogger
	superAdminID      string
	defaultEnterprise string
	checkTimeout      time.Duration
	logger            *slog.Logger
}

// NewAuthResolver создаёт резолвер.
func NewAuthResolver(
	users repository.UserRepository,
	audit AuditLogger,
	superAdminID string,
	defaultEnterprise string,
	checkTimeout time.Duration,
	logger *slog.Logger,
) *AuthResolver {
	return &AuthResolver{
		users:             users,
		audit:             audit,
		superAdminID:      superAdminID,
		defaultEnterprise: defaultEnterprise,
		checkTimeout:      checkTimeout,
		logger:            logger.With(slog.String("component", "auth_resolver")),
	}
}

// Resolve обрабатывает событие сессии.
//
// Ошибка поиска, отличная от «не найдено», и ошибка сохранения нового
// пользователя дают пустое состояние с ForceSignOut и возвращаются.
// Для INITIAL_SESSION действует таймаут проверки: по его истечении
// состояние пустое, без ошибки и без принудительного выхода.
func (r *AuthResolver) Resolve(ctx context.Context, ev SessionEvent) (AuthState, error) {
	if ev.Type == EventSignedOut || ev.Type == EventNone || ev.Session == nil {
		return AuthState{}, nil
	}

	if ev.Type == EventInitialSession && r.checkTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.checkTimeout)
		defer cancel()
	}

	sess := ev.Session
	if sess.Identity.DiscordID == "" && sess.UserID == "" {
		return AuthState{ForceSignOut: true}, fmt.Errorf("%w: нет внешнего идентификатора", ErrSessionInvalid)
	}

	user, err := r.lookup(ctx, sess)
	switch {
	case err == nil:
	case errors.Is(err, repository.ErrNotFound):
		user = nil
	case r.timedOut(ctx, ev, sess):
		return AuthState{}, nil
	default:
		r.logger.Error("Ошибка поиска пользователя, принудительный выход",
			slog.String("discord_id", sess.Identity.DiscordID),
			slog.String("error", err.Error()),
		)
		return AuthState{ForceSignOut: true}, fmt.Errorf("%w: %v", ErrSessionInvalid, err)
	}

	created := false
	if user == nil {
		if sess.Identity.DiscordID == "" {
			return AuthState{ForceSignOut: true}, fmt.Errorf("%w: пользователь %s не найден", ErrSessionInvalid, sess.UserID)
		}
		user, created, err = r.provision(ctx, sess.Identity)
		if err != nil && r.timedOut(ctx, ev, sess) {
			return AuthState{}, nil
		}
		if err != nil {
			r.logger.Error("Не удалось создать пользователя",
				slog.String("discord_id", sess.Identity.DiscordID),
				slog.String("error", err.Error()),
			)
			return AuthState{ForceSignOut: true}, fmt.Errorf("%w: %v", ErrSessionInvalid, err)
		}
	}

	state := NewAuthState(user)
	state.FirstLogin = created

	if ev.Type == EventSignedIn {
		r.auditLogin(ctx, user, created)
	}
	return state, nil
}

// timedOut сообщает (и логирует), что истёк таймаут начальной проверки сессии.
func (r *AuthResolver) timedOut(ctx context.Context, ev SessionEvent, sess *Session) bool {
	if ev.Type != EventInitialSession || !errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return false
	}
	r.logger.Warn("Проверка сессии превысила таймаут",
		slog.String("discord_id", sess.Identity.DiscordID),
		slog.Duration("timeout", r.checkTimeout),
	)
	return true
}

// lookup ищет пользователя по внутреннему id, затем по Discord ID.
func (r *AuthResolver) lookup(ctx context.Context, sess *Session) (*model.User, error) {
	if sess.UserID != "" {
		u, err := r.users.GetByID(ctx, sess.UserID)
		if err == nil {
			return u, nil
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return nil, err
		}
	}
	if sess.Identity.DiscordID == "" {
		return nil, repository.ErrNotFound
	}
	return r.users.GetByDiscordID(ctx, sess.Identity.DiscordID)
}

// provision создаёт пользователя с минимальной ролью в предприятии по умолчанию.
func (r *AuthResolver) provision(ctx context.Context, id Identity) (*model.User, bool, error) {
	u := &model.User{
		DiscordID:    id.DiscordID,
		Username:     id.DisplayName(),
		Role:         rbac.LowestRole,
		EnterpriseID: r.defaultEnterprise,
		IsSuperAdmin: id.DiscordID == r.superAdminID,
	}

	created, err := r.users.Upsert(ctx, u)
	if err != nil {
		return nil, false, err
	}
	if created {
		r.logger.Info("Создан новый пользователь",
			slog.String("user_id", u.ID),
			slog.String("discord_id", u.DiscordID),
			slog.Bool("superadmin", u.IsSuperAdmin),
		)
	}
	return u, created, nil
}

// auditLogin пишет одну запись USER_FIRST_LOGIN или USER_LOGIN.
func (r *AuthResolver) auditLogin(ctx context.Context, u *model.User, created bool) {
	entry := model.ActionEntry{
		UserID:       u.ID,
		EnterpriseID: u.EnterpriseID,
		ActionType:   model.ActionUserLogin,
		Description:  "Connexion utilisateur",
		TargetTable:  "users",
		TargetID:     u.ID,
	}
	if created {
		entry.ActionType = model.ActionUserFirstLogin
		entry.Description = "Première connexion utilisateur"
		entry.NewData = u
	}
	r.audit.Log(ctx, entry)
}
