package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bigkaa/paneldot/internal/domain/model"
	"github.com/bigkaa/paneldot/internal/repository"
)

// DiscordSettingsUpdate: частичное обновление настроек Discord.
// nil означает «без изменений», пустая строка очищает поле.
type DiscordSettingsUpdate struct {
	MainGuildID               *string `json:"main_guild_id,omitempty"`
	MainGuildStaffRoleID      *string `json:"main_guild_staff_role_id,omitempty"`
	MainGuildPatronRoleID     *string `json:"main_guild_patron_role_id,omitempty"`
	MainGuildCoPatronRoleID   *string `json:"main_guild_co_patron_role_id,omitempty"`
	MainGuildEnterpriseRoleID *string `json:"main_guild_enterprise_role_id,omitempty"`
	DotGuildID                *string `json:"dot_guild_id,omitempty"`
	DotGuildStaffRoleID       *string `json:"dot_guild_staff_role_id,omitempty"`
	DotGuildDotRoleID         *string `json:"dot_guild_dot_role_id,omitempty"`
}

// fields сопоставляет поля обновления с полями модели.
func (u DiscordSettingsUpdate) fields(s *model.DiscordSettings) []struct {
	name string
	src  *string
	dst  *string
} {
	return []struct {
		name string
		src  *string
		dst  *string
	}{
		{"main_guild_id", u.MainGuildID, &s.MainGuildID},
		{"main_guild_staff_role_id", u.MainGuildStaffRoleID, &s.MainGuildStaffRoleID},
		{"main_guild_patron_role_id", u.MainGuildPatronRoleID, &s.MainGuildPatronRoleID},
		{"main_guild_co_patron_role_id", u.MainGuildCoPatronRoleID, &s.MainGuildCoPatronRoleID},
		{"main_guild_enterprise_role_id", u.MainGuildEnterpriseRoleID, &s.MainGuildEnterpriseRoleID},
		{"dot_guild_id", u.DotGuildID, &s.DotGuildID},
		{"dot_guild_staff_role_id", u.DotGuildStaffRoleID, &s.DotGuildStaffRoleID},
		{"dot_guild_dot_role_id", u.DotGuildDotRoleID, &s.DotGuildDotRoleID},
	}
}

// DiscordSettingsService: настройки серверов и ролей Discord предприятия.
type DiscordSettingsService struct {
	repo   repository.DiscordSettingsRepository
	audit  AuditLogger
	logger *slog.Logger
}

// NewDiscordSettingsService создаёт сервис настроек Discord.
func NewDiscordSettingsService(repo repository.DiscordSettingsRepository, audit AuditLogger, logger *slog.Logger) *DiscordSettingsService {
	return &DiscordSettingsService{
		repo:   repo,
		audit:  audit,
		logger: logger.With(slog.String("component", "discord_settings_service")),
	}
}

// Fetch возвращает настройки предприятия, создавая пустую запись при отсутствии.
func (s *DiscordSettingsService) Fetch(ctx context.Context, actor AuthState, tenant string) (*model.DiscordSettings, error) {
	tenant, err := actor.Tenant(tenant)
	if err != nil || tenant == "" {
		return nil, err
	}

	ds, created, err := s.repo.GetOrCreate(ctx, tenant)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения настроек Discord %s: %w", tenant, translateRepoError(err))
	}
	if created {
		s.logger.Info("Созданы пустые настройки Discord", slog.String("enterprise_id", tenant))
	}
	return ds, nil
}

// Update объединяет заданные поля с текущими настройками и сохраняет запись целиком.
// Идентификаторы хранятся как есть (без пробелов по краям), формат не проверяется.
func (s *DiscordSettingsService) Update(ctx context.Context, actor AuthState, tenant string, upd DiscordSettingsUpdate) (*model.DiscordSettings, error) {
	if !actor.CanEdit {
		return nil, fmt.Errorf("%w: изменение настроек Discord", ErrForbidden)
	}

	current, err := s.Fetch(ctx, actor, tenant)
	if err != nil || current == nil {
		return nil, err
	}
	old := *current
	updated := *current

	for _, f := range upd.fields(&updated) {
		if f.src == nil {
			continue
		}
		*f.dst = strings.TrimSpace(*f.src)
	}

	if err := s.repo.Upsert(ctx, &updated); err != nil {
		return nil, fmt.Errorf("ошибка сохранения настроек Discord %s: %w", updated.EnterpriseID, translateRepoError(err))
	}

	s.audit.Log(ctx, model.ActionEntry{
		UserID:       actor.UserID(),
		EnterpriseID: updated.EnterpriseID,
		ActionType:   model.ActionUpdateDiscordSettings,
		Description:  "Modification des paramètres Discord",
		TargetTable:  "discord_settings",
		TargetID:     updated.ID,
		OldData:      old,
		NewData:      updated,
	})
	s.logger.Info("Настройки Discord обновлены",
		slog.String("enterprise_id", updated.EnterpriseID),
		slog.String("user_id", actor.UserID()),
	)
	return &updated, nil
}

