package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/paneldot/internal/domain/model"
)

// DiscordSettingsRepository: интерфейс для таблицы discord_settings.
// Одна запись на предприятие.
type DiscordSettingsRepository interface {
	// Get возвращает настройки предприятия. Если нет, ErrNotFound.
	Get(ctx context.Context, enterpriseID string) (*model.DiscordSettings, error)
	// GetOrCreate возвращает настройки или создаёт пустую запись.
	GetOrCreate(ctx context.Context, enterpriseID string) (s *model.DiscordSettings, created bool, err error)
	// Upsert сохраняет все поля настроек целиком (ключ: enterprise_id).
	// Заполняет ID и временные метки сохранёнными значениями.
	Upsert(ctx context.Context, s *model.DiscordSettings) error
}

// discordSettingsRepo: реализация DiscordSettingsRepository для PostgreSQL.
type discordSettingsRepo struct {
	db DBTX
}

// NewDiscordSettingsRepository создаёт репозиторий настроек Discord.
func NewDiscordSettingsRepository(db DBTX) DiscordSettingsRepository {
	return &discordSettingsRepo{db: db}
}

const discordSettingsColumns = `
	id::text, enterprise_id,
	main_guild_id, main_guild_staff_role_id, main_guild_patron_role_id,
	main_guild_co_patron_role_id, main_guild_enterprise_role_id,
	dot_guild_id, dot_guild_staff_role_id, dot_guild_dot_role_id,
	created_at, updated_at`

// Get возвращает настройки предприятия.
func (r *discordSettingsRepo) Get(ctx context.Context, enterpriseID string) (*model.DiscordSettings, error) {
	query := `SELECT ` + discordSettingsColumns + ` FROM discord_settings WHERE enterprise_id = $1`

	s, err := scanDiscordSettings(r.db.QueryRow(ctx, query, enterpriseID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения discord_settings[%s]: %w", enterpriseID, err)
	}
	return s, nil
}

// GetOrCreate вставляет пустую запись (ON CONFLICT DO NOTHING) и читает актуальную.
func (r *discordSettingsRepo) GetOrCreate(ctx context.Context, enterpriseID string) (*model.DiscordSettings, bool, error) {
	tag, err := r.db.Exec(ctx,
		`INSERT INTO discord_settings (enterprise_id) VALUES ($1) ON CONFLICT (enterprise_id) DO NOTHING`,
		enterpriseID,
	)
	if err != nil {
		return nil, false, fmt.Errorf("ошибка создания discord_settings[%s]: %w", enterpriseID, err)
	}

	s, err := r.Get(ctx, enterpriseID)
	if err != nil {
		return nil, false, err
	}
	return s, tag.RowsAffected() == 1, nil
}

// Upsert сохраняет настройки (INSERT ... ON CONFLICT DO UPDATE).
func (r *discordSettingsRepo) Upsert(ctx context.Context, s *model.DiscordSettings) error {
	query := `
		INSERT INTO discord_settings (
			enterprise_id,
			main_guild_id, main_guild_staff_role_id, main_guild_patron_role_id,
			main_guild_co_patron_role_id, main_guild_enterprise_role_id,
			dot_guild_id, dot_guild_staff_role_id, dot_guild_dot_role_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (enterprise_id) DO UPDATE
		SET main_guild_id = EXCLUDED.main_guild_id,
			main_guild_staff_role_id = EXCLUDED.main_guild_staff_role_id,
			main_guild_patron_role_id = EXCLUDED.main_guild_patron_role_id,
			main_guild_co_patron_role_id = EXCLUDED.main_guild_co_patron_role_id,
			main_guild_enterprise_role_id = EXCLUDED.main_guild_enterprise_role_id,
			dot_guild_id = EXCLUDED.dot_guild_id,
			dot_guild_staff_role_id = EXCLUDED.dot_guild_staff_role_id,
			dot_guild_dot_role_id = EXCLUDED.dot_guild_dot_role_id,
			updated_at = NOW()
		RETURNING id::text, created_at, updated_at`

	err := r.db.QueryRow(ctx, query,
		s.EnterpriseID,
		nullIfEmpty(s.MainGuildID), nullIfEmpty(s.MainGuildStaffRoleID), nullIfEmpty(s.MainGuildPatronRoleID),
		nullIfEmpty(s.MainGuildCoPatronRoleID), nullIfEmpty(s.MainGuildEnterpriseRoleID),
		nullIfEmpty(s.DotGuildID), nullIfEmpty(s.DotGuildStaffRoleID), nullIfEmpty(s.DotGuildDotRoleID),
	).Scan(&s.ID, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("ошибка сохранения discord_settings[%s]: %w", s.EnterpriseID, err)
	}
	return nil
}

// scanDiscordSettings сканирует строку discord_settings в модель.
func scanDiscordSettings(row pgx.Row) (*model.DiscordSettings, error) {
	s := &model.DiscordSettings{}
	var ids [8]*string

	err := row.Scan(
		&s.ID, &s.EnterpriseID,
		&ids[0], &ids[1], &ids[2], &ids[3], &ids[4], &ids[5], &ids[6], &ids[7],
		&s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	s.MainGuildID = derefString(ids[0])
	s.MainGuildStaffRoleID = derefString(ids[1])
	s.MainGuildPatronRoleID = derefString(ids[2])
	s.MainGuildCoPatronRoleID = derefString(ids[3])
	s.MainGuildEnterpriseRoleID = derefString(ids[4])
	s.DotGuildID = derefString(ids[5])
	s.DotGuildStaffRoleID = derefString(ids[6])
	s.DotGuildDotRoleID = derefString(ids[7])
	return s, nil
}
