package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/paneldot/internal/domain/model"
)

// UserRepository: интерфейс для таблицы users.
type UserRepository interface {
	// GetByID возвращает пользователя по внутреннему id. Если не найден, ErrNotFound.
	GetByID(ctx context.Context, id string) (*model.User, error)
	// GetByDiscordID возвращает пользователя по Discord ID. Если не найден, ErrNotFound.
	GetByDiscordID(ctx context.Context, discordID string) (*model.User, error)
	// Upsert создаёт пользователя или, при конфликте по discord_id, обновляет имя.
	// Роль, предприятие и флаг superadmin существующей записи не меняются.
	// Заполняет u сохранёнными значениями; created = true, если запись новая.
	Upsert(ctx context.Context, u *model.User) (created bool, err error)
}

// userRepo: реализация UserRepository для PostgreSQL.
type userRepo struct {
	db DBTX
}

// NewUserRepository создаёт репозиторий пользователей.
func NewUserRepository(db DBTX) UserRepository {
	return &userRepo{db: db}
}

const userColumns = `id::text, discord_id, username, role, enterprise_id, is_superadmin, created_at, updated_at`

// GetByID возвращает пользователя по внутреннему id.
func (r *userRepo) GetByID(ctx context.Context, id string) (*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id::text = $1`

	u, err := scanUser(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения пользователя %s: %w", id, err)
	}
	return u, nil
}

// GetByDiscordID возвращает пользователя по Discord ID.
func (r *userRepo) GetByDiscordID(ctx context.Context, discordID string) (*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE discord_id = $1`

	u, err := scanUser(r.db.QueryRow(ctx, query, discordID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения пользователя discord_id=%s: %w", discordID, err)
	}
	return u, nil
}

// Upsert создаёт пользователя (INSERT ... ON CONFLICT (discord_id) DO UPDATE).
// xmax = 0 у возвращённой строки означает, что строка была вставлена.
func (r *userRepo) Upsert(ctx context.Context, u *model.User) (bool, error) {
	query := `
		INSERT INTO users (discord_id, username, role, enterprise_id, is_superadmin)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (discord_id) DO UPDATE
		SET username = EXCLUDED.username,
			updated_at = NOW()
		RETURNING ` + userColumns + `, (xmax = 0) AS inserted`

	var created bool
	err := r.db.QueryRow(ctx, query,
		u.DiscordID, u.Username, string(u.Role), u.EnterpriseID, u.IsSuperAdmin,
	).Scan(
		&u.ID, &u.DiscordID, &u.Username, &u.Role, &u.EnterpriseID,
		&u.IsSuperAdmin, &u.CreatedAt, &u.UpdatedAt, &created,
	)
	if err != nil {
		return false, fmt.Errorf("ошибка сохранения пользователя discord_id=%s: %w", u.DiscordID, err)
	}
	return created, nil
}

// scanUser сканирует строку users в модель.
func scanUser(row pgx.Row) (*model.User, error) {
	u := &model.User{}
	err := row.Scan(
		&u.ID, &u.DiscordID, &u.Username, &u.Role, &u.EnterpriseID,
		&u.IsSuperAdmin, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return u, nil
}
