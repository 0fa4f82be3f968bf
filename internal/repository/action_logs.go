package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/paneldot/internal/domain/model"
)

// ActionLogFilter: параметры выборки журнала аудита.
type ActionLogFilter struct {
	// EnterpriseID: пустая строка означает все предприятия
	EnterpriseID string
	// Query: подстрока для поиска без учёта регистра по action_type или action_description
	Query  string
	Limit  int
	Offset int
}

// ActionLogRepository: интерфейс для таблицы action_logs (только добавление).
type ActionLogRepository interface {
	// Log добавляет запись через процедуру log_action и возвращает её id.
	Log(ctx context.Context, e model.ActionEntry) (string, error)
	// List возвращает записи по фильтру, новые первыми, с данными автора.
	List(ctx context.Context, f ActionLogFilter) ([]model.ActionLog, error)
}

// actionLogRepo: реализация ActionLogRepository для PostgreSQL.
type actionLogRepo struct {
	db DBTX
}

// NewActionLogRepository создаёт репозиторий журнала аудита.
func NewActionLogRepository(db DBTX) ActionLogRepository {
	return &actionLogRepo{db: db}
}

// Log вызывает log_action(...).
func (r *actionLogRepo) Log(ctx context.Context, e model.ActionEntry) (string, error) {
	oldData, err := MarshalSnapshot(e.OldData)
	if err != nil {
		return "", fmt.Errorf("ошибка сериализации old_data: %w", err)
	}
	newData, err := MarshalSnapshot(e.NewData)
	if err != nil {
		return "", fmt.Errorf("ошибка сериализации new_data: %w", err)
	}

	query := `SELECT log_action($1::uuid, $2, $3, $4, $5, $6, $7::jsonb, $8::jsonb, $9, $10)::text`

	var id string
	err = r.db.QueryRow(ctx, query,
		nullIfEmpty(e.UserID), e.EnterpriseID, e.ActionType, e.Description,
		nullIfEmpty(e.TargetTable), nullIfEmpty(e.TargetID),
		oldData, newData,
		nullIfEmpty(e.IPAddress), nullIfEmpty(e.UserAgent),
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("ошибка записи в журнал %s: %w", e.ActionType, err)
	}
	return id, nil
}

// List возвращает записи журнала с LEFT JOIN на users.
func (r *actionLogRepo) List(ctx context.Context, f ActionLogFilter) ([]model.ActionLog, error) {
	query := `
		SELECT l.id::text, l.user_id::text, l.enterprise_id, l.action_type, l.action_description,
			l.target_table, l.target_id, l.old_data, l.new_data, l.ip_address, l.user_agent,
			l.created_at, u.username, u.discord_id, u.role
		FROM action_logs l
		LEFT JOIN users u ON u.id = l.user_id
		WHERE ($1 = '' OR l.enterprise_id = $1)
		  AND ($2 = '' OR l.action_type ILIKE $3 OR l.action_description ILIKE $3)
		ORDER BY l.created_at DESC, l.seq DESC
		LIMIT $4 OFFSET $5`

	pattern := "%" + escapeLike(f.Query) + "%"
	rows, err := r.db.Query(ctx, query, f.EnterpriseID, f.Query, pattern, f.Limit, f.Offset)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения журнала аудита: %w", err)
	}
	defer rows.Close()

	var logs []model.ActionLog
	for rows.Next() {
		l, err := scanActionLog(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования action_logs: %w", err)
		}
		logs = append(logs, *l)
	}
	return logs, rows.Err()
}

// MarshalSnapshot сериализует снимок данных для old_data/new_data.
// nil даёт nil (NULL в базе).
func MarshalSnapshot(v any) (json.RawMessage, error) {
	if v == nil {
		return nil, nil
	}
	if raw, ok := v.(json.RawMessage); ok {
		return raw, nil
	}
	return json.Marshal(v)
}

// escapeLike экранирует спецсимволы шаблона LIKE.
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// scanActionLog сканирует строку журнала с данными автора.
func scanActionLog(row pgx.Row) (*model.ActionLog, error) {
	l := &model.ActionLog{}
	var (
		oldData, newData          []byte
		username, discordID, role *string
	)

	err := row.Scan(
		&l.ID, &l.UserID, &l.EnterpriseID, &l.ActionType, &l.ActionDescription,
		&l.TargetTable, &l.TargetID, &oldData, &newData, &l.IPAddress, &l.UserAgent,
		&l.CreatedAt, &username, &discordID, &role,
	)
	if err != nil {
		return nil, err
	}

	if len(oldData) > 0 {
		l.OldData = json.RawMessage(oldData)
	}
	if len(newData) > 0 {
		l.NewData = json.RawMessage(newData)
	}
	if username != nil {
		l.Actor = &model.ActionActor{
			Username:  *username,
			DiscordID: derefString(discordID),
			Role:      model.Role(derefString(role)),
		}
	}
	return l, nil
}
