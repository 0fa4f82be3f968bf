// Пакет repository: хранилище данных Panel DOT.
// Интерфейсы репозиториев общие для обоих бэкендов (PostgreSQL и локальный файл),
// реализация PostgreSQL использует чистый SQL через pgx, без ORM.
package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Ошибки слоя репозиториев.
var (
	// ErrNotFound: запись не найдена.
	ErrNotFound = errors.New("запись не найдена")
	// ErrConflict: конфликт уникальности (дублирующийся ресурс).
	ErrConflict = errors.New("конфликт: запись уже существует")
)

// ReadinessChecker: проверка готовности хранилища для health endpoint.
type ReadinessChecker interface {
	CheckReady() (status string, message string)
}

// Store объединяет репозитории одного бэкенда.
type Store struct {
	Users           UserRepository
	Parametrage     ParametrageRepository
	DiscordSettings DiscordSettingsRepository
	ActionLogs      ActionLogRepository
	// Ready: проверка готовности бэкенда
	Ready ReadinessChecker
}

// DBTX: интерфейс для выполнения SQL-запросов.
// Реализуется как *pgxpool.Pool, так и pgx.Tx, что позволяет
// использовать репозитории как внутри, так и вне транзакций.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// NewPostgresStore собирает Store поверх пула PostgreSQL.
func NewPostgresStore(pool *pgxpool.Pool, ready ReadinessChecker) *Store {
	return &Store{
		Users:           NewUserRepository(pool),
		Parametrage:     NewParametrageRepository(pool),
		DiscordSettings: NewDiscordSettingsRepository(pool),
		ActionLogs:      NewActionLogRepository(pool),
		Ready:           ready,
	}
}

// runInTx выполняет fn внутри транзакции (или savepoint, если db уже транзакция).
// При ошибке fn транзакция откатывается, при успехе коммитится.
func runInTx(ctx context.Context, db DBTX, fn func(tx pgx.Tx) error) error {
	tx, err := db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // откат после коммита: no-op

	if err := fn(tx); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// isUniqueViolation проверяет, является ли ошибка нарушением уникальности PostgreSQL.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return false
}

// nullIfEmpty превращает пустую строку в NULL для необязательных колонок.
func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// derefString возвращает значение или пустую строку для NULL.
func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
