// Пакет filestore: локальный (офлайн) бэкенд хранилища.
// Все данные лежат в одном JSON-файле, который перезаписывается
// после каждой изменяющей операции. Рассчитан на один процесс.
package filestore

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/bigkaa/paneldot/internal/domain/model"
	"github.com/bigkaa/paneldot/internal/repository"
)

// snapshotVersion: версия формата файла.
const snapshotVersion = 1

// snapshot: содержимое файла хранилища.
type snapshot struct {
	Version         int                               `json:"version"`
	Users           map[string]*model.User            `json:"users"`
	Parametrage     []*model.Parametrage              `json:"parametrage"`
	DiscordSettings map[string]*model.DiscordSettings `json:"discord_settings"`
	ActionLogs      []*model.ActionLog                `json:"action_logs"`
	CreatedAt       time.Time                         `json:"created_at"`
	UpdatedAt       time.Time                         `json:"updated_at"`
}

// DB: файловое хранилище с блокировкой на чтение/запись.
type DB struct {
	mu     sync.RWMutex
	file   *os.File
	snap   *snapshot
	path   string
	now    func() time.Time
	logger *slog.Logger
}

// Open открывает (или создаёт) файл хранилища.
// Новый файл заполняется демонстрационным журналом аудита.
func Open(path string, logger *slog.Logger) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ошибка создания каталога хранилища: %w", err)
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, fmt.Errorf("ошибка открытия файла хранилища: %w", err)
	}

	db := &DB{
		file:   f,
		path:   path,
		now:    time.Now,
		logger: logger.With(slog.String("component", "filestore")),
	}
	if err := db.load(); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("ошибка загрузки %s: %w", path, err)
	}

	db.logger.Info("Локальное хранилище открыто",
		slog.String("path", path),
		slog.Int("users", len(db.snap.Users)),
		slog.Int("action_logs", len(db.snap.ActionLogs)),
	)
	return db, nil
}

// Close закрывает файл хранилища.
func (db *DB) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.file.Close()
}

// Store возвращает репозитории поверх файлового хранилища.
func (db *DB) Store() *repository.Store {
	return &repository.Store{
		Users:           &userRepo{db: db},
		Parametrage:     &parametrageRepo{db: db},
		DiscordSettings: &discordSettingsRepo{db: db},
		ActionLogs:      &actionLogRepo{db: db},
		Ready:           db,
	}
}

// CheckReady проверяет доступность файла хранилища.
func (db *DB) CheckReady() (status string, message string) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	if _, err := db.file.Stat(); err != nil {
		return "fail", fmt.Sprintf("файл хранилища недоступен: %v", err)
	}
	return "ok", db.path
}

// load читает снимок из файла; пустой файл инициализируется.
func (db *DB) load() error {
	info, err := db.file.Stat()
	if err != nil {
		return err
	}
	if info.Size() == 0 {
		now := db.now()
		db.snap = &snapshot{
			Version:         snapshotVersion,
			Users:           map[string]*model.User{},
			DiscordSettings: map[string]*model.DiscordSettings{},
			ActionLogs:      seedActionLogs(now),
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		return db.flushLocked()
	}

	var snap snapshot
	if err := json.NewDecoder(db.file).Decode(&snap); err != nil {
		return err
	}
	if snap.Version != snapshotVersion {
		return fmt.Errorf("неподдерживаемая версия файла %d", snap.Version)
	}
	if snap.Users == nil {
		snap.Users = map[string]*model.User{}
	}
	if snap.DiscordSettings == nil {
		snap.DiscordSettings = map[string]*model.DiscordSettings{}
	}
	db.snap = &snap
	return nil
}

// flushLocked перезаписывает файл текущим снимком. Вызывается под mu.
func (db *DB) flushLocked() error {
	if _, err := db.file.Seek(0, io.SeekStart); err != nil {
		return err
	}
	enc := json.NewEncoder(db.file)
	enc.SetIndent("", "  ")
	if err := enc.Encode(db.snap); err != nil {
		return err
	}
	pos, err := db.file.Seek(0, io.SeekCurrent)
	if err != nil {
		return err
	}
	if err := db.file.Truncate(pos); err != nil {
		return err
	}
	return db.file.Sync()
}

// withWrite выполняет fn под блокировкой записи и сохраняет снимок.
// Если fn вернула ошибку, файл не перезаписывается.
func (db *DB) withWrite(ctx context.Context, fn func(s *snapshot) error) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := fn(db.snap); err != nil {
		return err
	}
	db.snap.UpdatedAt = db.now()
	if err := db.flushLocked(); err != nil {
		return fmt.Errorf("ошибка записи файла хранилища: %w", err)
	}
	return nil
}

// withRead выполняет fn под блокировкой чтения.
func (db *DB) withRead(ctx context.Context, fn func(s *snapshot) error) error {
	db.mu.RLock()
	defer db.mu.RUnlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(db.snap)
}
