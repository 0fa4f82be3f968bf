package filestore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bigkaa/paneldot/internal/domain/model"
	"github.com/bigkaa/paneldot/internal/repository"
)

// --- Пользователи ---

type userRepo struct {
	db *DB
}

func (r *userRepo) GetByID(ctx context.Context, id string) (*model.User, error) {
	var out *model.User
	err := r.db.withRead(ctx, func(s *snapshot) error {
		if u, ok := s.Users[id]; ok {
			cp := *u
			out = &cp
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if out == nil {
		return nil, repository.ErrNotFound
	}
	return out, nil
}

func (r *userRepo) GetByDiscordID(ctx context.Context, discordID string) (*model.User, error) {
	var out *model.User
	err := r.db.withRead(ctx, func(s *snapshot) error {
		if u := findUserByDiscordID(s, discordID); u != nil {
			cp := *u
			out = &cp
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if out == nil {
		return nil, repository.ErrNotFound
	}
	return out, nil
}

// Upsert повторяет семантику PostgreSQL: при совпадении discord_id меняется только имя.
func (r *userRepo) Upsert(ctx context.Context, u *model.User) (bool, error) {
	var created bool
	err := r.db.withWrite(ctx, func(s *snapshot) error {
		now := r.db.now()
		if existing := findUserByDiscordID(s, u.DiscordID); existing != nil {
			existing.Username = u.Username
			existing.UpdatedAt = now
			*u = *existing
			return nil
		}

		stored := *u
		stored.ID = uuid.NewString()
		stored.CreatedAt = now
		stored.UpdatedAt = now
		s.Users[stored.ID] = &stored
		*u = stored
		created = true
		return nil
	})
	return created, err
}

func findUserByDiscordID(s *snapshot, discordID string) *model.User {
	for _, u := range s.Users {
		if u.DiscordID == discordID {
			return u
		}
	}
	return nil
}

// --- Параметры ---

type parametrageRepo struct {
	db *DB
}

func (r *parametrageRepo) Latest(ctx context.Context, enterpriseID string) (*model.Parametrage, error) {
	var out *model.Parametrage
	err := r.db.withRead(ctx, func(s *snapshot) error {
		if p := latestParametrage(s, enterpriseID); p != nil {
			out = cloneParametrage(p)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if out == nil {
		return nil, repository.ErrNotFound
	}
	return out, nil
}

func (r *parametrageRepo) LatestOrCreate(ctx context.Context, def *model.Parametrage) (*model.Parametrage, bool, error) {
	var (
		out     *model.Parametrage
		created bool
	)
	err := r.db.withWrite(ctx, func(s *snapshot) error {
		if p := latestParametrage(s, def.EnterpriseID); p != nil {
			out = cloneParametrage(p)
			return nil
		}
		insertParametrage(s, def, r.db.now())
		out, created = cloneParametrage(def), true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return out, created, nil
}

func (r *parametrageRepo) ListVersions(ctx context.Context, enterpriseID string) ([]model.Parametrage, error) {
	var out []model.Parametrage
	err := r.db.withRead(ctx, func(s *snapshot) error {
		// обратный порядок: при равных created_at первой идёт вставленная позже
		for i := len(s.Parametrage) - 1; i >= 0; i-- {
			if p := s.Parametrage[i]; p.EnterpriseID == enterpriseID {
				out = append(out, *cloneParametrage(p))
			}
		}
		return nil
	})
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, err
}

func (r *parametrageRepo) Create(ctx context.Context, p *model.Parametrage) error {
	return r.db.withWrite(ctx, func(s *snapshot) error {
		if versionTaken(s, p.EnterpriseID, p.ActiveVersion, "") {
			return fmt.Errorf("%w: версия %q предприятия %s", repository.ErrConflict, p.ActiveVersion, p.EnterpriseID)
		}
		insertParametrage(s, p, r.db.now())
		return nil
	})
}

func (r *parametrageRepo) Update(ctx context.Context, p *model.Parametrage) error {
	return r.db.withWrite(ctx, func(s *snapshot) error {
		for i, existing := range s.Parametrage {
			if existing.ID != p.ID || existing.EnterpriseID != p.EnterpriseID {
				continue
			}
			if versionTaken(s, p.EnterpriseID, p.ActiveVersion, p.ID) {
				return fmt.Errorf("%w: версия %q предприятия %s", repository.ErrConflict, p.ActiveVersion, p.EnterpriseID)
			}
			p.CreatedAt = existing.CreatedAt
			p.UpdatedAt = r.db.now()
			s.Parametrage[i] = cloneParametrage(p)
			return nil
		}
		return repository.ErrNotFound
	})
}

// latestParametrage возвращает последнюю по created_at версию предприятия.
func latestParametrage(s *snapshot, enterpriseID string) *model.Parametrage {
	var latest *model.Parametrage
	for _, p := range s.Parametrage {
		if p.EnterpriseID != enterpriseID {
			continue
		}
		if latest == nil || !p.CreatedAt.Before(latest.CreatedAt) {
			latest = p
		}
	}
	return latest
}

// insertParametrage заполняет ID и временные метки p и добавляет копию в снимок.
func insertParametrage(s *snapshot, p *model.Parametrage, now time.Time) {
	p.ID = uuid.NewString()
	p.CreatedAt = now
	p.UpdatedAt = now
	s.Parametrage = append(s.Parametrage, cloneParametrage(p))
}

func versionTaken(s *snapshot, enterpriseID, version, exceptID string) bool {
	for _, p := range s.Parametrage {
		if p.EnterpriseID == enterpriseID && p.ActiveVersion == version && p.ID != exceptID {
			return true
		}
	}
	return false
}

func cloneParametrage(p *model.Parametrage) *model.Parametrage {
	cp := p.CopyConfig()
	cp.ID = p.ID
	cp.ActiveVersion = p.ActiveVersion
	cp.CreatedAt = p.CreatedAt
	cp.UpdatedAt = p.UpdatedAt
	return &cp
}

// --- Настройки Discord ---

type discordSettingsRepo struct {
	db *DB
}

func (r *discordSettingsRepo) Get(ctx context.Context, enterpriseID string) (*model.DiscordSettings, error) {
	var out *model.DiscordSettings
	err := r.db.withRead(ctx, func(s *snapshot) error {
		if ds, ok := s.DiscordSettings[enterpriseID]; ok {
			cp := *ds
			out = &cp
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if out == nil {
		return nil, repository.ErrNotFound
	}
	return out, nil
}

func (r *discordSettingsRepo) GetOrCreate(ctx context.Context, enterpriseID string) (*model.DiscordSettings, bool, error) {
	var (
		out     model.DiscordSettings
		created bool
	)
	err := r.db.withWrite(ctx, func(s *snapshot) error {
		if ds, ok := s.DiscordSettings[enterpriseID]; ok {
			out = *ds
			return nil
		}
		now := r.db.now()
		ds := &model.DiscordSettings{
			ID:           uuid.NewString(),
			EnterpriseID: enterpriseID,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		s.DiscordSettings[enterpriseID] = ds
		out, created = *ds, true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return &out, created, nil
}

func (r *discordSettingsRepo) Upsert(ctx context.Context, ds *model.DiscordSettings) error {
	return r.db.withWrite(ctx, func(s *snapshot) error {
		now := r.db.now()
		if existing, ok := s.DiscordSettings[ds.EnterpriseID]; ok {
			ds.ID = existing.ID
			ds.CreatedAt = existing.CreatedAt
		} else {
			ds.ID = uuid.NewString()
			ds.CreatedAt = now
		}
		ds.UpdatedAt = now
		stored := *ds
		s.DiscordSettings[ds.EnterpriseID] = &stored
		return nil
	})
}

// --- Журнал аудита ---

type actionLogRepo struct {
	db *DB
}

func (r *actionLogRepo) Log(ctx context.Context, e model.ActionEntry) (string, error) {
	oldData, err := repository.MarshalSnapshot(e.OldData)
	if err != nil {
		return "", fmt.Errorf("ошибка сериализации old_data: %w", err)
	}
	newData, err := repository.MarshalSnapshot(e.NewData)
	if err != nil {
		return "", fmt.Errorf("ошибка сериализации new_data: %w", err)
	}

	l := &model.ActionLog{
		ID:                uuid.NewString(),
		UserID:            optional(e.UserID),
		EnterpriseID:      e.EnterpriseID,
		ActionType:        e.ActionType,
		ActionDescription: e.Description,
		TargetTable:       optional(e.TargetTable),
		TargetID:          optional(e.TargetID),
		OldData:           oldData,
		NewData:           newData,
		IPAddress:         optional(e.IPAddress),
		UserAgent:         optional(e.UserAgent),
	}

	err = r.db.withWrite(ctx, func(s *snapshot) error {
		l.CreatedAt = r.db.now()
		s.ActionLogs = append(s.ActionLogs, l)
		return nil
	})
	if err != nil {
		return "", err
	}
	return l.ID, nil
}

func (r *actionLogRepo) List(ctx context.Context, f repository.ActionLogFilter) ([]model.ActionLog, error) {
	query := strings.ToLower(f.Query)
	var matched []model.ActionLog

	err := r.db.withRead(ctx, func(s *snapshot) error {
		for i := len(s.ActionLogs) - 1; i >= 0; i-- {
			l := s.ActionLogs[i]
			if f.EnterpriseID != "" && l.EnterpriseID != f.EnterpriseID {
				continue
			}
			if query != "" &&
				!strings.Contains(strings.ToLower(l.ActionType), query) &&
				!strings.Contains(strings.ToLower(l.ActionDescription), query) {
				continue
			}
			cp := *l
			if l.UserID != nil {
				if u, ok := s.Users[*l.UserID]; ok {
					cp.Actor = &model.ActionActor{Username: u.Username, DiscordID: u.DiscordID, Role: u.Role}
				}
			}
			matched = append(matched, cp)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })

	if f.Offset >= len(matched) {
		return nil, nil
	}
	matched = matched[f.Offset:]
	if f.Limit > 0 && f.Limit < len(matched) {
		matched = matched[:f.Limit]
	}
	return matched, nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
