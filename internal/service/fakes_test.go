package service

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bigkaa/paneldot/internal/domain/model"
	"github.com/bigkaa/paneldot/internal/repository"
	"github.com/bigkaa/paneldot/internal/repository/filestore"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestStore открывает файловое хранилище во временном каталоге.
func newTestStore(t *testing.T) *repository.Store {
	t.Helper()
	db, err := filestore.Open(filepath.Join(t.TempDir(), "store.json"), testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db.Store()
}

// recordingAudit запоминает записи журнала.
type recordingAudit struct {
	mu      sync.Mutex
	entries []model.ActionEntry
}

func (a *recordingAudit) Log(_ context.Context, e model.ActionEntry) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, e)
}

func (a *recordingAudit) types() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, len(a.entries))
	for i, e := range a.entries {
		out[i] = e.ActionType
	}
	return out
}

// fakeUsers: UserRepository в памяти с внедряемыми ошибками.
type fakeUsers struct {
	mu        sync.Mutex
	byID      map[string]*model.User
	getErr    error
	upsertErr error
	// block: операции ждут отмены контекста
	block bool

	getByIDCalls      int
	getByDiscordCalls int
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{byID: map[string]*model.User{}}
}

func (f *fakeUsers) add(u model.User) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byID[u.ID] = &u
}

func (f *fakeUsers) wait(ctx context.Context) error {
	if !f.block {
		return nil
	}
	<-ctx.Done()
	return ctx.Err()
}

func (f *fakeUsers) GetByID(ctx context.Context, id string) (*model.User, error) {
	if err := f.wait(ctx); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getByIDCalls++
	if f.getErr != nil {
		return nil, f.getErr
	}
	if u, ok := f.byID[id]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, repository.ErrNotFound
}

func (f *fakeUsers) GetByDiscordID(ctx context.Context, discordID string) (*model.User, error) {
	if err := f.wait(ctx); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getByDiscordCalls++
	if f.getErr != nil {
		return nil, f.getErr
	}
	for _, u := range f.byID {
		if u.DiscordID == discordID {
			cp := *u
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeUsers) Upsert(ctx context.Context, u *model.User) (bool, error) {
	if err := f.wait(ctx); err != nil {
		return false, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.upsertErr != nil {
		return false, f.upsertErr
	}
	for _, existing := range f.byID {
		if existing.DiscordID == u.DiscordID {
			existing.Username = u.Username
			*u = *existing
			return false, nil
		}
	}
	u.ID = "u-" + strconv.Itoa(len(f.byID)+1)
	cp := *u
	f.byID[u.ID] = &cp
	return true, nil
}

// actor создаёт AuthState для пользователя с заданной ролью.
func actor(role model.Role, superadmin bool, enterprise string) AuthState {
	return NewAuthState(&model.User{
		ID:           "actor-" + string(role),
		DiscordID:    "1" + strconv.Itoa(len(role)),
		Username:     "Actor",
		Role:         role,
		EnterpriseID: enterprise,
		IsSuperAdmin: superadmin,
	})
}
