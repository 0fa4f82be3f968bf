package repository

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/bigkaa/paneldot/internal/database/dbtest"
	"github.com/bigkaa/paneldot/internal/domain/model"
)

// --- Тесты UserRepository ---

func TestUserUpsert(t *testing.T) {
	db := dbtest.Start(t)
	ctx := context.Background()
	repo := NewUserRepository(db.Pool)

	u := &model.User{
		DiscordID:    "999",
		Username:     "Tester",
		Role:         model.RoleStaff,
		EnterpriseID: "default",
	}

	created, err := repo.Upsert(ctx, u)
	if err != nil {
		t.Fatalf("Upsert() ошибка: %v", err)
	}
	if !created {
		t.Error("Upsert() created = false для новой записи")
	}
	if u.ID == "" || u.CreatedAt.IsZero() {
		t.Errorf("Upsert() не заполнил ID/CreatedAt: %+v", u)
	}

	// Повторный upsert не меняет роль и возвращает created = false
	again := &model.User{
		DiscordID:    "999",
		Username:     "Renamed",
		Role:         model.RoleSuperStaff,
		EnterpriseID: "other",
		IsSuperAdmin: true,
	}
	created, err = repo.Upsert(ctx, again)
	if err != nil {
		t.Fatalf("повторный Upsert() ошибка: %v", err)
	}
	if created {
		t.Error("повторный Upsert() created = true")
	}
	if again.ID != u.ID || again.Role != model.RoleStaff || again.EnterpriseID != "default" || again.IsSuperAdmin {
		t.Errorf("повторный Upsert() изменил защищённые поля: %+v", again)
	}
	if again.Username != "Renamed" {
		t.Errorf("Username = %q, хотели Renamed", again.Username)
	}

	byID, err := repo.GetByID(ctx, u.ID)
	if err != nil {
		t.Fatalf("GetByID() ошибка: %v", err)
	}
	if byID.DiscordID != "999" {
		t.Errorf("GetByID().DiscordID = %q, хотели 999", byID.DiscordID)
	}

	if _, err := repo.GetByDiscordID(ctx, "000"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetByDiscordID(000) ошибка = %v, хотели ErrNotFound", err)
	}
	if _, err := repo.GetByID(ctx, "not-a-uuid"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetByID(not-a-uuid) ошибка = %v, хотели ErrNotFound", err)
	}
}

// --- Тесты ParametrageRepository ---

func TestParametrageLatestOrCreate_Concurrent(t *testing.T) {
	db := dbtest.Start(t)
	ctx := context.Background()
	repo := NewParametrageRepository(db.Pool)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			def := model.DefaultParametrage("ent-1", time.Now())
			_, c, err := repo.LatestOrCreate(ctx, &def)
			if err != nil {
				t.Errorf("LatestOrCreate() ошибка: %v", err)
				return
			}
			if c {
				mu.Lock()
				created++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if created != 1 {
		t.Errorf("создано записей по умолчанию: %d, хотели 1", created)
	}
	versions, err := repo.ListVersions(ctx, "ent-1")
	if err != nil {
		t.Fatalf("ListVersions() ошибка: %v", err)
	}
	if len(versions) != 1 {
		t.Errorf("len(ListVersions()) = %d, хотели 1", len(versions))
	}
}

func TestParametrageCRUD(t *testing.T) {
	db := dbtest.Start(t)
	ctx := context.Background()
	repo := NewParametrageRepository(db.Pool)

	p := model.DefaultParametrage("ent-2", time.Now())
	p.TaxBrackets = []model.TaxBracket{{
		MinInclusive:      decimal.NewFromInt(0),
		MaxInclusive:      decimal.NewFromInt(9999),
		TaxRatePercent:    decimal.NewFromInt(7),
		SalaryMaxEmployee: decimal.NewFromInt(10000),
		SalaryMaxBoss:     decimal.NewFromInt(12000),
		BonusMaxEmployee:  decimal.NewFromInt(2000),
		BonusMaxBoss:      decimal.NewFromInt(3000),
	}}
	if err := repo.Create(ctx, &p); err != nil {
		t.Fatalf("Create() ошибка: %v", err)
	}

	got, err := repo.Latest(ctx, "ent-2")
	if err != nil {
		t.Fatalf("Latest() ошибка: %v", err)
	}
	if got.ID != p.ID || len(got.TaxBrackets) != 1 {
		t.Fatalf("Latest() = %+v, хотели запись %s с 1 ступенью", got, p.ID)
	}
	if !got.TaxBrackets[0].TaxRatePercent.Equal(decimal.NewFromInt(7)) {
		t.Errorf("ставка = %s, хотели 7", got.TaxBrackets[0].TaxRatePercent)
	}
	if !got.SalaryMaxBoss.Equal(decimal.NewFromInt(200000)) {
		t.Errorf("SalaryMaxBoss = %s, хотели 200000", got.SalaryMaxBoss)
	}

	got.BonusMaxBoss = decimal.NewFromInt(1)
	if err := repo.Update(ctx, got); err != nil {
		t.Fatalf("Update() ошибка: %v", err)
	}

	// Повтор метки версии
	dup := got.CopyConfig()
	dup.ActiveVersion = "v1"
	if err := repo.Create(ctx, &dup); !errors.Is(err, ErrConflict) {
		t.Errorf("Create() с повтором версии: ошибка = %v, хотели ErrConflict", err)
	}

	// Update чужого предприятия не находит запись
	foreign := *got
	foreign.EnterpriseID = "ent-other"
	if err := repo.Update(ctx, &foreign); !errors.Is(err, ErrNotFound) {
		t.Errorf("Update() чужого предприятия: ошибка = %v, хотели ErrNotFound", err)
	}

	if _, err := repo.Latest(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Latest(missing) ошибка = %v, хотели ErrNotFound", err)
	}
}

func TestParametrageSameTimestampOrder(t *testing.T) {
	db := dbtest.Start(t)
	ctx := context.Background()

	// NOW() одинаков внутри транзакции: порядок задаёт только seq
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin() ошибка: %v", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck
	repo := NewParametrageRepository(tx)

	var ids []string
	for _, label := range []string{"v1", "v2", "v3"} {
		p := model.DefaultParametrage("ent-tie", time.Now())
		p.ActiveVersion = label
		if err := repo.Create(ctx, &p); err != nil {
			t.Fatalf("Create(%s) ошибка: %v", label, err)
		}
		ids = append(ids, p.ID)
	}

	latest, err := repo.Latest(ctx, "ent-tie")
	if err != nil {
		t.Fatalf("Latest() ошибка: %v", err)
	}
	if latest.ActiveVersion != "v3" {
		t.Errorf("Latest() = %s, хотели последнюю вставленную v3", latest.ActiveVersion)
	}

	versions, err := repo.ListVersions(ctx, "ent-tie")
	if err != nil {
		t.Fatalf("ListVersions() ошибка: %v", err)
	}
	if len(versions) != 3 || versions[0].ID != ids[2] || versions[2].ID != ids[0] {
		t.Errorf("ListVersions() порядок неверен: %+v", versions)
	}
}

// --- Тесты DiscordSettingsRepository ---

func TestDiscordSettings(t *testing.T) {
	db := dbtest.Start(t)
	ctx := context.Background()
	repo := NewDiscordSettingsRepository(db.Pool)

	s, created, err := repo.GetOrCreate(ctx, "ent-1")
	if err != nil {
		t.Fatalf("GetOrCreate() ошибка: %v", err)
	}
	if !created || s.MainGuildID != "" {
		t.Errorf("GetOrCreate() = %+v, created = %v; хотели пустую новую запись", s, created)
	}

	s.MainGuildID = "111"
	s.DotGuildDotRoleID = "222"
	if err := repo.Upsert(ctx, s); err != nil {
		t.Fatalf("Upsert() ошибка: %v", err)
	}

	got, created, err := repo.GetOrCreate(ctx, "ent-1")
	if err != nil {
		t.Fatalf("повторный GetOrCreate() ошибка: %v", err)
	}
	if created {
		t.Error("повторный GetOrCreate() created = true")
	}
	if got.ID != s.ID || got.MainGuildID != "111" || got.DotGuildDotRoleID != "222" {
		t.Errorf("GetOrCreate() = %+v", got)
	}
}

// --- Тесты ActionLogRepository ---

func TestActionLogs(t *testing.T) {
	db := dbtest.Start(t)
	ctx := context.Background()
	users := NewUserRepository(db.Pool)
	logs := NewActionLogRepository(db.Pool)

	u := &model.User{DiscordID: "1", Username: "Admin", Role: model.RoleSuperStaff, EnterpriseID: "ent-1"}
	if _, err := users.Upsert(ctx, u); err != nil {
		t.Fatalf("Upsert() ошибка: %v", err)
	}

	entries := []model.ActionEntry{
		{UserID: u.ID, EnterpriseID: "ent-1", ActionType: model.ActionUserLogin, Description: "Connexion"},
		{UserID: u.ID, EnterpriseID: "ent-1", ActionType: model.ActionUpdateParametrage, Description: "Mise à jour 100%",
			OldData: map[string]int{"a": 1}, NewData: map[string]int{"a": 2}},
		{EnterpriseID: "ent-2", ActionType: model.ActionCreateVersion, Description: "Nouvelle version v2"},
	}
	for _, e := range entries {
		if _, err := logs.Log(ctx, e); err != nil {
			t.Fatalf("Log(%s) ошибка: %v", e.ActionType, err)
		}
	}

	all, err := logs.List(ctx, ActionLogFilter{Limit: 100})
	if err != nil {
		t.Fatalf("List() ошибка: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("len(List()) = %d, хотели 3", len(all))
	}
	if all[0].ActionType != model.ActionCreateVersion {
		t.Errorf("первая запись %s, хотели самую новую CREATE_VERSION", all[0].ActionType)
	}
	if all[1].Actor == nil || all[1].Actor.Username != "Admin" {
		t.Errorf("Actor = %+v, хотели Admin", all[1].Actor)
	}

	// Записи одной транзакции имеют одинаковый created_at
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin() ошибка: %v", err)
	}
	txLogs := NewActionLogRepository(tx)
	for _, desc := range []string{"premier", "second"} {
		if _, err := txLogs.Log(ctx, model.ActionEntry{EnterpriseID: "ent-tie", ActionType: model.ActionUserLogin, Description: desc}); err != nil {
			t.Fatalf("Log(%s) ошибка: %v", desc, err)
		}
	}
	tied, err := txLogs.List(ctx, ActionLogFilter{EnterpriseID: "ent-tie", Limit: 10})
	_ = tx.Rollback(ctx)
	if err != nil {
		t.Fatalf("List(ent-tie) ошибка: %v", err)
	}
	if len(tied) != 2 || tied[0].ActionDescription != "second" {
		t.Errorf("List(ent-tie) = %+v, хотели последнюю вставленную первой", tied)
	}

	found, err := logs.List(ctx, ActionLogFilter{Query: "update", Limit: 100})
	if err != nil {
		t.Fatalf("List(update) ошибка: %v", err)
	}
	if len(found) != 1 || found[0].ActionType != model.ActionUpdateParametrage {
		t.Errorf("List(update) = %d записей, хотели UPDATE_PARAMETRAGE", len(found))
	}

	// % ищется буквально
	found, err = logs.List(ctx, ActionLogFilter{Query: "100%", Limit: 100})
	if err != nil {
		t.Fatalf("List(100%%) ошибка: %v", err)
	}
	if len(found) != 1 {
		t.Errorf("List(100%%) = %d записей, хотели 1", len(found))
	}

	scoped, err := logs.List(ctx, ActionLogFilter{EnterpriseID: "ent-2", Limit: 100})
	if err != nil {
		t.Fatalf("List(ent-2) ошибка: %v", err)
	}
	if len(scoped) != 1 {
		t.Errorf("List(ent-2) = %d записей, хотели 1", len(scoped))
	}
}
