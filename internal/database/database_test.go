package database_test

import (
	"context"
	"testing"

	"github.com/bigkaa/paneldot/internal/database"
	"github.com/bigkaa/paneldot/internal/database/dbtest"
)

// TestMigrate проверяет, что миграции создают все таблицы и функцию log_action.
func TestMigrate(t *testing.T) {
	db := dbtest.Start(t)
	ctx := context.Background()

	tables := []string{"users", "parametrage", "discord_settings", "action_logs"}
	for _, table := range tables {
		var exists bool
		err := db.Pool.QueryRow(ctx,
			`SELECT EXISTS (
				SELECT FROM information_schema.tables
				WHERE table_schema = 'public' AND table_name = $1
			)`, table).Scan(&exists)
		if err != nil {
			t.Fatalf("Ошибка проверки таблицы %s: %v", table, err)
		}
		if !exists {
			t.Errorf("Таблица %s не создана", table)
		}
	}

	var id string
	err := db.Pool.QueryRow(ctx,
		`SELECT log_action(NULL, 'default', 'USER_LOGIN', 'Connexion')::text`).Scan(&id)
	if err != nil {
		t.Fatalf("log_action() вернул ошибку: %v", err)
	}
	if id == "" {
		t.Error("log_action() вернул пустой id")
	}
}

// TestReadinessChecker проверяет ReadinessChecker на живой базе.
func TestReadinessChecker(t *testing.T) {
	db := dbtest.Start(t)

	checker := database.NewReadinessChecker(db.Pool)

	status, msg := checker.CheckReady()
	if status != "ok" {
		t.Errorf("CheckReady() status = %q, message = %q; ожидали status = %q", status, msg, "ok")
	}
}

// TestSQLDB проверяет адаптер database/sql поверх пула.
func TestSQLDB(t *testing.T) {
	db := dbtest.Start(t)

	sqlDB := database.SQLDB(db.Pool)
	defer sqlDB.Close()

	if err := sqlDB.PingContext(context.Background()); err != nil {
		t.Fatalf("PingContext() вернул ошибку: %v", err)
	}
}
