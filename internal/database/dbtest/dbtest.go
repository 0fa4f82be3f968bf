// Пакет dbtest запускает PostgreSQL в контейнере для интеграционных тестов.
// Тесты пропускаются, если не задана переменная TEST_INTEGRATION.
package dbtest

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/bigkaa/paneldot/internal/database"
)

// Database: тестовая база данных с применёнными миграциями.
type Database struct {
	Container *postgres.PostgresContainer
	Pool      *pgxpool.Pool
	// URL: строка подключения postgres://
	URL string
}

// Start поднимает контейнер PostgreSQL, применяет миграции и открывает пул.
// Контейнер и пул закрываются через t.Cleanup.
func Start(t *testing.T) *Database {
	t.Helper()

	if os.Getenv("TEST_INTEGRATION") == "" {
		t.Skip("Пропуск интеграционного теста: TEST_INTEGRATION не установлена")
	}

	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"docker.io/postgres:17-alpine",
		postgres.WithDatabase("paneldot_test"),
		postgres.WithUsername("paneldot"),
		postgres.WithPassword("test-password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("Не удалось запустить PostgreSQL контейнер: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("Ошибка остановки контейнера: %v", err)
		}
	})

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("Не удалось получить строку подключения: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	migrateURL := "pgx5://" + strings.TrimPrefix(connStr, "postgres://")
	if err := database.MigrateURL(migrateURL, logger); err != nil {
		t.Fatalf("Ошибка миграций: %v", err)
	}

	pool, err := database.ConnectDSN(ctx, connStr)
	if err != nil {
		t.Fatalf("Ошибка подключения: %v", err)
	}
	t.Cleanup(pool.Close)

	return &Database{Container: container, Pool: pool, URL: connStr}
}
