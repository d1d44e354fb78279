//go:build integration

package containers

import (
	"context"
	"database/sql"
	"testing"

	"github.com/ignite/subscriptions/internal/migrate"
	"github.com/ignite/subscriptions/internal/pkg/logger"
	"github.com/ignite/subscriptions/migrations"
	_ "github.com/lib/pq"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
)

// PostgresContainer wraps a testcontainers Postgres instance with the
// schema applied.
type PostgresContainer struct {
	Container *tcpostgres.PostgresContainer
	DSN       string
	DB        *sql.DB
}

// NewPostgresContainer starts Postgres, applies the embedded migrations and
// registers cleanup on t.
func NewPostgresContainer(t *testing.T) *PostgresContainer {
	t.Helper()

	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("newsletter"),
		tcpostgres.WithUsername("app"),
		tcpostgres.WithPassword("secret"),
		tcpostgres.BasicWaitStrategies(),
	)
	testcontainers.CleanupContainer(t, container)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("failed to get postgres connection string: %v", err)
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		t.Fatalf("failed to open postgres: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if _, err := migrate.Apply(ctx, db, migrations.FS, logger.Nop()); err != nil {
		t.Fatalf("failed to apply migrations: %v", err)
	}

	return &PostgresContainer{Container: container, DSN: dsn, DB: db}
}

// Truncate removes all subscription data between tests.
func (p *PostgresContainer) Truncate(t *testing.T) {
	t.Helper()
	if _, err := p.DB.Exec(`TRUNCATE subscription_tokens, subscriptions`); err != nil {
		t.Fatalf("failed to truncate: %v", err)
	}
}
