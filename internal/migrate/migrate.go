// Package migrate applies SQL schema files in lexical order. Each file runs
// in its own transaction and is recorded in schema_migrations so a rerun
// skips it. Concurrent runs serialize on an advisory lock.
package migrate

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/ignite/subscriptions/internal/pkg/distlock"
	"github.com/ignite/subscriptions/internal/pkg/logger"
)

// LockKey names the advisory lock held while migrating.
const LockKey = "schema_migrations"

// Result summarizes one Apply run.
type Result struct {
	Applied []string
	Skipped []string
}

// Files lists the *.sql files in fsys in the order Apply runs them.
func Files(fsys fs.FS) ([]string, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("read migrations: %w", err)
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)
	return files, nil
}

// Apply runs every pending migration in fsys. It stops at the first failure;
// the failing file is rolled back and earlier files stay applied.
func Apply(ctx context.Context, db *sql.DB, fsys fs.FS, log *logger.Logger) (res Result, err error) {
	conn, err := db.Conn(ctx)
	if err != nil {
		return res, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Close()

	lock := distlock.NewPGAdvisoryLock(conn, LockKey)
	acquired, err := lock.TryLock(ctx)
	if err != nil {
		return res, err
	}
	if !acquired {
		log.Info("another migration run holds the lock, waiting", "lock", LockKey)
		if err := lock.Lock(ctx); err != nil {
			return res, err
		}
	}
	defer func() {
		if uerr := lock.Unlock(context.WithoutCancel(ctx)); uerr != nil && err == nil {
			err = uerr
		}
	}()

	if _, err := conn.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			filename   TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`); err != nil {
		return res, fmt.Errorf("create schema_migrations: %w", err)
	}

	files, err := Files(fsys)
	if err != nil {
		return res, err
	}

	for _, f := range files {
		data, err := fs.ReadFile(fsys, f)
		if err != nil {
			return res, fmt.Errorf("read %s: %w", f, err)
		}
		if strings.TrimSpace(string(data)) == "" {
			continue
		}

		applied, err := applyOne(ctx, conn, f, string(data))
		if err != nil {
			log.Error("migration failed", "file", f, "error", err.Error())
			return res, err
		}
		if applied {
			log.Info("migration applied", "file", f)
			res.Applied = append(res.Applied, f)
		} else {
			res.Skipped = append(res.Skipped, f)
		}
	}
	return res, nil
}

func applyOne(ctx context.Context, conn *sql.Conn, name, content string) (bool, error) {
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin %s: %w", name, err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var done bool
	if err := tx.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE filename = $1)`, name,
	).Scan(&done); err != nil {
		return false, fmt.Errorf("check %s: %w", name, err)
	}
	if done {
		return false, nil
	}

	if _, err := tx.ExecContext(ctx, content); err != nil {
		return false, fmt.Errorf("apply %s: %w", name, err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO schema_migrations (filename) VALUES ($1)`, name); err != nil {
		return false, fmt.Errorf("record %s: %w", name, err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit %s: %w", name, err)
	}
	return true, nil
}
