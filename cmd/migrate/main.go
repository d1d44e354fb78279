package main

import (
	"context"
	"fmt"
	"io/fs"
	"log"
	"os"

	"github.com/ignite/subscriptions/internal/config"
	"github.com/ignite/subscriptions/internal/migrate"
	"github.com/ignite/subscriptions/internal/pkg/logger"
	"github.com/ignite/subscriptions/internal/repository/postgres"
	"github.com/ignite/subscriptions/migrations"
)

// Usage: migrate [--list] [dir]
//
// Without a dir the migrations embedded in the binary are applied.
func main() {
	var dir string
	listOnly := false
	for _, a := range os.Args[1:] {
		if a == "--list" {
			listOnly = true
		} else {
			dir = a
		}
	}

	var fsys fs.FS = migrations.FS
	if dir != "" {
		fsys = os.DirFS(dir)
	}

	if listOnly {
		files, err := migrate.Files(fsys)
		if err != nil {
			log.Fatal(err)
		}
		for _, f := range files {
			fmt.Println(" ", f)
		}
		fmt.Printf("Total: %d migrations\n", len(files))
		return
	}

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("DATABASE_URL is required")
	}

	lg, err := logger.New(logger.Options{Mode: os.Getenv("LOG_MODE"), Level: os.Getenv("LOG_LEVEL")})
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer lg.Sync()

	ctx := context.Background()
	db, err := postgres.Open(ctx, config.DatabaseConfig{URL: dsn, MaxOpenConns: 2, MaxIdleConns: 1})
	if err != nil {
		log.Fatalf("connect: %v", err)
	}
	defer db.Close()

	res, err := migrate.Apply(ctx, db, fsys, lg)
	if err != nil {
		log.Fatalf("migrate: %v", err)
	}
	log.Printf("Done: %d applied, %d already applied", len(res.Applied), len(res.Skipped))
}
