package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"srf-carbon/internal/config"
)

func main() {
	direction := flag.String("direction", "up", "Migration direction: up or down")
	flag.Parse()

	if *direction != "up" && *direction != "down" {
		fmt.Fprintf(os.Stderr, "Unknown direction %q, expected up or down\n", *direction)
		os.Exit(2)
	}

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	db, err := sqlx.ConnectContext(ctx, "postgres", cfg.Database.ConnectionString())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	fmt.Println("Connected to database successfully")

	files, err := migrationFiles(cfg.Database.MigrationsPath, *direction)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to list migrations: %v\n", err)
		os.Exit(1)
	}

	for _, path := range files {
		content, err := os.ReadFile(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to read migration file: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("Running migration: %s\n", path)

		if _, err := db.ExecContext(ctx, string(content)); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to execute migration %s: %v\n", filepath.Base(path), err)
			os.Exit(1)
		}
	}

	fmt.Printf("Migration completed successfully (%d files)\n", len(files))
}

// migrationFiles lists dir/*.<direction>.sql, newest first when going down
func migrationFiles(dir, direction string) ([]string, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*."+direction+".sql"))
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no %s migrations in %s", direction, dir)
	}
	sort.Strings(files)
	if direction == "down" {
		sort.Sort(sort.Reverse(sort.StringSlice(files)))
	}
	return files, nil
}
