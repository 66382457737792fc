package main

import (
	"database/sql"
	"flag"
	"os"
	"path/filepath"
	"sort"
	"strings"

	_ "github.com/lib/pq"

	"github.com/ignite/mailflow/internal/pkg/logger"
)

// Applies pending .sql files from the migrations directory in lexical order.
// Each file runs in its own transaction and is recorded in schema_migrations,
// so reruns only apply what is new.
func main() {
	dir := flag.String("dir", "migrations", "directory containing .sql migration files")
	list := flag.Bool("list", false, "show applied migrations and exit")
	flag.Parse()

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		logger.Error("DATABASE_URL is required")
		os.Exit(1)
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		logger.Error("database open failed", "error", err.Error())
		os.Exit(1)
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		logger.Error("database unreachable", "error", err.Error())
		os.Exit(1)
	}

	if err := ensureVersionTable(db); err != nil {
		logger.Error("version table setup failed", "error", err.Error())
		os.Exit(1)
	}

	applied, err := appliedVersions(db)
	if err != nil {
		logger.Error("reading applied migrations failed", "error", err.Error())
		os.Exit(1)
	}

	if *list {
		for _, v := range sortedKeys(applied) {
			logger.Info("applied", "version", v)
		}
		logger.Info("migration state", "applied", len(applied))
		return
	}

	files, err := pendingFiles(*dir, applied)
	if err != nil {
		logger.Error("reading migrations dir failed", "dir", *dir, "error", err.Error())
		os.Exit(1)
	}
	if len(files) == 0 {
		logger.Info("no pending migrations", "applied", len(applied))
		return
	}

	for _, f := range files {
		if err := applyOne(db, *dir, f); err != nil {
			logger.Error("migration failed", "file", f, "error", err.Error())
			os.Exit(1)
		}
		logger.Info("migration applied", "file", f)
	}
	logger.Info("migrations complete", "applied", len(files))
}

func ensureVersionTable(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version TEXT PRIMARY KEY,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`)
	return err
}

func appliedVersions(db *sql.DB) (map[string]bool, error) {
	rows, err := db.Query("SELECT version FROM schema_migrations")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		applied[v] = true
	}
	return applied, rows.Err()
}

func pendingFiles(dir string, applied map[string]bool) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".sql") || applied[name] {
			continue
		}
		files = append(files, name)
	}
	sort.Strings(files)
	return files, nil
}

// applyOne runs a single migration file and records its version in the same
// transaction, so a failed migration leaves no record behind.
func applyOne(db *sql.DB, dir, file string) error {
	data, err := os.ReadFile(filepath.Join(dir, file))
	if err != nil {
		return err
	}
	if strings.TrimSpace(string(data)) == "" {
		return nil
	}

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	if _, err := tx.Exec(string(data)); err != nil {
		tx.Rollback()
		return err
	}
	if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES ($1)", file); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
