// Package db opens the workspace SQLite database.
package db

import (
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

const (
	stateDir = ".jobpay"
	fileName = "jobpay.db"
)

// pragmas: foreign keys on, WAL journaling, wait up to 5s for the write lock,
// and take that lock at BEGIN so read-check-write sequences serialise.
var pragmas = url.Values{
	"_pragma": {"foreign_keys(1)", "journal_mode(WAL)", "busy_timeout(5000)"},
	"_txlock": {"immediate"},
}

type Config struct {
	Workspace string
	// MaxOpenConns caps the pool; zero leaves the database/sql default.
	MaxOpenConns int
}

func stateRoot(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, stateDir)
}

// EnsureWorkspace creates the workspace state directory and returns it.
func EnsureWorkspace(workspace string) (string, error) {
	dir := stateRoot(workspace)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create workspace %s: %w", dir, err)
	}
	return dir, nil
}

func Open(cfg Config) (*sql.DB, error) {
	if _, err := EnsureWorkspace(cfg.Workspace); err != nil {
		return nil, err
	}
	conn, err := sql.Open("sqlite", "file:"+Path(cfg.Workspace)+"?"+pragmas.Encode())
	if err != nil {
		return nil, err
	}
	if cfg.MaxOpenConns > 0 {
		conn.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	return conn, nil
}

// Path returns the database file of a workspace.
func Path(workspace string) string {
	return filepath.Join(stateRoot(workspace), fileName)
}
