package history

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

const migrationDir = "migrations"

// OpenSQLite opens the history database at path. A single connection keeps
// ":memory:" databases alive across calls.
func OpenSQLite(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	return db, nil
}

// Migrate runs a goose command (up, down, status) with the embedded migrations.
func Migrate(db *sql.DB, command string) error {
	goose.SetBaseFS(migrationFS)
	goose.SetTableName("goose_db_version")
	if err := goose.SetDialect("sqlite3"); err != nil {
		return err
	}

	switch command {
	case "", "up":
		return goose.Up(db, migrationDir)
	case "down":
		return goose.Down(db, migrationDir)
	case "status":
		return goose.Status(db, migrationDir)
	default:
		return fmt.Errorf("unknown migration command %q", command)
	}
}

// SQLitePersister stores one row per entry, ordered by position.
type SQLitePersister struct {
	db *sql.DB
}

var _ Persister = (*SQLitePersister)(nil)

func NewSQLitePersister(db *sql.DB) *SQLitePersister {
	return &SQLitePersister{db: db}
}

func (p *SQLitePersister) Save(ctx context.Context, feature Feature, entries []Entry) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM history_entries WHERE feature = ?`, string(feature)); err != nil {
		return fmt.Errorf("clear %s history: %w", feature, err)
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO history_entries (feature, position, entry) VALUES (?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, e := range entries {
		data, err := json.Marshal(e)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, string(feature), i, string(data)); err != nil {
			return fmt.Errorf("insert %s history entry %d: %w", feature, e.ID, err)
		}
	}
	return tx.Commit()
}

func (p *SQLitePersister) Load(ctx context.Context, feature Feature) ([]json.RawMessage, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT entry FROM history_entries WHERE feature = ? ORDER BY position`, string(feature))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []json.RawMessage
	for rows.Next() {
		var entry string
		if err := rows.Scan(&entry); err != nil {
			return nil, err
		}
		out = append(out, json.RawMessage(entry))
	}
	return out, rows.Err()
}
