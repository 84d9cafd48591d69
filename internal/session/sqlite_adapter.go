package session

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/flowtitan/flowtitan/internal/logging"
)

// SQLiteAdapter persists sessions to a single-file sqlite database via
// modernc.org/sqlite (pure Go, no cgo). One row per session, the rest of
// the schema (metadata/context/provenance) serialized as JSON columns —
// the store never queries into those blobs, so normalizing them into
// separate tables would buy nothing.
type SQLiteAdapter struct {
	path string
	db   *sql.DB
	log  *logging.Logger
}

func NewSQLiteAdapter(path string) *SQLiteAdapter {
	return &SQLiteAdapter{path: path, log: logging.Get(logging.CategorySession)}
}

func (a *SQLiteAdapter) Init() error {
	if dir := filepath.Dir(a.path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("session: create db directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", a.path)
	if err != nil {
		return fmt.Errorf("session: open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1) // modernc sqlite: single-writer, avoid SQLITE_BUSY
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			version INTEGER NOT NULL,
			metadata TEXT NOT NULL,
			context TEXT NOT NULL,
			provenance TEXT NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			last_touch TEXT NOT NULL
		)`); err != nil {
		return fmt.Errorf("session: create table: %w", err)
	}
	a.db = db
	a.log.Info("session sqlite adapter ready at %s", a.path)
	return nil
}

func (a *SQLiteAdapter) SaveSession(rec *Record) error {
	metadata, err := json.Marshal(rec.Metadata)
	if err != nil {
		return err
	}
	ctx, err := json.Marshal(rec.Context)
	if err != nil {
		return err
	}
	prov, err := json.Marshal(rec.Provenance)
	if err != nil {
		return err
	}
	_, err = a.db.Exec(`
		INSERT INTO sessions (id, version, metadata, context, provenance, created_at, updated_at, last_touch)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			version=excluded.version, metadata=excluded.metadata, context=excluded.context,
			provenance=excluded.provenance, updated_at=excluded.updated_at, last_touch=excluded.last_touch`,
		rec.ID, rec.Version, string(metadata), string(ctx), string(prov),
		rec.CreatedAt.Format(time.RFC3339Nano), rec.UpdatedAt.Format(time.RFC3339Nano), rec.LastTouch.Format(time.RFC3339Nano))
	return err
}

func (a *SQLiteAdapter) LoadSession(id string) (*Record, error) {
	row := a.db.QueryRow(`SELECT id, version, metadata, context, provenance, created_at, updated_at, last_touch FROM sessions WHERE id = ?`, id)
	return scanRecord(row)
}

func (a *SQLiteAdapter) DeleteSession(id string) error {
	_, err := a.db.Exec(`DELETE FROM sessions WHERE id = ?`, id)
	return err
}

func (a *SQLiteAdapter) ListSessionIDs() ([]string, error) {
	rows, err := a.db.Query(`SELECT id FROM sessions`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (a *SQLiteAdapter) ExportAll() ([]*Record, error) {
	rows, err := a.db.Query(`SELECT id, version, metadata, context, provenance, created_at, updated_at, last_touch FROM sessions`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*Record
	for rows.Next() {
		rec, err := scanRecordRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (a *SQLiteAdapter) Close() error {
	if a.db == nil {
		return nil
	}
	return a.db.Close()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row *sql.Row) (*Record, error) {
	return scanInto(row)
}

func scanRecordRows(rows *sql.Rows) (*Record, error) {
	return scanInto(rows)
}

func scanInto(s scanner) (*Record, error) {
	var rec Record
	var metadata, ctx, prov, createdAt, updatedAt, lastTouch string
	if err := s.Scan(&rec.ID, &rec.Version, &metadata, &ctx, &prov, &createdAt, &updatedAt, &lastTouch); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(metadata), &rec.Metadata); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(ctx), &rec.Context); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(prov), &rec.Provenance); err != nil {
		return nil, err
	}
	var err error
	if rec.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, err
	}
	if rec.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return nil, err
	}
	if rec.LastTouch, err = time.Parse(time.RFC3339Nano, lastTouch); err != nil {
		return nil, err
	}
	return &rec, nil
}
