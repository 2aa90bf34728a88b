package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/gravitas-games/gridstash/pkg/inventory"
)

// SQLiteStore keeps the latest snapshot per owner plus a journal row for
// every saved revision.
type SQLiteStore struct {
	db    *sql.DB
	codec *Codec
}

// JournalEntry records one Save call.
type JournalEntry struct {
	Owner    inventory.OwnerID
	Revision uint64
	Size     int
	SavedAt  time.Time
}

// OpenSQLite opens (and creates if needed) the database at path.
func OpenSQLite(path string, codec *Codec) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db, codec: codec}, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS snapshots (
			owner TEXT PRIMARY KEY,
			inventory_id TEXT NOT NULL,
			revision INTEGER NOT NULL,
			data BLOB NOT NULL,
			updated_at INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS journal (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			owner TEXT NOT NULL,
			revision INTEGER NOT NULL,
			size INTEGER NOT NULL,
			saved_at INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS journal_owner ON journal(owner, id);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) Save(ctx context.Context, snap inventory.Snapshot) error {
	b, err := s.codec.Encode(snap)
	if err != nil {
		return err
	}
	now := time.Now().UnixMilli()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin save: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `INSERT INTO snapshots(owner, inventory_id, revision, data, updated_at)
		VALUES(?, ?, ?, ?, ?)
		ON CONFLICT(owner) DO UPDATE SET
			inventory_id=excluded.inventory_id,
			revision=excluded.revision,
			data=excluded.data,
			updated_at=excluded.updated_at`,
		string(snap.Owner), snap.ID, int64(snap.Revision), b, now); err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO journal(owner, revision, size, saved_at) VALUES(?, ?, ?, ?)`,
		string(snap.Owner), int64(snap.Revision), len(b), now); err != nil {
		return fmt.Errorf("failed to append journal: %w", err)
	}
	return tx.Commit()
}

func (s *SQLiteStore) Load(ctx context.Context, owner inventory.OwnerID) (inventory.Snapshot, error) {
	var b []byte
	err := s.db.QueryRowContext(ctx, `SELECT data FROM snapshots WHERE owner=?`, string(owner)).Scan(&b)
	if errors.Is(err, sql.ErrNoRows) {
		return inventory.Snapshot{}, ErrNotFound
	}
	if err != nil {
		return inventory.Snapshot{}, fmt.Errorf("failed to load snapshot: %w", err)
	}
	return s.codec.Decode(b)
}

// History returns the journal for owner, oldest first.
func (s *SQLiteStore) History(ctx context.Context, owner inventory.OwnerID) ([]JournalEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT revision, size, saved_at FROM journal WHERE owner=? ORDER BY id ASC`, string(owner))
	if err != nil {
		return nil, fmt.Errorf("failed to query journal: %w", err)
	}
	defer rows.Close()

	var out []JournalEntry
	for rows.Next() {
		var rev int64
		var size int
		var at int64
		if err := rows.Scan(&rev, &size, &at); err != nil {
			return nil, err
		}
		out = append(out, JournalEntry{Owner: owner, Revision: uint64(rev), Size: size, SavedAt: time.UnixMilli(at)})
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
