package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/kwv/roomplan/plan"
)

const schema = `
CREATE TABLE IF NOT EXISTS rooms (
    file_name  TEXT PRIMARY KEY,
    name       TEXT NOT NULL,
    created_at INTEGER NOT NULL,
    room_data  BLOB NOT NULL
);
CREATE INDEX IF NOT EXISTS rooms_created_at ON rooms (created_at);
`

// SQLiteStore keeps snapshots in a single SQLite table.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteStore opens (creating if needed) the database at path and applies
// the schema.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("store: mkdir db dir: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?cache=shared&mode=rwc&_pragma=busy_timeout=5000", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: apply schema: %w", err)
	}
	return &SQLiteStore{db: db, now: time.Now}, nil
}

func (s *SQLiteStore) Save(ctx context.Context, name string, room *plan.Room) (StoredRoom, error) {
	rec, err := newRecord(name, room, s.now())
	if err != nil {
		return StoredRoom{}, err
	}
	_, err = s.db.ExecContext(ctx, `
        INSERT INTO rooms (file_name, name, created_at, room_data)
        VALUES (?, ?, ?, ?)
    `, rec.FileName, rec.Name, rec.CreatedAt.Unix(), []byte(rec.RoomData))
	if err != nil {
		return StoredRoom{}, fmt.Errorf("store: insert %s: %w", rec.FileName, err)
	}
	return rec, nil
}

func (s *SQLiteStore) List(ctx context.Context) ([]StoredRoom, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT file_name, name, created_at
        FROM rooms
        ORDER BY created_at, rowid
    `)
	if err != nil {
		return nil, fmt.Errorf("store: list: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := []StoredRoom{}
	for rows.Next() {
		var rec StoredRoom
		var created int64
		if err := rows.Scan(&rec.FileName, &rec.Name, &created); err != nil {
			return nil, fmt.Errorf("store: scan: %w", err)
		}
		rec.CreatedAt = time.Unix(created, 0).UTC()
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list: %w", err)
	}
	return out, nil
}

func (s *SQLiteStore) Get(ctx context.Context, fileName string) (StoredRoom, error) {
	row := s.db.QueryRowContext(ctx, `
        SELECT file_name, name, created_at, room_data
        FROM rooms
        WHERE file_name = ?
    `, fileName)

	var rec StoredRoom
	var created int64
	var data []byte
	if err := row.Scan(&rec.FileName, &rec.Name, &created, &data); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return StoredRoom{}, ErrNotFound
		}
		return StoredRoom{}, fmt.Errorf("store: get %s: %w", fileName, err)
	}
	rec.CreatedAt = time.Unix(created, 0).UTC()
	rec.RoomData = data
	return rec, nil
}

func (s *SQLiteStore) Delete(ctx context.Context, fileName string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM rooms WHERE file_name = ?`, fileName)
	if err != nil {
		return fmt.Errorf("store: delete %s: %w", fileName, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: delete %s: %w", fileName, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
