// Package store persists uploaded room snapshots so the service can reload
// them after a restart.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kwv/roomplan/plan"
)

// ErrNotFound is returned when no record exists for a file name.
var ErrNotFound = errors.New("store: room not found")

// StoredRoom is one persisted snapshot.
type StoredRoom struct {
	Name      string          `json:"name"`
	FileName  string          `json:"fileName"`
	CreatedAt time.Time       `json:"createdAt"`
	RoomData  json.RawMessage `json:"roomData,omitempty"`
}

// Room decodes the stored snapshot.
func (s StoredRoom) Room() (*plan.Room, error) {
	if len(s.RoomData) == 0 {
		return nil, fmt.Errorf("store: %s has no room data", s.FileName)
	}
	return plan.ParseRoomJSON(s.RoomData)
}

// Store is implemented by every persistence backend.
type Store interface {
	// Save persists room under a freshly generated file name.
	Save(ctx context.Context, name string, room *plan.Room) (StoredRoom, error)
	// List returns every record, oldest first, without room data.
	List(ctx context.Context) ([]StoredRoom, error)
	Get(ctx context.Context, fileName string) (StoredRoom, error)
	Delete(ctx context.Context, fileName string) error
	Close() error
}

const defaultPath = "models"

// Open returns the backend selected by cfg.Driver: "json" (the default) or
// "sqlite". An empty path uses "models" for json and "models/rooms.db" for
// sqlite.
func Open(cfg plan.StorageConfig) (Store, error) {
	switch cfg.Driver {
	case "", "json":
		path := cfg.Path
		if path == "" {
			path = defaultPath
		}
		return NewFileStore(path)
	case "sqlite":
		path := cfg.Path
		if path == "" {
			path = defaultPath + "/rooms.db"
		}
		return NewSQLiteStore(path)
	default:
		return nil, fmt.Errorf("store: unknown driver %q", cfg.Driver)
	}
}

// newRecord builds the record for a new snapshot.
func newRecord(name string, room *plan.Room, now time.Time) (StoredRoom, error) {
	if room == nil {
		return StoredRoom{}, errors.New("store: room is nil")
	}
	data, err := json.Marshal(room)
	if err != nil {
		return StoredRoom{}, fmt.Errorf("store: encoding room: %w", err)
	}
	return StoredRoom{
		Name:      name,
		FileName:  fmt.Sprintf("room_%d_%s.json", now.Unix(), uuid.NewString()[:8]),
		CreatedAt: now.UTC().Truncate(time.Second),
		RoomData:  data,
	}, nil
}
