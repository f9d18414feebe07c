package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/kwv/roomplan/plan"
)

const metadataFile = "metadata.json"

// FileStore keeps each snapshot in its own file under dir, indexed by
// dir/metadata.json.
type FileStore struct {
	dir string
	mu  sync.Mutex
	now func() time.Time
}

// NewFileStore creates dir if needed and returns a store rooted there.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("store: mkdir %s: %w", dir, err)
	}
	return &FileStore{dir: dir, now: time.Now}, nil
}

func (s *FileStore) Save(ctx context.Context, name string, room *plan.Room) (StoredRoom, error) {
	if err := ctx.Err(); err != nil {
		return StoredRoom{}, err
	}
	rec, err := newRecord(name, room, s.now())
	if err != nil {
		return StoredRoom{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	index, err := s.readIndex()
	if err != nil {
		return StoredRoom{}, err
	}
	if err := os.WriteFile(filepath.Join(s.dir, rec.FileName), rec.RoomData, 0o644); err != nil {
		return StoredRoom{}, fmt.Errorf("store: writing %s: %w", rec.FileName, err)
	}

	entry := rec
	entry.RoomData = nil
	index = append(index, entry)
	if err := s.writeIndex(index); err != nil {
		return StoredRoom{}, err
	}
	return rec, nil
}

func (s *FileStore) List(ctx context.Context) ([]StoredRoom, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readIndex()
}

func (s *FileStore) Get(ctx context.Context, fileName string) (StoredRoom, error) {
	if err := ctx.Err(); err != nil {
		return StoredRoom{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	index, err := s.readIndex()
	if err != nil {
		return StoredRoom{}, err
	}
	for _, rec := range index {
		if rec.FileName != fileName {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.dir, fileName))
		if err != nil {
			return StoredRoom{}, fmt.Errorf("store: reading %s: %w", fileName, err)
		}
		rec.RoomData = data
		return rec, nil
	}
	return StoredRoom{}, ErrNotFound
}

func (s *FileStore) Delete(ctx context.Context, fileName string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	index, err := s.readIndex()
	if err != nil {
		return err
	}
	kept := index[:0]
	found := false
	for _, rec := range index {
		if rec.FileName == fileName {
			found = true
			continue
		}
		kept = append(kept, rec)
	}
	if !found {
		return ErrNotFound
	}
	if err := s.writeIndex(kept); err != nil {
		return err
	}
	if err := os.Remove(filepath.Join(s.dir, fileName)); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("Warning: removing %s: %v", fileName, err)
	}
	return nil
}

func (s *FileStore) Close() error { return nil }

func (s *FileStore) readIndex() ([]StoredRoom, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, metadataFile))
	if errors.Is(err, os.ErrNotExist) {
		return []StoredRoom{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: reading index: %w", err)
	}
	var index []StoredRoom
	if err := json.Unmarshal(data, &index); err != nil {
		return nil, fmt.Errorf("store: parsing index: %w", err)
	}
	if index == nil {
		index = []StoredRoom{}
	}
	return index, nil
}

// writeIndex replaces the index atomically.
func (s *FileStore) writeIndex(index []StoredRoom) error {
	data, err := json.MarshalIndent(index, "", "  ")
	if err != nil {
		return fmt.Errorf("store: encoding index: %w", err)
	}
	tmp := filepath.Join(s.dir, metadataFile+".tmp")
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("store: writing index: %w", err)
	}
	if err := os.Rename(tmp, filepath.Join(s.dir, metadataFile)); err != nil {
		return fmt.Errorf("store: replacing index: %w", err)
	}
	return nil
}
