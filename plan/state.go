package plan

import (
	"errors"
	"sort"
	"sync"
	"time"
)

// ErrRoomNotFound is returned when a room name has no snapshot.
var ErrRoomNotFound = errors.New("room not found")

type roomEntry struct {
	room         *Room
	plan         *FloorPlan
	measurements *MeasurementSet
	updatedAt    time.Time
}

// StateTracker holds the latest snapshot, projected plan and measurement set
// of every known room for the HTTP and MQTT surfaces.
type StateTracker struct {
	mu        sync.RWMutex
	measureMu sync.Mutex // serializes measurement actions
	projector *Projector
	unit      Unit
	rooms     map[string]*roomEntry
}

// NewStateTracker creates a new state tracker. Plans are projected with p
// and new measurement sets are labelled in unit.
func NewStateTracker(p *Projector, unit Unit) *StateTracker {
	if p == nil {
		p = NewProjector(DefaultStyle())
	}
	if unit == "" {
		unit = UnitMeters
	}
	return &StateTracker{
		projector: p,
		unit:      unit,
		rooms:     make(map[string]*roomEntry),
	}
}

// Projector returns the projector used for new snapshots.
func (st *StateTracker) Projector() *Projector {
	return st.projector
}

// UpdateRoom stores a new snapshot for name and returns its freshly projected
// plan. Existing measurements for the room are kept.
func (st *StateTracker) UpdateRoom(name string, room *Room) *FloorPlan {
	fp := st.projector.Project(room)
	if fp.Name == "" {
		fp.Name = name
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	entry, ok := st.rooms[name]
	if !ok {
		entry = &roomEntry{measurements: NewMeasurementSet(st.unit)}
		st.rooms[name] = entry
	}
	entry.room = room
	entry.plan = fp
	entry.updatedAt = time.Now()
	return fp
}

// RemoveRoom forgets a room. It reports whether the room existed.
func (st *StateTracker) RemoveRoom(name string) bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	_, ok := st.rooms[name]
	delete(st.rooms, name)
	return ok
}

// GetRoom returns the latest snapshot for name.
func (st *StateTracker) GetRoom(name string) (*Room, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	e, ok := st.rooms[name]
	if !ok {
		return nil, false
	}
	return e.room, true
}

// GetFloorPlan returns the cached plan for name.
func (st *StateTracker) GetFloorPlan(name string) (*FloorPlan, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	e, ok := st.rooms[name]
	if !ok {
		return nil, false
	}
	return e.plan, true
}

// UpdatedAt returns when the room's snapshot was last replaced.
func (st *StateTracker) UpdatedAt(name string) (time.Time, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	e, ok := st.rooms[name]
	if !ok {
		return time.Time{}, false
	}
	return e.updatedAt, true
}

// RoomNames returns every known room name, sorted.
func (st *StateTracker) RoomNames() []string {
	st.mu.RLock()
	defer st.mu.RUnlock()
	names := make([]string, 0, len(st.rooms))
	for name := range st.rooms {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// HasRooms returns true if we have at least one room
func (st *StateTracker) HasRooms() bool {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.rooms) > 0
}

// WithMeasurements runs fn against the room's measurement set. Calls are
// serialized across all rooms so each user action completes before the next
// starts.
func (st *StateTracker) WithMeasurements(name string, fn func(*MeasurementSet) error) error {
	st.mu.RLock()
	e, ok := st.rooms[name]
	st.mu.RUnlock()
	if !ok {
		return ErrRoomNotFound
	}

	st.measureMu.Lock()
	defer st.measureMu.Unlock()
	return fn(e.measurements)
}

// Measurements returns a copy of the room's measurement groups and the
// current unit.
func (st *StateTracker) Measurements(name string) ([]MeasurementGroup, Unit, error) {
	var groups []MeasurementGroup
	var unit Unit
	err := st.WithMeasurements(name, func(ms *MeasurementSet) error {
		groups = ms.Groups()
		unit = ms.Unit()
		return nil
	})
	return groups, unit, err
}
