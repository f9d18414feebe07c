package plan

import (
	"errors"
	"sync"
	"testing"

	"gonum.org/v1/gonum/spatial/r3"
)

func TestStateTracker_UpdateRoom(t *testing.T) {
	st := NewStateTracker(nil, "")

	if st.HasRooms() {
		t.Error("new tracker should be empty")
	}

	fp := st.UpdateRoom("kitchen", sampleRoom())
	if fp == nil || len(fp.Primitives) == 0 {
		t.Fatal("UpdateRoom should return a projected plan")
	}

	got, ok := st.GetFloorPlan("kitchen")
	if !ok || got != fp {
		t.Error("GetFloorPlan should return the cached plan")
	}
	if room, ok := st.GetRoom("kitchen"); !ok || room == nil {
		t.Error("GetRoom should return the snapshot")
	}
	if _, ok := st.UpdatedAt("kitchen"); !ok {
		t.Error("UpdatedAt missing")
	}
	if _, ok := st.GetFloorPlan("attic"); ok {
		t.Error("unknown room should not be found")
	}
}

func TestStateTracker_NameFallback(t *testing.T) {
	st := NewStateTracker(nil, UnitMeters)

	fp := st.UpdateRoom("den", &Room{})
	if fp.Name != "den" {
		t.Errorf("plan name = %q, want den", fp.Name)
	}

	fp = st.UpdateRoom("den", &Room{Name: "Family Den"})
	if fp.Name != "Family Den" {
		t.Errorf("snapshot name should win, got %q", fp.Name)
	}
}

func TestStateTracker_RoomNamesSorted(t *testing.T) {
	st := NewStateTracker(nil, UnitMeters)
	for _, n := range []string{"office", "bath", "kitchen"} {
		st.UpdateRoom(n, &Room{})
	}

	names := st.RoomNames()
	want := []string{"bath", "kitchen", "office"}
	if len(names) != len(want) {
		t.Fatalf("names = %v", names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("names = %v, want %v", names, want)
			break
		}
	}

	if !st.RemoveRoom("bath") {
		t.Error("RemoveRoom should report existing room")
	}
	if st.RemoveRoom("bath") {
		t.Error("second RemoveRoom should report missing")
	}
}

func TestStateTracker_MeasurementsSurviveUpdates(t *testing.T) {
	st := NewStateTracker(nil, UnitFeet)
	st.UpdateRoom("kitchen", sampleRoom())

	err := st.WithMeasurements("kitchen", func(ms *MeasurementSet) error {
		ms.Add(r3.Vec{}, r3.Vec{X: 0.5}, 1)
		return nil
	})
	if err != nil {
		t.Fatalf("WithMeasurements() error = %v", err)
	}

	st.UpdateRoom("kitchen", sampleRoom())

	groups, unit, err := st.Measurements("kitchen")
	if err != nil {
		t.Fatal(err)
	}
	if unit != UnitFeet {
		t.Errorf("unit = %q, want feet", unit)
	}
	if len(groups) != 1 || groups[0].Label != `1' 7.7"` {
		t.Errorf("groups = %+v", groups)
	}
}

func TestStateTracker_MeasurementsUnknownRoom(t *testing.T) {
	st := NewStateTracker(nil, UnitMeters)

	err := st.WithMeasurements("garage", func(*MeasurementSet) error { return nil })
	if !errors.Is(err, ErrRoomNotFound) {
		t.Errorf("err = %v, want ErrRoomNotFound", err)
	}
	if _, _, err := st.Measurements("garage"); !errors.Is(err, ErrRoomNotFound) {
		t.Errorf("Measurements err = %v", err)
	}
}

func TestStateTracker_WithMeasurementsPropagatesError(t *testing.T) {
	st := NewStateTracker(nil, UnitMeters)
	st.UpdateRoom("kitchen", &Room{})

	boom := errors.New("boom")
	if err := st.WithMeasurements("kitchen", func(*MeasurementSet) error { return boom }); !errors.Is(err, boom) {
		t.Errorf("err = %v, want boom", err)
	}
}

func TestStateTracker_ConcurrentMeasurements(t *testing.T) {
	st := NewStateTracker(nil, UnitMeters)
	st.UpdateRoom("kitchen", sampleRoom())

	const workers = 8
	const perWorker = 25

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				_ = st.WithMeasurements("kitchen", func(ms *MeasurementSet) error {
					ms.Add(r3.Vec{}, r3.Vec{X: float64(w + 1)}, 1)
					return nil
				})
			}
		}(w)
	}
	// Concurrent snapshot updates must not disturb measurements.
	for i := 0; i < 10; i++ {
		st.UpdateRoom("kitchen", sampleRoom())
	}
	wg.Wait()

	groups, _, err := st.Measurements("kitchen")
	if err != nil {
		t.Fatal(err)
	}
	if len(groups) != workers*perWorker {
		t.Errorf("groups = %d, want %d", len(groups), workers*perWorker)
	}

	seen := map[Handle]bool{}
	for _, g := range groups {
		for _, h := range g.Handles {
			if seen[h] {
				t.Fatalf("handle %d reused", h)
			}
			seen[h] = true
		}
	}
}
