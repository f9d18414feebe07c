package plan

import (
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/spatial/r3"
)

const (
	feetPerMeter   = 3.28084
	inchesPerMeter = 39.3701
)

// Unit is the display unit system for measurements.
type Unit string

const (
	UnitMeters Unit = "meters"
	UnitFeet   Unit = "feet"
	UnitInches Unit = "inches"
)

// ParseUnit accepts a unit name or common abbreviation, case-insensitively.
func ParseUnit(s string) (Unit, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "m", "meter", "meters", "metric":
		return UnitMeters, nil
	case "ft", "foot", "feet", "imperial":
		return UnitFeet, nil
	case "in", "inch", "inches":
		return UnitInches, nil
	default:
		return "", fmt.Errorf("unknown unit %q", s)
	}
}

// RealWorldDistance converts a scene-space distance into meters by undoing
// the model's display scale. A non-positive scale is treated as 1.
func RealWorldDistance(a, b r3.Vec, scale float64) float64 {
	if scale <= 0 {
		scale = 1
	}
	return r3.Norm(r3.Sub(b, a)) / scale
}

// ModelFitScale returns the scale that fits a model with the given bounds
// into a 2x2x2 cube. A zero-sized model returns 1.
func ModelFitScale(min, max r3.Vec) float64 {
	size := r3.Sub(max, min)
	extent := math.Max(math.Abs(size.X), math.Max(math.Abs(size.Y), math.Abs(size.Z)))
	if extent == 0 {
		return 1
	}
	return 2 / extent
}

// FormatDistance formats a length in meters for the given unit.
func FormatDistance(meters float64, unit Unit) string {
	switch unit {
	case UnitFeet:
		feet := meters * feetPerMeter
		whole := math.Floor(feet)
		inches := (feet - whole) * 12
		// Round the way it will be printed so 11.96 becomes the next foot
		// instead of 12.0".
		inches = math.Round(inches*10) / 10
		if inches >= 12 {
			whole++
			inches = 0
		}
		if whole == 0 {
			return fmt.Sprintf("%.1f in", inches)
		}
		if inches == 0 {
			return fmt.Sprintf("%d'", int(whole))
		}
		return fmt.Sprintf("%d' %.1f\"", int(whole), inches)
	case UnitInches:
		return fmt.Sprintf("%.1f in", meters*inchesPerMeter)
	default:
		if meters < 1 {
			return fmt.Sprintf("%.0f cm", meters*100)
		}
		return fmt.Sprintf("%.2f m", meters)
	}
}

// Handle identifies one visual element of a measurement group.
type Handle uint64

// Handle slots within a group.
const (
	HandleLine = iota
	HandleStartMarker
	HandleEndMarker
	HandleLabel
)

// MeasurementGroup is one completed measurement: a line, two endpoint
// markers and a label, addressed by four handles.
type MeasurementGroup struct {
	ID       string    `json:"id"`
	Start    r3.Vec    `json:"start"`
	End      r3.Vec    `json:"end"`
	Scale    float64   `json:"scale"`
	Distance float64   `json:"distance"` // meters
	Label    string    `json:"label"`
	Handles  [4]Handle `json:"handles"`
}

// Owns reports whether h is one of the group's handles.
func (g MeasurementGroup) Owns(h Handle) bool {
	for _, gh := range g.Handles {
		if gh == h {
			return true
		}
	}
	return false
}

// MeasurementSet is an ordered list of measurement groups plus an optional
// pending first tap. It is not safe for concurrent use; StateTracker
// serializes access.
type MeasurementSet struct {
	unit       Unit
	groups     []MeasurementGroup
	pending    *r3.Vec
	nextHandle Handle
}

// NewMeasurementSet creates an empty set labelled in unit.
func NewMeasurementSet(unit Unit) *MeasurementSet {
	if unit == "" {
		unit = UnitMeters
	}
	return &MeasurementSet{unit: unit, nextHandle: 1}
}

// Unit returns the current display unit.
func (s *MeasurementSet) Unit() Unit { return s.unit }

// Pending returns the first point of an incomplete measurement.
func (s *MeasurementSet) Pending() (r3.Vec, bool) {
	if s.pending == nil {
		return r3.Vec{}, false
	}
	return *s.pending, true
}

// Tap records a picked point. The first tap is held as pending; the second
// completes and returns a group.
func (s *MeasurementSet) Tap(p r3.Vec, scale float64) (MeasurementGroup, bool) {
	if s.pending == nil {
		pt := p
		s.pending = &pt
		return MeasurementGroup{}, false
	}
	start := *s.pending
	s.pending = nil
	return s.Add(start, p, scale), true
}

// Add appends a completed measurement between a and b.
func (s *MeasurementSet) Add(a, b r3.Vec, scale float64) MeasurementGroup {
	if scale <= 0 {
		scale = 1
	}
	d := RealWorldDistance(a, b, scale)
	g := MeasurementGroup{
		ID:       uuid.NewString(),
		Start:    a,
		End:      b,
		Scale:    scale,
		Distance: d,
		Label:    FormatDistance(d, s.unit),
	}
	for i := range g.Handles {
		g.Handles[i] = s.nextHandle
		s.nextHandle++
	}
	s.groups = append(s.groups, g)
	return g
}

// RemoveLast deletes the most recent group.
func (s *MeasurementSet) RemoveLast() (MeasurementGroup, bool) {
	if len(s.groups) == 0 {
		return MeasurementGroup{}, false
	}
	return s.RemoveAt(len(s.groups) - 1)
}

// RemoveAt deletes the group at index i, keeping the others in order.
func (s *MeasurementSet) RemoveAt(i int) (MeasurementGroup, bool) {
	if i < 0 || i >= len(s.groups) {
		return MeasurementGroup{}, false
	}
	g := s.groups[i]
	s.groups = append(s.groups[:i:i], s.groups[i+1:]...)
	return g, true
}

// IndexOf returns the index of the group owning handle h, or -1.
func (s *MeasurementSet) IndexOf(h Handle) int {
	for i, g := range s.groups {
		if g.Owns(h) {
			return i
		}
	}
	return -1
}

// IndexOfID returns the index of the group with the given ID, or -1.
func (s *MeasurementSet) IndexOfID(id string) int {
	for i, g := range s.groups {
		if g.ID == id {
			return i
		}
	}
	return -1
}

// RemoveByHandle deletes the group that owns h.
func (s *MeasurementSet) RemoveByHandle(h Handle) (MeasurementGroup, bool) {
	return s.RemoveAt(s.IndexOf(h))
}

// Clear removes every group and any pending tap.
func (s *MeasurementSet) Clear() {
	s.groups = nil
	s.pending = nil
}

// SetUnit switches the display unit and relabels every group.
func (s *MeasurementSet) SetUnit(u Unit) {
	s.unit = u
	for i := range s.groups {
		s.groups[i].Label = FormatDistance(s.groups[i].Distance, u)
	}
}

// Groups returns a copy of the groups in order.
func (s *MeasurementSet) Groups() []MeasurementGroup {
	out := make([]MeasurementGroup, len(s.groups))
	copy(out, s.groups)
	return out
}

// Len returns the number of completed groups.
func (s *MeasurementSet) Len() int { return len(s.groups) }

// Handles returns every live handle, group by group.
func (s *MeasurementSet) Handles() []Handle {
	out := make([]Handle, 0, len(s.groups)*4)
	for _, g := range s.groups {
		out = append(out, g.Handles[:]...)
	}
	return out
}
