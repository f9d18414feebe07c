package plan

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
)

// ParseRoomFile reads and parses a room snapshot JSON file
func ParseRoomFile(path string) (*Room, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}
	return ParseRoomJSON(data)
}

// ParseRoomJSON parses room snapshot JSON data. Surfaces without a category
// take the category of the list they appear in.
func ParseRoomJSON(data []byte) (*Room, error) {
	var r Room
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parsing JSON: %w", err)
	}
	r.fillCategories()
	return &r, nil
}

// RoomSummary provides a summary of room contents
type RoomSummary struct {
	Name            string           `json:"name,omitempty"`
	SurfaceCounts   map[Category]int `json:"surfaceCounts"`
	ObjectCount     int              `json:"objectCount"`
	ObjectTypes     []string         `json:"objectTypes,omitempty"`
	WallLengthM     float64          `json:"wallLengthMeters"`
	UnknownSurfaces int              `json:"unknownSurfaces"`
}

// Summarize extracts key information from a room
func Summarize(r *Room) RoomSummary {
	summary := RoomSummary{SurfaceCounts: make(map[Category]int)}
	if r == nil {
		return summary
	}
	summary.Name = r.Name

	for _, s := range r.Surfaces() {
		if s.Category == CategoryUnknown {
			summary.UnknownSurfaces++
		}
		eff := s.Category.Effective()
		summary.SurfaceCounts[eff]++
		if eff == CategoryWall {
			summary.WallLengthM += s.Dimensions[0]
		}
	}

	summary.ObjectCount = len(r.Objects)
	seen := make(map[string]bool)
	for _, o := range r.Objects {
		if o.Category != "" && !seen[o.Category] {
			seen[o.Category] = true
			summary.ObjectTypes = append(summary.ObjectTypes, o.Category)
		}
	}
	sort.Strings(summary.ObjectTypes)

	return summary
}

// HasDrawableSurfaces returns true if the room has any surface or object
func HasDrawableSurfaces(r *Room) bool {
	if r == nil {
		return false
	}
	return len(r.Walls)+len(r.Doors)+len(r.Windows)+len(r.Openings)+len(r.Objects) > 0
}
