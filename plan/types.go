package plan

import (
	"encoding/json"
	"math"
	"strings"
)

// Category identifies the kind of architectural surface in a captured room.
type Category string

const (
	CategoryWall    Category = "wall"
	CategoryDoor    Category = "door"
	CategoryWindow  Category = "window"
	CategoryOpening Category = "opening"
	// CategoryUnknown covers anything the capture layer reports that this
	// package does not recognize. It is rendered as a wall.
	CategoryUnknown Category = "unknown"
)

// ParseCategory maps a category name to a Category. Unrecognized names yield
// CategoryUnknown rather than an error.
func ParseCategory(s string) Category {
	switch Category(strings.ToLower(strings.TrimSpace(s))) {
	case CategoryWall:
		return CategoryWall
	case CategoryDoor:
		return CategoryDoor
	case CategoryWindow:
		return CategoryWindow
	case CategoryOpening:
		return CategoryOpening
	default:
		return CategoryUnknown
	}
}

// Effective returns the category used for drawing: unknown falls back to wall.
func (c Category) Effective() Category {
	if c == CategoryUnknown || c == "" {
		return CategoryWall
	}
	return c
}

// UnmarshalJSON accepts any string and normalizes it through ParseCategory.
func (c *Category) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*c = ""
		return nil
	}
	*c = ParseCategory(s)
	return nil
}

// Pose is a 4x4 rigid transform stored column-major, matching the layout
// produced by the capture framework: element (col, row) is at col*4+row.
type Pose [16]float64

// IdentityPose returns the identity transform.
func IdentityPose() Pose {
	return Pose{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	}
}

// PoseFromYaw builds a pose rotated by yaw radians about the vertical (Y)
// axis and translated to (x, y, z).
func PoseFromYaw(yaw, x, y, z float64) Pose {
	c, s := math.Cos(yaw), math.Sin(yaw)
	return Pose{
		c, 0, -s, 0,
		0, 1, 0, 0,
		s, 0, c, 0,
		x, y, z, 1,
	}
}

// At returns the element in column col, row row.
func (p Pose) At(col, row int) float64 {
	return p[col*4+row]
}

// Position returns the translation column.
func (p Pose) Position() [3]float64 {
	return [3]float64{p.At(3, 0), p.At(3, 1), p.At(3, 2)}
}

// EulerAngles extracts (x, y, z) angles in radians using the same component
// choice as the capture app's matrix extension. Callers reducing a pose to a
// floor-plan rotation depend on this exact extraction.
func (p Pose) EulerAngles() [3]float64 {
	return [3]float64{
		math.Asin(-p.At(2, 1)),
		math.Atan2(p.At(2, 0), p.At(2, 2)),
		math.Atan2(p.At(0, 1), p.At(1, 1)),
	}
}

// Surface is a planar architectural element with a footprint and a pose.
type Surface struct {
	ID         string     `json:"identifier,omitempty"`
	Category   Category   `json:"category"`
	Dimensions [3]float64 `json:"dimensions"` // meters: width, height, depth
	Transform  Pose       `json:"transform"`
}

// Object is a piece of furniture detected in the room.
type Object struct {
	ID         string     `json:"identifier,omitempty"`
	Category   string     `json:"category"`
	Dimensions [3]float64 `json:"dimensions"`
	Transform  Pose       `json:"transform"`
}

// Room is a fully materialized snapshot of a captured room. It is treated as
// read-only by everything in this package.
type Room struct {
	Name     string    `json:"name,omitempty"`
	Walls    []Surface `json:"walls"`
	Doors    []Surface `json:"doors"`
	Windows  []Surface `json:"windows"`
	Openings []Surface `json:"openings"`
	Objects  []Object  `json:"objects"`
}

// Surfaces returns every surface in emission order: doors, openings, walls,
// then windows.
func (r *Room) Surfaces() []Surface {
	if r == nil {
		return nil
	}
	out := make([]Surface, 0, len(r.Doors)+len(r.Openings)+len(r.Walls)+len(r.Windows))
	out = append(out, r.Doors...)
	out = append(out, r.Openings...)
	out = append(out, r.Walls...)
	out = append(out, r.Windows...)
	return out
}

// fillCategories sets the category of any surface that arrived without one
// based on the list it was found in.
func (r *Room) fillCategories() {
	fill := func(list []Surface, c Category) {
		for i := range list {
			if list[i].Category == "" {
				list[i].Category = c
			}
		}
	}
	fill(r.Walls, CategoryWall)
	fill(r.Doors, CategoryDoor)
	fill(r.Windows, CategoryWindow)
	fill(r.Openings, CategoryOpening)
}

// Point represents a 2D coordinate
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Add returns p + q.
func (p Point) Add(q Point) Point { return Point{X: p.X + q.X, Y: p.Y + q.Y} }

// Sub returns p - q.
func (p Point) Sub(q Point) Point { return Point{X: p.X - q.X, Y: p.Y - q.Y} }

// Midpoint returns the point halfway between p and q.
func Midpoint(p, q Point) Point {
	return Point{X: (p.X + q.X) / 2, Y: (p.Y + q.Y) / 2}
}

// AffineMatrix for 2D transforms: x' = ax + by + tx, y' = cx + dy + ty
type AffineMatrix struct {
	A  float64 `json:"a"`
	B  float64 `json:"b"`
	Tx float64 `json:"tx"`
	C  float64 `json:"c"`
	D  float64 `json:"d"`
	Ty float64 `json:"ty"`
}

// Identity returns an identity matrix (no transformation)
func Identity() AffineMatrix {
	return AffineMatrix{A: 1, B: 0, Tx: 0, C: 0, D: 1, Ty: 0}
}

// SourceConfig defines a producer of room snapshots.
type SourceConfig struct {
	ID     string  `yaml:"id" json:"id"`
	Topic  string  `yaml:"topic,omitempty" json:"topic,omitempty"`
	ApiURL *string `yaml:"apiUrl,omitempty" json:"apiUrl,omitempty"` // Optional URL for fetching the latest snapshot
}

// StyleConfig holds optional overrides for DefaultStyle. Colors are hex
// strings ("#RRGGBB" or "#RRGGBBAA").
type StyleConfig struct {
	ScalingFactor   *float64 `yaml:"scalingFactor,omitempty" json:"scalingFactor,omitempty"`
	SurfaceWidth    *float64 `yaml:"surfaceWidth,omitempty" json:"surfaceWidth,omitempty"`
	FontSize        *float64 `yaml:"fontSize,omitempty" json:"fontSize,omitempty"`
	BackgroundColor string   `yaml:"backgroundColor,omitempty" json:"backgroundColor,omitempty"`
	SurfaceColor    string   `yaml:"surfaceColor,omitempty" json:"surfaceColor,omitempty"`
	DoorColor       string   `yaml:"doorColor,omitempty" json:"doorColor,omitempty"`
	WindowColor     string   `yaml:"windowColor,omitempty" json:"windowColor,omitempty"`
	OpeningColor    string   `yaml:"openingColor,omitempty" json:"openingColor,omitempty"`
	ObjectColor     string   `yaml:"objectColor,omitempty" json:"objectColor,omitempty"`
	DimensionColor  string   `yaml:"dimensionColor,omitempty" json:"dimensionColor,omitempty"`
}

// StorageConfig selects where room records are persisted.
type StorageConfig struct {
	Driver string `yaml:"driver,omitempty" json:"driver,omitempty"` // "json" (default) or "sqlite"
	Path   string `yaml:"path,omitempty" json:"path,omitempty"`
}

// HTTPConfig holds HTTP server settings
type HTTPConfig struct {
	Port int `yaml:"port,omitempty" json:"port,omitempty"`
}

// Config represents the full configuration file
type Config struct {
	MQTT    MQTTConfig     `yaml:"mqtt" json:"mqtt"`
	Sources []SourceConfig `yaml:"sources" json:"sources"`
	Style   StyleConfig    `yaml:"style,omitempty" json:"style,omitempty"`
	Units   string         `yaml:"units,omitempty" json:"units,omitempty"` // meters, feet or inches
	Storage StorageConfig  `yaml:"storage,omitempty" json:"storage,omitempty"`
	HTTP    HTTPConfig     `yaml:"http,omitempty" json:"http,omitempty"`
}

// MQTTConfig holds MQTT connection settings
type MQTTConfig struct {
	Broker        string `yaml:"broker" json:"broker"`
	PublishPrefix string `yaml:"publishPrefix" json:"publishPrefix"`
	ClientID      string `yaml:"clientId" json:"clientId"`
	Username      string `yaml:"username,omitempty" json:"username,omitempty"`
	Password      string `yaml:"password,omitempty" json:"password,omitempty"`
}

// GetSourceByID returns the source config for the given ID
func (c *Config) GetSourceByID(id string) *SourceConfig {
	for i := range c.Sources {
		if c.Sources[i].ID == id {
			return &c.Sources[i]
		}
	}
	return nil
}
