package plan

import (
	"encoding/json"
	"math"
	"sort"

	"github.com/paulmach/orb"
)

// PrimitiveKind tags the concrete type behind a Primitive.
type PrimitiveKind string

const (
	KindLine      PrimitiveKind = "line"
	KindArc       PrimitiveKind = "arc"
	KindDimension PrimitiveKind = "dimension"
	KindLabel     PrimitiveKind = "label"
	KindPolygon   PrimitiveKind = "polygon"
)

// Role records which part of the drawing a primitive belongs to.
type Role string

const (
	RoleWall           Role = "wall"
	RoleErase          Role = "erase"
	RoleWindow         Role = "window"
	RoleDoor           Role = "door"
	RoleDoorArc        Role = "door-arc"
	RoleOpening        Role = "opening"
	RoleObject         Role = "object"
	RoleObjectOutline  Role = "object-outline"
	RoleDimension      Role = "dimension"
	RoleDimensionLabel Role = "dimension-label"
	RoleMeasurement    Role = "measurement"
)

// LineCap is the stroke end style of a segment.
type LineCap string

const (
	CapButt  LineCap = "butt"
	CapRound LineCap = "round"
)

// OffsetDirection is the side a dimension line is pushed to.
type OffsetDirection string

const (
	OffsetRight OffsetDirection = "right"
	OffsetDown  OffsetDirection = "down"
	OffsetNone  OffsetDirection = "none"
)

// LabelAlign is the anchor a label's position refers to.
type LabelAlign string

const (
	AlignLeft   LabelAlign = "left"
	AlignBottom LabelAlign = "bottom"
)

// Primitive is one value-typed drawing instruction in plan coordinates.
type Primitive interface {
	Kind() PrimitiveKind
	Z() float64
	Bounds() orb.Bound
}

// Rect is an axis-aligned rectangle in plan coordinates.
type Rect struct {
	Min Point `json:"min"`
	Max Point `json:"max"`
}

// Width returns the horizontal extent.
func (r Rect) Width() float64 { return r.Max.X - r.Min.X }

// Height returns the vertical extent.
func (r Rect) Height() float64 { return r.Max.Y - r.Min.Y }

// Expand grows the rectangle by dx on the left and right and dy on the top
// and bottom.
func (r Rect) Expand(dx, dy float64) Rect {
	return Rect{
		Min: Point{X: r.Min.X - dx, Y: r.Min.Y - dy},
		Max: Point{X: r.Max.X + dx, Y: r.Max.Y + dy},
	}
}

// Bound converts to an orb bound.
func (r Rect) Bound() orb.Bound {
	return orb.Bound{Min: r.Min.Orb(), Max: r.Max.Orb()}
}

// Orb converts the point to an orb.Point.
func (p Point) Orb() orb.Point { return orb.Point{p.X, p.Y} }

// boundOf returns the bound enclosing all points.
func boundOf(points ...Point) orb.Bound {
	mp := make(orb.MultiPoint, len(points))
	for i, p := range points {
		mp[i] = p.Orb()
	}
	return mp.Bound()
}

// LineSegment is a straight stroke.
type LineSegment struct {
	From   Point   `json:"from"`
	To     Point   `json:"to"`
	Stroke Color   `json:"stroke"`
	Width  float64 `json:"width"`
	Cap    LineCap `json:"cap"`
	ZOrder float64 `json:"z"`
	Role   Role    `json:"role"`
}

func (l LineSegment) Kind() PrimitiveKind { return KindLine }
func (l LineSegment) Z() float64          { return l.ZOrder }
func (l LineSegment) Bounds() orb.Bound   { return boundOf(l.From, l.To) }

// Length returns the distance between the endpoints.
func (l LineSegment) Length() float64 { return Distance(l.From, l.To) }

func (l LineSegment) MarshalJSON() ([]byte, error) {
	type alias LineSegment
	return json.Marshal(struct {
		Kind PrimitiveKind `json:"kind"`
		alias
	}{KindLine, alias(l)})
}

// Arc is a circular arc. Angles are radians measured counter-clockwise from
// the +X axis; a clockwise arc sweeps through decreasing angles.
type Arc struct {
	Center     Point     `json:"center"`
	Radius     float64   `json:"radius"`
	StartAngle float64   `json:"startAngle"`
	EndAngle   float64   `json:"endAngle"`
	Clockwise  bool      `json:"clockwise"`
	Dashes     []float64 `json:"dashes,omitempty"`
	DashPhase  float64   `json:"dashPhase,omitempty"`
	Stroke     Color     `json:"stroke"`
	Width      float64   `json:"width"`
	ZOrder     float64   `json:"z"`
	Role       Role      `json:"role"`
}

func (a Arc) Kind() PrimitiveKind { return KindArc }
func (a Arc) Z() float64          { return a.ZOrder }
func (a Arc) Bounds() orb.Bound   { return boundOf(a.Points(32)...) }

// Dashed reports whether the arc carries a dash pattern.
func (a Arc) Dashed() bool { return len(a.Dashes) > 0 }

// Sweep returns the signed angle travelled from StartAngle to EndAngle,
// negative for clockwise arcs.
func (a Arc) Sweep() float64 {
	delta := a.EndAngle - a.StartAngle
	if a.Clockwise && delta > 0 {
		delta -= 2 * math.Pi
	}
	if !a.Clockwise && delta < 0 {
		delta += 2 * math.Pi
	}
	return delta
}

// Points tessellates the arc into n+1 points from start to end. n < 1 is
// treated as 1.
func (a Arc) Points(n int) []Point {
	if n < 1 {
		n = 1
	}
	sweep := a.Sweep()
	pts := make([]Point, n+1)
	for i := 0; i <= n; i++ {
		theta := a.StartAngle + sweep*float64(i)/float64(n)
		pts[i] = Point{
			X: a.Center.X + a.Radius*math.Cos(theta),
			Y: a.Center.Y + a.Radius*math.Sin(theta),
		}
	}
	return pts
}

func (a Arc) MarshalJSON() ([]byte, error) {
	type alias Arc
	return json.Marshal(struct {
		Kind PrimitiveKind `json:"kind"`
		alias
	}{KindArc, alias(a)})
}

// DimensionAnnotation is a measured line with end caps. From and To are the
// already offset line; its label is emitted as a separate Label primitive.
type DimensionAnnotation struct {
	From         Point           `json:"from"`
	To           Point           `json:"to"`
	LengthMeters float64         `json:"lengthMeters"`
	Label        string          `json:"label"`
	Offset       OffsetDirection `json:"offset"`
	StartCap     *LineSegment    `json:"startCap,omitempty"`
	EndCap       *LineSegment    `json:"endCap,omitempty"`
	Stroke       Color           `json:"stroke"`
	Width        float64         `json:"width"`
	ZOrder       float64         `json:"z"`
}

func (d DimensionAnnotation) Kind() PrimitiveKind { return KindDimension }
func (d DimensionAnnotation) Z() float64          { return d.ZOrder }

func (d DimensionAnnotation) Bounds() orb.Bound {
	pts := []Point{d.From, d.To}
	if d.StartCap != nil {
		pts = append(pts, d.StartCap.From, d.StartCap.To)
	}
	if d.EndCap != nil {
		pts = append(pts, d.EndCap.From, d.EndCap.To)
	}
	return boundOf(pts...)
}

func (d DimensionAnnotation) MarshalJSON() ([]byte, error) {
	type alias DimensionAnnotation
	return json.Marshal(struct {
		Kind PrimitiveKind `json:"kind"`
		alias
	}{KindDimension, alias(d)})
}

// Label is horizontal text with an opaque background swatch. Box is the
// text extent; Background is Box grown by the style's padding and is drawn
// at BackgroundZ, below the text.
type Label struct {
	Text            string     `json:"text"`
	Position        Point      `json:"position"`
	Align           LabelAlign `json:"align"`
	FontSize        float64    `json:"fontSize"`
	Color           Color      `json:"color"`
	Box             Rect       `json:"box"`
	Background      Rect       `json:"background"`
	BackgroundColor Color      `json:"backgroundColor"`
	BackgroundZ     float64    `json:"backgroundZ"`
	ZOrder          float64    `json:"z"`
	Role            Role       `json:"role"`
}

func (l Label) Kind() PrimitiveKind { return KindLabel }
func (l Label) Z() float64          { return l.ZOrder }
func (l Label) Bounds() orb.Bound   { return l.Background.Bound() }

func (l Label) MarshalJSON() ([]byte, error) {
	type alias Label
	return json.Marshal(struct {
		Kind PrimitiveKind `json:"kind"`
		alias
	}{KindLabel, alias(l)})
}

// Polygon is a closed outline, optionally filled. A zero Fill alpha means
// no fill and a zero Width means no stroke.
type Polygon struct {
	Points []Point `json:"points"`
	Fill   Color   `json:"fill"`
	Stroke Color   `json:"stroke"`
	Width  float64 `json:"width"`
	ZOrder float64 `json:"z"`
	Role   Role    `json:"role"`
}

func (p Polygon) Kind() PrimitiveKind { return KindPolygon }
func (p Polygon) Z() float64          { return p.ZOrder }
func (p Polygon) Bounds() orb.Bound   { return boundOf(p.Points...) }

func (p Polygon) MarshalJSON() ([]byte, error) {
	type alias Polygon
	return json.Marshal(struct {
		Kind PrimitiveKind `json:"kind"`
		alias
	}{KindPolygon, alias(p)})
}

// SortByZ orders primitives by ascending Z, keeping emission order among
// equal values.
func SortByZ(prims []Primitive) {
	sort.SliceStable(prims, func(i, j int) bool {
		return prims[i].Z() < prims[j].Z()
	})
}

// BoundsOf returns the bound enclosing every primitive, and false when the
// list is empty.
func BoundsOf(prims []Primitive) (orb.Bound, bool) {
	if len(prims) == 0 {
		return orb.Bound{}, false
	}
	b := prims[0].Bounds()
	for _, p := range prims[1:] {
		b = b.Union(p.Bounds())
	}
	return b, true
}
