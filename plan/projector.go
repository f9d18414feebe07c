package plan

import (
	"math"

	"github.com/paulmach/orb"
)

// doorSwing is the fixed opening angle drawn for every door.
const doorSwing = math.Pi / 4

// LegendItem is one swatch in a floor plan's legend.
type LegendItem struct {
	Label string `json:"label"`
	Role  Role   `json:"role"`
	Color Color  `json:"color"`
}

// FloorPlan is the projected, z-sorted drawing of one room.
type FloorPlan struct {
	Name       string       `json:"name,omitempty"`
	Primitives []Primitive  `json:"primitives"`
	Legend     []LegendItem `json:"legend"`
	Bounds     orb.Bound    `json:"bounds"`
	Background Color        `json:"background"`
}

// Dimensions returns the dimension annotations in the plan.
func (fp *FloorPlan) Dimensions() []DimensionAnnotation {
	var out []DimensionAnnotation
	for _, p := range fp.Primitives {
		if d, ok := p.(DimensionAnnotation); ok {
			out = append(out, d)
		}
	}
	return out
}

// CountByKind tallies primitives per kind.
func (fp *FloorPlan) CountByKind() map[PrimitiveKind]int {
	counts := make(map[PrimitiveKind]int)
	for _, p := range fp.Primitives {
		counts[p.Kind()]++
	}
	return counts
}

// Projector turns room snapshots into floor plans. It holds only its style
// and is safe for concurrent use.
type Projector struct {
	style    Style
	measurer TextMeasurer
}

// ProjectorOption configures a Projector.
type ProjectorOption func(*Projector)

// WithTextMeasurer replaces the measurer used to size dimension labels.
func WithTextMeasurer(m TextMeasurer) ProjectorOption {
	return func(p *Projector) {
		if m != nil {
			p.measurer = m
		}
	}
}

// NewProjector creates a projector for the given style.
func NewProjector(style Style, opts ...ProjectorOption) *Projector {
	style.DoorDashes = append([]float64(nil), style.DoorDashes...)
	p := &Projector{style: style, measurer: DefaultTextMeasurer()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Style returns a copy of the projector's style.
func (p *Projector) Style() Style {
	s := p.style
	s.DoorDashes = append([]float64(nil), p.style.DoorDashes...)
	return s
}

// Project derives the full floor plan for room. The result depends only on
// the room and the style.
func (p *Projector) Project(room *Room) *FloorPlan {
	fp := &FloorPlan{
		Primitives: []Primitive{},
		Legend:     p.Legend(),
		Background: p.style.BackgroundColor,
	}
	if room == nil {
		return fp
	}
	fp.Name = room.Name

	for _, s := range room.Surfaces() {
		fp.Primitives = append(fp.Primitives, p.ProjectSurface(s)...)
	}
	for _, o := range room.Objects {
		fp.Primitives = append(fp.Primitives, p.ProjectObject(o)...)
	}
	SortByZ(fp.Primitives)

	if b, ok := BoundsOf(fp.Primitives); ok {
		fp.Bounds = b
	}
	return fp
}

// SurfaceEndpoints returns the local-space endpoints of a surface: A and B
// symmetric about the origin on the X axis, and C, which is B swung 45
// degrees about A.
func SurfaceEndpoints(s Surface, scalingFactor float64) (a, b, c Point) {
	half := s.Dimensions[0] * scalingFactor / 2
	a = Point{X: -half, Y: 0}
	b = Point{X: half, Y: 0}
	c = RotateAround(b, a, doorSwing)
	return a, b, c
}

// ProjectSurface emits the primitives for one surface, in emission order.
func (p *Projector) ProjectSurface(s Surface) []Primitive {
	st := p.style
	pose := ReducePose(s.Transform, st.ScalingFactor)
	a, b, c := SurfaceEndpoints(s, st.ScalingFactor)
	wa, wb := pose.Apply(a), pose.Apply(b)

	switch s.Category.Effective() {
	case CategoryDoor:
		half := b.X
		wc := pose.Apply(c)
		prims := []Primitive{
			p.erase(wa, wb),
			LineSegment{From: wa, To: wc, Stroke: st.DoorColor, Width: st.SurfaceWidth,
				Cap: CapRound, ZOrder: st.Z.Door, Role: RoleDoor},
			Arc{
				Center:     wa,
				Radius:     2 * half,
				StartAngle: doorSwing + pose.Rotation,
				EndAngle:   pose.Rotation,
				Clockwise:  true,
				Dashes:     append([]float64(nil), st.DoorDashes...),
				DashPhase:  st.DoorDashPhase,
				Stroke:     st.DoorColor,
				Width:      st.DoorArcWidth,
				ZOrder:     st.Z.DoorArc,
				Role:       RoleDoorArc,
			},
		}
		return append(prims, p.surfaceDimension(pose, a, b)...)

	case CategoryWindow:
		prims := []Primitive{
			p.erase(wa, wb),
			LineSegment{From: wa, To: wb, Stroke: st.WindowColor, Width: st.WindowWidth,
				Cap: CapButt, ZOrder: st.Z.Window, Role: RoleWindow},
		}
		return append(prims, p.surfaceDimension(pose, a, b)...)

	case CategoryOpening:
		return []Primitive{
			p.erase(wa, wb),
			LineSegment{From: wa, To: wb, Stroke: st.OpeningColor, Width: st.SurfaceWidth,
				Cap: CapButt, ZOrder: st.Z.Window, Role: RoleOpening},
		}

	default:
		prims := []Primitive{
			LineSegment{From: wa, To: wb, Stroke: st.SurfaceColor, Width: st.SurfaceWidth,
				Cap: CapRound, ZOrder: st.Z.Wall, Role: RoleWall},
		}
		return append(prims, p.surfaceDimension(pose, a, b)...)
	}
}

// ProjectObject emits a filled footprint and its outline for a piece of
// furniture. The footprint spans the object's X and Z extents.
func (p *Projector) ProjectObject(o Object) []Primitive {
	st := p.style
	pose := ReducePose(o.Transform, st.ScalingFactor)
	hx := o.Dimensions[0] * st.ScalingFactor / 2
	hz := o.Dimensions[2] * st.ScalingFactor / 2

	local := []Point{{X: -hx, Y: -hz}, {X: hx, Y: -hz}, {X: hx, Y: hz}, {X: -hx, Y: hz}}
	world := pose.Matrix().ApplyAll(local)
	outline := append([]Point(nil), world...)

	return []Primitive{
		Polygon{Points: world, Fill: st.ObjectColor, ZOrder: st.Z.Object, Role: RoleObject},
		Polygon{Points: outline, Stroke: st.ObjectOutlineColor, Width: st.ObjectOutlineWidth,
			ZOrder: st.Z.ObjectOutline, Role: RoleObjectOutline},
	}
}

// Legend lists the swatches drawn alongside every plan.
func (p *Projector) Legend() []LegendItem {
	st := p.style
	return []LegendItem{
		{Label: "Wall", Role: RoleWall, Color: st.SurfaceColor},
		{Label: "Door", Role: RoleDoor, Color: st.DoorColor},
		{Label: "Window", Role: RoleWindow, Color: st.WindowColor},
		{Label: "Opening", Role: RoleOpening, Color: st.OpeningColor},
		{Label: "Object", Role: RoleObject, Color: st.ObjectColor},
	}
}

func (p *Projector) erase(from, to Point) LineSegment {
	st := p.style
	return LineSegment{From: from, To: to, Stroke: st.BackgroundColor, Width: st.EraseWidth,
		Cap: CapButt, ZOrder: st.Z.Erase, Role: RoleErase}
}

// surfaceDimension measures A-B after moving both off the structure in
// local space. The local side is chosen so the move points the same way as
// the dimension engine's offset: right of vertical walls, below horizontal
// ones.
func (p *Projector) surfaceDimension(pose Pose2D, a, b Point) []Primitive {
	shift := Point{Y: -p.style.SurfaceDimensionOffset}
	wa, wb := pose.Apply(a), pose.Apply(b)
	dir := Rotation(pose.Rotation).Apply(shift)
	if math.Abs(wb.Y-wa.Y) > math.Abs(wb.X-wa.X) {
		if dir.X < 0 {
			shift.Y = -shift.Y
		}
	} else if dir.Y > 0 {
		shift.Y = -shift.Y
	}
	ann, lbl := p.Dimension(pose.Apply(a.Add(shift)), pose.Apply(b.Add(shift)))
	return []Primitive{ann, lbl}
}
