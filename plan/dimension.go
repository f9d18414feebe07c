package plan

import (
	"fmt"
	"math"

	"github.com/paulmach/orb/planar"
)

// degenerateLength is the plan-space length below which a dimension is
// treated as a point.
const degenerateLength = 1e-9

// FormatMeters formats a length for a floor-plan dimension: two decimals in
// meters from 1m up, whole centimeters below.
func FormatMeters(m float64) string {
	if m >= 1 {
		return fmt.Sprintf("%.2fm", m)
	}
	return fmt.Sprintf("%.0fcm", m*100)
}

// Dimension builds the annotation for the plan-space segment from-to. The
// line is pushed right of vertical segments and below horizontal ones, and
// the label always reads horizontally.
func (p *Projector) Dimension(from, to Point) (DimensionAnnotation, Label) {
	st := p.style
	dist := planar.Distance(from.Orb(), to.Orb())
	meters := dist / st.ScalingFactor
	text := FormatMeters(meters)

	ann := DimensionAnnotation{
		LengthMeters: meters,
		Label:        text,
		Stroke:       st.DimensionColor,
		Width:        st.DimensionLineWidth,
		ZOrder:       st.Z.Dimension,
	}

	if dist < degenerateLength {
		ann.From, ann.To = from, from
		ann.LengthMeters = 0
		ann.Label = FormatMeters(0)
		ann.Offset = OffsetNone
		return ann, p.label(ann.Label, from, AlignBottom)
	}

	dx, dy := to.X-from.X, to.Y-from.Y
	angle := math.Atan2(dy, dx)

	var shift Point
	var align LabelAlign
	if math.Abs(math.Sin(angle)) > math.Abs(math.Cos(angle)) {
		shift = Point{X: st.DimensionOffset}
		ann.Offset = OffsetRight
		align = AlignLeft
	} else {
		shift = Point{Y: -st.DimensionOffset}
		ann.Offset = OffsetDown
		align = AlignBottom
	}

	ann.From = from.Add(shift)
	ann.To = to.Add(shift)

	// Unit normal of the segment; caps straddle the line along it.
	n := Point{X: -dy / dist, Y: dx / dist}
	ann.StartCap = p.capAt(ann.From, n)
	ann.EndCap = p.capAt(ann.To, n)

	pos := Midpoint(ann.From, ann.To).Add(Point{X: shift.X / 2, Y: shift.Y / 2})
	return ann, p.label(text, pos, align)
}

func (p *Projector) capAt(at, normal Point) *LineSegment {
	st := p.style
	c := st.DimensionCapLength
	return &LineSegment{
		From:   Point{X: at.X - normal.X*c, Y: at.Y - normal.Y*c},
		To:     Point{X: at.X + normal.X*c, Y: at.Y + normal.Y*c},
		Stroke: st.DimensionColor,
		Width:  st.DimensionLineWidth,
		Cap:    CapButt,
		ZOrder: st.Z.Dimension,
		Role:   RoleDimension,
	}
}

// label lays out horizontal text anchored at pos.
func (p *Projector) label(text string, pos Point, align LabelAlign) Label {
	st := p.style
	w, h := p.measurer.Measure(text, st.FontSize)

	var box Rect
	switch align {
	case AlignLeft:
		box = Rect{
			Min: Point{X: pos.X, Y: pos.Y - h/2},
			Max: Point{X: pos.X + w, Y: pos.Y + h/2},
		}
	default:
		box = Rect{
			Min: Point{X: pos.X - w/2, Y: pos.Y},
			Max: Point{X: pos.X + w/2, Y: pos.Y + h},
		}
	}

	return Label{
		Text:            text,
		Position:        pos,
		Align:           align,
		FontSize:        st.FontSize,
		Color:           st.DimensionColor,
		Box:             box,
		Background:      box.Expand(st.LabelPadding.X/2, st.LabelPadding.Y/2),
		BackgroundColor: st.BackgroundColor,
		BackgroundZ:     st.Z.Dimension,
		ZOrder:          st.Z.DimensionLabel,
		Role:            RoleDimensionLabel,
	}
}
