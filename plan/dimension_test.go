package plan

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatMeters(t *testing.T) {
	tests := []struct {
		meters float64
		want   string
	}{
		{1.0, "1.00m"},
		{0.999, "100cm"},
		{0.5, "50cm"},
		{0, "0cm"},
		{2.5, "2.50m"},
		{12.25, "12.25m"},
	}
	for _, tt := range tests {
		if got := FormatMeters(tt.meters); got != tt.want {
			t.Errorf("FormatMeters(%v) = %q, want %q", tt.meters, got, tt.want)
		}
	}
}

func TestDimension_Horizontal(t *testing.T) {
	p := NewProjector(DefaultStyle(), WithTextMeasurer(fixedMeasurer{}))
	ann, lbl := p.Dimension(Point{X: 0, Y: 0}, Point{X: 250, Y: 0})

	assert.Equal(t, OffsetDown, ann.Offset)
	assert.Equal(t, "2.50m", ann.Label)
	assert.Equal(t, Point{X: 0, Y: -40}, ann.From)
	assert.Equal(t, Point{X: 250, Y: -40}, ann.To)

	require.NotNil(t, ann.StartCap)
	require.NotNil(t, ann.EndCap)
	// Caps cross the line at right angles.
	assert.InDelta(t, 0, ann.StartCap.From.X-ann.StartCap.To.X, 1e-9)
	assert.InDelta(t, 20, ann.StartCap.Length(), 1e-9)
	assert.InDelta(t, -40, Midpoint(ann.StartCap.From, ann.StartCap.To).Y, 1e-9)
	assert.InDelta(t, 250, ann.EndCap.From.X, 1e-9)

	assert.Equal(t, AlignBottom, lbl.Align)
	assert.Equal(t, Point{X: 125, Y: -60}, lbl.Position)
	// "2.50m" is 50 wide, 20 tall under fixedMeasurer; bottom anchored and
	// centered horizontally.
	assert.Equal(t, Rect{Min: Point{X: 100, Y: -60}, Max: Point{X: 150, Y: -40}}, lbl.Box)
	assert.Equal(t, Rect{Min: Point{X: 92, Y: -64}, Max: Point{X: 158, Y: -36}}, lbl.Background)
}

func TestDimension_Vertical(t *testing.T) {
	p := NewProjector(DefaultStyle(), WithTextMeasurer(fixedMeasurer{}))
	ann, lbl := p.Dimension(Point{X: 10, Y: 0}, Point{X: 10, Y: 80})

	assert.Equal(t, OffsetRight, ann.Offset)
	assert.Equal(t, "80cm", ann.Label)
	assert.Equal(t, Point{X: 50, Y: 0}, ann.From)
	assert.Equal(t, Point{X: 50, Y: 80}, ann.To)

	// Caps are horizontal for a vertical line.
	assert.InDelta(t, 0, ann.StartCap.From.Y-ann.StartCap.To.Y, 1e-9)

	assert.Equal(t, AlignLeft, lbl.Align)
	assert.Equal(t, Point{X: 70, Y: 40}, lbl.Position)
	// "80cm": 40 wide, left anchored, vertically centered.
	assert.Equal(t, Rect{Min: Point{X: 70, Y: 30}, Max: Point{X: 110, Y: 50}}, lbl.Box)
}

func TestDimension_DiagonalCapsArePerpendicular(t *testing.T) {
	p := NewProjector(DefaultStyle())
	from, to := Point{X: 0, Y: 0}, Point{X: 300, Y: 100}
	ann, _ := p.Dimension(from, to)

	dir := to.Sub(from)
	for _, c := range []*LineSegment{ann.StartCap, ann.EndCap} {
		capDir := c.To.Sub(c.From)
		dot := dir.X*capDir.X + dir.Y*capDir.Y
		assert.InDelta(t, 0, dot, 1e-9, "cap should be perpendicular to the segment")
		assert.InDelta(t, 2*DefaultStyle().DimensionCapLength, c.Length(), 1e-9)
	}
	// More horizontal than vertical.
	assert.Equal(t, OffsetDown, ann.Offset)
}

func TestDimension_Degenerate(t *testing.T) {
	p := NewProjector(DefaultStyle())
	pt := Point{X: 12, Y: -7}
	ann, lbl := p.Dimension(pt, pt)

	assert.Equal(t, OffsetNone, ann.Offset)
	assert.Nil(t, ann.StartCap)
	assert.Nil(t, ann.EndCap)
	assert.Equal(t, "0cm", ann.Label)
	assert.Equal(t, "0cm", lbl.Text)
	assert.Equal(t, pt, ann.From)
	assert.Equal(t, pt, ann.To)

	for _, v := range []float64{lbl.Position.X, lbl.Position.Y, lbl.Box.Min.X, lbl.Box.Max.Y, ann.LengthMeters} {
		assert.False(t, math.IsNaN(v), "degenerate dimension produced NaN")
	}
}

func TestDimension_LabelLayering(t *testing.T) {
	st := DefaultStyle()
	ann, lbl := NewProjector(st).Dimension(Point{}, Point{X: 100})

	assert.Equal(t, st.Z.Dimension, ann.Z())
	assert.Equal(t, st.Z.Dimension, lbl.BackgroundZ)
	assert.Equal(t, st.Z.DimensionLabel, lbl.Z())
	assert.Greater(t, lbl.Z(), ann.Z())
	assert.Equal(t, st.BackgroundColor, lbl.BackgroundColor)

	// Background is the text box plus the full padding.
	assert.InDelta(t, lbl.Box.Width()+st.LabelPadding.X, lbl.Background.Width(), 1e-9)
	assert.InDelta(t, lbl.Box.Height()+st.LabelPadding.Y, lbl.Background.Height(), 1e-9)
}
