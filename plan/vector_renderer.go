package plan

import (
	"image"
	"image/color"
	"image/png"
	"io"
	"math"

	"github.com/tdewolff/canvas"
	"github.com/tdewolff/canvas/renderers/rasterizer"
	"github.com/tdewolff/canvas/renderers/svg"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// arcSegments is the tessellation used when stroking arcs.
const arcSegments = 48

// VectorRenderer draws a projected floor plan as SVG or PNG.
type VectorRenderer struct {
	Plan       *FloorPlan
	Padding    float64           // Padding in plan units around the drawing
	Resolution canvas.Resolution // Resolution for PNG output
	ShowLegend bool
}

// NewVectorRenderer creates a renderer with default settings
func NewVectorRenderer(fp *FloorPlan) *VectorRenderer {
	return &VectorRenderer{
		Plan:       fp,
		Padding:    120.0,
		Resolution: canvas.DPMM(1.0), // one pixel per plan unit
		ShowLegend: true,
	}
}

// canvasRenderer is an interface that both svg and rasterizer renderers implement
type canvasRenderer interface {
	RenderPath(path *canvas.Path, style canvas.Style, m canvas.Matrix)
}

// RenderToSVG writes the plan as an SVG to the provided writer
func (r *VectorRenderer) RenderToSVG(w io.Writer) error {
	width, height := r.size()
	svgRenderer := svg.New(w, width, height, nil)
	r.renderToCanvas(svgRenderer, width, height)
	return svgRenderer.Close()
}

// RenderToPNG writes the plan as a PNG to the provided writer
func (r *VectorRenderer) RenderToPNG(w io.Writer) error {
	width, height := r.size()
	rast := rasterizer.New(width, height, r.Resolution, canvas.DefaultColorSpace)
	r.renderToCanvas(rast, width, height)
	return png.Encode(w, rast)
}

func (r *VectorRenderer) size() (float64, float64) {
	var w, h float64
	if r.Plan != nil && len(r.Plan.Primitives) > 0 {
		w = r.Plan.Bounds.Max[0] - r.Plan.Bounds.Min[0]
		h = r.Plan.Bounds.Max[1] - r.Plan.Bounds.Min[1]
	}
	return math.Max(w+2*r.Padding, 1), math.Max(h+2*r.Padding, 1)
}

// toCanvas maps a plan point into the padded canvas. Both spaces are y-up.
func (r *VectorRenderer) toCanvas(p Point) (float64, float64) {
	var minX, minY float64
	if r.Plan != nil && len(r.Plan.Primitives) > 0 {
		minX, minY = r.Plan.Bounds.Min[0], r.Plan.Bounds.Min[1]
	}
	return p.X - minX + r.Padding, p.Y - minY + r.Padding
}

func (r *VectorRenderer) renderToCanvas(renderer canvasRenderer, width, height float64) {
	bg := DefaultStyle().BackgroundColor
	if r.Plan != nil {
		bg = r.Plan.Background
	}
	bgStyle := canvas.DefaultStyle
	bgStyle.Fill = canvas.Paint{Color: bg.Premultiplied()}
	bgStyle.Stroke = canvas.Paint{Color: canvas.Transparent}
	renderer.RenderPath(canvas.Rectangle(width, height), bgStyle, canvas.Identity)

	if r.Plan == nil {
		return
	}

	// Primitives are already z-sorted by the projector.
	for _, prim := range r.Plan.Primitives {
		switch p := prim.(type) {
		case LineSegment:
			r.drawSegment(renderer, p)
		case Arc:
			r.drawArc(renderer, p)
		case DimensionAnnotation:
			r.drawDimension(renderer, p)
		case Label:
			r.drawLabel(renderer, p)
		case Polygon:
			r.drawPolygon(renderer, p)
		}
	}

	if r.ShowLegend {
		r.drawLegend(renderer, height)
	}
}

func strokeStyle(c Color, width float64, lineCap LineCap) canvas.Style {
	style := canvas.DefaultStyle
	style.Fill = canvas.Paint{Color: canvas.Transparent}
	style.Stroke = canvas.Paint{Color: c.Premultiplied()}
	style.StrokeWidth = width
	if lineCap == CapRound {
		style.StrokeCapper = canvas.RoundCap
	} else {
		style.StrokeCapper = canvas.ButtCap
	}
	return style
}

func fillStyle(c Color) canvas.Style {
	style := canvas.DefaultStyle
	style.Fill = canvas.Paint{Color: c.Premultiplied()}
	style.Stroke = canvas.Paint{Color: canvas.Transparent}
	return style
}

func (r *VectorRenderer) polyline(points []Point, closed bool) *canvas.Path {
	cp := &canvas.Path{}
	for i, pt := range points {
		cx, cy := r.toCanvas(pt)
		if i == 0 {
			cp.MoveTo(cx, cy)
		} else {
			cp.LineTo(cx, cy)
		}
	}
	if closed {
		cp.Close()
	}
	return cp
}

func (r *VectorRenderer) drawSegment(renderer canvasRenderer, l LineSegment) {
	renderer.RenderPath(r.polyline([]Point{l.From, l.To}, false), strokeStyle(l.Stroke, l.Width, l.Cap), canvas.Identity)
}

func (r *VectorRenderer) drawArc(renderer canvasRenderer, a Arc) {
	style := strokeStyle(a.Stroke, a.Width, CapButt)
	if a.Dashed() {
		style.Dashes = append([]float64(nil), a.Dashes...)
		style.DashOffset = a.DashPhase
	}
	renderer.RenderPath(r.polyline(a.Points(arcSegments), false), style, canvas.Identity)
}

func (r *VectorRenderer) drawDimension(renderer canvasRenderer, d DimensionAnnotation) {
	if d.Offset == OffsetNone {
		return
	}
	r.drawSegment(renderer, LineSegment{From: d.From, To: d.To, Stroke: d.Stroke, Width: d.Width, Cap: CapButt})
	for _, c := range []*LineSegment{d.StartCap, d.EndCap} {
		if c != nil {
			r.drawSegment(renderer, *c)
		}
	}
}

func (r *VectorRenderer) drawPolygon(renderer canvasRenderer, p Polygon) {
	if len(p.Points) < 3 {
		return
	}
	if p.Fill.A > 0 {
		renderer.RenderPath(r.polyline(p.Points, true), fillStyle(p.Fill), canvas.Identity)
	}
	if p.Width > 0 && p.Stroke.A > 0 {
		renderer.RenderPath(r.polyline(p.Points, true), strokeStyle(p.Stroke, p.Width, CapButt), canvas.Identity)
	}
}

func (r *VectorRenderer) drawLabel(renderer canvasRenderer, l Label) {
	bx, by := r.toCanvas(l.Background.Min)
	bgPath := canvas.Rectangle(l.Background.Width(), l.Background.Height()).Translate(bx, by)
	renderer.RenderPath(bgPath, fillStyle(l.BackgroundColor), canvas.Identity)

	ox, oy := r.toCanvas(l.Box.Min)
	drawText(renderer, l.Text, ox, oy, l.FontSize, l.Color)
}

// drawText renders text with its bottom-left corner at (x, y). Glyphs come
// from the 7x13 bitmap face, scaled so the cell height equals fontSize, and
// each horizontal run of set pixels becomes one filled rectangle.
func drawText(renderer canvasRenderer, text string, x, y, fontSize float64, c Color) {
	runs, cellHeight := glyphRuns(text)
	if len(runs) == 0 {
		return
	}
	scale := fontSize / float64(cellHeight)
	style := fillStyle(c)

	path := &canvas.Path{}
	for _, run := range runs {
		// Bitmap rows grow downward; canvas y grows upward.
		rx := x + float64(run.x0)*scale
		ry := y + float64(cellHeight-1-run.row)*scale
		path = path.Append(canvas.Rectangle(float64(run.x1-run.x0)*scale, scale).Translate(rx, ry))
	}
	renderer.RenderPath(path, style, canvas.Identity)
}

type pixelRun struct {
	row, x0, x1 int
}

// glyphRuns rasterizes text with basicfont and returns its runs of opaque
// pixels along with the cell height.
func glyphRuns(text string) ([]pixelRun, int) {
	face := basicfont.Face7x13
	width := font.MeasureString(face, text).Ceil()
	height := face.Height
	if width <= 0 {
		return nil, height
	}

	img := image.NewAlpha(image.Rect(0, 0, width, height))
	d := font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(color.Alpha{A: 255}),
		Face: face,
		Dot:  fixed.P(0, face.Ascent),
	}
	d.DrawString(text)

	var runs []pixelRun
	for row := 0; row < height; row++ {
		start := -1
		for col := 0; col <= width; col++ {
			on := col < width && img.AlphaAt(col, row).A > 127
			switch {
			case on && start < 0:
				start = col
			case !on && start >= 0:
				runs = append(runs, pixelRun{row: row, x0: start, x1: col})
				start = -1
			}
		}
	}
	return runs, height
}

// drawLegend stacks one swatch and caption per legend entry in the top-left
// corner of the canvas.
func (r *VectorRenderer) drawLegend(renderer canvasRenderer, height float64) {
	if r.Plan == nil || len(r.Plan.Legend) == 0 {
		return
	}
	const (
		swatch   = 16.0
		rowGap   = 6.0
		fontSize = 13.0
		margin   = 10.0
	)
	textColor := Color{255, 255, 255, 255}
	if luminance(r.Plan.Background) > 0.5 {
		textColor = Color{0, 0, 0, 255}
	}

	y := height - margin - swatch
	for _, item := range r.Plan.Legend {
		sw := canvas.Rectangle(swatch, swatch).Translate(margin, y)
		renderer.RenderPath(sw, fillStyle(item.Color), canvas.Identity)
		drawText(renderer, item.Label, margin+swatch+rowGap, y+(swatch-fontSize)/2, fontSize, textColor)
		y -= swatch + rowGap
	}
}

func luminance(c Color) float64 {
	return (0.2126*float64(c.R) + 0.7152*float64(c.G) + 0.0722*float64(c.B)) / 255
}
