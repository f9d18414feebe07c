package plan

import (
	"encoding/json"
	"fmt"
	"image/color"
	"strings"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
)

// Color is a non-premultiplied RGBA color that serializes as a hex string.
type Color struct {
	R, G, B, A uint8
}

// RGBA implements color.Color.
func (c Color) RGBA() (r, g, b, a uint32) {
	return color.NRGBA{R: c.R, G: c.G, B: c.B, A: c.A}.RGBA()
}

// Premultiplied converts the color to the premultiplied form canvas expects.
func (c Color) Premultiplied() color.RGBA {
	if c.A == 0 {
		return color.RGBA{0, 0, 0, 0}
	}
	if c.A == 255 {
		return color.RGBA{c.R, c.G, c.B, 255}
	}
	alpha32 := uint32(c.A)
	return color.RGBA{
		R: uint8((uint32(c.R) * alpha32) / 255),
		G: uint8((uint32(c.G) * alpha32) / 255),
		B: uint8((uint32(c.B) * alpha32) / 255),
		A: c.A,
	}
}

// Hex formats the color as #rrggbb, or #rrggbbaa when not fully opaque.
func (c Color) Hex() string {
	if c.A == 255 {
		return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
	}
	return fmt.Sprintf("#%02x%02x%02x%02x", c.R, c.G, c.B, c.A)
}

// MarshalJSON encodes the color as a hex string.
func (c Color) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.Hex())
}

// UnmarshalJSON decodes a hex string.
func (c *Color) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseColor(s)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// ParseColor parses "#RRGGBB" or "#RRGGBBAA" (the '#' is optional).
func ParseColor(hex string) (Color, error) {
	s := strings.TrimPrefix(strings.TrimSpace(hex), "#")
	var c Color
	switch len(s) {
	case 6:
		if _, err := fmt.Sscanf(s, "%02x%02x%02x", &c.R, &c.G, &c.B); err != nil {
			return Color{}, fmt.Errorf("invalid color %q: %w", hex, err)
		}
		c.A = 255
	case 8:
		if _, err := fmt.Sscanf(s, "%02x%02x%02x%02x", &c.R, &c.G, &c.B, &c.A); err != nil {
			return Color{}, fmt.Errorf("invalid color %q: %w", hex, err)
		}
	default:
		return Color{}, fmt.Errorf("invalid color %q: want 6 or 8 hex digits", hex)
	}
	return c, nil
}

// ZOrder holds the layering value of every primitive role.
type ZOrder struct {
	Wall           float64 `json:"wall"`
	Erase          float64 `json:"erase"`
	Window         float64 `json:"window"`
	Door           float64 `json:"door"`
	DoorArc        float64 `json:"doorArc"`
	Object         float64 `json:"object"`
	ObjectOutline  float64 `json:"objectOutline"`
	Dimension      float64 `json:"dimension"`
	DimensionLabel float64 `json:"dimensionLabel"`
}

// Style is the complete, immutable set of drawing constants used by a
// Projector. Values are copied into every primitive so renderers never
// consult shared state.
type Style struct {
	ScalingFactor float64 `json:"scalingFactor"` // display units per meter

	BackgroundColor    Color `json:"backgroundColor"`
	SurfaceColor       Color `json:"surfaceColor"`
	DoorColor          Color `json:"doorColor"`
	WindowColor        Color `json:"windowColor"`
	OpeningColor       Color `json:"openingColor"`
	ObjectColor        Color `json:"objectColor"`
	ObjectOutlineColor Color `json:"objectOutlineColor"`
	DimensionColor     Color `json:"dimensionColor"`

	SurfaceWidth       float64 `json:"surfaceWidth"`
	EraseWidth         float64 `json:"eraseWidth"`
	WindowWidth        float64 `json:"windowWidth"`
	DoorArcWidth       float64 `json:"doorArcWidth"`
	ObjectOutlineWidth float64 `json:"objectOutlineWidth"`
	DimensionLineWidth float64 `json:"dimensionLineWidth"`

	DoorDashes    []float64 `json:"doorDashes"`
	DoorDashPhase float64   `json:"doorDashPhase"`

	// SurfaceDimensionOffset moves the measured line off the structure
	// before the dimension engine applies DimensionOffset on top of it.
	SurfaceDimensionOffset float64 `json:"surfaceDimensionOffset"`
	DimensionOffset        float64 `json:"dimensionOffset"`
	DimensionCapLength     float64 `json:"dimensionCapLength"`
	FontSize               float64 `json:"fontSize"`
	LabelPadding           Point   `json:"labelPadding"`

	Z ZOrder `json:"z"`
}

// DefaultStyle returns the standard dark floor-plan theme.
func DefaultStyle() Style {
	return Style{
		ScalingFactor: 100,

		BackgroundColor:    Color{0, 0, 0, 255},
		SurfaceColor:       Color{255, 255, 255, 255},
		DoorColor:          Color{255, 149, 0, 255},
		WindowColor:        Color{90, 200, 250, 255},
		OpeningColor:       Color{52, 199, 89, 255},
		ObjectColor:        Color{142, 142, 147, 180},
		ObjectOutlineColor: Color{255, 255, 255, 255},
		DimensionColor:     Color{255, 255, 255, 255},

		SurfaceWidth:       22,
		EraseWidth:         24,
		WindowWidth:        8,
		DoorArcWidth:       8,
		ObjectOutlineWidth: 8,
		DimensionLineWidth: 2,

		DoorDashes:    []float64{24, 8},
		DoorDashPhase: 1,

		SurfaceDimensionOffset: 20,
		DimensionOffset:        40,
		DimensionCapLength:     10,
		FontSize:               24,
		LabelPadding:           Point{X: 16, Y: 8},

		Z: ZOrder{
			Wall:           0,
			Erase:          1,
			Window:         10,
			Door:           20,
			DoorArc:        21,
			Object:         30,
			ObjectOutline:  31,
			Dimension:      40,
			DimensionLabel: 41,
		},
	}
}

// Validate reports whether the style can produce a correctly layered plan.
func (s Style) Validate() error {
	if s.ScalingFactor <= 0 {
		return fmt.Errorf("style: scalingFactor must be positive, got %v", s.ScalingFactor)
	}
	if s.FontSize <= 0 {
		return fmt.Errorf("style: fontSize must be positive, got %v", s.FontSize)
	}
	chain := []struct {
		name string
		z    float64
	}{
		{"erase", s.Z.Erase},
		{"window", s.Z.Window},
		{"door", s.Z.Door},
		{"doorArc", s.Z.DoorArc},
		{"object", s.Z.Object},
		{"objectOutline", s.Z.ObjectOutline},
		{"dimension", s.Z.Dimension},
		{"dimensionLabel", s.Z.DimensionLabel},
	}
	if s.Z.Wall >= s.Z.Erase {
		return fmt.Errorf("style: wall z (%v) must be below erase z (%v)", s.Z.Wall, s.Z.Erase)
	}
	for i := 1; i < len(chain); i++ {
		if chain[i-1].z >= chain[i].z {
			return fmt.Errorf("style: %s z (%v) must be below %s z (%v)",
				chain[i-1].name, chain[i-1].z, chain[i].name, chain[i].z)
		}
	}
	return nil
}

// WithOverrides returns a copy of s with every set field of cfg applied.
func (s Style) WithOverrides(cfg StyleConfig) (Style, error) {
	out := s
	out.DoorDashes = append([]float64(nil), s.DoorDashes...)

	if cfg.ScalingFactor != nil {
		out.ScalingFactor = *cfg.ScalingFactor
	}
	if cfg.SurfaceWidth != nil {
		out.SurfaceWidth = *cfg.SurfaceWidth
	}
	if cfg.FontSize != nil {
		out.FontSize = *cfg.FontSize
	}

	colors := []struct {
		hex string
		dst *Color
	}{
		{cfg.BackgroundColor, &out.BackgroundColor},
		{cfg.SurfaceColor, &out.SurfaceColor},
		{cfg.DoorColor, &out.DoorColor},
		{cfg.WindowColor, &out.WindowColor},
		{cfg.OpeningColor, &out.OpeningColor},
		{cfg.ObjectColor, &out.ObjectColor},
		{cfg.DimensionColor, &out.DimensionColor},
	}
	for _, c := range colors {
		if c.hex == "" {
			continue
		}
		parsed, err := ParseColor(c.hex)
		if err != nil {
			return Style{}, fmt.Errorf("style override: %w", err)
		}
		*c.dst = parsed
	}

	if err := out.Validate(); err != nil {
		return Style{}, err
	}
	return out, nil
}

// TextMeasurer reports the width and height, in display units, of a label
// rendered at the given font size.
type TextMeasurer interface {
	Measure(text string, fontSize float64) (width, height float64)
}

// basicFontMeasurer measures text with the fixed 7x13 bitmap face, scaled
// so that the face height equals the font size. The vector renderer draws
// glyphs from the same face, so measured bounds match what is drawn.
type basicFontMeasurer struct{}

func (basicFontMeasurer) Measure(text string, fontSize float64) (float64, float64) {
	face := basicfont.Face7x13
	scale := fontSize / float64(face.Height)
	advance := font.MeasureString(face, text)
	return float64(advance) / 64 * scale, fontSize
}

// DefaultTextMeasurer returns the measurer used when none is configured.
func DefaultTextMeasurer() TextMeasurer {
	return basicFontMeasurer{}
}
