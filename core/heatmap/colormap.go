package heatmap

import (
	"image/color"
	"math"

	"github.com/ftl/rfheatmap/core"
)

// Theme selects the colors of the heatmap.
type Theme string

// All color themes.
const (
	ClassicTheme   Theme = "classic"
	GrayscaleTheme Theme = "grayscale"
	JungleTheme    Theme = "jungle"
	ThermalTheme   Theme = "thermal"
)

// Valid indicates if the theme is known.
func (t Theme) Valid() bool {
	switch t {
	case ClassicTheme, GrayscaleTheme, JungleTheme, ThermalTheme:
		return true
	default:
		return false
	}
}

const paletteSize = 256

// NewColorMap returns a color map with a precomputed palette for the given theme. Unknown themes
// fall back to the classic theme.
func NewColorMap(theme Theme) *ColorMap {
	if !theme.Valid() {
		theme = ClassicTheme
	}
	colorOf := themeFunc(theme)
	result := &ColorMap{
		theme:   theme,
		palette: make([]color.RGBA, paletteSize),
	}
	for i := range result.palette {
		result.palette[i] = colorOf(float64(i) / float64(paletteSize-1))
	}
	return result
}

// ColorMap maps values within a value range to colors.
type ColorMap struct {
	theme   Theme
	palette []color.RGBA
}

// Theme of this color map.
func (m *ColorMap) Theme() Theme {
	return m.theme
}

// Color of the given value. Values outside the range are clamped, NaN maps to the lowest color.
func (m *ColorMap) Color(value float64, valueRange core.DBRange) color.RGBA {
	if math.IsNaN(value) {
		return m.palette[0]
	}
	ratio := valueRange.Ratio(core.DB(value))
	return m.palette[int(math.Round(ratio*float64(len(m.palette)-1)))]
}

func themeFunc(theme Theme) func(float64) color.RGBA {
	switch theme {
	case GrayscaleTheme:
		return func(v float64) color.RGBA {
			gray := uint8(math.Pow(v, 0.7) * 255)
			return color.RGBA{R: gray, G: gray, B: gray, A: 255}
		}
	case JungleTheme:
		return func(v float64) color.RGBA {
			return hsv{H: 120 - v*60, S: 1, V: 0.3 + math.Pow(v, 0.6)*0.7}.rgba()
		}
	case ThermalTheme:
		return func(v float64) color.RGBA {
			switch {
			case v < 1.0/3.0:
				return color.RGBA{R: channel(v * 3), A: 255}
			case v < 2.0/3.0:
				return color.RGBA{R: 255, G: channel((v - 1.0/3.0) * 3), A: 255}
			default:
				return color.RGBA{R: 255, G: 255, B: channel((v - 2.0/3.0) * 3), A: 255}
			}
		}
	default:
		return func(v float64) color.RGBA {
			return hsv{H: 240 - v*240, S: 0.9 + v*0.1, V: math.Pow(v, 0.7)}.rgba()
		}
	}
}

func channel(v float64) uint8 {
	return uint8(math.Max(0, math.Min(1, v)) * 255)
}

// hsv color with hue in degrees, saturation and value in [0,1]
type hsv struct {
	H, S, V float64
}

func (c hsv) rgba() color.RGBA {
	if c.S <= 0 {
		v := channel(c.V)
		return color.RGBA{R: v, G: v, B: v, A: 255}
	}

	h := math.Mod(c.H, 360)
	if h < 0 {
		h += 360
	}
	h /= 60
	i := int(h)
	f := h - float64(i)

	v := channel(c.V)
	p := channel(c.V * (1 - c.S))
	q := channel(c.V * (1 - c.S*f))
	t := channel(c.V * (1 - c.S*(1-f)))

	switch i {
	case 0:
		return color.RGBA{R: v, G: t, B: p, A: 255}
	case 1:
		return color.RGBA{R: q, G: v, B: p, A: 255}
	case 2:
		return color.RGBA{R: p, G: v, B: t, A: 255}
	case 3:
		return color.RGBA{R: p, G: q, B: v, A: 255}
	case 4:
		return color.RGBA{R: t, G: p, B: v, A: 255}
	default:
		return color.RGBA{R: v, G: p, B: q, A: 255}
	}
}
