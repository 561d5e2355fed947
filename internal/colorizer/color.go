package colorizer

import (
	"fmt"
	"image/color"
	"strconv"
	"strings"
)

// named colors accepted in colorizer and symbol definitions. Subset of the
// CSS names that show up in practice; anything else must be "#rrggbb".
var namedColors = map[string]color.NRGBA{
	"transparent": {0, 0, 0, 0},
	"black":       {0, 0, 0, 255},
	"white":       {255, 255, 255, 255},
	"red":         {255, 0, 0, 255},
	"green":       {0, 128, 0, 255},
	"lime":        {0, 255, 0, 255},
	"blue":        {0, 0, 255, 255},
	"yellow":      {255, 255, 0, 255},
	"cyan":        {0, 255, 255, 255},
	"magenta":     {255, 0, 255, 255},
	"gray":        {128, 128, 128, 255},
	"grey":        {128, 128, 128, 255},
	"orange":      {255, 165, 0, 255},
	"brown":       {165, 42, 42, 255},
	"purple":      {128, 0, 128, 255},
}

// ParseColor accepts "#rgb", "#rrggbb", "#rrggbbaa" or a known color name.
func ParseColor(s string) (color.NRGBA, error) {
	t := strings.ToLower(strings.TrimSpace(s))
	if c, ok := namedColors[t]; ok {
		return c, nil
	}
	if !strings.HasPrefix(t, "#") {
		return color.NRGBA{}, fmt.Errorf("unknown color %q", s)
	}
	hex := t[1:]
	parse := func(h string) (uint8, error) {
		v, err := strconv.ParseUint(h, 16, 8)
		return uint8(v), err
	}
	switch len(hex) {
	case 3:
		r, err1 := parse(hex[0:1] + hex[0:1])
		g, err2 := parse(hex[1:2] + hex[1:2])
		b, err3 := parse(hex[2:3] + hex[2:3])
		if err1 != nil || err2 != nil || err3 != nil {
			return color.NRGBA{}, fmt.Errorf("invalid hex color %q", s)
		}
		return color.NRGBA{r, g, b, 255}, nil
	case 6, 8:
		r, err1 := parse(hex[0:2])
		g, err2 := parse(hex[2:4])
		b, err3 := parse(hex[4:6])
		a := uint8(255)
		var err4 error
		if len(hex) == 8 {
			a, err4 = parse(hex[6:8])
		}
		if err1 != nil || err2 != nil || err3 != nil || err4 != nil {
			return color.NRGBA{}, fmt.Errorf("invalid hex color %q", s)
		}
		return color.NRGBA{r, g, b, a}, nil
	default:
		return color.NRGBA{}, fmt.Errorf("invalid hex color %q", s)
	}
}

// Lerp interpolates each channel between a and b at position t in [0,1].
func Lerp(a, b color.NRGBA, t float64) color.NRGBA {
	if t <= 0 {
		return a
	}
	if t >= 1 {
		return b
	}
	ch := func(x, y uint8) uint8 {
		return uint8(float64(x) + (float64(y)-float64(x))*t + 0.5)
	}
	return color.NRGBA{ch(a.R, b.R), ch(a.G, b.G), ch(a.B, b.B), ch(a.A, b.A)}
}

// Gradient maps a position in [0,1] onto a piecewise-linear gradient built
// from consecutive entries of colors.
func Gradient(colors []color.NRGBA, pos float64) color.NRGBA {
	switch len(colors) {
	case 0:
		return color.NRGBA{}
	case 1:
		return colors[0]
	}
	if pos <= 0 {
		return colors[0]
	}
	if pos >= 1 {
		return colors[len(colors)-1]
	}
	scaled := pos * float64(len(colors)-1)
	i := int(scaled)
	return Lerp(colors[i], colors[i+1], scaled-float64(i))
}

// FormatColor renders c as "#rrggbb" or "#rrggbbaa" when not fully opaque.
func FormatColor(c color.NRGBA) string {
	if c.A != 255 {
		return fmt.Sprintf("#%02x%02x%02x%02x", c.R, c.G, c.B, c.A)
	}
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}
