// Package colorizer maps raw raster values to colors through an ordered list
// of value stops, following the mapnik RasterColorizer model.
package colorizer

import (
	"fmt"
	"image/color"
	"math"
	"sort"
	"strings"

	"github.com/DavideDeMarchi/geolayer/pkg/geoerr"
)

// Mode controls how a stop colors the values at and above its value.
type Mode int

const (
	// ModeInherit resolves to the colorizer default mode at evaluation.
	ModeInherit Mode = iota
	// ModeDiscrete colors every value up to the next stop with the stop color.
	ModeDiscrete
	// ModeLinear interpolates toward the next stop color.
	ModeLinear
	// ModeExact colors only values within epsilon of the stop value.
	ModeExact
)

func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "inherit":
		return ModeInherit, nil
	case "discrete":
		return ModeDiscrete, nil
	case "linear":
		return ModeLinear, nil
	case "exact":
		return ModeExact, nil
	}
	return ModeInherit, geoerr.Config("unknown colorizer mode %q", s)
}

func (m Mode) String() string {
	switch m {
	case ModeDiscrete:
		return "discrete"
	case ModeLinear:
		return "linear"
	case ModeExact:
		return "exact"
	}
	return "inherit"
}

// Stop is a single (value, color, mode) entry.
type Stop struct {
	Value float64
	Color color.NRGBA
	Mode  Mode
}

// Colorizer holds stops sorted by ascending value. Stops are only appended
// (Add, AddColorList, AddColorMap) or removed wholesale (Reset); evaluation
// never mutates, so a frozen colorizer is safe for concurrent use.
type Colorizer struct {
	stops        []Stop
	DefaultColor color.NRGBA
	DefaultMode  Mode
	Epsilon      float64
}

const DefaultEpsilon = 1.5e-07

// New validates and builds an empty colorizer.
func New(defaultMode Mode, defaultColor color.NRGBA, epsilon float64) (*Colorizer, error) {
	if epsilon < 0 || math.IsNaN(epsilon) {
		return nil, geoerr.Config("colorizer epsilon must be >= 0, got %v", epsilon)
	}
	if defaultMode == ModeInherit {
		defaultMode = ModeLinear
	}
	return &Colorizer{DefaultColor: defaultColor, DefaultMode: defaultMode, Epsilon: epsilon}, nil
}

// Add inserts a stop keeping the list sorted by value.
func (c *Colorizer) Add(value float64, col color.NRGBA, mode Mode) error {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return geoerr.Config("colorizer stop value must be finite, got %v", value)
	}
	i := sort.Search(len(c.stops), func(i int) bool { return c.stops[i].Value > value })
	c.stops = append(c.stops, Stop{})
	copy(c.stops[i+1:], c.stops[i:])
	c.stops[i] = Stop{Value: value, Color: col, Mode: mode}
	return nil
}

// AddColorList appends len(colors) stops linearly spaced over [scalemin, scalemax].
func (c *Colorizer) AddColorList(scalemin, scalemax float64, colors []color.NRGBA) error {
	if len(colors) == 0 {
		return geoerr.Config("colorlist is empty")
	}
	if math.IsNaN(scalemin) || math.IsNaN(scalemax) || scalemax < scalemin {
		return geoerr.Config("invalid colorlist range [%v, %v]", scalemin, scalemax)
	}
	if len(colors) == 1 || scalemax == scalemin {
		return c.Add(scalemin, colors[0], ModeInherit)
	}
	step := (scalemax - scalemin) / float64(len(colors)-1)
	for i, col := range colors {
		if err := c.Add(scalemin+step*float64(i), col, ModeInherit); err != nil {
			return err
		}
	}
	return nil
}

// AddColorMap appends one stop per entry, all with the given mode.
func (c *Colorizer) AddColorMap(values2colors map[float64]color.NRGBA, mode Mode) error {
	vals := make([]float64, 0, len(values2colors))
	for v := range values2colors {
		vals = append(vals, v)
	}
	sort.Float64s(vals)
	for _, v := range vals {
		if err := c.Add(v, values2colors[v], mode); err != nil {
			return err
		}
	}
	return nil
}

// Reset removes every stop.
func (c *Colorizer) Reset() { c.stops = nil }

// Stops returns a copy of the stop list.
func (c *Colorizer) Stops() []Stop {
	out := make([]Stop, len(c.stops))
	copy(out, c.stops)
	return out
}

func (c *Colorizer) Len() int { return len(c.stops) }

var transparent = color.NRGBA{}

// Evaluate resolves a raw value to a color. Non-finite values (the caller
// maps nodata to NaN) come back fully transparent.
func (c *Colorizer) Evaluate(v float64) color.NRGBA {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return transparent
	}
	// greatest stop with value <= v
	i := sort.Search(len(c.stops), func(i int) bool { return c.stops[i].Value > v })
	if i == 0 {
		return c.DefaultColor
	}
	cand := c.stops[i-1]
	mode := cand.Mode
	if mode == ModeInherit {
		mode = c.DefaultMode
	}
	switch mode {
	case ModeExact:
		if math.Abs(v-cand.Value) <= c.Epsilon {
			return cand.Color
		}
		return c.DefaultColor
	case ModeLinear:
		if i == len(c.stops) {
			return cand.Color
		}
		next := c.stops[i]
		denom := next.Value - cand.Value
		if denom <= 0 {
			return cand.Color
		}
		return Lerp(cand.Color, next.Color, (v-cand.Value)/denom)
	default: // discrete
		return cand.Color
	}
}

// Fingerprint summarizes the stop list for cache keys.
func (c *Colorizer) Fingerprint() string {
	var b strings.Builder
	fmt.Fprintf(&b, "m=%s;d=%s;e=%g", c.DefaultMode, FormatColor(c.DefaultColor), c.Epsilon)
	for _, s := range c.stops {
		fmt.Fprintf(&b, ";%g:%s:%s", s.Value, FormatColor(s.Color), s.Mode)
	}
	return b.String()
}
