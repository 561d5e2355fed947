// Package symbols models declarative vector symbols: up to ten style slots,
// each an ordered list of (symbolizer, property, value) triples, possibly
// carrying placeholder tags resolved later by substitution.
package symbols

import (
	"encoding/json"
	"fmt"
	"image/color"
	"strconv"
	"strings"

	"github.com/DavideDeMarchi/geolayer/internal/colorizer"
	"github.com/DavideDeMarchi/geolayer/pkg/geoerr"
)

// MaxStyles is the number of independent style slots a layer renders.
const MaxStyles = 10

// Placeholder tags substituted by Change.
const (
	TagColor       = "COLOR"
	TagFillColor   = "FILL-COLOR"
	TagFillOpacity = "FILL-OPACITY"
	TagStrokeColor = "STROKE-COLOR"
	TagStrokeWidth = "STROKE-WIDTH"
	TagScaleMin    = "SCALE-MIN"
	TagScaleMax    = "SCALE-MAX"
)

// Property is one (symbolizer, property, value) triple. Value is a string or
// a float64; strings may be placeholder tags.
type Property struct {
	Symbolizer string
	Name       string
	Value      any
}

// Style is an ordered list of properties for one style slot.
type Style []Property

// Symbol is an ordered list of styles. Symbols are value objects: Change and
// Scale copy, never mutate.
type Symbol []Style

// recognized symbolizer kinds and the properties each accepts.
var symbolizerProps = map[string]map[string]bool{
	"PolygonSymbolizer": {
		"fill": true, "fill-opacity": true,
		"scale-min": true, "scale-max": true,
	},
	"LineSymbolizer": {
		"stroke": true, "stroke-width": true, "stroke-opacity": true,
		"stroke-linecap": true, "stroke-linejoin": true, "stroke-dasharray": true,
		"scale-min": true, "scale-max": true,
	},
	"MarkersSymbolizer": {
		"fill": true, "fill-opacity": true, "stroke": true, "stroke-width": true,
		"width": true, "height": true, "marker-type": true, "allow-overlap": true,
		"scale-min": true, "scale-max": true,
	},
	"PointSymbolizer": {
		"fill": true, "fill-opacity": true, "stroke": true, "stroke-width": true,
		"width": true, "height": true,
		"scale-min": true, "scale-max": true,
	},
	"TextSymbolizer": {
		"face-name": true, "size": true, "fill": true, "dx": true, "dy": true,
		"scale-min": true, "scale-max": true,
	},
}

var placeholderTags = map[string]bool{
	TagColor: true, TagFillColor: true, TagFillOpacity: true,
	TagStrokeColor: true, TagStrokeWidth: true, TagScaleMin: true, TagScaleMax: true,
}

// Validate checks symbolizer kinds, property names and scalar value types.
// Placeholder tags are accepted anywhere a scalar is.
func Validate(s Symbol) error {
	if len(s) > MaxStyles {
		return geoerr.Config("symbol has %d styles, maximum is %d", len(s), MaxStyles)
	}
	for si, style := range s {
		for pi, p := range style {
			props, ok := symbolizerProps[p.Symbolizer]
			if !ok {
				return geoerr.Config("style %d entry %d: unknown symbolizer %q", si, pi, p.Symbolizer)
			}
			if !props[p.Name] {
				return geoerr.Config("style %d entry %d: %s has no property %q", si, pi, p.Symbolizer, p.Name)
			}
			switch v := p.Value.(type) {
			case string, float64, int, bool:
				_ = v
			default:
				return geoerr.Config("style %d entry %d: unsupported value type %T", si, pi, p.Value)
			}
		}
	}
	return nil
}

// Clone deep-copies a symbol.
func Clone(s Symbol) Symbol {
	if s == nil {
		return nil
	}
	out := make(Symbol, len(s))
	for i, style := range s {
		cp := make(Style, len(style))
		copy(cp, style)
		out[i] = cp
	}
	return out
}

// Change returns a copy of s with every scalar value equal to one of the
// placeholder tags replaced by the supplied substitution. Tags not present in
// the symbol are silently ignored; the input is never mutated.
func Change(s Symbol, subs map[string]any) Symbol {
	out := Clone(s)
	if len(subs) == 0 {
		return out
	}
	for si := range out {
		for pi := range out[si] {
			tag, ok := out[si][pi].Value.(string)
			if !ok || !placeholderTags[tag] {
				continue
			}
			if v, present := subs[tag]; present {
				out[si][pi].Value = v
			}
		}
	}
	return out
}

// lengthProps are the properties a size multiplier scales.
var lengthProps = map[string]bool{
	"stroke-width": true, "width": true, "height": true, "size": true,
}

// Scale returns a copy of s with every length-like numeric property
// multiplied by factor.
func Scale(s Symbol, factor float64) Symbol {
	out := Clone(s)
	if factor == 1 {
		return out
	}
	for si := range out {
		for pi := range out[si] {
			p := &out[si][pi]
			if !lengthProps[p.Name] {
				continue
			}
			if f, ok := asFloat(p.Value); ok {
				p.Value = f * factor
			}
		}
	}
	return out
}

// DrawParams is the resolved per-style rendering state.
type DrawParams struct {
	HasFill     bool
	Fill        color.NRGBA
	FillOpacity float64

	HasStroke     bool
	Stroke        color.NRGBA
	StrokeWidth   float64
	StrokeOpacity float64

	PointSize float64

	ScaleMin float64
	ScaleMax float64
}

// Resolve flattens one style into draw parameters. Placeholder tags still
// present at resolve time are a configuration error.
func Resolve(style Style) (DrawParams, error) {
	dp := DrawParams{FillOpacity: 1, StrokeOpacity: 1, StrokeWidth: 1, PointSize: 6}
	for _, p := range style {
		if tag, ok := p.Value.(string); ok && placeholderTags[tag] {
			return DrawParams{}, geoerr.Config("unresolved placeholder %s in %s/%s", tag, p.Symbolizer, p.Name)
		}
		switch p.Name {
		case "fill":
			c, err := colorValue(p.Value)
			if err != nil {
				return DrawParams{}, err
			}
			dp.Fill = c
			dp.HasFill = true
		case "fill-opacity":
			if f, ok := asFloat(p.Value); ok {
				dp.FillOpacity = f
			}
		case "stroke":
			c, err := colorValue(p.Value)
			if err != nil {
				return DrawParams{}, err
			}
			dp.Stroke = c
			dp.HasStroke = true
		case "stroke-width":
			if f, ok := asFloat(p.Value); ok {
				dp.StrokeWidth = f
				dp.HasStroke = dp.HasStroke || f > 0
			}
		case "stroke-opacity":
			if f, ok := asFloat(p.Value); ok {
				dp.StrokeOpacity = f
			}
		case "width", "height", "size":
			if f, ok := asFloat(p.Value); ok && f > dp.PointSize {
				dp.PointSize = f
			}
		case "scale-min":
			if f, ok := asFloat(p.Value); ok {
				dp.ScaleMin = f
			}
		case "scale-max":
			if f, ok := asFloat(p.Value); ok {
				dp.ScaleMax = f
			}
		}
	}
	return dp, nil
}

func colorValue(v any) (color.NRGBA, error) {
	s, ok := v.(string)
	if !ok {
		return color.NRGBA{}, geoerr.Config("color property has non-string value %v", v)
	}
	c, err := colorizer.ParseColor(s)
	if err != nil {
		return color.NRGBA{}, &geoerr.ConfigError{What: "bad symbol color", Err: err}
	}
	return c, nil
}

func asFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// UnmarshalJSON accepts the nested-array form used by the symbol editor:
// [ [ ["PolygonSymbolizer","fill","#ff0000"], ... ], ... ].
func (s *Symbol) UnmarshalJSON(data []byte) error {
	var raw [][][]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(Symbol, 0, len(raw))
	for _, style := range raw {
		st := make(Style, 0, len(style))
		for _, triple := range style {
			if len(triple) != 3 {
				return geoerr.Config("symbol entry has %d elements, want 3", len(triple))
			}
			sym, ok1 := triple[0].(string)
			name, ok2 := triple[1].(string)
			if !ok1 || !ok2 {
				return geoerr.Config("symbol entry %v: symbolizer and property must be strings", triple)
			}
			st = append(st, Property{Symbolizer: sym, Name: name, Value: triple[2]})
		}
		out = append(out, st)
	}
	*s = out
	return nil
}

// MarshalJSON emits the nested-array form.
func (s Symbol) MarshalJSON() ([]byte, error) {
	raw := make([][][]any, len(s))
	for i, style := range s {
		raw[i] = make([][]any, len(style))
		for j, p := range style {
			raw[i][j] = []any{p.Symbolizer, p.Name, p.Value}
		}
	}
	return json.Marshal(raw)
}

// Fingerprint summarizes a symbol for cache keys.
func Fingerprint(s Symbol) string {
	var b strings.Builder
	for si, style := range s {
		fmt.Fprintf(&b, "|s%d", si)
		for _, p := range style {
			fmt.Fprintf(&b, ";%s.%s=%v", p.Symbolizer, p.Name, p.Value)
		}
	}
	return b.String()
}
