package legend

import (
	"fmt"
	"image/color"
	"sort"

	"github.com/DavideDeMarchi/geolayer/internal/colorizer"
	"github.com/DavideDeMarchi/geolayer/internal/symbols"
	"github.com/DavideDeMarchi/geolayer/pkg/geoerr"
)

// Item is one legend entry: a human-readable class description, the filter
// rule selecting the class members, and the symbol drawn for them.
type Item struct {
	Description string
	Rule        string
	Symbol      symbols.Symbol
}

// Legend is immutable after creation.
type Legend struct {
	Items []Item
}

// DefaultTemplate is the parametric symbol instantiated per class when the
// caller does not supply one.
func DefaultTemplate() symbols.Symbol {
	return symbols.Symbol{
		{
			{Symbolizer: "PolygonSymbolizer", Name: "fill", Value: symbols.TagFillColor},
			{Symbolizer: "PolygonSymbolizer", Name: "fill-opacity", Value: 1.0},
			{Symbolizer: "LineSymbolizer", Name: "stroke", Value: "#000000"},
			{Symbolizer: "LineSymbolizer", Name: "stroke-width", Value: 0.5},
		},
	}
}

// classColor applies the palette rule: interpolated position on the gradient,
// or direct cyclic assignment.
func classColor(colors []color.NRGBA, i, k int, interpolate bool) color.NRGBA {
	if len(colors) == 0 {
		return color.NRGBA{A: 255}
	}
	if interpolate {
		if k <= 1 {
			return colors[0]
		}
		return colorizer.Gradient(colors, float64(i)/float64(k-1))
	}
	return colors[i%len(colors)]
}

// GraduatedOptions configures Graduated.
type GraduatedOptions struct {
	Classifier  string
	Param1      float64
	Param2      float64
	Multiples   []float64 // StdMean fences, mean + m*std; empty means -2,-1,1,2
	Colors      []color.NRGBA
	Interpolate bool
	Digits      int
	Template    symbols.Symbol // nil means DefaultTemplate
}

// Graduated classifies the numeric population of field and returns one
// legend item per class, each with a first-match filter rule and a symbol
// instantiated from the template.
func Graduated(field string, values []float64, opts GraduatedOptions) (Legend, error) {
	if len(values) == 0 {
		return Legend{}, geoerr.ErrInsufficientData
	}
	var edges []float64
	var err error
	if opts.Classifier == StdMean {
		edges, err = StdMeanBreaks(values, opts.Multiples)
	} else {
		edges, err = Breaks(opts.Classifier, values, opts.Param1, opts.Param2)
	}
	if err != nil {
		return Legend{}, err
	}
	tmpl := opts.Template
	if tmpl == nil {
		tmpl = DefaultTemplate()
	}
	k := len(edges) - 1
	if k < 1 {
		k = 1
	}
	items := make([]Item, 0, k)
	for i := 0; i < k; i++ {
		lo := FormatBoundary(edges[i], opts.Digits)
		hi := FormatBoundary(edges[min(i+1, len(edges)-1)], opts.Digits)
		// rules carry full-precision edges; digits only shape the description
		ruleLo := FormatBoundary(edges[i], -1)
		ruleHi := FormatBoundary(edges[min(i+1, len(edges)-1)], -1)
		var rule string
		if k == 1 {
			rule = "all"
		} else if i == k-1 {
			rule = fmt.Sprintf("[%s] >= %s and [%s] <= %s", field, ruleLo, field, ruleHi)
		} else {
			rule = fmt.Sprintf("[%s] >= %s and [%s] < %s", field, ruleLo, field, ruleHi)
		}
		col := classColor(opts.Colors, i, k, opts.Interpolate)
		sym := symbols.Change(tmpl, map[string]any{
			symbols.TagFillColor:   colorizer.FormatColor(col),
			symbols.TagColor:       colorizer.FormatColor(col),
			symbols.TagStrokeColor: colorizer.FormatColor(col),
		})
		items = append(items, Item{
			Description: lo + " - " + hi,
			Rule:        rule,
			Symbol:      sym,
		})
	}
	return Legend{Items: items}, nil
}

// CategoriesOptions configures Categories.
type CategoriesOptions struct {
	Colors      []color.NRGBA
	Interpolate bool
	Template    symbols.Symbol
}

// Categories builds one legend item per distinct discrete value of field,
// in sorted order, colored by the same palette rule as Graduated.
func Categories(field string, values []any, opts CategoriesOptions) (Legend, error) {
	if len(values) == 0 {
		return Legend{}, geoerr.ErrInsufficientData
	}
	seen := map[string]bool{}
	var distinct []string
	numeric := true
	for _, v := range values {
		s := fmt.Sprintf("%v", v)
		if !seen[s] {
			seen[s] = true
			distinct = append(distinct, s)
			if _, ok := v.(string); ok {
				numeric = false
			}
		}
	}
	if numeric {
		sort.Slice(distinct, func(i, j int) bool {
			var a, b float64
			fmt.Sscan(distinct[i], &a)
			fmt.Sscan(distinct[j], &b)
			return a < b
		})
	} else {
		sort.Strings(distinct)
	}

	tmpl := opts.Template
	if tmpl == nil {
		tmpl = DefaultTemplate()
	}
	k := len(distinct)
	items := make([]Item, 0, k)
	for i, v := range distinct {
		col := classColor(opts.Colors, i, k, opts.Interpolate)
		sym := symbols.Change(tmpl, map[string]any{
			symbols.TagFillColor:   colorizer.FormatColor(col),
			symbols.TagColor:       colorizer.FormatColor(col),
			symbols.TagStrokeColor: colorizer.FormatColor(col),
		})
		items = append(items, Item{
			Description: v,
			Rule:        fmt.Sprintf("[%s] = '%s'", field, v),
			Symbol:      sym,
		})
	}
	return Legend{Items: items}, nil
}
