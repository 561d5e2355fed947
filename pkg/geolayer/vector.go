package geolayer

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"strings"

	"github.com/DavideDeMarchi/geolayer/internal/colorizer"
	"github.com/DavideDeMarchi/geolayer/internal/crs"
	"github.com/DavideDeMarchi/geolayer/internal/legend"
	"github.com/DavideDeMarchi/geolayer/internal/rules"
	"github.com/DavideDeMarchi/geolayer/internal/symbols"
	"github.com/DavideDeMarchi/geolayer/internal/vector"
	"github.com/DavideDeMarchi/geolayer/pkg/geoerr"
)

// FeatureProvider supplies features from an external store (a PostGIS
// query, typically) as WKT geometries with attribute maps.
type FeatureProvider interface {
	Features(ctx context.Context) (geoms []string, attrs []map[string]any, err error)
}

// SymbologyRule is one installed rule: the original text plus its compiled
// filter and resolved draw parameters.
type SymbologyRule struct {
	Rule   string
	Symbol symbols.Symbol

	expr   rules.Expr
	styles []symbols.DrawParams
}

// VectorLayer serves one feature dataset with rule-driven symbology.
// Features take the first matching rule, top to bottom.
//
// Configure fully, then Freeze before sharing across goroutines.
type VectorLayer struct {
	name     string
	ds       *vector.Dataset
	maxStyle int
	rules    []SymbologyRule

	identifyFields []string
	identifyWidth  int

	frozen bool
}

func newVector(name string, ds *vector.Dataset) (*VectorLayer, error) {
	if name == "" {
		return nil, geoerr.Config("vector layer needs a name")
	}
	return &VectorLayer{
		name: name, ds: ds,
		maxStyle:      symbols.MaxStyles,
		identifyWidth: DefaultIdentifyWidth,
	}, nil
}

// NewFile loads a FlatGeobuf dataset.
func NewFile(name, path string) (*VectorLayer, error) {
	ds, err := vector.FromFlatGeobuf(path)
	if err != nil {
		return nil, err
	}
	return newVector(name, ds)
}

// NewWKT builds a layer from WKT geometries with parallel attribute maps.
func NewWKT(name string, geoms []string, attrs []map[string]any) (*VectorLayer, error) {
	ds, err := vector.FromWKT(geoms, attrs)
	if err != nil {
		return nil, err
	}
	return newVector(name, ds)
}

// NewPostgis materializes features from an external provider at
// construction time. The query and connection live with the provider.
func NewPostgis(ctx context.Context, name string, provider FeatureProvider) (*VectorLayer, error) {
	if provider == nil {
		return nil, geoerr.Config("vector layer %q: no feature provider", name)
	}
	geoms, attrs, err := provider.Features(ctx)
	if err != nil {
		return nil, &geoerr.ConfigError{What: fmt.Sprintf("layer %q: load features", name), Err: err}
	}
	return NewWKT(name, geoms, attrs)
}

func (l *VectorLayer) mutable() error {
	if l.frozen {
		return geoerr.Config("layer %q is frozen", l.name)
	}
	return nil
}

// Freeze makes the layer immutable and safe for concurrent use.
func (l *VectorLayer) Freeze() { l.frozen = true }

func (l *VectorLayer) Name() string { return l.name }

// Dataset exposes the backing features for legend statistics.
func (l *VectorLayer) Dataset() *vector.Dataset { return l.ds }

// SymbologyClear removes all rules and caps the per-symbol style count.
func (l *VectorLayer) SymbologyClear(maxstyle int) error {
	if err := l.mutable(); err != nil {
		return err
	}
	if maxstyle < 1 || maxstyle > symbols.MaxStyles {
		return geoerr.Config("maxstyle %d outside [1, %d]", maxstyle, symbols.MaxStyles)
	}
	l.maxStyle = maxstyle
	l.rules = nil
	return nil
}

// SymbologyAdd appends one rule. The rule text is compiled now, so bad
// grammar fails at configuration time; unknown attributes still surface at
// render time.
func (l *VectorLayer) SymbologyAdd(rule string, sym symbols.Symbol) error {
	if err := l.mutable(); err != nil {
		return err
	}
	expr, err := rules.Parse(rule)
	if err != nil {
		return err
	}
	if err := symbols.Validate(sym); err != nil {
		return err
	}
	if len(sym) > l.maxStyle {
		return geoerr.Config("symbol has %d styles, layer cap is %d", len(sym), l.maxStyle)
	}
	styles := make([]symbols.DrawParams, 0, len(sym))
	for _, style := range sym {
		dp, err := symbols.Resolve(style)
		if err != nil {
			return err
		}
		styles = append(styles, dp)
	}
	l.rules = append(l.rules, SymbologyRule{
		Rule: rule, Symbol: symbols.Clone(sym), expr: expr, styles: styles,
	})
	return nil
}

// Symbology returns the installed rules in match order.
func (l *VectorLayer) Symbology() []SymbologyRule { return l.rules }

// ApplyLegend replaces the symbology with the legend's classes.
func (l *VectorLayer) ApplyLegend(lg legend.Legend) error {
	if err := l.mutable(); err != nil {
		return err
	}
	l.rules = nil
	for _, item := range lg.Items {
		if err := l.SymbologyAdd(item.Rule, item.Symbol); err != nil {
			return err
		}
	}
	return nil
}

// LegendGraduated classifies a numeric field and installs one symbology
// rule per class. Returns the legend for display.
func (l *VectorLayer) LegendGraduated(field string, opts legend.GraduatedOptions) (legend.Legend, error) {
	if err := l.mutable(); err != nil {
		return legend.Legend{}, err
	}
	values, err := l.ds.NumericValues(field)
	if err != nil {
		return legend.Legend{}, err
	}
	lg, err := legend.Graduated(field, values, opts)
	if err != nil {
		return legend.Legend{}, err
	}
	return lg, l.ApplyLegend(lg)
}

// LegendCategories installs one rule per distinct value of a field.
func (l *VectorLayer) LegendCategories(field string, opts legend.CategoriesOptions) (legend.Legend, error) {
	if err := l.mutable(); err != nil {
		return legend.Legend{}, err
	}
	values := l.ds.Values(field)
	lg, err := legend.Categories(field, values, opts)
	if err != nil {
		return legend.Legend{}, err
	}
	return lg, l.ApplyLegend(lg)
}

// SetIdentifyFields restricts identify output to the named attributes, in
// order. Unknown fields fail now rather than at click time.
func (l *VectorLayer) SetIdentifyFields(fields []string) error {
	if err := l.mutable(); err != nil {
		return err
	}
	known := map[string]bool{}
	for _, f := range l.ds.Fields() {
		known[f] = true
	}
	for _, f := range fields {
		if !known[f] {
			return &geoerr.AttributeNotFoundError{Attribute: f}
		}
	}
	l.identifyFields = fields
	return nil
}

func (l *VectorLayer) SetIdentifyWidth(px int) error {
	if err := l.mutable(); err != nil {
		return err
	}
	if px <= 0 {
		return geoerr.Config("identify width %d must be positive", px)
	}
	l.identifyWidth = px
	return nil
}

func (l *VectorLayer) styleRules() []vector.StyleRule {
	out := make([]vector.StyleRule, 0, len(l.rules))
	for _, r := range l.rules {
		out = append(out, vector.StyleRule{Filter: r.expr, Styles: r.styles})
	}
	return out
}

// RenderTile rasterizes one XYZ tile. A layer without symbology renders
// with a neutral default so data is never silently invisible.
func (l *VectorLayer) RenderTile(_ context.Context, z, x, y int) (*image.NRGBA, error) {
	if !validTileRequest(z, x, y) {
		return image.NewNRGBA(image.Rect(0, 0, crs.TileSize, crs.TileSize)), nil
	}
	ruleset := l.styleRules()
	if len(ruleset) == 0 {
		ruleset = []vector.StyleRule{{Filter: rules.MatchAll, Styles: []symbols.DrawParams{defaultDrawParams(l.ds.Kind)}}}
	}
	return vector.RenderTile(l.ds, ruleset, z, x, y)
}

func defaultDrawParams(kind vector.GeomKind) symbols.DrawParams {
	grey := color.NRGBA{128, 128, 128, 255}
	dp := symbols.DrawParams{
		FillOpacity: 1, StrokeOpacity: 1, StrokeWidth: 1, PointSize: 6,
		HasStroke: true, Stroke: color.NRGBA{64, 64, 64, 255},
	}
	if kind != vector.KindLine {
		dp.HasFill = true
		dp.Fill = grey
	}
	return dp
}

// Identify returns the attributes of the topmost feature at a point, one
// line per field.
func (l *VectorLayer) Identify(_ context.Context, lon, lat float64, zoom int) (IdentifyResult, bool, error) {
	if !validIdentifyRequest(lon, lat, zoom) {
		return IdentifyResult{}, false, nil
	}
	f, ok := l.ds.Identify(lon, lat, zoom)
	if !ok {
		return IdentifyResult{}, false, nil
	}
	fields := l.identifyFields
	if len(fields) == 0 {
		fields = l.ds.Fields()
	}
	lines := make([]string, 0, len(fields))
	for _, name := range fields {
		if v, ok := f.Attrs[name]; ok {
			lines = append(lines, fmt.Sprintf("%s: %v", name, v))
		}
	}
	return IdentifyResult{Title: l.name, Lines: lines, Width: l.identifyWidth}, true, nil
}

// Symbol2Image renders a legend swatch for one of the layer's rules.
func (l *VectorLayer) Symbol2Image(sym symbols.Symbol, opts symbols.SwatchOptions) (*image.NRGBA, error) {
	if opts.Feature == "" {
		switch l.ds.Kind {
		case vector.KindPoint:
			opts.Feature = symbols.KindPoint
		case vector.KindLine:
			opts.Feature = symbols.KindPolyline
		default:
			opts.Feature = symbols.KindPolygon
		}
	}
	return symbols.Swatch(sym, opts)
}

// SymbolChange substitutes placeholder tags in a symbol without touching
// the original.
func SymbolChange(sym symbols.Symbol, subs map[string]any) symbols.Symbol {
	return symbols.Change(sym, subs)
}

// ParsePalette converts color strings for the legend options.
func ParsePalette(names []string) ([]color.NRGBA, error) {
	out := make([]color.NRGBA, 0, len(names))
	for _, s := range names {
		c, err := colorizer.ParseColor(s)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func (l *VectorLayer) Fingerprint() string {
	var b strings.Builder
	fmt.Fprintf(&b, "vector:%s:%d", l.ds.Kind, len(l.ds.Features))
	for _, r := range l.rules {
		b.WriteString("|r=" + r.Rule + "&s=" + symbols.Fingerprint(r.Symbol))
	}
	return b.String()
}

func (l *VectorLayer) Describe() string {
	return fmt.Sprintf("VectorLayer(%s, %s, features=%d, rules=%d)",
		l.name, l.ds.Kind, len(l.ds.Features), len(l.rules))
}

func (l *VectorLayer) String() string { return l.Describe() }
