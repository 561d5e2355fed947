package geolayer

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"math"
	"strconv"
	"strings"
	"sync"

	"github.com/DavideDeMarchi/geolayer/internal/colorizer"
	"github.com/DavideDeMarchi/geolayer/internal/raster"
	"github.com/DavideDeMarchi/geolayer/pkg/geoerr"
)

// STACResolver maps a satellite product and band name to a grid reference
// (file path or redis:<key>). Catalog access itself lives outside this
// module.
type STACResolver interface {
	Resolve(ctx context.Context, product, band string) (string, error)
}

type rasterKind int

const (
	rasterSingle rasterKind = iota
	rasterRGB
	rasterIndex
)

// RasterLayer serves one gridded dataset: a single colorized band, an RGB
// band triple, or a normalized-difference index of two bands.
//
// Configure the layer fully, then Freeze before sharing it across
// goroutines; render and identify are pure after that.
type RasterLayer struct {
	name   string
	kind   rasterKind
	loader raster.Loader
	refs   []string
	bands  []int

	cz      *colorizer.Colorizer
	scales  [3]raster.ScaleRange
	opacity float64

	identifyDict    map[float64]string
	identifyInteger bool
	identifyDigits  int
	identifyLabel   string
	identifyWidth   int

	frozen   bool
	loadOnce sync.Once
	loadErr  error
	grids    []*raster.Grid
}

func newRaster(name string, loader raster.Loader, kind rasterKind, refs []string, bands []int) (*RasterLayer, error) {
	if name == "" {
		return nil, geoerr.Config("raster layer needs a name")
	}
	if loader == nil {
		return nil, geoerr.Config("raster layer %q: no loader", name)
	}
	for i, r := range refs {
		if r == "" {
			return nil, geoerr.Config("raster layer %q: empty ref %d", name, i)
		}
		if bands[i] < 1 {
			bands[i] = 1
		}
	}
	cz, err := colorizer.New(colorizer.ModeLinear, color.NRGBA{}, colorizer.DefaultEpsilon)
	if err != nil {
		return nil, err
	}
	return &RasterLayer{
		name: name, kind: kind, loader: loader, refs: refs, bands: bands,
		cz:      cz,
		opacity: 1,
		scales: [3]raster.ScaleRange{
			{Min: 0, Max: 255}, {Min: 0, Max: 255}, {Min: 0, Max: 255},
		},
		identifyDigits: 2,
		identifyWidth:  DefaultIdentifyWidth,
	}, nil
}

// NewSingle serves one band through the layer's colorizer.
func NewSingle(name string, loader raster.Loader, ref string, band int) (*RasterLayer, error) {
	return newRaster(name, loader, rasterSingle, []string{ref}, []int{band})
}

// NewRGB composes three single-band references into an RGB display.
func NewRGB(name string, loader raster.Loader, refs [3]string, bands [3]int) (*RasterLayer, error) {
	return newRaster(name, loader, rasterRGB, refs[:], bands[:])
}

// NewIndex serves the normalized difference (a-b)/(a+b) of two bands
// through the colorizer, preloaded with the default index palette.
func NewIndex(name string, loader raster.Loader, refA, refB string, bandA, bandB int) (*RasterLayer, error) {
	l, err := newRaster(name, loader, rasterIndex, []string{refA, refB}, []int{bandA, bandB})
	if err != nil {
		return nil, err
	}
	if err := l.ColorList(-1, 1, DefaultIndexPalette()); err != nil {
		return nil, err
	}
	return l, nil
}

// NewSentinel2Single resolves a Sentinel-2 band through the STAC resolver.
func NewSentinel2Single(ctx context.Context, name string, loader raster.Loader, res STACResolver, product, band string) (*RasterLayer, error) {
	ref, err := resolveBand(ctx, res, product, band)
	if err != nil {
		return nil, err
	}
	return NewSingle(name, loader, ref, 1)
}

// NewSentinel2RGB resolves three Sentinel-2 bands, in display order, with
// the reflectance scaling preset.
func NewSentinel2RGB(ctx context.Context, name string, loader raster.Loader, res STACResolver, product string, bands [3]string) (*RasterLayer, error) {
	var refs [3]string
	for i, b := range bands {
		ref, err := resolveBand(ctx, res, product, b)
		if err != nil {
			return nil, err
		}
		refs[i] = ref
	}
	l, err := NewRGB(name, loader, refs, [3]int{1, 1, 1})
	if err != nil {
		return nil, err
	}
	// sentinel-2 L2A reflectance is stored as 0..10000
	for i := range l.scales {
		l.scales[i] = raster.ScaleRange{Min: 0, Max: 4000}
	}
	return l, nil
}

// NewSentinel2Index resolves two Sentinel-2 bands into a normalized
// difference layer (NDVI for B08/B04).
func NewSentinel2Index(ctx context.Context, name string, loader raster.Loader, res STACResolver, product, bandA, bandB string) (*RasterLayer, error) {
	refA, err := resolveBand(ctx, res, product, bandA)
	if err != nil {
		return nil, err
	}
	refB, err := resolveBand(ctx, res, product, bandB)
	if err != nil {
		return nil, err
	}
	return NewIndex(name, loader, refA, refB, 1, 1)
}

func resolveBand(ctx context.Context, res STACResolver, product, band string) (string, error) {
	if res == nil {
		return "", geoerr.Config("no STAC resolver configured")
	}
	ref, err := res.Resolve(ctx, product, band)
	if err != nil {
		return "", &geoerr.ConfigError{What: fmt.Sprintf("resolve %s/%s", product, band), Err: err}
	}
	return ref, nil
}

// DefaultIndexPalette is the browns-to-greens ramp applied to normalized
// difference indexes over [-1, 1].
func DefaultIndexPalette() []string {
	return []string{
		"#784519", "#a96f2e", "#d3a95e", "#f0d992", "#fff3c2",
		"#dbe791", "#a9cf5f", "#77b43a", "#4c9423", "#256e14", "#0a470a",
	}
}

func (l *RasterLayer) mutable() error {
	if l.frozen {
		return geoerr.Config("layer %q is frozen", l.name)
	}
	return nil
}

// Freeze makes the layer immutable and safe for concurrent render and
// identify calls.
func (l *RasterLayer) Freeze() { l.frozen = true }

func (l *RasterLayer) Name() string { return l.name }

// Color adds one colorizer stop.
func (l *RasterLayer) Color(value float64, col string, mode string) error {
	if err := l.mutable(); err != nil {
		return err
	}
	c, err := colorizer.ParseColor(col)
	if err != nil {
		return err
	}
	m, err := colorizer.ParseMode(mode)
	if err != nil {
		return err
	}
	return l.cz.Add(value, c, m)
}

// ColorList spreads colors linearly over [scalemin, scalemax].
func (l *RasterLayer) ColorList(scalemin, scalemax float64, colors []string) error {
	if err := l.mutable(); err != nil {
		return err
	}
	parsed := make([]color.NRGBA, 0, len(colors))
	for _, s := range colors {
		c, err := colorizer.ParseColor(s)
		if err != nil {
			return err
		}
		parsed = append(parsed, c)
	}
	return l.cz.AddColorList(scalemin, scalemax, parsed)
}

// ColorMap adds one stop per value->color pair, all with the same mode.
func (l *RasterLayer) ColorMap(values2colors map[float64]string, mode string) error {
	if err := l.mutable(); err != nil {
		return err
	}
	m, err := colorizer.ParseMode(mode)
	if err != nil {
		return err
	}
	parsed := make(map[float64]color.NRGBA, len(values2colors))
	for v, s := range values2colors {
		c, err := colorizer.ParseColor(s)
		if err != nil {
			return err
		}
		parsed[v] = c
	}
	return l.cz.AddColorMap(parsed, m)
}

// ColorDefaults sets the mode and color applied to values not covered by
// any stop. Empty strings leave the current default untouched.
func (l *RasterLayer) ColorDefaults(mode, col string) error {
	if err := l.mutable(); err != nil {
		return err
	}
	if mode != "" {
		m, err := colorizer.ParseMode(mode)
		if err != nil {
			return err
		}
		if m != colorizer.ModeInherit {
			l.cz.DefaultMode = m
		}
	}
	if col != "" {
		c, err := colorizer.ParseColor(col)
		if err != nil {
			return err
		}
		l.cz.DefaultColor = c
	}
	return nil
}

// ColorClear removes all stops.
func (l *RasterLayer) ColorClear() error {
	if err := l.mutable(); err != nil {
		return err
	}
	l.cz.Reset()
	return nil
}

// Symbolizer sets the channel scaling applied to RGB display and the layer
// opacity.
func (l *RasterLayer) Symbolizer(scalemin, scalemax, opacity float64) error {
	if err := l.mutable(); err != nil {
		return err
	}
	if scalemax <= scalemin {
		return geoerr.Config("scale range [%g, %g] is empty", scalemin, scalemax)
	}
	if opacity < 0 || opacity > 1 {
		return geoerr.Config("opacity %g outside [0, 1]", opacity)
	}
	for i := range l.scales {
		l.scales[i] = raster.ScaleRange{Min: scalemin, Max: scalemax}
	}
	l.opacity = opacity
	return nil
}

// SetIdentifyDict maps raw values to display labels.
func (l *RasterLayer) SetIdentifyDict(d map[float64]string) error {
	if err := l.mutable(); err != nil {
		return err
	}
	for v := range d {
		if math.IsNaN(v) {
			return geoerr.Config("identify dict key is NaN")
		}
	}
	l.identifyDict = d
	return nil
}

func (l *RasterLayer) SetIdentifyInteger(v bool) error {
	if err := l.mutable(); err != nil {
		return err
	}
	l.identifyInteger = v
	return nil
}

func (l *RasterLayer) SetIdentifyDigits(n int) error {
	if err := l.mutable(); err != nil {
		return err
	}
	if n < 0 || n > 10 {
		return geoerr.Config("identify digits %d outside [0, 10]", n)
	}
	l.identifyDigits = n
	return nil
}

func (l *RasterLayer) SetIdentifyLabel(label string) error {
	if err := l.mutable(); err != nil {
		return err
	}
	l.identifyLabel = label
	return nil
}

func (l *RasterLayer) SetIdentifyWidth(px int) error {
	if err := l.mutable(); err != nil {
		return err
	}
	if px <= 0 {
		return geoerr.Config("identify width %d must be positive", px)
	}
	l.identifyWidth = px
	return nil
}

// load opens every referenced band once. For index layers the two bands
// collapse into the computed difference grid.
func (l *RasterLayer) load(ctx context.Context) error {
	l.loadOnce.Do(func() {
		grids := make([]*raster.Grid, 0, len(l.refs))
		for i, ref := range l.refs {
			g, err := l.loader.Open(ctx, ref, l.bands[i])
			if err != nil {
				l.loadErr = err
				return
			}
			grids = append(grids, g)
		}
		if l.kind == rasterIndex {
			idx, err := raster.IndexGrid(grids[0], grids[1])
			if err != nil {
				l.loadErr = err
				return
			}
			grids = []*raster.Grid{idx}
		}
		l.grids = grids
	})
	return l.loadErr
}

// RenderTile rasterizes one XYZ tile. Out-of-range tiles render empty.
func (l *RasterLayer) RenderTile(ctx context.Context, z, x, y int) (*image.NRGBA, error) {
	if !validTileRequest(z, x, y) {
		return image.NewNRGBA(image.Rect(0, 0, 256, 256)), nil
	}
	if err := l.load(ctx); err != nil {
		return nil, err
	}
	switch l.kind {
	case rasterRGB:
		return raster.RenderTileRGB(l.grids[0], l.grids[1], l.grids[2], l.scales, z, x, y, l.opacity), nil
	default:
		return raster.RenderTile(l.grids[0], l.cz, z, x, y, l.opacity), nil
	}
}

// Identify samples the layer at a point. Nodata and out-of-extent points
// are misses, not errors.
func (l *RasterLayer) Identify(ctx context.Context, lon, lat float64, zoom int) (IdentifyResult, bool, error) {
	if !validIdentifyRequest(lon, lat, zoom) {
		return IdentifyResult{}, false, nil
	}
	if err := l.load(ctx); err != nil {
		return IdentifyResult{}, false, err
	}
	lines := make([]string, 0, len(l.grids))
	for _, g := range l.grids {
		v, ok := g.SampleLonLat(lon, lat)
		if !ok || g.IsNoData(v) {
			return IdentifyResult{}, false, nil
		}
		lines = append(lines, l.formatValue(v))
	}
	return IdentifyResult{Title: l.name, Lines: lines, Width: l.identifyWidth}, true, nil
}

func (l *RasterLayer) formatValue(v float64) string {
	if l.identifyDict != nil {
		if label, ok := l.identifyDict[v]; ok {
			return label
		}
		if label, ok := l.identifyDict[math.Round(v)]; ok {
			return label
		}
	}
	var s string
	if l.identifyInteger {
		s = strconv.FormatInt(int64(math.Round(v)), 10)
	} else {
		s = strconv.FormatFloat(v, 'f', l.identifyDigits, 64)
	}
	if l.identifyLabel != "" {
		s += " " + l.identifyLabel
	}
	return s
}

// Fingerprint covers everything affecting pixels, for tile-cache keys.
func (l *RasterLayer) Fingerprint() string {
	var b strings.Builder
	fmt.Fprintf(&b, "raster:%d", l.kind)
	for i, ref := range l.refs {
		fmt.Fprintf(&b, "|%s#%d", ref, l.bands[i])
	}
	fmt.Fprintf(&b, "|op=%g", l.opacity)
	for _, s := range l.scales {
		fmt.Fprintf(&b, "|sc=%g:%g", s.Min, s.Max)
	}
	b.WriteString("|cz=" + l.cz.Fingerprint())
	return b.String()
}

func (l *RasterLayer) Describe() string {
	kind := map[rasterKind]string{rasterSingle: "single", rasterRGB: "rgb", rasterIndex: "index"}[l.kind]
	return fmt.Sprintf("RasterLayer(%s, %s, refs=%v, stops=%d, opacity=%g)",
		l.name, kind, l.refs, l.cz.Len(), l.opacity)
}

func (l *RasterLayer) String() string { return l.Describe() }
