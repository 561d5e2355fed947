package geolayer

import (
	"context"
	"errors"
	"fmt"
	"image/color"
	"testing"

	"github.com/rs/zerolog"

	"github.com/DavideDeMarchi/geolayer/internal/legend"
	"github.com/DavideDeMarchi/geolayer/internal/symbols"
	"github.com/DavideDeMarchi/geolayer/pkg/geoerr"
)

func sq(cx, cy, half float64) string {
	return fmt.Sprintf("POLYGON((%g %g,%g %g,%g %g,%g %g,%g %g))",
		cx-half, cy-half, cx+half, cy-half, cx+half, cy+half, cx-half, cy+half, cx-half, cy-half)
}

func fillSymbol(col string) symbols.Symbol {
	return symbols.Symbol{
		{
			{Symbolizer: "PolygonSymbolizer", Name: "fill", Value: col},
			{Symbolizer: "PolygonSymbolizer", Name: "fill-opacity", Value: 1.0},
		},
	}
}

func testLayer(t *testing.T) *VectorLayer {
	t.Helper()
	l, err := NewWKT("zones",
		[]string{sq(-45, 0, 20), sq(45, 0, 20)},
		[]map[string]any{
			{"class": "wood", "pop": 10},
			{"class": "urban", "pop": 90},
		})
	if err != nil {
		t.Fatalf("NewWKT: %v", err)
	}
	return l
}

func TestVectorLayer_SymbologyFirstMatch(t *testing.T) {
	l := testLayer(t)
	if err := l.SymbologyAdd("[class] = 'wood'", fillSymbol("#00ff00")); err != nil {
		t.Fatalf("SymbologyAdd: %v", err)
	}
	if err := l.SymbologyAdd("all", fillSymbol("#0000ff")); err != nil {
		t.Fatalf("SymbologyAdd: %v", err)
	}
	l.Freeze()

	img, err := l.RenderTile(context.Background(), 0, 0, 0)
	if err != nil {
		t.Fatalf("RenderTile: %v", err)
	}
	if got := img.NRGBAAt(96, 128); got != (color.NRGBA{0, 255, 0, 255}) {
		t.Fatalf("wood pixel=%v want green", got)
	}
	if got := img.NRGBAAt(160, 128); got != (color.NRGBA{0, 0, 255, 255}) {
		t.Fatalf("urban pixel=%v want blue", got)
	}
}

func TestVectorLayer_DefaultSymbology(t *testing.T) {
	l := testLayer(t)
	img, err := l.RenderTile(context.Background(), 0, 0, 0)
	if err != nil {
		t.Fatalf("RenderTile: %v", err)
	}
	if got := img.NRGBAAt(96, 128); got.A == 0 {
		t.Fatal("layer without symbology rendered invisible")
	}
}

func TestVectorLayer_SymbologyValidation(t *testing.T) {
	l := testLayer(t)
	if err := l.SymbologyAdd("[class] =", fillSymbol("#fff")); err == nil {
		t.Fatal("bad rule grammar accepted")
	}
	// unresolved placeholder must fail at configuration time
	sym := symbols.Symbol{{{Symbolizer: "PolygonSymbolizer", Name: "fill", Value: symbols.TagFillColor}}}
	if err := l.SymbologyAdd("all", sym); err == nil {
		t.Fatal("unresolved placeholder accepted")
	}
	if err := l.SymbologyClear(0); err == nil {
		t.Fatal("maxstyle 0 accepted")
	}
	if err := l.SymbologyClear(2); err != nil {
		t.Fatalf("SymbologyClear: %v", err)
	}
	three := symbols.Symbol{fillSymbol("#fff")[0], fillSymbol("#fff")[0], fillSymbol("#fff")[0]}
	if err := l.SymbologyAdd("all", three); err == nil {
		t.Fatal("symbol above maxstyle cap accepted")
	}
}

func TestVectorLayer_IdentifyFields(t *testing.T) {
	l := testLayer(t)
	if err := l.SetIdentifyFields([]string{"nope"}); err == nil {
		t.Fatal("unknown identify field accepted")
	}
	var ae *geoerr.AttributeNotFoundError
	if err := l.SetIdentifyFields([]string{"nope"}); !errors.As(err, &ae) {
		t.Fatalf("err type: %v", err)
	}
	if err := l.SetIdentifyFields([]string{"class"}); err != nil {
		t.Fatalf("SetIdentifyFields: %v", err)
	}
	l.Freeze()

	res, ok, err := l.Identify(context.Background(), -45, 0, 10)
	if err != nil || !ok {
		t.Fatalf("Identify: %v %v", ok, err)
	}
	if len(res.Lines) != 1 || res.Lines[0] != "class: wood" {
		t.Fatalf("lines=%v", res.Lines)
	}
	if _, ok, _ := l.Identify(context.Background(), 0, 80, 10); ok {
		t.Fatal("empty area identify should miss")
	}
}

func TestVectorLayer_LegendGraduated(t *testing.T) {
	l, err := NewWKT("pop",
		[]string{sq(0, 0, 1), sq(3, 0, 1), sq(6, 0, 1), sq(9, 0, 1)},
		[]map[string]any{{"pop": 1}, {"pop": 2}, {"pop": 99}, {"pop": 100}})
	if err != nil {
		t.Fatalf("NewWKT: %v", err)
	}
	colors, err := ParsePalette([]string{"#000000", "#ffffff"})
	if err != nil {
		t.Fatalf("ParsePalette: %v", err)
	}
	lg, err := l.LegendGraduated("pop", legend.GraduatedOptions{
		Classifier: legend.NaturalBreaks, Param1: 2,
		Colors: colors, Interpolate: true,
	})
	if err != nil {
		t.Fatalf("LegendGraduated: %v", err)
	}
	if len(lg.Items) != 2 {
		t.Fatalf("items=%d want 2", len(lg.Items))
	}
	if got := len(l.Symbology()); got != 2 {
		t.Fatalf("installed rules=%d want 2", got)
	}
	// fingerprint must change when symbology changes
	fp := l.Fingerprint()
	if err := l.SymbologyClear(symbols.MaxStyles); err != nil {
		t.Fatal(err)
	}
	if l.Fingerprint() == fp {
		t.Fatal("fingerprint did not change after symbology reset")
	}
}

func TestVectorLayer_LegendCategories(t *testing.T) {
	l := testLayer(t)
	colors, _ := ParsePalette([]string{"#ff0000", "#0000ff"})
	lg, err := l.LegendCategories("class", legend.CategoriesOptions{Colors: colors})
	if err != nil {
		t.Fatalf("LegendCategories: %v", err)
	}
	if len(lg.Items) != 2 {
		t.Fatalf("items=%d", len(lg.Items))
	}
	if lg.Items[0].Rule != "[class] = 'urban'" {
		t.Fatalf("rule=%q want sorted categories", lg.Items[0].Rule)
	}
}

type fakePopup struct {
	shown []IdentifyResult
	err   error
}

func (p *fakePopup) Show(_ context.Context, _ [2]float64, r IdentifyResult) error {
	p.shown = append(p.shown, r)
	return p.err
}

func TestOnClick(t *testing.T) {
	l := testLayer(t)
	l.Freeze()
	log := zerolog.Nop()

	p := &fakePopup{}
	OnClick(context.Background(), l, p, -45, 0, 10, &log)
	if len(p.shown) != 1 || p.shown[0].Title != "zones" {
		t.Fatalf("shown=%v", p.shown)
	}
	if p.shown[0].Width != DefaultIdentifyWidth {
		t.Fatalf("width=%d", p.shown[0].Width)
	}

	// popup failure must not propagate
	bad := &fakePopup{err: errors.New("widget gone")}
	OnClick(context.Background(), l, bad, -45, 0, 10, &log)

	// miss shows nothing
	p2 := &fakePopup{}
	OnClick(context.Background(), l, p2, 0, 80, 10, &log)
	if len(p2.shown) != 0 {
		t.Fatalf("miss still shown: %v", p2.shown)
	}
}

func TestVectorLayer_Describe(t *testing.T) {
	l := testLayer(t)
	if got := l.String(); got != "VectorLayer(zones, polygon, features=2, rules=0)" {
		t.Fatalf("describe=%q", got)
	}
}

func TestSymbolChange_Pure(t *testing.T) {
	sym := symbols.Symbol{{{Symbolizer: "PolygonSymbolizer", Name: "fill", Value: symbols.TagFillColor}}}
	out := SymbolChange(sym, map[string]any{symbols.TagFillColor: "#112233"})
	if out[0][0].Value != "#112233" {
		t.Fatalf("value=%v", out[0][0].Value)
	}
	if sym[0][0].Value != symbols.TagFillColor {
		t.Fatal("original symbol mutated")
	}
}
