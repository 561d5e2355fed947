package symbols

import (
	"encoding/json"
	"image/color"
	"reflect"
	"testing"
)

func parametricSymbol() Symbol {
	return Symbol{
		{
			{Symbolizer: "PolygonSymbolizer", Name: "fill", Value: TagFillColor},
			{Symbolizer: "PolygonSymbolizer", Name: "fill-opacity", Value: 0.8},
			{Symbolizer: "LineSymbolizer", Name: "stroke", Value: "#000000"},
			{Symbolizer: "LineSymbolizer", Name: "stroke-width", Value: 1.0},
		},
	}
}

func TestChange_DoesNotMutateInput(t *testing.T) {
	s1 := parametricSymbol()
	before := Clone(s1)

	s2 := Change(s1, map[string]any{TagFillColor: "red"})

	if !reflect.DeepEqual(s1, before) {
		t.Fatalf("Change mutated its input: %v", s1)
	}
	if got := s2[0][0].Value; got != "red" {
		t.Fatalf("substituted value=%v want red", got)
	}
	// non-placeholder values untouched
	if got := s2[0][2].Value; got != "#000000" {
		t.Fatalf("stroke value=%v want #000000", got)
	}
}

func TestChange_AbsentTagsIgnored(t *testing.T) {
	s := parametricSymbol()
	out := Change(s, map[string]any{TagStrokeColor: "#ffffff", TagScaleMin: 100.0})
	if !reflect.DeepEqual(out, s) {
		t.Fatalf("substituting absent tags must be a no-op, got %v", out)
	}
}

func TestScale_MultipliesLengthsOnly(t *testing.T) {
	s := Symbol{{
		{Symbolizer: "LineSymbolizer", Name: "stroke-width", Value: 2.0},
		{Symbolizer: "PolygonSymbolizer", Name: "fill-opacity", Value: 0.5},
		{Symbolizer: "MarkersSymbolizer", Name: "width", Value: 10.0},
	}}
	out := Scale(s, 3)
	if got := out[0][0].Value; got != 6.0 {
		t.Fatalf("stroke-width=%v want 6", got)
	}
	if got := out[0][1].Value; got != 0.5 {
		t.Fatalf("fill-opacity=%v want unchanged 0.5", got)
	}
	if got := out[0][2].Value; got != 30.0 {
		t.Fatalf("width=%v want 30", got)
	}
	if s[0][0].Value != 2.0 {
		t.Fatalf("Scale mutated input")
	}
}

func TestValidate(t *testing.T) {
	if err := Validate(parametricSymbol()); err != nil {
		t.Fatalf("valid symbol rejected: %v", err)
	}
	bad := Symbol{{{Symbolizer: "BlinkSymbolizer", Name: "fill", Value: "red"}}}
	if err := Validate(bad); err == nil {
		t.Fatal("unknown symbolizer accepted")
	}
	bad = Symbol{{{Symbolizer: "PolygonSymbolizer", Name: "glow", Value: "red"}}}
	if err := Validate(bad); err == nil {
		t.Fatal("unknown property accepted")
	}
	tooMany := make(Symbol, MaxStyles+1)
	if err := Validate(tooMany); err == nil {
		t.Fatal("symbol with 11 styles accepted")
	}
}

func TestResolve(t *testing.T) {
	s := Change(parametricSymbol(), map[string]any{TagFillColor: "#00aa00"})
	dp, err := Resolve(s[0])
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !dp.HasFill || dp.Fill != (color.NRGBA{0, 0xaa, 0, 255}) {
		t.Fatalf("fill=%v", dp.Fill)
	}
	if dp.FillOpacity != 0.8 {
		t.Fatalf("fill-opacity=%v want 0.8", dp.FillOpacity)
	}
	if !dp.HasStroke || dp.StrokeWidth != 1.0 {
		t.Fatalf("stroke width=%v", dp.StrokeWidth)
	}
}

func TestResolve_UnresolvedPlaceholderFails(t *testing.T) {
	if _, err := Resolve(parametricSymbol()[0]); err == nil {
		t.Fatal("Resolve with unresolved FILL-COLOR should fail")
	}
}

func TestJSON_RoundTrip(t *testing.T) {
	raw := `[[["PolygonSymbolizer","fill","FILL-COLOR"],["LineSymbolizer","stroke-width",1.5]]]`
	var s Symbol
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if len(s) != 1 || len(s[0]) != 2 {
		t.Fatalf("shape %d/%d", len(s), len(s[0]))
	}
	if s[0][1].Value != 1.5 {
		t.Fatalf("numeric value=%v", s[0][1].Value)
	}
	out, err := json.Marshal(s)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var s2 Symbol
	if err := json.Unmarshal(out, &s2); err != nil {
		t.Fatalf("re-Unmarshal: %v", err)
	}
	if !reflect.DeepEqual(s, s2) {
		t.Fatalf("roundtrip mismatch:\n%v\n%v", s, s2)
	}
}

func TestSwatch_PolygonFillAndCrop(t *testing.T) {
	s := Change(parametricSymbol(), map[string]any{TagFillColor: "#ff0000"})
	img, err := Swatch(s, SwatchOptions{Size: 2, Feature: KindPolygon})
	if err != nil {
		t.Fatalf("Swatch: %v", err)
	}
	if img.Rect.Dx() != 80 {
		t.Fatalf("canvas=%d want 80", img.Rect.Dx())
	}
	center := img.NRGBAAt(40, 40)
	if center.R < 200 || center.A == 0 {
		t.Fatalf("center pixel %v not filled red", center)
	}
	corner := img.NRGBAAt(1, 1)
	if corner.A != 0 {
		t.Fatalf("corner pixel %v should be transparent", corner)
	}

	cropped, err := Swatch(s, SwatchOptions{Size: 2, Feature: KindPolygon, ClipDimension: 40})
	if err != nil {
		t.Fatalf("Swatch crop: %v", err)
	}
	if cropped.Rect.Dx() != 40 {
		t.Fatalf("cropped=%d want 40", cropped.Rect.Dx())
	}
}

func TestSwatch_PolylineAndPoint(t *testing.T) {
	line := Symbol{{
		{Symbolizer: "LineSymbolizer", Name: "stroke", Value: "#0000ff"},
		{Symbolizer: "LineSymbolizer", Name: "stroke-width", Value: 4.0},
	}}
	img, err := Swatch(line, SwatchOptions{Size: 1, Feature: KindPolyline})
	if err != nil {
		t.Fatalf("Swatch line: %v", err)
	}
	if img.NRGBAAt(15, 15).A == 0 {
		t.Fatal("diagonal stroke missing at center")
	}

	pt := Symbol{{
		{Symbolizer: "MarkersSymbolizer", Name: "fill", Value: "#00ff00"},
		{Symbolizer: "MarkersSymbolizer", Name: "width", Value: 10.0},
	}}
	img, err = Swatch(pt, SwatchOptions{Size: 1, Feature: KindPoint})
	if err != nil {
		t.Fatalf("Swatch point: %v", err)
	}
	if img.NRGBAAt(15, 15).G < 200 {
		t.Fatalf("marker center %v not green", img.NRGBAAt(15, 15))
	}
}

func TestSwatch_BadSize(t *testing.T) {
	if _, err := Swatch(Symbol{}, SwatchOptions{Size: 9}); err == nil {
		t.Fatal("size 9 accepted")
	}
}
