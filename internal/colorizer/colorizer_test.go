package colorizer

import (
	"errors"
	"image/color"
	"math"
	"testing"

	"github.com/DavideDeMarchi/geolayer/pkg/geoerr"
)

func mustNew(t *testing.T, mode Mode) *Colorizer {
	t.Helper()
	c, err := New(mode, color.NRGBA{}, DefaultEpsilon)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestEvaluate_StopValueIsIncluded_AllModes(t *testing.T) {
	red := color.NRGBA{255, 0, 0, 255}
	for _, mode := range []Mode{ModeDiscrete, ModeLinear, ModeExact} {
		c := mustNew(t, ModeLinear)
		if err := c.Add(10, red, mode); err != nil {
			t.Fatalf("Add: %v", err)
		}
		if got := c.Evaluate(10); got != red {
			t.Fatalf("mode %s: Evaluate(10)=%v want %v", mode, got, red)
		}
	}
}

func TestEvaluate_LinearInterpolation(t *testing.T) {
	c := mustNew(t, ModeLinear)
	_ = c.Add(0, color.NRGBA{0, 0, 0, 255}, ModeLinear)
	_ = c.Add(100, color.NRGBA{255, 255, 255, 255}, ModeLinear)

	got := c.Evaluate(50)
	for _, ch := range []uint8{got.R, got.G, got.B} {
		if ch < 126 || ch > 128 {
			t.Fatalf("Evaluate(50)=%v want channels ~127", got)
		}
	}
	if got.A != 255 {
		t.Fatalf("alpha=%d want 255", got.A)
	}

	// monotonic over the ramp
	prev := -1
	for v := 0.0; v <= 100; v += 5 {
		r := int(c.Evaluate(v).R)
		if r < prev {
			t.Fatalf("interpolation not monotonic at %v: %d < %d", v, r, prev)
		}
		prev = r
	}
}

func TestEvaluate_ExactEpsilon(t *testing.T) {
	c, err := New(ModeLinear, color.NRGBA{1, 2, 3, 4}, 0.01)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	red := color.NRGBA{255, 0, 0, 255}
	_ = c.Add(5.0, red, ModeExact)

	if got := c.Evaluate(5.005); got != red {
		t.Fatalf("Evaluate(5.005)=%v want stop color", got)
	}
	if got := c.Evaluate(5.02); got != (color.NRGBA{1, 2, 3, 4}) {
		t.Fatalf("Evaluate(5.02)=%v want default color", got)
	}
}

func TestEvaluate_BelowFirstStopReturnsDefault(t *testing.T) {
	def := color.NRGBA{9, 9, 9, 9}
	c, _ := New(ModeDiscrete, def, DefaultEpsilon)
	_ = c.Add(10, color.NRGBA{255, 0, 0, 255}, ModeDiscrete)
	if got := c.Evaluate(5); got != def {
		t.Fatalf("Evaluate(5)=%v want default", got)
	}
}

func TestEvaluate_LastLinearStopBehavesDiscrete(t *testing.T) {
	blue := color.NRGBA{0, 0, 255, 255}
	c := mustNew(t, ModeLinear)
	_ = c.Add(0, blue, ModeLinear)
	if got := c.Evaluate(1e9); got != blue {
		t.Fatalf("Evaluate above last stop=%v want stop color", got)
	}
}

func TestEvaluate_NonFiniteIsTransparent(t *testing.T) {
	c := mustNew(t, ModeLinear)
	_ = c.Add(0, color.NRGBA{255, 0, 0, 255}, ModeLinear)
	for _, v := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		if got := c.Evaluate(v); got != (color.NRGBA{}) {
			t.Fatalf("Evaluate(%v)=%v want transparent", v, got)
		}
	}
}

func TestEvaluate_EqualStopValuesDegenerateToCandidate(t *testing.T) {
	a := color.NRGBA{10, 0, 0, 255}
	b := color.NRGBA{200, 0, 0, 255}
	c := mustNew(t, ModeLinear)
	_ = c.Add(5, a, ModeLinear)
	_ = c.Add(5, b, ModeLinear)
	got := c.Evaluate(5)
	if got != a && got != b {
		t.Fatalf("Evaluate(5)=%v want one of the coincident stops", got)
	}
}

func TestAdd_NonFiniteValueFails(t *testing.T) {
	c := mustNew(t, ModeLinear)
	err := c.Add(math.NaN(), color.NRGBA{}, ModeLinear)
	var ce *geoerr.ConfigError
	if !errors.As(err, &ce) {
		t.Fatalf("Add(NaN) err=%v want ConfigError", err)
	}
}

func TestAdd_KeepsStopsSorted(t *testing.T) {
	c := mustNew(t, ModeLinear)
	for _, v := range []float64{30, 10, 20} {
		_ = c.Add(v, color.NRGBA{}, ModeLinear)
	}
	stops := c.Stops()
	for i := 1; i < len(stops); i++ {
		if stops[i].Value < stops[i-1].Value {
			t.Fatalf("stops out of order: %v", stops)
		}
	}
}

func TestAddColorList_SpacingAndEndpoints(t *testing.T) {
	c := mustNew(t, ModeLinear)
	cols := []color.NRGBA{{0, 0, 0, 255}, {128, 128, 128, 255}, {255, 255, 255, 255}}
	if err := c.AddColorList(0, 100, cols); err != nil {
		t.Fatalf("AddColorList: %v", err)
	}
	stops := c.Stops()
	if len(stops) != 3 {
		t.Fatalf("len(stops)=%d want 3", len(stops))
	}
	want := []float64{0, 50, 100}
	for i, s := range stops {
		if math.Abs(s.Value-want[i]) > 1e-9 {
			t.Fatalf("stop %d value=%v want %v", i, s.Value, want[i])
		}
	}
}

func TestNew_NegativeEpsilonFails(t *testing.T) {
	if _, err := New(ModeLinear, color.NRGBA{}, -1); err == nil {
		t.Fatal("New with negative epsilon should fail")
	}
}

func TestParseColor(t *testing.T) {
	cases := []struct {
		in   string
		want color.NRGBA
		ok   bool
	}{
		{"#ff0000", color.NRGBA{255, 0, 0, 255}, true},
		{"#FF0000", color.NRGBA{255, 0, 0, 255}, true},
		{"#0f0", color.NRGBA{0, 255, 0, 255}, true},
		{"#11223344", color.NRGBA{0x11, 0x22, 0x33, 0x44}, true},
		{"transparent", color.NRGBA{0, 0, 0, 0}, true},
		{"red", color.NRGBA{255, 0, 0, 255}, true},
		{"notacolor", color.NRGBA{}, false},
		{"#12345", color.NRGBA{}, false},
	}
	for _, tc := range cases {
		got, err := ParseColor(tc.in)
		if tc.ok != (err == nil) {
			t.Fatalf("ParseColor(%q) err=%v want ok=%v", tc.in, err, tc.ok)
		}
		if tc.ok && got != tc.want {
			t.Fatalf("ParseColor(%q)=%v want %v", tc.in, got, tc.want)
		}
	}
}

func TestGradient_Endpoints(t *testing.T) {
	cols := []color.NRGBA{{0, 0, 0, 255}, {255, 0, 0, 255}}
	if got := Gradient(cols, 0); got != cols[0] {
		t.Fatalf("Gradient(0)=%v", got)
	}
	if got := Gradient(cols, 1); got != cols[1] {
		t.Fatalf("Gradient(1)=%v", got)
	}
	mid := Gradient(cols, 0.5)
	if mid.R < 126 || mid.R > 129 {
		t.Fatalf("Gradient(0.5)=%v want R~127", mid)
	}
}
