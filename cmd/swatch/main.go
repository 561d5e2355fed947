// Command swatch renders a symbol definition to a PNG preview, useful for
// eyeballing symbology before it goes into a layer catalog.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"image/png"
	"io"
	"os"
	"strings"

	"github.com/DavideDeMarchi/geolayer/internal/symbols"
)

func main() {
	symbolPath := flag.String("symbol", "-", "symbol JSON file, - for stdin")
	outPath := flag.String("out", "swatch.png", "output PNG path")
	size := flag.Int("size", 2, "swatch size: 1 (30px), 2 (80px) or 3 (256px)")
	feature := flag.String("feature", "Polygon", "preview feature: Point, Polyline or Polygon")
	scale := flag.Float64("scale", 1, "scale factor applied to sizes and widths")
	subs := flag.String("set", "", "placeholder substitutions, e.g. FILL-COLOR=#ff0000,STROKE-WIDTH=2")
	flag.Parse()

	if err := render(*symbolPath, *outPath, *size, *feature, *scale, *subs); err != nil {
		fmt.Fprintln(os.Stderr, "swatch:", err)
		os.Exit(1)
	}
}

func render(symbolPath, outPath string, size int, feature string, scale float64, subs string) error {
	data, err := readSymbol(symbolPath)
	if err != nil {
		return err
	}
	var sym symbols.Symbol
	if err := json.Unmarshal(data, &sym); err != nil {
		return fmt.Errorf("parse symbol: %w", err)
	}
	if err := symbols.Validate(sym); err != nil {
		return err
	}
	if m := parseSubs(subs); len(m) > 0 {
		sym = symbols.Change(sym, m)
	}
	if scale != 1 {
		sym = symbols.Scale(sym, scale)
	}

	img, err := symbols.Swatch(sym, symbols.SwatchOptions{
		Size:    size,
		Feature: symbols.FeatureKind(feature),
	})
	if err != nil {
		return err
	}

	f, err := os.Create(outPath)
	if err != nil {
		return err
	}
	defer f.Close()
	return png.Encode(f, img)
}

func readSymbol(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}

func parseSubs(s string) map[string]any {
	out := map[string]any{}
	for _, pair := range strings.Split(s, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		if k, v, ok := strings.Cut(pair, "="); ok {
			out[strings.TrimSpace(k)] = strings.TrimSpace(v)
		}
	}
	return out
}
