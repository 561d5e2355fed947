// Package app assembles servable layers from the configuration catalog.
package app

import (
	"context"
	"fmt"

	"github.com/DavideDeMarchi/geolayer/internal/config"
	"github.com/DavideDeMarchi/geolayer/internal/raster"
	"github.com/DavideDeMarchi/geolayer/internal/symbols"
	"github.com/DavideDeMarchi/geolayer/pkg/geolayer"
)

// BuildLayers turns the catalog into frozen layers ready to serve.
func BuildLayers(ctx context.Context, lf config.LayersFile, loader raster.Loader) ([]geolayer.Layer, error) {
	out := make([]geolayer.Layer, 0, len(lf.Layers))
	for _, cfg := range lf.Layers {
		var (
			l   geolayer.Layer
			err error
		)
		switch cfg.Type {
		case "raster":
			l, err = buildRaster(cfg, loader)
		case "vector":
			l, err = buildVector(cfg)
		default:
			err = fmt.Errorf("unknown layer type %q", cfg.Type)
		}
		if err != nil {
			return nil, fmt.Errorf("layer %q: %w", cfg.Name, err)
		}
		out = append(out, l)
	}
	return out, nil
}

func buildRaster(cfg config.LayerCfg, loader raster.Loader) (geolayer.Layer, error) {
	band := cfg.Band
	if band == 0 {
		band = 1
	}
	l, err := geolayer.NewSingle(cfg.Name, loader, cfg.Ref, band)
	if err != nil {
		return nil, err
	}
	if cfg.Opacity > 0 {
		if err := l.Symbolizer(0, 255, cfg.Opacity); err != nil {
			return nil, err
		}
	}
	if cz := cfg.Colorizer; cz != nil {
		if err := l.ColorDefaults(cz.DefaultMode, cz.DefaultColor); err != nil {
			return nil, err
		}
		for _, s := range cz.Stops {
			if err := l.Color(s.Value, s.Color, s.Mode); err != nil {
				return nil, err
			}
		}
	}
	l.Freeze()
	return l, nil
}

func buildVector(cfg config.LayerCfg) (geolayer.Layer, error) {
	var (
		l   *geolayer.VectorLayer
		err error
	)
	if len(cfg.WKT) > 0 {
		l, err = geolayer.NewWKT(cfg.Name, cfg.WKT, cfg.Attrs)
	} else {
		l, err = geolayer.NewFile(cfg.Name, cfg.Ref)
	}
	if err != nil {
		return nil, err
	}
	for _, rc := range cfg.Symbology {
		if err := l.SymbologyAdd(rc.Rule, symbolFromCfg(rc.Symbol)); err != nil {
			return nil, err
		}
	}
	l.Freeze()
	return l, nil
}

func symbolFromCfg(styles [][]config.PropertyCfg) symbols.Symbol {
	sym := make(symbols.Symbol, 0, len(styles))
	for _, style := range styles {
		st := make(symbols.Style, 0, len(style))
		for _, p := range style {
			st = append(st, symbols.Property{Symbolizer: p.Symbolizer, Name: p.Name, Value: normalizeValue(p.Value)})
		}
		sym = append(sym, st)
	}
	return sym
}

// YAML decodes numbers as int; symbol properties expect float64 or string.
func normalizeValue(v any) any {
	switch n := v.(type) {
	case int:
		return float64(n)
	case int64:
		return float64(n)
	default:
		return v
	}
}
