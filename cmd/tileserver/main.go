package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/DavideDeMarchi/geolayer/internal/app"
	"github.com/DavideDeMarchi/geolayer/internal/config"
	"github.com/DavideDeMarchi/geolayer/internal/invalidation/kafka"
	"github.com/DavideDeMarchi/geolayer/internal/logger"
	"github.com/DavideDeMarchi/geolayer/internal/metrics"
	"github.com/DavideDeMarchi/geolayer/internal/raster"
	"github.com/DavideDeMarchi/geolayer/internal/server"
	"github.com/DavideDeMarchi/geolayer/internal/tilecache"
)

var Version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	layersFlag := flag.String("layers", "", "layer catalog path (overrides LAYERS_PATH)")
	flag.Parse()

	cfg := config.FromEnv()
	if *layersFlag != "" {
		cfg.LayersPath = strings.TrimSpace(*layersFlag)
	}

	zl := logger.Build(logger.Config{
		Level:     cfg.LogLevel,
		Console:   cfg.LogConsole,
		Component: "tileserver",
	}, os.Stdout)

	zl.Info().
		Str("addr", cfg.Addr).
		Str("version", Version).
		Str("layers", cfg.LayersPath).
		Msg("starting tileserver")

	var met *metrics.Provider
	if cfg.MetricsEnabled {
		met = metrics.Init(metrics.Config{Build: metrics.BuildInfo{Version: Version}})
	}

	var rdb *redis.Client
	if cfg.RedisEnabled {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	}

	loader := &raster.Resolver{File: raster.FileLoader{}}
	if rdb != nil {
		loader.Redis = &raster.RedisLoader{RDB: rdb}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	lf, err := config.LoadLayers(cfg.LayersPath)
	if err != nil {
		zl.Error().Err(err).Msg("layer catalog load failed")
		return 1
	}
	layers, err := app.BuildLayers(ctx, lf, loader)
	if err != nil {
		zl.Error().Err(err).Msg("layer build failed")
		return 1
	}
	zl.Info().Int("layers", len(layers)).Msg("layer catalog loaded")

	var rec tilecache.Recorder
	if met != nil {
		rec = met
	}
	local, err := tilecache.NewLRU(cfg.TileCacheSize, rec)
	if err != nil {
		zl.Error().Err(err).Msg("tile cache init failed")
		return 1
	}
	var store tilecache.Store = local
	if rdb != nil {
		store = &tilecache.Tiered{
			Local:  local,
			Shared: tilecache.NewRedis(rdb, cfg.TileCacheTTL, nil),
		}
	}

	revs := &tilecache.Revisions{}

	if cfg.Invalidation.Enabled {
		kcfg := kafka.ConfigFrom(true, cfg.Invalidation.Brokers, cfg.Invalidation.Topic, cfg.Invalidation.GroupID)
		var count kafka.Counter
		if met != nil {
			count = met
		}
		consumer := kafka.New(kcfg, &zl, revs, count)
		go func() {
			if err := consumer.Start(ctx); err != nil {
				zl.Error().Err(err).Msg("invalidation consumer failed")
			}
		}()
	}

	srv := server.New(server.Options{
		Layers:  layers,
		Store:   store,
		Revs:    revs,
		Metrics: met,
		Logger:  &zl,
	})

	if err := server.Run(ctx, cfg, srv); err != nil {
		zl.Error().Err(err).Msg("server error")
		return 1
	}
	zl.Info().Msg("server stopped")
	return 0
}
