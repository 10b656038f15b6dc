package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"
)

type CLI struct {
	DB        string        `name:"db" default:"data/tripweather.db" env:"TRIPWEATHER_DB" help:"Path to SQLite database."`
	DataDir   string        `name:"data-dir" default:"data" env:"TRIPWEATHER_DATA_DIR" help:"Directory for the probe and throttle state files."`
	LogLevel  string        `name:"log-level" default:"info" enum:"debug,info,warn,error" env:"TRIPWEATHER_LOG_LEVEL" help:"Log level (${enum})."`
	LogFormat string        `name:"log-format" default:"text" enum:"text,json" env:"TRIPWEATHER_LOG_FORMAT" help:"Log format (${enum})."`
	CacheSize int           `name:"cache-size" default:"500" env:"TRIPWEATHER_CACHE_SIZE" help:"Maximum cached segment forecasts."`
	CacheTTL  time.Duration `name:"cache-ttl" default:"1h" env:"TRIPWEATHER_CACHE_TTL" help:"Cached forecast lifetime."`
	Timeout   time.Duration `name:"http-timeout" default:"30s" env:"TRIPWEATHER_HTTP_TIMEOUT" help:"Per-call upstream timeout."`
	NoGeo     bool          `name:"no-geosphere" env:"TRIPWEATHER_NO_GEOSPHERE" help:"Use Open-Meteo everywhere, skipping GeoSphere in the Alps."`

	Serve    ServeCmd    `cmd:"" help:"Run the HTTP API and the periodic change check."`
	Check    CheckCmd    `cmd:"" help:"Check every trip once and exit."`
	Forecast ForecastCmd `cmd:"" help:"Print the forecast for one point and window."`
	Probe    ProbeCmd    `cmd:"" help:"Probe Open-Meteo model field availability."`
}

func main() {
	// Environment variables already set take precedence over .env.
	_ = godotenv.Load()

	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("tripweather"),
		kong.Description("Weather forecasts and change alerts for multi-day trips."),
		kong.UsageOnError(),
	)

	logger, err := newLogger(cli.LogLevel, cli.LogFormat)
	kctx.FatalIfErrorf(err)
	slog.SetDefault(logger)

	if err := kctx.Run(&cli, logger); err != nil {
		logger.Error("tripweather: command failed", "command", kctx.Command(), "error", err)
		os.Exit(1)
	}
}

func newLogger(level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	opts := &slog.HandlerOptions{Level: lvl}
	switch strings.ToLower(format) {
	case "json":
		return slog.New(slog.NewJSONHandler(os.Stderr, opts)), nil
	case "text":
		return slog.New(slog.NewTextHandler(os.Stderr, opts)), nil
	}
	return nil, fmt.Errorf("unknown log format %q", format)
}
