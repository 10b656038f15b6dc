package main

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/lox/tripweather/internal/alerting"
	"github.com/lox/tripweather/internal/cache"
	"github.com/lox/tripweather/internal/httputil"
	"github.com/lox/tripweather/internal/notify"
	"github.com/lox/tripweather/internal/provider"
	"github.com/lox/tripweather/internal/store"
	"github.com/lox/tripweather/internal/weather"
)

const (
	probeFile    = "model_availability.json"
	throttleFile = "alert_throttle.json"
)

// app holds the components shared by every command.
type app struct {
	db        *sql.DB
	store     *store.Store
	openMeteo *provider.OpenMeteo
	weather   *weather.Service
	logger    *slog.Logger
}

func newApp(cli *CLI, logger *slog.Logger) (*app, error) {
	if err := os.MkdirAll(cli.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	if dir := filepath.Dir(cli.DB); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database dir: %w", err)
		}
	}

	db, err := store.Open(cli.DB)
	if err != nil {
		return nil, err
	}
	st := store.New(db, logger)
	if err := st.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	client := httputil.NewClient(cli.Timeout)
	policy := httputil.DefaultRetryPolicy()

	openMeteo := provider.NewOpenMeteo(
		httputil.NewFetcher("open-meteo", client, policy, logger),
		logger,
		provider.WithProbeStore(provider.NewProbeStore(filepath.Join(cli.DataDir, probeFile), logger)),
		provider.WithOpenMeteoRecorder(st),
	)

	providers := []provider.Provider{openMeteo}
	if !cli.NoGeo {
		geo := provider.NewGeoSphere(
			httputil.NewFetcher("geosphere", client, policy, logger),
			logger,
			provider.WithGeoSphereRecorder(st),
		)
		providers = []provider.Provider{geo, openMeteo}
	}

	svc := weather.NewService(
		provider.NewChain(logger, providers...),
		cache.New(cli.CacheSize, cli.CacheTTL),
		logger,
	)

	return &app{
		db:        db,
		store:     st,
		openMeteo: openMeteo,
		weather:   svc,
		logger:    logger,
	}, nil
}

func (a *app) Close() {
	a.db.Close()
}

func (a *app) throttle(cli *CLI, flags AlertFlags) *alerting.Throttle {
	return alerting.NewThrottle(filepath.Join(cli.DataDir, throttleFile), flags.ThrottleWindow, a.logger)
}

// dispatcher always logs alerts and also publishes them over MQTT when a
// broker is configured.
func (a *app) dispatcher(flags MQTTFlags) (notify.Fanout, func(), error) {
	fanout := notify.Fanout{notify.NewLogDispatcher(a.logger)}
	if flags.Broker == "" {
		return fanout, func() {}, nil
	}

	cfg := notify.DefaultMQTTConfig()
	cfg.Broker = flags.Broker
	cfg.ClientID = flags.ClientID
	cfg.Username = flags.Username
	cfg.Password = flags.Password
	cfg.TopicPrefix = flags.TopicPrefix
	cfg.QoS = byte(flags.QoS)
	cfg.Retain = flags.Retain

	mq, err := notify.DialMQTT(cfg, a.logger)
	if err != nil {
		return nil, nil, err
	}
	return append(fanout, mq), mq.Close, nil
}
