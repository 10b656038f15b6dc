package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/lox/tripweather/internal/alerting"
	"github.com/lox/tripweather/internal/api"
	"github.com/lox/tripweather/internal/ingest"
	"github.com/lox/tripweather/internal/models"
)

type MQTTFlags struct {
	Broker      string `name:"broker" env:"TRIPWEATHER_MQTT_BROKER" help:"MQTT broker URL. Alerts are only logged when unset."`
	ClientID    string `name:"client-id" default:"tripweather" env:"TRIPWEATHER_MQTT_CLIENT_ID" help:"MQTT client id."`
	Username    string `name:"username" env:"TRIPWEATHER_MQTT_USERNAME" help:"MQTT username."`
	Password    string `name:"password" env:"TRIPWEATHER_MQTT_PASSWORD" help:"MQTT password."`
	TopicPrefix string `name:"topic-prefix" default:"tripweather" env:"TRIPWEATHER_MQTT_TOPIC_PREFIX" help:"Topic prefix for alert messages."`
	QoS         int    `name:"qos" default:"1" enum:"0,1,2" env:"TRIPWEATHER_MQTT_QOS" help:"MQTT QoS (${enum})."`
	Retain      bool   `name:"retain" env:"TRIPWEATHER_MQTT_RETAIN" help:"Publish alerts as retained messages."`
}

// AlertFlags configure the change check shared by serve and check.
type AlertFlags struct {
	Trips          string        `name:"trips" default:"trips.json" env:"TRIPWEATHER_TRIPS" help:"Path to the trips JSON file."`
	Workers        int           `name:"workers" default:"4" env:"TRIPWEATHER_WORKERS" help:"Trips checked concurrently."`
	ThrottleWindow time.Duration `name:"throttle-window" default:"6h" env:"TRIPWEATHER_THROTTLE_WINDOW" help:"Minimum time between alerts for one trip."`

	MQTT MQTTFlags `embed:"" prefix:"mqtt-"`
}

func (f AlertFlags) scheduler(a *app, throttle *alerting.Throttle, interval time.Duration) (*ingest.Scheduler, func(), error) {
	dispatcher, closeFn, err := a.dispatcher(f.MQTT)
	if err != nil {
		return nil, nil, err
	}
	sched := ingest.NewScheduler(
		a.weather,
		ingest.NewFileTripSource(f.Trips, a.logger),
		a.store,
		throttle,
		dispatcher,
		ingest.Config{Interval: interval, Workers: f.Workers},
		a.logger,
	)
	return sched, closeFn, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

type ServeCmd struct {
	Port             string        `name:"port" default:"8080" env:"TRIPWEATHER_PORT" help:"HTTP server port."`
	Interval         time.Duration `name:"interval" default:"30m" env:"TRIPWEATHER_INTERVAL" help:"Time between change checks."`
	NoPoll           bool          `name:"no-poll" env:"TRIPWEATHER_NO_POLL" help:"Serve the API without running change checks."`
	PayloadRetention int           `name:"payload-retention-days" default:"30" env:"TRIPWEATHER_PAYLOAD_RETENTION_DAYS" help:"Days of raw upstream payloads to keep."`

	AlertFlags `embed:""`
}

func (c *ServeCmd) Run(cli *CLI, logger *slog.Logger) error {
	a, err := newApp(cli, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	throttle := a.throttle(cli, c.AlertFlags)
	sched, closeDispatch, err := c.scheduler(a, throttle, c.Interval)
	if err != nil {
		return err
	}
	defer closeDispatch()

	ctx, cancel := signalContext()
	defer cancel()

	if !c.NoPoll {
		go sched.Run(ctx)
	} else {
		logger.Info("tripweather: polling disabled (--no-poll)")
	}
	go a.cleanupPayloads(ctx, c.PayloadRetention)

	server := api.NewServer(a.weather, throttle, a.store, c.Port, logger)
	return server.Run(ctx)
}

// cleanupPayloads prunes the raw payload archive once a day.
func (a *app) cleanupPayloads(ctx context.Context, retentionDays int) {
	if retentionDays <= 0 {
		return
	}
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()
	for {
		n, err := a.store.CleanupOldRawPayloads(retentionDays)
		if err != nil {
			a.logger.Warn("tripweather: raw payload cleanup failed", "error", err)
		} else if n > 0 {
			a.logger.Info("tripweather: pruned raw payloads", "deleted", n)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

type CheckCmd struct {
	AlertFlags `embed:""`
}

func (c *CheckCmd) Run(cli *CLI, logger *slog.Logger) error {
	a, err := newApp(cli, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	sched, closeDispatch, err := c.scheduler(a, a.throttle(cli, c.AlertFlags), 0)
	if err != nil {
		return err
	}
	defer closeDispatch()

	ctx, cancel := signalContext()
	defer cancel()

	report := sched.RunOnce(ctx)

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TRIP\tOUTCOME\tCHANGES\tSIGNIFICANT\tERROR")
	for _, t := range report.Trips {
		errMsg := ""
		if t.Err != nil {
			errMsg = t.Err.Error()
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\n", t.TripID, t.Outcome, len(t.Changes), len(t.Significant), errMsg)
	}
	tw.Flush()

	if failed := report.Count(ingest.OutcomeFailed) + report.Count(ingest.OutcomeDispatchFailed); failed > 0 {
		return fmt.Errorf("%d of %d trips failed", failed, len(report.Trips))
	}
	return nil
}

type ForecastCmd struct {
	Lat       float64 `name:"lat" required:"" help:"Latitude in degrees."`
	Lon       float64 `name:"lon" required:"" help:"Longitude in degrees."`
	Elevation float64 `name:"elevation" help:"Elevation in metres."`
	Start     string  `name:"start" help:"Window start (RFC 3339). Defaults to the current hour."`
	Hours     int     `name:"hours" default:"24" help:"Window length in hours."`
	Segment   string  `name:"segment" default:"cli" help:"Segment id used for caching."`
}

// parseStart reads --start, which must be an RFC 3339 UTC timestamp.
func parseStart(raw string, now time.Time) (time.Time, error) {
	if raw == "" {
		return now.UTC().Truncate(time.Hour), nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, &models.ValidationError{Field: "start", Reason: "expected RFC 3339 timestamp"}
	}
	if _, off := t.Zone(); off != 0 {
		return time.Time{}, &models.ValidationError{Field: "start", Reason: "timestamp must be UTC"}
	}
	return t.UTC(), nil
}

func (c *ForecastCmd) Run(cli *CLI, logger *slog.Logger) error {
	start, err := parseStart(c.Start, time.Now())
	if err != nil {
		return err
	}

	a, err := newApp(cli, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := signalContext()
	defer cancel()

	seg := models.Segment{
		ID:       c.Segment,
		Waypoint: models.Waypoint{Name: c.Segment, Latitude: c.Lat, Longitude: c.Lon, Elevation: c.Elevation},
		Start:    start,
		End:      start.Add(time.Duration(c.Hours) * time.Hour),
	}
	res, err := a.weather.SegmentWeather(ctx, seg)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}

type ProbeCmd struct{}

func (c *ProbeCmd) Run(cli *CLI, logger *slog.Logger) error {
	a, err := newApp(cli, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := signalContext()
	defer cancel()

	probe, err := a.openMeteo.Probe(ctx)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "MODEL\tAVAILABLE\tUNAVAILABLE")
	for _, region := range a.openMeteo.Regions() {
		avail, ok := probe.Models[region.Model]
		if !ok {
			fmt.Fprintf(tw, "%s\t-\tprobe failed\n", region.Model)
			continue
		}
		fmt.Fprintf(tw, "%s\t%d\t%v\n", region.Model, len(avail.Available), avail.Unavailable)
	}
	return tw.Flush()
}
