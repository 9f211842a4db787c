package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"periph.io/x/host/v3"

	"github.com/veftodii/air-quality-monitor/internal/adc"
	"github.com/veftodii/air-quality-monitor/internal/api"
	"github.com/veftodii/air-quality-monitor/internal/config"
	"github.com/veftodii/air-quality-monitor/internal/console"
	"github.com/veftodii/air-quality-monitor/internal/events"
	"github.com/veftodii/air-quality-monitor/internal/metrics"
	"github.com/veftodii/air-quality-monitor/internal/monitor"
	"github.com/veftodii/air-quality-monitor/internal/mqtt"
	"github.com/veftodii/air-quality-monitor/internal/storage"
	"github.com/veftodii/air-quality-monitor/internal/wifi"
)

// Version is set at build time via -ldflags "-X main.Version=vX.Y.Z"
var Version = "dev"

// Channel names used on the console and as metric labels.
const (
	primaryName   = "MQ7"
	secondaryName = "MQ135"
)

func init() {
	log.SetFormatter(&log.TextFormatter{
		FullTimestamp: true,
	})
}

func main() {
	configPath := flag.String("config", ".env", "path to the .env configuration file")
	flag.Parse()

	// Load configuration from .env file
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	log.SetLevel(cfg.LogLevel())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log.StandardLogger()); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("%v", err)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *log.Logger) error {
	app := logger.WithField("component", "app")

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	app.Info("Startup ...")
	app.Info(heapSummary(&mem))
	app.Infof("Go version: %s, build %s", runtime.Version(), Version)
	app.Infof("Configuration loaded: %s", cfg)

	// Settings store
	store, err := storage.Open(cfg.StoragePath(), logger)
	if err != nil {
		return errors.Wrap(err, "failed to open settings")
	}
	defer store.Close()

	boots, err := recordBoot(store)
	if err != nil {
		return err
	}
	app.Infof("Boot count: %d", boots)
	if prev, ok := lastStation(store); ok {
		app.Infof("Previous join: SSID %q (%s), address %s", prev.SSID, prev.AuthMode, prev.Addr)
	}

	eventStore := events.NewStore(events.DefaultCapacity)
	m := metrics.New()

	// Converter
	if _, err := host.Init(); err != nil {
		return errors.Wrap(err, "failed to initialize peripheral host")
	}
	sampler, err := newSampler(cfg.ADC())
	if err != nil {
		return err
	}
	defer sampler.Halt()

	// Station
	wcfg := cfg.WiFi()
	assoc := wifi.NewAssociation(newDriver(wcfg), wcfg.MaxRetry, logger)
	assoc.OnTransition(eventStore.RecordTransition)
	assoc.OnTransition(m.ObserveTransition)

	joinCtx, cancelJoin := ctx, context.CancelFunc(func() {})
	if wcfg.JoinTimeout > 0 {
		joinCtx, cancelJoin = context.WithTimeout(ctx, wcfg.JoinTimeout)
	}
	addr, err := assoc.Associate(joinCtx, wcfg.Station())
	cancelJoin()
	if fatal := fatalJoinError(err); fatal != nil {
		return fatal
	}
	switch {
	case ctx.Err() != nil:
		return ctx.Err()
	case err != nil:
		// The session and the loop still run; paho keeps retrying the broker
		app.WithError(err).Error("Station association failed")
	default:
		if err := recordStation(store, wcfg.Station(), addr); err != nil {
			app.WithError(err).Warn("Failed to persist station info")
		}
	}

	// Broker session
	mcfg := cfg.MQTT()
	clientID := mcfg.ClientID
	if clientID == "" {
		clientID = defaultClientID()
	}
	session, err := mqtt.StartSession(mqtt.Config{URI: mcfg.URL, ClientID: clientID}, logger)
	if err != nil {
		return errors.Wrap(err, "failed to start broker session")
	}
	defer session.Close()
	session.OnEvent(eventStore.RecordSession)
	session.OnEvent(m.ObserveSession)
	if mcfg.Discovery {
		enableDiscovery(session, store, clientID, mcfg.Topic, logger)
	}

	// Console and loop
	acfg := cfg.ADC()
	out, err := console.Open(cfg.Console().Serial, cfg.Console().Baud, logger)
	if err != nil {
		return err
	}
	defer out.Close()

	loop, err := monitor.NewLoop(sampler, session, out, monitor.Options{
		Primary:   monitor.Input{Channel: acfg.MQ7Channel, Name: primaryName},
		Secondary: monitor.Input{Channel: acfg.MQ135Channel, Name: secondaryName},
		Topic:     mcfg.Topic,
		QoS:       mcfg.QoS,
		Retain:    mcfg.Retain,
		Interval:  cfg.SampleInterval(),
	}, logger)
	if err != nil {
		return err
	}
	loop.OnCycle(m.ObserveCycle)
	loop.OnCycle(func(c monitor.Cycle) {
		if err := c.ReadErr(); err != nil {
			eventStore.RecordSampleError(err)
		}
	})

	// Optional HTTP surface
	if httpAddr := cfg.HTTPAddr(); httpAddr != "" {
		server := api.NewServer(api.Deps{
			Station:   assoc,
			Session:   session,
			Loop:      loop,
			Events:    eventStore,
			Metrics:   m.Handler(),
			BootCount: boots,
			Started:   time.Now(),
		}, logger)
		loop.OnCycle(server.Readings().Broadcast)
		go func() {
			if err := server.ListenAndServe(ctx, httpAddr); err != nil {
				app.WithError(err).Error("API server stopped")
			}
		}()
	}

	return loop.Run(ctx)
}

func newSampler(acfg config.ADCConfig) (*adc.Sampler, error) {
	curve, err := adc.Characterize(acfg.VRef, acfg.Atten, acfg.Width)
	if err != nil {
		return nil, errors.Wrap(err, "failed to characterize ADC")
	}
	log.WithField("component", "app").Infof("ADC characterized: %s", curve)

	sampler, err := adc.NewSampler(curve, acfg.Width, acfg.Samples)
	if err != nil {
		return nil, err
	}

	inputs := []struct {
		ch       adc.Channel
		name     string
		baseline int
	}{
		{acfg.MQ7Channel, primaryName, 1200},
		{acfg.MQ135Channel, secondaryName, 1800},
	}
	for _, in := range inputs {
		if acfg.Source == config.SourceSim {
			sampler.Attach(in.ch, adc.NewSimPin(in.ch, in.name, acfg.Width, in.baseline, 40))
			continue
		}
		pin, err := adc.NewIIOPin(acfg.IIODevice, in.ch, in.name, curve)
		if err != nil {
			return nil, err
		}
		sampler.Attach(in.ch, pin)
	}
	return sampler, nil
}

func newDriver(wcfg config.WiFiConfig) wifi.Driver {
	if wcfg.Driver == config.DriverSim {
		return wifi.NewSimDriver()
	}
	return wifi.NewNetifDriver(wcfg.Interface, 0)
}

func defaultClientID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return ""
	}
	return "aqm-" + host
}
