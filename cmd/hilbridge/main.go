package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"
	"github.com/skyhil/hilbridge/internal/api"
	"github.com/skyhil/hilbridge/internal/config"
	"github.com/skyhil/hilbridge/internal/controller"
	"github.com/skyhil/hilbridge/internal/geo"
	"github.com/skyhil/hilbridge/internal/influx"
	"github.com/skyhil/hilbridge/internal/logging"
	"github.com/skyhil/hilbridge/internal/monitor"
	intOtel "github.com/skyhil/hilbridge/internal/otel"
	"github.com/skyhil/hilbridge/internal/session"
	"github.com/skyhil/hilbridge/internal/storage"
	"github.com/skyhil/hilbridge/internal/worker"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

// BuildDate can be set at build time via ldflags
var (
	CurrentVersion string = "0.1.0"
	BuildDate      string = "unknown"

	AppName string = "hilbridge"
)

var (
	SlogManager *logging.SlogManager
	Logger      *slog.Logger

	OTelProvider *intOtel.Provider

	SessionStartTime time.Time = time.Now()
)

// bridge is everything run builds, torn down in reverse order.
type bridge struct {
	logFile    *os.File
	gelfCloser io.Closer
	backend    storage.Backend
	recorder   *worker.Manager
	influx     *influx.Manager
	monitor    *monitor.Service
	ctrl       *controller.Controller
	vehicle    *hoverVehicle

	logCtx atomic.Pointer[logging.BridgeContext]
}

// LogContext is read by the log handler on every record, so it only loads
// the snapshot refreshLogContext keeps.
func (b *bridge) LogContext() logging.BridgeContext {
	if c := b.logCtx.Load(); c != nil {
		return *c
	}
	return logging.BridgeContext{}
}

func (b *bridge) refreshLogContext() {
	c := logging.BridgeContext{Vehicle: config.GetConnectionInfo().VehicleName}
	if b.ctrl != nil {
		c.Mode = b.ctrl.Mode().String()
		if st, ok := b.ctrl.EndpointState(session.AutopilotName); ok {
			c.Autopilot = st.String()
		}
	}
	b.logCtx.Store(&c)
}

// setupLogging switches from the console logger to the per-run log file,
// adding OTel and Graylog when configured.
func (b *bridge) setupLogging() error {
	logsDir := config.GetString("logsDir")
	if err := os.MkdirAll(logsDir, 0755); err != nil {
		return fmt.Errorf("create logs dir: %w", err)
	}

	logFilePath := logging.LogFilePath(logsDir, AppName, SessionStartTime)
	if _, err := os.Stat(logFilePath); err == nil {
		_ = os.Rename(logFilePath, logFilePath+".old")
	}
	logFile, err := os.OpenFile(logFilePath, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	b.logFile = logFile
	Logger.Info("Begin logging in logs directory", "path", logFilePath)

	otelCfg := config.GetOTelConfig()
	if otelCfg.Enabled {
		OTelProvider, err = intOtel.New(intOtel.Config{
			Enabled:      otelCfg.Enabled,
			ServiceName:  otelCfg.ServiceName,
			BatchTimeout: otelCfg.BatchTimeout,
			LogWriter:    logFile,
			Endpoint:     otelCfg.Endpoint,
			Insecure:     otelCfg.Insecure,
		})
		if err != nil {
			Logger.Error("Failed to initialize OTel provider", "error", err)
			OTelProvider = nil
		} else {
			Logger.Info("OTel provider initialized", "endpoint", otelCfg.Endpoint)
		}
	}

	var extra []slog.Handler
	if gl := config.GetGraylogConfig(); gl.Enabled {
		h, closer, err := logging.NewGelfHandler(gl.Address, config.GetString("logLevel"))
		if err != nil {
			Logger.Error("Failed to set up Graylog handler", "error", err)
		} else {
			extra = append(extra, h)
			b.gelfCloser = closer
		}
	}

	var otelLogProvider *sdklog.LoggerProvider
	if OTelProvider != nil {
		otelLogProvider = OTelProvider.LoggerProvider()
	}
	SlogManager.Setup(logFile, config.GetString("logLevel"), otelLogProvider, extra...)

	b.refreshLogContext()
	Logger = slog.New(logging.NewContextHandler(SlogManager.Logger().Handler(), b))
	Logger.Info("Logging to file", "path", logFilePath, "version", CurrentVersion, "buildDate", BuildDate)
	return nil
}

// influxLogger mirrors the influx client's messages to the console and the
// run log.
func (b *bridge) influxLogger() zerolog.Logger {
	writers := []io.Writer{zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}}
	if b.logFile != nil {
		writers = append(writers, b.logFile)
	}
	level, err := zerolog.ParseLevel(config.GetString("logLevel"))
	if err != nil {
		level = zerolog.InfoLevel
	}
	return zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(level).
		With().Timestamp().Str("component", "influx").
		Logger()
}

func (b *bridge) setupStorage() error {
	storageCfg := config.GetStorageConfig()
	backend, err := storage.NewBackend(storageCfg, Logger)
	if err != nil {
		return err
	}
	if err := backend.Init(); err != nil {
		return fmt.Errorf("init %s storage: %w", storageCfg.Type, err)
	}
	b.backend = backend

	recorder, err := worker.NewManager(backend, Logger, storageCfg.BufferSize)
	if err != nil {
		return err
	}
	b.recorder = recorder
	Logger.Info("Storage initialized", "type", storageCfg.Type)

	if up := config.GetUploadConfig(); up.Enabled {
		client := api.New(up.URL, up.Secret)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := client.Healthcheck(ctx)
		cancel()
		if err != nil {
			Logger.Warn("Flight log server not reachable, uploads may fail", "url", up.URL, "error", err)
		}
		recorder.SetUploader(client, up.Tag)
		Logger.Info("Flight log uploads enabled", "url", up.URL)
	}
	return nil
}

func (b *bridge) setupController(home string) error {
	hil := config.GetHILConfig()
	eps := config.GetEndpointsConfig()
	sim := config.GetSimConfig()

	if home != "" {
		p, err := geo.GeoPointFromString(home)
		if err != nil {
			return fmt.Errorf("home %q: %w", home, err)
		}
		sim.Home = p
	}

	aux := func(ep config.EndpointConfig) controller.AuxEndpoint {
		return controller.AuxEndpoint{Address: ep.Address, Enabled: ep.Enabled}
	}
	ctrl, err := controller.New(controller.Options{
		Logger:          Logger,
		Tap:             b.recorder,
		SystemID:        byte(hil.SystemID),
		ComponentID:     byte(hil.ComponentID),
		GpsPeriod:       hil.GpsPeriod,
		LinkTimeout:     hil.LinkTimeout,
		StatusQueueSize: hil.StatusQueueSize,
		Video:           aux(eps.Video),
		LogViewer:       aux(eps.LogViewer),
		QGC:             aux(eps.QGC),
		Mocap:           aux(eps.Mocap),
		MocapDirection:  eps.MocapDirection,
		ExternalSim:     aux(eps.ExternalSim),
		Version:         CurrentVersion,
	})
	if err != nil {
		return err
	}

	b.vehicle = newHoverVehicle(sim.Home, sim.RotorCount)
	if err := ctrl.Initialize(config.GetConnectionInfo(), b.vehicle); err != nil {
		ctrl.Close()
		return err
	}
	b.ctrl = ctrl
	b.refreshLogContext()
	return nil
}

func (b *bridge) setupMonitor(ctx context.Context) error {
	logsDir := config.GetString("logsDir")

	deps := monitor.Dependencies{
		Controller:  b.ctrl,
		Recorder:    b.recorder,
		VehicleName: config.GetConnectionInfo().VehicleName,
		OutputDir:   logsDir,
		Logger:      Logger,
	}
	if OTelProvider != nil {
		deps.Counters = OTelProvider.Counters
	}

	im := influx.NewManager(
		config.GetInfluxConfig(),
		b.influxLogger(),
		filepath.Join(logsDir, fmt.Sprintf("influx_backup.%s.lp.gz", SessionStartTime.Format("20060102_150405"))),
	)
	switch err := im.Connect(ctx); {
	case errors.Is(err, influx.ErrDisabled):
		Logger.Debug("InfluxDB disabled")
	case err != nil:
		Logger.Error("Failed to set up InfluxDB", "error", err)
		_ = im.Close()
	default:
		b.influx = im
		deps.Influx = im
	}

	b.monitor = monitor.NewService(deps)
	return b.monitor.Start()
}

// loop drives the controller at the configured tick rate until ctx ends.
func (b *bridge) loop(ctx context.Context, tickRate time.Duration) {
	if tickRate <= 0 {
		tickRate = 3 * time.Millisecond
	}
	ticker := time.NewTicker(tickRate)
	defer ticker.Stop()

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			dt := now.Sub(last)
			last = now

			b.vehicle.Step(dt, b.ctrl.RotorControls())
			b.ctrl.Update(dt)
			b.refreshLogContext()

			if b.ctrl.HasVideoRequest() {
				frame, w, h := b.vehicle.Frame()
				b.ctrl.SendImage(frame, w, h)
			}
		}
	}
}

func (b *bridge) close() error {
	var result *multierror.Error

	if b.ctrl != nil {
		b.ctrl.Close()
	}
	if b.monitor != nil {
		b.monitor.Stop()
	}
	if b.recorder != nil {
		if err := b.recorder.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("recorder: %w", err))
		}
		st := b.recorder.Stats()
		Logger.Info("Recorder closed", "recorded", st.Recorded, "dropped", st.Dropped, "failed", st.Failed)
	} else if b.backend != nil {
		if err := b.backend.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("storage: %w", err))
		}
	}
	if b.influx != nil {
		if err := b.influx.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("influx: %w", err))
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := SlogManager.Flush(ctx); err != nil {
		result = multierror.Append(result, fmt.Errorf("flush logs: %w", err))
	}
	if OTelProvider != nil {
		if err := OTelProvider.Shutdown(ctx); err != nil {
			result = multierror.Append(result, fmt.Errorf("otel: %w", err))
		}
	}
	if b.gelfCloser != nil {
		_ = b.gelfCloser.Close()
	}
	if b.logFile != nil {
		_ = b.logFile.Close()
	}
	return result.ErrorOrNil()
}

// run is the "run [configDir] [lat,lon,alt]" command.
func run(args []string) (err error) {
	configDir := "."
	if len(args) > 0 {
		configDir = args[0]
	}
	home := ""
	if len(args) > 1 {
		home = args[1]
	}

	SlogManager = logging.NewSlogManager()
	SlogManager.Setup(nil, "info", nil)
	Logger = SlogManager.Logger()

	if err := config.Load(configDir); err != nil {
		Logger.Warn("Failed to load config, using defaults!", "error", err)
	} else {
		Logger.Info("Loaded config", "dir", configDir)
	}

	b := &bridge{}
	defer func() {
		if cerr := b.close(); cerr != nil {
			Logger.Error("Shutdown finished with errors", "error", cerr)
			if err == nil {
				err = cerr
			}
		}
	}()

	if err := b.setupLogging(); err != nil {
		Logger.Error("Failed to set up log file, staying on console", "error", err)
	}

	Logger.Info("Initializing storage...")
	if err := b.setupStorage(); err != nil {
		return err
	}

	if err := b.setupController(home); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := b.setupMonitor(ctx); err != nil {
		return err
	}

	b.ctrl.SetHILMode()
	b.ctrl.Start()
	b.refreshLogContext()
	Logger.Info("Bridge running", "link", b.ctrl.GetHILConnectionInfo().String(), "rotors", b.ctrl.GetRotorControlsCount())

	b.loop(ctx, config.GetSimConfig().TickRate)
	Logger.Info("Shutting down...")
	return nil
}
