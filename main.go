package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/smazurov/camcore/cmd"
	"github.com/smazurov/camcore/internal/api"
	"github.com/smazurov/camcore/internal/camera"
	"github.com/smazurov/camcore/internal/config"
	"github.com/smazurov/camcore/internal/events"
	"github.com/smazurov/camcore/internal/hal/sim"
	"github.com/smazurov/camcore/internal/hal/v4l2"
	"github.com/smazurov/camcore/internal/logging"
	"github.com/smazurov/camcore/internal/metrics"
	"github.com/smazurov/camcore/internal/metrics/exporters"
	"github.com/smazurov/camcore/internal/pipelines"
	"github.com/smazurov/camcore/internal/pipelines/store"
	"github.com/smazurov/camcore/internal/systemd"
	"github.com/smazurov/camcore/internal/version"
)

// Options for the CLI - flat structure with toml mapping.
type Options struct {
	Config string `help:"Path to configuration file" short:"c" default:"config.toml"`

	// Server settings
	Port            string `help:"Port to listen on" short:"p" default:":8090" toml:"server.port" env:"SERVER_PORT"`
	ShutdownTimeout string `help:"Graceful shutdown timeout" default:"10s" toml:"server.shutdown_timeout" env:"SERVER_SHUTDOWN_TIMEOUT"`

	// Camera settings
	Backend      string `help:"Camera backend (sim, v4l2)" default:"sim" toml:"camera.backend" env:"CAMERA_BACKEND"`
	ProfilesFile string `help:"Simulated camera profiles file (hot-reloaded)" default:"cameras.toml" toml:"camera.profiles_file" env:"CAMERA_PROFILES_FILE"`

	// V4L2 settings
	V4L2Width       int    `help:"V4L2 capture width" default:"1280" toml:"v4l2.width" env:"V4L2_WIDTH"`
	V4L2Height      int    `help:"V4L2 capture height" default:"720" toml:"v4l2.height" env:"V4L2_HEIGHT"`
	V4L2FPS         int    `help:"V4L2 capture frame rate" default:"30" toml:"v4l2.fps" env:"V4L2_FPS"`
	V4L2PixelFormat string `help:"V4L2 pixel format (mjpeg, yuyv)" default:"mjpeg" toml:"v4l2.pixel_format" env:"V4L2_PIXEL_FORMAT"`

	// Pipelines settings
	PipelinesFile string `help:"Pipeline definitions file" default:"pipelines.toml" toml:"pipelines.config_file" env:"PIPELINES_CONFIG_FILE"`

	// Metrics settings
	MetricsPrometheusEnabled bool `help:"Serve Prometheus metrics on /metrics" default:"true" toml:"metrics.prometheus_enabled" env:"METRICS_PROMETHEUS_ENABLED"`
	MetricsSSEEnabled        bool `help:"Publish metric snapshots on the events stream" default:"true" toml:"metrics.sse_enabled" env:"METRICS_SSE_ENABLED"`

	// Auth settings
	AuthUsername string `help:"Basic auth username" default:"admin" toml:"auth.username" env:"AUTH_USERNAME"`
	AuthPassword string `help:"Basic auth password" default:"password" toml:"auth.password" env:"AUTH_PASSWORD"`

	// Logging settings; per-module levels live in [logging.modules]
	LoggingLevel  string `help:"Global logging level (debug, info, warn, error)" default:"info" toml:"logging.level" env:"LOGGING_LEVEL"`
	LoggingFormat string `help:"Logging format (text, json)" default:"text" toml:"logging.format" env:"LOGGING_FORMAT"`
}

func (o *Options) backend() cmd.Backend {
	return cmd.Backend{
		Name:     o.Backend,
		Profiles: o.ProfilesFile,
		Format: v4l2.Format{
			Width:       uint32(o.V4L2Width),
			Height:      uint32(o.V4L2Height),
			FPS:         uint32(o.V4L2FPS),
			PixelFormat: o.V4L2PixelFormat,
		},
	}
}

func main() {
	// parsed is set before any subcommand runs
	var parsed *Options
	var cli humacli.CLI
	cli = humacli.New(func(hooks humacli.Hooks, opts *Options) {
		parsed = opts

		// Load configuration automatically
		if loadErr := config.LoadConfig(opts, cli.Root()); loadErr != nil {
			slog.Warn("Failed to load config", "error", loadErr)
		}

		// Initialize logging system
		loggingConfig := config.LoadLoggingConfig(opts.Config)
		loggingConfig.Level = opts.LoggingLevel
		loggingConfig.Format = opts.LoggingFormat
		logging.Initialize(loggingConfig)

		logger := logging.GetLogger("main")

		// Create event bus for in-process event handling
		eventBus := events.New()
		logEmitter := eventBus.NewEmitter("logs")
		logging.SetLogCallback(api.PublishLogs(logEmitter))

		drv, simDrv, err := opts.backend().Open(logging.GetLogger("hal"))
		if err != nil {
			logger.Error("Failed to open camera backend", "backend", opts.Backend, "error", err)
			os.Exit(1)
		}

		registry := camera.NewRegistry(drv,
			camera.WithBus(eventBus),
			camera.WithLogger(logging.GetLogger("devices")),
		)

		// Metrics register before any camera event is published
		promRegistry := prometheus.NewRegistry()
		promRegistry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		collector := metrics.NewCollector(promRegistry)
		detachMetrics := collector.Attach(eventBus)

		var sseExporter *exporters.SSEExporter
		if opts.MetricsSSEEnabled {
			sseExporter = exporters.NewSSEExporter(eventBus, collector)
		}

		pipelineService := pipelines.NewService(registry, store.NewTOML(opts.PipelinesFile),
			pipelines.WithLogger(logging.GetLogger("pipelines")),
		)

		apiOpts := &api.Options{
			AuthUsername: opts.AuthUsername,
			AuthPassword: opts.AuthPassword,
			Registry:     registry,
			Pipelines:    pipelineService,
			Logs:         logEmitter,
		}
		if opts.MetricsPrometheusEnabled {
			apiOpts.PrometheusHandler = exporters.HTTPHandler(promRegistry)
		}

		server := api.NewServer(apiOpts)

		// Simulated cameras follow edits to the profiles file
		var profileWatcher *config.Watcher[[]sim.Profile]
		if simDrv != nil && opts.ProfilesFile != "" {
			profileWatcher = config.NewConfigWatcher(
				opts.ProfilesFile,
				sim.LoadProfiles,
				logging.GetLogger("devices"),
				config.WithDebounce[[]sim.Profile](500*time.Millisecond),
			)
			profileWatcher.OnReload(func(profiles []sim.Profile) {
				logger.Info("Camera profiles changed", "cameras", len(profiles))
				simDrv.SetProfiles(profiles)
			})
		}

		notifier := systemd.NewNotifier(logger)
		watchCtx, stopWatch := context.WithCancel(context.Background())

		hooks.OnStart(func() {
			// Devices are only touched when serving, subcommands open their own
			if refreshErr := registry.Refresh(watchCtx); refreshErr != nil {
				logger.Warn("Initial device enumeration failed", "error", refreshErr)
			}

			// Load persisted pipelines; those whose camera is missing stay stopped
			if loadErr := pipelineService.LoadFromStore(watchCtx); loadErr != nil {
				logger.Warn("Failed to load pipelines from config", "error", loadErr)
			}

			go func() {
				if watchErr := registry.Watch(watchCtx); watchErr != nil {
					logger.Warn("Device hotplug watch stopped", "error", watchErr)
				}
			}()

			if profileWatcher != nil {
				if startErr := profileWatcher.Start(); startErr != nil {
					logger.Warn("Failed to start profiles watcher, hot-reload disabled", "error", startErr)
				}
			}

			if sseExporter != nil {
				sseExporter.Start(watchCtx)
			}

			notifier.Ready()
			notifier.Status(fmt.Sprintf("serving %d cameras on %s", len(registry.Devices()), opts.Port))

			logger.Info("Starting HTTP server", "port", opts.Port, "backend", opts.Backend)
			if startErr := server.Start(opts.Port); startErr != nil && !errors.Is(startErr, http.ErrServerClosed) {
				logger.Error("Failed to start HTTP server", "error", startErr)
				os.Exit(1)
			}
		})

		hooks.OnStop(func() {
			logger.Info("Shutting down server")
			notifier.Stopping()
			shutdownTimeout, parseErr := time.ParseDuration(opts.ShutdownTimeout)
			if parseErr != nil {
				shutdownTimeout = 10 * time.Second
			}
			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()

			if stopErr := server.Stop(ctx); stopErr != nil {
				logger.Error("Error stopping HTTP server", "error", stopErr)
			}

			// Stop camera pipelines after the HTTP server stops accepting requests
			if closeErr := pipelineService.Close(ctx); closeErr != nil {
				logger.Error("Error stopping pipelines", "error", closeErr)
			}

			if profileWatcher != nil {
				_ = profileWatcher.Stop()
			}
			stopWatch()
			if sseExporter != nil {
				sseExporter.Stop()
			}
			detachMetrics()
		})
	})

	cli.Root().Version = version.String()

	backend := func() cmd.Backend { return parsed.backend() }
	cli.Root().AddCommand(cmd.CreateDevicesCmd(backend))
	cli.Root().AddCommand(cmd.CreateSnapshotCmd(backend))

	// Run the CLI
	cli.Run()
}
