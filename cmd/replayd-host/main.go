// replayd-host is the native messaging host the browser extension
// launches. It speaks length-prefixed JSON frames on stdin/stdout and
// logs to stderr or a file, never stdout.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"replayd/internal/broker"
	"replayd/internal/config"
	"replayd/internal/engine"
	"replayd/internal/host"
	"replayd/internal/logging"
	"replayd/internal/notify"
	"replayd/internal/platform"
	"replayd/internal/playback"
	"replayd/internal/script"
	"replayd/internal/session"
	"replayd/internal/transport"
)

var (
	configPath  = flag.String("config", "", "path to config file")
	logLevel    = flag.String("log-level", "", "override log level (debug, info, warn, error)")
	backend     = flag.String("platform", "", "override platform backend (auto, simulated)")
	showVersion = flag.Bool("version", false, "print version and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println("replayd-host", host.Version)
		return
	}

	// Browsers pass the extension origin as the first positional
	// argument when launching the host.
	origin := flag.Arg(0)

	if err := run(origin); err != nil {
		fmt.Fprintf(os.Stderr, "replayd-host: %v\n", err)
		os.Exit(1)
	}
}

func run(origin string) error {
	loader := config.NewLoader(*configPath)
	cfg, err := loader.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	if *backend != "" {
		cfg.Platform.Backend = *backend
	}
	if !originAllowed(origin, cfg.Host.AllowedOrigins) {
		return fmt.Errorf("origin %q is not in allowed_origins", origin)
	}

	level, _ := logging.ParseLevel(cfg.Logging.Level)
	logger, err := logging.New(&logging.Config{
		Level:      level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		FilePath:   cfg.Logging.FilePath,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		Component:  "replayd-host",
	})
	if err != nil {
		return fmt.Errorf("setup logging: %w", err)
	}
	defer logger.Close()
	logging.SetDefault(logger)

	logger.Info("starting", "version", host.Version, "data_dir", cfg.DataDir)

	adapter := selectAdapter(cfg, logger)

	scripts, err := script.Open(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("open script store: %w", err)
	}
	defer scripts.Close()

	var notifier notify.Notifier = notify.Noop{}
	if cfg.Notifications.Enabled {
		notifier = notify.New("replayd")
	}
	defer notifier.Close()

	sessions := session.NewStore()
	bkr := broker.New(logger.Logger)

	eng := engine.New(sessions, adapter, scripts, bkr, notifier, engine.Options{
		MaxActions:    cfg.Recording.MaxActions,
		Notifications: cfg.Notifications.Enabled,
	}, logger.Logger)

	play := playback.New(scripts, adapter, bkr, playback.Options{
		DefaultSpeed: cfg.Playback.DefaultSpeed,
		MaxSpeed:     cfg.Playback.MaxSpeed,
	}, logger.Logger)

	hostTransport := transport.NewHost(os.Stdin, os.Stdout, bkr, logger.Logger)
	hostTransport.ForwardEvents(
		engine.EventRecordingStarted,
		engine.EventRecordingPaused,
		engine.EventRecordingResumed,
		engine.EventRecordingStopped,
		engine.EventRecordingAction,
		playback.EventPlaybackStarted,
		playback.EventPlaybackProgress,
		playback.EventPlaybackCompleted,
		playback.EventPlaybackStopped,
		playback.EventPlaybackError,
		"config.reloaded",
	)

	host.Register(bkr, host.Deps{
		Engine:    eng,
		Playback:  play,
		Scripts:   scripts,
		Host:      hostTransport,
		Log:       logger.Logger,
		AuthToken: cfg.Host.AuthToken,
	})

	loader.OnChange(func(next *config.Config) {
		logger.Info("config reloaded")
		bkr.Publish("config.reloaded", map[string]any{"version": next.Version})
	})
	if err := loader.Watch(); err != nil {
		logger.Warn("config watch unavailable", "error", err)
	}
	defer loader.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = hostTransport.Run(ctx)

	// Wind down in dependency order: no new commands, then capture and
	// playback, then persistence.
	bkr.Shutdown()
	if _, _, stopErr := eng.StopRecording("", ""); stopErr == nil {
		logger.Info("flushed in-flight recording on shutdown")
	}
	play.Stop()

	if err != nil && ctx.Err() == nil {
		return err
	}
	logger.Info("stopped")
	return nil
}

// originAllowed checks the launch origin against the allow list. An
// empty list admits everything; an empty origin (local launch, e.g.
// replayctl) is always admitted.
func originAllowed(origin string, allowed []string) bool {
	if len(allowed) == 0 || origin == "" {
		return true
	}
	for _, a := range allowed {
		if a == origin {
			return true
		}
	}
	return false
}

func selectAdapter(cfg *config.Config, logger *logging.Logger) platform.Adapter {
	switch cfg.Platform.Backend {
	case "simulated":
		logger.Info("using simulated platform adapter")
		return platform.NewSimulated()
	default:
		adapter := platform.Detect()
		caps := adapter.Capabilities()
		logger.Info("detected platform adapter",
			"input_capture", caps.InputCapture,
			"input_synthesis", caps.InputSynthesis,
			"detail", caps.Detail)
		return adapter
	}
}
