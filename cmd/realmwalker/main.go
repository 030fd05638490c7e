// realmwalker is a headless World of Warcraft 3.3.5a client. It logs in
// through the auth server, enters the world with the configured
// character and keeps the session alive, exposing chat and control
// through a console, a REST API and MQTT telemetry.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	urfave "github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/realmwalker-project/realmwalker/internal/api"
	"github.com/realmwalker-project/realmwalker/internal/cli"
	"github.com/realmwalker-project/realmwalker/internal/config"
	"github.com/realmwalker-project/realmwalker/internal/connector"
	"github.com/realmwalker-project/realmwalker/internal/db"
	"github.com/realmwalker-project/realmwalker/internal/events"
	"github.com/realmwalker-project/realmwalker/internal/health"
	"github.com/realmwalker-project/realmwalker/internal/network"
	"github.com/realmwalker-project/realmwalker/internal/notify"
	"github.com/realmwalker-project/realmwalker/internal/scheduler"
	"github.com/realmwalker-project/realmwalker/internal/script"
	"github.com/realmwalker-project/realmwalker/internal/session"
	"github.com/realmwalker-project/realmwalker/internal/telemetry"
	"github.com/realmwalker-project/realmwalker/internal/util"
)

const Banner = `
                 _                    _ _
  _ __ ___  __ _| |_ __ _____      __ _| | | _____ _ __
 | '__/ _ \/ _' | | '_ ' _ \ \ /\ / / _' | | |/ / _ \ '__|
 | | |  __/ (_| | | | | | | \ V  V / (_| | |   <  __/ |
 |_|  \___|\__,_|_|_| |_| |_|\_/\_/ \__,_|_|_|\_\___|_|
                                              v%s
 WoW 3.3.5a headless client
`

const shutdownTimeout = 30 * time.Second

func main() {
	app := &urfave.App{
		Name:    "realmwalker",
		Usage:   "headless WoW 3.3.5a client",
		Version: config.Version,
		Flags: []urfave.Flag{
			&urfave.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   config.DefaultConfigDir,
				Usage:   "directory holding config.json",
				EnvVars: []string{"REALMWALKER_CONFIG"},
			},
			&urfave.StringFlag{
				Name:  "log-level",
				Usage: "override the configured log level",
			},
			&urfave.BoolFlag{
				Name:  "no-cli",
				Usage: "disable the interactive console",
			},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		log.Error().Err(err).Msg("realmwalker stopped with error")
		os.Exit(1)
	}
}

func run(c *urfave.Context) error {
	fmt.Printf(Banner, config.Version)
	fmt.Println()

	// Defaults until the config is loaded.
	if err := util.InitLogger(util.DefaultLogConfig()); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	log.Info().
		Str("version", config.Version).
		Str("platform", runtime.GOOS).
		Str("arch", runtime.GOARCH).
		Int("cpus", runtime.NumCPU()).
		Msg("starting realmwalker")

	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if lvl := c.String("log-level"); lvl != "" {
		cfg.SetLogLevel(lvl)
	}

	if err := util.InitLogger(util.LogConfigFromConfig(cfg)); err != nil {
		log.Warn().Err(err).Msg("failed to reconfigure logger, using defaults")
	}

	if err := validate(cfg); err != nil {
		return err
	}

	sysInfo := util.GetSystemInfo()
	log.Info().
		Str("hostname", sysInfo.Hostname).
		Str("os", sysInfo.OS).
		Str("cpu", sysInfo.CPUModel).
		Int("cores", sysInfo.CPUCores).
		Uint64("memory_mb", sysInfo.TotalMemory).
		Msg("system information")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	eventBus := events.NewEventBus()
	broadcast := events.NewBroadcast(cfg.GetBroadcast().Buffer)
	eventBus.Subscribe(events.EventShutdown, "main.shutdown", func(context.Context, events.Event) error {
		stop()
		return nil
	})

	var journal *db.Journal
	if path := cfg.GetJournal().Path; path != "" {
		journal, err = db.OpenJournal(path)
		if err != nil {
			return fmt.Errorf("failed to open journal: %w", err)
		}
		defer journal.Close()
		db.NewRecorder(journal).Attach(eventBus)
	}

	if cfg.GetDiscord().WebhookURL != "" {
		notify.NewDiscord(cfg).Attach(eventBus)
	}

	sess := session.New(cfg.Settings())
	transport := network.NewConnection(network.OptionsFromConfig(cfg), nil)
	client := connector.NewClient(connector.OptionsFromConfig(cfg), sess, transport, eventBus, broadcast)

	if sc := cfg.GetScript(); sc.Enabled {
		engine, err := script.NewEngine(sc.Path)
		if err != nil {
			return err
		}
		defer engine.Close()
		client.SetChatHook(engine)
	}

	g, gctx := errgroup.WithContext(ctx)

	// The session is the reason the process exists; when it ends, so does
	// everything else.
	g.Go(func() error {
		defer stop()
		return client.Run(gctx)
	})

	g.Go(func() error {
		health.NewManager(cfg, eventBus, client).Start(gctx)
		return nil
	})

	if journal != nil {
		g.Go(func() error {
			scheduler.NewScheduler(cfg, journal).Start(gctx)
			return nil
		})
	}

	if cfg.GetMQTT().Enabled {
		mqttHandler, err := telemetry.NewMQTTHandler(cfg, eventBus)
		if err != nil {
			log.Warn().Err(err).Msg("failed to initialize MQTT, telemetry disabled")
		} else {
			g.Go(func() error {
				if err := mqttHandler.Start(gctx); err != nil {
					log.Warn().Err(err).Msg("MQTT telemetry failed")
				}
				return nil
			})
		}
	}

	if cfg.GetAPI().Enabled {
		var store api.Journal
		if journal != nil {
			store = journal
		}
		apiServer := api.NewServer(cfg, eventBus, broadcast, client, store)
		g.Go(func() error {
			if err := apiServer.Start(gctx); err != nil {
				log.Warn().Err(err).Msg("API server failed (non-fatal)")
			}
			return nil
		})
	}

	if !c.Bool("no-cli") {
		console := cli.NewCLI(cfg, eventBus, broadcast, client)
		g.Go(func() error {
			console.Start(gctx)
			return nil
		})
	}

	<-gctx.Done()
	log.Info().Msg("initiating graceful shutdown...")
	stop()

	done := make(chan error, 1)
	go func() { done <- g.Wait() }()

	select {
	case err = <-done:
		log.Info().Msg("all tasks stopped gracefully")
	case <-time.After(shutdownTimeout):
		err = errors.New("shutdown timed out")
		log.Warn().Dur("timeout", shutdownTimeout).Msg("shutdown timed out, forcing exit")
	}

	eventBus.Stop()
	broadcast.Close()
	log.Info().Msg("realmwalker stopped")
	return err
}

// validate logs warnings and errors; on first run it launches the setup
// wizard instead of failing.
func validate(cfg *config.Config) error {
	validation := config.Validate(cfg)
	for _, w := range validation.Warnings {
		log.Warn().Str("field", w.Field).Msg(w.Message)
	}
	if validation.IsValid() {
		return nil
	}
	for _, e := range validation.Errors {
		log.Error().Str("field", e.Field).Msg(e.Message)
	}

	if !cfg.IsFirstRun() {
		return errors.New("configuration validation failed, please fix the errors above")
	}

	log.Info().Msg("first run detected, launching setup wizard")
	if err := config.RunSetupWizard(cfg); err != nil {
		return fmt.Errorf("setup wizard failed: %w", err)
	}
	if again := config.Validate(cfg); !again.IsValid() {
		return fmt.Errorf("configuration still invalid after setup: %s", again.Errors[0].Message)
	}
	return nil
}
