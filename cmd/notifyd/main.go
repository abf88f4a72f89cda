package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/rs/zerolog"

	"localnotify/internal/config"
	"localnotify/internal/eventbus"
	"localnotify/internal/logging"
	"localnotify/internal/notify"
	"localnotify/internal/platform"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "./config.yaml", "path to config yaml/json")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	mgr := config.NewManager(cfgPath, zerolog.Nop())
	cfg, err := mgr.Load()
	if err != nil {
		fmt.Println("fatal:", err)
		os.Exit(1)
	}

	log, logClose, err := logging.New(cfg.Logging.ToLogging())
	if err != nil {
		fmt.Println("fatal:", err)
		os.Exit(1)
	}
	if logClose != nil {
		defer logClose.Close()
	}
	mgr.SetLogger(log)
	engineCfg, err := cfg.Engine.ToEngine()
	if err != nil {
		fmt.Println("fatal:", err)
		os.Exit(1)
	}

	bus := eventbus.New()
	adapter, err := platform.New(cfg.Platform.ToPlatform(), bus, log)
	if err != nil {
		fmt.Println("fatal:", err)
		os.Exit(1)
	}

	svc, err := notify.New(engineCfg, adapter, bus, log)
	if err != nil {
		fmt.Println("fatal:", err)
		os.Exit(1)
	}
	if err := svc.Start(ctx); err != nil {
		fmt.Println("fatal start:", err)
		os.Exit(1)
	}
	for _, ch := range cfg.Channels {
		if err := svc.RegisterChannel(ch.ToChannel()); err != nil {
			log.Warn().Err(err).Str("channel", ch.ID).Msg("channel registration failed")
		}
	}

	// The daemon counts as "in the foreground" while it runs, so the
	// return notification only covers downtime between runs.
	svc.EnterForeground()

	go logEvents(ctx, bus, log)
	go func() {
		err := mgr.Watch(ctx, func(c *config.Config) {
			if ec, err := c.Engine.ToEngine(); err == nil {
				svc.Apply(ec)
			}
		})
		if err != nil && ctx.Err() == nil {
			log.Warn().Err(err).Msg("config watcher stopped")
		}
	}()

	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)
	log.Info().Str("backend", adapter.Name()).Msg("notifyd running")

	<-ctx.Done()
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

	svc.EnterBackground()
	if err := svc.Stop(context.Background()); err != nil {
		log.Error().Err(err).Msg("shutdown error")
	}
}

func logEvents(ctx context.Context, bus eventbus.Bus, log zerolog.Logger) {
	events, unsub := bus.Subscribe(16)
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			switch e.Kind {
			case eventbus.KindError:
				log.Warn().Err(e.Err).Str("id", e.Identifier).Msg("notification error")
			default:
				log.Debug().Str("kind", string(e.Kind)).Str("id", e.Identifier).Msg("event")
			}
		}
	}
}
