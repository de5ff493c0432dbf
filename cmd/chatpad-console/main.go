package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"chatpad-go/bus"
	drv "chatpad-go/drivers/chatpad"
	"chatpad-go/services/bridge"
	"chatpad-go/services/chatpad"
	"chatpad-go/services/config"
	"chatpad-go/services/console"
	"chatpad-go/services/heartbeat"
	"chatpad-go/services/keyboard"
	"chatpad-go/types"
)

func main() {
	var (
		dev     = flag.String("dev", "/dev/ttyUSB0", "serial device the chatpad is wired to")
		cfgPath = flag.String("config", "", "YAML config file (default: embedded host config)")
		debug   = flag.Bool("debug", false, "debug logging")
	)
	flag.Parse()

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = context.WithValue(ctx, config.CtxDeviceKey, "host")

	b := bus.NewBus(32)
	tty := newTTY(*dev, log)
	port := drv.NewUARTPort(tty, 0)

	hub := keyboard.NewHub(b.NewConnection("keyboard"),
		keyboard.WithLogger(log),
		keyboard.WithStarter(func(h *keyboard.Hub) (keyboard.Peripheral, error) {
			s, err := chatpad.Start(ctx, port, h,
				chatpad.WithLogger(log),
				chatpad.WithLine(tty, types.ChatpadSerial(*dev)))
			if err != nil {
				return nil, err
			}
			return s, nil
		}))

	if err := keyboard.NewService(hub, hub.PubSub(), log).Start(ctx); err != nil {
		log.Error("keyboard service", "err", err)
		os.Exit(1)
	}
	_ = heartbeat.New(hub, log).Start(ctx, b.NewConnection("heartbeat"))
	go bridge.Start(ctx, b.NewConnection("bridge"), log)

	var cfgOpts []config.Option
	if *cfgPath != "" {
		cfgOpts = append(cfgOpts, config.WithFile(*cfgPath))
	}
	config.NewConfigService(append(cfgOpts, config.WithLogger(log))...).Start(ctx, b.NewConnection("config"))

	con := console.New(b.NewConnection("console"), os.Stdout)
	go con.Echo(ctx)

	go func() {
		if err := con.Run(ctx, os.Stdin); err != nil && ctx.Err() == nil {
			log.Error("console", "err", err)
		}
		stop()
	}()

	<-ctx.Done()
	hub.ChatpadStop()
	log.Info("bye")
}
