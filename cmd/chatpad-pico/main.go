//go:build rp2040

package main

import (
	"context"
	"machine"
	"time"

	"chatpad-go/bus"
	"chatpad-go/services/chatpad"
	"chatpad-go/services/config"
	"chatpad-go/services/heartbeat"
	"chatpad-go/services/keyboard"
	"chatpad-go/types"
)

const (
	pinTX      = machine.GP4 // UART1
	pinRX      = machine.GP5
	pinVibrate = machine.GP15
)

func main() {
	// Allow USB CDC to enumerate before we print.
	time.Sleep(2 * time.Second)
	println("[chatpad] boot")

	ctx := context.WithValue(context.Background(), config.CtxDeviceKey, "pico")
	b := bus.NewBus(8)

	pinVibrate.Configure(machine.PinConfig{Mode: machine.PinOutput})
	pinVibrate.Low()

	port := newUARTPort(pinTX, pinRX)
	hub := keyboard.NewHub(b.NewConnection("keyboard"),
		keyboard.WithStarter(func(h *keyboard.Hub) (keyboard.Peripheral, error) {
			s, err := chatpad.Start(ctx, port, h,
				chatpad.WithHaptic(pinVibrate),
				chatpad.WithLine(port, types.ChatpadSerial("uart1")))
			if err != nil {
				return nil, err
			}
			return s, nil
		}))

	if err := keyboard.NewService(hub, hub.PubSub(), nil).Start(ctx); err != nil {
		println("[chatpad] keyboard service:", err.Error())
		return
	}
	_ = heartbeat.New(hub, nil).Start(ctx, b.NewConnection("heartbeat"))
	config.NewConfigService().Start(ctx, b.NewConnection("config"))

	events := hub.Subscribe()
	for m := range events.Channel() {
		ev, ok := m.Payload.(types.KeyEvent)
		if !ok {
			continue
		}
		println("[chatpad]", ev.Type.String(), ev.Text())
	}
}
