//go:build rp2040

package main

import (
	"context"
	"machine"
	"sync"
	"time"

	drv "chatpad-go/drivers/chatpad"
	"chatpad-go/types"

	uartx "github.com/jangala-dev/tinygo-uartx/uartx"
)

// uartPort drives UART1 for the chatpad session: it is both the Port the
// session reads and writes and the Line it may configure.
type uartPort struct {
	u      *uartx.UART
	tx, rx machine.Pin

	mu     sync.Mutex
	open   bool
	cancel context.CancelFunc
	done   chan struct{}
}

func newUARTPort(tx, rx machine.Pin) *uartPort {
	return &uartPort{u: uartx.UART1, tx: tx, rx: rx}
}

func (p *uartPort) IsOpen() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.open
}

func (p *uartPort) Open(cfg types.SerialConfig) error {
	if err := p.u.Configure(uartx.UARTConfig{BaudRate: cfg.Baud, TX: p.tx, RX: p.rx}); err != nil {
		return err
	}
	var par uartx.UARTParity
	switch cfg.Parity {
	case types.ParityEven:
		par = uartx.ParityEven
	case types.ParityOdd:
		par = uartx.ParityOdd
	default:
		par = uartx.ParityNone
	}
	if err := p.u.SetFormat(cfg.DataBits, cfg.StopBits, par); err != nil {
		return err
	}
	p.mu.Lock()
	p.open = true
	p.mu.Unlock()
	return nil
}

// Close marks the line down; the peripheral itself stays configured.
func (p *uartPort) Close() error {
	p.mu.Lock()
	p.open = false
	p.mu.Unlock()
	return nil
}

func (p *uartPort) Write(b []byte) (int, error) { return p.u.Write(b) }

func (p *uartPort) StartRx(fn func(byte)) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		return drv.ErrRxActive
	}
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel, p.done = cancel, make(chan struct{})
	go p.pump(ctx, fn, p.done)
	return nil
}

func (p *uartPort) StopRx() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (p *uartPort) pump(ctx context.Context, fn func(byte), done chan<- struct{}) {
	defer close(done)
	var buf [32]byte
	for {
		n, err := p.u.RecvSomeContext(ctx, buf[:])
		for _, b := range buf[:n] {
			fn(b)
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			time.Sleep(time.Millisecond)
		}
	}
}
