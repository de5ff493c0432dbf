package chatpad

import (
	"io"
	"sync"
	"time"

	"chatpad-go/types"

	"tinygo.org/x/drivers"
)

// Port is the duplex byte transport to the pad. Received bytes are pushed to
// the callback one at a time from the port's own context; the callback must
// not block.
type Port interface {
	io.Writer
	StartRx(fn func(b byte)) error
	StopRx()
}

// Line is implemented by ports whose serial line the session may bring up
// and tear down. A session only closes a line it opened itself.
type Line interface {
	IsOpen() bool
	Open(cfg types.SerialConfig) error
	Close() error
}

// UARTPort adapts a TinyGo UART (or anything with the same shape) to Port by
// polling its receive buffer from a pump goroutine.
type UARTPort struct {
	u    drivers.UART
	poll time.Duration

	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}
}

// NewUARTPort wraps u. poll is the idle re-check interval (default 1 ms).
func NewUARTPort(u drivers.UART, poll time.Duration) *UARTPort {
	if poll <= 0 {
		poll = time.Millisecond
	}
	return &UARTPort{u: u, poll: poll}
}

func (p *UARTPort) Write(b []byte) (int, error) { return p.u.Write(b) }

func (p *UARTPort) StartRx(fn func(b byte)) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stop != nil {
		return ErrRxActive
	}
	p.stop = make(chan struct{})
	p.done = make(chan struct{})
	go p.pump(fn, p.stop, p.done)
	return nil
}

// StopRx halts the pump and waits for it to exit. Safe to call when idle.
func (p *UARTPort) StopRx() {
	p.mu.Lock()
	stop, done := p.stop, p.done
	p.stop, p.done = nil, nil
	p.mu.Unlock()
	if stop == nil {
		return
	}
	close(stop)
	<-done
}

func (p *UARTPort) pump(fn func(byte), stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	var buf [32]byte
	idle := time.NewTicker(p.poll)
	defer idle.Stop()
	for {
		select {
		case <-stop:
			return
		default:
		}
		if p.u.Buffered() == 0 {
			select {
			case <-stop:
				return
			case <-idle.C:
			}
			continue
		}
		n, err := p.u.Read(buf[:])
		for _, b := range buf[:n] {
			fn(b)
		}
		if err != nil && n == 0 {
			select {
			case <-stop:
				return
			case <-idle.C:
			}
		}
	}
}
