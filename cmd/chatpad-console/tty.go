package main

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"sync"

	"chatpad-go/types"
	"chatpad-go/x/shmring"
)

var errClosed = errors.New("tty: not open")

// ttyUART exposes a serial device node as a TinyGo-style UART (Read, Write,
// Buffered) and as a Line the session can open and close. Line settings are
// applied outside the process (stty 19200 raw).
type ttyUART struct {
	path string
	log  *slog.Logger
	ring *shmring.Ring

	mu sync.Mutex
	f  *os.File
}

func newTTY(path string, log *slog.Logger) *ttyUART {
	return &ttyUART{path: path, log: log, ring: shmring.New(1024)}
}

func (t *ttyUART) IsOpen() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.f != nil
}

func (t *ttyUART) Open(cfg types.SerialConfig) error {
	f, err := os.OpenFile(t.path, os.O_RDWR, 0)
	if err != nil {
		return err
	}
	t.mu.Lock()
	t.f = f
	t.mu.Unlock()
	t.log.Info("serial line open", "path", t.path, "baud", cfg.Baud, "parity", cfg.Parity.String())
	go t.fill(f)
	return nil
}

func (t *ttyUART) Close() error {
	t.mu.Lock()
	f := t.f
	t.f = nil
	t.mu.Unlock()
	if f == nil {
		return nil
	}
	return f.Close()
}

// fill copies device input into the ring until the file is closed.
func (t *ttyUART) fill(f *os.File) {
	var buf [64]byte
	for {
		n, err := f.Read(buf[:])
		if n > 0 {
			t.ring.TryWriteFrom(buf[:n])
		}
		if err != nil {
			if !errors.Is(err, os.ErrClosed) && err != io.EOF {
				t.log.Warn("serial read", "err", err)
			}
			return
		}
	}
}

func (t *ttyUART) Read(p []byte) (int, error) { return t.ring.TryReadInto(p), nil }

func (t *ttyUART) Buffered() int { return t.ring.Available() }

func (t *ttyUART) Write(p []byte) (int, error) {
	t.mu.Lock()
	f := t.f
	t.mu.Unlock()
	if f == nil {
		return 0, errClosed
	}
	return f.Write(p)
}
