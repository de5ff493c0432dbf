package chatpad

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"chatpad-go/x/conv"
	"chatpad-go/x/shmring"
)

// SyncTimeout bounds the extra read used to realign after a bad frame start.
const SyncTimeout = 100 * time.Millisecond

// pollStep is how often a partially filled ring is re-checked. The ring only
// signals the empty->non-empty edge, so partial frames need polling.
const pollStep = time.Millisecond

// ReaderStats are cumulative counters. Safe to read concurrently.
type ReaderStats struct {
	Frames    uint32 // aligned frames returned
	Resyncs   uint32 // realignments attempted after a bad first byte
	Discarded uint32 // bytes thrown away while hunting for a marker
}

// Reader pulls aligned frames from the receive ring. It is the ring's only
// consumer and must be used from a single goroutine.
type Reader struct {
	ring *shmring.Ring
	log  *slog.Logger

	frames    atomic.Uint32
	resyncs   atomic.Uint32
	discarded atomic.Uint32
}

// NewReader wraps ring. A nil logger falls back to slog.Default().
func NewReader(ring *shmring.Ring, log *slog.Logger) *Reader {
	if log == nil {
		log = slog.Default()
	}
	return &Reader{ring: ring, log: log}
}

func (r *Reader) Stats() ReaderStats {
	return ReaderStats{
		Frames:    r.frames.Load(),
		Resyncs:   r.resyncs.Load(),
		Discarded: r.discarded.Load(),
	}
}

// ReadFrame returns the next frame, waiting at most timeout for 8 bytes.
//
// ErrNoData means fewer than 8 bytes arrived in time; those bytes stay queued.
// ErrDesync means a misaligned frame was thrown away; call again.
// When the first byte is not a marker but a later one is, the frame is
// realigned on the earliest marker and completed from the stream.
func (r *Reader) ReadFrame(ctx context.Context, timeout time.Duration) (Frame, error) {
	var f Frame
	if err := r.wait(ctx, FrameSize, timeout); err != nil {
		return f, err
	}
	r.ring.TryReadInto(f[:])

	if IsMarker(f[0]) {
		r.frames.Add(1)
		return f, nil
	}

	k := 0
	for i := 1; i < FrameSize; i++ {
		if IsMarker(f[i]) {
			k = i
			break
		}
	}
	if k == 0 {
		r.discarded.Add(FrameSize)
		r.log.Debug("invalid data", "frame", conv.Hex(f[:]))
		return Frame{}, ErrDesync
	}

	r.resyncs.Add(1)
	r.discarded.Add(uint32(k))
	r.log.Debug("resync", "frame", conv.Hex(f[:]), "offset", k)

	copy(f[:], f[k:])
	if err := r.wait(ctx, k, SyncTimeout); err != nil {
		r.discarded.Add(uint32(FrameSize - k))
		r.log.Debug("failed to sync data", "attempted", k, "actual", r.ring.Available())
		if err == ErrNoData {
			return Frame{}, ErrDesync
		}
		return Frame{}, err
	}
	r.ring.TryReadInto(f[FrameSize-k:])
	r.frames.Add(1)
	return f, nil
}

// Read fills p from the ring, waiting up to timeout for len(p) bytes. It is
// used for replies that are not framed the usual way (the init response).
func (r *Reader) Read(ctx context.Context, p []byte, timeout time.Duration) error {
	if err := r.wait(ctx, len(p), timeout); err != nil {
		return err
	}
	r.ring.TryReadInto(p)
	return nil
}

// wait blocks until n bytes are buffered, the timeout fires or ctx ends.
func (r *Reader) wait(ctx context.Context, n int, timeout time.Duration) error {
	if r.ring.Available() >= n {
		return nil
	}
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	poll := time.NewTicker(pollStep)
	defer poll.Stop()

	for {
		if r.ring.Available() >= n {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			if r.ring.Available() >= n {
				return nil
			}
			return ErrNoData
		case <-r.ring.Readable():
		case <-poll.C:
		}
	}
}
