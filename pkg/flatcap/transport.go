// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package flatcap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/Thermoquad/flatcap/pkg/gastro"
)

var (
	errReadTimeout = errors.New("read timeout")
	errOverflow    = errors.New("response overflow")
)

// TransportOptions configures a Transport.
type TransportOptions struct {
	Retries    int
	Backoff    time.Duration
	CommandGap time.Duration
	Logger     *slog.Logger
	Stats      *Statistics
	Metrics    *Metrics
}

// Transport performs framed request/response exchanges over a Port.
// Only one exchange is in flight at a time.
type Transport struct {
	port    Port
	retries int
	backoff time.Duration
	limiter *rate.Limiter
	log     *slog.Logger
	stats   *Statistics
	metrics *Metrics

	mu sync.Mutex
}

// NewTransport wraps port.
func NewTransport(port Port, opts TransportOptions) *Transport {
	limit := rate.Inf
	if opts.CommandGap > 0 {
		limit = rate.Every(opts.CommandGap)
	}
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Transport{
		port:    port,
		retries: opts.Retries,
		backoff: opts.Backoff,
		limiter: rate.NewLimiter(limit, 1),
		log:     log,
		stats:   opts.Stats,
		metrics: opts.Metrics,
	}
}

// Exchange writes cmd and returns the response with the terminator
// stripped. A failed attempt is repeated up to Retries more times after a
// short backoff. When every attempt fails the error wraps ErrTransport.
func (t *Transport) Exchange(ctx context.Context, cmd gastro.Command) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	start := time.Now()
	var lastErr error
	for attempt := 0; attempt <= t.retries; attempt++ {
		if attempt > 0 {
			t.stats.recordRetry()
			t.metrics.retry()
			if err := sleepContext(ctx, t.backoff); err != nil {
				lastErr = err
				break
			}
		}
		if err := t.limiter.Wait(ctx); err != nil {
			lastErr = err
			break
		}

		resp, err := t.exchangeOnce(cmd)
		if err == nil {
			elapsed := time.Since(start)
			t.stats.recordExchange(elapsed, nil)
			t.metrics.observeExchange(cmd.Op, elapsed, nil)
			return resp, nil
		}
		lastErr = err
		t.log.Debug("exchange attempt failed", "cmd", cmd.String(), "attempt", attempt+1, "err", err)
	}

	t.stats.recordExchange(0, lastErr)
	t.metrics.observeExchange(cmd.Op, 0, lastErr)
	return "", fmt.Errorf("%w: %s: %w", ErrTransport, cmd, lastErr)
}

// Close closes the underlying port.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.port.Close()
}

func (t *Transport) exchangeOnce(cmd gastro.Command) (string, error) {
	if err := t.port.ResetInputBuffer(); err != nil {
		return "", fmt.Errorf("flush: %w", err)
	}

	t.log.Debug("CMD", "frame", cmd.String())
	if err := writeFull(t.port, []byte(cmd.Frame)); err != nil {
		return "", fmt.Errorf("write: %w", err)
	}

	var (
		resp string
		err  error
	)
	switch cmd.Reply {
	case gastro.ReplyNone:
		return "", nil
	case gastro.ReplyFixed:
		resp, err = t.readFixed(cmd.ReplyLen, cmd.Timeout)
	default:
		resp, err = t.readDelimited(cmd.Terminator, cmd.ReplyLen, cmd.Timeout)
	}
	if err != nil {
		return "", err
	}
	t.log.Debug("RES", "frame", resp)
	return resp, nil
}

// readDelimited reads until term, at most limit bytes, or the deadline.
func (t *Transport) readDelimited(term byte, limit int, timeout time.Duration) (string, error) {
	deadline := time.Now().Add(timeout)
	buf := make([]byte, 0, limit)
	one := make([]byte, 1)
	for {
		c, err := t.readByte(one, deadline)
		if err != nil {
			return "", err
		}
		if c == term {
			return string(buf), nil
		}
		if len(buf) >= limit {
			return "", fmt.Errorf("%w: no terminator in %d bytes", errOverflow, limit)
		}
		buf = append(buf, c)
	}
}

// readFixed reads exactly n bytes before the deadline.
func (t *Transport) readFixed(n int, timeout time.Duration) (string, error) {
	deadline := time.Now().Add(timeout)
	buf := make([]byte, 0, n)
	one := make([]byte, 1)
	for len(buf) < n {
		c, err := t.readByte(one, deadline)
		if err != nil {
			return "", err
		}
		buf = append(buf, c)
	}
	return string(buf), nil
}

func (t *Transport) readByte(one []byte, deadline time.Time) (byte, error) {
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return 0, errReadTimeout
		}
		if err := t.port.SetReadTimeout(remaining); err != nil {
			return 0, fmt.Errorf("set read timeout: %w", err)
		}
		n, err := t.port.Read(one)
		if err != nil {
			return 0, fmt.Errorf("read: %w", err)
		}
		if n == 1 {
			return one[0], nil
		}
	}
}

func writeFull(w io.Writer, p []byte) error {
	for len(p) > 0 {
		n, err := w.Write(p)
		if err != nil {
			return err
		}
		if n == 0 {
			return io.ErrShortWrite
		}
		p = p[n:]
	}
	return nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
