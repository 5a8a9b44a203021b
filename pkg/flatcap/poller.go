// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package flatcap

import (
	"context"
	"errors"
	"time"
)

// Run polls the device every PollInterval until ctx is cancelled or the
// device is disconnected.
func (d *Device) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan struct{})
	defer close(done)

	d.mu.Lock()
	if !d.connected {
		d.mu.Unlock()
		return
	}
	d.stopPoll, d.pollDone = cancel, done
	d.mu.Unlock()

	d.log.Info("Poller started", "interval", d.cfg.PollInterval)

	timer := time.NewTimer(d.cfg.PollInterval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			d.log.Info("Poller stopped")
			return
		case <-timer.C:
		}

		if err := d.Tick(ctx); errors.Is(err, ErrNotConnected) {
			return
		}
		timer.Reset(d.cfg.PollInterval)
	}
}

// Tick runs one poll: status, cover timeout recovery and focuser readings.
// A failed status read is logged and leaves the state untouched.
func (d *Device) Tick(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.connected {
		return ErrNotConnected
	}

	moving, err := d.refreshStatus(ctx)
	if err != nil {
		d.log.Warn("Status poll failed", "err", err)
	} else {
		d.checkCoverTimeout(ctx)
	}

	if d.dialect.HasFocuser() {
		d.pollFocuser(ctx, moving)
	}
	return err
}
