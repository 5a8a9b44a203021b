// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package flatcap

import "time"

// Timer is a cancellable one-shot callback.
type Timer interface {
	Stop() bool
}

// Scheduler arms one-shot callbacks. The motion watchdog uses it so tests
// can fire timeouts without waiting.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

// SystemScheduler runs callbacks on the runtime timer.
type SystemScheduler struct{}

// AfterFunc implements Scheduler with time.AfterFunc.
func (SystemScheduler) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
