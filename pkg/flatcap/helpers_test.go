// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package flatcap

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/flatcap/pkg/gastro"
)

var errFakeWrite = errors.New("fake write failure")

// fakePort answers each written frame through respond.
type fakePort struct {
	mu         sync.Mutex
	respond    func(frame string) string
	writes     []string
	pending    []byte
	failWrites int
	rts        *bool
	rtsErr     error
	closed     bool
}

func (p *fakePort) Read(b []byte) (int, error) {
	p.mu.Lock()
	if len(p.pending) == 0 {
		p.mu.Unlock()
		time.Sleep(time.Millisecond)
		return 0, nil
	}
	n := copy(b, p.pending)
	p.pending = p.pending[n:]
	p.mu.Unlock()
	return n, nil
}

func (p *fakePort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.writes = append(p.writes, string(b))
	if p.failWrites > 0 {
		p.failWrites--
		return 0, errFakeWrite
	}
	if p.respond != nil {
		p.pending = append(p.pending, p.respond(string(b))...)
	}
	return len(b), nil
}

func (p *fakePort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *fakePort) SetReadTimeout(time.Duration) error { return nil }

func (p *fakePort) ResetInputBuffer() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pending = nil
	return nil
}

func (p *fakePort) SetRTS(rts bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.rtsErr != nil {
		return p.rtsErr
	}
	p.rts = &rts
	return nil
}

func (p *fakePort) setFailWrites(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failWrites = n
}

// written returns every frame written so far, terminators included.
func (p *fakePort) written() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.writes...)
}

func (p *fakePort) count(frame string) int {
	n := 0
	for _, w := range p.written() {
		if w == frame {
			n++
		}
	}
	return n
}

// noRTSPort hides SetRTS.
type noRTSPort struct {
	Port
}

// fakeCap emulates Gastro firmware.
type fakeCap struct {
	mu          sync.Mutex
	dialect     gastro.Dialect
	id          uint16
	codes       gastro.StatusCodes
	firmware    string
	brightness  int
	openAngle   int
	closedAngle int

	position    int32
	target      int32
	temperature float64
	coefficient float64
	moving      bool

	// override replaces the reply for an opcode.
	override map[string]string
}

func newFakeCap(d gastro.Dialect) *fakeCap {
	return &fakeCap{
		dialect:     d,
		id:          99,
		codes:       gastro.StatusCodes{Cover: uint8(gastro.CoverClosed)},
		firmware:    "123",
		brightness:  128,
		openAngle:   270,
		closedAngle: 7,
		position:    1000,
		temperature: 20.5,
		coefficient: -2.5,
		override:    map[string]string{},
	}
}

func (c *fakeCap) set(f func(c *fakeCap)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	f(c)
}

func (c *fakeCap) respond(frame string) string {
	c.mu.Lock()
	defer c.mu.Unlock()

	if frame[0] == gastro.FocuserSentinel {
		return c.respondFocuser(strings.TrimSuffix(frame[1:], "#"))
	}

	term := string(c.dialect.Terminator())
	op := frame[1]
	if r, ok := c.override[string(op)]; ok {
		return r + term
	}
	arg, _ := strconv.Atoi(frame[2:5])
	ack := fmt.Sprintf("*%c%02d", op, c.id)

	value := func(v int) string { return fmt.Sprintf("%s%03d%s", ack, v, term) }
	switch op {
	case gastro.OpPing, gastro.OpPark, gastro.OpUnpark, gastro.OpLightOn, gastro.OpLightOff:
		return ack + "000" + term
	case gastro.OpStatus:
		return c.codes.Frame(c.id) + term
	case gastro.OpFirmware:
		return ack + c.firmware + term
	case gastro.OpSetBrightness:
		c.brightness = arg
		return value(arg)
	case gastro.OpGetBrightness:
		return value(c.brightness)
	case gastro.OpSetOpenAngle:
		c.openAngle = arg
		return value(arg)
	case gastro.OpGetOpenAngle:
		return value(c.openAngle)
	case gastro.OpSetCloseAngle:
		c.closedAngle = arg
		return value(arg)
	case gastro.OpGetCloseAngle:
		return value(c.closedAngle)
	}
	return ""
}

func (c *fakeCap) respondFocuser(body string) string {
	if r, ok := c.override[body[:min(2, len(body))]]; ok {
		return r
	}
	switch {
	case body == gastro.OpGetPosition:
		return fmt.Sprintf("%04X#", c.position)
	case body == gastro.OpGetTemperature:
		return fmt.Sprintf("%04X#", uint16(int16(c.temperature*2)))
	case body == gastro.OpGetTempCoefficient:
		return fmt.Sprintf("%02X#", uint8(int8(c.coefficient*2)))
	case body == gastro.OpIsMoving:
		if c.moving {
			return "01#"
		}
		return "00#"
	case body == gastro.OpFocuserFirmware:
		return "12"
	case strings.HasPrefix(body, gastro.OpSetTarget):
		v, _ := strconv.ParseUint(body[2:], 16, 32)
		c.target = int32(v)
	case body == gastro.OpGoToTarget:
		c.moving = true
	case strings.HasPrefix(body, gastro.OpSyncPosition):
		v, _ := strconv.ParseUint(body[2:], 16, 32)
		c.position = int32(v)
	}
	return ""
}

// fakeScheduler collects timers and fires them on demand.
type fakeScheduler struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

type fakeTimer struct {
	s       *fakeScheduler
	d       time.Duration
	f       func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	wasActive := !t.stopped && !t.fired
	t.stopped = true
	return wasActive
}

func (s *fakeScheduler) AfterFunc(d time.Duration, f func()) Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &fakeTimer{s: s, d: d, f: f}
	s.timers = append(s.timers, t)
	return t
}

func (s *fakeScheduler) active() []*fakeTimer {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*fakeTimer
	for _, t := range s.timers {
		if !t.stopped && !t.fired {
			out = append(out, t)
		}
	}
	return out
}

// fire runs every active timer once and returns how many fired.
func (s *fakeScheduler) fire() int {
	timers := s.active()
	s.mu.Lock()
	for _, t := range timers {
		t.fired = true
	}
	s.mu.Unlock()
	for _, t := range timers {
		t.f()
	}
	return len(timers)
}

// recorder is a Sink that keeps every event.
type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) Publish(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) ofKind(k EventKind) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, e := range r.events {
		if e.Kind == k {
			out = append(out, e)
		}
	}
	return out
}

func (r *recorder) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func testConfig(d gastro.Dialect) Config {
	cfg := DefaultConfig()
	cfg.Dialect = d.String()
	cfg.RetryBackoff = 0
	cfg.HandshakeDelay = 0
	cfg.PingWithoutRTS = false
	return cfg
}

type harness struct {
	dev   *Device
	port  *fakePort
	cap   *fakeCap
	sched *fakeScheduler
	rec   *recorder
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	fc := newFakeCap(cfg.dialect())
	h := &harness{
		port:  &fakePort{respond: fc.respond},
		cap:   fc,
		sched: &fakeScheduler{},
		rec:   &recorder{},
	}
	dev, err := New(cfg, h.port, WithScheduler(h.sched), WithSink(h.rec))
	require.NoError(t, err)
	h.dev = dev
	t.Cleanup(func() { _ = dev.Disconnect() })
	return h
}

// connected returns a harness whose device completed Connect.
func connected(t *testing.T, d gastro.Dialect) *harness {
	t.Helper()
	h := newHarness(t, testConfig(d))
	require.NoError(t, h.dev.Connect(context.Background()))
	return h
}
