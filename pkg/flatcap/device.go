// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package flatcap drives a Gastro flat-cap (and the focap variant with its
// built-in focuser) over a serial line.
//
// A Device owns the transport, the status change detector, the park state
// machine and the focuser. Every public method takes the device lock, so a
// user command and a poll tick never interleave on the wire.
package flatcap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Thermoquad/flatcap/pkg/gastro"
)

// unknownValue marks a cap setting that has not been read yet.
const unknownValue = -1

// Device is a connected (or simulated) Gastro cap.
type Device struct {
	cfg       Config
	dialect   gastro.Dialect
	port      Port
	transport *Transport
	sink      Sink
	scheduler Scheduler
	log       *slog.Logger
	metrics   *Metrics
	stats     *Statistics

	mu          sync.Mutex
	connected   bool
	productID   uint16
	firmware    string
	cells       statusCells
	status      Status
	statusValid bool
	motion      motion
	lightOn     bool
	lightKnown  bool
	brightness  int
	openAngle   int
	closedAngle int
	focuser     focuser

	stopPoll context.CancelFunc
	pollDone chan struct{}
}

// Option customizes a Device.
type Option func(*Device)

// WithSink sets the event sink.
func WithSink(s Sink) Option {
	return func(d *Device) { d.sink = s }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Device) { d.log = l }
}

// WithScheduler replaces the watchdog scheduler.
func WithScheduler(s Scheduler) Option {
	return func(d *Device) { d.scheduler = s }
}

// WithMetrics sets the Prometheus collectors.
func WithMetrics(m *Metrics) Option {
	return func(d *Device) { d.metrics = m }
}

// WithStatistics shares a statistics tracker with the device.
func WithStatistics(s *Statistics) Option {
	return func(d *Device) { d.stats = s }
}

// New creates a device on port. port may be nil when cfg.Simulate is set.
func New(cfg Config, port Port, opts ...Option) (*Device, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if port == nil && !cfg.Simulate {
		return nil, errors.New("a port is required unless simulating")
	}

	d := &Device{
		cfg:         cfg,
		dialect:     cfg.dialect(),
		port:        port,
		scheduler:   SystemScheduler{},
		cells:       newStatusCells(),
		brightness:  unknownValue,
		openAngle:   unknownValue,
		closedAngle: unknownValue,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.log == nil {
		d.log = slog.New(slog.DiscardHandler)
	}
	if d.stats == nil {
		d.stats = NewStatistics()
	}
	d.log = d.log.With("dialect", d.dialect.String())
	d.status.HasFocuser = d.dialect.HasFocuser()

	if port != nil {
		d.transport = NewTransport(port, TransportOptions{
			Retries:    cfg.Retries,
			Backoff:    cfg.RetryBackoff,
			CommandGap: cfg.CommandGap,
			Logger:     d.log,
			Stats:      d.stats,
			Metrics:    d.metrics,
		})
	}
	return d, nil
}

// Connect performs the handshake and loads the startup data. Startup read
// failures are logged and do not fail the connection.
func (d *Device) Connect(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.connected {
		return nil
	}

	if d.cfg.Simulate {
		d.connected = true
		d.productID = 99
		d.publish(Event{Kind: EventConnection, On: true})
		d.setFirmware("SIM")
		if d.dialect.HasFocuser() {
			d.focuser.Firmware = "0.0"
		}
		_, _ = d.refreshStatus(ctx)
		return nil
	}

	if err := d.handshake(ctx); err != nil {
		d.log.Error("Handshake failed", "err", err)
		return err
	}
	d.connected = true
	d.publish(Event{Kind: EventConnection, On: true})

	if err := d.loadStartupData(ctx); err != nil {
		d.log.Warn("Some startup values could not be read", "err", err)
	}
	return nil
}

func (d *Device) handshake(ctx context.Context) error {
	if d.dialect.DropsRTS() {
		if err := dropRTS(d.port); err != nil {
			if !d.cfg.PingWithoutRTS {
				return fmt.Errorf("%w: drop RTS: %w", ErrTransport, err)
			}
			d.log.Warn("Could not drop RTS, trying plain ping", "err", err)
		}
	}

	var lastErr error
	for attempt := 0; attempt < d.cfg.HandshakeAttempts; attempt++ {
		if attempt > 0 {
			if err := sleepContext(ctx, d.cfg.HandshakeDelay); err != nil {
				return err
			}
		}
		id, err := d.ping(ctx)
		if err == nil {
			d.productID = id
			d.log.Info("Device detected", "product_id", id)
			return nil
		}
		lastErr = err
		d.log.Debug("Handshake ping failed", "attempt", attempt+1, "err", err)
	}
	return lastErr
}

func (d *Device) ping(ctx context.Context) (uint16, error) {
	resp, err := d.transport.Exchange(ctx, gastro.NewPing(d.dialect))
	if err != nil {
		return 0, err
	}
	id, err := gastro.ParseProductID(resp)
	if err != nil {
		d.parseFailed(err)
		return 0, err
	}
	return id, nil
}

// Ping sends a ping and returns the product id. It works before Connect.
func (d *Device) Ping(ctx context.Context) (uint16, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cfg.Simulate {
		return 99, nil
	}
	return d.ping(ctx)
}

func (d *Device) loadStartupData(ctx context.Context) error {
	var errs []error
	if err := d.readFirmware(ctx); err != nil {
		errs = append(errs, err)
	}
	if _, err := d.refreshStatus(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := d.readValue(ctx, gastro.NewGetBrightness(d.dialect), PropBrightness); err != nil {
		errs = append(errs, err)
	}
	if err := d.readValue(ctx, gastro.NewGetClosedAngle(d.dialect), PropClosedAngle); err != nil {
		errs = append(errs, err)
	}
	if err := d.readValue(ctx, gastro.NewGetOpenAngle(d.dialect), PropOpenAngle); err != nil {
		errs = append(errs, err)
	}
	if d.dialect.HasFocuser() {
		if err := d.loadFocuserData(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Disconnect stops the poller, cancels the watchdog and closes the port.
func (d *Device) Disconnect() error {
	d.mu.Lock()
	wasConnected := d.connected
	d.connected = false
	d.cancelWatchdog()
	stop, done := d.stopPoll, d.pollDone
	d.stopPoll, d.pollDone = nil, nil
	if wasConnected {
		d.publish(Event{Kind: EventConnection, On: false})
	}
	d.mu.Unlock()

	if stop != nil {
		stop()
		<-done
	}
	if d.transport != nil {
		return d.transport.Close()
	}
	return nil
}

// RefreshStatus queries and applies the device status once.
func (d *Device) RefreshStatus(ctx context.Context) (Status, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.connected {
		return Status{}, ErrNotConnected
	}
	_, err := d.refreshStatus(ctx)
	return d.status, err
}

// refreshStatus reads the status (and the focuser moving flag) and feeds it
// to the change detector. A failed read leaves every cell untouched.
// Caller holds d.mu.
func (d *Device) refreshStatus(ctx context.Context) (*bool, error) {
	var (
		codes  gastro.StatusCodes
		moving *bool
	)

	if d.cfg.Simulate {
		codes = d.simulatedStatus()
		if d.dialect.HasFocuser() {
			stopped := false
			moving = &stopped
		}
	} else {
		resp, err := d.transport.Exchange(ctx, gastro.NewStatusQuery(d.dialect))
		if err != nil {
			d.log.Debug("Status query failed", "err", err)
			return nil, err
		}
		codes, err = gastro.ParseStatus(resp)
		if err != nil {
			d.parseFailed(err)
			return nil, err
		}
		if d.dialect.HasFocuser() {
			if m, err := d.queryMoving(ctx); err == nil {
				moving = &m
			}
		}
	}

	d.statusValid = true
	d.applyStatus(codes, moving)
	return moving, nil
}

// SetBrightness sets the flat panel brightness.
func (d *Device) SetBrightness(ctx context.Context, value int) error {
	cmd, err := gastro.NewSetBrightness(d.dialect, value)
	if err != nil {
		return err
	}
	return d.writeValueLocked(ctx, cmd, value, PropBrightness)
}

// SetOpenAngle sets the angle the cover opens to.
func (d *Device) SetOpenAngle(ctx context.Context, angle int) error {
	cmd, err := gastro.NewSetOpenAngle(d.dialect, angle)
	if err != nil {
		return err
	}
	return d.writeValueLocked(ctx, cmd, angle, PropOpenAngle)
}

// SetClosedAngle sets the angle the cover closes to.
func (d *Device) SetClosedAngle(ctx context.Context, angle int) error {
	cmd, err := gastro.NewSetClosedAngle(d.dialect, angle)
	if err != nil {
		return err
	}
	return d.writeValueLocked(ctx, cmd, angle, PropClosedAngle)
}

// RefreshSettings re-reads brightness and both angles.
func (d *Device) RefreshSettings(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.connected {
		return ErrNotConnected
	}
	return errors.Join(
		d.readValue(ctx, gastro.NewGetBrightness(d.dialect), PropBrightness),
		d.readValue(ctx, gastro.NewGetOpenAngle(d.dialect), PropOpenAngle),
		d.readValue(ctx, gastro.NewGetClosedAngle(d.dialect), PropClosedAngle),
	)
}

func (d *Device) writeValueLocked(ctx context.Context, cmd gastro.Command, value int, prop Property) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.connected {
		return ErrNotConnected
	}
	if d.cfg.Simulate {
		d.storeValue(prop, value)
		return nil
	}
	return d.readValue(ctx, cmd, prop)
}

// readValue exchanges cmd and stores the echoed three-digit value. A
// malformed response leaves the stored value unchanged. Caller holds d.mu.
func (d *Device) readValue(ctx context.Context, cmd gastro.Command, prop Property) error {
	if d.cfg.Simulate {
		return nil
	}
	resp, err := d.transport.Exchange(ctx, cmd)
	if err != nil {
		d.log.Error("Exchange failed", "property", prop, "err", err)
		return err
	}
	v, err := gastro.ParseValue(resp)
	if err != nil {
		d.parseFailed(err)
		return err
	}
	d.storeValue(prop, v)
	return nil
}

// storeValue records a cap setting and publishes it when it changed.
func (d *Device) storeValue(prop Property, v int) {
	var field *int
	switch prop {
	case PropBrightness:
		field = &d.brightness
		d.metrics.brightness(v)
	case PropOpenAngle:
		field = &d.openAngle
	case PropClosedAngle:
		field = &d.closedAngle
	default:
		return
	}
	if *field == v {
		return
	}
	*field = v
	d.publish(Event{Kind: EventNumber, Property: prop, Value: float64(v)})
}

func (d *Device) readFirmware(ctx context.Context) error {
	resp, err := d.transport.Exchange(ctx, gastro.NewFirmwareQuery(d.dialect))
	if err != nil {
		return err
	}
	fw, err := gastro.ParseFirmware(resp)
	if err != nil {
		d.parseFailed(err)
		return err
	}
	d.setFirmware(fw)
	return nil
}

func (d *Device) setFirmware(fw string) {
	d.firmware = fw
	d.log.Info("Detected firmware", "version", fw)
	d.publish(Event{Kind: EventFirmware, Text: fw})
}

// Exchange sends an arbitrary command and returns the raw response. It
// bypasses the state machine and is meant for diagnostics.
func (d *Device) Exchange(ctx context.Context, cmd gastro.Command) (string, error) {
	if d.transport == nil {
		return "", fmt.Errorf("%w: no port in simulation", ErrUnsupported)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.transport.Exchange(ctx, cmd)
}

func (d *Device) parseFailed(err error) {
	d.stats.recordParseError()
	d.metrics.decodeError("parse")
	d.log.Error("Malformed response", "err", err)
}

func (d *Device) publish(e Event) {
	if d.sink == nil {
		return
	}
	if e.At.IsZero() {
		e.At = time.Now()
	}
	d.sink.Publish(e)
}

// State is a snapshot of everything the device knows.
type State struct {
	Connected   bool          `json:"connected"`
	Simulated   bool          `json:"simulated"`
	Dialect     string        `json:"dialect"`
	ProductID   uint16        `json:"product_id"`
	Firmware    string        `json:"firmware"`
	StatusValid bool          `json:"status_valid"`
	Status      Status        `json:"status"`
	Park        OpState       `json:"park"`
	Direction   Direction     `json:"direction"`
	Switch      ParkSwitch    `json:"switch"`
	LightOn     bool          `json:"light_on"`
	Brightness  int           `json:"brightness"`
	OpenAngle   int           `json:"open_angle"`
	ClosedAngle int           `json:"closed_angle"`
	Focuser     *FocuserState `json:"focuser,omitempty"`
}

// Snapshot returns the current state.
func (d *Device) Snapshot() State {
	d.mu.Lock()
	defer d.mu.Unlock()

	s := State{
		Connected:   d.connected,
		Simulated:   d.cfg.Simulate,
		Dialect:     d.dialect.String(),
		ProductID:   d.productID,
		Firmware:    d.firmware,
		StatusValid: d.statusValid,
		Status:      d.status,
		Park:        d.motion.state,
		Direction:   d.motion.direction,
		Switch:      d.motion.sw,
		LightOn:     d.lightOn,
		Brightness:  d.brightness,
		OpenAngle:   d.openAngle,
		ClosedAngle: d.closedAngle,
	}
	if d.dialect.HasFocuser() {
		f := d.focuser.FocuserState
		s.Focuser = &f
	}
	return s
}

// Dialect returns the wire dialect.
func (d *Device) Dialect() gastro.Dialect { return d.dialect }

// Statistics returns the link statistics.
func (d *Device) Statistics() *Statistics { return d.stats }
