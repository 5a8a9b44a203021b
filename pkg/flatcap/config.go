// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package flatcap

import (
	"errors"
	"fmt"
	"time"

	"github.com/Thermoquad/flatcap/pkg/gastro"
)

// Config holds the device behaviour knobs. Zero values are not usable;
// start from DefaultConfig.
type Config struct {
	// Dialect selects the wire dialect: "flatcap" or "focap".
	Dialect string `mapstructure:"dialect" yaml:"dialect"`

	// Simulate runs the state machine against a synthesized device.
	Simulate bool `mapstructure:"simulate" yaml:"simulate"`

	PollInterval time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	ParkTimeout  time.Duration `mapstructure:"park_timeout" yaml:"park_timeout"`

	// Retries is the number of extra attempts after a failed exchange.
	Retries      int           `mapstructure:"retries" yaml:"retries"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff" yaml:"retry_backoff"`

	// CommandGap is the minimum spacing between two frames on the wire.
	CommandGap time.Duration `mapstructure:"command_gap" yaml:"command_gap"`

	// PingWithoutRTS lets the handshake fall back to a plain ping when the
	// port cannot drop RTS (USB bridges, websocket links).
	PingWithoutRTS    bool          `mapstructure:"ping_without_rts" yaml:"ping_without_rts"`
	HandshakeAttempts int           `mapstructure:"handshake_attempts" yaml:"handshake_attempts"`
	HandshakeDelay    time.Duration `mapstructure:"handshake_delay" yaml:"handshake_delay"`

	// Focuser publication thresholds.
	PositionThreshold    float64 `mapstructure:"position_threshold" yaml:"position_threshold"`
	TemperatureThreshold float64 `mapstructure:"temperature_threshold" yaml:"temperature_threshold"`
	MaxPosition          uint32  `mapstructure:"max_position" yaml:"max_position"`
}

// DefaultConfig returns the settings the Gastro firmware is tuned for.
func DefaultConfig() Config {
	return Config{
		Dialect:              gastro.DialectFlatcap.String(),
		PollInterval:         500 * time.Millisecond,
		ParkTimeout:          30 * time.Second,
		Retries:              3,
		RetryBackoff:         50 * time.Millisecond,
		CommandGap:           0,
		PingWithoutRTS:       true,
		HandshakeAttempts:    3,
		HandshakeDelay:       time.Second,
		PositionThreshold:    5,
		TemperatureThreshold: 0.5,
		MaxPosition:          100000,
	}
}

// Validate checks configuration correctness. It does not mutate the config.
func (c Config) Validate() error {
	var errs []error

	if _, err := gastro.ParseDialect(c.Dialect); err != nil {
		errs = append(errs, err)
	}
	if c.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("poll_interval must be positive, got %s", c.PollInterval))
	}
	if c.ParkTimeout <= 0 {
		errs = append(errs, fmt.Errorf("park_timeout must be positive, got %s", c.ParkTimeout))
	}
	if c.Retries < 0 {
		errs = append(errs, fmt.Errorf("retries must not be negative, got %d", c.Retries))
	}
	if c.RetryBackoff < 0 || c.CommandGap < 0 || c.HandshakeDelay < 0 {
		errs = append(errs, errors.New("retry_backoff, command_gap and handshake_delay must not be negative"))
	}
	if c.HandshakeAttempts < 1 {
		errs = append(errs, fmt.Errorf("handshake_attempts must be at least 1, got %d", c.HandshakeAttempts))
	}
	if c.PositionThreshold < 0 || c.TemperatureThreshold < 0 {
		errs = append(errs, errors.New("focuser thresholds must not be negative"))
	}
	if c.MaxPosition == 0 {
		errs = append(errs, errors.New("max_position must be positive"))
	}

	return errors.Join(errs...)
}

func (c Config) dialect() gastro.Dialect {
	d, _ := gastro.ParseDialect(c.Dialect)
	return d
}
