// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package flatcap

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the Prometheus collectors a Device updates. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	Exchanges        *prometheus.CounterVec // labels: op, result=ok|error
	ExchangeRetries  prometheus.Counter
	ExchangeDuration prometheus.Histogram
	DecodeErrors     *prometheus.CounterVec // labels: kind=parse|mismatch
	MotionRetries    *prometheus.CounterVec // labels: direction, reason
	CoverState       prometheus.Gauge
	LightOn          prometheus.Gauge
	Brightness       prometheus.Gauge
	FocuserPosition  prometheus.Gauge
	Temperature      prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Exchanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gastro_exchanges_total",
			Help: "Command exchanges by opcode and result.",
		}, []string{"op", "result"}),
		ExchangeRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gastro_exchange_retries_total",
			Help: "Exchange attempts repeated after a failure.",
		}),
		ExchangeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "gastro_exchange_duration_seconds",
			Help:    "Time from first write to accepted response.",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 3, 10},
		}),
		DecodeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gastro_decode_errors_total",
			Help: "Responses that could not be decoded or did not match.",
		}, []string{"kind"}),
		MotionRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gastro_motion_retries_total",
			Help: "Park and unpark commands re-issued automatically.",
		}, []string{"direction", "reason"}),
		CoverState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gastro_cover_state",
			Help: "Last reported cover code (0 moving, 1 closed, 2 open, 3 timed out).",
		}),
		LightOn: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gastro_light_on",
			Help: "1 when the flat panel light is on.",
		}),
		Brightness: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gastro_brightness",
			Help: "Flat panel brightness.",
		}),
		FocuserPosition: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gastro_focuser_position_ticks",
			Help: "Last reported focuser position.",
		}),
		Temperature: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gastro_focuser_temperature_celsius",
			Help: "Last reported focuser temperature.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Exchanges, m.ExchangeRetries, m.ExchangeDuration, m.DecodeErrors,
			m.MotionRetries, m.CoverState, m.LightOn, m.Brightness, m.FocuserPosition, m.Temperature)
	}
	return m
}

func (m *Metrics) observeExchange(op string, d time.Duration, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.Exchanges.WithLabelValues(op, "error").Inc()
		return
	}
	m.Exchanges.WithLabelValues(op, "ok").Inc()
	m.ExchangeDuration.Observe(d.Seconds())
}

func (m *Metrics) retry() {
	if m != nil {
		m.ExchangeRetries.Inc()
	}
}

func (m *Metrics) decodeError(kind string) {
	if m != nil {
		m.DecodeErrors.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) motionRetry(dir Direction, reason string) {
	if m != nil {
		m.MotionRetries.WithLabelValues(dir.String(), reason).Inc()
	}
}

func (m *Metrics) cover(s uint8) {
	if m != nil {
		m.CoverState.Set(float64(s))
	}
}

func (m *Metrics) light(on bool) {
	if m == nil {
		return
	}
	if on {
		m.LightOn.Set(1)
	} else {
		m.LightOn.Set(0)
	}
}

func (m *Metrics) brightness(v int) {
	if m != nil {
		m.Brightness.Set(float64(v))
	}
}

func (m *Metrics) focuser(position int32, temperature float64) {
	if m != nil {
		m.FocuserPosition.Set(float64(position))
		m.Temperature.Set(temperature)
	}
}
