// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package flatcap

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// Statistics tracks link exchange counters and error rates.
// Safe for concurrent use.
type Statistics struct {
	mu sync.Mutex

	startTime time.Time

	// Counters
	totalExchanges  uint64
	okExchanges     uint64
	failedExchanges uint64
	retries         uint64
	parseErrors     uint64
	mismatches      uint64

	lastLatency  time.Duration
	totalLatency time.Duration
}

// StatisticsSnapshot is a point-in-time copy of Statistics.
type StatisticsSnapshot struct {
	Elapsed         time.Duration `json:"elapsed"`
	TotalExchanges  uint64        `json:"total_exchanges"`
	OKExchanges     uint64        `json:"ok_exchanges"`
	FailedExchanges uint64        `json:"failed_exchanges"`
	Retries         uint64        `json:"retries"`
	ParseErrors     uint64        `json:"parse_errors"`
	Mismatches      uint64        `json:"mismatches"`
	LastLatency     time.Duration `json:"last_latency"`
	AvgLatency      time.Duration `json:"avg_latency"`

	// Rates (calculated)
	ExchangeRate float64 `json:"exchange_rate"` // exchanges/sec
	ErrorRate    float64 `json:"error_rate"`    // errors/sec
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	return &Statistics{startTime: time.Now()}
}

func (s *Statistics) recordExchange(latency time.Duration, err error) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.totalExchanges++
	if err != nil {
		s.failedExchanges++
		return
	}
	s.okExchanges++
	s.lastLatency = latency
	s.totalLatency += latency
}

func (s *Statistics) recordRetry() {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.retries++
	s.mu.Unlock()
}

func (s *Statistics) recordParseError() {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.parseErrors++
	s.mu.Unlock()
}

func (s *Statistics) recordMismatch() {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.mismatches++
	s.mu.Unlock()
}

// Snapshot returns the counters with rates calculated.
func (s *Statistics) Snapshot() StatisticsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := StatisticsSnapshot{
		Elapsed:         time.Since(s.startTime),
		TotalExchanges:  s.totalExchanges,
		OKExchanges:     s.okExchanges,
		FailedExchanges: s.failedExchanges,
		Retries:         s.retries,
		ParseErrors:     s.parseErrors,
		Mismatches:      s.mismatches,
		LastLatency:     s.lastLatency,
	}
	if s.okExchanges > 0 {
		snap.AvgLatency = s.totalLatency / time.Duration(s.okExchanges)
	}
	if elapsed := snap.Elapsed.Seconds(); elapsed > 0 {
		snap.ExchangeRate = float64(s.totalExchanges) / elapsed
		snap.ErrorRate = float64(s.failedExchanges+s.parseErrors+s.mismatches) / elapsed
	}
	return snap
}

// String returns a formatted statistics summary
func (s *Statistics) String() string {
	snap := s.Snapshot()

	percent := func(n uint64) float64 {
		if snap.TotalExchanges == 0 {
			return 0
		}
		return float64(n) * 100.0 / float64(snap.TotalExchanges)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "=== Statistics (%.0f seconds) ===\n", snap.Elapsed.Seconds())
	fmt.Fprintf(&b, "Exchanges:       %8d\n", snap.TotalExchanges)
	fmt.Fprintf(&b, "Answered:        %8d (%.1f%%)\n", snap.OKExchanges, percent(snap.OKExchanges))
	if snap.FailedExchanges > 0 {
		fmt.Fprintf(&b, "No Response:     %8d (%.1f%%)\n", snap.FailedExchanges, percent(snap.FailedExchanges))
	}
	if snap.Retries > 0 {
		fmt.Fprintf(&b, "Retries:         %8d\n", snap.Retries)
	}
	if snap.ParseErrors > 0 {
		fmt.Fprintf(&b, "Parse Errors:    %8d\n", snap.ParseErrors)
	}
	if snap.Mismatches > 0 {
		fmt.Fprintf(&b, "Ack Mismatches:  %8d\n", snap.Mismatches)
	}
	fmt.Fprintf(&b, "Avg Latency:     %8s\n", snap.AvgLatency.Round(time.Microsecond))
	fmt.Fprintf(&b, "Exchange Rate:   %8.1f /sec\n", snap.ExchangeRate)
	fmt.Fprintf(&b, "Error Rate:      %8.1f errors/sec\n", snap.ErrorRate)
	b.WriteString("================================\n")
	return b.String()
}

// Reset resets all statistics counters
func (s *Statistics) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.startTime = time.Now()
	s.totalExchanges = 0
	s.okExchanges = 0
	s.failedExchanges = 0
	s.retries = 0
	s.parseErrors = 0
	s.mismatches = 0
	s.lastLatency = 0
	s.totalLatency = 0
}
