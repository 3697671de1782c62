// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Mara Janssens, Fabwerk

package qcode

import (
	"fmt"
	"time"
)

// Statistics tracks frame and correlation counters for one session.
// Not safe for concurrent use; guard it externally when loops share it.
type Statistics struct {
	StartTime      time.Time
	LastUpdateTime time.Time

	// Frame counters
	TotalFrames     uint64
	QueryResponses  uint64
	SpontaneousMsgs uint64
	MalformedFrames uint64
	DroppedBytes    uint64

	// Correlation counters
	Resolved uint64
	Orphans  uint64
	Timeouts uint64

	// Calculated rates
	FrameRate float64 // frames per second
	ErrorRate float64 // malformed + orphans + timeouts per second
}

// NewStatistics creates a statistics tracker starting now.
func NewStatistics() *Statistics {
	now := time.Now()
	return &Statistics{
		StartTime:      now,
		LastUpdateTime: now,
	}
}

// ObserveRecord counts one decoded record.
func (s *Statistics) ObserveRecord(rec Record) {
	s.TotalFrames++
	switch rec.Class {
	case QueryResponse:
		s.QueryResponses++
	case Spontaneous:
		s.SpontaneousMsgs++
	case Malformed:
		s.MalformedFrames++
	}
	s.LastUpdateTime = time.Now()
}

// ObserveEvent counts one correlation event.
func (s *Statistics) ObserveEvent(ev Event) {
	switch ev.Kind {
	case EventResolved:
		s.Resolved++
	case EventOrphan:
		s.Orphans++
	case EventTimeout:
		s.Timeouts++
	}
}

// AddDropped counts bytes the extractor discarded.
func (s *Statistics) AddDropped(n int) {
	if n > 0 {
		s.DroppedBytes += uint64(n)
	}
}

// CalculateRates updates the per-second rates from the elapsed time.
func (s *Statistics) CalculateRates() {
	elapsed := time.Since(s.StartTime).Seconds()
	if elapsed <= 0 {
		return
	}
	s.FrameRate = float64(s.TotalFrames) / elapsed
	s.ErrorRate = float64(s.MalformedFrames+s.Orphans+s.Timeouts) / elapsed
}

// String formats the statistics as a multi-line report.
func (s *Statistics) String() string {
	s.CalculateRates()
	elapsed := time.Since(s.StartTime).Seconds()

	result := fmt.Sprintf("=== Statistics (%.0f seconds) ===\n", elapsed)
	result += fmt.Sprintf("Frames:      %d total (%.1f/sec)\n", s.TotalFrames, s.FrameRate)
	result += fmt.Sprintf("  Responses:   %d\n", s.QueryResponses)
	result += fmt.Sprintf("  Spontaneous: %d\n", s.SpontaneousMsgs)
	result += fmt.Sprintf("  Malformed:   %d\n", s.MalformedFrames)
	result += fmt.Sprintf("Correlation:\n")
	result += fmt.Sprintf("  Resolved:    %d\n", s.Resolved)
	result += fmt.Sprintf("  Orphans:     %d\n", s.Orphans)
	result += fmt.Sprintf("  Timeouts:    %d\n", s.Timeouts)
	result += fmt.Sprintf("Dropped bytes: %d\n", s.DroppedBytes)

	if s.TotalFrames > 0 {
		pct := float64(s.MalformedFrames) / float64(s.TotalFrames) * 100
		result += fmt.Sprintf("Malformed rate: %.2f%%\n", pct)
	}

	return result
}

// Reset zeroes every counter and restarts the clock.
func (s *Statistics) Reset() {
	*s = Statistics{
		StartTime:      time.Now(),
		LastUpdateTime: time.Now(),
	}
}
