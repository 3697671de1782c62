// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Mara Janssens, Fabwerk

package bridge

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Fabwerk/qbridge/pkg/qcode"
)

// Conn is the machine-side byte transport the session drives. A Close
// from another goroutine must unblock a pending Read.
type Conn interface {
	io.Reader
	io.Writer
	io.Closer
}

// DialFunc opens a replacement transport after a connection loss. A nil
// DialFunc makes a lost connection fatal for the read loop.
type DialFunc func() (Conn, error)

// Reconnect backoff bounds, doubling between attempts
const (
	reconnectInitialDelay = 1 * time.Second
	reconnectMaxDelay     = 30 * time.Second
)

// Session bridges one Q-code serial stream to the message bus. It owns
// two loops: the read loop lifts frames off the transport, decodes and
// correlates them; the schedule loop issues catalog queries and sweeps
// request timeouts. Both report through handleEvent, so every outcome
// is published, journaled and counted exactly once.
type Session struct {
	cfg     Config
	log     zerolog.Logger
	pub     Publisher
	metrics *Metrics
	journal *Journal
	dial    DialFunc

	mu   sync.RWMutex
	conn Conn

	extractor  *qcode.Extractor
	correlator *qcode.Correlator

	statsMu sync.Mutex
	stats   *qcode.Statistics
}

// NewSession assembles a bridging session over an open transport.
// metrics and journal may be nil to disable those concerns.
func NewSession(cfg Config, conn Conn, dial DialFunc, pub Publisher, metrics *Metrics, journal *Journal, log zerolog.Logger) *Session {
	return &Session{
		cfg:        cfg,
		log:        log,
		pub:        pub,
		metrics:    metrics,
		journal:    journal,
		dial:       dial,
		conn:       conn,
		extractor:  qcode.NewExtractor(),
		correlator: qcode.NewCorrelator(cfg.Bridge.RequestTimeout.Duration, cfg.Bridge.Policy()),
		stats:      qcode.NewStatistics(),
	}
}

// Run drives the session until ctx is canceled or the transport is lost
// with no way to redial.
func (s *Session) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.log.Info().
		Str("prefix", s.cfg.MQTT.TopicPrefix).
		Int("codes", len(s.cfg.Bridge.Codes)).
		Dur("round_interval", s.cfg.Bridge.RoundInterval.Duration).
		Dur("request_timeout", s.cfg.Bridge.RequestTimeout.Duration).
		Msg("bridge session starting")

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		defer cancel()
		s.readLoop(ctx)
	}()
	go func() {
		defer wg.Done()
		s.scheduleLoop(ctx)
	}()

	<-ctx.Done()

	// Unblock the in-flight Read so the read loop can exit
	if conn := s.getConn(); conn != nil {
		conn.Close()
	}
	wg.Wait()

	s.logSummary()
	s.log.Info().Msg("bridge session stopped")
	return nil
}

func (s *Session) getConn() Conn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conn
}

func (s *Session) setConn(conn Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conn = conn
}

// readLoop pulls transport bytes through extraction, decoding and
// correlation until ctx is canceled, redialing on connection loss.
func (s *Session) readLoop(ctx context.Context) {
	buf := make([]byte, 256)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		conn := s.getConn()
		if conn == nil {
			if !s.redial(ctx) {
				return
			}
			continue
		}

		n, err := conn.Read(buf)
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
			}

			s.log.Warn().Err(err).Msg("transport read failed")
			conn.Close()
			s.setConn(nil)
			if !s.redial(ctx) {
				return
			}
			continue
		}
		if n == 0 {
			continue
		}

		s.handleBytes(buf[:n])
	}
}

// handleBytes runs one read's worth of bytes through the pipeline.
func (s *Session) handleBytes(data []byte) {
	frames, dropped := s.extractor.Feed(data)

	if dropped > 0 {
		s.statsMu.Lock()
		s.stats.AddDropped(dropped)
		s.statsMu.Unlock()
		if s.metrics != nil {
			s.metrics.BytesDropped.Add(float64(dropped))
		}
		s.log.Debug().Int("bytes", dropped).Msg("discarded unframed bytes")
	}

	for _, frame := range frames {
		rec := qcode.Decode(frame)

		s.statsMu.Lock()
		s.stats.ObserveRecord(rec)
		s.statsMu.Unlock()
		if s.metrics != nil {
			s.metrics.FramesTotal.Inc()
		}

		s.handleEvent(s.correlator.Observe(rec, rec.CapturedAt))
	}
}

// handleEvent publishes, journals, logs and counts one correlation
// event. Publish failures are reported and counted; the session keeps
// running.
func (s *Session) handleEvent(ev qcode.Event) {
	s.statsMu.Lock()
	s.stats.ObserveEvent(ev)
	s.statsMu.Unlock()

	switch ev.Kind {
	case qcode.EventResolved:
		if s.metrics != nil {
			s.metrics.Resolved.Inc()
			s.metrics.Pending.Set(float64(s.correlator.Len()))
			s.metrics.ResponseLatency.Observe(ev.Record.CapturedAt.Sub(ev.Request.IssuedAt).Seconds())
		}
		s.log.Debug().Str("code", ev.Record.Code).Str("value", ev.Record.Value).Msg("query resolved")

	case qcode.EventSpontaneous:
		if s.metrics != nil {
			s.metrics.SpontaneousMsgs.Inc()
		}
		s.log.Debug().Str("tag", ev.Record.Code).Str("value", ev.Record.Value).Msg("spontaneous message")

	case qcode.EventOrphan:
		if s.metrics != nil {
			s.metrics.Orphans.Inc()
		}
		s.log.Warn().Str("code", ev.Record.Code).Msg("orphan response")

	case qcode.EventMalformed:
		if s.metrics != nil {
			s.metrics.Malformed.Inc()
		}
		s.log.Debug().Bytes("raw", ev.Record.Raw).Msg("malformed frame")

	case qcode.EventTimeout:
		if s.metrics != nil {
			s.metrics.Timeouts.Inc()
			s.metrics.Pending.Set(float64(s.correlator.Len()))
		}
		s.log.Warn().Str("code", ev.Request.Code).Time("deadline", ev.Request.Deadline).Msg("request timed out")
	}

	msg := MapEvent(ev, s.cfg.MQTT.TopicPrefix)

	if s.journal != nil {
		if err := s.journal.Append(msg.Topic, msg.Payload, time.Now()); err != nil {
			s.log.Error().Err(err).Msg("journal append failed")
		}
	}

	if err := s.pub.Publish(msg.Topic, msg.Payload); err != nil {
		if s.metrics != nil {
			s.metrics.PublishErrors.Inc()
		}
		s.log.Error().Err(err).Str("topic", msg.Topic).Msg("publish failed")
		return
	}
	if s.metrics != nil {
		s.metrics.Published.Inc()
	}
}

// scheduleLoop walks the configured codes with a gap between each, rests
// between rounds and sweeps expired requests on a short interval so
// timeouts fire even when the line goes quiet.
func (s *Session) scheduleLoop(ctx context.Context) {
	sweep := time.NewTicker(s.cfg.Bridge.SweepInterval.Duration)
	defer sweep.Stop()

	// First query fires immediately
	next := time.NewTimer(0)
	defer next.Stop()

	idx := 0
	for {
		select {
		case <-ctx.Done():
			return

		case now := <-sweep.C:
			for _, ev := range s.correlator.SweepTimeouts(now) {
				s.handleEvent(ev)
			}

		case <-next.C:
			s.issue(s.cfg.Bridge.Codes[idx])

			idx++
			if idx >= len(s.cfg.Bridge.Codes) {
				idx = 0
				s.logSummary()
				next.Reset(s.cfg.Bridge.RoundInterval.Duration)
			} else {
				next.Reset(s.cfg.Bridge.CodeGap.Duration)
			}
		}
	}
}

// issue records a pending entry, then writes the request. A write
// failure leaves the entry to expire through the sweep: the machine was
// never asked, and the timeout diagnostic reports exactly that.
func (s *Session) issue(code string) {
	req, err := s.correlator.Issue(code, time.Now())
	if err != nil {
		if s.metrics != nil {
			s.metrics.Duplicates.Inc()
		}
		s.log.Warn().Str("code", code).Err(err).Msg("query skipped")
		return
	}
	if s.metrics != nil {
		s.metrics.Pending.Set(float64(s.correlator.Len()))
	}

	conn := s.getConn()
	if conn == nil {
		s.log.Warn().Str("code", code).Msg("no transport, query left to expire")
		return
	}
	if _, err := conn.Write(qcode.EncodeRequest(code)); err != nil {
		s.log.Warn().Str("code", code).Err(err).Msg("request write failed, query left to expire")
		return
	}
	s.log.Debug().Str("code", code).Time("deadline", req.Deadline).Msg("query issued")
}

// redial replaces a lost transport, doubling the delay between attempts
// up to the cap. Returns false when ctx is canceled while waiting or no
// dialer was configured.
func (s *Session) redial(ctx context.Context) bool {
	if s.dial == nil {
		s.log.Error().Msg("transport lost with no redial configured")
		return false
	}

	// A stale partial from the dead connection must not prefix the new
	// stream
	if stale := s.extractor.PendingBytes(); stale > 0 {
		s.log.Debug().Int("bytes", stale).Msg("dropping stale partial frame")
		s.extractor.Reset()
	}

	delay := reconnectInitialDelay
	for {
		s.log.Info().Dur("delay", delay).Msg("reconnecting transport")

		select {
		case <-ctx.Done():
			return false
		case <-time.After(delay):
		}

		conn, err := s.dial()
		if err == nil {
			s.setConn(conn)
			if s.metrics != nil {
				s.metrics.Reconnects.Inc()
			}
			s.log.Info().Msg("transport reconnected")
			return true
		}

		s.log.Warn().Err(err).Msg("reconnect failed")
		delay *= 2
		if delay > reconnectMaxDelay {
			delay = reconnectMaxDelay
		}
	}
}

// logSummary logs the running counters, called at round boundaries and
// on shutdown.
func (s *Session) logSummary() {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()

	s.log.Info().
		Uint64("frames", s.stats.TotalFrames).
		Uint64("resolved", s.stats.Resolved).
		Uint64("spontaneous", s.stats.SpontaneousMsgs).
		Uint64("orphans", s.stats.Orphans).
		Uint64("timeouts", s.stats.Timeouts).
		Uint64("malformed", s.stats.MalformedFrames).
		Uint64("dropped_bytes", s.stats.DroppedBytes).
		Msg("session counters")
}
