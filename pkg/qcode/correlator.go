// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Mara Janssens, Fabwerk

package qcode

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// OverlapPolicy controls what Issue does when the same code already has
// an outstanding request.
type OverlapPolicy int

const (
	// OverlapReject refuses the new request. This is the default:
	// replacing a live deadline can hide a machine that has stopped
	// answering.
	OverlapReject OverlapPolicy = iota
	// OverlapReplace supersedes the pending entry with a fresh deadline.
	OverlapReplace
)

// ErrDuplicatePending is returned by Issue under OverlapReject when the
// code already has an outstanding request.
var ErrDuplicatePending = errors.New("request already pending")

// PendingRequest is an outstanding query awaiting its response.
type PendingRequest struct {
	Code     string
	IssuedAt time.Time
	Deadline time.Time
}

// EventKind classifies the outcome of observing a record or sweeping the
// pending table.
type EventKind int

const (
	// EventResolved pairs a query response with its pending request.
	EventResolved EventKind = iota
	// EventSpontaneous is an unsolicited message passing straight through.
	EventSpontaneous
	// EventOrphan is a query response with no pending request, or one
	// arriving after its request's deadline already passed.
	EventOrphan
	// EventMalformed is an untrusted frame, surfaced for diagnostics.
	EventMalformed
	// EventTimeout is a pending request whose deadline passed unanswered.
	EventTimeout
)

// Event is the correlator's verdict on one record or one expired request.
// Record is set for every kind except EventTimeout; Request is set for
// EventResolved and EventTimeout.
type Event struct {
	Kind    EventKind
	Record  Record
	Request *PendingRequest
}

// Correlator owns the pending-request table that pairs host queries with
// machine responses. For any single request, resolution and timeout are
// mutually exclusive: whichever condition occurs first wins, judged on
// the instants passed in rather than on scheduling jitter. All methods
// are safe for concurrent use.
type Correlator struct {
	mu      sync.Mutex
	pending map[string]*PendingRequest
	timeout time.Duration
	policy  OverlapPolicy
}

// NewCorrelator creates a correlator giving each request the supplied
// response timeout.
func NewCorrelator(timeout time.Duration, policy OverlapPolicy) *Correlator {
	return &Correlator{
		pending: make(map[string]*PendingRequest),
		timeout: timeout,
		policy:  policy,
	}
}

// Issue records an outstanding request for code at the given instant and
// returns the pending entry. Under OverlapReject, issuing a code that is
// already pending fails with ErrDuplicatePending.
func (c *Correlator) Issue(code string, at time.Time) (*PendingRequest, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.pending[code]; exists && c.policy == OverlapReject {
		return nil, fmt.Errorf("%w: %s", ErrDuplicatePending, code)
	}

	req := &PendingRequest{
		Code:     code,
		IssuedAt: at,
		Deadline: at.Add(c.timeout),
	}
	c.pending[code] = req
	return req, nil
}

// Observe classifies a decoded record against the pending table, using
// at as the arrival instant. Spontaneous and malformed records pass
// through without touching the table. A query response resolves its
// pending request unless the deadline already passed at arrival; a late
// or unmatched response is an orphan. An entry skipped as late stays in
// the table for SweepTimeouts to report.
func (c *Correlator) Observe(rec Record, at time.Time) Event {
	switch rec.Class {
	case Spontaneous:
		return Event{Kind: EventSpontaneous, Record: rec}
	case Malformed:
		return Event{Kind: EventMalformed, Record: rec}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	req, ok := c.pending[rec.Code]
	if !ok {
		return Event{Kind: EventOrphan, Record: rec}
	}
	if at.After(req.Deadline) {
		// The timeout won; this response is late
		return Event{Kind: EventOrphan, Record: rec}
	}

	delete(c.pending, rec.Code)
	return Event{Kind: EventResolved, Record: rec, Request: req}
}

// SweepTimeouts removes every pending request whose deadline lies before
// now and returns a timeout event per expired entry, ordered by code so
// repeated runs over the same state report identically. Call it on a
// short interval; expiry must not depend on further bytes arriving.
func (c *Correlator) SweepTimeouts(now time.Time) []Event {
	c.mu.Lock()
	defer c.mu.Unlock()

	var expired []*PendingRequest
	for code, req := range c.pending {
		if now.After(req.Deadline) {
			expired = append(expired, req)
			delete(c.pending, code)
		}
	}
	if len(expired) == 0 {
		return nil
	}
	sort.Slice(expired, func(i, j int) bool {
		return expired[i].Code < expired[j].Code
	})

	events := make([]Event, len(expired))
	for i, req := range expired {
		events[i] = Event{Kind: EventTimeout, Request: req}
	}
	return events
}

// Len returns the number of outstanding requests.
func (c *Correlator) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}
