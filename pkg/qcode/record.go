// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Mara Janssens, Fabwerk

package qcode

import (
	"strings"
	"time"
)

// Classification identifies what kind of frame a Record was decoded from.
type Classification int

const (
	// QueryResponse is an answer to a host query: code "Q" plus exactly
	// three digits.
	QueryResponse Classification = iota
	// Spontaneous is an unsolicited machine message (SPONT_* code).
	Spontaneous
	// Malformed is a frame whose code token fits neither form. The code
	// cannot be trusted and is not carried on the record.
	Malformed
)

// Record is the decoded content of one frame.
type Record struct {
	Class      Classification
	Code       string // query code or spontaneous tag; empty for Malformed
	Value      string
	CapturedAt time.Time
	Raw        []byte // original frame bytes, framing included
}

// IsQueryCode reports whether s is a well-formed query code: 'Q' followed
// by exactly three ASCII digits.
func IsQueryCode(s string) bool {
	if len(s) != 4 || s[0] != 'Q' {
		return false
	}
	for i := 1; i < 4; i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// IsSpontaneousTag reports whether s carries the unsolicited-message
// prefix with a non-empty remainder.
func IsSpontaneousTag(s string) bool {
	return len(s) > len(SpontaneousPrefix) && strings.HasPrefix(s, SpontaneousPrefix)
}

// Classify applies the code-token rules. Codes that are neither query
// responses nor spontaneous tags classify as Malformed.
func Classify(code string) Classification {
	switch {
	case IsQueryCode(code):
		return QueryResponse
	case IsSpontaneousTag(code):
		return Spontaneous
	default:
		return Malformed
	}
}
