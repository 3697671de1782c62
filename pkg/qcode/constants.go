// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Mara Janssens, Fabwerk

// Package qcode implements the Q-code serial protocol spoken by Fabwerk
// CNC controls.
//
// The control answers one query at a time: the host sends a bare code
// ("Q100\n") and the machine replies with a framed CSV response. The
// machine may also emit unsolicited SPONT_* frames at any moment, in the
// middle of a request/response exchange included. This package provides
// frame extraction, decoding, request/response correlation and the wire
// encoders for both directions.
package qcode

// Protocol framing bytes
const (
	StartByte  = 0x02 // STX, opens every machine frame
	EndByte    = 0x17 // ETB, closes the frame body
	ByteCR     = 0x0D
	ByteLF     = 0x0A
	PromptByte = 0x3E // '>' ready prompt trailing a response
)

// RequestTerminator ends an outgoing query ("Q100\n")
const RequestTerminator = 0x0A

// FieldSeparator splits the frame body into code and value
const FieldSeparator = ','

// SpontaneousPrefix marks unsolicited machine messages (SPONT_STATUS,
// SPONT_ALARM, ...). The vocabulary is open ended; anything carrying the
// prefix is treated as spontaneous.
const SpontaneousPrefix = "SPONT_"

// MaxFrameSize caps the bytes buffered while waiting for an EndByte.
// A partial frame growing past this is dropped as line corruption.
const MaxFrameSize = 512

// QueryCode is one entry of the Q-code catalog.
type QueryCode struct {
	Code string
	Name string
}

// Catalog lists the query codes understood by Fabwerk CNC controls, in
// polling order.
var Catalog = []QueryCode{
	{"Q100", "Machine Serial Number"},
	{"Q101", "Control Software Version"},
	{"Q102", "Machine Model Number"},
	{"Q104", "Mode"},
	{"Q200", "Tool Changes (Total)"},
	{"Q201", "Tool Number in use"},
	{"Q300", "Power-on Time (Total)"},
	{"Q301", "Motion Time (Total)"},
	{"Q303", "Last Cycle Time"},
	{"Q304", "Previous Cycle Time"},
	{"Q402", "M30 Parts Counter #1"},
	{"Q403", "M30 Parts Counter #2"},
	{"Q500", "Three-in-one (Program, Oxxxxx, Status)"},
}

// CatalogCodes returns the catalog codes in polling order.
func CatalogCodes() []string {
	codes := make([]string, len(Catalog))
	for i, qc := range Catalog {
		codes[i] = qc.Code
	}
	return codes
}

// CodeName returns the catalog display name for a code, or "" when the
// code is not in the catalog.
func CodeName(code string) string {
	for _, qc := range Catalog {
		if qc.Code == code {
			return qc.Name
		}
	}
	return ""
}
