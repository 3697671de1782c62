// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Mara Janssens, Fabwerk

package qcode

import (
	"bytes"
	"testing"
)

// ============================================================
// Encoder Tests
// ============================================================

func TestEncodeRequest(t *testing.T) {
	req := EncodeRequest("Q100")

	if !bytes.Equal(req, []byte("Q100\n")) {
		t.Errorf("Expected bare code plus LF, got %q", req)
	}
}

func TestEncodeResponse_WireFormat(t *testing.T) {
	frame := EncodeResponse("Q100", "CNC001234")

	expected := []byte("\x02Q100,CNC001234\x17\r\n>")
	if !bytes.Equal(frame, expected) {
		t.Errorf("Wire format mismatch:\n  got:  %q\n  want: %q", frame, expected)
	}

	if frame[0] != StartByte {
		t.Errorf("Expected StartByte first, got 0x%02X", frame[0])
	}
	if frame[len(frame)-1] != PromptByte {
		t.Errorf("Expected prompt last, got 0x%02X", frame[len(frame)-1])
	}
}

func TestEncodeResponse_RoundTrip(t *testing.T) {
	tests := []struct {
		code  string
		value string
		class Classification
	}{
		{"Q100", "CNC001234", QueryResponse},
		{"Q104", "MEM", QueryResponse},
		{"Q500", "O1234,READY", QueryResponse},
		{"Q999", "ERROR:UNKNOWN_CODE", QueryResponse},
		{"SPONT_TEMPERATURE", "23.5", Spontaneous},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			e := NewExtractor()
			frames, dropped := e.Feed(EncodeResponse(tt.code, tt.value))

			if len(frames) != 1 {
				t.Fatalf("Expected 1 frame, got %d", len(frames))
			}
			if dropped != 0 {
				t.Errorf("Expected 0 dropped bytes, got %d", dropped)
			}

			rec := Decode(frames[0])
			if rec.Class != tt.class {
				t.Errorf("Expected class %v, got %v", tt.class, rec.Class)
			}
			if rec.Code != tt.code {
				t.Errorf("Expected code %q, got %q", tt.code, rec.Code)
			}
			if rec.Value != tt.value {
				t.Errorf("Expected value %q, got %q", tt.value, rec.Value)
			}
		})
	}
}
