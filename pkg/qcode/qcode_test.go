// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Mara Janssens, Fabwerk

package qcode

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

// ============================================================
// Extractor Tests
// ============================================================

func TestExtractor_SingleFrame(t *testing.T) {
	e := NewExtractor()

	frames, dropped := e.Feed([]byte("\x02Q100,CNC001234\x17\r\n>"))

	if len(frames) != 1 {
		t.Fatalf("Expected 1 frame, got %d", len(frames))
	}
	if dropped != 0 {
		t.Errorf("Expected 0 dropped bytes, got %d", dropped)
	}
	if !bytes.Equal(frames[0].Raw, []byte("\x02Q100,CNC001234\x17\r\n>")) {
		t.Errorf("Frame bytes altered: %q", frames[0].Raw)
	}
	if frames[0].ExtractedAt.IsZero() {
		t.Error("Expected extraction timestamp to be set")
	}
	if e.PendingBytes() != 0 {
		t.Errorf("Expected empty buffer, got %d pending bytes", e.PendingBytes())
	}
}

func TestExtractor_Resynchronization(t *testing.T) {
	e := NewExtractor()

	// Garbage before the frame start must be discarded, not corrupt the frame
	frames, dropped := e.Feed([]byte("NOISE\x02Q104,MEM\x17\r\n>"))

	if len(frames) != 1 {
		t.Fatalf("Expected 1 frame after resync, got %d", len(frames))
	}
	if dropped != 5 {
		t.Errorf("Expected 5 dropped noise bytes, got %d", dropped)
	}
	if !bytes.Equal(frames[0].Raw, []byte("\x02Q104,MEM\x17\r\n>")) {
		t.Errorf("Unexpected frame after resync: %q", frames[0].Raw)
	}
}

func TestExtractor_GarbageOnly(t *testing.T) {
	e := NewExtractor()

	frames, dropped := e.Feed([]byte("hello world"))

	if len(frames) != 0 {
		t.Fatalf("Expected no frames from garbage, got %d", len(frames))
	}
	if dropped != 11 {
		t.Errorf("Expected 11 dropped bytes, got %d", dropped)
	}
	if e.PendingBytes() != 0 {
		t.Error("Garbage with no frame start should not stay buffered")
	}
}

func TestExtractor_MultipleFramesOneRead(t *testing.T) {
	e := NewExtractor()

	stream := []byte("\x02Q100,CNC001234\x17\r\n>\x02SPONT_STATUS,RUNNING\x17\r\n>")
	frames, dropped := e.Feed(stream)

	if len(frames) != 2 {
		t.Fatalf("Expected 2 frames, got %d", len(frames))
	}
	if dropped != 0 {
		t.Errorf("Expected 0 dropped bytes, got %d", dropped)
	}
	if !bytes.Equal(frames[0].Raw, []byte("\x02Q100,CNC001234\x17\r\n>")) {
		t.Errorf("First frame wrong: %q", frames[0].Raw)
	}
	if !bytes.Equal(frames[1].Raw, []byte("\x02SPONT_STATUS,RUNNING\x17\r\n>")) {
		t.Errorf("Second frame wrong: %q", frames[1].Raw)
	}
}

func TestExtractor_PartialThenComplete(t *testing.T) {
	e := NewExtractor()

	frames, _ := e.Feed([]byte("\x02Q100,CNC"))
	if len(frames) != 0 {
		t.Fatalf("Partial frame must not be emitted, got %d frames", len(frames))
	}
	if e.PendingBytes() == 0 {
		t.Error("Partial frame should stay buffered")
	}

	frames, dropped := e.Feed([]byte("001234\x17\r\n>"))
	if len(frames) != 1 {
		t.Fatalf("Expected 1 frame after completion, got %d", len(frames))
	}
	if dropped != 0 {
		t.Errorf("Expected 0 dropped bytes, got %d", dropped)
	}
	if !bytes.Equal(frames[0].Raw, []byte("\x02Q100,CNC001234\x17\r\n>")) {
		t.Errorf("Reassembled frame wrong: %q", frames[0].Raw)
	}
}

func TestExtractor_FreshStartSupersedesPartial(t *testing.T) {
	e := NewExtractor()

	// A new frame start while a partial is buffered discards the partial
	frames, dropped := e.Feed([]byte("\x02Q1\x02Q100,X\x17\r\n>"))

	if len(frames) != 1 {
		t.Fatalf("Expected 1 frame, got %d", len(frames))
	}
	if !bytes.Equal(frames[0].Raw, []byte("\x02Q100,X\x17\r\n>")) {
		t.Errorf("Expected the fresh frame to win, got %q", frames[0].Raw)
	}
	if dropped != 3 {
		t.Errorf("Expected 3 dropped bytes from the truncated partial, got %d", dropped)
	}
}

func TestExtractor_HoldsTailUntilDecided(t *testing.T) {
	e := NewExtractor()

	// Frame end seen but the prompt may still be in flight
	frames, _ := e.Feed([]byte("\x02Q100,X\x17\r\n"))
	if len(frames) != 0 {
		t.Fatalf("Frame must be held while the tail is undecided, got %d", len(frames))
	}

	frames, _ = e.Feed([]byte(">"))
	if len(frames) != 1 {
		t.Fatalf("Expected held frame after prompt arrived, got %d", len(frames))
	}
	if !bytes.Equal(frames[0].Raw, []byte("\x02Q100,X\x17\r\n>")) {
		t.Errorf("Held frame wrong: %q", frames[0].Raw)
	}
}

func TestExtractor_TailStopsAtNextFrame(t *testing.T) {
	e := NewExtractor()

	// No prompt between frames: the next frame start ends the first tail
	frames, dropped := e.Feed([]byte("\x02Q100,A\x17\r\n\x02Q101,B\x17\r\n>"))

	if len(frames) != 2 {
		t.Fatalf("Expected 2 frames, got %d", len(frames))
	}
	if dropped != 0 {
		t.Errorf("Expected 0 dropped bytes, got %d", dropped)
	}
	if !bytes.Equal(frames[0].Raw, []byte("\x02Q100,A\x17\r\n")) {
		t.Errorf("First frame should end without prompt: %q", frames[0].Raw)
	}
	if !bytes.Equal(frames[1].Raw, []byte("\x02Q101,B\x17\r\n>")) {
		t.Errorf("Second frame wrong: %q", frames[1].Raw)
	}
}

func TestExtractor_FrameWithoutDecoration(t *testing.T) {
	e := NewExtractor()

	// CR/LF and prompt are optional; a bare frame followed by more data
	frames, _ := e.Feed([]byte("\x02Q100,A\x17\x02Q101,B\x17>"))

	if len(frames) != 2 {
		t.Fatalf("Expected 2 frames, got %d", len(frames))
	}
	if !bytes.Equal(frames[0].Raw, []byte("\x02Q100,A\x17")) {
		t.Errorf("First frame wrong: %q", frames[0].Raw)
	}
	if !bytes.Equal(frames[1].Raw, []byte("\x02Q101,B\x17>")) {
		t.Errorf("Second frame wrong: %q", frames[1].Raw)
	}
}

func TestExtractor_OversizedPartialDropped(t *testing.T) {
	e := NewExtractor()

	junk := make([]byte, MaxFrameSize+100)
	junk[0] = StartByte
	for i := 1; i < len(junk); i++ {
		junk[i] = 'A'
	}

	frames, dropped := e.Feed(junk)

	if len(frames) != 0 {
		t.Fatalf("Expected no frames from oversized partial, got %d", len(frames))
	}
	if dropped != len(junk) {
		t.Errorf("Expected %d dropped bytes, got %d", len(junk), dropped)
	}
	if e.PendingBytes() != 0 {
		t.Error("Oversized partial should have been discarded")
	}

	// Extractor must still work afterwards
	frames, _ = e.Feed([]byte("\x02Q104,MEM\x17\r\n>"))
	if len(frames) != 1 {
		t.Errorf("Extractor did not recover after overflow, got %d frames", len(frames))
	}
}

func TestExtractor_Reset(t *testing.T) {
	e := NewExtractor()

	e.Feed([]byte("\x02Q100,par"))
	if e.PendingBytes() == 0 {
		t.Fatal("Expected buffered partial before reset")
	}

	e.Reset()
	if e.PendingBytes() != 0 {
		t.Error("Reset should discard the buffered partial")
	}

	// A stale partial must not prefix the next stream
	frames, _ := e.Feed([]byte("\x02Q104,MEM\x17\r\n>"))
	if len(frames) != 1 {
		t.Fatalf("Expected 1 frame after reset, got %d", len(frames))
	}
	if !bytes.Equal(frames[0].Raw, []byte("\x02Q104,MEM\x17\r\n>")) {
		t.Errorf("Frame polluted by stale partial: %q", frames[0].Raw)
	}
}

func TestExtractor_EmptyBody(t *testing.T) {
	e := NewExtractor()

	frames, _ := e.Feed([]byte("\x02\x17\r\n>"))

	if len(frames) != 1 {
		t.Fatalf("Expected empty-body frame to be emitted, got %d", len(frames))
	}
	rec := Decode(frames[0])
	if rec.Class != Malformed {
		t.Errorf("Empty body should decode as Malformed, got %v", rec.Class)
	}
}

// ============================================================
// Decoder Tests
// ============================================================

func TestDecode_QueryResponse(t *testing.T) {
	raw := []byte("\x02Q100,CNC001234\x17\r\n>")
	rec := Decode(Frame{Raw: raw, ExtractedAt: time.Now()})

	if rec.Class != QueryResponse {
		t.Errorf("Expected QueryResponse, got %v", rec.Class)
	}
	if rec.Code != "Q100" {
		t.Errorf("Expected code Q100, got %q", rec.Code)
	}
	if rec.Value != "CNC001234" {
		t.Errorf("Expected value CNC001234, got %q", rec.Value)
	}
	if !bytes.Equal(rec.Raw, raw) {
		t.Error("Raw frame bytes must be preserved on the record")
	}
	if rec.CapturedAt.IsZero() {
		t.Error("Expected capture timestamp to be set")
	}
}

func TestDecode_ValueWithSeparators(t *testing.T) {
	// Q500 answers carry commas; only the first one splits
	rec := Decode(Frame{Raw: []byte("\x02Q500,O1234,READY\x17\r\n>")})

	if rec.Class != QueryResponse {
		t.Errorf("Expected QueryResponse, got %v", rec.Class)
	}
	if rec.Code != "Q500" {
		t.Errorf("Expected code Q500, got %q", rec.Code)
	}
	if rec.Value != "O1234,READY" {
		t.Errorf("Expected full value with comma, got %q", rec.Value)
	}
}

func TestDecode_Spontaneous(t *testing.T) {
	rec := Decode(Frame{Raw: []byte("\x02SPONT_ALARM,NONE\x17\r\n>")})

	if rec.Class != Spontaneous {
		t.Errorf("Expected Spontaneous, got %v", rec.Class)
	}
	if rec.Code != "SPONT_ALARM" {
		t.Errorf("Expected code SPONT_ALARM, got %q", rec.Code)
	}
	if rec.Value != "NONE" {
		t.Errorf("Expected value NONE, got %q", rec.Value)
	}
}

func TestDecode_UnknownCodeError(t *testing.T) {
	// The machine answers unknown codes by echoing them with an error value
	rec := Decode(Frame{Raw: []byte("\x02Q999,ERROR:UNKNOWN_CODE\x17\r\n>")})

	if rec.Class != QueryResponse {
		t.Errorf("Expected QueryResponse, got %v", rec.Class)
	}
	if rec.Code != "Q999" {
		t.Errorf("Expected code Q999, got %q", rec.Code)
	}
	if rec.Value != "ERROR:UNKNOWN_CODE" {
		t.Errorf("Expected error value, got %q", rec.Value)
	}
}

func TestDecode_BareCodeNoValue(t *testing.T) {
	rec := Decode(Frame{Raw: []byte("\x02Q104\x17\r\n>")})

	if rec.Class != QueryResponse {
		t.Errorf("Expected QueryResponse, got %v", rec.Class)
	}
	if rec.Code != "Q104" {
		t.Errorf("Expected code Q104, got %q", rec.Code)
	}
	if rec.Value != "" {
		t.Errorf("Expected empty value, got %q", rec.Value)
	}
}

func TestDecode_Malformed(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"garbage body", "\x02GARBAGE\x17\r\n>"},
		{"short code", "\x02Q10,X\x17\r\n>"},
		{"long code", "\x02Q1000,X\x17\r\n>"},
		{"letters in code", "\x02QABC,X\x17\r\n>"},
		{"lowercase code", "\x02q100,X\x17\r\n>"},
		{"bare prefix", "\x02SPONT_,X\x17\r\n>"},
		{"empty body", "\x02\x17\r\n>"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := Decode(Frame{Raw: []byte(tt.raw)})
			if rec.Class != Malformed {
				t.Errorf("Expected Malformed, got %v", rec.Class)
			}
			if rec.Code != "" {
				t.Errorf("Malformed record must not carry a code, got %q", rec.Code)
			}
			if !bytes.Equal(rec.Raw, []byte(tt.raw)) {
				t.Error("Raw bytes must be preserved for auditing")
			}
		})
	}
}

// ============================================================
// Classification Tests
// ============================================================

func TestClassify(t *testing.T) {
	tests := []struct {
		code string
		want Classification
	}{
		{"Q100", QueryResponse},
		{"Q999", QueryResponse},
		{"Q000", QueryResponse},
		{"Q10", Malformed},
		{"Q1000", Malformed},
		{"QABC", Malformed},
		{"q100", Malformed},
		{"SPONT_STATUS", Spontaneous},
		{"SPONT_TEMPERATURE", Spontaneous},
		{"SPONT_X", Spontaneous},
		{"SPONT_", Malformed},
		{"SPONT", Malformed},
		{"", Malformed},
		{"100Q", Malformed},
	}

	for _, tt := range tests {
		if got := Classify(tt.code); got != tt.want {
			t.Errorf("Classify(%q) = %v, want %v", tt.code, got, tt.want)
		}
	}
}

func TestIsQueryCode(t *testing.T) {
	if !IsQueryCode("Q402") {
		t.Error("Q402 should be a valid query code")
	}
	if IsQueryCode("Q40") || IsQueryCode("Q4020") || IsQueryCode("P100") {
		t.Error("Invalid shapes accepted as query codes")
	}
}

func TestCatalog(t *testing.T) {
	codes := CatalogCodes()
	if len(codes) != len(Catalog) {
		t.Fatalf("Expected %d codes, got %d", len(Catalog), len(codes))
	}
	for _, code := range codes {
		if !IsQueryCode(code) {
			t.Errorf("Catalog contains invalid code %q", code)
		}
	}

	// Polling order is part of the contract
	if codes[0] != "Q100" {
		t.Errorf("Expected Q100 first, got %s", codes[0])
	}
	if codes[len(codes)-1] != "Q500" {
		t.Errorf("Expected Q500 last, got %s", codes[len(codes)-1])
	}

	if CodeName("Q104") != "Mode" {
		t.Errorf("Expected Q104 name Mode, got %q", CodeName("Q104"))
	}
	if CodeName("Q998") != "" {
		t.Errorf("Unlisted code should have empty name, got %q", CodeName("Q998"))
	}
}

// ============================================================
// Formatter Tests
// ============================================================

func TestFormatRecord_QueryResponse(t *testing.T) {
	rec := Record{
		Class:      QueryResponse,
		Code:       "Q104",
		Value:      "MEM",
		CapturedAt: time.Date(2026, 3, 14, 10, 30, 0, 0, time.UTC),
	}

	line := FormatRecord(rec)

	if !strings.Contains(line, "QUERY_RESPONSE") {
		t.Errorf("Expected classification tag in output: %q", line)
	}
	if !strings.Contains(line, "Q104 = MEM") {
		t.Errorf("Expected code and value in output: %q", line)
	}
	if !strings.Contains(line, "(Mode)") {
		t.Errorf("Expected catalog name in output: %q", line)
	}
	if !strings.Contains(line, "[10:30:00.000]") {
		t.Errorf("Expected timestamp in output: %q", line)
	}
}

func TestFormatRecord_Malformed(t *testing.T) {
	rec := Record{
		Class:      Malformed,
		Raw:        []byte("\x02GARBAGE\x17"),
		CapturedAt: time.Now(),
	}

	line := FormatRecord(rec)

	if !strings.Contains(line, "MALFORMED") {
		t.Errorf("Expected MALFORMED tag: %q", line)
	}
	if !strings.Contains(line, "GARBAGE") {
		t.Errorf("Expected raw bytes in output: %q", line)
	}
}

func TestFormatClassification(t *testing.T) {
	tests := []struct {
		class Classification
		want  string
	}{
		{QueryResponse, "QUERY_RESPONSE"},
		{Spontaneous, "SPONTANEOUS"},
		{Malformed, "MALFORMED"},
		{Classification(99), "UNKNOWN"},
	}

	for _, tt := range tests {
		if got := FormatClassification(tt.class); got != tt.want {
			t.Errorf("FormatClassification(%v) = %q, want %q", tt.class, got, tt.want)
		}
	}
}

// ============================================================
// Statistics Tests
// ============================================================

func TestStatistics_ObserveRecord(t *testing.T) {
	stats := NewStatistics()

	stats.ObserveRecord(Record{Class: QueryResponse, Code: "Q100"})
	stats.ObserveRecord(Record{Class: Spontaneous, Code: "SPONT_STATUS"})
	stats.ObserveRecord(Record{Class: Malformed})
	stats.ObserveRecord(Record{Class: QueryResponse, Code: "Q104"})

	if stats.TotalFrames != 4 {
		t.Errorf("Expected 4 total frames, got %d", stats.TotalFrames)
	}
	if stats.QueryResponses != 2 {
		t.Errorf("Expected 2 query responses, got %d", stats.QueryResponses)
	}
	if stats.SpontaneousMsgs != 1 {
		t.Errorf("Expected 1 spontaneous, got %d", stats.SpontaneousMsgs)
	}
	if stats.MalformedFrames != 1 {
		t.Errorf("Expected 1 malformed, got %d", stats.MalformedFrames)
	}
}

func TestStatistics_ObserveEvent(t *testing.T) {
	stats := NewStatistics()

	stats.ObserveEvent(Event{Kind: EventResolved})
	stats.ObserveEvent(Event{Kind: EventOrphan})
	stats.ObserveEvent(Event{Kind: EventTimeout})
	stats.ObserveEvent(Event{Kind: EventTimeout})
	stats.ObserveEvent(Event{Kind: EventSpontaneous})

	if stats.Resolved != 1 {
		t.Errorf("Expected 1 resolved, got %d", stats.Resolved)
	}
	if stats.Orphans != 1 {
		t.Errorf("Expected 1 orphan, got %d", stats.Orphans)
	}
	if stats.Timeouts != 2 {
		t.Errorf("Expected 2 timeouts, got %d", stats.Timeouts)
	}
}

func TestStatistics_String(t *testing.T) {
	stats := NewStatistics()
	stats.ObserveRecord(Record{Class: QueryResponse, Code: "Q100"})
	stats.ObserveRecord(Record{Class: Malformed})
	stats.AddDropped(17)

	report := stats.String()

	if !strings.Contains(report, "=== Statistics") {
		t.Errorf("Expected report header, got %q", report)
	}
	if !strings.Contains(report, "Dropped bytes: 17") {
		t.Errorf("Expected dropped byte count, got %q", report)
	}
	if !strings.Contains(report, "Malformed rate: 50.00%") {
		t.Errorf("Expected malformed percentage, got %q", report)
	}
}

func TestStatistics_Reset(t *testing.T) {
	stats := NewStatistics()
	stats.ObserveRecord(Record{Class: QueryResponse})
	stats.ObserveEvent(Event{Kind: EventResolved})
	stats.AddDropped(5)

	stats.Reset()

	if stats.TotalFrames != 0 || stats.Resolved != 0 || stats.DroppedBytes != 0 {
		t.Error("Reset should zero all counters")
	}
	if stats.StartTime.IsZero() {
		t.Error("Reset should restart the clock")
	}
}
