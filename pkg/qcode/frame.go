// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Mara Janssens, Fabwerk

package qcode

import (
	"bytes"
	"time"
)

// Frame is one complete delimited protocol unit lifted off the wire.
type Frame struct {
	Raw         []byte
	ExtractedAt time.Time
}

// Extractor accumulates raw stream bytes and yields complete frames.
// Serial reads arrive at arbitrary boundaries; feeding the same stream
// in different chunkings yields the same frames.
type Extractor struct {
	buf []byte
}

// NewExtractor creates an empty extractor.
func NewExtractor() *Extractor {
	return &Extractor{}
}

// Feed appends data to the internal buffer and returns every complete
// frame now available, plus the number of bytes discarded (leading
// noise, superseded partial frames and oversized partials).
func (e *Extractor) Feed(data []byte) ([]Frame, int) {
	e.buf = append(e.buf, data...)

	var frames []Frame
	dropped := 0

	for {
		// Resynchronize: everything before the first StartByte is noise
		start := bytes.IndexByte(e.buf, StartByte)
		if start < 0 {
			dropped += len(e.buf)
			e.buf = e.buf[:0]
			break
		}
		if start > 0 {
			dropped += start
			e.buf = e.buf[start:]
		}

		// A fresh StartByte before the EndByte supersedes this partial
		// frame; the earlier bytes are a truncated transmission
		end := bytes.IndexByte(e.buf[1:], EndByte)
		restart := bytes.IndexByte(e.buf[1:], StartByte)
		if restart >= 0 && (end < 0 || restart < end) {
			dropped += restart + 1
			e.buf = e.buf[restart+1:]
			continue
		}
		if end < 0 {
			if len(e.buf) > MaxFrameSize {
				dropped += len(e.buf)
				e.buf = e.buf[:0]
			}
			break
		}
		end++ // make it an index into e.buf

		// Consume the frame tail: optional CR, LF and prompt, in that
		// order, stopping at the first byte that does not match. If the
		// buffer runs out before the match is decided, hold the frame
		// until more bytes arrive so chunking cannot change the result.
		i := end + 1
		held := false
		for _, want := range [3]byte{ByteCR, ByteLF, PromptByte} {
			if i == len(e.buf) {
				held = true
				break
			}
			if e.buf[i] == want {
				i++
			}
		}
		if held {
			break
		}

		raw := make([]byte, i)
		copy(raw, e.buf[:i])
		frames = append(frames, Frame{Raw: raw, ExtractedAt: time.Now()})
		e.buf = e.buf[i:]
	}

	return frames, dropped
}

// PendingBytes returns how many bytes are buffered awaiting frame
// completion.
func (e *Extractor) PendingBytes() int {
	return len(e.buf)
}

// Reset discards any buffered partial frame.
func (e *Extractor) Reset() {
	e.buf = e.buf[:0]
}
