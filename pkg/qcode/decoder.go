// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Mara Janssens, Fabwerk

package qcode

import (
	"bytes"
	"strings"
	"time"
)

// Decode parses one complete frame into a Record. Decode is total:
// undecodable input yields a Malformed record, never an error. The frame
// bytes are kept on the record verbatim for auditing.
func Decode(f Frame) Record {
	rec := Record{
		CapturedAt: time.Now(),
		Raw:        f.Raw,
	}

	body := f.Raw
	if len(body) > 0 && body[0] == StartByte {
		body = body[1:]
	}
	if end := bytes.IndexByte(body, EndByte); end >= 0 {
		body = body[:end]
	} else {
		// No EndByte means the frame came from somewhere other than the
		// extractor; strip trailing decoration and keep what remains
		body = bytes.TrimRight(body, "\r\n>")
	}

	// Only the first separator splits; values may contain commas (Q500)
	text := string(body)
	code, value := text, ""
	if sep := strings.IndexByte(text, FieldSeparator); sep >= 0 {
		code, value = text[:sep], text[sep+1:]
	}

	switch Classify(code) {
	case QueryResponse:
		rec.Class = QueryResponse
		rec.Code = code
		rec.Value = value
	case Spontaneous:
		rec.Class = Spontaneous
		rec.Code = code
		rec.Value = value
	default:
		rec.Class = Malformed
		rec.Value = strings.TrimSpace(text)
	}

	return rec
}
