// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Mara Janssens, Fabwerk

package qcode

import (
	"fmt"
)

// FormatClassification returns the display tag for a classification.
func FormatClassification(c Classification) string {
	switch c {
	case QueryResponse:
		return "QUERY_RESPONSE"
	case Spontaneous:
		return "SPONTANEOUS"
	case Malformed:
		return "MALFORMED"
	default:
		return "UNKNOWN"
	}
}

// FormatRecord renders a decoded record as a single console line with a
// capture timestamp.
func FormatRecord(rec Record) string {
	timestamp := rec.CapturedAt.Format("15:04:05.000")

	if rec.Class == Malformed {
		return fmt.Sprintf("[%s] MALFORMED: %q\n", timestamp, rec.Raw)
	}

	line := fmt.Sprintf("[%s] %s: %s = %s",
		timestamp, FormatClassification(rec.Class), rec.Code, rec.Value)
	if name := CodeName(rec.Code); name != "" {
		line += fmt.Sprintf(" (%s)", name)
	}
	return line + "\n"
}
