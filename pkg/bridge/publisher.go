// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Mara Janssens, Fabwerk

package bridge

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Fabwerk/qbridge/pkg/qcode"
)

// Topic buckets under the configured prefix
const (
	BucketQuery       = "qcode"
	BucketSpontaneous = "spontaneous"
	BucketDiagnostic  = "diagnostic"
)

// message_type payload values
const (
	TypeQueryResponse = "qcode_response"
	TypeSpontaneous   = "spontaneous"
	TypeDiagnostic    = "diagnostic"
)

// event discriminators on diagnostic payloads
const (
	DiagOrphanResponse = "orphan_response"
	DiagTimeout        = "timeout"
	DiagMalformed      = "malformed"
)

// MalformedCode is the placeholder code for frames whose own code token
// could not be trusted. It doubles as the topic leaf, lowercased.
const MalformedCode = "RAW"

// Publisher hands outbound messages to the message bus.
type Publisher interface {
	Publish(topic string, payload []byte) error
	Close()
}

// Message is one outbound unit: a topic and its JSON payload.
type Message struct {
	Topic   string
	Payload []byte
}

// wirePayload is the JSON shape of every published message.
type wirePayload struct {
	Timestamp   string `json:"timestamp"`
	QCode       string `json:"qcode"`
	Value       string `json:"value"`
	MessageType string `json:"message_type"`
	RawData     string `json:"raw_data"`
	Event       string `json:"event,omitempty"`
}

// payloadTimeFormat matches the wall-clock stamps consumers already
// parse off the bus.
const payloadTimeFormat = "15:04:05"

// MapEvent maps one correlation event onto its outbound message. The
// mapping is total over event kinds and deterministic: same event, same
// topic and payload. Topics are "<prefix>/<bucket>/<leaf>" with the leaf
// lowercased.
func MapEvent(ev qcode.Event, prefix string) Message {
	var bucket, leaf string
	var p wirePayload

	switch ev.Kind {
	case qcode.EventResolved:
		bucket = BucketQuery
		leaf = ev.Record.Code
		p = wirePayload{
			Timestamp:   ev.Record.CapturedAt.Format(payloadTimeFormat),
			QCode:       ev.Record.Code,
			Value:       ev.Record.Value,
			MessageType: TypeQueryResponse,
			RawData:     string(ev.Record.Raw),
		}

	case qcode.EventSpontaneous:
		bucket = BucketSpontaneous
		leaf = ev.Record.Code
		p = wirePayload{
			Timestamp:   ev.Record.CapturedAt.Format(payloadTimeFormat),
			QCode:       ev.Record.Code,
			Value:       ev.Record.Value,
			MessageType: TypeSpontaneous,
			RawData:     string(ev.Record.Raw),
		}

	case qcode.EventOrphan:
		bucket = BucketDiagnostic
		leaf = ev.Record.Code
		p = wirePayload{
			Timestamp:   ev.Record.CapturedAt.Format(payloadTimeFormat),
			QCode:       ev.Record.Code,
			Value:       ev.Record.Value,
			MessageType: TypeDiagnostic,
			RawData:     string(ev.Record.Raw),
			Event:       DiagOrphanResponse,
		}

	case qcode.EventMalformed:
		bucket = BucketDiagnostic
		leaf = MalformedCode
		p = wirePayload{
			Timestamp:   ev.Record.CapturedAt.Format(payloadTimeFormat),
			QCode:       MalformedCode,
			Value:       ev.Record.Value,
			MessageType: TypeDiagnostic,
			RawData:     string(ev.Record.Raw),
			Event:       DiagMalformed,
		}

	case qcode.EventTimeout:
		// No machine bytes exist for a timeout; value and raw stay empty
		bucket = BucketDiagnostic
		leaf = ev.Request.Code
		p = wirePayload{
			Timestamp:   ev.Request.Deadline.Format(payloadTimeFormat),
			QCode:       ev.Request.Code,
			MessageType: TypeDiagnostic,
			Event:       DiagTimeout,
		}
	}

	payload, _ := json.Marshal(p)

	return Message{
		Topic:   fmt.Sprintf("%s/%s/%s", prefix, bucket, strings.ToLower(leaf)),
		Payload: payload,
	}
}
