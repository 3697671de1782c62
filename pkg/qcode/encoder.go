// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Mara Janssens, Fabwerk

package qcode

// EncodeRequest builds the outgoing wire form of a host query: the bare
// code followed by a line feed, no framing bytes.
func EncodeRequest(code string) []byte {
	req := make([]byte, 0, len(code)+1)
	req = append(req, code...)
	req = append(req, RequestTerminator)
	return req
}

// EncodeResponse builds a complete machine-side frame:
//
//	StartByte + "<code>,<value>" + EndByte + CR + LF + prompt
//
// Both query answers and spontaneous messages use this layout.
func EncodeResponse(code, value string) []byte {
	frame := make([]byte, 0, len(code)+len(value)+6)
	frame = append(frame, StartByte)
	frame = append(frame, code...)
	frame = append(frame, FieldSeparator)
	frame = append(frame, value...)
	frame = append(frame, EndByte, ByteCR, ByteLF, PromptByte)
	return frame
}
