// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Mara Janssens, Fabwerk

package bridge

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// Journal record layout: [8-byte big-endian seq][4-byte big-endian
// body length][CBOR body]. Records are flushed per append; a partial
// tail left by a crash is truncated away on the next open.
const journalHeaderLen = 12

// Entry is one journaled outbound message.
type Entry struct {
	Seq      uint64    `cbor:"1,keyasint"`
	Topic    string    `cbor:"2,keyasint"`
	Payload  []byte    `cbor:"3,keyasint"`
	LoggedAt time.Time `cbor:"4,keyasint"`
}

// Journal is an append-only audit log of everything the bridge
// published. Safe for concurrent appends.
type Journal struct {
	mu      sync.Mutex
	file    *os.File
	writer  *bufio.Writer
	nextSeq uint64
}

// OpenJournal opens or creates the journal at path, scans the existing
// records to find the next sequence number and truncates any partial
// tail from an unclean shutdown.
func OpenJournal(path string) (*Journal, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("open journal: %w", err)
		}
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}

	j := &Journal{file: f}
	if err := j.scanExisting(); err != nil {
		f.Close()
		return nil, fmt.Errorf("open journal: %w", err)
	}

	if _, err := f.Seek(0, io.SeekEnd); err != nil {
		f.Close()
		return nil, fmt.Errorf("open journal: %w", err)
	}
	j.writer = bufio.NewWriter(f)
	return j, nil
}

// scanExisting walks the record headers to the end of the last complete
// record, truncating anything after it, and recovers the sequence.
func (j *Journal) scanExisting() error {
	if _, err := j.file.Seek(0, io.SeekStart); err != nil {
		return err
	}

	reader := bufio.NewReader(j.file)
	var offset int64
	var lastSeq uint64

	for {
		var hdr [journalHeaderLen]byte
		if _, err := io.ReadFull(reader, hdr[:]); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				break
			}
			return err
		}
		length := binary.BigEndian.Uint32(hdr[8:12])

		if _, err := io.CopyN(io.Discard, reader, int64(length)); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				break
			}
			return err
		}

		offset += journalHeaderLen + int64(length)
		lastSeq = binary.BigEndian.Uint64(hdr[0:8])
	}

	if err := j.file.Truncate(offset); err != nil {
		return err
	}
	j.nextSeq = lastSeq + 1
	return nil
}

// Append journals one outbound message and flushes it to the file.
func (j *Journal) Append(topic string, payload []byte, at time.Time) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	entry := Entry{
		Seq:      j.nextSeq,
		Topic:    topic,
		Payload:  payload,
		LoggedAt: at,
	}
	body, err := cbor.Marshal(entry)
	if err != nil {
		return fmt.Errorf("journal encode: %w", err)
	}

	var hdr [journalHeaderLen]byte
	binary.BigEndian.PutUint64(hdr[0:8], entry.Seq)
	binary.BigEndian.PutUint32(hdr[8:12], uint32(len(body)))

	if _, err := j.writer.Write(hdr[:]); err != nil {
		return fmt.Errorf("journal write: %w", err)
	}
	if _, err := j.writer.Write(body); err != nil {
		return fmt.Errorf("journal write: %w", err)
	}
	if err := j.writer.Flush(); err != nil {
		return fmt.Errorf("journal flush: %w", err)
	}

	j.nextSeq++
	return nil
}

// Close flushes and closes the journal file.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if err := j.writer.Flush(); err != nil {
		j.file.Close()
		return err
	}
	return j.file.Close()
}

// ReadJournal reads every complete entry from a journal file. A partial
// tail is skipped silently, matching what the next OpenJournal would
// truncate.
func ReadJournal(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("read journal: %w", err)
	}
	defer f.Close()

	reader := bufio.NewReader(f)
	var entries []Entry

	for {
		var hdr [journalHeaderLen]byte
		if _, err := io.ReadFull(reader, hdr[:]); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return entries, nil
			}
			return nil, fmt.Errorf("read journal: %w", err)
		}
		length := binary.BigEndian.Uint32(hdr[8:12])

		body := make([]byte, length)
		if _, err := io.ReadFull(reader, body); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return entries, nil
			}
			return nil, fmt.Errorf("read journal: %w", err)
		}

		var entry Entry
		if err := cbor.Unmarshal(body, &entry); err != nil {
			return nil, fmt.Errorf("read journal: decode seq %d: %w",
				binary.BigEndian.Uint64(hdr[0:8]), err)
		}
		entries = append(entries, entry)
	}
}
