// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 Mara Janssens, Fabwerk

package cmd

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Fabwerk/qbridge/pkg/qcode"
)

var queryTimeout int

var queryCmd = &cobra.Command{
	Use:   "query <code>",
	Short: "Send one Q-code query and print the answer",
	Long: `Issue a single query code and wait for the machine's answer.

Spontaneous machine messages arriving while waiting are ignored; only a
response carrying the queried code resolves the wait. An unknown code is
still answered by the machine, with an ERROR:UNKNOWN_CODE value.

Exit codes:
  0 - Response received
  1 - No response within the timeout
  2 - Connection or usage error`,
	Args: cobra.ExactArgs(1),
	RunE: runQuery,
}

func init() {
	rootCmd.AddCommand(queryCmd)
	queryCmd.Flags().IntVar(&queryTimeout, "timeout", 5, "Timeout in seconds for the response")
}

func runQuery(cmd *cobra.Command, args []string) error {
	code := strings.ToUpper(strings.TrimSpace(args[0]))
	if !qcode.IsQueryCode(code) {
		fmt.Fprintf(os.Stderr, "Invalid query code %q: expected Q followed by three digits\n", args[0])
		os.Exit(2)
	}

	conn, connInfo, err := OpenConnection()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer conn.Close()

	fmt.Printf("qbridge - One-Shot Query\n")
	fmt.Printf("Connection: %s\n", connInfo)
	if name := qcode.CodeName(code); name != "" {
		fmt.Printf("Query: %s (%s)\n\n", code, name)
	} else {
		fmt.Printf("Query: %s\n\n", code)
	}

	p := newProber(conn)
	start := time.Now()
	rec, err := p.probe(code, time.Duration(queryTimeout)*time.Second)
	if err != nil {
		fmt.Printf("FAILED: %v\n", err)
		os.Exit(1)
	}

	rtt := time.Since(start)
	fmt.Printf("%s = %s (rtt=%v)\n", rec.Code, rec.Value, rtt.Round(time.Millisecond))
	return nil
}

// prober owns the single reader goroutine behind the one-shot commands.
// Successive probes share it, so an answer arriving late for one probe
// cannot be swallowed by a reader left over from the previous one.
type prober struct {
	conn    Connection
	frames  chan qcode.Record
	readErr chan error
}

func newProber(conn Connection) *prober {
	p := &prober{
		conn:    conn,
		frames:  make(chan qcode.Record, 16),
		readErr: make(chan error, 1),
	}
	go p.readLoop()
	return p
}

func (p *prober) readLoop() {
	extractor := qcode.NewExtractor()
	buf := make([]byte, 256)
	for {
		n, err := p.conn.Read(buf)
		if err != nil {
			p.readErr <- err
			return
		}

		frames, _ := extractor.Feed(buf[:n])
		for _, frame := range frames {
			select {
			case p.frames <- qcode.Decode(frame):
			default:
				// Nobody draining; probes only care about what arrives
				// inside their own window
			}
		}
	}
}

// probe sends one query and waits for the response carrying that code.
func (p *prober) probe(code string, timeout time.Duration) (qcode.Record, error) {
	// Discard frames queued before this probe was issued
drain:
	for {
		select {
		case <-p.frames:
		default:
			break drain
		}
	}

	if _, err := p.conn.Write(qcode.EncodeRequest(code)); err != nil {
		return qcode.Record{}, fmt.Errorf("send failed: %v", err)
	}

	deadline := time.After(timeout)
	for {
		select {
		case rec := <-p.frames:
			if rec.Class == qcode.QueryResponse && rec.Code == code {
				return rec, nil
			}
			// Spontaneous chatter and unrelated frames keep the wait going

		case err := <-p.readErr:
			return qcode.Record{}, fmt.Errorf("read failed: %v", err)

		case <-deadline:
			return qcode.Record{}, fmt.Errorf("no response in %s", timeout)
		}
	}
}
