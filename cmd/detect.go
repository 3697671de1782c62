// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 Mara Janssens, Fabwerk

package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Fabwerk/qbridge/pkg/qcode"
)

var detectTimeout int

var detectCmd = &cobra.Command{
	Use:   "detect",
	Short: "Test the connection by waiting for a valid Q-code frame",
	Long: `Wait for a valid Q-code frame on the connection until timeout.

One catalog query is issued on connect to provoke an answer, since a
machine that is otherwise idle only speaks spontaneously every ten to
thirty seconds. Unframed bytes and malformed frames are skipped; only a
frame that decodes as a query response or spontaneous message counts.

Exit codes:
  0 - Valid frame received before timeout
  1 - Timeout reached without a valid frame
  2 - Connection error

Useful for checking cabling, baud rate and WebSocket bridge health.`,
	RunE: runDetect,
}

func init() {
	rootCmd.AddCommand(detectCmd)
	detectCmd.Flags().IntVar(&detectTimeout, "timeout", 10, "Timeout in seconds to wait for a frame")
}

func runDetect(cmd *cobra.Command, args []string) error {
	conn, connInfo, err := OpenConnection()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer conn.Close()

	fmt.Printf("qbridge - Machine Detection\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Timeout: %d seconds\n", detectTimeout)
	fmt.Printf("Waiting for valid Q-code frame...\n\n")

	// Channel for frame reception
	recordChan := make(chan qcode.Record, 1)
	errChan := make(chan error, 1)

	// Reader goroutine
	go func() {
		extractor := qcode.NewExtractor()
		buf := make([]byte, 256)
		droppedBytes := 0
		malformed := 0
		for {
			n, err := conn.Read(buf)
			if err != nil {
				errChan <- err
				return
			}

			frames, dropped := extractor.Feed(buf[:n])
			droppedBytes += dropped
			for _, frame := range frames {
				rec := qcode.Decode(frame)
				if rec.Class == qcode.Malformed {
					malformed++
					continue
				}

				// Got a valid frame!
				if droppedBytes > 0 || malformed > 0 {
					fmt.Printf("(skipped %d unframed bytes, %d malformed frames before sync)\n",
						droppedBytes, malformed)
				}
				recordChan <- rec
				return
			}
		}
	}()

	// A quiet machine still answers queries, so provoke one
	conn.Write(qcode.EncodeRequest(qcode.Catalog[0].Code))

	// Wait for frame or timeout
	select {
	case rec := <-recordChan:
		fmt.Printf("SUCCESS: Received valid frame\n")
		fmt.Printf("  Type:  %s\n", qcode.FormatClassification(rec.Class))
		fmt.Printf("  Code:  %s\n", rec.Code)
		fmt.Printf("  Value: %s\n", rec.Value)
		fmt.Printf("  Raw:   %q\n", rec.Raw)
		os.Exit(0)

	case err := <-errChan:
		fmt.Fprintf(os.Stderr, "Read error: %v\n", err)
		os.Exit(2)

	case <-time.After(time.Duration(detectTimeout) * time.Second):
		fmt.Fprintf(os.Stderr, "TIMEOUT: No valid frame received within %d seconds\n", detectTimeout)
		os.Exit(1)
	}

	return nil
}
