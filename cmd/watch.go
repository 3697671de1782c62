// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 Mara Janssens, Fabwerk

package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Fabwerk/qbridge/pkg/qcode"
)

var (
	malformedOnly bool
	statsInterval int
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch the decoded Q-code frame stream",
	Long: `Decode the raw serial stream and print every frame as it arrives.

Each frame is classified as a query response, a spontaneous machine
message or malformed, with dropped resynchronization bytes reported as
they happen. Periodic statistics summaries show frame rates and error
counts at a configurable interval.

By default every frame is displayed. Use --malformed-only to restrict
the output to frames that failed decoding, which is the useful mode when
hunting wiring or baud rate problems.`,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().BoolVar(&malformedOnly, "malformed-only", false, "Show only malformed frames")
	watchCmd.Flags().IntVar(&statsInterval, "stats-interval", 10, "Statistics update interval (seconds)")
}

func runWatch(cmd *cobra.Command, args []string) error {
	conn, connInfo, err := OpenConnection()
	if err != nil {
		return err
	}
	defer conn.Close()

	fmt.Printf("qbridge - Frame Watch Mode\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Statistics interval: %d seconds\n", statsInterval)
	if malformedOnly {
		fmt.Printf("Mode: Malformed frames only\n")
	} else {
		fmt.Printf("Mode: All frames\n")
	}
	fmt.Printf("Press Ctrl+C to exit\n\n")

	extractor := qcode.NewExtractor()
	stats := qcode.NewStatistics()

	// Statistics ticker
	statsTicker := time.NewTicker(time.Duration(statsInterval) * time.Second)
	defer statsTicker.Stop()

	// Channel for non-blocking serial reads
	serialBuf := make(chan []byte, 10)
	readErr := make(chan error, 1)
	go func() {
		buf := make([]byte, 256)
		for {
			n, err := conn.Read(buf)
			if err != nil {
				readErr <- err
				return
			}
			data := make([]byte, n)
			copy(data, buf[:n])
			serialBuf <- data
		}
	}()

	for {
		select {
		case data := <-serialBuf:
			frames, dropped := extractor.Feed(data)
			stats.AddDropped(dropped)
			if dropped > 0 {
				fmt.Printf("[SYNC] Skipped %d unframed bytes\n", dropped)
			}

			for _, frame := range frames {
				rec := qcode.Decode(frame)
				stats.ObserveRecord(rec)

				if malformedOnly && rec.Class != qcode.Malformed {
					continue
				}
				fmt.Print(qcode.FormatRecord(rec))
			}

		case err := <-readErr:
			if err == ErrConnectionClosed {
				fmt.Println("\nConnection closed")
				return nil
			}
			return fmt.Errorf("read failed: %v", err)

		case <-statsTicker.C:
			fmt.Println()
			fmt.Print(stats.String())
			fmt.Println()
		}
	}
}
