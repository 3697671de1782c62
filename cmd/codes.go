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

var (
	codesProbe   bool
	codesTimeout int
)

var codesCmd = &cobra.Command{
	Use:   "codes",
	Short: "List the Q-code catalog, optionally probing each code",
	Long: `Print the known Q-code catalog with each code's meaning.

With --probe, connect to the machine, issue every catalog code in order
and report which ones answered. Older controls only implement a subset
of the catalog, so the probe is the quick way to see what a given
machine actually speaks.

Exit codes (probe mode):
  0 - At least one code answered
  1 - No code answered
  2 - Connection error`,
	RunE: runCodes,
}

func init() {
	rootCmd.AddCommand(codesCmd)
	codesCmd.Flags().BoolVar(&codesProbe, "probe", false, "Issue each catalog code and report which answered")
	codesCmd.Flags().IntVar(&codesTimeout, "timeout", 5, "Timeout in seconds per probed code")
}

func runCodes(cmd *cobra.Command, args []string) error {
	if !codesProbe {
		fmt.Printf("Known Q-codes (%d):\n\n", len(qcode.Catalog))
		for _, qc := range qcode.Catalog {
			fmt.Printf("  %s  %s\n", qc.Code, qc.Name)
		}
		return nil
	}

	conn, connInfo, err := OpenConnection()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer conn.Close()

	fmt.Printf("qbridge - Catalog Probe\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Timeout: %d seconds per code\n\n", codesTimeout)

	p := newProber(conn)
	answered := 0

	for i, qc := range qcode.Catalog {
		fmt.Printf("%s (%s): ", qc.Code, qc.Name)

		start := time.Now()
		rec, err := p.probe(qc.Code, time.Duration(codesTimeout)*time.Second)
		if err != nil {
			fmt.Printf("NO ANSWER (%v)\n", err)
		} else {
			rtt := time.Since(start)
			fmt.Printf("%s (rtt=%v)\n", rec.Value, rtt.Round(time.Millisecond))
			answered++
		}

		// Give the control a moment between queries
		if i < len(qcode.Catalog)-1 {
			time.Sleep(100 * time.Millisecond)
		}
	}

	fmt.Printf("\n%d/%d codes answered\n", answered, len(qcode.Catalog))
	if answered == 0 {
		os.Exit(1)
	}
	return nil
}
