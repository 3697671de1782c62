// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 Mara Janssens, Fabwerk

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Fabwerk/qbridge/pkg/bridge"
)

var journalJSON bool

var journalCmd = &cobra.Command{
	Use:   "journal <file>",
	Short: "Dump a publish journal file",
	Long: `Dump the CBOR publish journal written by the bridge daemon.

Each line shows the append time, sequence number, topic and payload of
one published message. With --json, only the raw JSON payloads are
printed, one per line, ready for jq.

A partial record at the end of the file, left by an unclean shutdown
mid-append, is skipped, matching what the daemon truncates away on its
next start.`,
	Args: cobra.ExactArgs(1),
	RunE: runJournal,
}

func init() {
	rootCmd.AddCommand(journalCmd)
	journalCmd.Flags().BoolVar(&journalJSON, "json", false, "Print raw JSON payloads only")
}

func runJournal(cmd *cobra.Command, args []string) error {
	entries, err := bridge.ReadJournal(args[0])
	if err != nil {
		return err
	}

	for _, entry := range entries {
		if journalJSON {
			fmt.Printf("%s\n", entry.Payload)
			continue
		}
		fmt.Printf("[%s] #%d %s %s\n",
			entry.LoggedAt.Format("2006-01-02 15:04:05.000"), entry.Seq, entry.Topic, entry.Payload)
	}

	if !journalJSON {
		fmt.Printf("%d entries\n", len(entries))
	}
	return nil
}
