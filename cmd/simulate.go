// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 Mara Janssens, Fabwerk

package cmd

import (
	"bufio"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/Fabwerk/qbridge/pkg/qcode"
)

var noSpontaneous bool

// referenceData answers the catalog the way a stock CNC-5000 control
// does.
var referenceData = map[string]string{
	"Q100": "CNC001234",
	"Q101": "V2.1.5",
	"Q102": "CNC-5000",
	"Q104": "MEM",
	"Q200": "1247",
	"Q201": "T05",
	"Q300": "1250.5",
	"Q301": "890.2",
	"Q303": "45.3",
	"Q304": "44.8",
	"Q402": "156",
	"Q403": "89",
	"Q500": "O1234,READY",
}

// spontaneousMessages is the unsolicited chatter a live machine emits
var spontaneousMessages = [][2]string{
	{"SPONT_STATUS", "RUNNING"},
	{"SPONT_ALARM", "NONE"},
	{"SPONT_TEMPERATURE", "23.5"},
}

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Act as the machine side of the Q-code protocol",
	Long: `Answer Q-code queries the way a real control does, for bench and
integration rigs without a machine.

Point it at the other end of a null-modem cable, a socat pty pair or a
WebSocket bridge. Each CODE request is answered with the reference value
for that code, or an ERROR:UNKNOWN_CODE value when the code is not in
the catalog. A random spontaneous message is emitted every 10 to 30
seconds unless --no-spontaneous is given.`,
	RunE: runSimulate,
}

func init() {
	rootCmd.AddCommand(simulateCmd)
	simulateCmd.Flags().BoolVar(&noSpontaneous, "no-spontaneous", false, "Do not emit spontaneous messages")
}

func runSimulate(cmd *cobra.Command, args []string) error {
	conn, connInfo, err := OpenConnection()
	if err != nil {
		return err
	}
	defer conn.Close()

	fmt.Printf("qbridge - Machine Simulator\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Answering %d catalog codes\n", len(referenceData))
	if noSpontaneous {
		fmt.Printf("Spontaneous messages: disabled\n")
	} else {
		fmt.Printf("Spontaneous messages: every 10-30 seconds\n")
	}
	fmt.Printf("Press Ctrl+C to exit\n\n")

	// Responses and spontaneous frames must not interleave mid-frame
	var writeMu sync.Mutex

	if !noSpontaneous {
		go func() {
			for {
				time.Sleep(time.Duration(10+rand.Intn(21)) * time.Second)

				msg := spontaneousMessages[rand.Intn(len(spontaneousMessages))]
				writeMu.Lock()
				_, err := conn.Write(qcode.EncodeResponse(msg[0], msg[1]))
				writeMu.Unlock()
				if err != nil {
					return
				}
				fmt.Printf("[%s] SENT %s,%s\n", time.Now().Format("15:04:05.000"), msg[0], msg[1])
			}
		}()
	}

	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		code := strings.ToUpper(strings.TrimSpace(scanner.Text()))
		if code == "" {
			continue
		}

		value, ok := referenceData[code]
		if !ok {
			value = "ERROR:UNKNOWN_CODE"
		}

		writeMu.Lock()
		_, err := conn.Write(qcode.EncodeResponse(code, value))
		writeMu.Unlock()
		if err != nil {
			return fmt.Errorf("write failed: %v", err)
		}
		fmt.Printf("[%s] %s -> %s\n", time.Now().Format("15:04:05.000"), code, value)
	}

	if err := scanner.Err(); err != nil && err != ErrConnectionClosed {
		return fmt.Errorf("read failed: %v", err)
	}
	fmt.Println("\nConnection closed")
	return nil
}
