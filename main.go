// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 Mara Janssens, Fabwerk
//
// qbridge - Fabwerk CNC Q-code serial to MQTT bridge
//
// Polls a CNC control over its RS-232 Q-code protocol and republishes
// responses, spontaneous machine messages and protocol diagnostics as
// JSON over MQTT.

package main

import (
	"os"

	"github.com/Fabwerk/qbridge/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
