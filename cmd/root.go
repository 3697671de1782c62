// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 Mara Janssens, Fabwerk

package cmd

import (
	"github.com/spf13/cobra"
)

var (
	// Serial connection flags
	portName string
	baudRate int

	// WebSocket connection flags
	wsURL         string
	wsUsername    string
	wsNoSSLVerify bool

	// Config file flag
	configPath string
)

var rootCmd = &cobra.Command{
	Use:   "qbridge",
	Short: "Q-code serial to MQTT bridge for Fabwerk CNC machines",
	Long: `qbridge polls a Fabwerk CNC control over its RS-232 Q-code protocol and
republishes every answer, and every unsolicited machine message, as JSON
on an MQTT broker.

Besides the bridging daemon it carries the bench tools: watching the raw
frame stream, issuing one-shot queries, probing the code catalog,
detecting a live machine and simulating one.

Connection modes:
  Serial:    --port /dev/ttyUSB0 [--baud 38400]
  WebSocket: --url ws://host/path [--username user]

For WebSocket authentication, the password is read from the
QBRIDGE_WS_PASSWORD environment variable, or prompted interactively if
not set. The --password flag is intentionally not provided to avoid
leaking credentials in shell history.`,
	Version: "1.4.2",
}

func init() {
	// Serial connection flags
	rootCmd.PersistentFlags().StringVarP(&portName, "port", "p", "", "Serial port device")
	rootCmd.PersistentFlags().IntVarP(&baudRate, "baud", "b", 38400, "Baud rate (serial only)")

	// WebSocket connection flags
	rootCmd.PersistentFlags().StringVarP(&wsURL, "url", "u", "", "WebSocket URL (ws:// or wss://)")
	rootCmd.PersistentFlags().StringVar(&wsUsername, "username", "", "Username for HTTP Basic auth")
	rootCmd.PersistentFlags().BoolVar(&wsNoSSLVerify, "no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")

	// Bridge config file flag
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "TOML config file for the bridge")
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
