// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 Mara Janssens, Fabwerk

package cmd

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Fabwerk/qbridge/pkg/bridge"
)

var (
	bridgeCodes    []string
	bridgeInterval int
)

var bridgeCmd = &cobra.Command{
	Use:   "bridge",
	Short: "Run the Q-code to MQTT bridging daemon",
	Long: `Run the bridging daemon: poll the machine's query catalog over the
serial line, correlate every answer to the query that caused it and
republish the results as JSON on an MQTT broker.

Query responses land under <prefix>/qcode/<code>, unsolicited machine
messages under <prefix>/spontaneous/<tag> and protocol diagnostics
(request timeouts, orphan responses, malformed frames) under
<prefix>/diagnostic/<code>.

Settings come from an optional TOML file (--config); connection flags
take precedence over the file. When MQTT authentication is configured
without a password, it is read from the QBRIDGE_MQTT_PASSWORD
environment variable or prompted interactively.`,
	RunE: runBridge,
}

func init() {
	bridgeCmd.Flags().StringSliceVar(&bridgeCodes, "codes", nil, "Query codes to poll (default: the full catalog)")
	bridgeCmd.Flags().IntVar(&bridgeInterval, "interval", 0, "Seconds between polling rounds (overrides config)")
	rootCmd.AddCommand(bridgeCmd)
}

// loadBridgeConfig merges the config file with the command line, flags
// winning. The connection globals are synced both ways so OpenConnection
// sees the file's serial settings when no flags were given.
func loadBridgeConfig(cmd *cobra.Command) (bridge.Config, error) {
	cfg := bridge.DefaultConfig()
	if configPath != "" {
		var err error
		cfg, err = bridge.LoadConfig(configPath)
		if err != nil {
			return bridge.Config{}, err
		}
	}

	if portName != "" {
		cfg.Serial.Port = portName
	} else {
		portName = cfg.Serial.Port
	}
	if cmd.Flags().Changed("baud") {
		cfg.Serial.Baud = baudRate
	} else {
		baudRate = cfg.Serial.Baud
	}

	if len(bridgeCodes) > 0 {
		codes := make([]string, 0, len(bridgeCodes))
		for _, code := range bridgeCodes {
			codes = append(codes, strings.ToUpper(strings.TrimSpace(code)))
		}
		cfg.Bridge.Codes = codes
	}
	if bridgeInterval > 0 {
		cfg.Bridge.RoundInterval = bridge.Duration{Duration: time.Duration(bridgeInterval) * time.Second}
	}

	if err := cfg.Validate(); err != nil {
		return bridge.Config{}, err
	}
	return cfg, nil
}

func runBridge(cmd *cobra.Command, args []string) error {
	cfg, err := loadBridgeConfig(cmd)
	if err != nil {
		return err
	}

	log := bridge.NewLogger(cfg.Log.Level)

	if cfg.MQTT.Username != "" && cfg.MQTT.Password == "" {
		password, err := GetPassword(EnvMQTTPassword)
		if err != nil {
			return err
		}
		cfg.MQTT.Password = password
	}

	conn, connInfo, err := OpenConnection()
	if err != nil {
		return err
	}
	log.Info().Str("conn", connInfo).Msg("machine transport open")

	pub, err := bridge.NewMQTTPublisher(cfg.MQTT, log)
	if err != nil {
		conn.Close()
		return err
	}
	defer pub.Close()

	var journal *bridge.Journal
	if cfg.Journal.Path != "" {
		journal, err = bridge.OpenJournal(cfg.Journal.Path)
		if err != nil {
			conn.Close()
			return err
		}
		defer journal.Close()
		log.Info().Str("path", cfg.Journal.Path).Msg("publish journal open")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics := bridge.NewMetrics()
	if cfg.Metrics.Addr != "" {
		go bridge.ServeMetrics(ctx, cfg.Metrics.Addr, log)
	}

	dial := func() (bridge.Conn, error) {
		c, info, err := OpenConnection()
		if err != nil {
			return nil, err
		}
		log.Info().Str("conn", info).Msg("machine transport reopened")
		return c, nil
	}

	return bridge.NewSession(cfg, conn, dial, pub, metrics, journal, log).Run(ctx)
}
