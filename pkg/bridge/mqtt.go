// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Mara Janssens, Fabwerk

package bridge

import (
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
)

// MQTTPublisher publishes bridge messages over a paho client.
type MQTTPublisher struct {
	client  mqtt.Client
	qos     byte
	timeout time.Duration
}

// NewMQTTPublisher connects to the configured broker. The client
// reconnects on its own after broker hiccups; publishes during an
// outage fail and are reported per message.
func NewMQTTPublisher(cfg MQTTConfig, log zerolog.Logger) (*MQTTPublisher, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetUsername(cfg.Username).
		SetPassword(cfg.Password).
		SetConnectTimeout(cfg.ConnectTimeout.Duration).
		SetAutoReconnect(true).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			log.Warn().Err(err).Msg("broker connection lost")
		}).
		SetOnConnectHandler(func(_ mqtt.Client) {
			log.Info().Str("broker", cfg.Broker).Msg("broker connected")
		})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(cfg.ConnectTimeout.Duration) {
		return nil, fmt.Errorf("mqtt connect %s: timed out after %s", cfg.Broker, cfg.ConnectTimeout.Duration)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect %s: %w", cfg.Broker, err)
	}

	return &MQTTPublisher{
		client:  client,
		qos:     byte(cfg.QoS),
		timeout: cfg.PublishTimeout.Duration,
	}, nil
}

// Publish sends one message at the configured QoS and waits for the
// broker handshake.
func (p *MQTTPublisher) Publish(topic string, payload []byte) error {
	token := p.client.Publish(topic, p.qos, false, payload)
	if !token.WaitTimeout(p.timeout) {
		return fmt.Errorf("publish %s: timed out after %s", topic, p.timeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// Close disconnects from the broker, allowing a short drain for
// in-flight messages.
func (p *MQTTPublisher) Close() {
	p.client.Disconnect(250)
}
