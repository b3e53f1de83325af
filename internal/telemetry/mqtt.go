// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// MQTTOpts configures an MQTT sink.
type MQTTOpts struct {
	Broker   string
	ClientID string
	Username string
	Password string
	// Topic is the prefix; readings go to <Topic>/<sensor>/<quantity>.
	Topic   string
	QoS     byte
	Timeout time.Duration
}

// publisher is the subset of mqtt.Client used by MQTT.
type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// MQTT publishes each reading as a JSON document.
type MQTT struct {
	c       publisher
	topic   string
	qos     byte
	timeout time.Duration
}

// NewMQTT connects to the broker. The client reconnects on its own after a
// connection loss.
func NewMQTT(opts MQTTOpts) (*MQTT, error) {
	mqtt.ERROR = log.New(os.Stderr, "mqtt: ", 0)
	o := mqtt.NewClientOptions().AddBroker(opts.Broker)
	o.ClientID = opts.ClientID
	o.Username = opts.Username
	o.Password = opts.Password
	o.SetAutoReconnect(true)
	o.SetConnectTimeout(opts.Timeout)
	c := mqtt.NewClient(o)
	token := c.Connect()
	if !token.WaitTimeout(opts.Timeout) {
		return nil, fmt.Errorf("telemetry: mqtt: connecting to %s timed out", opts.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("telemetry: mqtt: %w", err)
	}
	return newMQTT(c, opts), nil
}

func newMQTT(c publisher, opts MQTTOpts) *MQTT {
	return &MQTT{c: c, topic: opts.Topic, qos: opts.QoS, timeout: opts.Timeout}
}

func (m *MQTT) topicFor(r Reading) string {
	if r.Err != "" {
		return m.topic + "/" + r.Sensor + "/error"
	}
	return m.topic + "/" + r.Sensor + "/" + r.Quantity
}

// Publish implements Sink. It waits for each message to be acknowledged.
func (m *MQTT) Publish(ctx context.Context, batch []Reading) error {
	var errs []error
	for _, r := range batch {
		if err := ctx.Err(); err != nil {
			return err
		}
		payload, err := json.Marshal(r)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		topic := m.topicFor(r)
		token := m.c.Publish(topic, m.qos, false, payload)
		if !token.WaitTimeout(m.timeout) {
			errs = append(errs, fmt.Errorf("telemetry: mqtt: publish to %s timed out", topic))
			continue
		}
		if err := token.Error(); err != nil {
			errs = append(errs, fmt.Errorf("telemetry: mqtt: publish to %s: %w", topic, err))
		}
	}
	return errors.Join(errs...)
}

// Close disconnects from the broker.
func (m *MQTT) Close() error {
	m.c.Disconnect(250)
	return nil
}

var _ Sink = &MQTT{}
