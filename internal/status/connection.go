// Copyright (c) 2026 Contributors to the Eclipse Foundation
//
// See the NOTICE file(s) distributed with this work for additional
// information regarding copyright ownership.
//
// This program and the accompanying materials are made available under the
// terms of the Eclipse Public License 2.0 which is available at
// https://www.eclipse.org/legal/epl-2.0, or the Apache License, Version 2.0
// which is available at https://www.apache.org/licenses/LICENSE-2.0.
//
// SPDX-License-Identifier: EPL-2.0 OR Apache-2.0

package status

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/eclipse-kanto/firmware-update/internal/logger"
	"github.com/eclipse-kanto/firmware-update/internal/util/tls"

	"github.com/eclipse/ditto-clients-golang"
	"github.com/eclipse/ditto-clients-golang/model"
	MQTT "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
)

const (
	defaultDisconnectTimeout = 250 * time.Millisecond
	defaultKeepAlive         = 20 * time.Second
	defaultEdgeTimeout       = 30 * time.Second
	disconnectQuiesce        = 200

	edgeRequestTopic  = "edge/thing/request"
	edgeResponseTopic = "edge/thing/response"
)

// Config holds the local MQTT broker connection and the reported Thing.
type Config struct {
	Broker   string
	Username string
	Password string
	// CACert enables TLS to the broker.
	CACert string
	Cert   string
	Key    string
	// ThingID is requested from the local edge configuration when empty.
	ThingID   string
	FeatureID string
}

// edgeConfiguration represents local Edge Thing configuration. Its device, tenant and policy identifiers.
type edgeConfiguration struct {
	DeviceID string `json:"deviceId"`
	TenantID string `json:"tenantId"`
	PolicyID string `json:"policyId"`
}

// Connection is the status reporting connection to the local MQTT broker.
type Connection struct {
	mqttClient  MQTT.Client
	dittoClient *ditto.Client
	reporter    *Reporter
}

// Connect connects to the MQTT broker and creates the FirmwareUpdate feature
// reporter for the configured Thing.
func Connect(cfg Config, installedVersion string) (*Connection, error) {
	logger.Infof("connecting to MQTT broker: %s", cfg.Broker)
	opts := MQTT.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(uuid.New().String()).
		SetKeepAlive(defaultKeepAlive).
		SetCleanSession(true).
		SetAutoReconnect(true)
	if len(cfg.Username) > 0 {
		opts = opts.SetUsername(cfg.Username).SetPassword(cfg.Password)
	}
	if len(cfg.CACert) > 0 {
		tlsConfig, err := tls.NewTLSConfig(cfg.CACert, cfg.Cert, cfg.Key)
		if err != nil {
			return nil, err
		}
		opts = opts.SetTLSConfig(tlsConfig)
	}

	mqttClient := MQTT.NewClient(opts)
	if token := mqttClient.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	c, err := newConnection(mqttClient, cfg, installedVersion, defaultEdgeTimeout)
	if err != nil {
		mqttClient.Disconnect(disconnectQuiesce)
		return nil, err
	}
	return c, nil
}

func newConnection(mqttClient MQTT.Client, cfg Config, installedVersion string, edgeTimeout time.Duration) (*Connection, error) {
	thingID := cfg.ThingID
	if len(thingID) == 0 {
		edge, err := retrieveEdgeConfiguration(mqttClient, edgeTimeout)
		if err != nil {
			return nil, err
		}
		logger.Infof("edge [TenantID: %s, DeviceID: %s, PolicyID: %s]", edge.TenantID, edge.DeviceID, edge.PolicyID)
		thingID = edge.DeviceID
	}
	namespacedID := model.NewNamespacedIDFrom(thingID)
	if namespacedID == nil {
		return nil, fmt.Errorf("invalid thing identifier: %s", thingID)
	}

	c := &Connection{mqttClient: mqttClient}
	config := ditto.NewConfiguration().
		WithDisconnectTimeout(defaultDisconnectTimeout).
		WithConnectHandler(func(dittoClient *ditto.Client) {
			logger.Infof("Connected to MQTT broker: %s", cfg.Broker)
			if err := c.reporter.Activate(); err != nil {
				logger.Errorf("failed to create firmware update feature: %v", err)
			}
		})

	var err error
	if c.dittoClient, err = ditto.NewClientMqtt(mqttClient, config); err != nil {
		return nil, fmt.Errorf("failed to create Ditto client: %v", err)
	}
	if c.reporter, err = NewReporter(c.dittoClient, namespacedID, cfg.FeatureID, installedVersion); err != nil {
		return nil, err
	}
	if err = c.dittoClient.Connect(); err != nil {
		return nil, err
	}
	return c, nil
}

// Reporter returns the FirmwareUpdate feature reporter.
func (c *Connection) Reporter() *Reporter {
	return c.reporter
}

// Close disconnects from the MQTT broker.
func (c *Connection) Close() {
	c.reporter.Deactivate()
	c.dittoClient.Disconnect()
	c.mqttClient.Disconnect(disconnectQuiesce)
	logger.Info("disconnected from MQTT broker")
}

// retrieveEdgeConfiguration requests the local Edge Thing configuration.
func retrieveEdgeConfiguration(mqttClient MQTT.Client, timeout time.Duration) (*edgeConfiguration, error) {
	received := make(chan *edgeConfiguration, 1)
	if token := mqttClient.Subscribe(edgeResponseTopic, 1, func(client MQTT.Client, message MQTT.Message) {
		edge := &edgeConfiguration{}
		if err := json.Unmarshal(message.Payload(), edge); err != nil {
			logger.Errorf("could not unmarshal edge configuration: %v", err)
			return
		}
		select {
		case received <- edge:
		default:
		}
	}); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	defer mqttClient.Unsubscribe(edgeResponseTopic)

	if token := mqttClient.Publish(edgeRequestTopic, 1, false, ""); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}

	select {
	case edge := <-received:
		if len(edge.DeviceID) == 0 {
			return nil, errors.New("edge configuration without device identifier")
		}
		return edge, nil
	case <-time.After(timeout):
		return nil, errors.New("edge configuration not received, configure the thing identifier")
	}
}
