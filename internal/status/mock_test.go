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
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/eclipse/ditto-clients-golang/protocol"
	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const (
	topicEntryID   = "thing.id"
	topicNamespace = "my-namespace.id"
)

// mockedClient represents mocked mqtt.Client interface used for testing.
type mockedClient struct {
	err     error
	payload chan interface{}

	lock     sync.Mutex
	handlers map[string]mqtt.MessageHandler
	// edge is published to the edge response topic on an edge request.
	edge string
}

func newMockedClient() *mockedClient {
	return &mockedClient{payload: make(chan interface{}, 10), handlers: map[string]mqtt.MessageHandler{}}
}

// envelope returns the next published Ditto envelope or waits 5sec for it.
func (client *mockedClient) envelope(t *testing.T) *protocol.Envelope {
	select {
	case payload := <-client.payload:
		env := &protocol.Envelope{}
		if err := json.Unmarshal(payload.([]byte), env); err != nil {
			t.Fatalf("unexpected error during data unmarshal: %v", err)
		}
		if env.Topic.Namespace != topicNamespace {
			t.Fatalf("message topic namespace mishmash: %v != %v", env.Topic.Namespace, topicNamespace)
		}
		if env.Topic.EntityID != topicEntryID {
			t.Fatalf("message topic entity identifier mishmash: %v != %v", env.Topic.EntityID, topicEntryID)
		}
		if !strings.HasPrefix(env.Path, "/features/"+DefaultFeatureID) {
			t.Fatalf("message path do not starts with [%v]: %v", "/features/"+DefaultFeatureID, env.Path)
		}
		return env
	case <-time.After(5 * time.Second):
		t.Fatal("failed to retrieve published data")
	}
	return nil
}

// noEnvelope validates that nothing was published.
func (client *mockedClient) noEnvelope(t *testing.T) {
	select {
	case payload := <-client.payload:
		t.Fatalf("unexpected published data: %s", payload)
	case <-time.After(100 * time.Millisecond):
	}
}

// IsConnected returns true.
func (client *mockedClient) IsConnected() bool {
	return true
}

// IsConnectionOpen returns true.
func (client *mockedClient) IsConnectionOpen() bool {
	return true
}

// Connect returns finished token.
func (client *mockedClient) Connect() mqtt.Token {
	return &mockedToken{err: client.err}
}

// Disconnect do nothing.
func (client *mockedClient) Disconnect(quiesce uint) {
	// Do nothing.
}

// Publish returns finished token and forwards the payload. Edge requests are answered.
func (client *mockedClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	if topic == edgeRequestTopic {
		client.lock.Lock()
		handler := client.handlers[edgeResponseTopic]
		edge := client.edge
		client.lock.Unlock()
		if handler != nil && len(edge) > 0 {
			go handler(client, &mockedMessage{topic: edgeResponseTopic, payload: []byte(edge)})
		}
		return &mockedToken{err: client.err}
	}
	client.payload <- payload
	return &mockedToken{err: client.err}
}

// Subscribe returns finished token and keeps the handler.
func (client *mockedClient) Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token {
	client.lock.Lock()
	defer client.lock.Unlock()
	client.handlers[topic] = callback
	return &mockedToken{err: client.err}
}

// SubscribeMultiple returns finished token.
func (client *mockedClient) SubscribeMultiple(filters map[string]byte, callback mqtt.MessageHandler) mqtt.Token {
	return &mockedToken{err: client.err}
}

// Unsubscribe returns finished token.
func (client *mockedClient) Unsubscribe(topics ...string) mqtt.Token {
	client.lock.Lock()
	defer client.lock.Unlock()
	for _, topic := range topics {
		delete(client.handlers, topic)
	}
	return &mockedToken{err: client.err}
}

// AddRoute do nothing.
func (client *mockedClient) AddRoute(topic string, callback mqtt.MessageHandler) {
	// Do nothing.
}

// OptionsReader returns an empty struct.
func (client *mockedClient) OptionsReader() mqtt.ClientOptionsReader {
	return mqtt.ClientOptionsReader{}
}

// mockedToken represents mocked mqtt.Token interface used for testing.
type mockedToken struct {
	err error
}

// Wait returns immediately with true.
func (token *mockedToken) Wait() bool {
	return true
}

// WaitTimeout returns immediately with true.
func (token *mockedToken) WaitTimeout(time.Duration) bool {
	return true
}

// Done returns immediately with nil channel.
func (token *mockedToken) Done() <-chan struct{} {
	return nil
}

// Error returns the error if set.
func (token *mockedToken) Error() error {
	return token.err
}

// mockedMessage represents mocked mqtt.Message interface used for testing.
type mockedMessage struct {
	topic   string
	payload []byte
}

func (m *mockedMessage) Duplicate() bool   { return false }
func (m *mockedMessage) Qos() byte         { return 1 }
func (m *mockedMessage) Retained() bool    { return false }
func (m *mockedMessage) Topic() string     { return m.topic }
func (m *mockedMessage) MessageID() uint16 { return 1 }
func (m *mockedMessage) Payload() []byte   { return m.payload }
func (m *mockedMessage) Ack()              {}
