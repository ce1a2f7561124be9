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

package ota

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/eclipse-kanto/firmware-update/internal/flash"
	"github.com/eclipse-kanto/firmware-update/internal/transport"
)

// newServerSession creates a session with the HTTP transport and a flash slot
// talking to a test server that runs handler.
func newServerSession(t *testing.T, handler http.HandlerFunc, stall, transfer time.Duration) *Session {
	// Handlers blocked on hold are released before the server is closed.
	hold := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handler(w, r)
		select {
		case <-hold:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(server.Close)
	t.Cleanup(func() { close(hold) })

	host, port, err := net.SplitHostPort(server.Listener.Addr().String())
	if err != nil {
		t.Fatalf("invalid test server address: %v", err)
	}
	portNumber, _ := strconv.Atoi(port)

	client, err := transport.New(transport.Options{ConnectTimeout: time.Second})
	if err != nil {
		t.Fatalf("failed to create transport: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	slot, err := flash.NewSlot(t.TempDir(), 1<<20)
	if err != nil {
		t.Fatalf("failed to create flash slot: %v", err)
	}

	s, err := NewSession(Connection{Server: host, Port: portNumber},
		Dependencies{
			Connectivity: &fakeConnectivity{active: true, network: true},
			Transport:    client,
			Sink:         slot,
			Rebooter:     &fakeRebooter{},
		},
		Settings{
			CurrentVersion:   "1.0.0",
			VersionPath:      testVersionPath,
			FirmwareBasePath: testFirmwareBase,
			StallTimeout:     stall,
			TransferTimeout:  transfer,
		})
	if err != nil {
		t.Fatalf("failed to create session: %v", err)
	}
	return s
}

// TestPerformOTAHalfOpenConnection tests a server that sends the headers and
// part of the body, then keeps the connection open without sending more.
func TestPerformOTAHalfOpenConnection(t *testing.T) {
	s := newServerSession(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "2048")
		w.Write(firmware(100))
		w.(http.Flusher).Flush()
	}, 200*time.Millisecond, 5*time.Second)

	started := time.Now()
	err := s.PerformOTA(context.Background(), testFirmwareURL)
	assertKind(t, err, StreamFailure, ErrStalled)
	if elapsed := time.Since(started); elapsed > 2*time.Second {
		t.Errorf("stalled transfer returned after %v", elapsed)
	}
}

// TestPerformOTASlowServer tests a server that keeps delivering bytes too
// slowly to complete within the transfer timeout.
func TestPerformOTASlowServer(t *testing.T) {
	s := newServerSession(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "4096")
		for i := 0; i < 4096; i++ {
			if _, err := w.Write([]byte{byte(i)}); err != nil {
				return
			}
			w.(http.Flusher).Flush()
			select {
			case <-time.After(20 * time.Millisecond):
			case <-r.Context().Done():
				return
			}
		}
	}, time.Second, 300*time.Millisecond)

	started := time.Now()
	err := s.PerformOTA(context.Background(), testFirmwareURL)
	assertKind(t, err, StreamFailure, ErrTimeout)
	if elapsed := time.Since(started); elapsed > 2*time.Second {
		t.Errorf("slow transfer returned after %v", elapsed)
	}
}

// TestCheckForUpdateNoHeaders tests a server that accepts the request but
// never sends the response headers.
func TestCheckForUpdateNoHeaders(t *testing.T) {
	s := newServerSession(t, func(w http.ResponseWriter, r *http.Request) {}, 200*time.Millisecond, 5*time.Second)

	started := time.Now()
	update, _, err := s.CheckForUpdate(context.Background())
	if update {
		t.Error("no update expected without a response")
	}
	assertKind(t, err, TransportFailure, nil)
	if elapsed := time.Since(started); elapsed > 2*time.Second {
		t.Errorf("version check returned after %v", elapsed)
	}
}
