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
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"
)

type fakeConnectivity struct {
	active    bool
	network   bool
	attachErr error
	attaches  int
}

func (c *fakeConnectivity) Attach(ctx context.Context, apn, user, pass string) error {
	c.attaches++
	if c.attachErr != nil {
		return c.attachErr
	}
	c.active = true
	c.network = true
	return nil
}

func (c *fakeConnectivity) IsNetworkAvailable(ctx context.Context) bool {
	return c.network
}

func (c *fakeConnectivity) IsDataSessionActive(ctx context.Context) bool {
	return c.active
}

type fakeResponse struct {
	status int
	body   []byte
	length int64
}

func newResponse(status int, body string) *fakeResponse {
	return &fakeResponse{status: status, body: []byte(body), length: int64(len(body))}
}

type fakeTransport struct {
	responses  map[string]*fakeResponse
	connectErr error
	getErr     error
	bodyErr    error
	// maxRead limits the bytes returned by a single read, 0 means no limit.
	maxRead int
	// dropAfter disconnects after the given number of body bytes, 0 means never.
	dropAfter int
	stall     bool

	current   *fakeResponse
	pos       int
	connected bool
	connects  int
	closes    int
	gets      []string
	reads     []int
	deadlines []time.Time
}

func (t *fakeTransport) Connect(ctx context.Context, host string, port int) error {
	t.connects++
	if t.connectErr != nil {
		return t.connectErr
	}
	t.connected = true
	return nil
}

func (t *fakeTransport) Get(ctx context.Context, path string) error {
	t.gets = append(t.gets, path)
	if t.getErr != nil {
		return t.getErr
	}
	t.pos = 0
	t.current = t.responses[path]
	if t.current == nil {
		t.current = newResponse(404, "")
	}
	return nil
}

func (t *fakeTransport) StatusCode() int {
	return t.current.status
}

func (t *fakeTransport) Body() (string, error) {
	if t.bodyErr != nil {
		return "", t.bodyErr
	}
	return string(t.current.body), nil
}

func (t *fakeTransport) ContentLength() int64 {
	return t.current.length
}

func (t *fakeTransport) ReadChunk(buf []byte) (int, error) {
	t.reads = append(t.reads, len(buf))
	if t.stall {
		return 0, nil
	}
	if t.pos >= len(t.current.body) {
		t.connected = false
		return 0, io.EOF
	}
	n := len(buf)
	if t.maxRead > 0 && n > t.maxRead {
		n = t.maxRead
	}
	n = copy(buf[:n], t.current.body[t.pos:])
	t.pos += n
	if t.dropAfter > 0 && t.pos >= t.dropAfter {
		t.connected = false
	}
	return n, nil
}

func (t *fakeTransport) SetReadDeadline(deadline time.Time) error {
	t.deadlines = append(t.deadlines, deadline)
	return nil
}

func (t *fakeTransport) IsConnected() bool {
	return t.connected
}

func (t *fakeTransport) Close() error {
	t.closes++
	t.connected = false
	return nil
}

type fakeSink struct {
	beginErr    error
	writeErr    error
	endErr      error
	shortWrite  bool
	notFinished bool

	data   bytes.Buffer
	size   int64
	begins int
	writes int
	ends   int
	ended  bool
}

func (s *fakeSink) Begin(size int64) error {
	s.begins++
	if s.beginErr != nil {
		return s.beginErr
	}
	s.size = size
	s.data.Reset()
	s.ended = false
	return nil
}

func (s *fakeSink) Write(p []byte) (int, error) {
	s.writes++
	if s.writeErr != nil {
		return 0, s.writeErr
	}
	if s.shortWrite && len(p) > 1 {
		p = p[:len(p)/2]
	}
	return s.data.Write(p)
}

func (s *fakeSink) End() error {
	s.ends++
	s.ended = true
	return s.endErr
}

func (s *fakeSink) IsFinished() bool {
	return s.ended && s.endErr == nil && !s.notFinished && int64(s.data.Len()) == s.size
}

type fakeRebooter struct {
	err   error
	calls int
}

func (r *fakeRebooter) Reboot() error {
	r.calls++
	return r.err
}

type testSession struct {
	*Session
	connectivity *fakeConnectivity
	transport    *fakeTransport
	sink         *fakeSink
	rebooter     *fakeRebooter
}

func newTestSession(t *testing.T, current string, responses map[string]*fakeResponse) *testSession {
	ts := &testSession{
		connectivity: &fakeConnectivity{active: true, network: true},
		transport:    &fakeTransport{responses: responses},
		sink:         &fakeSink{},
		rebooter:     &fakeRebooter{},
	}
	s, err := NewSession(Connection{Server: "updates.example.com", Port: 80, APN: "internet"},
		Dependencies{
			Connectivity: ts.connectivity,
			Transport:    ts.transport,
			Sink:         ts.sink,
			Rebooter:     ts.rebooter,
		},
		Settings{
			CurrentVersion:   Version(current),
			VersionPath:      testVersionPath,
			FirmwareBasePath: testFirmwareBase,
		})
	if err != nil {
		t.Fatalf("failed to create session: %v", err)
	}
	ts.Session = s
	return ts
}

// fakeClock returns a clock advancing by step on every call.
func fakeClock(step time.Duration) func() time.Time {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	return func() time.Time {
		now = now.Add(step)
		return now
	}
}

func firmware(size int) []byte {
	b := make([]byte, size)
	for i := range b {
		b[i] = byte(i % 251)
	}
	return b
}

func assertKind(t *testing.T, err error, kind FailureKind, cause error) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", kind)
	}
	if k := KindOf(err); k != kind {
		t.Fatalf("expected %s error, got %s: %v", kind, k, err)
	}
	if cause != nil && !errors.Is(err, cause) {
		t.Fatalf("expected error caused by %v, got %v", cause, err)
	}
}
