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

package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/eclipse-kanto/firmware-update/internal/logger"
	"github.com/eclipse-kanto/firmware-update/internal/util/tls"
)

const (
	// DefaultConnectTimeout bounds the TCP connect to the update server.
	DefaultConnectTimeout = 30 * time.Second
	// MaxBodySize is the largest text body returned by Body.
	MaxBodySize = 4 * 1024
)

var (
	errNotConnected = errors.New("not connected")
	errNoResponse   = errors.New("no response")
	errConnUsed     = errors.New("connection already used by a previous request")
	errBodyTooLarge = fmt.Errorf("response body exceeds %d bytes", MaxBodySize)
)

// Options configures an HTTP transport.
type Options struct {
	// Secure enables HTTPS.
	Secure bool
	// ServerCert is the CA certificate used to verify the server. The system
	// pool is used when empty.
	ServerCert     string
	ConnectTimeout time.Duration
	UserAgent      string
}

// HTTP is a single connection HTTP(S) client. Connect dials the server, Get
// sends one request over that connection and Close releases it.
type HTTP struct {
	options Options
	client  *http.Client

	lock     sync.Mutex
	conn     net.Conn
	pending  net.Conn
	base     string
	response *http.Response
	readErr  error
}

// New creates an HTTP transport.
func New(options Options) (*HTTP, error) {
	if options.ConnectTimeout <= 0 {
		options.ConnectTimeout = DefaultConnectTimeout
	}
	t := &HTTP{options: options}
	transport := &http.Transport{
		DialContext:       t.dial,
		DisableKeepAlives: true,
		// The body is streamed to the flash slot as it is.
		DisableCompression: true,
	}
	if options.Secure {
		tlsConfig, err := tls.NewTLSConfig(options.ServerCert, "", "")
		if err != nil {
			return nil, err
		}
		transport.TLSClientConfig = tlsConfig
	}
	t.client = &http.Client{
		Transport: transport,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	return t, nil
}

// Connect opens a TCP connection to host:port.
func (t *HTTP) Connect(ctx context.Context, host string, port int) error {
	if err := t.Close(); err != nil {
		logger.Debugf("failed to close previous connection: %v", err)
	}
	if len(host) == 0 {
		return errors.New("missing host")
	}
	address := net.JoinHostPort(host, strconv.Itoa(port))
	dialer := &net.Dialer{Timeout: t.options.ConnectTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return err
	}
	logger.Tracef("connected to %s", address)

	scheme := "http"
	if t.options.Secure {
		scheme = "https"
	}

	t.lock.Lock()
	defer t.lock.Unlock()
	t.conn = conn
	t.pending = conn
	t.base = fmt.Sprintf("%s://%s", scheme, address)
	return nil
}

func (t *HTTP) dial(context.Context, string, string) (net.Conn, error) {
	t.lock.Lock()
	defer t.lock.Unlock()
	if t.pending == nil {
		return nil, errConnUsed
	}
	conn := t.pending
	t.pending = nil
	return conn, nil
}

// Get sends a GET request for path over the open connection.
func (t *HTTP) Get(ctx context.Context, path string) error {
	t.lock.Lock()
	base := t.base
	connected := t.conn != nil
	t.lock.Unlock()
	if !connected {
		return errNotConnected
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodGet, base+path, nil)
	if err != nil {
		return err
	}
	if len(t.options.UserAgent) > 0 {
		request.Header.Set("User-Agent", t.options.UserAgent)
	}
	logger.Debugf("GET %s", request.URL)
	response, err := t.client.Do(request)
	if err != nil {
		return err
	}

	t.lock.Lock()
	defer t.lock.Unlock()
	t.response = response
	t.readErr = nil
	return nil
}

// StatusCode returns the status code of the last response or 0 without one.
func (t *HTTP) StatusCode() int {
	if response := t.current(); response != nil {
		return response.StatusCode
	}
	return 0
}

// Body reads the remaining response body as text. Bodies larger than
// MaxBodySize are rejected.
func (t *HTTP) Body() (string, error) {
	response := t.current()
	if response == nil {
		return "", errNoResponse
	}
	if response.ContentLength > MaxBodySize {
		t.failed(errBodyTooLarge)
		return "", errBodyTooLarge
	}
	data, err := io.ReadAll(io.LimitReader(response.Body, MaxBodySize+1))
	if err != nil {
		t.failed(err)
		return "", err
	}
	if len(data) > MaxBodySize {
		t.failed(errBodyTooLarge)
		return "", errBodyTooLarge
	}
	return string(data), nil
}

// ContentLength returns the declared size of the response body, -1 if unknown.
func (t *HTTP) ContentLength() int64 {
	if response := t.current(); response != nil {
		return response.ContentLength
	}
	return -1
}

// ReadChunk reads up to len(buf) bytes of the response body.
func (t *HTTP) ReadChunk(buf []byte) (int, error) {
	response := t.current()
	if response == nil {
		return 0, errNoResponse
	}
	n, err := response.Body.Read(buf)
	if err != nil && err != io.EOF {
		t.failed(err)
	}
	return n, err
}

// SetReadDeadline sets the read deadline of the open connection. It bounds
// the wait for the response headers as well as every body read.
func (t *HTTP) SetReadDeadline(deadline time.Time) error {
	t.lock.Lock()
	conn := t.conn
	t.lock.Unlock()
	if conn == nil {
		return errNotConnected
	}
	return conn.SetReadDeadline(deadline)
}

// IsConnected reports whether the connection is open and no read failed.
func (t *HTTP) IsConnected() bool {
	t.lock.Lock()
	defer t.lock.Unlock()
	return t.conn != nil && t.readErr == nil
}

// Close releases the response and the connection. It is safe to call on a
// transport that is not connected.
func (t *HTTP) Close() error {
	t.lock.Lock()
	response := t.response
	conn := t.conn
	t.response = nil
	t.conn = nil
	t.pending = nil
	t.readErr = nil
	t.lock.Unlock()

	var err error
	if response != nil {
		err = response.Body.Close()
	}
	if conn != nil {
		if cerr := conn.Close(); cerr != nil && !errors.Is(cerr, net.ErrClosed) && err == nil {
			err = cerr
		}
	}
	t.client.CloseIdleConnections()
	return err
}

func (t *HTTP) current() *http.Response {
	t.lock.Lock()
	defer t.lock.Unlock()
	return t.response
}

func (t *HTTP) failed(err error) {
	t.lock.Lock()
	defer t.lock.Unlock()
	t.readErr = err
}
