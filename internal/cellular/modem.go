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

package cellular

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/eclipse-kanto/firmware-update/internal/logger"
)

// Default modem timings.
const (
	DefaultCommandTimeout      = 10 * time.Second
	DefaultRegistrationTimeout = time.Minute
	DefaultPollInterval        = time.Second

	// contextID is the PDP context used for the data session.
	contextID = 1
)

var (
	// ErrTimeout represents a command without a final result code in time.
	ErrTimeout = errors.New("modem response timeout")
	// ErrCommand represents a command answered with an error result code.
	ErrCommand = errors.New("modem command failed")
	// ErrClosed represents a modem port that reached the end of its input.
	ErrClosed = errors.New("modem port closed")
	// ErrNotRegistered represents a modem without network registration.
	ErrNotRegistered = errors.New("network not found")
)

// Options holds the modem timings.
type Options struct {
	CommandTimeout      time.Duration
	RegistrationTimeout time.Duration
	PollInterval        time.Duration
}

// Modem is a cellular modem controlled with AT commands over a serial port.
type Modem struct {
	options Options
	port    io.ReadWriter
	// lines is filled by the port reader. The reader waits while it is
	// full, so that no response line is lost.
	lines chan string
	done  chan struct{}
	once  sync.Once

	lock      sync.Mutex
	restarted bool
}

// New creates a modem on an open serial port and starts reading its responses.
func New(port io.ReadWriter, options Options) *Modem {
	if options.CommandTimeout <= 0 {
		options.CommandTimeout = DefaultCommandTimeout
	}
	if options.RegistrationTimeout <= 0 {
		options.RegistrationTimeout = DefaultRegistrationTimeout
	}
	if options.PollInterval <= 0 {
		options.PollInterval = DefaultPollInterval
	}
	m := &Modem{
		options: options,
		port:    port,
		lines:   make(chan string, 64),
		done:    make(chan struct{}),
	}
	go m.read()
	return m
}

// Attach restarts the modem on the first call, waits for the network
// registration and activates the data session with the APN credentials.
func (m *Modem) Attach(ctx context.Context, apn, user, pass string) error {
	if !m.restarted {
		logger.Info("restarting modem")
		if err := m.Restart(ctx); err != nil {
			return err
		}
		m.restarted = true
	}

	if err := m.waitForNetwork(ctx); err != nil {
		return err
	}
	logger.Info("network connected")

	if _, err := m.Command(ctx, fmt.Sprintf(`AT+CGDCONT=%d,"IP","%s"`, contextID, apn)); err != nil {
		return err
	}
	if len(user) > 0 || len(pass) > 0 {
		// PAP authentication.
		if _, err := m.Command(ctx, fmt.Sprintf(`AT+CGAUTH=%d,1,"%s","%s"`, contextID, user, pass)); err != nil {
			return err
		}
	}
	if _, err := m.Command(ctx, fmt.Sprintf("AT+CGACT=1,%d", contextID)); err != nil {
		return err
	}
	if !m.IsDataSessionActive(ctx) {
		return fmt.Errorf("data session for APN %s not active", apn)
	}
	logger.Infof("data session active [APN: %s]", apn)
	return nil
}

// IsNetworkAvailable reports whether the modem is registered to its home
// network or roaming.
func (m *Modem) IsNetworkAvailable(ctx context.Context) bool {
	for _, query := range []string{"AT+CEREG?", "AT+CREG?"} {
		response, err := m.Command(ctx, query)
		if err != nil {
			logger.Debugf("failed to query network registration: %v", err)
			continue
		}
		for _, line := range response {
			if fields, ok := parse(line, query[2:len(query)-1]); ok && len(fields) > 1 {
				if stat := fields[1]; stat == "1" || stat == "5" {
					return true
				}
			}
		}
	}
	return false
}

// IsDataSessionActive reports whether the PDP context is activated.
func (m *Modem) IsDataSessionActive(ctx context.Context) bool {
	response, err := m.Command(ctx, "AT+CGACT?")
	if err != nil {
		logger.Debugf("failed to query data session: %v", err)
		return false
	}
	for _, line := range response {
		if fields, ok := parse(line, "+CGACT"); ok && len(fields) > 1 {
			if fields[0] == fmt.Sprint(contextID) && fields[1] == "1" {
				return true
			}
		}
	}
	return false
}

// Restart resets the modem and waits until it answers again.
func (m *Modem) Restart(ctx context.Context) error {
	if _, err := m.Command(ctx, "AT+CFUN=1,1"); err != nil {
		return err
	}
	if err := m.waitReady(ctx); err != nil {
		return err
	}
	// Echo off.
	_, err := m.Command(ctx, "ATE0")
	return err
}

// Command sends an AT command and returns the information lines of its response.
func (m *Modem) Command(ctx context.Context, command string) ([]string, error) {
	return m.command(ctx, command, m.options.CommandTimeout)
}

func (m *Modem) command(ctx context.Context, command string, timeout time.Duration) ([]string, error) {
	m.lock.Lock()
	defer m.lock.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.drain()
	logger.Tracef("modem <- %s", command)
	if _, err := io.WriteString(m.port, command+"\r"); err != nil {
		return nil, err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	var response []string
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
			return nil, fmt.Errorf("%s: %w", command, ErrTimeout)
		case line, ok := <-m.lines:
			if !ok {
				return nil, ErrClosed
			}
			logger.Tracef("modem -> %s", line)
			switch {
			case line == command:
				// echo
			case line == "OK":
				return response, nil
			case line == "ERROR", strings.HasPrefix(line, "+CME ERROR"), strings.HasPrefix(line, "+CMS ERROR"):
				return nil, fmt.Errorf("%s: %w: %s", command, ErrCommand, line)
			default:
				response = append(response, line)
			}
		}
	}
}

func (m *Modem) waitReady(ctx context.Context) error {
	deadline := time.Now().Add(m.options.RegistrationTimeout)
	for {
		_, err := m.command(ctx, "AT", m.options.PollInterval)
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrClosed) || ctx.Err() != nil || time.Now().After(deadline) {
			return fmt.Errorf("modem not responding: %w", err)
		}
	}
}

func (m *Modem) waitForNetwork(ctx context.Context) error {
	deadline := time.Now().Add(m.options.RegistrationTimeout)
	for !m.IsNetworkAvailable(ctx) {
		if time.Now().After(deadline) {
			return ErrNotRegistered
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(m.options.PollInterval):
		}
	}
	return nil
}

// drain discards unsolicited lines received between two commands.
func (m *Modem) drain() {
	for {
		select {
		case line, ok := <-m.lines:
			if !ok {
				return
			}
			logger.Tracef("modem unsolicited: %s", line)
		default:
			return
		}
	}
}

func (m *Modem) read() {
	defer close(m.lines)
	scanner := bufio.NewScanner(m.port)
	scanner.Split(scanLines)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); len(line) > 0 {
			select {
			case m.lines <- line:
			case <-m.done:
				return
			}
		}
	}
	if err := scanner.Err(); err != nil {
		logger.Debugf("modem read stopped: %v", err)
	}
}

// Close stops the port reader and closes the serial port if it can be closed.
func (m *Modem) Close() error {
	m.once.Do(func() { close(m.done) })
	if closer, ok := m.port.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// scanLines splits the modem output at carriage returns and line feeds.
func scanLines(data []byte, atEOF bool) (int, []byte, error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

// parse splits the values of a "+NAME: a,b,c" information line.
func parse(line, name string) ([]string, bool) {
	value, ok := strings.CutPrefix(line, name+":")
	if !ok {
		return nil, false
	}
	fields := strings.Split(value, ",")
	for i := range fields {
		fields[i] = strings.Trim(strings.TrimSpace(fields[i]), `"`)
	}
	return fields, true
}
