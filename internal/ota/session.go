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
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/eclipse-kanto/firmware-update/internal/logger"

	"github.com/looplab/fsm"
)

const (
	// ChunkSize is the maximum number of firmware bytes held in memory at once.
	ChunkSize = 1024
	// FirmwareSuffix is appended to the remote version to build the image path.
	FirmwareSuffix = ".bin"

	// DefaultPollInterval is the delay between two update cycles.
	DefaultPollInterval = time.Minute
	// DefaultStallTimeout is the longest a transfer may go without receiving bytes.
	DefaultStallTimeout = 30 * time.Second
	// DefaultTransferTimeout bounds the duration of a whole firmware transfer.
	DefaultTransferTimeout = 10 * time.Minute
)

// Version is a firmware release identifier. Versions are opaque, two versions
// differ iff their trimmed text differs.
type Version string

// ParseVersion trims the surrounding whitespace of s.
func ParseVersion(s string) Version {
	return Version(strings.TrimSpace(s))
}

// Differs reports whether v and other identify different releases.
func (v Version) Differs(other Version) bool {
	return v != other
}

func (v Version) String() string {
	return string(v)
}

// Connection holds the immutable connection parameters of a Session.
type Connection struct {
	Server   string
	Port     int
	APN      string
	User     string
	Password string
}

// Settings holds the parameters of a Session that may change between cycles.
type Settings struct {
	CurrentVersion   Version
	VersionPath      string
	FirmwareBasePath string
	PollInterval     time.Duration
	StallTimeout     time.Duration
	TransferTimeout  time.Duration
}

// FirmwareURL returns the path of the firmware image for the given version.
func (s Settings) FirmwareURL(v Version) string {
	return s.FirmwareBasePath + string(v) + FirmwareSuffix
}

// Progress is called after every chunk written to the flash sink.
type Progress func(written, total int64)

// Observer is notified with the outcome of every cycle. On success it is
// notified before the device reboots.
type Observer func(outcome *Outcome)

// Session is the OTA update component. It owns the connectivity, transport,
// flash sink and reboot collaborators and runs update cycles one at a time.
type Session struct {
	conn         Connection
	connectivity Connectivity
	transport    Transport
	sink         FlashSink
	rebooter     Rebooter

	settingsLock sync.Mutex
	settings     Settings

	cycleLock sync.Mutex
	fsm       *fsm.FSM
	observers []Observer
	progress  Progress
	// flashed is the version of the image waiting for the reboot.
	flashed Version

	now func() time.Time
}

// NewSession creates a Session with the given connection parameters,
// collaborators and initial settings. Zero durations are replaced by their defaults.
func NewSession(conn Connection, deps Dependencies, settings Settings) (*Session, error) {
	if deps.Connectivity == nil || deps.Transport == nil || deps.Sink == nil || deps.Rebooter == nil {
		return nil, errors.New("connectivity, transport, flash sink and rebooter are mandatory")
	}
	if conn.Server == "" {
		return nil, errors.New("server is mandatory")
	}
	s := &Session{
		conn:         conn,
		connectivity: deps.Connectivity,
		transport:    deps.Transport,
		sink:         deps.Sink,
		rebooter:     deps.Rebooter,
		now:          time.Now,
	}
	s.fsm = newCycleFSM()
	s.Apply(settings)
	return s, nil
}

// SetVersion sets the version of the running firmware.
func (s *Session) SetVersion(version string) {
	s.settingsLock.Lock()
	defer s.settingsLock.Unlock()
	s.settings.CurrentVersion = ParseVersion(version)
}

// SetDelay sets the delay between two update cycles.
func (s *Session) SetDelay(delay time.Duration) {
	s.settingsLock.Lock()
	defer s.settingsLock.Unlock()
	if delay <= 0 {
		delay = DefaultPollInterval
	}
	s.settings.PollInterval = delay
}

// SetPaths sets the version manifest path and the firmware base path.
func (s *Session) SetPaths(versionPath, firmwareBasePath string) {
	s.settingsLock.Lock()
	defer s.settingsLock.Unlock()
	s.settings.VersionPath = versionPath
	s.settings.FirmwareBasePath = firmwareBasePath
}

// Apply replaces all mutable settings at once.
func (s *Session) Apply(settings Settings) {
	settings.CurrentVersion = ParseVersion(string(settings.CurrentVersion))
	if settings.PollInterval <= 0 {
		settings.PollInterval = DefaultPollInterval
	}
	if settings.StallTimeout <= 0 {
		settings.StallTimeout = DefaultStallTimeout
	}
	if settings.TransferTimeout <= 0 {
		settings.TransferTimeout = DefaultTransferTimeout
	}
	s.settingsLock.Lock()
	defer s.settingsLock.Unlock()
	s.settings = settings
}

// Settings returns a snapshot of the current settings.
func (s *Session) Settings() Settings {
	s.settingsLock.Lock()
	defer s.settingsLock.Unlock()
	return s.settings
}

// AddObserver registers an observer for cycle outcomes. Observers must be
// added before the first cycle.
func (s *Session) AddObserver(o Observer) {
	s.observers = append(s.observers, o)
}

// SetProgress registers a download progress callback.
func (s *Session) SetProgress(p Progress) {
	s.progress = p
}

// State returns the current state of the update cycle.
func (s *Session) State() string {
	return s.fsm.Current()
}

// Begin brings up the data session. A failure is not fatal, the data session
// is checked again at the start of every cycle.
func (s *Session) Begin(ctx context.Context) error {
	logger.Infof("Initializing data session [Server: %s:%d, APN: %s]", s.conn.Server, s.conn.Port, s.conn.APN)
	if err := s.ensureConnectivity(ctx); err != nil {
		logger.Errorf("failed to bring up data session: %v", err)
		return err
	}
	logger.Info("data session established")
	return nil
}

// Run executes update cycles until ctx is done or the device reboots.
// The configured poll interval is waited between two cycles, also before a
// failed reboot request is retried.
func (s *Session) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if outcome := s.RunCycle(ctx); outcome.State == StateReboot && outcome.Err == nil {
			return nil
		}
		delay := s.Settings().PollInterval
		logger.Debugf("Next update check in %v", delay)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (s *Session) ensureConnectivity(ctx context.Context) error {
	if s.connectivity.IsDataSessionActive(ctx) {
		return nil
	}
	logger.Debugf("Attach to network with APN: %s", s.conn.APN)
	if err := s.connectivity.Attach(ctx, s.conn.APN, s.conn.User, s.conn.Password); err != nil {
		return newError(ConnectivityFailure, "attach", err)
	}
	if !s.connectivity.IsNetworkAvailable(ctx) {
		return newError(ConnectivityFailure, "attach", errors.New("network not available"))
	}
	return nil
}

// connect opens the transport and returns a release function that closes it
// exactly once. The transport is closed even when Connect fails.
func (s *Session) connect(ctx context.Context, op string) (func(), error) {
	var once sync.Once
	release := func() {
		once.Do(func() {
			if err := s.transport.Close(); err != nil {
				logger.Debugf("failed to close connection: %v", err)
			}
		})
	}
	if err := s.transport.Connect(ctx, s.conn.Server, s.conn.Port); err != nil {
		release()
		return nil, newError(TransportFailure, op, err)
	}
	return release, nil
}
