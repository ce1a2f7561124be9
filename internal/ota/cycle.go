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
	"time"

	"github.com/eclipse-kanto/firmware-update/internal/logger"

	"github.com/google/uuid"
	"github.com/looplab/fsm"
)

// Update cycle states.
const (
	StateIdle     = "idle"
	StateChecking = "checking"
	StateUpdating = "updating"
	StateReboot   = "reboot"
)

const (
	eventCheck  = "check"
	eventUpdate = "update"
	eventDone   = "done"
	eventReboot = "reboot"
)

// Outcome is the result of one update cycle.
type Outcome struct {
	// ID correlates the log entries and reports of a cycle.
	ID              string
	State           string
	Kind            FailureKind
	Err             error
	CurrentVersion  Version
	RemoteVersion   Version
	UpdateAvailable bool
	BytesWritten    int64
	Started         time.Time
	Finished        time.Time
}

// Succeeded reports whether a new image was flashed.
func (o *Outcome) Succeeded() bool {
	return o.Kind == OK && o.UpdateAvailable
}

func newCycleFSM() *fsm.FSM {
	return fsm.NewFSM(
		StateIdle,
		fsm.Events{
			{Name: eventCheck, Src: []string{StateIdle}, Dst: StateChecking},
			{Name: eventUpdate, Src: []string{StateChecking}, Dst: StateUpdating},
			{Name: eventReboot, Src: []string{StateUpdating}, Dst: StateReboot},
			// The reboot state is final. A failed reboot request is retried by
			// the next cycle without downloading the image again.
			{Name: eventDone, Src: []string{StateChecking, StateUpdating}, Dst: StateIdle},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				logger.Tracef("update cycle: %s -> %s", e.Src, e.Dst)
			},
		},
	)
}

// RunCycle checks for a new firmware version and, if there is one, downloads,
// flashes and reboots into it. Failures are logged and reported in the
// returned outcome, the caller retries after the poll interval. Once an image
// is flashed, the following cycles only retry the reboot into it.
func (s *Session) RunCycle(ctx context.Context) *Outcome {
	s.cycleLock.Lock()
	defer s.cycleLock.Unlock()

	settings := s.Settings()
	outcome := &Outcome{
		ID:             uuid.New().String(),
		CurrentVersion: settings.CurrentVersion,
		Started:        s.now(),
	}
	if s.State() == StateReboot {
		s.retryReboot(outcome)
	} else {
		s.event(ctx, eventCheck)
		s.runCycle(ctx, settings, outcome)
	}

	outcome.State = s.State()
	outcome.Finished = s.now()
	// A successful update is reported before the reboot request.
	if outcome.State != StateReboot || outcome.Err != nil {
		s.notify(outcome)
	}
	return outcome
}

func (s *Session) runCycle(ctx context.Context, settings Settings, outcome *Outcome) {
	defer func() {
		if s.State() != StateReboot {
			s.event(ctx, eventDone)
		}
	}()

	if err := s.ensureConnectivity(ctx); err != nil {
		s.fail(outcome, err)
		return
	}

	available, remote, err := s.checkForUpdate(ctx, settings)
	outcome.RemoteVersion = remote
	if err != nil {
		s.fail(outcome, err)
		return
	}
	if !available {
		logger.Infof("[%s] No update available", outcome.ID)
		return
	}

	outcome.UpdateAvailable = true
	logger.Infof("[%s] New version available: %s", outcome.ID, remote)
	s.event(ctx, eventUpdate)
	written, err := s.performOTA(ctx, settings.FirmwareURL(remote), settings)
	outcome.BytesWritten = written
	if err != nil {
		s.fail(outcome, err)
		return
	}

	logger.Infof("[%s] OTA successful, rebooting into %s", outcome.ID, remote)
	s.event(ctx, eventReboot)
	s.flashed = remote
	outcome.State = StateReboot
	outcome.Finished = s.now()
	s.notify(outcome)
	s.reboot(outcome)
}

func (s *Session) retryReboot(outcome *Outcome) {
	outcome.RemoteVersion = s.flashed
	outcome.UpdateAvailable = true
	logger.Infof("[%s] Retry reboot into %s", outcome.ID, s.flashed)
	s.reboot(outcome)
}

func (s *Session) reboot(outcome *Outcome) {
	if err := s.rebooter.Reboot(); err != nil {
		logger.Errorf("[%s] failed to reboot: %v", outcome.ID, err)
		outcome.Err = err
	}
}

func (s *Session) fail(outcome *Outcome, err error) {
	outcome.Kind = KindOf(err)
	outcome.Err = err
	logger.Errorf("[%s] update cycle failed: %v", outcome.ID, err)
}

func (s *Session) event(ctx context.Context, name string) {
	if err := s.fsm.Event(ctx, name); err != nil {
		logger.Debugf("update cycle event %s in state %s: %v", name, s.fsm.Current(), err)
	}
}

func (s *Session) notify(outcome *Outcome) {
	for _, o := range s.observers {
		o(outcome)
	}
}
