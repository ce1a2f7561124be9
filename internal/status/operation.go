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
	"github.com/eclipse-kanto/firmware-update/internal/ota"
)

// Status represents the result of an update cycle as reported to the twin.
type Status string

// Supported operation statuses.
const (
	// StatusNoUpdate represents a cycle that found the current version on the server.
	StatusNoUpdate Status = "NO_UPDATE"
	// StatusFinishedSuccess represents a flashed image, the device is about to reboot.
	StatusFinishedSuccess Status = "FINISHED_SUCCESS"
	// StatusFinishedError represents a cycle that failed.
	StatusFinishedError Status = "FINISHED_ERROR"
)

// Operation is the status of the last update cycle.
type Operation struct {
	// CorrelationID correlates the operation with the agent log entries.
	CorrelationID  string `json:"correlationId"`
	Status         Status `json:"status"`
	CurrentVersion string `json:"currentVersion,omitempty"`
	RemoteVersion  string `json:"remoteVersion,omitempty"`
	// Failure is the kind of the failure, absent on success.
	Failure      string `json:"failure,omitempty"`
	Message      string `json:"message,omitempty"`
	BytesWritten int64  `json:"bytesWritten,omitempty"`
	// StartTime and EndTime are Unix milliseconds.
	StartTime int64 `json:"startTime"`
	EndTime   int64 `json:"endTime"`
}

// NewOperation converts an update cycle outcome.
func NewOperation(outcome *ota.Outcome) *Operation {
	op := &Operation{
		CorrelationID:  outcome.ID,
		Status:         StatusNoUpdate,
		CurrentVersion: outcome.CurrentVersion.String(),
		RemoteVersion:  outcome.RemoteVersion.String(),
		BytesWritten:   outcome.BytesWritten,
		StartTime:      outcome.Started.UnixMilli(),
		EndTime:        outcome.Finished.UnixMilli(),
	}
	switch {
	case outcome.Err != nil:
		op.Status = StatusFinishedError
		op.Message = outcome.Err.Error()
		// A failed reboot request has no failure kind.
		if outcome.Kind != ota.OK {
			op.Failure = outcome.Kind.String()
		}
	case outcome.Succeeded():
		op.Status = StatusFinishedSuccess
	}
	return op
}

// Failed reports whether the operation finished with an error.
func (op *Operation) Failed() bool {
	return op.Status == StatusFinishedError
}
