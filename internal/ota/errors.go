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
	"errors"
	"fmt"
)

// FailureKind classifies the outcome of an update attempt.
type FailureKind int

// Supported failure kinds.
const (
	OK FailureKind = iota
	ConnectivityFailure
	TransportFailure
	ProtocolFailure
	CapacityFailure
	StreamFailure
	FinalizeFailure
)

var kindNames = map[FailureKind]string{
	OK:                  "OK",
	ConnectivityFailure: "CONNECTIVITY_FAILURE",
	TransportFailure:    "TRANSPORT_FAILURE",
	ProtocolFailure:     "PROTOCOL_FAILURE",
	CapacityFailure:     "CAPACITY_FAILURE",
	StreamFailure:       "STREAM_FAILURE",
	FinalizeFailure:     "FINALIZE_FAILURE",
}

func (k FailureKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("FailureKind(%d)", int(k))
}

var (
	// ErrStatus represents a response with a status code other than 200.
	ErrStatus = errors.New("unexpected http status code")
	// ErrEmptyVersion represents a version manifest without a version.
	ErrEmptyVersion = errors.New("empty version manifest")
	// ErrContentLength represents a missing or non-positive content length.
	ErrContentLength = errors.New("invalid content length")
	// ErrShortWrite represents a flash write that accepted fewer bytes than given.
	ErrShortWrite = errors.New("short flash write")
	// ErrTruncated represents a transfer that ended before the declared size was received.
	ErrTruncated = errors.New("truncated transfer")
	// ErrStalled represents a transfer without progress for longer than the stall timeout.
	ErrStalled = errors.New("transfer stalled")
	// ErrTimeout represents a transfer that exceeded the transfer timeout.
	ErrTimeout = errors.New("transfer timed out")
	// ErrFinalize represents a flash sink that failed to commit the image.
	ErrFinalize = errors.New("flash finalize error")
	// ErrNotFinished represents a flash sink that finalized without a complete image.
	ErrNotFinished = errors.New("flash update not finished")
)

// Error is an update failure with its kind and the operation that failed.
type Error struct {
	Kind FailureKind
	Op   string
	Err  error
}

func newError(kind FailureKind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s [%s]: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the failure kind of err. A nil error is OK and errors that
// were not produced by this package are reported as TransportFailure.
func KindOf(err error) FailureKind {
	if err == nil {
		return OK
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return TransportFailure
}
