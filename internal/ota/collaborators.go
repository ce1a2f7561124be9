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
)

type (
	// Connectivity brings up the cellular data session used by the transport.
	Connectivity interface {
		// Attach registers to the network and opens a data session with the
		// provided APN credentials.
		Attach(ctx context.Context, apn, user, pass string) error
		// IsNetworkAvailable reports whether the modem is registered to a network.
		IsNetworkAvailable(ctx context.Context) bool
		// IsDataSessionActive reports whether the data session is up.
		IsDataSessionActive(ctx context.Context) bool
	}

	// Transport is a single request/response HTTP connection to the update server.
	// Only one request is in flight at a time and Close must be safe to call
	// after a failed Connect.
	Transport interface {
		Connect(ctx context.Context, host string, port int) error
		Get(ctx context.Context, path string) error
		StatusCode() int
		// Body reads the whole response body as text.
		Body() (string, error)
		// ContentLength returns the declared body size or a value <= 0 if unknown.
		ContentLength() int64
		// ReadChunk reads up to len(buf) bytes of the response body. It returns
		// io.EOF once the body is exhausted.
		ReadChunk(buf []byte) (int, error)
		// SetReadDeadline bounds the reads of the connection, including the
		// wait for the response headers. A zero value clears the deadline.
		SetReadDeadline(deadline time.Time) error
		IsConnected() bool
		Close() error
	}

	// FlashSink is the device flash-update slot. There is exactly one and it
	// holds at most one open transaction.
	FlashSink interface {
		// Begin reserves size bytes for a new image. It fails if there is not
		// enough space.
		Begin(size int64) error
		Write(p []byte) (int, error)
		// End finalizes the transaction. The returned error describes why the
		// image could not be committed.
		End() error
		// IsFinished reports whether the last transaction produced a complete image.
		IsFinished() bool
	}

	// Rebooter restarts the device into the newly flashed image.
	Rebooter interface {
		Reboot() error
	}
)

// Dependencies groups the collaborators a Session owns.
type Dependencies struct {
	Connectivity Connectivity
	Transport    Transport
	Sink         FlashSink
	Rebooter     Rebooter
}
