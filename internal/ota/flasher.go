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
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"time"

	"github.com/eclipse-kanto/firmware-update/internal/logger"
)

const opUpdate = "perform update"

// transfer tracks a single firmware download into the flash sink.
type transfer struct {
	total   int64
	written int64
	percent int
}

// PerformOTA downloads the firmware image from firmwareURL and streams it
// into the flash sink. It returns nil only if the complete image was written
// and committed.
func (s *Session) PerformOTA(ctx context.Context, firmwareURL string) error {
	_, err := s.performOTA(ctx, firmwareURL, s.Settings())
	return err
}

func (s *Session) performOTA(ctx context.Context, firmwareURL string, settings Settings) (int64, error) {
	logger.Infof("Starting OTA download [%s]", firmwareURL)

	release, err := s.connect(ctx, opUpdate)
	if err != nil {
		logger.Errorf("connection to server %s:%d failed: %v", s.conn.Server, s.conn.Port, err)
		return 0, err
	}
	defer release()

	// The transfer timeout also covers a server that never answers.
	started := s.now()
	ctx, cancel := context.WithTimeoutCause(ctx, settings.TransferTimeout, ErrTimeout)
	defer cancel()

	s.setReadDeadline(started.Add(settings.StallTimeout))
	if err := s.transport.Get(ctx, firmwareURL); err != nil {
		logger.Errorf("failed to request firmware: %v", err)
		return 0, newError(TransportFailure, opUpdate, err)
	}
	if status := s.transport.StatusCode(); status != http.StatusOK {
		logger.Errorf("failed to fetch firmware, http status %d", status)
		return 0, newError(ProtocolFailure, opUpdate, fmt.Errorf("%w: %d", ErrStatus, status))
	}

	t := &transfer{total: s.transport.ContentLength(), percent: -1}
	if t.total <= 0 {
		logger.Errorf("invalid content length: %d", t.total)
		return 0, newError(ProtocolFailure, opUpdate, fmt.Errorf("%w: %d", ErrContentLength, t.total))
	}

	logger.Infof("Firmware size: %d bytes", t.total)
	if err := s.sink.Begin(t.total); err != nil {
		logger.Errorf("not enough space for OTA: %v", err)
		return 0, newError(CapacityFailure, opUpdate, err)
	}

	streamErr := s.stream(ctx, t, started, settings)
	release()

	// The sink is always finalized so that no transaction stays open.
	endErr := s.sink.End()

	switch {
	case streamErr != nil:
		logger.Errorf("firmware download interrupted at %d / %d bytes: %v", t.written, t.total, streamErr)
		return t.written, newError(StreamFailure, opUpdate, streamErr)
	case t.written < t.total:
		logger.Errorf("firmware download truncated at %d / %d bytes", t.written, t.total)
		return t.written, newError(StreamFailure, opUpdate, fmt.Errorf("%w: %d / %d bytes", ErrTruncated, t.written, t.total))
	case endErr != nil:
		logger.Errorf("OTA error: %v", endErr)
		return t.written, newError(FinalizeFailure, opUpdate, fmt.Errorf("%w: %v", ErrFinalize, endErr))
	case !s.sink.IsFinished():
		logger.Warn("OTA not finished properly")
		return t.written, newError(FinalizeFailure, opUpdate, ErrNotFinished)
	}
	logger.Info("OTA complete")
	return t.written, nil
}

// stream copies the response body into the flash sink chunk by chunk while
// the transport is connected and the declared size is not reached. Every read
// is bounded by a connection deadline, so that neither a silent server nor a
// half-open connection holds the transfer beyond the stall or transfer timeout.
func (s *Session) stream(ctx context.Context, t *transfer, started time.Time, settings Settings) error {
	buf := make([]byte, ChunkSize)
	lastRead := started
	expires := started.Add(settings.TransferTimeout)
	for s.transport.IsConnected() && t.written < t.total {
		if err := ctx.Err(); err != nil {
			return s.interrupted(ctx, settings)
		}
		now := s.now()
		if now.Sub(started) > settings.TransferTimeout {
			return fmt.Errorf("%w after %v", ErrTimeout, settings.TransferTimeout)
		}
		if now.Sub(lastRead) > settings.StallTimeout {
			return fmt.Errorf("%w for %v", ErrStalled, settings.StallTimeout)
		}

		deadline := lastRead.Add(settings.StallTimeout)
		if expires.Before(deadline) {
			deadline = expires
		}
		s.setReadDeadline(deadline)

		chunk := buf
		if remaining := t.total - t.written; remaining < int64(len(chunk)) {
			chunk = chunk[:remaining]
		}
		n, rerr := s.transport.ReadChunk(chunk)
		if n > 0 {
			lastRead = s.now()
			w, werr := s.sink.Write(chunk[:n])
			if w > 0 {
				t.written += int64(w)
				s.reportProgress(t)
			}
			if werr != nil {
				return fmt.Errorf("flash write failed: %w", werr)
			}
			if w != n {
				return fmt.Errorf("%w: %d of %d bytes", ErrShortWrite, w, n)
			}
		}
		if rerr != nil {
			if errors.Is(rerr, io.EOF) {
				return nil
			}
			switch {
			case ctx.Err() != nil:
				return s.interrupted(ctx, settings)
			case !s.now().Before(expires):
				return fmt.Errorf("%w after %v: %v", ErrTimeout, settings.TransferTimeout, rerr)
			case errors.Is(rerr, os.ErrDeadlineExceeded):
				return fmt.Errorf("%w for %v: %v", ErrStalled, settings.StallTimeout, rerr)
			}
			return rerr
		}
	}
	return nil
}

// interrupted maps the end of the transfer context to a timeout unless the
// caller canceled the transfer.
func (s *Session) interrupted(ctx context.Context, settings Settings) error {
	if errors.Is(context.Cause(ctx), ErrTimeout) {
		return fmt.Errorf("%w after %v", ErrTimeout, settings.TransferTimeout)
	}
	return ctx.Err()
}

// setReadDeadline bounds the next transport reads. A transport that cannot
// set a deadline still has the checks between reads.
func (s *Session) setReadDeadline(deadline time.Time) {
	if err := s.transport.SetReadDeadline(deadline); err != nil {
		logger.Debugf("failed to set read deadline: %v", err)
	}
}

func (s *Session) reportProgress(t *transfer) {
	if s.progress != nil {
		s.progress(t.written, t.total)
	}
	if percent := int(math.Floor(float64(t.written) / float64(t.total) * 100.0)); percent != t.percent {
		t.percent = percent
		logger.Debugf("Progress: %d / %d bytes (%d%%)", t.written, t.total, percent)
	}
}
