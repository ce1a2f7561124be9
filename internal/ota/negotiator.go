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
	"fmt"
	"net/http"

	"github.com/eclipse-kanto/firmware-update/internal/logger"
)

const opCheck = "check for update"

// CheckForUpdate fetches the version manifest and compares it with the
// current version. It reports no update together with the cause on any
// transport or protocol error.
func (s *Session) CheckForUpdate(ctx context.Context) (bool, Version, error) {
	return s.checkForUpdate(ctx, s.Settings())
}

func (s *Session) checkForUpdate(ctx context.Context, settings Settings) (bool, Version, error) {
	logger.Infof("Check for update [%s]", settings.VersionPath)

	release, err := s.connect(ctx, opCheck)
	if err != nil {
		logger.Errorf("connection to server %s:%d failed: %v", s.conn.Server, s.conn.Port, err)
		return false, "", err
	}
	defer release()

	ctx, cancel := context.WithTimeoutCause(ctx, settings.TransferTimeout, ErrTimeout)
	defer cancel()
	// The manifest is small, a single stall period covers headers and body.
	s.setReadDeadline(s.now().Add(settings.StallTimeout))

	if err := s.transport.Get(ctx, settings.VersionPath); err != nil {
		logger.Errorf("failed to request version manifest: %v", err)
		return false, "", newError(TransportFailure, opCheck, err)
	}

	status := s.transport.StatusCode()
	if status != http.StatusOK {
		logger.Warnf("failed to fetch version manifest (%d)", status)
		return false, "", newError(ProtocolFailure, opCheck, fmt.Errorf("%w: %d", ErrStatus, status))
	}

	body, err := s.transport.Body()
	if err != nil {
		logger.Errorf("failed to read version manifest: %v", err)
		return false, "", newError(TransportFailure, opCheck, err)
	}
	remote := ParseVersion(body)
	if remote == "" {
		logger.Warn("version manifest is empty")
		return false, "", newError(ProtocolFailure, opCheck, ErrEmptyVersion)
	}

	logger.Infof("Online version: %s | Current: %s", remote, settings.CurrentVersion)
	return remote.Differs(settings.CurrentVersion), remote, nil
}
