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

package device

import (
	"fmt"
	"os/exec"
	"strings"

	"github.com/eclipse-kanto/firmware-update/internal/logger"
)

// Rebooter restarts the device with the configured command or, without one,
// with the reboot system call.
type Rebooter struct {
	command Command
	reboot  func() error
}

// NewRebooter creates a rebooter for the given command.
func NewRebooter(command Command) *Rebooter {
	return &Rebooter{command: command, reboot: systemReboot}
}

// Reboot restarts the device. On success it does not return when the reboot
// system call is used.
func (r *Rebooter) Reboot() error {
	if r.command.IsEmpty() {
		logger.Info("rebooting device")
		return r.reboot()
	}

	c := exec.Command(r.command.Name, r.command.Args...)
	logger.Infof("Execute reboot command %s", c.Args)
	if out, err := c.CombinedOutput(); err != nil {
		return fmt.Errorf("reboot command %s failed: %w: %s", c.Args, err, strings.TrimSpace(string(out)))
	}
	return nil
}
