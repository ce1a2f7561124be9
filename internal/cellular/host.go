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

import "context"

// HostNetwork is used on devices without a modem, the network is managed by
// the operating system and is always considered available.
type HostNetwork struct{}

// Attach does nothing.
func (HostNetwork) Attach(context.Context, string, string, string) error {
	return nil
}

// IsNetworkAvailable always returns true.
func (HostNetwork) IsNetworkAvailable(context.Context) bool {
	return true
}

// IsDataSessionActive always returns true.
func (HostNetwork) IsDataSessionActive(context.Context) bool {
	return true
}
