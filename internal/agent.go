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

package feature

import (
	"context"
	"os"
	"time"

	"github.com/eclipse-kanto/firmware-update/internal/cellular"
	"github.com/eclipse-kanto/firmware-update/internal/device"
	"github.com/eclipse-kanto/firmware-update/internal/flash"
	"github.com/eclipse-kanto/firmware-update/internal/logger"
	"github.com/eclipse-kanto/firmware-update/internal/metrics"
	"github.com/eclipse-kanto/firmware-update/internal/ota"
	"github.com/eclipse-kanto/firmware-update/internal/status"
	"github.com/eclipse-kanto/firmware-update/internal/transport"
)

// Agent is the firmware update agent. It owns the update session with its
// collaborators and reports the outcome of every update cycle.
type Agent struct {
	cfg  *BasicConfig
	args []string

	session   *ota.Session
	modem     *cellular.Modem
	transport *transport.HTTP
	metrics   *metrics.Metrics
	status    *status.Connection
}

// NewAgent creates the agent collaborators for the given configuration.
// Status reporting is enabled only when a broker is configured.
func NewAgent(cfg *BasicConfig, version string) (*Agent, error) {
	a := &Agent{cfg: cfg, args: os.Args[1:], metrics: metrics.New()}

	var connectivity ota.Connectivity = cellular.HostNetwork{}
	if len(cfg.ModemDevice) > 0 {
		modem, err := cellular.Open(cfg.ModemDevice, cfg.ModemBaudRate, cellular.Options{})
		if err != nil {
			return nil, err
		}
		a.modem = modem
		connectivity = modem
	}

	var err error
	if a.transport, err = transport.New(transport.Options{
		Secure:         cfg.Secure,
		ServerCert:     cfg.ServerCert,
		ConnectTimeout: time.Duration(cfg.ConnectTimeout),
		UserAgent:      "firmware-update/" + version,
	}); err != nil {
		a.Close()
		return nil, err
	}

	slot, err := flash.NewSlot(cfg.FlashDir, cfg.FlashCapacity)
	if err != nil {
		a.Close()
		return nil, err
	}

	if a.session, err = ota.NewSession(cfg.Connection(), ota.Dependencies{
		Connectivity: connectivity,
		Transport:    a.transport,
		Sink:         slot,
		Rebooter:     device.NewRebooter(cfg.RebootCommand),
	}, cfg.Settings()); err != nil {
		a.Close()
		return nil, err
	}

	if err = a.metrics.WatchState(a.session.State,
		ota.StateIdle, ota.StateChecking, ota.StateUpdating, ota.StateReboot); err != nil {
		a.Close()
		return nil, err
	}
	a.session.SetProgress(a.metrics.Progress)
	a.session.AddObserver(a.metrics.Observe)

	if len(cfg.Broker) > 0 {
		if a.status, err = status.Connect(cfg.statusConfig(), cfg.CurrentVersion); err != nil {
			a.Close()
			return nil, err
		}
		a.session.AddObserver(a.status.Reporter().Observe)
	}
	return a, nil
}

// Run brings up the data session and runs update cycles until ctx is done or
// the device reboots into a new firmware.
func (a *Agent) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if len(a.cfg.MetricsAddress) > 0 {
		go func() {
			if err := a.metrics.Serve(ctx, a.cfg.MetricsAddress); err != nil {
				logger.Errorf("failed to serve metrics: %v", err)
			}
		}()
	}
	if len(a.cfg.ConfigFile) > 0 {
		watcher := newConfigWatcher(a.cfg.ConfigFile, a.args, a.session.Settings(), a.apply)
		if err := watcher.watch(ctx); err != nil {
			logger.Warnf("configuration file changes will not be applied: %v", err)
		}
	}

	// The data session is brought up again by every update cycle.
	_ = a.session.Begin(ctx)
	return a.session.Run(ctx)
}

func (a *Agent) apply(settings ota.Settings) {
	a.session.Apply(settings)
	if a.status != nil {
		if err := a.status.Reporter().SetInstalledVersion(settings.CurrentVersion.String()); err != nil {
			logger.Errorf("failed to report installed version: %v", err)
		}
	}
}

// Close releases the agent collaborators.
func (a *Agent) Close() {
	if a.status != nil {
		a.status.Close()
	}
	if a.transport != nil {
		if err := a.transport.Close(); err != nil {
			logger.Debugf("failed to close update server connection: %v", err)
		}
	}
	if a.modem != nil {
		if err := a.modem.Close(); err != nil {
			logger.Debugf("failed to close modem: %v", err)
		}
	}
}
