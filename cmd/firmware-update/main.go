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

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	feature "github.com/eclipse-kanto/firmware-update/internal"
	"github.com/eclipse-kanto/firmware-update/internal/logger"
)

var version = "N/A"

func main() {
	// Initialize flags.
	cfg, err := feature.LoadConfig(version)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}

	// Initialize logs.
	loggerOut := logger.SetupLogger(&cfg.LogConfig)
	defer loggerOut.Close()

	if err := cfg.Validate(); err != nil {
		logger.Errorf("failed to validate firmware update configuration: %v", err)
		loggerOut.Close()
		os.Exit(1)
	}

	// Create the firmware update agent.
	agent, err := feature.NewAgent(cfg, version)
	if err != nil {
		logger.Errorf("failed to create firmware update agent: %v", err)
		loggerOut.Close()
		os.Exit(1)
	}
	defer agent.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Infof("firmware update agent %s started [version: %s]", version, cfg.CurrentVersion)
	if err := agent.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Errorf("firmware update agent stopped: %v", err)
		return
	}
	logger.Info("firmware update agent stopped")
}
