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
	"flag"
	"io"
	"path/filepath"

	"github.com/eclipse-kanto/firmware-update/internal/logger"
	"github.com/eclipse-kanto/firmware-update/internal/ota"

	"github.com/fsnotify/fsnotify"
)

// configWatcher reloads the update cycle settings when the configuration file changes.
type configWatcher struct {
	file    string
	args    []string
	current ota.Settings
	apply   func(settings ota.Settings)
}

func newConfigWatcher(file string, args []string, current ota.Settings, apply func(settings ota.Settings)) *configWatcher {
	return &configWatcher{
		file:    filepath.Clean(file),
		args:    args,
		current: current,
		apply:   apply,
	}
}

// watch starts watching the directory of the configuration file until ctx is done.
// The directory is watched as editors replace the file instead of writing it.
func (w *configWatcher) watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	dir := filepath.Dir(w.file)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return err
	}
	logger.Debugf("Watch configuration file: %s", w.file)

	go func() {
		defer watcher.Close()
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) == w.file && (event.Op&fsnotify.Write == fsnotify.Write ||
					event.Op&fsnotify.Create == fsnotify.Create) {
					w.reload()
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Debugf("fail to watch configuration directory: %v", err)
			case <-ctx.Done():
				return
			}
		}
	}()
	return nil
}

// reload loads the configuration in the same order as on startup and applies
// the update cycle settings if they changed. Invalid settings are ignored.
func (w *configWatcher) reload() {
	cfg, err := loadUpdateConfig(w.file, w.args)
	if err != nil {
		logger.Warnf("configuration file %s not applied: %v", w.file, err)
		return
	}
	settings := cfg.Settings()
	if settings == w.current {
		return
	}
	logger.Infof("update settings changed [version: %s, version path: %s, firmware path: %s, poll interval: %v]",
		settings.CurrentVersion, settings.VersionPath, settings.FirmwareBasePath, settings.PollInterval)
	w.current = settings
	w.apply(settings)
}

func loadUpdateConfig(file string, args []string) (*UpdateConfig, error) {
	cfg := NewDefaultConfig()
	if err := LoadConfigFromFile(file, cfg); err != nil {
		return nil, err
	}
	flagSet := flag.NewFlagSet("", flag.ContinueOnError)
	flagSet.SetOutput(io.Discard)
	InitFlags(flagSet, cfg)
	flagSet.Bool("version", false, "")
	if err := flagSet.Parse(args); err != nil {
		return nil, err
	}
	if err := cfg.UpdateConfig.validate(); err != nil {
		return nil, err
	}
	return &cfg.UpdateConfig, nil
}
