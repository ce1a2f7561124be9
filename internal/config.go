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
	"errors"
	"fmt"
	"time"

	"github.com/eclipse-kanto/firmware-update/internal/device"
	"github.com/eclipse-kanto/firmware-update/internal/logger"
	"github.com/eclipse-kanto/firmware-update/internal/ota"
	"github.com/eclipse-kanto/firmware-update/internal/status"
)

const (
	defaultPort             = 80
	defaultConnectTimeout   = 30 * time.Second
	defaultModemBaudRate    = 115200
	defaultVersionPath      = "/ota/version.txt"
	defaultFirmwareBasePath = "/ota/firmware_"
	defaultFlashDir         = "/var/lib/firmware-update"
	defaultLogFile          = "log/firmware-update.log"
	defaultLogLevel         = "INFO"
	defaultLogFileSize      = 2
	defaultLogFileCount     = 5
	defaultLogFileMaxAge    = 28
)

// ServerConfig holds the update server and the cellular data session parameters.
type ServerConfig struct {
	Server         string   `json:"server,omitempty"`
	Port           int      `json:"port,omitempty"`
	Secure         bool     `json:"secure,omitempty"`
	ServerCert     string   `json:"serverCert,omitempty"`
	ConnectTimeout Duration `json:"connectTimeout,omitempty"`
	APN            string   `json:"apn,omitempty"`
	APNUser        string   `json:"apnUser,omitempty"`
	APNPassword    string   `json:"apnPassword,omitempty"`
	ModemDevice    string   `json:"modemDevice,omitempty"`
	ModemBaudRate  int      `json:"modemBaudRate,omitempty"`
}

// UpdateConfig holds the settings applied to every update cycle. They are
// reloaded when the configuration file changes.
type UpdateConfig struct {
	CurrentVersion   string   `json:"currentVersion,omitempty"`
	VersionPath      string   `json:"versionPath,omitempty"`
	FirmwareBasePath string   `json:"firmwareBasePath,omitempty"`
	PollInterval     Duration `json:"pollInterval,omitempty"`
	StallTimeout     Duration `json:"stallTimeout,omitempty"`
	TransferTimeout  Duration `json:"transferTimeout,omitempty"`
}

// DeviceConfig holds the flash slot and the reboot parameters.
type DeviceConfig struct {
	FlashDir      string         `json:"flashDir,omitempty"`
	FlashCapacity int64          `json:"flashCapacity,omitempty"`
	RebootCommand device.Command `json:"rebootCommand,omitempty"`
}

// StatusConfig holds the local MQTT broker connection used for status reporting.
type StatusConfig struct {
	Broker    string `json:"broker,omitempty"`
	Username  string `json:"username,omitempty"`
	Password  string `json:"password,omitempty"`
	CACert    string `json:"caCert,omitempty"`
	Cert      string `json:"cert,omitempty"`
	Key       string `json:"key,omitempty"`
	ThingID   string `json:"thingId,omitempty"`
	FeatureID string `json:"featureId,omitempty"`
}

// BasicConfig represents the firmware update agent configuration.
type BasicConfig struct {
	logger.LogConfig
	ServerConfig
	UpdateConfig
	DeviceConfig
	StatusConfig
	MetricsAddress string `json:"metricsAddress,omitempty"`
	ConfigFile     string `json:"-"`
}

// NewDefaultConfig creates a new default configuration.
func NewDefaultConfig() *BasicConfig {
	return &BasicConfig{
		LogConfig: logger.LogConfig{
			LogFile:       defaultLogFile,
			LogLevel:      defaultLogLevel,
			LogFileSize:   defaultLogFileSize,
			LogFileCount:  defaultLogFileCount,
			LogFileMaxAge: defaultLogFileMaxAge,
		},
		ServerConfig: ServerConfig{
			Port:           defaultPort,
			ConnectTimeout: Duration(defaultConnectTimeout),
			ModemBaudRate:  defaultModemBaudRate,
		},
		UpdateConfig: UpdateConfig{
			VersionPath:      defaultVersionPath,
			FirmwareBasePath: defaultFirmwareBasePath,
			PollInterval:     Duration(ota.DefaultPollInterval),
			StallTimeout:     Duration(ota.DefaultStallTimeout),
			TransferTimeout:  Duration(ota.DefaultTransferTimeout),
		},
		DeviceConfig: DeviceConfig{
			FlashDir: defaultFlashDir,
		},
		StatusConfig: StatusConfig{
			FeatureID: status.DefaultFeatureID,
		},
	}
}

// Validate checks the configuration values.
func (cfg *BasicConfig) Validate() error {
	if len(cfg.Server) == 0 {
		return errors.New("update server is not specified")
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return fmt.Errorf("invalid update server port %d", cfg.Port)
	}
	if len(cfg.ServerCert) > 0 && !cfg.Secure {
		return errors.New("server certificate requires a secure connection")
	}
	if len(cfg.ModemDevice) > 0 && cfg.ModemBaudRate <= 0 {
		return fmt.Errorf("invalid modem baud rate %d", cfg.ModemBaudRate)
	}
	if err := cfg.UpdateConfig.validate(); err != nil {
		return err
	}
	if len(cfg.FlashDir) == 0 {
		return errors.New("flash directory is not specified")
	}
	if cfg.FlashCapacity < 0 {
		return fmt.Errorf("invalid flash capacity %d", cfg.FlashCapacity)
	}
	if len(cfg.Broker) > 0 && len(cfg.FeatureID) == 0 {
		return errors.New("feature identifier is not specified")
	}
	return nil
}

func (cfg *UpdateConfig) validate() error {
	if len(ota.ParseVersion(cfg.CurrentVersion)) == 0 {
		return errors.New("current firmware version is not specified")
	}
	if len(cfg.VersionPath) == 0 || len(cfg.FirmwareBasePath) == 0 {
		return errors.New("version and firmware paths are mandatory")
	}
	for name, value := range map[string]Duration{
		"poll interval":    cfg.PollInterval,
		"stall timeout":    cfg.StallTimeout,
		"transfer timeout": cfg.TransferTimeout,
	} {
		if value <= 0 {
			return fmt.Errorf("%s must be positive, got %v", name, value)
		}
	}
	return nil
}

// Connection returns the immutable update session parameters.
func (cfg *BasicConfig) Connection() ota.Connection {
	return ota.Connection{
		Server:   cfg.Server,
		Port:     cfg.Port,
		APN:      cfg.APN,
		User:     cfg.APNUser,
		Password: cfg.APNPassword,
	}
}

// Settings returns the update cycle settings.
func (cfg *UpdateConfig) Settings() ota.Settings {
	return ota.Settings{
		CurrentVersion:   ota.ParseVersion(cfg.CurrentVersion),
		VersionPath:      cfg.VersionPath,
		FirmwareBasePath: cfg.FirmwareBasePath,
		PollInterval:     time.Duration(cfg.PollInterval),
		StallTimeout:     time.Duration(cfg.StallTimeout),
		TransferTimeout:  time.Duration(cfg.TransferTimeout),
	}
}

func (cfg *BasicConfig) statusConfig() status.Config {
	return status.Config{
		Broker:    cfg.Broker,
		Username:  cfg.Username,
		Password:  cfg.Password,
		CACert:    cfg.CACert,
		Cert:      cfg.Cert,
		Key:       cfg.Key,
		ThingID:   cfg.ThingID,
		FeatureID: cfg.FeatureID,
	}
}
