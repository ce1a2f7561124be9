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
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/eclipse-kanto/firmware-update/internal/device"
	"github.com/eclipse-kanto/firmware-update/internal/logger"
)

const (
	flagConfigFile    = "configFile"
	flagRebootCommand = "rebootCommand"

	durationDescription = "Should be a sequence of decimal numbers, each with optional fraction and a unit suffix, such as '300ms', '1.5h', '10m30s'"
)

// InitFlags registers the agent and log configuration flags with the values of cfg as defaults.
func InitFlags(flagSet *flag.FlagSet, cfg *BasicConfig) {
	// init log flags
	flagSet.StringVar(&cfg.LogLevel, "logLevel", cfg.LogLevel, "Log levels are ERROR, WARN, INFO, DEBUG, TRACE")
	flagSet.StringVar(&cfg.LogFile, "logFile", cfg.LogFile, "Log file location")
	flagSet.IntVar(&cfg.LogFileSize, "logFileSize", cfg.LogFileSize, "Log file size in MB before it gets rotated")
	flagSet.IntVar(&cfg.LogFileCount, "logFileCount", cfg.LogFileCount, "Log file max rotations count")
	flagSet.IntVar(&cfg.LogFileMaxAge, "logFileMaxAge", cfg.LogFileMaxAge, "Log file rotations max age in days")

	// init update server flags
	flagSet.StringVar(&cfg.Server, "server", cfg.Server, "Update server host name or address")
	flagSet.IntVar(&cfg.Port, "port", cfg.Port, "Update server port")
	flagSet.BoolVar(&cfg.Secure, "secure", cfg.Secure, "Use HTTPS for the update server connection")
	flagSet.StringVar(&cfg.ServerCert, "serverCert", cfg.ServerCert, "A PEM encoded CA certificates file for the update server connection")
	flagSet.Var(&cfg.ConnectTimeout, "connectTimeout", "Update server connect timeout. "+durationDescription)

	// init cellular flags
	flagSet.StringVar(&cfg.APN, "apn", cfg.APN, "Access point name of the cellular data session")
	flagSet.StringVar(&cfg.APNUser, "apnUser", cfg.APNUser, "Access point user name")
	flagSet.StringVar(&cfg.APNPassword, "apnPassword", cfg.APNPassword, "Access point password")
	flagSet.StringVar(&cfg.ModemDevice, "modemDevice", cfg.ModemDevice, "Serial device of the cellular modem. The host network is used if not set")
	flagSet.IntVar(&cfg.ModemBaudRate, "modemBaudRate", cfg.ModemBaudRate, "Serial baud rate of the cellular modem")

	// init update cycle flags
	flagSet.StringVar(&cfg.CurrentVersion, "currentVersion", cfg.CurrentVersion, "Version of the running firmware")
	flagSet.StringVar(&cfg.VersionPath, "versionPath", cfg.VersionPath, "Path of the published version on the update server")
	flagSet.StringVar(&cfg.FirmwareBasePath, "firmwareBasePath", cfg.FirmwareBasePath, "Path prefix of the firmware images, completed with '<version>.bin'")
	flagSet.Var(&cfg.PollInterval, "pollInterval", "Delay between two update checks. "+durationDescription)
	flagSet.Var(&cfg.StallTimeout, "stallTimeout", "Longest firmware transfer pause without received bytes. "+durationDescription)
	flagSet.Var(&cfg.TransferTimeout, "transferTimeout", "Longest firmware transfer duration. "+durationDescription)

	// init device flags
	flagSet.StringVar(&cfg.FlashDir, "flashDir", cfg.FlashDir, "Directory of the firmware flash slot")
	flagSet.Int64Var(&cfg.FlashCapacity, "flashCapacity", cfg.FlashCapacity, "Flash slot capacity in bytes. The free file system space is used if not set")
	flagSet.Var(&cfg.RebootCommand, flagRebootCommand, "Defines the reboot command and its arguments. The reboot system call is used if not set")

	// init status reporting flags
	flagSet.StringVar(&cfg.Broker, "broker", cfg.Broker, "Local MQTT broker address. Status reporting is disabled if not set")
	flagSet.StringVar(&cfg.Username, "username", cfg.Username, "Username that is a part of the credentials")
	flagSet.StringVar(&cfg.Password, "password", cfg.Password, "Password that is a part of the credentials")
	flagSet.StringVar(&cfg.CACert, "caCert", cfg.CACert, "A PEM encoded CA certificates file for MQTT broker connection")
	flagSet.StringVar(&cfg.Cert, "cert", cfg.Cert, "A PEM encoded certificate file to authenticate to the MQTT server/broker")
	flagSet.StringVar(&cfg.Key, "key", cfg.Key, "A PEM encoded unencrypted private key file to authenticate to the MQTT server/broker")
	flagSet.StringVar(&cfg.ThingID, "thingId", cfg.ThingID, "Thing identifier. Requested from the local edge configuration if not set")
	flagSet.StringVar(&cfg.FeatureID, "featureId", cfg.FeatureID, "Feature identifier of FirmwareUpdate")

	flagSet.StringVar(&cfg.MetricsAddress, "metricsAddress", cfg.MetricsAddress, "Address of the Prometheus metrics endpoint. Metrics are not served if not set")
	flagSet.StringVar(&cfg.ConfigFile, flagConfigFile, cfg.ConfigFile, "Defines the configuration file")
}

// ParseConfigFilePath returns the value for configuration file path if set.
func ParseConfigFilePath() string {
	var cfgFilePath string
	flagSet := flag.NewFlagSet("", flag.ContinueOnError)
	flagSet.SetOutput(io.Discard)
	flagSet.StringVar(&cfgFilePath, flagConfigFile, "", "Defines the configuration file")
	if err := flagSet.Parse(getFlagArgs(flagConfigFile)); err != nil {
		logger.Errorf("Cannot parse the configFile flag: %v", err)
	}
	return cfgFilePath
}

func getFlagArgs(flag string) []string {
	args := os.Args[1:]
	flag1 := "-" + flag
	flag2 := "--" + flag
	for index, arg := range args {
		if strings.HasPrefix(arg, flag1+"=") || strings.HasPrefix(arg, flag2+"=") {
			return []string{arg}
		}
		if (arg == flag1 || arg == flag2) && index < len(args)-1 {
			return args[index : index+2]
		}
	}
	return []string{}
}

func hasFlag(flag string) bool {
	return len(getFlagArgs(flag)) > 0
}

func parseFlags(cfg *BasicConfig, version string) {
	flag.CommandLine = flag.NewFlagSet(os.Args[0], flag.ExitOnError)
	flagSet := flag.CommandLine

	InitFlags(flagSet, cfg)

	fVersion := flagSet.Bool("version", false, "Prints current version and exits")
	// A reboot command given with flags replaces the one of the config file.
	if hasFlag(flagRebootCommand) {
		cfg.RebootCommand = device.Command{}
	}
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		logger.Errorf("Cannot parse command flags: %v", err)
	}

	if *fVersion {
		fmt.Println(version)
		os.Exit(0)
	}
}

// LoadConfigFromFile reads the file contents and unmarshal them into the given config structure.
func LoadConfigFromFile(filePath string, config interface{}) error {
	if !isFile(filePath) {
		return fmt.Errorf("incorrect config file %s", filePath)
	}
	file, err := os.ReadFile(filePath)
	if err != nil {
		return err
	}
	return json.Unmarshal(file, config)
}

// LoadConfig loads a new configuration instance using flags and config file (if set).
func LoadConfig(version string) (*BasicConfig, error) {
	configFilePath := ParseConfigFilePath()
	config := NewDefaultConfig()
	if configFilePath != "" {
		if err := LoadConfigFromFile(configFilePath, config); err != nil {
			return nil, err
		}
	}
	parseFlags(config, version)
	return config, nil
}

func isFile(path string) bool {
	fs, err := os.Stat(path)
	return err == nil && !fs.IsDir()
}
