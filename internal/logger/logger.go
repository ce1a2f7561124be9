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

package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/eclipse/ditto-clients-golang"
	MQTT "github.com/eclipse/paho.mqtt.golang"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogConfig represents a log configuration.
type LogConfig struct {
	LogFile       string `json:"logFile,omitempty"`
	LogLevel      string `json:"logLevel,omitempty"`
	LogFileSize   int    `json:"logFileSize,omitempty"`
	LogFileCount  int    `json:"logFileCount,omitempty"`
	LogFileMaxAge int    `json:"logFileMaxAge,omitempty"`
}

// LogLevel represents a log level.
type LogLevel int

const (
	// ERROR represents the error log level.
	ERROR LogLevel = 1 + iota
	// WARN represents the warn log level.
	WARN
	// INFO represents the info log level.
	INFO
	// DEBUG represents the debug log level.
	DEBUG
	// TRACE represents the trace log level.
	TRACE

	logFlags int = log.Ldate | log.Ltime | log.Lmicroseconds | log.Lmsgprefix

	ePrefix = "ERROR  "
	wPrefix = "WARN   "
	iPrefix = "INFO   "
	dPrefix = "DEBUG  "
	tPrefix = "TRACE  "

	prefix      = " %-10s"
	otaPrefix   = "[OTA]"
	dittoPrefix = "[Ditto]"
	mqttPrefix  = "[MQTT]"
)

var (
	logger *log.Logger
	level  LogLevel
)

// SetupLogger initializes the log based on the provided log configuration.
// The returned writer must be closed on exit.
func SetupLogger(logConfig *LogConfig) io.WriteCloser {
	loggerOut := io.WriteCloser(&nopWriterCloser{out: os.Stderr})
	if len(logConfig.LogFile) > 0 {
		if err := os.MkdirAll(filepath.Dir(logConfig.LogFile), 0755); err == nil {
			loggerOut = &lumberjack.Logger{
				Filename:   logConfig.LogFile,
				MaxSize:    logConfig.LogFileSize,
				MaxBackups: logConfig.LogFileCount,
				MaxAge:     logConfig.LogFileMaxAge,
				LocalTime:  true,
				Compress:   true,
			}
		}
	}

	log.SetOutput(loggerOut)
	log.SetFlags(logFlags)

	logger = log.New(loggerOut, fmt.Sprintf(prefix, otaPrefix), logFlags)
	level = ParseLevel(logConfig.LogLevel)

	lDitto := log.New(loggerOut, fmt.Sprintf(prefix, dittoPrefix), logFlags)
	ditto.ERROR = &wrapper{logger: lDitto, level: ERROR, prefix: ePrefix}
	ditto.WARN = &wrapper{logger: lDitto, level: WARN, prefix: wPrefix}
	ditto.INFO = &wrapper{logger: lDitto, level: INFO, prefix: iPrefix}
	ditto.DEBUG = &wrapper{logger: lDitto, level: DEBUG, prefix: dPrefix}

	lMQTT := log.New(loggerOut, fmt.Sprintf(prefix, mqttPrefix), logFlags)
	MQTT.CRITICAL = &wrapper{logger: lMQTT, level: ERROR, prefix: ePrefix}
	MQTT.ERROR = &wrapper{logger: lMQTT, level: ERROR, prefix: ePrefix}
	MQTT.WARN = &wrapper{logger: lMQTT, level: WARN, prefix: wPrefix}
	// MQTT debug output is per packet, keep it for trace level.
	MQTT.DEBUG = &wrapper{logger: lMQTT, level: TRACE, prefix: tPrefix}

	return loggerOut
}

// ParseLevel converts a level name to LogLevel. Unknown names are ERROR.
func ParseLevel(name string) LogLevel {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "INFO":
		return INFO
	case "WARN":
		return WARN
	case "DEBUG":
		return DEBUG
	case "TRACE":
		return TRACE
	default:
		return ERROR
	}
}

// Error writes an error entry to the log.
func Error(v interface{}) {
	if level >= ERROR {
		logger.Println(ePrefix, v)
	}
}

// Errorf formats according to a format specifier and write the string as an
// error entry to the log.
func Errorf(format string, v ...interface{}) {
	if level >= ERROR {
		logger.Printf(fmt.Sprint(ePrefix, " ", format), v...)
	}
}

// Warn writes a warning entry to the log.
func Warn(v interface{}) {
	if level >= WARN {
		logger.Println(wPrefix, v)
	}
}

// Warnf formats according to a format specifier and write the string as a
// warning entry to the log.
func Warnf(format string, v ...interface{}) {
	if level >= WARN {
		logger.Printf(fmt.Sprint(wPrefix, " ", format), v...)
	}
}

// Info writes an info entry to the log.
func Info(v interface{}) {
	if level >= INFO {
		logger.Println(iPrefix, v)
	}
}

// Infof formats according to a format specifier and write the string as an
// info entry to the log.
func Infof(format string, v ...interface{}) {
	if level >= INFO {
		logger.Printf(fmt.Sprint(iPrefix, " ", format), v...)
	}
}

// Debug writes a debug entry to the log.
func Debug(v interface{}) {
	if IsDebugEnabled() {
		logger.Println(dPrefix, v)
	}
}

// Debugf formats according to a format specifier and write the string as a
// debug entry to the log.
func Debugf(format string, v ...interface{}) {
	if IsDebugEnabled() {
		logger.Printf(fmt.Sprint(dPrefix, " ", format), v...)
	}
}

// Trace writes a trace entry to the log.
func Trace(v ...interface{}) {
	if IsTraceEnabled() {
		logger.Println(tPrefix, fmt.Sprint(v...))
	}
}

// Tracef formats according to a format specifier and write the string as a
// trace entry to the log.
func Tracef(format string, v ...interface{}) {
	if IsTraceEnabled() {
		logger.Printf(fmt.Sprint(tPrefix, " ", format), v...)
	}
}

// IsDebugEnabled checks if debug log level is enabled.
func IsDebugEnabled() bool {
	return level >= DEBUG
}

// IsTraceEnabled checks if trace log level is enabled.
func IsTraceEnabled() bool {
	return level >= TRACE
}

type wrapper struct {
	logger *log.Logger
	level  LogLevel
	prefix string
}

func (w *wrapper) Println(v ...interface{}) {
	if level >= w.level {
		w.logger.Println(w.prefix, fmt.Sprint(v...))
	}
}

func (w *wrapper) Printf(format string, v ...interface{}) {
	if level >= w.level {
		w.logger.Printf(fmt.Sprint(w.prefix, " ", format), v...)
	}
}

type nopWriterCloser struct {
	out io.Writer
}

func (w *nopWriterCloser) Write(p []byte) (n int, err error) {
	return w.out.Write(p)
}

func (*nopWriterCloser) Close() error {
	return nil
}
