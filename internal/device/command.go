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
	"encoding/json"
	"fmt"
	"runtime"
	"strings"
)

// Command is a command name with its arguments. It can be set from a flag,
// every occurrence of the flag after the first one adds an argument, or from
// a JSON array.
type Command struct {
	Name string
	Args []string
}

// String is representation of Command as combination of name and arguments of the command
func (c *Command) String() string {
	if len(c.Args) == 0 {
		return c.Name
	}
	return fmt.Sprint(c.Name, " ", strings.Join(c.Args, " "))
}

// Set command from string, used for flag set
func (c *Command) Set(value string) error {
	if c.Name == "" {
		c.setName(value)
	} else {
		c.Args = append(c.Args, value)
	}
	return nil
}

// IsEmpty reports whether no command is set.
func (c *Command) IsEmpty() bool {
	return len(c.Name) == 0
}

func (c *Command) setName(value string) {
	c.Name = value
	c.Args = []string{}
	if runtime.GOOS != "windows" && strings.HasSuffix(value, ".sh") {
		c.Name = "/bin/sh"
		c.Args = []string{value}
	}
}

// UnmarshalJSON unmarshal Command type
func (c *Command) UnmarshalJSON(b []byte) error {
	var v []string
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}

	c.Name = ""
	c.Args = nil
	for num, elem := range v {
		if num == 0 {
			c.setName(elem)
		} else {
			c.Args = append(c.Args, elem)
		}
	}
	return nil
}

// MarshalJSON marshal Command type
func (c Command) MarshalJSON() ([]byte, error) {
	if c.Name == "" {
		return json.Marshal([]string{})
	}
	return json.Marshal(append([]string{c.Name}, c.Args...))
}
