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

package flash

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/eclipse-kanto/firmware-update/internal/logger"
)

const (
	// ImageName is the file name of the committed image in the slot directory.
	ImageName = "firmware.bin"

	prefix = "_temporary-"
)

var (
	// ErrNoSpace represents an image that does not fit into the slot.
	ErrNoSpace = errors.New("not enough space for the image")
	// ErrOverflow represents a write beyond the reserved image size.
	ErrOverflow = errors.New("write exceeds the reserved image size")

	errOpen    = errors.New("flash transaction already open")
	errNotOpen = errors.New("no open flash transaction")
)

// Slot is a file backed flash update slot. Begin opens a staging file, End
// commits it as the next boot image by renaming it into place.
type Slot struct {
	dir      string
	capacity int64

	lock     sync.Mutex
	file     *os.File
	size     int64
	written  int64
	finished bool
}

// NewSlot creates a slot in dir. A positive capacity limits the image size,
// otherwise the free space of the underlying file system is the limit.
func NewSlot(dir string, capacity int64) (*Slot, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	slot := &Slot{dir: dir, capacity: capacity}
	// Do not leave staging files of interrupted transactions.
	if err := os.Remove(slot.staging()); err != nil && !os.IsNotExist(err) {
		logger.Warnf("failed to remove staging file: %v", err)
	}
	return slot, nil
}

// Image returns the path of the committed image.
func (s *Slot) Image() string {
	return filepath.Join(s.dir, ImageName)
}

func (s *Slot) staging() string {
	return filepath.Join(s.dir, prefix+ImageName)
}

// Available returns the number of bytes an image may occupy.
func (s *Slot) Available() (int64, error) {
	if s.capacity > 0 {
		return s.capacity, nil
	}
	return freeSpace(s.dir)
}

// Begin opens a transaction for an image of size bytes.
func (s *Slot) Begin(size int64) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.file != nil {
		return errOpen
	}
	s.finished = false
	if size <= 0 {
		return fmt.Errorf("invalid image size %d", size)
	}
	available, err := s.Available()
	if err != nil {
		return err
	}
	if size > available {
		return fmt.Errorf("%w: %d > %d bytes", ErrNoSpace, size, available)
	}

	file, err := os.OpenFile(s.staging(), os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	if err := reserve(file, size); err != nil {
		if errors.Is(err, ErrNoSpace) {
			file.Close()
			os.Remove(file.Name())
			return err
		}
		logger.Debugf("space reservation not supported: %v", err)
	}

	logger.Debugf("flash transaction started [size: %d, file: %s]", size, file.Name())
	s.file = file
	s.size = size
	s.written = 0
	return nil
}

// Write appends p to the open image. It never writes beyond the size given
// to Begin.
func (s *Slot) Write(p []byte) (int, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.file == nil {
		return 0, errNotOpen
	}
	var overflow bool
	if remaining := s.size - s.written; int64(len(p)) > remaining {
		p = p[:remaining]
		overflow = true
	}
	n, err := s.file.Write(p)
	s.written += int64(n)
	if err == nil && overflow {
		err = ErrOverflow
	}
	return n, err
}

// End closes the transaction. A complete image is committed, an incomplete
// one is discarded and reported.
func (s *Slot) End() error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.file == nil {
		return errNotOpen
	}
	file := s.file
	s.file = nil

	err := file.Sync()
	if cerr := file.Close(); err == nil {
		err = cerr
	}
	if err == nil && s.written != s.size {
		err = fmt.Errorf("incomplete image: %d of %d bytes written", s.written, s.size)
	}
	if err != nil {
		if rerr := os.Remove(file.Name()); rerr != nil {
			logger.Debugf("failed to remove staging file: %v", rerr)
		}
		return err
	}
	if err := os.Rename(file.Name(), s.Image()); err != nil {
		return err
	}
	s.finished = true
	logger.Infof("firmware image committed [size: %d, file: %s]", s.size, s.Image())
	return nil
}

// IsFinished reports whether the last transaction committed a complete image.
func (s *Slot) IsFinished() bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.finished
}
