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

package status

import (
	"errors"
	"sync"

	"github.com/eclipse-kanto/firmware-update/internal/logger"
	"github.com/eclipse-kanto/firmware-update/internal/ota"

	"github.com/eclipse/ditto-clients-golang"
	"github.com/eclipse/ditto-clients-golang/model"
	"github.com/eclipse/ditto-clients-golang/protocol"
	"github.com/eclipse/ditto-clients-golang/protocol/things"
)

const (
	definitionNamespace = "org.eclipse.kanto"
	definitionName      = "FirmwareUpdate"
	definitionVersion   = "1.0.0"

	propertyStatus              = "status"
	propertyInstalledVersion    = "status/installedVersion"
	propertyLastOperation       = "status/lastOperation"
	propertyLastFailedOperation = "status/lastFailedOperation"

	// DefaultFeatureID is the identifier of the firmware update feature.
	DefaultFeatureID = definitionName
)

// firmwareStatus is the status property of the FirmwareUpdate feature.
type firmwareStatus struct {
	InstalledVersion    string     `json:"installedVersion"`
	LastOperation       *Operation `json:"lastOperation,omitempty"`
	LastFailedOperation *Operation `json:"lastFailedOperation,omitempty"`
}

// Reporter manages the FirmwareUpdate feature of a Thing and keeps its
// status in sync with the update cycles.
type Reporter struct {
	dittoClient *ditto.Client
	thingID     *model.NamespacedID
	featureID   string

	statusLock sync.Mutex
	status     *firmwareStatus
	active     bool
}

// NewReporter creates a reporter for the feature of the given Thing.
func NewReporter(dittoClient *ditto.Client, thingID *model.NamespacedID, featureID, installedVersion string) (*Reporter, error) {
	if dittoClient == nil {
		return nil, errors.New("ditto client is missing")
	}
	if thingID == nil {
		return nil, errors.New("thing identifier is missing")
	}
	if len(featureID) == 0 {
		featureID = DefaultFeatureID
	}
	return &Reporter{
		dittoClient: dittoClient,
		thingID:     thingID,
		featureID:   featureID,
		status:      &firmwareStatus{InstalledVersion: installedVersion},
	}, nil
}

// Activate creates the feature with its current status. Changes made before
// the activation are part of the initial status.
func (r *Reporter) Activate() error {
	r.statusLock.Lock()
	defer r.statusLock.Unlock()

	if r.active {
		return nil
	}
	logger.Infof("Create new %s feature in: %s", r.featureID, r.thingID)
	feature := (&model.Feature{}).
		WithDefinition(model.NewDefinitionID(definitionNamespace, definitionName, definitionVersion)).
		WithProperty(propertyStatus, r.status)
	cmd := things.NewCommand(r.thingID).Feature(r.featureID).Modify(feature).Twin()
	if err := r.dittoClient.Send(cmd.Envelope(protocol.WithResponseRequired(false))); err != nil {
		return err
	}
	r.active = true
	return nil
}

// Deactivate stops sending status changes.
func (r *Reporter) Deactivate() {
	r.statusLock.Lock()
	defer r.statusLock.Unlock()
	r.active = false
}

// SetInstalledVersion sets the version of the running firmware.
func (r *Reporter) SetInstalledVersion(version string) error {
	r.statusLock.Lock()
	defer r.statusLock.Unlock()

	if r.status.InstalledVersion == version {
		return nil
	}
	r.status.InstalledVersion = version
	return r.setProperty(propertyInstalledVersion, version)
}

// SetLastOperation sets the last operation and, for a failed one, the last
// failed operation.
func (r *Reporter) SetLastOperation(op *Operation) error {
	r.statusLock.Lock()
	defer r.statusLock.Unlock()

	r.status.LastOperation = op
	if op != nil && op.Failed() {
		r.status.LastFailedOperation = op
		if err := r.setProperty(propertyLastFailedOperation, op); err != nil {
			return err
		}
	}
	return r.setProperty(propertyLastOperation, op)
}

// Observe reports the outcome of an update cycle.
func (r *Reporter) Observe(outcome *ota.Outcome) {
	if err := r.SetLastOperation(NewOperation(outcome)); err != nil {
		logger.Errorf("fail to send last operation status: %v", err)
	}
}

func (r *Reporter) setProperty(name string, value interface{}) error {
	if !r.active {
		return nil
	}
	cmd := things.NewCommand(r.thingID).FeatureProperty(r.featureID, name).Modify(value).Twin()
	return r.dittoClient.Send(cmd.Envelope(protocol.WithResponseRequired(false)))
}
