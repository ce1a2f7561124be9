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
	"encoding/json"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/eclipse-kanto/firmware-update/internal/ota"

	"github.com/eclipse/ditto-clients-golang"
	"github.com/eclipse/ditto-clients-golang/model"
)

// TestNewOperation tests the conversion of cycle outcomes.
func TestNewOperation(t *testing.T) {
	started := time.UnixMilli(1700000000000)
	finished := started.Add(time.Minute)
	tests := map[string]struct {
		outcome  *ota.Outcome
		status   Status
		failure  string
		hasError bool
	}{
		"no_update": {
			outcome: &ota.Outcome{ID: "c1", CurrentVersion: "1.0.1", RemoteVersion: "1.0.1"},
			status:  StatusNoUpdate,
		},
		"flashed": {
			outcome: &ota.Outcome{ID: "c2", CurrentVersion: "1.0.0", RemoteVersion: "1.0.1", UpdateAvailable: true, BytesWritten: 2048},
			status:  StatusFinishedSuccess,
		},
		"stream_failure": {
			outcome:  &ota.Outcome{ID: "c3", UpdateAvailable: true, Kind: ota.StreamFailure, Err: ota.ErrTruncated},
			status:   StatusFinishedError,
			failure:  "STREAM_FAILURE",
			hasError: true,
		},
		"reboot_failure": {
			outcome:  &ota.Outcome{ID: "c4", UpdateAvailable: true, Err: errors.New("permission denied")},
			status:   StatusFinishedError,
			hasError: true,
		},
	}
	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			test.outcome.Started = started
			test.outcome.Finished = finished
			op := NewOperation(test.outcome)
			if op.Status != test.status || op.Failure != test.failure || op.Failed() != test.hasError {
				t.Fatalf("unexpected operation: %+v", op)
			}
			if op.CorrelationID != test.outcome.ID || op.BytesWritten != test.outcome.BytesWritten {
				t.Errorf("unexpected operation data: %+v", op)
			}
			if op.StartTime != started.UnixMilli() || op.EndTime != finished.UnixMilli() {
				t.Errorf("unexpected operation times: %+v", op)
			}
			if test.hasError && op.Message != test.outcome.Err.Error() {
				t.Errorf("unexpected message: %s", op.Message)
			}
		})
	}
}

// TestReporter tests the feature creation and its status modifications.
func TestReporter(t *testing.T) {
	mc := newMockedClient()
	reporter := mockReporter(t, mc)

	// 1. Test changes before the activation are not published.
	failed := &Operation{CorrelationID: "c1", Status: StatusFinishedError, Failure: "PROTOCOL_FAILURE"}
	if err := reporter.SetLastOperation(failed); err != nil {
		t.Fatalf("unexpected error during last operation initialization: %v", err)
	}
	mc.noEnvelope(t)

	// 2. Test the activation with the initial status.
	if err := reporter.Activate(); err != nil {
		t.Fatalf("unexpected error during activation: %v", err)
	}
	env := mc.envelope(t)
	status := &firmwareStatus{}
	convert(t, env.Value.(map[string]interface{})["properties"].(map[string]interface{})["status"], status)
	if status.InstalledVersion != "1.0.0" {
		t.Errorf("unexpected installed version: %s", status.InstalledVersion)
	}
	if !reflect.DeepEqual(status.LastOperation, failed) || !reflect.DeepEqual(status.LastFailedOperation, failed) {
		t.Errorf("unexpected initial operations: %+v", status)
	}

	// 3. Test second activation.
	if err := reporter.Activate(); err != nil {
		t.Fatalf("unexpected error during the second activation: %v", err)
	}
	mc.noEnvelope(t)

	// 4. Test a successful operation updates only the last operation.
	success := &Operation{CorrelationID: "c2", Status: StatusFinishedSuccess}
	if err := reporter.SetLastOperation(success); err != nil {
		t.Fatalf("unexpected error during last operation modification: %v", err)
	}
	env = mc.envelope(t)
	assertPath(t, env.Path, propertyLastOperation)
	op := &Operation{}
	convert(t, env.Value, op)
	if !reflect.DeepEqual(op, success) {
		t.Fatalf("last operation mishmash: %v != %v", op, success)
	}
	mc.noEnvelope(t)

	// 5. Test a failed operation updates the last failed operation first.
	if err := reporter.SetLastOperation(failed); err != nil {
		t.Fatalf("unexpected error during last operation modification: %v", err)
	}
	assertPath(t, mc.envelope(t).Path, propertyLastFailedOperation)
	assertPath(t, mc.envelope(t).Path, propertyLastOperation)

	// 6. Test the installed version.
	if err := reporter.SetInstalledVersion("1.0.0"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	mc.noEnvelope(t)
	if err := reporter.SetInstalledVersion("1.0.1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	env = mc.envelope(t)
	assertPath(t, env.Path, propertyInstalledVersion)
	if env.Value != "1.0.1" {
		t.Errorf("unexpected installed version: %v", env.Value)
	}

	// 7. Test publish error.
	mc.err = errors.New("test")
	if err := reporter.SetLastOperation(success); err == nil {
		t.Fatal("missing error on SetLastOperation")
	}
	<-mc.payload

	// 8. Test deactivation.
	mc.err = nil
	reporter.Deactivate()
	if err := reporter.SetLastOperation(success); err != nil {
		t.Fatalf("unexpected error after deactivation: %v", err)
	}
	mc.noEnvelope(t)
}

// TestObserve tests reporting of a cycle outcome.
func TestObserve(t *testing.T) {
	mc := newMockedClient()
	reporter := mockReporter(t, mc)
	if err := reporter.Activate(); err != nil {
		t.Fatalf("unexpected error during activation: %v", err)
	}
	mc.envelope(t)

	reporter.Observe(&ota.Outcome{ID: "c1", Kind: ota.CapacityFailure, Err: errors.New("no space"), UpdateAvailable: true})
	assertPath(t, mc.envelope(t).Path, propertyLastFailedOperation)
	env := mc.envelope(t)
	op := &Operation{}
	convert(t, env.Value, op)
	if op.CorrelationID != "c1" || op.Failure != "CAPACITY_FAILURE" || op.Message != "no space" {
		t.Errorf("unexpected operation: %+v", op)
	}
}

// TestNewReporterValidation tests the mandatory reporter arguments.
func TestNewReporterValidation(t *testing.T) {
	dc, _ := ditto.NewClientMqtt(newMockedClient(), nil)
	if _, err := NewReporter(nil, model.NewNamespacedID(topicNamespace, topicEntryID), "", ""); err == nil {
		t.Error("reporter was created without ditto client")
	}
	if _, err := NewReporter(dc, nil, "", ""); err == nil {
		t.Error("reporter was created without thing identifier")
	}
}

// TestEdgeConfiguration tests the thing identifier retrieval from the local edge configuration.
func TestEdgeConfiguration(t *testing.T) {
	// 1. Test edge response.
	mc := newMockedClient()
	mc.edge = `{"deviceId":"my-namespace.id:thing.id","tenantId":"tenant","policyId":"policy"}`
	edge, err := retrieveEdgeConfiguration(mc, time.Second)
	if err != nil {
		t.Fatalf("failed to retrieve edge configuration: %v", err)
	}
	if edge.DeviceID != "my-namespace.id:thing.id" || edge.TenantID != "tenant" {
		t.Errorf("unexpected edge configuration: %+v", edge)
	}
	if len(mc.handlers) != 0 {
		t.Error("edge response topic must be unsubscribed")
	}

	// 2. Test without edge response.
	if _, err := retrieveEdgeConfiguration(newMockedClient(), 100*time.Millisecond); err == nil {
		t.Fatal("expected error without edge configuration")
	}

	// 3. Test without device identifier.
	mc = newMockedClient()
	mc.edge = `{"tenantId":"tenant"}`
	if _, err := retrieveEdgeConfiguration(mc, time.Second); err == nil {
		t.Fatal("expected error without device identifier")
	}
}

// TestConnection tests the feature creation on connect.
func TestConnection(t *testing.T) {
	mc := newMockedClient()
	mc.edge = `{"deviceId":"my-namespace.id:thing.id"}`
	c, err := newConnection(mc, Config{Broker: "tcp://localhost:1883"}, "1.0.0", time.Second)
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	defer c.Close()

	env := mc.envelope(t)
	if env.Path != "/features/"+DefaultFeatureID {
		t.Fatalf("expected feature creation, got %s", env.Path)
	}
	if c.Reporter() == nil {
		t.Fatal("missing reporter")
	}

	if _, err := newConnection(newMockedClient(), Config{ThingID: "invalid"}, "1.0.0", time.Second); err == nil {
		t.Fatal("expected error for invalid thing identifier")
	}
}

func mockReporter(t *testing.T, mc *mockedClient) *Reporter {
	dc, _ := ditto.NewClientMqtt(mc, nil)
	reporter, err := NewReporter(dc, model.NewNamespacedID(topicNamespace, topicEntryID), "", "1.0.0")
	if err != nil {
		t.Fatalf("failed to create reporter: %v", err)
	}
	return reporter
}

func assertPath(t *testing.T, path, property string) {
	if expected := "/features/" + DefaultFeatureID + "/properties/" + property; path != expected {
		t.Fatalf("unexpected path %s, expected %s", path, expected)
	}
}

// convert from one interface to another.
func convert(t *testing.T, v interface{}, to interface{}) {
	bytes, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("unexpected error during data marshal: %v", err)
	}
	if err := json.Unmarshal(bytes, to); err != nil {
		t.Fatalf("unexpected error during data unmarshal: %v", err)
	}
}
