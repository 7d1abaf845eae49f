/*
Copyright 2024 The ember-csi-go Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package node

import (
	"context"
	"testing"

	"github.com/embercsi/ember-csi-go/internal/capability"
	"github.com/embercsi/ember-csi-go/internal/connector"
	"github.com/embercsi/ember-csi-go/internal/csicommon"
	"github.com/embercsi/ember-csi-go/internal/hostutil"
	"github.com/embercsi/ember-csi-go/internal/persistence"

	"github.com/container-storage-interface/spec/lib/go/csi"
)

const testNodeID = "node-1"

// newTestServer builds a node.Server wired to an in-memory store and fake
// connector, mirroring internal/controller's newTestServer helper.
func newTestServer(t *testing.T) (*Server, *memStore) {
	t.Helper()

	driver := csicommon.NewCSIDriver("test.ember.csi", "0.0.1", testNodeID)
	store := newMemStore()

	srv := NewServer(
		csicommon.NewDefaultNodeServer(driver, nil),
		store,
		nil,
		connector.NewFake(),
		hostutil.New(),
		capability.ServiceCapabilities{
			AccessModes: []csi.VolumeCapability_AccessMode_Mode{
				csi.VolumeCapability_AccessMode_SINGLE_NODE_WRITER,
				csi.VolumeCapability_AccessMode_MULTI_NODE_MULTI_WRITER,
			},
			FsTypes: []string{"ext4", "xfs"},
		},
		t.TempDir(),
		3,
	)

	return srv, store
}

func mountCap(fsType string) *csi.VolumeCapability {
	return &csi.VolumeCapability{
		AccessType: &csi.VolumeCapability_Mount{Mount: &csi.VolumeCapability_MountVolume{FsType: fsType}},
		AccessMode: &csi.VolumeCapability_AccessMode{Mode: csi.VolumeCapability_AccessMode_SINGLE_NODE_WRITER},
	}
}

func blockCap() *csi.VolumeCapability {
	return &csi.VolumeCapability{
		AccessType: &csi.VolumeCapability_Block{Block: &csi.VolumeCapability_BlockVolume{}},
		AccessMode: &csi.VolumeCapability_AccessMode{Mode: csi.VolumeCapability_AccessMode_SINGLE_NODE_WRITER},
	}
}

func setupVolume(t *testing.T, store *memStore, volID string) {
	t.Helper()
	if err := store.SetVolume(context.Background(), persistence.Volume{ID: volID, Status: persistence.VolumeAvailable}); err != nil {
		t.Fatalf("SetVolume: %v", err)
	}
}

func setupStagedConnection(t *testing.T, store *memStore, volID, stagingPath string, want capability.Capability) persistence.Connection {
	t.Helper()

	conn := persistence.Connection{
		ID:            "conn-" + volID,
		VolumeID:      volID,
		AttachedHost:  testNodeID,
		ConnectorInfo: map[string]string{"device": "/dev/fake0", deviceKey: "/dev/fake0"},
		Capability:    want.Encode(),
		Mountpoint:    stagingPath,
		Status:        "staged",
	}
	if err := store.SetConnection(context.Background(), conn); err != nil {
		t.Fatalf("SetConnection: %v", err)
	}

	return conn
}
