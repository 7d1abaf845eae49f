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

package controller

import (
	"github.com/embercsi/ember-csi-go/internal/backend"
	"github.com/embercsi/ember-csi-go/internal/capability"
	"github.com/embercsi/ember-csi-go/internal/csicommon"
	"github.com/embercsi/ember-csi-go/internal/topology"

	"github.com/container-storage-interface/spec/lib/go/csi"
)

// newTestServer builds a controller Server wired to an in-memory store
// and a fake backend with totalGB capacity, accepting the
// SINGLE_NODE_WRITER, MULTI_NODE_MULTI_WRITER and MULTI_NODE_READER_ONLY
// access modes and every fs-type (tests that need narrower capabilities
// override cs.Caps directly).
func newTestServer(totalGB int64) (*Server, *memStore, *backend.Fake) {
	store := newMemStore()
	fake := backend.NewFake(totalGB)
	driver := csicommon.NewCSIDriver("ember-csi-go-test", "0.0.0-test", "test-node")

	srv := NewServer(driver, store, fake, topology.NewEngine(nil), capability.ServiceCapabilities{
		AccessModes: []csi.VolumeCapability_AccessMode_Mode{
			csi.VolumeCapability_AccessMode_SINGLE_NODE_WRITER,
			csi.VolumeCapability_AccessMode_MULTI_NODE_MULTI_WRITER,
			csi.VolumeCapability_AccessMode_MULTI_NODE_READER_ONLY,
		},
	}, false, false)

	return srv, store, fake
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
