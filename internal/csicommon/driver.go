/*
Copyright 2017 The Kubernetes Authors.

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

package csicommon

import (
	"github.com/embercsi/ember-csi-go/internal/log"

	"github.com/container-storage-interface/spec/lib/go/csi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"k8s.io/klog/v2"
)

// CSIDriver stores driver identity, advertised capabilities and topology
// shared across the Identity, Controller and Node services of a process.
type CSIDriver struct {
	name    string
	nodeID  string
	version string
	// topology segments that this node server advertises in NodeGetInfo.
	topology     map[string]string
	capabilities []*csi.ControllerServiceCapability
	vc           []*csi.VolumeCapability_AccessMode
}

// NewCSIDriver builds a CSIDriver. name and version are required; nodeID
// may be empty for controller-only processes.
func NewCSIDriver(name, v, nodeID string) *CSIDriver {
	if name == "" {
		klog.Errorf("Driver name missing")

		return nil
	}

	if v == "" {
		klog.Errorf("Version argument missing")

		return nil
	}

	return &CSIDriver{
		name:    name,
		version: v,
		nodeID:  nodeID,
	}
}

// Name returns the plugin name advertised by GetPluginInfo.
func (d *CSIDriver) Name() string { return d.name }

// Version returns the plugin version advertised by GetPluginInfo.
func (d *CSIDriver) Version() string { return d.version }

// NodeID returns the configured node ID, empty for controller-only
// processes.
func (d *CSIDriver) NodeID() string { return d.nodeID }

// Topology returns the node's accessible topology segments.
func (d *CSIDriver) Topology() map[string]string { return d.topology }

// SetTopology records the node's accessible topology segments.
func (d *CSIDriver) SetTopology(t map[string]string) { d.topology = t }

// ValidateControllerServiceRequest validates that the driver advertises c.
func (d *CSIDriver) ValidateControllerServiceRequest(c csi.ControllerServiceCapability_RPC_Type) error {
	if c == csi.ControllerServiceCapability_RPC_UNKNOWN {
		return nil
	}

	for _, capability := range d.capabilities {
		if c == capability.GetRpc().GetType() {
			return nil
		}
	}

	return status.Error(codes.InvalidArgument, c.String())
}

// AddControllerServiceCapabilities records the controller capabilities this
// process advertises.
func (d *CSIDriver) AddControllerServiceCapabilities(cl []csi.ControllerServiceCapability_RPC_Type) {
	csc := make([]*csi.ControllerServiceCapability, 0, len(cl))

	for _, c := range cl {
		log.DefaultLog("Enabling controller service capability: %v", c.String())
		csc = append(csc, NewControllerServiceCapability(c))
	}

	d.capabilities = csc
}

// ControllerServiceCapabilities returns the registered capability list.
func (d *CSIDriver) ControllerServiceCapabilities() []*csi.ControllerServiceCapability {
	return d.capabilities
}

// AddVolumeCapabilityAccessModes records the volume access modes this
// process advertises.
func (d *CSIDriver) AddVolumeCapabilityAccessModes(
	vc []csi.VolumeCapability_AccessMode_Mode,
) []*csi.VolumeCapability_AccessMode {
	vca := make([]*csi.VolumeCapability_AccessMode, 0, len(vc))
	for _, c := range vc {
		log.DefaultLog("Enabling volume access mode: %v", c.String())
		vca = append(vca, NewVolumeCapabilityAccessMode(c))
	}
	d.vc = vca

	return vca
}

// GetVolumeCapabilityAccessModes returns the registered access modes.
func (d *CSIDriver) GetVolumeCapabilityAccessModes() []*csi.VolumeCapability_AccessMode {
	return d.vc
}
