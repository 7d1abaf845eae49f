/*
Copyright 2018 The Ceph-CSI Authors.

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

	"github.com/embercsi/ember-csi-go/internal/capability"
	"github.com/embercsi/ember-csi-go/internal/log"
	"github.com/embercsi/ember-csi-go/internal/persistence"
	"github.com/embercsi/ember-csi-go/internal/util"

	"github.com/container-storage-interface/spec/lib/go/csi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// NodeExpandVolume rescans the transport for a staged volume's new size
// and, for mount volumes, grows the filesystem in place.
func (ns *Server) NodeExpandVolume(ctx context.Context, req *csi.NodeExpandVolumeRequest) (*csi.NodeExpandVolumeResponse, error) {
	volID := req.GetVolumeId()
	if volID == "" {
		return nil, status.Error(codes.InvalidArgument, "volume ID must be provided")
	}

	volumePath := req.GetStagingTargetPath()
	if volumePath == "" {
		volumePath = req.GetVolumePath()
	}
	if volumePath == "" {
		return nil, status.Error(codes.InvalidArgument, "volume path must be provided")
	}

	if acquired := ns.VolumeLocks.TryAcquire(volID); !acquired {
		return nil, status.Errorf(codes.Aborted, util.VolumeOperationAlreadyExistsFmt, volID)
	}
	defer ns.VolumeLocks.Release(volID)

	stagingPath := volumePath + "/" + volID
	private := ns.privateBindPath(volID)
	nodeID := ns.Driver.NodeID()

	conns, err := ns.Store.GetConnections(ctx, persistence.ConnectionFilter{VolumeID: volID})
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}

	var staged *persistence.Connection
	for i := range conns {
		if conns[i].AttachedHost == nodeID && conns[i].Mountpoint == stagingPath {
			staged = &conns[i]

			break
		}
	}
	if staged == nil {
		return nil, status.Errorf(codes.FailedPrecondition, "volume %s is not staged on node %s", volID, nodeID)
	}

	devicePath := staged.ConnectorInfo[deviceKey]
	if err := ns.Connector.Extend(ctx, devicePath); err != nil {
		return nil, status.Errorf(codes.Internal, "extend device %s: %v", devicePath, err)
	}

	want := capability.Decode(staged.Capability)
	if !want.IsBlock {
		if err := ns.Host.GrowFilesystem(ctx, want.FsType, private, stagingPath); err != nil {
			return nil, status.Error(codes.FailedPrecondition, err.Error())
		}
	}

	log.DebugLog(ctx, "node: successfully expanded volume %s", volID)

	return &csi.NodeExpandVolumeResponse{}, nil
}
