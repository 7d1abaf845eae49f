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
	"os"

	"github.com/embercsi/ember-csi-go/internal/log"
	"github.com/embercsi/ember-csi-go/internal/persistence"
	"github.com/embercsi/ember-csi-go/internal/util"

	"github.com/container-storage-interface/spec/lib/go/csi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// deviceKey is the ConnectorInfo key NodeStageVolume stashes the
// attached device path under, so NodeUnstageVolume and NodeExpandVolume
// can later detach/rescan without re-running discovery.
const deviceKey = "_device_path"

// NodeUnstageVolume unstages a volume from this node. Per the spec's own
// recommendation, liveness is determined by counting Connection records
// in the persistence store rather than by counting
// /proc/self/mountinfo rows: any Connection on this node whose
// mountpoint is a NodePublish target (not the staging path itself)
// means the volume is still in use, and hostutil mount-table
// inspection is used only to decide whether a given mount is still
// actually present on this host.
func (ns *Server) NodeUnstageVolume(ctx context.Context, req *csi.NodeUnstageVolumeRequest) (*csi.NodeUnstageVolumeResponse, error) {
	if req.GetVolumeId() == "" {
		return nil, status.Error(codes.InvalidArgument, "volume ID must be provided")
	}
	if req.GetStagingTargetPath() == "" {
		return nil, status.Error(codes.InvalidArgument, "staging target path must be provided")
	}

	volID := req.GetVolumeId()
	if acquired := ns.VolumeLocks.TryAcquire(volID); !acquired {
		return nil, status.Errorf(codes.Aborted, util.VolumeOperationAlreadyExistsFmt, volID)
	}
	defer ns.VolumeLocks.Release(volID)

	stagingPath := req.GetStagingTargetPath() + "/" + volID
	private := ns.privateBindPath(volID)

	conns, err := ns.Store.GetConnections(ctx, persistence.ConnectionFilter{VolumeID: volID})
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}

	nodeID := ns.Driver.NodeID()
	var staged *persistence.Connection
	for i := range conns {
		c := conns[i]
		if c.AttachedHost != nodeID {
			continue
		}
		if c.Mountpoint == stagingPath || c.Mountpoint == "" {
			staged = &c

			continue
		}

		// A Connection whose mountpoint is a different (NodePublish
		// target) path: the volume is still published somewhere on
		// this node.
		return nil, status.Errorf(codes.Aborted, "volume %s is still published on node %s", volID, nodeID)
	}

	if mounted, err := ns.Host.IsMountPoint(stagingPath); err == nil && mounted {
		if err := ns.Host.Unmount(stagingPath); err != nil {
			return nil, status.Errorf(codes.Internal, "unmount staging path %s: %v", stagingPath, err)
		}
	}
	if err := os.Remove(stagingPath); err != nil && !os.IsNotExist(err) {
		return nil, status.Errorf(codes.Internal, "remove staging path %s: %v", stagingPath, err)
	}

	if mounted, err := ns.Host.IsMountPoint(private); err == nil && mounted {
		if err := ns.Host.Unmount(private); err != nil {
			return nil, status.Errorf(codes.Internal, "unmount private bind %s: %v", private, err)
		}
	}

	var devicePath string
	if staged != nil {
		devicePath = staged.ConnectorInfo[deviceKey]
		if err := ns.Connector.Detach(ctx, staged.ConnectorInfo, devicePath); err != nil {
			return nil, status.Errorf(codes.Internal, "detach volume %s: %v", volID, err)
		}
	}

	if err := os.Remove(private); err != nil && !os.IsNotExist(err) {
		return nil, status.Errorf(codes.Internal, "remove private bind %s: %v", private, err)
	}

	if staged != nil {
		staged.Mountpoint = ""
		if err := ns.Store.SetConnection(ctx, *staged); err != nil {
			return nil, status.Error(codes.Internal, err.Error())
		}
	}

	log.DebugLog(ctx, "node: successfully unstaged volume %s from %s", volID, stagingPath)

	return &csi.NodeUnstageVolumeResponse{}, nil
}
