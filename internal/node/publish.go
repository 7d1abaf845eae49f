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
	"time"

	"github.com/embercsi/ember-csi-go/internal/capability"
	"github.com/embercsi/ember-csi-go/internal/hostutil"
	"github.com/embercsi/ember-csi-go/internal/log"
	"github.com/embercsi/ember-csi-go/internal/persistence"
	"github.com/embercsi/ember-csi-go/internal/util"

	"github.com/container-storage-interface/spec/lib/go/csi"
	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// podUIDContextKey is the volume_context key kubelet sets to the
// requesting pod's UID.
const podUIDContextKey = "csi.storage.k8s.io/pod.uid"

// NodePublishVolume bind-mounts an already-staged volume at the
// requested target path, duplicating the staging Connection into a
// per-target-path record the first time a given target is published.
func (ns *Server) NodePublishVolume(ctx context.Context, req *csi.NodePublishVolumeRequest) (*csi.NodePublishVolumeResponse, error) {
	if req.GetVolumeId() == "" {
		return nil, status.Error(codes.InvalidArgument, "volume ID must be provided")
	}
	if req.GetStagingTargetPath() == "" {
		return nil, status.Error(codes.InvalidArgument, "staging target path must be provided")
	}
	if req.GetTargetPath() == "" {
		return nil, status.Error(codes.InvalidArgument, "target path must be provided")
	}
	if req.GetVolumeCapability() == nil {
		return nil, status.Error(codes.InvalidArgument, "volume capability must be provided")
	}

	volID := req.GetVolumeId()
	if acquired := ns.VolumeLocks.TryAcquire(volID); !acquired {
		return nil, status.Errorf(codes.Aborted, util.VolumeOperationAlreadyExistsFmt, volID)
	}
	defer ns.VolumeLocks.Release(volID)

	want := capability.FromCSI(req.GetVolumeCapability())
	if err := ns.Caps.Unsupported([]*csi.VolumeCapability{req.GetVolumeCapability()}); err != nil {
		return nil, err
	}

	stagingPath := req.GetStagingTargetPath() + "/" + volID
	targetPath := req.GetTargetPath()
	nodeID := ns.Driver.NodeID()

	conns, err := ns.Store.GetConnections(ctx, persistence.ConnectionFilter{VolumeID: volID})
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}

	var staged *persistence.Connection
	var existingTarget *persistence.Connection
	existingCaps := make([]capability.Capability, 0, len(conns))
	for i := range conns {
		c := conns[i]
		if c.AttachedHost == nodeID && c.Mountpoint == stagingPath {
			staged = &c
		}
		if c.Mountpoint == targetPath {
			existingTarget = &c
		}
		existingCaps = append(existingCaps, capability.Decode(c.Capability))
	}
	if staged == nil {
		return nil, status.Errorf(codes.FailedPrecondition, "volume %s is not staged on node %s", volID, nodeID)
	}

	podUID := req.GetVolumeContext()[podUIDContextKey]

	if existingTarget != nil {
		if !capability.Decode(existingTarget.Capability).Equal(want) {
			return nil, status.Errorf(codes.AlreadyExists,
				"target path %s already published with an incompatible capability", targetPath)
		}
		if existingTarget.InstanceUUID != podUID {
			existingTarget.InstanceUUID = podUID
			if err := ns.Store.SetConnection(ctx, *existingTarget); err != nil {
				return nil, status.Error(codes.Internal, err.Error())
			}
		}
	} else {
		if err := want.IncompatibleConnections(existingCaps, -1); err != nil {
			return nil, err
		}

		attachMode := persistence.AttachRW
		if want.UsedAsRO() {
			attachMode = persistence.AttachRO
		}

		newConn := persistence.Connection{
			ID:            uuid.NewString(),
			VolumeID:      volID,
			AttachedHost:  nodeID,
			ConnectorInfo: staged.ConnectorInfo,
			Capability:    want.Encode(),
			Mountpoint:    targetPath,
			AttachMode:    attachMode,
			InstanceUUID:  podUID,
			Status:        "published",
			CreatedAt:     time.Now(),
		}
		if err := ns.Store.SetConnection(ctx, newConn); err != nil {
			return nil, status.Error(codes.Internal, err.Error())
		}
	}

	if want.IsBlock {
		if err := hostutil.EnsureBlockTargetFile(targetPath); err != nil {
			return nil, status.Error(codes.Internal, err.Error())
		}
	} else {
		if err := hostutil.EnsureDir(targetPath); err != nil {
			return nil, status.Error(codes.Internal, err.Error())
		}
	}

	mounted, err := ns.Host.IsMountPoint(targetPath)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	if !mounted {
		if err := ns.Host.BindMount(stagingPath, targetPath, want.UsedAsRO()); err != nil {
			return nil, status.Error(codes.Internal, err.Error())
		}
	}

	log.DebugLog(ctx, "node: successfully published volume %s at %s", volID, targetPath)

	return &csi.NodePublishVolumeResponse{}, nil
}
