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
	"time"

	"github.com/embercsi/ember-csi-go/internal/hostutil"
	"github.com/embercsi/ember-csi-go/internal/log"
	"github.com/embercsi/ember-csi-go/internal/persistence"
	"github.com/embercsi/ember-csi-go/internal/util"

	"github.com/container-storage-interface/spec/lib/go/csi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// unpublishRetries/unpublishRetryDelay bound the target-umount retry
// loop.
const (
	unpublishRetries    = 3
	unpublishRetryDelay = 100 * time.Millisecond
)

// NodeUnpublishVolume unmounts a target path and removes the Connection
// record NodePublishVolume created for it.
func (ns *Server) NodeUnpublishVolume(ctx context.Context, req *csi.NodeUnpublishVolumeRequest) (*csi.NodeUnpublishVolumeResponse, error) {
	if req.GetVolumeId() == "" {
		return nil, status.Error(codes.InvalidArgument, "volume ID must be provided")
	}
	if req.GetTargetPath() == "" {
		return nil, status.Error(codes.InvalidArgument, "target path must be provided")
	}

	volID := req.GetVolumeId()
	if acquired := ns.VolumeLocks.TryAcquire(volID); !acquired {
		return nil, status.Errorf(codes.Aborted, util.VolumeOperationAlreadyExistsFmt, volID)
	}
	defer ns.VolumeLocks.Release(volID)

	targetPath := req.GetTargetPath()

	mounted, err := ns.Host.IsMountPoint(targetPath)
	if err != nil {
		if os.IsNotExist(err) {
			return &csi.NodeUnpublishVolumeResponse{}, nil
		}

		return nil, status.Error(codes.Internal, err.Error())
	}

	if mounted {
		_ = ns.Host.Sync(ns.privateBindPath(volID))

		retryErr := hostutil.RunWithRetry(ctx, unpublishRetries, unpublishRetryDelay,
			func(error) bool { return true },
			func() error { return ns.Host.Unmount(targetPath) })
		if retryErr != nil {
			return nil, status.Errorf(codes.Internal, "unmount target path %s: %v", targetPath, retryErr)
		}
	}

	if err := os.RemoveAll(targetPath); err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}

	conns, err := ns.Store.GetConnections(ctx, persistence.ConnectionFilter{VolumeID: volID})
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	for _, c := range conns {
		if c.Mountpoint == targetPath {
			if err := ns.Store.DeleteConnection(ctx, c.ID); err != nil {
				return nil, status.Error(codes.Internal, err.Error())
			}

			break
		}
	}

	log.DebugLog(ctx, "node: successfully unpublished volume %s from %s", volID, targetPath)

	return &csi.NodeUnpublishVolumeResponse{}, nil
}
