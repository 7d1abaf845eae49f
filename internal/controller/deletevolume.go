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
	"context"

	"github.com/embercsi/ember-csi-go/internal/log"
	"github.com/embercsi/ember-csi-go/internal/persistence"

	"github.com/container-storage-interface/spec/lib/go/csi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// DeleteVolume treats absent as success, in-use as FAILED_PRECONDITION,
// awaits a concurrent delete already in flight, and soft-deletes a
// volume that still owns snapshots rather than destroying it at the
// backend.
func (cs *Server) DeleteVolume(ctx context.Context, req *csi.DeleteVolumeRequest) (*csi.DeleteVolumeResponse, error) {
	if req.GetVolumeId() == "" {
		return nil, status.Error(codes.InvalidArgument, "volume_id is required")
	}

	vols, err := cs.Store.GetVolumes(ctx, persistence.VolumeFilter{ID: req.GetVolumeId()})
	if err != nil {
		return nil, status.Errorf(codes.Internal, "lookup volume: %v", err)
	}
	if len(vols) == 0 {
		return &csi.DeleteVolumeResponse{}, nil
	}
	vol := vols[0]

	log.DebugLog(ctx, "DeleteVolume: id=%s status=%s", vol.ID, vol.Status)

	switch vol.Status {
	case persistence.VolumeInUse:
		return nil, status.Errorf(codes.FailedPrecondition, "volume %q is still in use", vol.ID)
	case persistence.VolumeDeleted:
		return &csi.DeleteVolumeResponse{}, nil
	case persistence.VolumeDeleting:
		if _, err := cs.waitForVolumeStatus(ctx, vol.ID, persistence.VolumeDeleted); err != nil {
			if status.Code(err) == codes.NotFound {
				return &csi.DeleteVolumeResponse{}, nil
			}

			return nil, err
		}

		return &csi.DeleteVolumeResponse{}, nil
	}

	snaps, err := cs.Store.GetSnapshots(ctx, persistence.SnapshotFilter{VolumeID: vol.ID})
	if err != nil {
		return nil, status.Errorf(codes.Internal, "lookup snapshots: %v", err)
	}
	if len(snaps) > 0 {
		vol.Status = persistence.VolumeDeleted
		if err := cs.Store.SetVolume(ctx, vol); err != nil {
			return nil, status.Errorf(codes.Internal, "soft-delete volume: %v", err)
		}

		return &csi.DeleteVolumeResponse{}, nil
	}

	vol.Status = persistence.VolumeDeleting
	if err := cs.Store.SetVolume(ctx, vol); err != nil {
		return nil, status.Errorf(codes.Internal, "mark volume deleting: %v", err)
	}

	if err := cs.Backend.DeleteVolume(ctx, vol.BackendID); err != nil {
		vol.Status = persistence.VolumeError
		_ = cs.Store.SetVolume(ctx, vol)

		return nil, status.Errorf(codes.Internal, "delete volume at backend: %v", err)
	}

	if err := cs.Store.DeleteVolume(ctx, vol.ID); err != nil {
		return nil, status.Errorf(codes.Internal, "remove volume record: %v", err)
	}

	return &csi.DeleteVolumeResponse{}, nil
}
