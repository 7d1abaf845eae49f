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

// ControllerExpandVolume rejects shrink, rejects expanding an in-use
// volume when online expansion is disabled, and reports
// node_expansion_required whenever the volume is attached or has a
// recorded filesystem.
func (cs *Server) ControllerExpandVolume(
	ctx context.Context,
	req *csi.ControllerExpandVolumeRequest,
) (*csi.ControllerExpandVolumeResponse, error) {
	if req.GetVolumeId() == "" {
		return nil, status.Error(codes.InvalidArgument, "volume_id is required")
	}

	vols, err := cs.Store.GetVolumes(ctx, persistence.VolumeFilter{ID: req.GetVolumeId()})
	if err != nil {
		return nil, status.Errorf(codes.Internal, "lookup volume: %v", err)
	}
	if len(vols) == 0 {
		return nil, status.Errorf(codes.NotFound, "volume %q not found", req.GetVolumeId())
	}
	vol := vols[0]

	_, _, max, err := sizeGB(req.GetCapacityRange())
	if err != nil {
		return nil, err
	}
	if max < vol.SizeGB {
		return nil, status.Errorf(codes.OutOfRange, "cannot shrink volume %q from %dGB to %dGB", vol.ID, vol.SizeGB, max)
	}

	if vol.Status == persistence.VolumeInUse && cs.DisableOnlineExpand {
		return nil, status.Errorf(codes.FailedPrecondition, "volume %q is in use and online expansion is disabled", vol.ID)
	}

	log.DebugLog(ctx, "ControllerExpandVolume: volume=%s from=%dGB to=%dGB", vol.ID, vol.SizeGB, max)

	if err := cs.Backend.ExtendVolume(ctx, vol.BackendID, max); err != nil {
		return nil, status.Errorf(codes.Internal, "extend volume at backend: %v", err)
	}

	vol.SizeGB = max
	if err := cs.Store.SetVolume(ctx, vol); err != nil {
		return nil, status.Errorf(codes.Internal, "persist expanded volume: %v", err)
	}

	nodeExpansionRequired := vol.Status == persistence.VolumeInUse || vol.Metadata["requested_fs_type"] != ""

	return &csi.ControllerExpandVolumeResponse{
		CapacityBytes:         max * oneGiB,
		NodeExpansionRequired: nodeExpansionRequired,
	}, nil
}
