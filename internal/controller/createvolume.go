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
	"strings"
	"time"

	"github.com/embercsi/ember-csi-go/internal/backend"
	"github.com/embercsi/ember-csi-go/internal/capability"
	"github.com/embercsi/ember-csi-go/internal/log"
	"github.com/embercsi/ember-csi-go/internal/persistence"
	"github.com/embercsi/ember-csi-go/internal/topology"

	"github.com/container-storage-interface/spec/lib/go/csi"
	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// forbiddenParamKeys may not be passed through to the backend as
// qos_/xtra_ extracted parameters.
var forbiddenParamKeys = map[string]bool{
	"id": true, "name": true, "size": true, "volume_size": true, "multiattach": true,
}

// CreateVolume validates capabilities/topology, looks up an existing
// volume by name for idempotency, and otherwise creates by
// backend/snapshot/clone depending on volume_content_source.
func (cs *Server) CreateVolume(ctx context.Context, req *csi.CreateVolumeRequest) (*csi.CreateVolumeResponse, error) {
	if req.GetName() == "" {
		return nil, status.Error(codes.InvalidArgument, "name is required")
	}
	if len(req.GetVolumeCapabilities()) == 0 {
		return nil, status.Error(codes.InvalidArgument, "volume capabilities are required")
	}
	if err := cs.Caps.Unsupported(req.GetVolumeCapabilities()); err != nil {
		return nil, err
	}
	if err := topology.Validate(req.GetAccessibilityRequirements(), cs.Topology); err != nil {
		return nil, err
	}

	size, min, max, err := sizeGB(req.GetCapacityRange())
	if err != nil {
		return nil, err
	}

	log.DebugLog(ctx, "CreateVolume: name=%s size=%dGB", req.GetName(), size)

	existing, err := cs.findByName(ctx, req.GetName())
	if err != nil {
		return nil, err
	}
	if existing != nil {
		vol, err := cs.reconcileExisting(ctx, *existing, min, max)
		if err != nil {
			return nil, err
		}

		return cs.toCreateVolumeResponse(vol), nil
	}

	qos, extra, err := extractParams(req.GetParameters())
	if err != nil {
		return nil, err
	}

	vol := persistence.Volume{
		ID:        uuid.NewString(),
		Name:      req.GetName(),
		SizeGB:    size,
		Status:    persistence.VolumeCreating,
		Metadata:  capabilityMetadata(req.GetVolumeCapabilities()),
		CreatedAt: now(),
	}
	if err := cs.Store.SetVolume(ctx, vol); err != nil {
		return nil, status.Errorf(codes.Internal, "persist volume: %v", err)
	}

	backendID, err := cs.createByContentSource(ctx, req, vol, size, qos, extra)
	if err != nil {
		vol.Status = persistence.VolumeError
		_ = cs.Store.SetVolume(ctx, vol)

		return nil, err
	}

	vol.BackendID = backendID
	vol.Status = persistence.VolumeAvailable
	if err := cs.Store.SetVolume(ctx, vol); err != nil {
		return nil, status.Errorf(codes.Internal, "persist volume: %v", err)
	}

	return cs.toCreateVolumeResponse(vol), nil
}

func (cs *Server) createByContentSource(
	ctx context.Context,
	req *csi.CreateVolumeRequest,
	vol persistence.Volume,
	size int64,
	qos, extra map[string]string,
) (string, error) {
	src := req.GetVolumeContentSource()
	if src == nil {
		return cs.Backend.CreateVolume(ctx, vol.Name, backend.CreateParams{SizeGB: size, QoS: qos, ExtraSpecs: extra})
	}

	if snap := src.GetSnapshot(); snap != nil {
		srcSnaps, err := cs.Store.GetSnapshots(ctx, persistence.SnapshotFilter{ID: snap.GetSnapshotId()})
		if err != nil {
			return "", status.Errorf(codes.Internal, "lookup source snapshot: %v", err)
		}
		if len(srcSnaps) == 0 {
			return "", status.Errorf(codes.NotFound, "source snapshot %s not found", snap.GetSnapshotId())
		}
		if srcSnaps[0].VolumeSize > size {
			return "", status.Error(codes.InvalidArgument, "requested size is smaller than the source snapshot")
		}

		return cs.Backend.CreateVolumeFromSnapshot(ctx, vol.Name, srcSnaps[0].BackendID, size)
	}

	if srcVol := src.GetVolume(); srcVol != nil {
		srcVols, err := cs.Store.GetVolumes(ctx, persistence.VolumeFilter{ID: srcVol.GetVolumeId()})
		if err != nil {
			return "", status.Errorf(codes.Internal, "lookup source volume: %v", err)
		}
		if len(srcVols) == 0 {
			return "", status.Errorf(codes.NotFound, "source volume %s not found", srcVol.GetVolumeId())
		}
		if srcVols[0].SizeGB > size {
			return "", status.Error(codes.InvalidArgument, "requested size is smaller than the source volume")
		}

		return cs.Backend.CloneVolume(ctx, vol.Name, srcVols[0].BackendID, size)
	}

	return "", status.Error(codes.InvalidArgument, "unsupported volume_content_source")
}

// findByName returns the existing volume with this name, or nil.
func (cs *Server) findByName(ctx context.Context, name string) (*persistence.Volume, error) {
	vols, err := cs.Store.GetVolumes(ctx, persistence.VolumeFilter{Name: name})
	if err != nil {
		return nil, status.Errorf(codes.Internal, "lookup volume by name: %v", err)
	}
	if len(vols) == 0 {
		return nil, nil
	}

	return &vols[0], nil
}

// reconcileExisting implements the idempotent-create path: the size must
// lie within [min,max], a creating volume is awaited, anything else is
// ABORTED.
func (cs *Server) reconcileExisting(ctx context.Context, vol persistence.Volume, min, max int64) (persistence.Volume, error) {
	if !withinRange(vol.SizeGB, min, max) {
		return vol, status.Errorf(codes.AlreadyExists,
			"volume %q already exists with an incompatible size", vol.Name)
	}

	if vol.Status == persistence.VolumeCreating {
		var err error
		vol, err = cs.waitForVolumeStatus(ctx, vol.ID, persistence.VolumeAvailable)
		if err != nil {
			return vol, err
		}
	}

	if vol.Status != persistence.VolumeAvailable {
		return vol, status.Errorf(codes.Aborted, "volume %q is not available (status %s)", vol.Name, vol.Status)
	}

	return vol, nil
}

// waitForVolumeStatus polls the store at a 1s interval until id reaches
// want or a terminal error status.
func (cs *Server) waitForVolumeStatus(ctx context.Context, id string, want persistence.VolumeStatus) (persistence.Volume, error) {
	for {
		vols, err := cs.Store.GetVolumes(ctx, persistence.VolumeFilter{ID: id})
		if err != nil {
			return persistence.Volume{}, status.Errorf(codes.Internal, "poll volume: %v", err)
		}
		if len(vols) == 0 {
			// a concurrent delete raced the wait; treat as settled.
			return persistence.Volume{}, status.Error(codes.NotFound, "volume deleted while waiting")
		}

		vol := vols[0]
		if vol.Status == want {
			return vol, nil
		}
		if vol.Status.IsError() {
			return vol, status.Errorf(codes.Internal, "volume %q entered error state", vol.Name)
		}

		select {
		case <-ctx.Done():
			return vol, ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

func (cs *Server) toCreateVolumeResponse(vol persistence.Volume) *csi.CreateVolumeResponse {
	return &csi.CreateVolumeResponse{
		Volume: &csi.Volume{
			VolumeId:      vol.ID,
			CapacityBytes: vol.SizeGB * oneGiB,
			VolumeContext: vol.Metadata,
		},
	}
}

// extractParams splits request parameters into qos_ and xtra_ prefixed
// maps, rejecting any of the forbiddenParamKeys.
func extractParams(params map[string]string) (qos, extra map[string]string, err error) {
	qos = map[string]string{}
	extra = map[string]string{}

	for k, v := range params {
		lower := strings.ToLower(k)
		if forbiddenParamKeys[lower] {
			return nil, nil, status.Errorf(codes.InvalidArgument, "parameter %q is not allowed", k)
		}

		switch {
		case strings.HasPrefix(k, "qos_"):
			qos[strings.TrimPrefix(k, "qos_")] = v
		case strings.HasPrefix(k, "xtra_"):
			extra[strings.TrimPrefix(k, "xtra_")] = v
		}
	}

	return qos, extra, nil
}

// capabilityMetadata records the first requested capability's
// access-mode/fs-type/block-ness on the volume record so later stage
// and publish requests can validate against it: "capability" is the
// encoded form consumed by capability.Decode, the rest are
// human-readable duplicates already relied on elsewhere.
func capabilityMetadata(caps []*csi.VolumeCapability) map[string]string {
	if len(caps) == 0 {
		return nil
	}
	c := capability.FromCSI(caps[0])
	md := map[string]string{"access_mode": c.AccessMode.String(), "capability": c.Encode()}
	if c.IsBlock {
		md["volume_mode"] = "block"
	} else {
		md["volume_mode"] = "mount"
		if c.FsType != "" {
			md["requested_fs_type"] = c.FsType
		}
	}

	return md
}

func now() time.Time {
	return time.Now()
}
