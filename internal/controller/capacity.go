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

	"github.com/container-storage-interface/spec/lib/go/csi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// GetCapacity reports the backend's free capacity in bytes, subject to
// the same capability and topology checks CreateVolume applies.
func (cs *Server) GetCapacity(ctx context.Context, req *csi.GetCapacityRequest) (*csi.GetCapacityResponse, error) {
	if len(req.GetVolumeCapabilities()) > 0 {
		if err := cs.Caps.Unsupported(req.GetVolumeCapabilities()); err != nil {
			return nil, err
		}
	}
	if req.GetAccessibleTopology() != nil && !cs.Topology.Accessible(req.GetAccessibleTopology().GetSegments()) {
		return nil, status.Error(codes.InvalidArgument, "requested topology is not accessible by this plugin")
	}

	st, err := cs.Backend.Stats(ctx, true)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "query backend stats: %v", err)
	}

	return &csi.GetCapacityResponse{AvailableCapacity: st.FreeGB * oneGiB}, nil
}
