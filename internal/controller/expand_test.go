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
	"testing"

	"github.com/embercsi/ember-csi-go/internal/backend"
	"github.com/embercsi/ember-csi-go/internal/persistence"

	"github.com/container-storage-interface/spec/lib/go/csi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestControllerExpandVolumeGrows(t *testing.T) {
	srv, store, fake := newTestServer(100)
	ctx := context.Background()

	backendID, err := fake.CreateVolume(ctx, "v1", backend.CreateParams{SizeGB: 2})
	require.NoError(t, err)
	require.NoError(t, store.SetVolume(ctx, persistence.Volume{
		ID: "v1", Name: "v1", SizeGB: 2, Status: persistence.VolumeAvailable, BackendID: backendID,
	}))

	resp, err := srv.ControllerExpandVolume(ctx, &csi.ControllerExpandVolumeRequest{
		VolumeId:      "v1",
		CapacityRange: &csi.CapacityRange{RequiredBytes: 5 * oneGiB},
	})
	require.NoError(t, err)
	assert.EqualValues(t, 5*oneGiB, resp.GetCapacityBytes())
	assert.False(t, resp.GetNodeExpansionRequired())
}

func TestControllerExpandVolumeRejectsShrink(t *testing.T) {
	srv, store, fake := newTestServer(100)
	ctx := context.Background()

	backendID, err := fake.CreateVolume(ctx, "v1", backend.CreateParams{SizeGB: 10})
	require.NoError(t, err)
	require.NoError(t, store.SetVolume(ctx, persistence.Volume{
		ID: "v1", Name: "v1", SizeGB: 10, Status: persistence.VolumeAvailable, BackendID: backendID,
	}))

	_, err = srv.ControllerExpandVolume(ctx, &csi.ControllerExpandVolumeRequest{
		VolumeId:      "v1",
		CapacityRange: &csi.CapacityRange{RequiredBytes: 2 * oneGiB},
	})
	require.Error(t, err)
	assert.Equal(t, codes.OutOfRange, status.Code(err))
}

func TestControllerExpandVolumeInUseRejectedWhenOnlineDisabled(t *testing.T) {
	srv, store, fake := newTestServer(100)
	srv.DisableOnlineExpand = true
	ctx := context.Background()

	backendID, err := fake.CreateVolume(ctx, "v1", backend.CreateParams{SizeGB: 2})
	require.NoError(t, err)
	require.NoError(t, store.SetVolume(ctx, persistence.Volume{
		ID: "v1", Name: "v1", SizeGB: 2, Status: persistence.VolumeInUse, BackendID: backendID,
	}))

	_, err = srv.ControllerExpandVolume(ctx, &csi.ControllerExpandVolumeRequest{
		VolumeId:      "v1",
		CapacityRange: &csi.CapacityRange{RequiredBytes: 5 * oneGiB},
	})
	require.Error(t, err)
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))
}
