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

	"github.com/container-storage-interface/spec/lib/go/csi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestValidateVolumeCapabilitiesNotFound(t *testing.T) {
	srv, _, _ := newTestServer(100)

	_, err := srv.ValidateVolumeCapabilities(context.Background(), &csi.ValidateVolumeCapabilitiesRequest{
		VolumeId:           "nope",
		VolumeCapabilities: []*csi.VolumeCapability{mountCap("ext4")},
	})
	require.Error(t, err)
	assert.Equal(t, codes.NotFound, status.Code(err))
}

func TestValidateVolumeCapabilitiesConfirms(t *testing.T) {
	srv, store, fake := newTestServer(100)
	setupVolume(t, store, fake, "v1", 2)

	resp, err := srv.ValidateVolumeCapabilities(context.Background(), &csi.ValidateVolumeCapabilitiesRequest{
		VolumeId:           "v1",
		VolumeCapabilities: []*csi.VolumeCapability{mountCap("ext4")},
	})
	require.NoError(t, err)
	require.NotNil(t, resp.GetConfirmed())
}
