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

	"github.com/container-storage-interface/spec/lib/go/csi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetCapacityReportsBackendFreeSpace(t *testing.T) {
	srv, _, fake := newTestServer(100)
	ctx := context.Background()

	_, err := fake.CreateVolume(ctx, "v1", backend.CreateParams{SizeGB: 40})
	require.NoError(t, err)

	resp, err := srv.GetCapacity(ctx, &csi.GetCapacityRequest{})
	require.NoError(t, err)
	assert.EqualValues(t, 60*oneGiB, resp.GetAvailableCapacity())
}
