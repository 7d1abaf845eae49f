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
	"time"

	"github.com/embercsi/ember-csi-go/internal/persistence"

	"github.com/container-storage-interface/spec/lib/go/csi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// TestListVolumesPaginatesByCreatedAt is scenario S6: max_entries=2 over
// 5 volumes, paging via next_token twice, returns 2,2,1 in created_at
// order with an empty next_token on the last page.
func TestListVolumesPaginatesByCreatedAt(t *testing.T) {
	srv, store, _ := newTestServer(100)
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		require.NoError(t, store.SetVolume(ctx, persistence.Volume{
			ID: string(rune('a' + i)), Name: string(rune('a' + i)),
			Status: persistence.VolumeAvailable, CreatedAt: base.Add(time.Duration(i) * time.Second),
		}))
	}

	page1, err := srv.ListVolumes(ctx, &csi.ListVolumesRequest{MaxEntries: 2})
	require.NoError(t, err)
	require.Len(t, page1.GetEntries(), 2)
	assert.Equal(t, "a", page1.GetEntries()[0].GetVolume().GetVolumeId())
	assert.Equal(t, "b", page1.GetEntries()[1].GetVolume().GetVolumeId())
	assert.NotEmpty(t, page1.GetNextToken())

	page2, err := srv.ListVolumes(ctx, &csi.ListVolumesRequest{MaxEntries: 2, StartingToken: page1.GetNextToken()})
	require.NoError(t, err)
	require.Len(t, page2.GetEntries(), 2)
	assert.Equal(t, "c", page2.GetEntries()[0].GetVolume().GetVolumeId())
	assert.Equal(t, "d", page2.GetEntries()[1].GetVolume().GetVolumeId())
	assert.NotEmpty(t, page2.GetNextToken())

	page3, err := srv.ListVolumes(ctx, &csi.ListVolumesRequest{MaxEntries: 2, StartingToken: page2.GetNextToken()})
	require.NoError(t, err)
	require.Len(t, page3.GetEntries(), 1)
	assert.Equal(t, "e", page3.GetEntries()[0].GetVolume().GetVolumeId())
	assert.Empty(t, page3.GetNextToken())
}

func TestListVolumesInvalidTokenIsAborted(t *testing.T) {
	srv, _, _ := newTestServer(100)

	_, err := srv.ListVolumes(context.Background(), &csi.ListVolumesRequest{StartingToken: "not-a-number"})
	require.Error(t, err)
	assert.Equal(t, codes.Aborted, status.Code(err))
}
