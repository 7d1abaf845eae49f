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
	"sort"
	"strconv"

	"github.com/embercsi/ember-csi-go/internal/persistence"

	"github.com/container-storage-interface/spec/lib/go/csi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ListVolumes sorts by created_at, seeks past the nanosecond-timestamp
// starting_token, and returns up to max_entries with the next page's
// token being the created_at of the last entry returned.
func (cs *Server) ListVolumes(ctx context.Context, req *csi.ListVolumesRequest) (*csi.ListVolumesResponse, error) {
	vols, err := cs.Store.GetVolumes(ctx, persistence.VolumeFilter{})
	if err != nil {
		return nil, status.Errorf(codes.Internal, "lookup volumes: %v", err)
	}

	sort.Slice(vols, func(i, j int) bool { return vols[i].CreatedAt.Before(vols[j].CreatedAt) })

	after, err := parseStartingToken(req.GetStartingToken())
	if err != nil {
		return nil, err
	}

	start := 0
	for start < len(vols) && vols[start].CreatedAt.UnixNano() <= after {
		start++
	}

	page, nextToken := pageOf(vols, start, int(req.GetMaxEntries()), func(v persistence.Volume) int64 { return v.CreatedAt.UnixNano() })

	entries := make([]*csi.ListVolumesResponse_Entry, 0, len(page))
	for _, v := range page {
		entries = append(entries, &csi.ListVolumesResponse_Entry{
			Volume: &csi.Volume{VolumeId: v.ID, CapacityBytes: v.SizeGB * oneGiB, VolumeContext: v.Metadata},
		})
	}

	return &csi.ListVolumesResponse{Entries: entries, NextToken: nextToken}, nil
}

// ListSnapshots implements the same sort/seek/paginate algorithm over
// Snapshot records, optionally filtered to a single volume or snapshot id.
func (cs *Server) ListSnapshots(ctx context.Context, req *csi.ListSnapshotsRequest) (*csi.ListSnapshotsResponse, error) {
	snaps, err := cs.Store.GetSnapshots(ctx, persistence.SnapshotFilter{
		ID:       req.GetSnapshotId(),
		VolumeID: req.GetSourceVolumeId(),
	})
	if err != nil {
		return nil, status.Errorf(codes.Internal, "lookup snapshots: %v", err)
	}

	sort.Slice(snaps, func(i, j int) bool { return snaps[i].CreatedAt.Before(snaps[j].CreatedAt) })

	after, err := parseStartingToken(req.GetStartingToken())
	if err != nil {
		return nil, err
	}

	start := 0
	for start < len(snaps) && snaps[start].CreatedAt.UnixNano() <= after {
		start++
	}

	page, nextToken := pageOf(snaps, start, int(req.GetMaxEntries()), func(s persistence.Snapshot) int64 { return s.CreatedAt.UnixNano() })

	entries := make([]*csi.ListSnapshotsResponse_Entry, 0, len(page))
	for _, s := range page {
		entries = append(entries, &csi.ListSnapshotsResponse_Entry{
			Snapshot: &csi.Snapshot{
				SnapshotId:     s.ID,
				SourceVolumeId: s.VolumeID,
				SizeBytes:      s.VolumeSize * oneGiB,
				ReadyToUse:     s.Status == persistence.SnapshotAvailable,
			},
		})
	}

	return &csi.ListSnapshotsResponse{Entries: entries, NextToken: nextToken}, nil
}

// parseStartingToken parses the opaque nanosecond-timestamp token. An
// empty token means "start from the beginning"; anything that fails to
// parse returns an ABORTED error.
func parseStartingToken(token string) (int64, error) {
	if token == "" {
		return -1, nil
	}

	n, err := strconv.ParseInt(token, 10, 64)
	if err != nil {
		return 0, status.Errorf(codes.Aborted, "invalid starting_token %q", token)
	}

	return n, nil
}

// pageOf slices items[start:] down to maxEntries (0 meaning unbounded)
// and returns the next_token: the created_at of the last returned entry
// when more remain, or "" once the list is exhausted.
func pageOf[T any](items []T, start, maxEntries int, createdAt func(T) int64) ([]T, string) {
	end := len(items)
	if maxEntries > 0 && start+maxEntries < end {
		end = start + maxEntries
	}

	page := items[start:end]

	if end == len(items) {
		return page, ""
	}

	return page, strconv.FormatInt(createdAt(page[len(page)-1]), 10)
}
