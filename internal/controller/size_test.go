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
	"testing"

	"github.com/container-storage-interface/spec/lib/go/csi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestSizeGBFullyUnsetIsOutOfRange(t *testing.T) {
	_, _, _, err := sizeGB(&csi.CapacityRange{})
	require.Error(t, err)
	assert.Equal(t, codes.OutOfRange, status.Code(err))
}

func TestSizeGBLimitSmallerThanRequiredIsInvalidArgument(t *testing.T) {
	_, _, _, err := sizeGB(&csi.CapacityRange{RequiredBytes: 5 * oneGiB, LimitBytes: 2 * oneGiB})
	require.Error(t, err)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestSizeGBFloorsToOneGiB(t *testing.T) {
	size, min, max, err := sizeGB(&csi.CapacityRange{RequiredBytes: 100})
	require.NoError(t, err)
	assert.EqualValues(t, 1, size)
	assert.EqualValues(t, 1, min)
	assert.EqualValues(t, 1, max)
}

func TestSizeGBRoundsUpPartialGiB(t *testing.T) {
	size, _, _, err := sizeGB(&csi.CapacityRange{RequiredBytes: oneGiB + 1})
	require.NoError(t, err)
	assert.EqualValues(t, 2, size)
}

func TestSizeGBLimitBelowOneGiBIsOutOfRange(t *testing.T) {
	_, _, _, err := sizeGB(&csi.CapacityRange{LimitBytes: 500 * 1024 * 1024})
	require.Error(t, err)
	assert.Equal(t, codes.OutOfRange, status.Code(err))
}

func TestSizeGBLimitWidensMax(t *testing.T) {
	_, min, max, err := sizeGB(&csi.CapacityRange{RequiredBytes: oneGiB, LimitBytes: 5 * oneGiB})
	require.NoError(t, err)
	assert.EqualValues(t, 1, min)
	assert.EqualValues(t, 5, max)
}

func TestWithinRange(t *testing.T) {
	assert.True(t, withinRange(3, 1, 5))
	assert.False(t, withinRange(6, 1, 5))
	assert.False(t, withinRange(0, 1, 5))
}
