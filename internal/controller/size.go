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
	"github.com/container-storage-interface/spec/lib/go/csi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const oneGiB = 1 << 30

// sizeGB derives (size, min, max) in GiB from a CapacityRange, floored at
// 1 GiB. limit < required is INVALID_ARGUMENT; a range that cannot
// reach 1 GiB (including the fully-unset range) is OUT_OF_RANGE.
func sizeGB(cr *csi.CapacityRange) (size, min, max int64, err error) {
	required := cr.GetRequiredBytes()
	limit := cr.GetLimitBytes()

	if required == 0 && limit == 0 {
		return 0, 0, 0, status.Error(codes.OutOfRange, "min size is 1GB")
	}

	if limit > 0 && required > limit {
		return 0, 0, 0, status.Errorf(codes.InvalidArgument,
			"limit_bytes %d is smaller than required_bytes %d", limit, required)
	}

	min = ceilGB(required)
	if min < 1 {
		min = 1
	}

	if limit == 0 {
		max = min

		return min, min, max, nil
	}

	max = limit / oneGiB
	if max < 1 {
		return 0, 0, 0, status.Error(codes.OutOfRange, "min size is 1GB")
	}

	return min, min, max, nil
}

func ceilGB(bytes int64) int64 {
	if bytes <= 0 {
		return 0
	}
	g := bytes / oneGiB
	if bytes%oneGiB != 0 {
		g++
	}

	return g
}

// withinRange reports whether sizeGB lies within [min,max].
func withinRange(size, min, max int64) bool {
	return size >= min && size <= max
}
