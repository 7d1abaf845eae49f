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

// Package specversion resolves CSI spec-version selection: the vendored
// container-storage-interface/spec Go package is a single fixed version,
// so there's no swappable v0_2_0/v0_3_0/v1_0_0/v1_1_0 types module to
// select between. Instead, Profile gates which optional RPCs and fields
// a configured spec version allows.
package specversion

import "fmt"

// Profile describes what a configured CSI spec version supports.
type Profile struct {
	Version string

	// SupportsAccessibilityConstraints is false for 0.2.0, which predates
	// topology.
	SupportsAccessibilityConstraints bool

	// SupportsListVolumesPaging is false for 0.2.0/0.3.0.
	SupportsListVolumesPaging bool

	// SupportsVolumeExpansion is false before 1.1.0.
	SupportsVolumeExpansion bool
}

// known is the ordered list of recognized spec versions, least to most
// capable.
var known = []string{"0.2.0", "0.3.0", "1.0.0", "1.1.0"}

// ForVersion builds the Profile for a configured spec version string as
// validated by internal/config.Load.
func ForVersion(version string) (Profile, error) {
	idx := indexOf(version)
	if idx < 0 {
		return Profile{}, fmt.Errorf("specversion: unknown CSI spec version %q", version)
	}

	return Profile{
		Version:                          version,
		SupportsAccessibilityConstraints: idx >= indexOf("0.3.0"),
		SupportsListVolumesPaging:        idx >= indexOf("1.0.0"),
		SupportsVolumeExpansion:          idx >= indexOf("1.1.0"),
	}, nil
}

func indexOf(version string) int {
	for i, v := range known {
		if v == version {
			return i
		}
	}

	return -1
}
