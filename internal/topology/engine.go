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

// Package topology evaluates CSI accessibility-requirement segments
// against the hierarchy of topology segments the plugin was configured
// with.
package topology

import (
	"github.com/container-storage-interface/spec/lib/go/csi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Engine holds the ordered list of configured topology segment maps.
// Ordering defines dominance: earlier entries in the hierarchy are
// considered before later ones when matching a requisite topology.
type Engine struct {
	hierarchy []map[string]string
}

// NewEngine builds an Engine from the configured segment hierarchy
// (X_CSI_TOPOLOGIES). A nil or empty hierarchy disables topology
// checking: Accessible and Validate then always succeed.
func NewEngine(hierarchy []map[string]string) *Engine {
	return &Engine{hierarchy: hierarchy}
}

// Enabled reports whether any topology hierarchy was configured.
func (e *Engine) Enabled() bool {
	return len(e.hierarchy) > 0
}

// Accessible reports whether the given topology segments form a
// prefix-or-subset path through the configured hierarchy.
func (e *Engine) Accessible(segments map[string]string) bool {
	if !e.Enabled() {
		return true
	}

	for _, candidate := range e.hierarchy {
		if isSubset(segments, candidate) {
			return true
		}
	}

	return false
}

// isSubset reports whether every key/value pair in subset also appears in
// superset.
func isSubset(subset, superset map[string]string) bool {
	for key, value := range subset {
		if superset[key] != value {
			return false
		}
	}

	return true
}

// Validate checks a CreateVolume request's accessibility_requirements
// against the configured hierarchy: preferred must be a subset of
// requisite, and at least one requisite topology must be accessible.
func Validate(req *csi.TopologyRequirement, e *Engine) error {
	if req == nil {
		return nil
	}

	requisite := req.GetRequisite()
	preferred := req.GetPreferred()

	if len(preferred) > 0 && len(requisite) > 0 {
		for _, p := range preferred {
			found := false
			for _, r := range requisite {
				if sameSegments(p.GetSegments(), r.GetSegments()) {
					found = true

					break
				}
			}
			if !found {
				return status.Error(codes.InvalidArgument,
					"preferred topology is not a subset of requisite topology")
			}
		}
	}

	if e == nil || !e.Enabled() {
		return nil
	}

	for _, r := range requisite {
		if e.Accessible(r.GetSegments()) {
			return nil
		}
	}

	if len(requisite) == 0 {
		return nil
	}

	return status.Error(codes.InvalidArgument, "no requisite topology is accessible by this plugin")
}

func sameSegments(a, b map[string]string) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if b[k] != v {
			return false
		}
	}

	return true
}
