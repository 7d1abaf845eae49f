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

// Package capability models the CSI volume-capability tuple (access mode,
// block/mount kind, fs-type, mount flags, ro-forced) as a single value
// type with explicit equality, compatibility and connection-conflict
// checks, replacing cephcsi's scattered IsBlockMultiNode/IsFileRWO/
// IsReaderOnly/IsBlockMultiWriter boolean helpers.
package capability

import (
	"sort"
	"strings"

	"github.com/container-storage-interface/spec/lib/go/csi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// roSet is the set of access modes that are read-only regardless of
// ro_forced.
var roSet = map[csi.VolumeCapability_AccessMode_Mode]bool{
	csi.VolumeCapability_AccessMode_SINGLE_NODE_READER_ONLY: true,
	csi.VolumeCapability_AccessMode_MULTI_NODE_READER_ONLY:  true,
}

// singleSet is the set of access modes confined to a single node.
var singleSet = map[csi.VolumeCapability_AccessMode_Mode]bool{
	csi.VolumeCapability_AccessMode_SINGLE_NODE_WRITER:        true,
	csi.VolumeCapability_AccessMode_SINGLE_NODE_READER_ONLY:   true,
	csi.VolumeCapability_AccessMode_SINGLE_NODE_SINGLE_WRITER: true,
	csi.VolumeCapability_AccessMode_SINGLE_NODE_MULTI_WRITER:  true,
}

// Capability is the tuple (access_mode, is_block, fs_type, mount_flags,
// ro_forced) a CSI VolumeCapability resolves to.
type Capability struct {
	AccessMode csi.VolumeCapability_AccessMode_Mode
	IsBlock    bool
	FsType     string
	MountFlags []string
	RoForced   bool
}

// FromCSI converts a CSI VolumeCapability into a Capability.
func FromCSI(vc *csi.VolumeCapability) Capability {
	c := Capability{AccessMode: vc.GetAccessMode().GetMode()}

	if block := vc.GetBlock(); block != nil {
		c.IsBlock = true

		return c
	}

	if mnt := vc.GetMount(); mnt != nil {
		c.FsType = mnt.GetFsType()
		c.MountFlags = append([]string(nil), mnt.GetMountFlags()...)
	}

	return c
}

// UsedAsRO reports whether this capability is only ever exercised
// read-only, either because ro_forced was set externally (e.g. a
// read-only PersistentVolume) or because the access mode itself is
// one of the *_READER_ONLY modes.
func (c Capability) UsedAsRO() bool {
	return c.RoForced || roSet[c.AccessMode]
}

// MultiMode reports whether the access mode allows more than one node
// to use the volume concurrently.
func (c Capability) MultiMode() bool {
	return !singleSet[c.AccessMode]
}

// Encode packs a Capability into the flat pipe-delimited string stored
// on a persistence.Connection record (the backend-agnostic store treats
// Capability as an opaque string).
func (c Capability) Encode() string {
	kind := "mount"
	if c.IsBlock {
		kind = "block"
	}

	return strings.Join([]string{kind, c.AccessMode.String(), c.FsType, strings.Join(c.MountFlags, ",")}, "|")
}

// Decode unpacks a string previously produced by Encode.
func Decode(s string) Capability {
	parts := strings.SplitN(s, "|", 4)
	for len(parts) < 4 {
		parts = append(parts, "")
	}

	c := Capability{
		IsBlock:    parts[0] == "block",
		FsType:     parts[2],
		AccessMode: csi.VolumeCapability_AccessMode_Mode(csi.VolumeCapability_AccessMode_Mode_value[parts[1]]),
	}
	if parts[3] != "" {
		c.MountFlags = strings.Split(parts[3], ",")
	}

	return c
}

// Equal reports whether two capabilities are identical in every field.
func (c Capability) Equal(o Capability) bool {
	if c.AccessMode != o.AccessMode || c.IsBlock != o.IsBlock || c.FsType != o.FsType || c.RoForced != o.RoForced {
		return false
	}

	return sameFlags(c.MountFlags, o.MountFlags)
}

func sameFlags(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	sa := append([]string(nil), a...)
	sb := append([]string(nil), b...)
	sort.Strings(sa)
	sort.Strings(sb)
	for i := range sa {
		if sa[i] != sb[i] {
			return false
		}
	}

	return true
}

// Supports reports whether a capability request (b) can be served by a
// connection already established under this capability (a):
// a == b, or same block/mount kind, a is not more restrictive than b
// with respect to read-only/multi-node, and (for mount volumes) the
// fs-type and mount flags match.
func (a Capability) Supports(b Capability) bool {
	if a.Equal(b) {
		return true
	}

	if a.IsBlock != b.IsBlock {
		return false
	}

	// a must not be more restrictive than b: if b wants read-write, a
	// must not be read-only-only; if b wants multi-node, a must be
	// multi-node too.
	if b.MultiMode() && !a.MultiMode() {
		return false
	}
	if !b.UsedAsRO() && a.UsedAsRO() {
		return false
	}

	if !a.IsBlock {
		if a.FsType != b.FsType {
			return false
		}
		if !sameFlags(a.MountFlags, b.MountFlags) {
			return false
		}
	}

	return true
}

// IncompatibleConnections checks self against the set of existing
// connections (excluding the connection named by exclude, if any) and
// returns a FAILED_PRECONDITION error describing the first conflict
// found, or nil if self may coexist with all of them.
func (self Capability) IncompatibleConnections(existing []Capability, exclude int) error {
	for i, other := range existing {
		if i == exclude {
			continue
		}

		if !self.MultiMode() {
			return status.Error(codes.FailedPrecondition, "incompatible single")
		}

		if other.MultiMode() && other.AccessMode != self.AccessMode {
			return status.Error(codes.FailedPrecondition, "incompatible multi")
		}

		if self.AccessMode == csi.VolumeCapability_AccessMode_MULTI_NODE_SINGLE_WRITER &&
			!self.UsedAsRO() && !other.UsedAsRO() {
			return status.Error(codes.FailedPrecondition, "multiple RW")
		}
	}

	return nil
}

// ServiceCapabilities is the set of access modes and fs-types a backend
// driver declares support for.
type ServiceCapabilities struct {
	AccessModes []csi.VolumeCapability_AccessMode_Mode
	FsTypes     []string
}

// Unsupported rejects any capability in caps whose access mode is not
// in the supported set, or (for mount volumes) whose fs-type is not in
// the host-enumerated set of supported filesystems. It returns the
// first unsupported capability's error, or nil if all are supported.
func (sc ServiceCapabilities) Unsupported(caps []*csi.VolumeCapability) error {
	for _, vc := range caps {
		c := FromCSI(vc)

		if !sc.hasAccessMode(c.AccessMode) {
			return status.Errorf(codes.InvalidArgument, "unsupported access mode: %s", c.AccessMode)
		}

		if !c.IsBlock && len(sc.FsTypes) > 0 && c.FsType != "" && !sc.hasFsType(c.FsType) {
			return status.Errorf(codes.InvalidArgument, "unsupported fs type: %s", c.FsType)
		}
	}

	return nil
}

func (sc ServiceCapabilities) hasAccessMode(m csi.VolumeCapability_AccessMode_Mode) bool {
	for _, am := range sc.AccessModes {
		if am == m {
			return true
		}
	}

	return false
}

func (sc ServiceCapabilities) hasFsType(fsType string) bool {
	for _, f := range sc.FsTypes {
		if strings.EqualFold(f, fsType) {
			return true
		}
	}

	return false
}
