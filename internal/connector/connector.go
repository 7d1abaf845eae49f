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

// Package connector defines the host-side attach/detach surface the Node
// service drives once a backend.Driver has exposed a volume to the local
// host — itself a deliberately out-of-scope collaborator. Grounded on
// the attach/detach call shape of internal/rbd/rbd_attach.go,
// generalized away from rbd-map specifics.
package connector

import "context"

// Info is the backend.ConnectorInfo handed back by backend.Driver.Connect,
// forwarded verbatim into Attach.
type Info map[string]string

// Connector finds (or creates) the local block device for a volume a
// backend has exposed to this host, and tears it down again.
type Connector interface {
	// Attach waits for and returns the local device path (e.g.
	// /dev/sda, a multipath dm-X node) corresponding to info. Retries
	// internally up to maxRetries to give multipath time to settle.
	Attach(ctx context.Context, info Info, maxRetries int) (devicePath string, err error)

	// Detach removes the local device for a volume previously attached
	// with the same info.
	Detach(ctx context.Context, info Info, devicePath string) error

	// Extend rescans the transport so a size change made at the
	// backend becomes visible to the local block device.
	Extend(ctx context.Context, devicePath string) error
}
