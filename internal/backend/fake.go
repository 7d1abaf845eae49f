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

package backend

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Fake is an in-memory Driver used by controller/node tests and by
// deployments that only need to exercise CSI semantics without a real
// storage system behind them.
type Fake struct {
	mu        sync.Mutex
	volumes   map[string]int64
	snapshots map[string]string
	failNext  error
	totalGB   int64
}

// NewFake returns a Fake with the given total backend capacity.
func NewFake(totalGB int64) *Fake {
	return &Fake{
		volumes:   make(map[string]int64),
		snapshots: make(map[string]string),
		totalGB:   totalGB,
	}
}

// FailNext makes the next call to any Driver method return err, once.
func (f *Fake) FailNext(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failNext = err
}

func (f *Fake) takeFailure() error {
	err := f.failNext
	f.failNext = nil

	return err
}

func (f *Fake) CreateVolume(_ context.Context, _ string, params CreateParams) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.takeFailure(); err != nil {
		return "", err
	}

	id := uuid.NewString()
	f.volumes[id] = params.SizeGB

	return id, nil
}

func (f *Fake) DeleteVolume(_ context.Context, backendID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.takeFailure(); err != nil {
		return err
	}
	delete(f.volumes, backendID)

	return nil
}

func (f *Fake) CloneVolume(_ context.Context, _ string, sourceBackendID string, sizeGB int64) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.takeFailure(); err != nil {
		return "", err
	}
	if _, ok := f.volumes[sourceBackendID]; !ok {
		return "", fmt.Errorf("fake: clone source %s not found", sourceBackendID)
	}

	id := uuid.NewString()
	f.volumes[id] = sizeGB

	return id, nil
}

func (f *Fake) ExtendVolume(_ context.Context, backendID string, sizeGB int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.takeFailure(); err != nil {
		return err
	}
	if _, ok := f.volumes[backendID]; !ok {
		return fmt.Errorf("fake: volume %s not found", backendID)
	}
	f.volumes[backendID] = sizeGB

	return nil
}

func (f *Fake) CreateSnapshot(_ context.Context, _ string, volumeBackendID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.takeFailure(); err != nil {
		return "", err
	}
	if _, ok := f.volumes[volumeBackendID]; !ok {
		return "", fmt.Errorf("fake: volume %s not found", volumeBackendID)
	}

	id := uuid.NewString()
	f.snapshots[id] = volumeBackendID

	return id, nil
}

func (f *Fake) DeleteSnapshot(_ context.Context, backendID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.takeFailure(); err != nil {
		return err
	}
	delete(f.snapshots, backendID)

	return nil
}

func (f *Fake) CreateVolumeFromSnapshot(_ context.Context, _ string, snapshotBackendID string, sizeGB int64) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.takeFailure(); err != nil {
		return "", err
	}
	if _, ok := f.snapshots[snapshotBackendID]; !ok {
		return "", fmt.Errorf("fake: snapshot %s not found", snapshotBackendID)
	}

	id := uuid.NewString()
	f.volumes[id] = sizeGB

	return id, nil
}

func (f *Fake) Connect(_ context.Context, backendID, hostID string) (ConnectorInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.takeFailure(); err != nil {
		return nil, err
	}

	return ConnectorInfo{"backend_id": backendID, "host_id": hostID, "device": "/dev/fake/" + backendID}, nil
}

func (f *Fake) Disconnect(_ context.Context, _, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.takeFailure()
}

func (f *Fake) Stats(_ context.Context, _ bool) (Stats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.takeFailure(); err != nil {
		return Stats{}, err
	}

	var used int64
	for _, sz := range f.volumes {
		used += sz
	}

	free := f.totalGB - used
	if free < 0 {
		free = 0
	}

	return Stats{FreeGB: free, TotalGB: f.totalGB}, nil
}

func (f *Fake) CheckForSetupError(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.takeFailure()
}

var _ Driver = (*Fake)(nil)
