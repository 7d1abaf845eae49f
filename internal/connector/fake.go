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

package connector

import (
	"context"
	"sync"
)

// Fake is an in-memory Connector for tests: Attach always succeeds
// immediately using the "device" key from info (as backend.Fake.Connect
// populates it), and Detach/Extend just record calls.
type Fake struct {
	mu       sync.Mutex
	Attached map[string]bool
}

// NewFake returns an empty Fake.
func NewFake() *Fake {
	return &Fake{Attached: make(map[string]bool)}
}

func (f *Fake) Attach(_ context.Context, info Info, _ int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	dev := info["device"]
	if dev == "" {
		dev = "/dev/fake0"
	}
	f.Attached[dev] = true

	return dev, nil
}

func (f *Fake) Detach(_ context.Context, _ Info, devicePath string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.Attached, devicePath)

	return nil
}

func (f *Fake) Extend(_ context.Context, _ string) error {
	return nil
}

var _ Connector = (*Fake)(nil)
