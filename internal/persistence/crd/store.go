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

// Package crd implements the persistence.Store interface over Kubernetes
// Custom Resources, one CR per record, JSON-encoded in a spec field with
// AND-filterable lookup keys promoted to labels. It generalizes
// internal/util/k8scmcache.go's ConfigMap-backed metadata cache from a
// single label-selector/regex match to a typed CRD per entity kind with
// chunked labels for long values.
package crd

import (
	"context"
	"encoding/json"
	"fmt"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/labels"
	"sigs.k8s.io/controller-runtime/pkg/client"

	v1alpha1 "github.com/embercsi/ember-csi-go/api/v1alpha1"
	"github.com/embercsi/ember-csi-go/internal/persistence"
)

const (
	labelID      = "ember-csi.io/id"
	labelName    = "ember-csi.io/name"
	labelBackend = "ember-csi.io/backend"
	labelVolume  = "ember-csi.io/volume-id"
)

// Store is the CRD-backed persistence.Store implementation.
type Store struct {
	client    client.Client
	namespace string
}

// New constructs a CRD Store. The Custom Resource Definitions for
// EmberVolume/EmberSnapshot/EmberConnection/EmberKeyValue are assumed to
// already exist in the cluster, bootstrapped by deployment manifests
// out of scope for this package.
func New(c client.Client, namespace string) *Store {
	return &Store{client: c, namespace: namespace}
}

func (s *Store) Close() error { return nil }

// --- Volume ---

func (s *Store) GetVolumes(ctx context.Context, filter persistence.VolumeFilter) ([]persistence.Volume, error) {
	if filter.ID != "" {
		var cr v1alpha1.EmberVolume
		ok, err := s.get(ctx, filter.ID, &cr)
		if err != nil || !ok {
			return nil, err
		}
		v, err := decodeVolume(&cr)
		if err != nil {
			return nil, err
		}

		return []persistence.Volume{v}, nil
	}

	sel := labels.Set{}
	if filter.Name != "" {
		for k, v := range chunkLabel(labelName, filter.Name) {
			sel[k] = v
		}
	}
	if filter.Backend != "" {
		sel[labelBackend] = safeLabelValue(filter.Backend)
	}

	var list v1alpha1.EmberVolumeList
	if err := s.client.List(ctx, &list, client.InNamespace(s.namespace), client.MatchingLabelsSelector{Selector: sel.AsSelector()}); err != nil {
		return nil, fmt.Errorf("crd: list volumes: %w", err)
	}

	out := make([]persistence.Volume, 0, len(list.Items))
	for i := range list.Items {
		v, err := decodeVolume(&list.Items[i])
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}

	return out, nil
}

func (s *Store) SetVolume(ctx context.Context, v persistence.Volume) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("crd: marshal volume %s: %w", v.ID, err)
	}

	cr := &v1alpha1.EmberVolume{
		ObjectMeta: metav1.ObjectMeta{
			Name:      v.ID,
			Namespace: s.namespace,
			Labels:    mergeLabels(chunkLabel(labelName, v.Name), map[string]string{labelID: v.ID, labelBackend: safeLabelValue(v.BackendID)}),
		},
		Spec: v1alpha1.RecordSpec{JSON: string(data)},
	}

	return upsert(s, ctx, cr, func(existing *v1alpha1.EmberVolume) { existing.Spec = cr.Spec; existing.Labels = cr.Labels })
}

func (s *Store) DeleteVolume(ctx context.Context, id string) error {
	return s.delete(ctx, id, &v1alpha1.EmberVolume{})
}

func decodeVolume(cr *v1alpha1.EmberVolume) (persistence.Volume, error) {
	var v persistence.Volume
	if err := json.Unmarshal([]byte(cr.Spec.JSON), &v); err != nil {
		return v, fmt.Errorf("crd: unmarshal volume %s: %w", cr.Name, err)
	}

	return v, nil
}

// --- Snapshot ---

func (s *Store) GetSnapshots(ctx context.Context, filter persistence.SnapshotFilter) ([]persistence.Snapshot, error) {
	if filter.ID != "" {
		var cr v1alpha1.EmberSnapshot
		ok, err := s.get(ctx, filter.ID, &cr)
		if err != nil || !ok {
			return nil, err
		}
		sn, err := decodeSnapshot(&cr)
		if err != nil {
			return nil, err
		}

		return []persistence.Snapshot{sn}, nil
	}

	sel := labels.Set{}
	if filter.Name != "" {
		for k, v := range chunkLabel(labelName, filter.Name) {
			sel[k] = v
		}
	}
	if filter.VolumeID != "" {
		sel[labelVolume] = safeLabelValue(filter.VolumeID)
	}

	var list v1alpha1.EmberSnapshotList
	if err := s.client.List(ctx, &list, client.InNamespace(s.namespace), client.MatchingLabelsSelector{Selector: sel.AsSelector()}); err != nil {
		return nil, fmt.Errorf("crd: list snapshots: %w", err)
	}

	out := make([]persistence.Snapshot, 0, len(list.Items))
	for i := range list.Items {
		sn, err := decodeSnapshot(&list.Items[i])
		if err != nil {
			return nil, err
		}
		out = append(out, sn)
	}

	return out, nil
}

func (s *Store) SetSnapshot(ctx context.Context, sn persistence.Snapshot) error {
	data, err := json.Marshal(sn)
	if err != nil {
		return fmt.Errorf("crd: marshal snapshot %s: %w", sn.ID, err)
	}

	cr := &v1alpha1.EmberSnapshot{
		ObjectMeta: metav1.ObjectMeta{
			Name:      sn.ID,
			Namespace: s.namespace,
			Labels: mergeLabels(chunkLabel(labelName, sn.Name), map[string]string{
				labelID: sn.ID, labelVolume: safeLabelValue(sn.VolumeID),
			}),
		},
		Spec: v1alpha1.RecordSpec{JSON: string(data)},
	}

	return upsert(s, ctx, cr, func(existing *v1alpha1.EmberSnapshot) { existing.Spec = cr.Spec; existing.Labels = cr.Labels })
}

func (s *Store) DeleteSnapshot(ctx context.Context, id string) error {
	return s.delete(ctx, id, &v1alpha1.EmberSnapshot{})
}

func decodeSnapshot(cr *v1alpha1.EmberSnapshot) (persistence.Snapshot, error) {
	var sn persistence.Snapshot
	if err := json.Unmarshal([]byte(cr.Spec.JSON), &sn); err != nil {
		return sn, fmt.Errorf("crd: unmarshal snapshot %s: %w", cr.Name, err)
	}

	return sn, nil
}

// --- Connection ---

func (s *Store) GetConnections(ctx context.Context, filter persistence.ConnectionFilter) ([]persistence.Connection, error) {
	if filter.ID != "" {
		var cr v1alpha1.EmberConnection
		ok, err := s.get(ctx, filter.ID, &cr)
		if err != nil || !ok {
			return nil, err
		}
		c, err := decodeConnection(&cr)
		if err != nil {
			return nil, err
		}

		return []persistence.Connection{c}, nil
	}

	sel := labels.Set{}
	if filter.VolumeID != "" {
		sel[labelVolume] = safeLabelValue(filter.VolumeID)
	}

	var list v1alpha1.EmberConnectionList
	if err := s.client.List(ctx, &list, client.InNamespace(s.namespace), client.MatchingLabelsSelector{Selector: sel.AsSelector()}); err != nil {
		return nil, fmt.Errorf("crd: list connections: %w", err)
	}

	out := make([]persistence.Connection, 0, len(list.Items))
	for i := range list.Items {
		c, err := decodeConnection(&list.Items[i])
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}

	return out, nil
}

func (s *Store) SetConnection(ctx context.Context, c persistence.Connection) error {
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("crd: marshal connection %s: %w", c.ID, err)
	}

	cr := &v1alpha1.EmberConnection{
		ObjectMeta: metav1.ObjectMeta{
			Name:      c.ID,
			Namespace: s.namespace,
			Labels:    map[string]string{labelID: c.ID, labelVolume: safeLabelValue(c.VolumeID)},
		},
		Spec: v1alpha1.RecordSpec{JSON: string(data)},
	}

	return upsert(s, ctx, cr, func(existing *v1alpha1.EmberConnection) { existing.Spec = cr.Spec; existing.Labels = cr.Labels })
}

func (s *Store) DeleteConnection(ctx context.Context, id string) error {
	return s.delete(ctx, id, &v1alpha1.EmberConnection{})
}

func decodeConnection(cr *v1alpha1.EmberConnection) (persistence.Connection, error) {
	var c persistence.Connection
	if err := json.Unmarshal([]byte(cr.Spec.JSON), &c); err != nil {
		return c, fmt.Errorf("crd: unmarshal connection %s: %w", cr.Name, err)
	}

	return c, nil
}

// --- KeyValue ---

func (s *Store) GetKeyValue(ctx context.Context, key string) (persistence.KeyValue, bool, error) {
	var cr v1alpha1.EmberKeyValue
	ok, err := s.get(ctx, key, &cr)
	if err != nil || !ok {
		return persistence.KeyValue{}, ok, err
	}

	return persistence.KeyValue{Key: key, Value: cr.Value}, true, nil
}

func (s *Store) SetKeyValue(ctx context.Context, kv persistence.KeyValue) error {
	cr := &v1alpha1.EmberKeyValue{
		ObjectMeta: metav1.ObjectMeta{Name: kv.Key, Namespace: s.namespace, Labels: map[string]string{labelID: kv.Key}},
		Value:      kv.Value,
	}

	return upsert(s, ctx, cr, func(existing *v1alpha1.EmberKeyValue) { existing.Value = cr.Value })
}

func (s *Store) DeleteKeyValue(ctx context.Context, key string) error {
	return s.delete(ctx, key, &v1alpha1.EmberKeyValue{})
}

// --- generic helpers ---

func (s *Store) get(ctx context.Context, name string, obj client.Object) (bool, error) {
	err := s.client.Get(ctx, client.ObjectKey{Namespace: s.namespace, Name: name}, obj)
	if apierrors.IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("crd: get %s/%s: %w", s.namespace, name, err)
	}

	return true, nil
}

func (s *Store) delete(ctx context.Context, name string, obj client.Object) error {
	obj.SetName(name)
	obj.SetNamespace(s.namespace)

	err := s.client.Delete(ctx, obj)
	if err != nil && !apierrors.IsNotFound(err) {
		return fmt.Errorf("crd: delete %s/%s: %w", s.namespace, name, err)
	}

	return nil
}

// upsert creates obj, and on a 409 conflict re-fetches the existing
// resource, applies merge via the supplied func and retries the update
// with the fetched resource-version: create collisions are idempotent
// and fall back to a replace with an explicit resource-version.
func upsert[T client.Object](s *Store, ctx context.Context, obj T, merge func(existing T)) error {
	err := s.client.Create(ctx, obj)
	if err == nil {
		return nil
	}
	if !apierrors.IsAlreadyExists(err) {
		return fmt.Errorf("crd: create %s/%s: %w", obj.GetNamespace(), obj.GetName(), err)
	}

	existing := obj.DeepCopyObject().(T)
	if err := s.client.Get(ctx, client.ObjectKey{Namespace: obj.GetNamespace(), Name: obj.GetName()}, existing); err != nil {
		return fmt.Errorf("crd: refetch %s/%s before replace: %w", obj.GetNamespace(), obj.GetName(), err)
	}

	merge(existing)
	if err := s.client.Update(ctx, existing); err != nil {
		return fmt.Errorf("crd: replace %s/%s: %w", obj.GetNamespace(), obj.GetName(), err)
	}

	return nil
}

func mergeLabels(maps ...map[string]string) map[string]string {
	out := make(map[string]string)
	for _, m := range maps {
		for k, v := range m {
			out[k] = v
		}
	}

	return out
}
