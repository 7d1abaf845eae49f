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

// Package v1alpha1 defines the Custom Resource types the CRD persistence
// backend stores its records as: one CR per Volume/Snapshot/Connection/
// KeyValue, carrying the entity's JSON encoding in the spec's json field
// (no annotation is written; EmberKeyValue carries a bare value instead)
// and indexed lookup fields as labels.
package v1alpha1

import (
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
)

// GroupName is the API group all ember-csi Custom Resources live under.
const GroupName = "ember-csi.io"

// GroupVersion is the API group/version all ember-csi Custom Resources
// are registered under.
var GroupVersion = schema.GroupVersion{Group: GroupName, Version: "v1alpha1"}

// SchemeBuilder collects this package's types for registration with a
// runtime.Scheme.
var SchemeBuilder = runtime.NewSchemeBuilder(addKnownTypes)

// AddToScheme registers this package's types with s.
var AddToScheme = SchemeBuilder.AddToScheme

func addKnownTypes(s *runtime.Scheme) error {
	s.AddKnownTypes(GroupVersion,
		&EmberVolume{}, &EmberVolumeList{},
		&EmberSnapshot{}, &EmberSnapshotList{},
		&EmberConnection{}, &EmberConnectionList{},
		&EmberKeyValue{}, &EmberKeyValueList{},
	)
	metav1.AddToGroupVersion(s, GroupVersion)

	return nil
}

// RecordSpec holds the opaque entity encoding shared by EmberVolume,
// EmberSnapshot and EmberConnection: the full record as JSON, in a typed
// field rather than an annotation. Label values longer than 63
// characters are not stored here; the crd store chunks them into
// numbered labels.
type RecordSpec struct {
	JSON string `json:"json"`
}

// EmberVolume is the Custom Resource backing a persistence.Volume record.
type EmberVolume struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`

	Spec RecordSpec `json:"spec"`
}

func (in *EmberVolume) DeepCopyObject() runtime.Object {
	out := &EmberVolume{TypeMeta: in.TypeMeta, ObjectMeta: *in.ObjectMeta.DeepCopy(), Spec: in.Spec}

	return out
}

// EmberVolumeList is a list of EmberVolume.
type EmberVolumeList struct {
	metav1.TypeMeta `json:",inline"`
	metav1.ListMeta `json:"metadata,omitempty"`
	Items           []EmberVolume `json:"items"`
}

func (in *EmberVolumeList) DeepCopyObject() runtime.Object {
	out := &EmberVolumeList{TypeMeta: in.TypeMeta, ListMeta: *in.ListMeta.DeepCopy()}
	out.Items = make([]EmberVolume, len(in.Items))
	for i := range in.Items {
		out.Items[i] = *in.Items[i].DeepCopyObject().(*EmberVolume)
	}

	return out
}

// EmberSnapshot is the Custom Resource backing a persistence.Snapshot record.
type EmberSnapshot struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`

	Spec RecordSpec `json:"spec"`
}

func (in *EmberSnapshot) DeepCopyObject() runtime.Object {
	out := &EmberSnapshot{TypeMeta: in.TypeMeta, ObjectMeta: *in.ObjectMeta.DeepCopy(), Spec: in.Spec}

	return out
}

// EmberSnapshotList is a list of EmberSnapshot.
type EmberSnapshotList struct {
	metav1.TypeMeta `json:",inline"`
	metav1.ListMeta `json:"metadata,omitempty"`
	Items           []EmberSnapshot `json:"items"`
}

func (in *EmberSnapshotList) DeepCopyObject() runtime.Object {
	out := &EmberSnapshotList{TypeMeta: in.TypeMeta, ListMeta: *in.ListMeta.DeepCopy()}
	out.Items = make([]EmberSnapshot, len(in.Items))
	for i := range in.Items {
		out.Items[i] = *in.Items[i].DeepCopyObject().(*EmberSnapshot)
	}

	return out
}

// EmberConnection is the Custom Resource backing a persistence.Connection
// record.
type EmberConnection struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`

	Spec RecordSpec `json:"spec"`
}

func (in *EmberConnection) DeepCopyObject() runtime.Object {
	out := &EmberConnection{TypeMeta: in.TypeMeta, ObjectMeta: *in.ObjectMeta.DeepCopy(), Spec: in.Spec}

	return out
}

// EmberConnectionList is a list of EmberConnection.
type EmberConnectionList struct {
	metav1.TypeMeta `json:",inline"`
	metav1.ListMeta `json:"metadata,omitempty"`
	Items           []EmberConnection `json:"items"`
}

func (in *EmberConnectionList) DeepCopyObject() runtime.Object {
	out := &EmberConnectionList{TypeMeta: in.TypeMeta, ListMeta: *in.ListMeta.DeepCopy()}
	out.Items = make([]EmberConnection, len(in.Items))
	for i := range in.Items {
		out.Items[i] = *in.Items[i].DeepCopyObject().(*EmberConnection)
	}

	return out
}

// EmberKeyValue is the Custom Resource backing a persistence.KeyValue
// record. Unlike the other three, its payload is a bare value rather
// than a JSON-encoded struct.
type EmberKeyValue struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`

	Value string `json:"value"`
}

func (in *EmberKeyValue) DeepCopyObject() runtime.Object {
	out := &EmberKeyValue{TypeMeta: in.TypeMeta, ObjectMeta: *in.ObjectMeta.DeepCopy(), Value: in.Value}

	return out
}

// EmberKeyValueList is a list of EmberKeyValue.
type EmberKeyValueList struct {
	metav1.TypeMeta `json:",inline"`
	metav1.ListMeta `json:"metadata,omitempty"`
	Items           []EmberKeyValue `json:"items"`
}

func (in *EmberKeyValueList) DeepCopyObject() runtime.Object {
	out := &EmberKeyValueList{TypeMeta: in.TypeMeta, ListMeta: *in.ListMeta.DeepCopy()}
	out.Items = make([]EmberKeyValue, len(in.Items))
	for i := range in.Items {
		out.Items[i] = *in.Items[i].DeepCopyObject().(*EmberKeyValue)
	}

	return out
}
