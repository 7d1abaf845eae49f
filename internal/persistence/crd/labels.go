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

package crd

import (
	"fmt"
	"strings"
)

// maxLabelValueLen mirrors the Kubernetes label-value length limit
// (63 characters). Values longer than this are chunked into numbered
// fields named "<key>-0", "<key>-1", ...
const maxLabelValueLen = 63

// chunkLabel splits value into maxLabelValueLen-sized pieces and returns
// them as a set of label key/value pairs rooted at key. Short values
// produce a single "key" entry with no suffix, matching the common case
// so unchunked lookups stay simple.
func chunkLabel(key, value string) map[string]string {
	value = safeLabelValue(value)

	if len(value) <= maxLabelValueLen {
		return map[string]string{key: value}
	}

	out := make(map[string]string)
	for i := 0; i*maxLabelValueLen < len(value); i++ {
		start := i * maxLabelValueLen
		end := start + maxLabelValueLen
		if end > len(value) {
			end = len(value)
		}
		out[fmt.Sprintf("%s-%d", key, i)] = value[start:end]
	}

	return out
}

// unchunkLabel is the inverse of chunkLabel: given a label set and a
// root key, reassembles the original value from "key" or "key-0",
// "key-1", ... in order.
func unchunkLabel(labels map[string]string, key string) (string, bool) {
	if v, ok := labels[key]; ok {
		return v, true
	}

	var sb strings.Builder
	found := false
	for i := 0; ; i++ {
		v, ok := labels[fmt.Sprintf("%s-%d", key, i)]
		if !ok {
			break
		}
		found = true
		sb.WriteString(v)
	}

	if !found {
		return "", false
	}

	return sb.String(), true
}

// safeLabelValue sanitizes an arbitrary identifier into something safe to
// use as (part of) a Kubernetes label value: only alphanumerics, '-',
// '_' and '.' pass through unchanged.
func safeLabelValue(v string) string {
	var sb strings.Builder
	for _, r := range v {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			sb.WriteRune(r)
		default:
			sb.WriteRune('_')
		}
	}

	return sb.String()
}
