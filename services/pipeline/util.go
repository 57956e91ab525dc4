// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package pipeline

import "sort"

// sortedKeys gives stages deterministic iteration order over artifact
// maps, so reruns produce identical files and logs.
func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// truncateForTest shortens a work list in test mode.
func truncateForTest(ids []string, testMode bool, limit int) []string {
	if testMode && len(ids) > limit {
		return ids[:limit]
	}
	return ids
}
