// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package artifacts

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/oscal-crosswalk/pkg/logging"
)

func newTestStore() *Store {
	return NewStore(logging.Default().Logger)
}

func TestStore_SaveLoadJSON(t *testing.T) {
	store := newTestStore()
	path := filepath.Join(t.TempDir(), "nested", "out.json")

	in := map[string]any{"zielobjekt_controls_map": map[string]any{
		"u1": []any{"GPP.1.1", "GPP.2.2"},
	}}
	require.NoError(t, store.SaveJSON(path, in))
	assert.True(t, store.Exists(path))

	var out map[string]map[string][]string
	require.NoError(t, store.LoadJSON(path, &out))
	assert.Equal(t, []string{"GPP.1.1", "GPP.2.2"}, out["zielobjekt_controls_map"]["u1"])
}

func TestStore_SaveJSONDeterministic(t *testing.T) {
	store := newTestStore()
	dir := t.TempDir()
	a := filepath.Join(dir, "a.json")
	b := filepath.Join(dir, "b.json")

	data := map[string]string{"z": "1", "a": "2", "m": "3"}
	require.NoError(t, store.SaveJSON(a, data))
	require.NoError(t, store.SaveJSON(b, data))

	left, err := os.ReadFile(a)
	require.NoError(t, err)
	right, err := os.ReadFile(b)
	require.NoError(t, err)
	assert.Equal(t, left, right)
}

func TestStore_ExistsFalseForDirAndMissing(t *testing.T) {
	store := newTestStore()
	dir := t.TempDir()
	assert.False(t, store.Exists(dir))
	assert.False(t, store.Exists(filepath.Join(dir, "nope.json")))
}

func TestStore_LoadJSONErrors(t *testing.T) {
	store := newTestStore()
	var v map[string]any
	err := store.LoadJSON(filepath.Join(t.TempDir(), "missing.json"), &v)
	require.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("{not json"), 0640))
	require.Error(t, store.LoadJSON(bad, &v))
}

func TestStore_Text(t *testing.T) {
	store := newTestStore()
	path := filepath.Join(t.TempDir(), "table.md")
	require.NoError(t, store.SaveText(path, "| ID |\n|---|\n| A |"))

	got, err := store.LoadText(path)
	require.NoError(t, err)
	assert.Contains(t, got, "| A |")
}

func TestStore_SaveJSONLeavesNoTempFiles(t *testing.T) {
	store := newTestStore()
	dir := t.TempDir()
	require.NoError(t, store.SaveJSON(filepath.Join(dir, "x.json"), map[string]int{"n": 1}))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "x.json", entries[0].Name())
}
