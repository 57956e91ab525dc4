// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package catalog

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustCatalog(t *testing.T, raw string) *Catalog {
	t.Helper()
	var doc Document
	require.NoError(t, json.Unmarshal([]byte(raw), &doc))
	return &doc.Catalog
}

func TestFlatten_ControlWithoutTargetObjectsGoesToISMS(t *testing.T) {
	cat := mustCatalog(t, `{"catalog": {"groups": [{
		"id": "G1",
		"controls": [{
			"id": "X.1",
			"class": "kontrolle",
			"title": "Example",
			"props": [{"name": "alt-identifier", "value": "U1"}],
			"parts": [{"name": "statement", "prose": "P"}]
		}]
	}]}}`)

	flat := Flatten(cat, nil)
	require.Contains(t, flat, "ISMS")
	got, ok := flat["ISMS"]["U1"]
	require.True(t, ok)
	assert.Equal(t, "X.1", got.ID)
	assert.Equal(t, "U1", got.AltID)
	assert.Equal(t, "kontrolle", got.Class)
	assert.Equal(t, "Example", got.Title)
	assert.Equal(t, "P", got.Prose)
}

func TestFlatten_TargetObjectsSplitOnCommas(t *testing.T) {
	cat := mustCatalog(t, `{"catalog": {"groups": [{
		"controls": [{
			"id": "X.2",
			"props": [{"name": "alt-identifier", "value": "U2"}],
			"parts": [{
				"name": "statement",
				"prose": "P2",
				"props": [{"name": "target_objects", "value": "Server, Netz"}]
			}]
		}]
	}]}}`)

	flat := Flatten(cat, nil)
	assert.Equal(t, []string{"Netz", "Server"}, flat.Tags())
	assert.Contains(t, flat["Server"], "U2")
	assert.Contains(t, flat["Netz"], "U2")
}

func TestFlatten_MissingAltIdentifierSkippedButChildrenVisited(t *testing.T) {
	cat := mustCatalog(t, `{"catalog": {"groups": [{
		"controls": [{
			"id": "parent",
			"controls": [{
				"id": "child",
				"props": [{"name": "alt-identifier", "value": "C1"}],
				"parts": [{"name": "statement", "prose": "child prose"}]
			}]
		}]
	}]}}`)

	flat := Flatten(cat, nil)
	require.Contains(t, flat, "ISMS")
	assert.Len(t, flat["ISMS"], 1)
	assert.Contains(t, flat["ISMS"], "C1")
}

func TestFlatten_NestedGroups(t *testing.T) {
	cat := mustCatalog(t, `{"catalog": {"groups": [{
		"id": "outer",
		"groups": [{
			"id": "inner",
			"controls": [{
				"id": "X.3",
				"props": [{"name": "alt-identifier", "value": "U3"}],
				"parts": [{
					"name": "statement",
					"prose": "deep",
					"props": [{"name": "target_objects", "value": "Raum"}]
				}]
			}]
		}]
	}]}}`)

	flat := Flatten(cat, nil)
	assert.Contains(t, flat["Raum"], "U3")
}

func TestFlatten_DuplicateAltIDLastWriteWins(t *testing.T) {
	cat := mustCatalog(t, `{"catalog": {"groups": [{
		"controls": [
			{"id": "a", "title": "first",
			 "props": [{"name": "alt-identifier", "value": "DUP"}]},
			{"id": "b", "title": "second",
			 "props": [{"name": "alt-identifier", "value": "DUP"}]}
		]
	}]}}`)

	flat := Flatten(cat, nil)
	require.Contains(t, flat["ISMS"], "DUP")
	assert.Equal(t, "second", flat["ISMS"]["DUP"].Title)
}

func TestFlatten_Deterministic(t *testing.T) {
	cat := mustCatalog(t, `{"catalog": {"groups": [{
		"id": "G1",
		"controls": [
			{"id": "X.1", "title": "one",
			 "props": [{"name": "alt-identifier", "value": "U1"}],
			 "parts": [{
				"name": "statement", "prose": "P1",
				"props": [{"name": "target_objects", "value": "Server, Netz"}]
			 }]},
			{"id": "X.2", "title": "two",
			 "props": [{"name": "alt-identifier", "value": "U2"}]}
		],
		"groups": [{
			"id": "inner",
			"controls": [{
				"id": "X.3", "title": "three",
				"props": [{"name": "alt-identifier", "value": "U3"}]
			}]
		}]
	}]}}`)

	first := Flatten(cat, nil)
	second := Flatten(cat, nil)
	assert.Equal(t, first, second)
	assert.Equal(t, first.ControlIDsByTag(), second.ControlIDsByTag())
}

func TestControlIDsByTag_SortedCatalogIDs(t *testing.T) {
	fc := FlatCatalog{
		"Server": {
			"u1": FlatControl{ID: "GPP.2", AltID: "u1"},
			"u2": FlatControl{ID: "GPP.1", AltID: "u2"},
			"u3": FlatControl{ID: "GPP.3", AltID: "u3"},
		},
	}
	assert.Equal(t, []string{"GPP.1", "GPP.2", "GPP.3"}, fc.ControlIDsByTag()["Server"])
}

func TestTextsByControlID(t *testing.T) {
	fc := FlatCatalog{
		"ISMS": {
			"u1": FlatControl{ID: "GPP.1", Title: "Titel", Prose: "Text"},
			"u2": FlatControl{ID: "GPP.2", Title: "Nur Titel"},
		},
	}
	texts := fc.TextsByControlID()
	assert.Equal(t, "Titel\n\nText", texts["GPP.1"])
	assert.Equal(t, "Nur Titel", texts["GPP.2"])
}

func TestLookup(t *testing.T) {
	fc := FlatCatalog{
		"ISMS": {"U1": FlatControl{ID: "X.1", AltID: "U1", Title: "t"}},
	}
	got, ok := fc.Lookup("U1")
	require.True(t, ok)
	assert.Equal(t, "t", got.Title)

	_, ok = fc.Lookup("missing")
	assert.False(t, ok)
}

func TestTitle_UnmarshalAcceptsStringOrList(t *testing.T) {
	var c Control
	require.NoError(t, json.Unmarshal([]byte(`{"title": ["A", "B"]}`), &c))
	assert.Equal(t, Title("A"), c.Title)

	require.NoError(t, json.Unmarshal([]byte(`{"title": "plain"}`), &c))
	assert.Equal(t, Title("plain"), c.Title)

	require.NoError(t, json.Unmarshal([]byte(`{"title": []}`), &c))
	assert.Equal(t, Title(""), c.Title)
}
