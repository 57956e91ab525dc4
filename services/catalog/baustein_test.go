// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bsiTestCatalog(t *testing.T) *Catalog {
	t.Helper()
	return mustCatalog(t, `{"catalog": {"groups": [
		{
			"id": "APP",
			"groups": [{
				"id": "APP.1",
				"class": "baustein",
				"title": ["Office-Produkte"],
				"parts": [{"name": "introduction", "prose": "Intro text"}],
				"controls": [
					{
						"id": "APP.1.A1",
						"title": "Sichere Konfiguration",
						"parts": [{
							"class": "maturity-level-defined",
							"parts": [{"name": "statement", "prose": "MUST be configured"}]
						}]
					},
					{
						"id": "APP.1.A2",
						"title": "Ohne Prose"
					}
				]
			}]
		},
		{
			"id": "ORP",
			"groups": [
				{
					"id": "ORP.1",
					"class": "baustein",
					"title": "Organisation",
					"controls": []
				},
				{
					"id": "ORP.x",
					"class": "kapitel"
				}
			]
		}
	]}}`)
}

func TestParseBausteine_FiltersByMainGroup(t *testing.T) {
	allowed, filtered := ParseBausteine(bsiTestCatalog(t), nil)

	require.Len(t, allowed, 1)
	assert.Equal(t, "APP.1", allowed[0].ID)
	assert.Equal(t, "Office-Produkte", allowed[0].Title)
	assert.Equal(t, "Intro text", allowed[0].Description)

	// ORP is not an allowed main group; the non-baustein group is
	// dropped entirely.
	require.Len(t, filtered, 1)
	assert.Equal(t, "ORP.1", filtered[0].ID)
}

func TestParseBausteine_MaturityStatementExtraction(t *testing.T) {
	allowed, _ := ParseBausteine(bsiTestCatalog(t), nil)
	require.Len(t, allowed, 1)
	require.Len(t, allowed[0].Controls, 2)

	assert.Equal(t, "APP.1.A1", allowed[0].Controls[0].ID)
	assert.Equal(t, "MUST be configured", allowed[0].Controls[0].Prose)
	assert.Empty(t, allowed[0].Controls[1].Prose)
}

func TestAnforderungenTexts_SkipsEmptyProse(t *testing.T) {
	allowed, _ := ParseBausteine(bsiTestCatalog(t), nil)
	texts := AnforderungenTexts(allowed)

	require.Len(t, texts, 1)
	assert.Equal(t, "Sichere Konfiguration\n\nMUST be configured", texts["APP.1.A1"])
}

func TestAnforderungIDPattern(t *testing.T) {
	valid := []string{"APP.1.A1", "SYS.2.2.3.A12", "NET.1", "INF.12.A3"}
	for _, id := range valid {
		assert.True(t, AnforderungIDPattern.MatchString(id), id)
	}
	invalid := []string{"", "app.1.A1", "APP", "APP.1.A1.extra", "BAD KEY", "APP.1.B1", "APPxA1"}
	for _, id := range invalid {
		assert.False(t, AnforderungIDPattern.MatchString(id), id)
	}
}

func TestMainGroup(t *testing.T) {
	assert.Equal(t, "APP", MainGroup("APP.1.A1"))
	assert.Equal(t, "ISMS", MainGroup("ISMS"))
}
