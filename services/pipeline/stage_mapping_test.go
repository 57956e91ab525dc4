// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/oscal-crosswalk/services/gateway"
)

// scriptedGenerator returns canned payloads and records every request.
type scriptedGenerator struct {
	mu       sync.Mutex
	payload  string
	requests []gateway.Request
}

func (s *scriptedGenerator) GenerateValidated(_ context.Context, req gateway.Request) (json.RawMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	return json.RawMessage(s.payload), nil
}

func TestValidateMappingKeys_DropsMalformedKeysIndividually(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	in := map[string]string{
		"BAD KEY":  "GPP.1",
		"APP.1.A1": "GPP.2",
	}

	out := ValidateMappingKeys(in, log)
	assert.Equal(t, map[string]string{"APP.1.A1": "GPP.2"}, out)

	// Idempotent: validating an already-clean map changes nothing.
	again := ValidateMappingKeys(out, log)
	assert.Equal(t, out, again)
}

func TestValidateMappingKeys_EmptyMap(t *testing.T) {
	assert.Empty(t, ValidateMappingKeys(nil, nil))
}

func TestMappingStage(t *testing.T) {
	env := testEnv(t)
	seedSources(t, env)
	require.NoError(t, runStrip(context.Background(), env))
	require.NoError(t, runFlatten(context.Background(), env))

	// APP.1 rows exist in the BSI fixture but the Baustein itself was
	// matched against Server, whose inherited control set is GPP.1.
	require.NoError(t, env.Store.SaveJSON(env.Cfg.BausteinZielobjektPath(), bausteinZielobjektDoc{
		BausteinZielobjektMap: map[string]string{
			"APP.1": "6ba7b810-9dad-11d1-80b4-00c04fd430c1",
		},
	}))

	stub := &scriptedGenerator{payload: `{
		"mapping": {"APP.1.A1": "GPP.1", "NOT AN ID": "GPP.1"},
		"unmapped_gpp": [],
		"unmapped_ed2023": []
	}`}
	env.NewGateway = func() (gateway.Generator, error) { return stub, nil }

	require.NoError(t, runMapping(context.Background(), env))

	records := make(map[string]MappingRecord)
	require.NoError(t, env.Store.LoadJSON(env.Cfg.ControlsAnforderungenPath(), &records))
	record, ok := records["6ba7b810-9dad-11d1-80b4-00c04fd430c1"]
	require.True(t, ok)
	assert.Equal(t, "Server", record.ZielobjektName)
	assert.Equal(t, "APP.1", record.BausteinID)
	// The malformed key was dropped by validation.
	assert.Equal(t, map[string]string{"APP.1.A1": "GPP.1"}, record.Mapping)

	// The prompt context contained exactly the pair's table rows and the
	// pro model was selected.
	require.Len(t, stub.requests, 1)
	req := stub.requests[0]
	assert.Contains(t, req.Prompt, "APP.1.A1")
	assert.Contains(t, req.Prompt, "GPP.1")
	assert.NotContains(t, req.Prompt, "GPP.2")
	assert.Equal(t, "test-model-pro", req.ModelOverride)
	assert.Equal(t, "AnforderungToKontrolle-APP.1", req.ContextLabel)
}

func TestMappingStage_SkipsPairWithoutControls(t *testing.T) {
	env := testEnv(t)
	seedSources(t, env)
	require.NoError(t, runStrip(context.Background(), env))
	require.NoError(t, runFlatten(context.Background(), env))

	// The matched Zielobjekt is unknown to the controls map, so the only
	// pair is skipped and the stage ends with zero records.
	require.NoError(t, env.Store.SaveJSON(env.Cfg.BausteinZielobjektPath(), bausteinZielobjektDoc{
		BausteinZielobjektMap: map[string]string{"APP.1": "unknown-uuid"},
	}))

	stub := &scriptedGenerator{payload: `{"mapping": {}, "unmapped_gpp": [], "unmapped_ed2023": []}`}
	env.NewGateway = func() (gateway.Generator, error) { return stub, nil }

	require.Error(t, runMapping(context.Background(), env))
	assert.Empty(t, stub.requests)
	assert.False(t, env.Store.Exists(env.Cfg.ControlsAnforderungenPath()))
}

// failingGenerator simulates a provider outage: every call fails the
// way the gateway reports exhausted retries.
type failingGenerator struct {
	mu    sync.Mutex
	calls int
}

func (f *failingGenerator) GenerateValidated(_ context.Context, _ gateway.Request) (json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return nil, errors.New("all 5 attempts failed")
}

func TestMappingStage_AbortsWhenNoRecordsGenerated(t *testing.T) {
	env := testEnv(t)
	seedSources(t, env)
	require.NoError(t, runStrip(context.Background(), env))
	require.NoError(t, runFlatten(context.Background(), env))

	require.NoError(t, env.Store.SaveJSON(env.Cfg.BausteinZielobjektPath(), bausteinZielobjektDoc{
		BausteinZielobjektMap: map[string]string{
			"APP.1": "6ba7b810-9dad-11d1-80b4-00c04fd430c1",
		},
	}))

	stub := &failingGenerator{}
	env.NewGateway = func() (gateway.Generator, error) { return stub, nil }

	err := runMapping(context.Background(), env)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no mapping records were generated")
	assert.Equal(t, 1, stub.calls)

	// No artifact was written, so a rerun retries instead of skipping.
	assert.False(t, env.Store.Exists(env.Cfg.ControlsAnforderungenPath()))
	p := New(env)
	assert.False(t, p.shouldSkip(mappingStage()))
}
