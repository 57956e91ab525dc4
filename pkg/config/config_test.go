// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearPipelineEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"AI_PROVIDER", "OPENAI_API_KEY", "OPENAI_BASE_URL", "OLLAMA_BASE_URL",
		"AI_MODEL", "AI_MODEL_PRO", "SOURCE_PREFIX", "OUTPUT_PREFIX",
		"TEST", "OVERWRITE_TEMP_FILES", "MAX_CONCURRENT_AI_REQUESTS",
		"AI_REQUEST_TIMEOUT",
	} {
		t.Setenv(key, "")
	}
}

func TestLoad_TestModeDefaults(t *testing.T) {
	clearPipelineEnv(t)
	t.Setenv("TEST", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, cfg.TestMode)
	assert.False(t, cfg.OverwriteTempFiles)
	assert.Equal(t, ProviderOpenAI, cfg.Provider)
	assert.Equal(t, DefaultModel, cfg.Model)
	assert.Equal(t, DefaultModelPro, cfg.ModelPro)
	assert.EqualValues(t, DefaultMaxConcurrentAI, cfg.MaxConcurrentAIRequests)
	assert.Equal(t, DefaultRequestTimeout, cfg.RequestTimeout)
}

func TestLoad_ProductionMissingVars(t *testing.T) {
	clearPipelineEnv(t)

	_, err := Load()
	require.Error(t, err)
	require.ErrorIs(t, err, ErrMissingEnv)
	// All missing names are reported at once.
	assert.Contains(t, err.Error(), "OPENAI_API_KEY")
	assert.Contains(t, err.Error(), "OUTPUT_PREFIX")
	assert.Contains(t, err.Error(), "SOURCE_PREFIX")
}

func TestLoad_ProductionComplete(t *testing.T) {
	clearPipelineEnv(t)
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("SOURCE_PREFIX", "/data/in")
	t.Setenv("OUTPUT_PREFIX", "/data/out")
	t.Setenv("MAX_CONCURRENT_AI_REQUESTS", "10")
	t.Setenv("AI_REQUEST_TIMEOUT", "45s")

	cfg, err := Load()
	require.NoError(t, err)
	assert.EqualValues(t, 10, cfg.MaxConcurrentAIRequests)
	assert.Equal(t, 45*time.Second, cfg.RequestTimeout)
	assert.Equal(t, "/data/in/zielobjekte.csv", cfg.ZielobjekteCSVPath())
	assert.Equal(t, "/data/out/hilfsdateien/zielobjekt_controls.json",
		cfg.ZielobjektControlsPath())
}

func TestLoad_OllamaProvider(t *testing.T) {
	clearPipelineEnv(t)
	t.Setenv("AI_PROVIDER", "ollama")
	t.Setenv("OLLAMA_BASE_URL", "http://localhost:11434/")
	t.Setenv("SOURCE_PREFIX", "/in")
	t.Setenv("OUTPUT_PREFIX", "/out")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ProviderOllama, cfg.Provider)
	// Trailing slash is normalized away.
	assert.Equal(t, "http://localhost:11434", cfg.OllamaBaseURL)
}

func TestLoad_UnknownProvider(t *testing.T) {
	clearPipelineEnv(t)
	t.Setenv("TEST", "true")
	t.Setenv("AI_PROVIDER", "vertex")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "AI_PROVIDER")
}

func TestLoad_InvalidConcurrency(t *testing.T) {
	clearPipelineEnv(t)
	t.Setenv("TEST", "true")
	t.Setenv("MAX_CONCURRENT_AI_REQUESTS", "zero")

	_, err := Load()
	require.Error(t, err)
}
