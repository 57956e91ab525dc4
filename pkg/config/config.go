// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package config loads the pipeline configuration from the environment.
//
// The environment is the single source of truth for all configurable
// parameters. In non-test mode, missing required variables abort the
// run immediately; a half-configured pipeline must not start issuing
// AI requests.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Provider names accepted in AI_PROVIDER.
const (
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
)

// Defaults applied when the corresponding variable is unset.
const (
	DefaultModel               = "gpt-5-mini"
	DefaultModelPro            = "gpt-5"
	DefaultMaxConcurrentAI     = 5
	DefaultRequestTimeout      = 120 * time.Second
	DefaultTestTruncationLimit = 3
)

// ErrMissingEnv is wrapped by Load when required variables are absent.
var ErrMissingEnv = fmt.Errorf("missing required environment variables")

// Config holds every configurable parameter of the pipeline.
type Config struct {
	// Provider selects the AI backend: "openai" or "ollama".
	Provider string

	// OpenAIAPIKey authenticates against the OpenAI-compatible API.
	// Required when Provider is "openai" and not in test mode.
	OpenAIAPIKey string

	// OpenAIBaseURL overrides the API endpoint (self-hosted gateways).
	OpenAIBaseURL string

	// OllamaBaseURL is the Ollama server address. Required when
	// Provider is "ollama" and not in test mode.
	OllamaBaseURL string

	// Model is the default model for matching and decomposition calls.
	Model string

	// ModelPro is the stronger model used for the 1:1 mapping stage.
	ModelPro string

	// SourcePrefix is the directory holding the raw input catalogs.
	SourcePrefix string

	// OutputPrefix is the directory receiving all stage artifacts.
	OutputPrefix string

	// TestMode truncates work sets for cheap runs and relaxes the
	// required-variable validation.
	TestMode bool

	// OverwriteTempFiles disables the idempotency skip: stages run
	// even when their output artifacts already exist.
	OverwriteTempFiles bool

	// MaxConcurrentAIRequests caps simultaneous in-flight AI calls
	// across the whole process.
	MaxConcurrentAIRequests int64

	// RequestTimeout bounds a single AI request attempt. Each retry
	// attempt gets a fresh deadline.
	RequestTimeout time.Duration
}

// Load reads the configuration from the environment.
//
// In non-test mode (TEST unset or not "true"), Load fails with an
// error wrapping ErrMissingEnv that names every absent required
// variable, so the operator can fix all of them in one pass.
func Load() (*Config, error) {
	cfg := &Config{
		Provider:                strings.ToLower(getenvDefault("AI_PROVIDER", ProviderOpenAI)),
		OpenAIAPIKey:            os.Getenv("OPENAI_API_KEY"),
		OpenAIBaseURL:           os.Getenv("OPENAI_BASE_URL"),
		OllamaBaseURL:           strings.TrimSuffix(os.Getenv("OLLAMA_BASE_URL"), "/"),
		Model:                   getenvDefault("AI_MODEL", DefaultModel),
		ModelPro:                getenvDefault("AI_MODEL_PRO", DefaultModelPro),
		SourcePrefix:            os.Getenv("SOURCE_PREFIX"),
		OutputPrefix:            os.Getenv("OUTPUT_PREFIX"),
		TestMode:                boolEnv("TEST"),
		OverwriteTempFiles:      boolEnv("OVERWRITE_TEMP_FILES"),
		MaxConcurrentAIRequests: DefaultMaxConcurrentAI,
		RequestTimeout:          DefaultRequestTimeout,
	}

	if v := os.Getenv("MAX_CONCURRENT_AI_REQUESTS"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n < 1 {
			return nil, fmt.Errorf("invalid MAX_CONCURRENT_AI_REQUESTS %q", v)
		}
		cfg.MaxConcurrentAIRequests = n
	}
	if v := os.Getenv("AI_REQUEST_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("invalid AI_REQUEST_TIMEOUT %q", v)
		}
		cfg.RequestTimeout = d
	}

	if cfg.Provider != ProviderOpenAI && cfg.Provider != ProviderOllama {
		return nil, fmt.Errorf("unknown AI_PROVIDER %q (want %q or %q)",
			cfg.Provider, ProviderOpenAI, ProviderOllama)
	}

	if !cfg.TestMode {
		if err := cfg.validateProduction(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// validateProduction ensures all required variables are set outside
// test mode.
func (c *Config) validateProduction() error {
	required := map[string]string{
		"SOURCE_PREFIX": c.SourcePrefix,
		"OUTPUT_PREFIX": c.OutputPrefix,
	}
	switch c.Provider {
	case ProviderOpenAI:
		required["OPENAI_API_KEY"] = c.OpenAIAPIKey
	case ProviderOllama:
		required["OLLAMA_BASE_URL"] = c.OllamaBaseURL
	}

	var missing []string
	for key, value := range required {
		if value == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("%w: %s", ErrMissingEnv, strings.Join(missing, ", "))
	}
	return nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func boolEnv(key string) bool {
	return strings.EqualFold(os.Getenv(key), "true")
}

// ---------------------------------------------------------------------------
// Input and artifact paths
// ---------------------------------------------------------------------------

// Input files under SourcePrefix.

func (c *Config) ZielobjekteCSVPath() string {
	return filepath.Join(c.SourcePrefix, "zielobjekte.csv")
}

func (c *Config) BSICatalogPath() string {
	return filepath.Join(c.SourcePrefix, "bsi_gs_2023.json")
}

func (c *Config) GPPKompendiumPath() string {
	return filepath.Join(c.SourcePrefix, "gpp_kompendium.json")
}

// Stage artifacts under OutputPrefix. Artifact existence is the
// idempotency unit: a stage whose outputs all exist is skipped unless
// OverwriteTempFiles is set.

func (c *Config) helperPath(name string) string {
	return filepath.Join(c.OutputPrefix, "hilfsdateien", name)
}

func (c *Config) GPPStrippedPath() string     { return c.helperPath("gpp_stripped.md") }
func (c *Config) GPPStrippedISMSPath() string { return c.helperPath("gpp_isms_stripped.md") }
func (c *Config) BSIStrippedPath() string     { return c.helperPath("bsi_2023_stripped.md") }
func (c *Config) BSIStrippedISMSPath() string { return c.helperPath("bsi_2023_stripped_ISMS.md") }

func (c *Config) ZielobjektControlsPath() string {
	return c.helperPath("zielobjekt_controls.json")
}

func (c *Config) BausteinZielobjektPath() string {
	return c.helperPath("baustein_zielobjekt.json")
}

func (c *Config) DecomposedAnforderungenPath() string {
	return c.helperPath("decomposed_anforderungen.json")
}

func (c *Config) ControlsAnforderungenPath() string {
	return c.helperPath("controls_anforderungen.json")
}

func (c *Config) GeneratedMetadataPath() string {
	return c.helperPath("generated_metadata.json")
}

func (c *Config) ProzessbausteineControlsPath() string {
	return c.helperPath("prozessbausteine_controls.json")
}

func (c *Config) ProfilesDir() string {
	return filepath.Join(c.OutputPrefix, "profile")
}

func (c *Config) ComponentsDir() string {
	return filepath.Join(c.OutputPrefix, "komponenten")
}
