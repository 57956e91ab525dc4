// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package gateway issues structured-output AI requests with validation,
// bounded concurrency, and retry.
//
// Every AI call in the pipeline goes through one Gateway instance. The
// gateway enforces a process-wide concurrency ceiling via a weighted
// semaphore shared by all callers, constrains the model to a caller
// supplied JSON schema, and validates the parsed response against that
// original schema (not the provider-transformed variant).
//
// # Retry policy
//
// Transient failures — provider errors, abnormal finish reasons, JSON
// parse failures, schema-validation failures — are retried with
// exponential backoff: the wait before attempt n+1 is 2^n seconds.
// After MaxRetries attempts the last error is returned to the caller;
// that is fatal for the unit of work, not for the process. Programming
// and configuration errors (bad schema, unknown model backend) are
// returned immediately without retry.
//
// # Timeouts
//
// Each attempt runs under its own deadline (Options.RequestTimeout), so
// a hung provider costs at most one attempt, not the whole run.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"golang.org/x/sync/semaphore"

	"github.com/AleutianAI/oscal-crosswalk/services/llm"
)

// Defaults for gateway options and requests.
const (
	DefaultMaxRetries      = 5
	DefaultMaxConcurrent   = 5
	DefaultRequestTimeout  = 120 * time.Second
	DefaultMaxOutputTokens = 65536
	DefaultTemperature     = 1.0
)

// Request describes one structured-output generation.
type Request struct {
	// Prompt is the full user prompt including any context tables.
	Prompt string

	// Schema is the JSON schema the response must satisfy.
	Schema map[string]any

	// ContextLabel identifies the request source in logs, e.g.
	// "BausteinToZielobjekt-APP.1".
	ContextLabel string

	// ModelOverride selects a non-default model for this request.
	ModelOverride string

	// MaxRetries overrides DefaultMaxRetries when positive.
	MaxRetries int
}

// Generator is the call surface stages depend on; *Gateway implements
// it, and tests substitute stubs.
type Generator interface {
	GenerateValidated(ctx context.Context, req Request) (json.RawMessage, error)
}

// Options configures a Gateway.
type Options struct {
	// Factory builds a provider backend for a model name. Called once
	// per distinct model; results are cached.
	Factory func(model string) (llm.Client, error)

	// DefaultModel is used when a request has no ModelOverride.
	DefaultModel string

	// SystemMessage is the persona sent with every request. The
	// current date is appended so the model does not guess.
	SystemMessage string

	// MaxConcurrent caps simultaneous in-flight provider calls.
	MaxConcurrent int64

	// RequestTimeout bounds a single attempt.
	RequestTimeout time.Duration

	// MaxOutputTokens caps the response length.
	MaxOutputTokens int

	// Temperature for sampling; zero selects DefaultTemperature.
	Temperature float32

	Logger *slog.Logger

	// Sleep replaces time.Sleep in tests. Nil means time.Sleep.
	Sleep func(time.Duration)
}

// Gateway is safe for concurrent use. Its only mutable state is the
// backend cache and the semaphore counter.
type Gateway struct {
	factory     func(model string) (llm.Client, error)
	model       string
	system      string
	sem         *semaphore.Weighted
	timeout     time.Duration
	maxTokens   int
	temperature float32
	log         *slog.Logger
	sleep       func(time.Duration)

	mu      sync.Mutex
	clients map[string]llm.Client
}

// New validates the options and builds a Gateway.
func New(opts Options) (*Gateway, error) {
	if opts.Factory == nil {
		return nil, fmt.Errorf("gateway: Factory is required")
	}
	if opts.DefaultModel == "" {
		return nil, fmt.Errorf("gateway: DefaultModel is required")
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = DefaultMaxConcurrent
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = DefaultRequestTimeout
	}
	if opts.MaxOutputTokens <= 0 {
		opts.MaxOutputTokens = DefaultMaxOutputTokens
	}
	if opts.Temperature == 0 {
		opts.Temperature = DefaultTemperature
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Sleep == nil {
		opts.Sleep = time.Sleep
	}

	system := strings.TrimSpace(opts.SystemMessage)
	if system == "" {
		opts.Logger.Warn("system message is empty; AI calls will not have a predefined persona")
	}
	system = fmt.Sprintf("%s\n\nImportant: Today's date is %s.",
		system, time.Now().Format("2006-01-02"))

	return &Gateway{
		factory:     opts.Factory,
		model:       opts.DefaultModel,
		system:      system,
		sem:         semaphore.NewWeighted(opts.MaxConcurrent),
		timeout:     opts.RequestTimeout,
		maxTokens:   opts.MaxOutputTokens,
		temperature: opts.Temperature,
		log:         opts.Logger,
		sleep:       opts.Sleep,
		clients:     make(map[string]llm.Client),
	}, nil
}

// GenerateValidated performs one validated structured-output request.
//
// The returned message is the raw (fence-stripped) JSON text exactly as
// the model produced it, already known to satisfy req.Schema.
func (g *Gateway) GenerateValidated(ctx context.Context, req Request) (json.RawMessage, error) {
	label := req.ContextLabel
	if label == "" {
		label = "ai-request"
	}
	retries := req.MaxRetries
	if retries <= 0 {
		retries = DefaultMaxRetries
	}

	// Configuration phase: fails fast, never enters the retry loop.
	compiled, err := compileSchema(req.Schema)
	if err != nil {
		g.log.Error("invalid response schema, cannot proceed with AI request",
			"context", label, "error", err)
		return nil, fmt.Errorf("invalid response schema: %w", err)
	}
	apiSchema := stripSchemaMeta(req.Schema)

	model := req.ModelOverride
	if model == "" {
		model = g.model
	}
	client, err := g.clientFor(model)
	if err != nil {
		return nil, fmt.Errorf("no backend for model %q: %w", model, err)
	}

	if err := g.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("acquire AI request slot: %w", err)
	}
	defer g.sem.Release(1)

	var lastErr error
	for attempt := 0; attempt < retries; attempt++ {
		g.log.Info("calling model", "context", label, "model", model,
			"attempt", attempt+1, "max_attempts", retries)

		raw, err := g.attempt(ctx, client, model, req.Prompt, apiSchema, compiled)
		if err == nil {
			g.log.Info("generated and validated JSON response",
				"context", label, "attempt", attempt+1)
			return raw, nil
		}

		var re *retryableError
		if !errors.As(err, &re) {
			g.log.Error("non-retryable error during AI generation",
				"context", label, "attempt", attempt+1, "error", err)
			return nil, err
		}
		lastErr = err
		if attempt == retries-1 {
			break
		}

		wait := time.Duration(1<<uint(attempt)) * time.Second
		g.log.Warn("generation attempt failed, retrying",
			"context", label, "attempt", attempt+1,
			"wait", wait.String(), "error", err)
		g.sleep(wait)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}

	g.log.Error("AI generation failed after all retries",
		"context", label, "attempts", retries, "error", lastErr)
	return nil, fmt.Errorf("AI generation for %s failed after %d attempts: %w",
		label, retries, lastErr)
}

// attempt performs a single provider call and full response processing.
func (g *Gateway) attempt(
	ctx context.Context,
	client llm.Client,
	model, prompt string,
	apiSchema map[string]any,
	compiled *jsonschema.Schema,
) (json.RawMessage, error) {
	actx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	res, err := client.Complete(actx, llm.Request{
		Model:       model,
		System:      g.system,
		Prompt:      prompt,
		Schema:      apiSchema,
		MaxTokens:   g.maxTokens,
		Temperature: g.temperature,
	})
	if err != nil {
		if ctx.Err() != nil {
			// The caller's context ended; retrying cannot help.
			return nil, ctx.Err()
		}
		return nil, retryable("provider call failed: %w", err)
	}

	switch res.FinishReason {
	case llm.FinishStop, llm.FinishLength:
	default:
		return nil, retryable("model finished with non-OK reason %q", res.FinishReason)
	}

	text := stripCodeFence(res.Text)
	if text == "" {
		return nil, retryable("response contained no extractable text")
	}

	var value any
	if err := json.Unmarshal([]byte(text), &value); err != nil {
		return nil, retryable("parse model response as JSON: %w", err)
	}
	// Validation runs against the original schema, not the variant the
	// provider saw.
	if err := compiled.Validate(value); err != nil {
		return nil, retryable("response failed schema validation: %w", err)
	}
	return json.RawMessage(text), nil
}

// clientFor returns the cached backend for a model, creating it on
// first use.
func (g *Gateway) clientFor(model string) (llm.Client, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if c, ok := g.clients[model]; ok {
		return c, nil
	}
	g.log.Info("creating backend for model", "model", model)
	c, err := g.factory(model)
	if err != nil {
		return nil, err
	}
	g.clients[model] = c
	return c, nil
}

// compileSchema compiles the caller-supplied schema for post-parse
// validation.
func compileSchema(schema map[string]any) (*jsonschema.Schema, error) {
	if len(schema) == 0 {
		return nil, fmt.Errorf("schema is empty")
	}
	data, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("response.json", bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("register schema: %w", err)
	}
	compiled, err := compiler.Compile("response.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return compiled, nil
}

// stripSchemaMeta drops top-level metadata keys some providers reject.
// The original schema is left untouched; validation still uses it.
func stripSchemaMeta(schema map[string]any) map[string]any {
	out := make(map[string]any, len(schema))
	for k, v := range schema {
		if k == "$schema" || k == "$id" {
			continue
		}
		out[k] = v
	}
	return out
}

// stripCodeFence tolerates models that wrap JSON in markdown fences.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// retryableError marks failures eligible for backoff and retry.
type retryableError struct {
	err error
}

func (e *retryableError) Error() string { return e.err.Error() }
func (e *retryableError) Unwrap() error { return e.err }

func retryable(format string, args ...any) error {
	return &retryableError{err: fmt.Errorf(format, args...)}
}
