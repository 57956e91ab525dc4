// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package llm provides the thin provider backends for structured-output
// model requests. The gateway layer on top of this package owns retry,
// concurrency limiting, and response validation; backends only translate
// a Request into one provider call.
package llm

import "context"

// Finish reasons normalized across providers. The gateway accepts
// FinishStop and FinishLength; everything else is a retryable failure.
const (
	FinishStop     = "stop"
	FinishLength   = "length"
	FinishFiltered = "filtered"
	FinishUnknown  = "unknown"
)

// Request is a single structured-output completion request.
type Request struct {
	// Model names the provider model to use.
	Model string

	// System is the persona/system message.
	System string

	// Prompt is the user message.
	Prompt string

	// Schema is the JSON schema the output must conform to, already
	// stripped of metadata keys the provider does not understand.
	Schema map[string]any

	// MaxTokens caps the response length. Zero means provider default.
	MaxTokens int

	// Temperature for sampling.
	Temperature float32
}

// Result is the raw provider response before gateway validation.
type Result struct {
	// Text is the model output, expected to be JSON (possibly fenced).
	Text string

	// FinishReason is one of the Finish* constants.
	FinishReason string
}

// Client is implemented by each provider backend.
type Client interface {
	Complete(ctx context.Context, req Request) (Result, error)
}
