// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// OllamaClient talks to a local Ollama server. Structured output uses
// the chat API's "format" field, which accepts a JSON schema.
type OllamaClient struct {
	httpClient *http.Client
	baseURL    string
	log        *slog.Logger
}

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Format   json.RawMessage `json:"format,omitempty"`
	Options  map[string]any  `json:"options,omitempty"`
}

type ollamaChatResponse struct {
	Message    ollamaMessage `json:"message"`
	Done       bool          `json:"done"`
	DoneReason string        `json:"done_reason"`
}

// NewOllamaClient builds a client for the given base URL.
func NewOllamaClient(baseURL string, log *slog.Logger) (*OllamaClient, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("ollama base URL is empty")
	}
	baseURL = strings.TrimSuffix(baseURL, "/")
	log.Info("initializing Ollama client", "base_url", baseURL)
	return &OllamaClient{
		// The transport-level timeout is a backstop; per-attempt
		// deadlines come from the caller's context.
		httpClient: &http.Client{Timeout: 5 * time.Minute},
		baseURL:    baseURL,
		log:        log,
	}, nil
}

// Complete implements the Client interface.
func (o *OllamaClient) Complete(ctx context.Context, req Request) (Result, error) {
	format, err := json.Marshal(req.Schema)
	if err != nil {
		return Result{}, fmt.Errorf("marshal response schema: %w", err)
	}

	options := map[string]any{"temperature": req.Temperature}
	if req.MaxTokens > 0 {
		options["num_predict"] = req.MaxTokens
	}
	body, err := json.Marshal(ollamaChatRequest{
		Model: req.Model,
		Messages: []ollamaMessage{
			{Role: "system", Content: req.System},
			{Role: "user", Content: req.Prompt},
		},
		Stream:  false,
		Format:  format,
		Options: options,
	})
	if err != nil {
		return Result{}, fmt.Errorf("marshal chat request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		o.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("build chat request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	o.log.Debug("calling Ollama", "model", req.Model)
	resp, err := o.httpClient.Do(httpReq)
	if err != nil {
		return Result{}, fmt.Errorf("ollama API call failed: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, fmt.Errorf("read ollama response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return Result{}, fmt.Errorf("ollama returned status %d: %s",
			resp.StatusCode, strings.TrimSpace(string(payload)))
	}

	var chat ollamaChatResponse
	if err := json.Unmarshal(payload, &chat); err != nil {
		return Result{}, fmt.Errorf("decode ollama response: %w", err)
	}
	return Result{
		Text:         chat.Message.Content,
		FinishReason: normalizeOllamaFinish(chat),
	}, nil
}

func normalizeOllamaFinish(chat ollamaChatResponse) string {
	if !chat.Done {
		return FinishUnknown
	}
	switch chat.DoneReason {
	case "stop", "":
		return FinishStop
	case "length":
		return FinishLength
	default:
		return FinishUnknown
	}
}
