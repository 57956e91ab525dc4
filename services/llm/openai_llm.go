// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/sashabaranov/go-openai"
)

// OpenAIClient talks to the OpenAI API (or any compatible endpoint)
// using the json_schema response format for structured output.
type OpenAIClient struct {
	client *openai.Client
	log    *slog.Logger
}

// NewOpenAIClient builds a client. baseURL may be empty for the public
// API; apiKey must not be.
func NewOpenAIClient(apiKey, baseURL string, log *slog.Logger) (*OpenAIClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("OpenAI API key is empty")
	}
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	log.Info("initializing OpenAI client", "base_url_overridden", baseURL != "")
	return &OpenAIClient{client: openai.NewClientWithConfig(cfg), log: log}, nil
}

// Complete implements the Client interface.
func (o *OpenAIClient) Complete(ctx context.Context, req Request) (Result, error) {
	schemaBytes, err := json.Marshal(req.Schema)
	if err != nil {
		return Result{}, fmt.Errorf("marshal response schema: %w", err)
	}

	chatReq := openai.ChatCompletionRequest{
		Model: req.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: req.System},
			{Role: openai.ChatMessageRoleUser, Content: req.Prompt},
		},
		Temperature: req.Temperature,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   "response",
				Schema: json.RawMessage(schemaBytes),
			},
		},
	}
	if req.MaxTokens > 0 {
		chatReq.MaxCompletionTokens = req.MaxTokens
	}

	o.log.Debug("calling OpenAI", "model", req.Model)
	resp, err := o.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return Result{}, fmt.Errorf("OpenAI API call failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		// No candidates: surface as an abnormal finish, not an error,
		// so the gateway applies its normal retry policy.
		return Result{FinishReason: FinishUnknown}, nil
	}

	choice := resp.Choices[0]
	return Result{
		Text:         choice.Message.Content,
		FinishReason: normalizeOpenAIFinish(choice.FinishReason),
	}, nil
}

func normalizeOpenAIFinish(r openai.FinishReason) string {
	switch r {
	case openai.FinishReasonStop:
		return FinishStop
	case openai.FinishReasonLength:
		return FinishLength
	case openai.FinishReasonContentFilter:
		return FinishFiltered
	default:
		return FinishUnknown
	}
}
