// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package matcher assigns each BSI Baustein to its best-fitting G++
// Zielobjekt via a structured AI call.
package matcher

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/AleutianAI/oscal-crosswalk/services/catalog"
	"github.com/AleutianAI/oscal-crosswalk/services/gateway"
)

// Candidate is one Zielobjekt offered to the model.
type Candidate struct {
	ID         string
	Name       string
	Definition string
}

// Matcher performs Baustein-to-Zielobjekt entity matching. Each match
// is an independent AI call; run them concurrently if you like, the
// gateway bounds actual provider concurrency.
type Matcher struct {
	ai  gateway.Generator
	log *slog.Logger
}

// New builds a Matcher on top of an AI generator.
func New(ai gateway.Generator, log *slog.Logger) *Matcher {
	if log == nil {
		log = slog.Default()
	}
	return &Matcher{ai: ai, log: log}
}

// Match picks the best candidate for one Baustein and returns its ID.
//
// The response schema constrains the answer to the literal candidate
// names, so the model cannot invent a Zielobjekt. If the (validated)
// answer still fails to resolve to a candidate, the Baustein stays
// unmatched: empty ID, nil error. Provider or validation failures
// surface as errors.
func (m *Matcher) Match(
	ctx context.Context,
	baustein catalog.Baustein,
	candidates []Candidate,
	instruction string,
) (string, error) {
	if len(candidates) == 0 {
		return "", fmt.Errorf("no candidates to match %s against", baustein.ID)
	}

	raw, err := m.ai.GenerateValidated(ctx, gateway.Request{
		Prompt:       buildPrompt(instruction, baustein, candidates),
		Schema:       responseSchema(candidates),
		ContextLabel: "BausteinToZielobjekt-" + baustein.ID,
	})
	if err != nil {
		return "", fmt.Errorf("match baustein %s: %w", baustein.ID, err)
	}

	var resp struct {
		MatchedZielobjekt string `json:"matched_zielobjekt"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", fmt.Errorf("decode match response for %s: %w", baustein.ID, err)
	}

	for _, c := range candidates {
		if c.Name == resp.MatchedZielobjekt {
			m.log.Info("matched baustein to zielobjekt",
				"baustein", baustein.ID, "zielobjekt", c.Name, "uuid", c.ID)
			return c.ID, nil
		}
	}
	m.log.Warn("no suitable zielobjekt match for baustein",
		"baustein", baustein.ID, "answer", resp.MatchedZielobjekt)
	return "", nil
}

func buildPrompt(instruction string, b catalog.Baustein, candidates []Candidate) string {
	var sb strings.Builder
	sb.WriteString(instruction)
	sb.WriteString("\n\n**BSI Baustein to Match:**\n")
	fmt.Fprintf(&sb, "* Title: %s\n", b.Title)
	fmt.Fprintf(&sb, "* Description: %s\n", b.Description)
	sb.WriteString("\n**Available G++ Zielobjekte:**\n")
	for _, c := range candidates {
		fmt.Fprintf(&sb, "* %s: %s\n", c.Name, c.Definition)
	}
	sb.WriteString("\nBased on the information above, which is the best match?")
	return sb.String()
}

// responseSchema constrains matched_zielobjekt to the candidate names.
func responseSchema(candidates []Candidate) map[string]any {
	names := make([]any, len(candidates))
	for i, c := range candidates {
		names[i] = c.Name
	}
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"matched_zielobjekt": map[string]any{
				"type": "string",
				"enum": names,
			},
		},
		"required":             []any{"matched_zielobjekt"},
		"additionalProperties": false,
	}
}
