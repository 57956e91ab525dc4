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
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/oscal-crosswalk/pkg/config"
	"github.com/AleutianAI/oscal-crosswalk/pkg/prompts"
	"github.com/AleutianAI/oscal-crosswalk/services/catalog"
	"github.com/AleutianAI/oscal-crosswalk/services/gateway"
)

// decomposeStage splits every BSI Anforderung into granular
// sub-requirements. Individual failures cost the single Anforderung;
// zero successful decompositions abort the stage, downstream mapping
// would be meaningless.
func decomposeStage() Stage {
	return Stage{
		Name: "decompose",
		Outputs: func(cfg *config.Config) []string {
			return []string{cfg.DecomposedAnforderungenPath()}
		},
		Run: runDecompose,
	}
}

func runDecompose(ctx context.Context, env *Env) error {
	doc, err := catalog.LoadDocument(env.Cfg.BSICatalogPath())
	if err != nil {
		return err
	}
	bausteine, _ := catalog.ParseBausteine(&doc.Catalog, env.Log)
	texts := catalog.AnforderungenTexts(bausteine)
	if len(texts) == 0 {
		return fmt.Errorf("no anforderungen with prose found in %s", env.Cfg.BSICatalogPath())
	}

	ids := sortedKeys(texts)
	ids = truncateForTest(ids, env.Cfg.TestMode, config.DefaultTestTruncationLimit)

	ai, err := env.AI()
	if err != nil {
		return err
	}
	schema := decompositionSchema()

	var mu sync.Mutex
	var decomposed []DecomposedAnforderung
	g, gctx := errgroup.WithContext(ctx)
	for _, id := range ids {
		id := id
		g.Go(func() error {
			prompt := prompts.Expand(env.Prompts.DecompositionPrompt, map[string]string{
				"anforderung_text": fmt.Sprintf("%s\n%s", id, texts[id]),
			})
			raw, err := ai.GenerateValidated(gctx, gateway.Request{
				Prompt:       prompt,
				Schema:       schema,
				ContextLabel: "Decomposition-" + id,
			})
			if err != nil {
				// Fatal for the unit, not the stage.
				env.Log.Error("decomposition failed for anforderung",
					"anforderung", id, "error", err)
				return nil
			}
			var resp decomposedDoc
			if err := json.Unmarshal(raw, &resp); err != nil {
				env.Log.Error("decode decomposition response",
					"anforderung", id, "error", err)
				return nil
			}
			mu.Lock()
			decomposed = append(decomposed, resp.DecomposedAnforderungen...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if len(decomposed) == 0 {
		return fmt.Errorf("no successful decompositions were generated")
	}
	sort.Slice(decomposed, func(i, j int) bool {
		return decomposed[i].OriginalID < decomposed[j].OriginalID
	})

	env.Log.Info("decomposed anforderungen",
		"anforderungen", len(ids), "results", len(decomposed))
	return env.Store.SaveJSON(env.Cfg.DecomposedAnforderungenPath(), decomposedDoc{
		DecomposedAnforderungen: decomposed,
	})
}

func decompositionSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"decomposed_anforderungen": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"original_id": map[string]any{"type": "string"},
						"sub_requirements": map[string]any{
							"type": "array",
							"items": map[string]any{
								"type": "object",
								"properties": map[string]any{
									"id":          map[string]any{"type": "string"},
									"description": map[string]any{"type": "string"},
								},
								"required":             []any{"id", "description"},
								"additionalProperties": false,
							},
						},
					},
					"required":             []any{"original_id", "sub_requirements"},
					"additionalProperties": false,
				},
			},
		},
		"required":             []any{"decomposed_anforderungen"},
		"additionalProperties": false,
	}
}
