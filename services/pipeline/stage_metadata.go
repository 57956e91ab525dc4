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

// metadataStage regenerates maturity-level and phase metadata for every
// sub-requirement-to-control pair produced by the mapping stage. The
// source catalogs carry this metadata for the original pairings only;
// new pairings need it rederived.
func metadataStage() Stage {
	return Stage{
		Name: "metadata",
		Outputs: func(cfg *config.Config) []string {
			return []string{cfg.GeneratedMetadataPath()}
		},
		Run: runMetadata,
	}
}

// metadataPair is one unit of metadata generation work.
type metadataPair struct {
	subRequirementID string
	gppControlID     string
}

func runMetadata(ctx context.Context, env *Env) error {
	records := make(map[string]MappingRecord)
	if err := env.Store.LoadJSON(env.Cfg.ControlsAnforderungenPath(), &records); err != nil {
		return err
	}
	var decomposed decomposedDoc
	if err := env.Store.LoadJSON(env.Cfg.DecomposedAnforderungenPath(), &decomposed); err != nil {
		return err
	}
	doc, err := catalog.LoadDocument(env.Cfg.GPPKompendiumPath())
	if err != nil {
		return err
	}
	gppTexts := catalog.Flatten(&doc.Catalog, env.Log).TextsByControlID()

	subReqTexts := make(map[string]string)
	for _, d := range decomposed.DecomposedAnforderungen {
		for _, sub := range d.SubRequirements {
			subReqTexts[sub.ID] = sub.Description
		}
	}

	var pairs []metadataPair
	for _, zielobjektID := range sortedKeys(records) {
		record := records[zielobjektID]
		for _, subReqID := range sortedKeys(record.Mapping) {
			pairs = append(pairs, metadataPair{
				subRequirementID: subReqID,
				gppControlID:     record.Mapping[subReqID],
			})
		}
	}
	if env.Cfg.TestMode && len(pairs) > config.DefaultTestTruncationLimit {
		pairs = pairs[:config.DefaultTestTruncationLimit]
	}

	ai, err := env.AI()
	if err != nil {
		return err
	}
	schema := metadataSchema()

	var mu sync.Mutex
	var generated []MetadataEntry
	g, gctx := errgroup.WithContext(ctx)
	for _, pair := range pairs {
		pair := pair
		g.Go(func() error {
			prompt := prompts.Expand(env.Prompts.MetadataGenerationPrompt, map[string]string{
				"sub_requirement_text": subReqTexts[pair.subRequirementID],
				"gpp_control_text":     gppTexts[pair.gppControlID],
			})
			label := fmt.Sprintf("MetadataGeneration-%s-%s",
				pair.subRequirementID, pair.gppControlID)

			raw, err := ai.GenerateValidated(gctx, gateway.Request{
				Prompt:       prompt,
				Schema:       schema,
				ContextLabel: label,
			})
			if err != nil {
				env.Log.Error("metadata generation failed for pair",
					"sub_requirement", pair.subRequirementID,
					"gpp_control", pair.gppControlID, "error", err)
				return nil
			}
			var resp struct {
				MaturityLevel string `json:"maturity_level"`
				Phase         string `json:"phase"`
			}
			if err := json.Unmarshal(raw, &resp); err != nil {
				env.Log.Error("decode metadata response",
					"sub_requirement", pair.subRequirementID, "error", err)
				return nil
			}
			mu.Lock()
			generated = append(generated, MetadataEntry{
				SubRequirementID: pair.subRequirementID,
				GPPControlID:     pair.gppControlID,
				MaturityLevel:    resp.MaturityLevel,
				Phase:            resp.Phase,
			})
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if len(generated) == 0 {
		return fmt.Errorf("no metadata was generated")
	}
	sort.Slice(generated, func(i, j int) bool {
		if generated[i].SubRequirementID != generated[j].SubRequirementID {
			return generated[i].SubRequirementID < generated[j].SubRequirementID
		}
		return generated[i].GPPControlID < generated[j].GPPControlID
	})

	env.Log.Info("generated mapping metadata",
		"pairs", len(pairs), "entries", len(generated))
	return env.Store.SaveJSON(env.Cfg.GeneratedMetadataPath(), metadataDoc{
		GeneratedMetadata: generated,
	})
}

func metadataSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"maturity_level": map[string]any{
				"type": "string",
				"enum": []any{"defined", "managed", "optimized"},
			},
			"phase": map[string]any{
				"type": "string",
				"enum": []any{"plan", "build", "run"},
			},
		},
		"required":             []any{"maturity_level", "phase"},
		"additionalProperties": false,
	}
}
