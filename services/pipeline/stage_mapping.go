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
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/oscal-crosswalk/pkg/config"
	"github.com/AleutianAI/oscal-crosswalk/pkg/mdtable"
	"github.com/AleutianAI/oscal-crosswalk/services/catalog"
	"github.com/AleutianAI/oscal-crosswalk/services/gateway"
	"github.com/AleutianAI/oscal-crosswalk/services/hierarchy"
)

// mappingStage generates the 1:1 Anforderung-to-Kontrolle mapping per
// matched Baustein/Zielobjekt pair. Each pair gets one AI call whose
// context window is built from the stripped tables: the BSI rows of the
// Baustein and the G++ rows of the Zielobjekt's inherited control set.
func mappingStage() Stage {
	return Stage{
		Name: "mapping",
		Outputs: func(cfg *config.Config) []string {
			return []string{cfg.ControlsAnforderungenPath()}
		},
		Run: runMapping,
	}
}

func runMapping(ctx context.Context, env *Env) error {
	var bausteinMap bausteinZielobjektDoc
	if err := env.Store.LoadJSON(env.Cfg.BausteinZielobjektPath(), &bausteinMap); err != nil {
		return err
	}
	var controlsMap zielobjektControlsDoc
	if err := env.Store.LoadJSON(env.Cfg.ZielobjektControlsPath(), &controlsMap); err != nil {
		return err
	}
	reg, err := hierarchy.LoadZielobjekte(env.Cfg.ZielobjekteCSVPath(), env.Log)
	if err != nil {
		return err
	}

	gppMD, err := env.Store.LoadText(env.Cfg.GPPStrippedPath())
	if err != nil {
		return err
	}
	gppISMSMD, err := env.Store.LoadText(env.Cfg.GPPStrippedISMSPath())
	if err != nil {
		return err
	}
	bsiMD, err := env.Store.LoadText(env.Cfg.BSIStrippedPath())
	if err != nil {
		return err
	}

	bausteinIDs := sortedKeys(bausteinMap.BausteinZielobjektMap)
	bausteinIDs = truncateForTest(bausteinIDs, env.Cfg.TestMode, config.DefaultTestTruncationLimit)

	ai, err := env.AI()
	if err != nil {
		return err
	}
	schema := mappingSchema()

	var mu sync.Mutex
	records := make(map[string]MappingRecord)
	g, gctx := errgroup.WithContext(ctx)
	for _, bausteinID := range bausteinIDs {
		bausteinID := bausteinID
		zielobjektID := bausteinMap.BausteinZielobjektMap[bausteinID]
		g.Go(func() error {
			controlIDs := controlsMap.ZielobjektControlsMap[zielobjektID]
			if len(controlIDs) == 0 {
				env.Log.Warn("no G++ controls for zielobjekt, skipping pair",
					"baustein", bausteinID, "zielobjekt", zielobjektID)
				return nil
			}

			// ISMS Bausteine map against the process controls table.
			gppSource := gppMD
			if strings.HasPrefix(bausteinID, "ISMS") {
				gppSource = gppISMSMD
			}
			controlSet := make(map[string]bool, len(controlIDs))
			for _, id := range controlIDs {
				controlSet[id] = true
			}
			gppContext := mdtable.Filter(gppSource, func(id string) bool {
				return controlSet[id]
			})
			bsiContext := mdtable.Filter(bsiMD, func(id string) bool {
				return strings.HasPrefix(id, bausteinID+".")
			})
			if gppContext == "" || bsiContext == "" {
				env.Log.Error("empty context window for pair, skipping",
					"baustein", bausteinID, "zielobjekt", zielobjektID,
					"gpp_rows", gppContext != "", "bsi_rows", bsiContext != "")
				return nil
			}

			prompt := fmt.Sprintf("%s\n\nEd2023 Source:\n%s\n\nG++ Source:\n%s",
				env.Prompts.AnforderungKontrolleInstruction, bsiContext, gppContext)

			raw, err := ai.GenerateValidated(gctx, gateway.Request{
				Prompt:        prompt,
				Schema:        schema,
				ContextLabel:  "AnforderungToKontrolle-" + bausteinID,
				ModelOverride: env.Cfg.ModelPro,
			})
			if err != nil {
				env.Log.Error("mapping generation failed for pair",
					"baustein", bausteinID, "error", err)
				return nil
			}

			var resp struct {
				Mapping        map[string]string `json:"mapping"`
				UnmappedGPP    []string          `json:"unmapped_gpp"`
				UnmappedEd2023 []string          `json:"unmapped_ed2023"`
			}
			if err := json.Unmarshal(raw, &resp); err != nil {
				env.Log.Error("decode mapping response",
					"baustein", bausteinID, "error", err)
				return nil
			}

			mu.Lock()
			records[zielobjektID] = MappingRecord{
				ZielobjektName: reg.NameOf(zielobjektID),
				BausteinID:     bausteinID,
				Mapping:        ValidateMappingKeys(resp.Mapping, env.Log),
				UnmappedGPP:    resp.UnmappedGPP,
				UnmappedEd2023: resp.UnmappedEd2023,
			}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if len(records) == 0 && len(bausteinIDs) > 0 {
		// Persisting an empty map would make the failure sticky: the
		// artifact exists, so the next run skips the stage.
		return fmt.Errorf("no mapping records were generated for %d pairs", len(bausteinIDs))
	}

	env.Log.Info("generated mapping records",
		"pairs", len(bausteinIDs), "records", len(records))
	return env.Store.SaveJSON(env.Cfg.ControlsAnforderungenPath(), records)
}

// ValidateMappingKeys drops mapping keys that are not well-formed BSI
// requirement identifiers. Each offending key is dropped individually;
// applying the validation to an already-clean map is a no-op.
func ValidateMappingKeys(mapping map[string]string, log *slog.Logger) map[string]string {
	if log == nil {
		log = slog.Default()
	}
	out := make(map[string]string, len(mapping))
	for key, value := range mapping {
		if !catalog.AnforderungIDPattern.MatchString(key) {
			log.Warn("dropping malformed anforderung ID from mapping", "key", key)
			continue
		}
		out[key] = value
	}
	return out
}

func mappingSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"mapping": map[string]any{
				"type":                 "object",
				"additionalProperties": map[string]any{"type": "string"},
			},
			"unmapped_gpp": map[string]any{
				"type":  "array",
				"items": map[string]any{"type": "string"},
			},
			"unmapped_ed2023": map[string]any{
				"type":  "array",
				"items": map[string]any{"type": "string"},
			},
		},
		"required":             []any{"mapping", "unmapped_gpp", "unmapped_ed2023"},
		"additionalProperties": false,
	}
}
