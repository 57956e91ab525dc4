// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package pipeline

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/oscal-crosswalk/pkg/config"
	"github.com/AleutianAI/oscal-crosswalk/services/catalog"
	"github.com/AleutianAI/oscal-crosswalk/services/hierarchy"
	"github.com/AleutianAI/oscal-crosswalk/services/matcher"
)

// matchBausteineStage assigns every allowed BSI Baustein to its best
// G++ Zielobjekt via the entity matcher. Bausteine the model cannot
// place are left out of the map rather than guessed.
func matchBausteineStage() Stage {
	return Stage{
		Name: "match-bausteine",
		Outputs: func(cfg *config.Config) []string {
			return []string{cfg.BausteinZielobjektPath()}
		},
		Run: runMatchBausteine,
	}
}

func runMatchBausteine(ctx context.Context, env *Env) error {
	doc, err := catalog.LoadDocument(env.Cfg.BSICatalogPath())
	if err != nil {
		return err
	}
	bausteine, _ := catalog.ParseBausteine(&doc.Catalog, env.Log)

	reg, err := hierarchy.LoadZielobjekte(env.Cfg.ZielobjekteCSVPath(), env.Log)
	if err != nil {
		return err
	}
	candidates := make([]matcher.Candidate, 0, reg.Len())
	for _, id := range reg.IDs() {
		z, _ := reg.Get(id)
		candidates = append(candidates, matcher.Candidate{
			ID:         z.ID,
			Name:       z.Name,
			Definition: z.Definition,
		})
	}

	if env.Cfg.TestMode && len(bausteine) > config.DefaultTestTruncationLimit {
		bausteine = bausteine[:config.DefaultTestTruncationLimit]
		env.Log.Info("test mode, truncated baustein work set",
			"count", len(bausteine))
	}

	ai, err := env.AI()
	if err != nil {
		return err
	}
	m := matcher.New(ai, env.Log)

	// One task per Baustein; the gateway's semaphore bounds the real
	// provider concurrency.
	var mu sync.Mutex
	matched := make(map[string]string)
	g, gctx := errgroup.WithContext(ctx)
	for _, b := range bausteine {
		b := b
		g.Go(func() error {
			zielobjektID, err := m.Match(gctx, b, candidates, env.Prompts.BausteinZielobjektInstruction)
			if err != nil {
				return err
			}
			if zielobjektID == "" {
				return nil
			}
			mu.Lock()
			matched[b.ID] = zielobjektID
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	env.Log.Info("matched bausteine to zielobjekte",
		"matched", len(matched), "total", len(bausteine))
	return env.Store.SaveJSON(env.Cfg.BausteinZielobjektPath(), bausteinZielobjektDoc{
		BausteinZielobjektMap: matched,
	})
}
