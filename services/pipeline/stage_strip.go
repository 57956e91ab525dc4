// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package pipeline

import (
	"context"

	"github.com/AleutianAI/oscal-crosswalk/pkg/config"
	"github.com/AleutianAI/oscal-crosswalk/pkg/mdtable"
	"github.com/AleutianAI/oscal-crosswalk/services/catalog"
)

// proseCellLimit caps the description cell so the context tables stay
// compact enough to embed in prompts.
const proseCellLimit = 150

// stripStage reduces both catalogs to four markdown tables: the G++
// controls with and without target objects, and the BSI Anforderungen
// of allowed main groups versus the process-oriented rest.
func stripStage() Stage {
	return Stage{
		Name: "strip",
		Outputs: func(cfg *config.Config) []string {
			return []string{
				cfg.GPPStrippedPath(),
				cfg.GPPStrippedISMSPath(),
				cfg.BSIStrippedPath(),
				cfg.BSIStrippedISMSPath(),
			}
		},
		Run: runStrip,
	}
}

func runStrip(_ context.Context, env *Env) error {
	if err := stripGPP(env); err != nil {
		return err
	}
	return stripBSI(env)
}

func stripGPP(env *Env) error {
	doc, err := catalog.LoadDocument(env.Cfg.GPPKompendiumPath())
	if err != nil {
		return err
	}
	flat := catalog.Flatten(&doc.Catalog, env.Log)

	header := []string{"ID", "name", "description", "UUID (only for G++ controls!)"}
	withTargets := &mdtable.Table{Header: header}
	isms := &mdtable.Table{Header: header}

	// Deterministic row order: tags sorted, controls sorted within each
	// tag. A control tagged for several target objects appears once per
	// tag in the source map; deduplicate by alternate identifier.
	seen := make(map[string]bool)
	for _, tag := range flat.Tags() {
		controls := flat[tag]
		for _, altID := range sortedKeys(controls) {
			if seen[altID] {
				continue
			}
			seen[altID] = true
			c := controls[altID]
			dst := withTargets
			if tag == "ISMS" {
				dst = isms
			}
			dst.AddRow(
				mdtable.Cell(c.ID, 0),
				mdtable.Cell(c.Title, 0),
				mdtable.Cell(c.Prose, proseCellLimit),
				c.AltID,
			)
		}
	}

	if err := env.Store.SaveText(env.Cfg.GPPStrippedPath(), withTargets.Render()); err != nil {
		return err
	}
	if err := env.Store.SaveText(env.Cfg.GPPStrippedISMSPath(), isms.Render()); err != nil {
		return err
	}
	env.Log.Info("stripped G++ kompendium",
		"with_target_objects", len(withTargets.Rows), "isms", len(isms.Rows))
	return nil
}

func stripBSI(env *Env) error {
	doc, err := catalog.LoadDocument(env.Cfg.BSICatalogPath())
	if err != nil {
		return err
	}
	allowed, filtered := catalog.ParseBausteine(&doc.Catalog, env.Log)

	allowedSet := make(map[string]bool, len(catalog.AllowedMainGroups))
	for _, g := range catalog.AllowedMainGroups {
		allowedSet[g] = true
	}

	header := []string{"ID", "name", "description"}
	allowedTable := &mdtable.Table{Header: header}
	ismsTable := &mdtable.Table{Header: header}

	for _, b := range append(allowed, filtered...) {
		for _, c := range b.Controls {
			dst := ismsTable
			if allowedSet[catalog.MainGroup(c.ID)] {
				dst = allowedTable
			}
			dst.AddRow(
				mdtable.Cell(c.ID, 0),
				mdtable.Cell(c.Title, 0),
				mdtable.Cell(c.Prose, proseCellLimit),
			)
		}
	}

	if err := env.Store.SaveText(env.Cfg.BSIStrippedPath(), allowedTable.Render()); err != nil {
		return err
	}
	if err := env.Store.SaveText(env.Cfg.BSIStrippedISMSPath(), ismsTable.Render()); err != nil {
		return err
	}
	env.Log.Info("stripped BSI catalog",
		"allowed", len(allowedTable.Rows), "isms", len(ismsTable.Rows))
	return nil
}
