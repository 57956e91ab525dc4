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
	"github.com/AleutianAI/oscal-crosswalk/services/catalog"
	"github.com/AleutianAI/oscal-crosswalk/services/hierarchy"
)

// flattenStage computes the deterministic Zielobjekt-to-controls map:
// the G++ catalog flattened by target object, then control sets
// propagated down the Zielobjekt parent hierarchy.
func flattenStage() Stage {
	return Stage{
		Name: "flatten",
		Outputs: func(cfg *config.Config) []string {
			return []string{cfg.ZielobjektControlsPath()}
		},
		Run: runFlatten,
	}
}

func runFlatten(_ context.Context, env *Env) error {
	doc, err := catalog.LoadDocument(env.Cfg.GPPKompendiumPath())
	if err != nil {
		return err
	}
	flat := catalog.Flatten(&doc.Catalog, env.Log)

	reg, err := hierarchy.LoadZielobjekte(env.Cfg.ZielobjekteCSVPath(), env.Log)
	if err != nil {
		return err
	}

	resolver := hierarchy.NewResolver(reg, flat.ControlIDsByTag(), env.Log)
	controlsByZielobjekt := resolver.ResolveAll()

	total := 0
	for _, ids := range controlsByZielobjekt {
		total += len(ids)
	}
	env.Log.Info("resolved zielobjekt control sets",
		"zielobjekte", len(controlsByZielobjekt), "control_assignments", total)

	return env.Store.SaveJSON(env.Cfg.ZielobjektControlsPath(), zielobjektControlsDoc{
		ZielobjektControlsMap: controlsByZielobjekt,
	})
}
