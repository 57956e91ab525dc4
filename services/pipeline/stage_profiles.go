// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package pipeline

import (
	"context"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/AleutianAI/oscal-crosswalk/pkg/config"
	"github.com/AleutianAI/oscal-crosswalk/pkg/mdtable"
	"github.com/AleutianAI/oscal-crosswalk/services/hierarchy"
)

// OSCAL document constants shared by the profiles and components
// stages.
const (
	oscalVersion   = "1.1.3"
	oscalNamespace = "https://csrc.nist.gov/ns/oscal"
	gppCatalogHref = "https://raw.githubusercontent.com/BSI-Bund/Stand-der-Technik-Bibliothek/refs/heads/main/Kompendien/Grundschutz%2B%2B-Kompendium/Grundschutz%2B%2B-Kompendium.json"
)

// profilesStage assembles one OSCAL profile per Zielobjekt plus the
// ISMS profile covering the process controls.
func profilesStage() Stage {
	return Stage{
		Name: "profiles",
		Outputs: func(cfg *config.Config) []string {
			// The per-Zielobjekt profile set is data-dependent; the ISMS
			// profile doubles as the stage's completion marker.
			return []string{
				cfg.ProzessbausteineControlsPath(),
				filepath.Join(cfg.ProfilesDir(), "ISMS_profile.json"),
			}
		},
		Run: runProfiles,
	}
}

// oscalProfile is the subset of the OSCAL profile model this pipeline
// emits.
type oscalProfile struct {
	Profile struct {
		UUID     string `json:"uuid"`
		Metadata struct {
			Title        string `json:"title"`
			Version      string `json:"version"`
			OSCALVersion string `json:"oscal-version"`
		} `json:"metadata"`
		Import struct {
			Href string `json:"href"`
		} `json:"import"`
		Include struct {
			WithIDs []string `json:"with-ids"`
		} `json:"include"`
	} `json:"profile"`
}

func newProfile(title string, controlIDs []string) oscalProfile {
	var p oscalProfile
	p.Profile.UUID = uuid.NewString()
	p.Profile.Metadata.Title = title
	p.Profile.Metadata.Version = "1"
	p.Profile.Metadata.OSCALVersion = oscalVersion
	p.Profile.Import.Href = gppCatalogHref
	p.Profile.Include.WithIDs = controlIDs
	return p
}

func runProfiles(_ context.Context, env *Env) error {
	// ISMS profile from the process-controls table.
	ismsMD, err := env.Store.LoadText(env.Cfg.GPPStrippedISMSPath())
	if err != nil {
		return err
	}
	ismsControlIDs := mdtable.IDs(ismsMD)
	if err := env.Store.SaveJSON(env.Cfg.ProzessbausteineControlsPath(), prozessbausteineDoc{
		ISMSControls: ismsControlIDs,
	}); err != nil {
		return err
	}
	ismsPath := filepath.Join(env.Cfg.ProfilesDir(), "ISMS_profile.json")
	if err := env.Store.SaveJSON(ismsPath, newProfile("ISMS_profile", ismsControlIDs)); err != nil {
		return err
	}
	env.Log.Info("generated ISMS profile",
		"controls", len(ismsControlIDs), "path", ismsPath)

	// One profile per Zielobjekt with a resolved control set.
	var controlsMap zielobjektControlsDoc
	if err := env.Store.LoadJSON(env.Cfg.ZielobjektControlsPath(), &controlsMap); err != nil {
		return err
	}
	reg, err := hierarchy.LoadZielobjekte(env.Cfg.ZielobjekteCSVPath(), env.Log)
	if err != nil {
		return err
	}

	written := 0
	for _, zielobjektID := range sortedKeys(controlsMap.ZielobjektControlsMap) {
		controlIDs := controlsMap.ZielobjektControlsMap[zielobjektID]
		name := reg.NameOf(zielobjektID)
		path := filepath.Join(env.Cfg.ProfilesDir(), sanitizeFilename(name)+"_profile.json")
		if err := env.Store.SaveJSON(path, newProfile(name+"_profile", controlIDs)); err != nil {
			return err
		}
		written++
	}
	env.Log.Info("generated zielobjekt profiles", "count", written)
	return nil
}
