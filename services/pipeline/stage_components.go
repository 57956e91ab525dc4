// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"

	"github.com/AleutianAI/oscal-crosswalk/services/catalog"
)

// componentsStage assembles one OSCAL component definition per matched
// Baustein from its mapping record.
func componentsStage() Stage {
	return Stage{
		Name: "components",
		// The output set is data-dependent; always run and rely on the
		// upstream artifacts for idempotency of content.
		Run: runComponents,
	}
}

// Minimal OSCAL component-definition model.

type oscalComponentDefinition struct {
	ComponentDefinition struct {
		UUID     string `json:"uuid"`
		Metadata struct {
			Title        string `json:"title"`
			LastModified string `json:"last-modified"`
			Version      string `json:"version"`
			OSCALVersion string `json:"oscal-version"`
		} `json:"metadata"`
		Components []oscalComponent `json:"components"`
	} `json:"component-definition"`
}

type oscalComponent struct {
	UUID                   string                 `json:"uuid"`
	Type                   string                 `json:"type"`
	Title                  string                 `json:"title"`
	Description            string                 `json:"description"`
	Props                  []oscalProp            `json:"props,omitempty"`
	ControlImplementations []oscalControlImplSpec `json:"control-implementations"`
}

type oscalProp struct {
	Name  string `json:"name"`
	NS    string `json:"ns,omitempty"`
	Value string `json:"value"`
}

type oscalControlImplSpec struct {
	UUID                    string         `json:"uuid"`
	Source                  string         `json:"source"`
	Description             string         `json:"description"`
	ImplementedRequirements []oscalImplReq `json:"implemented-requirements"`
}

type oscalImplReq struct {
	UUID        string `json:"uuid"`
	ControlID   string `json:"control-id"`
	Description string `json:"description"`
}

func runComponents(_ context.Context, env *Env) error {
	var bausteinMap bausteinZielobjektDoc
	if err := env.Store.LoadJSON(env.Cfg.BausteinZielobjektPath(), &bausteinMap); err != nil {
		return err
	}
	records := make(map[string]MappingRecord)
	if err := env.Store.LoadJSON(env.Cfg.ControlsAnforderungenPath(), &records); err != nil {
		return err
	}

	doc, err := catalog.LoadDocument(env.Cfg.BSICatalogPath())
	if err != nil {
		return err
	}
	allowed, filtered := catalog.ParseBausteine(&doc.Catalog, env.Log)
	titles := make(map[string]string, len(allowed)+len(filtered))
	for _, b := range append(allowed, filtered...) {
		titles[b.ID] = b.Title
	}

	recordByBaustein := make(map[string]MappingRecord, len(records))
	for _, r := range records {
		recordByBaustein[r.BausteinID] = r
	}

	written := 0
	for _, bausteinID := range sortedKeys(bausteinMap.BausteinZielobjektMap) {
		record, ok := recordByBaustein[bausteinID]
		if !ok {
			env.Log.Warn("no mapping record for baustein, skipping component",
				"baustein", bausteinID)
			continue
		}
		def := buildComponentDefinition(bausteinID, titles[bausteinID], record)
		name := sanitizeFilename(bausteinID + "_" + titles[bausteinID])
		path := filepath.Join(env.Cfg.ComponentsDir(), name+"-component.json")
		if err := env.Store.SaveJSON(path, def); err != nil {
			return err
		}
		written++
	}
	env.Log.Info("generated component definitions", "count", written)
	return nil
}

func buildComponentDefinition(bausteinID, title string, record MappingRecord) oscalComponentDefinition {
	reqs := make([]oscalImplReq, 0, len(record.Mapping))
	for _, anforderungID := range sortedKeys(record.Mapping) {
		gppControlID := record.Mapping[anforderungID]
		reqs = append(reqs, oscalImplReq{
			UUID:      uuid.NewString(),
			ControlID: gppControlID,
			Description: fmt.Sprintf("Implementation for %s based on BSI %s",
				gppControlID, anforderungID),
		})
	}

	component := oscalComponent{
		UUID:  uuid.NewString(),
		Type:  componentType(bausteinID),
		Title: strings.TrimSpace(bausteinID + " " + title),
		Description: fmt.Sprintf(
			"This component represents the implementation of all controls for Baustein %s.",
			bausteinID),
		Props: []oscalProp{
			{Name: "source-baustein", NS: oscalNamespace, Value: bausteinID},
			{Name: "zielobjekt", NS: oscalNamespace, Value: record.ZielobjektName},
		},
		ControlImplementations: []oscalControlImplSpec{{
			UUID:   uuid.NewString(),
			Source: gppCatalogHref,
			Description: fmt.Sprintf("Implementation for all controls in Baustein %s",
				bausteinID),
			ImplementedRequirements: reqs,
		}},
	}

	var def oscalComponentDefinition
	def.ComponentDefinition.UUID = uuid.NewString()
	def.ComponentDefinition.Metadata.Title = strings.TrimSpace(bausteinID + " " + title)
	def.ComponentDefinition.Metadata.LastModified = time.Now().UTC().Format(time.RFC3339)
	def.ComponentDefinition.Metadata.Version = "1.0.0"
	def.ComponentDefinition.Metadata.OSCALVersion = oscalVersion
	def.ComponentDefinition.Components = []oscalComponent{component}
	return def
}

// componentType maps a Baustein's main group to an OSCAL component
// type.
func componentType(bausteinID string) string {
	switch catalog.MainGroup(bausteinID) {
	case "NET":
		return "interconnection"
	case "APP", "IND":
		return "software"
	case "SYS":
		return "hardware"
	case "INF":
		return "physical"
	case "ISMS", "ORP", "CON", "OPS", "DER":
		return "policy"
	default:
		return "service"
	}
}

// sanitizeFilename keeps letters, digits, spaces and underscores, then
// collapses spaces to underscores.
func sanitizeFilename(name string) string {
	var b strings.Builder
	for _, r := range name {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == ' ' || r == '_' || r == '.' {
			b.WriteRune(r)
		}
	}
	return strings.ReplaceAll(strings.TrimSpace(b.String()), " ", "_")
}
