// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package catalog

import (
	"log/slog"
	"regexp"
	"strings"
)

// AllowedMainGroups are the top-level BSI group IDs whose Bausteine are
// mapped; all others (ISMS, ORP, CON, OPS, DER) describe process and
// organisational controls without a concrete target object.
var AllowedMainGroups = []string{"SYS", "INF", "IND", "APP", "NET"}

// AnforderungIDPattern accepts well-formed BSI requirement identifiers
// such as "APP.1.A1" or group IDs like "SYS.2.1".
var AnforderungIDPattern = regexp.MustCompile(`^[A-Z]{2,}(\.\d+)+(\.A\d+)?$`)

const (
	classBaustein        = "baustein"
	classMaturityDefined = "maturity-level-defined"
)

// ReducedControl is one BSI Anforderung stripped down to the fields the
// AI stages need. Prose is the statement of the maturity-level-defined
// part; empty when the source control lacks one.
type ReducedControl struct {
	ID    string
	Title string
	Prose string
}

// Baustein is one BSI requirement group with its Anforderungen.
type Baustein struct {
	ID          string
	Title       string
	Description string
	Controls    []ReducedControl
}

// ParseBausteine extracts every group of class "baustein" from the BSI
// catalog, split into the Bausteine whose main group is in
// AllowedMainGroups and the rest. Document order is preserved in both
// slices.
func ParseBausteine(cat *Catalog, log *slog.Logger) (allowed, filtered []Baustein) {
	if log == nil {
		log = slog.Default()
	}
	allowedSet := make(map[string]bool, len(AllowedMainGroups))
	for _, g := range AllowedMainGroups {
		allowedSet[g] = true
	}

	for _, mainGroup := range cat.Groups {
		for _, group := range mainGroup.Groups {
			if group.Class != classBaustein {
				continue
			}
			b := parseBaustein(group)
			if allowedSet[mainGroup.ID] {
				allowed = append(allowed, b)
			} else {
				filtered = append(filtered, b)
			}
		}
	}
	log.Info("parsed BSI Bausteine",
		"allowed", len(allowed), "filtered_out", len(filtered))
	return allowed, filtered
}

func parseBaustein(group Group) Baustein {
	b := Baustein{
		ID:          group.ID,
		Title:       string(group.Title),
		Description: groupDescription(group),
	}
	for _, c := range group.Controls {
		b.Controls = append(b.Controls, ReducedControl{
			ID:    c.ID,
			Title: string(c.Title),
			Prose: maturityStatement(c),
		})
	}
	return b
}

// groupDescription is the first non-empty part prose of the Baustein
// group, usually its introduction text.
func groupDescription(group Group) string {
	for _, p := range group.Parts {
		if prose := strings.TrimSpace(p.Prose); prose != "" {
			return prose
		}
	}
	return ""
}

// maturityStatement digs the requirement text out of the nested
// maturity-level-defined part.
func maturityStatement(c Control) string {
	for _, part := range c.Parts {
		if part.Class != classMaturityDefined {
			continue
		}
		return StatementProse(part.Parts)
	}
	return ""
}

// AnforderungenTexts flattens Bausteine into a map from Anforderung ID
// to its prompt text (title plus requirement prose). Controls without
// prose are skipped; there is nothing to decompose.
func AnforderungenTexts(bausteine []Baustein) map[string]string {
	out := make(map[string]string)
	for _, b := range bausteine {
		for _, c := range b.Controls {
			if c.Prose == "" {
				continue
			}
			out[c.ID] = c.Title + "\n\n" + c.Prose
		}
	}
	return out
}

// MainGroup returns the leading segment of a BSI identifier, e.g.
// "APP" for "APP.1.A1".
func MainGroup(id string) string {
	if i := strings.IndexByte(id, '.'); i > 0 {
		return id[:i]
	}
	return id
}
