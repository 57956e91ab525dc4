// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package catalog

import (
	"log/slog"
	"sort"
	"strings"
)

// Property and part names the flattener keys on.
const (
	propAltIdentifier  = "alt-identifier"
	propTargetObjects  = "target_objects"
	classTagUnassigned = "ISMS"
)

// FlatControl is one flattened G++ control, keyed by its alternate
// identifier. ID is the control's own catalog identifier; AltID the
// stable alternate identifier used as map key.
type FlatControl struct {
	ID    string
	AltID string
	Class string
	Title string
	Prose string
}

// FlatCatalog maps a class tag (a target-object designator, or "ISMS"
// for controls without one) to the controls carrying that tag, keyed by
// alternate identifier.
type FlatCatalog map[string]map[string]FlatControl

// Flatten walks the whole catalog and indexes every control that
// carries an alt-identifier property under its class tags.
//
// A control's class tag comes from the first "target_objects" property
// found on its parts; controls without one are filed under "ISMS". A
// tag value may name several target objects separated by commas; the
// control is indexed under each. Controls missing an alt-identifier are
// skipped (logged at debug), but their nested controls are still
// visited.
func Flatten(cat *Catalog, log *slog.Logger) FlatCatalog {
	if log == nil {
		log = slog.Default()
	}
	out := make(FlatCatalog)

	// Explicit work stack instead of recursion; catalog nesting depth
	// is author-controlled input.
	type frame struct {
		groups   []Group
		controls []Control
	}
	stack := []frame{{groups: cat.Groups}}

	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		for _, g := range f.groups {
			stack = append(stack, frame{groups: g.Groups, controls: g.Controls})
		}
		for _, c := range f.controls {
			if len(c.Controls) > 0 {
				stack = append(stack, frame{controls: c.Controls})
			}
			altID, ok := FindProp(c.Props, propAltIdentifier)
			if !ok || altID == "" {
				log.Debug("control has no alternate identifier, skipping",
					"control_id", c.ID)
				continue
			}
			fc := FlatControl{
				ID:    c.ID,
				AltID: altID,
				Class: c.Class,
				Title: string(c.Title),
				Prose: controlProse(c),
			}
			for _, tag := range classTags(c) {
				if out[tag] == nil {
					out[tag] = make(map[string]FlatControl)
				}
				// Duplicate alternate identifiers within a tag:
				// last occurrence wins.
				out[tag][altID] = fc
			}
		}
	}
	return out
}

// classTags extracts the target-object designators of a control. The
// first target_objects property found on any part wins; its value is
// split on commas. No property at all files the control under ISMS.
func classTags(c Control) []string {
	for _, part := range c.Parts {
		if v, ok := FindProp(part.Props, propTargetObjects); ok {
			var tags []string
			for _, t := range strings.Split(v, ",") {
				if t = strings.TrimSpace(t); t != "" {
					tags = append(tags, t)
				}
			}
			if len(tags) > 0 {
				return tags
			}
		}
	}
	return []string{classTagUnassigned}
}

// controlProse joins the statement prose of a control's parts. Most
// controls have exactly one statement part.
func controlProse(c Control) string {
	var chunks []string
	for _, p := range c.Parts {
		if p.Name == "statement" && p.Prose != "" {
			chunks = append(chunks, p.Prose)
		}
	}
	return strings.Join(chunks, "\n")
}

// Tags returns the class tags present, sorted.
func (fc FlatCatalog) Tags() []string {
	tags := make([]string, 0, len(fc))
	for t := range fc {
		tags = append(tags, t)
	}
	sort.Strings(tags)
	return tags
}

// ControlIDsByTag returns, per class tag, the sorted catalog IDs of the
// controls filed under it. This is the direct-controls input for
// inheritance resolution; the IDs are the ones the context tables key
// their rows by.
func (fc FlatCatalog) ControlIDsByTag() map[string][]string {
	out := make(map[string][]string, len(fc))
	for tag, controls := range fc {
		ids := make([]string, 0, len(controls))
		for _, c := range controls {
			ids = append(ids, c.ID)
		}
		sort.Strings(ids)
		out[tag] = ids
	}
	return out
}

// TextsByControlID flattens the catalog into control ID to prompt text
// (title plus statement prose), for the metadata stage.
func (fc FlatCatalog) TextsByControlID() map[string]string {
	out := make(map[string]string)
	for _, controls := range fc {
		for _, c := range controls {
			if c.ID == "" {
				continue
			}
			text := c.Title
			if c.Prose != "" {
				text += "\n\n" + c.Prose
			}
			out[c.ID] = text
		}
	}
	return out
}

// Lookup finds a control by alternate identifier across all tags.
func (fc FlatCatalog) Lookup(altID string) (FlatControl, bool) {
	for _, controls := range fc {
		if c, ok := controls[altID]; ok {
			return c, true
		}
	}
	return FlatControl{}, false
}
