// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package hierarchy loads the Zielobjekt tree and resolves control
// inheritance along parent links.
package hierarchy

import (
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/google/uuid"
)

// CSV column headers of the Zielobjekte export.
const (
	colUUID       = "GART_Objekt_UUID"
	colName       = "Zielobjekt"
	colDefinition = "Definition"
	colParentUUID = "ChildOfUUID"
)

// Zielobjekt is one target object from the G++ hierarchy export.
type Zielobjekt struct {
	ID         string
	Name       string
	Definition string
	// ParentID is empty for root objects.
	ParentID string
}

// Registry indexes Zielobjekte by ID and preserves file order.
type Registry struct {
	byID  map[string]Zielobjekt
	order []string
}

// LoadZielobjekte reads the Zielobjekte CSV. Column positions are
// resolved from the header row, so reordered exports keep working.
// Rows without a UUID are skipped with a warning; malformed UUIDs are
// tolerated but flagged, the pipeline treats IDs as opaque strings.
func LoadZielobjekte(path string, log *slog.Logger) (*Registry, error) {
	if log == nil {
		log = slog.Default()
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open zielobjekte csv %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read zielobjekte csv %s: %w", path, err)
	}
	if len(records) < 2 {
		return nil, fmt.Errorf("zielobjekte csv %s has no data rows", path)
	}

	idx := make(map[string]int, len(records[0]))
	for i, h := range records[0] {
		idx[strings.TrimSpace(h)] = i
	}
	for _, required := range []string{colUUID, colName} {
		if _, ok := idx[required]; !ok {
			return nil, fmt.Errorf("zielobjekte csv %s is missing column %q", path, required)
		}
	}

	field := func(row []string, col string) string {
		i, ok := idx[col]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	reg := &Registry{byID: make(map[string]Zielobjekt)}
	for n, row := range records[1:] {
		z := Zielobjekt{
			ID:         field(row, colUUID),
			Name:       field(row, colName),
			Definition: field(row, colDefinition),
			ParentID:   field(row, colParentUUID),
		}
		if z.ID == "" {
			log.Warn("zielobjekt row has no UUID, skipping", "row", n+2)
			continue
		}
		if _, err := uuid.Parse(z.ID); err != nil {
			log.Warn("zielobjekt UUID is not RFC 4122",
				"row", n+2, "uuid", z.ID)
		}
		if _, dup := reg.byID[z.ID]; dup {
			log.Warn("duplicate zielobjekt UUID, later row wins", "uuid", z.ID)
		} else {
			reg.order = append(reg.order, z.ID)
		}
		reg.byID[z.ID] = z
	}
	if len(reg.byID) == 0 {
		return nil, fmt.Errorf("zielobjekte csv %s contained no usable rows", path)
	}
	log.Info("loaded zielobjekte", "count", len(reg.byID), "path", path)
	return reg, nil
}

// NewRegistry builds a registry from already-parsed objects, mainly for
// tests and the resolver.
func NewRegistry(objects []Zielobjekt) *Registry {
	reg := &Registry{byID: make(map[string]Zielobjekt, len(objects))}
	for _, z := range objects {
		if _, dup := reg.byID[z.ID]; !dup {
			reg.order = append(reg.order, z.ID)
		}
		reg.byID[z.ID] = z
	}
	return reg
}

// Get returns the object with the given ID.
func (r *Registry) Get(id string) (Zielobjekt, bool) {
	z, ok := r.byID[id]
	return z, ok
}

// IDs returns all object IDs in file order.
func (r *Registry) IDs() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Len returns the number of registered objects.
func (r *Registry) Len() int { return len(r.byID) }

// NameOf returns the display name for an ID, or the ID itself when
// unknown.
func (r *Registry) NameOf(id string) string {
	if z, ok := r.byID[id]; ok {
		return z.Name
	}
	return id
}
