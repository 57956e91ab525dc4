// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package catalog models the nested OSCAL-shaped control catalogs and
// flattens them into the registries the mapping stages consume.
//
// The source documents are decoded into explicit structs at the
// boundary; anything the pipeline does not read is dropped during
// decoding rather than carried around as untyped maps.
package catalog

import (
	"encoding/json"
	"fmt"
	"os"
)

// Title tolerates the source catalogs' habit of encoding titles either
// as a plain string or as a one-element array of strings.
type Title string

// UnmarshalJSON accepts a string or a string array (first element wins).
func (t *Title) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*t = Title(s)
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		if len(list) > 0 {
			*t = Title(list[0])
		} else {
			*t = ""
		}
		return nil
	}
	// Unexpected shape: tolerate it as an empty title, the record is
	// still usable by identifier.
	*t = ""
	return nil
}

// Property is a name/value pair attached to controls and parts.
type Property struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Part is a named fragment of a control (statements, guidance, ...).
// Parts nest and may carry their own properties.
type Part struct {
	Name  string     `json:"name"`
	Class string     `json:"class"`
	Title Title      `json:"title"`
	Prose string     `json:"prose"`
	Props []Property `json:"props"`
	Parts []Part     `json:"parts"`
}

// Control is a leaf security requirement. Controls may contain nested
// controls.
type Control struct {
	ID       string     `json:"id"`
	Class    string     `json:"class"`
	Title    Title      `json:"title"`
	Props    []Property `json:"props"`
	Parts    []Part     `json:"parts"`
	Controls []Control  `json:"controls"`
}

// Group is a catalog grouping; groups nest and may hold controls.
type Group struct {
	ID       string    `json:"id"`
	Class    string    `json:"class"`
	Title    Title     `json:"title"`
	Parts    []Part    `json:"parts"`
	Groups   []Group   `json:"groups"`
	Controls []Control `json:"controls"`
}

// Catalog is the top-level group container.
type Catalog struct {
	Groups []Group `json:"groups"`
}

// Document wraps the single well-known top-level key of a catalog file.
type Document struct {
	Catalog Catalog `json:"catalog"`
}

// LoadDocument decodes a catalog file. An empty catalog (no groups) is
// a configuration error: every stage that loads a catalog needs data.
func LoadDocument(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode catalog %s: %w", path, err)
	}
	if len(doc.Catalog.Groups) == 0 {
		return nil, fmt.Errorf("catalog %s is empty or missing the catalog key", path)
	}
	return &doc, nil
}

// FindProp returns the value of the first property with the given name.
func FindProp(props []Property, name string) (string, bool) {
	for _, p := range props {
		if p.Name == name {
			return p.Value, true
		}
	}
	return "", false
}

// StatementProse returns the prose of the first part named "statement".
func StatementProse(parts []Part) string {
	for _, p := range parts {
		if p.Name == "statement" {
			return p.Prose
		}
	}
	return ""
}
