// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package mdtable renders and filters the pipe-delimited markdown
// tables used as AI context windows.
//
// The tables are produced by the strip stage and consumed, row-filtered,
// by the mapping stage. The grammar is fixed: a header row, a separator
// row, then one data row per control, with the identifier in the first
// column. Filtering never re-parses cell contents beyond splitting on
// pipes, so a stale table simply yields no rows rather than bad rows.
package mdtable

import "strings"

// Table is a markdown table under construction.
type Table struct {
	Header []string
	Rows   [][]string
}

// AddRow appends a data row. Cells are rendered as-is; callers are
// expected to have sanitized them (see Cell).
func (t *Table) AddRow(cells ...string) {
	t.Rows = append(t.Rows, cells)
}

// Render produces the markdown representation: header, separator, rows.
func (t *Table) Render() string {
	var b strings.Builder
	writeRow(&b, t.Header)
	sep := make([]string, len(t.Header))
	for i := range sep {
		sep[i] = "---"
	}
	writeRow(&b, sep)
	for _, row := range t.Rows {
		writeRow(&b, row)
	}
	return strings.TrimSuffix(b.String(), "\n")
}

func writeRow(b *strings.Builder, cells []string) {
	b.WriteString("|")
	for _, c := range cells {
		b.WriteString(" ")
		b.WriteString(c)
		b.WriteString(" |")
	}
	b.WriteString("\n")
}

// Cell flattens a value into a single table cell: newlines become
// spaces and the result is truncated to max runes (0 = no limit).
func Cell(s string, max int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "|", "/")
	if max > 0 {
		runes := []rune(s)
		if len(runes) > max {
			s = string(runes[:max])
		}
	}
	return s
}

// Filter keeps only the data rows whose first-column identifier
// satisfies keep, preserving the header and separator.
//
// Returns "" when the content has no recognizable header/separator or
// when no row survives — the caller treats an empty result as "no
// context for this unit" and skips it.
func Filter(content string, keep func(id string) bool) string {
	lines := strings.Split(content, "\n")

	var header, separator string
	var rows []string
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if !strings.HasPrefix(trimmed, "|") {
			continue
		}
		switch {
		case header == "":
			header = line
		case separator == "":
			separator = line
		default:
			cells := splitRow(trimmed)
			if len(cells) > 0 && keep(cells[0]) {
				rows = append(rows, line)
			}
		}
	}

	if header == "" || separator == "" || len(rows) == 0 {
		return ""
	}
	return strings.Join(append([]string{header, separator}, rows...), "\n")
}

// IDs extracts the first-column identifiers of all data rows.
func IDs(content string) []string {
	var ids []string
	seen := 0
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if !strings.HasPrefix(trimmed, "|") {
			continue
		}
		seen++
		if seen <= 2 {
			// Header and separator.
			continue
		}
		if cells := splitRow(trimmed); len(cells) > 0 && cells[0] != "" {
			ids = append(ids, cells[0])
		}
	}
	return ids
}

// splitRow splits a table row into trimmed cells, dropping the empty
// leading/trailing fragments produced by the outer pipes.
func splitRow(line string) []string {
	parts := strings.Split(line, "|")
	if len(parts) < 3 {
		return nil
	}
	cells := make([]string, 0, len(parts)-2)
	for _, p := range parts[1 : len(parts)-1] {
		cells = append(cells, strings.TrimSpace(p))
	}
	return cells
}
