// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package pipeline

// Artifact documents shared between stages. Field names are part of the
// on-disk format; downstream tooling consumes these files.

// zielobjektControlsDoc is the flatten stage's output: every Zielobjekt
// UUID mapped to its full (inherited) set of G++ control IDs, sorted.
type zielobjektControlsDoc struct {
	ZielobjektControlsMap map[string][]string `json:"zielobjekt_controls_map"`
}

// bausteinZielobjektDoc is the entity-matching output: each matched
// Baustein ID mapped to the UUID of its Zielobjekt.
type bausteinZielobjektDoc struct {
	BausteinZielobjektMap map[string]string `json:"baustein_zielobjekt_map"`
}

// MappingRecord is the final mapping unit for one Zielobjekt/Baustein
// pair.
type MappingRecord struct {
	ZielobjektName string            `json:"zielobjekt_name"`
	BausteinID     string            `json:"baustein_id"`
	Mapping        map[string]string `json:"mapping"`
	UnmappedGPP    []string          `json:"unmapped_gpp"`
	UnmappedEd2023 []string          `json:"unmapped_ed2023"`
}

// SubRequirement is one decomposed fragment of an Anforderung.
type SubRequirement struct {
	ID          string `json:"id"`
	Description string `json:"description"`
}

// DecomposedAnforderung groups the sub-requirements of one original
// Anforderung.
type DecomposedAnforderung struct {
	OriginalID      string           `json:"original_id"`
	SubRequirements []SubRequirement `json:"sub_requirements"`
}

type decomposedDoc struct {
	DecomposedAnforderungen []DecomposedAnforderung `json:"decomposed_anforderungen"`
}

// MetadataEntry carries the regenerated maturity/phase metadata for one
// sub-requirement-to-control pair.
type MetadataEntry struct {
	SubRequirementID string `json:"sub_requirement_id"`
	GPPControlID     string `json:"gpp_control_id"`
	MaturityLevel    string `json:"maturity_level"`
	Phase            string `json:"phase"`
}

type metadataDoc struct {
	GeneratedMetadata []MetadataEntry `json:"generated_metadata"`
}

// prozessbausteineDoc records the ISMS control IDs that feed the ISMS
// profile.
type prozessbausteineDoc struct {
	ISMSControls []string `json:"isms_controls"`
}
