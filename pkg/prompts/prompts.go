// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package prompts holds the named prompt templates and the persona
// message used for all AI calls.
//
// A default set is compiled into the binary; PROMPT_CONFIG_PATH may
// point at a YAML file overriding it, so prompt tuning does not require
// a rebuild.
package prompts

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed prompts.yaml
var defaultPrompts []byte

// Set is the prompt-template document: one named template per AI call
// site plus the shared persona/system message.
type Set struct {
	SystemMessage                   string `yaml:"system_message"`
	BausteinZielobjektInstruction   string `yaml:"baustein_zielobjekt_matching_instruction"`
	AnforderungKontrolleInstruction string `yaml:"anforderung_to_kontrolle_1_1_prompt"`
	DecompositionPrompt             string `yaml:"decomposition_prompt"`
	MetadataGenerationPrompt        string `yaml:"metadata_generation_prompt"`
}

// Default returns the embedded prompt set.
func Default() (*Set, error) {
	return parse(defaultPrompts)
}

// LoadFile reads a prompt set from a YAML file.
func LoadFile(path string) (*Set, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read prompt config %s: %w", path, err)
	}
	return parse(data)
}

// Load returns the set from PROMPT_CONFIG_PATH when set, otherwise the
// embedded defaults.
func Load() (*Set, error) {
	if path := os.Getenv("PROMPT_CONFIG_PATH"); path != "" {
		return LoadFile(path)
	}
	return Default()
}

func parse(data []byte) (*Set, error) {
	var s Set
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse prompt config: %w", err)
	}
	if strings.TrimSpace(s.SystemMessage) == "" {
		return nil, fmt.Errorf("prompt config: system_message is empty")
	}
	return &s, nil
}

// Expand substitutes {name} placeholders in a template.
func Expand(template string, vars map[string]string) string {
	pairs := make([]string, 0, len(vars)*2)
	for name, value := range vars {
		pairs = append(pairs, "{"+name+"}", value)
	}
	return strings.NewReplacer(pairs...).Replace(template)
}
