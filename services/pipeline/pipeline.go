// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package pipeline orchestrates the crosswalk generation stages.
//
// Each stage reads its inputs from the artifact store, does its work
// (some stages purely transform data, some call the AI gateway), and
// writes its output artifacts. Artifact existence is the idempotency
// unit: when every output of a stage already exists and the overwrite
// flag is unset, the stage is skipped. The first stage error aborts the
// run; there is no orchestrator-level retry, transient AI failures are
// already retried inside the gateway.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/AleutianAI/oscal-crosswalk/pkg/artifacts"
	"github.com/AleutianAI/oscal-crosswalk/pkg/config"
	"github.com/AleutianAI/oscal-crosswalk/pkg/prompts"
	"github.com/AleutianAI/oscal-crosswalk/services/gateway"
)

// RunAll selects every stage in dependency order.
const RunAll = "all"

// Stage is one named pipeline step.
type Stage struct {
	Name string

	// Outputs lists the artifacts whose joint existence lets the stage
	// be skipped. Empty means the stage always runs.
	Outputs func(cfg *config.Config) []string

	Run func(ctx context.Context, env *Env) error
}

// Env bundles the shared dependencies every stage receives.
type Env struct {
	Cfg     *config.Config
	Store   *artifacts.Store
	Prompts *prompts.Set
	Log     *slog.Logger

	// NewGateway builds the AI generator on first use, so stages that
	// never call the AI (strip, flatten, profiles, components) run
	// without any provider configured.
	NewGateway func() (gateway.Generator, error)

	aiOnce sync.Once
	ai     gateway.Generator
	aiErr  error
}

// AI returns the lazily constructed gateway, building it exactly once.
func (e *Env) AI() (gateway.Generator, error) {
	e.aiOnce.Do(func() {
		if e.NewGateway == nil {
			e.aiErr = fmt.Errorf("no AI gateway configured")
			return
		}
		e.ai, e.aiErr = e.NewGateway()
	})
	return e.ai, e.aiErr
}

// Stages returns the pipeline stages in dependency order.
func Stages() []Stage {
	return []Stage{
		stripStage(),
		flattenStage(),
		matchBausteineStage(),
		decomposeStage(),
		mappingStage(),
		metadataStage(),
		profilesStage(),
		componentsStage(),
	}
}

// Pipeline runs stages against one environment.
type Pipeline struct {
	stages []Stage
	env    *Env
}

// New builds a pipeline over the default stage set.
func New(env *Env) *Pipeline {
	return &Pipeline{stages: Stages(), env: env}
}

// NewWithStages exists for tests that substitute stage sets.
func NewWithStages(env *Env, stages []Stage) *Pipeline {
	return &Pipeline{stages: stages, env: env}
}

// StageNames lists the runnable stage names in order.
func (p *Pipeline) StageNames() []string {
	names := make([]string, len(p.stages))
	for i, s := range p.stages {
		names[i] = s.Name
	}
	return names
}

// Run executes one named stage, or every stage in order for RunAll.
func (p *Pipeline) Run(ctx context.Context, name string) error {
	if name == RunAll {
		for _, s := range p.stages {
			if err := p.runStage(ctx, s); err != nil {
				return err
			}
		}
		return nil
	}
	for _, s := range p.stages {
		if s.Name == name {
			return p.runStage(ctx, s)
		}
	}
	return fmt.Errorf("unknown stage %q (known: %v)", name, p.StageNames())
}

func (p *Pipeline) runStage(ctx context.Context, s Stage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if p.shouldSkip(s) {
		p.env.Log.Info("stage outputs exist, skipping", "stage", s.Name)
		return nil
	}
	p.env.Log.Info("running stage", "stage", s.Name)
	if err := s.Run(ctx, p.env); err != nil {
		p.env.Log.Error("stage failed", "stage", s.Name, "error", err)
		return fmt.Errorf("stage %s: %w", s.Name, err)
	}
	p.env.Log.Info("stage completed", "stage", s.Name)
	return nil
}

func (p *Pipeline) shouldSkip(s Stage) bool {
	if p.env.Cfg.OverwriteTempFiles || s.Outputs == nil {
		return false
	}
	outputs := s.Outputs(p.env.Cfg)
	if len(outputs) == 0 {
		return false
	}
	for _, path := range outputs {
		if !p.env.Store.Exists(path) {
			return false
		}
	}
	return true
}
