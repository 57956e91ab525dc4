// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Command crosswalk runs the BSI-to-G++ crosswalk generation pipeline.
//
// Configuration comes from the environment (a .env file in the working
// directory is honored when present):
//
//	SOURCE_PREFIX=./data OUTPUT_PREFIX=./out OPENAI_API_KEY=... crosswalk run all
//	crosswalk run mapping       # run a single stage
//	crosswalk stages            # list stage names in order
//
// Set TEST=true for a truncated dry run and OVERWRITE_TEMP_FILES=true to
// regenerate artifacts that already exist.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/oscal-crosswalk/pkg/artifacts"
	"github.com/AleutianAI/oscal-crosswalk/pkg/config"
	"github.com/AleutianAI/oscal-crosswalk/pkg/logging"
	"github.com/AleutianAI/oscal-crosswalk/pkg/prompts"
	"github.com/AleutianAI/oscal-crosswalk/services/gateway"
	"github.com/AleutianAI/oscal-crosswalk/services/llm"
	"github.com/AleutianAI/oscal-crosswalk/services/pipeline"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "crosswalk",
		Short:         "Generate BSI IT-Grundschutz to G++ Kompendium crosswalk mappings",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(runCmd(), stagesCmd())
	return root
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run <stage|all>",
		Short: "Run one pipeline stage, or every stage in order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			// Optional; absence of a .env file is not an error.
			_ = godotenv.Load()

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			level := logging.LevelInfo
			if cfg.TestMode {
				level = logging.LevelDebug
			}
			logger, err := logging.New(logging.Config{
				Level:   level,
				Service: "crosswalk",
			})
			if err != nil {
				return err
			}
			defer logger.Close()

			env := &pipeline.Env{
				Cfg:     cfg,
				Store:   artifacts.NewStore(logger.Logger),
				Log:     logger.Logger,
				NewGateway: func() (gateway.Generator, error) {
					return newGateway(cfg, logger)
				},
			}
			env.Prompts, err = prompts.Load()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(),
				os.Interrupt, syscall.SIGTERM)
			defer stop()

			return pipeline.New(env).Run(ctx, args[0])
		},
	}
}

func stagesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stages",
		Short: "List the pipeline stages in dependency order",
		RunE: func(cmd *cobra.Command, _ []string) error {
			env := &pipeline.Env{}
			for _, name := range pipeline.NewWithStages(env, pipeline.Stages()).StageNames() {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	}
}

// newGateway wires the configured provider backend into the AI request
// gateway.
func newGateway(cfg *config.Config, logger *logging.Logger) (gateway.Generator, error) {
	set, err := prompts.Load()
	if err != nil {
		return nil, err
	}

	var factory func(model string) (llm.Client, error)
	switch cfg.Provider {
	case config.ProviderOpenAI:
		factory = func(string) (llm.Client, error) {
			return llm.NewOpenAIClient(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, logger.Logger)
		}
	case config.ProviderOllama:
		factory = func(string) (llm.Client, error) {
			return llm.NewOllamaClient(cfg.OllamaBaseURL, logger.Logger)
		}
	default:
		return nil, fmt.Errorf("unknown AI provider %q", cfg.Provider)
	}

	return gateway.New(gateway.Options{
		Factory:        factory,
		DefaultModel:   cfg.Model,
		SystemMessage:  set.SystemMessage,
		MaxConcurrent:  cfg.MaxConcurrentAIRequests,
		RequestTimeout: cfg.RequestTimeout,
		Logger:         logger.Logger,
	})
}
