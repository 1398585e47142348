// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/nautilus/pkg/logging"
	"github.com/AleutianAI/nautilus/pkg/telemetry"
	"github.com/AleutianAI/nautilus/pkg/ux"
	"github.com/AleutianAI/nautilus/services/corpus/config"
	"github.com/AleutianAI/nautilus/services/corpus/resolver"
)

// Exit codes.
const (
	exitFailure = 1
	exitQuery   = 2
)

// app holds the state shared by every command of one invocation.
type app struct {
	configPath string
	sources    []string
	output     string
	logLevel   string
	traces     string

	cfg      config.Config
	logger   *logging.Logger
	printer  *ux.Printer
	resolver *resolver.Resolver
	shutdown func(context.Context) error
}

// rootCmd builds the command tree bound to a.
func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "nautilus",
		Short: "Resolve CTS collections, passages and references from local corpora",
		Long: `nautilus ingests CapiTainS-style corpus directories (textgroup and work
descriptors plus TEI texts) and answers collection, passage and reference
queries over them.`,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&a.configPath, "config", "c", "", "YAML configuration file")
	flags.StringSliceVarP(&a.sources, "source", "s", nil, "corpus root, repeatable (overrides the configuration)")
	flags.StringVarP(&a.output, "output", "o", "", "output mode: rich, plain or machine")
	flags.StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn or error")
	flags.StringVar(&a.traces, "traces", "", "trace exporter: stdout, otlp or none")

	root.AddCommand(
		a.parseCmd(),
		a.flushCmd(),
		a.resetCmd(),
		a.clearCmd(),
		a.destroyCmd(),
		a.watchCmd(),
		a.metadataCmd(),
		a.reffsCmd(),
		a.passageCmd(),
		a.siblingsCmd(),
		a.configCmd(),
	)
	return root
}

// execute runs the CLI with args, prints any error through the printer and
// releases the resolver.
func (a *app) execute(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	cmd := a.rootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	err := cmd.ExecuteContext(ctx)
	if err != nil {
		a.reportError(stderr, err)
	}
	return errors.Join(err, a.teardown())
}

// setup loads the configuration, then builds the printer and the logger.
// The resolver is opened on first use.
func (a *app) setup(cmd *cobra.Command) error {
	mode := ux.DetectMode(os.Stdout)
	if a.output != "" {
		mode = ux.ParseMode(a.output)
	}
	a.printer = ux.NewPrinter(cmd.OutOrStdout(), cmd.ErrOrStderr(), mode)

	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if len(a.sources) > 0 {
		cfg.Sources = a.sources
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	if a.traces != "" {
		cfg.Telemetry.TraceExporter = a.traces
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg = cfg

	logger, err := config.NewLogger(cfg.Log, "nautilus")
	if err != nil {
		return err
	}
	a.logger = logger

	if cfg.Telemetry.Output == nil {
		cfg.Telemetry.Output = cmd.ErrOrStderr()
	}
	shutdown, err := telemetry.Init(cmd.Context(), cfg.Telemetry)
	if err != nil {
		return err
	}
	a.shutdown = shutdown
	return nil
}

// open builds the resolver described by the configuration.
func (a *app) open(ctx context.Context) (*resolver.Resolver, error) {
	if a.resolver != nil {
		return a.resolver, nil
	}
	if len(a.cfg.Sources) == 0 {
		return nil, errors.New("no corpus sources: pass --source or set sources in the configuration")
	}
	r, err := config.NewResolver(ctx, a.cfg, a.logger.Slog())
	if err != nil {
		return nil, err
	}
	a.resolver = r
	return r, nil
}

func (a *app) teardown() error {
	var errs []error
	if a.resolver != nil {
		errs = append(errs, a.resolver.Close())
		a.resolver = nil
	}
	if a.shutdown != nil {
		errs = append(errs, a.shutdown(context.Background()))
		a.shutdown = nil
	}
	if a.logger != nil {
		errs = append(errs, a.logger.Close())
		a.logger = nil
	}
	return errors.Join(errs...)
}

func (a *app) reportError(stderr io.Writer, err error) {
	p := a.printer
	if p == nil {
		p = ux.NewPrinter(io.Discard, stderr, ux.ModeMachine)
	}
	if code := resolver.CodeOf(err); code != resolver.CodeNone {
		p.Error(fmt.Sprintf("%s (%d): %v", code, int(code), err))
		return
	}
	p.Error(err.Error())
}

// exitCode maps an error to the process exit code: 2 for queries that
// failed with a CTS error code, 1 otherwise.
func exitCode(err error) int {
	if resolver.CodeOf(err) != resolver.CodeNone {
		return exitQuery
	}
	return exitFailure
}
