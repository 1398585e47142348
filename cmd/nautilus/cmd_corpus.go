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
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/nautilus/pkg/telemetry"
	"github.com/AleutianAI/nautilus/pkg/ux"
	"github.com/AleutianAI/nautilus/services/corpus/config"
	"github.com/AleutianAI/nautilus/services/corpus/ingest"
	"github.com/AleutianAI/nautilus/services/corpus/watch"
)

func (a *app) parseCmd() *cobra.Command {
	var verbose bool
	cmd := &cobra.Command{
		Use:   "parse",
		Short: "Ingest the corpus sources and report what was skipped",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			report, err := r.Parse(cmd.Context())
			if err != nil {
				return err
			}
			a.printReport(report, verbose)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "list pruned collections too")
	return cmd
}

func (a *app) printReport(report *ingest.Report, verbose bool) {
	p := a.printer
	for _, d := range report.Invalid {
		reason := d.Reason
		if d.Err != nil {
			reason = fmt.Sprintf("%s: %v", d.Reason, d.Err)
		}
		subject := d.ID
		if subject == "" {
			subject = d.Path
		}
		p.Status(ux.IconWarning, subject, reason)
	}
	if verbose {
		for _, id := range report.Pruned {
			p.Status(ux.IconBullet, id, "pruned")
		}
	}
	p.Counts(
		"groups", report.Groups,
		"works", report.Works,
		"texts", report.Texts,
		"invalid", len(report.Invalid),
		"pruned", len(report.Pruned),
	)
	p.Success(fmt.Sprintf("parsed in %s", report.Duration.Round(time.Millisecond)))
}

func (a *app) flushCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "flush",
		Short: "Drop the cache and the stored hierarchy so the next query re-parses",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			if err := r.Flush(cmd.Context()); err != nil {
				return err
			}
			a.printer.Success("resolver flushed")
			return nil
		},
	}
}

func (a *app) resetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Flush the resolver, then parse the sources again",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			if err := r.Flush(cmd.Context()); err != nil {
				return err
			}
			report, err := r.Parse(cmd.Context())
			if err != nil {
				return err
			}
			a.printReport(report, false)
			return nil
		},
	}
}

func (a *app) clearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove the resolver's cached query results",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			n, err := r.Clear(cmd.Context())
			if err != nil {
				return err
			}
			a.printer.Success(fmt.Sprintf("removed %d cache entries", n))
			return nil
		},
	}
}

func (a *app) destroyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "destroy",
		Short: "Delete the stored graph of a persistent engine",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			a.resolver = nil
			if err := r.Destroy(); err != nil {
				return err
			}
			a.printer.Success("graph destroyed")
			return nil
		},
	}
}

func (a *app) watchCmd() *cobra.Command {
	var debounce time.Duration
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Parse the sources and re-parse whenever they change",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			r, err := a.open(ctx)
			if err != nil {
				return err
			}
			report, err := r.Parse(ctx)
			if err != nil {
				return err
			}
			a.printReport(report, false)

			w, err := watch.Resolver(ctx, r, watch.Options{Debounce: debounce}, a.logger.Slog(),
				func(report *ingest.Report, err error) {
					if err != nil {
						a.printer.Error(err.Error())
						return
					}
					a.printReport(report, false)
				})
			if err != nil {
				return err
			}
			defer w.Stop()

			if addr := a.cfg.Telemetry.MetricsAddr; addr != "" {
				go func() {
					if err := telemetry.Serve(ctx, addr, a.logger.Slog()); err != nil {
						a.printer.Error("metrics endpoint: " + err.Error())
					}
				}()
			}

			a.printer.Success(fmt.Sprintf("watching %d source(s), press Ctrl+C to stop", len(r.Sources())))
			<-ctx.Done()
			return nil
		},
	}
	cmd.Flags().DurationVar(&debounce, "debounce", watch.DefaultOptions().Debounce, "quiet period before re-parsing")
	return cmd
}

func (a *app) configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or create configuration files",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "init [path]",
		Short: "Write the effective configuration as YAML",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "nautilus.yaml"
			if len(args) == 1 {
				path = args[0]
			}
			if err := config.Save(path, a.cfg); err != nil {
				return err
			}
			a.printer.Success("configuration written to " + path)
			return nil
		},
	})
	return cmd
}
