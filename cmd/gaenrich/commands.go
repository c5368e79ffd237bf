package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"ga_friendliness/internal/adapters/observability"
	"ga_friendliness/internal/app"
	"ga_friendliness/internal/domain"
)

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func upperAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.ToUpper(strings.TrimSpace(s)); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func newRebuildCmd(o *rootOpts) *cobra.Command {
	var (
		rawSources []string
		airports   []string
		force      bool
		output     string
	)
	cmd := &cobra.Command{
		Use:   "rebuild",
		Short: "Extract tags from reviews and rebuild airport statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			specs, err := parseSourceSpecs(rawSources)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			p, err := newPipeline(ctx, o.cfg)
			if err != nil {
				return err
			}
			defer p.Close()

			rep, err := p.run(ctx, specs, app.BuildOptions{Force: force, Airports: upperAll(airports)})
			if err != nil {
				return err
			}
			if output == "" || output == "-" {
				return writeJSON(cmd.OutOrStdout(), rep)
			}
			f, err := os.Create(output)
			if err != nil {
				return err
			}
			defer f.Close()
			return writeJSON(f, rep)
		},
	}
	cmd.Flags().StringArrayVar(&rawSources, "source", nil, "review source as kind=location (repeatable)")
	cmd.Flags().StringSliceVar(&airports, "airport", nil, "only rebuild these ICAO codes")
	cmd.Flags().BoolVar(&force, "force", false, "re-extract every review")
	cmd.Flags().StringVar(&output, "output", "", "write the build report here instead of stdout")
	return cmd
}

func newValidateCmd(o *rootOpts) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Load and cross-check the ontology, personas and feature mappings",
		RunE: func(cmd *cobra.Command, args []string) error {
			cs, err := loadConfigStore(o.cfg)
			if err != nil {
				var ce *domain.ConfigError
				if errors.As(err, &ce) {
					for _, p := range ce.Problems {
						fmt.Fprintln(cmd.ErrOrStderr(), "-", p)
					}
				}
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ok: ontology %s, %d personas, scoring version %s\n",
				cs.OntologyVersion(), len(cs.PersonaIDs()), cs.ScoringVersion())
			return nil
		},
	}
}

func newScoreCmd(o *rootOpts) *cobra.Command {
	var personaID string
	cmd := &cobra.Command{
		Use:   "score ICAO...",
		Short: "Score airports for a persona",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			q, closeFn, err := openQueries(ctx, o)
			if err != nil {
				return err
			}
			defer closeFn()
			res, err := q.Scores(ctx, upperAll(args), personaID)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), res)
		},
	}
	cmd.Flags().StringVar(&personaID, "persona", "", "persona id (default persona when empty)")
	return cmd
}

func newSummaryCmd(o *rootOpts) *cobra.Command {
	return &cobra.Command{
		Use:   "summary ICAO",
		Short: "Show the stored summary for an airport",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			q, closeFn, err := openQueries(ctx, o)
			if err != nil {
				return err
			}
			defer closeFn()
			res, err := q.Summary(ctx, strings.ToUpper(args[0]))
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), res)
		},
	}
}

func openQueries(ctx context.Context, o *rootOpts) (*app.QueryService, func(), error) {
	cs, err := loadConfigStore(o.cfg)
	if err != nil {
		return nil, nil, err
	}
	repo, err := openStore(o.cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("open store: %w", err)
	}
	cache := openCache(ctx, o.cfg)
	closeFn := func() {
		if cache != nil {
			_ = cache.Close()
		}
		_ = repo.Close()
	}
	return newQueryService(o.cfg, cs, repo, cache), closeFn, nil
}

func newScheduleCmd(o *rootOpts) *cobra.Command {
	var rawSources []string
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run incremental rebuilds on a cron schedule and expose metrics",
		RunE: func(cmd *cobra.Command, args []string) error {
			specs, err := parseSourceSpecs(rawSources)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			p, err := newPipeline(ctx, o.cfg)
			if err != nil {
				return err
			}
			defer p.Close()

			reg := observability.InitRegistry()
			observability.Serve(o.cfg.MetricsAddr, reg)

			// overlapping ticks are dropped rather than queued
			var running sync.Mutex
			c := cron.New()
			if _, err := c.AddFunc(o.cfg.RebuildSchedule, func() {
				if !running.TryLock() {
					log.Warn().Msg("previous rebuild still running, skipping tick")
					return
				}
				defer running.Unlock()
				rep, err := p.run(ctx, specs, app.BuildOptions{})
				if err != nil {
					log.Error().Err(err).Msg("scheduled rebuild failed")
					return
				}
				log.Info().Str("run_id", rep.RunID).Int("rebuilt", len(rep.Rebuilt)).Msg("scheduled rebuild done")
			}); err != nil {
				return fmt.Errorf("REBUILD_SCHEDULE %q: %w", o.cfg.RebuildSchedule, err)
			}
			c.Start()
			log.Info().Str("schedule", o.cfg.RebuildSchedule).Msg("scheduler started")

			<-ctx.Done()
			<-c.Stop().Done()
			log.Info().Msg("scheduler stopped")
			return nil
		},
	}
	cmd.Flags().StringArrayVar(&rawSources, "source", nil, "review source as kind=location (repeatable)")
	return cmd
}
