package commands

import (
	"context"
	"fmt"
	"log/slog"
	"sheltercrawl/internal/animalreport"
	"sheltercrawl/internal/artifact"
	"sheltercrawl/internal/components/telemetry"
	"sheltercrawl/internal/extract"
	"sheltercrawl/internal/fetch"
	"sheltercrawl/internal/recordstore"
	"sheltercrawl/lib/serviceutil"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var (
	fresh   *bool
	fromDir *bool
)

func init() {
	fresh = parseCmd.Flags().Bool("fresh", false, "Delete every stored record and run before parsing.")
	fromDir = parseCmd.Flags().Bool("all", false, "Parse every document in the report directory instead of the input list.")
	rootCmd.AddCommand(parseCmd)
}

func loadSchema(cfg Config) (animalreport.Schema, error) {
	schema := animalreport.DefaultSchema()
	if cfg.SpecFile == "" {
		return schema, nil
	}
	set, err := extract.LoadSpecSet(cfg.SpecFile)
	if err != nil {
		return animalreport.Schema{}, err
	}
	slog.Info("using extraction spec overrides", "file", cfg.SpecFile, "specs", len(set))
	return schema.WithSpecSet(set), nil
}

func renderParseSummary(summary animalreport.Summary) {
	t := newTable()
	t.SetTitle("parse")
	t.AppendHeader(table.Row{"Status", "Items"})
	for _, status := range []animalreport.Status{
		animalreport.StatusParsed,
		animalreport.StatusMissing,
		animalreport.StatusIncomplete,
		animalreport.StatusDuplicate,
		animalreport.StatusFailed,
		animalreport.StatusPending,
	} {
		t.AppendRow(table.Row{status.String(), summary.Count(status)})
	}
	t.AppendFooter(table.Row{"Total", len(summary.Results)})
	t.Render()
}

var parseCmd = &cobra.Command{
	Use:   "parse [--fresh] [--all]",
	Short: "Extracts a record from every downloaded report and stores it in the record database.",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		cfg, clock := mustReadConfig()

		stopTelemetry := startTelemetry(ctx)
		defer stopTelemetry()

		store, err := artifact.NewStore(cfg.Directory, clock)
		if err != nil {
			serviceutil.Fatal("failed to open artifact directory", err)
		}

		var ids []string
		if *fromDir {
			ids, err = store.List()
		} else {
			ids, err = fetch.ReadIdentifiersFile(cfg.Input)
		}
		if err != nil {
			serviceutil.Fatal("failed to list identifiers", err)
		}

		schema, err := loadSchema(cfg)
		if err != nil {
			serviceutil.Fatal("failed to load extraction spec", err)
		}

		tel := telemetry.SlogAPI{}
		engine := extract.NewEngine(tel, extract.DefaultTransforms(clock.Location()))
		processor, err := animalreport.NewProcessor(schema, store, engine, clock, tel)
		if err != nil {
			serviceutil.Fatal("invalid report schema", err)
		}

		records, err := recordstore.Open(ctx, cfg.Database, clock)
		if err != nil {
			serviceutil.Fatal("failed to open record store", err)
		}
		defer records.Close()

		if *fresh {
			err = records.Reset(ctx)
			if err != nil {
				serviceutil.Fatal("failed to reset record store", err)
			}
			slog.Info("cleared record store")
		}

		runID, err := records.StartRun(ctx, "parse")
		if err != nil {
			serviceutil.Fatal("failed to register run", err)
		}

		runConfig := animalreport.RunConfig{Concurrency: cfg.Concurrency}
		var summary animalreport.Summary
		if cfg.Concurrency == 0 {
			summary = processor.Run(ctx, ids, runConfig, recordstore.DirectSink{Store: records, RunID: runID})
		} else {
			writer := recordstore.NewWriter(ctx, records, runID, cfg.BatchSize, tel)
			summary = processor.Run(ctx, ids, runConfig, writer)
			stats := writer.Close()
			slog.Info("writer finished", "inserted", stats.Inserted, "duplicates", stats.Duplicates, "failed", stats.Failed)
			summary = summary.WithWriteErrors(writer.Errors())
		}

		err = records.FinishRun(context.WithoutCancel(ctx), runID, summary.Counts())
		if err != nil {
			slog.Warn("failed to record run", "err", err)
		}

		renderParseSummary(summary)
		slog.Info("parse finished", "elapsed", summary.Elapsed.String(), "parsed", summary.Count(animalreport.StatusParsed), "requested", len(ids))

		if *strict && summary.Failed() {
			serviceutil.Fatal("parse finished with failures", fmt.Errorf(
				"%d failed, %d incomplete, %d never processed",
				summary.Count(animalreport.StatusFailed),
				summary.Count(animalreport.StatusIncomplete),
				summary.Count(animalreport.StatusPending),
			))
		}
	},
}
