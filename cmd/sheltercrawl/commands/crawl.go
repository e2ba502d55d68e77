package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sheltercrawl/internal/artifact"
	"sheltercrawl/internal/components/telemetry"
	"sheltercrawl/internal/fetch"
	"sheltercrawl/internal/recordstore"
	"sheltercrawl/internal/session"
	"sheltercrawl/lib/restyutil"
	"sheltercrawl/lib/serviceutil"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var dumpHttp *string

func init() {
	dumpHttp = crawlCmd.Flags().String("dump-http", "", "Write every HTTP exchange into this directory (it is cleared first).")
	rootCmd.AddCommand(crawlCmd)
}

func sessionFactory(cfg Config, output restyutil.Output, tel telemetry.API) fetch.SessionFactory {
	return func(worker int) (fetch.Session, error) {
		name := fmt.Sprintf("worker-%d", worker)
		if worker < 0 {
			name = "preflight"
		}
		sess, err := session.New(session.Options{
			URLTemplate:       cfg.UrlTemplate,
			Credentials:       cfg.Credentials,
			Cookies:           cfg.Cookies,
			CookieDomain:      cfg.CookieDomain,
			CookiePath:        cfg.CookiePath,
			Timeout:           cfg.fetchTimeout,
			RequestsPerSecond: cfg.RequestsPerSecond,
			CloudflareBypass:  cfg.CloudflareBypass,
			Name:              name,
			Output:            output,
		}, tel)
		if err != nil {
			return nil, err
		}
		return sess, nil
	}
}

func renderCrawlSummary(summary fetch.Summary) {
	t := newTable()
	t.SetTitle("crawl")
	t.AppendHeader(table.Row{"Status", "Items"})
	for _, status := range []fetch.Status{
		fetch.StatusFetched,
		fetch.StatusSkipped,
		fetch.StatusFiltered,
		fetch.StatusFailed,
		fetch.StatusDuplicate,
		fetch.StatusPending,
	} {
		t.AppendRow(table.Row{status.String(), summary.Count(status)})
	}
	t.AppendFooter(table.Row{"Total", len(summary.Outcomes)})
	t.Render()

	failed := summary.Count(fetch.StatusFailed)
	if failed == 0 {
		return
	}
	f := newTable()
	f.SetTitle("failures")
	f.AppendHeader(table.Row{"Identifier", "Error"})
	for _, o := range summary.Outcomes {
		if o.Status == fetch.StatusFailed {
			f.AppendRow(table.Row{o.ID, o.Err})
		}
	}
	f.Render()
}

func crawlCounts(summary fetch.Summary) map[string]int {
	counts := map[string]int{}
	for _, o := range summary.Outcomes {
		counts[o.Status.String()]++
	}
	if summary.RetiredWorkers > 0 {
		counts["retired_workers"] = summary.RetiredWorkers
	}
	return counts
}

var crawlCmd = &cobra.Command{
	Use:   "crawl [--dump-http <dir>]",
	Short: "Logs in and downloads the report of every identifier in the input list.",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		cfg, clock := mustReadConfig()

		stopTelemetry := startTelemetry(ctx)
		defer stopTelemetry()

		ids, err := fetch.ReadIdentifiersFile(cfg.Input)
		if err != nil {
			serviceutil.Fatal("failed to read identifiers", err)
		}

		store, err := artifact.NewStore(cfg.Directory, clock)
		if err != nil {
			serviceutil.Fatal("failed to open artifact directory", err)
		}

		var output restyutil.Output
		if *dumpHttp != "" {
			fsOutput, err := restyutil.NewFilesystemOutput(*dumpHttp)
			if err != nil {
				serviceutil.Fatal("failed to create http dump directory", err)
			}
			output = fsOutput
		}

		records, err := recordstore.Open(ctx, cfg.Database, clock)
		if err != nil {
			serviceutil.Fatal("failed to open record store", err)
		}
		defer records.Close()
		runID, err := records.StartRun(ctx, "crawl")
		if err != nil {
			serviceutil.Fatal("failed to register run", err)
		}

		tel := telemetry.SlogAPI{}
		scheduler := fetch.NewScheduler(
			fetch.Config{
				Concurrency:  cfg.Concurrency,
				SkipExisting: *cfg.SkipExisting,
				Keywords:     cfg.Keywords,
			},
			sessionFactory(cfg, output, tel),
			store,
			clock,
			tel,
		)

		slog.Info("crawling", "items", len(ids), "workers", cfg.Concurrency, "directory", store.Dir())
		summary, err := scheduler.Run(ctx, ids)
		if errors.Is(err, session.ErrAuthFailure) {
			serviceutil.Fatal("the site rejected the configured credentials", err)
		}
		if err != nil {
			serviceutil.Fatal("crawl failed", err)
		}

		err = records.FinishRun(context.WithoutCancel(ctx), runID, crawlCounts(summary))
		if err != nil {
			slog.Warn("failed to record run", "err", err)
		}

		renderCrawlSummary(summary)
		slog.Info(
			"crawl finished",
			"elapsed", summary.Elapsed.String(),
			"saved", summary.Count(fetch.StatusFetched),
			"requested", len(ids),
			"retired_workers", summary.RetiredWorkers,
		)

		if *strict && summary.Failed() {
			serviceutil.Fatal("crawl finished with failures", fmt.Errorf(
				"%d failed, %d never processed",
				summary.Count(fetch.StatusFailed),
				summary.Count(fetch.StatusPending),
			))
		}
	},
}
