package commands

import (
	"encoding/json"
	"sheltercrawl/internal/recordstore"
	"sheltercrawl/lib/serviceutil"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(runsCmd)
}

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Lists past crawl and parse runs with their item counts.",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		cfg, clock := mustReadConfig()

		records, err := recordstore.Open(ctx, cfg.Database, clock)
		if err != nil {
			serviceutil.Fatal("failed to open record store", err)
		}
		defer records.Close()

		runs, err := records.Runs(ctx)
		if err != nil {
			serviceutil.Fatal("failed to list runs", err)
		}
		count, err := records.Count(ctx)
		if err != nil {
			serviceutil.Fatal("failed to count records", err)
		}

		t := newTable()
		t.AppendHeader(table.Row{"Run", "Stage", "Started", "Finished", "Counts"})
		for _, r := range runs {
			finished := "-"
			if r.Finished > 0 {
				finished = time.Unix(r.Finished, 0).In(clock.Location()).Format(time.DateTime)
			}
			counts, _ := json.Marshal(r.Counts)
			t.AppendRow(table.Row{
				r.ID,
				r.Stage,
				time.Unix(r.Started, 0).In(clock.Location()).Format(time.DateTime),
				finished,
				string(counts),
			})
		}
		t.AppendFooter(table.Row{"", "", "", "Records", count})
		t.Render()
	},
}
