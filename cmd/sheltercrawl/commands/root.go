package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sheltercrawl/internal/components/telemetry"
	libtelemetry "sheltercrawl/lib/telemetry"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var (
	configPath *string
	verbose    *bool
	strict     *bool
)

var rootCmd = &cobra.Command{
	Use:   "sheltercrawl",
	Short: "sheltercrawl downloads animal view reports from a shelter management site and turns them into records.",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		telemetry.InitSlog(*verbose)
	},
}

func init() {
	configPath = rootCmd.PersistentFlags().String("config", "config.json5", "The config file, a <name>.local.<ext> file next to it overrides its values.")
	verbose = rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Log debug output, including every HTTP request.")
	strict = rootCmd.PersistentFlags().Bool("strict", false, "Exit with a non-zero status when any item failed.")
}

func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// startTelemetry sets up otel exporters from telemetry.json5 if one can be found, the
// returned function flushes them.
func startTelemetry(ctx context.Context) func() {
	tel, err := libtelemetry.SetupFromEnv(ctx, "sheltercrawl")
	if err != nil {
		slog.Info("otel telemetry disabled", "reason", err)
		return func() {}
	}
	libtelemetry.InstrumentPerfStats(ctx, 15*time.Second, *verbose)

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err := tel.Shutdown(ctx)
		if err != nil {
			slog.Warn("failed to flush telemetry", "err", err)
		}
	}
}

func newTable() table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetOutputMirror(os.Stdout)
	return t
}
