package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/shopledger/shopledger/cmd/shopledger/cli"
	"github.com/shopledger/shopledger/internal/app"
)

const jobsUsage = "usage: shopledger jobs trigger <task> | shopledger jobs stats"

// runJobs handles `shopledger jobs ...` and returns the process exit code.
func runJobs(ctx context.Context, args []string, out io.Writer) int {
	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		return 1
	}
	jobsCLI := cli.NewJobsCLI(cfg.Redis().Asynq(), cfg.IdempotencyRetention)
	defer func() { _ = jobsCLI.Close() }()

	switch {
	case len(args) == 2 && args[0] == "trigger":
		info, err := jobsCLI.Trigger(ctx, args[1])
		if err != nil {
			fmt.Fprintln(out, err)
			return 1
		}
		fmt.Fprintf(out, "enqueued %s as %s on %s\n", info.Type, info.ID, info.Queue)
		return 0
	case len(args) == 1 && args[0] == "stats":
		stats, err := jobsCLI.InspectQueue()
		if err != nil {
			fmt.Fprintln(out, err)
			return 1
		}
		fmt.Fprintf(out, "queue=%s pending=%d active=%d scheduled=%d retry=%d\n",
			stats.Queue, stats.Pending, stats.Active, stats.Scheduled, stats.Retry)
		return 0
	default:
		fmt.Fprintln(out, jobsUsage)
		return 2
	}
}
