package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/courierd/courierd/internal/data"
	"github.com/courierd/courierd/internal/domain/model"
)

type statsOptions struct {
	Timeout time.Duration
}

type queueStatsRow struct {
	Channel model.Channel
	Stats   model.JobStats
}

func runStats(cmdCtx *commandContext, args []string) error {
	opts, err := parseStatsFlags(args)
	if err != nil {
		return err
	}

	return withDatabase(cmdCtx, opts.Timeout, func(ctx context.Context, db *sql.DB) error {
		rows, err := gatherQueueStats(ctx, db)
		if err != nil {
			return err
		}

		notifStats, err := data.NewNotificationRepo(db).Stats(ctx)
		if err != nil {
			return fmt.Errorf("notification stats: %w", err)
		}

		return printStats(rows, notifStats)
	})
}

func gatherQueueStats(ctx context.Context, db *sql.DB) ([]queueStatsRow, error) {
	repo := data.NewJobRepo(db, data.RepoConfig{})

	channels := model.Channels()
	rows := make([]queueStatsRow, 0, len(channels))
	for _, channel := range channels {
		stats, err := repo.Stats(ctx, channel)
		if err != nil {
			return nil, fmt.Errorf("queue stats for %s: %w", channel, err)
		}
		rows = append(rows, queueStatsRow{Channel: channel, Stats: *stats})
	}
	return rows, nil
}

func printStats(rows []queueStatsRow, notifStats *model.NotificationStats) error {
	if err := printQueueStats(rows); err != nil {
		return err
	}
	return printNotificationStats(notifStats)
}

func printQueueStats(rows []queueStatsRow) error {
	if err := writef(os.Stdout, "\nDelivery Queues\n"); err != nil {
		return fmt.Errorf("write queue header: %w", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	if err := writeln(w, "CHANNEL\tPENDING\tRUNNING\tCOMPLETED\tFAILED"); err != nil {
		return fmt.Errorf("write queue header row: %w", err)
	}
	for _, row := range rows {
		if err := writef(
			w,
			"%s\t%d\t%d\t%d\t%d\n",
			row.Channel,
			row.Stats.Pending,
			row.Stats.Running,
			row.Stats.Completed,
			row.Stats.Failed,
		); err != nil {
			return fmt.Errorf("write queue row for %s: %w", row.Channel, err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("flush queue stats: %w", err)
	}
	return nil
}

func printNotificationStats(stats *model.NotificationStats) error {
	if stats == nil {
		return errors.New("notification stats are required")
	}

	if err := writef(os.Stdout, "\nNotifications\n"); err != nil {
		return fmt.Errorf("write notification header: %w", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	if err := writeln(w, "STATUS\tCOUNT"); err != nil {
		return fmt.Errorf("write notification header row: %w", err)
	}
	if err := writef(w, "queued\t%d\n", stats.Queued); err != nil {
		return fmt.Errorf("write queued count: %w", err)
	}
	if err := writef(w, "processing\t%d\n", stats.Processing); err != nil {
		return fmt.Errorf("write processing count: %w", err)
	}
	if err := writef(w, "sent\t%d\n", stats.Sent); err != nil {
		return fmt.Errorf("write sent count: %w", err)
	}
	if err := writef(w, "failed\t%d\n", stats.Failed); err != nil {
		return fmt.Errorf("write failed count: %w", err)
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("flush notification stats: %w", err)
	}
	return nil
}

func parseStatsFlags(args []string) (statsOptions, error) {
	fs := flag.NewFlagSet("stats", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	opts := statsOptions{
		Timeout: time.Minute,
	}

	fs.DurationVar(
		&opts.Timeout,
		"timeout",
		time.Minute,
		"Maximum duration to wait for stats queries to complete",
	)

	if err := fs.Parse(args); err != nil {
		return statsOptions{}, err
	}

	if opts.Timeout <= 0 {
		return statsOptions{}, errors.New("--timeout must be greater than zero")
	}

	return opts, nil
}
