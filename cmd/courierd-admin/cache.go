package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const templateCacheKeyPrefix = "template:"

type flushTemplateCacheOptions struct {
	Channel string
	Name    string
	DryRun  bool
	Yes     bool

	Pattern string
}

func runFlushTemplateCache(cmdCtx *commandContext, args []string) error {
	opts, err := parseFlushTemplateCacheFlags(args)
	if err != nil {
		return err
	}
	if confirmErr := confirmAction(cacheFlushConfirmOptions{opts}, "flush template cache"); confirmErr != nil {
		return confirmErr
	}

	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, 2*time.Minute)
	defer cancel()

	_, redisClient, err := connectInfraWithOptions(&connectInfraOptions{
		Logger:    cmdCtx.Logger,
		Config:    &cmdCtx.Config,
		WantRedis: true,
	})
	if err != nil && !errors.Is(err, errRedisNotConfigured) {
		return err
	}
	if redisClient == nil {
		if writeErr := writeln(os.Stderr, "Redis is not configured; nothing to flush"); writeErr != nil {
			return fmt.Errorf("print redis availability: %w", writeErr)
		}
		return nil
	}
	defer func() {
		if closeErr := redisClient.Close(); closeErr != nil {
			cmdCtx.Logger.Warn("redis close failed", "error", closeErr)
		}
	}()

	stats, err := deleteTemplateCacheKeys(&templateCacheDeleteRequest{
		Ctx:      ctx,
		Client:   redisClient,
		Logger:   cmdCtx.Logger,
		Options:  opts,
		BatchCap: 1000,
	})
	if err != nil {
		return err
	}

	if stats.total == 0 {
		if writeErr := writeln(os.Stdout, "No cached template entries found in Redis"); writeErr != nil {
			return fmt.Errorf("print flush summary: %w", writeErr)
		}
		return nil
	}

	if opts.DryRun {
		if writeErr := writef(os.Stdout, "Dry-run: would delete %d/%d keys\n", stats.deleted, stats.total); writeErr != nil {
			return fmt.Errorf("print flush dry run: %w", writeErr)
		}
		return nil
	}

	if writeErr := writef(os.Stdout, "Deleted %d/%d cached template entries\n", stats.deleted, stats.total); writeErr != nil {
		return fmt.Errorf("print flush summary: %w", writeErr)
	}
	if stats.failures > 0 {
		if writeErr := writef(os.Stdout, "Failed batches: %d\n", stats.failures); writeErr != nil {
			return fmt.Errorf("print flush failures: %w", writeErr)
		}
	}
	return nil
}

type templateCacheDeleteRequest struct {
	Ctx      context.Context
	Client   redis.UniversalClient
	Logger   *slog.Logger
	Options  flushTemplateCacheOptions
	BatchCap int
}

type templateCacheDeleteStats struct {
	total    int
	deleted  int64
	failures int
}

func deleteTemplateCacheKeys(req *templateCacheDeleteRequest) (templateCacheDeleteStats, error) {
	batchCap := req.BatchCap
	if batchCap <= 0 {
		batchCap = 1000
	}

	if req.Logger != nil {
		req.Logger.Info("scanning redis", "pattern", req.Options.Pattern, "dry_run", req.Options.DryRun)
	}

	iter := req.Client.Scan(req.Ctx, 0, req.Options.Pattern, 100).Iterator()
	batch := make([]string, 0, batchCap)
	stats := templateCacheDeleteStats{}

	for iter.Next(req.Ctx) {
		stats.total++
		batch = append(batch, iter.Val())

		if len(batch) == batchCap {
			flushTemplateCacheBatch(req, batch, &stats)
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return stats, fmt.Errorf("redis scan: %w", err)
	}

	flushTemplateCacheBatch(req, batch, &stats)
	return stats, nil
}

func flushTemplateCacheBatch(req *templateCacheDeleteRequest, batch []string, stats *templateCacheDeleteStats) {
	if len(batch) == 0 {
		return
	}
	if req.Options.DryRun {
		stats.deleted += int64(len(batch))
		if req.Logger != nil {
			req.Logger.Info("dry-run skipping template cache delete", "count", len(batch))
		}
		return
	}
	n, delErr := req.Client.Del(req.Ctx, batch...).Result()
	if delErr != nil {
		stats.failures++
		if req.Logger != nil {
			req.Logger.Error("failed to delete template cache keys", "count", len(batch), "error", delErr)
		}
		return
	}
	stats.deleted += n
}

func parseFlushTemplateCacheFlags(args []string) (flushTemplateCacheOptions, error) {
	fs := flag.NewFlagSet("flush-template-cache", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var opts flushTemplateCacheOptions
	fs.StringVar(&opts.Channel, "channel", "", "Optional channel filter (email, sms, push)")
	fs.StringVar(&opts.Name, "name", "", "Optional template name filter")
	fs.BoolVar(&opts.DryRun, "dry-run", false, "Print actions without executing")
	fs.BoolVar(&opts.Yes, "yes", false, "Skip confirmation prompt")

	if err := fs.Parse(args); err != nil {
		return flushTemplateCacheOptions{}, err
	}

	opts.Channel = strings.ToLower(strings.TrimSpace(opts.Channel))
	opts.Name = strings.TrimSpace(opts.Name)
	if opts.Name != "" && opts.Channel == "" {
		return flushTemplateCacheOptions{}, errors.New("--name requires --channel to avoid clearing other channels accidentally")
	}
	opts.Pattern = buildTemplateCachePattern(opts.Channel, opts.Name)

	return opts, nil
}

// buildTemplateCachePattern mirrors the key layout used by the template
// service: "template:<channel>:<name>".
func buildTemplateCachePattern(channel, name string) string {
	channelPart := "*"
	if channel != "" {
		channelPart = channel
	}
	namePart := "*"
	if name != "" {
		namePart = name
	}
	return templateCacheKeyPrefix + channelPart + ":" + namePart
}
