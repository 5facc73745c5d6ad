package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/httye/fetchplayers/internal/cleanup"
	"github.com/httye/fetchplayers/internal/storage"
	"github.com/httye/fetchplayers/sdk"
)

// run executes fn with the shared client and prints its result as JSON
func (a *app) run(cmd *cobra.Command, fn func(ctx context.Context, c sdk.Client) (interface{}, error)) error {
	result, err := fn(cmd.Context(), a.client)
	if err != nil {
		return exitError(err)
	}
	return printJSON(cmd.OutOrStdout(), result)
}

// lookupFunc is one of the per-player lookups
type lookupFunc func(ctx context.Context, c sdk.Client, username string, opts ...sdk.CallOption) (interface{}, error)

func userCmd(a *app, use, short string, fn lookupFunc) *cobra.Command {
	var fresh bool

	cmd := &cobra.Command{
		Use:   use + " <username>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var opts []sdk.CallOption
			if fresh {
				opts = append(opts, sdk.SkipCache())
			}
			return a.run(cmd, func(ctx context.Context, c sdk.Client) (interface{}, error) {
				return fn(ctx, c, args[0], opts...)
			})
		},
	}
	cmd.Flags().BoolVar(&fresh, "fresh", false, "Bypass the cache for this lookup")
	return cmd
}

func simpleCmd(a *app, use, short string, fn func(ctx context.Context, c sdk.Client) (interface{}, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, fn)
		},
	}
}

func loginsCmd(a *app) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "logins <username>",
		Short: "Show a player's login history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, func(ctx context.Context, c sdk.Client) (interface{}, error) {
				return c.LoginRecords(ctx, args[0], limit)
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 10, "Number of records (1-100)")
	return cmd
}

func onlineCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "online [username...]",
		Short: "List online players, or report whether the given players are online",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, func(ctx context.Context, c sdk.Client) (interface{}, error) {
				if len(args) > 0 {
					return c.OnlineStatuses(ctx, args), nil
				}
				return c.OnlinePlayers(ctx)
			})
		},
	}
	return cmd
}

func chatCmd(a *app) *cobra.Command {
	var (
		username string
		all      bool
		limit    int
	)

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Show chat history for one player or all players",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, func(ctx context.Context, c sdk.Client) (interface{}, error) {
				return c.ChatRecords(ctx, sdk.ChatQuery{Username: username, All: all, Limit: limit})
			})
		},
	}
	cmd.Flags().StringVar(&username, "user", "", "Player name")
	cmd.Flags().BoolVar(&all, "all", false, "All players")
	cmd.Flags().IntVar(&limit, "limit", 0, "Number of messages (1-100)")
	cmd.MarkFlagsMutuallyExclusive("user", "all")
	cmd.MarkFlagsOneRequired("user", "all")
	return cmd
}

func resourcesCmd(a *app) *cobra.Command {
	var resourceType string

	cmd := &cobra.Command{
		Use:   "resources",
		Short: "Show server memory, CPU and TPS",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, func(ctx context.Context, c sdk.Client) (interface{}, error) {
				res, err := c.ServerResources(ctx, sdk.ResourceType(resourceType))
				if err != nil {
					return nil, err
				}
				if res.Type == sdk.ResourceAll {
					return res.Snapshot()
				}
				return res.Section()
			})
		},
	}
	cmd.Flags().StringVar(&resourceType, "type", string(sdk.ResourceAll), "all, memory, cpu or tps")
	return cmd
}

func batchCmd(a *app) *cobra.Command {
	var queryType string

	cmd := &cobra.Command{
		Use:   "batch <username>...",
		Short: fmt.Sprintf("Look up to %d players in one request", sdk.MaxBatchSize),
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, func(ctx context.Context, c sdk.Client) (interface{}, error) {
				return c.BatchQuery(ctx, args, sdk.QueryType(queryType))
			})
		},
	}
	cmd.Flags().StringVar(&queryType, "type", string(sdk.QueryInfo), "info, level, location or inventory")
	return cmd
}

func exportCmd(a *app) *cobra.Command {
	var (
		exportType string
		format     string
		username   string
		archive    bool
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export players, login records or online players",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := a.client.Export(cmd.Context(), sdk.ExportQuery{
				Type:     sdk.ExportType(exportType),
				Format:   sdk.ExportFormat(strings.ToLower(format)),
				Username: username,
			})
			if err != nil {
				return exitError(err)
			}
			if !archive {
				_, err = cmd.OutOrStdout().Write(body)
				return err
			}

			archiveCfg := a.cfg.ArchiveConfig()
			if !archiveCfg.Enabled() {
				return fmt.Errorf("--archive needs archive.bucket or USERINFO_ARCHIVE_BUCKET")
			}
			archiver, err := storage.NewArchiver(archiveCfg)
			if err != nil {
				return err
			}
			key, err := archiver.UploadExport(cmd.Context(), exportType, strings.ToLower(format), body)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "archived %d bytes to %s\n", len(body), key)
			return err
		},
	}
	cmd.Flags().StringVar(&exportType, "type", string(sdk.ExportPlayers), "players, login-records or online-players")
	cmd.Flags().StringVar(&format, "format", string(sdk.FormatJSON), "json or csv")
	cmd.Flags().StringVar(&username, "user", "", "Limit login-records to one player")
	cmd.Flags().BoolVar(&archive, "archive", false, "Upload the export to the configured bucket instead of printing it")
	return cmd
}

func cacheCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the response cache",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Remove every cached response",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.client.ClearCache(cmd.Context()); err != nil {
				return err
			}
			_, err := fmt.Fprintln(cmd.OutOrStdout(), "cache cleared")
			return err
		},
	})
	cmd.AddCommand(cachePruneCmd(a))
	return cmd
}

func cachePruneCmd(a *app) *cobra.Command {
	var (
		watch    bool
		interval time.Duration
	)
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Remove cached responses older than the cache TTL",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if watch {
				if !cmd.Flags().Changed("interval") {
					interval = a.cfg.Cache.PruneInterval
				}
				// Blocks until interrupted
				cleanup.NewService(a.client, cleanup.Config{Interval: interval}).Start(cmd.Context())
				return nil
			}
			removed, err := a.client.PruneCache(cmd.Context())
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "removed %d stale entries\n", removed)
			return err
		},
	}
	cmd.Flags().BoolVar(&watch, "watch", false, "Keep pruning on an interval until interrupted")
	cmd.Flags().DurationVar(&interval, "interval", 5*time.Minute, "Interval between sweeps with --watch, overriding cache.prune_interval")
	return cmd
}
