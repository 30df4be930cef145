package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"remedy/internal/api"
	"remedy/internal/ipc"
	"remedy/internal/queue"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and manage the work queue",
	}

	queueCmd.AddCommand(newQueueStatusCommand(ctx))
	queueCmd.AddCommand(newQueueListCommand(ctx))
	queueCmd.AddCommand(newQueueShowCommand(ctx))
	queueCmd.AddCommand(newQueueRetryCommand(ctx))
	queueCmd.AddCommand(newQueueCancelCommand(ctx))
	queueCmd.AddCommand(newQueuePruneCommand(ctx))
	queueCmd.AddCommand(newQueueHealthCommand(ctx))

	return queueCmd
}

func newQueueStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show queue status summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(client *ipc.Client, store *queue.Store) error {
				var stats map[string]int
				if client != nil {
					status, err := client.Status()
					if err != nil {
						return err
					}
					stats = status.QueueStats
				} else {
					snapshot, err := store.List()
					if err != nil {
						return err
					}
					stats = make(map[string]int)
					for class, count := range snapshot.Stats() {
						stats[string(class)] = count
					}
				}

				rows := buildQueueStatusRows(stats)
				if len(rows) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Queue is empty")
					return nil
				}
				columns := []tableColumn{{title: "Status"}, {title: "Count", numeric: true}}
				fmt.Fprint(cmd.OutOrStdout(), renderTable(columns, rows))
				fmt.Fprintln(cmd.OutOrStdout())
				return nil
			})
		},
	}
}

func newQueueListCommand(ctx *commandContext) *cobra.Command {
	var listClasses []string
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List queue entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(client *ipc.Client, store *queue.Store) error {
				var entries []api.QueueEntry
				if client != nil {
					resp, err := client.QueueList(listClasses)
					if err != nil {
						return err
					}
					entries = resp.Entries
				} else {
					snapshot, err := store.List()
					if err != nil {
						return err
					}
					entries = filterEntriesByClass(flattenSnapshot(snapshot), listClasses)
				}

				if jsonOut {
					return emitJSON(cmd, map[string]any{"entries": entries})
				}
				if len(entries) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Queue is empty")
					return nil
				}
				columns := []tableColumn{
					{title: "ID"}, {title: "Workspace"}, {title: "Status"},
					{title: "Attempts", numeric: true}, {title: "Created"},
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable(columns, buildQueueListRows(entries)))
				fmt.Fprintln(cmd.OutOrStdout())
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVarP(&listClasses, "class", "s", nil, "Filter by entry class (repeatable)")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit JSON output")
	return cmd
}

func newQueueShowCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "show <entryID>",
		Short: "Show a single queue entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := strings.TrimSpace(args[0])
			return ctx.withStore(func(client *ipc.Client, store *queue.Store) error {
				var entry api.QueueEntry
				if client != nil {
					resp, err := client.QueueDescribe(id)
					if err != nil {
						return err
					}
					entry = resp.Entry
				} else {
					found, err := store.Get(id)
					if err != nil {
						return err
					}
					entry = api.FromQueueEntry(found)
				}

				if jsonOut {
					return emitJSON(cmd, entry)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "ID:        %s\n", entry.ID)
				fmt.Fprintf(out, "Workspace: %s\n", entry.Workspace)
				fmt.Fprintf(out, "Status:    %s\n", formatStatusLabel(entry.Class))
				fmt.Fprintf(out, "Attempts:  %d\n", entry.Attempts)
				if entry.LeaseOwner != "" {
					fmt.Fprintf(out, "Lease:     %s (expires %s)\n", entry.LeaseOwner, formatDisplayTime(entry.LeaseExpires))
				}
				fmt.Fprintf(out, "Created:   %s\n", formatDisplayTime(entry.CreatedAt))
				fmt.Fprintf(out, "Updated:   %s\n", formatDisplayTime(entry.UpdatedAt))
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit JSON output")
	return cmd
}

func newQueueRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry <entryID>",
		Short: "Reset a failed entry back to pending",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := strings.TrimSpace(args[0])
			return ctx.withStore(func(client *ipc.Client, store *queue.Store) error {
				if client != nil {
					resp, err := client.QueueRetry(id)
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Entry %s reset for retry\n", resp.Entry.ID)
					return nil
				}
				entry, err := store.Retry(id)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Entry %s reset for retry\n", entry.ID)
				return nil
			})
		},
	}
}

func newQueueCancelCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <entryID>",
		Short: "Cancel a pending or retrying entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := strings.TrimSpace(args[0])
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.QueueCancel(id)
				if err != nil {
					return err
				}
				if !resp.Cancelled {
					fmt.Fprintf(cmd.OutOrStdout(), "Entry %s was not cancelled\n", id)
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Entry %s cancelled\n", id)
				return nil
			})
		},
	}
}

func newQueuePruneCommand(ctx *commandContext) *cobra.Command {
	var keep int

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Remove completed entries beyond the retention cap",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(client *ipc.Client, store *queue.Store) error {
				if client != nil {
					resp, err := client.QueuePrune(keep)
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Pruned %d completed entries\n", resp.Removed)
					return nil
				}
				limit := keep
				if limit <= 0 {
					cfg, err := ctx.ensureConfig()
					if err != nil {
						return err
					}
					limit = cfg.Worker.CompletedRetention
				}
				removed, err := store.PruneCompleted(limit)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Pruned %d completed entries\n", removed)
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&keep, "keep", 0, "Number of completed entries to keep (0 uses configured retention)")
	return cmd
}

func newQueueHealthCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Show queue health summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(client *ipc.Client, store *queue.Store) error {
				var health ipc.QueueHealthResponse
				if client != nil {
					resp, err := client.QueueHealth()
					if err != nil {
						return err
					}
					health = *resp
				} else {
					summary, err := store.Health()
					if err != nil {
						return err
					}
					health = ipc.QueueHealthResponse{
						Total:                   summary.Total,
						Pending:                 summary.Pending,
						Processing:              summary.Processing,
						Retrying:                summary.Retrying,
						Failed:                  summary.Failed,
						Completed:               summary.Completed,
						Corrupt:                 summary.Corrupt,
						OldestPendingAgeSeconds: int64(summary.OldestPendingAge / time.Second),
					}
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Total: %d\nPending: %d\nProcessing: %d\nRetrying: %d\nFailed: %d\nCompleted: %d\nCorrupt: %d\n",
					health.Total,
					health.Pending,
					health.Processing,
					health.Retrying,
					health.Failed,
					health.Completed,
					health.Corrupt,
				)
				if health.OldestPendingAgeSeconds > 0 {
					age := time.Duration(health.OldestPendingAgeSeconds) * time.Second
					fmt.Fprintf(out, "Oldest pending: %s\n", age)
				}
				return nil
			})
		},
	}
}

func flattenSnapshot(snapshot queue.Snapshot) []api.QueueEntry {
	entries := make([]*queue.Entry, 0, snapshot.Total())
	entries = append(entries, snapshot.Processing...)
	entries = append(entries, snapshot.Pending...)
	entries = append(entries, snapshot.Retrying...)
	entries = append(entries, snapshot.Failed...)
	entries = append(entries, snapshot.Completed...)
	return api.FromQueueEntries(entries)
}

func filterEntriesByClass(entries []api.QueueEntry, classes []string) []api.QueueEntry {
	if len(classes) == 0 {
		return entries
	}
	allowed := make(map[string]struct{}, len(classes))
	for _, class := range classes {
		if parsed, ok := queue.ParseClass(class); ok {
			allowed[string(parsed)] = struct{}{}
		}
	}
	filtered := make([]api.QueueEntry, 0, len(entries))
	for _, entry := range entries {
		if _, ok := allowed[entry.Class]; ok {
			filtered = append(filtered, entry)
		}
	}
	return filtered
}
