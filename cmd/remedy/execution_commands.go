package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"remedy/internal/api"
	"remedy/internal/ipc"
)

func newExecutionsCommand(ctx *commandContext) *cobra.Command {
	var workspace string
	var limit int
	var logLimit int
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "executions [executionID]",
		Short: "List recent executions or show one with its history",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				if len(args) == 1 {
					resp, err := client.ExecutionShow(strings.TrimSpace(args[0]), logLimit)
					if err != nil {
						return err
					}
					if jsonOut {
						return emitJSON(cmd, resp)
					}
					printExecutionDetail(cmd, resp)
					return nil
				}

				resp, err := client.ExecutionList(strings.TrimSpace(workspace), limit)
				if err != nil {
					return err
				}
				if jsonOut {
					return emitJSON(cmd, map[string]any{"executions": resp.Executions})
				}
				if len(resp.Executions) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No executions recorded")
					return nil
				}
				columns := []tableColumn{
					{title: "ID"}, {title: "Workspace"}, {title: "Status"}, {title: "Phase"},
					{title: "Progress", numeric: true}, {title: "Deploy"}, {title: "Created"},
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable(columns, buildExecutionRows(resp.Executions)))
				fmt.Fprintln(cmd.OutOrStdout())
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&workspace, "workspace", "w", "", "Filter by workspace")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of executions to list")
	cmd.Flags().IntVar(&logLimit, "log-lines", 20, "Number of log lines to include when showing one execution")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit JSON output")
	return cmd
}

func printExecutionDetail(cmd *cobra.Command, resp *ipc.ExecutionShowResponse) {
	out := cmd.OutOrStdout()
	exec := resp.Execution

	fmt.Fprintf(out, "ID:         %s\n", exec.ID)
	fmt.Fprintf(out, "Workspace:  %s\n", exec.Workspace)
	fmt.Fprintf(out, "Status:     %s\n", formatStatusLabel(exec.Status))
	if exec.Phase != "" {
		fmt.Fprintf(out, "Phase:      %s\n", formatStatusLabel(exec.Phase))
	}
	fmt.Fprintf(out, "Progress:   %s\n", formatProgress(exec.Progress))
	if exec.CommitID != "" {
		fmt.Fprintf(out, "Commit:     %s\n", exec.CommitID)
	}
	if exec.DeployStatus != "" && exec.DeployStatus != "none" {
		fmt.Fprintf(out, "Deploy:     %s (attempt %d)\n", formatStatusLabel(exec.DeployStatus), exec.DeployAttempts)
	}
	if exec.ErrorMessage != "" {
		fmt.Fprintf(out, "Error:      %s\n", exec.ErrorMessage)
	}
	if len(exec.ChangedFiles) > 0 {
		fmt.Fprintf(out, "Changed:    %s\n", strings.Join(exec.ChangedFiles, ", "))
	}
	fmt.Fprintf(out, "Created:    %s\n", formatDisplayTime(exec.CreatedAt))
	if exec.StartedAt != "" {
		fmt.Fprintf(out, "Started:    %s\n", formatDisplayTime(exec.StartedAt))
	}
	if exec.FinishedAt != "" {
		fmt.Fprintf(out, "Finished:   %s\n", formatDisplayTime(exec.FinishedAt))
	}

	if len(resp.Checkpoints) > 0 {
		fmt.Fprintln(out)
		fmt.Fprintln(out, "Checkpoints:")
		for _, cp := range resp.Checkpoints {
			fmt.Fprintf(out, "  %s  %s\n", formatDisplayTime(cp.CreatedAt), formatStatusLabel(cp.Phase))
		}
	}

	if len(resp.Logs) > 0 {
		fmt.Fprintln(out)
		fmt.Fprintln(out, "Recent logs:")
		for _, line := range resp.Logs {
			fmt.Fprintln(out, formatLogLine(line))
		}
	}
}

func formatLogLine(line api.LogLine) string {
	level := strings.ToUpper(strings.TrimSpace(line.Level))
	if level == "" {
		level = "INFO"
	}
	ts := formatDisplayTime(line.CreatedAt)
	if ts == "" {
		return fmt.Sprintf("  %-5s %s", level, line.Message)
	}
	return fmt.Sprintf("  %s %-5s %s", ts, level, line.Message)
}
