package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"remedy/internal/api"
	"remedy/internal/ipc"
)

func newWorkspacesCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "workspaces [name]",
		Short: "List tracked workspaces or show one by name",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				if len(args) == 1 {
					resp, err := client.WorkspaceShow(strings.TrimSpace(args[0]))
					if err != nil {
						return err
					}
					if jsonOut {
						return emitJSON(cmd, resp.Workspace)
					}
					printWorkspaceDetail(cmd, resp.Workspace)
					return nil
				}

				resp, err := client.WorkspaceList()
				if err != nil {
					return err
				}
				if jsonOut {
					return emitJSON(cmd, map[string]any{"workspaces": resp.Workspaces})
				}
				if len(resp.Workspaces) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No workspaces tracked")
					return nil
				}
				columns := []tableColumn{
					{title: "Name"}, {title: "State"}, {title: "Version", numeric: true},
					{title: "Sessions", numeric: true}, {title: "Feedback", numeric: true},
					{title: "Success Rate", numeric: true}, {title: "Updated"},
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable(columns, buildWorkspaceRows(resp.Workspaces)))
				fmt.Fprintln(cmd.OutOrStdout())
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit JSON output")
	return cmd
}

func printWorkspaceDetail(cmd *cobra.Command, ws api.Workspace) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Name:         %s\n", ws.Name)
	fmt.Fprintf(out, "State:        %s\n", formatStatusLabel(ws.State))
	fmt.Fprintf(out, "Version:      %d\n", ws.Version)
	fmt.Fprintf(out, "Sessions:     %d\n", ws.Sessions)
	fmt.Fprintf(out, "Feedback:     %d\n", ws.FeedbackItems)
	fmt.Fprintf(out, "Successes:    %d\n", ws.Successes)
	fmt.Fprintf(out, "Failures:     %d\n", ws.Failures)
	fmt.Fprintf(out, "Success rate: %s\n", formatSuccessRate(ws.SuccessRate))
	fmt.Fprintf(out, "Created:      %s\n", formatDisplayTime(ws.CreatedAt))
	fmt.Fprintf(out, "Updated:      %s\n", formatDisplayTime(ws.UpdatedAt))
}

func newApproveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "approve <workspace>",
		Short: "Promote a beta workspace to in_review",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Approve(strings.TrimSpace(args[0]))
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Workspace %s is now %s\n",
					resp.Workspace.Name, formatStatusLabel(resp.Workspace.State))
				return nil
			})
		},
	}
}

func newVerifyCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "verify <workspace>",
		Short: "Promote an in_review workspace to verified",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Verify(strings.TrimSpace(args[0]))
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Workspace %s is now %s\n",
					resp.Workspace.Name, formatStatusLabel(resp.Workspace.State))
				return nil
			})
		},
	}
}
