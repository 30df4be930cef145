package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"remedy/internal/ipc"
)

func newTriggerCommand(ctx *commandContext) *cobra.Command {
	var reasons []string
	var attachments []string
	var feedbackFile string
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "trigger <workspace>",
		Short: "Submit feedback and start a remediation cycle",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := strings.TrimSpace(args[0])
			if workspace == "" {
				return errors.New("workspace name is required")
			}

			feedback, err := collectFeedback(reasons, attachments, feedbackFile)
			if err != nil {
				return err
			}
			if len(feedback) == 0 {
				return errors.New("at least one feedback item is required (use --reason or --feedback-file)")
			}

			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Trigger(workspace, feedback)
				if err != nil {
					return err
				}
				if jsonOut {
					return emitJSON(cmd, map[string]any{
						"workspace":    workspace,
						"execution_id": resp.ExecutionID,
						"feedback":     len(feedback),
					})
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Triggered remediation for workspace %s\n", workspace)
				fmt.Fprintf(out, "Execution: %s\n", resp.ExecutionID)
				return nil
			})
		},
	}

	cmd.Flags().StringArrayVarP(&reasons, "reason", "r", nil, "Feedback reasoning (repeatable)")
	cmd.Flags().StringArrayVar(&attachments, "attach", nil, "Attachment reference for the matching --reason (repeatable)")
	cmd.Flags().StringVarP(&feedbackFile, "feedback-file", "F", "", "JSON file containing feedback items")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit JSON output")
	return cmd
}

type feedbackFileItem struct {
	ID         string `json:"id"`
	Reasoning  string `json:"reasoning"`
	Attachment string `json:"attachment,omitempty"`
}

func collectFeedback(reasons, attachments []string, feedbackFile string) ([]ipc.FeedbackItem, error) {
	if len(attachments) > len(reasons) {
		return nil, errors.New("more --attach values than --reason values")
	}

	items := make([]ipc.FeedbackItem, 0, len(reasons))
	for i, reason := range reasons {
		reason = strings.TrimSpace(reason)
		if reason == "" {
			return nil, errors.New("feedback reasoning must not be empty")
		}
		item := ipc.FeedbackItem{ID: uuid.NewString(), Reasoning: reason}
		if i < len(attachments) {
			item.Attachment = strings.TrimSpace(attachments[i])
		}
		items = append(items, item)
	}

	if path := strings.TrimSpace(feedbackFile); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read feedback file: %w", err)
		}
		var fileItems []feedbackFileItem
		if err := json.Unmarshal(data, &fileItems); err != nil {
			return nil, fmt.Errorf("parse feedback file: %w", err)
		}
		for _, fi := range fileItems {
			reasoning := strings.TrimSpace(fi.Reasoning)
			if reasoning == "" {
				return nil, fmt.Errorf("feedback file item %q has no reasoning", fi.ID)
			}
			id := strings.TrimSpace(fi.ID)
			if id == "" {
				id = uuid.NewString()
			}
			items = append(items, ipc.FeedbackItem{
				ID:         id,
				Reasoning:  reasoning,
				Attachment: strings.TrimSpace(fi.Attachment),
			})
		}
	}

	return items, nil
}
