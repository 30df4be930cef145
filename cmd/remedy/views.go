package main

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"remedy/internal/api"
)

var statusTitleCaser = cases.Title(language.English)

func buildQueueStatusRows(stats map[string]int) [][]string {
	if len(stats) == 0 {
		return nil
	}
	keys := make([]string, 0, len(stats))
	for key := range stats {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	rows := make([][]string, 0, len(keys))
	for _, key := range keys {
		rows = append(rows, []string{formatStatusLabel(key), fmt.Sprintf("%d", stats[key])})
	}
	return rows
}

func buildQueueListRows(entries []api.QueueEntry) [][]string {
	if len(entries) == 0 {
		return nil
	}
	sorted := make([]api.QueueEntry, len(entries))
	copy(sorted, entries)

	sort.Slice(sorted, func(i, j int) bool {
		ti := parseDisplayTime(sorted[i].CreatedAt)
		tj := parseDisplayTime(sorted[j].CreatedAt)
		if ti.Equal(tj) {
			return sorted[i].ID > sorted[j].ID
		}
		return ti.After(tj)
	})

	rows := make([][]string, 0, len(sorted))
	for _, entry := range sorted {
		rows = append(rows, []string{
			shortID(entry.ID),
			entry.Workspace,
			formatStatusLabel(entry.Class),
			fmt.Sprintf("%d", entry.Attempts),
			formatDisplayTime(entry.CreatedAt),
		})
	}
	return rows
}

func buildWorkspaceRows(workspaces []api.Workspace) [][]string {
	if len(workspaces) == 0 {
		return nil
	}
	sorted := make([]api.Workspace, len(workspaces))
	copy(sorted, workspaces)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Name < sorted[j].Name
	})

	rows := make([][]string, 0, len(sorted))
	for _, ws := range sorted {
		rows = append(rows, []string{
			ws.Name,
			formatStatusLabel(ws.State),
			fmt.Sprintf("%d", ws.Version),
			fmt.Sprintf("%d", ws.Sessions),
			fmt.Sprintf("%d", ws.FeedbackItems),
			formatSuccessRate(ws.SuccessRate),
			formatDisplayTime(ws.UpdatedAt),
		})
	}
	return rows
}

func buildExecutionRows(executions []api.Execution) [][]string {
	if len(executions) == 0 {
		return nil
	}
	rows := make([][]string, 0, len(executions))
	for _, exec := range executions {
		deploy := "-"
		if exec.DeployStatus != "" && exec.DeployStatus != "none" {
			deploy = formatStatusLabel(exec.DeployStatus)
		}
		rows = append(rows, []string{
			shortID(exec.ID),
			exec.Workspace,
			formatStatusLabel(exec.Status),
			formatStatusLabel(exec.Phase),
			formatProgress(exec.Progress),
			deploy,
			formatDisplayTime(exec.CreatedAt),
		})
	}
	return rows
}

func formatStatusLabel(status string) string {
	status = strings.TrimSpace(status)
	if status == "" {
		return ""
	}
	return statusTitleCaser.String(strings.ReplaceAll(status, "_", " "))
}

func formatProgress(value float64) string {
	if value < 0 {
		value = 0
	}
	if value > 1 {
		value = 1
	}
	return fmt.Sprintf("%.0f%%", value*100)
}

func formatSuccessRate(rate float64) string {
	return fmt.Sprintf("%.0f%%", rate*100)
}

func formatDisplayTime(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t.UTC().Format("2006-01-02 15:04")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t.UTC().Format("2006-01-02 15:04")
	}
	return value
}

func parseDisplayTime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t
	}
	return time.Time{}
}

func shortID(id string) string {
	id = strings.TrimSpace(id)
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
