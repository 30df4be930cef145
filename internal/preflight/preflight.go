package preflight

import (
	"context"

	"golang.org/x/sync/errgroup"

	"remedy/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes all applicable preflight checks for the given config.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Queue directory", cfg.Paths.QueueDir),
		CheckDirectoryAccess("Data directory", cfg.Paths.DataDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
		CheckFreeDisk("Queue volume", cfg.Paths.QueueDir, cfg.Worker.MinFreeDiskMiB),
	}

	// Endpoint probes block on the network, so they run concurrently.
	endpoints := []struct {
		name     string
		endpoint string
	}{
		{"Agent", cfg.Agent.Endpoint},
		{"Prompt generator", cfg.PromptGen.Endpoint},
		{"Deploy API", cfg.Deploy.Endpoint},
	}
	probes := make([]Result, len(endpoints))
	group, groupCtx := errgroup.WithContext(ctx)
	for i, target := range endpoints {
		i, target := i, target
		group.Go(func() error {
			probes[i] = CheckEndpoint(groupCtx, target.name, target.endpoint)
			return nil
		})
	}
	_ = group.Wait()

	return append(results, probes...)
}

// Passed reports whether every result in the set passed.
func Passed(results []Result) bool {
	for _, result := range results {
		if !result.Passed {
			return false
		}
	}
	return true
}
