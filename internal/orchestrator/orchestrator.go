// Package orchestrator drives the poll cycle: retrieve release metadata per
// tracked version, decide whether a retest is needed, fan out the downstream
// job batch, and persist the last-seen timestamp.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/openjdk-ci/releasewatch/internal/config"
	"github.com/openjdk-ci/releasewatch/internal/jenkins"
	"github.com/openjdk-ci/releasewatch/internal/release"
	"github.com/openjdk-ci/releasewatch/internal/state"
	"github.com/openjdk-ci/releasewatch/internal/storage"
)

// ReleaseFetcher abstracts release metadata retrieval for testing.
// Following Dave Cheney's principle: "Accept interfaces, return structs"
type ReleaseFetcher interface {
	// FetchMetadata retrieves release metadata for one binaries repository.
	FetchMetadata(ctx context.Context, repo string, includeEA bool) (*release.Metadata, error)
}

// JobRunner abstracts downstream job submission for testing.
type JobRunner interface {
	// Run submits one job invocation and waits for the queue acknowledgement.
	Run(ctx context.Context, inv jenkins.Invocation) error
}

// CycleStore abstracts poll-history persistence for testing.
type CycleStore interface {
	// RecordCycle inserts a poll-cycle record.
	RecordCycle(cycle *storage.PollCycle) error
}

// Options configures a poll run.
type Options struct {
	WorkspaceDir string
	Concurrency  int
	Force        bool // dispatch even when the release was already seen
	DryRun       bool // build and log the batch without triggering
}

// Orchestrator coordinates one poll run across all tracked versions.
type Orchestrator struct {
	fetcher ReleaseFetcher
	runner  JobRunner
	store   CycleStore
	opts    Options
	stdout  *slog.Logger
	stderr  *slog.Logger
}

// New creates an orchestrator. The store may be nil when no history database
// is configured.
func New(fetcher ReleaseFetcher, runner JobRunner, store CycleStore, opts Options, stdout, stderr *slog.Logger) *Orchestrator {
	if opts.Concurrency <= 0 {
		opts.Concurrency = config.DefaultConcurrency
	}
	return &Orchestrator{
		fetcher: fetcher,
		runner:  runner,
		store:   store,
		opts:    opts,
		stdout:  stdout,
		stderr:  stderr,
	}
}

// Run processes every tracked version. A failure in one version's cycle does
// not stop the others; all failures are reported together.
func (o *Orchestrator) Run(ctx context.Context, watch config.WatchConfig) error {
	var errs []error
	for _, version := range watch.Versions {
		if err := o.ProcessVersion(ctx, version, watch.Repository(version), watch.EAIncluded()); err != nil {
			o.stderr.Error("poll cycle failed", "version", version, "error", err)
			errs = append(errs, fmt.Errorf("version %s: %w", version, err))
		}
	}
	return errors.Join(errs...)
}

// ProcessVersion runs one version's poll cycle: fetch, evaluate, dispatch if
// needed, persist. The timestamp file is written at the end of processing
// regardless of the dispatch outcome; a fetch failure aborts before
// evaluation and persists nothing.
func (o *Orchestrator) ProcessVersion(ctx context.Context, version, repo string, includeEA bool) error {
	o.stdout.Info("polling upstream releases",
		"version", version,
		"repository", repo,
		"include_ea", includeEA)

	metadata, err := o.fetcher.FetchMetadata(ctx, repo, includeEA)
	if err != nil {
		o.recordCycle(&storage.PollCycle{
			Version:      version,
			IncludeEA:    includeEA,
			Status:       storage.StatusFailed,
			ErrorMessage: err.Error(),
		})
		return fmt.Errorf("failed to fetch release metadata: %w", err)
	}

	o.stdout.Info("retrieved release metadata", "version", version, "metadata", metadata.String())

	info, err := state.New(o.opts.WorkspaceDir, version, metadata.Newest, o.stdout)
	if err != nil {
		return err
	}

	cycle := &storage.PollCycle{
		Version:         version,
		NewestTimestamp: metadata.Newest,
		IncludeEA:       includeEA,
		Forced:          o.opts.Force,
	}

	cycle.RetestNeeded = info.IsRetestNeeded()
	var dispatchErr error

	if cycle.RetestNeeded || o.opts.Force {
		invocations, err := o.buildBatch(version, metadata)
		if err != nil {
			dispatchErr = err
		} else {
			cycle.JobsDispatched = len(invocations)
			cycle.JobsFailed, dispatchErr = o.dispatch(ctx, invocations)
		}
		if dispatchErr != nil {
			cycle.Status = storage.StatusFailed
			cycle.ErrorMessage = dispatchErr.Error()
		} else {
			cycle.Status = storage.StatusDispatched
		}
	} else {
		cycle.Status = storage.StatusSkipped
		o.stdout.Info("release already tested, skipping",
			"version", version,
			"newest", metadata.Newest)
	}

	// One-way ratchet: the timestamp is persisted whether or not the batch
	// succeeded.
	if err := info.WriteLatest(); err != nil {
		dispatchErr = errors.Join(dispatchErr, err)
	}

	o.recordCycle(cycle)
	return dispatchErr
}

// buildBatch constructs one invocation per (platform, suite) pair from the
// newest release's resolved contexts. Platforms whose JDK URL never resolved
// are dropped with a warning instead of dispatched with empty parameters.
func (o *Orchestrator) buildBatch(version string, metadata *release.Metadata) ([]jenkins.Invocation, error) {
	contexts, err := metadata.Contexts(version)
	if err != nil {
		return nil, err
	}

	var invocations []jenkins.Invocation
	for _, rctx := range contexts {
		if !rctx.Resolved() {
			o.stderr.Warn("no JDK artifact matched platform, dropping from batch",
				"version", version,
				"platform", rctx.Platform.Classifier())
			continue
		}
		for _, suite := range jenkins.Suites() {
			inv, err := jenkins.NewInvocation(version, suite, rctx)
			if err != nil {
				return nil, err
			}
			invocations = append(invocations, inv)
		}
	}

	if len(invocations) == 0 {
		return nil, fmt.Errorf("no platform resolved a JDK artifact for version %s", version)
	}
	return invocations, nil
}

// dispatch submits the batch concurrently and waits for every member.
// Ordering between members is not guaranteed; any member failure fails the
// batch.
func (o *Orchestrator) dispatch(ctx context.Context, invocations []jenkins.Invocation) (int, error) {
	if o.opts.DryRun {
		for _, inv := range invocations {
			o.stdout.Info("dry run, not triggering", "job", inv.JobName, "display_name", inv.DisplayName())
		}
		return 0, nil
	}

	o.stdout.Info("dispatching job batch",
		"job_count", len(invocations),
		"concurrency", o.opts.Concurrency)

	semaphore := make(chan struct{}, o.opts.Concurrency)
	results := make([]error, len(invocations))
	var wg sync.WaitGroup

	for i, inv := range invocations {
		wg.Add(1)
		go func(index int, inv jenkins.Invocation) {
			defer wg.Done()

			select {
			case semaphore <- struct{}{}:
				defer func() { <-semaphore }()
			case <-ctx.Done():
				results[index] = ctx.Err()
				return
			}

			results[index] = o.runner.Run(ctx, inv)
		}(i, inv)
	}

	wg.Wait()

	failed := 0
	var errs []error
	for i, err := range results {
		if err != nil {
			failed++
			errs = append(errs, fmt.Errorf("%s: %w", invocations[i].JobName, err))
		}
	}

	o.stdout.Info("job batch completed",
		"total", len(invocations),
		"failed", failed)

	return failed, errors.Join(errs...)
}

// recordCycle writes the cycle to the history database when one is
// configured. History failures are logged, not escalated.
func (o *Orchestrator) recordCycle(cycle *storage.PollCycle) {
	if o.store == nil {
		return
	}
	if err := o.store.RecordCycle(cycle); err != nil {
		o.stderr.Warn("failed to record poll cycle", "version", cycle.Version, "error", err)
	}
}
