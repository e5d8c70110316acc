package orchestrator

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/go-github/v57/github"

	"github.com/openjdk-ci/releasewatch/internal/jenkins"
	"github.com/openjdk-ci/releasewatch/internal/release"
	"github.com/openjdk-ci/releasewatch/internal/storage"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

type fakeFetcher struct {
	metadata *release.Metadata
	err      error
}

func (f *fakeFetcher) FetchMetadata(ctx context.Context, repo string, includeEA bool) (*release.Metadata, error) {
	return f.metadata, f.err
}

type fakeRunner struct {
	mu      sync.Mutex
	jobs    []string
	failJob string
}

func (f *fakeRunner) Run(ctx context.Context, inv jenkins.Invocation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs = append(f.jobs, inv.JobName)
	if f.failJob != "" && inv.JobName == f.failJob {
		return errors.New("trigger rejected")
	}
	return nil
}

func (f *fakeRunner) jobNames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	names := append([]string(nil), f.jobs...)
	sort.Strings(names)
	return names
}

type fakeStore struct {
	cycles []*storage.PollCycle
}

func (f *fakeStore) RecordCycle(cycle *storage.PollCycle) error {
	f.cycles = append(f.cycles, cycle)
	return nil
}

func metadataWithAssets(t *testing.T, published time.Time, assetNames ...string) *release.Metadata {
	t.Helper()

	var assets []*github.ReleaseAsset
	for _, name := range assetNames {
		assets = append(assets, &github.ReleaseAsset{
			Name:               github.String(name),
			BrowserDownloadURL: github.String("https://example.com/" + name),
		})
	}
	m, err := release.NewMetadata([]*github.RepositoryRelease{{
		TagName:     github.String("jdk-11.0.4+11"),
		PublishedAt: &github.Timestamp{Time: published},
		Assets:      assets,
	}})
	if err != nil {
		t.Fatalf("NewMetadata() unexpected error: %v", err)
	}
	return m
}

func fullAssetSet() []string {
	return []string{
		"OpenJDK11U-jdk_x64_linux_hotspot.tar.gz",
		"OpenJDK11U-jdk_aarch64_linux_hotspot.tar.gz",
		"OpenJDK11U-jdk_x64_windows_hotspot.zip",
	}
}

func newOrchestrator(fetcher ReleaseFetcher, runner JobRunner, store CycleStore, opts Options) *Orchestrator {
	return New(fetcher, runner, store, opts, testLogger(), testLogger())
}

// TestProcessVersionDispatchesFullBatch tests that a fresh release fans out
// one job per (platform, suite) pair and persists the timestamp
func TestProcessVersionDispatchesFullBatch(t *testing.T) {
	published := time.Date(2019, 8, 2, 9, 30, 0, 0, time.UTC)
	workspace := t.TempDir()

	fetcher := &fakeFetcher{metadata: metadataWithAssets(t, published, fullAssetSet()...)}
	runner := &fakeRunner{}
	store := &fakeStore{}

	o := newOrchestrator(fetcher, runner, store, Options{WorkspaceDir: workspace, Concurrency: 2})
	if err := o.ProcessVersion(context.Background(), "11", "openjdk11-binaries", true); err != nil {
		t.Fatalf("ProcessVersion() unexpected error: %v", err)
	}

	// 3 platforms x 2 suites
	want := []string{
		"Test_openjdk11_hs_sanity.openjdk_aarch64_linux",
		"Test_openjdk11_hs_sanity.openjdk_x86-64_linux",
		"Test_openjdk11_hs_sanity.openjdk_x86-64_windows",
		"Test_openjdk11_hs_sanity.system_aarch64_linux",
		"Test_openjdk11_hs_sanity.system_x86-64_linux",
		"Test_openjdk11_hs_sanity.system_x86-64_windows",
	}
	got := runner.jobNames()
	if len(got) != len(want) {
		t.Fatalf("dispatched %d jobs, want %d: %v", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("job[%d] = %q, want %q", i, got[i], want[i])
		}
	}

	// Timestamp persisted.
	data, err := os.ReadFile(filepath.Join(workspace, "latestTimestamp_11"))
	if err != nil {
		t.Fatalf("timestamp file not written: %v", err)
	}
	if string(data) != "2019-08-02T09:30:00Z" {
		t.Errorf("persisted timestamp = %q, want %q", data, "2019-08-02T09:30:00Z")
	}

	// Cycle recorded.
	if len(store.cycles) != 1 {
		t.Fatalf("recorded %d cycles, want 1", len(store.cycles))
	}
	cycle := store.cycles[0]
	if cycle.Status != storage.StatusDispatched || cycle.JobsDispatched != 6 || cycle.JobsFailed != 0 {
		t.Errorf("cycle = %+v, want dispatched with 6 jobs", cycle)
	}
	if !cycle.RetestNeeded {
		t.Error("cycle.RetestNeeded = false, want true for fresh release")
	}
}

// TestProcessVersionSkipsSeenRelease tests that an already-seen release
// dispatches nothing
func TestProcessVersionSkipsSeenRelease(t *testing.T) {
	published := time.Date(2019, 8, 2, 9, 30, 0, 0, time.UTC)
	workspace := t.TempDir()

	// Persist the same timestamp beforehand.
	seed := filepath.Join(workspace, "latestTimestamp_11")
	if err := os.WriteFile(seed, []byte("2019-08-02T09:30:00Z"), 0644); err != nil {
		t.Fatalf("failed to seed timestamp: %v", err)
	}

	fetcher := &fakeFetcher{metadata: metadataWithAssets(t, published, fullAssetSet()...)}
	runner := &fakeRunner{}
	store := &fakeStore{}

	o := newOrchestrator(fetcher, runner, store, Options{WorkspaceDir: workspace})
	if err := o.ProcessVersion(context.Background(), "11", "openjdk11-binaries", true); err != nil {
		t.Fatalf("ProcessVersion() unexpected error: %v", err)
	}

	if len(runner.jobNames()) != 0 {
		t.Errorf("dispatched %v, want no jobs for seen release", runner.jobNames())
	}
	if len(store.cycles) != 1 || store.cycles[0].Status != storage.StatusSkipped {
		t.Errorf("cycle = %+v, want skipped", store.cycles)
	}
}

// TestProcessVersionForcedRetest tests that the force flag dispatches the
// full batch even when the persisted timestamp is up to date
func TestProcessVersionForcedRetest(t *testing.T) {
	published := time.Date(2019, 8, 2, 9, 30, 0, 0, time.UTC)
	workspace := t.TempDir()

	seed := filepath.Join(workspace, "latestTimestamp_11")
	if err := os.WriteFile(seed, []byte("2019-08-02T09:30:00Z"), 0644); err != nil {
		t.Fatalf("failed to seed timestamp: %v", err)
	}

	fetcher := &fakeFetcher{metadata: metadataWithAssets(t, published, fullAssetSet()...)}
	runner := &fakeRunner{}
	store := &fakeStore{}

	o := newOrchestrator(fetcher, runner, store, Options{WorkspaceDir: workspace, Force: true})
	if err := o.ProcessVersion(context.Background(), "11", "openjdk11-binaries", true); err != nil {
		t.Fatalf("ProcessVersion() unexpected error: %v", err)
	}

	if got := len(runner.jobNames()); got != 6 {
		t.Errorf("dispatched %d jobs, want 6 with force", got)
	}
	if len(store.cycles) != 1 || !store.cycles[0].Forced {
		t.Errorf("cycle = %+v, want forced", store.cycles)
	}
	if store.cycles[0].RetestNeeded {
		t.Error("cycle.RetestNeeded = true, want false with up-to-date timestamp")
	}
}

// TestProcessVersionFetchFailure tests that a fetch failure aborts before
// evaluation and persists nothing
func TestProcessVersionFetchFailure(t *testing.T) {
	workspace := t.TempDir()

	fetcher := &fakeFetcher{err: errors.New("release API returned status 401: Bad credentials")}
	runner := &fakeRunner{}
	store := &fakeStore{}

	o := newOrchestrator(fetcher, runner, store, Options{WorkspaceDir: workspace})
	err := o.ProcessVersion(context.Background(), "11", "openjdk11-binaries", true)
	if err == nil {
		t.Fatal("ProcessVersion() expected error, got nil")
	}

	if _, statErr := os.Stat(filepath.Join(workspace, "latestTimestamp_11")); !os.IsNotExist(statErr) {
		t.Error("timestamp file written despite fetch failure")
	}
	if len(runner.jobNames()) != 0 {
		t.Error("jobs dispatched despite fetch failure")
	}
	if len(store.cycles) != 1 || store.cycles[0].Status != storage.StatusFailed {
		t.Errorf("cycle = %+v, want failed", store.cycles)
	}
}

// TestProcessVersionJobFailure tests that a failing batch member fails the
// cycle but the timestamp is still persisted
func TestProcessVersionJobFailure(t *testing.T) {
	published := time.Date(2019, 8, 2, 9, 30, 0, 0, time.UTC)
	workspace := t.TempDir()

	fetcher := &fakeFetcher{metadata: metadataWithAssets(t, published, fullAssetSet()...)}
	runner := &fakeRunner{failJob: "Test_openjdk11_hs_sanity.system_x86-64_windows"}
	store := &fakeStore{}

	o := newOrchestrator(fetcher, runner, store, Options{WorkspaceDir: workspace})
	err := o.ProcessVersion(context.Background(), "11", "openjdk11-binaries", true)
	if err == nil {
		t.Fatal("ProcessVersion() expected error, got nil")
	}

	// Ratchet still advances.
	if _, statErr := os.Stat(filepath.Join(workspace, "latestTimestamp_11")); statErr != nil {
		t.Errorf("timestamp file missing after job failure: %v", statErr)
	}

	if len(store.cycles) != 1 {
		t.Fatalf("recorded %d cycles, want 1", len(store.cycles))
	}
	cycle := store.cycles[0]
	if cycle.Status != storage.StatusFailed || cycle.JobsFailed != 1 {
		t.Errorf("cycle = %+v, want failed with one failed job", cycle)
	}
}

// TestProcessVersionDropsUnresolvedPlatform tests that a platform without a
// matching JDK asset is dropped from the batch
func TestProcessVersionDropsUnresolvedPlatform(t *testing.T) {
	published := time.Date(2019, 8, 2, 9, 30, 0, 0, time.UTC)
	workspace := t.TempDir()

	// No linux-x64 asset.
	fetcher := &fakeFetcher{metadata: metadataWithAssets(t, published,
		"OpenJDK11U-jdk_aarch64_linux_hotspot.tar.gz",
		"OpenJDK11U-jdk_x64_windows_hotspot.zip",
	)}
	runner := &fakeRunner{}

	o := newOrchestrator(fetcher, runner, &fakeStore{}, Options{WorkspaceDir: workspace})
	if err := o.ProcessVersion(context.Background(), "11", "openjdk11-binaries", true); err != nil {
		t.Fatalf("ProcessVersion() unexpected error: %v", err)
	}

	for _, name := range runner.jobNames() {
		if name == "Test_openjdk11_hs_sanity.openjdk_x86-64_linux" || name == "Test_openjdk11_hs_sanity.system_x86-64_linux" {
			t.Errorf("unresolved platform dispatched: %s", name)
		}
	}
	if got := len(runner.jobNames()); got != 4 {
		t.Errorf("dispatched %d jobs, want 4", got)
	}
}

// TestProcessVersionDryRun tests that dry run builds the batch without
// triggering
func TestProcessVersionDryRun(t *testing.T) {
	published := time.Date(2019, 8, 2, 9, 30, 0, 0, time.UTC)
	workspace := t.TempDir()

	fetcher := &fakeFetcher{metadata: metadataWithAssets(t, published, fullAssetSet()...)}
	runner := &fakeRunner{}
	store := &fakeStore{}

	o := newOrchestrator(fetcher, runner, store, Options{WorkspaceDir: workspace, DryRun: true})
	if err := o.ProcessVersion(context.Background(), "11", "openjdk11-binaries", true); err != nil {
		t.Fatalf("ProcessVersion() unexpected error: %v", err)
	}

	if len(runner.jobNames()) != 0 {
		t.Errorf("dry run dispatched jobs: %v", runner.jobNames())
	}
	if len(store.cycles) != 1 || store.cycles[0].JobsDispatched != 6 {
		t.Errorf("cycle = %+v, want 6 planned jobs recorded", store.cycles)
	}
}
