package stage_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofrs/flock"

	"oea/internal/config"
	"oea/internal/metrics"
	"oea/internal/queue"
	"oea/internal/services"
	"oea/internal/stage"
	"oea/internal/staging"
	"oea/internal/submit"
	"oea/internal/testsupport"
)

// fakeSubmitter writes worker outputs synchronously. fail decides, per
// submission round, whether a batch produces nothing.
type fakeSubmitter struct {
	mu      sync.Mutex
	rounds  int
	specs   []submit.JobSpec
	running bool
	fail    func(spec submit.JobSpec, round int) bool
}

func (f *fakeSubmitter) Submit(_ context.Context, specs []submit.JobSpec) ([]submit.Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rounds++
	handles := make([]submit.Handle, 0, len(specs))
	for _, spec := range specs {
		f.specs = append(f.specs, spec)
		if err := os.MkdirAll(filepath.Dir(spec.LogPath), 0o755); err != nil {
			return nil, err
		}
		failed := f.fail != nil && f.fail(spec, f.rounds)
		log := fmt.Sprintf("batch %d round %d\n", spec.BatchIndex, f.rounds)
		if failed {
			log += "out of memory\n"
		}
		if err := os.WriteFile(spec.LogPath, []byte(log), 0o644); err != nil {
			return nil, err
		}
		if !failed {
			if err := os.WriteFile(spec.OutputPath, []byte(fmt.Sprintf("%s-%04d\n", spec.Stage, spec.BatchIndex)), 0o644); err != nil {
				return nil, err
			}
		}
		handles = append(handles, submit.NewHandle("fake", spec))
	}
	return handles, nil
}

func (f *fakeSubmitter) Status(context.Context, submit.Handle) (submit.JobState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.running {
		return submit.StateRunning, nil
	}
	return submit.StateFinished, nil
}

func (f *fakeSubmitter) specsFor(s stage.Stage) []submit.JobSpec {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []submit.JobSpec
	for _, spec := range f.specs {
		if spec.Stage == string(s) {
			out = append(out, spec)
		}
	}
	return out
}

type fakeCommitter struct {
	marker    string
	err       error
	manifests []string
}

func (f *fakeCommitter) Commit(_ context.Context, manifest, _ string) error {
	f.manifests = append(f.manifests, manifest)
	if f.err != nil {
		return f.err
	}
	if err := os.MkdirAll(filepath.Dir(f.marker), 0o755); err != nil {
		return err
	}
	return os.WriteFile(f.marker, []byte("committed\n"), 0o644)
}

type fixture struct {
	cfg       *config.Config
	store     *queue.Store
	stager    staging.Stager
	submitter *fakeSubmitter
	committer *fakeCommitter
	metrics   *metrics.Metrics
	ctrl      *stage.Controller
}

// ten reads of 100 bases with five overlaps each; detection closes every
// four reads (three batches) and adjustment every five (two batches).
const (
	tenLengths = "1 100\n2 100\n3 100\n4 100\n5 100\n6 100\n7 100\n8 100\n9 100\n10 100\n"
	tenCounts  = "1 * 5\n2 * 5\n3 * 5\n4 * 5\n5 * 5\n6 * 5\n7 * 5\n8 * 5\n9 * 5\n10 * 5\n"
)

func newFixture(t *testing.T, mutate func(*config.Config)) *fixture {
	t.Helper()
	cfg := testsupport.NewConfig(t, testsupport.WithCatalogFiles(tenLengths, tenCounts))
	cfg.Detection.MemoryGiB = 0
	cfg.Detection.MaxReads = 4
	cfg.Adjustment.MemoryGiB = 0
	cfg.Adjustment.MaxReads = 5
	cfg.Metrics.Textfile = filepath.Join(testsupport.BaseDir(cfg), "metrics", "oea.prom")
	if mutate != nil {
		mutate(cfg)
	}
	f := &fixture{
		cfg:       cfg,
		store:     testsupport.MustOpenStore(t, cfg),
		stager:    staging.NewLocal(cfg.Paths.WorkDir, "", nil),
		submitter: &fakeSubmitter{},
		committer: &fakeCommitter{marker: cfg.MarkerPath()},
		metrics:   metrics.New(),
	}
	ctrl, err := stage.New(stage.Options{
		Config:    cfg,
		Store:     f.store,
		Stager:    f.stager,
		Submitter: f.submitter,
		Committer: f.committer,
		Metrics:   f.metrics,
	})
	if err != nil {
		t.Fatalf("stage.New: %v", err)
	}
	f.ctrl = ctrl
	return f
}

func (f *fixture) attempt(t *testing.T) int {
	t.Helper()
	n, err := f.store.Attempt(context.Background())
	if err != nil {
		t.Fatalf("Attempt: %v", err)
	}
	return n
}

func (f *fixture) jobs(t *testing.T, s stage.Stage) []queue.Job {
	t.Helper()
	jobs, err := f.store.ListJobs(context.Background(), string(s))
	if err != nil {
		t.Fatalf("ListJobs: %v", err)
	}
	return jobs
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func TestNewRequiresCollaborators(t *testing.T) {
	if _, err := stage.New(stage.Options{}); err == nil {
		t.Fatal("expected error for empty options")
	}
}

func TestRunCompletesWorkflow(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	if err := f.ctrl.Run(ctx, time.Millisecond); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	layout := f.ctrl.Layout()
	merged := testsupport.ReadContent(t, layout.Terminal(stage.Detection))
	if merged != "detection-0001\ndetection-0002\ndetection-0003\n" {
		t.Fatalf("unexpected merged detection output %q", merged)
	}

	detection := f.submitter.specsFor(stage.Detection)
	if len(detection) != 3 {
		t.Fatalf("expected 3 detection batches, got %d", len(detection))
	}
	want := []string{"-S", f.cfg.Paths.StoreDir, "-R", f.cfg.Paths.SeqStoreDir, "-b", "1", "-e", "4", "-erate", "0.045", "-minlen", "500"}
	if !slices.Equal(detection[0].Args, want) {
		t.Fatalf("unexpected worker args %v", detection[0].Args)
	}

	adjustment := f.submitter.specsFor(stage.Adjustment)
	if len(adjustment) != 2 {
		t.Fatalf("expected 2 adjustment batches, got %d", len(adjustment))
	}
	if !slices.Contains(adjustment[0].Args, "-c") || !slices.Contains(adjustment[0].Args, layout.Terminal(stage.Detection)) {
		t.Fatalf("adjustment workers must receive the detection artifact, got %v", adjustment[0].Args)
	}

	manifest := testsupport.ReadContent(t, layout.Terminal(stage.Adjustment))
	if lines := strings.Split(strings.TrimSpace(manifest), "\n"); len(lines) != 2 || lines[0] != adjustment[0].OutputPath || lines[1] != adjustment[1].OutputPath {
		t.Fatalf("unexpected manifest %q", manifest)
	}
	if len(f.committer.manifests) != 1 || f.committer.manifests[0] != layout.Terminal(stage.Adjustment) {
		t.Fatalf("expected one commit of the manifest, got %v", f.committer.manifests)
	}
	if !exists(f.cfg.MarkerPath()) {
		t.Fatal("commit marker missing")
	}

	for _, name := range []string{"detection", "adjustment", "commit"} {
		if rec := testsupport.MustStage(t, f.store, name); rec.State != string(stage.StateDone) {
			t.Fatalf("%s state = %q, want done", name, rec.State)
		}
	}
	if n := f.attempt(t); n != 0 {
		t.Fatalf("attempt counter = %d after merge, want 0", n)
	}
	if jobs := f.jobs(t, stage.Detection); len(jobs) != 0 {
		t.Fatalf("job records should be deleted after merge, got %d", len(jobs))
	}
	for _, spec := range detection {
		if exists(spec.OutputPath) {
			t.Fatalf("merged part %s should be removed", spec.OutputPath)
		}
	}
	if !exists(layout.Report(stage.Detection)) || !exists(layout.StageLog(stage.Detection)) {
		t.Fatal("expected partition report and stage log")
	}
	prom := testsupport.ReadContent(t, f.cfg.Metrics.Textfile)
	if !strings.Contains(prom, `oea_batches_dispatched_total{stage="detection"} 3`) {
		t.Fatalf("metrics textfile missing dispatch counter:\n%s", prom)
	}

	// Re-running after the commit does nothing.
	if err := f.ctrl.Run(ctx, time.Millisecond); err != nil {
		t.Fatalf("second Run returned error: %v", err)
	}
	if len(f.committer.manifests) != 1 || f.submitter.rounds != 2 {
		t.Fatalf("second run must not dispatch or commit again (rounds=%d commits=%d)", f.submitter.rounds, len(f.committer.manifests))
	}
}

func TestCheckRetryBudgetIsShared(t *testing.T) {
	f := newFixture(t, func(cfg *config.Config) { cfg.Workflow.MaxAttempts = 3 })
	f.submitter.fail = func(spec submit.JobSpec, _ int) bool { return spec.BatchIndex == 2 }
	ctx := context.Background()

	state, err := f.ctrl.Configure(ctx, stage.Detection)
	if err != nil || state != stage.StateEmitted {
		t.Fatalf("Configure = %q, %v", state, err)
	}
	if n := f.attempt(t); n != 1 {
		t.Fatalf("attempt after configure = %d, want 1", n)
	}

	tokens := map[string]struct{}{f.jobs(t, stage.Detection)[1].Token: {}}
	for i := 1; i < 3; i++ {
		state, err := f.ctrl.Check(ctx, stage.Detection)
		if err != nil || state != stage.StateAwaitingCompletion {
			t.Fatalf("check %d = %q, %v", i, state, err)
		}
		if n := f.attempt(t); n != i+1 {
			t.Fatalf("attempt after check %d = %d, want %d", i, n, i+1)
		}
		job := f.jobs(t, stage.Detection)[1]
		if _, seen := tokens[job.Token]; seen {
			t.Fatalf("retry %d reused token %s", i, job.Token)
		}
		tokens[job.Token] = struct{}{}
		if !strings.Contains(job.OutputPath, job.Token) {
			t.Fatalf("output path %s does not carry token %s", job.OutputPath, job.Token)
		}
	}

	_, err = f.ctrl.Check(ctx, stage.Detection)
	if !errors.Is(err, services.ErrBatchWorkerFailure) {
		t.Fatalf("expected ErrBatchWorkerFailure on the final check, got %v", err)
	}
	var failure *stage.BatchFailureError
	if !errors.As(err, &failure) {
		t.Fatalf("expected *BatchFailureError, got %T", err)
	}
	if failure.Attempts != 3 || len(failure.Failures) != 1 || failure.Failures[0].Index != 2 {
		t.Fatalf("unexpected failure detail %+v", failure)
	}
	if failure.Failures[0].BeginID != 5 || failure.Failures[0].EndID != 8 {
		t.Fatalf("unexpected failed range %+v", failure.Failures[0])
	}
	if !strings.Contains(failure.Failures[0].Tail, "out of memory") || !strings.Contains(err.Error(), "out of memory") {
		t.Fatalf("expected worker log tail in error, got %v", err)
	}

	// Three submission rounds in total: the initial dispatch and two retries
	// of the failed batch only.
	if f.submitter.rounds != 3 || len(f.submitter.specsFor(stage.Detection)) != 5 {
		t.Fatalf("rounds=%d specs=%d", f.submitter.rounds, len(f.submitter.specsFor(stage.Detection)))
	}
	failures, err := f.store.ListFailures(ctx, string(stage.Detection))
	if err != nil {
		t.Fatalf("ListFailures: %v", err)
	}
	if len(failures) != 3 {
		t.Fatalf("expected 3 recorded failures, got %d", len(failures))
	}
	if exists(f.ctrl.Layout().Terminal(stage.Detection)) {
		t.Fatal("failed stage must not produce a merged artifact")
	}
	if rec := testsupport.MustStage(t, f.store, "detection"); rec.ErrorMessage == "" {
		t.Fatal("expected error message on the stage record")
	}
}

func TestCheckIgnoresSupersededAttempts(t *testing.T) {
	f := newFixture(t, nil)
	f.submitter.fail = func(spec submit.JobSpec, round int) bool { return spec.BatchIndex == 1 && round == 1 }
	ctx := context.Background()

	if _, err := f.ctrl.Configure(ctx, stage.Detection); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	first := f.jobs(t, stage.Detection)[0]
	state, err := f.ctrl.Check(ctx, stage.Detection)
	if err != nil || state != stage.StateAwaitingCompletion {
		t.Fatalf("first check = %q, %v", state, err)
	}

	// The first attempt finishes late, after its retry was issued.
	testsupport.WriteContent(t, first.OutputPath, "stale\n")

	state, err = f.ctrl.Check(ctx, stage.Detection)
	if err != nil || state != stage.StateDone {
		t.Fatalf("second check = %q, %v", state, err)
	}
	merged := testsupport.ReadContent(t, f.ctrl.Layout().Terminal(stage.Detection))
	if merged != "detection-0001\ndetection-0002\ndetection-0003\n" {
		t.Fatalf("merged output used a superseded attempt: %q", merged)
	}
	if exists(first.OutputPath) || exists(first.LogPath) {
		t.Fatal("superseded attempt files should be cleaned up")
	}
}

func TestConfigureIsIdempotent(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	if _, err := f.ctrl.Configure(ctx, stage.Detection); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	descriptor := testsupport.ReadContent(t, f.ctrl.Layout().Descriptor(stage.Detection))

	state, err := f.ctrl.Configure(ctx, stage.Detection)
	if err != nil || state != stage.StateEmitted {
		t.Fatalf("second Configure = %q, %v", state, err)
	}
	if f.submitter.rounds != 1 {
		t.Fatalf("re-entry dispatched again (%d rounds)", f.submitter.rounds)
	}
	if again := testsupport.ReadContent(t, f.ctrl.Layout().Descriptor(stage.Detection)); again != descriptor {
		t.Fatal("re-entry rewrote the descriptor")
	}
	if n := f.attempt(t); n != 1 {
		t.Fatalf("re-entry consumed an attempt (counter %d)", n)
	}
}

func TestGuardsShortCircuit(t *testing.T) {
	cases := []struct {
		name  string
		setup func(t *testing.T, f *fixture)
		want  stage.State
	}{
		{
			name:  "disabled",
			setup: func(_ *testing.T, f *fixture) { f.cfg.Detection.Enabled = false },
			want:  stage.StateSkipped,
		},
		{
			name:  "committed",
			setup: func(t *testing.T, f *fixture) { testsupport.WriteContent(t, f.cfg.MarkerPath(), "") },
			want:  stage.StateDone,
		},
		{
			name: "downstream artifact",
			setup: func(t *testing.T, f *fixture) {
				path := filepath.Join(testsupport.BaseDir(f.cfg), "asm.utgStore")
				testsupport.WriteContent(t, path, "")
				f.cfg.Paths.DownstreamArtifacts = []string{path}
			},
			want: stage.StateDone,
		},
		{
			name: "stage artifact",
			setup: func(t *testing.T, f *fixture) {
				testsupport.WriteContent(t, f.ctrl.Layout().Terminal(stage.Detection), "merged\n")
			},
			want: stage.StateDone,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, nil)
			tc.setup(t, f)
			ctx := context.Background()
			for _, phase := range []func(context.Context, stage.Stage) (stage.State, error){f.ctrl.Configure, f.ctrl.Check} {
				state, err := phase(ctx, stage.Detection)
				if err != nil || state != tc.want {
					t.Fatalf("got %q, %v; want %q", state, err, tc.want)
				}
			}
			if f.submitter.rounds != 0 {
				t.Fatal("short-circuited stage dispatched work")
			}
			if exists(f.ctrl.Layout().Descriptor(stage.Detection)) {
				t.Fatal("short-circuited stage wrote a descriptor")
			}
		})
	}
}

func TestCheckWaitsForRunningJobs(t *testing.T) {
	f := newFixture(t, nil)
	f.submitter.running = true
	ctx := context.Background()

	if _, err := f.ctrl.Configure(ctx, stage.Detection); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	for i := 0; i < 3; i++ {
		state, err := f.ctrl.Check(ctx, stage.Detection)
		if err != nil || state != stage.StateAwaitingCompletion {
			t.Fatalf("check while running = %q, %v", state, err)
		}
	}
	if n := f.attempt(t); n != 1 {
		t.Fatalf("running jobs consumed attempts (counter %d)", n)
	}

	f.submitter.running = false
	state, err := f.ctrl.Check(ctx, stage.Detection)
	if err != nil || state != stage.StateDone {
		t.Fatalf("check after completion = %q, %v", state, err)
	}
}

func TestCheckRebuildsLostJobRecords(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	if _, err := f.ctrl.Configure(ctx, stage.Detection); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	if _, err := f.store.DeleteJobs(ctx, string(stage.Detection)); err != nil {
		t.Fatalf("DeleteJobs: %v", err)
	}
	state, err := f.ctrl.Check(ctx, stage.Detection)
	if err != nil || state != stage.StateDone {
		t.Fatalf("Check = %q, %v", state, err)
	}
	if f.submitter.rounds != 1 {
		t.Fatalf("rebuilt jobs with outputs should not be resubmitted (%d rounds)", f.submitter.rounds)
	}
}

func TestCheckSettlesStageMergedBeforeRestart(t *testing.T) {
	f := newFixture(t, func(cfg *config.Config) { cfg.Workflow.MaxAttempts = 3 })
	f.submitter.fail = func(spec submit.JobSpec, round int) bool { return spec.BatchIndex == 2 && round == 1 }
	ctx := context.Background()

	if _, err := f.ctrl.Configure(ctx, stage.Detection); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	if state, err := f.ctrl.Check(ctx, stage.Detection); err != nil || state != stage.StateAwaitingCompletion {
		t.Fatalf("Check = %q, %v", state, err)
	}
	if n := f.attempt(t); n != 2 {
		t.Fatalf("attempt after retry = %d, want 2", n)
	}

	// The merged artifact is published but the process stops before the
	// job records and attempt counter are cleared.
	testsupport.WriteContent(t, f.ctrl.Layout().Terminal(stage.Detection), "merged\n")

	state, err := f.ctrl.Check(ctx, stage.Detection)
	if err != nil || state != stage.StateDone {
		t.Fatalf("Check after restart = %q, %v", state, err)
	}
	if n := f.attempt(t); n != 0 {
		t.Fatalf("attempt after settling = %d, want 0", n)
	}
	if jobs := f.jobs(t, stage.Detection); len(jobs) != 0 {
		t.Fatalf("expected job records dropped, got %d", len(jobs))
	}
	if rec := testsupport.MustStage(t, f.store, "detection"); rec.State != string(stage.StateDone) {
		t.Fatalf("detection record state = %q, want done", rec.State)
	}

	if _, err := f.ctrl.Configure(ctx, stage.Adjustment); err != nil {
		t.Fatalf("Configure adjustment: %v", err)
	}
	if n := f.attempt(t); n != 1 {
		t.Fatalf("adjustment attempt = %d, want 1", n)
	}

	// Settling detection again must not touch the counter adjustment owns.
	if state, err := f.ctrl.Check(ctx, stage.Detection); err != nil || state != stage.StateDone {
		t.Fatalf("repeat Check = %q, %v", state, err)
	}
	if n := f.attempt(t); n != 1 {
		t.Fatalf("adjustment attempt after detection check = %d, want 1", n)
	}
}

func TestConfigureAdjustmentSettlesDetection(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	if _, err := f.ctrl.Configure(ctx, stage.Detection); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	testsupport.WriteContent(t, f.ctrl.Layout().Terminal(stage.Detection), "merged\n")

	if _, err := f.ctrl.Configure(ctx, stage.Adjustment); err != nil {
		t.Fatalf("Configure adjustment: %v", err)
	}
	if n := f.attempt(t); n != 1 {
		t.Fatalf("adjustment attempt = %d, want 1", n)
	}
	if jobs := f.jobs(t, stage.Detection); len(jobs) != 0 {
		t.Fatalf("expected detection job records dropped, got %d", len(jobs))
	}
}

func TestCheckBeforeConfigure(t *testing.T) {
	f := newFixture(t, nil)
	if _, err := f.ctrl.Check(context.Background(), stage.Detection); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestCommitFailureLeavesStoreUncommitted(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	for _, s := range stage.Stages {
		if _, err := f.ctrl.Configure(ctx, s); err != nil {
			t.Fatalf("Configure %s: %v", s, err)
		}
		if state, err := f.ctrl.Check(ctx, s); err != nil || state != stage.StateDone {
			t.Fatalf("Check %s = %q, %v", s, state, err)
		}
	}

	f.committer.err = services.Wrap(services.ErrAggregationFailure, "commit", "load", "loader exited 1", nil)
	if _, err := f.ctrl.Commit(ctx); !errors.Is(err, services.ErrAggregationFailure) {
		t.Fatalf("expected ErrAggregationFailure, got %v", err)
	}
	if exists(f.cfg.MarkerPath()) {
		t.Fatal("failed commit left a marker")
	}
	if rec := testsupport.MustStage(t, f.store, "commit"); rec.State == string(stage.StateDone) {
		t.Fatal("failed commit recorded done")
	}

	f.committer.err = nil
	state, err := f.ctrl.Commit(ctx)
	if err != nil || state != stage.StateDone {
		t.Fatalf("Commit retry = %q, %v", state, err)
	}
	if !exists(f.cfg.MarkerPath()) {
		t.Fatal("commit marker missing")
	}
	state, err = f.ctrl.Commit(ctx)
	if err != nil || state != stage.StateDone || len(f.committer.manifests) != 2 {
		t.Fatalf("commit after marker must be a no-op: %q, %v, %d calls", state, err, len(f.committer.manifests))
	}
}

func TestCommitRequiresManifest(t *testing.T) {
	f := newFixture(t, nil)
	if _, err := f.ctrl.Commit(context.Background()); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	if len(f.committer.manifests) != 0 {
		t.Fatal("committer ran without a manifest")
	}
}

func TestCommitSkippedWithoutAdjustment(t *testing.T) {
	f := newFixture(t, func(cfg *config.Config) { cfg.Adjustment.Enabled = false })
	if err := f.ctrl.Run(context.Background(), time.Millisecond); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rec := testsupport.MustStage(t, f.store, "commit"); rec.State != string(stage.StateSkipped) {
		t.Fatalf("commit state = %q, want skipped", rec.State)
	}
	if exists(f.cfg.MarkerPath()) {
		t.Fatal("skipped commit created a marker")
	}
}

func TestAdjustmentWithoutDetection(t *testing.T) {
	f := newFixture(t, func(cfg *config.Config) { cfg.Detection.Enabled = false })
	if err := f.ctrl.Run(context.Background(), time.Millisecond); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if specs := f.submitter.specsFor(stage.Detection); len(specs) != 0 {
		t.Fatalf("disabled detection dispatched %d batches", len(specs))
	}
	for _, spec := range f.submitter.specsFor(stage.Adjustment) {
		if slices.Contains(spec.Args, "-c") {
			t.Fatalf("adjustment without detection output got -c: %v", spec.Args)
		}
	}
}

func TestAdjustmentRequiresDetectionArtifact(t *testing.T) {
	f := newFixture(t, nil)
	if _, err := f.ctrl.Configure(context.Background(), stage.Adjustment); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestRunRefusesHeldLock(t *testing.T) {
	f := newFixture(t, nil)
	if err := os.MkdirAll(f.cfg.Paths.WorkDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	lock := flock.New(f.ctrl.Layout().Lock())
	locked, err := lock.TryLock()
	if err != nil || !locked {
		t.Fatalf("TryLock = %v, %v", locked, err)
	}
	defer lock.Unlock()

	err = f.ctrl.Run(context.Background(), time.Millisecond)
	if err == nil || !strings.Contains(err.Error(), "another orchestrator") {
		t.Fatalf("expected lock error, got %v", err)
	}
	if f.submitter.rounds != 0 {
		t.Fatal("locked run dispatched work")
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	f := newFixture(t, nil)
	f.submitter.running = true
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := f.ctrl.Run(ctx, 10*time.Millisecond)
	if err == nil || ctx.Err() == nil {
		t.Fatalf("expected Run to stop with the context, got %v", err)
	}
}

func TestStatusReportsPersistedState(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	if _, err := f.ctrl.Configure(ctx, stage.Detection); err != nil {
		t.Fatalf("Configure: %v", err)
	}

	report, err := f.ctrl.Status(ctx)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if report.Attempt != 1 || report.MaxAttempts != f.cfg.Workflow.MaxAttempts || report.Committed {
		t.Fatalf("unexpected report header %+v", report)
	}
	if len(report.Stages) != 3 {
		t.Fatalf("expected detection, adjustment and commit rows, got %d", len(report.Stages))
	}
	detection := report.Stages[0]
	if detection.Name != "detection" || detection.State != stage.StateEmitted || !detection.Configured {
		t.Fatalf("unexpected detection status %+v", detection)
	}
	if detection.Batches != 3 || detection.Jobs[queue.JobPending] != 3 {
		t.Fatalf("unexpected detection counts %+v", detection)
	}
	if adjustment := report.Stages[1]; adjustment.State != stage.StateNotStarted || adjustment.Configured {
		t.Fatalf("unexpected adjustment status %+v", adjustment)
	}
}
