package migration

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/juju/clock/testclock"

	"github.com/rflorenc/esmigrate/internal/models"
)

func copyPlan(docs map[string]int64, names ...string) *models.MigrationPlan {
	plan := &models.MigrationPlan{ToCopy: names, Documents: make(map[string]int64)}
	for _, n := range names {
		plan.Documents[n] = docs[n]
	}
	return plan
}

func TestRunMaintenance(t *testing.T) {
	dst := newFakeCluster("dst:9200")
	dst.removeErr = map[string]error{"gone": errors.New("HTTP 500")}
	dst.truncateErr = map[string]error{"busy": errors.New("version conflict")}

	plan := &models.MigrationPlan{
		ToRemove:   []string{"old", "gone"},
		ToTruncate: []string{"a", "busy"},
	}
	log, lines := collect()
	d := NewDispatcher(models.NewCluster("src:9200"), dst, testOptions(t.TempDir()), log)
	results := d.RunMaintenance(context.Background(), plan)

	want := []struct {
		action  models.Action
		index   string
		outcome models.Outcome
	}{
		{models.ActionRemove, "old", models.OutcomeOK},
		{models.ActionRemove, "gone", models.OutcomeFailed},
		{models.ActionTruncate, "a", models.OutcomeOK},
		{models.ActionTruncate, "busy", models.OutcomeFailed},
	}
	if len(results) != len(want) {
		t.Fatalf("got %d results, want %d", len(results), len(want))
	}
	for i, w := range want {
		r := results[i]
		if r.Action != w.action || r.Index != w.index || r.Outcome != w.outcome {
			t.Errorf("result %d = %+v, want %v %s %s", i, r, w.action, w.index, w.outcome)
		}
	}
	if results[3].Error != "version conflict" {
		t.Errorf("truncate error = %q", results[3].Error)
	}

	removed, truncated, _ := dst.snapshot()
	if strings.Join(removed, ",") != "old" || strings.Join(truncated, ",") != "a" {
		t.Errorf("removed=%v truncated=%v", removed, truncated)
	}

	out := strings.Join(lines(), "\n")
	for _, s := range []string{"Removing old", "  FAIL removing gone", "Truncating a took 3ms", "  FAIL truncating busy"} {
		if !strings.Contains(out, s) {
			t.Errorf("log missing %q:\n%s", s, out)
		}
	}
}

func TestRunCopies_ConcurrencyCap(t *testing.T) {
	docs := map[string]int64{}
	var names []string
	for i := 0; i < 7; i++ {
		name := fmt.Sprintf("idx-%d", i)
		names = append(names, name)
		docs[name] = int64(10 * (i + 1))
	}
	dst := newFakeCluster("dst:9200")
	dst.sourceDocs = docs
	dst.pollsToDone = 3

	opts := testOptions(t.TempDir())
	opts.Concurrency = 2
	d := NewDispatcher(models.NewCluster("src:9200"), dst, opts, func(string) {})
	results := d.RunCopies(context.Background(), copyPlan(docs, names...), nil)

	for i, r := range results {
		if r.Index != names[i] || r.Outcome != models.OutcomeOK || r.TaskID == "" {
			t.Errorf("result %d = %+v", i, r)
		}
	}
	if dst.maxInFlight > 2 {
		t.Errorf("max in flight = %d, want <= 2", dst.maxInFlight)
	}
	if dst.maxInFlight == 0 {
		t.Error("no task was ever in flight")
	}
	for _, h := range d.Tasks().Snapshot() {
		if h.State != models.TaskDone || !h.Completed || h.ProgressDocuments != docs[h.IndexName] {
			t.Errorf("handle %+v", h)
		}
	}
}

func TestRunCopies_SubmitFailureRegistersFailedHandle(t *testing.T) {
	docs := map[string]int64{"a": 5, "b": 7}
	dst := newFakeCluster("dst:9200")
	dst.sourceDocs = docs
	dst.submitErr = map[string]error{"a": errors.New("HTTP 400: remote host not whitelisted")}

	d := NewDispatcher(models.NewCluster("src:9200"), dst, testOptions(t.TempDir()), func(string) {})
	results := d.RunCopies(context.Background(), copyPlan(docs, "a", "b"), nil)

	if results[0].Outcome != models.OutcomeFailed || !strings.Contains(results[0].Error, "whitelisted") {
		t.Errorf("a: %+v", results[0])
	}
	if results[1].Outcome != models.OutcomeOK {
		t.Errorf("b: %+v", results[1])
	}
	h, ok := d.Tasks().Get("a")
	if !ok || h.State != models.TaskFailed || h.FinishedAt == nil {
		t.Errorf("handle a = %+v (registered %v)", h, ok)
	}
}

func TestRunCopies_SkippedIndexes(t *testing.T) {
	docs := map[string]int64{"a": 5, "b": 7}
	dst := newFakeCluster("dst:9200")
	dst.sourceDocs = docs

	d := NewDispatcher(models.NewCluster("src:9200"), dst, testOptions(t.TempDir()), func(string) {})
	results := d.RunCopies(context.Background(), copyPlan(docs, "a", "b"), map[string]string{"a": "truncate failed"})

	if results[0].Outcome != models.OutcomeSkipped {
		t.Errorf("a: %+v", results[0])
	}
	if _, _, submitted := dst.snapshot(); strings.Join(submitted, ",") != "b" {
		t.Errorf("submitted = %v", submitted)
	}
	if h, _ := d.Tasks().Get("a"); h.State != models.TaskSkipped {
		t.Errorf("handle a state = %s", h.State)
	}
}

func TestRunCopies_TaskFailure(t *testing.T) {
	docs := map[string]int64{"a": 5}
	dst := newFakeCluster("dst:9200")
	dst.sourceDocs = docs
	dst.taskFail = map[string]string{"a": "mapper_parsing_exception: failed to parse"}

	d := NewDispatcher(models.NewCluster("src:9200"), dst, testOptions(t.TempDir()), func(string) {})
	results := d.RunCopies(context.Background(), copyPlan(docs, "a"), nil)

	if results[0].Outcome != models.OutcomeFailed || !strings.Contains(results[0].Error, "mapper_parsing_exception") {
		t.Errorf("result = %+v", results[0])
	}
	if h, _ := d.Tasks().Get("a"); h.State != models.TaskFailed || !h.Completed {
		t.Errorf("handle = %+v", h)
	}
}

func TestRunCopies_StatusErrorIsRetried(t *testing.T) {
	docs := map[string]int64{"a": 5}
	dst := newFakeCluster("dst:9200")
	dst.sourceDocs = docs
	dst.statusErr = errors.New("HTTP 503")

	d := NewDispatcher(models.NewCluster("src:9200"), dst, testOptions(t.TempDir()), func(string) {})
	results := d.RunCopies(context.Background(), copyPlan(docs, "a"), nil)
	if results[0].Outcome != models.OutcomeOK {
		t.Errorf("result = %+v", results[0])
	}
}

func TestRunCopies_Stall(t *testing.T) {
	docs := map[string]int64{"stuck": 5, "fine": 3}
	dst := newFakeCluster("dst:9200")
	dst.sourceDocs = docs
	dst.stuck = map[string]bool{"stuck": true}

	opts := testOptions(t.TempDir())
	opts.StallTimeout = 20 * time.Millisecond
	d := NewDispatcher(models.NewCluster("src:9200"), dst, opts, func(string) {})
	results := d.RunCopies(context.Background(), copyPlan(docs, "stuck", "fine"), nil)

	if results[0].Outcome != models.OutcomeFailed || !strings.Contains(results[0].Error, "stalled") {
		t.Errorf("stuck: %+v", results[0])
	}
	if results[1].Outcome != models.OutcomeOK {
		t.Errorf("fine: %+v", results[1])
	}
	if h, _ := d.Tasks().Get("stuck"); h.State != models.TaskStalled {
		t.Errorf("stuck state = %s", h.State)
	}
}

func TestRunCopies_StallOnClock(t *testing.T) {
	docs := map[string]int64{"stuck": 5}
	dst := newFakeCluster("dst:9200")
	dst.sourceDocs = docs
	dst.stuck = map[string]bool{"stuck": true}

	clk := testclock.NewClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	opts := testOptions(t.TempDir())
	opts.PollInterval = time.Minute
	opts.StallTimeout = 10 * time.Minute
	opts.Clock = clk
	d := NewDispatcher(models.NewCluster("src:9200"), dst, opts, func(string) {})

	done := make(chan []models.ActionResult)
	go func() {
		done <- d.RunCopies(context.Background(), copyPlan(docs, "stuck"), nil)
	}()

	var results []models.ActionResult
	for i := 0; results == nil && i < 20; i++ {
		select {
		case results = <-done:
		default:
			// The last advance leaves no waiter, so an error here is expected.
			_ = clk.WaitAdvance(time.Minute, 100*time.Millisecond, 1)
		}
	}
	if results == nil {
		results = <-done
	}

	if results[0].Outcome != models.OutcomeFailed || !strings.Contains(results[0].Error, "no progress for 10m0s") {
		t.Errorf("stuck: %+v", results[0])
	}
	if h, _ := d.Tasks().Get("stuck"); h.State != models.TaskStalled {
		t.Errorf("stuck state = %s", h.State)
	}
}

func TestRunCopies_Cancelled(t *testing.T) {
	docs := map[string]int64{"a": 5, "b": 5}
	dst := newFakeCluster("dst:9200")
	dst.sourceDocs = docs
	dst.stuck = map[string]bool{"a": true, "b": true}

	opts := testOptions(t.TempDir())
	opts.Concurrency = 1
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	d := NewDispatcher(models.NewCluster("src:9200"), dst, opts, func(string) {})
	results := d.RunCopies(ctx, copyPlan(docs, "a", "b"), nil)

	if results[0].Outcome != models.OutcomeFailed {
		t.Errorf("a: %+v", results[0])
	}
	if results[1].Outcome != models.OutcomeSkipped {
		t.Errorf("b: %+v", results[1])
	}
	for _, h := range d.Tasks().Snapshot() {
		if !h.Finished() {
			t.Errorf("handle %s not finished", h.IndexName)
		}
	}
}
