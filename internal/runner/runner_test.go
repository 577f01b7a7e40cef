package runner

import (
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"valersync/internal/database"
	"valersync/internal/scraper"
)

func openTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// fakeExtractor stands in for the scraper. It records progress reports and
// returns canned records or a canned error.
type fakeExtractor struct {
	records  []scraper.Record
	err      error
	progress func(string)
	ready    chan struct{} // if non-nil, extraction blocks until closed
}

func (f *fakeExtractor) SetProgress(fn func(string)) { f.progress = fn }

func (f *fakeExtractor) RunFullExtraction(username, password string) ([]scraper.Record, error) {
	if f.ready != nil {
		<-f.ready
	}
	if f.progress != nil {
		f.progress("Extracting authorization records...")
	}
	return f.records, f.err
}

func newTestRunner(db *database.DB, fakes ...*fakeExtractor) *Runner {
	var mu sync.Mutex
	i := 0
	return &Runner{
		db: db,
		newExtract: func() extractor {
			mu.Lock()
			defer mu.Unlock()
			f := fakes[i%len(fakes)]
			i++
			return f
		},
		jobs: NewJobs(),
	}
}

func sampleRecords() []scraper.Record {
	return []scraper.Record{
		{PatientName: "John Smith", AuthNumber: "5150.25", Status: scraper.StatusPending},
		{PatientName: "Jane Doe", AuthNumber: "4180.50", Status: scraper.StatusPending},
		{PatientName: "Frank Holt", AuthNumber: "5150.75", Status: scraper.StatusPending},
	}
}

func TestRunSavesRecordsAndClosesLedger(t *testing.T) {
	db := openTestDB(t)
	r := newTestRunner(db, &fakeExtractor{records: sampleRecords()})

	res, err := r.Run("user", "pass", nil)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if res.RecordsFound != 3 || res.RecordsSaved != 3 {
		t.Errorf("expected 3 found / 3 saved, got %d / %d", res.RecordsFound, res.RecordsSaved)
	}

	count, err := db.CountAuthorizations()
	if err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 3 {
		t.Errorf("expected 3 authorizations, got %d", count)
	}

	run, err := db.GetRun(res.RunID)
	if err != nil {
		t.Fatalf("get run failed: %v", err)
	}
	if run.Status != database.RunStatusSuccess {
		t.Errorf("expected status %q, got %q", database.RunStatusSuccess, run.Status)
	}
	if run.CompletedAt == nil {
		t.Error("expected run to be completed")
	}
	if run.RecordsFound != 3 || run.RecordsSaved != 3 {
		t.Errorf("ledger counts: expected 3 / 3, got %d / %d", run.RecordsFound, run.RecordsSaved)
	}
}

func TestRunScrapeFailureClosesLedgerAsFailed(t *testing.T) {
	db := openTestDB(t)
	r := newTestRunner(db, &fakeExtractor{err: scraper.ErrAuthFailed})

	res, err := r.Run("user", "wrong", nil)
	if !errors.Is(err, scraper.ErrAuthFailed) {
		t.Fatalf("expected auth failure, got %v", err)
	}

	run, err := db.GetRun(res.RunID)
	if err != nil {
		t.Fatalf("get run failed: %v", err)
	}
	if run.Status != database.RunStatusFailed {
		t.Errorf("expected status %q, got %q", database.RunStatusFailed, run.Status)
	}
	if run.CompletedAt == nil {
		t.Error("expected failed run to be completed")
	}
	if run.RecordsFound != 0 || run.RecordsSaved != 0 {
		t.Errorf("expected 0 / 0 counts, got %d / %d", run.RecordsFound, run.RecordsSaved)
	}
	if run.ErrorMessage == nil || *run.ErrorMessage == "" {
		t.Error("expected error message on failed run")
	}

	count, err := db.CountAuthorizations()
	if err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 0 {
		t.Errorf("expected no authorizations after failed run, got %d", count)
	}
}

func TestRunWritesExactlyOneLedgerRowPerRun(t *testing.T) {
	db := openTestDB(t)
	r := newTestRunner(db,
		&fakeExtractor{records: sampleRecords()},
		&fakeExtractor{err: errors.New("portal unreachable")},
	)

	r.Run("user", "pass", nil)
	r.Run("user", "pass", nil)

	runs, err := db.ListRuns()
	if err != nil {
		t.Fatalf("list runs failed: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 ledger rows, got %d", len(runs))
	}
	for _, run := range runs {
		if run.Status == database.RunStatusRunning {
			t.Errorf("run %d never reached a terminal status", run.ID)
		}
		if run.CompletedAt == nil {
			t.Errorf("run %d has no completion time", run.ID)
		}
	}
}

func TestRunReportsSaveProgress(t *testing.T) {
	db := openTestDB(t)
	r := newTestRunner(db, &fakeExtractor{records: sampleRecords()})

	var messages []string
	if _, err := r.Run("user", "pass", func(msg string) {
		messages = append(messages, msg)
	}); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if len(messages) < 2 {
		t.Fatalf("expected extraction and save progress, got %v", messages)
	}
}

func waitForTerminal(t *testing.T, jobs *Jobs, id string) JobStatus {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		job, ok := jobs.Get(id)
		if !ok {
			t.Fatalf("job %s unknown", id)
		}
		if job.Status != JobStatusRunning {
			return job
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("job %s never finished", id)
	return JobStatus{}
}

func TestStartReturnsImmediatelyAndCompletesJob(t *testing.T) {
	db := openTestDB(t)
	ready := make(chan struct{})
	r := newTestRunner(db, &fakeExtractor{records: sampleRecords(), ready: ready})

	id := r.Start("user", "pass")
	job, ok := r.Jobs().Get(id)
	if !ok {
		t.Fatal("job not registered")
	}
	if job.Status != JobStatusRunning {
		t.Errorf("expected running status before extraction, got %q", job.Status)
	}

	close(ready)
	job = waitForTerminal(t, r.Jobs(), id)
	if job.Status != JobStatusCompleted {
		t.Errorf("expected completed, got %q (%s)", job.Status, job.Error)
	}
	if job.RecordsFound != 3 || job.RecordsSaved != 3 {
		t.Errorf("expected 3 / 3, got %d / %d", job.RecordsFound, job.RecordsSaved)
	}
	if job.CompletedAt == nil {
		t.Error("expected completion time")
	}
}

func TestStartFailureMarksJobFailed(t *testing.T) {
	db := openTestDB(t)
	r := newTestRunner(db, &fakeExtractor{err: errors.New("portal unreachable")})

	id := r.Start("user", "pass")
	job := waitForTerminal(t, r.Jobs(), id)
	if job.Status != JobStatusFailed {
		t.Errorf("expected failed, got %q", job.Status)
	}
	if job.Error != "portal unreachable" {
		t.Errorf("unexpected job error: %q", job.Error)
	}
}

func TestConcurrentRunsGetSeparateLedgerRows(t *testing.T) {
	db := openTestDB(t)
	r := newTestRunner(db,
		&fakeExtractor{records: sampleRecords()},
		&fakeExtractor{records: sampleRecords()[:2]},
	)

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := r.Run("user", "pass", nil); err != nil {
				t.Errorf("run failed: %v", err)
			}
		}()
	}
	wg.Wait()

	runs, err := db.ListRuns()
	if err != nil {
		t.Fatalf("list runs failed: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 ledger rows, got %d", len(runs))
	}
	found := map[int]bool{}
	for _, run := range runs {
		if run.Status != database.RunStatusSuccess {
			t.Errorf("run %d: expected success, got %q", run.ID, run.Status)
		}
		found[run.RecordsFound] = true
	}
	if !found[3] || !found[2] {
		t.Errorf("expected one run with 3 records and one with 2, got %v", found)
	}
}

func TestJobsGetReturnsSnapshot(t *testing.T) {
	jobs := NewJobs()
	id := jobs.Create()

	snap, _ := jobs.Get(id)
	snap.Progress = "mutated"

	fresh, _ := jobs.Get(id)
	if fresh.Progress == "mutated" {
		t.Error("Get leaked the live job entry")
	}
}

func TestJobsGetUnknown(t *testing.T) {
	jobs := NewJobs()
	if _, ok := jobs.Get("no-such-job"); ok {
		t.Error("expected lookup miss for unknown job")
	}
}

func TestJobsSweepEvictsOnlyOldTerminalJobs(t *testing.T) {
	jobs := NewJobs()
	running := jobs.Create()
	old := jobs.Create()
	recent := jobs.Create()

	jobs.Complete(old, "done", 1, 1)
	jobs.Complete(recent, "done", 1, 1)
	past := time.Now().UTC().Add(-2 * time.Hour)
	jobs.mu.Lock()
	jobs.jobs[old].CompletedAt = &past
	jobs.mu.Unlock()

	if n := jobs.Sweep(time.Hour); n != 1 {
		t.Errorf("expected 1 eviction, got %d", n)
	}
	if _, ok := jobs.Get(old); ok {
		t.Error("old terminal job should be evicted")
	}
	if _, ok := jobs.Get(running); !ok {
		t.Error("running job must survive the sweep")
	}
	if _, ok := jobs.Get(recent); !ok {
		t.Error("recent terminal job must survive the sweep")
	}
}
