// Package runner orchestrates scrape runs: it dispatches the scraper in the
// background, persists extracted records, and keeps an append-only ledger of
// every run's outcome.
package runner

import (
	"fmt"
	"log"
	"time"

	"valersync/internal/config"
	"valersync/internal/database"
	"valersync/internal/scraper"
)

// extractor is the slice of the scraper the runner drives. Each run gets a
// fresh extractor, so concurrent runs never share progress state.
type extractor interface {
	SetProgress(fn func(string))
	RunFullExtraction(username, password string) ([]scraper.Record, error)
}

// Result is the outcome of a completed run.
type Result struct {
	RunID        int64
	RecordsFound int
	RecordsSaved int
}

// Runner executes scrape runs against the portal and records each one in the
// scrape_runs ledger. A Runner is safe for concurrent use; each run gets its
// own extractor, ledger row, and job entry.
type Runner struct {
	db         *database.DB
	newExtract func() extractor
	jobs       *Jobs
}

// New creates a runner that scrapes the portal configured in cfg.
func New(db *database.DB, cfg *config.Config) *Runner {
	return &Runner{
		db:         db,
		newExtract: func() extractor { return scraper.New(cfg) },
		jobs:       NewJobs(),
	}
}

// Jobs exposes the job registry for status polling.
func (r *Runner) Jobs() *Jobs {
	return r.jobs
}

// Start launches a scrape run in the background and returns its job ID
// immediately. Progress and the terminal outcome are reported through the
// job registry; the run itself is recorded in the ledger.
func (r *Runner) Start(username, password string) string {
	id := r.jobs.Create()
	go func() {
		res, err := r.Run(username, password, func(msg string) {
			r.jobs.SetProgress(id, msg)
		})
		if err != nil {
			r.jobs.Fail(id, err.Error())
			return
		}
		msg := fmt.Sprintf("Completed. %d records saved.", res.RecordsSaved)
		r.jobs.Complete(id, msg, res.RecordsFound, res.RecordsSaved)
	}()
	return id
}

// Run executes one scrape run synchronously. It opens a ledger row before
// the scrape starts and closes it with exactly one terminal update, whether
// the run succeeds or fails. Individual record save failures are logged and
// skipped; they do not fail the run.
func (r *Runner) Run(username, password string, progress func(string)) (Result, error) {
	runID, err := r.db.CreateRun()
	if err != nil {
		return Result{}, fmt.Errorf("creating run record: %w", err)
	}

	res := Result{RunID: runID}
	var runErr error
	defer func() {
		r.finalize(runID, res, runErr)
	}()

	s := r.newExtract()
	s.SetProgress(progress)
	records, err := s.RunFullExtraction(username, password)
	if err != nil {
		runErr = err
		return res, err
	}
	res.RecordsFound = len(records)

	if progress != nil {
		progress(fmt.Sprintf("Saving %d records...", len(records)))
	}
	for _, rec := range records {
		if _, err := r.db.UpsertAuthorization(rec.PatientName, rec.AuthNumber, rec.Status); err != nil {
			log.Printf("error saving record %s: %v", rec.AuthNumber, err)
			continue
		}
		res.RecordsSaved++
	}
	log.Printf("run %d complete: %d found, %d saved", runID, res.RecordsFound, res.RecordsSaved)
	return res, nil
}

// finalize writes the single terminal ledger update for a run.
func (r *Runner) finalize(runID int64, res Result, runErr error) {
	status := database.RunStatusSuccess
	var errMsg *string
	if runErr != nil {
		status = database.RunStatusFailed
		msg := runErr.Error()
		errMsg = &msg
	}
	if err := r.db.CompleteRun(runID, res.RecordsFound, res.RecordsSaved, status, errMsg); err != nil {
		log.Printf("error finalizing run %d: %v", runID, err)
	}
}

// StartSweeper evicts terminal jobs older than maxAge every interval until
// stop is closed.
func (r *Runner) StartSweeper(interval, maxAge time.Duration, stop <-chan struct{}) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if n := r.jobs.Sweep(maxAge); n > 0 {
					log.Printf("evicted %d finished jobs", n)
				}
			case <-stop:
				return
			}
		}
	}()
}
