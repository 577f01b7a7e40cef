package database

import "database/sql"

const runColumns = `id, started_at, completed_at, duration_seconds, records_found, records_saved, status, error_message`

// CreateRun opens a new row in the run ledger with status "running" and
// zeroed counts, and returns its ID.
func (db *DB) CreateRun() (int64, error) {
	result, err := db.conn.Exec(
		`INSERT INTO scrape_runs (status, records_found, records_saved) VALUES (?, 0, 0)`,
		RunStatusRunning,
	)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

// CompleteRun applies the single terminal update to a run: completion time,
// duration, final counts, terminal status and (on failure) the error message.
// The ledger is append-only; rows are never deleted.
func (db *DB) CompleteRun(id int64, recordsFound, recordsSaved int, status string, errorMessage *string) error {
	_, err := db.conn.Exec(
		`UPDATE scrape_runs
		SET completed_at = datetime('now'),
		    duration_seconds = (julianday('now') - julianday(started_at)) * 86400.0,
		    records_found = ?,
		    records_saved = ?,
		    status = ?,
		    error_message = ?
		WHERE id = ?`,
		recordsFound, recordsSaved, status, errorMessage, id,
	)
	return err
}

// GetRun returns a run by ID, or nil if it doesn't exist.
func (db *DB) GetRun(id int64) (*ScrapeRun, error) {
	row := db.conn.QueryRow(
		`SELECT `+runColumns+` FROM scrape_runs WHERE id = ?`, id,
	)
	return scanRun(row)
}

// LatestRun returns the most recently started run, or nil when the ledger
// is empty.
func (db *DB) LatestRun() (*ScrapeRun, error) {
	row := db.conn.QueryRow(
		`SELECT ` + runColumns + ` FROM scrape_runs ORDER BY started_at DESC, id DESC LIMIT 1`,
	)
	return scanRun(row)
}

// ListRuns returns all runs, newest first.
func (db *DB) ListRuns() ([]ScrapeRun, error) {
	rows, err := db.conn.Query(
		`SELECT ` + runColumns + ` FROM scrape_runs ORDER BY started_at DESC, id DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []ScrapeRun
	for rows.Next() {
		var r ScrapeRun
		if err := rows.Scan(&r.ID, &r.StartedAt, &r.CompletedAt, &r.DurationSeconds,
			&r.RecordsFound, &r.RecordsSaved, &r.Status, &r.ErrorMessage); err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

func scanRun(row *sql.Row) (*ScrapeRun, error) {
	var r ScrapeRun
	err := row.Scan(&r.ID, &r.StartedAt, &r.CompletedAt, &r.DurationSeconds,
		&r.RecordsFound, &r.RecordsSaved, &r.Status, &r.ErrorMessage)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}
