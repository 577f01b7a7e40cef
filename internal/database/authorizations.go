package database

import (
	"database/sql"
	"errors"
)

// ErrNotFound is returned when a record lookup by ID finds nothing.
var ErrNotFound = errors.New("record not found")

// ErrConflict is returned when a manual edit would give a record an
// auth_number that already belongs to another record.
var ErrConflict = errors.New("auth_number already in use")

const authorizationColumns = `id, patient_name, auth_number, status, manually_edited, created_at, updated_at`

// UpsertAuthorization inserts a record keyed by auth_number, or updates
// patient_name and status in place when the auth_number already exists.
// manually_edited is never touched on this path, so scrape-driven writes
// cannot clear a manual-edit flag.
func (db *DB) UpsertAuthorization(patientName, authNumber, status string) (*Authorization, error) {
	if status == "" {
		status = StatusPending
	}

	existing, err := db.GetAuthorizationByNumber(authNumber)
	if err != nil {
		return nil, err
	}

	if existing != nil {
		_, err := db.conn.Exec(
			`UPDATE authorizations SET patient_name = ?, status = ?, updated_at = datetime('now')
			WHERE auth_number = ?`,
			patientName, status, authNumber,
		)
		if err != nil {
			return nil, err
		}
		return db.GetAuthorizationByNumber(authNumber)
	}

	result, err := db.conn.Exec(
		`INSERT INTO authorizations (patient_name, auth_number, status) VALUES (?, ?, ?)`,
		patientName, authNumber, status,
	)
	if err != nil {
		return nil, err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, err
	}
	return db.GetAuthorization(id)
}

// GetAuthorization returns a record by ID, or nil if it doesn't exist.
func (db *DB) GetAuthorization(id int64) (*Authorization, error) {
	row := db.conn.QueryRow(
		`SELECT `+authorizationColumns+` FROM authorizations WHERE id = ?`, id,
	)
	return scanAuthorization(row)
}

// GetAuthorizationByNumber returns a record by auth_number, or nil.
func (db *DB) GetAuthorizationByNumber(authNumber string) (*Authorization, error) {
	row := db.conn.QueryRow(
		`SELECT `+authorizationColumns+` FROM authorizations WHERE auth_number = ?`, authNumber,
	)
	return scanAuthorization(row)
}

// ListAuthorizations returns all records, newest first.
func (db *DB) ListAuthorizations() ([]Authorization, error) {
	rows, err := db.conn.Query(
		`SELECT ` + authorizationColumns + ` FROM authorizations ORDER BY created_at DESC, id DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []Authorization
	for rows.Next() {
		var a Authorization
		var edited int
		if err := rows.Scan(&a.ID, &a.PatientName, &a.AuthNumber, &a.Status,
			&edited, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		a.ManuallyEdited = edited != 0
		records = append(records, a)
	}
	return records, rows.Err()
}

// CountAuthorizations returns the total number of records.
func (db *DB) CountAuthorizations() (int, error) {
	var count int
	err := db.conn.QueryRow("SELECT COUNT(*) FROM authorizations").Scan(&count)
	return count, err
}

// UpdateAuthorization applies a manual edit: nil patch fields are left alone,
// manually_edited is stamped true, updated_at refreshed. Returns ErrNotFound
// for an unknown ID and ErrConflict when the patched auth_number collides
// with a different record.
func (db *DB) UpdateAuthorization(id int64, patch AuthorizationPatch) (*Authorization, error) {
	existing, err := db.GetAuthorization(id)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, ErrNotFound
	}

	if patch.AuthNumber != nil && *patch.AuthNumber != existing.AuthNumber {
		other, err := db.GetAuthorizationByNumber(*patch.AuthNumber)
		if err != nil {
			return nil, err
		}
		if other != nil {
			return nil, ErrConflict
		}
	}

	name := existing.PatientName
	if patch.PatientName != nil {
		name = *patch.PatientName
	}
	number := existing.AuthNumber
	if patch.AuthNumber != nil {
		number = *patch.AuthNumber
	}
	status := existing.Status
	if patch.Status != nil {
		status = *patch.Status
	}

	_, err = db.conn.Exec(
		`UPDATE authorizations
		SET patient_name = ?, auth_number = ?, status = ?, manually_edited = 1, updated_at = datetime('now')
		WHERE id = ?`,
		name, number, status, id,
	)
	if err != nil {
		return nil, err
	}
	return db.GetAuthorization(id)
}

func scanAuthorization(row *sql.Row) (*Authorization, error) {
	var a Authorization
	var edited int
	err := row.Scan(&a.ID, &a.PatientName, &a.AuthNumber, &a.Status,
		&edited, &a.CreatedAt, &a.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	a.ManuallyEdited = edited != 0
	return &a, nil
}
