package scraper

import (
	"errors"
	"log"
	"strings"

	"valersync/internal/browser"
)

const (
	tableSelector     = "#table1"
	tableBodySelector = "#table1 tbody"
	rowSelector       = "#table1 tbody tr"
	cellSelector      = "td"
)

// maxRowAttempts bounds how often a single row is re-read after its handle
// goes stale before the row is given up on.
const maxRowAttempts = 3

// minRowCells is the least number of cells a row must have to be usable:
// last name, first name, and the due-amount column at index 3.
const minRowCells = 4

// errSkipRow marks a row that is malformed rather than flaky: too few cells
// or empty normalized fields. Skipped rows are dropped without retrying.
var errSkipRow = errors.New("row skipped")

// errRowVanished marks a row whose handle went stale mid-read. The fix is a
// fresh handle, not another poll of the dead one, so readRow surfaces it
// immediately instead of letting the wait loop retry.
var errRowVanished = errors.New("row vanished mid-read")

// extractRows waits for the records table to render and reads every row.
// Individual rows that are malformed or stay stale are skipped; the returned
// slice preserves page order and may be empty, which is a valid result.
// Duplicate auth numbers are not collapsed here; the store's upsert handles
// that downstream.
func (s *Scraper) extractRows(page browser.Page) ([]Record, error) {
	if err := s.waitReady(page); err != nil {
		return nil, err
	}
	if _, err := s.waitPresent(page, tableSelector); err != nil {
		return nil, err
	}
	if _, err := s.waitVisible(page, tableSelector); err != nil {
		return nil, err
	}
	if _, err := s.waitPresent(page, tableBodySelector); err != nil {
		return nil, err
	}

	rows, err := waitFor("table rows", s.timeout, s.poll, func() ([]browser.Element, error) {
		rows, err := page.Elements(rowSelector)
		if err != nil {
			return nil, err
		}
		if len(rows) == 0 {
			return nil, errNotYet
		}
		return rows, nil
	})
	if err != nil {
		return nil, err
	}

	records := make([]Record, 0, len(rows))
	for i := range rows {
		rec, ok := s.extractRow(page, rows, i)
		if ok {
			records = append(records, rec)
		}
	}

	log.Printf("extracted %d authorization records from %d rows", len(records), len(rows))
	return records, nil
}

// extractRow reads one row by position, retrying with a fresh handle when the
// previous one went stale. The row position is the durable reference; the
// element handle is re-resolved from it on every retry.
func (s *Scraper) extractRow(page browser.Page, snapshot []browser.Element, index int) (Record, bool) {
	for attempt := 0; attempt < maxRowAttempts; attempt++ {
		row := snapshot[index]
		if attempt > 0 {
			// The old handle is assumed stale; re-query the whole
			// collection and index back in.
			rows, err := page.Elements(rowSelector)
			if err != nil || index >= len(rows) {
				log.Printf("row %d no longer resolvable, skipping", index)
				return Record{}, false
			}
			row = rows[index]
		}

		rec, err := s.readRow(row)
		if err == nil {
			return rec, true
		}
		if errors.Is(err, errSkipRow) {
			return Record{}, false
		}
		if errors.Is(err, errRowVanished) {
			log.Printf("row %d went stale (attempt %d/%d)", index, attempt+1, maxRowAttempts)
			continue
		}
		log.Printf("error reading row %d, skipping: %v", index, err)
		return Record{}, false
	}

	log.Printf("row %d stayed stale after %d attempts, skipping", index, maxRowAttempts)
	return Record{}, false
}

// readRow pulls the name and due-amount cells out of a row and normalizes
// them into a Record. A stale handle surfaces as errRowVanished.
func (s *Scraper) readRow(row browser.Element) (Record, error) {
	cells, err := waitFor("row cells", s.rowTimeout, s.poll, func() ([]browser.Element, error) {
		cells, err := row.Elements(cellSelector)
		if err != nil {
			return nil, vanishedOr(err)
		}
		if len(cells) == 0 {
			return nil, errNotYet
		}
		return cells, nil
	})
	if err != nil {
		return Record{}, err
	}

	if len(cells) < minRowCells {
		return Record{}, errSkipRow
	}

	// Cells can populate asynchronously; wait for the first field before
	// trusting the rest. A timeout here just leaves the name empty, which
	// the skip check below handles.
	lastName, err := waitFor("row text", s.rowTimeout, s.poll, func() (string, error) {
		text, err := cells[0].Text()
		if err != nil {
			return "", vanishedOr(err)
		}
		if strings.TrimSpace(text) == "" {
			return "", errNotYet
		}
		return text, nil
	})
	if err != nil {
		var te *TimeoutError
		if !errors.As(err, &te) {
			return Record{}, err
		}
	}

	firstName, err := cellText(cells[1])
	if err != nil {
		return Record{}, err
	}
	dueAmount, err := cellText(cells[3])
	if err != nil {
		return Record{}, err
	}

	rec := Record{
		PatientName: normalizeName(firstName, lastName),
		AuthNumber:  normalizeAuthNumber(dueAmount),
		Status:      StatusPending,
	}
	if rec.PatientName == "" || rec.AuthNumber == "" {
		return Record{}, errSkipRow
	}
	return rec, nil
}

func cellText(cell browser.Element) (string, error) {
	text, err := cell.Text()
	if err != nil {
		return "", vanishedOr(err)
	}
	return text, nil
}

// vanishedOr maps a stale-element error to errRowVanished and passes every
// other error through untouched.
func vanishedOr(err error) error {
	if errors.Is(err, browser.ErrStale) {
		return errRowVanished
	}
	return err
}

// normalizeName joins name parts with a single space and trims whitespace.
func normalizeName(first, last string) string {
	parts := append(strings.Fields(first), strings.Fields(last)...)
	return strings.Join(parts, " ")
}

// normalizeAuthNumber strips the currency symbol and thousands separators
// from the portal's due-amount column, which doubles as the authorization
// number.
func normalizeAuthNumber(raw string) string {
	cleaned := strings.ReplaceAll(raw, "$", "")
	cleaned = strings.ReplaceAll(cleaned, ",", "")
	return strings.TrimSpace(cleaned)
}
