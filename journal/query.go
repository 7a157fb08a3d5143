package journal

import (
	"database/sql"
	"fmt"
	"time"
)

const decisionCols = `id, time, symbol, interval, price, action, position, equity, degraded, duplicate, model_version, note`

func scanDecision(s interface{ Scan(...any) error }) (DecisionRecord, error) {
	var rec DecisionRecord
	err := s.Scan(
		&rec.ID,
		&rec.Time,
		&rec.Symbol,
		&rec.Interval,
		&rec.Price,
		&rec.Action,
		&rec.Position,
		&rec.Equity,
		&rec.Degraded,
		&rec.Duplicate,
		&rec.ModelVersion,
		&rec.Note,
	)
	return rec, err
}

// GetDecision returns a single decision by ID.
func (j *SQLite) GetDecision(id string) (DecisionRecord, error) {
	row := j.db.QueryRow(`SELECT `+decisionCols+` FROM decisions WHERE id = ?`, id)
	rec, err := scanDecision(row)
	if err == sql.ErrNoRows {
		return DecisionRecord{}, fmt.Errorf("decision %q not found", id)
	}
	return rec, err
}

// ListRecentDecisions returns up to limit decisions, newest last.
func (j *SQLite) ListRecentDecisions(limit int) ([]DecisionRecord, error) {
	rows, err := j.db.Query(`
		SELECT `+decisionCols+`
		FROM (SELECT `+decisionCols+` FROM decisions ORDER BY time DESC LIMIT ?)
		ORDER BY time ASC`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []DecisionRecord
	for rows.Next() {
		rec, err := scanDecision(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// ListDecisionsBetween returns decisions with time in [start, end),
// oldest first.
func (j *SQLite) ListDecisionsBetween(start, end time.Time) ([]DecisionRecord, error) {
	rows, err := j.db.Query(`
		SELECT `+decisionCols+`
		FROM decisions
		WHERE time >= ? AND time < ?
		ORDER BY time ASC`, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []DecisionRecord
	for rows.Next() {
		rec, err := scanDecision(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// ListEquityBetween returns the equity curve over [start, end).
func (j *SQLite) ListEquityBetween(start, end time.Time) ([]EquitySnapshot, error) {
	rows, err := j.db.Query(`
		SELECT time, equity, position, price
		FROM equity
		WHERE time >= ? AND time < ?
		ORDER BY time ASC`, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []EquitySnapshot
	for rows.Next() {
		var e EquitySnapshot
		if err := rows.Scan(&e.Time, &e.Equity, &e.Position, &e.Price); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
