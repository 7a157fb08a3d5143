package journal

import (
	"database/sql"

	_ "github.com/mattn/go-sqlite3"
)

type SQLite struct {
	db *sql.DB
}

func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLite{db: db}, nil
}

func (j *SQLite) RecordDecision(d DecisionRecord) error {
	_, err := j.db.Exec(`
		INSERT INTO decisions
		(id, time, symbol, interval, price, action, position, equity, degraded, duplicate, model_version, note)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.Time, d.Symbol, d.Interval, d.Price, d.Action,
		d.Position, d.Equity, d.Degraded, d.Duplicate, d.ModelVersion, d.Note,
	)
	return err
}

func (j *SQLite) RecordEquity(e EquitySnapshot) error {
	_, err := j.db.Exec(`
		INSERT INTO equity (time, equity, position, price)
		VALUES (?, ?, ?, ?)`,
		e.Time, e.Equity, e.Position, e.Price,
	)
	return err
}

func (j *SQLite) Close() error {
	return j.db.Close()
}
