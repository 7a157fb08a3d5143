package journal

const Schema = `
CREATE TABLE IF NOT EXISTS decisions (
	id TEXT PRIMARY KEY,
	time DATETIME NOT NULL,
	symbol TEXT NOT NULL,
	interval TEXT NOT NULL,
	price REAL NOT NULL,
	action REAL NOT NULL,
	position REAL NOT NULL,
	equity REAL NOT NULL,
	degraded INTEGER NOT NULL DEFAULT 0,
	duplicate INTEGER NOT NULL DEFAULT 0,
	model_version TEXT NOT NULL DEFAULT '',
	note TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS equity (
	time DATETIME NOT NULL,
	equity REAL NOT NULL,
	position REAL NOT NULL,
	price REAL NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_decisions_time ON decisions(time);
CREATE INDEX IF NOT EXISTS idx_equity_time ON equity(time);
`
