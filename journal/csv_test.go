package journal

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCSVJournalWritesRows(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	dPath := filepath.Join(dir, "decisions.csv")
	ePath := filepath.Join(dir, "equity.csv")

	j, err := NewCSV(dPath, ePath)
	assert.NoError(t, err)

	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	assert.NoError(t, j.RecordDecision(rec("D1", ts)))
	assert.NoError(t, j.RecordEquity(EquitySnapshot{Time: ts, Equity: 1.002, Position: 0.25, Price: 50000.5}))
	assert.NoError(t, j.Close())

	dBytes, err := os.ReadFile(dPath)
	assert.NoError(t, err)
	dLines := strings.Split(strings.TrimSpace(string(dBytes)), "\n")
	assert.Len(t, dLines, 2)
	assert.Contains(t, dLines[0], "model_version")
	assert.Contains(t, dLines[1], "D1")
	assert.Contains(t, dLines[1], "BTCUSDT")
	assert.Contains(t, dLines[1], "1.002")

	eBytes, err := os.ReadFile(ePath)
	assert.NoError(t, err)
	eLines := strings.Split(strings.TrimSpace(string(eBytes)), "\n")
	assert.Len(t, eLines, 2)
	assert.Contains(t, eLines[1], "50000.5")
}
