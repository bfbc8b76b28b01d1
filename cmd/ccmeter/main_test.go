package main

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pario-ai/ccmeter/pkg/budget"
	"github.com/pario-ai/ccmeter/pkg/cost"
	"github.com/pario-ai/ccmeter/pkg/models"
)

// writeFixture creates a log directory, a config pointing at it and returns
// the config path.
func writeFixture(t *testing.T, extra string) string {
	t.Helper()
	t.Setenv("CCMETER_CONFIG_DIR", "")
	t.Setenv("CLAUDE_CONFIG_DIR", "")
	t.Setenv("CCMETER_TZ", "")

	dir := t.TempDir()
	logs := filepath.Join(dir, "projects", "demo")
	require.NoError(t, os.MkdirAll(logs, 0o755))

	lines := []string{
		`{"timestamp":"2025-01-01T10:00:00Z","model":"claude-sonnet-4-20250514","usage":{"input_tokens":1000,"output_tokens":500},"session_id":"s1","project_path":"/work/a","request_id":"r1","message_id":"m1"}`,
		`{"timestamp":"2025-01-01T10:30:00Z","model":"claude-sonnet-4-20250514","usage":{"input_tokens":100,"output_tokens":100},"cost_usd":0.02,"session_id":"s1","project_path":"/work/a","request_id":"r2","message_id":"m2"}`,
		`{"timestamp":"2025-01-02T15:00:00Z","model":"mystery-model","usage":{"input_tokens":5,"output_tokens":5},"session_id":"s2","request_id":"r3","message_id":"m3"}`,
	}
	require.NoError(t, os.WriteFile(filepath.Join(logs, "a.jsonl"), []byte(strings.Join(lines, "\n")+"\n"), 0o644))

	cfg := fmt.Sprintf(`
data_dirs: [%q]
db_path: %q
pricing:
  offline: true
  overrides:
    - model: claude-sonnet-4-20250514
      input_cost_per_token: 0.000003
      output_cost_per_token: 0.000015
%s`, filepath.Join(dir, "projects"), filepath.Join(dir, "ccmeter.db"), extra)
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o644))
	return path
}

// writeLog adds another log file next to the fixture's.
func writeLog(t *testing.T, cfg, name string, lines ...string) {
	t.Helper()
	path := filepath.Join(filepath.Dir(cfg), "projects", "demo", name)
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644))
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestDailyTable(t *testing.T) {
	cfg := writeFixture(t, "")
	out, err := run(t, "daily", "-c", cfg)
	require.NoError(t, err)

	assert.Contains(t, out, "2025-01-01")
	assert.Contains(t, out, "$0.03") // 0.0105 calculated + 0.02 precomputed
	assert.NotContains(t, out, "2025-01-02")
	assert.Contains(t, out, "1 of 3 events skipped (unknown_model=1)")
}

func TestDailyJSON(t *testing.T) {
	cfg := writeFixture(t, "")
	out, err := run(t, "daily", "-c", cfg, "--json")
	require.NoError(t, err)

	var got struct {
		Rows    []models.Bucket `json:"rows"`
		Totals  models.Bucket   `json:"totals"`
		Quality struct {
			Skipped int `json:"skipped"`
		} `json:"quality"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	require.Len(t, got.Rows, 1)
	assert.Equal(t, "2025-01-01", got.Rows[0].Key)
	assert.InDelta(t, 0.0305, got.Totals.Cost, 1e-9)
	assert.Equal(t, int64(1700), got.Totals.TotalTokens)
	assert.Equal(t, 1, got.Quality.Skipped)
}

func TestAbortPolicy(t *testing.T) {
	cfg := writeFixture(t, "on_error: abort\n")
	_, err := run(t, "daily", "-c", cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mystery-model")
}

func TestRejectedRecordsReported(t *testing.T) {
	cfg := writeFixture(t, "")
	writeLog(t, cfg, "b.jsonl",
		`{"timestamp":"2025-01-01T11:00:00Z","model":"claude-sonnet-4-20250514","usage":{"input_tokens":-5,"output_tokens":10},"session_id":"s1","request_id":"r9","message_id":"m9"}`,
		`{not json`,
	)

	out, err := run(t, "daily", "-c", cfg, "--json")
	require.NoError(t, err)
	var got struct {
		Totals  models.Bucket `json:"totals"`
		Quality cost.Quality  `json:"quality"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, int64(1700), got.Totals.TotalTokens)
	assert.Equal(t, 5, got.Quality.Total)
	assert.Equal(t, 2, got.Quality.Costed)
	assert.Equal(t, 3, got.Quality.Skipped)
	assert.Equal(t, map[string]int{"invalid_event": 1, "malformed_line": 1, "unknown_model": 1}, got.Quality.ByReason)

	out, err = run(t, "daily", "-c", cfg)
	require.NoError(t, err)
	assert.Contains(t, out, "3 of 5 events skipped (invalid_event=1, malformed_line=1, unknown_model=1)")
}

func TestAbortPolicyInvalidRecord(t *testing.T) {
	cfg := writeFixture(t, "on_error: abort\n")
	writeLog(t, cfg, "b.jsonl",
		`{"timestamp":"2025-01-01T11:00:00Z","model":"claude-sonnet-4-20250514","usage":{"input_tokens":-5,"output_tokens":10},"request_id":"r9","message_id":"m9"}`,
	)
	_, err := run(t, "daily", "-c", cfg)
	require.Error(t, err)
	assert.True(t, errors.Is(err, cost.ErrInvalidEvent))
}

func TestDisplayModeSkipsUncosted(t *testing.T) {
	cfg := writeFixture(t, "")
	out, err := run(t, "daily", "-c", cfg, "--mode", "display", "--json")
	require.NoError(t, err)
	assert.Contains(t, out, `"missing_precomputed_cost": 2`)
}

func TestTimezoneFlag(t *testing.T) {
	cfg := writeFixture(t, "")
	out, err := run(t, "daily", "-c", cfg, "--timezone", "Asia/Tokyo", "--mode", "auto", "--json")
	if err != nil && strings.Contains(err.Error(), "unknown time zone") {
		t.Skip("tzdata not available")
	}
	require.NoError(t, err)
	assert.Contains(t, out, `"key": "2025-01-01"`)
}

func TestSinceUntil(t *testing.T) {
	cfg := writeFixture(t, "")
	out, err := run(t, "daily", "-c", cfg, "--since", "20250102")
	require.NoError(t, err)
	assert.Contains(t, out, "No usage data found.")

	_, err = run(t, "daily", "-c", cfg, "--since", "Jan 2")
	assert.Error(t, err)
}

func TestBlocksJSON(t *testing.T) {
	cfg := writeFixture(t, "")
	out, err := run(t, "blocks", "-c", cfg, "--json", "--threshold", "4h", "--mode", "calculate")
	require.NoError(t, err)

	var got struct {
		Blocks []struct {
			EventCount       int      `json:"event_count"`
			IsActive         bool     `json:"is_active"`
			GapBeforeSeconds *float64 `json:"gap_before_seconds"`
		} `json:"blocks"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	require.Len(t, got.Blocks, 1)
	assert.Equal(t, 2, got.Blocks[0].EventCount)
	assert.False(t, got.Blocks[0].IsActive)
	assert.Nil(t, got.Blocks[0].GapBeforeSeconds)
}

func TestReportJSON(t *testing.T) {
	cfg := writeFixture(t, "")
	out, err := run(t, "report", "-c", cfg, "--json")
	require.NoError(t, err)

	var got struct {
		Daily    []models.Bucket `json:"daily"`
		Sessions []struct {
			Key string `json:"key"`
		} `json:"sessions"`
		Blocks  []json.RawMessage `json:"blocks"`
		Total   models.Bucket     `json:"total"`
		Quality struct {
			Skipped int `json:"skipped"`
		} `json:"quality"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	require.Len(t, got.Daily, 1)
	assert.Len(t, got.Sessions, 1)
	assert.Len(t, got.Blocks, 1)
	assert.Equal(t, int64(1700), got.Total.TotalTokens)
	assert.Equal(t, 1, got.Quality.Skipped)
}

func TestReportTable(t *testing.T) {
	cfg := writeFixture(t, "")
	out, err := run(t, "report", "-c", cfg)
	require.NoError(t, err)
	assert.Contains(t, out, "Daily")
	assert.Contains(t, out, "Total: 1,700 tokens")
}

const decemberLine = `{"timestamp":"2024-12-31T10:00:00Z","model":"claude-sonnet-4-20250514","usage":{"input_tokens":1000,"output_tokens":0},"cost_usd":0.01,"session_id":"s0","request_id":"r5","message_id":"m5"}`

func TestDailyCompare(t *testing.T) {
	cfg := writeFixture(t, "")
	writeLog(t, cfg, "b.jsonl", decemberLine)

	// The range starts on January 1 but December 31 still serves as the
	// previous day.
	out, err := run(t, "daily", "-c", cfg, "--compare", "--since", "20250101", "--json")
	require.NoError(t, err)
	var got struct {
		Rows    []models.Bucket       `json:"rows"`
		Changes []models.PeriodChange `json:"changes"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	require.Len(t, got.Rows, 1)
	require.Len(t, got.Changes, 1)
	c := got.Changes[0]
	assert.Equal(t, "2025-01-01", c.Key)
	assert.Equal(t, "2024-12-31", c.PreviousKey)
	assert.True(t, c.HasPrevious)
	assert.InDelta(t, 0.0205, c.CostDelta, 1e-9)
	require.NotNil(t, c.CostPercent)
	assert.InDelta(t, 205.0, *c.CostPercent, 1e-6)

	out, err = run(t, "daily", "-c", cfg, "--compare")
	require.NoError(t, err)
	assert.Contains(t, out, "VS PREVIOUS")
	assert.Contains(t, out, "new")
	assert.Contains(t, out, "+205.0%")

	out, err = run(t, "daily", "-c", cfg, "--json")
	require.NoError(t, err)
	assert.NotContains(t, out, `"changes"`)
}

func TestMonthlyCompare(t *testing.T) {
	cfg := writeFixture(t, "")
	writeLog(t, cfg, "b.jsonl", decemberLine)

	out, err := run(t, "monthly", "-c", cfg, "--compare", "--csv")
	require.NoError(t, err)
	recs, err := csv.NewReader(strings.NewReader(out)).ReadAll()
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, []string{"month", "model", "input_tokens", "output_tokens", "cache_creation_tokens", "cache_read_tokens", "total_tokens", "cost_usd", "previous_key", "token_change", "cost_change", "cost_change_percent"}, recs[0])
	assert.Equal(t, "2024-12", recs[1][0])
	assert.Equal(t, "", recs[1][8])
	assert.Equal(t, "2025-01", recs[2][0])
	assert.Equal(t, "2024-12", recs[2][8])
	assert.Equal(t, "700", recs[2][9])

	_, err = run(t, "weekly", "-c", cfg, "--compare")
	assert.Error(t, err)
}

func TestCSVOutput(t *testing.T) {
	cfg := writeFixture(t, "")

	out, err := run(t, "daily", "-c", cfg, "--csv")
	require.NoError(t, err)
	recs, err := csv.NewReader(strings.NewReader(out)).ReadAll()
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "date", recs[0][0])
	assert.Equal(t, []string{"2025-01-01", "claude-sonnet-4-20250514", "1100", "600", "0", "0", "1700"}, recs[1][:7])
	assert.NotContains(t, out, "Data quality")

	out, err = run(t, "session", "-c", cfg, "--csv", "--breakdown")
	require.NoError(t, err)
	recs, err = csv.NewReader(strings.NewReader(out)).ReadAll()
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "session_id", recs[0][0])
	assert.Equal(t, []string{"s1", "/work/a", "2025-01-01T10:00:00Z", "2025-01-01T10:30:00Z", "claude-sonnet-4-20250514"}, recs[1][:5])

	out, err = run(t, "blocks", "-c", cfg, "--csv", "--threshold", "4h")
	require.NoError(t, err)
	recs, err = csv.NewReader(strings.NewReader(out)).ReadAll()
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "start", recs[0][0])
	assert.Equal(t, "", recs[1][2])
	assert.Equal(t, "2", recs[1][4])
	assert.Equal(t, "false", recs[1][len(recs[1])-2])

	_, err = run(t, "daily", "-c", cfg, "--csv", "--json")
	assert.Error(t, err)
}

func TestTrends(t *testing.T) {
	cfg := writeFixture(t, "")
	writeLog(t, cfg, "b.jsonl", decemberLine)

	out, err := run(t, "trends", "-c", cfg, "--json")
	require.NoError(t, err)
	var got struct {
		models.Trend
		Quality cost.Quality `json:"quality"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "2024-12-31", got.FirstKey)
	assert.Equal(t, "2025-01-01", got.LastKey)
	assert.Equal(t, 2, got.ActiveDays)
	assert.Equal(t, models.TrendIncreasing, got.Direction)
	assert.InDelta(t, 0.0405, got.Cost.Total, 1e-9)
	assert.Nil(t, got.Forecast)
	assert.Equal(t, 1, got.Quality.Skipped)

	out, err = run(t, "stats", "-c", cfg)
	require.NoError(t, err)
	assert.Contains(t, out, "Usage trends 2024-12-31 to 2025-01-01")
	assert.Contains(t, out, "increasing")
	assert.Contains(t, out, "Busiest day: Wednesday")

	// The fixture is long past, so a recent window is empty.
	out, err = run(t, "trends", "-c", cfg, "--days", "7")
	require.NoError(t, err)
	assert.Contains(t, out, "No usage data found.")
}

func TestParseDateFlagUsesLocation(t *testing.T) {
	jst := time.FixedZone("JST", 9*60*60)
	got, err := parseDateFlag("since", "20250102", jst)
	require.NoError(t, err)
	assert.True(t, got.Equal(time.Date(2025, 1, 2, 0, 0, 0, 0, jst)))

	got, err = parseDateFlag("since", "", jst)
	require.NoError(t, err)
	assert.True(t, got.IsZero())
}

func TestParseTokenLimit(t *testing.T) {
	l, err := parseTokenLimit("max")
	require.NoError(t, err)
	assert.True(t, l.max)

	l, err = parseTokenLimit("5000")
	require.NoError(t, err)
	assert.Equal(t, int64(5000), l.value)

	_, err = parseTokenLimit("lots")
	assert.Error(t, err)
	_, err = parseTokenLimit("-1")
	assert.Error(t, err)
}

func TestImportThenFromDB(t *testing.T) {
	cfg := writeFixture(t, "")
	out, err := run(t, "import", "-c", cfg)
	require.NoError(t, err)
	assert.Contains(t, out, "Imported 3 new events")

	out, err = run(t, "import", "-c", cfg)
	require.NoError(t, err)
	assert.Contains(t, out, "Imported 0 new events (3 already archived)")

	out, err = run(t, "session", "-c", cfg, "--from-db", "--json")
	require.NoError(t, err)
	assert.Contains(t, out, `"key": "s1"`)

	out, err = run(t, "archive", "stats", "-c", cfg)
	require.NoError(t, err)
	assert.Contains(t, out, "Events:   3")
	assert.Contains(t, out, "Imports:  2")

	out, err = run(t, "archive", "prune", "-c", cfg, "--before", "20250102")
	require.NoError(t, err)
	assert.Contains(t, out, "Pruned 2 events")
}

func TestArchivePruneNeedsCutoff(t *testing.T) {
	cfg := writeFixture(t, "")
	_, err := run(t, "archive", "prune", "-c", cfg)
	assert.Error(t, err)
}

func TestBudgetCheck(t *testing.T) {
	cfg := writeFixture(t, `budget:
  enabled: true
  policies:
    - period: monthly
      max_cost: 0.01
`)
	out, err := run(t, "budget", "status", "-c", cfg)
	require.NoError(t, err)
	assert.Contains(t, out, "monthly")

	// The fixture spend is in January 2025, so only a run in that month
	// can exceed the budget.
	_, err = run(t, "budget", "check", "-c", cfg)
	if err != nil {
		assert.True(t, errors.Is(err, budget.ErrBudgetExceeded))
	}
}

func TestPricingShow(t *testing.T) {
	cfg := writeFixture(t, "")
	out, err := run(t, "pricing", "show", "sonnet-4-2025", "-c", cfg)
	require.NoError(t, err)
	assert.Contains(t, out, "claude-sonnet-4-20250514")
	assert.Contains(t, out, "$3.00")
	assert.Contains(t, out, "source: embedded")
}

func TestPricingCacheCommands(t *testing.T) {
	cfg := writeFixture(t, "")
	out, err := run(t, "pricing", "cache", "stats", "-c", cfg)
	require.NoError(t, err)
	assert.Contains(t, out, "Entries: 0")

	out, err = run(t, "pricing", "cache", "clear", "-c", cfg)
	require.NoError(t, err)
	assert.Contains(t, out, "0 cache entries cleared.")
}

func TestInvalidOrder(t *testing.T) {
	cfg := writeFixture(t, "")
	_, err := run(t, "daily", "-c", cfg, "--order", "sideways")
	assert.Error(t, err)
}
