package tracker

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/pario-ai/ccmeter/pkg/models"
)

func newTestTracker(t *testing.T) *SQLiteTracker {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	tr, err := New(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = tr.Close() })
	return tr
}

var t0 = time.Date(2025, 2, 1, 12, 0, 0, 123456789, time.UTC)

func testEvent(id string, ts time.Time) models.UsageEvent {
	return models.UsageEvent{
		Timestamp:   ts,
		Model:       "claude-sonnet-4",
		Usage:       models.TokenUsage{InputTokens: 100, OutputTokens: 50, CacheReadInputTokens: 10},
		SessionID:   "sess-1",
		ProjectPath: "/work",
		RequestID:   "req_" + id,
		MessageID:   "msg_" + id,
	}
}

func TestRecordAndQuery(t *testing.T) {
	tr := newTestTracker(t)
	ctx := context.Background()

	withCost := testEvent("1", t0)
	withCost.CostUSD = models.Float(0.25)
	noCost := testEvent("2", t0.Add(time.Minute))
	noCost.SessionID = ""

	batch, err := tr.Record(ctx, "test", []models.UsageEvent{noCost, withCost})
	if err != nil {
		t.Fatal(err)
	}
	if batch.ID == "" || batch.Inserted != 2 || batch.Ignored != 0 {
		t.Fatalf("unexpected batch %+v", batch)
	}

	events, err := tr.Query(ctx, time.Time{}, time.Time{})
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	got := events[0]
	if !got.Timestamp.Equal(t0) {
		t.Errorf("timestamp lost precision: %v", got.Timestamp)
	}
	if got.CostUSD == nil || *got.CostUSD != 0.25 {
		t.Errorf("expected cost 0.25, got %v", got.CostUSD)
	}
	if got.Usage.CacheReadInputTokens != 10 || got.Usage.Total() != 160 {
		t.Errorf("unexpected usage %+v", got.Usage)
	}
	if got.SessionID != "sess-1" || got.ProjectPath != "/work" {
		t.Errorf("unexpected identity %+v", got)
	}
	if events[1].CostUSD != nil {
		t.Error("absent cost should stay nil")
	}
	if events[1].SessionID != "" {
		t.Error("absent session should stay empty")
	}
}

func TestRecordIgnoresDuplicates(t *testing.T) {
	tr := newTestTracker(t)
	ctx := context.Background()

	ev := testEvent("1", t0)
	if _, err := tr.Record(ctx, "first", []models.UsageEvent{ev}); err != nil {
		t.Fatal(err)
	}
	batch, err := tr.Record(ctx, "second", []models.UsageEvent{ev, testEvent("2", t0)})
	if err != nil {
		t.Fatal(err)
	}
	if batch.Inserted != 1 || batch.Ignored != 1 {
		t.Errorf("expected 1 inserted 1 ignored, got %+v", batch)
	}

	imports, err := tr.Imports(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(imports) != 2 {
		t.Fatalf("expected 2 imports, got %d", len(imports))
	}
	if imports[0].Source != "second" {
		t.Errorf("expected newest import first, got %s", imports[0].Source)
	}
}

func TestQueryRange(t *testing.T) {
	tr := newTestTracker(t)
	ctx := context.Background()

	var events []models.UsageEvent
	for i := range 5 {
		events = append(events, testEvent(string(rune('a'+i)), t0.Add(time.Duration(i)*time.Hour)))
	}
	if _, err := tr.Record(ctx, "test", events); err != nil {
		t.Fatal(err)
	}

	got, err := tr.Query(ctx, t0.Add(time.Hour), t0.Add(3*time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 events, got %d", len(got))
	}
	if got[0].RequestID != "req_b" || got[1].RequestID != "req_c" {
		t.Errorf("unexpected events %s %s", got[0].RequestID, got[1].RequestID)
	}
}

func TestStatsAndSummary(t *testing.T) {
	tr := newTestTracker(t)
	ctx := context.Background()

	other := testEvent("3", t0.Add(2*time.Hour))
	other.Model = "claude-opus-4"
	other.SessionID = "sess-2"
	_, _ = tr.Record(ctx, "test", []models.UsageEvent{testEvent("1", t0), testEvent("2", t0.Add(time.Hour)), other})

	stats, err := tr.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Events != 3 || stats.Sessions != 2 || stats.Imports != 1 {
		t.Errorf("unexpected stats %+v", stats)
	}
	if !stats.FirstEvent.Equal(t0) || !stats.LastEvent.Equal(t0.Add(2*time.Hour)) {
		t.Errorf("unexpected range %v - %v", stats.FirstEvent, stats.LastEvent)
	}

	summaries, err := tr.Summary(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(summaries) != 2 {
		t.Fatalf("expected 2 summaries, got %d", len(summaries))
	}
	if summaries[0].Model != "claude-opus-4" || summaries[0].EventCount != 1 {
		t.Errorf("unexpected summary %+v", summaries[0])
	}
	if summaries[1].Usage.InputTokens != 200 {
		t.Errorf("expected 200 input tokens, got %d", summaries[1].Usage.InputTokens)
	}
}

func TestStatsEmpty(t *testing.T) {
	tr := newTestTracker(t)
	stats, err := tr.Stats(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if stats.Events != 0 || !stats.FirstEvent.IsZero() {
		t.Errorf("unexpected stats %+v", stats)
	}
}

func TestPrune(t *testing.T) {
	tr := newTestTracker(t)
	ctx := context.Background()

	_, _ = tr.Record(ctx, "test", []models.UsageEvent{
		testEvent("old", t0.Add(-48*time.Hour)),
		testEvent("new", t0),
	})

	n, err := tr.Prune(ctx, t0.Add(-24*time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("expected 1 pruned, got %d", n)
	}
	events, _ := tr.Query(ctx, time.Time{}, time.Time{})
	if len(events) != 1 || events[0].RequestID != "req_new" {
		t.Errorf("unexpected remaining events %+v", events)
	}
}

func TestMigrationIdempotent(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	// Create tracker twice; the second should not fail.
	tr1, err := New(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	_ = tr1.Close()

	tr2, err := New(dbPath)
	if err != nil {
		t.Fatal("second New() failed:", err)
	}
	_ = tr2.Close()
}

func TestMigrationAddsBatchColumn(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "legacy.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Exec(createTable); err != nil {
		t.Fatal(err)
	}
	if columnExists(db, "usage_events", "batch_id") {
		t.Fatal("legacy schema should not have batch_id")
	}
	_ = db.Close()

	tr, err := New(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	defer tr.Close()
	if !columnExists(tr.db, "usage_events", "batch_id") {
		t.Error("expected batch_id column after migration")
	}
}
