package storage

import (
	"context"
	"strings"
	"testing"
	"time"

	sq "github.com/Masterminds/squirrel"

	"BriefingScanner/internal/domain"
)

var testBuilder = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

func TestUpsertSnapshotSQL(t *testing.T) {
	t.Parallel()

	fetched := time.Date(2025, 4, 1, 9, 30, 0, 0, time.UTC)
	page := domain.RawPage{
		Ticker:       "IGV",
		DocumentText: "<html>브리핑</html>",
		FetchedAt:    fetched,
	}

	query, args, err := upsertSnapshot(testBuilder, page)
	if err != nil {
		t.Fatalf("build upsert: %v", err)
	}

	if !strings.HasPrefix(query, "INSERT INTO page_snapshots") {
		t.Fatalf("unexpected statement: %q", query)
	}
	if !strings.Contains(query, "ON CONFLICT (ticker, snapshot_date) DO UPDATE") {
		t.Fatalf("upsert clause missing: %q", query)
	}
	if !strings.Contains(query, "document_text = EXCLUDED.document_text") {
		t.Fatalf("document overwrite missing: %q", query)
	}
	for _, placeholder := range []string{"$1", "$2", "$3", "$4"} {
		if !strings.Contains(query, placeholder) {
			t.Fatalf("placeholder %s missing: %q", placeholder, query)
		}
	}

	if len(args) != 4 {
		t.Fatalf("args = %d, want 4", len(args))
	}
	if args[0] != "IGV" {
		t.Fatalf("ticker arg = %v", args[0])
	}
	if args[1] != "2025-04-01" {
		t.Fatalf("snapshot_date arg = %v, want day precision", args[1])
	}
	if args[3] != fetched {
		t.Fatalf("fetched_at arg = %v", args[3])
	}
}

func TestSelectDatesSQL(t *testing.T) {
	t.Parallel()

	query, args, err := selectDates(testBuilder)
	if err != nil {
		t.Fatalf("build dates: %v", err)
	}
	if query != "SELECT DISTINCT snapshot_date FROM page_snapshots ORDER BY snapshot_date DESC" {
		t.Fatalf("unexpected query: %q", query)
	}
	if len(args) != 0 {
		t.Fatalf("args = %v, want none", args)
	}
}

func TestSelectTickersSQL(t *testing.T) {
	t.Parallel()

	query, args, err := selectTickers(testBuilder, "2025-04-01")
	if err != nil {
		t.Fatalf("build tickers: %v", err)
	}
	if !strings.Contains(query, "WHERE snapshot_date = $1") {
		t.Fatalf("date filter missing: %q", query)
	}
	if !strings.Contains(query, "ORDER BY ticker") {
		t.Fatalf("ordering missing: %q", query)
	}
	if len(args) != 1 || args[0] != "2025-04-01" {
		t.Fatalf("args = %v", args)
	}
}

func TestSelectDocumentSQL(t *testing.T) {
	t.Parallel()

	query, args, err := selectDocument(testBuilder, "SOXL", "2025-04-01")
	if err != nil {
		t.Fatalf("build document: %v", err)
	}
	if !strings.Contains(query, "SELECT document_text FROM page_snapshots") {
		t.Fatalf("unexpected query: %q", query)
	}
	if !strings.Contains(query, "snapshot_date = $") || !strings.Contains(query, "ticker = $") {
		t.Fatalf("filters missing: %q", query)
	}
	if len(args) != 2 {
		t.Fatalf("args = %v, want ticker and date", args)
	}
}

func TestNilDBIsInert(t *testing.T) {
	t.Parallel()

	store := NewSnapshotStore(nil)
	ctx := context.Background()

	if err := store.Save(ctx, domain.RawPage{Ticker: "IGV", FetchedAt: time.Now()}); err != nil {
		t.Fatalf("save with nil db: %v", err)
	}
	dates, err := store.Dates(ctx)
	if err != nil || dates != nil {
		t.Fatalf("dates = %v, %v; want empty", dates, err)
	}
	if _, err := store.Document(ctx, "IGV", "2025-04-01"); err == nil {
		t.Fatal("document read should fail without a database")
	}
}

func TestNoopStore(t *testing.T) {
	t.Parallel()

	store := NoopStore{}
	ctx := context.Background()

	if err := store.Save(ctx, domain.RawPage{Ticker: "IGV"}); err != nil {
		t.Fatalf("noop save: %v", err)
	}
	if _, err := store.Document(ctx, "IGV", "2025-04-01"); err == nil {
		t.Fatal("noop document should report not found")
	} else if !strings.Contains(err.Error(), "not found") {
		t.Fatalf("unexpected error: %v", err)
	}
}
