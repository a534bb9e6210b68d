package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/lib/pq"

	"BriefingScanner/internal/domain"
	"BriefingScanner/internal/ports"
)

const (
	snapshotTable = "page_snapshots"
	dateLayout    = "2006-01-02"
)

// SnapshotStore archives rendered documents in Postgres, one row per
// ticker per calendar day. A same-day re-run overwrites the previous
// capture.
type SnapshotStore struct {
	db      *sql.DB
	builder sq.StatementBuilderType
}

var _ ports.SnapshotStore = (*SnapshotStore)(nil)

// Open connects to Postgres and applies pending schema migrations.
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if err := RunMigrations(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// NewSnapshotStore wires a sql.DB implementation.
func NewSnapshotStore(db *sql.DB) *SnapshotStore {
	return &SnapshotStore{
		db:      db,
		builder: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

// Save upserts the day's snapshot for the page's ticker.
func (s *SnapshotStore) Save(ctx context.Context, page domain.RawPage) error {
	if s.db == nil {
		return nil
	}

	query, args, err := upsertSnapshot(s.builder, page)
	if err != nil {
		return fmt.Errorf("build upsert: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert snapshot: %w", err)
	}
	return nil
}

// Dates lists distinct snapshot dates, newest first.
func (s *SnapshotStore) Dates(ctx context.Context) ([]string, error) {
	if s.db == nil {
		return nil, nil
	}

	query, args, err := selectDates(s.builder)
	if err != nil {
		return nil, fmt.Errorf("build dates query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query dates: %w", err)
	}

	var dates []string
	for rows.Next() {
		var day time.Time
		if err := rows.Scan(&day); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan date: %w", err)
		}
		dates = append(dates, day.Format(dateLayout))
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("rows iteration: %w", rowsErr)
	}
	if closeErr := rows.Close(); closeErr != nil {
		return nil, fmt.Errorf("close rows: %w", closeErr)
	}

	return dates, nil
}

// TickersForDate lists the tickers captured on the given date.
func (s *SnapshotStore) TickersForDate(ctx context.Context, date string) ([]string, error) {
	if s.db == nil {
		return nil, nil
	}

	query, args, err := selectTickers(s.builder, date)
	if err != nil {
		return nil, fmt.Errorf("build tickers query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query tickers: %w", err)
	}

	var tickers []string
	for rows.Next() {
		var ticker string
		if err := rows.Scan(&ticker); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan ticker: %w", err)
		}
		tickers = append(tickers, ticker)
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("rows iteration: %w", rowsErr)
	}
	if closeErr := rows.Close(); closeErr != nil {
		return nil, fmt.Errorf("close rows: %w", closeErr)
	}

	return tickers, nil
}

// Document returns the archived document for the ticker and date.
func (s *SnapshotStore) Document(ctx context.Context, ticker, date string) (string, error) {
	if s.db == nil {
		return "", fmt.Errorf("snapshot store disabled")
	}

	query, args, err := selectDocument(s.builder, ticker, date)
	if err != nil {
		return "", fmt.Errorf("build document query: %w", err)
	}

	var document string
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&document); err != nil {
		if err == sql.ErrNoRows {
			return "", fmt.Errorf("snapshot %s/%s not found", date, ticker)
		}
		return "", fmt.Errorf("query document: %w", err)
	}
	return document, nil
}

func upsertSnapshot(builder sq.StatementBuilderType, page domain.RawPage) (string, []any, error) {
	return builder.
		Insert(snapshotTable).
		Columns("ticker", "snapshot_date", "document_text", "fetched_at").
		Values(page.Ticker, page.FetchedAt.Format(dateLayout), page.DocumentText, page.FetchedAt).
		Suffix(`ON CONFLICT (ticker, snapshot_date) DO UPDATE
            SET document_text = EXCLUDED.document_text,
                fetched_at = EXCLUDED.fetched_at`).
		ToSql()
}

func selectDates(builder sq.StatementBuilderType) (string, []any, error) {
	return builder.
		Select("DISTINCT snapshot_date").
		From(snapshotTable).
		OrderBy("snapshot_date DESC").
		ToSql()
}

func selectTickers(builder sq.StatementBuilderType, date string) (string, []any, error) {
	return builder.
		Select("ticker").
		From(snapshotTable).
		Where(sq.Eq{"snapshot_date": date}).
		OrderBy("ticker").
		ToSql()
}

func selectDocument(builder sq.StatementBuilderType, ticker, date string) (string, []any, error) {
	return builder.
		Select("document_text").
		From(snapshotTable).
		Where(sq.Eq{"ticker": ticker, "snapshot_date": date}).
		ToSql()
}
