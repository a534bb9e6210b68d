package ports

import (
	"context"
	"time"

	"BriefingScanner/internal/domain"
)

// ScriptRunner evaluates JavaScript in the currently rendered page and
// unmarshals the result into out.
type ScriptRunner interface {
	RunScript(ctx context.Context, js string, out any) error
}

// PageFetcher renders the source page for a ticker inside a shared
// browser session and returns the document. Fetch must wrap timeouts in
// domain.ErrFetchTimeout and other failures in domain.ErrFetch.
type PageFetcher interface {
	ScriptRunner
	Fetch(ctx context.Context, ticker string) (domain.RawPage, error)
	Close() error
}

// BriefingExtractor turns a rendered document into a structured briefing.
// It never fails: fetch-independent problems surface through the returned
// Status. The script runner may be nil when no live page is available.
type BriefingExtractor interface {
	Extract(ctx context.Context, ticker, documentText string, scripts ScriptRunner) domain.StructuredBriefing
}

// BatchRunner executes one orchestrated scrape over the requested tickers.
// It always returns a complete result: per-ticker failures are substituted
// in place, never propagated.
type BatchRunner interface {
	RunBatch(ctx context.Context, tickers []string) domain.BatchResult
}

// DeliveryChannel pushes formatted briefings to subscribers.
type DeliveryChannel interface {
	SendText(ctx context.Context, text string, mode domain.FormatMode) error
	SendImage(ctx context.Context, image []byte, caption string) error
}

// SnapshotStore archives raw documents keyed by ticker and capture date
// for later inspection.
type SnapshotStore interface {
	Save(ctx context.Context, page domain.RawPage) error
	Dates(ctx context.Context) ([]string, error)
	TickersForDate(ctx context.Context, date string) ([]string, error)
	Document(ctx context.Context, ticker, date string) (string, error)
}

// MarketData serves daily price history for chart analysis.
type MarketData interface {
	History(ctx context.Context, ticker, period string) (domain.ChartData, error)
}

// ChartRenderer draws price history with moving averages as a PNG.
type ChartRenderer interface {
	RenderChart(data domain.ChartData) ([]byte, error)
}

// CardRenderer draws a briefing body as a shareable PNG card.
type CardRenderer interface {
	RenderCard(ticker, body string, day time.Time) ([]byte, error)
}

// Scheduler controls when pipelines execute.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}
