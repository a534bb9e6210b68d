package orchestrate

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"BriefingScanner/internal/config"
	"BriefingScanner/internal/domain"
	"BriefingScanner/internal/ports"
)

type fetcherStub struct {
	delay   map[string]time.Duration
	errs    map[string]error
	pages   map[string]string
	fetched []string
	closed  bool
}

func (f *fetcherStub) Fetch(ctx context.Context, ticker string) (domain.RawPage, error) {
	f.fetched = append(f.fetched, ticker)

	if d := f.delay[ticker]; d > 0 {
		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return domain.RawPage{}, fmt.Errorf("%w: %s", domain.ErrFetchTimeout, ticker)
		}
	}
	if err := f.errs[ticker]; err != nil {
		return domain.RawPage{}, err
	}

	page := f.pages[ticker]
	if page == "" {
		page = "<div>" + ticker + "</div>"
	}
	return domain.RawPage{Ticker: ticker, DocumentText: page, FetchedAt: time.Now()}, nil
}

func (f *fetcherStub) RunScript(context.Context, string, any) error { return nil }

func (f *fetcherStub) Close() error {
	f.closed = true
	return nil
}

type extractorStub struct{}

func (extractorStub) Extract(_ context.Context, ticker, documentText string, _ ports.ScriptRunner) domain.StructuredBriefing {
	return domain.StructuredBriefing{
		Ticker:    ticker,
		Narrative: []string{documentText},
		Status:    domain.StatusOK,
	}
}

type snapshotStub struct {
	saved   map[string]string
	saveErr error
}

func (s *snapshotStub) Save(_ context.Context, page domain.RawPage) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	if s.saved == nil {
		s.saved = map[string]string{}
	}
	s.saved[page.Ticker] = page.DocumentText
	return nil
}

func (s *snapshotStub) Dates(context.Context) ([]string, error)                  { return nil, nil }
func (s *snapshotStub) TickersForDate(context.Context, string) ([]string, error) { return nil, nil }
func (s *snapshotStub) Document(context.Context, string, string) (string, error) { return "", nil }

func newTestOrchestrator(t *testing.T, fetcher *fetcherStub, snapshots *snapshotStub, opts Options) *Orchestrator {
	t.Helper()

	if opts.PerTicker == 0 {
		opts.PerTicker = time.Second
	}
	if opts.Aggregate == 0 {
		opts.Aggregate = 5 * time.Second
	}
	if opts.Pacing == 0 {
		opts.Pacing = time.Millisecond
	}
	return New(config.Load(""), opts, Deps{
		OpenSession: func(context.Context) (ports.PageFetcher, error) { return fetcher, nil },
		Extractor:   extractorStub{},
		Snapshots:   snapshots,
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

func TestRunBatchCanonicalOrder(t *testing.T) {
	t.Parallel()

	fetcher := &fetcherStub{}
	o := newTestOrchestrator(t, fetcher, &snapshotStub{}, Options{})

	result := o.RunBatch(context.Background(), []string{"BRKU", "BLK", "IGV"})

	want := []string{"IGV", "BLK", "BRKU"}
	if len(result.Briefings) != len(want) {
		t.Fatalf("expected %d briefings, got %d", len(want), len(result.Briefings))
	}
	for i, ticker := range want {
		if result.Briefings[i].Ticker != ticker {
			t.Fatalf("position %d: expected %s, got %s", i, ticker, result.Briefings[i].Ticker)
		}
	}
	if result.TimedOut {
		t.Fatalf("batch must not report a timeout")
	}
}

func TestPrioritizeKeepsUnknownTickersAfterKnown(t *testing.T) {
	t.Parallel()

	o := newTestOrchestrator(t, &fetcherStub{}, &snapshotStub{}, Options{})

	got := o.prioritize([]string{"ZZZ", "IGV", "AAA"})
	want := []string{"IGV", "ZZZ", "AAA"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

func TestRunBatchPerTickerTimeout(t *testing.T) {
	t.Parallel()

	fetcher := &fetcherStub{delay: map[string]time.Duration{"IGV": 300 * time.Millisecond}}
	o := newTestOrchestrator(t, fetcher, &snapshotStub{}, Options{PerTicker: 50 * time.Millisecond})

	result := o.RunBatch(context.Background(), []string{"IGV", "SOXL"})

	if result.TimedOut {
		t.Fatalf("a per-ticker timeout must not mark the whole batch")
	}

	timedOut := result.Briefings[0]
	if timedOut.Status != domain.StatusTimeout {
		t.Fatalf("expected timeout status, got %s", timedOut.Status)
	}
	joined := strings.Join(timedOut.Narrative, "\n")
	if !strings.Contains(joined, "https://invest.zum.com/etf/IGV/") {
		t.Fatalf("timeout narrative must carry the manual-check URL: %s", joined)
	}
	if !strings.Contains(joined, "ISHARES TRUST") {
		t.Fatalf("timeout narrative must name the fund: %s", joined)
	}

	if result.Briefings[1].Status != domain.StatusOK {
		t.Fatalf("following ticker must still be processed, got %s", result.Briefings[1].Status)
	}
}

func TestRunBatchAggregateTimeoutPreservesCompleted(t *testing.T) {
	t.Parallel()

	delay := 60 * time.Millisecond
	fetcher := &fetcherStub{delay: map[string]time.Duration{
		"IGV": delay, "SOXL": delay, "BLK": delay, "IVZ": delay, "BRKU": delay,
	}}
	o := newTestOrchestrator(t, fetcher, &snapshotStub{}, Options{Aggregate: 150 * time.Millisecond})

	result := o.RunBatch(context.Background(), nil)

	if !result.TimedOut {
		t.Fatalf("aggregate deadline must mark the batch as timed out")
	}
	if len(result.Briefings) != 5 {
		t.Fatalf("every ticker must be represented, got %d", len(result.Briefings))
	}

	for i := 0; i < 2; i++ {
		if result.Briefings[i].Status != domain.StatusOK {
			t.Fatalf("completed briefing %d must be preserved, got %s", i, result.Briefings[i].Status)
		}
	}
	for i := 2; i < 5; i++ {
		b := result.Briefings[i]
		if b.Status != domain.StatusTimeout {
			t.Fatalf("briefing %d must fall back to timeout, got %s", i, b.Status)
		}
		joined := strings.Join(b.Narrative, "\n")
		if !strings.Contains(joined, "시간 초과로 인해") {
			t.Fatalf("aggregate fallback must use the generic apology: %s", joined)
		}
	}
}

func TestRunBatchFetchErrorEmbedded(t *testing.T) {
	t.Parallel()

	fetcher := &fetcherStub{errs: map[string]error{"IGV": fmt.Errorf("boom")}}
	o := newTestOrchestrator(t, fetcher, &snapshotStub{}, Options{})

	result := o.RunBatch(context.Background(), []string{"IGV", "SOXL"})

	failed := result.Briefings[0]
	if failed.Status != domain.StatusError {
		t.Fatalf("expected error status, got %s", failed.Status)
	}
	if !strings.Contains(strings.Join(failed.Narrative, " "), "boom") {
		t.Fatalf("error narrative must carry the cause: %v", failed.Narrative)
	}
	if failed.ErrorDetail == "" {
		t.Fatalf("error detail must be set")
	}
	if result.Briefings[1].Status != domain.StatusOK {
		t.Fatalf("batch must continue after a fetch error")
	}
}

func TestRunBatchSessionFailure(t *testing.T) {
	t.Parallel()

	o := New(config.Load(""), Options{Pacing: time.Millisecond}, Deps{
		OpenSession: func(context.Context) (ports.PageFetcher, error) {
			return nil, fmt.Errorf("browser missing")
		},
		Extractor: extractorStub{},
		Snapshots: &snapshotStub{},
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	})

	result := o.RunBatch(context.Background(), []string{"IGV", "SOXL"})

	if len(result.Briefings) != 2 {
		t.Fatalf("every ticker must get a briefing, got %d", len(result.Briefings))
	}
	for _, b := range result.Briefings {
		if b.Status != domain.StatusError {
			t.Fatalf("expected error status, got %s", b.Status)
		}
		if !strings.Contains(b.ErrorDetail, "browser missing") {
			t.Fatalf("error detail must carry the cause: %s", b.ErrorDetail)
		}
	}
}

func TestRunBatchArchivesSnapshots(t *testing.T) {
	t.Parallel()

	fetcher := &fetcherStub{pages: map[string]string{"IGV": "<div>igv page</div>"}}
	snapshots := &snapshotStub{}
	o := newTestOrchestrator(t, fetcher, snapshots, Options{})

	o.RunBatch(context.Background(), []string{"IGV"})

	if snapshots.saved["IGV"] != "<div>igv page</div>" {
		t.Fatalf("snapshot must archive the fetched document: %q", snapshots.saved["IGV"])
	}
	if !fetcher.closed {
		t.Fatalf("session must be closed after the batch")
	}
}

func TestRunBatchSnapshotFailureIsBestEffort(t *testing.T) {
	t.Parallel()

	fetcher := &fetcherStub{}
	snapshots := &snapshotStub{saveErr: fmt.Errorf("db down")}
	o := newTestOrchestrator(t, fetcher, snapshots, Options{})

	result := o.RunBatch(context.Background(), []string{"IGV"})

	if result.Briefings[0].Status != domain.StatusOK {
		t.Fatalf("archive failures must not affect extraction, got %s", result.Briefings[0].Status)
	}
}
