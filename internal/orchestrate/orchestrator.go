package orchestrate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"BriefingScanner/internal/config"
	"BriefingScanner/internal/domain"
	"BriefingScanner/internal/ports"
)

// Options bound one batch run. Zero fields fall back to the production
// defaults.
type Options struct {
	Tickers   []string // canonical priority order
	PerTicker time.Duration
	Aggregate time.Duration
	Pacing    time.Duration
}

// Deps wires the driven collaborators into the orchestrator. OpenSession
// creates the shared fetch session used for the whole batch.
type Deps struct {
	OpenSession func(ctx context.Context) (ports.PageFetcher, error)
	Extractor   ports.BriefingExtractor
	Snapshots   ports.SnapshotStore
	Logger      *slog.Logger
}

// Orchestrator sequences fetch, archive and extraction per ticker under a
// two-level timeout budget.
type Orchestrator struct {
	cfg  config.Config
	opts Options
	deps Deps
}

var _ ports.BatchRunner = (*Orchestrator)(nil)

// New builds an orchestrator. Options left at zero take the configured
// budgets.
func New(cfg config.Config, opts Options, deps Deps) *Orchestrator {
	if len(opts.Tickers) == 0 {
		opts.Tickers = cfg.Tickers
	}
	if opts.PerTicker == 0 {
		opts.PerTicker = cfg.Orchestrator.PerTicker()
	}
	if opts.Aggregate == 0 {
		opts.Aggregate = cfg.Orchestrator.Aggregate()
	}
	if opts.Pacing == 0 {
		opts.Pacing = cfg.Orchestrator.Pacing()
	}
	return &Orchestrator{cfg: cfg, opts: opts, deps: deps}
}

// RunBatch fetches and extracts every requested ticker in canonical
// priority order. The result is always complete: failures and timeouts are
// substituted in place, never propagated, and results already produced
// survive an aggregate timeout.
func (o *Orchestrator) RunBatch(ctx context.Context, tickers []string) domain.BatchResult {
	started := time.Now()
	ordered := o.prioritize(tickers)
	result := domain.BatchResult{
		StartedAt: started,
		Briefings: make([]domain.StructuredBriefing, 0, len(ordered)),
	}

	batchCtx, cancel := context.WithTimeout(ctx, o.opts.Aggregate)
	defer cancel()

	o.deps.Logger.Info("batch started", "tickers", ordered, "aggregate_budget", o.opts.Aggregate)

	session, err := o.deps.OpenSession(batchCtx)
	if err != nil {
		o.deps.Logger.Error("cannot open fetch session", "error", err)
		for _, ticker := range ordered {
			result.Briefings = append(result.Briefings,
				domain.NewErrorBriefing(ticker, fmt.Errorf("open fetch session: %w", err)))
		}
		result.Elapsed = time.Since(started)
		return result
	}
	defer func() {
		if err := session.Close(); err != nil {
			o.deps.Logger.Warn("close fetch session", "error", err)
		}
	}()

	for _, ticker := range ordered {
		if batchCtx.Err() != nil {
			result.TimedOut = true
			result.Briefings = append(result.Briefings, o.aggregateFallback(ticker))
			continue
		}

		briefing := o.processTicker(batchCtx, session, ticker)
		if briefing.Status == domain.StatusTimeout && batchCtx.Err() != nil {
			result.TimedOut = true
			briefing = o.aggregateFallback(ticker)
		}
		result.Briefings = append(result.Briefings, briefing)

		if batchCtx.Err() == nil {
			o.pace(batchCtx)
		}
	}

	result.Elapsed = time.Since(started)
	o.deps.Logger.Info("batch finished",
		"elapsed", result.Elapsed, "timed_out", result.TimedOut, "briefings", len(result.Briefings))
	return result
}

// processTicker runs one ticker under its own slice of the batch budget.
// The snapshot write is best-effort: archive failures are logged and the
// briefing still gets extracted.
func (o *Orchestrator) processTicker(batchCtx context.Context, session ports.PageFetcher, ticker string) domain.StructuredBriefing {
	tickerCtx, cancel := context.WithTimeout(batchCtx, o.opts.PerTicker)
	defer cancel()

	o.deps.Logger.Info("processing ticker", "ticker", ticker)

	page, err := session.Fetch(tickerCtx, ticker)
	if err != nil {
		if isTimeout(tickerCtx, err) {
			return o.timeoutFallback(ticker)
		}
		o.deps.Logger.Error("fetch failed", "ticker", ticker, "error", err)
		return domain.NewErrorBriefing(ticker, err)
	}

	if err := o.deps.Snapshots.Save(tickerCtx, page); err != nil {
		o.deps.Logger.Warn("snapshot save failed", "ticker", ticker, "error", err)
	}

	return o.deps.Extractor.Extract(tickerCtx, ticker, page.DocumentText, session)
}

func isTimeout(ctx context.Context, err error) bool {
	return errors.Is(err, domain.ErrFetchTimeout) ||
		errors.Is(err, context.DeadlineExceeded) ||
		ctx.Err() != nil
}

// prioritize orders the requested tickers by canonical priority. Tickers
// outside the canonical list keep their submitted relative order after all
// known ones. An empty request means the full canonical list.
func (o *Orchestrator) prioritize(requested []string) []string {
	if len(requested) == 0 {
		return append([]string(nil), o.opts.Tickers...)
	}

	wanted := make(map[string]struct{}, len(requested))
	for _, ticker := range requested {
		wanted[ticker] = struct{}{}
	}

	known := make(map[string]struct{}, len(o.opts.Tickers))
	ordered := make([]string, 0, len(requested))
	for _, ticker := range o.opts.Tickers {
		known[ticker] = struct{}{}
		if _, ok := wanted[ticker]; ok {
			ordered = append(ordered, ticker)
			delete(wanted, ticker)
		}
	}
	for _, ticker := range requested {
		if _, ok := known[ticker]; ok {
			continue
		}
		if _, ok := wanted[ticker]; !ok {
			continue
		}
		ordered = append(ordered, ticker)
		delete(wanted, ticker)
	}
	return ordered
}

// pace inserts the politeness delay after each ticker, cut short by the
// aggregate deadline.
func (o *Orchestrator) pace(ctx context.Context) {
	timer := time.NewTimer(o.opts.Pacing)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

func (o *Orchestrator) timeoutFallback(ticker string) domain.StructuredBriefing {
	o.deps.Logger.Warn("ticker timed out", "ticker", ticker, "budget", o.opts.PerTicker)
	rule := o.cfg.Rule(ticker)
	return domain.NewTimeoutBriefing(ticker, rule.FullName, o.cfg.PageURL(ticker))
}

func (o *Orchestrator) aggregateFallback(ticker string) domain.StructuredBriefing {
	return domain.NewTimeoutBriefing(ticker, "", o.cfg.PageURL(ticker))
}
