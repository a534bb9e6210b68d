package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/chromedp/chromedp"

	"BriefingScanner/internal/config"
	"BriefingScanner/internal/domain"
	"BriefingScanner/internal/ports"
)

const (
	startupTimeout = 30 * time.Second
	scriptTimeout  = 10 * time.Second
)

// Fetcher renders briefing pages in one shared headless Chrome session.
// The session lives for a single batch run: the orchestrator opens it,
// fetches every ticker through it, and closes it.
type Fetcher struct {
	cfg         config.Config
	browserCtx  context.Context
	cancelCtx   context.CancelFunc
	cancelAlloc context.CancelFunc
	logger      *slog.Logger
}

var _ ports.PageFetcher = (*Fetcher)(nil)

// New launches the browser session. The parent context bounds the whole
// session: when it ends, the browser dies with it.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Fetcher, error) {
	opts := []chromedp.ExecAllocatorOption{
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,
		chromedp.NoSandbox,
		chromedp.DisableGPU,
		chromedp.WindowSize(1920, 1080),
		chromedp.UserAgent(cfg.Browser.UserAgent),
		chromedp.Flag("lang", "ko-KR"),
		chromedp.Flag("disable-dev-shm-usage", true),
	}
	if cfg.Browser.IsHeadless() {
		opts = append(opts, chromedp.Flag("headless", "new"))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	browserCtx, cancelCtx := chromedp.NewContext(allocCtx)

	f := &Fetcher{
		cfg:         cfg,
		browserCtx:  browserCtx,
		cancelCtx:   cancelCtx,
		cancelAlloc: cancelAlloc,
		logger:      logger,
	}

	warmCtx, cancel := context.WithTimeout(browserCtx, startupTimeout)
	defer cancel()
	if err := chromedp.Run(warmCtx, chromedp.Navigate("about:blank")); err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: browser startup: %v", domain.ErrFetch, err)
	}

	logger.Info("browser session ready", "headless", cfg.Browser.IsHeadless())
	return f, nil
}

// Fetch renders the ticker's page and returns the full document once the
// settle delay for client-side rendering has elapsed.
func (f *Fetcher) Fetch(ctx context.Context, ticker string) (domain.RawPage, error) {
	rule := f.cfg.Rule(ticker)
	pageURL := f.cfg.PageURL(ticker)

	runCtx, cancel := context.WithTimeout(f.browserCtx, rule.PageWait()+rule.Settle())
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	f.logger.Info("fetching page", "ticker", ticker, "url", pageURL)

	var html string
	err := chromedp.Run(runCtx,
		chromedp.Navigate(pageURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(rule.Settle()),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		if ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) {
			return domain.RawPage{}, fmt.Errorf("%w: %s did not render within %s",
				domain.ErrFetchTimeout, ticker, rule.PageWait()+rule.Settle())
		}
		return domain.RawPage{}, fmt.Errorf("%w: navigate %s: %v", domain.ErrFetch, pageURL, err)
	}

	return domain.RawPage{Ticker: ticker, DocumentText: html, FetchedAt: time.Now()}, nil
}

// RunScript evaluates JavaScript in the currently rendered page, decoding
// the result into out.
func (f *Fetcher) RunScript(ctx context.Context, js string, out any) error {
	runCtx, cancel := context.WithTimeout(f.browserCtx, scriptTimeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := chromedp.Run(runCtx, chromedp.Evaluate(js, out)); err != nil {
		return fmt.Errorf("%w: evaluate script: %v", domain.ErrFetch, err)
	}
	return nil
}

// Close tears down the browser tab and its allocator.
func (f *Fetcher) Close() error {
	f.cancelCtx()
	f.cancelAlloc()
	return nil
}
