package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"BriefingScanner/internal/deliver"
	"BriefingScanner/internal/domain"
	"BriefingScanner/internal/ports"
)

// PipelineDeps wires all driven adapters into the daily briefing run.
type PipelineDeps struct {
	Batch     ports.BatchRunner
	Formatter *deliver.Formatter
	Channel   ports.DeliveryChannel
	Market    ports.MarketData
	Charts    ports.ChartRenderer
	Cards     ports.CardRenderer
	Logger    *slog.Logger
}

// Pipeline runs one scrape-extract-deliver cycle. Runs are serialized:
// a trigger that arrives while a run is active waits for it.
type Pipeline struct {
	mu        sync.Mutex
	batch     ports.BatchRunner
	formatter *deliver.Formatter
	channel   ports.DeliveryChannel
	market    ports.MarketData
	charts    ports.ChartRenderer
	cards     ports.CardRenderer
	logger    *slog.Logger

	tickers    []string
	asImage    bool
	interDelay time.Duration
}

// RunReport summarizes one pipeline run.
type RunReport struct {
	RunID     string
	Success   bool
	TimedOut  bool
	Sent      map[string]int
	StartedAt time.Time
	Elapsed   time.Duration
}

// NewPipeline constructs the orchestration component. tickers may be
// nil to scan the configured set; asImage switches ticker briefings
// from text chunks to rendered cards.
func NewPipeline(deps PipelineDeps, tickers []string, asImage bool) *Pipeline {
	return &Pipeline{
		batch:      deps.Batch,
		formatter:  deps.Formatter,
		channel:    deps.Channel,
		market:     deps.Market,
		charts:     deps.Charts,
		cards:      deps.Cards,
		logger:     deps.Logger,
		tickers:    tickers,
		asImage:    asImage,
		interDelay: time.Second,
	}
}

// RunDaily scrapes every ticker and delivers the briefings. The report
// is always populated; delivery problems surface as Success=false.
func (p *Pipeline) RunDaily(ctx context.Context, day time.Time) RunReport {
	p.mu.Lock()
	defer p.mu.Unlock()

	report := RunReport{
		RunID:     uuid.NewString(),
		Success:   true,
		Sent:      make(map[string]int),
		StartedAt: time.Now(),
	}
	defer func() { report.Elapsed = time.Since(report.StartedAt) }()

	if p.batch == nil || p.channel == nil {
		p.logger.Error("pipeline missing batch runner or delivery channel")
		report.Success = false
		return report
	}

	p.logger.Info("daily run started", "run_id", report.RunID, "day", domain.KoreanDate(day))

	result := p.batch.RunBatch(ctx, p.tickers)
	report.TimedOut = result.TimedOut

	p.sendHeader(ctx, result, day)

	for _, briefing := range result.Briefings {
		chunks, err := p.formatter.Format(briefing, day)
		if err != nil {
			p.logger.Error("format briefing", "ticker", briefing.Ticker, "error", err)
			report.Success = false
			chunks = []domain.DeliveryChunk{deliver.ErrorNotice(briefing.Ticker, day, err)}
		} else if p.asImage && p.cards != nil {
			chunks = p.cardOrText(briefing, day, chunks)
		}

		for _, chunk := range chunks {
			if err := p.sendChunk(ctx, chunk); err != nil {
				p.logger.Error("send chunk",
					"ticker", chunk.Ticker,
					"seq", chunk.SequenceIndex,
					"error", err)
				continue
			}
			report.Sent[briefing.Ticker]++
		}

		p.chartAnalysis(ctx, briefing.Ticker)
		p.wait(ctx)
	}

	total := 0
	for _, briefing := range result.Briefings {
		n := report.Sent[briefing.Ticker]
		total += n
		if n == 0 {
			report.Success = false
		}
	}
	if len(result.Briefings) == 0 {
		report.Success = false
	}

	p.logger.Info("daily run finished",
		"run_id", report.RunID,
		"sent", total,
		"timed_out", report.TimedOut,
		"success", report.Success)
	return report
}

// sendHeader posts the run banner. A timed-out batch gets a warning
// banner naming the affected tickers instead.
func (p *Pipeline) sendHeader(ctx context.Context, result domain.BatchResult, day time.Time) {
	text := fmt.Sprintf("📊 <b>ETF 데일리 브리핑 (%s)</b>", domain.KoreanDate(day))
	if result.TimedOut {
		var affected []string
		for _, b := range result.Briefings {
			if b.Status == domain.StatusTimeout {
				affected = append(affected, b.Ticker)
			}
		}
		text = fmt.Sprintf(
			"⚠️ <b>ETF 데일리 브리핑 오류 (%s)</b>\n\n스크래핑 작업 중 타임아웃이 발생했습니다. 일부 ETF/주식 정보를 가져오지 못했을 수 있습니다.\n\n영향받은 티커: %s",
			domain.KoreanDate(day), strings.Join(affected, ", "))
	}

	if err := p.channel.SendText(ctx, text, domain.FormatHTML); err != nil {
		p.logger.Error("send run header", "error", err)
	}
}

// cardOrText renders the briefing as a PNG card, keeping the text
// chunks when rendering fails.
func (p *Pipeline) cardOrText(briefing domain.StructuredBriefing, day time.Time, text []domain.DeliveryChunk) []domain.DeliveryChunk {
	img, err := p.cards.RenderCard(briefing.Ticker, p.formatter.BodyText(briefing), day)
	if err != nil {
		p.logger.Warn("render card, falling back to text", "ticker", briefing.Ticker, "error", err)
		return text
	}
	return p.formatter.CardChunks(briefing, day, img)
}

func (p *Pipeline) sendChunk(ctx context.Context, chunk domain.DeliveryChunk) error {
	if chunk.Kind == domain.ChunkImage {
		return p.channel.SendImage(ctx, chunk.Image, chunk.Caption)
	}
	return p.channel.SendText(ctx, chunk.Payload, domain.FormatHTML)
}

// chartAnalysis posts the moving-average summary and the rendered
// chart. Market data problems cost only this extra, never the run.
func (p *Pipeline) chartAnalysis(ctx context.Context, ticker string) {
	if p.market == nil || p.charts == nil {
		return
	}

	data, err := p.market.History(ctx, ticker, "1y")
	if err != nil {
		p.logger.Warn("chart history", "ticker", ticker, "error", err)
		return
	}

	if err := p.channel.SendText(ctx, chartMessage(data), domain.FormatHTML); err != nil {
		p.logger.Warn("send chart analysis", "ticker", ticker, "error", err)
	}

	img, err := p.charts.RenderChart(data)
	if err != nil {
		p.logger.Warn("render chart", "ticker", ticker, "error", err)
		return
	}
	caption := fmt.Sprintf("%s 1년 주가 차트", ticker)
	if err := p.channel.SendImage(ctx, img, caption); err != nil {
		p.logger.Warn("send chart image", "ticker", ticker, "error", err)
	}
}

func chartMessage(data domain.ChartData) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📈 <b>%s 차트 분석</b>\n\n현재가: %.2f", data.Ticker, data.CurrentPrice)

	if data.CurrentMA200 <= 0 {
		b.WriteString("\n\nMA200을 계산하기에 데이터가 부족합니다.")
		return b.String()
	}

	fmt.Fprintf(&b, "\nMA200: %.2f\nMA200 +10%%: %.2f\n", data.CurrentMA200, data.CurrentMA200Up)
	if data.AboveMA200 {
		b.WriteString("\n✅ MA200 위에서 거래 중")
	} else {
		b.WriteString("\n⚠️ MA200 아래에서 거래 중")
	}
	if data.AboveMA200Plus10 {
		b.WriteString("\n🔥 MA200 +10% 상회")
	} else {
		b.WriteString("\n📉 MA200 +10% 미만")
	}
	return b.String()
}

// wait paces consecutive ticker deliveries without blocking shutdown.
func (p *Pipeline) wait(ctx context.Context) {
	if p.interDelay <= 0 {
		return
	}
	timer := time.NewTimer(p.interDelay)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}
