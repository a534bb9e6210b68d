package domain

import (
	"fmt"
	"strings"
	"time"
)

// RawPage is the fully rendered document fetched for one ticker.
type RawPage struct {
	Ticker       string
	DocumentText string
	FetchedAt    time.Time
}

// ExtractionStatus enumerates the outcome of one ticker's extraction.
type ExtractionStatus string

const (
	StatusOK      ExtractionStatus = "ok"
	StatusEmpty   ExtractionStatus = "empty"
	StatusError   ExtractionStatus = "error"
	StatusTimeout ExtractionStatus = "timeout"
)

// ConstituentMention is one holding or related stock referenced inside a
// briefing, with price and signed percent change kept as the source's
// decimal strings.
type ConstituentMention struct {
	Name          string
	Symbol        string
	Price         string
	ChangePercent string
}

// NewsItem is one related news reference pulled from the page.
type NewsItem struct {
	Title  string
	Source string
	URL    string
}

// StructuredBriefing is the extraction result for a single ticker. The
// extractor always returns one, tagging failures through Status instead
// of propagating errors.
type StructuredBriefing struct {
	Ticker      string
	Narrative   []string
	Mentions    []ConstituentMention
	NewsItems   []NewsItem
	ExtraLinks  []string
	Status      ExtractionStatus
	ErrorDetail string
}

// Links returns every usable URL carried by the briefing, news item URLs
// first, then script-collected extras, deduplicated in order.
func (b StructuredBriefing) Links() []string {
	seen := make(map[string]struct{})
	links := make([]string, 0, len(b.NewsItems)+len(b.ExtraLinks))
	for _, item := range b.NewsItems {
		if item.URL == "" {
			continue
		}
		if _, ok := seen[item.URL]; ok {
			continue
		}
		seen[item.URL] = struct{}{}
		links = append(links, item.URL)
	}
	for _, link := range b.ExtraLinks {
		if _, ok := seen[link]; ok {
			continue
		}
		seen[link] = struct{}{}
		links = append(links, link)
	}
	return links
}

// ComposedBody renders the briefing into the delivery text: narrative
// segments line by line, then one block per constituent mention, then the
// related news section with per-item sources and URLs.
func (b StructuredBriefing) ComposedBody() string {
	var sb strings.Builder
	for i, segment := range b.Narrative {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(segment)
	}
	for _, m := range b.Mentions {
		label := m.Name
		if m.Symbol != "" {
			label = fmt.Sprintf("%s (%s)", m.Name, m.Symbol)
		}
		sb.WriteString(fmt.Sprintf("\n\n━━━ %s ━━━\n$%s (%s%%)", label, m.Price, m.ChangePercent))
	}
	if len(b.NewsItems) > 0 {
		sb.WriteString("\n\n관련 뉴스:")
		for _, item := range b.NewsItems {
			sb.WriteString(fmt.Sprintf("\n\n%s - %s", item.Title, item.Source))
			if item.URL != "" {
				sb.WriteString("\n    " + item.URL)
			}
		}
	}
	if len(b.ExtraLinks) > 0 {
		if len(b.NewsItems) > 0 {
			sb.WriteString("\n\n뉴스 링크:")
		} else {
			sb.WriteString("\n\n관련 뉴스 링크:")
		}
		max := len(b.ExtraLinks)
		if max > 3 {
			max = 3
		}
		for i := 0; i < max; i++ {
			sb.WriteString("\n" + b.ExtraLinks[i])
		}
	}
	return sb.String()
}

// NewEmptyBriefing is the placeholder result for a page that loaded without
// any briefing content.
func NewEmptyBriefing(ticker string) StructuredBriefing {
	return StructuredBriefing{
		Ticker:    ticker,
		Narrative: []string{fmt.Sprintf("%s: 브리핑 없음", ticker)},
		Status:    StatusEmpty,
	}
}

// NewErrorBriefing wraps a failure so it is delivered like any other result
// instead of aborting the batch.
func NewErrorBriefing(ticker string, err error) StructuredBriefing {
	return StructuredBriefing{
		Ticker:      ticker,
		Narrative:   []string{fmt.Sprintf("%s: 오류 발생 - %v", ticker, err)},
		Status:      StatusError,
		ErrorDetail: err.Error(),
	}
}

// NewTimeoutBriefing carries the apology narrative and a manual-check URL
// for a ticker whose fetch ran out of time. fullName, when known, names the
// fund in the apology; otherwise a generic sentence is used.
func NewTimeoutBriefing(ticker, fullName, manualURL string) StructuredBriefing {
	apology := "시간 초과로 인해 브리핑을 가져오지 못했습니다."
	if fullName != "" {
		apology = fullName + "에 대한 브리핑을 가져오는 데 시간이 초과되었습니다."
	}
	return StructuredBriefing{
		Ticker:    ticker,
		Narrative: []string{"데일리 브리핑", "", fmt.Sprintf("%s 수동으로 확인해주세요: %s", apology, manualURL)},
		Status:    StatusTimeout,
	}
}

// KoreanDate renders a calendar date the way the source site does.
func KoreanDate(t time.Time) string {
	return fmt.Sprintf("%d년 %02d월 %02d일", t.Year(), int(t.Month()), t.Day())
}

// BatchResult aggregates one orchestrated run over the ticker list in
// canonical order.
type BatchResult struct {
	Briefings []StructuredBriefing
	TimedOut  bool
	StartedAt time.Time
	Elapsed   time.Duration
}

// Ticker returns the briefing for the given symbol, or false when the
// batch does not contain it.
func (r BatchResult) Ticker(symbol string) (StructuredBriefing, bool) {
	for _, b := range r.Briefings {
		if b.Ticker == symbol {
			return b, true
		}
	}
	return StructuredBriefing{}, false
}

// ChunkKind tags a delivery chunk payload.
type ChunkKind string

const (
	ChunkText  ChunkKind = "text"
	ChunkImage ChunkKind = "image"
)

// DeliveryChunk is one channel message belonging to a ticker's briefing.
// SequenceIndex is zero-based within the ticker's chunk set.
type DeliveryChunk struct {
	Ticker        string
	SequenceIndex int
	TotalCount    int
	Kind          ChunkKind
	Payload       string
	Image         []byte
	Caption       string
}

// FormatMode selects the markup mode a delivery channel should use.
type FormatMode string

const (
	FormatHTML  FormatMode = "HTML"
	FormatPlain FormatMode = ""
)

// ChartData is one year of daily closes with moving averages computed
// over it. Slices are index-aligned with Dates; missing values are NaN.
type ChartData struct {
	Ticker           string
	Dates            []time.Time
	Prices           []float64
	MA50             []float64
	MA200            []float64
	MA200Plus10      []float64
	CurrentPrice     float64
	CurrentMA200     float64
	CurrentMA200Up   float64
	AboveMA200       bool
	AboveMA200Plus10 bool
}
