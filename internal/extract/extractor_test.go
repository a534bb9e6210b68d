package extract

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"BriefingScanner/internal/config"
	"BriefingScanner/internal/domain"
)

func newTestExtractor(t *testing.T) *Extractor {
	t.Helper()

	e := New(config.Load(""), slog.New(slog.NewTextHandler(io.Discard, nil)))
	e.now = func() time.Time {
		return time.Date(2025, time.April, 1, 9, 0, 0, 0, time.UTC)
	}
	return e
}

func TestExtractHeadingParagraphs(t *testing.T) {
	t.Parallel()

	html := `<div class="wrap"><div class="head"><h3>데일리 브리핑</h3></div>` +
		`<p>소프트웨어 업종이 강세를 보였습니다.</p>` +
		`<p>클라우드 종목이 급등했습니다.</p></div>`

	e := newTestExtractor(t)
	briefing := e.Extract(context.Background(), "IGV", html, nil)

	if briefing.Status != domain.StatusOK {
		t.Fatalf("expected ok status, got %s (%s)", briefing.Status, briefing.ErrorDetail)
	}
	if len(briefing.Narrative) != 2 {
		t.Fatalf("expected 2 segments, got %d: %v", len(briefing.Narrative), briefing.Narrative)
	}
	if briefing.Narrative[0] != "1. 소프트웨어 업종이 강세를 보였습니다." {
		t.Fatalf("unexpected first segment: %s", briefing.Narrative[0])
	}
	if briefing.Narrative[1] != "2. 클라우드 종목이 급등했습니다." {
		t.Fatalf("unexpected second segment: %s", briefing.Narrative[1])
	}
}

func TestExtractKnownContainerSentences(t *testing.T) {
	t.Parallel()

	html := `<div class="styles_briefingInner__8_73I">` +
		`2025년 4월 1일 기준으로 반도체 지수가 상승했습니다. 투자 심리가 개선되었습니다.` +
		`</div>`

	e := newTestExtractor(t)
	briefing := e.Extract(context.Background(), "SOXL", html, nil)

	if briefing.Status != domain.StatusOK {
		t.Fatalf("expected ok status, got %s", briefing.Status)
	}
	if len(briefing.Narrative) != 2 {
		t.Fatalf("expected 2 segments, got %d: %v", len(briefing.Narrative), briefing.Narrative)
	}
	if !strings.HasPrefix(briefing.Narrative[0], "2025년 4월 1일") {
		t.Fatalf("leading date must not split the narrative: %s", briefing.Narrative[0])
	}
	if briefing.Narrative[1] != "투자 심리가 개선되었습니다." {
		t.Fatalf("unexpected second segment: %s", briefing.Narrative[1])
	}
}

func TestExtractMarkerSplitDropsTrailingItems(t *testing.T) {
	t.Parallel()

	html := `<div class="styles_briefingInner__8_73I">` +
		`오늘 업황 요약입니다. 자세한 내용은 다음과 같습니다.2025년 4월 1일오라클 주식이 1.5% 상승했습니다.` +
		`</div>`

	e := newTestExtractor(t)
	briefing := e.Extract(context.Background(), "IGV", html, nil)

	if briefing.Status != domain.StatusOK {
		t.Fatalf("expected ok status, got %s", briefing.Status)
	}
	for _, segment := range briefing.Narrative {
		if strings.Contains(segment, "오라클") {
			t.Fatalf("trailing item text must be cut at the date marker: %v", briefing.Narrative)
		}
	}
	if len(briefing.Narrative) != 2 {
		t.Fatalf("expected 2 segments, got %v", briefing.Narrative)
	}
}

func TestExtractMarkerSplitPrefixedYear(t *testing.T) {
	t.Parallel()

	html := `<div class="styles_briefingInner__8_73I">어제 흐름입니다.C2025년 4월 1일SOXL 3% 상승.</div>`

	e := newTestExtractor(t)
	briefing := e.Extract(context.Background(), "SOXL", html, nil)

	if briefing.Status != domain.StatusOK {
		t.Fatalf("expected ok status, got %s", briefing.Status)
	}
	if len(briefing.Narrative) != 1 || briefing.Narrative[0] != "어제 흐름입니다." {
		t.Fatalf("unexpected narrative: %v", briefing.Narrative)
	}
}

func TestExtractLabelOnlyWithoutTemplateIsEmpty(t *testing.T) {
	t.Parallel()

	html := `<div class="styles_briefingInner__8_73I">데일리 브리핑2025년 4월 1일</div>`

	e := newTestExtractor(t)
	briefing := e.Extract(context.Background(), "SOXL", html, nil)

	if briefing.Status != domain.StatusEmpty {
		t.Fatalf("expected empty status, got %s", briefing.Status)
	}
	if len(briefing.Narrative) != 1 || briefing.Narrative[0] != "SOXL: 브리핑 없음" {
		t.Fatalf("unexpected placeholder: %v", briefing.Narrative)
	}
	if len(briefing.NewsItems) != 0 || len(briefing.ExtraLinks) != 0 {
		t.Fatalf("empty briefing must not carry links")
	}
}

func TestExtractGapFillSynthesis(t *testing.T) {
	t.Parallel()

	pages := map[string]string{
		"BLK":  `<div class="styles_briefingInner__WBq3C"></div><div class="styles_price___G1Hf">962.11</div><div class="styles_change__x2Qz">+1.25%</div>`,
		"IVZ":  `<div class="styles_briefingInner__WBq3C"></div><div class="styles_price___G1Hf">17.05</div><div class="styles_change__x2Qz">-0.40%</div>`,
		"BRKU": `<div class="styles_briefingInner__8_73I">데일리 브리핑2025년 4월 1일</div><div class="styles_price___G1Hf">41.90</div><div class="styles_change__x2Qz">+2.10%</div>`,
	}
	prices := map[string]string{"BLK": "962.11", "IVZ": "17.05", "BRKU": "41.90"}

	for ticker, html := range pages {
		e := newTestExtractor(t)
		briefing := e.Extract(context.Background(), ticker, html, nil)

		if briefing.Status != domain.StatusOK {
			t.Fatalf("%s: expected ok status, got %s", ticker, briefing.Status)
		}
		joined := strings.Join(briefing.Narrative, " ")
		if !strings.Contains(joined, ticker) {
			t.Fatalf("%s: synthesized narrative must name the ticker: %s", ticker, joined)
		}
		if !strings.Contains(joined, prices[ticker]) {
			t.Fatalf("%s: synthesized narrative must carry the page price: %s", ticker, joined)
		}
	}
}

func TestExtractGapFillDates(t *testing.T) {
	t.Parallel()

	e := newTestExtractor(t)

	blk := e.Extract(context.Background(), "BLK", `<div class="styles_briefingInner__WBq3C"></div>`, nil)
	if joined := strings.Join(blk.Narrative, " "); !strings.Contains(joined, "2025년 04월 01일") {
		t.Fatalf("BLK template must carry today's date: %s", joined)
	}
	if joined := strings.Join(blk.Narrative, " "); !strings.Contains(joined, "N/A") {
		t.Fatalf("missing price figures must degrade to N/A: %s", joined)
	}

	brku := e.Extract(context.Background(), "BRKU", `<div class="styles_briefingInner__8_73I">데일리 브리핑2025년 4월 1일</div>`, nil)
	if joined := strings.Join(brku.Narrative, " "); !strings.Contains(joined, "2025년 03월 31일") {
		t.Fatalf("BRKU template must carry the previous day: %s", joined)
	}
}

func TestExtractGenericMarkerFallback(t *testing.T) {
	t.Parallel()

	html := `<div class="page"><div class="misc">시장 동향</div>` +
		`<div class="num">지수가 전일 대비 1.8% 상승했습니다.</div></div>`

	e := newTestExtractor(t)
	briefing := e.Extract(context.Background(), "IGV", html, nil)

	if briefing.Status != domain.StatusOK {
		t.Fatalf("expected ok status, got %s", briefing.Status)
	}
	if len(briefing.Narrative) != 1 || !strings.Contains(briefing.Narrative[0], "1.8%") {
		t.Fatalf("unexpected narrative: %v", briefing.Narrative)
	}
}

func TestExtractEmptyPage(t *testing.T) {
	t.Parallel()

	e := newTestExtractor(t)
	briefing := e.Extract(context.Background(), "IGV", `<div>nothing of note here</div>`, nil)

	if briefing.Status != domain.StatusEmpty {
		t.Fatalf("expected empty status, got %s", briefing.Status)
	}
	if len(briefing.Narrative) != 1 || briefing.Narrative[0] != "IGV: 브리핑 없음" {
		t.Fatalf("unexpected placeholder: %v", briefing.Narrative)
	}
}

func TestExtractStripsTickerEcho(t *testing.T) {
	t.Parallel()

	html := `<div class="styles_briefingInner__8_73I">IGV: 오늘 업황이 개선되었습니다.</div>`

	e := newTestExtractor(t)
	briefing := e.Extract(context.Background(), "IGV", html, nil)

	if briefing.Status != domain.StatusOK {
		t.Fatalf("expected ok status, got %s", briefing.Status)
	}
	if briefing.Narrative[0] != "오늘 업황이 개선되었습니다." {
		t.Fatalf("ticker echo must be stripped: %s", briefing.Narrative[0])
	}
}

func TestStripTickerEchoDropsEmptiedSegment(t *testing.T) {
	t.Parallel()

	got := stripTickerEcho([]string{"IGV:", "남은 문장입니다."}, "IGV")
	if len(got) != 1 || got[0] != "남은 문장입니다." {
		t.Fatalf("unexpected segments: %v", got)
	}
}

func TestExtractNeverPanics(t *testing.T) {
	t.Parallel()

	e := newTestExtractor(t)
	for _, documentText := range []string{"", "<<<<>>>>", "<div", "\x00\x01\x02"} {
		briefing := e.Extract(context.Background(), "IGV", documentText, nil)
		if briefing.Status == domain.StatusOK {
			t.Fatalf("garbage input %q must not yield ok status", documentText)
		}
		if briefing.Ticker != "IGV" {
			t.Fatalf("briefing must keep the ticker: %+v", briefing)
		}
	}
}

func TestSplitAtMarker(t *testing.T) {
	t.Parallel()

	markers := []string{"C2025년", "2025년"}

	cases := []struct {
		in   string
		want string
	}{
		{"요약입니다.2025년 4월 1일 더미", "요약입니다."},
		{"요약입니다.C2025년 4월 1일 더미", "요약입니다."},
		{"2025년 4월 1일 시작하는 본문", "2025년 4월 1일 시작하는 본문"},
		{"마커 없는 본문", "마커 없는 본문"},
	}
	for _, tc := range cases {
		if got := splitAtMarker(tc.in, markers); got != tc.want {
			t.Fatalf("splitAtMarker(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
