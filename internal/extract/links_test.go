package extract

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"BriefingScanner/internal/domain"
)

type scriptStub struct {
	anchors    []string
	handlers   []string
	anchorErr  error
	handlerErr error
	calls      int
}

func (s *scriptStub) RunScript(_ context.Context, js string, out any) error {
	s.calls++
	links, ok := out.(*[]string)
	if !ok {
		return fmt.Errorf("unexpected out type %T", out)
	}
	if strings.Contains(js, "onclick") {
		if s.handlerErr != nil {
			return s.handlerErr
		}
		*links = append([]string(nil), s.handlers...)
		return nil
	}
	if s.anchorErr != nil {
		return s.anchorErr
	}
	*links = append([]string(nil), s.anchors...)
	return nil
}

func TestNewsParsing(t *testing.T) {
	t.Parallel()

	html := `<div class="styles_briefingInner__8_73I">업황 요약입니다.</div>` +
		`<div class="styles_container__oDEu1"><a href="/investment/news/12345?docid=99">` +
		`<div class="styles_article__0oE8K">` +
		`<div class="styles_title__ummjn">소프트웨어 업계 동향</div>` +
		`<span class="styles_info__OeSIl">뉴스핌</span>` +
		`</div></a></div>` +
		`<div class="styles_container__oDEu1">` +
		`<div class="styles_article__0oE8K">` +
		`<div class="styles_title__ummjn">반도체 수요 전망</div>` +
		`<span class="styles_info__OeSIl">연합뉴스</span>` +
		`<a href="news/777">기사 보기</a>` +
		`</div></div>` +
		`<div class="styles_container__oDEu1"><a href="/investment/news/12345?docid=99">` +
		`<div class="styles_article__0oE8K">` +
		`<div class="styles_title__ummjn">중복 기사</div>` +
		`<span class="styles_info__OeSIl">뉴스핌</span>` +
		`</div></a></div>` +
		`<div class="styles_container__oDEu1">` +
		`<div class="styles_article__0oE8K">` +
		`<div class="styles_title__ummjn">출처 없는 기사</div>` +
		`</div></div>`

	e := newTestExtractor(t)
	briefing := e.Extract(context.Background(), "IGV", html, nil)

	if len(briefing.NewsItems) != 2 {
		t.Fatalf("expected 2 news items, got %d: %+v", len(briefing.NewsItems), briefing.NewsItems)
	}

	first := briefing.NewsItems[0]
	if first.Title != "소프트웨어 업계 동향" || first.Source != "뉴스핌" {
		t.Fatalf("unexpected first item: %+v", first)
	}
	if !strings.HasPrefix(first.URL, "https://invest.zum.com/investment/news/12345?") {
		t.Fatalf("ancestor anchor must resolve against the origin: %s", first.URL)
	}
	if !strings.Contains(first.URL, "docid=99") {
		t.Fatalf("existing article id must be kept: %s", first.URL)
	}
	if !strings.Contains(first.URL, "doctype=news") {
		t.Fatalf("missing doctype must be filled: %s", first.URL)
	}

	second := briefing.NewsItems[1]
	if !strings.HasPrefix(second.URL, "https://invest.zum.com/etf/IGV/news/777?") {
		t.Fatalf("relative links must resolve under the ticker page: %s", second.URL)
	}
	if !strings.Contains(second.URL, "docid=5384592") {
		t.Fatalf("missing article id must get the default: %s", second.URL)
	}
}

func TestNormalizeLinkIdempotent(t *testing.T) {
	t.Parallel()

	e := newTestExtractor(t)

	once := e.NormalizeLink("news/abc", "IGV")
	if once == "" {
		t.Fatalf("relative link must normalize")
	}
	twice := e.NormalizeLink(once, "IGV")
	if once != twice {
		t.Fatalf("normalization must be idempotent: %s != %s", once, twice)
	}

	for _, param := range []string{"doctype=news", "docid=5384592", "isdomestic=false", "istrending=false"} {
		if !strings.Contains(once, param) {
			t.Fatalf("normalized link missing %s: %s", param, once)
		}
	}
}

func TestNormalizeLinkRejectsNonNavigable(t *testing.T) {
	t.Parallel()

	e := newTestExtractor(t)
	for _, link := range []string{"", "#section", "javascript:void(0)"} {
		if got := e.NormalizeLink(link, "IGV"); got != "" {
			t.Fatalf("link %q must be rejected, got %s", link, got)
		}
	}
}

func TestScriptLinksExcludeNewsURLs(t *testing.T) {
	t.Parallel()

	html := `<div class="styles_briefingInner__8_73I">업황 요약입니다.</div>` +
		`<div class="styles_container__oDEu1"><a href="/investment/news/12345?docid=99">` +
		`<div class="styles_article__0oE8K">` +
		`<div class="styles_title__ummjn">소프트웨어 업계 동향</div>` +
		`<span class="styles_info__OeSIl">뉴스핌</span>` +
		`</div></a></div>`

	stub := &scriptStub{anchors: []string{
		"/investment/news/12345?docid=99",
		"/investment/news/67890?docid=42",
		"/investment/news/67890?docid=42",
	}}

	e := newTestExtractor(t)
	briefing := e.Extract(context.Background(), "IGV", html, stub)

	if len(briefing.ExtraLinks) != 1 {
		t.Fatalf("expected 1 extra link, got %v", briefing.ExtraLinks)
	}
	if !strings.Contains(briefing.ExtraLinks[0], "docid=42") {
		t.Fatalf("unexpected extra link: %s", briefing.ExtraLinks[0])
	}
}

func TestScriptLinksFallbackToClickHandlers(t *testing.T) {
	t.Parallel()

	html := `<div class="styles_briefingInner__8_73I">업황 요약입니다.</div>`
	stub := &scriptStub{handlers: []string{"/investment/news/555?docid=5"}}

	e := newTestExtractor(t)
	briefing := e.Extract(context.Background(), "IGV", html, stub)

	if stub.calls != 2 {
		t.Fatalf("expected anchor scan then handler probe, got %d calls", stub.calls)
	}
	if len(briefing.ExtraLinks) != 1 || !strings.Contains(briefing.ExtraLinks[0], "docid=5") {
		t.Fatalf("unexpected extra links: %v", briefing.ExtraLinks)
	}
}

func TestScriptLinksFailureCostsOnlyExtras(t *testing.T) {
	t.Parallel()

	html := `<div class="styles_briefingInner__8_73I">업황 요약입니다.</div>`
	stub := &scriptStub{anchorErr: fmt.Errorf("page went away")}

	e := newTestExtractor(t)
	briefing := e.Extract(context.Background(), "IGV", html, stub)

	if briefing.Status != domain.StatusOK {
		t.Fatalf("script failure must not affect status, got %s", briefing.Status)
	}
	if len(briefing.ExtraLinks) != 0 {
		t.Fatalf("expected no extra links, got %v", briefing.ExtraLinks)
	}
}
