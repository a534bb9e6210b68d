package extract

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"BriefingScanner/internal/domain"
	"BriefingScanner/internal/ports"
)

// NormalizeLink resolves a candidate hyperlink into an absolute article
// URL carrying the query parameters the reader app needs. Normalization is
// idempotent: links that already carry the markers pass through unchanged.
func (e *Extractor) NormalizeLink(link, ticker string) string {
	src := e.cfg.Source
	if link == "" || strings.HasPrefix(link, "#") || strings.HasPrefix(link, "javascript:") {
		return ""
	}

	switch {
	case strings.HasPrefix(link, "http"):
	case strings.HasPrefix(link, "/"):
		link = src.Origin + link
	default:
		link = fmt.Sprintf("%s/%s/%s/%s", src.Origin, e.cfg.Rule(ticker).SectionPath(), ticker, link)
	}

	parsed, err := url.Parse(link)
	if err != nil {
		return ""
	}

	query := parsed.Query()
	if query.Get(src.TypeParam) == "" {
		query.Set(src.TypeParam, src.TypeValue)
	}
	if query.Get(src.IDParam) == "" {
		query.Set(src.IDParam, src.DefaultID)
	}
	for key, value := range src.ExtraParams {
		if query.Get(key) == "" {
			query.Set(key, value)
		}
	}
	parsed.RawQuery = query.Encode()
	return parsed.String()
}

// scriptLinks asks the live page for article links the structural parse
// can miss. The anchor scan runs first; when it comes back empty the
// click-handler probe takes over. Script failures only cost the extra
// links, never the briefing.
func (e *Extractor) scriptLinks(ctx context.Context, scripts ports.ScriptRunner, ticker string, news []domain.NewsItem) []string {
	if scripts == nil {
		return nil
	}
	src := e.cfg.Source

	var raw []string
	if err := scripts.RunScript(ctx, anchorLinkScript(src.IDParam), &raw); err != nil {
		e.logger.Debug("anchor link script failed", "ticker", ticker, "error", err)
		return nil
	}
	if len(raw) == 0 {
		if err := scripts.RunScript(ctx, clickHandlerScript(src.IDParam), &raw); err != nil {
			e.logger.Debug("click handler script failed", "ticker", ticker, "error", err)
			return nil
		}
	}

	taken := map[string]struct{}{}
	for _, item := range news {
		if item.URL != "" {
			taken[item.URL] = struct{}{}
		}
	}

	var extras []string
	for _, link := range raw {
		normalized := e.NormalizeLink(link, ticker)
		if normalized == "" {
			continue
		}
		if _, ok := taken[normalized]; ok {
			continue
		}
		taken[normalized] = struct{}{}
		extras = append(extras, normalized)
	}
	return extras
}

func anchorLinkScript(idParam string) string {
	return fmt.Sprintf(`Array.from(new Set(Array.from(document.querySelectorAll('a[href*="%s"]')).map(a => a.href)))`, idParam)
}

func clickHandlerScript(idParam string) string {
	return fmt.Sprintf(`(() => {
	const links = [];
	document.querySelectorAll('[onclick*="%s"]').forEach(el => {
		const handler = el.getAttribute('onclick') || '';
		const match = handler.match(/window\.location\.href\s*=\s*['"]([^'"]+)['"]/);
		if (match) { links.push(match[1]); }
	});
	return links;
})()`, idParam)
}
