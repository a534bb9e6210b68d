package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"BriefingScanner/internal/domain"
)

// parseNews collects the related-article blocks under each item node.
// Items without both a title and a source are skipped; duplicates are
// folded by their normalized URL.
func (e *Extractor) parseNews(doc *goquery.Document, ticker string) []domain.NewsItem {
	src := e.cfg.Source
	var items []domain.NewsItem
	seen := map[string]struct{}{}

	doc.Find("div." + src.ItemContainer).Each(func(_ int, item *goquery.Selection) {
		article := item.Find("div." + src.ArticleBlock).First()
		if article.Length() == 0 {
			return
		}

		title := strings.TrimSpace(article.Find("div." + src.ArticleTitle).First().Text())
		source := strings.TrimSpace(article.Find("span." + src.ArticleSource).First().Text())
		if title == "" || source == "" {
			return
		}

		href := articleLink(article)
		if href != "" {
			href = e.NormalizeLink(href, ticker)
		}
		if href != "" {
			if _, ok := seen[href]; ok {
				return
			}
			seen[href] = struct{}{}
		}

		items = append(items, domain.NewsItem{Title: title, Source: source, URL: href})
	})

	return items
}

// articleLink prefers the enclosing anchor and falls back to a nested one.
func articleLink(article *goquery.Selection) string {
	if href, ok := article.Closest("a").Attr("href"); ok {
		return href
	}
	if href, ok := article.Find("a[href]").First().Attr("href"); ok {
		return href
	}
	return ""
}
