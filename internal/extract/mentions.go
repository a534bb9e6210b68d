package extract

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"BriefingScanner/internal/config"
	"BriefingScanner/internal/domain"
)

var (
	symbolExpr    = regexp.MustCompile(`\(([A-Z]+)\)`)
	magnitudeExpr = regexp.MustCompile(`([+-]?\d+(?:\.\d+)?)\s*%`)
	priceExpr     = regexp.MustCompile(`(\d+(?:,\d{3})*(?:\.\d+)?)$`)
	dateTokenExpr = regexp.MustCompile(`^\d{1,4}(년|월|일)$`)
)

// parseMentions re-derives constituent stock references from the page's
// item nodes rather than from the flattened container text, so the numbers
// stay attached to the right company.
func parseMentions(doc *goquery.Document, src config.SourceConfig) []domain.ConstituentMention {
	var mentions []domain.ConstituentMention

	doc.Find("div." + src.ItemContainer).Each(func(_ int, item *goquery.Selection) {
		body := item.Find("div." + src.ItemBriefing).First()
		if body.Length() == 0 {
			return
		}
		content := strings.TrimSpace(body.Text())
		if content == "" {
			return
		}

		mention, ok := parseMention(content, src)
		if !ok {
			return
		}
		if info := item.Find("div." + src.ItemInfo).First(); info.Length() > 0 {
			if match := symbolExpr.FindStringSubmatch(info.Text()); match != nil {
				mention.Symbol = match[1]
			}
		}
		mentions = append(mentions, mention)
	})

	return mentions
}

// parseMention resolves name, closing price and signed change from one
// item's briefing sentence. Partial parses are dropped, not reported.
func parseMention(content string, src config.SourceConfig) (domain.ConstituentMention, bool) {
	if !strings.Contains(content, src.SubjectMarker) {
		return domain.ConstituentMention{}, false
	}

	fell := true
	marker := src.FellMarker
	idx := strings.Index(content, marker)
	if idx < 0 {
		fell = false
		marker = src.RoseMarker
		idx = strings.Index(content, marker)
	}
	if idx < 0 {
		return domain.ConstituentMention{}, false
	}

	before := content[:idx]
	after := content[idx+len(marker):]

	// The magnitude is the last percentage before the directional marker.
	magMatches := magnitudeExpr.FindAllStringSubmatch(before, -1)
	if magMatches == nil {
		return domain.ConstituentMention{}, false
	}
	change := signedChange(magMatches[len(magMatches)-1][1], fell)

	curIdx := strings.Index(after, src.CurrencyMarker)
	if curIdx < 0 {
		return domain.ConstituentMention{}, false
	}
	priceMatch := priceExpr.FindStringSubmatch(strings.TrimSpace(after[:curIdx]))
	if priceMatch == nil {
		return domain.ConstituentMention{}, false
	}

	name := mentionName(content, src)
	if name == "" {
		return domain.ConstituentMention{}, false
	}

	return domain.ConstituentMention{
		Name:          name,
		Price:         priceMatch[1],
		ChangePercent: change,
	}, true
}

// signedChange normalizes the direction into the sign: fallers keep an
// explicit sign or gain a minus, risers always carry a plus.
func signedChange(magnitude string, fell bool) string {
	if fell {
		if strings.HasPrefix(magnitude, "-") || strings.HasPrefix(magnitude, "+") {
			return magnitude
		}
		return "-" + magnitude
	}
	return "+" + strings.TrimLeft(magnitude, "+-")
}

// mentionName is the text before the first comma, minus leading date
// tokens and anything from the subject marker onward.
func mentionName(content string, src config.SourceConfig) string {
	head, _, ok := strings.Cut(content, ",")
	if !ok {
		return ""
	}

	var kept []string
	for _, field := range strings.Fields(head) {
		if len(kept) == 0 && dateTokenExpr.MatchString(field) {
			continue
		}
		if field == src.SubjectMarker {
			break
		}
		kept = append(kept, field)
	}
	return strings.Join(kept, " ")
}
