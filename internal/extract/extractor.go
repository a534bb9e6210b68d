package extract

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"BriefingScanner/internal/config"
	"BriefingScanner/internal/domain"
	"BriefingScanner/internal/ports"
)

// Extractor turns rendered briefing pages into structured briefings. A
// chain of locate strategies finds the narrative block; mention, news and
// link parsing run uniformly on whatever the chain produced.
type Extractor struct {
	cfg    config.Config
	logger *slog.Logger
	now    func() time.Time
}

var _ ports.BriefingExtractor = (*Extractor)(nil)

// New wires an extractor against the source markup configuration.
func New(cfg config.Config, logger *slog.Logger) *Extractor {
	return &Extractor{cfg: cfg, logger: logger, now: time.Now}
}

// block is the raw narrative material located by one strategy.
type block struct {
	text       string   // flattened block text when no paragraphs exist
	paragraphs []string // ordered paragraph texts from the heading container
	container  bool     // a structural container was located, even if empty
}

// Extract never panics and never returns an error: parsing failures
// degrade to an error-status briefing so one broken page cannot take the
// batch down.
func (e *Extractor) Extract(ctx context.Context, ticker, documentText string, scripts ports.ScriptRunner) (briefing domain.StructuredBriefing) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("extraction panicked", "ticker", ticker, "panic", r)
			briefing = domain.NewErrorBriefing(ticker, fmt.Errorf("extract %s: %v", ticker, r))
		}
	}()

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(documentText))
	if err != nil {
		return domain.NewErrorBriefing(ticker, fmt.Errorf("parse document: %w", err))
	}

	blk, found := e.locate(doc)
	segments := e.narrative(doc, ticker, blk, found)
	if len(segments) == 0 {
		e.logger.Info("no briefing content", "ticker", ticker)
		return domain.NewEmptyBriefing(ticker)
	}

	news := e.parseNews(doc, ticker)
	extras := e.scriptLinks(ctx, scripts, ticker, news)

	return domain.StructuredBriefing{
		Ticker:     ticker,
		Narrative:  stripTickerEcho(segments, ticker),
		Mentions:   parseMentions(doc, e.cfg.Source),
		NewsItems:  news,
		ExtraLinks: extras,
		Status:     domain.StatusOK,
	}
}

// locate runs the strategy chain in priority order. A heading or known
// container stops the chain even when textually empty; the generic marker
// scan only runs when no container exists at all.
func (e *Extractor) locate(doc *goquery.Document) (block, bool) {
	if blk, ok := e.locateByHeading(doc); ok {
		return blk, true
	}
	if blk, ok := e.locateKnownContainer(doc); ok {
		return blk, true
	}
	if blk, ok := e.locateByMarker(doc); ok {
		return blk, true
	}
	return block{}, false
}

// locateByHeading anchors on the briefing heading and takes its enclosing
// div block. Paragraph children become ordered segments; otherwise the
// whole block text is kept flat.
func (e *Extractor) locateByHeading(doc *goquery.Document) (block, bool) {
	src := e.cfg.Source
	var (
		blk   block
		found bool
	)

	doc.Find(src.HeadingTag).EachWithBreak(func(_ int, heading *goquery.Selection) bool {
		if !strings.Contains(heading.Text(), src.HeadingMarker) {
			return true
		}

		container := heading.ParentsFiltered("div").Eq(1)
		if container.Length() == 0 {
			container = heading.ParentsFiltered("div").Eq(0)
		}
		if container.Length() == 0 {
			return true
		}

		blk = block{container: true}
		container.ChildrenFiltered("p").Each(func(_ int, p *goquery.Selection) {
			if text := strings.TrimSpace(p.Text()); text != "" {
				blk.paragraphs = append(blk.paragraphs, text)
			}
		})
		if len(blk.paragraphs) == 0 {
			blk.text = strings.TrimSpace(container.Text())
		}
		found = true
		return false
	})

	return blk, found
}

// locateKnownContainer matches the configured container class variants in
// order. The first present container wins, even when empty.
func (e *Extractor) locateKnownContainer(doc *goquery.Document) (block, bool) {
	for _, class := range e.cfg.Source.BriefingContainers {
		sel := doc.Find("div." + class).First()
		if sel.Length() == 0 {
			continue
		}
		return block{container: true, text: strings.TrimSpace(sel.Text())}, true
	}
	return block{}, false
}

// locateByMarker is the last resort: the first leaf div whose text carries
// the current year or a percent sign.
func (e *Extractor) locateByMarker(doc *goquery.Document) (block, bool) {
	year := fmt.Sprintf("%d", e.now().Year())
	var (
		blk   block
		found bool
	)

	doc.Find("div").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		if sel.Children().Length() > 0 {
			return true
		}
		text := strings.TrimSpace(sel.Text())
		if text == "" {
			return true
		}
		if !strings.Contains(text, year) && !strings.Contains(text, "%") {
			return true
		}
		blk = block{text: text}
		found = true
		return false
	})

	return blk, found
}

// narrative reduces the located block to ordered segments, falling back to
// the gap-fill table when a container exists but yields no usable text.
func (e *Extractor) narrative(doc *goquery.Document, ticker string, blk block, found bool) []string {
	if !found {
		return nil
	}

	if len(blk.paragraphs) > 0 {
		segments := make([]string, 0, len(blk.paragraphs))
		for i, paragraph := range blk.paragraphs {
			segments = append(segments, fmt.Sprintf("%d. %s", i+1, paragraph))
		}
		return segments
	}

	text := splitAtMarker(blk.text, e.splitMarkers())
	if !e.usable(text) {
		if blk.container {
			if synthesized, ok := e.gapFill(doc, ticker); ok {
				return sentenceSegments(synthesized)
			}
		}
		return nil
	}
	return sentenceSegments(text)
}

// splitMarkers are the date tokens that signal where trailing constituent
// blocks were flattened into the narrative text.
func (e *Extractor) splitMarkers() []string {
	year := e.now().Year()
	return []string{fmt.Sprintf("C%d년", year), fmt.Sprintf("%d년", year)}
}

// splitAtMarker keeps the prefix before the earliest marker occurrence.
// Markers at the very start of the text do not split: those pages open
// with the date and the whole text is the narrative.
func splitAtMarker(text string, markers []string) string {
	cut := -1
	for _, marker := range markers {
		idx := strings.Index(text, marker)
		if idx > 0 && (cut == -1 || idx < cut) {
			cut = idx
		}
	}
	if cut == -1 {
		return text
	}
	return strings.TrimSpace(text[:cut])
}

func (e *Extractor) usable(text string) bool {
	text = strings.TrimSpace(text)
	return text != "" && text != e.cfg.Source.HeadingMarker
}

// sentenceSegments splits flat text into one sentence per segment,
// restoring the trailing period the split consumes.
func sentenceSegments(text string) []string {
	var segments []string
	for _, part := range strings.Split(text, ". ") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if !strings.HasSuffix(part, ".") {
			part += "."
		}
		segments = append(segments, part)
	}
	return segments
}

// gapFill synthesizes a narrative from the ticker's template and the price
// figures still present on an otherwise empty page. Only tickers with a
// configured template are rescued; the rest stay empty.
func (e *Extractor) gapFill(doc *goquery.Document, ticker string) (string, bool) {
	rule := e.cfg.Rule(ticker)
	if rule.GapFillTemplate == "" {
		return "", false
	}

	now := e.now()
	replacer := strings.NewReplacer(
		"{date}", domain.KoreanDate(now),
		"{prevDate}", domain.KoreanDate(now.AddDate(0, 0, -1)),
		"{change}", classText(doc, "change"),
		"{price}", classText(doc, "price"),
	)

	e.logger.Info("briefing synthesized from template", "ticker", ticker)
	return replacer.Replace(rule.GapFillTemplate), true
}

// classText pulls the visible text of the first div whose class mentions
// the given fragment, newlines flattened; "N/A" when the page has none.
func classText(doc *goquery.Document, fragment string) string {
	var out string
	doc.Find("div").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		class, _ := sel.Attr("class")
		if !strings.Contains(strings.ToLower(class), fragment) {
			return true
		}
		text := strings.TrimSpace(sel.Text())
		if text == "" {
			return true
		}
		out = strings.Join(strings.Fields(text), " ")
		return false
	})
	if out == "" {
		return "N/A"
	}
	return out
}

// stripTickerEcho drops one redundant "TICKER:" label when the container's
// own heading leaked into the first segment.
func stripTickerEcho(segments []string, ticker string) []string {
	if len(segments) == 0 || !strings.HasPrefix(segments[0], ticker+":") {
		return segments
	}
	first := strings.TrimSpace(strings.TrimPrefix(segments[0], ticker+":"))
	out := make([]string, 0, len(segments))
	if first != "" {
		out = append(out, first)
	}
	return append(out, segments[1:]...)
}
