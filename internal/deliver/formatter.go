package deliver

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"BriefingScanner/internal/domain"
)

// ContinuationMarker prefixes every chunk after the first so readers can
// stitch split briefings back together.
const ContinuationMarker = "(계속) "

// linkTruncateLimit caps the quick-access link list when the full list
// would not fit into one chunk.
const linkTruncateLimit = 5

// Formatter turns structured briefings into delivery chunks that respect
// the channel's message size limit. Limits are counted in runes, not
// bytes: the narratives are Korean.
type Formatter struct {
	maxChunk int
}

// NewFormatter builds a formatter for the given chunk budget; zero or
// negative falls back to the production limit.
func NewFormatter(maxChunkLength int) *Formatter {
	if maxChunkLength <= 0 {
		maxChunkLength = 3000
	}
	return &Formatter{maxChunk: maxChunkLength}
}

// Format sanitizes and chunks one briefing: narrative chunks first, link
// chunks last, every payload within the chunk budget.
func (f *Formatter) Format(briefing domain.StructuredBriefing, day time.Time) ([]domain.DeliveryChunk, error) {
	if utf8.RuneCountInString(ContinuationMarker) >= f.maxChunk {
		return nil, fmt.Errorf("%w: chunk budget %d cannot fit the continuation marker",
			domain.ErrDeliveryFormat, f.maxChunk)
	}

	text := f.header(briefing.Ticker, day) + f.BodyText(briefing)

	var chunks []domain.DeliveryChunk
	for _, payload := range f.chunk(text) {
		chunks = append(chunks, domain.DeliveryChunk{
			Ticker:  briefing.Ticker,
			Kind:    domain.ChunkText,
			Payload: payload,
		})
	}
	for _, payload := range f.linkBlock(briefing) {
		chunks = append(chunks, domain.DeliveryChunk{
			Ticker:  briefing.Ticker,
			Kind:    domain.ChunkText,
			Payload: payload,
		})
	}
	return envelope(chunks), nil
}

// CardChunks wraps a rendered card image with the briefing's link chunks,
// replacing the narrative text path.
func (f *Formatter) CardChunks(briefing domain.StructuredBriefing, day time.Time, image []byte) []domain.DeliveryChunk {
	chunks := []domain.DeliveryChunk{{
		Ticker:  briefing.Ticker,
		Kind:    domain.ChunkImage,
		Image:   image,
		Caption: fmt.Sprintf("%s 데일리 브리핑 (%s)", briefing.Ticker, domain.KoreanDate(day)),
	}}
	for _, payload := range f.linkBlock(briefing) {
		chunks = append(chunks, domain.DeliveryChunk{
			Ticker:  briefing.Ticker,
			Kind:    domain.ChunkText,
			Payload: payload,
		})
	}
	return envelope(chunks)
}

// BodyText is the sanitized composed body, shared by the text and the card
// rendering paths.
func (f *Formatter) BodyText(briefing domain.StructuredBriefing) string {
	return Sanitize(briefing.ComposedBody())
}

// ErrorNotice is the minimal replacement chunk when formatting itself
// failed and the subscriber still needs to hear about the ticker.
func ErrorNotice(ticker string, day time.Time, err error) domain.DeliveryChunk {
	return domain.DeliveryChunk{
		Ticker:     ticker,
		TotalCount: 1,
		Kind:       domain.ChunkText,
		Payload: fmt.Sprintf("⚠️ %s 데일리 브리핑 (%s)\n\n브리핑을 전송할 수 없습니다: %v",
			ticker, domain.KoreanDate(day), err),
	}
}

func (f *Formatter) header(ticker string, day time.Time) string {
	return fmt.Sprintf("📈 <b>%s 데일리 브리핑</b> (%s)\n\n", ticker, domain.KoreanDate(day))
}

// chunk splits text into rune-bounded payloads. The first chunk uses the
// full budget; continuation chunks reserve room for the marker so no
// payload ever exceeds the limit.
func (f *Formatter) chunk(text string) []string {
	runes := []rune(text)
	if len(runes) <= f.maxChunk {
		return []string{text}
	}

	pieces := []string{string(runes[:f.maxChunk])}
	rest := runes[f.maxChunk:]
	step := f.maxChunk - utf8.RuneCountInString(ContinuationMarker)
	for len(rest) > 0 {
		n := step
		if len(rest) < n {
			n = len(rest)
		}
		pieces = append(pieces, ContinuationMarker+string(rest[:n]))
		rest = rest[n:]
	}
	return pieces
}

// namedLink is one quick-access entry: news links keep their headline as
// the anchor text, script-harvested links are bare URLs.
type namedLink struct {
	label string
	url   string
}

func collectLinks(briefing domain.StructuredBriefing) []namedLink {
	var links []namedLink
	seen := map[string]struct{}{}
	for _, item := range briefing.NewsItems {
		if item.URL == "" {
			continue
		}
		if _, ok := seen[item.URL]; ok {
			continue
		}
		seen[item.URL] = struct{}{}
		links = append(links, namedLink{label: item.Title, url: item.URL})
	}
	for _, link := range briefing.ExtraLinks {
		if _, ok := seen[link]; ok {
			continue
		}
		seen[link] = struct{}{}
		links = append(links, namedLink{url: link})
	}
	return links
}

// linkBlock renders the quick-access link list. When the full list does
// not fit into one chunk it is cut to the newest entries and relabeled.
func (f *Formatter) linkBlock(briefing domain.StructuredBriefing) []string {
	links := collectLinks(briefing)
	if len(links) == 0 {
		return nil
	}

	head := fmt.Sprintf("🔗 <b>%s 뉴스 링크</b>", briefing.Ticker)
	block := renderLinks(head, links)
	if utf8.RuneCountInString(block) > f.maxChunk {
		head = fmt.Sprintf("🔗 <b>%s 뉴스 링크</b> (최신 %d개)", briefing.Ticker, linkTruncateLimit)
		if len(links) > linkTruncateLimit {
			links = links[:linkTruncateLimit]
		}
		block = renderLinks(head, links)
	}
	return f.chunk(block)
}

func renderLinks(header string, links []namedLink) string {
	var sb strings.Builder
	sb.WriteString(header)
	sb.WriteString("\n")
	for i, link := range links {
		if link.label != "" {
			sb.WriteString(fmt.Sprintf("\n%d. <a href=\"%s\">%s</a>", i+1, link.url, link.label))
			continue
		}
		sb.WriteString(fmt.Sprintf("\n%d. %s", i+1, link.url))
	}
	return sb.String()
}

// envelope stamps sequence positions onto a ticker's chunk set.
func envelope(chunks []domain.DeliveryChunk) []domain.DeliveryChunk {
	for i := range chunks {
		chunks[i].SequenceIndex = i
		chunks[i].TotalCount = len(chunks)
	}
	return chunks
}
