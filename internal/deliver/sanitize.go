package deliver

import (
	"regexp"
	"strings"
)

var (
	cssRuleExpr   = regexp.MustCompile(`[.#]?[a-zA-Z0-9_-]+\s*\{[^}]*\}`)
	mediaExpr     = regexp.MustCompile(`(?s)@media[^{]*\{.*?\}`)
	styleAttrExpr = regexp.MustCompile(`style\s*=\s*["'][^"']*["']`)
	selectorExpr  = regexp.MustCompile(`^[.#]?[a-zA-Z0-9_-]+\s*\{`)
	spaceRunExpr  = regexp.MustCompile(`[ \t]{2,}`)
	tagExpr       = regexp.MustCompile(`<[^>]*>`)
)

// Sanitize strips style and script remnants that leak out of rendered page
// text and normalizes whitespace: runs of spaces collapse to one, runs of
// blank lines collapse to a single paragraph break.
func Sanitize(text string) string {
	text = mediaExpr.ReplaceAllString(text, "")
	text = cssRuleExpr.ReplaceAllString(text, "")
	text = styleAttrExpr.ReplaceAllString(text, "")
	text = spaceRunExpr.ReplaceAllString(text, " ")

	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	pendingBreak := false
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			pendingBreak = len(out) > 0
			continue
		}
		if looksLikeCSS(trimmed) {
			continue
		}
		if pendingBreak {
			out = append(out, "")
			pendingBreak = false
		}
		out = append(out, trimmed)
	}
	return strings.Join(out, "\n")
}

// looksLikeCSS flags leftover stylesheet lines the rendered text sometimes
// carries when the page shipped inline styles.
func looksLikeCSS(line string) bool {
	if selectorExpr.MatchString(line) {
		return true
	}
	if strings.Contains(line, "{") && strings.Contains(line, "}") {
		return true
	}
	switch line[0] {
	case '.', '#', '{', '}':
		return true
	}
	return false
}

// Plain is the markup-stripped variant of a formatted payload, used when a
// channel rejects rich formatting and the send is retried bare.
func Plain(text string) string {
	return tagExpr.ReplaceAllString(text, "")
}
