package render

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/fogleman/gg"
	"golang.org/x/image/font/basicfont"

	"BriefingScanner/internal/ports"
)

const (
	cardWidth      = 1000
	cardMinHeight  = 500
	cardLineHeight = 25
)

// Card rasterizes a briefing body into a shareable PNG. The bundled
// bitmap face covers ASCII only, so non-ASCII runes are folded to
// spaces and the numeric content carries the card.
type Card struct{}

var _ ports.CardRenderer = Card{}

func NewCard() Card { return Card{} }

func (Card) RenderCard(ticker, body string, day time.Time) ([]byte, error) {
	lines := strings.Split(body, "\n")

	height := 100 + cardLineHeight*len(lines)
	if height < cardMinHeight {
		height = cardMinHeight
	}

	dc := gg.NewContext(cardWidth, height)
	dc.SetRGB255(20, 24, 40)
	dc.Clear()
	dc.SetFontFace(basicfont.Face7x13)

	dc.SetRGB255(100, 140, 240)
	dc.SetLineWidth(2)
	dc.DrawRectangle(6, 6, float64(cardWidth-12), float64(height-12))
	dc.Stroke()

	dc.SetRGB255(66, 133, 244)
	dc.DrawString(ticker, 30, 40)

	dateLabel := day.Format("2006-01-02")
	labelWidth, _ := dc.MeasureString(dateLabel)
	dc.DrawString(dateLabel, float64(cardWidth)-30-labelWidth, 40)

	dc.SetRGB255(60, 70, 110)
	dc.DrawLine(30, 55, float64(cardWidth)-30, 55)
	dc.Stroke()

	dc.SetRGB255(240, 240, 245)
	y := 85.0
	for _, line := range lines {
		dc.DrawString(asciiFold(line), 30, y)
		y += cardLineHeight
	}

	var buf bytes.Buffer
	if err := dc.EncodePNG(&buf); err != nil {
		return nil, fmt.Errorf("encode card: %w", err)
	}
	return buf.Bytes(), nil
}

// asciiFold replaces runes the bitmap face cannot draw with spaces.
func asciiFold(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r < 128 {
			b.WriteRune(r)
		} else {
			b.WriteRune(' ')
		}
	}
	return b.String()
}
