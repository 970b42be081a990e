package sheet

import (
	"context"
	"math"
	"strings"

	"github.com/mattn/go-runewidth"
	"github.com/muesli/reflow/wordwrap"
)

// TextMeasurer estimates the printed height of a block by word-wrapping its
// text lines to the page width at a given font size. It is the measurer used
// outside a real rendering surface, e.g. by the CLI.
type TextMeasurer struct {
	PageWidth     float64 // usable width in pixels; zero means not attached
	CharWidth     float64 // average glyph width as a fraction of the font size
	LineHeight    float64 // line height as a multiple of the font size
	TitleScale    float64 // title font size relative to the body
	VerticalSpace float64 // fixed pixels of block chrome (borders, spacing)
}

// NewTextMeasurer returns a measurer for the given usable page width.
func NewTextMeasurer(pageWidth float64) *TextMeasurer {
	return &TextMeasurer{
		PageWidth:     pageWidth,
		CharWidth:     0.55,
		LineHeight:    1.4,
		TitleScale:    1.5,
		VerticalSpace: 16,
	}
}

// Measure implements Measurer.
func (m *TextMeasurer) Measure(ctx context.Context, block Block, fontSize int) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if m.PageWidth <= 0 || fontSize <= 0 {
		return 0, ErrNotMeasurable
	}
	size := float64(fontSize)
	lines := blockLines(block)

	titleLines := m.wrappedLineCount(lines[0], size*m.TitleScale)
	height := float64(titleLines) * size * m.TitleScale * m.LineHeight
	for _, line := range lines[1:] {
		height += float64(m.wrappedLineCount(line, size)) * size * m.LineHeight
	}
	return height + m.VerticalSpace, nil
}

// wrappedLineCount counts printed lines for one logical line. Words longer
// than a line are hard-broken.
func (m *TextMeasurer) wrappedLineCount(line string, fontSize float64) int {
	if strings.TrimSpace(line) == "" {
		return 1
	}
	columns := int(m.PageWidth / (fontSize * m.CharWidth))
	if columns < 1 {
		columns = 1
	}
	count := 0
	for _, wrapped := range strings.Split(wordwrap.String(line, columns), "\n") {
		width := runewidth.StringWidth(wrapped)
		if width > columns {
			count += int(math.Ceil(float64(width) / float64(columns)))
			continue
		}
		count++
	}
	return count
}
