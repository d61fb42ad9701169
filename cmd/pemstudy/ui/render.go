package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"

	"pemstudy/internal/types"
)

// renderSource lays out a unit's source with a line-number gutter and marks
// the diagnostic position: the offending line's number is highlighted and a
// caret points at the column on the following line.
func renderSource(source string, pos types.Position, styles Styles) string {
	lines := strings.Split(strings.TrimRight(source, "\n"), "\n")
	width := len(fmt.Sprintf("%d", len(lines)))

	var b strings.Builder
	for i, line := range lines {
		number := fmt.Sprintf("%*d", width, i+1)
		gutter := styles.Gutter.Render(number + " | ")
		if i+1 == pos.Line {
			gutter = styles.ErrorPos.Render(number) + styles.Gutter.Render(" | ")
		}
		b.WriteString(gutter)
		b.WriteString(line)
		b.WriteString("\n")

		if i+1 == pos.Line {
			b.WriteString(styles.Gutter.Render(strings.Repeat(" ", width) + " | "))
			b.WriteString(strings.Repeat(" ", max(pos.Col-1, 0)))
			b.WriteString(styles.Caret.Render("^"))
			b.WriteString("\n")
		}
	}
	return b.String()
}

// renderMessage renders one variant's message. The LLM variants answer in
// markdown, so they go through glamour; compiler and tool output is shown
// verbatim.
func renderMessage(variant types.Variant, text string, width int) string {
	if variant == types.VariantLLMErrorOnly || variant == types.VariantLLMWithContext {
		r, err := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(width),
		)
		if err == nil {
			if out, err := r.Render(text); err == nil {
				return strings.TrimSpace(out)
			}
		}
	}
	return text
}
