package sheet

import (
	"fmt"
	"strings"
)

// WriteSheet renders blocks as a plain-text production sheet, one section
// per block separated by form feeds so each block prints on its own page.
func WriteSheet(title string, blocks []Block, comment string) string {
	var builder strings.Builder
	if title != "" {
		builder.WriteString(title + "\n")
		builder.WriteString(strings.Repeat("=", len([]rune(title))) + "\n")
	}
	if comment != "" {
		safeComment := strings.ReplaceAll(comment, "\n", " ")
		safeComment = strings.ReplaceAll(safeComment, "\r", " ")
		fmt.Fprintf(&builder, "# %s\n", safeComment)
	}
	for i, block := range blocks {
		if i > 0 {
			builder.WriteString("\f\n")
		}
		for _, line := range blockLines(block) {
			builder.WriteString(line + "\n")
		}
	}
	return builder.String()
}

// WriteRendered writes the sheet from rendered blocks, so every line shows
// the quantity left after conflict handling.
func WriteRendered(title string, rendered []RenderedBlock, comment string) string {
	blocks := make([]Block, len(rendered))
	for i, r := range rendered {
		blocks[i] = r.Block
	}
	return WriteSheet(title, blocks, comment)
}

// blockLines is the printed content of a block, one entry per logical line.
func blockLines(block Block) []string {
	lines := []string{block.Title}
	if block.Subtitle != "" {
		lines = append(lines, block.Subtitle)
	}
	lines = append(lines, "")

	for _, item := range block.Items {
		lines = append(lines, itemLine(item, true))
	}
	for _, group := range block.Groups {
		header := group.Name
		if group.Unit != "" || group.Total != 0 {
			header = fmt.Sprintf("%s  [total %s]", group.Name, FormatQuantity(group.Total, group.Unit))
		}
		lines = append(lines, header)
		for _, item := range group.Items {
			lines = append(lines, "  "+itemLine(item, false))
		}
	}
	return lines
}

func itemLine(item Item, withRecipe bool) string {
	var b strings.Builder
	if item.Display != "" {
		b.WriteString(item.Display)
	} else {
		b.WriteString(FormatQuantity(item.Quantity, item.Unit))
	}
	b.WriteString("  ")
	if withRecipe {
		b.WriteString(item.RecipeName)
	} else {
		// Grouped lines are already titled by recipe or customer.
		if item.CustomerName != "" {
			b.WriteString(item.CustomerName)
		}
		if item.RecipeName != "" {
			if item.CustomerName != "" {
				b.WriteString(" / ")
			}
			b.WriteString(item.RecipeName)
		}
	}
	if item.Notes != "" {
		b.WriteString(" (" + item.Notes + ")")
	}
	return b.String()
}
