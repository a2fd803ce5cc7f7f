package formatter

import (
	"fmt"
	"html"
	"regexp"
	"strings"
)

var boldPattern = regexp.MustCompile(`\*\*(.+?)\*\*`)

// ConvertMarkdown renders the narrative subset of Markdown to HTML:
// #/##/### headings, **bold**, - and * lists, and pipe tables. All text is
// escaped before tags are inserted.
func ConvertMarkdown(md string) string {
	lines := strings.Split(md, "\n")

	var b strings.Builder
	i := 0
	for i < len(lines) {
		line := strings.TrimSpace(lines[i])

		switch {
		case line == "":
			i++
		case strings.HasPrefix(line, "### "):
			fmt.Fprintf(&b, "<h3>%s</h3>\n", inline(strings.TrimPrefix(line, "### ")))
			i++
		case strings.HasPrefix(line, "## "):
			fmt.Fprintf(&b, "<h2>%s</h2>\n", inline(strings.TrimPrefix(line, "## ")))
			i++
		case strings.HasPrefix(line, "# "):
			fmt.Fprintf(&b, "<h1>%s</h1>\n", inline(strings.TrimPrefix(line, "# ")))
			i++
		case isListItem(line):
			b.WriteString("<ul>\n")
			for i < len(lines) && isListItem(strings.TrimSpace(lines[i])) {
				item := strings.TrimSpace(lines[i])[2:]
				fmt.Fprintf(&b, "<li>%s</li>\n", inline(item))
				i++
			}
			b.WriteString("</ul>\n")
		case isTableRow(line):
			i = convertTable(&b, lines, i)
		default:
			fmt.Fprintf(&b, "<p>%s</p>\n", inline(line))
			i++
		}
	}

	return b.String()
}

func inline(s string) string {
	escaped := html.EscapeString(s)
	return boldPattern.ReplaceAllString(escaped, "<strong>$1</strong>")
}

func isListItem(line string) bool {
	return strings.HasPrefix(line, "- ") || strings.HasPrefix(line, "* ")
}

func isTableRow(line string) bool {
	return strings.HasPrefix(line, "|") && strings.HasSuffix(line, "|") && len(line) > 1
}

func isTableSeparator(line string) bool {
	if !isTableRow(line) {
		return false
	}
	inner := strings.Trim(line, "|")
	for _, cell := range strings.Split(inner, "|") {
		cell = strings.TrimSpace(cell)
		if cell == "" || strings.Trim(cell, ":-") != "" {
			return false
		}
	}
	return true
}

func splitTableRow(line string) []string {
	inner := strings.Trim(strings.TrimSpace(line), "|")
	cells := strings.Split(inner, "|")
	for i := range cells {
		cells[i] = strings.TrimSpace(cells[i])
	}
	return cells
}

func convertTable(b *strings.Builder, lines []string, start int) int {
	i := start
	header := splitTableRow(lines[i])
	i++

	hasSeparator := i < len(lines) && isTableSeparator(strings.TrimSpace(lines[i]))
	if hasSeparator {
		i++
	}

	b.WriteString("<table>\n<thead><tr>")
	for _, cell := range header {
		fmt.Fprintf(b, "<th>%s</th>", inline(cell))
	}
	b.WriteString("</tr></thead>\n<tbody>\n")

	for i < len(lines) && isTableRow(strings.TrimSpace(lines[i])) {
		b.WriteString("<tr>")
		for _, cell := range splitTableRow(lines[i]) {
			fmt.Fprintf(b, "<td>%s</td>", inline(cell))
		}
		b.WriteString("</tr>\n")
		i++
	}

	b.WriteString("</tbody>\n</table>\n")
	return i
}
