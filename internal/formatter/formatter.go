package formatter

import (
	"encoding/json"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"
	"github.com/wenqu/procurement-assistant/internal/analyzer"
	"github.com/wenqu/procurement-assistant/internal/domain"
)

const (
	maxPreviewRows    = 50
	maxPreviewColumns = 15
	maxCellChars      = 100
)

// Columns shown first in the preview table, in priority order.
var previewPriorityColumns = []string{
	"primary_tag",
	"secondary_tag",
	"budget_amount",
	"intention_budget_amount",
	"notice_title",
	"project_name",
	"title",
	"intention_project_name",
	"purchaser_name",
	"intention_procurement_unit",
	"province",
	"city",
}

var amountColumns = map[string]bool{
	"budget_amount":           true,
	"intention_budget_amount": true,
}

var tagColumns = map[string]bool{
	"primary_tag":   true,
	"secondary_tag": true,
}

// Format composes the full presentation payload: record-count header, tag
// overview, narrative HTML, SQL echo and preview table.
func Format(userMessage string, synth *domain.SynthResult, result domain.QueryResult, narrative string, stats *analyzer.TagStatistics) domain.ChatResponse {
	var b strings.Builder

	fmt.Fprintf(&b, `<div class="result-header">共查询到 <strong>%d</strong> 条记录</div>`+"\n", len(result.Rows))

	if stats.HasTags() {
		b.WriteString(renderTagOverview(stats))
	}

	b.WriteString(`<div class="narrative">` + "\n")
	b.WriteString(ConvertMarkdown(narrative))
	b.WriteString("</div>\n")

	b.WriteString(renderTechnicalSection(synth.SQL, result))

	resp := domain.SuccessResponse(domain.ResponseTypeSQLAnalysis, b.String())
	resp.DataCount = domain.IntPtr(len(result.Rows))
	resp.SQLQuery = synth.SQL
	resp.TablesUsed = synth.TablesUsed
	return resp
}

func renderTagOverview(stats *analyzer.TagStatistics) string {
	var b strings.Builder
	b.WriteString(`<div class="tag-overview">` + "\n")

	if len(stats.PrimaryTags) > 0 {
		b.WriteString(`<div class="tag-row">`)
		for _, tc := range analyzer.TopTags(stats.PrimaryTags, len(stats.PrimaryTags)) {
			fmt.Fprintf(&b, `<span class="tag-badge tag-primary">%s × %d (%.1f%%)</span>`,
				html.EscapeString(tc.Tag), tc.Count, percent(tc.Count, stats.RowCount))
		}
		b.WriteString("</div>\n")
	}

	if len(stats.SecondaryTags) > 0 {
		b.WriteString(`<div class="tag-row">`)
		for _, tc := range analyzer.TopTags(stats.SecondaryTags, len(stats.SecondaryTags)) {
			fmt.Fprintf(&b, `<span class="tag-badge tag-secondary">%s × %d (%.1f%%)</span>`,
				html.EscapeString(tc.Tag), tc.Count, percent(tc.Count, stats.RowCount))
		}
		b.WriteString("</div>\n")
	}

	if stats.Amounts != nil {
		fmt.Fprintf(&b, `<div class="amount-summary">金额合计 %s，平均 %s，最高 %s</div>`+"\n",
			commaAmount(stats.Amounts.Total),
			commaAmount(stats.Amounts.Avg),
			commaAmount(stats.Amounts.Max))
	}

	b.WriteString("</div>\n")
	return b.String()
}

func renderTechnicalSection(sql string, result domain.QueryResult) string {
	var b strings.Builder
	b.WriteString(`<div class="technical-section">` + "\n")

	escaped := html.EscapeString(sql)
	fmt.Fprintf(&b, `<div class="sql-block"><button class="copy-btn" data-sql="%s">复制 SQL</button><pre><code>%s</code></pre></div>`+"\n", escaped, escaped)

	b.WriteString(renderPreviewTable(result))
	b.WriteString("</div>\n")
	return b.String()
}

func renderPreviewTable(result domain.QueryResult) string {
	if len(result.Rows) == 0 {
		return ""
	}

	columns := selectPreviewColumns(result.Columns)

	var b strings.Builder
	b.WriteString(`<table class="preview-table">` + "\n<thead><tr>")
	for _, col := range columns {
		fmt.Fprintf(&b, "<th>%s</th>", html.EscapeString(col))
	}
	b.WriteString("</tr></thead>\n<tbody>\n")

	rows := result.Rows
	if len(rows) > maxPreviewRows {
		rows = rows[:maxPreviewRows]
	}
	for _, row := range rows {
		b.WriteString("<tr>")
		for _, col := range columns {
			b.WriteString(renderCell(col, row[col]))
		}
		b.WriteString("</tr>\n")
	}

	b.WriteString("</tbody>\n</table>\n")
	fmt.Fprintf(&b, `<div class="preview-note">预览 %d / %d 条</div>`+"\n", len(rows), len(result.Rows))
	return b.String()
}

// selectPreviewColumns orders known columns by priority, then fills with the
// remaining result columns until the cap.
func selectPreviewColumns(resultColumns []string) []string {
	present := make(map[string]bool, len(resultColumns))
	for _, c := range resultColumns {
		present[c] = true
	}

	var columns []string
	chosen := make(map[string]bool)
	for _, c := range previewPriorityColumns {
		if present[c] && len(columns) < maxPreviewColumns {
			columns = append(columns, c)
			chosen[c] = true
		}
	}
	for _, c := range resultColumns {
		if !chosen[c] && len(columns) < maxPreviewColumns {
			columns = append(columns, c)
			chosen[c] = true
		}
	}
	return columns
}

func renderCell(col string, v any) string {
	if v == nil {
		return `<td class="null-cell">NULL</td>`
	}

	if amountColumns[col] {
		if d, ok := analyzer.ToDecimal(v); ok {
			return fmt.Sprintf(`<td class="amount-cell">%s</td>`, commaAmount(d))
		}
	}

	if tagColumns[col] {
		return fmt.Sprintf(`<td><span class="tag-badge">%s</span></td>`, html.EscapeString(fmt.Sprintf("%v", v)))
	}

	switch t := v.(type) {
	case time.Time:
		return fmt.Sprintf("<td>%s</td>", t.Format("2006-01-02 15:04:05"))
	case map[string]any, []any:
		data, err := json.MarshalIndent(t, "", "  ")
		if err != nil {
			return fmt.Sprintf("<td>%s</td>", html.EscapeString(fmt.Sprintf("%v", t)))
		}
		return fmt.Sprintf("<td><pre>%s</pre></td>", html.EscapeString(string(data)))
	case string:
		runes := []rune(t)
		if len(runes) > maxCellChars {
			return fmt.Sprintf(`<td title="%s">%s…</td>`, html.EscapeString(t), html.EscapeString(string(runes[:maxCellChars])))
		}
		return fmt.Sprintf("<td>%s</td>", html.EscapeString(t))
	default:
		return fmt.Sprintf("<td>%s</td>", html.EscapeString(fmt.Sprintf("%v", t)))
	}
}

func commaAmount(d decimal.Decimal) string {
	f, _ := d.Float64()
	return humanize.CommafWithDigits(f, 2)
}

func percent(part, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(part) * 100 / float64(total)
}
