package analyzer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/wenqu/procurement-assistant/internal/domain"
	"github.com/wenqu/procurement-assistant/internal/llm"
)

const (
	narrativeTemperature = 0.3
	narrativeMaxTokens   = 1200
	narrativeTimeout     = 60 * time.Second

	maxPromptRows = 30
	maxCellChars  = 100
)

// Analyzer produces the narrative Markdown for a result set, falling back to
// a deterministic summary when the LLM is unavailable.
type Analyzer struct {
	llmRouter *llm.Router
}

// New creates an analyzer backed by the provider registry.
func New(llmRouter *llm.Router) *Analyzer {
	return &Analyzer{llmRouter: llmRouter}
}

// Analyze never fails: LLM errors degrade to the deterministic summary so the
// formatter always receives the same Markdown shape.
func (a *Analyzer) Analyze(ctx context.Context, question, sql string, result domain.QueryResult) string {
	stats := Compute(result)

	if len(result.Rows) == 0 {
		return "## 查询结果\n\n- 没有查到符合条件的数据\n- 可以尝试放宽筛选条件或换一个问法"
	}

	provider, err := a.llmRouter.GetProvider("")
	if err != nil {
		return FallbackNarrative(stats)
	}

	ctx, cancel := context.WithTimeout(ctx, narrativeTimeout)
	defer cancel()

	resp, err := provider.Complete(ctx, llm.Request{
		Messages: []llm.Message{
			{Role: "system", Content: "你是采购数据分析师，基于给定的查询结果输出一段 Markdown 分析，使用标题和要点列表。"},
			{Role: "user", Content: buildNarrativePrompt(question, sql, stats, result)},
		},
		Temperature: narrativeTemperature,
		MaxTokens:   narrativeMaxTokens,
	})
	if err != nil {
		log.Warn().Err(err).Str("kind", string(llm.KindOf(err))).Msg("narrative generation failed, using deterministic summary")
		return FallbackNarrative(stats)
	}

	narrative := strings.TrimSpace(resp.Content)
	if narrative == "" {
		return FallbackNarrative(stats)
	}
	return narrative
}

func buildNarrativePrompt(question, sql string, stats *TagStatistics, result domain.QueryResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "用户问题: %s\n\n执行的 SQL:\n%s\n\n", question, sql)
	b.WriteString(statsSummary(stats))
	fmt.Fprintf(&b, "\n数据（共 %d 条，最多展示 %d 条）:\n", len(result.Rows), maxPromptRows)

	rows := result.Rows
	if len(rows) > maxPromptRows {
		rows = rows[:maxPromptRows]
	}
	for i, row := range rows {
		fmt.Fprintf(&b, "%d. ", i+1)
		for j, col := range result.Columns {
			if j > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "%s=%s", col, renderPromptValue(row[col]))
		}
		b.WriteString("\n")
	}

	b.WriteString("\n请用 Markdown 输出分析结论，包含标题和要点列表。")
	return b.String()
}

func renderPromptValue(v any) string {
	switch t := v.(type) {
	case nil:
		return "NULL"
	case time.Time:
		return t.Format(time.RFC3339)
	case decimal.Decimal:
		f, _ := t.Float64()
		return fmt.Sprintf("%v", f)
	case string:
		if len([]rune(t)) > maxCellChars {
			return string([]rune(t)[:maxCellChars]) + "…"
		}
		return t
	case map[string]any, []any:
		data, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprintf("%v", t)
		}
		return string(data)
	default:
		return fmt.Sprintf("%v", t)
	}
}

func statsSummary(stats *TagStatistics) string {
	var b strings.Builder
	fmt.Fprintf(&b, "统计摘要: 共 %d 条记录\n", stats.RowCount)
	if len(stats.PrimaryTags) > 0 {
		b.WriteString("一级标签分布: ")
		for i, tc := range TopTags(stats.PrimaryTags, 5) {
			if i > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "%s(%d)", tc.Tag, tc.Count)
		}
		b.WriteString("\n")
	}
	if len(stats.SecondaryTags) > 0 {
		b.WriteString("二级标签分布: ")
		for i, tc := range TopTags(stats.SecondaryTags, 5) {
			if i > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "%s(%d)", tc.Tag, tc.Count)
		}
		b.WriteString("\n")
	}
	if stats.Amounts != nil {
		fmt.Fprintf(&b, "金额统计: 总额 %s, 均值 %s, 最大 %s, 最小 %s（%d 条含金额）\n",
			stats.Amounts.Total.StringFixed(2),
			stats.Amounts.Avg.StringFixed(2),
			stats.Amounts.Max.StringFixed(2),
			stats.Amounts.Min.StringFixed(2),
			stats.Amounts.Count,
		)
	}
	return b.String()
}

// FallbackNarrative renders the deterministic Markdown summary used when the
// LLM path fails. Its shape matches the LLM narrative (headings + bullets) so
// downstream formatting is uniform.
func FallbackNarrative(stats *TagStatistics) string {
	var b strings.Builder
	b.WriteString("## 数据分析结果\n\n")
	fmt.Fprintf(&b, "- 本次查询共返回 %d 条记录\n", stats.RowCount)

	if len(stats.PrimaryTags) > 0 {
		b.WriteString("\n### 一级标签分布\n\n")
		for _, tc := range TopTags(stats.PrimaryTags, 5) {
			fmt.Fprintf(&b, "- %s: %d 条 (%.1f%%)\n", tc.Tag, tc.Count, percent(tc.Count, stats.RowCount))
		}
	}
	if len(stats.SecondaryTags) > 0 {
		b.WriteString("\n### 二级标签分布\n\n")
		for _, tc := range TopTags(stats.SecondaryTags, 5) {
			fmt.Fprintf(&b, "- %s: %d 条 (%.1f%%)\n", tc.Tag, tc.Count, percent(tc.Count, stats.RowCount))
		}
	}
	if stats.Amounts != nil {
		b.WriteString("\n### 金额概况\n\n")
		fmt.Fprintf(&b, "- 总金额: %s\n", stats.Amounts.Total.StringFixed(2))
		fmt.Fprintf(&b, "- 平均金额: %s\n", stats.Amounts.Avg.StringFixed(2))
		fmt.Fprintf(&b, "- 最大金额: %s\n", stats.Amounts.Max.StringFixed(2))
	}

	b.WriteString("\n### 建议\n\n")
	b.WriteString("- 如需更深入的解读，可补充时间范围或地区等条件后重新提问\n")
	return b.String()
}

func percent(part, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(part) * 100 / float64(total)
}
