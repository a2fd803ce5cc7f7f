package analyzer

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/shopspring/decimal"
	"github.com/wenqu/procurement-assistant/internal/domain"
)

// Well-known columns driving tag and amount statistics.
const (
	ColPrimaryTag            = "primary_tag"
	ColSecondaryTag          = "secondary_tag"
	ColBudgetAmount          = "budget_amount"
	ColIntentionBudgetAmount = "intention_budget_amount"
)

// TagCount is one tag with its occurrence count.
type TagCount struct {
	Tag   string
	Count int
}

// AmountStats aggregates the amount columns of a result set.
type AmountStats struct {
	Count int
	Total decimal.Decimal
	Avg   decimal.Decimal
	Min   decimal.Decimal
	Max   decimal.Decimal
}

// TagStatistics is the deterministic summary computed over every result set.
type TagStatistics struct {
	RowCount      int
	PrimaryTags   map[string]int
	SecondaryTags map[string]int
	Amounts       *AmountStats
}

// HasTags reports whether any tag column was present and populated.
func (st *TagStatistics) HasTags() bool {
	return len(st.PrimaryTags) > 0 || len(st.SecondaryTags) > 0
}

// Compute derives tag and amount statistics from a result set.
func Compute(result domain.QueryResult) *TagStatistics {
	st := &TagStatistics{
		RowCount:      len(result.Rows),
		PrimaryTags:   make(map[string]int),
		SecondaryTags: make(map[string]int),
	}

	var amounts []decimal.Decimal
	for _, row := range result.Rows {
		if tag := tagValue(row[ColPrimaryTag]); tag != "" {
			st.PrimaryTags[tag]++
		}
		if tag := tagValue(row[ColSecondaryTag]); tag != "" {
			st.SecondaryTags[tag]++
		}
		// One amount per row; budget_amount wins when both columns are set
		// so the count never exceeds the row count.
		if d, ok := ToDecimal(row[ColBudgetAmount]); ok {
			amounts = append(amounts, d)
		} else if d, ok := ToDecimal(row[ColIntentionBudgetAmount]); ok {
			amounts = append(amounts, d)
		}
	}

	if len(amounts) > 0 {
		stats := &AmountStats{Count: len(amounts), Min: amounts[0], Max: amounts[0]}
		for _, d := range amounts {
			stats.Total = stats.Total.Add(d)
			if d.LessThan(stats.Min) {
				stats.Min = d
			}
			if d.GreaterThan(stats.Max) {
				stats.Max = d
			}
		}
		stats.Avg = stats.Total.Div(decimal.NewFromInt(int64(stats.Count)))
		st.Amounts = stats
	}

	return st
}

// TopTags returns the n most frequent tags, ties broken alphabetically for
// stable output.
func TopTags(tags map[string]int, n int) []TagCount {
	out := make([]TagCount, 0, len(tags))
	for tag, count := range tags {
		out = append(out, TagCount{Tag: tag, Count: count})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Tag < out[j].Tag
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

// ToDecimal coerces the numeric shapes a result cell can take.
func ToDecimal(v any) (decimal.Decimal, bool) {
	switch t := v.(type) {
	case nil:
		return decimal.Decimal{}, false
	case decimal.Decimal:
		return t, true
	case float64:
		return decimal.NewFromFloat(t), true
	case float32:
		return decimal.NewFromFloat32(t), true
	case int:
		return decimal.NewFromInt(int64(t)), true
	case int32:
		return decimal.NewFromInt(int64(t)), true
	case int64:
		return decimal.NewFromInt(t), true
	case string:
		d, err := decimal.NewFromString(t)
		if err != nil {
			return decimal.Decimal{}, false
		}
		return d, true
	default:
		return decimal.Decimal{}, false
	}
}

func tagValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case fmt.Stringer:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", t)
	}
}
