package analyzer_test

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/wenqu/procurement-assistant/internal/analyzer"
	"github.com/wenqu/procurement-assistant/internal/domain"
	"github.com/wenqu/procurement-assistant/internal/llm"
)

// MockProvider mocks the llm.Provider interface
type MockProvider struct {
	mock.Mock
}

func (m *MockProvider) Name() string         { return "mock" }
func (m *MockProvider) DefaultModel() string { return "mock-model" }
func (m *MockProvider) IsConfigured() bool   { return true }

func (m *MockProvider) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*llm.Response), args.Error(1)
}

func taggedResult() domain.QueryResult {
	return domain.QueryResult{
		Columns: []string{"primary_tag", "secondary_tag", "budget_amount"},
		Rows: []domain.Row{
			{"primary_tag": "教育", "secondary_tag": "设备", "budget_amount": 100.50},
			{"primary_tag": "教育", "secondary_tag": "服务", "budget_amount": 200.00},
			{"primary_tag": "医疗", "secondary_tag": "设备", "budget_amount": nil},
		},
	}
}

func TestCompute(t *testing.T) {
	st := analyzer.Compute(taggedResult())

	assert.Equal(t, 3, st.RowCount)
	assert.Equal(t, 2, st.PrimaryTags["教育"])
	assert.Equal(t, 1, st.PrimaryTags["医疗"])
	assert.Equal(t, 2, st.SecondaryTags["设备"])
	assert.True(t, st.HasTags())

	require.NotNil(t, st.Amounts)
	assert.Equal(t, 2, st.Amounts.Count)
	assert.Equal(t, "300.50", st.Amounts.Total.StringFixed(2))
	assert.Equal(t, "150.25", st.Amounts.Avg.StringFixed(2))
	assert.Equal(t, "100.50", st.Amounts.Min.StringFixed(2))
	assert.Equal(t, "200.00", st.Amounts.Max.StringFixed(2))
}

func TestCompute_OneAmountPerRow(t *testing.T) {
	result := domain.QueryResult{
		Columns: []string{"budget_amount", "intention_budget_amount"},
		Rows: []domain.Row{
			{"budget_amount": 100.00, "intention_budget_amount": 999.00},
			{"budget_amount": 200.00, "intention_budget_amount": 999.00},
			{"budget_amount": nil, "intention_budget_amount": 50.00},
		},
	}

	st := analyzer.Compute(result)

	require.NotNil(t, st.Amounts)
	assert.LessOrEqual(t, st.Amounts.Count, st.RowCount)
	assert.Equal(t, 3, st.Amounts.Count)
	// budget_amount wins over intention_budget_amount where both are set.
	assert.Equal(t, "350.00", st.Amounts.Total.StringFixed(2))
	assert.Equal(t, "50.00", st.Amounts.Min.StringFixed(2))
	assert.Equal(t, "200.00", st.Amounts.Max.StringFixed(2))
}

func TestCompute_NoWellKnownColumns(t *testing.T) {
	st := analyzer.Compute(domain.QueryResult{
		Columns: []string{"n"},
		Rows:    []domain.Row{{"n": 7}},
	})

	assert.Equal(t, 1, st.RowCount)
	assert.False(t, st.HasTags())
	assert.Nil(t, st.Amounts)
}

func TestTopTags_Ordering(t *testing.T) {
	tags := map[string]int{"医疗": 3, "教育": 5, "交通": 3, "能源": 1}

	top := analyzer.TopTags(tags, 3)
	require.Len(t, top, 3)
	assert.Equal(t, "教育", top[0].Tag)
	// Count ties break alphabetically.
	assert.Equal(t, "交通", top[1].Tag)
	assert.Equal(t, "医疗", top[2].Tag)
}

func TestToDecimal(t *testing.T) {
	d, ok := analyzer.ToDecimal("123.45")
	require.True(t, ok)
	assert.Equal(t, "123.45", d.StringFixed(2))

	d, ok = analyzer.ToDecimal(int64(10))
	require.True(t, ok)
	assert.True(t, d.Equal(decimal.NewFromInt(10)))

	_, ok = analyzer.ToDecimal(nil)
	assert.False(t, ok)

	_, ok = analyzer.ToDecimal("not a number")
	assert.False(t, ok)
}

func TestAnalyze_EmptyResult(t *testing.T) {
	a := analyzer.New(llm.NewRouter("none"))

	narrative := a.Analyze(context.Background(), "q", "SELECT 1", domain.QueryResult{})
	assert.Contains(t, narrative, "没有查到符合条件的数据")
}

func TestAnalyze_FallbackOnProviderError(t *testing.T) {
	provider := new(MockProvider)
	provider.On("Complete", mock.Anything, mock.Anything).Return(nil, errors.New("timeout"))

	r := llm.NewRouter("mock")
	r.RegisterProvider(provider)
	a := analyzer.New(r)

	narrative := a.Analyze(context.Background(), "q", "SELECT 1", taggedResult())

	assert.Contains(t, narrative, "## 数据分析结果")
	assert.Contains(t, narrative, "教育")
	assert.Contains(t, narrative, "金额概况")
	assert.Contains(t, narrative, "建议")
	provider.AssertExpectations(t)
}

func TestAnalyze_UsesLLMNarrative(t *testing.T) {
	provider := new(MockProvider)
	provider.On("Complete", mock.Anything, mock.MatchedBy(func(req llm.Request) bool {
		return req.Temperature == 0.3 && req.MaxTokens == 1200
	})).Return(&llm.Response{Content: "## 分析\n\n- 教育类占比最高"}, nil)

	r := llm.NewRouter("mock")
	r.RegisterProvider(provider)
	a := analyzer.New(r)

	narrative := a.Analyze(context.Background(), "q", "SELECT 1", taggedResult())
	assert.Equal(t, "## 分析\n\n- 教育类占比最高", narrative)
	provider.AssertExpectations(t)
}

func TestFallbackNarrative_Percentages(t *testing.T) {
	st := analyzer.Compute(taggedResult())
	narrative := analyzer.FallbackNarrative(st)

	assert.Contains(t, narrative, "教育: 2 条 (66.7%)")
	assert.Contains(t, narrative, "总金额: 300.50")
}
