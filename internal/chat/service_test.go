package chat

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/wenqu/procurement-assistant/internal/analyzer"
	"github.com/wenqu/procurement-assistant/internal/domain"
	"github.com/wenqu/procurement-assistant/internal/executor"
	"github.com/wenqu/procurement-assistant/internal/llm"
	"github.com/wenqu/procurement-assistant/internal/session"
	"github.com/wenqu/procurement-assistant/internal/synthesizer"
)

func coreSchema() *domain.SchemaDescription {
	return &domain.SchemaDescription{
		Tables: []domain.TableSchema{
			{Name: "base_procurement_info_new", Columns: []domain.ColumnInfo{{Name: "url", DataType: "text"}}},
			{Name: "procurement_notices", Columns: []domain.ColumnInfo{{Name: "url", DataType: "text"}, {Name: "primary_tag", DataType: "text"}}},
			{Name: "procurement_intention", Columns: []domain.ColumnInfo{{Name: "url", DataType: "text"}}},
		},
		Samples:       map[string]map[string]any{},
		Relationships: "三张表通过 url 字段关联，base_procurement_info_new 为主表",
	}
}

type fixture struct {
	provider *MockProvider
	schema   *MockSchemaSource
	runner   *MockQueryRunner
	store    *session.Store
	service  *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	provider := new(MockProvider)
	router := llm.NewRouter("mock")
	router.RegisterProvider(provider)

	schemaSource := new(MockSchemaSource)
	runner := new(MockQueryRunner)

	store, err := session.NewStore(t.TempDir())
	require.NoError(t, err)

	svc := NewService(
		schemaSource,
		synthesizer.New(router),
		runner,
		analyzer.New(router),
		store,
		router,
		DefaultClassifier(),
	)

	return &fixture{
		provider: provider,
		schema:   schemaSource,
		runner:   runner,
		store:    store,
		service:  svc,
	}
}

func withTemperature(temp float64) any {
	return mock.MatchedBy(func(req llm.Request) bool {
		return req.Temperature == temp
	})
}

func TestProcess_NormalChat(t *testing.T) {
	f := newFixture(t)
	f.provider.On("Complete", mock.Anything, withTemperature(0.7)).
		Return(&llm.Response{Content: "你好！我是采购数据助手。"}, nil)

	resp := f.service.Process(context.Background(), domain.ChatRequest{
		Message:   "你好",
		SessionID: "s1",
	})

	assert.Equal(t, "success", resp.Status)
	assert.Equal(t, domain.ResponseTypeNormalChat, resp.ResponseType)
	assert.Equal(t, "s1", resp.SessionID)

	sess := f.store.Get("s1")
	require.Len(t, sess.ConversationHistory, 2)
	assert.Equal(t, domain.RoleUser, sess.ConversationHistory[0].Role)
	assert.Equal(t, "你好", sess.ConversationHistory[0].Content)
	assert.Equal(t, domain.RoleAssistant, sess.ConversationHistory[1].Role)
	assert.False(t, sess.PsqlUsed)
	f.provider.AssertExpectations(t)
}

func TestProcess_DefaultSessionID(t *testing.T) {
	f := newFixture(t)
	f.provider.On("Complete", mock.Anything, mock.Anything).
		Return(&llm.Response{Content: "回复"}, nil)

	resp := f.service.Process(context.Background(), domain.ChatRequest{Message: "你好"})

	assert.Equal(t, "default", resp.SessionID)
	assert.Len(t, f.store.History("default"), 2)
}

func TestProcess_SchemaIntro(t *testing.T) {
	f := newFixture(t)
	f.schema.On("Describe", mock.Anything).Return(coreSchema())

	resp := f.service.Process(context.Background(), domain.ChatRequest{
		Message:   "#psql 数据库有哪些表？",
		SessionID: "s2",
	})

	assert.Equal(t, "success", resp.Status)
	assert.Equal(t, domain.ResponseTypeDatabaseIntro, resp.ResponseType)
	assert.Contains(t, resp.Message, "base_procurement_info_new")
	assert.Contains(t, resp.Message, "procurement_notices")
	assert.Contains(t, resp.Message, "procurement_intention")
	require.NotNil(t, resp.DataCount)
	assert.Equal(t, 0, *resp.DataCount)

	sess := f.store.Get("s2")
	assert.True(t, sess.PsqlUsed)
	assert.True(t, sess.DatabaseUnderstood)
	// No query was executed.
	f.runner.AssertNotCalled(t, "Run", mock.Anything, mock.Anything)
}

func TestProcess_AnalysisHappyPath(t *testing.T) {
	f := newFixture(t)
	stubSQL := "SELECT primary_tag, COUNT(*) AS n FROM procurement_notices WHERE primary_tag = '教育' GROUP BY 1"

	f.schema.On("Describe", mock.Anything).Return(coreSchema())
	// Synthesis at low temperature, narrative at 0.3.
	f.provider.On("Complete", mock.Anything, withTemperature(0.1)).
		Return(&llm.Response{Content: "```sql\n" + stubSQL + "\n```"}, nil)
	f.provider.On("Complete", mock.Anything, withTemperature(0.3)).
		Return(&llm.Response{Content: "## 分析\n\n- 教育类共 2 条"}, nil)
	f.runner.On("Run", mock.Anything, stubSQL).Return(domain.QueryResult{
		Columns: []string{"primary_tag", "n"},
		Rows:    []domain.Row{{"primary_tag": "教育", "n": int64(2)}},
	}, nil)

	resp := f.service.Process(context.Background(), domain.ChatRequest{
		Message:   "#psql 统计教育类采购数量",
		SessionID: "s3",
	})

	assert.Equal(t, "success", resp.Status)
	assert.Equal(t, domain.ResponseTypeSQLAnalysis, resp.ResponseType)
	require.NotNil(t, resp.DataCount)
	assert.Equal(t, 1, *resp.DataCount)
	assert.Equal(t, stubSQL, resp.SQLQuery)
	assert.Equal(t, []string{"procurement_notices"}, resp.TablesUsed)
	assert.Contains(t, resp.Message, "tag-badge")
	assert.Contains(t, resp.Message, "教育")

	sess := f.store.Get("s3")
	assert.True(t, sess.PsqlUsed)
	assert.Equal(t, 1, sess.QueryCount)
	require.NotNil(t, sess.LastQueryTime)

	// A fresh cache slot was written for follow-ups.
	cache := f.store.RecentCache("s3")
	require.NotNil(t, cache)
	assert.Equal(t, 1, cache.DataCount)
}

func TestProcess_UnsafeSQLRejected(t *testing.T) {
	f := newFixture(t)

	f.schema.On("Describe", mock.Anything).Return(coreSchema())
	f.provider.On("Complete", mock.Anything, withTemperature(0.1)).
		Return(&llm.Response{Content: "```sql\nDELETE FROM procurement_notices\n```"}, nil)

	resp := f.service.Process(context.Background(), domain.ChatRequest{
		Message:   "#psql 清空公告数据",
		SessionID: "s4",
	})

	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, domain.ErrKindUnsafeSQL, resp.ErrorKind)
	assert.Equal(t, "DELETE FROM procurement_notices", resp.SQLQuery)
	// The executor is never reached.
	f.runner.AssertNotCalled(t, "Run", mock.Anything, mock.Anything)
}

func TestProcess_DBError(t *testing.T) {
	f := newFixture(t)
	stubSQL := "SELECT url FROM missing_table LIMIT 10"

	f.schema.On("Describe", mock.Anything).Return(coreSchema())
	f.provider.On("Complete", mock.Anything, withTemperature(0.1)).
		Return(&llm.Response{Content: "```sql\n" + stubSQL + "\n```"}, nil)
	f.runner.On("Run", mock.Anything, stubSQL).Return(domain.QueryResult{},
		&executor.ExecError{Message: `relation "missing_table" does not exist`})

	resp := f.service.Process(context.Background(), domain.ChatRequest{
		Message:   "#psql 查询不存在的表",
		SessionID: "s5",
	})

	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, domain.ErrKindDBError, resp.ErrorKind)

	// History still records the exchange including the error reply.
	history := f.store.History("s5")
	require.Len(t, history, 2)
	assert.Equal(t, domain.RoleUser, history[0].Role)
	assert.Equal(t, domain.RoleAssistant, history[1].Role)
	assert.Equal(t, resp.Message, history[1].Content)
}

func TestProcess_LLMUnavailable(t *testing.T) {
	f := newFixture(t)

	f.schema.On("Describe", mock.Anything).Return(coreSchema())
	f.provider.On("Complete", mock.Anything, withTemperature(0.1)).
		Return(nil, &llm.ChatError{Kind: llm.KindUnavailable, Message: "no route"})

	resp := f.service.Process(context.Background(), domain.ChatRequest{
		Message:   "#psql 统计数量",
		SessionID: "s6",
	})

	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, domain.ErrKindLLMUnavailable, resp.ErrorKind)
}

func TestProcess_EmptySchemaMeansUnavailable(t *testing.T) {
	f := newFixture(t)
	f.schema.On("Describe", mock.Anything).Return(&domain.SchemaDescription{})

	resp := f.service.Process(context.Background(), domain.ChatRequest{
		Message:   "#psql 统计各省采购数量",
		SessionID: "s7",
	})

	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, domain.ErrKindLLMUnavailable, resp.ErrorKind)
	f.provider.AssertNotCalled(t, "Complete", mock.Anything, mock.Anything)
}

func TestProcess_FollowUpUsesDataCache(t *testing.T) {
	f := newFixture(t)
	f.store.CacheResult("s8", "统计教育类数量", "<div>结果</div>", 5)

	var sawCacheContext bool
	f.provider.On("Complete", mock.Anything, withTemperature(0.7)).
		Run(func(args mock.Arguments) {
			req := args.Get(1).(llm.Request)
			for _, m := range req.Messages {
				if m.Role == "system" && len(m.Content) > 0 &&
					m.Content != systemPrompt {
					sawCacheContext = true
				}
			}
		}).
		Return(&llm.Response{Content: "刚才查到 5 条数据。"}, nil)

	resp := f.service.Process(context.Background(), domain.ChatRequest{
		Message:   "刚才的数据一共有多少条？",
		SessionID: "s8",
	})

	assert.Equal(t, "success", resp.Status)
	assert.True(t, sawCacheContext, "expected cache context to be injected")
}

func TestProcess_NormalChatProviderDown(t *testing.T) {
	f := newFixture(t)
	f.provider.On("Complete", mock.Anything, mock.Anything).
		Return(nil, errors.New("dial tcp: connection refused"))

	resp := f.service.Process(context.Background(), domain.ChatRequest{
		Message:   "你好",
		SessionID: "s9",
	})

	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, domain.ErrKindLLMUnavailable, resp.ErrorKind)
}
