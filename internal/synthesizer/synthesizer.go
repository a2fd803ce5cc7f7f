package synthesizer

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/wenqu/procurement-assistant/internal/domain"
	"github.com/wenqu/procurement-assistant/internal/llm"
	"github.com/wenqu/procurement-assistant/internal/sqlguard"
)

const (
	synthTemperature = 0.1
	synthMaxTokens   = 1000
)

// ErrorKind classifies synthesis failures.
type ErrorKind string

const (
	// KindUnavailable means the LLM could not be reached or produced no SQL.
	KindUnavailable ErrorKind = "unavailable"
	// KindInvalid means the extracted SQL failed safety validation.
	KindInvalid ErrorKind = "invalid"
)

// SynthError is the typed synthesis failure; Invalid errors retain the
// rejected SQL for debugging.
type SynthError struct {
	Kind ErrorKind
	SQL  string
	Err  error
}

func (e *SynthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("synthesis %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("synthesis %s", e.Kind)
}

func (e *SynthError) Unwrap() error { return e.Err }

// Synthesizer turns a user question and a schema description into a
// validated SELECT.
type Synthesizer struct {
	llmRouter *llm.Router
}

// New creates a synthesizer backed by the provider registry.
func New(llmRouter *llm.Router) *Synthesizer {
	return &Synthesizer{llmRouter: llmRouter}
}

// Synthesize builds the deterministic synthesis prompt, calls the default
// provider, extracts the first SQL candidate and validates it.
func (s *Synthesizer) Synthesize(ctx context.Context, question string, schema *domain.SchemaDescription) (*domain.SynthResult, error) {
	provider, err := s.llmRouter.GetProvider("")
	if err != nil {
		return nil, &SynthError{Kind: KindUnavailable, Err: err}
	}

	resp, err := provider.Complete(ctx, llm.Request{
		Messages: []llm.Message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: BuildPrompt(question, schema)},
		},
		Temperature: synthTemperature,
		MaxTokens:   synthMaxTokens,
	})
	if err != nil {
		return nil, &SynthError{Kind: KindUnavailable, Err: err}
	}

	sql := ExtractSQL(resp.Content)
	if sql == "" {
		return nil, &SynthError{Kind: KindUnavailable, Err: fmt.Errorf("no SQL in completion")}
	}

	if err := sqlguard.Validate(sql); err != nil {
		log.Warn().Str("sql", sql).Err(err).Msg("synthesized SQL rejected")
		return nil, &SynthError{Kind: KindInvalid, SQL: sql, Err: err}
	}

	return &domain.SynthResult{
		SQL:         sql,
		Explanation: resp.Content,
		TablesUsed:  sqlguard.TablesUsed(sql),
	}, nil
}

const systemPrompt = "你是采购数据分析系统的 SQL 生成助手。根据给定的表结构生成一条 PostgreSQL SELECT 查询，只输出 SQL，放在 ```sql 代码块中。"

// BuildPrompt renders the schema as Markdown tables with sample rows, appends
// the fixed query policy, and places the user question last.
func BuildPrompt(question string, schema *domain.SchemaDescription) string {
	var b strings.Builder
	b.WriteString("## 数据库结构\n\n")
	b.WriteString(schema.PromptText())
	b.WriteString(`
## 查询规则
1. 只生成 SELECT 查询，禁止任何写操作
2. 跨表查询使用 LEFT JOIN，关联键为 url
3. 必须带 LIMIT，且不超过 100
4. 禁止 SELECT *，明确列出字段
5. 使用 PostgreSQL 语法

## 用户问题
`)
	b.WriteString(question)
	return b.String()
}

// ExtractSQL pulls the SQL candidate out of a completion: the first fenced
// sql block wins, otherwise the first SELECT up to a semicolon or the end.
func ExtractSQL(content string) string {
	if sql := extractFenced(content); sql != "" {
		return sql
	}

	upper := strings.ToUpper(content)
	start := strings.Index(upper, "SELECT")
	if start == -1 {
		return ""
	}
	rest := content[start:]
	if end := strings.Index(rest, ";"); end != -1 {
		rest = rest[:end]
	}
	return trimSQL(rest)
}

func extractFenced(content string) string {
	lower := strings.ToLower(content)
	start := strings.Index(lower, "```sql")
	if start == -1 {
		return ""
	}
	body := content[start+len("```sql"):]
	end := strings.Index(body, "```")
	if end == -1 {
		return ""
	}
	return trimSQL(body[:end])
}

func trimSQL(sql string) string {
	sql = strings.TrimSpace(sql)
	sql = strings.TrimSuffix(sql, ";")
	return strings.TrimSpace(sql)
}
