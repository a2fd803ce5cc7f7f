package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/wenqu/procurement-assistant/internal/analyzer"
	"github.com/wenqu/procurement-assistant/internal/domain"
	"github.com/wenqu/procurement-assistant/internal/executor"
	"github.com/wenqu/procurement-assistant/internal/formatter"
	"github.com/wenqu/procurement-assistant/internal/llm"
	"github.com/wenqu/procurement-assistant/internal/schema"
	"github.com/wenqu/procurement-assistant/internal/session"
	"github.com/wenqu/procurement-assistant/internal/synthesizer"
)

const (
	chatTemperature = 0.7
	chatMaxTokens   = 800

	defaultSessionID = "default"
)

const systemPrompt = "你是采购数据平台的智能助手，回答要简洁、专业。涉及数据查询时提醒用户使用 #psql 指令。"

// SchemaSource supplies a fresh schema description per analysis request.
type SchemaSource interface {
	Describe(ctx context.Context) *domain.SchemaDescription
}

// QueryRunner executes a validated SELECT.
type QueryRunner interface {
	Run(ctx context.Context, sql string) (domain.QueryResult, error)
}

// Service orchestrates the chat subsystem: classification, the SQL analysis
// pipeline, and session bookkeeping. Constructed once at startup and shared
// by handlers.
type Service struct {
	schemaSource SchemaSource
	synth        *synthesizer.Synthesizer
	runner       QueryRunner
	analyzer     *analyzer.Analyzer
	store        *session.Store
	llmRouter    *llm.Router
	classifier   *Classifier
}

// NewService wires the pipeline components.
func NewService(
	schemaSource SchemaSource,
	synth *synthesizer.Synthesizer,
	runner QueryRunner,
	an *analyzer.Analyzer,
	store *session.Store,
	llmRouter *llm.Router,
	classifier *Classifier,
) *Service {
	if classifier == nil {
		classifier = DefaultClassifier()
	}
	return &Service{
		schemaSource: schemaSource,
		synth:        synth,
		runner:       runner,
		analyzer:     an,
		store:        store,
		llmRouter:    llmRouter,
		classifier:   classifier,
	}
}

// Store exposes the session store for the persistence handlers.
func (s *Service) Store() *session.Store { return s.store }

// Process handles one chat request end to end. The user message is recorded
// on every attempt; error payloads also record a synthetic assistant entry so
// the UI reflects the exchange.
func (s *Service) Process(ctx context.Context, req domain.ChatRequest) domain.ChatResponse {
	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = defaultSessionID
	}

	history := s.store.History(sessionID)
	s.store.Append(sessionID, domain.RoleUser, req.Message)

	var resp domain.ChatResponse
	switch s.classifier.Classify(req.Message, req.MessageType) {
	case KindSchemaIntro:
		resp = s.schemaIntro(ctx, sessionID)
	case KindDataAnalysis:
		resp = s.dataAnalysis(ctx, sessionID, req.Message)
	default:
		resp = s.normalChat(ctx, sessionID, req.Message, history)
	}
	resp.SessionID = sessionID

	s.store.Append(sessionID, domain.RoleAssistant, resp.Message)

	// A persist failure never fails the user response.
	if err := s.store.Persist(sessionID); err != nil {
		log.Error().Err(err).Str("session_id", sessionID).Msg("failed to persist session")
	}

	return resp
}

func (s *Service) markAnalysis(sessionID string) {
	s.store.Update(sessionID, func(sess *domain.Session) {
		now := time.Now()
		sess.PsqlUsed = true
		sess.QueryCount++
		sess.LastQueryTime = &now
	})
}

func (s *Service) schemaIntro(ctx context.Context, sessionID string) domain.ChatResponse {
	desc := s.schemaSource.Describe(ctx)

	var md strings.Builder
	md.WriteString("## 数据库介绍\n\n可用于分析的三张核心表：\n\n")
	if desc.Empty() {
		// Introspection failed, fall back to the fixed table list.
		for _, name := range schema.CoreTables {
			fmt.Fprintf(&md, "- **%s**\n", name)
		}
		md.WriteString("\n" + schema.Relationships + "\n")
	} else {
		for _, t := range desc.Tables {
			fmt.Fprintf(&md, "- **%s**（%d 个字段）\n", t.Name, len(t.Columns))
		}
		md.WriteString("\n" + desc.Relationships + "\n")
	}
	md.WriteString("\n在消息中带上 `#psql` 即可用自然语言查询这些数据。\n")

	s.store.Update(sessionID, func(sess *domain.Session) {
		sess.PsqlUsed = true
		sess.DatabaseUnderstood = true
	})

	resp := domain.SuccessResponse(domain.ResponseTypeDatabaseIntro, formatter.ConvertMarkdown(md.String()))
	resp.DataCount = domain.IntPtr(0)
	return resp
}

func (s *Service) dataAnalysis(ctx context.Context, sessionID, message string) domain.ChatResponse {
	s.markAnalysis(sessionID)

	question := s.classifier.Clean(message)

	desc := s.schemaSource.Describe(ctx)
	if desc.Empty() {
		return domain.ErrorResponse(domain.ErrKindLLMUnavailable,
			"AI 数据分析服务暂时不可用：无法读取数据库结构，请稍后重试。")
	}

	synthResult, err := s.synth.Synthesize(ctx, question, desc)
	if err != nil {
		var synthErr *synthesizer.SynthError
		if errors.As(err, &synthErr) && synthErr.Kind == synthesizer.KindInvalid {
			log.Warn().Str("sql", synthErr.SQL).Msg("unsafe SQL rejected")
			resp := domain.ErrorResponse(domain.ErrKindUnsafeSQL,
				"生成的 SQL 未通过安全校验，已拒绝执行。")
			resp.SQLQuery = synthErr.SQL
			return resp
		}
		log.Warn().Err(err).Msg("SQL synthesis unavailable")
		return domain.ErrorResponse(domain.ErrKindLLMUnavailable,
			"AI 暂时无法生成查询，请稍后重试或换一个问法。")
	}

	result, err := s.runner.Run(ctx, synthResult.SQL)
	if err != nil {
		var execErr *executor.ExecError
		msg := "查询执行失败，请稍后重试。"
		if errors.As(err, &execErr) {
			log.Error().Str("sql", synthResult.SQL).Str("db_error", execErr.Message).Msg("query execution failed")
		} else {
			log.Error().Err(err).Str("sql", synthResult.SQL).Msg("query execution failed")
		}
		return domain.ErrorResponse(domain.ErrKindDBError, msg)
	}

	narrative := s.analyzer.Analyze(ctx, question, synthResult.SQL, result)
	stats := analyzer.Compute(result)
	resp := formatter.Format(question, synthResult, result, narrative, stats)

	s.store.CacheResult(sessionID, question, resp.Message, len(result.Rows))

	return resp
}

func (s *Service) normalChat(ctx context.Context, sessionID, message string, history []domain.Message) domain.ChatResponse {
	provider, err := s.llmRouter.GetProvider("")
	if err != nil {
		return domain.ErrorResponse(domain.ErrKindLLMUnavailable,
			"AI 服务暂时不可用，请稍后重试。")
	}

	messages := []llm.Message{{Role: "system", Content: systemPrompt}}
	for _, m := range history {
		messages = append(messages, llm.Message{Role: string(m.Role), Content: m.Content})
	}

	if s.classifier.ReferencesPriorData(message) {
		if cache := s.store.RecentCache(sessionID); cache != nil {
			note := fmt.Sprintf(
				"（参考信息：用户在 %s 查询过「%s」，返回 %d 条数据。）",
				cache.QueryTime.Format("15:04"), cache.UserMessage, cache.DataCount,
			)
			messages = append(messages, llm.Message{Role: "system", Content: note})
		}
	}

	messages = append(messages, llm.Message{Role: "user", Content: message})

	resp, err := provider.Complete(ctx, llm.Request{
		Messages:    messages,
		Temperature: chatTemperature,
		MaxTokens:   chatMaxTokens,
	})
	if err != nil {
		log.Warn().Err(err).Str("kind", string(llm.KindOf(err))).Msg("chat completion failed")
		return domain.ErrorResponse(domain.ErrKindLLMUnavailable,
			"AI 服务暂时不可用，请稍后重试。")
	}

	return domain.SuccessResponse(domain.ResponseTypeNormalChat, formatter.ConvertMarkdown(resp.Content))
}
