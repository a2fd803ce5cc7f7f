package chat

import (
	"context"

	"github.com/stretchr/testify/mock"
	"github.com/wenqu/procurement-assistant/internal/domain"
	"github.com/wenqu/procurement-assistant/internal/llm"
)

// MockSchemaSource mocks the SchemaSource interface
type MockSchemaSource struct {
	mock.Mock
}

func (m *MockSchemaSource) Describe(ctx context.Context) *domain.SchemaDescription {
	args := m.Called(ctx)
	return args.Get(0).(*domain.SchemaDescription)
}

// MockQueryRunner mocks the QueryRunner interface
type MockQueryRunner struct {
	mock.Mock
}

func (m *MockQueryRunner) Run(ctx context.Context, sql string) (domain.QueryResult, error) {
	args := m.Called(ctx, sql)
	return args.Get(0).(domain.QueryResult), args.Error(1)
}

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
