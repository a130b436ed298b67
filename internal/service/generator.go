package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ai-testgen/backend/internal/llm"
)

// GeneratorStore is the persistence the generator needs
type GeneratorStore interface {
	GetEndpointContext(ctx context.Context, endpointID string) (*EndpointContext, error)
	InsertTestCase(ctx context.Context, endpointID, description, priority, testCode string) error
}

// Generator produces one AI-written test case per endpoint
type Generator struct {
	logger *slog.Logger
	store  GeneratorStore
	llm    llm.Client
}

// NewGenerator creates a Generator
func NewGenerator(logger *slog.Logger, store GeneratorStore, client llm.Client) *Generator {
	return &Generator{logger: logger, store: store, llm: client}
}

// GenerateTest asks the model for a test covering the endpoint and
// stores the result as a draft test case.
func (g *Generator) GenerateTest(ctx context.Context, endpointID string) error {
	ep, err := g.store.GetEndpointContext(ctx, endpointID)
	if err != nil {
		return err
	}

	g.logger.Info("Calling AI for endpoint",
		slog.String("method", ep.Method),
		slog.String("path", ep.Path),
	)

	raw, err := g.llm.Complete(ctx, testGenPrompt(ep.ProjectName, ep.Framework, ep.Method, ep.Path))
	if err != nil {
		return fmt.Errorf("completion failed for endpoint %s: %w", endpointID, err)
	}

	generated, err := llm.ParseGeneratedTest(raw)
	if err != nil {
		return fmt.Errorf("unusable AI response for endpoint %s: %w", endpointID, err)
	}

	return g.store.InsertTestCase(ctx, endpointID, generated.Description, generated.Priority, generated.TestCode)
}
