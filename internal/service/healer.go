package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ai-testgen/backend/internal/llm"
)

// HealerStore is the persistence the healer needs
type HealerStore interface {
	GetTestCaseContext(ctx context.Context, testCaseID string) (*TestCaseContext, error)
	MarkTestCaseHealed(ctx context.Context, testCaseID, patchedCode, reason string) error
}

// Healer patches broken test cases against the current endpoint
// signature
type Healer struct {
	logger *slog.Logger
	store  HealerStore
	llm    llm.Client
}

// NewHealer creates a Healer
func NewHealer(logger *slog.Logger, store HealerStore, client llm.Client) *Healer {
	return &Healer{logger: logger, store: store, llm: client}
}

// HealTestCase asks the model to patch the test case's code for the
// endpoint's current method and path, then stores the patched
// version. It returns the model's explanation of the change.
func (h *Healer) HealTestCase(ctx context.Context, testCaseID string) (string, error) {
	tc, err := h.store.GetTestCaseContext(ctx, testCaseID)
	if err != nil {
		return "", err
	}

	h.logger.Info("Attempting to heal test case",
		slog.String("test_case_id", testCaseID),
		slog.String("path", tc.Path),
	)

	raw, err := h.llm.Complete(ctx, healingPrompt(tc.Framework, tc.Method, tc.Path, tc.TestCode))
	if err != nil {
		return "", fmt.Errorf("completion failed for test case %s: %w", testCaseID, err)
	}

	healed, err := llm.ParseHealedTest(raw)
	if err != nil {
		return "", fmt.Errorf("unusable AI response for test case %s: %w", testCaseID, err)
	}

	if err := h.store.MarkTestCaseHealed(ctx, testCaseID, healed.PatchedTestCode, healed.Reason); err != nil {
		return "", err
	}

	h.logger.Info("Test case healed", slog.String("test_case_id", testCaseID))
	return healed.Reason, nil
}
