package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// GeneratedTest is the structured answer expected from a test
// generation prompt
type GeneratedTest struct {
	Description string `json:"description"`
	Priority    string `json:"priority"`
	TestCode    string `json:"test_code"`
}

// HealedTest is the structured answer expected from a healing prompt
type HealedTest struct {
	Reason          string `json:"reason"`
	PatchedTestCode string `json:"patched_test_code"`
}

// ParseGeneratedTest decodes a test generation reply, tolerating
// markdown fences the model was told not to emit.
func ParseGeneratedTest(raw string) (*GeneratedTest, error) {
	var out GeneratedTest
	if err := json.Unmarshal([]byte(extractJSON(raw)), &out); err != nil {
		return nil, fmt.Errorf("model returned invalid JSON: %w", err)
	}
	if out.Description == "" || out.Priority == "" || out.TestCode == "" {
		return nil, fmt.Errorf("model response is missing required fields")
	}
	return &out, nil
}

// ParseHealedTest decodes a healing reply
func ParseHealedTest(raw string) (*HealedTest, error) {
	var out HealedTest
	if err := json.Unmarshal([]byte(extractJSON(raw)), &out); err != nil {
		return nil, fmt.Errorf("model returned invalid JSON: %w", err)
	}
	if out.PatchedTestCode == "" {
		return nil, fmt.Errorf("model response is missing patched test code")
	}
	return &out, nil
}

// extractJSON strips a surrounding markdown code fence, if any
func extractJSON(raw string) string {
	if _, after, found := strings.Cut(raw, "```json"); found {
		if inner, _, ok := strings.Cut(after, "```"); ok {
			return strings.TrimSpace(inner)
		}
		return strings.TrimSpace(after)
	}
	if _, after, found := strings.Cut(raw, "```"); found {
		if inner, _, ok := strings.Cut(after, "```"); ok {
			return strings.TrimSpace(inner)
		}
		return strings.TrimSpace(after)
	}
	return strings.TrimSpace(raw)
}
