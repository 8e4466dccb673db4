// File path: internal/extractor/classifier.go
package extractor

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/auditkit/sopcheck/internal/compliance"
	"github.com/auditkit/sopcheck/internal/llm"
)

const classifierSystemPrompt = `You classify fragments of regulatory text.
Decide whether the fragment states an enforceable requirement (an obligation,
prohibition, or mandated condition). If it does, rewrite it as one
self-contained sentence that makes sense without surrounding context.
Respond with JSON only, no prose, in the form:
{"requirement": true|false, "normalized": "<single sentence or empty>"}`

// LLMClassifier implements Classifier over a chat provider.
type LLMClassifier struct {
	provider llm.Provider
}

func NewLLMClassifier(provider llm.Provider) *LLMClassifier {
	return &LLMClassifier{provider: provider}
}

type classifierVerdict struct {
	Requirement bool   `json:"requirement"`
	Normalized  string `json:"normalized"`
}

func (c *LLMClassifier) Classify(ctx context.Context, text string) (bool, string, error) {
	raw, err := c.provider.Chat(ctx, []llm.Message{
		{Role: "system", Content: classifierSystemPrompt},
		{Role: "user", Content: strings.TrimSpace(text)},
	})
	if err != nil {
		return false, "", err
	}
	var verdict classifierVerdict
	if err := json.Unmarshal([]byte(llm.ExtractJSON(raw)), &verdict); err != nil {
		return false, "", compliance.ParseErrorf("classifier response: %v", err)
	}
	return verdict.Requirement, verdict.Normalized, nil
}

var _ Classifier = (*LLMClassifier)(nil)
