// File path: internal/reasoner/reasoner.go

// Package reasoner turns (SOP section, clause) pairs into structured
// compliance findings. Model responses must carry a recognized status; a
// malformed response gets exactly one repair round-trip before the finding is
// downgraded to NotApplicable with a diagnostic rationale, so a misbehaving
// model can never sink a run.
package reasoner

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/auditkit/sopcheck/internal/common"
	"github.com/auditkit/sopcheck/internal/common/retry"
	"github.com/auditkit/sopcheck/internal/common/telemetry"
	"github.com/auditkit/sopcheck/internal/compliance"
	"github.com/auditkit/sopcheck/internal/llm"
	"github.com/auditkit/sopcheck/internal/retriever"
)

// Reasoner judges SOP sections against retrieved clause evidence.
type Reasoner struct {
	provider llm.Provider
	policy   retry.Policy
}

// Option configures a Reasoner.
type Option func(*Reasoner)

// WithRetryPolicy overrides the transient-failure retry policy.
func WithRetryPolicy(p retry.Policy) Option {
	return func(r *Reasoner) { r.policy = p }
}

func New(provider llm.Provider, opts ...Option) *Reasoner {
	r := &Reasoner{provider: provider, policy: retry.DefaultPolicy()}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

type verdict struct {
	Status              string `json:"status"`
	Rationale           string `json:"rationale"`
	SuggestedAdjustment string `json:"suggested_adjustment"`
}

// Judge produces one finding per evidence clause. When evidence is empty it
// returns the single synthetic NotApplicable finding with no clause reference,
// which records that no governing regulation was found for the section.
func (r *Reasoner) Judge(ctx context.Context, section compliance.SOPSection, evidence []retriever.Evidence) ([]compliance.Finding, []compliance.Warning, error) {
	if len(evidence) == 0 {
		return []compliance.Finding{{
			SOPSectionID: section.ID,
			Status:       compliance.StatusNotApplicable,
			Rationale:    "no regulatory clause met the similarity floor for this section",
		}}, nil, nil
	}
	findings := make([]compliance.Finding, 0, len(evidence))
	var warnings []compliance.Warning
	for _, ev := range evidence {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		finding, warning, err := r.judgeOne(ctx, section, ev)
		if err != nil {
			return nil, nil, err
		}
		findings = append(findings, finding)
		if warning != nil {
			warnings = append(warnings, *warning)
		}
	}
	return findings, warnings, nil
}

func (r *Reasoner) judgeOne(ctx context.Context, section compliance.SOPSection, ev retriever.Evidence) (compliance.Finding, *compliance.Warning, error) {
	messages := []llm.Message{
		{Role: "system", Content: judgeSystemPrompt},
		{Role: "user", Content: judgeUserPrompt(section.Heading, section.Text, ev.SectionReference, ev.Text)},
	}
	v, err := r.ask(ctx, messages)
	if err == nil {
		if parsed, ok := parseVerdict(v); ok {
			return findingFrom(section, ev, parsed), nil, nil
		}
		// One structural repair attempt: feed the bad response back with the
		// repair instruction.
		telemetry.RecordJudgmentRetry()
		common.Logger().Warn("reasoner: malformed verdict, requesting repair",
			"section", section.ID, "clause", ev.ClauseID)
		repair := append(messages,
			llm.Message{Role: "assistant", Content: v},
			llm.Message{Role: "user", Content: judgeRepairPrompt},
		)
		v, err = r.ask(ctx, repair)
		if err == nil {
			if parsed, ok := parseVerdict(v); ok {
				return findingFrom(section, ev, parsed), nil, nil
			}
			err = compliance.ParseErrorf("verdict remained malformed after repair")
		}
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return compliance.Finding{}, nil, ctxErr
	}
	// Exhausted: degrade rather than abort the run.
	common.Logger().Warn("reasoner: judgment degraded",
		"section", section.ID, "clause", ev.ClauseID, "error", err)
	warning := &compliance.Warning{
		Scope:   compliance.WarnSection,
		RefID:   section.ID,
		Message: fmt.Sprintf("reasoning failed for clause %s: %v", ev.ClauseID, err),
	}
	return compliance.Finding{
		SOPSectionID:    section.ID,
		ClauseID:        ev.ClauseID,
		Status:          compliance.StatusNotApplicable,
		SimilarityScore: ev.Score,
		Rationale:       "reasoning failed: the model did not produce a usable verdict for this clause",
	}, warning, nil
}

// ask sends one chat exchange with transient-failure retries.
func (r *Reasoner) ask(ctx context.Context, messages []llm.Message) (string, error) {
	var raw string
	start := time.Now()
	err := retry.Do(ctx, r.policy, func(ctx context.Context) error {
		var chatErr error
		raw, chatErr = r.provider.Chat(ctx, messages)
		return chatErr
	})
	telemetry.RecordJudgment(err == nil, time.Since(start))
	return raw, err
}

func parseVerdict(raw string) (verdict, bool) {
	var v verdict
	if err := json.Unmarshal([]byte(llm.ExtractJSON(raw)), &v); err != nil {
		return verdict{}, false
	}
	if !compliance.Status(v.Status).Valid() || v.Rationale == "" {
		return verdict{}, false
	}
	return v, true
}

func findingFrom(section compliance.SOPSection, ev retriever.Evidence, v verdict) compliance.Finding {
	status := compliance.Status(v.Status)
	adjustment := v.SuggestedAdjustment
	if status == compliance.StatusCompliant || status == compliance.StatusNotApplicable {
		adjustment = ""
	}
	return compliance.Finding{
		SOPSectionID:        section.ID,
		ClauseID:            ev.ClauseID,
		Status:              status,
		SimilarityScore:     ev.Score,
		Rationale:           v.Rationale,
		SuggestedAdjustment: adjustment,
	}
}
