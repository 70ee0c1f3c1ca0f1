package agent

import (
	"fmt"
	"strings"

	"outreach/pkg/logx"
	"outreach/pkg/metrics"
)

// CompletionPolicy decides whether an agent that wants to stop is actually
// done, and whether a long transcript should be replaced with a fresh one.
// Both checks read progress from accumulated results, never from the
// transcript, so they survive resets.
type CompletionPolicy interface {
	// ShouldContinue returns a corrective user message and true when the
	// agent stopped early and must keep going.
	ShouldContinue() (string, bool)
	// MaybeReset returns a replacement transcript, or nil to keep the
	// current one.
	MaybeReset(t *Transcript) *Transcript
}

// NopPolicy accepts every stop and never resets. Used by agents with no
// coverage target, like the drafting agent.
type NopPolicy struct{}

func (NopPolicy) ShouldContinue() (string, bool)     { return "", false }
func (NopPolicy) MaybeReset(*Transcript) *Transcript { return nil }

// CoverageConfig holds the thresholds of a CoveragePolicy.
type CoverageConfig struct {
	// TargetCount is the number of items the agent must cover.
	TargetCount int
	// MaxForcedContinuations caps corrective pushes; past it the agent's
	// stop is accepted even with work remaining.
	MaxForcedContinuations int
	// MaxResets caps transcript replacements per run.
	MaxResets int
	// ResetAfterMessages is the transcript length that triggers a reset.
	ResetAfterMessages int
	// Workflow is the next-step recipe restated in corrective and reset
	// messages.
	Workflow string
}

// DefaultCoverageConfig returns the standard thresholds for target count n.
func DefaultCoverageConfig(n int) CoverageConfig {
	return CoverageConfig{
		TargetCount:            n,
		MaxForcedContinuations: 3,
		MaxResets:              3,
		ResetAfterMessages:     60,
	}
}

// CoveragePolicy forces continuation until every target item is covered and
// resets oversized transcripts while coverage is still growing. Covered items
// come from the covered callback, which must read the agent's accumulated
// results.
type CoveragePolicy struct {
	cfg     CoverageConfig
	covered func() []string
	logger  *logx.Logger

	task             string
	forceCount       int
	resetsUsed       int
	coverageBaseline int
}

// NewCoveragePolicy builds a policy over the given accumulated-coverage view.
func NewCoveragePolicy(cfg CoverageConfig, covered func() []string, logger *logx.Logger) *CoveragePolicy {
	return &CoveragePolicy{cfg: cfg, covered: covered, logger: logger}
}

// SetTask records the original request so reset transcripts can restate it.
func (p *CoveragePolicy) SetTask(task string) {
	p.task = task
}

// ShouldContinue pushes back on an early stop while companies remain and the
// force budget is not spent. The force counter is zeroed by a reset, so a
// fresh transcript gets a fresh budget.
func (p *CoveragePolicy) ShouldContinue() (string, bool) {
	covered := p.covered()
	remaining := p.cfg.TargetCount - len(covered)
	if remaining <= 0 {
		return "", false
	}
	if p.forceCount >= p.cfg.MaxForcedContinuations {
		p.logger.Warn("accepting early stop with %d of %d targets uncovered (force budget spent)",
			remaining, p.cfg.TargetCount)
		return "", false
	}
	p.forceCount++
	metrics.ForcedContinuations.Inc()
	p.logger.Info("forcing continuation %d/%d: %d targets remaining",
		p.forceCount, p.cfg.MaxForcedContinuations, remaining)

	var b strings.Builder
	fmt.Fprintf(&b, "You are not done: %d of %d companies still have no contacts.\n", remaining, p.cfg.TargetCount)
	fmt.Fprintf(&b, "Companies already covered: %s\n", coveredList(covered))
	b.WriteString("Do not stop until every company in the request has been attempted.\n")
	if p.cfg.Workflow != "" {
		fmt.Fprintf(&b, "Continue with the remaining companies now. %s", p.cfg.Workflow)
	}
	return b.String(), true
}

// MaybeReset replaces a transcript that crossed the length threshold with a
// fresh single-turn one. Skipped when coverage is complete, when no new items
// were covered since the last reset (the agent is stuck, a shorter transcript
// will not unstick it), or when the reset budget is spent.
func (p *CoveragePolicy) MaybeReset(t *Transcript) *Transcript {
	if t.Len() < p.cfg.ResetAfterMessages {
		return nil
	}
	covered := p.covered()
	remaining := p.cfg.TargetCount - len(covered)
	if remaining <= 0 {
		return nil
	}
	if len(covered) <= p.coverageBaseline {
		return nil
	}
	if p.resetsUsed >= p.cfg.MaxResets {
		return nil
	}
	p.resetsUsed++
	p.forceCount = 0
	p.coverageBaseline = len(covered)
	metrics.TranscriptResets.Inc()
	p.logger.Info("resetting transcript (%d messages, ~%d tokens): reset %d/%d, %d targets remaining",
		t.Len(), t.EstimateTokens(), p.resetsUsed, p.cfg.MaxResets, remaining)

	var b strings.Builder
	b.WriteString("You are resuming an in-progress contact search. The original request:\n\n")
	b.WriteString(p.task)
	fmt.Fprintf(&b, "\n\nProgress so far: contacts already found and saved for %d of %d companies: %s\n",
		len(covered), p.cfg.TargetCount, coveredList(covered))
	b.WriteString("Those companies are done; do NOT repeat them. Work only on the remaining companies.\n")
	if p.cfg.Workflow != "" {
		b.WriteString(p.cfg.Workflow)
	}
	return NewTranscript(b.String())
}

func coveredList(covered []string) string {
	if len(covered) == 0 {
		return "(none yet)"
	}
	return strings.Join(covered, ", ")
}
