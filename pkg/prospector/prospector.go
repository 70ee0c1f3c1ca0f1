// Package prospector implements the target-discovery agent: a fixed
// three-phase pipeline (query generation, batch web search, tiered analysis)
// that spends exactly two model calls per run.
package prospector

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"outreach/pkg/agent"
	"outreach/pkg/clients"
	"outreach/pkg/llm"
	"outreach/pkg/logx"
)

const (
	// maxQueries caps the search fan-out per run.
	maxQueries = 15
	// corpusCap bounds the search corpus handed to the analysis call. Beyond
	// this the tail results add noise, not signal.
	corpusCap = 80_000
	// resultsPerQuery is the search depth per generated query.
	resultsPerQuery = 5
)

// ResearchClient is the web search surface the prospector needs.
type ResearchClient interface {
	Search(ctx context.Context, query string, maxResults int) ([]clients.SearchResult, error)
}

// Company is one discovered target.
type Company struct {
	Name   string `json:"name"`
	Domain string `json:"domain,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// Result is the tiered outcome of a discovery run. Tier1 companies fit the
// request directly; tier2 are plausible but need human review.
type Result struct {
	Tier1 []Company `json:"tier1"`
	Tier2 []Company `json:"tier2"`
}

// JSON renders the result for downstream agents.
func (r *Result) JSON() string {
	raw, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(raw)
}

// Prospector runs target discovery.
type Prospector struct {
	client   llm.Client
	retry    *agent.RetryPolicy
	research ResearchClient
	observer agent.Observer
	logger   *logx.Logger
}

// New creates a prospector.
func New(client llm.Client, research ResearchClient, observer agent.Observer) *Prospector {
	logger := logx.NewLogger("prospector")
	if observer == nil {
		observer = agent.NopObserver{}
	}
	retry := agent.NewRetryPolicy(logger)
	retry.Observer = observer
	return &Prospector{
		client:   client,
		retry:    retry,
		research: research,
		observer: observer,
		logger:   logger,
	}
}

// Run discovers companies matching the request. Feedback from a previous
// round, when present, steers both the queries and the final classification.
func (p *Prospector) Run(ctx context.Context, request, feedback string) (*Result, error) {
	queries, err := p.generateQueries(ctx, request, feedback)
	if err != nil {
		return nil, err
	}
	p.logger.Info("searching with %d queries", len(queries))

	corpus := p.collectCorpus(ctx, queries)
	if corpus == "" {
		return nil, fmt.Errorf("prospector: no search results for any query")
	}
	return p.analyze(ctx, request, feedback, corpus)
}

// generateQueries asks the model for diverse search queries, tolerating the
// formats models actually produce: a fenced JSON array, a bare array, or a
// plain list of lines.
func (p *Prospector) generateQueries(ctx context.Context, request, feedback string) ([]string, error) {
	prompt := fmt.Sprintf(
		"Generate 12-15 diverse web search queries to find companies matching this request:\n\n%s\n\n"+
			"Cover different angles: industry terms, geography, funding stage, product category.\n"+
			"Reply with a JSON array of strings only.", request)
	if feedback != "" {
		prompt += "\n\nFeedback on the previous round, take it into account:\n" + feedback
	}

	resp, err := p.retry.Call(ctx, p.client, llm.CompletionRequest{
		Messages:  []llm.Message{llm.UserText(prompt)},
		MaxTokens: agent.ResponseTokenBudget(p.client.ModelName()),
	})
	if err != nil {
		return nil, fmt.Errorf("prospector query generation: %w", err)
	}

	msg := llm.AssistantContent(resp.Blocks)
	queries := parseQueries(msg.Text())
	if len(queries) == 0 {
		return nil, fmt.Errorf("prospector: no queries in model output")
	}
	if len(queries) > maxQueries {
		queries = queries[:maxQueries]
	}
	return queries, nil
}

// parseQueries extracts queries from model output: JSON array first, newline
// fallback second.
func parseQueries(text string) []string {
	candidate := stripFences(text)
	if start := strings.Index(candidate, "["); start >= 0 {
		if end := strings.LastIndex(candidate, "]"); end > start {
			var arr []string
			if err := json.Unmarshal([]byte(candidate[start:end+1]), &arr); err == nil {
				return cleanQueries(arr)
			}
		}
	}
	return cleanQueries(strings.Split(candidate, "\n"))
}

func cleanQueries(raw []string) []string {
	var out []string
	for _, q := range raw {
		q = strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(q), "-*0123456789. "))
		q = strings.Trim(q, `"',`)
		if len(q) > 2 {
			out = append(out, q)
		}
	}
	return out
}

func stripFences(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	return strings.TrimSpace(text)
}

// collectCorpus runs every query sequentially and accumulates a labeled
// corpus. Individual query failures are logged and skipped; discovery
// tolerates holes.
func (p *Prospector) collectCorpus(ctx context.Context, queries []string) string {
	var b strings.Builder
	for i, q := range queries {
		p.observer.OnToolCall("search_web", map[string]any{"query": q})
		results, err := p.research.Search(ctx, q, resultsPerQuery)
		if err != nil {
			p.logger.Warn("query %d/%d failed: %v", i+1, len(queries), err)
			continue
		}
		fmt.Fprintf(&b, "## Query: %s\n", q)
		for _, r := range results {
			fmt.Fprintf(&b, "- %s | %s | %s\n", r.Title, r.Description, r.URL)
		}
		b.WriteString("\n")
		p.observer.OnToolResult("search_web", fmt.Sprintf("%d results", len(results)))
	}
	corpus := b.String()
	if len(corpus) > corpusCap {
		corpus = corpus[:corpusCap]
	}
	return corpus
}

// analyze classifies the corpus into tiered company lists.
func (p *Prospector) analyze(ctx context.Context, request, feedback, corpus string) (*Result, error) {
	prompt := fmt.Sprintf(
		"Original request:\n%s\n\nWeb search results:\n%s\n\n"+
			"Identify companies matching the request. Classify into tier1 (clear fit) and "+
			"tier2 (plausible, needs review). Reply with JSON only:\n"+
			`{"tier1": [{"name": "...", "domain": "...", "reason": "..."}], "tier2": [...]}`,
		request, corpus)
	if feedback != "" {
		prompt += "\n\nFeedback on the previous round:\n" + feedback
	}

	resp, err := p.retry.Call(ctx, p.client, llm.CompletionRequest{
		Messages:  []llm.Message{llm.UserText(prompt)},
		MaxTokens: agent.ResponseTokenBudget(p.client.ModelName()),
	})
	if err != nil {
		return nil, fmt.Errorf("prospector analysis: %w", err)
	}

	msg := llm.AssistantContent(resp.Blocks)
	result, err := parseResult(msg.Text())
	if err != nil {
		return nil, fmt.Errorf("prospector: %w", err)
	}
	p.observer.OnText(fmt.Sprintf("Discovered %d tier1 and %d tier2 companies", len(result.Tier1), len(result.Tier2)))
	return result, nil
}

func parseResult(text string) (*Result, error) {
	candidate := stripFences(text)
	start := strings.Index(candidate, "{")
	end := strings.LastIndex(candidate, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON object in analysis output")
	}
	var result Result
	if err := json.Unmarshal([]byte(candidate[start:end+1]), &result); err != nil {
		return nil, fmt.Errorf("parse analysis output: %w", err)
	}
	if len(result.Tier1) == 0 && len(result.Tier2) == 0 {
		return nil, fmt.Errorf("analysis output names no companies")
	}
	return &result, nil
}
