// Package finder implements the contact-finding agent: given a list of target
// companies and the titles that matter, it works vendor APIs and the open web
// through the tool loop until every company has contacts saved.
package finder

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"outreach/pkg/agent"
	"outreach/pkg/clients"
	"outreach/pkg/config"
	"outreach/pkg/llm"
	"outreach/pkg/logx"
	"outreach/pkg/persistence"
	"outreach/pkg/tools"
)

// Tool names of the finder catalogue.
const (
	toolFindymailSearch    = "findymail_search"
	toolFindymailLinkedIn  = "findymail_linkedin"
	toolWhoisLookup        = "whois_lookup"
	toolHunterDomainSearch = "hunter_domain_search"
	toolHunterFindEmail    = "hunter_find_email"
	toolHunterVerifyEmail  = "hunter_verify_email"
	toolSearchWeb          = "search_web"
	toolFetchWebpage       = "fetch_webpage"
	toolReadFile           = "read_file"
	toolAddContacts        = "add_contacts"
)

// HunterClient is the bulk-discovery surface the finder needs.
type HunterClient interface {
	DomainSearch(ctx context.Context, domain string, limit, offset int, department, seniority string) (*clients.DomainSearchResult, error)
	FindEmail(ctx context.Context, domain, firstName, lastName string) (*clients.FindResult, error)
	VerifyEmail(ctx context.Context, email string) (*clients.VerifyResult, error)
}

// FindymailClient is the per-person finder surface.
type FindymailClient interface {
	FindEmail(ctx context.Context, name, domain string) (*clients.Contact, error)
	FindEmailByLinkedIn(ctx context.Context, linkedinURL string) (*clients.Contact, error)
	VerifyEmail(ctx context.Context, email string) (string, error)
}

// WhoisClient resolves domain registration contacts.
type WhoisClient interface {
	Lookup(ctx context.Context, domain string) (*clients.WhoisResult, error)
}

// ResearchClient is web search plus page fetch.
type ResearchClient interface {
	Search(ctx context.Context, query string, maxResults int) ([]clients.SearchResult, error)
	FetchPage(ctx context.Context, pageURL string, maxChars int) (string, error)
}

// ProspectStore is the persistence surface the finder needs.
type ProspectStore interface {
	CreateProspectSearch(sessionID, request string) (int64, error)
	FinishProspectSearch(searchID int64, status string) error
	AddProspect(p *persistence.Prospect) (int64, error)
	GetProspects(searchID int64) ([]persistence.Prospect, error)
}

// Config assembles a Finder.
type Config struct {
	Client    llm.Client
	Store     ProspectStore
	Hunter    HunterClient
	Findymail FindymailClient
	Whois     WhoisClient
	Research  ResearchClient
	Observer  agent.Observer
	Policy    config.Policy
	DataDir   string
}

// Finder runs one contact search. Not safe for concurrent Runs; create one
// Finder per search.
type Finder struct {
	cfg    Config
	logger *logx.Logger

	companies []string
	searchID  int64

	mu       sync.Mutex
	contacts []persistence.Prospect
	credits  map[string]int
}

// New creates a finder.
func New(cfg Config) (*Finder, error) {
	if cfg.Client == nil || cfg.Store == nil {
		return nil, fmt.Errorf("finder: Client and Store are required")
	}
	if cfg.Observer == nil {
		cfg.Observer = agent.NopObserver{}
	}
	return &Finder{
		cfg:     cfg,
		logger:  logx.NewLogger("finder"),
		credits: make(map[string]int),
	}, nil
}

// MaxTurns returns the turn budget for n companies. Each company needs a
// handful of tool turns, with a floor for small batches.
func MaxTurns(n int) int {
	return max(50, 4*n+20)
}

// Run executes the search and returns the agent's closing summary.
func (f *Finder) Run(ctx context.Context, sessionID, request string, companies []string) (string, error) {
	f.companies = companies
	searchID, err := f.cfg.Store.CreateProspectSearch(sessionID, request)
	if err != nil {
		return "", fmt.Errorf("finder: %w", err)
	}
	f.searchID = searchID

	covCfg := agent.CoverageConfig{
		TargetCount:            len(companies),
		MaxForcedContinuations: f.cfg.Policy.MaxForcedContinuations,
		MaxResets:              f.cfg.Policy.MaxResets,
		ResetAfterMessages:     f.cfg.Policy.ResetAfterMessages,
		Workflow:               workflowText,
	}
	policy := agent.NewCoveragePolicy(covCfg, f.coveredCompanies, f.logger)
	policy.SetTask(request)

	loop, err := agent.New(agent.Config{
		Client:       f.cfg.Client,
		Policy:       policy,
		Dispatcher:   f,
		Catalogue:    catalogue(),
		Observer:     f.cfg.Observer,
		Logger:       f.logger,
		SystemPrompt: systemPrompt(companies),
		MaxTurns:     MaxTurns(len(companies)),
		ToolWorkers:  f.cfg.Policy.ToolWorkers,
		SaveInstruction: "You are out of turns. Call add_contacts once now with every " +
			"contact you have found but not yet saved, then stop.",
	})
	if err != nil {
		return "", err
	}

	out, runErr := loop.Run(ctx, request)
	status := "done"
	switch {
	case runErr != nil:
		status = "failed"
	case out == agent.MaxTurnsSentinel:
		status = "partial"
	}
	if ferr := f.cfg.Store.FinishProspectSearch(searchID, status); ferr != nil {
		f.logger.Error("finish search: %v", ferr)
	}
	f.logger.Info("search %d %s: %d contacts, credits %v", searchID, status, len(f.snapshot()), f.credits)
	return out, runErr
}

// SearchID returns the persistence id of the current run.
func (f *Finder) SearchID() int64 {
	return f.searchID
}

// Contacts returns a copy of the accumulated saved contacts.
func (f *Finder) Contacts() []persistence.Prospect {
	return f.snapshot()
}

func (f *Finder) snapshot() []persistence.Prospect {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]persistence.Prospect, len(f.contacts))
	copy(out, f.contacts)
	return out
}

// coveredCompanies maps accumulated contacts back onto the target list. A
// company counts as covered once any saved contact names it, matched
// case-insensitively with containment either way to absorb suffix noise
// ("Acme" vs "Acme Therapeutics Inc").
func (f *Finder) coveredCompanies() []string {
	saved := f.snapshot()
	var covered []string
	for _, company := range f.companies {
		cl := strings.ToLower(company)
		for i := range saved {
			sl := strings.ToLower(saved[i].Company)
			if sl == cl || strings.Contains(sl, cl) || strings.Contains(cl, sl) {
				covered = append(covered, company)
				break
			}
		}
	}
	sort.Strings(covered)
	return covered
}

func (f *Finder) addCredits(vendor string, n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.credits[vendor] += n
}

// Dispatch routes one tool invocation. Failures come back as "Error: ..."
// strings with a usable alternative, so the model can re-route instead of
// stalling.
func (f *Finder) Dispatch(ctx context.Context, call llm.ToolCall) string {
	switch call.Name {
	case toolFindymailSearch:
		return f.findymailSearch(ctx, call.Args)
	case toolFindymailLinkedIn:
		return f.findymailLinkedIn(ctx, call.Args)
	case toolWhoisLookup:
		return f.whoisLookup(ctx, call.Args)
	case toolHunterDomainSearch:
		return f.hunterDomainSearch(ctx, call.Args)
	case toolHunterFindEmail:
		return f.hunterFindEmail(ctx, call.Args)
	case toolHunterVerifyEmail:
		return f.hunterVerifyEmail(ctx, call.Args)
	case toolSearchWeb:
		return f.searchWeb(ctx, call.Args)
	case toolFetchWebpage:
		return f.fetchWebpage(ctx, call.Args)
	case toolReadFile:
		return f.readFile(call.Args)
	case toolAddContacts:
		return f.addContacts(call.Args)
	default:
		return fmt.Sprintf("Error: unknown tool %q. Available tools: %s.", call.Name, tools.Names(catalogue()))
	}
}

type findymailSearchArgs struct {
	Name   string `json:"name"`
	Domain string `json:"domain"`
}

func (f *Finder) findymailSearch(ctx context.Context, args map[string]any) string {
	var a findymailSearchArgs
	if err := tools.DecodeArgs(args, &a); err != nil {
		return "Error: " + err.Error()
	}
	if a.Name == "" || a.Domain == "" {
		return "Error: findymail_search needs both name and domain."
	}
	contact, err := f.cfg.Findymail.FindEmail(ctx, a.Name, a.Domain)
	if err != nil {
		return fmt.Sprintf("Error: findymail search failed (%v). Try hunter_find_email instead.", err)
	}
	if contact.Email == "" {
		return fmt.Sprintf("No email found for %s at %s. Try hunter_find_email or search_web for their LinkedIn profile.", a.Name, a.Domain)
	}
	f.addCredits("findymail", 1)
	return fmt.Sprintf("Found: %s <%s> (verified=%t). Save it with add_contacts.", contact.Name, contact.Email, contact.Verified)
}

type findymailLinkedInArgs struct {
	LinkedInURL string `json:"linkedin_url"`
}

func (f *Finder) findymailLinkedIn(ctx context.Context, args map[string]any) string {
	var a findymailLinkedInArgs
	if err := tools.DecodeArgs(args, &a); err != nil {
		return "Error: " + err.Error()
	}
	if a.LinkedInURL == "" {
		return "Error: findymail_linkedin needs linkedin_url."
	}
	contact, err := f.cfg.Findymail.FindEmailByLinkedIn(ctx, a.LinkedInURL)
	if err != nil {
		return fmt.Sprintf("Error: findymail linkedin lookup failed (%v). Try findymail_search with name and domain instead.", err)
	}
	if contact.Email == "" {
		return "No email found for that profile. Try findymail_search with the person's name and company domain."
	}
	f.addCredits("findymail", 1)
	return fmt.Sprintf("Found: %s <%s> (verified=%t). Save it with add_contacts.", contact.Name, contact.Email, contact.Verified)
}

type whoisArgs struct {
	Domain string `json:"domain"`
}

func (f *Finder) whoisLookup(ctx context.Context, args map[string]any) string {
	var a whoisArgs
	if err := tools.DecodeArgs(args, &a); err != nil {
		return "Error: " + err.Error()
	}
	res, err := f.cfg.Whois.Lookup(ctx, a.Domain)
	if err != nil {
		return fmt.Sprintf("Error: whois lookup failed (%v). Try search_web for the company's contact page instead.", err)
	}
	if len(res.Emails) == 0 {
		if res.PrivacyProtected {
			return fmt.Sprintf("WHOIS for %s is privacy-protected, no usable emails. Try hunter_domain_search instead.", a.Domain)
		}
		return fmt.Sprintf("No contact emails in WHOIS for %s. Try hunter_domain_search instead.", a.Domain)
	}
	return fmt.Sprintf("WHOIS %s (registrar: %s): %s", a.Domain, res.Registrar, strings.Join(res.Emails, ", "))
}

type hunterFindEmailArgs struct {
	Domain    string `json:"domain"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

func (f *Finder) hunterFindEmail(ctx context.Context, args map[string]any) string {
	var a hunterFindEmailArgs
	if err := tools.DecodeArgs(args, &a); err != nil {
		return "Error: " + err.Error()
	}
	res, err := f.cfg.Hunter.FindEmail(ctx, a.Domain, a.FirstName, a.LastName)
	if err != nil {
		return fmt.Sprintf("Error: hunter email finder failed (%v). Try findymail_search instead.", err)
	}
	f.addCredits("hunter", 1)
	if res.Email == "" {
		return fmt.Sprintf("No email found for %s %s at %s. Try findymail_search instead.", a.FirstName, a.LastName, a.Domain)
	}
	return fmt.Sprintf("Found: %s (score %d). Save it with add_contacts.", res.Email, res.Score)
}

type hunterVerifyArgs struct {
	Email string `json:"email"`
}

func (f *Finder) hunterVerifyEmail(ctx context.Context, args map[string]any) string {
	var a hunterVerifyArgs
	if err := tools.DecodeArgs(args, &a); err != nil {
		return "Error: " + err.Error()
	}
	res, err := f.cfg.Hunter.VerifyEmail(ctx, a.Email)
	if err != nil {
		return fmt.Sprintf("Error: hunter verifier failed (%v).", err)
	}
	f.addCredits("hunter", 1)
	return fmt.Sprintf("%s: %s (score %d)", res.Email, res.Status, res.Score)
}

type searchWebArgs struct {
	Query      string `json:"query"`
	MaxResults int    `json:"max_results"`
}

func (f *Finder) searchWeb(ctx context.Context, args map[string]any) string {
	var a searchWebArgs
	if err := tools.DecodeArgs(args, &a); err != nil {
		return "Error: " + err.Error()
	}
	if a.Query == "" {
		return "Error: search_web needs a query."
	}
	results, err := f.cfg.Research.Search(ctx, a.Query, a.MaxResults)
	if err != nil {
		return fmt.Sprintf("Error: web search failed (%v).", err)
	}
	if len(results) == 0 {
		return "No results. Rephrase the query."
	}
	var b strings.Builder
	for i, r := range results {
		fmt.Fprintf(&b, "%d. %s\n   %s\n   %s\n", i+1, r.Title, r.Description, r.URL)
	}
	return b.String()
}

type fetchWebpageArgs struct {
	URL      string `json:"url"`
	MaxChars int    `json:"max_chars"`
}

func (f *Finder) fetchWebpage(ctx context.Context, args map[string]any) string {
	var a fetchWebpageArgs
	if err := tools.DecodeArgs(args, &a); err != nil {
		return "Error: " + err.Error()
	}
	text, err := f.cfg.Research.FetchPage(ctx, a.URL, a.MaxChars)
	if err != nil {
		return fmt.Sprintf("Error: fetch failed (%v). Try a different page from the search results.", err)
	}
	return text
}

type readFileArgs struct {
	Filename string `json:"filename"`
}

func (f *Finder) readFile(args map[string]any) string {
	var a readFileArgs
	if err := tools.DecodeArgs(args, &a); err != nil {
		return "Error: " + err.Error()
	}
	// Base-name only: the data dir is flat and the model must not walk paths.
	path := filepath.Join(f.cfg.DataDir, filepath.Base(a.Filename))
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Sprintf("Error: cannot read %s (%v).", a.Filename, err)
	}
	return string(raw)
}
