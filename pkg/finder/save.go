package finder

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"outreach/pkg/clients"
	"outreach/pkg/metrics"
	"outreach/pkg/persistence"
	"outreach/pkg/tools"
)

// Confidence at or above this saves directly; below it the address goes
// through findymail re-verification first.
const highConfidence = 70

// verifyWorkers bounds the re-verification pool. It runs inside a tool
// handler, which may itself be one of up to 8 parallel tool workers, so it
// stays small.
const defaultVerifyWorkers = 5

type hunterDomainSearchArgs struct {
	Domain       string   `json:"domain"`
	CompanyName  string   `json:"company_name"`
	TargetTitles []string `json:"target_titles"`
	Limit        int      `json:"limit"`
	Offset       int      `json:"offset"`
	Department   string   `json:"department"`
	Seniority    string   `json:"seniority"`
}

// hunterDomainSearch is the finder's workhorse: bulk-list a domain, keep the
// relevant titles, and persist everything found, verifying the shaky ones.
func (f *Finder) hunterDomainSearch(ctx context.Context, args map[string]any) string {
	var a hunterDomainSearchArgs
	if err := tools.DecodeArgs(args, &a); err != nil {
		return "Error: " + err.Error()
	}
	if a.Domain == "" {
		return "Error: hunter_domain_search needs a domain."
	}
	if a.CompanyName == "" {
		a.CompanyName = a.Domain
	}

	res, err := f.cfg.Hunter.DomainSearch(ctx, a.Domain, a.Limit, a.Offset, a.Department, a.Seniority)
	if err != nil {
		return fmt.Sprintf("Error: hunter domain search failed (%v). Try search_web for the company's team page instead.", err)
	}
	f.addCredits("hunter", 1)

	relevant := res.Emails[:0:0]
	for i := range res.Emails {
		p := res.Emails[i]
		if p.Email == "" {
			continue
		}
		if titleMatches(p.Position, a.TargetTitles) {
			relevant = append(relevant, p)
		}
	}
	if len(relevant) == 0 {
		return fmt.Sprintf("Hunter knows %d addresses at %s but none match the requested titles. "+
			"Broaden target_titles, or try search_web for the leadership page.", res.TotalResults, a.Domain)
	}

	// Best guesses first, both for saving and for the summary the model sees.
	sort.SliceStable(relevant, func(i, j int) bool {
		return relevant[i].Confidence > relevant[j].Confidence
	})

	saved := f.autoSave(ctx, a.Domain, a.CompanyName, relevant)

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d relevant contacts at %s (%d known addresses total). ", len(relevant), a.Domain, res.TotalResults)
	fmt.Fprintf(&b, "Auto-saved: %d high-confidence, %d verified, %d unverified, %d duplicate.\n",
		saved["high"], saved["verified"], saved["unverified"], saved["duplicate"])
	for i := range relevant {
		p := &relevant[i]
		fmt.Fprintf(&b, "- %s | %s | %s (confidence %d)\n", p.FullName(), p.Position, p.Email, p.Confidence)
	}
	fetched := a.Offset + len(res.Emails)
	if fetched < res.TotalResults {
		fmt.Fprintf(&b, "More results available: call again with offset=%d.\n", fetched)
	}
	b.WriteString("All listed contacts are already saved; do NOT call add_contacts for them.")
	return b.String()
}

// autoSave persists a batch of hunter contacts with confidence tiering:
// confident addresses are saved as-is, the rest are re-checked through
// findymail on a small worker pool and saved as verified or unverified.
// Returns counts by outcome.
func (f *Finder) autoSave(ctx context.Context, domain, company string, people []clients.HunterPerson) map[string]int {
	workers := f.cfg.Policy.VerifyWorkers
	if workers <= 0 {
		workers = defaultVerifyWorkers
	}

	outcomes := make([]tieredOutcome, len(people))

	g := new(errgroup.Group)
	g.SetLimit(min(workers, max(len(people), 1)))
	for i := range people {
		p := &people[i]
		if p.Confidence >= highConfidence {
			outcomes[i] = tieredOutcome{email: p.Email, status: "high"}
			continue
		}
		g.Go(func() error {
			outcomes[i] = f.verifyLowConfidence(ctx, p, domain)
			return nil
		})
	}
	_ = g.Wait()

	counts := map[string]int{}
	for i := range people {
		p := &people[i]
		prospect := persistence.Prospect{
			SearchID:    f.searchID,
			ContactName: p.FullName(),
			Email:       outcomes[i].email,
			Company:     company,
			Title:       p.Position,
			Status:      outcomes[i].status,
			Source:      "hunter",
		}
		id, err := f.cfg.Store.AddProspect(&prospect)
		if err != nil {
			f.logger.Error("save prospect %s: %v", prospect.Email, err)
			continue
		}
		if id == 0 {
			counts["duplicate"]++
			continue
		}
		prospect.ID = id
		counts[prospect.Status]++
		metrics.ProspectsSaved.WithLabelValues(prospect.Status).Inc()
		f.mu.Lock()
		f.contacts = append(f.contacts, prospect)
		f.mu.Unlock()
	}
	return counts
}

// tieredOutcome is the address and status a contact ends up saved with.
type tieredOutcome struct {
	email  string
	status string
}

// verifyLowConfidence re-checks one shaky hunter guess through findymail. A
// findymail hit replaces the address outright; its finder only returns
// deliverable emails.
func (f *Finder) verifyLowConfidence(ctx context.Context, p *clients.HunterPerson, domain string) tieredOutcome {
	out := tieredOutcome{email: p.Email, status: "unverified"}

	contact, err := f.cfg.Findymail.FindEmail(ctx, p.FullName(), domain)
	if err != nil {
		f.logger.Debug("verify %s via findymail: %v", p.Email, err)
		return out
	}
	if contact.Email != "" {
		f.addCredits("findymail", 1)
		out.email = contact.Email
		out.status = "verified"
	}
	return out
}

// junkNames are placeholder values vendors and models emit instead of a real
// person.
var junkNames = map[string]bool{
	"": true, "unknown": true, "n/a": true, "na": true, "none": true,
	"tbd": true, "clinical team": true, "info": true, "admin": true,
}

func isJunkName(name string) bool {
	n := strings.ToLower(strings.TrimSpace(name))
	if junkNames[n] {
		return true
	}
	// Bracketed or annotated strings are metadata, not names.
	if strings.HasPrefix(n, "[") || strings.HasPrefix(n, "(") {
		return true
	}
	for _, marker := range []string{"verification", "processing", "pending", "not found"} {
		if strings.Contains(n, marker) {
			return true
		}
	}
	return false
}

type contactArg struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Company string `json:"company"`
	Title   string `json:"title"`
	Source  string `json:"source"`
}

type addContactsArgs struct {
	Contacts []contactArg `json:"contacts"`
}

// addContacts persists contacts the model found itself (web research, WHOIS,
// per-person lookups). Junk rows are rejected, duplicates are counted but not
// re-inserted, and the result string reports all three numbers so the model
// can reconcile its bookkeeping.
func (f *Finder) addContacts(args map[string]any) string {
	var a addContactsArgs
	if err := tools.DecodeArgs(args, &a); err != nil {
		return "Error: " + err.Error()
	}
	if len(a.Contacts) == 0 {
		return "Error: add_contacts needs a non-empty contacts array."
	}

	var saved, duplicates, rejected int
	for i := range a.Contacts {
		c := &a.Contacts[i]
		if isJunkName(c.Name) || strings.TrimSpace(c.Company) == "" {
			rejected++
			continue
		}
		source := c.Source
		if source == "" {
			source = "agent"
		}
		prospect := persistence.Prospect{
			SearchID:    f.searchID,
			ContactName: strings.TrimSpace(c.Name),
			Email:       strings.TrimSpace(c.Email),
			Company:     strings.TrimSpace(c.Company),
			Title:       strings.TrimSpace(c.Title),
			Status:      "high",
			Source:      source,
		}
		id, err := f.cfg.Store.AddProspect(&prospect)
		if err != nil {
			f.logger.Error("add contact %s: %v", c.Name, err)
			rejected++
			continue
		}
		if id == 0 {
			duplicates++
			continue
		}
		prospect.ID = id
		saved++
		metrics.ProspectsSaved.WithLabelValues(prospect.Status).Inc()
		f.mu.Lock()
		f.contacts = append(f.contacts, prospect)
		f.mu.Unlock()
	}

	total := len(f.snapshot())
	return fmt.Sprintf("OK. +%d new contacts saved (%d already in DB, %d rejected). Total for this search: %d.",
		saved, duplicates, rejected, total)
}
