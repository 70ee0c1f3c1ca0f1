package clients

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

const hunterBaseURL = "https://api.hunter.io/v2"

// Hunter wraps the hunter.io v2 API: bulk domain search plus per-person
// finder and verifier.
type Hunter struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewHunter creates a hunter.io client.
func NewHunter(apiKey string) *Hunter {
	return &Hunter{
		apiKey:     apiKey,
		baseURL:    hunterBaseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// HunterPerson is one contact from a domain search.
type HunterPerson struct {
	Email      string `json:"value"`
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	Position   string `json:"position"`
	Seniority  string `json:"seniority"`
	Department string `json:"department"`
	Confidence int    `json:"confidence"`
	LinkedIn   string `json:"linkedin"`
}

// FullName joins first and last name.
func (p *HunterPerson) FullName() string {
	switch {
	case p.FirstName == "":
		return p.LastName
	case p.LastName == "":
		return p.FirstName
	default:
		return p.FirstName + " " + p.LastName
	}
}

// DomainSearchResult is the useful subset of a domain-search response.
type DomainSearchResult struct {
	Domain       string
	Organization string
	Emails       []HunterPerson
	TotalResults int
}

type hunterDomainSearchResponse struct {
	Data struct {
		Domain       string         `json:"domain"`
		Organization string         `json:"organization"`
		Emails       []HunterPerson `json:"emails"`
	} `json:"data"`
	Meta struct {
		Results int `json:"results"`
	} `json:"meta"`
}

// DomainSearch lists known addresses at a domain. limit is capped at 100 by
// the API; offset pages through larger result sets.
func (h *Hunter) DomainSearch(ctx context.Context, domain string, limit, offset int, department, seniority string) (*DomainSearchResult, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	q := url.Values{}
	q.Set("domain", domain)
	q.Set("limit", fmt.Sprint(limit))
	q.Set("api_key", h.apiKey)
	if offset > 0 {
		q.Set("offset", fmt.Sprint(offset))
	}
	if department != "" {
		q.Set("department", department)
	}
	if seniority != "" {
		q.Set("seniority", seniority)
	}

	var parsed hunterDomainSearchResponse
	if err := getJSON(ctx, h.httpClient, h.baseURL+"/domain-search?"+q.Encode(), nil, &parsed); err != nil {
		return nil, fmt.Errorf("hunter domain search %s: %w", domain, err)
	}
	return &DomainSearchResult{
		Domain:       parsed.Data.Domain,
		Organization: parsed.Data.Organization,
		Emails:       parsed.Data.Emails,
		TotalResults: parsed.Meta.Results,
	}, nil
}

// FindResult is a per-person finder hit.
type FindResult struct {
	Email string
	Score int
}

type hunterFinderResponse struct {
	Data struct {
		Email string `json:"email"`
		Score int    `json:"score"`
	} `json:"data"`
}

// FindEmail guesses one person's address from name and domain.
func (h *Hunter) FindEmail(ctx context.Context, domain, firstName, lastName string) (*FindResult, error) {
	q := url.Values{}
	q.Set("domain", domain)
	q.Set("first_name", firstName)
	q.Set("last_name", lastName)
	q.Set("api_key", h.apiKey)

	var parsed hunterFinderResponse
	if err := getJSON(ctx, h.httpClient, h.baseURL+"/email-finder?"+q.Encode(), nil, &parsed); err != nil {
		return nil, fmt.Errorf("hunter email finder %s %s: %w", firstName, lastName, err)
	}
	return &FindResult{Email: parsed.Data.Email, Score: parsed.Data.Score}, nil
}

// VerifyResult reports deliverability of one address.
type VerifyResult struct {
	Email  string
	Status string // deliverable | risky | undeliverable | unknown
	Score  int
}

type hunterVerifierResponse struct {
	Data struct {
		Email  string `json:"email"`
		Status string `json:"status"`
		Score  int    `json:"score"`
	} `json:"data"`
}

// VerifyEmail checks deliverability of an address.
func (h *Hunter) VerifyEmail(ctx context.Context, email string) (*VerifyResult, error) {
	q := url.Values{}
	q.Set("email", email)
	q.Set("api_key", h.apiKey)

	var parsed hunterVerifierResponse
	if err := getJSON(ctx, h.httpClient, h.baseURL+"/email-verifier?"+q.Encode(), nil, &parsed); err != nil {
		return nil, fmt.Errorf("hunter email verifier %s: %w", email, err)
	}
	return &VerifyResult{Email: parsed.Data.Email, Status: parsed.Data.Status, Score: parsed.Data.Score}, nil
}
