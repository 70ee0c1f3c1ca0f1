package clients

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

const findymailBaseURL = "https://app.findymail.com/api"

// Findymail wraps the findymail.com finder and verifier. Credits are spent
// only on hits, which makes it the cheap second pass behind hunter.
type Findymail struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewFindymail creates a findymail client.
func NewFindymail(apiKey string) *Findymail {
	return &Findymail{
		apiKey:     apiKey,
		baseURL:    findymailBaseURL,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

func (f *Findymail) headers() map[string]string {
	return map[string]string{
		"Authorization": "Bearer " + f.apiKey,
		"Accept":        "application/json",
	}
}

// Contact is a findymail search hit. Email is empty when nothing was found;
// that is not an error.
type Contact struct {
	Name     string
	Email    string
	Verified bool
}

type findymailSearchResponse struct {
	Contact struct {
		Name     string `json:"name"`
		Email    string `json:"email"`
		Verified bool   `json:"verified"`
	} `json:"contact"`
}

// FindEmail looks a person up by full name and company domain.
func (f *Findymail) FindEmail(ctx context.Context, name, domain string) (*Contact, error) {
	payload := map[string]string{"name": name, "domain": domain}
	var parsed findymailSearchResponse
	if err := postJSON(ctx, f.httpClient, f.baseURL+"/search/name", f.headers(), payload, &parsed); err != nil {
		return nil, fmt.Errorf("findymail search %s@%s: %w", name, domain, err)
	}
	return &Contact{Name: parsed.Contact.Name, Email: parsed.Contact.Email, Verified: parsed.Contact.Verified}, nil
}

// FindEmailByLinkedIn looks a work email up from a LinkedIn profile URL.
func (f *Findymail) FindEmailByLinkedIn(ctx context.Context, linkedinURL string) (*Contact, error) {
	payload := map[string]string{"linkedin_url": linkedinURL}
	var parsed findymailSearchResponse
	if err := postJSON(ctx, f.httpClient, f.baseURL+"/search/linkedin", f.headers(), payload, &parsed); err != nil {
		return nil, fmt.Errorf("findymail linkedin search: %w", err)
	}
	return &Contact{Name: parsed.Contact.Name, Email: parsed.Contact.Email, Verified: parsed.Contact.Verified}, nil
}

type findymailVerifyResponse struct {
	Email  string `json:"email"`
	Status string `json:"status"`
}

// VerifyEmail checks an address. Status is valid, invalid or unknown.
func (f *Findymail) VerifyEmail(ctx context.Context, email string) (string, error) {
	payload := map[string]string{"email": email}
	var parsed findymailVerifyResponse
	if err := postJSON(ctx, f.httpClient, f.baseURL+"/verify", f.headers(), payload, &parsed); err != nil {
		return "", fmt.Errorf("findymail verify %s: %w", email, err)
	}
	return parsed.Status, nil
}

type findymailCreditsResponse struct {
	Credits         int `json:"credits"`
	VerifierCredits int `json:"verifier_credits"`
}

// Credits returns the remaining finder credits.
func (f *Findymail) Credits(ctx context.Context) (int, error) {
	var parsed findymailCreditsResponse
	if err := getJSON(ctx, f.httpClient, f.baseURL+"/credits", f.headers(), &parsed); err != nil {
		return 0, fmt.Errorf("findymail credits: %w", err)
	}
	return parsed.Credits, nil
}
