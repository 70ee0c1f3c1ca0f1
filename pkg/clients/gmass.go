package clients

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

const gmassBaseURL = "https://api.gmass.co/api"

// GMass wraps the GMass mail-merge API: build a list from a sheet, draft a
// personalized campaign against it, send.
type GMass struct {
	apiKey     string
	fromEmail  string
	baseURL    string
	httpClient *http.Client
}

// NewGMass creates a GMass client sending as fromEmail.
func NewGMass(apiKey, fromEmail string) *GMass {
	return &GMass{
		apiKey:     apiKey,
		fromEmail:  fromEmail,
		baseURL:    gmassBaseURL,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

func (g *GMass) endpoint(path string) string {
	return g.baseURL + path + "?apikey=" + url.QueryEscape(g.apiKey)
}

type gmassListResponse struct {
	ListAddress string `json:"listAddress"`
	ListID      string `json:"listId"`
}

// CreateList builds a GMass list from a Google Sheet and returns the list
// address campaigns are drafted against.
func (g *GMass) CreateList(ctx context.Context, spreadsheetID, worksheetID string) (string, error) {
	payload := map[string]any{
		"listSource": map[string]any{
			"listSourceSheet": map[string]any{
				"spreadsheetId":  spreadsheetID,
				"worksheetId":    worksheetID,
				"UpdateSheet":    true,
				"KeepDuplicates": false,
			},
		},
	}
	var parsed gmassListResponse
	if err := postJSON(ctx, g.httpClient, g.endpoint("/lists"), nil, payload, &parsed); err != nil {
		return "", fmt.Errorf("gmass create list: %w", err)
	}
	if parsed.ListAddress == "" {
		return "", fmt.Errorf("gmass create list: no list address in response")
	}
	return parsed.ListAddress, nil
}

type gmassDraftResponse struct {
	CampaignDraftID string `json:"campaignDraftId"`
}

// CreateDraft drafts a campaign against a list address. Subject and message
// may use {FirstName}-style merge fields resolved from the sheet columns.
func (g *GMass) CreateDraft(ctx context.Context, listAddress, subject, message string) (string, error) {
	payload := map[string]any{
		"listAddress":   listAddress,
		"subject":       subject,
		"message":       message,
		"fromEmail":     g.fromEmail,
		"messageType":   "html",
		"openTracking":  true,
		"clickTracking": true,
	}
	var parsed gmassDraftResponse
	if err := postJSON(ctx, g.httpClient, g.endpoint("/campaigndrafts"), nil, payload, &parsed); err != nil {
		return "", fmt.Errorf("gmass create draft: %w", err)
	}
	if parsed.CampaignDraftID == "" {
		return "", fmt.Errorf("gmass create draft: no draft id in response")
	}
	return parsed.CampaignDraftID, nil
}

type gmassSendResponse struct {
	CampaignID string `json:"campaignId"`
	Status     string `json:"status"`
}

// SendCampaign sends a drafted campaign and returns the campaign id.
func (g *GMass) SendCampaign(ctx context.Context, draftID string) (string, error) {
	var parsed gmassSendResponse
	if err := postJSON(ctx, g.httpClient, g.endpoint("/campaigns/"+url.PathEscape(draftID)), nil, map[string]any{}, &parsed); err != nil {
		return "", fmt.Errorf("gmass send campaign: %w", err)
	}
	if parsed.CampaignID == "" {
		parsed.CampaignID = draftID
	}
	return parsed.CampaignID, nil
}
