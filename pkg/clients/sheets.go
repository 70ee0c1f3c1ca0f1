package clients

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// Sheets uploads campaign CSVs to Google Sheets through an Apps Script
// web-app endpoint. The script owns the OAuth side; this client just posts
// the rows and reads back the spreadsheet coordinates GMass needs.
type Sheets struct {
	webhookURL string
	httpClient *http.Client
}

// NewSheets creates an uploader for the configured web-app URL.
func NewSheets(webhookURL string) *Sheets {
	return &Sheets{
		webhookURL: webhookURL,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

// SheetInfo identifies an uploaded worksheet.
type SheetInfo struct {
	SpreadsheetID  string `json:"spreadsheet_id"`
	WorksheetID    string `json:"worksheet_id"`
	SpreadsheetURL string `json:"spreadsheet_url"`
}

// UploadCSV creates (or replaces) a worksheet named title with the CSV
// content and returns its coordinates.
func (s *Sheets) UploadCSV(ctx context.Context, title, csvContent string) (*SheetInfo, error) {
	if s.webhookURL == "" {
		return nil, fmt.Errorf("sheets webhook url not configured")
	}
	payload := map[string]string{"title": title, "csv": csvContent}
	var info SheetInfo
	if err := postJSON(ctx, s.httpClient, s.webhookURL, nil, payload, &info); err != nil {
		return nil, fmt.Errorf("sheets upload %q: %w", title, err)
	}
	if info.SpreadsheetID == "" {
		return nil, fmt.Errorf("sheets upload %q: no spreadsheet id in response", title)
	}
	return &info, nil
}
