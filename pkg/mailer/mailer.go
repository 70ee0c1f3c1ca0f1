// Package mailer implements the email-drafting agent: research each prospect,
// draft a personalized email, then finalize the batch into a CSV, a Google
// Sheet and a GMass campaign. Drafting ends when the model decides it is
// done; there is no coverage target to force.
package mailer

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"outreach/pkg/agent"
	"outreach/pkg/clients"
	"outreach/pkg/llm"
	"outreach/pkg/logx"
	"outreach/pkg/persistence"
	"outreach/pkg/tools"
)

// Tool names of the mailer catalogue.
const (
	toolReadFile         = "read_file"
	toolSearchWeb        = "search_web"
	toolFetchWebpage     = "fetch_webpage"
	toolLoadProspects    = "load_prospects"
	toolSaveDraft        = "save_draft_email"
	toolFinalizeCampaign = "finalize_campaign"
	toolUploadToSheets   = "upload_to_sheets"
	toolSendCampaign     = "send_gmass_campaign"
)

// maxTurns is generous; drafting burns a turn or two per prospect.
const maxTurns = 80

// csvHeader is the campaign CSV column order. GMass merge fields are resolved
// from these names, so the order and spelling are fixed.
var csvHeader = []string{"contact_name", "email", "company", "title", "product", "language", "subject", "body"}

// ResearchClient is web search plus page fetch.
type ResearchClient interface {
	Search(ctx context.Context, query string, maxResults int) ([]clients.SearchResult, error)
	FetchPage(ctx context.Context, pageURL string, maxChars int) (string, error)
}

// SheetsClient uploads a campaign CSV.
type SheetsClient interface {
	UploadCSV(ctx context.Context, title, csvContent string) (*clients.SheetInfo, error)
}

// GMassClient drives the mail-merge send.
type GMassClient interface {
	CreateList(ctx context.Context, spreadsheetID, worksheetID string) (string, error)
	CreateDraft(ctx context.Context, listAddress, subject, message string) (string, error)
	SendCampaign(ctx context.Context, draftID string) (string, error)
}

// CampaignStore is the persistence surface the mailer needs.
type CampaignStore interface {
	GetProspects(searchID int64) ([]persistence.Prospect, error)
	CreateCampaign(name, csvPath string) (int64, error)
	GetCampaign(name string) (*persistence.Campaign, error)
	UpdateCampaign(id int64, sheetURL, gmassID, status string) error
	AddRecipient(r *persistence.Recipient) (int64, error)
}

// Draft is one composed email, keyed by recipient address.
type Draft struct {
	ContactName string `json:"contact_name"`
	Email       string `json:"email"`
	Company     string `json:"company"`
	Title       string `json:"title"`
	Product     string `json:"product"`
	Language    string `json:"language"`
	Subject     string `json:"subject"`
	Body        string `json:"body"`
	Framework   string `json:"framework"`
	Rationale   string `json:"rationale"`
}

// Config assembles a Mailer.
type Config struct {
	Client    llm.Client
	Store     CampaignStore
	Research  ResearchClient
	Sheets    SheetsClient
	GMass     GMassClient
	Observer  agent.Observer
	DataDir   string
	OutputDir string

	// ToolWorkers bounds parallel tool execution; 0 takes the loop default.
	ToolWorkers int
}

// Mailer runs one drafting session. Create one per campaign.
type Mailer struct {
	cfg    Config
	logger *logx.Logger

	mu       sync.Mutex
	drafts   map[string]Draft // keyed by lowercase email
	order    []string         // insertion order of draft keys
	campaign *persistence.Campaign
	sheet    *clients.SheetInfo
}

// New creates a mailer.
func New(cfg Config) (*Mailer, error) {
	if cfg.Client == nil || cfg.Store == nil {
		return nil, fmt.Errorf("mailer: Client and Store are required")
	}
	if cfg.Observer == nil {
		cfg.Observer = agent.NopObserver{}
	}
	return &Mailer{
		cfg:    cfg,
		logger: logx.NewLogger("mailer"),
		drafts: make(map[string]Draft),
	}, nil
}

// Run executes the drafting session and returns the agent's closing summary.
func (m *Mailer) Run(ctx context.Context, request string) (string, error) {
	loop, err := agent.New(agent.Config{
		Client:       m.cfg.Client,
		Policy:       agent.NopPolicy{},
		Dispatcher:   m,
		Catalogue:    m.catalogue(),
		Observer:     m.cfg.Observer,
		Logger:       m.logger,
		SystemPrompt: systemPrompt,
		MaxTurns:     maxTurns,
		ToolWorkers:  m.cfg.ToolWorkers,
		SaveInstruction: "You are out of turns. If you have drafts but no finalized campaign, " +
			"call finalize_campaign now, then stop.",
	})
	if err != nil {
		return "", err
	}
	return loop.Run(ctx, request)
}

// Drafts returns the accumulated drafts in insertion order.
func (m *Mailer) Drafts() []Draft {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Draft, 0, len(m.order))
	for _, key := range m.order {
		out = append(out, m.drafts[key])
	}
	return out
}

// Dispatch routes one tool invocation.
func (m *Mailer) Dispatch(ctx context.Context, call llm.ToolCall) string {
	switch call.Name {
	case toolReadFile:
		return m.readFile(call.Args)
	case toolSearchWeb:
		return m.searchWeb(ctx, call.Args)
	case toolFetchWebpage:
		return m.fetchWebpage(ctx, call.Args)
	case toolLoadProspects:
		return m.loadProspects(call.Args)
	case toolSaveDraft:
		return m.saveDraft(call.Args)
	case toolFinalizeCampaign:
		return m.finalizeCampaign(call.Args)
	case toolUploadToSheets:
		return m.uploadToSheets(ctx, call.Args)
	case toolSendCampaign:
		return m.sendCampaign(ctx)
	default:
		return fmt.Sprintf("Error: unknown tool %q.", call.Name)
	}
}

func (m *Mailer) readFile(args map[string]any) string {
	name, err := tools.StringArg(args, "filename")
	if err != nil {
		return "Error: " + err.Error()
	}
	raw, rerr := os.ReadFile(filepath.Join(m.cfg.DataDir, filepath.Base(name)))
	if rerr != nil {
		return fmt.Sprintf("Error: cannot read %s (%v).", name, rerr)
	}
	return string(raw)
}

func (m *Mailer) searchWeb(ctx context.Context, args map[string]any) string {
	query, err := tools.StringArg(args, "query")
	if err != nil {
		return "Error: " + err.Error()
	}
	results, serr := m.cfg.Research.Search(ctx, query, 5)
	if serr != nil {
		return fmt.Sprintf("Error: web search failed (%v).", serr)
	}
	var b strings.Builder
	for i, r := range results {
		fmt.Fprintf(&b, "%d. %s\n   %s\n   %s\n", i+1, r.Title, r.Description, r.URL)
	}
	if b.Len() == 0 {
		return "No results. Rephrase the query."
	}
	return b.String()
}

func (m *Mailer) fetchWebpage(ctx context.Context, args map[string]any) string {
	pageURL, err := tools.StringArg(args, "url")
	if err != nil {
		return "Error: " + err.Error()
	}
	text, ferr := m.cfg.Research.FetchPage(ctx, pageURL, 20000)
	if ferr != nil {
		return fmt.Sprintf("Error: fetch failed (%v).", ferr)
	}
	return text
}

type loadProspectsArgs struct {
	SearchID int64  `json:"search_id"`
	CSVText  string `json:"csv_text"`
}

// loadProspects pulls recipients either from a finder search in the database
// or from pasted CSV text.
func (m *Mailer) loadProspects(args map[string]any) string {
	var a loadProspectsArgs
	if err := tools.DecodeArgs(args, &a); err != nil {
		return "Error: " + err.Error()
	}
	switch {
	case a.SearchID > 0:
		prospects, err := m.cfg.Store.GetProspects(a.SearchID)
		if err != nil {
			return fmt.Sprintf("Error: load search %d failed (%v).", a.SearchID, err)
		}
		if len(prospects) == 0 {
			return fmt.Sprintf("Search %d has no saved contacts.", a.SearchID)
		}
		var b strings.Builder
		fmt.Fprintf(&b, "%d prospects in search %d:\n", len(prospects), a.SearchID)
		for i := range prospects {
			p := &prospects[i]
			fmt.Fprintf(&b, "- %s | %s | %s | %s | %s\n", p.ContactName, p.Title, p.Company, p.Email, p.Status)
		}
		return b.String()
	case a.CSVText != "":
		records, err := csv.NewReader(strings.NewReader(a.CSVText)).ReadAll()
		if err != nil {
			return fmt.Sprintf("Error: cannot parse csv_text (%v).", err)
		}
		return fmt.Sprintf("Parsed %d CSV rows (including header). Draft per row using the columns as given:\n%s",
			len(records), a.CSVText)
	default:
		return "Error: load_prospects needs search_id or csv_text."
	}
}

// saveDraft stores one composed email. Re-saving the same address replaces
// the draft, so the model can revise.
func (m *Mailer) saveDraft(args map[string]any) string {
	var d Draft
	if err := tools.DecodeArgs(args, &d); err != nil {
		return "Error: " + err.Error()
	}
	if d.Email == "" || d.Subject == "" || d.Body == "" {
		return "Error: save_draft_email needs email, subject and body."
	}
	if d.Language == "" {
		d.Language = "en"
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	key := strings.ToLower(strings.TrimSpace(d.Email))
	if _, exists := m.drafts[key]; !exists {
		m.order = append(m.order, key)
	}
	m.drafts[key] = d
	return fmt.Sprintf("Draft saved for %s <%s> (%d drafts total).", d.ContactName, d.Email, len(m.drafts))
}

type finalizeArgs struct {
	CampaignName string `json:"campaign_name"`
}

// finalizeCampaign writes the campaign CSV and the campaign/recipient rows.
// Must run before upload or send.
func (m *Mailer) finalizeCampaign(args map[string]any) string {
	var a finalizeArgs
	if err := tools.DecodeArgs(args, &a); err != nil {
		return "Error: " + err.Error()
	}
	if a.CampaignName == "" {
		return "Error: finalize_campaign needs campaign_name."
	}
	drafts := m.Drafts()
	if len(drafts) == 0 {
		return "Error: no drafts to finalize. Save drafts with save_draft_email first."
	}
	if existing, err := m.cfg.Store.GetCampaign(a.CampaignName); err != nil {
		return fmt.Sprintf("Error: campaign lookup failed (%v).", err)
	} else if existing != nil {
		return fmt.Sprintf("Error: campaign %q already exists. Pick another name.", a.CampaignName)
	}

	csvPath := filepath.Join(m.cfg.OutputDir, sanitizeName(a.CampaignName)+".csv")
	if err := m.writeCSV(csvPath, drafts); err != nil {
		return fmt.Sprintf("Error: write CSV failed (%v).", err)
	}

	campaignID, err := m.cfg.Store.CreateCampaign(a.CampaignName, csvPath)
	if err != nil {
		return fmt.Sprintf("Error: create campaign failed (%v).", err)
	}
	for i := range drafts {
		d := &drafts[i]
		if _, err := m.cfg.Store.AddRecipient(&persistence.Recipient{
			CampaignID:  campaignID,
			ContactName: d.ContactName,
			Email:       d.Email,
			Company:     d.Company,
			Title:       d.Title,
			Language:    d.Language,
		}); err != nil {
			m.logger.Error("add recipient %s: %v", d.Email, err)
		}
	}

	m.mu.Lock()
	m.campaign = &persistence.Campaign{ID: campaignID, Name: a.CampaignName, CSVPath: csvPath, Status: "draft"}
	m.mu.Unlock()
	m.logger.Info("campaign %q finalized: %d recipients, %s", a.CampaignName, len(drafts), csvPath)
	return fmt.Sprintf("Campaign %q finalized with %d recipients. CSV: %s. Next: upload_to_sheets.",
		a.CampaignName, len(drafts), csvPath)
}

func (m *Mailer) writeCSV(path string, drafts []Draft) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() { _ = file.Close() }()

	w := csv.NewWriter(file)
	if err := w.Write(csvHeader); err != nil {
		return err
	}
	for i := range drafts {
		d := &drafts[i]
		row := []string{d.ContactName, d.Email, d.Company, d.Title, d.Product, d.Language, d.Subject, d.Body}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

// uploadToSheets pushes the finalized CSV to Google Sheets. Must run after
// finalize and before send.
func (m *Mailer) uploadToSheets(ctx context.Context, args map[string]any) string {
	_ = args
	m.mu.Lock()
	campaign := m.campaign
	m.mu.Unlock()
	if campaign == nil {
		return "Error: no finalized campaign. Call finalize_campaign first."
	}
	raw, err := os.ReadFile(campaign.CSVPath)
	if err != nil {
		return fmt.Sprintf("Error: read campaign CSV (%v).", err)
	}
	info, err := m.cfg.Sheets.UploadCSV(ctx, campaign.Name, string(raw))
	if err != nil {
		return fmt.Sprintf("Error: sheets upload failed (%v). The CSV at %s can be uploaded manually.", err, campaign.CSVPath)
	}
	if err := m.cfg.Store.UpdateCampaign(campaign.ID, info.SpreadsheetURL, "", "uploaded"); err != nil {
		m.logger.Error("update campaign %d: %v", campaign.ID, err)
	}

	m.mu.Lock()
	m.sheet = info
	m.campaign.SheetURL = info.SpreadsheetURL
	m.campaign.Status = "uploaded"
	m.mu.Unlock()
	return fmt.Sprintf("Uploaded to %s. Next: send_gmass_campaign.", info.SpreadsheetURL)
}

// sendCampaign builds the GMass list from the uploaded sheet, drafts the
// merge campaign and sends it. Subject and body are per-recipient sheet
// columns resolved by GMass merge fields.
func (m *Mailer) sendCampaign(ctx context.Context) string {
	m.mu.Lock()
	campaign, sheet := m.campaign, m.sheet
	m.mu.Unlock()
	if campaign == nil {
		return "Error: no finalized campaign. Call finalize_campaign first."
	}
	if sheet == nil {
		return "Error: campaign not uploaded. Call upload_to_sheets first."
	}

	listAddress, err := m.cfg.GMass.CreateList(ctx, sheet.SpreadsheetID, sheet.WorksheetID)
	if err != nil {
		return fmt.Sprintf("Error: gmass list creation failed (%v).", err)
	}
	draftID, err := m.cfg.GMass.CreateDraft(ctx, listAddress, "{subject}", "{body}")
	if err != nil {
		return fmt.Sprintf("Error: gmass draft creation failed (%v).", err)
	}
	campaignID, err := m.cfg.GMass.SendCampaign(ctx, draftID)
	if err != nil {
		return fmt.Sprintf("Error: gmass send failed (%v). Draft %s can be sent from the GMass dashboard.", err, draftID)
	}
	if err := m.cfg.Store.UpdateCampaign(campaign.ID, "", campaignID, "sending"); err != nil {
		m.logger.Error("update campaign %d: %v", campaign.ID, err)
	}
	m.logger.Info("campaign %q sending via gmass %s", campaign.Name, campaignID)
	return fmt.Sprintf("Campaign %q is sending (gmass id %s).", campaign.Name, campaignID)
}

// sanitizeName makes a campaign name safe as a file name.
func sanitizeName(name string) string {
	mapped := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		case r == ' ':
			return '_'
		default:
			return -1
		}
	}, name)
	if mapped == "" {
		mapped = "campaign_" + strconv.Itoa(len(name))
	}
	return mapped
}
