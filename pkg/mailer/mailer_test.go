package mailer

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"outreach/pkg/clients"
	"outreach/pkg/llm"
	"outreach/pkg/persistence"
)

// memCampaignStore keeps campaigns and recipients in memory with unique names.
type memCampaignStore struct {
	mu         sync.Mutex
	nextID     int64
	campaigns  map[string]*persistence.Campaign
	recipients []persistence.Recipient
	prospects  map[int64][]persistence.Prospect
}

func newMemCampaignStore() *memCampaignStore {
	return &memCampaignStore{
		campaigns: make(map[string]*persistence.Campaign),
		prospects: make(map[int64][]persistence.Prospect),
	}
}

func (s *memCampaignStore) GetProspects(searchID int64) ([]persistence.Prospect, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.prospects[searchID], nil
}

func (s *memCampaignStore) CreateCampaign(name, csvPath string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.campaigns[name]; exists {
		return 0, fmt.Errorf("UNIQUE constraint failed: campaigns.name")
	}
	s.nextID++
	s.campaigns[name] = &persistence.Campaign{ID: s.nextID, Name: name, CSVPath: csvPath, Status: "draft"}
	return s.nextID, nil
}

func (s *memCampaignStore) GetCampaign(name string) (*persistence.Campaign, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.campaigns[name]
	if !ok {
		return nil, nil
	}
	copied := *c
	return &copied, nil
}

func (s *memCampaignStore) UpdateCampaign(id int64, sheetURL, gmassID, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.campaigns {
		if c.ID != id {
			continue
		}
		if sheetURL != "" {
			c.SheetURL = sheetURL
		}
		if gmassID != "" {
			c.GMassID = gmassID
		}
		if status != "" {
			c.Status = status
		}
	}
	return nil
}

func (s *memCampaignStore) AddRecipient(r *persistence.Recipient) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	row := *r
	row.ID = s.nextID
	s.recipients = append(s.recipients, row)
	return row.ID, nil
}

type fakeSheets struct {
	uploaded string
	err      error
}

func (f *fakeSheets) UploadCSV(_ context.Context, _, csvContent string) (*clients.SheetInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.uploaded = csvContent
	return &clients.SheetInfo{
		SpreadsheetID:  "sheet-1",
		WorksheetID:    "ws-1",
		SpreadsheetURL: "https://sheets.example/sheet-1",
	}, nil
}

type fakeGMass struct {
	steps []string
}

func (f *fakeGMass) CreateList(_ context.Context, spreadsheetID, worksheetID string) (string, error) {
	f.steps = append(f.steps, "list:"+spreadsheetID+"/"+worksheetID)
	return "list@gmass.test", nil
}

func (f *fakeGMass) CreateDraft(_ context.Context, listAddress, subject, message string) (string, error) {
	f.steps = append(f.steps, fmt.Sprintf("draft:%s:%s:%s", listAddress, subject, message))
	return "draft-7", nil
}

func (f *fakeGMass) SendCampaign(_ context.Context, draftID string) (string, error) {
	f.steps = append(f.steps, "send:"+draftID)
	return "gmass-42", nil
}

// idleClient satisfies llm.Client for tests that drive the tools directly.
type idleClient struct{}

func (idleClient) Complete(context.Context, llm.CompletionRequest) (llm.CompletionResponse, error) {
	return llm.CompletionResponse{}, fmt.Errorf("idleClient: no model in this test")
}

func (idleClient) ModelName() string { return "claude-test" }

func newTestMailer(t *testing.T, store *memCampaignStore, sheets SheetsClient, gmass GMassClient) *Mailer {
	t.Helper()
	m, err := New(Config{
		Client:    idleClient{},
		Store:     store,
		Sheets:    sheets,
		GMass:     gmass,
		OutputDir: t.TempDir(),
	})
	require.NoError(t, err)
	return m
}

func draftArgs(name, email, subject string) map[string]any {
	return map[string]any{
		"contact_name": name,
		"email":        email,
		"company":      "Acme",
		"title":        "CEO",
		"product":      "widget",
		"subject":      subject,
		"body":         "Hi " + name,
	}
}

func TestSaveDraftReplacesOnSameAddress(t *testing.T) {
	m := newTestMailer(t, newMemCampaignStore(), &fakeSheets{}, &fakeGMass{})

	out := m.saveDraft(draftArgs("Ann Abel", "ann@acme.bio", "first take"))
	assert.Contains(t, out, "1 drafts total")
	out = m.saveDraft(draftArgs("Bob Birch", "bob@globex.com", "hello"))
	assert.Contains(t, out, "2 drafts total")

	// Case-insensitive revision keeps the count and the position.
	out = m.saveDraft(draftArgs("Ann Abel", "ANN@acme.bio", "second take"))
	assert.Contains(t, out, "2 drafts total")

	drafts := m.Drafts()
	require.Len(t, drafts, 2)
	assert.Equal(t, "second take", drafts[0].Subject)
	assert.Equal(t, "en", drafts[0].Language)
	assert.Equal(t, "hello", drafts[1].Subject)
}

func TestSaveDraftRequiresCoreFields(t *testing.T) {
	m := newTestMailer(t, newMemCampaignStore(), &fakeSheets{}, &fakeGMass{})
	out := m.saveDraft(map[string]any{"email": "ann@acme.bio", "subject": "s"})
	assert.Contains(t, out, "Error:")
	assert.Empty(t, m.Drafts())
}

func TestFinalizeCampaignWritesCSVAndRecipients(t *testing.T) {
	store := newMemCampaignStore()
	m := newTestMailer(t, store, &fakeSheets{}, &fakeGMass{})
	m.saveDraft(draftArgs("Ann Abel", "ann@acme.bio", "subject a"))
	m.saveDraft(draftArgs("Bob Birch", "bob@globex.com", "subject b"))

	out := m.finalizeCampaign(map[string]any{"campaign_name": "Spring Launch"})
	assert.Contains(t, out, `finalized with 2 recipients`)
	assert.Contains(t, out, "upload_to_sheets")

	c, err := store.GetCampaign("Spring Launch")
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.True(t, strings.HasSuffix(c.CSVPath, "Spring_Launch.csv"), c.CSVPath)

	raw, err := os.ReadFile(c.CSVPath)
	require.NoError(t, err)
	records, err := csv.NewReader(strings.NewReader(string(raw))).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, csvHeader, records[0])
	assert.Equal(t, "ann@acme.bio", records[1][1])
	assert.Equal(t, "subject a", records[1][6])
	assert.Equal(t, "bob@globex.com", records[2][1])

	require.Len(t, store.recipients, 2)
	assert.Equal(t, "ann@acme.bio", store.recipients[0].Email)
	assert.Equal(t, "en", store.recipients[0].Language)
}

func TestFinalizeCampaignGuards(t *testing.T) {
	store := newMemCampaignStore()
	m := newTestMailer(t, store, &fakeSheets{}, &fakeGMass{})

	out := m.finalizeCampaign(map[string]any{"campaign_name": "empty"})
	assert.Contains(t, out, "no drafts to finalize")

	m.saveDraft(draftArgs("Ann Abel", "ann@acme.bio", "s"))
	require.Contains(t, m.finalizeCampaign(map[string]any{"campaign_name": "taken"}), "finalized")

	out = m.finalizeCampaign(map[string]any{"campaign_name": "taken"})
	assert.Contains(t, out, "already exists")
}

func TestUploadRequiresFinalizedCampaign(t *testing.T) {
	m := newTestMailer(t, newMemCampaignStore(), &fakeSheets{}, &fakeGMass{})
	out := m.uploadToSheets(context.Background(), nil)
	assert.Contains(t, out, "finalize_campaign first")
}

func TestSendRequiresUpload(t *testing.T) {
	m := newTestMailer(t, newMemCampaignStore(), &fakeSheets{}, &fakeGMass{})

	out := m.sendCampaign(context.Background())
	assert.Contains(t, out, "finalize_campaign first")

	m.saveDraft(draftArgs("Ann Abel", "ann@acme.bio", "s"))
	m.finalizeCampaign(map[string]any{"campaign_name": "c"})

	out = m.sendCampaign(context.Background())
	assert.Contains(t, out, "upload_to_sheets first")
}

func TestFullSendPipeline(t *testing.T) {
	store := newMemCampaignStore()
	sheets := &fakeSheets{}
	gmass := &fakeGMass{}
	m := newTestMailer(t, store, sheets, gmass)

	m.saveDraft(draftArgs("Ann Abel", "ann@acme.bio", "subject a"))
	require.Contains(t, m.finalizeCampaign(map[string]any{"campaign_name": "pipeline"}), "finalized")

	out := m.uploadToSheets(context.Background(), nil)
	assert.Contains(t, out, "https://sheets.example/sheet-1")
	assert.Contains(t, sheets.uploaded, "ann@acme.bio")

	out = m.sendCampaign(context.Background())
	assert.Contains(t, out, "gmass-42")

	// List from the uploaded sheet, merge-field draft, then send.
	assert.Equal(t, []string{
		"list:sheet-1/ws-1",
		"draft:list@gmass.test:{subject}:{body}",
		"send:draft-7",
	}, gmass.steps)

	c, err := store.GetCampaign("pipeline")
	require.NoError(t, err)
	assert.Equal(t, "sending", c.Status)
	assert.Equal(t, "gmass-42", c.GMassID)
	assert.Equal(t, "https://sheets.example/sheet-1", c.SheetURL)
}

func TestUploadFailurePointsAtTheCSV(t *testing.T) {
	m := newTestMailer(t, newMemCampaignStore(), &fakeSheets{err: fmt.Errorf("webhook 500")}, &fakeGMass{})
	m.saveDraft(draftArgs("Ann Abel", "ann@acme.bio", "s"))
	m.finalizeCampaign(map[string]any{"campaign_name": "c"})

	out := m.uploadToSheets(context.Background(), nil)
	assert.Contains(t, out, "Error:")
	assert.Contains(t, out, "uploaded manually")
}

func TestLoadProspectsFromStore(t *testing.T) {
	store := newMemCampaignStore()
	store.prospects[7] = []persistence.Prospect{
		{ContactName: "Ann Abel", Email: "ann@acme.bio", Company: "Acme", Title: "CEO", Status: "high"},
	}
	m := newTestMailer(t, store, &fakeSheets{}, &fakeGMass{})

	out := m.loadProspects(map[string]any{"search_id": 7})
	assert.Contains(t, out, "1 prospects in search 7")
	assert.Contains(t, out, "ann@acme.bio")

	out = m.loadProspects(map[string]any{"search_id": 8})
	assert.Contains(t, out, "no saved contacts")
}

func TestLoadProspectsFromCSV(t *testing.T) {
	m := newTestMailer(t, newMemCampaignStore(), &fakeSheets{}, &fakeGMass{})
	out := m.loadProspects(map[string]any{"csv_text": "name,email\nAnn,ann@acme.bio\n"})
	assert.Contains(t, out, "Parsed 2 CSV rows")

	out = m.loadProspects(map[string]any{})
	assert.Contains(t, out, "Error:")
}

func TestSanitizeName(t *testing.T) {
	assert.Equal(t, "Spring_Launch_2026", sanitizeName("Spring Launch 2026"))
	assert.Equal(t, "ab-c_d", sanitizeName("a/b-c_d!"))
	assert.Equal(t, "campaign_"+fmt.Sprint(len("日本語")), sanitizeName("日本語"))
}
