package mailer

import (
	"outreach/pkg/tools"
)

const systemPrompt = "You are a B2B cold-email writer. Load the prospects, research each " +
	"company briefly, and draft one short personalized email per contact in their language. " +
	"Read the sender profile from the data directory first. When every prospect has a draft: " +
	"finalize_campaign, then upload_to_sheets, then send_gmass_campaign, in that order."

func (m *Mailer) catalogue() []tools.ToolDefinition {
	return []tools.ToolDefinition{
		{
			Name:        toolReadFile,
			Description: "Read a file from the data directory (sender profile, product notes, feedback).",
			InputSchema: tools.ObjectSchema(map[string]tools.Property{
				"filename": {Type: "string"},
			}, "filename"),
		},
		{
			Name:        toolSearchWeb,
			Description: "Search the web for company news and context to personalize an email.",
			InputSchema: tools.ObjectSchema(map[string]tools.Property{
				"query": {Type: "string"},
			}, "query"),
		},
		{
			Name:        toolFetchWebpage,
			Description: "Fetch a web page as readable text.",
			InputSchema: tools.ObjectSchema(map[string]tools.Property{
				"url": {Type: "string"},
			}, "url"),
		},
		{
			Name:        toolLoadProspects,
			Description: "Load the recipients: either a finder search from the database (search_id) or pasted CSV (csv_text).",
			InputSchema: tools.ObjectSchema(map[string]tools.Property{
				"search_id": {Type: "integer", Description: "Contact search id from the finder"},
				"csv_text":  {Type: "string", Description: "Raw CSV with a header row"},
			}),
		},
		{
			Name:        toolSaveDraft,
			Description: "Save one composed email. Re-saving the same email address replaces the draft.",
			InputSchema: tools.ObjectSchema(map[string]tools.Property{
				"contact_name": {Type: "string"},
				"email":        {Type: "string"},
				"company":      {Type: "string"},
				"title":        {Type: "string"},
				"product":      {Type: "string", Description: "Which product this pitch is for"},
				"language":     {Type: "string", Description: "ISO code, default en"},
				"subject":      {Type: "string"},
				"body":         {Type: "string", Description: "Plain text or simple HTML"},
				"framework":    {Type: "string", Description: "Copywriting framework used, e.g. AIDA"},
				"rationale":    {Type: "string", Description: "One line on why this angle"},
			}, "email", "subject", "body"),
		},
		{
			Name:        toolFinalizeCampaign,
			Description: "Freeze the drafts into a named campaign: writes the CSV and the database records. Run once, before upload.",
			InputSchema: tools.ObjectSchema(map[string]tools.Property{
				"campaign_name": {Type: "string"},
			}, "campaign_name"),
		},
		{
			Name:        toolUploadToSheets,
			Description: "Upload the finalized campaign CSV to Google Sheets. Requires finalize_campaign first.",
			InputSchema: tools.ObjectSchema(map[string]tools.Property{}),
		},
		{
			Name:        toolSendCampaign,
			Description: "Send the uploaded campaign through GMass. Requires upload_to_sheets first.",
			InputSchema: tools.ObjectSchema(map[string]tools.Property{}),
		},
	}
}
