package finder

import (
	"outreach/pkg/tools"
)

// catalogue returns the finder's tool definitions. Keep descriptions short
// and directive; the model reads them every turn.
func catalogue() []tools.ToolDefinition {
	return []tools.ToolDefinition{
		{
			Name:        toolHunterDomainSearch,
			Description: "Bulk-search known email addresses at a company domain. Filters by the requested titles, verifies shaky addresses, and SAVES everything automatically. Use this first for every company.",
			InputSchema: tools.ObjectSchema(map[string]tools.Property{
				"domain":        {Type: "string", Description: "Company domain, e.g. acme.com"},
				"company_name":  {Type: "string", Description: "Canonical company name for saving"},
				"target_titles": {Type: "array", Description: "Job titles to keep, e.g. [\"VP Business Development\", \"CSO\"]", Items: &tools.Property{Type: "string"}},
				"limit":         {Type: "integer", Description: "Max results per call (max 100)"},
				"offset":        {Type: "integer", Description: "Skip first N results for pagination"},
				"department":    {Type: "string", Description: "Optional hunter department filter"},
				"seniority":     {Type: "string", Description: "Optional hunter seniority filter"},
			}, "domain"),
		},
		{
			Name:        toolHunterFindEmail,
			Description: "Find one person's email from their name and company domain.",
			InputSchema: tools.ObjectSchema(map[string]tools.Property{
				"domain":     {Type: "string"},
				"first_name": {Type: "string"},
				"last_name":  {Type: "string"},
			}, "domain", "first_name", "last_name"),
		},
		{
			Name:        toolHunterVerifyEmail,
			Description: "Check deliverability of one email address.",
			InputSchema: tools.ObjectSchema(map[string]tools.Property{
				"email": {Type: "string"},
			}, "email"),
		},
		{
			Name:        toolFindymailSearch,
			Description: "Find a person's verified email by full name and company domain. Cheaper than hunter for single lookups; only charges on hits.",
			InputSchema: tools.ObjectSchema(map[string]tools.Property{
				"name":   {Type: "string", Description: "Full name, e.g. Jane Smith"},
				"domain": {Type: "string", Description: "Company domain"},
			}, "name", "domain"),
		},
		{
			Name:        toolFindymailLinkedIn,
			Description: "Find a person's work email from their LinkedIn profile URL.",
			InputSchema: tools.ObjectSchema(map[string]tools.Property{
				"linkedin_url": {Type: "string"},
			}, "linkedin_url"),
		},
		{
			Name:        toolWhoisLookup,
			Description: "Look up domain registration contacts. Useful for small companies with no presence in the email databases; often privacy-redacted.",
			InputSchema: tools.ObjectSchema(map[string]tools.Property{
				"domain": {Type: "string"},
			}, "domain"),
		},
		{
			Name:        toolSearchWeb,
			Description: "Search the web. Use to find company domains, team pages and LinkedIn profiles.",
			InputSchema: tools.ObjectSchema(map[string]tools.Property{
				"query":       {Type: "string"},
				"max_results": {Type: "integer", Description: "Default 5"},
			}, "query"),
		},
		{
			Name:        toolFetchWebpage,
			Description: "Fetch a web page as readable text.",
			InputSchema: tools.ObjectSchema(map[string]tools.Property{
				"url":       {Type: "string"},
				"max_chars": {Type: "integer", Description: "Truncate to this many characters (default 20000)"},
			}, "url"),
		},
		{
			Name:        toolReadFile,
			Description: "Read a file from the data directory (sender profile, feedback notes).",
			InputSchema: tools.ObjectSchema(map[string]tools.Property{
				"filename": {Type: "string"},
			}, "filename"),
		},
		{
			Name:        toolAddContacts,
			Description: "Save contacts you found through research. Do NOT re-save contacts that hunter_domain_search already saved.",
			InputSchema: tools.ObjectSchema(map[string]tools.Property{
				"contacts": {Type: "array", Items: &tools.Property{
					Type: "object",
					Properties: map[string]tools.Property{
						"name":    {Type: "string", Description: "Person's full name"},
						"email":   {Type: "string", Description: "Email address; empty if unknown"},
						"company": {Type: "string"},
						"title":   {Type: "string"},
						"source":  {Type: "string", Description: "Where this contact came from"},
					},
				}},
			}, "contacts"),
		},
	}
}
