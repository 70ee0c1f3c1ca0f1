package clients

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Whois resolves domain registration contacts through the public RDAP
// bootstrap service. Free, keyless, and often redacted by privacy proxies.
type Whois struct {
	baseURL    string
	httpClient *http.Client
}

// NewWhois creates an RDAP lookup client.
func NewWhois() *Whois {
	return &Whois{
		baseURL:    "https://rdap.org",
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// WhoisResult is the filtered outcome of a domain lookup.
type WhoisResult struct {
	Domain           string
	Registrar        string
	Emails           []string
	PrivacyProtected bool
}

// Infrastructure mailboxes that never reach a human decision maker.
var whoisSkipPrefixes = []string{
	"abuse@", "noreply@", "no-reply@", "hostmaster@",
	"domaincontrol@", "dnsadmin@", "postmaster@",
}

// Substrings that mark a privacy-proxy address or registrant.
var whoisPrivacyIndicators = []string{
	"whoisguard", "privacyguard", "proxy", "redacted", "withheld",
	"contactprivacy", "whoisprivacy", "domainprivacy", "identityprotect",
	"privacy-protect", "domainsbyproxy", "whoisprotection",
}

type rdapEntity struct {
	Roles      []string     `json:"roles"`
	VCardArray []any        `json:"vcardArray"`
	Entities   []rdapEntity `json:"entities"`
}

type rdapResponse struct {
	LDHName  string       `json:"ldhName"`
	Entities []rdapEntity `json:"entities"`
}

// Lookup fetches the RDAP record for a domain and extracts useful contact
// emails, dropping infrastructure and privacy-proxy addresses.
func (w *Whois) Lookup(ctx context.Context, domain string) (*WhoisResult, error) {
	domain = strings.TrimSpace(strings.ToLower(domain))
	if domain == "" {
		return nil, fmt.Errorf("domain is required")
	}

	var parsed rdapResponse
	if err := getJSON(ctx, w.httpClient, w.baseURL+"/domain/"+domain, nil, &parsed); err != nil {
		return nil, fmt.Errorf("rdap lookup %s: %w", domain, err)
	}

	result := &WhoisResult{Domain: domain}
	seen := map[string]bool{}
	var walk func(entities []rdapEntity)
	walk = func(entities []rdapEntity) {
		for i := range entities {
			e := &entities[i]
			for _, role := range e.Roles {
				if role == "registrar" {
					if name := vcardValue(e.VCardArray, "fn"); name != "" {
						result.Registrar = name
					}
				}
			}
			if email := vcardValue(e.VCardArray, "email"); email != "" {
				lower := strings.ToLower(email)
				switch {
				case hasAnyPrefix(lower, whoisSkipPrefixes):
				case containsAny(lower, whoisPrivacyIndicators):
					result.PrivacyProtected = true
				case !seen[lower]:
					seen[lower] = true
					result.Emails = append(result.Emails, email)
				}
			}
			if name := vcardValue(e.VCardArray, "fn"); containsAny(strings.ToLower(name), whoisPrivacyIndicators) {
				result.PrivacyProtected = true
			}
			walk(e.Entities)
		}
	}
	walk(parsed.Entities)
	return result, nil
}

// vcardValue digs a property value out of the jCard structure:
// ["vcard", [["email", {}, "text", "a@b.com"], ...]].
func vcardValue(vcard []any, property string) string {
	if len(vcard) < 2 {
		return ""
	}
	props, ok := vcard[1].([]any)
	if !ok {
		return ""
	}
	for _, p := range props {
		fields, ok := p.([]any)
		if !ok || len(fields) < 4 {
			continue
		}
		name, _ := fields[0].(string)
		if name != property {
			continue
		}
		if v, ok := fields[3].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if sub != "" && strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
