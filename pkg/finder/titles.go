package finder

import (
	"strings"
)

// titleExpansions maps common abbreviations to their long forms. Expansion is
// applied to both the candidate title and the requested titles, so "SVP BD"
// and "Senior Vice President Business Development" land on the same words.
var titleExpansions = map[string]string{
	"r&d":   "research and development",
	"bd":    "business development",
	"cso":   "chief scientific officer",
	"cmo":   "chief medical officer",
	"cto":   "chief technology officer",
	"cbo":   "chief business officer",
	"vp":    "vice president",
	"svp":   "senior vice president",
	"evp":   "executive vice president",
	"dir":   "director",
	"sr":    "senior",
	"assoc": "associate",
	"mgr":   "manager",
	"hd":    "head",
	"hr":    "human resources",
}

// excludedDepartments are functions that never buy: any of these appearing in
// an expanded title disqualifies it regardless of requested titles.
var excludedDepartments = []string{
	"finance", "accounting", "accounts payable", "accounts receivable",
	"payroll", "tax", "audit", "treasury",
	"legal", "compliance", "paralegal",
	"human resources", "recruiting", "recruiter", "talent acquisition",
	"administrative assistant", "office manager", "receptionist",
	"facilities", "procurement", "purchasing",
}

// titleStopwords are dropped during keyword extraction.
var titleStopwords = map[string]bool{
	"of": true, "the": true, "and": true, "a": true, "an": true,
	"in": true, "for": true, "at": true, "&": true,
}

// expandTitle lowercases a title and rewrites known abbreviations word by
// word. Punctuation that glues words together is stripped first.
func expandTitle(title string) string {
	title = strings.ToLower(title)
	words := strings.Fields(title)
	out := make([]string, 0, len(words))
	for _, w := range words {
		trimmed := strings.Trim(w, ".,;:()")
		if long, ok := titleExpansions[trimmed]; ok {
			out = append(out, long)
			continue
		}
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return strings.Join(out, " ")
}

// titleKeywords extracts the meaningful words of an expanded title.
func titleKeywords(expanded string) map[string]bool {
	keywords := make(map[string]bool)
	for _, w := range strings.Fields(expanded) {
		w = strings.Trim(w, ".,;:()")
		if len(w) > 1 && !titleStopwords[w] {
			keywords[w] = true
		}
	}
	return keywords
}

// titleMatches reports whether a contact's title is relevant to the requested
// titles. No requested titles means everything passes the relevance check,
// but the department exclusions still apply.
func titleMatches(title string, targetTitles []string) bool {
	expanded := expandTitle(title)
	for _, dept := range excludedDepartments {
		if strings.Contains(expanded, dept) {
			return false
		}
	}
	if len(targetTitles) == 0 {
		return true
	}

	words := titleKeywords(expanded)
	for _, target := range targetTitles {
		targetExpanded := expandTitle(target)
		for kw := range titleKeywords(targetExpanded) {
			if words[kw] {
				return true
			}
			// Longer keywords also match as substrings, so "biotech"
			// catches "biotechnology".
			if len(kw) > 3 && strings.Contains(expanded, kw) {
				return true
			}
		}
	}
	return false
}
