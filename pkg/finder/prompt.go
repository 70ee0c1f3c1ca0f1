package finder

import (
	"fmt"
	"strings"
)

// workflowText is the per-company recipe restated in continuation and reset
// messages so the model does not drift from the intended tool order.
const workflowText = "For each remaining company: (1) find its domain with search_web if unknown, " +
	"(2) hunter_domain_search with the requested titles, " +
	"(3) if that finds nothing, search_web for the leadership team and use " +
	"findymail_search or hunter_find_email per person, " +
	"(4) whois_lookup as a last resort for tiny companies, " +
	"(5) save anything found yourself with add_contacts, then move on."

func systemPrompt(companies []string) string {
	var b strings.Builder
	b.WriteString("You are a B2B contact researcher. Find decision-maker contacts " +
		"(name, title, email) at each target company and make sure every one of them is saved.\n\n")
	fmt.Fprintf(&b, "Target companies (%d):\n", len(companies))
	for _, c := range companies {
		fmt.Fprintf(&b, "- %s\n", c)
	}
	b.WriteString("\n" + workflowText + "\n\n")
	b.WriteString("Rules:\n" +
		"- hunter_domain_search saves its findings itself; never re-save those with add_contacts.\n" +
		"- Prefer named people over generic inboxes like info@.\n" +
		"- Work through every company before polishing results for any single one.\n" +
		"- When all companies are attempted, reply with a short summary per company.")
	return b.String()
}
