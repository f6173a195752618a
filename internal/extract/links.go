package extract

import (
	"regexp"
	"strings"
)

var linkedInRe = regexp.MustCompile(`(?i)(?:https?://)?(?:[a-z]{2,3}\.)?linkedin\.com/in/([A-Za-z0-9_%-]+)`)

// LinkedInProfiles returns normalized profile URLs found in text.
func LinkedInProfiles(text string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, m := range linkedInRe.FindAllStringSubmatch(text, -1) {
		url := "https://www.linkedin.com/in/" + strings.ToLower(m[1])
		if seen[url] {
			continue
		}
		seen[url] = true
		out = append(out, url)
	}
	return out
}

// NameFromProfileTitle pulls the person's name out of a professional-network
// result title such as "Vlad Yatsenko - Co-founder & CTO - Revolut | LinkedIn".
func (x *Extractor) NameFromProfileTitle(title string) string {
	head := title
	for _, sep := range []string{" - ", " – ", " | ", " — "} {
		if i := strings.Index(head, sep); i >= 0 {
			head = head[:i]
		}
	}
	parts := strings.Fields(head)
	if len(parts) < 2 {
		return ""
	}
	first, last := parts[0], parts[len(parts)-1]
	if !x.acceptName(first, last) {
		return ""
	}
	return first + " " + last
}
