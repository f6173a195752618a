package ingestion

import (
	"regexp"
	"strings"
)

var (
	spaceRun = regexp.MustCompile(`[ \t]+`)
	blankRun = regexp.MustCompile(`\n{3,}`)
)

// CleanText normalizes line endings and whitespace in a free-text cell while
// keeping paragraph breaks.
func CleanText(content string) string {
	if content == "" {
		return ""
	}
	content = strings.ReplaceAll(content, "\r\n", "\n")
	content = strings.ReplaceAll(content, "\r", "\n")

	lines := strings.Split(content, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(spaceRun.ReplaceAllString(line, " "))
	}
	return strings.TrimSpace(blankRun.ReplaceAllString(strings.Join(lines, "\n"), "\n\n"))
}

// CompanySlug returns the last path segment of a YC company link such as
// https://www.ycombinator.com/companies/revolut.
func CompanySlug(link string) string {
	link = strings.TrimSpace(link)
	i := strings.Index(link, "/companies/")
	if i < 0 {
		return ""
	}
	slug := link[i+len("/companies/"):]
	if j := strings.IndexAny(slug, "/?#"); j >= 0 {
		slug = slug[:j]
	}
	return strings.ToLower(slug)
}
