package extract

import (
	"regexp"
	"strings"
)

var emailRe = regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9-]+(?:\.[A-Za-z0-9-]+)*\.[A-Za-z]{2,}`)

// assetSuffixes catch image names such as logo@2x.png that look like addresses.
var assetSuffixes = []string{".png", ".jpg", ".jpeg", ".gif", ".svg", ".webp", ".css", ".js"}

var placeholderDomains = map[string]bool{
	"example.com": true, "example.org": true, "domain.com": true, "email.com": true,
	"yourcompany.com": true, "company.com": true, "sentry.io": true,
	"sentry-next.wixpress.com": true, "wixpress.com": true, "test.com": true,
}

var genericMailboxes = map[string]bool{
	"hello": true, "hi": true, "info": true, "contact": true, "team": true,
	"founders": true, "support": true, "help": true, "press": true, "media": true,
	"jobs": true, "careers": true, "hr": true, "sales": true, "admin": true,
	"office": true, "privacy": true, "legal": true, "security": true,
	"noreply": true, "no-reply": true, "marketing": true, "partners": true,
	"investors": true, "billing": true, "feedback": true, "general": true,
}

// proximityWindow is how close, in bytes, an address must appear to a name to
// be associated with it when the local part does not spell the name.
const proximityWindow = 250

// Emails returns the addresses in text, lowercased, deduplicated, in order of
// first appearance.
func Emails(text string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, m := range emailRe.FindAllString(text, -1) {
		email := strings.ToLower(strings.TrimRight(m, "."))
		if seen[email] || isNoise(email) {
			continue
		}
		seen[email] = true
		out = append(out, email)
	}
	return out
}

func isNoise(email string) bool {
	for _, suffix := range assetSuffixes {
		if strings.HasSuffix(email, suffix) {
			return true
		}
	}
	return placeholderDomains[EmailDomain(email)]
}

// EmailDomain returns the part after the @, or "".
func EmailDomain(email string) string {
	at := strings.LastIndexByte(email, '@')
	if at < 0 {
		return ""
	}
	return strings.ToLower(email[at+1:])
}

// LocalPart returns the part before the @.
func LocalPart(email string) string {
	at := strings.LastIndexByte(email, '@')
	if at < 0 {
		return email
	}
	return strings.ToLower(email[:at])
}

// IsGenericMailbox reports whether the address is a shared inbox such as hello@.
func IsGenericMailbox(email string) bool {
	local := LocalPart(email)
	if i := strings.IndexByte(local, '+'); i >= 0 {
		local = local[:i]
	}
	return genericMailboxes[local]
}

// SameDomain reports whether the address belongs to domain or one of its subdomains.
func SameDomain(email, domain string) bool {
	d := EmailDomain(email)
	domain = strings.ToLower(domain)
	return d == domain || strings.HasSuffix(d, "."+domain)
}

// Associated reports whether email can be attributed to one of names. The
// address must not be a shared inbox, must sit on domain when one is known,
// and must either spell one of the names or appear close to one in text.
func Associated(email string, names []string, text, domain string) bool {
	if IsGenericMailbox(email) {
		return false
	}
	if domain != "" && !SameDomain(email, domain) {
		return false
	}
	for _, name := range names {
		if MatchesName(email, name) {
			return true
		}
	}
	return nearName(strings.ToLower(text), strings.ToLower(email), names)
}

func nearName(text, email string, names []string) bool {
	for _, at := range allIndexes(text, email) {
		lo := max(0, at-proximityWindow)
		hi := min(len(text), at+len(email)+proximityWindow)
		window := text[lo:hi]
		for _, name := range names {
			if name != "" && strings.Contains(window, strings.ToLower(name)) {
				return true
			}
		}
	}
	return false
}

func allIndexes(s, sub string) []int {
	var out []int
	for off := 0; ; {
		i := strings.Index(s[off:], sub)
		if i < 0 {
			return out
		}
		out = append(out, off+i)
		off += i + len(sub)
	}
}
