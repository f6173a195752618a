package extract

import (
	"strings"
)

// Extractor pulls entities out of text written about one company.
type Extractor struct {
	companyLower string
	domain       string
}

// New creates an extractor for the named company. domain, when not empty, is
// the company's bare website domain and restricts which emails are kept.
func New(company, domain string) *Extractor {
	return &Extractor{
		companyLower: strings.ToLower(strings.TrimSpace(company)),
		domain:       strings.ToLower(domain),
	}
}

// Domain returns the domain the extractor filters emails by.
func (x *Extractor) Domain() string { return x.domain }

// Extract returns the entities of kind found in text. Emails are only kept
// when they can be associated with a name found in text or one of known.
// An empty result is not an error.
func (x *Extractor) Extract(text string, kind Kind, src Source, known ...string) []Entity {
	switch kind {
	case KindName:
		return entities(x.Names(text), KindName, src)
	case KindEmail:
		names := append(x.Names(text), known...)
		var emails []string
		for _, email := range Emails(text) {
			if Associated(email, names, text, x.domain) {
				emails = append(emails, email)
			}
		}
		return entities(emails, KindEmail, src)
	case KindLinkedIn:
		return entities(LinkedInProfiles(text), KindLinkedIn, src)
	}
	return nil
}

// ExtractAll runs every kind over text.
func (x *Extractor) ExtractAll(text string, src Source, known ...string) []Entity {
	var out []Entity
	for _, kind := range []Kind{KindName, KindEmail, KindLinkedIn} {
		out = append(out, x.Extract(text, kind, src, known...)...)
	}
	return Merge(out)
}

func entities(values []string, kind Kind, src Source) []Entity {
	out := make([]Entity, 0, len(values))
	for _, v := range values {
		out = append(out, NewEntity(v, kind, src))
	}
	return Merge(out)
}
