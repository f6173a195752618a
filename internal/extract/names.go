package extract

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// stopwords are connective words that show up next to role keywords but are
// never part of a person's name, plus the words of page furniture ("Meet the
// Team", "Contact").
var stopwords = map[string]bool{
	"from": true, "and": true, "the": true, "is": true, "as": true, "of": true,
	"by": true, "was": true, "are": true, "our": true, "co": true, "with": true,
	"for": true, "at": true, "in": true, "to": true, "we": true, "us": true,
	"his": true, "her": true, "their": true, "its": true, "a": true, "an": true,
	"on": true, "meet": true, "about": true, "team": true, "company": true,
	"inc": true, "llc": true, "ltd": true, "contact": true, "email": true,
}

// roleWords trigger a name search and can never be part of a name.
var roleWords = map[string]bool{
	"founder": true, "founders": true, "cofounder": true, "cofounders": true,
	"co-founder": true, "co-founders": true, "ceo": true, "cto": true,
	"coo": true, "cfo": true, "cpo": true, "chief": true, "executive": true,
	"technology": true, "technical": true, "operating": true, "officer": true,
	"president": true, "founded": true, "founding": true,
}

// rolePhrases are known titles; a candidate that is part of one is rejected.
var rolePhrases = []string{
	"chief executive officer", "chief technology officer", "chief operating officer",
	"chief financial officer", "chief product officer", "founding engineer",
	"co-founder", "cofounder", "founder",
}

// triggers are role words that start a name search.
var triggers = map[string]bool{
	"founder": true, "founders": true, "cofounder": true, "cofounders": true,
	"co-founder": true, "co-founders": true, "ceo": true, "cto": true,
	"coo": true, "officer": true, "founded": true,
}

// skipBefore are connectives allowed between a name and a role that follows it.
var skipBefore = map[string]bool{
	"is": true, "was": true, "the": true, "our": true, "as": true, "a": true,
	"an": true, "and": true, "&": true,
}

var tokenRe = regexp.MustCompile(`[\p{L}][\p{L}'’-]*|&`)

type token struct {
	text       string
	start, end int
}

func tokenize(text string) []token {
	locs := tokenRe.FindAllStringIndex(text, -1)
	tokens := make([]token, 0, len(locs))
	for _, loc := range locs {
		tokens = append(tokens, token{text: text[loc[0]:loc[1]], start: loc[0], end: loc[1]})
	}
	return tokens
}

// sameLine reports whether only spaces separate tokens a and b.
func sameLine(text string, a, b token) bool {
	gap := text[a.end:b.start]
	return gap != "" && strings.Trim(gap, " \t") == ""
}

// roleGap reports whether the text between a name and a role is only
// whitespace and light punctuation. Sentence ends are not crossed.
func roleGap(text string, a, b token) bool {
	gap := text[a.end:b.start]
	return strings.Trim(gap, " \t\r\n,:;|()–—-") == ""
}

// Names returns founder-name candidates found next to role keywords.
func (x *Extractor) Names(text string) []string {
	tokens := tokenize(text)
	seen := make(map[string]bool)
	var names []string
	add := func(a, b token) bool {
		if !sameLine(text, a, b) || !x.acceptName(a.text, b.text) {
			return false
		}
		name := a.text + " " + b.text
		if k := strings.ToLower(name); !seen[k] {
			seen[k] = true
			names = append(names, name)
		}
		return true
	}

	for i, t := range tokens {
		lower := strings.ToLower(t.text)
		if !triggers[lower] {
			continue
		}

		// Role followed by a name: "Co-founder Vlad Yatsenko", "founded by Nik Storonsky".
		j := i + 1
		if lower == "founded" && j < len(tokens) && strings.EqualFold(tokens[j].text, "by") {
			j++
		}
		for j+1 < len(tokens) && roleGap(text, tokens[j-1], tokens[j]) {
			if !add(tokens[j], tokens[j+1]) {
				break
			}
			// "Bret Taylor and Clay Bavor"
			if j+4 < len(tokens) && isAnd(tokens[j+2].text) {
				j += 3
				continue
			}
			break
		}

		// Name followed by a role: "Nik Storonsky, CEO", "Bret Taylor is the co-founder".
		k := i - 1
		for k >= 0 && skipBefore[strings.ToLower(tokens[k].text)] && i-k <= 3 {
			k--
		}
		for k >= 1 && roleGap(text, tokens[k], tokens[k+1]) {
			if !add(tokens[k-1], tokens[k]) {
				break
			}
			// "Nik Storonsky and Vlad Yatsenko, co-founders"
			if k-3 >= 0 && isAnd(tokens[k-2].text) {
				k -= 3
				continue
			}
			break
		}
	}
	return names
}

func isAnd(s string) bool {
	return s == "&" || strings.EqualFold(s, "and")
}

// acceptName applies the false-positive rules to a two-token candidate.
func (x *Extractor) acceptName(first, last string) bool {
	for _, tok := range []string{first, last} {
		r, _ := utf8.DecodeRuneInString(tok)
		if !unicode.IsUpper(r) || utf8.RuneCountInString(tok) < 2 {
			return false
		}
		if strings.ToUpper(tok) == tok {
			// acronyms such as "US" or "AI"
			return false
		}
		lower := strings.ToLower(tok)
		if stopwords[lower] || roleWords[lower] {
			return false
		}
	}

	// "Sierra Technologies, founder" names the company, but "Nick Gross" of
	// Gross Ventures is a person.
	candidate := strings.ToLower(first + " " + last)
	if x.companyLower != "" && strings.Contains(x.companyLower, candidate) {
		return false
	}
	for _, phrase := range rolePhrases {
		if strings.Contains(phrase, candidate) {
			return false
		}
	}
	return true
}

// AcceptName reports whether a full name reported by another source passes the
// same false-positive rules as names found next to role keywords.
func (x *Extractor) AcceptName(name string) bool {
	parts := strings.Fields(name)
	if len(parts) < 2 {
		return false
	}
	return x.acceptName(parts[0], parts[len(parts)-1])
}
