package extract

import (
	"regexp"
	"strings"
)

// Funding is a funding round mentioned in text.
type Funding struct {
	Stage  string `json:"stage"`
	Amount string `json:"amount"`
}

const amountPattern = `\$\s?[\d.,]+\s*(?:thousand|million|billion|[kmb]\b)?`

var fundingPatterns = []struct {
	re                  *regexp.Regexp
	amountIdx, stageIdx int
}{
	// "raised $4.5M in a seed round"
	{regexp.MustCompile(`(?i)raised\s+(` + amountPattern + `)\s+in\s+(?:an?\s+)?((?:pre-?)?seed|series\s+[a-f])`), 1, 2},
	// "seed round of $2M"
	{regexp.MustCompile(`(?i)((?:pre-?)?seed|series\s+[a-f])\s+(?:funding\s+)?round\s+of\s+(` + amountPattern + `)`), 2, 1},
	// "$10 million funding in Series A"
	{regexp.MustCompile(`(?i)(` + amountPattern + `)\s+(?:in\s+)?funding\s+in\s+(?:an?\s+|its\s+)?((?:pre-?)?seed|series\s+[a-f])`), 1, 2},
}

// ParseFunding returns the first funding round described in text, or nil.
func ParseFunding(text string) *Funding {
	for _, p := range fundingPatterns {
		m := p.re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		return &Funding{
			Stage:  normalizeStage(m[p.stageIdx]),
			Amount: strings.Join(strings.Fields(m[p.amountIdx]), " "),
		}
	}
	return nil
}

func normalizeStage(s string) string {
	lower := strings.ToLower(strings.Join(strings.Fields(s), " "))
	switch {
	case lower == "seed":
		return "Seed"
	case strings.HasPrefix(lower, "pre"):
		return "Pre-Seed"
	case strings.HasPrefix(lower, "series "):
		return "Series " + strings.ToUpper(lower[len("series "):])
	}
	return s
}
