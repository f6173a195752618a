package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeDomain(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"https://www.revolut.com/about", "revolut.com"},
		{"http://Sierra.AI", "sierra.ai"},
		{"revolut.com", "revolut.com"},
		{"www.example.org/", "example.org"},
		{"", ""},
		{"not a domain", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeDomain(tt.input))
		})
	}
}

func TestSplitList(t *testing.T) {
	assert.Nil(t, SplitList(""))
	assert.Nil(t, SplitList("   "))
	assert.Equal(t, []string{"Nik Storonsky", "Vlad Yatsenko"}, SplitList("Nik Storonsky; Vlad Yatsenko"))
	assert.Equal(t, []string{"a", "b"}, SplitList("a;;b;"))
}

func TestJoinList(t *testing.T) {
	assert.Equal(t, "", JoinList(nil))
	assert.Equal(t, "a; b", JoinList([]string{"a", "b"}))
	assert.Equal(t, []string{"a", "b"}, SplitList(JoinList([]string{"a", "b"})))
}

func TestStartupRecord_EmbeddingText(t *testing.T) {
	rec := StartupRecord{
		Name:          "Revolut",
		Industry:      "Fintech",
		FundingStage:  "Series A",
		FundingAmount: "$10M",
		Description:   "Global banking app",
	}
	text := rec.EmbeddingText()
	assert.Contains(t, text, "Revolut")
	assert.Contains(t, text, "Industry: Fintech")
	assert.Contains(t, text, "Funding: Series A $10M")
	assert.Contains(t, text, "Global banking app")
	assert.NotContains(t, text, "Location")
}

func TestCandidateRecord_EmbeddingText(t *testing.T) {
	c := CandidateRecord{
		Email:   "ada@example.com",
		Summary: "Backend engineer",
		Skills:  []string{"Go", "Postgres"},
	}
	assert.Equal(t, "Backend engineer\nSkills: Go, Postgres", c.EmbeddingText())

	empty := CandidateRecord{Email: "x@example.com"}
	assert.Equal(t, "", empty.EmbeddingText())
}
