package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jonathan/startup-matcher/internal/schemas"
)

// maxInputChars keeps prompts for very long pages inside the model's budget.
const maxInputChars = 24000

// ExtractionSchema defines the structure for LLM-based content extraction.
type ExtractionSchema struct {
	Name        string
	Description string // System prompt preamble describing the extraction task
	Fields      []SchemaField
}

// SchemaField defines a single field in the extraction output.
type SchemaField struct {
	Name        string // JSON field name
	Type        string // Type hint shown to the model
	Description string
	Required    bool
}

// BuildExtractionPrompt constructs the LLM prompt from schema and input text.
func BuildExtractionPrompt(schema ExtractionSchema, inputText string) string {
	var sb strings.Builder

	sb.WriteString(schema.Description)
	sb.WriteString("\n\n")

	sb.WriteString("Return ONLY valid JSON matching this exact structure:\n{\n")
	for i, field := range schema.Fields {
		typeHint := field.Type
		if typeHint == "" {
			typeHint = "string"
		}
		requiredHint := ""
		if field.Required {
			requiredHint = " (required)"
		}
		sb.WriteString(fmt.Sprintf("  \"%s\": %s%s", field.Name, typeHint, requiredHint))
		if field.Description != "" {
			sb.WriteString(fmt.Sprintf(" // %s", field.Description))
		}
		if i < len(schema.Fields)-1 {
			sb.WriteString(",")
		}
		sb.WriteString("\n")
	}
	sb.WriteString("}\n\n")

	sb.WriteString("IMPORTANT:\n")
	sb.WriteString("- Only report people and addresses that appear in the text. Never guess an email address.\n")
	sb.WriteString("- Return ONLY the JSON object, no markdown, no explanation, no code blocks.\n\n")

	sb.WriteString("Input text:\n\"\"\"\n")
	sb.WriteString(inputText)
	sb.WriteString("\n\"\"\"\n")

	return sb.String()
}

// FoundersSchema returns the extraction schema for a company's founders.
func FoundersSchema(company string) ExtractionSchema {
	return ExtractionSchema{
		Name: "Founders",
		Description: fmt.Sprintf(`You read company web pages and list the founders of %s.
Include a person only if the text names them as a founder, co-founder, CEO, CTO or COO.`, company),
		Fields: []SchemaField{
			{
				Name:        "founders",
				Type:        `[{"name": "string", "role": "string", "email": "string", "linkedin": "string"}]`,
				Description: "Full names exactly as written; email and linkedin only when present in the text",
				Required:    true,
			},
			{
				Name:        "funding_stage",
				Type:        `"string"`,
				Description: "Latest funding round if mentioned, e.g. Seed or Series A",
			},
			{
				Name:        "funding_amount",
				Type:        `"string"`,
				Description: "Amount raised in that round, e.g. $4.5M",
			},
		},
	}
}

// Founder is one person reported by the model.
type Founder struct {
	Name     string `json:"name"`
	Role     string `json:"role,omitempty"`
	Email    string `json:"email,omitempty"`
	LinkedIn string `json:"linkedin,omitempty"`
}

// Founders is the validated model output for one page.
type Founders struct {
	Founders      []Founder `json:"founders"`
	FundingStage  string    `json:"funding_stage,omitempty"`
	FundingAmount string    `json:"funding_amount,omitempty"`
}

// FounderExtractor asks the model for founder details in page text.
type FounderExtractor struct {
	client Client
	tier   ModelTier
}

// NewFounderExtractor creates an extractor using the lite model tier.
func NewFounderExtractor(client Client) *FounderExtractor {
	return &FounderExtractor{client: client, tier: TierLite}
}

// Extract returns the founders the model finds in text. Output that does not
// match the founders schema is rejected.
func (e *FounderExtractor) Extract(ctx context.Context, company, text string) (*Founders, error) {
	if len(text) > maxInputChars {
		text = text[:maxInputChars]
	}
	prompt := BuildExtractionPrompt(FoundersSchema(company), text)

	raw, err := e.client.GenerateJSON(ctx, prompt, e.tier)
	if err != nil {
		return nil, fmt.Errorf("failed to extract founders: %w", err)
	}
	if err := schemas.ValidateFounders(raw); err != nil {
		return nil, fmt.Errorf("model output rejected: %w", err)
	}

	var out Founders
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("failed to decode founders: %w", err)
	}
	return &out, nil
}
