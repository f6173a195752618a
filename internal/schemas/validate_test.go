package schemas

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFoundersSchema_IsValidJSON(t *testing.T) {
	var v map[string]any
	require.NoError(t, json.Unmarshal([]byte(Founders()), &v))
	assert.Equal(t, "Founders", v["title"])
}

func TestValidateFounders(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		wantErr bool
	}{
		{
			name: "valid",
			doc:  `{"founders":[{"name":"Vlad Yatsenko","role":"CTO","email":"vlad@revolut.com"}],"funding_stage":"Seed"}`,
		},
		{
			name: "empty list",
			doc:  `{"founders":[]}`,
		},
		{
			name:    "missing founders",
			doc:     `{"funding_stage":"Seed"}`,
			wantErr: true,
		},
		{
			name:    "name too short",
			doc:     `{"founders":[{"name":"Al"}]}`,
			wantErr: true,
		},
		{
			name:    "unexpected field",
			doc:     `{"founders":[{"name":"Bret Taylor","age":44}]}`,
			wantErr: true,
		},
		{
			name:    "wrong type",
			doc:     `{"founders":"Bret Taylor"}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateFounders(tt.doc)
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			var validationErr *ValidationError
			require.True(t, errors.As(err, &validationErr), "error should be ValidationError type")
			assert.NotEmpty(t, validationErr.Errors)
			assert.Contains(t, err.Error(), "validation failed")
		})
	}
}

func TestValidateFounders_MalformedJSON(t *testing.T) {
	err := ValidateFounders("{ invalid json }")
	require.Error(t, err)

	var loadErr *SchemaLoadError
	require.ErrorAs(t, err, &loadErr)
	assert.Equal(t, "founders", loadErr.Name)
}

func TestValidateJSONString(t *testing.T) {
	schema := `{"type":"object","required":["email"],"properties":{"email":{"type":"string"}}}`
	assert.NoError(t, ValidateJSONString(schema, `{"email":"a@b.io"}`))

	err := ValidateJSONString(schema, `{}`)
	var validationErr *ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.Equal(t, "(root)", validationErr.Errors[0].Field)
}
