// Package ingress consumes candidate uploads from RabbitMQ, runs them through
// the matching engine and publishes the resulting matches.
package ingress

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/jonathan/startup-matcher/internal/types"
)

// Queue and exchange names
const (
	UploadQueue    = "candidate_uploads"
	UpdateExchange = "match_updates"
)

// ErrInvalidMessage marks an upload that can never be processed.
var ErrInvalidMessage = errors.New("invalid upload message")

// UploadMessage is the body of one candidate upload.
type UploadMessage struct {
	Email   string   `json:"email" validate:"required,email"`
	Name    string   `json:"name"`
	Summary string   `json:"summary"`
	Skills  []string `json:"skills" validate:"dive,required"`
	Text    string   `json:"text"`
	// TextObjectKey points at the derived text in the blob bucket. It wins over Text.
	TextObjectKey string `json:"text_object_key"`
}

var validate = validator.New()

// DecodeUpload parses and validates an upload body.
func DecodeUpload(body []byte) (*UploadMessage, error) {
	var msg UploadMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	msg.Email = strings.ToLower(strings.TrimSpace(msg.Email))
	if err := validate.Struct(&msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	if msg.Summary == "" && len(msg.Skills) == 0 && msg.Text == "" && msg.TextObjectKey == "" {
		return nil, fmt.Errorf("%w: %s has no profile text", ErrInvalidMessage, msg.Email)
	}
	return &msg, nil
}

// Candidate converts the message into a record. derived is the resolved text.
func (m *UploadMessage) Candidate(derived string) *types.CandidateRecord {
	return &types.CandidateRecord{
		Email:       m.Email,
		Name:        strings.TrimSpace(m.Name),
		Summary:     strings.TrimSpace(m.Summary),
		Skills:      m.Skills,
		DerivedText: strings.TrimSpace(derived),
	}
}

// MatchUpdate is published after an upload has been processed.
type MatchUpdate struct {
	CandidateEmail string              `json:"candidate_email"`
	Status         string              `json:"status"`
	Embedded       bool                `json:"embedded"`
	Matches        []types.MatchRecord `json:"matches"`
	Message        string              `json:"message,omitempty"`
	Timestamp      time.Time           `json:"timestamp"`
}

// Update statuses
const (
	StatusMatched = "matched"
	StatusPending = "pending_embedding"
	StatusFailed  = "failed"
)

// RoutingKey is the topic an update for email is published under.
func RoutingKey(email string) string {
	return "candidate." + email
}
