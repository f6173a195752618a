// Package verify checks whether a guessed email address accepts mail, using an
// external address-validation API.
package verify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/go-playground/validator/v10"
)

// DefaultTimeout bounds one verification request.
const DefaultTimeout = 10 * time.Second

// ErrValidationFailed is returned when an address does not verify. The service
// being unreachable also counts as a failed validation.
var ErrValidationFailed = errors.New("email validation failed")

// Status is the verdict returned by the validation service.
type Status string

// Verdicts
const (
	StatusValid     Status = "valid"
	StatusInvalid   Status = "invalid"
	StatusUnknown   Status = "unknown"
	StatusAcceptAll Status = "accept_all"
)

// Verifier confirms that an address exists. Verify returns nil only for a
// positively verified address.
type Verifier interface {
	Verify(ctx context.Context, email string) error
}

type response struct {
	Status Status `json:"status" validate:"required,oneof=valid invalid unknown accept_all"`
}

// HTTPVerifier calls GET {endpoint}?email=...&api_key=... and expects
// {"status": "..."} back.
type HTTPVerifier struct {
	Endpoint string
	APIKey   string
	Timeout  time.Duration
	Client   *http.Client
	Logger   *slog.Logger

	validate *validator.Validate
}

// NewHTTPVerifier creates a verifier for endpoint.
func NewHTTPVerifier(endpoint, apiKey string) *HTTPVerifier {
	return &HTTPVerifier{
		Endpoint: endpoint,
		APIKey:   apiKey,
		Timeout:  DefaultTimeout,
		Client:   http.DefaultClient,
		Logger:   slog.Default().With("component", "verify"),
		validate: validator.New(),
	}
}

// Verify reports whether email is deliverable. Anything but a "valid" verdict,
// including accept-all domains, is an ErrValidationFailed.
func (v *HTTPVerifier) Verify(ctx context.Context, email string) error {
	ctx, cancel := context.WithTimeout(ctx, v.Timeout)
	defer cancel()

	u, err := url.Parse(v.Endpoint)
	if err != nil {
		return fmt.Errorf("%w: bad endpoint: %v", ErrValidationFailed, err)
	}
	q := u.Query()
	q.Set("email", email)
	q.Set("api_key", v.APIKey)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrValidationFailed, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := v.Client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrValidationFailed, email, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: %s: service returned HTTP %d", ErrValidationFailed, email, resp.StatusCode)
	}

	var body response
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&body); err != nil {
		return fmt.Errorf("%w: %s: failed to decode response: %v", ErrValidationFailed, email, err)
	}
	if err := v.validate.Struct(body); err != nil {
		return fmt.Errorf("%w: %s: unexpected response: %v", ErrValidationFailed, email, err)
	}

	v.Logger.Debug("verified address", "email", email, "status", body.Status)
	if body.Status != StatusValid {
		return fmt.Errorf("%w: %s is %s", ErrValidationFailed, email, body.Status)
	}
	return nil
}

var _ Verifier = (*HTTPVerifier)(nil)
