package bite

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const maxBodySize = 64 << 10

// DefaultTimeout bounds a single decrypt request unless WithHTTPClient is used
const DefaultTimeout = 30 * time.Second

// Client requests claim decryption from a collaborator server
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// ClientOption configures a Client
type ClientOption func(*Client)

// WithHTTPClient sets the underlying HTTP client. Its Timeout replaces DefaultTimeout.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = client
	}
}

// NewClient creates a client for the server at baseURL
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Decrypt asks for the policy secret. A refusal wraps ErrConditionNotMet,
// transport failures wrap ErrUnavailable.
func (c *Client) Decrypt(ctx context.Context, conditionMet bool) (string, error) {
	payload, err := json.Marshal(DecryptRequest{ConditionMet: conditionMet})
	if err != nil {
		return "", fmt.Errorf("failed to marshal decrypt request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+DecryptPath, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return "", fmt.Errorf("%w: failed to read response: %w", ErrUnavailable, err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
		var decrypted DecryptResponse
		if err := json.Unmarshal(body, &decrypted); err != nil {
			return "", fmt.Errorf("invalid decrypt response: %w", err)
		}
		if decrypted.DecryptedSecret == "" {
			return "", ErrEmptySecret
		}
		return decrypted.DecryptedSecret, nil

	case http.StatusForbidden:
		return "", fmt.Errorf("%w: %s", ErrConditionNotMet, errorMessage(body))

	default:
		return "", fmt.Errorf("decrypt service returned %d: %s", resp.StatusCode, errorMessage(body))
	}
}

func errorMessage(body []byte) string {
	var e ErrorResponse
	if err := json.Unmarshal(body, &e); err == nil && e.Error != "" {
		return e.Error
	}
	return string(body)
}
