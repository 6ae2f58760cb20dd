package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	recoverai "github.com/Pratik-Shirodkar/RecoverAI"
)

// maxBodySize caps gateway replies read into memory
const maxBodySize = 1 << 20

// Client is a recoverai.Transport that speaks to a gateway over HTTP
type Client struct {
	baseURL      string
	resourcePath string
	paymentPath  string
	service      string
	httpClient   *http.Client
}

// ClientOption configures a Client
type ClientOption func(*Client)

// WithHTTPClient sets the underlying HTTP client
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithResourcePath sets the path of the gated resource
func WithResourcePath(path string) ClientOption {
	return func(c *Client) {
		c.resourcePath = path
	}
}

// WithService targets a secondary resource of the gateway: it is fetched from
// "/<name>" and payments name it in PaymentRequest.Service.
func WithService(name string) ClientOption {
	return func(c *Client) {
		c.resourcePath = "/" + strings.TrimLeft(name, "/")
		c.service = strings.TrimLeft(name, "/")
	}
}

// WithPaymentPath sets the path of the payment endpoint
func WithPaymentPath(path string) ClientOption {
	return func(c *Client) {
		c.paymentPath = path
	}
}

// NewClient creates a transport for the gateway at baseURL
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		resourcePath: DefaultResourcePath,
		paymentPath:  DefaultPaymentPath,
		httpClient:   http.DefaultClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetResource requests the gated resource on behalf of identity
func (c *Client) GetResource(ctx context.Context, identity recoverai.Identity) (*recoverai.GatewayResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+c.resourcePath, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if identity != "" {
		req.Header.Set(IdentityHeader, string(identity))
	}

	resp, body, err := c.do(req)
	if err != nil {
		return nil, err
	}

	switch resp.StatusCode {
	case http.StatusOK:
		snapshot, err := decodeSnapshot(body)
		if err != nil {
			return nil, err
		}
		return &recoverai.GatewayResponse{StatusCode: resp.StatusCode, Snapshot: snapshot}, nil

	case http.StatusPaymentRequired:
		required, err := paymentRequired(resp.Header, body)
		if err != nil {
			return nil, err
		}
		return &recoverai.GatewayResponse{StatusCode: resp.StatusCode, PaymentRequired: &required}, nil

	default:
		return &recoverai.GatewayResponse{StatusCode: resp.StatusCode}, nil
	}
}

// ConfirmPayment reports a settled invoice to the gateway
func (c *Client) ConfirmPayment(ctx context.Context, invoiceID string, identityHint recoverai.Identity) (*recoverai.PaymentAck, error) {
	payload, err := json.Marshal(PaymentRequest{InvoiceID: invoiceID, WalletAddress: identityHint, Service: c.service})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payment request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+c.paymentPath, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, body, err := c.do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("payment endpoint returned %d: %s", resp.StatusCode, string(body))
	}

	var ack recoverai.PaymentAck
	if err := json.Unmarshal(body, &ack); err != nil {
		return nil, fmt.Errorf("invalid payment acknowledgement: %w", err)
	}
	return &ack, nil
}

func (c *Client) do(req *http.Request) (*http.Response, []byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", recoverai.ErrUnreachable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, nil, fmt.Errorf("%w: failed to read response: %w", recoverai.ErrUnreachable, err)
	}
	return resp, body, nil
}

// paymentRequired prefers the header and falls back to the body
func paymentRequired(header http.Header, body []byte) (recoverai.PaymentRequired, error) {
	if h := header.Get(PaymentRequiredHeader); h != "" {
		return DecodePaymentRequiredHeader(h)
	}

	var required recoverai.PaymentRequired
	if err := json.Unmarshal(body, &required); err != nil {
		return recoverai.PaymentRequired{}, fmt.Errorf("invalid payment required body: %w", err)
	}
	if required.ID == "" {
		return recoverai.PaymentRequired{}, fmt.Errorf("no payment required information found in response")
	}
	return required, nil
}

func decodeSnapshot(body []byte) (recoverai.Snapshot, error) {
	var snapshot recoverai.Snapshot
	if err := json.Unmarshal(body, &snapshot); err != nil {
		return nil, fmt.Errorf("invalid resource body: %w", err)
	}
	delete(snapshot, fieldStatus)
	delete(snapshot, fieldReceipt)
	return snapshot, nil
}
