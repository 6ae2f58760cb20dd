package recoverai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingTransport wraps a Transport and counts calls
type countingTransport struct {
	Transport
	gets     int
	confirms int
	getErr   error
}

func (c *countingTransport) GetResource(ctx context.Context, identity Identity) (*GatewayResponse, error) {
	c.gets++
	if c.getErr != nil {
		return nil, c.getErr
	}
	return c.Transport.GetResource(ctx, identity)
}

func (c *countingTransport) ConfirmPayment(ctx context.Context, invoiceID string, identityHint Identity) (*PaymentAck, error) {
	c.confirms++
	return c.Transport.ConfirmPayment(ctx, invoiceID, identityHint)
}

// ignoringTransport acknowledges payments without recording them
type ignoringTransport struct {
	*ResourceGateway
}

func (ignoringTransport) ConfirmPayment(ctx context.Context, invoiceID string, identityHint Identity) (*PaymentAck, error) {
	return &PaymentAck{Status: PaymentVerifiedGeneric}, nil
}

func TestGatewayClient_EndToEnd(t *testing.T) {
	ctx := context.Background()
	gw := NewResourceGateway()
	transport := &countingTransport{Transport: gw}
	settler := NewSimulatedSettler()
	client := NewGatewayClient(transport, settler)

	snap, err := client.Fetch(ctx, "0xA")
	require.NoError(t, err)
	assert.Equal(t, "SUNNY", snap["weather"])
	assert.Equal(t, 10.0, snap["wind_speed"])

	assert.Equal(t, []string{"invoice_0xA"}, settler.Calls())
	assert.Equal(t, 2, transport.gets)
	assert.Equal(t, 1, transport.confirms)

	// entitled now: no further payment
	gw.UpdateResource(map[string]interface{}{"wind_speed": 160.0})
	snap, err = client.Fetch(ctx, "0xA")
	require.NoError(t, err)
	assert.Equal(t, 160.0, snap["wind_speed"])
	assert.Len(t, settler.Calls(), 1)
	assert.Equal(t, 3, transport.gets)
}

func TestGatewayClient_PaymentNotConfirmed(t *testing.T) {
	ctx := context.Background()
	gw := NewResourceGateway()
	transport := &countingTransport{Transport: ignoringTransport{gw}}
	settler := NewSimulatedSettler()
	client := NewGatewayClient(transport, settler)

	_, err := client.Fetch(ctx, "0xA")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPaymentNotConfirmed)

	var fe *FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, FetchPaymentNotConfirmed, fe.Kind)
	assert.Equal(t, "invoice_0xA", fe.InvoiceID)

	// at most one settlement and one retry
	assert.Len(t, settler.Calls(), 1)
	assert.Equal(t, 2, transport.gets)
}

func TestGatewayClient_SettlerFailure(t *testing.T) {
	ctx := context.Background()
	gw := NewResourceGateway()
	transport := &countingTransport{Transport: gw}
	settler := NewSimulatedSettler()
	settler.FailWith(errors.New("insufficient funds"))
	client := NewGatewayClient(transport, settler)

	_, err := client.Fetch(ctx, "0xA")
	assert.ErrorIs(t, err, ErrPaymentNotConfirmed)
	assert.Equal(t, 0, transport.confirms)
	assert.Equal(t, 1, transport.gets)
	assert.False(t, gw.Entitlements().IsEntitled("0xA"))
}

func TestGatewayClient_Unreachable(t *testing.T) {
	ctx := context.Background()
	transport := &countingTransport{
		Transport: NewResourceGateway(),
		getErr:    fmt.Errorf("%w: connection refused", ErrUnreachable),
	}
	client := NewGatewayClient(transport, NewSimulatedSettler())

	_, err := client.Fetch(ctx, "0xA")
	assert.ErrorIs(t, err, ErrUnreachable)
	assert.NotErrorIs(t, err, ErrUnhandled)
}

type slowTransport struct{ Transport }

func (slowTransport) GetResource(ctx context.Context, identity Identity) (*GatewayResponse, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestGatewayClient_AttemptTimeout(t *testing.T) {
	client := NewGatewayClient(slowTransport{NewResourceGateway()}, NewSimulatedSettler(),
		WithAttemptTimeout(20*time.Millisecond))

	start := time.Now()
	_, err := client.Fetch(context.Background(), "0xA")
	assert.ErrorIs(t, err, ErrUnreachable)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 2*time.Second)
}

type staticTransport struct {
	resp *GatewayResponse
	err  error
}

func (s staticTransport) GetResource(ctx context.Context, identity Identity) (*GatewayResponse, error) {
	return s.resp, s.err
}

func (s staticTransport) ConfirmPayment(ctx context.Context, invoiceID string, identityHint Identity) (*PaymentAck, error) {
	return &PaymentAck{Status: PaymentVerified, Wallet: identityHint}, nil
}

func TestGatewayClient_Unhandled(t *testing.T) {
	tests := []struct {
		name      string
		transport Transport
	}{
		{"server error", staticTransport{resp: &GatewayResponse{StatusCode: http.StatusInternalServerError}}},
		{"402 without invoice", staticTransport{resp: &GatewayResponse{StatusCode: http.StatusPaymentRequired}}},
		{"malformed body", staticTransport{err: errors.New("invalid character '<'")}},
		{"nil response", staticTransport{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			settler := NewSimulatedSettler()
			client := NewGatewayClient(tt.transport, settler)

			_, err := client.Fetch(context.Background(), "0xA")
			assert.ErrorIs(t, err, ErrUnhandled)
			assert.Empty(t, settler.Calls())
		})
	}
}

func TestFetchError_Message(t *testing.T) {
	err := newFetchError(FetchPaymentNotConfirmed, "invoice_0xA", nil)
	assert.Equal(t, "recoverai: payment not confirmed (invoice invoice_0xA)", err.Error())
	assert.Equal(t, "PaymentNotConfirmed", err.Kind.String())
}
