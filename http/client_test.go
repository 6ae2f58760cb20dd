package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	recoverai "github.com/Pratik-Shirodkar/RecoverAI"
)

func TestPaymentRequiredHeader_RoundTrip(t *testing.T) {
	required := recoverai.PaymentRequired{
		X402Version:    recoverai.X402Version,
		Error:          "Payment Required",
		Price:          "0.01 USDC",
		PaymentAddress: "0xOracle",
		Chain:          "base-sepolia",
		ID:             "invoice_0xA",
	}

	header, err := EncodePaymentRequiredHeader(required)
	require.NoError(t, err)

	decoded, err := DecodePaymentRequiredHeader(header)
	require.NoError(t, err)
	assert.Equal(t, required, decoded)

	_, err = DecodePaymentRequiredHeader("not base64!")
	assert.Error(t, err)
}

func TestClient_GetResource(t *testing.T) {
	var gotIdentity string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotIdentity = r.Header.Get(IdentityHeader)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status":         "success",
			"weather":        "SUNNY",
			"wind_speed":     10,
			"oracle_receipt": map[string]string{"service": "weather"},
		})
	}))
	defer server.Close()

	client := NewClient(server.URL)
	resp, err := client.GetResource(context.Background(), "0xA")
	require.NoError(t, err)

	assert.Equal(t, "0xA", gotIdentity)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, recoverai.Snapshot{"weather": "SUNNY", "wind_speed": 10.0}, resp.Snapshot)
}

func TestClient_PaymentRequiredFromBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		w.Write([]byte(`{"error":"Payment Required","price":"0.01 USDC","payment_address":"0xOracle","chain":"base-sepolia","id":"invoice_0xA"}`))
	}))
	defer server.Close()

	resp, err := NewClient(server.URL).GetResource(context.Background(), "0xA")
	require.NoError(t, err)
	require.Equal(t, http.StatusPaymentRequired, resp.StatusCode)
	require.NotNil(t, resp.PaymentRequired)
	assert.Equal(t, "invoice_0xA", resp.PaymentRequired.ID)
	assert.Equal(t, "0xOracle", resp.PaymentRequired.PaymentAddress)
}

func TestClient_PaymentRequiredPrefersHeader(t *testing.T) {
	header, err := EncodePaymentRequiredHeader(recoverai.PaymentRequired{ID: "invoice_from_header"})
	require.NoError(t, err)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(PaymentRequiredHeader, header)
		w.WriteHeader(http.StatusPaymentRequired)
		w.Write([]byte(`{"id":"invoice_from_body"}`))
	}))
	defer server.Close()

	resp, err := NewClient(server.URL).GetResource(context.Background(), "0xA")
	require.NoError(t, err)
	assert.Equal(t, "invoice_from_header", resp.PaymentRequired.ID)
}

func TestClient_ConfirmPayment(t *testing.T) {
	var got PaymentRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, DefaultPaymentPath, r.URL.Path)
		json.NewDecoder(r.Body).Decode(&got)
		json.NewEncoder(w).Encode(recoverai.PaymentAck{Status: recoverai.PaymentVerified, Wallet: got.WalletAddress})
	}))
	defer server.Close()

	ack, err := NewClient(server.URL).ConfirmPayment(context.Background(), "invoice_0xA", "0xA")
	require.NoError(t, err)
	assert.Equal(t, PaymentRequest{InvoiceID: "invoice_0xA", WalletAddress: "0xA"}, got)
	assert.True(t, ack.Resolved())
	assert.Equal(t, recoverai.Identity("0xA"), ack.Wallet)
}

func TestClient_Unreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	_, err := NewClient(url).GetResource(context.Background(), "0xA")
	assert.True(t, errors.Is(err, recoverai.ErrUnreachable), "expected unreachable, got %v", err)

	_, err = NewClient(url).ConfirmPayment(context.Background(), "invoice_0xA", "0xA")
	assert.ErrorIs(t, err, recoverai.ErrUnreachable)
}

func TestClient_UnexpectedStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	resp, err := NewClient(server.URL).GetResource(context.Background(), "0xA")
	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	_, err = NewClient(server.URL).ConfirmPayment(context.Background(), "invoice_0xA", "0xA")
	require.Error(t, err)
	assert.NotErrorIs(t, err, recoverai.ErrUnreachable)
}
