package gin

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	recoverai "github.com/Pratik-Shirodkar/RecoverAI"
	x402http "github.com/Pratik-Shirodkar/RecoverAI/http"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestServer(t *testing.T, opts ...Option) (*recoverai.ResourceGateway, *httptest.Server) {
	t.Helper()
	gateway := recoverai.NewResourceGateway(recoverai.WithAuditLog(recoverai.NewAuditLog(0)))
	ts := httptest.NewServer(NewServer(gateway, opts...).Handler())
	t.Cleanup(ts.Close)
	return gateway, ts
}

func postJSON(t *testing.T, url string, body interface{}) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	return resp
}

func getWeather(t *testing.T, url, wallet string) (*http.Response, map[string]interface{}) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url+"/weather", nil)
	require.NoError(t, err)
	if wallet != "" {
		req.Header.Set(x402http.IdentityHeader, wallet)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return resp, body
}

func TestServer_PaymentFlow(t *testing.T) {
	_, ts := newTestServer(t)

	resp, body := getWeather(t, ts.URL, "0xA")
	require.Equal(t, http.StatusPaymentRequired, resp.StatusCode)
	assert.Equal(t, "Payment Required", body["error"])
	assert.Equal(t, "0.01 USDC", body["price"])
	assert.Equal(t, "invoice_0xA", body["id"])
	assert.Equal(t, "base-sepolia", body["chain"])
	assert.NotEmpty(t, resp.Header.Get(x402http.PaymentRequiredHeader))

	payResp := postJSON(t, ts.URL+"/pay-invoice", x402http.PaymentRequest{InvoiceID: "invoice_0xA", WalletAddress: "0xA"})
	defer payResp.Body.Close()
	require.Equal(t, http.StatusOK, payResp.StatusCode)
	var ack recoverai.PaymentAck
	require.NoError(t, json.NewDecoder(payResp.Body).Decode(&ack))
	assert.Equal(t, recoverai.PaymentVerified, ack.Status)
	assert.Equal(t, recoverai.Identity("0xA"), ack.Wallet)

	resp, body = getWeather(t, ts.URL, "0xA")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "success", body["status"])
	assert.Equal(t, "SUNNY", body["weather"])
	assert.Equal(t, 10.0, body["wind_speed"])

	receipt, ok := body["oracle_receipt"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "weather", receipt["service"])
	assert.Equal(t, "0.01 USDC", receipt["cost"])
	assert.True(t, strings.HasPrefix(receipt["data_hash"].(string), "0x"))
}

func TestServer_PaymentGenericAck(t *testing.T) {
	_, ts := newTestServer(t)

	resp := postJSON(t, ts.URL+"/pay-invoice", map[string]string{"invoice_id": "invoice_unknown"})
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var ack recoverai.PaymentAck
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&ack))
	assert.Equal(t, recoverai.PaymentVerifiedGeneric, ack.Status)
}

func TestServer_PaymentRequiresInvoiceID(t *testing.T) {
	_, ts := newTestServer(t)

	resp := postJSON(t, ts.URL+"/pay-invoice", map[string]string{"wallet_address": "0xA"})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServer_StormAndReset(t *testing.T) {
	gateway, ts := newTestServer(t)
	gateway.Entitlements().Grant("0xA")

	resp := postJSON(t, ts.URL+"/simulate-storm", map[string]interface{}{})
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	_, body := getWeather(t, ts.URL, "0xA")
	assert.Equal(t, 160.0, body["wind_speed"])
	assert.Equal(t, "HURRICANE_CATEGORY_5", body["weather"])

	resp = postJSON(t, ts.URL+"/simulate-storm", map[string]interface{}{"wind_speed": 80})
	resp.Body.Close()
	_, body = getWeather(t, ts.URL, "0xA")
	assert.Equal(t, "STORMY", body["weather"])

	resp = postJSON(t, ts.URL+"/reset", map[string]interface{}{})
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp2, body := getWeather(t, ts.URL, "0xA")
	require.Equal(t, http.StatusOK, resp2.StatusCode, "plain reset keeps entitlements")
	assert.Equal(t, "SUNNY", body["weather"])
	assert.Equal(t, 10.0, body["wind_speed"])

	resp = postJSON(t, ts.URL+"/reset", map[string]interface{}{"clear_entitlements": true})
	resp.Body.Close()
	resp2, _ = getWeather(t, ts.URL, "0xA")
	assert.Equal(t, http.StatusPaymentRequired, resp2.StatusCode)
}

func TestServer_AdminUpdate(t *testing.T) {
	gateway, ts := newTestServer(t)

	resp := postJSON(t, ts.URL+"/admin/resource", map[string]interface{}{"wind_speed": 120, "note": "gust"})
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	snap := gateway.Snapshot()
	assert.Equal(t, 120.0, snap["wind_speed"])
	assert.Equal(t, "gust", snap["note"])
	assert.Equal(t, "SUNNY", snap["weather"])

	resp = postJSON(t, ts.URL+"/admin/resource", map[string]interface{}{})
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServer_AuditLog(t *testing.T) {
	_, ts := newTestServer(t)

	getWeather(t, ts.URL, "0xA")
	resp := postJSON(t, ts.URL+"/pay-invoice", x402http.PaymentRequest{InvoiceID: "invoice_0xA"})
	resp.Body.Close()
	getWeather(t, ts.URL, "0xA")

	res, err := http.Get(ts.URL + "/audit-log")
	require.NoError(t, err)
	defer res.Body.Close()

	var body struct {
		Count   int                    `json:"count"`
		Entries []recoverai.AuditEntry `json:"entries"`
	}
	require.NoError(t, json.NewDecoder(res.Body).Decode(&body))
	require.Equal(t, 3, body.Count)
	assert.Equal(t, recoverai.EventPaymentRequired, body.Entries[0].Event)
	assert.Equal(t, recoverai.EventPaymentConfirmed, body.Entries[1].Event)
	assert.Equal(t, recoverai.EventDataServed, body.Entries[2].Event)
}

func TestServer_RateLimit(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	_, ts := newTestServer(t, WithClock(func() time.Time { return now }), WithRateLimit(1, 2))

	for i := 0; i < 2; i++ {
		resp, _ := getWeather(t, ts.URL, "0xA")
		assert.Equal(t, http.StatusPaymentRequired, resp.StatusCode)
	}
	resp, body := getWeather(t, ts.URL, "0xA")
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, recoverai.ErrCodeRateLimited, body["code"])

	// other identities have their own bucket
	resp, _ = getWeather(t, ts.URL, "0xB")
	assert.Equal(t, http.StatusPaymentRequired, resp.StatusCode)
}

func TestServer_WorksWithGatewayClient(t *testing.T) {
	gateway, ts := newTestServer(t)
	settler := recoverai.NewSimulatedSettler()
	client := recoverai.NewGatewayClient(x402http.NewClient(ts.URL), settler)

	snap, err := client.Fetch(context.Background(), "0xA")
	require.NoError(t, err)
	assert.Equal(t, "SUNNY", snap["weather"])
	assert.NotContains(t, snap, "oracle_receipt")
	assert.Equal(t, []string{"invoice_0xA"}, settler.Calls())
	assert.True(t, gateway.Entitlements().IsEntitled("0xA"))
}

func TestStormLabel(t *testing.T) {
	assert.Equal(t, "HURRICANE_CATEGORY_5", StormLabel(160))
	assert.Equal(t, "STORMY", StormLabel(100))
}
