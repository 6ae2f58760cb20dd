package gin

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	recoverai "github.com/Pratik-Shirodkar/RecoverAI"
	x402http "github.com/Pratik-Shirodkar/RecoverAI/http"
)

func newRiskServer(t *testing.T) (*recoverai.ResourceGateway, *recoverai.ResourceGateway, *httptest.Server) {
	t.Helper()
	weather := recoverai.NewResourceGateway()
	risk := recoverai.NewRiskGateway(weather)
	ts := httptest.NewServer(NewServer(weather, WithResource(risk)).Handler())
	t.Cleanup(ts.Close)
	return weather, risk, ts
}

func getPath(t *testing.T, url, path, wallet string) (*http.Response, map[string]interface{}) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url+path, nil)
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

func TestServer_RiskAnalysisPaidSeparately(t *testing.T) {
	_, risk, ts := newRiskServer(t)

	resp, body := getPath(t, ts.URL, "/risk-analysis", "0xA")
	require.Equal(t, http.StatusPaymentRequired, resp.StatusCode)
	assert.Equal(t, "0.02 USDC", body["price"])
	invoiceID := body["id"].(string)

	// paying without naming the service pays for weather, not risk
	pay := postJSON(t, ts.URL+"/pay-invoice", x402http.PaymentRequest{InvoiceID: invoiceID})
	pay.Body.Close()
	require.Equal(t, http.StatusOK, pay.StatusCode)
	resp, _ = getPath(t, ts.URL, "/risk-analysis", "0xA")
	assert.Equal(t, http.StatusPaymentRequired, resp.StatusCode)

	pay = postJSON(t, ts.URL+"/pay-invoice", x402http.PaymentRequest{InvoiceID: invoiceID, Service: recoverai.RiskResourceName})
	pay.Body.Close()
	require.Equal(t, http.StatusOK, pay.StatusCode)
	assert.True(t, risk.Entitlements().IsEntitled("0xA"))

	resp, body = getPath(t, ts.URL, "/risk-analysis", "0xA")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 5.0, body["risk_score"])
	assert.Equal(t, false, body["payout_recommended"])
	assert.Equal(t, recoverai.RiskModelVersion, body["model_version"])
	receipt := body["oracle_receipt"].(map[string]interface{})
	assert.Equal(t, recoverai.RiskResourceName, receipt["service"])
	assert.Equal(t, "0.02 USDC", receipt["cost"])
}

func TestServer_RiskFollowsStorm(t *testing.T) {
	_, risk, ts := newRiskServer(t)
	risk.Entitlements().Grant("0xA")

	resp := postJSON(t, ts.URL+"/simulate-storm", map[string]interface{}{})
	resp.Body.Close()

	_, body := getPath(t, ts.URL, "/risk-analysis", "0xA")
	assert.Equal(t, 80.0, body["risk_score"])
	assert.Equal(t, true, body["payout_recommended"])
	assert.Equal(t, 0.95, body["confidence"])
}

func TestServer_UnknownService(t *testing.T) {
	_, _, ts := newRiskServer(t)

	resp := postJSON(t, ts.URL+"/pay-invoice", x402http.PaymentRequest{InvoiceID: "invoice_0xA", Service: "horoscope"})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var perr recoverai.PaymentError
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&perr))
	assert.Equal(t, recoverai.ErrCodeInvalidRequest, perr.Code)
}

func TestServer_ResetClearsEveryResource(t *testing.T) {
	weather, risk, ts := newRiskServer(t)
	weather.Entitlements().Grant("0xA")
	risk.Entitlements().Grant("0xA")

	resp := postJSON(t, ts.URL+"/reset", map[string]interface{}{"clear_entitlements": true})
	resp.Body.Close()

	assert.False(t, weather.Entitlements().IsEntitled("0xA"))
	assert.False(t, risk.Entitlements().IsEntitled("0xA"))
}

func TestServer_HealthListsResources(t *testing.T) {
	_, _, ts := newRiskServer(t)

	resp, body := getPath(t, ts.URL, "/health", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resources := body["resources"].([]interface{})
	require.Len(t, resources, 2)
	assert.Equal(t, "/weather", resources[0].(map[string]interface{})["path"])
	assert.Equal(t, "/risk-analysis", resources[1].(map[string]interface{})["path"])
}

func TestServer_RiskWithGatewayClient(t *testing.T) {
	_, risk, ts := newRiskServer(t)
	settler := recoverai.NewSimulatedSettler()
	client := recoverai.NewGatewayClient(x402http.NewClient(ts.URL, x402http.WithService(recoverai.RiskResourceName)), settler)

	snap, err := client.Fetch(context.Background(), "0xA")
	require.NoError(t, err)
	assert.Contains(t, snap, "risk_score")
	assert.True(t, risk.Entitlements().IsEntitled("0xA"))
}

func TestServer_AuditLogWithoutExplicitLog(t *testing.T) {
	ts := httptest.NewServer(NewServer(recoverai.NewResourceGateway()).Handler())
	defer ts.Close()

	getWeather(t, ts.URL, "0xA")

	_, body := getPath(t, ts.URL, "/audit-log", "")
	assert.GreaterOrEqual(t, body["count"], 1.0)
}
