package recoverai

import (
	"fmt"
	"math"
)

// Risk analysis resource
const (
	RiskResourceName = "risk-analysis"
	RiskModelVersion = "risk-v2.3.1"

	// riskWindScale is the wind speed that maps to a 100% score before capping
	riskWindScale   = 200.0
	riskScoreCap    = 99.9
	payoutRiskScore = 50.0
)

// DefaultRiskPrice is the per-identity access price of the risk analysis
var DefaultRiskPrice = MustParsePrice("0.02 USDC")

// RiskDataSources are reported with every analysis
var RiskDataSources = []string{"NOAA Satellite Feed", "SKALE Oracle Network", "Historical Pattern DB"}

// RiskAnalysis scores the claim probability of a weather snapshot.
// The score is wind_speed/200 as a percentage, capped at 99.9 and rounded to one decimal.
// A missing wind speed scores zero.
func RiskAnalysis(weather Snapshot) Snapshot {
	wind, _ := weather.Number("wind_speed")
	score := math.Min(wind/riskWindScale*100, riskScoreCap)
	score = math.Round(score*10) / 10

	payout := score > payoutRiskScore
	confidence := 0.3
	if payout {
		confidence = 0.95
	}

	reasoning := fmt.Sprintf("Wind speed %gmph within safe limits. No action required.", wind)
	if wind > 100 {
		reasoning = fmt.Sprintf("Wind speed %gmph exceeds Category 5 threshold. High probability of structural damage. Immediate payout recommended.", wind)
	}

	return Snapshot{
		"risk_score":         score,
		"payout_recommended": payout,
		"confidence":         confidence,
		"reasoning":          reasoning,
		"data_sources":       append([]string(nil), RiskDataSources...),
		"model_version":      RiskModelVersion,
	}
}

// NewRiskGateway creates the paid risk analysis resource derived from weather.
// It shares the weather gateway's audit log but keeps its own entitlements.
func NewRiskGateway(weather *ResourceGateway, opts ...GatewayOption) *ResourceGateway {
	base := []GatewayOption{
		WithResourceName(RiskResourceName),
		WithDescription("AI Risk Score - parametric insurance claim probability analysis"),
		WithPrice(DefaultRiskPrice),
		WithPayTo(weather.payTo),
		WithNetwork(weather.network),
		WithAsset(weather.asset, weather.decimals),
		WithAuditLog(weather.Audit()),
		WithSource(func() Snapshot { return RiskAnalysis(weather.Snapshot()) }),
	}
	return NewResourceGateway(append(base, opts...)...)
}
