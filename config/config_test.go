package config

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/log"

	recoverai "github.com/Pratik-Shirodkar/RecoverAI"
	"github.com/Pratik-Shirodkar/RecoverAI/agent"
)

func TestLoadOracle_Defaults(t *testing.T) {
	cfg, err := LoadOracle()
	if err != nil {
		t.Fatalf("LoadOracle: %v", err)
	}
	if cfg.Port != DefaultOraclePort {
		t.Errorf("Port = %q, want %q", cfg.Port, DefaultOraclePort)
	}
	if cfg.Price != recoverai.DefaultPrice {
		t.Errorf("Price = %v, want %v", cfg.Price, recoverai.DefaultPrice)
	}
	if cfg.RateLimitRPS != 0 {
		t.Errorf("rate limiting should be off by default, got %v", cfg.RateLimitRPS)
	}
	if cfg.RiskPrice != recoverai.DefaultRiskPrice {
		t.Errorf("RiskPrice = %v, want %v", cfg.RiskPrice, recoverai.DefaultRiskPrice)
	}
	if cfg.AuditLimit != recoverai.DefaultAuditLimit {
		t.Errorf("AuditLimit = %d, want %d", cfg.AuditLimit, recoverai.DefaultAuditLimit)
	}
}

func TestLoadOracle_Overrides(t *testing.T) {
	t.Setenv("PORT", "8080")
	t.Setenv("PRICE", "0.5 USDC")
	t.Setenv("RATE_LIMIT_RPS", "2.5")

	cfg, err := LoadOracle()
	if err != nil {
		t.Fatalf("LoadOracle: %v", err)
	}
	if cfg.Port != "8080" {
		t.Errorf("Port = %q", cfg.Port)
	}
	if cfg.Price.Amount != "0.5" || cfg.Price.Currency != "USDC" {
		t.Errorf("Price = %+v", cfg.Price)
	}
	if cfg.RateLimitRPS != 2.5 {
		t.Errorf("RateLimitRPS = %v", cfg.RateLimitRPS)
	}
}

func TestLoadAgent_CollectsErrors(t *testing.T) {
	t.Setenv("POLL_INTERVAL", "soon")
	t.Setenv("DECRYPT_ATTEMPTS", "many")

	_, err := LoadAgent()
	if err == nil {
		t.Fatal("expected error")
	}
	for _, key := range []string{"POLL_INTERVAL", "DECRYPT_ATTEMPTS"} {
		if !strings.Contains(err.Error(), key) {
			t.Errorf("error %q does not name %s", err, key)
		}
	}
}

func TestLoadAgent(t *testing.T) {
	t.Setenv("ORACLE_URL", "http://oracle:5000")
	t.Setenv("POLL_INTERVAL", "250ms")
	t.Setenv("CALL_TIMEOUT", "3s")

	cfg, err := LoadAgent()
	if err != nil {
		t.Fatalf("LoadAgent: %v", err)
	}
	if cfg.OracleURL != "http://oracle:5000" {
		t.Errorf("OracleURL = %q", cfg.OracleURL)
	}
	if cfg.Claim.PollInterval != 250*time.Millisecond {
		t.Errorf("PollInterval = %v", cfg.Claim.PollInterval)
	}
	if cfg.Claim.CallTimeout != 3*time.Second {
		t.Errorf("CallTimeout = %v", cfg.Claim.CallTimeout)
	}
	if cfg.Claim.Threshold != nil {
		t.Errorf("Threshold = %v, want the agent default", *cfg.Claim.Threshold)
	}
	if cfg.Claim.Identity != agent.DefaultIdentity {
		t.Errorf("Identity = %q", cfg.Claim.Identity)
	}
	if cfg.OnChain() {
		t.Error("no chain settings, expected simulated mode")
	}
}

func TestLoadBite(t *testing.T) {
	t.Setenv("DECRYPT_DELAY", "0s")

	cfg, err := LoadBite()
	if err != nil {
		t.Fatalf("LoadBite: %v", err)
	}
	if cfg.Port != DefaultBitePort || cfg.DecryptDelay != 0 {
		t.Errorf("unexpected config %+v", cfg)
	}
}

func TestLoadDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	if err := os.WriteFile(path, []byte("RECOVERAI_TEST_KEY=from-file\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Unsetenv("RECOVERAI_TEST_KEY") })

	if err := LoadDotEnv(path); err != nil {
		t.Fatalf("LoadDotEnv: %v", err)
	}
	if got := os.Getenv("RECOVERAI_TEST_KEY"); got != "from-file" {
		t.Errorf("RECOVERAI_TEST_KEY = %q", got)
	}

	if err := LoadDotEnv(filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Errorf("missing file should be ignored, got %v", err)
	}
}

func TestMaskSecret(t *testing.T) {
	if got := MaskSecret("0x1234567890abcdef"); got != "0x1234...cdef" {
		t.Errorf("MaskSecret = %q", got)
	}
	if got := MaskSecret("short"); got != "*****" {
		t.Errorf("MaskSecret = %q", got)
	}
}

func TestNewLogger_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger, err := newLogger(&buf, false, Logging{Level: "info", Format: FormatJSON})
	if err != nil {
		t.Fatalf("newLogger: %v", err)
	}

	logger.Debug("Hidden")
	logger.Info("Invoice issued", "invoice", "invoice_0xA")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected one record, got %d: %q", len(lines), buf.String())
	}
	var record map[string]interface{}
	if err := json.Unmarshal([]byte(lines[0]), &record); err != nil {
		t.Fatalf("invalid json record: %v", err)
	}
	if record["invoice"] != "invoice_0xA" {
		t.Errorf("record = %v", record)
	}
}

func TestNewLogger_Rejects(t *testing.T) {
	if _, err := newLogger(&bytes.Buffer{}, false, Logging{Level: "loud", Format: FormatTerminal}); err == nil {
		t.Error("expected invalid level error")
	}
	if _, err := newLogger(&bytes.Buffer{}, false, Logging{Level: "info", Format: "xml"}); err == nil {
		t.Error("expected invalid format error")
	}
}

func TestLoadAgent_IgnoresThresholdEnv(t *testing.T) {
	t.Setenv("TRIGGER_THRESHOLD", "5")

	cfg, err := LoadAgent()
	if err != nil {
		t.Fatalf("LoadAgent: %v", err)
	}
	if cfg.Claim.Threshold != nil {
		t.Errorf("Threshold = %v, the trigger threshold is not configurable", *cfg.Claim.Threshold)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name string
		want slog.Level
	}{
		{"trace", log.LevelTrace},
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"crit", log.LevelCrit},
		{"DEBUG", slog.LevelDebug},
		{" Error ", slog.LevelError},
		{"info+2", slog.LevelInfo + 2},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.name)
		if err != nil {
			t.Errorf("ParseLevel(%q): %v", tt.name, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestNewLogger_EveryLevel(t *testing.T) {
	for _, name := range []string{"trace", "debug", "info", "warn", "warning", "error", "crit"} {
		for _, format := range []string{FormatTerminal, FormatLogfmt, FormatJSON} {
			if _, err := newLogger(&bytes.Buffer{}, false, Logging{Level: name, Format: format}); err != nil {
				t.Errorf("level %q format %q: %v", name, format, err)
			}
		}
	}
}

func TestNewLogger_LevelFilters(t *testing.T) {
	var buf bytes.Buffer
	logger, err := newLogger(&buf, false, Logging{Level: "warn", Format: FormatLogfmt})
	if err != nil {
		t.Fatalf("newLogger: %v", err)
	}
	logger.Info("Quiet")
	logger.Warn("Loud")

	if strings.Contains(buf.String(), "Quiet") || !strings.Contains(buf.String(), "Loud") {
		t.Errorf("unexpected output %q", buf.String())
	}
}
