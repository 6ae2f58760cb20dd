// Package gin serves a recoverai.ResourceGateway over HTTP with gin.
package gin

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/log"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	recoverai "github.com/Pratik-Shirodkar/RecoverAI"
	x402http "github.com/Pratik-Shirodkar/RecoverAI/http"
	"github.com/Pratik-Shirodkar/RecoverAI/mandate"
)

// Storm simulation defaults
const (
	DefaultStormWindSpeed = 160.0
	StormWindThreshold    = 100.0
)

// Server exposes the gateway's resource, payment and administrative endpoints.
// The primary gateway is the one storms and updates write to; further gateways
// added with WithResource are served next to it.
type Server struct {
	gateway      *recoverai.ResourceGateway
	extra        []*recoverai.ResourceGateway
	mandates     *mandate.Registry
	audit        *recoverai.AuditLog
	limiter      *identityLimiter
	resourcePath string
	paymentPath  string
	logger       log.Logger
	now          func() time.Time
}

type resource struct {
	path    string
	gateway *recoverai.ResourceGateway
}

// Option configures a Server
type Option func(*Server)

// WithRateLimit limits resource requests per identity
func WithRateLimit(rps float64, burst int) Option {
	return func(s *Server) {
		if rps > 0 && burst > 0 {
			s.limiter = newIdentityLimiter(rate.Limit(rps), burst, s.clock)
		}
	}
}

// WithResourcePath sets the route of the gated resource
func WithResourcePath(path string) Option {
	return func(s *Server) {
		s.resourcePath = path
	}
}

// WithResource serves another paid gateway at "/<name>". Payments reach it
// when PaymentRequest.Service is its name.
func WithResource(gateway *recoverai.ResourceGateway) Option {
	return func(s *Server) {
		s.extra = append(s.extra, gateway)
	}
}

// WithMandateRegistry sets the registry behind the /ap2 routes
func WithMandateRegistry(registry *mandate.Registry) Option {
	return func(s *Server) {
		s.mandates = registry
	}
}

// WithLogger sets the server logger
func WithLogger(logger log.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithClock overrides the time source used for receipts and rate limiting
func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		s.now = now
	}
}

// NewServer creates a server for gateway
func NewServer(gateway *recoverai.ResourceGateway, opts ...Option) *Server {
	s := &Server{
		gateway:      gateway,
		audit:        gateway.Audit(),
		resourcePath: x402http.DefaultResourcePath,
		paymentPath:  x402http.DefaultPaymentPath,
		logger:       log.Root(),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.mandates == nil {
		s.mandates = mandate.NewRegistry(mandate.WithRegistryClock(s.clock))
	}
	return s
}

// resources lists every served gateway, primary first
func (s *Server) resources() []resource {
	out := []resource{{path: s.resourcePath, gateway: s.gateway}}
	for _, g := range s.extra {
		out = append(out, resource{path: "/" + g.Name(), gateway: g})
	}
	return out
}

// gatewayFor picks the gateway a payment is for
func (s *Server) gatewayFor(service string) (*recoverai.ResourceGateway, bool) {
	if service == "" || service == s.gateway.Name() {
		return s.gateway, true
	}
	for _, g := range s.extra {
		if g.Name() == service {
			return g, true
		}
	}
	return nil, false
}

func (s *Server) clock() time.Time { return s.now() }

// Register mounts the server's routes on r
func (s *Server) Register(r gin.IRouter) {
	for _, res := range s.resources() {
		handlers := []gin.HandlerFunc{s.handleResource(res.gateway)}
		if s.limiter != nil {
			handlers = append([]gin.HandlerFunc{s.limiter.middleware()}, handlers...)
		}
		r.GET(res.path, handlers...)
	}
	r.POST(s.paymentPath, s.handlePayment)
	s.registerMandates(r.Group("/ap2"))
	r.POST("/admin/resource", s.handleUpdate)
	r.POST("/simulate-storm", s.handleStorm)
	r.POST("/reset", s.handleReset)
	r.GET("/audit-log", s.handleAuditLog)
	r.GET("/health", s.handleHealth)
}

// Handler returns a gin engine with recovery and all routes registered
func (s *Server) Handler() http.Handler {
	r := gin.New()
	r.Use(gin.Recovery())
	s.Register(r)
	return r
}

func (s *Server) handleResource(gateway *recoverai.ResourceGateway) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity := recoverai.Identity(c.GetHeader(x402http.IdentityHeader))

		resp, err := gateway.GetResource(c.Request.Context(), identity)
		if err != nil {
			s.logger.Error("Resource request failed", "resource", gateway.Name(), "wallet", identity, "err", err)
			c.JSON(http.StatusInternalServerError, x402http.ErrorResponse{Error: err.Error()})
			return
		}

		if resp.StatusCode == http.StatusPaymentRequired {
			if header, err := x402http.EncodePaymentRequiredHeader(*resp.PaymentRequired); err == nil {
				c.Header(x402http.PaymentRequiredHeader, header)
			}
			c.JSON(http.StatusPaymentRequired, resp.PaymentRequired)
			return
		}

		body := gin.H{}
		for k, v := range resp.Snapshot {
			body[k] = v
		}
		body["status"] = x402http.StatusSuccess
		body["oracle_receipt"] = s.receipt(gateway, resp.Snapshot)
		c.JSON(http.StatusOK, body)
	}
}

// receipt hashes the served snapshot so consumers can prove what they were sold
func (s *Server) receipt(gateway *recoverai.ResourceGateway, snapshot recoverai.Snapshot) x402http.OracleReceipt {
	data, err := json.Marshal(snapshot)
	if err != nil {
		s.logger.Warn("Failed to hash snapshot", "err", err)
	}
	return x402http.OracleReceipt{
		Service:   gateway.Name(),
		Cost:      gateway.Price().String(),
		Timestamp: s.now().UTC().Format(time.RFC3339),
		DataHash:  crypto.Keccak256Hash(data).Hex(),
	}
}

func (s *Server) handlePayment(c *gin.Context) {
	var req x402http.PaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.InvoiceID == "" {
		c.JSON(http.StatusBadRequest, recoverai.NewPaymentError(
			recoverai.ErrCodeInvalidRequest, "invoice_id is required", nil))
		return
	}

	gateway, ok := s.gatewayFor(req.Service)
	if !ok {
		c.JSON(http.StatusBadRequest, recoverai.NewPaymentError(
			recoverai.ErrCodeInvalidRequest, "unknown service", map[string]interface{}{"service": req.Service}))
		return
	}

	ack, err := gateway.ConfirmPayment(c.Request.Context(), req.InvoiceID, req.WalletAddress)
	if err != nil {
		s.logger.Error("Payment confirmation failed", "invoice", req.InvoiceID, "err", err)
		c.JSON(http.StatusInternalServerError, recoverai.NewPaymentError(
			recoverai.ErrCodeSettlementFailed, err.Error(), map[string]interface{}{"invoice_id": req.InvoiceID}))
		return
	}
	c.JSON(http.StatusOK, ack)
}

func (s *Server) handleUpdate(c *gin.Context) {
	var values map[string]interface{}
	if err := c.ShouldBindJSON(&values); err != nil || len(values) == 0 {
		c.JSON(http.StatusBadRequest, recoverai.NewPaymentError(
			recoverai.ErrCodeInvalidRequest, "expected a JSON object of fields to update", nil))
		return
	}

	snapshot := s.gateway.UpdateResource(values)
	c.JSON(http.StatusOK, gin.H{"status": "updated", "snapshot": snapshot})
}

type stormRequest struct {
	WindSpeed *float64 `json:"wind_speed"`
}

// StormLabel names the weather for a simulated wind speed
func StormLabel(windSpeed float64) string {
	if windSpeed > StormWindThreshold {
		return "HURRICANE_CATEGORY_5"
	}
	return "STORMY"
}

func (s *Server) handleStorm(c *gin.Context) {
	var req stormRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		c.JSON(http.StatusBadRequest, recoverai.NewPaymentError(recoverai.ErrCodeInvalidRequest, err.Error(), nil))
		return
	}
	wind := DefaultStormWindSpeed
	if req.WindSpeed != nil {
		wind = *req.WindSpeed
	}
	label := StormLabel(wind)

	snapshot := s.gateway.UpdateResource(map[string]interface{}{
		"wind_speed": wind,
		"weather":    label,
	})
	s.audit.Record(recoverai.AuditEntry{
		Event:   recoverai.EventStormSimulated,
		Service: s.gateway.Name(),
		Details: map[string]interface{}{"wind_speed": wind, "weather": label},
	})
	s.logger.Warn("Storm simulated", "windSpeed", wind, "weather", label)

	c.JSON(http.StatusOK, gin.H{"status": "storm_simulated", "snapshot": snapshot})
}

type resetRequest struct {
	ClearEntitlements bool `json:"clear_entitlements"`
}

func (s *Server) handleReset(c *gin.Context) {
	var req resetRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		c.JSON(http.StatusBadRequest, recoverai.NewPaymentError(recoverai.ErrCodeInvalidRequest, err.Error(), nil))
		return
	}

	snapshot := s.gateway.ResetResource()
	for _, res := range s.resources() {
		if res.gateway != s.gateway {
			res.gateway.ResetResource()
		}
		if req.ClearEntitlements {
			res.gateway.ResetEntitlements()
		}
	}
	s.mandates.Reset()
	s.audit.Record(recoverai.AuditEntry{
		Event:   recoverai.EventReset,
		Service: s.gateway.Name(),
		Details: map[string]interface{}{"clear_entitlements": req.ClearEntitlements},
	})

	c.JSON(http.StatusOK, gin.H{
		"status":               "reset",
		"snapshot":             snapshot,
		"entitlements_cleared": req.ClearEntitlements,
	})
}

func (s *Server) handleAuditLog(c *gin.Context) {
	entries := s.audit.Entries()
	if entries == nil {
		entries = []recoverai.AuditEntry{}
	}
	c.JSON(http.StatusOK, gin.H{"count": len(entries), "entries": entries})
}

func (s *Server) handleHealth(c *gin.Context) {
	resources := []gin.H{}
	for _, res := range s.resources() {
		resources = append(resources, gin.H{
			"name":  res.gateway.Name(),
			"path":  res.path,
			"price": res.gateway.Price().String(),
			"paid":  res.gateway.Entitlements().Len(),
		})
	}
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"resource":  s.gateway.Name(),
		"price":     s.gateway.Price().String(),
		"paid":      s.gateway.Entitlements().Len(),
		"resources": resources,
		"pending":   len(s.mandates.Pending()),
	})
}

// bindOptionalJSON decodes the body into v, accepting an empty body
func bindOptionalJSON(c *gin.Context, v interface{}) error {
	if c.Request.Body == nil {
		return nil
	}
	err := json.NewDecoder(c.Request.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}
