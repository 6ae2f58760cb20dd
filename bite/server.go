package bite

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// DefaultDecryptDelay simulates the committee round trip
const DefaultDecryptDelay = time.Second

// Server serves the decrypt collaborator API
type Server struct {
	secret    string
	condition string
	delay     time.Duration
	logger    log.Logger
	now       func() time.Time
}

// ServerOption configures a Server
type ServerOption func(*Server)

// WithSecret sets the secret released on an approved claim
func WithSecret(secret string) ServerOption {
	return func(s *Server) {
		s.secret = secret
	}
}

// WithPolicyCondition sets the condition label reported by /encrypt-policy
func WithPolicyCondition(condition string) ServerOption {
	return func(s *Server) {
		s.condition = condition
	}
}

// WithDecryptDelay sets the simulated decryption latency. Zero disables it.
func WithDecryptDelay(d time.Duration) ServerOption {
	return func(s *Server) {
		s.delay = d
	}
}

// WithServerLogger sets the server logger
func WithServerLogger(logger log.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithServerClock sets the time source for encrypted blob ids
func WithServerClock(now func() time.Time) ServerOption {
	return func(s *Server) {
		s.now = now
	}
}

// NewServer creates a decrypt collaborator server
func NewServer(opts ...ServerOption) *Server {
	s := &Server{
		secret:    DefaultSecret,
		condition: DefaultCondition,
		delay:     DefaultDecryptDelay,
		logger:    log.Root(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Echo builds the echo instance with every route registered
func (s *Server) Echo() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	e.Use(s.requestLogger)

	s.Register(e.Group(""))
	return e
}

// Register mounts the routes on g
func (s *Server) Register(g *echo.Group) {
	g.POST(DecryptPath, s.handleDecrypt)
	g.POST(EncryptPath, s.handleEncrypt)
	g.GET(HealthPath, func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
}

func (s *Server) requestLogger(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		err := next(c)
		if err != nil {
			c.Error(err)
		}
		s.logger.Debug("Request served", "method", c.Request().Method, "path", c.Path(),
			"status", c.Response().Status, "elapsed", time.Since(start))
		return nil
	}
}

func (s *Server) handleDecrypt(c echo.Context) error {
	var req DecryptRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
	}

	if !req.ConditionMet {
		s.logger.Warn("Decryption refused, condition not met")
		return c.JSON(http.StatusForbidden, ErrorResponse{Error: conditionNotMetMessage})
	}

	s.logger.Info("Condition met, decrypting policy secret")
	if err := wait(c.Request().Context(), s.delay); err != nil {
		return c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: err.Error()})
	}

	return c.JSON(http.StatusOK, DecryptResponse{
		DecryptedSecret: s.secret,
		Status:          StatusClaimApproved,
	})
}

func (s *Server) handleEncrypt(c echo.Context) error {
	s.logger.Info("Encrypting policy", "condition", s.condition)
	return c.JSON(http.StatusOK, EncryptResponse{
		EncryptedBlob: EncryptedBlobPrefix + strconv.FormatInt(s.now().UnixMilli(), 10),
		Condition:     s.condition,
	})
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
