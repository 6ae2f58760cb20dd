// Command oracle serves the payment-gated weather resource, the risk analysis
// derived from it and the mandate approval routes.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/log"
	ginfw "github.com/gin-gonic/gin"

	recoverai "github.com/Pratik-Shirodkar/RecoverAI"
	"github.com/Pratik-Shirodkar/RecoverAI/config"
	"github.com/Pratik-Shirodkar/RecoverAI/http/gin"
	"github.com/Pratik-Shirodkar/RecoverAI/mandate"
)

const shutdownTimeout = 5 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "oracle: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadOracle()
	if err != nil {
		return err
	}
	logger, err := config.NewLogger(cfg.Logging)
	if err != nil {
		return err
	}
	log.SetDefault(logger)

	audit := recoverai.NewAuditLog(cfg.AuditLimit)
	gateway := recoverai.NewResourceGateway(
		recoverai.WithResourceName(cfg.ResourceName),
		recoverai.WithPrice(cfg.Price),
		recoverai.WithPayTo(cfg.PayTo),
		recoverai.WithNetwork(cfg.Network),
		recoverai.WithAsset(cfg.Asset, cfg.AssetDecimals),
		recoverai.WithAuditLog(audit),
		recoverai.WithGatewayLogger(logger),
	)
	risk := recoverai.NewRiskGateway(gateway, recoverai.WithPrice(cfg.RiskPrice))

	ginfw.SetMode(ginfw.ReleaseMode)
	server := gin.NewServer(gateway,
		gin.WithResourcePath("/"+cfg.ResourceName),
		gin.WithResource(risk),
		gin.WithMandateRegistry(mandate.NewRegistry()),
		gin.WithRateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst),
		gin.WithLogger(logger),
	)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Oracle listening", "addr", srv.Addr, "resource", "/"+cfg.ResourceName,
			"price", cfg.Price, "risk", "/"+risk.Name(), "riskPrice", risk.Price(),
			"payTo", cfg.PayTo, "network", cfg.Network, "auditLimit", cfg.AuditLimit)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("Received shutdown signal, draining connections")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
