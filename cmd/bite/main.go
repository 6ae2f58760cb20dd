// Command bite serves the claim decryption collaborator.
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

	"github.com/Pratik-Shirodkar/RecoverAI/bite"
	"github.com/Pratik-Shirodkar/RecoverAI/config"
)

const shutdownTimeout = 5 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "bite: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadBite()
	if err != nil {
		return err
	}
	logger, err := config.NewLogger(cfg.Logging)
	if err != nil {
		return err
	}
	log.SetDefault(logger)

	e := bite.NewServer(
		bite.WithSecret(cfg.Secret),
		bite.WithPolicyCondition(cfg.Condition),
		bite.WithDecryptDelay(cfg.DecryptDelay),
		bite.WithServerLogger(logger),
	).Echo()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Decrypt collaborator listening", "addr", ":"+cfg.Port, "condition", cfg.Condition,
			"secret", config.MaskSecret(cfg.Secret))
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("Received shutdown signal, exiting")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}
