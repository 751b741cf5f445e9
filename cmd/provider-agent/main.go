// The provider agent advertises an inference endpoint on the ComputeRegistry
// and serves it: it makes the on-chain registration current, starts the HTTP
// server backed by Groq, and logs the operator balance once a minute until
// interrupted.
package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/clawcompute/clawcompute-go/pkg/agent"
	"github.com/clawcompute/clawcompute-go/pkg/config"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.FromEnv()
	if err != nil {
		zap.L().Fatal("configuration error", zap.Error(err))
	}

	core := agent.NewAgent(cfg)
	defer core.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	regCtx, cancel := context.WithTimeout(ctx, 3*time.Minute)
	provider, err := core.EnsureProviderRegistered(regCtx)
	cancel()
	if err != nil {
		zap.L().Fatal("provider registration failed", zap.Error(err))
	}
	if provider != nil {
		zap.L().Info("serving as registered provider",
			zap.String("providerId", provider.ID.String()),
			zap.String("model", provider.ModelName))
	}

	srv, err := core.NewProviderServer()
	if err != nil {
		zap.L().Fatal("provider server init failed", zap.Error(err))
	}

	go core.LogBalanceLoop(ctx, time.Minute)

	<-ctx.Done()
	zap.L().Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zap.L().Error("server shutdown failed", zap.Error(err))
	}
}
