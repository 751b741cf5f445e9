// Package agent exposes the high-level ClawCompute entry points. It wires
// together blockchain access (ComputeRegistry/StreamPay), the consumer-side
// exchange orchestrator, and the provider-side registration and serving
// stack.
package agent

import (
	"context"
	"crypto/ecdsa"
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/clawcompute/clawcompute-go/pkg/blockchain"
	"github.com/clawcompute/clawcompute-go/pkg/config"
	"github.com/clawcompute/clawcompute-go/pkg/exchange"
	"github.com/clawcompute/clawcompute-go/pkg/inference"
	"github.com/clawcompute/clawcompute-go/pkg/registry"
	"github.com/clawcompute/clawcompute-go/pkg/server"
	"github.com/clawcompute/clawcompute-go/pkg/stream"
)

// init configures a default global zap logger for the agent packages.
// Applications may replace it with zap.ReplaceGlobals(...) if they need
// custom logging.
func init() {
	c := zap.Config{
		Level:            zap.NewAtomicLevelAt(zap.InfoLevel),
		Development:      false,
		Encoding:         "console",
		EncoderConfig:    zap.NewDevelopmentEncoderConfig(),
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := c.Build()
	if err != nil {
		panic(err)
	}
	zap.ReplaceGlobals(logger)
}

// Core holds the initialized EVM client and runtime configuration shared by
// the consumer and provider roles.
type Core struct {
	evm *blockchain.EVMClient
	*config.Config
	prvKey *ecdsa.PrivateKey
}

// NewAgent initializes the Core with validated configuration and a connected
// EVM client. It applies default timeout values and aborts the process if the
// configuration is invalid or the Ethereum client cannot be initialized.
func NewAgent(cfg *config.Config) *Core {
	if err := cfg.Validate(); err != nil {
		zap.L().Fatal("Invalid config", zap.Error(err))
	}
	cfg.Timeouts = cfg.Timeouts.WithDefaults()

	if cfg.Debug {
		c := zap.NewDevelopmentConfig()
		c.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
		if logger, err := c.Build(); err == nil {
			zap.ReplaceGlobals(logger)
		}
	}

	evm, err := blockchain.InitEvm(cfg.RPCAddr, cfg.RegistryAddr, cfg.StreamPayAddr)
	if err != nil {
		zap.L().Error("Init ethereum client failed", zap.Error(err))
		os.Exit(-1)
	}

	prvKey := cfg.GetPrivateKey()
	if prvKey == nil {
		zap.L().Warn("some methods disabled: no usable private key configured")
	} else if cfg.Debug {
		zap.L().Debug("signer address",
			zap.String("addr", blockchain.GetAddressFromPrivateKeyECDSA(prvKey).Hex()))
	}

	return &Core{evm, cfg, prvKey}
}

// GetEvm returns the EVM client for advanced operations beyond the agent
// surface.
func (c *Core) GetEvm() *blockchain.EVMClient {
	return c.evm
}

// Catalog returns a provider catalog over the connected registry.
func (c *Core) Catalog() *registry.Catalog {
	return registry.NewCatalog(c.evm.Registry)
}

// Registrar returns a registrar for the configured operator wallet.
func (c *Core) Registrar() *registry.Registrar {
	return registry.NewRegistrar(c.evm, c.prvKey, c.Timeouts.ReceiptWait)
}

// NewConsumer builds the exchange orchestrator for this wallet: discovery over
// the connected registry, streams funded by the configured key, and the HTTP
// inference client.
func (c *Core) NewConsumer() (*exchange.Orchestrator, error) {
	streams, err := stream.NewManager(c.evm, c.prvKey, c.Timeouts.ReceiptWait)
	if err != nil {
		return nil, err
	}

	maxWei, err := c.MaxPaymentWei()
	if err != nil {
		return nil, err
	}

	return exchange.New(exchange.Params{
		Catalog:          c.Catalog(),
		Streams:          streams,
		Caller:           inference.NewClient(c.Timeouts.Inference),
		Balances:         c.evm,
		Payer:            streams.Payer(),
		ModelName:        c.ModelName,
		CapDuration:      c.MaxDurationSeconds,
		MaxPayment:       maxWei,
		InferenceTimeout: c.Timeouts.Inference,
	})
}

// EnsureProviderRegistered makes the on-chain advertisement for the configured
// model, price and endpoint current, registering or updating as needed.
func (c *Core) EnsureProviderRegistered(ctx context.Context) (registered *blockchain.Provider, err error) {
	priceWei, err := c.PricePerSecondWei()
	if err != nil {
		return nil, err
	}

	id, err := c.Registrar().EnsureRegistration(ctx, c.ModelName, priceWei, c.EndpointURL)
	if err != nil {
		return nil, err
	}
	if id == nil {
		return nil, nil
	}
	return c.evm.Registry.GetProvider(nil, id)
}

// NewProviderServer starts the provider HTTP server against the configured
// Groq backend and returns it; the caller owns shutdown.
func (c *Core) NewProviderServer() (*http.Server, error) {
	backend, err := inference.NewGroqBackend(c.GroqAPIKey, c.GroqBaseURL)
	if err != nil {
		return nil, err
	}

	providerName := "clawcompute-provider"
	if addr := blockchain.GetAddressFromPrivateKeyECDSA(c.prvKey); addr != nil {
		providerName = addr.Hex()
	}

	ctrl, err := server.NewController(backend, c.ModelName, providerName, c.Timeouts.Backend)
	if err != nil {
		return nil, err
	}
	return server.RunServer(ctrl, c.Port), nil
}

// LogBalanceLoop logs the operator wallet balance every interval until ctx is
// done. Providers run it alongside the server so earnings are visible without
// a block explorer.
func (c *Core) LogBalanceLoop(ctx context.Context, interval time.Duration) {
	addr := blockchain.GetAddressFromPrivateKeyECDSA(c.prvKey)
	if addr == nil {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			readCtx, cancel := context.WithTimeout(ctx, c.Timeouts.ChainRead)
			bal, err := c.evm.GetBalance(readCtx, *addr)
			if err != nil {
				cancel()
				zap.L().Warn("balance read failed", zap.Error(err))
				continue
			}
			block, err := c.evm.GetCurrentBlockNumberCtx(readCtx)
			cancel()
			if err != nil {
				zap.L().Warn("block number read failed", zap.Error(err))
				continue
			}
			zap.L().Info("operator balance",
				zap.String("addr", addr.Hex()),
				zap.String("bnb", blockchain.WeiToBNB(bal).String()),
				zap.String("block", block.String()))
		}
	}
}

// Close releases resources associated with the agent instance.
func (c *Core) Close() {
	c.evm.Close()
}
