// Package config defines the runtime configuration shared by the consumer and
// provider agents: target network, RPC endpoint, deployed contract addresses,
// inference settings, payment limits and per-operation timeouts. It also
// provides environment loading, validation and defaulting helpers.
package config

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/clawcompute/clawcompute-go/pkg/blockchain"
)

// Config holds all settings required to initialize the ledger client and run
// either agent. Use Validate to fill implicit defaults and to check for
// required fields.
type Config struct {
	// Network selects the target chain (chain ID and human-readable name).
	Network Network `json:"network"`
	// RPCAddr is the JSON-RPC endpoint URL of the chain node (required).
	RPCAddr string `json:"rpc_addr" env:"RPC_ADDR"`
	// PrivateKey is the hex-encoded ECDSA private key used for signed
	// operations (required for anything that moves funds).
	PrivateKey string `json:"private_key" env:"PRIVATE_KEY"`
	// RegistryAddr is the deployed ComputeRegistry contract address (required).
	RegistryAddr string `json:"registry_addr" env:"REGISTRY_ADDR"`
	// StreamPayAddr is the deployed StreamPay contract address (required).
	StreamPayAddr string `json:"stream_pay_addr" env:"STREAM_PAY_ADDR"`

	// ModelName is the capability label advertised and requested by default.
	ModelName string `json:"model_name" env:"MODEL_NAME"`
	// MaxDurationSeconds caps how long a single payment stream may accrue.
	MaxDurationSeconds uint64 `json:"max_duration_seconds" env:"MAX_DURATION_SECONDS"`
	// MaxPayment is the per-exchange payment ceiling in BNB (e.g. "0.01").
	// An exchange whose escrow would exceed this ceiling fails before any
	// funds move.
	MaxPayment string `json:"max_payment" env:"MAX_PAYMENT"`

	// PricePerSecond is the advertised provider price in BNB per second.
	PricePerSecond string `json:"price_per_second" env:"PRICE_PER_SECOND"`
	// Port is the provider server listening port.
	Port int `json:"port" env:"PORT"`
	// EndpointURL is the inference endpoint advertised on-chain. Defaults to
	// http://localhost:<port>/inference.
	EndpointURL string `json:"endpoint_url" env:"ENDPOINT_URL"`

	// GroqAPIKey authorizes calls to the inference backend (provider side).
	GroqAPIKey string `json:"groq_api_key" env:"GROQ_API_KEY"`
	// GroqBaseURL overrides the OpenAI-compatible backend base URL.
	GroqBaseURL string `json:"groq_base_url" env:"GROQ_BASE_URL"`

	// Debug enables verbose logging.
	Debug bool `json:"debug" env:"DEBUG"`
	// Timeouts configures per-operation timeouts. See Timeouts.WithDefaults.
	Timeouts Timeouts `json:"timeouts"`
}

// Network describes a blockchain network (chain ID and name). ChainID is used
// for EIP-155 signing; Name is informational.
type Network struct {
	ChainID string `json:"chain_id"`
	Name    string `json:"network_name"`
}

// BSCTestnet is a predefined Network for BNB Smart Chain testnet.
var BSCTestnet = Network{
	ChainID: "97",
	Name:    "bsc-testnet",
}

// OPBNBTestnet is a predefined Network for the opBNB testnet.
var OPBNBTestnet = Network{
	ChainID: "5611",
	Name:    "opbnb-testnet",
}

// Timeouts controls agent operation deadlines.
// Zero values will be replaced by sane defaults in WithDefaults.
type Timeouts struct {
	Dial        time.Duration // RPC dial/connect
	ChainRead   time.Duration // eth_call, balance etc
	ChainSubmit time.Duration // send tx
	ReceiptWait time.Duration // wait tx
	Inference   time.Duration // one outbound inference request
	Backend     time.Duration // provider-side backend completion
}

// FromEnv builds a Config from process environment variables and validates it.
func FromEnv() (*Config, error) {
	var c Config
	if err := env.Parse(&c); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	c.Timeouts = c.Timeouts.WithDefaults()
	return &c, nil
}

// Validate normalizes the configuration by applying implicit defaults for
// model, limits, port and endpoint URL, and verifies that RPCAddr and both
// contract addresses are provided.
func (c *Config) Validate() error {

	if c.ModelName == "" {
		c.ModelName = "llama-3.3-70b-versatile"
	}

	if c.MaxDurationSeconds == 0 {
		c.MaxDurationSeconds = 60
	}

	if c.MaxPayment == "" {
		c.MaxPayment = "0.01"
	}

	if c.PricePerSecond == "" {
		c.PricePerSecond = "0.0001"
	}

	if c.Port == 0 {
		c.Port = 3001
	}

	if c.EndpointURL == "" {
		c.EndpointURL = fmt.Sprintf("http://localhost:%d/inference", c.Port)
	}

	if c.GroqBaseURL == "" {
		c.GroqBaseURL = "https://api.groq.com/openai/v1"
	}

	if c.Network.ChainID == "" {
		c.Network = BSCTestnet
	}

	if c.RPCAddr == "" {
		return errors.New("RPC address is required")
	}

	if c.RegistryAddr == "" {
		return errors.New("ComputeRegistry address is required")
	}

	if c.StreamPayAddr == "" {
		return errors.New("StreamPay address is required")
	}

	return nil
}

// WithDefaults returns a copy of t with zero values replaced by defaults:
//
//	Dial:        5s
//	ChainRead:   12s
//	ChainSubmit: 25s
//	ReceiptWait: 90s
//	Inference:   120s
//	Backend:     90s
func (t Timeouts) WithDefaults() Timeouts {
	tt := t
	if tt.Dial == 0 {
		tt.Dial = 5 * time.Second
	}
	if tt.ChainRead == 0 {
		tt.ChainRead = 12 * time.Second
	}
	if tt.ChainSubmit == 0 {
		tt.ChainSubmit = 25 * time.Second
	}
	if tt.ReceiptWait == 0 {
		tt.ReceiptWait = 90 * time.Second
	}
	if tt.Inference == 0 {
		tt.Inference = 120 * time.Second
	}
	if tt.Backend == 0 {
		tt.Backend = 90 * time.Second
	}
	return tt
}

// GetPrivateKey parses the configured hex private key. It returns nil when the
// key is empty or invalid; signed operations must check for nil.
func (c *Config) GetPrivateKey() *ecdsa.PrivateKey {
	if c.PrivateKey == "" {
		return nil
	}
	_, pk, err := blockchain.ParsePrivateKeyECDSA(strip0x(c.PrivateKey))
	if err != nil {
		return nil
	}
	return pk
}

// MaxPaymentWei converts the MaxPayment ceiling from BNB into wei.
func (c *Config) MaxPaymentWei() (*big.Int, error) {
	wei, err := blockchain.BNBToWei(c.MaxPayment)
	if err != nil {
		return nil, fmt.Errorf("invalid BNB amount %q: %w", c.MaxPayment, err)
	}
	return wei, nil
}

// PricePerSecondWei converts the advertised provider price from BNB into wei.
func (c *Config) PricePerSecondWei() (*big.Int, error) {
	wei, err := blockchain.BNBToWei(c.PricePerSecond)
	if err != nil {
		return nil, fmt.Errorf("invalid BNB amount %q: %w", c.PricePerSecond, err)
	}
	return wei, nil
}

func strip0x(s string) string {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}
