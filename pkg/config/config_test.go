package config

import (
	"testing"
	"time"
)

func validConfig() *Config {
	return &Config{
		RPCAddr:       "https://data-seed-prebsc-1-s1.binance.org:8545",
		RegistryAddr:  "0x1111111111111111111111111111111111111111",
		StreamPayAddr: "0x2222222222222222222222222222222222222222",
	}
}

func TestValidateRequiredFields(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing rpc", func(c *Config) { c.RPCAddr = "" }},
		{"missing registry", func(c *Config) { c.RegistryAddr = "" }},
		{"missing streampay", func(c *Config) { c.StreamPayAddr = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validConfig()
			tt.mutate(c)
			if err := c.Validate(); err == nil {
				t.Error("Validate() expected error, got nil")
			}
		})
	}
}

func TestValidateDefaults(t *testing.T) {
	c := validConfig()
	if err := c.Validate(); err != nil {
		t.Fatalf("Validate() unexpected error: %v", err)
	}

	if c.ModelName != "llama-3.3-70b-versatile" {
		t.Errorf("ModelName = %q", c.ModelName)
	}
	if c.MaxDurationSeconds != 60 {
		t.Errorf("MaxDurationSeconds = %d, want 60", c.MaxDurationSeconds)
	}
	if c.MaxPayment != "0.01" {
		t.Errorf("MaxPayment = %q, want 0.01", c.MaxPayment)
	}
	if c.PricePerSecond != "0.0001" {
		t.Errorf("PricePerSecond = %q, want 0.0001", c.PricePerSecond)
	}
	if c.Port != 3001 {
		t.Errorf("Port = %d, want 3001", c.Port)
	}
	if c.EndpointURL != "http://localhost:3001/inference" {
		t.Errorf("EndpointURL = %q", c.EndpointURL)
	}
	if c.Network.ChainID != BSCTestnet.ChainID {
		t.Errorf("Network = %+v, want bsc-testnet", c.Network)
	}
}

func TestValidateEndpointFollowsPort(t *testing.T) {
	c := validConfig()
	c.Port = 8080
	if err := c.Validate(); err != nil {
		t.Fatal(err)
	}
	if c.EndpointURL != "http://localhost:8080/inference" {
		t.Errorf("EndpointURL = %q, want port 8080", c.EndpointURL)
	}
}

func TestTimeoutsWithDefaults(t *testing.T) {
	tt := Timeouts{}.WithDefaults()
	if tt.Dial != 5*time.Second || tt.ChainRead != 12*time.Second ||
		tt.ChainSubmit != 25*time.Second || tt.ReceiptWait != 90*time.Second ||
		tt.Inference != 120*time.Second || tt.Backend != 90*time.Second {
		t.Errorf("WithDefaults() = %+v", tt)
	}

	// Explicit values are preserved.
	custom := Timeouts{Inference: 7 * time.Second}.WithDefaults()
	if custom.Inference != 7*time.Second {
		t.Errorf("Inference = %v, want 7s", custom.Inference)
	}
	if custom.Dial != 5*time.Second {
		t.Errorf("Dial = %v, want default 5s", custom.Dial)
	}
}

func TestPaymentConversions(t *testing.T) {
	c := validConfig()
	if err := c.Validate(); err != nil {
		t.Fatal(err)
	}

	maxWei, err := c.MaxPaymentWei()
	if err != nil {
		t.Fatal(err)
	}
	if maxWei.String() != "10000000000000000" {
		t.Errorf("MaxPaymentWei() = %s, want 10000000000000000", maxWei)
	}

	priceWei, err := c.PricePerSecondWei()
	if err != nil {
		t.Fatal(err)
	}
	if priceWei.String() != "100000000000000" {
		t.Errorf("PricePerSecondWei() = %s, want 100000000000000", priceWei)
	}

	c.MaxPayment = "garbage"
	if _, err := c.MaxPaymentWei(); err == nil {
		t.Error("MaxPaymentWei() expected error for invalid amount")
	}
}

func TestGetPrivateKey(t *testing.T) {
	c := validConfig()

	if c.GetPrivateKey() != nil {
		t.Error("GetPrivateKey() on empty key should be nil")
	}

	c.PrivateKey = "not-hex"
	if c.GetPrivateKey() != nil {
		t.Error("GetPrivateKey() on invalid key should be nil")
	}

	// Well-known throwaway development key; 0x prefix must be tolerated.
	c.PrivateKey = "0x59c6995e998f97a5a0044966f0945389dc9e86dae88c7a8412f4603b6b78690d"
	if c.GetPrivateKey() == nil {
		t.Error("GetPrivateKey() rejected a valid 0x-prefixed key")
	}
}
