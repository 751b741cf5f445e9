package blockchain

import (
	"math/big"
	"testing"

	"github.com/shopspring/decimal"
)

func TestBNBToWei(t *testing.T) {
	tests := []struct {
		name    string
		amount  any
		want    string
		wantErr bool
	}{
		{"string whole", "1", "1000000000000000000", false},
		{"string fraction", "0.0001", "100000000000000", false},
		{"string ceiling default", "0.01", "10000000000000000", false},
		{"float64", 0.5, "500000000000000000", false},
		{"int64", int64(2), "2000000000000000000", false},
		{"decimal", decimal.NewFromFloat(1.5), "1500000000000000000", false},
		{"invalid string", "not-a-number", "", true},
		{"unsupported type", struct{}{}, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := BNBToWei(tt.amount)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("BNBToWei(%v) expected error, got %s", tt.amount, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("BNBToWei(%v) unexpected error: %v", tt.amount, err)
			}
			if got.String() != tt.want {
				t.Errorf("BNBToWei(%v) = %s, want %s", tt.amount, got, tt.want)
			}
		})
	}
}

func TestWeiToBNB(t *testing.T) {
	tests := []struct {
		name  string
		value any
		want  string
	}{
		{"one BNB", "1000000000000000000", "1"},
		{"big.Int input", big.NewInt(100000000000000), "0.0001"},
		{"int input", 500, "0.0000000000000005"},
		{"zero", "0", "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := WeiToBNB(tt.value)
			if got.String() != tt.want {
				t.Errorf("WeiToBNB(%v) = %s, want %s", tt.value, got, tt.want)
			}
		})
	}
}

func TestWeiRoundTrip(t *testing.T) {
	wei, err := BNBToWei("0.000123")
	if err != nil {
		t.Fatal(err)
	}
	back := WeiToBNB(wei)
	if back.String() != "0.000123" {
		t.Errorf("round trip = %s, want 0.000123", back)
	}
}
