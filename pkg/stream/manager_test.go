package stream

import (
	"errors"
	"math/big"
	"testing"
)

func TestEscrowFor(t *testing.T) {
	tests := []struct {
		name string
		rate *big.Int
		cap  uint64
		want string
	}{
		{"one minute at 1e14 wei", big.NewInt(100000000000000), 60, "6000000000000000"},
		{"zero duration", big.NewInt(100000000000000), 0, "0"},
		{"zero rate", big.NewInt(0), 3600, "0"},
		{"one second", big.NewInt(42), 1, "42"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EscrowFor(tt.rate, tt.cap)
			if got.String() != tt.want {
				t.Errorf("EscrowFor() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestIsAlreadyClosed(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil error", nil, false},
		{"already cancelled", errors.New("execution reverted: Stream already cancelled"), true},
		{"already settled", errors.New("stream already settled"), true},
		{"not active", errors.New("execution reverted: Stream not active"), true},
		{"generic revert", errors.New("execution reverted"), true},
		{"receipt revert", errors.New("tx reverted: 0xabc"), true},
		{"rpc outage", errors.New("connection refused"), false},
		{"insufficient gas", errors.New("intrinsic gas too low"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isAlreadyClosed(tt.err); got != tt.want {
				t.Errorf("isAlreadyClosed(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
