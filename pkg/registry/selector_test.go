package registry

import (
	"errors"
	"math/big"
	"testing"

	"github.com/clawcompute/clawcompute-go/pkg/blockchain"
)

func provider(id int64, model string, price int64, active bool) *blockchain.Provider {
	return &blockchain.Provider{
		ID:             big.NewInt(id),
		ModelName:      model,
		PricePerSecond: big.NewInt(price),
		IsActive:       active,
	}
}

func TestSelectCheapest(t *testing.T) {
	tests := []struct {
		name      string
		providers []*blockchain.Provider
		model     string
		wantID    int64
		wantErr   error
	}{
		{
			name:    "empty set",
			model:   "llama",
			wantErr: ErrNoProvider,
		},
		{
			name: "single match",
			providers: []*blockchain.Provider{
				provider(1, "llama", 100, true),
			},
			model:  "llama",
			wantID: 1,
		},
		{
			name: "picks cheapest",
			providers: []*blockchain.Provider{
				provider(1, "llama", 300, true),
				provider(2, "llama", 100, true),
				provider(3, "llama", 200, true),
			},
			model:  "llama",
			wantID: 2,
		},
		{
			name: "equal prices break on lowest id",
			providers: []*blockchain.Provider{
				provider(7, "llama", 100, true),
				provider(3, "llama", 100, true),
				provider(5, "llama", 100, true),
			},
			model:  "llama",
			wantID: 3,
		},
		{
			name: "inactive providers are skipped",
			providers: []*blockchain.Provider{
				provider(1, "llama", 50, false),
				provider(2, "llama", 100, true),
			},
			model:  "llama",
			wantID: 2,
		},
		{
			name: "model filter is exact",
			providers: []*blockchain.Provider{
				provider(1, "llama-guard", 50, true),
				provider(2, "llama", 100, true),
			},
			model:  "llama",
			wantID: 2,
		},
		{
			name: "empty model selects across models",
			providers: []*blockchain.Provider{
				provider(1, "mixtral", 50, true),
				provider(2, "llama", 100, true),
			},
			model:  "",
			wantID: 1,
		},
		{
			name: "only inactive providers",
			providers: []*blockchain.Provider{
				provider(1, "llama", 50, false),
			},
			model:   "llama",
			wantErr: ErrNoProvider,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SelectCheapest(tt.providers, tt.model)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("SelectCheapest() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("SelectCheapest() unexpected error: %v", err)
			}
			if got.ID.Int64() != tt.wantID {
				t.Errorf("SelectCheapest() id = %s, want %d", got.ID, tt.wantID)
			}
		})
	}
}
