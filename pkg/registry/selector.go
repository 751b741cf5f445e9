package registry

import (
	"github.com/clawcompute/clawcompute-go/pkg/blockchain"
)

// SelectCheapest picks the active provider with the lowest price per second.
// When modelName is non-empty, only providers advertising that exact model are
// considered. Equal prices are broken deterministically by the lowest provider
// id, so repeated runs over identical registry state are reproducible.
//
// Returns ErrNoProvider when the filtered set is empty.
func SelectCheapest(providers []*blockchain.Provider, modelName string) (*blockchain.Provider, error) {
	var best *blockchain.Provider
	for _, p := range providers {
		if !p.IsActive {
			continue
		}
		if modelName != "" && p.ModelName != modelName {
			continue
		}
		if best == nil {
			best = p
			continue
		}
		switch p.PricePerSecond.Cmp(best.PricePerSecond) {
		case -1:
			best = p
		case 0:
			if p.ID.Cmp(best.ID) < 0 {
				best = p
			}
		}
	}
	if best == nil {
		return nil, ErrNoProvider
	}
	return best, nil
}
