// Package registry implements discovery and selection of compute providers
// advertised in the on-chain ComputeRegistry, plus the provider-side
// idempotent registration flow.
package registry

import (
	"context"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"go.uber.org/zap"

	"github.com/clawcompute/clawcompute-go/pkg/blockchain"
)

// ErrNoProvider is returned when no active provider matches the requested
// capability. An empty registry is a normal outcome, not a failure of the
// discovery machinery.
var ErrNoProvider = errors.New("no active provider found")

// Reader is the registry read surface the catalog depends on. The
// blockchain.ComputeRegistry binding satisfies it; tests supply doubles.
type Reader interface {
	GetActiveProviderIds(opts *bind.CallOpts) ([]*big.Int, error)
	GetProvider(opts *bind.CallOpts, providerID *big.Int) (*blockchain.Provider, error)
	GetRegistryStats(opts *bind.CallOpts) (*blockchain.RegistryStats, error)
}

// Catalog reads provider advertisements from the registry. A catalog read is
// a snapshot: it is taken once per discovery phase and treated as consistent
// for the duration of one exchange. Stale prices cost at most a suboptimal
// selection, never funds, because the rate is locked into the stream at
// creation.
type Catalog struct {
	reader Reader
}

// NewCatalog builds a catalog over the given registry reader.
func NewCatalog(reader Reader) *Catalog {
	return &Catalog{reader: reader}
}

// ActiveProviders returns the full records of all currently active providers.
func (c *Catalog) ActiveProviders(ctx context.Context) ([]*blockchain.Provider, error) {
	opts := &bind.CallOpts{Context: ctx}

	ids, err := c.reader.GetActiveProviderIds(opts)
	if err != nil {
		return nil, err
	}

	providers := make([]*blockchain.Provider, 0, len(ids))
	for _, id := range ids {
		p, err := c.reader.GetProvider(opts, id)
		if err != nil {
			return nil, err
		}
		zap.L().Debug("discovered provider",
			zap.String("id", id.String()),
			zap.String("model", p.ModelName),
			zap.String("pricePerSecond", blockchain.WeiToBNB(p.PricePerSecond).String()),
			zap.String("endpoint", p.Endpoint))
		providers = append(providers, p)
	}
	return providers, nil
}

// Stats returns the registry's total and active provider counts.
func (c *Catalog) Stats(ctx context.Context) (*blockchain.RegistryStats, error) {
	return c.reader.GetRegistryStats(&bind.CallOpts{Context: ctx})
}
