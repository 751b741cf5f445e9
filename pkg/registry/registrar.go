package registry

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"go.uber.org/zap"

	"github.com/clawcompute/clawcompute-go/pkg/blockchain"
)

// serviceTypeCompute is the registry's service-type discriminator for LLM
// compute providers.
var serviceTypeCompute = big.NewInt(0)

// Registrar performs provider-side registry writes on behalf of one operator
// wallet.
type Registrar struct {
	evm         *blockchain.EVMClient
	pk          *ecdsa.PrivateKey
	receiptWait time.Duration
}

// NewRegistrar builds a registrar for the operator identified by pk.
// receiptWait bounds the backoff while waiting for write confirmations.
func NewRegistrar(evm *blockchain.EVMClient, pk *ecdsa.PrivateKey, receiptWait time.Duration) *Registrar {
	return &Registrar{evm: evm, pk: pk, receiptWait: receiptWait}
}

// EnsureRegistration makes the on-chain advertisement for (modelName,
// priceWei, endpoint) current without creating duplicates. It scans the
// operator's existing provider records newest-first; when an active record for
// the model exists it is updated only if price or endpoint drifted, otherwise
// a fresh record is registered. The provider id is returned in every case; on
// the fresh-registration path it is read from the ProviderRegistered event in
// the confirmation receipt, and is nil only when the receipt carries no
// decodable event.
func (r *Registrar) EnsureRegistration(ctx context.Context, modelName string, priceWei *big.Int, endpoint string) (*big.Int, error) {
	wallet := blockchain.GetAddressFromPrivateKeyECDSA(r.pk)
	if wallet == nil {
		return nil, fmt.Errorf("private key is required for registration")
	}

	callOpts := &bind.CallOpts{Context: ctx}

	ids, err := r.evm.Registry.GetWalletProviders(callOpts, *wallet)
	if err != nil {
		return nil, fmt.Errorf("get wallet providers: %w", err)
	}

	var existing *blockchain.Provider
	for i := len(ids) - 1; i >= 0; i-- {
		p, err := r.evm.Registry.GetProvider(callOpts, ids[i])
		if err != nil {
			return nil, fmt.Errorf("get provider %s: %w", ids[i], err)
		}
		// Multiple models per wallet are allowed; a record is "this agent"
		// when the model name matches and the record is still active.
		if p.ModelName == modelName && p.IsActive {
			existing = p
			break
		}
	}

	if existing != nil {
		if existing.PricePerSecond.Cmp(priceWei) == 0 && existing.Endpoint == endpoint {
			zap.L().Info("provider registration already current",
				zap.String("providerId", existing.ID.String()),
				zap.String("model", modelName))
			return existing.ID, nil
		}

		zap.L().Info("provider config drifted, updating registration",
			zap.String("providerId", existing.ID.String()),
			zap.String("onchainEndpoint", existing.Endpoint),
			zap.String("newEndpoint", endpoint))

		txOpts, err := r.evm.GetTransactOpts(ctx, r.pk)
		if err != nil {
			return nil, err
		}
		tx, err := r.evm.Registry.UpdateProvider(txOpts, existing.ID, priceWei, endpoint, true)
		if err != nil {
			return nil, fmt.Errorf("update provider: %w", err)
		}
		if _, err := r.evm.WaitForTransaction(ctx, tx.Hash(), r.receiptWait); err != nil {
			return nil, fmt.Errorf("confirm provider update: %w", err)
		}
		zap.L().Info("provider updated", zap.String("txHash", tx.Hash().Hex()))
		return existing.ID, nil
	}

	zap.L().Info("registering new provider",
		zap.String("model", modelName),
		zap.String("endpoint", endpoint))

	txOpts, err := r.evm.GetTransactOpts(ctx, r.pk)
	if err != nil {
		return nil, err
	}
	tx, err := r.evm.Registry.RegisterProvider(txOpts, modelName, priceWei, endpoint, serviceTypeCompute)
	if err != nil {
		return nil, fmt.Errorf("register provider: %w", err)
	}
	receipt, err := r.evm.WaitForTransaction(ctx, tx.Hash(), r.receiptWait)
	if err != nil {
		return nil, fmt.Errorf("confirm provider registration: %w", err)
	}

	if ev, ok := r.evm.Registry.ProviderRegisteredFromReceipt(receipt); ok {
		zap.L().Info("provider registered",
			zap.String("providerId", ev.ProviderID.String()),
			zap.String("txHash", tx.Hash().Hex()),
			zap.Uint64("block", receipt.BlockNumber.Uint64()))
		return ev.ProviderID, nil
	}

	zap.L().Warn("registration confirmed but receipt carried no ProviderRegistered event",
		zap.String("txHash", tx.Hash().Hex()))
	return nil, nil
}

// Deactivate marks the provider record inactive. Records are never deleted,
// only deactivated; they remain addressable for historical queries.
func (r *Registrar) Deactivate(ctx context.Context, provider *blockchain.Provider) error {
	txOpts, err := r.evm.GetTransactOpts(ctx, r.pk)
	if err != nil {
		return err
	}
	tx, err := r.evm.Registry.UpdateProvider(txOpts, provider.ID, provider.PricePerSecond, provider.Endpoint, false)
	if err != nil {
		return fmt.Errorf("deactivate provider: %w", err)
	}
	if _, err := r.evm.WaitForTransaction(ctx, tx.Hash(), r.receiptWait); err != nil {
		return fmt.Errorf("confirm provider deactivation: %w", err)
	}
	return nil
}
