package blockchain

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// computeRegistryABI is the subset of the ComputeRegistry contract interface
// used by the agents: provider reads, registration and updates.
const computeRegistryABI = `[
	{"type":"function","name":"getActiveProviderIds","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256[]"}]},
	{"type":"function","name":"getProvider","stateMutability":"view","inputs":[{"name":"providerId","type":"uint256"}],"outputs":[
		{"name":"wallet","type":"address"},
		{"name":"modelName","type":"string"},
		{"name":"pricePerSecond","type":"uint256"},
		{"name":"endpoint","type":"string"},
		{"name":"isActive","type":"bool"},
		{"name":"totalEarned","type":"uint256"},
		{"name":"totalRequests","type":"uint256"},
		{"name":"registeredAt","type":"uint256"},
		{"name":"serviceType","type":"uint256"}]},
	{"type":"function","name":"getWalletProviders","stateMutability":"view","inputs":[{"name":"wallet","type":"address"}],"outputs":[{"name":"","type":"uint256[]"}]},
	{"type":"function","name":"getRegistryStats","stateMutability":"view","inputs":[],"outputs":[{"name":"_totalProviders","type":"uint256"},{"name":"_totalActiveProviders","type":"uint256"}]},
	{"type":"function","name":"registerProvider","stateMutability":"nonpayable","inputs":[{"name":"modelName","type":"string"},{"name":"pricePerSecond","type":"uint256"},{"name":"endpoint","type":"string"},{"name":"serviceType","type":"uint256"}],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"updateProvider","stateMutability":"nonpayable","inputs":[{"name":"providerId","type":"uint256"},{"name":"pricePerSecond","type":"uint256"},{"name":"endpoint","type":"string"},{"name":"isActive","type":"bool"}],"outputs":[]},
	{"type":"event","name":"ProviderRegistered","anonymous":false,"inputs":[{"name":"providerId","type":"uint256","indexed":true},{"name":"wallet","type":"address","indexed":true},{"name":"modelName","type":"string","indexed":false}]}
]`

// Provider is a read-only snapshot of an advertised provider record in the
// ComputeRegistry contract. Counters and timestamps are mutated only by the
// ledger in response to settlement events.
type Provider struct {
	ID             *big.Int
	Wallet         common.Address
	ModelName      string
	PricePerSecond *big.Int
	Endpoint       string
	IsActive       bool
	TotalEarned    *big.Int
	TotalRequests  *big.Int
	RegisteredAt   *big.Int
	ServiceType    *big.Int
}

// RegistryStats mirrors the getRegistryStats view (total and active counts).
type RegistryStats struct {
	TotalProviders  *big.Int
	ActiveProviders *big.Int
}

// ProviderRegisteredEvent is the decoded ProviderRegistered log emitted on
// registration. ProviderID is the registry-assigned identifier; reading it
// from the registration receipt is the authoritative way to learn a new
// record's id.
type ProviderRegisteredEvent struct {
	ProviderID *big.Int
	Wallet     common.Address
	ModelName  string
}

// ComputeRegistry is a typed wrapper over the deployed ComputeRegistry
// contract.
type ComputeRegistry struct {
	address  common.Address
	abi      abi.ABI
	contract *bind.BoundContract
}

// NewComputeRegistry binds the ComputeRegistry contract at the given address.
func NewComputeRegistry(address common.Address, backend bind.ContractBackend) (*ComputeRegistry, error) {
	parsed, err := abi.JSON(strings.NewReader(computeRegistryABI))
	if err != nil {
		return nil, err
	}
	return &ComputeRegistry{
		address:  address,
		abi:      parsed,
		contract: bind.NewBoundContract(address, parsed, backend, backend, backend),
	}, nil
}

// Address returns the bound contract address.
func (r *ComputeRegistry) Address() common.Address {
	return r.address
}

// GetActiveProviderIds returns the ids of all currently active providers.
func (r *ComputeRegistry) GetActiveProviderIds(opts *bind.CallOpts) ([]*big.Int, error) {
	var out []interface{}
	if err := r.contract.Call(opts, &out, "getActiveProviderIds"); err != nil {
		return nil, err
	}
	return out[0].([]*big.Int), nil
}

// GetProvider reads the full provider record for the given id.
func (r *ComputeRegistry) GetProvider(opts *bind.CallOpts, providerID *big.Int) (*Provider, error) {
	var out []interface{}
	if err := r.contract.Call(opts, &out, "getProvider", providerID); err != nil {
		return nil, err
	}
	return &Provider{
		ID:             providerID,
		Wallet:         out[0].(common.Address),
		ModelName:      out[1].(string),
		PricePerSecond: out[2].(*big.Int),
		Endpoint:       out[3].(string),
		IsActive:       out[4].(bool),
		TotalEarned:    out[5].(*big.Int),
		TotalRequests:  out[6].(*big.Int),
		RegisteredAt:   out[7].(*big.Int),
		ServiceType:    out[8].(*big.Int),
	}, nil
}

// GetWalletProviders returns the provider ids registered by the given wallet.
func (r *ComputeRegistry) GetWalletProviders(opts *bind.CallOpts, wallet common.Address) ([]*big.Int, error) {
	var out []interface{}
	if err := r.contract.Call(opts, &out, "getWalletProviders", wallet); err != nil {
		return nil, err
	}
	return out[0].([]*big.Int), nil
}

// GetRegistryStats returns the total and active provider counts.
func (r *ComputeRegistry) GetRegistryStats(opts *bind.CallOpts) (*RegistryStats, error) {
	var out []interface{}
	if err := r.contract.Call(opts, &out, "getRegistryStats"); err != nil {
		return nil, err
	}
	return &RegistryStats{
		TotalProviders:  out[0].(*big.Int),
		ActiveProviders: out[1].(*big.Int),
	}, nil
}

// RegisterProvider submits a registration for a new provider record owned by
// the transacting wallet.
func (r *ComputeRegistry) RegisterProvider(opts *bind.TransactOpts, modelName string, pricePerSecond *big.Int, endpoint string, serviceType *big.Int) (*types.Transaction, error) {
	return r.contract.Transact(opts, "registerProvider", modelName, pricePerSecond, endpoint, serviceType)
}

// UpdateProvider submits an update of price, endpoint and active flag for a
// provider record owned by the transacting wallet.
func (r *ComputeRegistry) UpdateProvider(opts *bind.TransactOpts, providerID, pricePerSecond *big.Int, endpoint string, isActive bool) (*types.Transaction, error) {
	return r.contract.Transact(opts, "updateProvider", providerID, pricePerSecond, endpoint, isActive)
}

// ParseProviderRegistered decodes a ProviderRegistered event from the given
// log. It returns an error when the log does not match the event signature or
// was not emitted by the bound contract.
func (r *ComputeRegistry) ParseProviderRegistered(log types.Log) (*ProviderRegisteredEvent, error) {
	ev := r.abi.Events["ProviderRegistered"]
	if log.Address != r.address || len(log.Topics) < 3 || log.Topics[0] != ev.ID {
		return nil, fmt.Errorf("log is not a ProviderRegistered event")
	}
	values, err := r.abi.Unpack("ProviderRegistered", log.Data)
	if err != nil {
		return nil, fmt.Errorf("unpack ProviderRegistered: %w", err)
	}
	return &ProviderRegisteredEvent{
		ProviderID: new(big.Int).SetBytes(log.Topics[1].Bytes()),
		Wallet:     common.BytesToAddress(log.Topics[2].Bytes()),
		ModelName:  values[0].(string),
	}, nil
}

// ProviderRegisteredFromReceipt scans a registration receipt for the
// ProviderRegistered event and returns the decoded event, or false when the
// receipt carries no matching log.
func (r *ComputeRegistry) ProviderRegisteredFromReceipt(receipt *types.Receipt) (*ProviderRegisteredEvent, bool) {
	for _, log := range receipt.Logs {
		if log == nil {
			continue
		}
		ev, err := r.ParseProviderRegistered(*log)
		if err == nil {
			return ev, true
		}
	}
	return nil, false
}
