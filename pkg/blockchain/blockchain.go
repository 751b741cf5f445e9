// Package blockchain provides Go bindings and helpers to interact with the
// ClawCompute contracts on BNB Chain. It initializes an Ethereum client,
// wires typed bindings for the ComputeRegistry and StreamPay contracts,
// exposes lightweight read helpers for balances and block state, and includes
// utilities for key parsing and wei conversions.
package blockchain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"
)

// EVMClient holds a connected ethclient.Client and typed bindings for the
// ClawCompute contracts: ComputeRegistry and StreamPay.
type EVMClient struct {
	Client    *ethclient.Client
	Registry  *ComputeRegistry
	StreamPay *StreamPay
}

// InitEvm dials an Ethereum endpoint and initializes typed bindings for
// ComputeRegistry and StreamPay at the given deployed addresses.
//
// Parameters:
//   - endpoint: JSON-RPC endpoint URL to dial.
//   - registryAddr: deployed ComputeRegistry contract address (hex).
//   - streamPayAddr: deployed StreamPay contract address (hex).
//
// Returns a ready-to-use EVMClient or an error.
func InitEvm(endpoint, registryAddr, streamPayAddr string) (*EVMClient, error) {
	var evm = new(EVMClient)

	var err error
	evm.Client, err = ethclient.Dial(endpoint)
	if err != nil {
		zap.L().Error("Failed to ethdial", zap.Error(err))
		return nil, err
	}

	evm.Registry, err = NewComputeRegistry(common.HexToAddress(registryAddr), evm.Client)
	if err != nil {
		return nil, err
	}

	evm.StreamPay, err = NewStreamPay(common.HexToAddress(streamPayAddr), evm.Client)
	if err != nil {
		return nil, err
	}

	return evm, nil
}

// Close shuts down the underlying RPC connection.
func (evm *EVMClient) Close() {
	if evm.Client != nil {
		evm.Client.Close()
	}
}

// GetCurrentBlockNumberCtx returns the latest block number using the provided context.
func (evm *EVMClient) GetCurrentBlockNumberCtx(ctx context.Context) (*big.Int, error) {
	header, err := evm.Client.HeaderByNumber(ctx, nil)
	if err != nil {
		zap.L().Error("failed to get last block number", zap.Error(err))
		return nil, err
	}
	return header.Number, nil
}

// GetBalance returns the native-coin balance of the given address at the
// latest block.
func (evm *EVMClient) GetBalance(ctx context.Context, addr common.Address) (*big.Int, error) {
	bal, err := evm.Client.BalanceAt(ctx, addr, nil)
	if err != nil {
		zap.L().Error("failed to get balance", zap.String("addr", addr.Hex()), zap.Error(err))
		return nil, err
	}
	return bal, nil
}

// ChainID returns the chain ID reported by the connected node.
func (evm *EVMClient) ChainID(ctx context.Context) (*big.Int, error) {
	return evm.Client.ChainID(ctx)
}

// WaitForTransaction polls for a transaction receipt with exponential backoff,
// until receipt is available, context is done, or an error occurs. If maxBackoff
// is non-zero, backoff will not exceed it. It returns an error if the tx is reverted.
func (evm *EVMClient) WaitForTransaction(ctx context.Context, txHash common.Hash, maxBackoff time.Duration) (*types.Receipt, error) {
	backoff := time.Second
	for {
		receipt, err := evm.Client.TransactionReceipt(ctx, txHash)
		switch {
		case err == nil:
			if receipt.Status == types.ReceiptStatusFailed {
				return nil, fmt.Errorf("tx reverted: %s", txHash)
			}
			return receipt, nil
		case errors.Is(err, ethereum.NotFound):
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			if maxBackoff == 0 || backoff < maxBackoff {
				backoff *= 2
			}
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return nil, err
		default:
			return nil, fmt.Errorf("receipt error: %w", err)
		}
	}
}
