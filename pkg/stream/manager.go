// Package stream manages the lifecycle of metered payment streams on the
// StreamPay ledger: escrow-funded creation, authoritative id resolution, and
// exactly-once tolerant cancellation. An open stream accrues to the payee at a
// fixed per-second rate until cancelled or until its cap elapses, so every
// open must be paired with a close attempt on every exit path.
package stream

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/clawcompute/clawcompute-go/pkg/blockchain"
)

// PurposeCompute tags streams that pay for one inference exchange.
const PurposeCompute = "compute"

// Opened describes a successfully created payment stream.
type Opened struct {
	// ID is the ledger-assigned stream identifier.
	ID *big.Int
	// Payee is the provider operator wallet receiving the accrual.
	Payee common.Address
	// Deposit is the escrowed amount in wei (RatePerSecond * CapDuration).
	Deposit *big.Int
	// RatePerSecond is the accrual rate in wei, locked at creation time.
	RatePerSecond *big.Int
	// CapDuration bounds accrual in seconds even if the stream is never
	// cancelled.
	CapDuration uint64
	// TxHash is the creation transaction hash.
	TxHash common.Hash
	// CounterResolved is true when ID was recovered from the ledger-global
	// stream counter instead of the creation receipt. That fallback is racy
	// under concurrent creators and must be treated as advisory.
	CounterResolved bool
}

// CloseReceipt reports the outcome of one cancellation attempt.
type CloseReceipt struct {
	StreamID *big.Int
	// AlreadyClosed is true when the ledger reported the stream as no longer
	// open. Settlement treats this as a successful close.
	AlreadyClosed bool
	TxHash        common.Hash
	// SenderRefund and RecipientPayout carry the final deposit split when the
	// cancellation receipt included it; nil otherwise.
	SenderRefund    *big.Int
	RecipientPayout *big.Int
}

// Manager opens and closes payment streams on behalf of one payer wallet.
type Manager struct {
	evm         *blockchain.EVMClient
	pk          *ecdsa.PrivateKey
	payer       common.Address
	receiptWait time.Duration
}

// NewManager builds a stream manager for the payer identified by pk.
// receiptWait bounds the backoff while waiting for write confirmations.
func NewManager(evm *blockchain.EVMClient, pk *ecdsa.PrivateKey, receiptWait time.Duration) (*Manager, error) {
	payer := blockchain.GetAddressFromPrivateKeyECDSA(pk)
	if payer == nil {
		return nil, errors.New("private key is required to manage streams")
	}
	return &Manager{evm: evm, pk: pk, payer: *payer, receiptWait: receiptWait}, nil
}

// Payer returns the wallet address streams are created from.
func (m *Manager) Payer() common.Address {
	return m.payer
}

// EscrowFor computes the deposit required for a stream: ratePerSecond wei
// accrued for at most capSeconds.
func EscrowFor(ratePerSecond *big.Int, capSeconds uint64) *big.Int {
	return new(big.Int).Mul(ratePerSecond, new(big.Int).SetUint64(capSeconds))
}

// Open creates a payment stream to payee, escrowing EscrowFor(ratePerSecond,
// capDuration) from the payer's balance, waits for the creation to confirm,
// and resolves the assigned stream id.
//
// The id is read from the creation receipt's StreamCreated event when
// present. Only when the receipt carries no decodable event does Open fall
// back to re-reading the ledger-global stream counter; that path is safe only
// if no concurrent creation landed between this write confirming and the
// read, so the result is flagged CounterResolved and logged as a warning
// rather than silently trusted.
func (m *Manager) Open(ctx context.Context, payee common.Address, providerID *big.Int, capDuration uint64, ratePerSecond *big.Int) (*Opened, error) {
	deposit := EscrowFor(ratePerSecond, capDuration)

	balance, err := m.evm.GetBalance(ctx, m.payer)
	if err != nil {
		return nil, fmt.Errorf("%w: read payer balance: %v", ErrLedgerUnavailable, err)
	}
	if balance.Cmp(deposit) < 0 {
		return nil, fmt.Errorf("%w: have %s wei, need %s wei", ErrInsufficientFunds, balance, deposit)
	}

	txOpts, err := m.evm.GetTransactOpts(ctx, m.pk)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLedgerUnavailable, err)
	}
	txOpts.Value = deposit

	tx, err := m.evm.StreamPay.CreateStream(txOpts, payee, new(big.Int).SetUint64(capDuration), PurposeCompute, providerID)
	if err != nil {
		return nil, fmt.Errorf("%w: submit createStream: %v", ErrLedgerUnavailable, err)
	}

	zap.L().Info("stream creation submitted",
		zap.String("txHash", tx.Hash().Hex()),
		zap.String("payee", payee.Hex()),
		zap.String("deposit", deposit.String()))

	receipt, err := m.evm.WaitForTransaction(ctx, tx.Hash(), m.receiptWait)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, fmt.Errorf("%w: createStream %s: %v", ErrLedgerAmbiguous, tx.Hash(), err)
		}
		return nil, fmt.Errorf("%w: confirm createStream: %v", ErrLedgerUnavailable, err)
	}

	opened := &Opened{
		Payee:         payee,
		Deposit:       deposit,
		RatePerSecond: ratePerSecond,
		CapDuration:   capDuration,
		TxHash:        tx.Hash(),
	}

	if ev, ok := m.evm.StreamPay.StreamCreatedFromReceipt(receipt); ok {
		opened.ID = ev.StreamID
		zap.L().Info("stream created",
			zap.String("streamId", ev.StreamID.String()),
			zap.Uint64("block", receipt.BlockNumber.Uint64()))
		return opened, nil
	}

	// Fallback: the latest counter value is assumed to belong to this
	// creation. A concurrent creator landing first would make downstream
	// cancellation target the wrong stream.
	id, err := m.evm.StreamPay.TotalStreamsCreated(&bind.CallOpts{Context: ctx})
	if err != nil {
		return nil, fmt.Errorf("%w: stream created (tx %s) but id unresolved: %v", ErrLedgerAmbiguous, tx.Hash(), err)
	}
	opened.ID = id
	opened.CounterResolved = true
	zap.L().Warn("stream id resolved from global counter; may be wrong under concurrent creators",
		zap.String("streamId", id.String()),
		zap.String("txHash", tx.Hash().Hex()))
	return opened, nil
}

// Close cancels an open stream, releasing unused escrow back to the payer.
// Cancelling a stream that already closed (explicitly, or because its cap
// elapsed) is a recoverable outcome: the receipt is returned with
// AlreadyClosed set and no error.
func (m *Manager) Close(ctx context.Context, streamID *big.Int) (*CloseReceipt, error) {
	txOpts, err := m.evm.GetTransactOpts(ctx, m.pk)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLedgerUnavailable, err)
	}

	tx, err := m.evm.StreamPay.CancelStream(txOpts, streamID)
	if err != nil {
		if isAlreadyClosed(err) {
			zap.L().Warn("cancel rejected, stream already closed",
				zap.String("streamId", streamID.String()),
				zap.Error(err))
			return &CloseReceipt{StreamID: streamID, AlreadyClosed: true}, nil
		}
		return nil, fmt.Errorf("%w: submit cancelStream: %v", ErrLedgerUnavailable, err)
	}

	receipt, err := m.evm.WaitForTransaction(ctx, tx.Hash(), m.receiptWait)
	if err != nil {
		switch {
		case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
			return nil, fmt.Errorf("%w: cancelStream %s: %v", ErrLedgerAmbiguous, tx.Hash(), err)
		case isAlreadyClosed(err):
			zap.L().Warn("cancel reverted, stream already closed",
				zap.String("streamId", streamID.String()),
				zap.Error(err))
			return &CloseReceipt{StreamID: streamID, AlreadyClosed: true, TxHash: tx.Hash()}, nil
		default:
			return nil, fmt.Errorf("%w: confirm cancelStream: %v", ErrLedgerUnavailable, err)
		}
	}

	out := &CloseReceipt{StreamID: streamID, TxHash: tx.Hash()}
	if ev, ok := m.evm.StreamPay.StreamCancelledFromReceipt(receipt); ok {
		out.SenderRefund = ev.SenderRefund
		out.RecipientPayout = ev.RecipientPayout
	}
	zap.L().Info("stream cancelled",
		zap.String("streamId", streamID.String()),
		zap.Uint64("block", receipt.BlockNumber.Uint64()))
	return out, nil
}

// Protocol returns aggregate StreamPay counters for reporting.
func (m *Manager) Protocol(ctx context.Context) (*blockchain.ProtocolStats, error) {
	return m.evm.StreamPay.GetProtocolStats(&bind.CallOpts{Context: ctx})
}

// isAlreadyClosed reports whether a cancelStream failure means the stream was
// no longer open. Cancellation of a settled stream reverts; the only other
// revert cause for cancelStream is a wrong-sender call, which the manager
// never issues for streams it opened itself.
func isAlreadyClosed(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, s := range []string{
		"already cancelled",
		"already settled",
		"not active",
		"stream ended",
		"execution reverted",
		"tx reverted",
	} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
