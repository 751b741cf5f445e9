// Package exchange sequences one complete consumer-to-provider transaction:
// discovery, provider selection, payment stream open, the inference call,
// stream close, and settlement reporting. The orchestrator owns the
// end-to-end failure policy; its central guarantee is that every stream it
// opens receives exactly one close attempt, on every exit path.
package exchange

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/clawcompute/clawcompute-go/pkg/blockchain"
	"github.com/clawcompute/clawcompute-go/pkg/inference"
	"github.com/clawcompute/clawcompute-go/pkg/registry"
	"github.com/clawcompute/clawcompute-go/pkg/stream"
)

// ErrEscrowExceedsCeiling means the selected provider's price over the
// configured cap duration would escrow more than the caller's payment
// ceiling. This is a configuration error detected before any funds move.
var ErrEscrowExceedsCeiling = errors.New("computed escrow exceeds payment ceiling")

// Phase names the steps of one exchange. A Summary reports the last phase
// reached so callers can tell how far the protocol progressed.
type Phase string

const (
	PhaseIdle          Phase = "idle"
	PhaseDiscovering   Phase = "discovering"
	PhaseStreamOpening Phase = "stream_opening"
	PhaseServing       Phase = "serving"
	PhaseStreamClosing Phase = "stream_closing"
	PhaseSettled       Phase = "settled"
	PhaseFailed        Phase = "failed"
)

// Discoverer supplies the provider snapshot for one exchange.
// registry.Catalog satisfies it; tests supply doubles.
type Discoverer interface {
	ActiveProviders(ctx context.Context) ([]*blockchain.Provider, error)
}

// Streams is the payment-stream surface the orchestrator depends on.
// stream.Manager satisfies it.
type Streams interface {
	Open(ctx context.Context, payee common.Address, providerID *big.Int, capDuration uint64, ratePerSecond *big.Int) (*stream.Opened, error)
	Close(ctx context.Context, streamID *big.Int) (*stream.CloseReceipt, error)
}

// Caller issues the off-chain work request. inference.Client satisfies it.
type Caller interface {
	Call(ctx context.Context, endpoint string, req *inference.Request) (*inference.Response, error)
}

// Balances reads the payer's native balance for settlement accounting.
// blockchain.EVMClient satisfies it.
type Balances interface {
	GetBalance(ctx context.Context, addr common.Address) (*big.Int, error)
}

// Params configures an Orchestrator.
type Params struct {
	Catalog  Discoverer
	Streams  Streams
	Caller   Caller
	Balances Balances
	// Payer is the wallet funding streams; settlement reads its balance.
	Payer common.Address
	// ModelName filters provider selection; empty selects across all models.
	ModelName string
	// CapDuration bounds each stream's accrual in seconds.
	CapDuration uint64
	// MaxPayment is the per-exchange escrow ceiling in wei. Nil disables the
	// ceiling check.
	MaxPayment *big.Int
	// InferenceTimeout bounds the single work request.
	InferenceTimeout time.Duration
	// CloseTimeout bounds the compensating close when the caller's context is
	// already done.
	CloseTimeout time.Duration
}

// Orchestrator runs exchanges. It holds no per-exchange state: concurrent
// Execute calls are independent, sharing only the read-only configuration
// below.
type Orchestrator struct {
	catalog          Discoverer
	streams          Streams
	caller           Caller
	balances         Balances
	payer            common.Address
	modelName        string
	capDuration      uint64
	maxPayment       *big.Int
	inferenceTimeout time.Duration
	closeTimeout     time.Duration
}

// Summary is the terminal report of one exchange. Callers always receive a
// summary, never a bare error: Err records why a failed exchange stopped, and
// Phase records how far it got.
type Summary struct {
	Phase    Phase
	Provider *blockchain.Provider
	// StreamID is set once a stream was opened, even if the exchange later
	// failed. CounterResolved warns that the id came from the racy global
	// counter fallback and downstream cancellation may have targeted the
	// wrong stream.
	StreamID        *big.Int
	CounterResolved bool
	// Result holds the inference payload on success; InferenceFailed marks
	// the serving leg as failed without aborting the protocol.
	Result          string
	InferenceFailed bool
	InferenceErr    string
	// CloseAlreadyDone is true when the close attempt found the stream
	// already closed (cap elapsed or cancelled elsewhere); settlement treats
	// it as a successful close.
	CloseAlreadyDone bool
	// Spent is balanceBefore − balanceAfter (includes gas); Paid is the
	// ledger-reported payout to the provider when the cancellation receipt
	// carried it. Refund is the ledger-reported unused escrow returned.
	Spent  *big.Int
	Paid   *big.Int
	Refund *big.Int
	// Duration covers the serving leg.
	Duration time.Duration
	// Err is the terminal error for failed exchanges, nil otherwise.
	Err error
}

// New builds an Orchestrator, validating required collaborators.
func New(p Params) (*Orchestrator, error) {
	if p.Catalog == nil || p.Streams == nil || p.Caller == nil || p.Balances == nil {
		return nil, errors.New("catalog, streams, caller and balances are all required")
	}
	if p.CapDuration == 0 {
		p.CapDuration = 60
	}
	if p.InferenceTimeout == 0 {
		p.InferenceTimeout = 120 * time.Second
	}
	if p.CloseTimeout == 0 {
		p.CloseTimeout = 2 * time.Minute
	}
	return &Orchestrator{
		catalog:          p.Catalog,
		streams:          p.Streams,
		caller:           p.Caller,
		balances:         p.Balances,
		payer:            p.Payer,
		modelName:        p.ModelName,
		capDuration:      p.CapDuration,
		maxPayment:       p.MaxPayment,
		inferenceTimeout: p.InferenceTimeout,
		closeTimeout:     p.CloseTimeout,
	}, nil
}

// Execute runs one exchange for the given prompt. Failures before escrow is
// committed abort cleanly with no ledger writes; failures after the stream
// opened never return without a close attempt first, because an unclosed
// stream drains at its full capped rate until the ledger's own expiry.
func (o *Orchestrator) Execute(ctx context.Context, prompt string) *Summary {
	s := &Summary{Phase: PhaseIdle}

	balanceBefore, err := o.balances.GetBalance(ctx, o.payer)
	if err != nil {
		return o.fail(s, fmt.Errorf("read payer balance: %w", err))
	}

	s.Phase = PhaseDiscovering
	providers, err := o.catalog.ActiveProviders(ctx)
	if err != nil {
		return o.fail(s, fmt.Errorf("discover providers: %w", err))
	}

	provider, err := registry.SelectCheapest(providers, o.modelName)
	if err != nil {
		return o.fail(s, err)
	}
	s.Provider = provider
	zap.L().Info("provider selected",
		zap.String("providerId", provider.ID.String()),
		zap.String("model", provider.ModelName),
		zap.String("pricePerSecond", provider.PricePerSecond.String()))

	escrow := stream.EscrowFor(provider.PricePerSecond, o.capDuration)
	if o.maxPayment != nil && escrow.Cmp(o.maxPayment) > 0 {
		return o.fail(s, fmt.Errorf("%w: escrow %s wei, ceiling %s wei",
			ErrEscrowExceedsCeiling, escrow, o.maxPayment))
	}

	s.Phase = PhaseStreamOpening
	opened, err := o.streams.Open(ctx, provider.Wallet, provider.ID, o.capDuration, provider.PricePerSecond)
	if err != nil {
		return o.fail(s, fmt.Errorf("open stream: %w", err))
	}
	s.StreamID = opened.ID
	s.CounterResolved = opened.CounterResolved

	// From here on the stream is accruing; every path below must go through
	// the close attempt. The deferred check is a backstop for panics in the
	// serving leg; the panic itself still propagates after the close.
	closeAttempted := false
	defer func() {
		if !closeAttempted {
			o.closeStream(ctx, s, balanceBefore)
		}
	}()

	s.Phase = PhaseServing
	servingStart := time.Now()
	callCtx, cancel := context.WithTimeout(ctx, o.inferenceTimeout)
	resp, callErr := o.caller.Call(callCtx, provider.Endpoint, &inference.Request{
		Prompt: prompt,
		Model:  o.modelName,
	})
	cancel()
	s.Duration = time.Since(servingStart)

	if callErr != nil {
		// The protocol does not retry inference; the failure becomes the
		// exchange's result payload and the stream is still closed.
		s.InferenceFailed = true
		s.InferenceErr = callErr.Error()
		zap.L().Error("inference failed, closing stream to recover funds",
			zap.String("streamId", opened.ID.String()),
			zap.Error(callErr))
	} else {
		s.Result = resp.Result
		zap.L().Info("inference received",
			zap.String("model", resp.Model),
			zap.Int64("durationMs", resp.DurationMs))
	}

	closeAttempted = true
	o.closeStream(ctx, s, balanceBefore)
	return s
}

// closeStream performs the single close attempt and settlement accounting.
// It runs even when ctx is already done: cancellation of the inference wait
// is not cancellation of the protocol.
func (o *Orchestrator) closeStream(ctx context.Context, s *Summary, balanceBefore *big.Int) {
	s.Phase = PhaseStreamClosing

	closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.closeTimeout)
	defer cancel()

	receipt, err := o.streams.Close(closeCtx, s.StreamID)
	if err != nil {
		s.Phase = PhaseFailed
		s.Err = fmt.Errorf("close stream %s: %w", s.StreamID, err)
		zap.L().Error("stream close failed; escrow recovery depends on the ledger cap expiry",
			zap.String("streamId", s.StreamID.String()),
			zap.Error(err))
		return
	}
	s.CloseAlreadyDone = receipt.AlreadyClosed
	s.Paid = receipt.RecipientPayout
	s.Refund = receipt.SenderRefund

	balanceAfter, err := o.balances.GetBalance(closeCtx, o.payer)
	if err != nil {
		// The exchange itself settled; only the spend report is degraded.
		zap.L().Warn("settlement balance read failed", zap.Error(err))
	} else {
		spent := new(big.Int).Sub(balanceBefore, balanceAfter)
		if spent.Sign() < 0 {
			spent = big.NewInt(0)
		}
		s.Spent = spent
	}

	s.Phase = PhaseSettled
}

// fail finalizes a summary for an exchange that stopped before any escrow was
// committed.
func (o *Orchestrator) fail(s *Summary, err error) *Summary {
	s.Phase = PhaseFailed
	s.Err = err
	zap.L().Error("exchange failed", zap.Error(err))
	return s
}
