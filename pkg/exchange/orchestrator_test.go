package exchange

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/clawcompute/clawcompute-go/pkg/blockchain"
	"github.com/clawcompute/clawcompute-go/pkg/inference"
	"github.com/clawcompute/clawcompute-go/pkg/registry"
	"github.com/clawcompute/clawcompute-go/pkg/stream"
)

type fakeCatalog struct {
	providers []*blockchain.Provider
	err       error
}

func (f *fakeCatalog) ActiveProviders(ctx context.Context) ([]*blockchain.Provider, error) {
	return f.providers, f.err
}

type fakeStreams struct {
	openCalls  int
	closeCalls int
	openErr    error
	closeErr   error
	opened     *stream.Opened
	receipt    *stream.CloseReceipt
	// closeCtxDone records whether the context passed to Close was already
	// cancelled or expired when the close attempt arrived.
	closeCtxDone bool
}

func (f *fakeStreams) Open(ctx context.Context, payee common.Address, providerID *big.Int, capDuration uint64, ratePerSecond *big.Int) (*stream.Opened, error) {
	f.openCalls++
	if f.openErr != nil {
		return nil, f.openErr
	}
	return f.opened, nil
}

func (f *fakeStreams) Close(ctx context.Context, streamID *big.Int) (*stream.CloseReceipt, error) {
	f.closeCalls++
	f.closeCtxDone = ctx.Err() != nil
	if f.closeErr != nil {
		return nil, f.closeErr
	}
	if f.receipt != nil {
		return f.receipt, nil
	}
	return &stream.CloseReceipt{StreamID: streamID}, nil
}

type fakeCaller struct {
	calls int
	resp  *inference.Response
	err   error
}

func (f *fakeCaller) Call(ctx context.Context, endpoint string, req *inference.Request) (*inference.Response, error) {
	f.calls++
	return f.resp, f.err
}

type fakeBalances struct {
	vals []*big.Int
	err  error
}

func (f *fakeBalances) GetBalance(ctx context.Context, addr common.Address) (*big.Int, error) {
	if f.err != nil {
		return nil, f.err
	}
	v := f.vals[0]
	if len(f.vals) > 1 {
		f.vals = f.vals[1:]
	}
	return v, nil
}

func activeProvider(id, price int64) *blockchain.Provider {
	return &blockchain.Provider{
		ID:             big.NewInt(id),
		Wallet:         common.HexToAddress("0x00000000000000000000000000000000000000b1"),
		ModelName:      "llama",
		PricePerSecond: big.NewInt(price),
		Endpoint:       "http://provider.example/inference",
		IsActive:       true,
	}
}

func newTestOrchestrator(t *testing.T, p Params) *Orchestrator {
	t.Helper()
	if p.CapDuration == 0 {
		p.CapDuration = 60
	}
	o, err := New(p)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return o
}

func TestExecuteEmptyRegistry(t *testing.T) {
	streams := &fakeStreams{}
	o := newTestOrchestrator(t, Params{
		Catalog:  &fakeCatalog{},
		Streams:  streams,
		Caller:   &fakeCaller{},
		Balances: &fakeBalances{vals: []*big.Int{big.NewInt(1000)}},
	})

	s := o.Execute(context.Background(), "hello")

	if s.Phase != PhaseFailed {
		t.Errorf("Phase = %s, want %s", s.Phase, PhaseFailed)
	}
	if !errors.Is(s.Err, registry.ErrNoProvider) {
		t.Errorf("Err = %v, want ErrNoProvider", s.Err)
	}
	if streams.openCalls != 0 || streams.closeCalls != 0 {
		t.Errorf("ledger writes on empty registry: open=%d close=%d", streams.openCalls, streams.closeCalls)
	}
}

func TestExecuteEscrowCeiling(t *testing.T) {
	streams := &fakeStreams{}
	o := newTestOrchestrator(t, Params{
		Catalog:    &fakeCatalog{providers: []*blockchain.Provider{activeProvider(1, 100)}},
		Streams:    streams,
		Caller:     &fakeCaller{},
		Balances:   &fakeBalances{vals: []*big.Int{big.NewInt(100000)}},
		MaxPayment: big.NewInt(5999), // escrow is 100 * 60 = 6000
	})

	s := o.Execute(context.Background(), "hello")

	if !errors.Is(s.Err, ErrEscrowExceedsCeiling) {
		t.Fatalf("Err = %v, want ErrEscrowExceedsCeiling", s.Err)
	}
	if streams.openCalls != 0 {
		t.Errorf("stream opened despite ceiling: %d", streams.openCalls)
	}
}

func TestExecuteSuccess(t *testing.T) {
	streams := &fakeStreams{
		opened: &stream.Opened{ID: big.NewInt(7)},
		receipt: &stream.CloseReceipt{
			StreamID:        big.NewInt(7),
			SenderRefund:    big.NewInt(5400),
			RecipientPayout: big.NewInt(600),
		},
	}
	caller := &fakeCaller{resp: &inference.Response{Result: "forty-two", Model: "llama"}}
	o := newTestOrchestrator(t, Params{
		Catalog:    &fakeCatalog{providers: []*blockchain.Provider{activeProvider(1, 100)}},
		Streams:    streams,
		Caller:     caller,
		Balances:   &fakeBalances{vals: []*big.Int{big.NewInt(100000), big.NewInt(99300)}},
		MaxPayment: big.NewInt(6000),
	})

	s := o.Execute(context.Background(), "what is the answer")

	if s.Phase != PhaseSettled {
		t.Fatalf("Phase = %s, want %s (err %v)", s.Phase, PhaseSettled, s.Err)
	}
	if s.Result != "forty-two" {
		t.Errorf("Result = %q", s.Result)
	}
	if caller.calls != 1 {
		t.Errorf("inference calls = %d, want 1", caller.calls)
	}
	if streams.openCalls != 1 || streams.closeCalls != 1 {
		t.Errorf("open=%d close=%d, want 1/1", streams.openCalls, streams.closeCalls)
	}
	if s.Spent.Int64() != 700 {
		t.Errorf("Spent = %s, want 700", s.Spent)
	}
	if s.Paid.Int64() != 600 || s.Refund.Int64() != 5400 {
		t.Errorf("Paid/Refund = %s/%s, want 600/5400", s.Paid, s.Refund)
	}
}

func TestExecuteInferenceFailureStillCloses(t *testing.T) {
	streams := &fakeStreams{opened: &stream.Opened{ID: big.NewInt(3)}}
	o := newTestOrchestrator(t, Params{
		Catalog:  &fakeCatalog{providers: []*blockchain.Provider{activeProvider(1, 100)}},
		Streams:  streams,
		Caller:   &fakeCaller{err: errors.New("provider returned 500: backend down")},
		Balances: &fakeBalances{vals: []*big.Int{big.NewInt(100000), big.NewInt(99990)}},
	})

	s := o.Execute(context.Background(), "hello")

	if s.Phase != PhaseSettled {
		t.Fatalf("Phase = %s, want %s", s.Phase, PhaseSettled)
	}
	if !s.InferenceFailed || s.InferenceErr == "" {
		t.Error("inference failure not recorded")
	}
	if streams.closeCalls != 1 {
		t.Errorf("close calls = %d, want 1", streams.closeCalls)
	}
}

func TestExecuteOpenFailureNoClose(t *testing.T) {
	streams := &fakeStreams{openErr: stream.ErrInsufficientFunds}
	caller := &fakeCaller{}
	o := newTestOrchestrator(t, Params{
		Catalog:  &fakeCatalog{providers: []*blockchain.Provider{activeProvider(1, 100)}},
		Streams:  streams,
		Caller:   caller,
		Balances: &fakeBalances{vals: []*big.Int{big.NewInt(100)}},
	})

	s := o.Execute(context.Background(), "hello")

	if s.Phase != PhaseFailed {
		t.Errorf("Phase = %s, want %s", s.Phase, PhaseFailed)
	}
	if !errors.Is(s.Err, stream.ErrInsufficientFunds) {
		t.Errorf("Err = %v, want ErrInsufficientFunds", s.Err)
	}
	if streams.closeCalls != 0 {
		t.Errorf("close attempted for a stream that never opened: %d", streams.closeCalls)
	}
	if caller.calls != 0 {
		t.Errorf("inference attempted without an open stream: %d", caller.calls)
	}
}

func TestExecuteCloseFailure(t *testing.T) {
	streams := &fakeStreams{
		opened:   &stream.Opened{ID: big.NewInt(9)},
		closeErr: stream.ErrLedgerUnavailable,
	}
	o := newTestOrchestrator(t, Params{
		Catalog:  &fakeCatalog{providers: []*blockchain.Provider{activeProvider(1, 100)}},
		Streams:  streams,
		Caller:   &fakeCaller{resp: &inference.Response{Result: "ok"}},
		Balances: &fakeBalances{vals: []*big.Int{big.NewInt(100000)}},
	})

	s := o.Execute(context.Background(), "hello")

	if s.Phase != PhaseFailed {
		t.Errorf("Phase = %s, want %s", s.Phase, PhaseFailed)
	}
	if !errors.Is(s.Err, stream.ErrLedgerUnavailable) {
		t.Errorf("Err = %v, want ErrLedgerUnavailable", s.Err)
	}
	if s.StreamID == nil || s.StreamID.Int64() != 9 {
		t.Errorf("StreamID = %v, want 9 for manual recovery", s.StreamID)
	}
}

func TestExecuteAlreadyClosedIsSettled(t *testing.T) {
	streams := &fakeStreams{
		opened:  &stream.Opened{ID: big.NewInt(5)},
		receipt: &stream.CloseReceipt{StreamID: big.NewInt(5), AlreadyClosed: true},
	}
	o := newTestOrchestrator(t, Params{
		Catalog:  &fakeCatalog{providers: []*blockchain.Provider{activeProvider(1, 100)}},
		Streams:  streams,
		Caller:   &fakeCaller{resp: &inference.Response{Result: "ok"}},
		Balances: &fakeBalances{vals: []*big.Int{big.NewInt(100000), big.NewInt(99000)}},
	})

	s := o.Execute(context.Background(), "hello")

	if s.Phase != PhaseSettled {
		t.Fatalf("Phase = %s, want %s", s.Phase, PhaseSettled)
	}
	if !s.CloseAlreadyDone {
		t.Error("CloseAlreadyDone not set")
	}
}

// cancellingCaller cancels the caller-level context from inside the serving
// leg, modeling a caller timeout firing while the inference wait is pending.
type cancellingCaller struct {
	cancel context.CancelFunc
	calls  int
}

func (c *cancellingCaller) Call(ctx context.Context, endpoint string, req *inference.Request) (*inference.Response, error) {
	c.calls++
	c.cancel()
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestExecuteCancelledDuringServingStillCloses(t *testing.T) {
	streams := &fakeStreams{opened: &stream.Opened{ID: big.NewInt(11)}}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	caller := &cancellingCaller{cancel: cancel}

	o := newTestOrchestrator(t, Params{
		Catalog:  &fakeCatalog{providers: []*blockchain.Provider{activeProvider(1, 100)}},
		Streams:  streams,
		Caller:   caller,
		Balances: &fakeBalances{vals: []*big.Int{big.NewInt(100000), big.NewInt(99990)}},
	})

	s := o.Execute(ctx, "hello")

	if streams.closeCalls != 1 {
		t.Fatalf("close calls = %d, want 1 despite cancelled caller context", streams.closeCalls)
	}
	if streams.closeCtxDone {
		t.Error("close attempt ran on an already-cancelled context")
	}
	if s.Phase != PhaseSettled {
		t.Errorf("Phase = %s, want %s", s.Phase, PhaseSettled)
	}
	if !s.InferenceFailed {
		t.Error("cancelled inference wait not recorded as a serving failure")
	}
}

func TestExecuteSelectsCheapestProvider(t *testing.T) {
	cheap := activeProvider(2, 10)
	streams := &fakeStreams{opened: &stream.Opened{ID: big.NewInt(1)}}
	o := newTestOrchestrator(t, Params{
		Catalog:  &fakeCatalog{providers: []*blockchain.Provider{activeProvider(1, 100), cheap}},
		Streams:  streams,
		Caller:   &fakeCaller{resp: &inference.Response{Result: "ok"}},
		Balances: &fakeBalances{vals: []*big.Int{big.NewInt(100000), big.NewInt(99999)}},
	})

	s := o.Execute(context.Background(), "hello")

	if s.Provider == nil || s.Provider.ID.Cmp(cheap.ID) != 0 {
		t.Errorf("selected provider %v, want id 2", s.Provider)
	}
}
