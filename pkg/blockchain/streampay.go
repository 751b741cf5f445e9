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

// streamPayABI is the subset of the StreamPay contract interface used by the
// agents: stream creation/cancellation, counters and protocol stats.
const streamPayABI = `[
	{"type":"function","name":"createStream","stateMutability":"payable","inputs":[{"name":"recipient","type":"address"},{"name":"duration","type":"uint256"},{"name":"streamType","type":"string"},{"name":"computeProviderId","type":"uint256"}],"outputs":[{"name":"streamId","type":"uint256"}]},
	{"type":"function","name":"cancelStream","stateMutability":"nonpayable","inputs":[{"name":"streamId","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"totalStreamsCreated","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"getProtocolStats","stateMutability":"view","inputs":[],"outputs":[
		{"name":"totalStreams","type":"uint256"},
		{"name":"totalUpdates","type":"uint256"},
		{"name":"totalVolume","type":"uint256"},
		{"name":"activeStreams","type":"uint256"},
		{"name":"lastUpdate","type":"uint256"}]},
	{"type":"function","name":"getSenderStreams","stateMutability":"view","inputs":[{"name":"sender","type":"address"}],"outputs":[{"name":"","type":"uint256[]"}]},
	{"type":"function","name":"getRecipientStreams","stateMutability":"view","inputs":[{"name":"recipient","type":"address"}],"outputs":[{"name":"","type":"uint256[]"}]},
	{"type":"event","name":"StreamCreated","anonymous":false,"inputs":[{"name":"streamId","type":"uint256","indexed":true},{"name":"sender","type":"address","indexed":true},{"name":"recipient","type":"address","indexed":true},{"name":"deposit","type":"uint256","indexed":false},{"name":"duration","type":"uint256","indexed":false}]},
	{"type":"event","name":"StreamCancelled","anonymous":false,"inputs":[{"name":"streamId","type":"uint256","indexed":true},{"name":"senderRefund","type":"uint256","indexed":false},{"name":"recipientPayout","type":"uint256","indexed":false}]}
]`

// ProtocolStats mirrors the getProtocolStats view on StreamPay.
type ProtocolStats struct {
	TotalStreams  *big.Int
	TotalUpdates  *big.Int
	TotalVolume   *big.Int
	ActiveStreams *big.Int
	LastUpdate    *big.Int
}

// StreamCreatedEvent is the decoded StreamCreated log emitted on creation.
// StreamID is the ledger-assigned identifier; reading it from the creation
// receipt is the authoritative way to learn a new stream's id.
type StreamCreatedEvent struct {
	StreamID  *big.Int
	Sender    common.Address
	Recipient common.Address
	Deposit   *big.Int
	Duration  *big.Int
}

// StreamCancelledEvent is the decoded StreamCancelled log emitted on
// cancellation, carrying the final split of the escrowed deposit.
type StreamCancelledEvent struct {
	StreamID        *big.Int
	SenderRefund    *big.Int
	RecipientPayout *big.Int
}

// StreamPay is a typed wrapper over the deployed StreamPay contract.
type StreamPay struct {
	address  common.Address
	abi      abi.ABI
	contract *bind.BoundContract
}

// NewStreamPay binds the StreamPay contract at the given address.
func NewStreamPay(address common.Address, backend bind.ContractBackend) (*StreamPay, error) {
	parsed, err := abi.JSON(strings.NewReader(streamPayABI))
	if err != nil {
		return nil, err
	}
	return &StreamPay{
		address:  address,
		abi:      parsed,
		contract: bind.NewBoundContract(address, parsed, backend, backend, backend),
	}, nil
}

// Address returns the bound contract address.
func (s *StreamPay) Address() common.Address {
	return s.address
}

// CreateStream opens a new payment stream to recipient, metered per second for
// at most duration seconds. The escrowed deposit is carried in opts.Value.
func (s *StreamPay) CreateStream(opts *bind.TransactOpts, recipient common.Address, duration *big.Int, streamType string, computeProviderID *big.Int) (*types.Transaction, error) {
	return s.contract.Transact(opts, "createStream", recipient, duration, streamType, computeProviderID)
}

// CancelStream cancels an open stream, releasing unused escrow to the sender.
func (s *StreamPay) CancelStream(opts *bind.TransactOpts, streamID *big.Int) (*types.Transaction, error) {
	return s.contract.Transact(opts, "cancelStream", streamID)
}

// TotalStreamsCreated returns the ledger-global stream creation counter.
func (s *StreamPay) TotalStreamsCreated(opts *bind.CallOpts) (*big.Int, error) {
	var out []interface{}
	if err := s.contract.Call(opts, &out, "totalStreamsCreated"); err != nil {
		return nil, err
	}
	return out[0].(*big.Int), nil
}

// GetProtocolStats returns aggregate protocol counters.
func (s *StreamPay) GetProtocolStats(opts *bind.CallOpts) (*ProtocolStats, error) {
	var out []interface{}
	if err := s.contract.Call(opts, &out, "getProtocolStats"); err != nil {
		return nil, err
	}
	return &ProtocolStats{
		TotalStreams:  out[0].(*big.Int),
		TotalUpdates:  out[1].(*big.Int),
		TotalVolume:   out[2].(*big.Int),
		ActiveStreams: out[3].(*big.Int),
		LastUpdate:    out[4].(*big.Int),
	}, nil
}

// GetSenderStreams returns ids of streams created by the given sender.
func (s *StreamPay) GetSenderStreams(opts *bind.CallOpts, sender common.Address) ([]*big.Int, error) {
	var out []interface{}
	if err := s.contract.Call(opts, &out, "getSenderStreams", sender); err != nil {
		return nil, err
	}
	return out[0].([]*big.Int), nil
}

// GetRecipientStreams returns ids of streams paying the given recipient.
func (s *StreamPay) GetRecipientStreams(opts *bind.CallOpts, recipient common.Address) ([]*big.Int, error) {
	var out []interface{}
	if err := s.contract.Call(opts, &out, "getRecipientStreams", recipient); err != nil {
		return nil, err
	}
	return out[0].([]*big.Int), nil
}

// ParseStreamCreated decodes a StreamCreated event from the given log. It
// returns an error when the log does not match the event signature or was not
// emitted by the bound contract.
func (s *StreamPay) ParseStreamCreated(log types.Log) (*StreamCreatedEvent, error) {
	ev := s.abi.Events["StreamCreated"]
	if log.Address != s.address || len(log.Topics) < 4 || log.Topics[0] != ev.ID {
		return nil, fmt.Errorf("log is not a StreamCreated event")
	}
	values, err := s.abi.Unpack("StreamCreated", log.Data)
	if err != nil {
		return nil, fmt.Errorf("unpack StreamCreated: %w", err)
	}
	return &StreamCreatedEvent{
		StreamID:  new(big.Int).SetBytes(log.Topics[1].Bytes()),
		Sender:    common.BytesToAddress(log.Topics[2].Bytes()),
		Recipient: common.BytesToAddress(log.Topics[3].Bytes()),
		Deposit:   values[0].(*big.Int),
		Duration:  values[1].(*big.Int),
	}, nil
}

// ParseStreamCancelled decodes a StreamCancelled event from the given log.
func (s *StreamPay) ParseStreamCancelled(log types.Log) (*StreamCancelledEvent, error) {
	ev := s.abi.Events["StreamCancelled"]
	if log.Address != s.address || len(log.Topics) < 2 || log.Topics[0] != ev.ID {
		return nil, fmt.Errorf("log is not a StreamCancelled event")
	}
	values, err := s.abi.Unpack("StreamCancelled", log.Data)
	if err != nil {
		return nil, fmt.Errorf("unpack StreamCancelled: %w", err)
	}
	return &StreamCancelledEvent{
		StreamID:        new(big.Int).SetBytes(log.Topics[1].Bytes()),
		SenderRefund:    values[0].(*big.Int),
		RecipientPayout: values[1].(*big.Int),
	}, nil
}

// StreamCreatedFromReceipt scans a creation receipt for the StreamCreated
// event and returns the decoded event, or false when the receipt carries no
// matching log.
func (s *StreamPay) StreamCreatedFromReceipt(receipt *types.Receipt) (*StreamCreatedEvent, bool) {
	for _, log := range receipt.Logs {
		if log == nil {
			continue
		}
		ev, err := s.ParseStreamCreated(*log)
		if err == nil {
			return ev, true
		}
	}
	return nil, false
}

// StreamCancelledFromReceipt scans a cancellation receipt for the
// StreamCancelled event and returns the decoded event, or false when the
// receipt carries no matching log.
func (s *StreamPay) StreamCancelledFromReceipt(receipt *types.Receipt) (*StreamCancelledEvent, bool) {
	for _, log := range receipt.Logs {
		if log == nil {
			continue
		}
		ev, err := s.ParseStreamCancelled(*log)
		if err == nil {
			return ev, true
		}
	}
	return nil, false
}
