// Package scanner implements the external-chain interface and signing
// state machine from spec.md §4.F: a chain-agnostic contract any
// supported network implements, plus the TransactionMachine that drives
// FROST/MuSig signing over it, and a rebroadcast loop for transactions
// whose confirmation is still pending.
//
// Grounded on the teacher's eth/downloader-style block-by-block scan
// loop (fetch next, validate against parent, persist, advance cursor)
// generalized from a single-chain syncer into the pluggable multi-chain
// ExternalChain contract spec.md §4.F/§9 names.
package scanner

import (
	"context"
	"errors"

	"github.com/tos-network/custody/internal/common"
	"github.com/tos-network/custody/scheduler"
)

// SignableTransaction is an unsigned transaction ready for the
// TransactionMachine's three-round protocol.
type SignableTransaction struct {
	PlanID [32]byte
	Data   []byte // chain-specific unsigned transaction encoding
}

// ExternalChain is the contract every supported network implements, per
// spec.md §4.F/§9 (~12 methods): enough for the scanner to walk blocks,
// classify outputs, and the scheduler to build/sign/broadcast Plans
// without either package knowing which concrete chain it's talking to.
type ExternalChain interface {
	// Network identifies which common.NetworkID this implements.
	Network() common.NetworkID

	// LatestBlockNumber returns the chain tip the scanner should not
	// scan past without further confirmations.
	LatestBlockNumber(ctx context.Context) (uint64, error)

	// ConfirmationsRequired is the fixed depth a block must be buried to
	// before its outputs are included in a Batch (spec.md §4.E).
	ConfirmationsRequired() uint64

	// BlockOutputs returns every Output this multisig received in block
	// number `number`, with its InInstruction decoded if present.
	BlockOutputs(ctx context.Context, number uint64) ([]ScannedOutput, error)

	// DecodeInstruction extracts a scheduler.Instruction from raw
	// transaction data, if one is present.
	DecodeInstruction(data []byte) (*scheduler.Instruction, bool)

	// SignableTransaction builds an unsigned transaction spending
	// plan.Inputs and satisfying plan.Payments (plus change).
	SignableTransaction(plan scheduler.Plan) (SignableTransaction, error)

	// Eventuality derives the fingerprint a confirmed transaction must
	// match to be recognized as plan's completion.
	Eventuality(plan scheduler.Plan, signed SignableTransaction) scheduler.Eventuality

	// Fingerprint derives the same fingerprint space from a fully
	// observed on-chain transaction, for EventualityTracker.Match.
	Fingerprint(data []byte) [32]byte

	// Broadcast submits a fully-signed transaction.
	Broadcast(ctx context.Context, signed []byte) error

	// AttachSignature combines an unsigned transaction with its final
	// aggregated signature into a broadcastable wire transaction.
	AttachSignature(unsigned SignableTransaction, signature []byte) ([]byte, error)

	// DustThreshold is the minimum Output amount the scanner will credit
	// as an inbound transfer (below-dust outputs are swept but not
	// reported, spec.md §4.E).
	DustThreshold() common.Amount

	// WindowLength bounds how many blocks one scan iteration covers,
	// trading latency for batch size.
	WindowLength() uint64

	// NeededFee computes the fee a transaction spending inputs and
	// satisfying payments (plus optional change) would require, or nil if
	// even a zero-payment transaction is unfulfillable from inputs alone
	// (spec.md §4.E step 2: "needed_fee(inputs,payments,change) ->
	// Option<fee>, None iff even zero-output TX unfulfillable").
	NeededFee(inputs []scheduler.Output, payments []scheduler.Payment, change *common.Amount) (*common.Amount, error)

	// MinOutputs is the fewest outputs a valid transaction on this chain
	// may have (Monero requires at least 2, forcing a sentinel payment
	// when amortization would otherwise leave exactly one; most chains
	// return 1).
	MinOutputs() int
}

// ScannedOutput is one multisig-received Output plus its optional decoded
// instruction, as BlockOutputs reports it.
type ScannedOutput struct {
	Output      scheduler.Output
	Instruction *scheduler.Instruction
}

var (
	ErrChainReorg      = errors.New("scanner: chain tip moved behind our cursor (reorg beyond confirmation depth)")
	ErrNotYetConfirmed = errors.New("scanner: requested block has not reached confirmation depth")
)
