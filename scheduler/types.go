// Package scheduler implements the multisig scheduler from spec.md §4.E:
// the inbound scan -> Batch pipeline, the outbound Burn -> Plan -> Sign
// pipeline with fee amortization, and Eventuality tracking that matches
// a chain's confirmed transactions back to the Plan that produced them.
//
// Grounded on the teacher's tosdb-backed accumulator pattern (state.go's
// incremental balance/nonce bookkeeping keyed by account) generalized
// from per-account state to per-Plan state, and on
// original_source/processor/src/multisigs/scheduler/mod.rs for the fee
// amortization and dust-handling algorithm spec.md §8 scenario 5 derives
// its literal numbers from.
package scheduler

import (
	"errors"

	"github.com/tos-network/custody/internal/common"
)

// Instruction is a decoded inbound-transfer annotation (spec.md §4.E:
// "decode an InInstruction from the transaction's data").
type Instruction struct {
	Destination [32]byte // Serai account the funds credit
	Data        []byte
}

// MaxInstructionDataLen bounds an inbound instruction's opaque data
// payload (spec.md §4.E: "limited to MAX_DATA_LEN bytes; oversize data
// fails the instruction"); a failed instruction still credits an
// External output, it just carries no routing information.
const MaxInstructionDataLen = 512

// OutputTag classifies which subaddress an Output was received on,
// per spec.md §4.E's "tagged by subaddress (External/Branch/Change/
// Forwarded)".
type OutputTag uint8

const (
	OutputExternal OutputTag = iota
	OutputBranch
	OutputChange
	OutputForwarded
)

// Batch is one inbound-confirmation unit submitted to Serai consensus,
// carrying every InInstruction observed in one scan window.
type Batch struct {
	Network      common.NetworkID
	ID           uint32
	Instructions []Instruction
}

// Output is one coin unit available to be spent by a Plan, generalized
// over UTXO-style (one Output per unspent coin) and account-style (one
// Output per external-address balance) chains alike.
type Output struct {
	ID     [32]byte
	Amount common.Amount
	Tag    OutputTag
}

// Payment is one outbound transfer a Plan must satisfy. Branch marks a
// payment that funds an intermediate branch address (rather than a
// final external destination), which PostFeeBranch reporting and the
// single-external-output sentinel check (spec.md §4.E step 4) both
// treat differently from an ordinary payment.
type Payment struct {
	Destination []byte // chain-specific external address encoding
	Amount      common.Amount
	Branch      bool
}

// Plan is the unit of outbound signing: a selection of Outputs to spend,
// Payments to satisfy, and the change (if any) returned to the multisig.
type Plan struct {
	ID       [32]byte
	Inputs   []Output
	Payments []Payment
	Change   *common.Amount
}

var (
	ErrInsufficientFunds = errors.New("scheduler: selected outputs do not cover payments and fee")
	ErrDustPayment       = errors.New("scheduler: payment amount is below the dust threshold")
	ErrNoPayments        = errors.New("scheduler: plan has no payments and no change destination")
	ErrPlanUnfulfillable = errors.New("scheduler: even a zero-output transaction is unfulfillable from these inputs")
)

// PostFeeBranch reports a branch payment that amortization reduced below
// DustThreshold and so dropped, so a downstream scheduler relying on that branch's
// output knows it never materialized (spec.md §4.E step 3).
type PostFeeBranch struct {
	Expected common.Amount
	Actual   *common.Amount
}

// EventualityStatus is the outcome of matching a chain's confirmed
// transaction against a Plan's Eventuality.
type EventualityStatus uint8

const (
	EventualityPending EventualityStatus = iota
	EventualityCompleted
	EventualityReplacedByFee // fee-bumped variant of the same Plan matched instead
)

// Eventuality is the chain-specific fingerprint a confirmed transaction
// must match to be recognized as this Plan's completion (spec.md §4.E/
// §4.F: "EventualityTracker"), represented here as an opaque fingerprint
// since the exact encoding is chain-specific (UTXO input set hash for
// Bitcoin-style chains, nonce+calldata hash for account-style chains).
type Eventuality struct {
	Key         [32]byte
	PlanID      [32]byte
	Fingerprint [32]byte
}
