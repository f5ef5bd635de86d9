// Package tendermint implements the per-ValidatorSet BFT consensus
// instance from spec.md §4.B: a single-threaded cooperative state machine
// advanced by a select loop over new messages, timeouts, proposer ticks,
// block-sync injection and a 60-second rebroadcast timer.
//
// The vote/quorum-certificate vocabulary is generalized from the
// teacher's consensus/bft package (Vote, QC, VotePool, RequiredQuorumWeight)
// into the full propose/prevote/precommit/commit state machine Tendermint
// requires, including jump-ahead and equivocation evidence, which the
// teacher's HotStuff-style QC pool does not need (it has no locking/valid
// round bookkeeping) but spec.md §4.B does.
package tendermint

import (
	"errors"
	"time"
)

// Step is the consensus step within a round.
type Step uint8

const (
	StepPropose Step = iota
	StepPrevote
	StepPrecommit
)

func (s Step) String() string {
	switch s {
	case StepPropose:
		return "propose"
	case StepPrevote:
		return "prevote"
	case StepPrecommit:
		return "precommit"
	default:
		return "unknown"
	}
}

// Hash is a 32-byte block/commit content hash.
type Hash [32]byte

var ZeroHash Hash

// ValidatorIndex is this validator-set-local index (not the global
// common.Validator key) used to key the message log.
type ValidatorIndex uint16

// Block is the minimal structure the state machine needs; callers attach
// the actual Tributary block (spec.md §3) behind Hash/Proposer.
type Block struct {
	Hash     Hash
	Proposer ValidatorIndex
	Round    uint64 // round in which this block was originally proposed
}

// Proposal is a signed proposal message.
type Proposal struct {
	Height     uint64
	Round      uint64
	ValidRound *uint64 // nil == Propose{None}; else references a prior round
	Block      Block
	Signer     ValidatorIndex
	Signature  []byte
}

// VoteKind distinguishes Prevote from Precommit messages (both share the
// same wire shape).
type VoteKind uint8

const (
	KindPrevote VoteKind = iota
	KindPrecommit
)

// Vote is a signed Prevote or Precommit. BlockHash == ZeroHash encodes a
// vote for nil.
type Vote struct {
	Kind      VoteKind
	Height    uint64
	Round     uint64
	BlockHash Hash
	Signer    ValidatorIndex
	// EndTime is only meaningful for Precommit: the signature covers
	// commit_msg(end_time(round), id), per spec.md §4.B.
	EndTime   time.Time
	Signature []byte
}

// Commit is the artifact produced once ⅔+ precommits agree on a value.
type Commit struct {
	Height     uint64
	Round      uint64
	BlockHash  Hash
	EndTime    time.Time
	Validators []ValidatorIndex
	Signatures [][]byte
}

// Evidence is a Byzantine-fault proof, carrying the exact signed bytes so
// any third party can independently replicate the check (spec.md §4.B).
type Evidence struct {
	Kind        EvidenceKind
	Height      uint64
	Offender    ValidatorIndex
	MessageA    []byte
	MessageB    []byte // empty for single-message evidence kinds
}

type EvidenceKind uint8

const (
	// EvidenceConflictingMessages: two distinct signed messages from the
	// same (sender, height, round, step).
	EvidenceConflictingMessages EvidenceKind = iota
	// EvidenceBadCommitSignature: a Precommit whose signature doesn't
	// verify against commit_msg(end_time, id).
	EvidenceBadCommitSignature
	// EvidenceInvalidValidRound: a Proposal with ValidRound >= round.
	EvidenceInvalidValidRound
	// EvidenceFailToPropose: the elected proposer let Propose expire with
	// no valid proposal.
	EvidenceFailToPropose
)

var (
	ErrUnknownValidator  = errors.New("tendermint: unknown validator index")
	ErrWrongHeight       = errors.New("tendermint: message height does not match instance height")
	ErrStaleRound        = errors.New("tendermint: round has already been superseded")
	ErrBadSignature      = errors.New("tendermint: signature verification failed")
	ErrNotProposer       = errors.New("tendermint: proposal from non-elected proposer")
	ErrInvalidValidRound = errors.New("tendermint: ValidRound >= round")
	ErrBadEndTime        = errors.New("tendermint: precommit EndTime does not match round_end_time(round)")
)

// Signer abstracts over the validator's signing key so the state machine
// stays agnostic to which curve backs it (the coordinator curve, per
// spec.md §4.A/§4.G — set_keys and precommits share the same MuSig
// coordinator key family in this system).
type Signer interface {
	Sign(message []byte) ([]byte, error)
	Verify(validator ValidatorIndex, message, signature []byte) bool
}

// RequiredQuorumWeight returns the minimum weight for a classic
// Byzantine quorum (⅔+1), the same formula as the teacher's
// consensus/bft.RequiredQuorumWeight.
func RequiredQuorumWeight(total uint64) uint64 {
	if total == 0 {
		return 1
	}
	return (2*total)/3 + 1
}

// FaultWeight returns `f`, the maximum Byzantine weight tolerated for a
// quorum of `total`.
func FaultWeight(total uint64) uint64 {
	if total == 0 {
		return 0
	}
	return (total - 1) / 3
}

// CommitMessage is the exact byte string signed by a Precommit, per
// spec.md §4.B ("sign commit_msg(end_time(round), id)"). Exported so
// Evidence verification (which must replay this) lives next to it.
func CommitMessage(endTime time.Time, blockHash Hash) []byte {
	out := make([]byte, 0, 8+32)
	ts := endTime.UnixNano()
	for i := 7; i >= 0; i-- {
		out = append(out, byte(ts>>(8*i)))
	}
	out = append(out, blockHash[:]...)
	return out
}
