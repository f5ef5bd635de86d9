// Package tributary implements the per-ValidatorSet transaction log from
// spec.md §4.C: a small append-only chain whose blocks carry DKG and
// signing-protocol messages, ordered and nonce-gated independently of the
// main Serai chain so a validator set's internal coordination never
// blocks on substrate finality.
//
// Transaction variants and round accumulation are grounded on the same
// shape the teacher's consensus/bft package uses for vote accumulation
// (VotePool keyed by round), generalized here to accumulate signing-round
// messages keyed by (topic, label, attempt) instead of just round.
package tributary

import (
	"errors"

	mapset "github.com/deckarep/golang-set"
)

// TxKind enumerates every Transaction variant spec.md §3/§4.C names.
type TxKind uint8

const (
	TxRemoveParticipant TxKind = iota
	TxDkgCommitments
	TxDkgShares
	TxInvalidDkgShare
	TxDkgConfirmed
	TxCosignSubstrateBlock
	TxBatch
	TxBatchProvided
	TxSubstrateBlock
	TxSubstrateBlockProvided
	TxSubstratePreprocess
	TxSubstrateShare
	TxSignPreprocess
	TxSignShare
	TxSignCompleted
	TxSignCompletedUnsigned
)

// Label distinguishes the round a SignData<Id> belongs to.
type Label uint8

const (
	LabelPreprocess Label = iota
	LabelShare
	// LabelConfirm accumulates a DKG session's DkgConfirmed signatures,
	// a distinct round from the preprocess/share rounds that produce the
	// key itself (spec.md §4.C lists DkgConfirmed alongside the other
	// round-based transaction kinds).
	LabelConfirm
)

// Topic identifies what a signing round is about: a specific plan/batch
// id plus which protocol stage (dkg vs sign vs substrate-cosign) it
// belongs to, matching spec.md §4.C's "(topic, label, attempt)" key.
type Topic struct {
	Kind TxKind
	ID   [32]byte
}

// RoundKey is the full accumulation key: topic, label and attempt number
// (attempts restart a round from scratch after a failed/slow signer is
// identified and excluded, spec.md §4.C).
type RoundKey struct {
	Topic   Topic
	Label   Label
	Attempt uint32
}

// SignData is the generic payload shape for preprocess/share round
// messages, parameterized (via raw bytes here, since Go lacks the
// ergonomic generics the original's SignData<Id> enjoys without erasing
// type safety at this layer; callers decode Id themselves) over whatever
// identifier the signing round concerns (a plan id, a batch id, ...).
type SignData struct {
	Key      [32]byte // the network key share index this is signed under is carried out-of-band by the caller
	Data     [][]byte // one entry per key share the signer holds (see splitShares)
	Signer   [32]byte // common.Validator
	Round    RoundKey
}

// Transaction is one entry in a Tributary block.
type Transaction struct {
	Kind   TxKind
	Nonce  uint32
	Signer [32]byte
	// Provided transactions (Batch/SubstrateBlock) carry data *agreed*
	// by validator-set consensus rather than signed by one party, and so
	// have no ordinary nonce — they're injected by every honest node
	// identically once their precondition is externally known true.
	Provided bool
	Payload  []byte

	// TopicID and Attempt identify which signing round a round-based
	// transaction (DkgCommitments/DkgShares/DkgConfirmed,
	// SubstratePreprocess/Share, SignPreprocess/Share) belongs to; unused
	// for Provided and one-shot kinds. Attempt is the signer's claimed
	// data_attempt, checked against the round's current attempt
	// (spec.md §4.C).
	TopicID [32]byte
	Attempt uint32
	// ShareCount is the number of entries this transaction's share array
	// carries, cross-checked against the signer's key-share count
	// (spec.md §4.C: "Share-array length is cross-checked against the
	// signer's key-share count; mismatches fatal-slash"). Zero means "not
	// applicable" (e.g. a preprocess message, which carries one entry per
	// key share but isn't length-gated the same way).
	ShareCount int
}

var (
	ErrWrongNonce               = errors.New("tributary: nonce does not match expected next nonce for signer")
	ErrProvidedNonce            = errors.New("tributary: provided transactions carry no nonce")
	ErrUnknownRound             = errors.New("tributary: round not found")
	ErrDuplicateTx              = errors.New("tributary: duplicate transaction for signer+nonce")
	ErrPublishedWithoutAttempt  = errors.New("tributary: data published for a (topic, label) with no attempt in progress")
	ErrPublishedMultipleTimes   = errors.New("tributary: signer already posted for this (topic, label, attempt)")
	ErrPrematureAttempt         = errors.New("tributary: data_attempt exceeds the round's current attempt")
	ErrShareCountMismatch       = errors.New("tributary: share-array length does not match signer's key-share count")
)

// NewRemoveParticipantSet returns an empty golang-set, the same kind of
// set Log's fatal-slash bookkeeping keeps per offender; Log creates its
// own sets and does not call this (spec.md §4.C: once f+1 RemoveParticipant
// votes name the same validator, it's evicted from the round without
// waiting for the full set to agree).
func NewRemoveParticipantSet() mapset.Set {
	return mapset.NewSet()
}
