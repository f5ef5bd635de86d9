// Package common holds the cross-component data model shared by every
// package in this repository: network identifiers, sessions, validator
// sets, key pairs and participant index ranges (spec.md §3).
package common

import (
	"encoding/hex"
	"errors"
	"fmt"
)

// NetworkID is a closed enum identifying an external chain or the Serai
// coordination chain itself. It is hashed with Identity at the storage
// layer (never with a cryptographic hash) so adversaries cannot grind a
// colliding tag into a chosen keyspace slot.
type NetworkID uint8

const (
	NetworkSerai NetworkID = iota
	NetworkBitcoin
	NetworkEthereum
	NetworkMonero
)

func (n NetworkID) String() string {
	switch n {
	case NetworkSerai:
		return "serai"
	case NetworkBitcoin:
		return "bitcoin"
	case NetworkEthereum:
		return "ethereum"
	case NetworkMonero:
		return "monero"
	default:
		return fmt.Sprintf("network(%d)", uint8(n))
	}
}

// Session is a monotonically increasing, per-NetworkID counter set by the
// validator-set ledger (component G).
type Session uint32

// ValidatorSet pairs a NetworkID with a Session. Once created it is
// immutable; a new session always produces a new ValidatorSet value.
type ValidatorSet struct {
	Network NetworkID
	Session Session
}

func (s ValidatorSet) String() string {
	return fmt.Sprintf("%s-%d", s.Network, s.Session)
}

// MaxExternalKeyLen bounds the external-curve public key per spec.md §3.
const MaxExternalKeyLen = 96

// KeyPair is the output of the key-gen orchestrator (component D),
// persisted by the validator-set ledger (component G).
type KeyPair struct {
	// CoordinatorKey is a 32-byte Ristretto/Ed25519-family point.
	CoordinatorKey [32]byte
	// ExternalKey is chain-specific and variable length, <= MaxExternalKeyLen.
	ExternalKey []byte
}

// Validate checks the structural invariant on ExternalKey's length.
func (kp KeyPair) Validate() error {
	if len(kp.ExternalKey) == 0 || len(kp.ExternalKey) > MaxExternalKeyLen {
		return errors.New("common: external key length out of bounds")
	}
	return nil
}

func (kp KeyPair) String() string {
	return fmt.Sprintf("KeyPair{coordinator=%s, external=%s}",
		hex.EncodeToString(kp.CoordinatorKey[:]), hex.EncodeToString(kp.ExternalKey))
}

// MaxKeySharesPerSet bounds the total number of key shares a validator
// set may distribute (spec.md §3, "Participant index").
const MaxKeySharesPerSet = 150

// ShareRange is the half-open participant-index range `[Start, End)`
// assigned to one validator within a set. `End - Start` equals the
// validator's key-share count.
type ShareRange struct {
	Start uint16
	End   uint16
}

// Shares returns the number of key shares in the range.
func (r ShareRange) Shares() uint16 {
	if r.End < r.Start {
		return 0
	}
	return r.End - r.Start
}

// Contains reports whether idx falls in [Start, End).
func (r ShareRange) Contains(idx uint16) bool {
	return idx >= r.Start && idx < r.End
}

// Amount is an unsigned stake/value quantity. Kept as its own type (rather
// than a bare uint64) so accidental mixing with unrelated integers is
// caught at compile time, matching the teacher's habit of newtyping
// chain quantities (see core/types in the teacher repo).
type Amount uint64

// Validator identifies a staking/validating account. The coordinator
// curve is 32 bytes; we keep the address as opaque bytes rather than an
// EVM-style 20-byte common.Address since this system is not EVM-backed.
type Validator [32]byte

func (v Validator) String() string {
	return hex.EncodeToString(v[:])
}

// ValidatorFromBytes builds a Validator from a 32-byte slice.
func ValidatorFromBytes(b []byte) (Validator, error) {
	var v Validator
	if len(b) != len(v) {
		return v, fmt.Errorf("common: validator key must be %d bytes, got %d", len(v), len(b))
	}
	copy(v[:], b)
	return v, nil
}
