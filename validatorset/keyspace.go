// Package validatorset implements the validator-set ledger from
// spec.md §4.G: staking/allocation bookkeeping, session rotation,
// economic-security gating before a session's keys may be trusted with
// funds, and MuSig-gated on-chain key confirmation.
//
// The KV keyspace below is grounded on the teacher's staking package
// (staking/state.go's per-validator slot layout) generalized from a
// single flat balance mapping to the richer set of indices spec.md §4.G
// names, including the descending-order SortedAllocations index built
// with internal/database's InvertedUint64Bytes the same way go-ethereum
// family trie iterators invert keys for reverse range scans.
package validatorset

import (
	"github.com/tos-network/custody/internal/common"
	"github.com/tos-network/custody/internal/database"
)

// Keyspace namespaces every validatorset KV key under one component tag,
// wrapping a database.KeyValueStore.
type Keyspace struct {
	db database.KeyValueStore
}

// NewKeyspace wraps db.
func NewKeyspace(db database.KeyValueStore) *Keyspace {
	return &Keyspace{db: db}
}

const component = "validatorset"

func netBytes(n common.NetworkID) []byte { return []byte{byte(n)} }

// CurrentSessionKey: component | network -> Session (uint32).
func (k *Keyspace) CurrentSessionKey(network common.NetworkID) []byte {
	return database.Key(component, []byte("current-session"), netBytes(network))
}

// AllocationPerKeyShareKey: component | network -> Amount, the stake
// required per key share in this network (spec.md §4.G economic-security
// gate input).
func (k *Keyspace) AllocationPerKeyShareKey(network common.NetworkID) []byte {
	return database.Key(component, []byte("allocation-per-share"), netBytes(network))
}

// ParticipantsKey: component | network | session -> []common.Validator,
// the fixed membership of a session once rotated-into.
func (k *Keyspace) ParticipantsKey(set common.ValidatorSet) []byte {
	return database.Key(component, []byte("participants"), netBytes(set.Network), database.Uint32Bytes(uint32(set.Session)))
}

// InSetKey: component | network | validator -> bool (single byte), O(1)
// membership check for the *current* session without re-fetching the
// full participant list.
func (k *Keyspace) InSetKey(network common.NetworkID, validator common.Validator) []byte {
	return database.Key(component, []byte("in-set"), netBytes(network), validator[:])
}

// TotalAllocatedStakeKey: component | network -> Amount.
func (k *Keyspace) TotalAllocatedStakeKey(network common.NetworkID) []byte {
	return database.Key(component, []byte("total-stake"), netBytes(network))
}

// AllocationsKey: component | network | validator -> Amount, a
// validator's current stake allocation to `network`.
func (k *Keyspace) AllocationsKey(network common.NetworkID, validator common.Validator) []byte {
	return database.Key(component, []byte("allocations"), netBytes(network), validator[:])
}

// SortedAllocationsKey: component | network | InvertedUint64Bytes(amount) | validator
// -> nothing (key existence is the record); iterating this prefix in
// lexical order yields validators from highest to lowest allocation,
// which is exactly the order new_set's selection algorithm needs
// (spec.md §4.G).
func (k *Keyspace) SortedAllocationsKey(network common.NetworkID, amount common.Amount, validator common.Validator) []byte {
	return database.Key(component, []byte("sorted-allocations"), netBytes(network), database.InvertedUint64Bytes(uint64(amount)), validator[:])
}

func (k *Keyspace) SortedAllocationsPrefix(network common.NetworkID) []byte {
	return database.Key(component, []byte("sorted-allocations"), netBytes(network))
}

// PendingDeallocationKey: component | network | validator | unlock-session
// -> Amount, a deallocation queued to take effect once unlock-session is
// reached (spec.md §4.G's deallocation-timing scenario).
func (k *Keyspace) PendingDeallocationKey(network common.NetworkID, validator common.Validator, unlockSession common.Session) []byte {
	return database.Key(component, []byte("pending-deallocation"), netBytes(network), validator[:], database.Uint32Bytes(uint32(unlockSession)))
}

func (k *Keyspace) PendingDeallocationPrefix(network common.NetworkID, validator common.Validator) []byte {
	return database.Key(component, []byte("pending-deallocation"), netBytes(network), validator[:])
}

// KeysKey: component | network | session -> common.KeyPair, the
// MuSig-confirmed key pair this session signs with once set_keys lands.
func (k *Keyspace) KeysKey(set common.ValidatorSet) []byte {
	return database.Key(component, []byte("keys"), netBytes(set.Network), database.Uint32Bytes(uint32(set.Session)))
}

// PendingSlashReportKey: component | network | session -> []byte (encoded
// slash report), staged evidence awaiting the next session rotation to
// apply (spec.md §4.G).
func (k *Keyspace) PendingSlashReportKey(set common.ValidatorSet) []byte {
	return database.Key(component, []byte("pending-slash"), netBytes(set.Network), database.Uint32Bytes(uint32(set.Session)))
}

// SeraiDisabledIndicesKey: component -> []uint16, validator indices
// Babe/Grandpa equivocation has disabled on the main Serai chain and
// which new_set must therefore exclude everywhere (spec.md §4.G).
func (k *Keyspace) SeraiDisabledIndicesKey() []byte {
	return database.Key(component, []byte("serai-disabled-indices"))
}

// HandoverCompletedKey: component | network | session -> bool (single
// byte), set once a session's outgoing set has finished handing off
// signing duty to its successor. ClaimDeallocation gates on the
// predecessor session's handover having completed (spec.md §8 scenario
// 3: "claim_deallocation(serai,5) succeeds only ... after session 4's
// handover completion").
func (k *Keyspace) HandoverCompletedKey(set common.ValidatorSet) []byte {
	return database.Key(component, []byte("handover-completed"), netBytes(set.Network), database.Uint32Bytes(uint32(set.Session)))
}
