package validatorset

import (
	"errors"

	"github.com/tos-network/custody/internal/common"
	"github.com/tos-network/custody/internal/database"
	"github.com/tos-network/custody/crypto/musig"
)

// Ledger is the full validator-set state machine: stake
// allocation/deallocation, session rotation gated on economic security,
// and MuSig-confirmed key installation (spec.md §4.G).
type Ledger struct {
	ks *Keyspace
	db database.KeyValueStore
}

// NewLedger wraps db behind a Keyspace.
func NewLedger(db database.KeyValueStore) *Ledger {
	return &Ledger{ks: NewKeyspace(db), db: db}
}

var (
	ErrInsufficientAllocation     = errors.New("validatorset: deallocation exceeds current allocation")
	ErrNotEconomicallySecure      = errors.New("validatorset: total allocation does not clear the economic security gate")
	ErrKeysAlreadySet             = errors.New("validatorset: session already has confirmed keys")
	ErrBadMuSigProof              = errors.New("validatorset: set_keys MuSig signature does not verify against the session's participants")
	ErrDeallocationNotYetUnlocked = errors.New("validatorset: claim attempted before the deallocation's unlock session")
	ErrHandoverNotCompleted       = errors.New("validatorset: predecessor session's handover has not completed yet")
)

// DeallocationCooldown is the number of sessions a queued deallocation
// must wait before it may be claimed (spec.md §8 scenario 3: "+1 for
// already-decided next, +1 for cooldown, +1 for current").
const DeallocationCooldown = 3

// Allocate increases validator's stake allocation to network by amount,
// updating TotalAllocatedStake and the SortedAllocations index (which
// requires deleting the old sorted-key entry before writing the new one,
// since the key itself encodes the amount).
func (l *Ledger) Allocate(network common.NetworkID, validator common.Validator, amount common.Amount) error {
	current, err := l.allocation(network, validator)
	if err != nil {
		return err
	}
	batch := l.db.NewBatch()
	if current > 0 {
		batch.Delete(l.ks.SortedAllocationsKey(network, current, validator))
	}
	newAmount := current + amount
	batch.Put(l.ks.AllocationsKey(network, validator), database.Uint64Bytes(uint64(newAmount)))
	batch.Put(l.ks.SortedAllocationsKey(network, newAmount, validator), []byte{1})

	total, err := l.totalAllocated(network)
	if err != nil {
		return err
	}
	batch.Put(l.ks.TotalAllocatedStakeKey(network), database.Uint64Bytes(uint64(total+amount)))
	return batch.Write()
}

// QueueDeallocation stages a withdrawal of amount from validator's
// network allocation, taking effect at currentSession+DeallocationCooldown
// rather than immediately — spec.md §4.G's deallocation-timing scenario:
// a deallocation queued mid-session must not reduce the stake backing
// the session currently in flight, and needs one full cooldown session
// plus the already-decided next session before it unlocks. The unlock
// session is always derived from the ledger's own CurrentSession, never
// supplied by the caller, so it can't be queued against a stale session.
func (l *Ledger) QueueDeallocation(network common.NetworkID, validator common.Validator, amount common.Amount) (common.Session, error) {
	current, err := l.allocation(network, validator)
	if err != nil {
		return 0, err
	}
	if amount > current {
		return 0, ErrInsufficientAllocation
	}
	currentSession, err := l.currentSession(network)
	if err != nil {
		return 0, err
	}
	unlockSession := currentSession + DeallocationCooldown
	if err := l.db.Put(l.ks.PendingDeallocationKey(network, validator, unlockSession), database.Uint64Bytes(uint64(amount))); err != nil {
		return 0, err
	}
	return unlockSession, nil
}

// ClaimDeallocation applies validator's deallocation queued for
// unlockSession, but only once BOTH: the ledger's current session has
// reached unlockSession, and the predecessor session (unlockSession-1)
// has finished its handover (spec.md §8 scenario 3: "claim_deallocation
// (serai,5) succeeds only at Session 5 and after session 4's handover
// completion").
func (l *Ledger) ClaimDeallocation(network common.NetworkID, validator common.Validator, unlockSession common.Session) error {
	currentSession, err := l.currentSession(network)
	if err != nil {
		return err
	}
	if currentSession < unlockSession {
		return ErrDeallocationNotYetUnlocked
	}
	var predecessor common.Session
	if unlockSession > 0 {
		predecessor = unlockSession - 1
	}
	completed, err := l.HandoverCompleted(common.ValidatorSet{Network: network, Session: predecessor})
	if err != nil {
		return err
	}
	if !completed {
		return ErrHandoverNotCompleted
	}
	return l.ApplyDeallocations(network, validator, currentSession)
}

// MarkHandoverCompleted records that set's outgoing participants have
// finished handing signing duty to their successor, unblocking
// ClaimDeallocation for deallocations unlocking at set.Session+1.
func (l *Ledger) MarkHandoverCompleted(set common.ValidatorSet) error {
	return l.db.Put(l.ks.HandoverCompletedKey(set), []byte{1})
}

// HandoverCompleted reports whether MarkHandoverCompleted has been
// called for set.
func (l *Ledger) HandoverCompleted(set common.ValidatorSet) (bool, error) {
	v, err := l.db.Get(l.ks.HandoverCompletedKey(set))
	if err != nil {
		if err == database.ErrKeyNotFound {
			return false, nil
		}
		return false, err
	}
	return len(v) > 0 && v[0] == 1, nil
}

func (l *Ledger) currentSession(network common.NetworkID) (common.Session, error) {
	v, err := l.db.Get(l.ks.CurrentSessionKey(network))
	if err != nil {
		if err == database.ErrKeyNotFound {
			return 0, nil
		}
		return 0, err
	}
	return common.Session(decodeUint32(v)), nil
}

// ApplyDeallocations applies every PendingDeallocation for validator in
// network whose unlock-session has now been reached (called by
// ClaimDeallocation).
func (l *Ledger) ApplyDeallocations(network common.NetworkID, validator common.Validator, currentSession common.Session) error {
	prefix := l.ks.PendingDeallocationPrefix(network, validator)
	iter := l.db.NewIterator(prefix)
	defer iter.Release()

	var toApply [][]byte
	for iter.Next() {
		// The key ends with the 4-byte big-endian unlock session.
		k := iter.Key()
		if len(k) < 4 || common.Session(decodeUint32(k[len(k)-4:])) > currentSession {
			continue
		}
		toApply = append(toApply, append([]byte(nil), k...))
	}
	if err := iter.Error(); err != nil {
		return err
	}

	for _, key := range toApply {
		v, err := l.db.Get(key)
		if err != nil {
			continue
		}
		amount := common.Amount(decodeUint64(v))
		current, err := l.allocation(network, validator)
		if err != nil {
			return err
		}
		if err := l.setAllocation(network, validator, current, current-amount); err != nil {
			return err
		}
		if err := l.db.Delete(key); err != nil {
			return err
		}
	}
	return nil
}

func (l *Ledger) setAllocation(network common.NetworkID, validator common.Validator, old, updated common.Amount) error {
	batch := l.db.NewBatch()
	batch.Delete(l.ks.SortedAllocationsKey(network, old, validator))
	batch.Put(l.ks.AllocationsKey(network, validator), database.Uint64Bytes(uint64(updated)))
	batch.Put(l.ks.SortedAllocationsKey(network, updated, validator), []byte{1})
	total, err := l.totalAllocated(network)
	if err != nil {
		return err
	}
	batch.Put(l.ks.TotalAllocatedStakeKey(network), database.Uint64Bytes(uint64(total-old+updated)))
	return batch.Write()
}

func (l *Ledger) allocation(network common.NetworkID, validator common.Validator) (common.Amount, error) {
	v, err := l.db.Get(l.ks.AllocationsKey(network, validator))
	if err != nil {
		if err == database.ErrKeyNotFound {
			return 0, nil
		}
		return 0, err
	}
	return common.Amount(decodeUint64(v)), nil
}

func (l *Ledger) totalAllocated(network common.NetworkID) (common.Amount, error) {
	v, err := l.db.Get(l.ks.TotalAllocatedStakeKey(network))
	if err != nil {
		if err == database.ErrKeyNotFound {
			return 0, nil
		}
		return 0, err
	}
	return common.Amount(decodeUint64(v)), nil
}

func decodeUint64(b []byte) uint64 {
	var v uint64
	for _, c := range b {
		v = v<<8 | uint64(c)
	}
	return v
}

// RotateSession computes the new session's participant set from the
// current SortedAllocations index, gates it on economic security against
// valueSecured, and if it passes, persists Participants/InSet/CurrentSession
// for the new session.
func (l *Ledger) RotateSession(network common.NetworkID, valueSecured common.Amount, disabled map[common.Validator]bool) (common.Session, []common.Validator, error) {
	perShare, err := l.db.Get(l.ks.AllocationPerKeyShareKey(network))
	if err != nil {
		return 0, nil, err
	}
	allocationPerShare := common.Amount(decodeUint64(perShare))

	total, err := l.totalAllocated(network)
	if err != nil {
		return 0, nil, err
	}
	if !EconomicallySecure(total, valueSecured) {
		return 0, nil, ErrNotEconomicallySecure
	}

	prefix := l.ks.SortedAllocationsPrefix(network)
	iter := l.db.NewIterator(prefix)
	defer iter.Release()

	var candidates []Candidate
	for iter.Next() {
		key := iter.Key()
		// database.Key length-prefixes every part, so the trailing 32
		// bytes are the literal validator value; the inverted-amount
		// value sits 8 bytes before that, offset by the 4-byte length
		// prefix database.Key wrote ahead of the validator part.
		validatorStart := len(key) - 32
		amountEnd := validatorStart - 4
		amountStart := amountEnd - 8
		var validator common.Validator
		copy(validator[:], key[validatorStart:])
		amount := database.UninvertUint64Bytes(key[amountStart:amountEnd])
		candidates = append(candidates, Candidate{Validator: validator, Allocation: common.Amount(amount)})
	}
	if err := iter.Error(); err != nil {
		return 0, nil, err
	}

	allocations := SelectSet(candidates, allocationPerShare, disabled)
	selected := Validators(allocations)

	sessionBytes, err := l.db.Get(l.ks.CurrentSessionKey(network))
	var session common.Session
	if err == nil {
		session = common.Session(decodeUint32(sessionBytes)) + 1
	} else if err == database.ErrKeyNotFound {
		session = 0
	} else {
		return 0, nil, err
	}

	batch := l.db.NewBatch()
	batch.Put(l.ks.CurrentSessionKey(network), database.Uint32Bytes(uint32(session)))
	set := common.ValidatorSet{Network: network, Session: session}
	var encoded []byte
	for _, v := range selected {
		encoded = append(encoded, v[:]...)
		batch.Put(l.ks.InSetKey(network, v), []byte{1})
	}
	batch.Put(l.ks.ParticipantsKey(set), encoded)
	if err := batch.Write(); err != nil {
		return 0, nil, err
	}
	return session, selected, nil
}

func decodeUint32(b []byte) uint32 {
	var v uint32
	for _, c := range b {
		v = v<<8 | uint32(c)
	}
	return v
}

// SetKeys installs set's confirmed key pair, requiring a valid MuSig
// signature (musig.Verify) from the aggregate of the set's own
// participants' coordinator keys over the key pair's canonical encoding
// (spec.md §4.G/§6: "set_keys is MuSig-gated by the new session's own
// members").
func (l *Ledger) SetKeys(set common.ValidatorSet, keys common.KeyPair, participantCoordKeys []musig.PublicKey, signature []byte) error {
	existing, err := l.db.Get(l.ks.KeysKey(set))
	if err == nil && len(existing) > 0 {
		return ErrKeysAlreadySet
	}
	if err != nil && err != database.ErrKeyNotFound {
		return err
	}

	aggregate, err := musig.AggregateKey(participantCoordKeys)
	if err != nil {
		return err
	}
	ok, err := musig.Verify(aggregate, setKeysSignBytes(set, keys), signature)
	if err != nil {
		return err
	}
	if !ok {
		return ErrBadMuSigProof
	}

	return l.db.Put(l.ks.KeysKey(set), encodeKeyPair(keys))
}

func setKeysSignBytes(set common.ValidatorSet, keys common.KeyPair) []byte {
	out := append([]byte(nil), keys.CoordinatorKey[:]...)
	out = append(out, keys.ExternalKey...)
	out = append(out, byte(set.Network))
	out = append(out, database.Uint32Bytes(uint32(set.Session))...)
	return out
}

func encodeKeyPair(kp common.KeyPair) []byte {
	out := append([]byte(nil), kp.CoordinatorKey[:]...)
	out = append(out, byte(len(kp.ExternalKey)))
	out = append(out, kp.ExternalKey...)
	return out
}
