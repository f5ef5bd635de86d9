package tendermint

import (
	"encoding/binary"
	"time"

	"github.com/tos-network/custody/internal/database"
)

// RebroadcastTape durably records every Proposal/Vote this validator sends
// before it reaches the network, and replays anything not yet superseded
// by a commit every RebroadcastEvery interval. Per SPEC_FULL.md §9 this
// write-before-broadcast ordering is a deliberate hardening over a
// send-then-log design: a crash between "broadcast" and "log" would lose
// the only local record that a message was ever sent, and on restart the
// validator might equivocate by re-signing a different value for the same
// (height, round, step).
type RebroadcastTape struct {
	db     database.KeyValueStore
	set    string // domain-separates the tape across multiple ValidatorSets sharing one db
}

// NewRebroadcastTape opens the tape over db, namespaced by `set` (the
// string form of the owning common.ValidatorSet).
func NewRebroadcastTape(db database.KeyValueStore, set string) *RebroadcastTape {
	return &RebroadcastTape{db: db, set: set}
}

func (t *RebroadcastTape) key(height uint64, round uint64, step Step, signer ValidatorIndex) []byte {
	return database.Key("tributary-tape",
		[]byte(t.set),
		database.Uint64Bytes(height),
		database.Uint64Bytes(round),
		[]byte{byte(step)},
		database.Uint32Bytes(uint32(signer)),
	)
}

// RecordProposal durably stores a Proposal's wire bytes prior to
// broadcasting it.
func (t *RebroadcastTape) RecordProposal(p Proposal, wire []byte) error {
	return t.db.Put(t.key(p.Height, p.Round, StepPropose, p.Signer), wire)
}

// RecordVote durably stores a Vote's wire bytes prior to broadcasting it.
func (t *RebroadcastTape) RecordVote(v Vote, wire []byte) error {
	step := StepPrevote
	if v.Kind == KindPrecommit {
		step = StepPrecommit
	}
	return t.db.Put(t.key(v.Height, v.Round, step, v.Signer), wire)
}

// Prune removes every tape entry for heights below `height`, called once a
// height commits and its messages can never need replay again.
func (t *RebroadcastTape) Prune(belowHeight uint64) error {
	prefix := database.Key("tributary-tape", []byte(t.set))
	iter := t.db.NewIterator(prefix)
	defer iter.Release()
	batch := t.db.NewBatch()
	for iter.Next() {
		// The height part follows the prefix as a 4-byte length and an
		// 8-byte big-endian height (see key).
		k := iter.Key()
		if len(k) < len(prefix)+12 || binary.BigEndian.Uint64(k[len(prefix)+4:len(prefix)+12]) >= belowHeight {
			continue
		}
		batch.Delete(append([]byte(nil), k...))
	}
	if err := iter.Error(); err != nil {
		return err
	}
	return batch.Write()
}

// Replay invokes send for every message currently on the tape. Callers
// run this on a ticker (RebroadcastEvery, default 60s) so that messages
// lost to a transient network partition eventually reach every
// validator even with no further local state changes.
func (t *RebroadcastTape) Replay(send func(wire []byte) error) error {
	prefix := database.Key("tributary-tape", []byte(t.set))
	iter := t.db.NewIterator(prefix)
	defer iter.Release()
	for iter.Next() {
		if err := send(append([]byte(nil), iter.Value()...)); err != nil {
			return err
		}
	}
	return iter.Error()
}

// Ticker returns a time.Ticker firing at the tape's configured
// rebroadcast interval; a thin helper so callers don't need to import
// time themselves just to drive Replay.
func Ticker(interval time.Duration) *time.Ticker {
	if interval <= 0 {
		interval = 60 * time.Second
	}
	return time.NewTicker(interval)
}
