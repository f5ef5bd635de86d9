package tributary

import (
	"errors"
	"sync"

	mapset "github.com/deckarep/golang-set"
)

// Round accumulates every signer's contribution to one RoundKey until
// either a threshold-defined quorum is reached or the round is abandoned
// for a fresh attempt after removing a non-participating signer.
//
// Completion is signer-weighted (spec.md §4.C: "when signer-weighted
// participation equals the set's n"), not a raw participant count: each
// contributor counts for its key-share weight, and the round is Ready
// once the accumulated weight reaches target. NewRound, used where no
// real key-share weighting is available, gives every participant weight
// 1 and a target equal to the participant count, which degrades to plain
// headcount completion.
type Round struct {
	Key          RoundKey
	Participants mapset.Set // [32]byte signer keys expected to contribute
	weights      map[[32]byte]uint64
	target       uint64
	received       map[[32]byte]SignData
	receivedWeight uint64
}

// NewRound starts accumulation for key, expecting contributions from
// exactly the signers in participants, each weighted 1.
func NewRound(key RoundKey, participants [][32]byte) *Round {
	weights := make(map[[32]byte]uint64, len(participants))
	for _, p := range participants {
		weights[p] = 1
	}
	return NewWeightedRound(key, weights, uint64(len(participants)))
}

// NewWeightedRound starts accumulation for key using each participant's
// real key-share weight, completing once the accumulated weight reaches
// target (ordinarily the set's n).
func NewWeightedRound(key RoundKey, weights map[[32]byte]uint64, target uint64) *Round {
	set := mapset.NewSet()
	for p := range weights {
		set.Add(p)
	}
	return &Round{Key: key, Participants: set, weights: weights, target: target, received: make(map[[32]byte]SignData)}
}

// Add records signer's contribution. It returns an error if signer is not
// among the round's expected participants or has already contributed
// (each signer may submit exactly one SignData per (topic, label,
// attempt), enforced the same way a Tendermint round rejects a second
// conflicting vote from one signer).
func (r *Round) Add(signer [32]byte, data SignData) error {
	if !r.Participants.Contains(signer) {
		return errors.New("tributary: signer is not a participant in this round")
	}
	if _, ok := r.received[signer]; ok {
		return ErrDuplicateTx
	}
	r.received[signer] = data
	r.receivedWeight += r.weights[signer]
	return nil
}

// Complete reports whether the round's signer-weighted participation has
// reached its target.
func (r *Round) Complete() bool {
	return r.receivedWeight >= r.target
}

// Missing returns the signers who have not yet contributed; used to drive
// a RemoveParticipant vote once a round stalls past its timeout.
func (r *Round) Missing() [][32]byte {
	var missing [][32]byte
	for elem := range r.Participants.Iter() {
		s := elem.([32]byte)
		if _, ok := r.received[s]; !ok {
			missing = append(missing, s)
		}
	}
	return missing
}

// Values returns every received contribution, in no particular order;
// callers needing a stable order (e.g. for FROST's participant-index
// Lagrange interpolation) sort by signer themselves.
func (r *Round) Values() map[[32]byte]SignData {
	out := make(map[[32]byte]SignData, len(r.received))
	for k, v := range r.received {
		out[k] = v
	}
	return out
}

// Log is the full per-ValidatorSet accumulator: every Round ever started,
// keyed by RoundKey, plus the nonce-gating ledger each signer's ordinary
// (non-Provided) transactions must satisfy.
// topicLabel keys the "current attempt in progress" ledger the
// Processor's dispatch rules check against (spec.md §4.C).
type topicLabel struct {
	Topic Topic
	Label Label
}

type Log struct {
	mu sync.Mutex

	rounds         map[RoundKey]*Round
	currentAttempt map[topicLabel]uint32 // highest attempt started per (topic, label)
	nonces         map[[32]byte]uint32   // next expected nonce per signer

	removeVotes map[[32]byte]mapset.Set // offender -> set of voters
	fatal       mapset.Set              // validators fatally slashed and excluded
}

// NewLog creates an empty Log.
func NewLog() *Log {
	return &Log{
		rounds:         make(map[RoundKey]*Round),
		currentAttempt: make(map[topicLabel]uint32),
		nonces:         make(map[[32]byte]uint32),
		removeVotes:    make(map[[32]byte]mapset.Set),
		fatal:          mapset.NewSet(),
	}
}

// StartRound registers a new Round for key if one doesn't already exist,
// weighting every participant equally (see NewRound).
func (l *Log) StartRound(key RoundKey, participants [][32]byte) *Round {
	l.mu.Lock()
	defer l.mu.Unlock()
	if r, ok := l.rounds[key]; ok {
		return r
	}
	r := NewRound(key, participants)
	l.rounds[key] = r
	l.markAttemptStarted(key)
	return r
}

// BeginWeightedRound registers a new Round for key using real key-share
// weights (see NewWeightedRound), and records key.Attempt as the current
// attempt for (key.Topic, key.Label) so Processor.Handle's dispatch
// rules can evaluate data_attempt against it.
func (l *Log) BeginWeightedRound(key RoundKey, weights map[[32]byte]uint64, target uint64) *Round {
	l.mu.Lock()
	defer l.mu.Unlock()
	if r, ok := l.rounds[key]; ok {
		return r
	}
	r := NewWeightedRound(key, weights, target)
	l.rounds[key] = r
	l.markAttemptStarted(key)
	return r
}

func (l *Log) markAttemptStarted(key RoundKey) {
	tl := topicLabel{Topic: key.Topic, Label: key.Label}
	if cur, ok := l.currentAttempt[tl]; !ok || key.Attempt > cur {
		l.currentAttempt[tl] = key.Attempt
	}
}

// currentAttemptFor reports the attempt currently in progress for
// (topic, label), and whether any attempt has started at all.
func (l *Log) currentAttemptFor(tl topicLabel) (uint32, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	a, ok := l.currentAttempt[tl]
	return a, ok
}

// FatalSlash immediately evicts signer from this set's tributary. Unlike
// VoteRemoveParticipant's f+1 threshold, this is used for protocol
// violations a single node can verify unilaterally (spec.md §4.C:
// published-without-attempt, published-multiple-times, premature
// data_attempt, share-count mismatch).
func (l *Log) FatalSlash(signer [32]byte) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.fatal.Add(signer)
}

// Round returns the accumulator for key, or nil if none has started.
func (l *Log) Round(key RoundKey) *Round {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.rounds[key]
}

// AddTransaction applies tx's nonce gating (non-Provided only). It does
// not touch any Round; round-based kinds are accumulated by
// Processor.Handle instead.
func (l *Log) AddTransaction(tx Transaction) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.fatal.Contains(tx.Signer) {
		return errors.New("tributary: signer has been fatally slashed from this set")
	}

	if tx.Provided {
		return nil
	}

	expected := l.nonces[tx.Signer]
	if tx.Nonce != expected {
		return ErrWrongNonce
	}
	l.nonces[tx.Signer] = expected + 1
	return nil
}

// VoteRemoveParticipant records signer's vote that offender be evicted
// from the current round, and reports whether the f+1 threshold has now
// been met (fatal-slash, spec.md §4.C).
func (l *Log) VoteRemoveParticipant(offender, signer [32]byte, faultWeight, totalParticipants int) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	votes, ok := l.removeVotes[offender]
	if !ok {
		votes = mapset.NewSet()
		l.removeVotes[offender] = votes
	}
	votes.Add(signer)

	if votes.Cardinality() > faultWeight {
		l.fatal.Add(offender)
		return true
	}
	return false
}

// IsFatallySlashed reports whether validator has been evicted from this
// set's Tributary entirely.
func (l *Log) IsFatallySlashed(validator [32]byte) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.fatal.Contains(validator)
}

// NextAttempt abandons the current accumulation for key's (topic, label)
// and starts attempt+1 with participants minus any newly-fatal signers,
// per spec.md §4.C's "attempts restart a stalled round".
func (l *Log) NextAttempt(key RoundKey, participants [][32]byte) *Round {
	l.mu.Lock()
	defer l.mu.Unlock()
	next := RoundKey{Topic: key.Topic, Label: key.Label, Attempt: key.Attempt + 1}
	var remaining [][32]byte
	for _, p := range participants {
		if !l.fatal.Contains(p) {
			remaining = append(remaining, p)
		}
	}
	r := NewRound(next, remaining)
	l.rounds[next] = r
	l.markAttemptStarted(next)
	return r
}
