package tendermint

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"
)

// Weights maps each validator to its consensus weight (key shares, per
// spec.md §4.G). A nil/zero weight validator is not a participant.
type Weights map[ValidatorIndex]uint64

func (w Weights) total() uint64 {
	var sum uint64
	for _, v := range w {
		sum += v
	}
	return sum
}

// Proposer selects the round's proposer; generalized out of the teacher's
// round-robin-by-height pattern so callers can wire weighted selection.
type Proposer func(height, round uint64) ValidatorIndex

// Broadcaster sends a message to the rest of the set; the state machine
// never blocks on it; the 60-second rebroadcast tape (RebroadcastTape) is a
// correctness aid rather than something the state machine depends on to
// make progress, since it only ever replays messages already reflected in
// local state.
type Broadcaster interface {
	BroadcastProposal(p Proposal)
	BroadcastVote(v Vote)
}

// roundState tracks one round's in-progress messages and locally-observed
// votes, mirroring the teacher's VotePool but split by Step.
type roundState struct {
	proposal   *Proposal
	prevotes   map[ValidatorIndex]Vote
	precommits map[ValidatorIndex]Vote

	proposeTimer   *time.Timer
	prevoteTimer   *time.Timer
	precommitTimer *time.Timer

	prevoteSent   bool
	precommitSent bool
	stepReached   Step
}

func newRoundState() *roundState {
	return &roundState{
		prevotes:   make(map[ValidatorIndex]Vote),
		precommits: make(map[ValidatorIndex]Vote),
	}
}

// StateMachine is a single ValidatorSet's Tendermint instance. It is not
// safe for concurrent use by multiple goroutines beyond its own internal
// locking for read-side queries (LastCommit); all message/timeout
// handling must come from a single driving goroutine, matching the
// teacher's single-threaded reactor convention.
type StateMachine struct {
	mu sync.Mutex

	self    ValidatorIndex
	weights Weights
	signer  Signer
	proposer Proposer
	bc      Broadcaster

	proposeTimeout   time.Duration
	voteTimeout      time.Duration
	rebroadcastEvery time.Duration

	height uint64
	round  uint64

	// heightStart anchors round_end_time(round) for the current height: it
	// is fixed at construction (Config.HeightStart) and re-fixed to the
	// prior commit's EndTime whenever a height commits, so every honest
	// validator's round deadlines chain from the same agreed value instead
	// of each validator's own clock.
	heightStart time.Time

	lockedRound *uint64
	lockedBlock *Block
	validRound  *uint64
	validBlock  *Block

	rounds map[uint64]*roundState

	// seen de-duplicates (sender,height,round,step) -> message bytes so
	// conflicting resends surface as equivocation evidence instead of
	// silently overwriting state.
	seen map[seenKey][]byte

	// roundProposalCache is a bounded cache of proposals by block hash so
	// a validator jumping ahead on f+1 can still find the proposal body
	// it hasn't itself received yet once it arrives.
	roundProposalCache *lru.Cache

	evidence []Evidence
	lastCommit *Commit

	onCommit func(Commit, Block)
	onEvidence func(Evidence)
}

type seenKey struct {
	signer ValidatorIndex
	height uint64
	round  uint64
	step   Step
}

// Config bundles the construction-time parameters for NewStateMachine.
type Config struct {
	Self             ValidatorIndex
	Weights          Weights
	Signer           Signer
	Proposer         Proposer
	Broadcaster      Broadcaster
	ProposeTimeout   time.Duration
	VoteTimeout      time.Duration
	RebroadcastEvery time.Duration
	StartHeight      uint64
	// HeightStart anchors round_end_time(round) for StartHeight. Resuming
	// a ValidatorSet after a restart should pass the last persisted
	// commit's EndTime here so round deadlines keep chaining identically
	// to how they would have without the restart; a fresh genesis height
	// can leave this zero.
	HeightStart time.Time
	OnCommit         func(Commit, Block)
	OnEvidence       func(Evidence)
}

// NewStateMachine builds a fresh instance starting at height StartHeight,
// round 0, step Propose.
func NewStateMachine(cfg Config) (*StateMachine, error) {
	cache, err := lru.New(256)
	if err != nil {
		return nil, err
	}
	if cfg.ProposeTimeout == 0 {
		cfg.ProposeTimeout = 3 * time.Second
	}
	if cfg.VoteTimeout == 0 {
		cfg.VoteTimeout = time.Second
	}
	if cfg.RebroadcastEvery == 0 {
		cfg.RebroadcastEvery = 60 * time.Second
	}
	sm := &StateMachine{
		self:               cfg.Self,
		weights:            cfg.Weights,
		signer:              cfg.Signer,
		proposer:            cfg.Proposer,
		bc:                  cfg.Broadcaster,
		proposeTimeout:      cfg.ProposeTimeout,
		voteTimeout:         cfg.VoteTimeout,
		rebroadcastEvery:    cfg.RebroadcastEvery,
		height:              cfg.StartHeight,
		heightStart:         cfg.HeightStart,
		rounds:              make(map[uint64]*roundState),
		seen:                make(map[seenKey][]byte),
		roundProposalCache:  cache,
		onCommit:            cfg.OnCommit,
		onEvidence:          cfg.OnEvidence,
	}
	return sm, nil
}

// Height/Round/LastCommit are read-only status queries safe for any
// goroutine to call.
func (sm *StateMachine) Height() uint64 {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.height
}

func (sm *StateMachine) Round() uint64 {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.round
}

func (sm *StateMachine) LastCommit() *Commit {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.lastCommit
}

func (sm *StateMachine) round_(r uint64) *roundState {
	rs, ok := sm.rounds[r]
	if !ok {
		rs = newRoundState()
		sm.rounds[r] = rs
	}
	return rs
}

func (sm *StateMachine) quorum() uint64 { return RequiredQuorumWeight(sm.weights.total()) }

// roundStart returns round's deterministic start time: heightStart plus
// round full propose+prevote+precommit slots, none of it sampled from
// any validator's local clock.
func (sm *StateMachine) roundStart(round uint64) time.Time {
	step := sm.proposeTimeout + 2*sm.voteTimeout
	return sm.heightStart.Add(time.Duration(round) * step)
}

// roundEndTime is end_time(round) from spec.md §4.B: the exact timestamp
// every honest Precommit for `round` signs, computed identically by every
// validator from (heightStart, round, proposeTimeout, voteTimeout) alone.
func (sm *StateMachine) roundEndTime(round uint64) time.Time {
	return sm.roundStart(round + 1)
}

// ProposeDeadline/PrevoteDeadline/PrecommitDeadline are the absolute
// per-round step deadlines a caller's timer wheel should schedule
// On*Timeout against, replacing flat per-step durations: later rounds
// inherit every earlier round's full step budget in the same height, so
// a validator's local timer fires at the same round_end_time(round)-
// relative instant as every other honest validator's.
func (sm *StateMachine) ProposeDeadline(round uint64) time.Time {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.roundStart(round).Add(sm.proposeTimeout)
}

func (sm *StateMachine) PrevoteDeadline(round uint64) time.Time {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.roundStart(round).Add(sm.proposeTimeout + sm.voteTimeout)
}

func (sm *StateMachine) PrecommitDeadline(round uint64) time.Time {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.roundEndTime(round)
}

// weightOf sums the weight of a set of distinct signers.
func (sm *StateMachine) weightOf(signers map[ValidatorIndex]bool) uint64 {
	var w uint64
	for s := range signers {
		w += sm.weights[s]
	}
	return w
}

// StartRound begins `round`, resetting the step to Propose and, if this
// validator is the elected proposer, broadcasting a Proposal.
func (sm *StateMachine) StartRound(round uint64, proposeFn func() Block) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.round = round
	rs := sm.round_(round)
	rs.stepReached = StepPropose

	if sm.proposer(sm.height, round) != sm.self {
		return
	}

	var block Block
	if sm.validBlock != nil {
		block = *sm.validBlock
	} else {
		block = proposeFn()
	}
	p := Proposal{
		Height:     sm.height,
		Round:      round,
		ValidRound: sm.validRound,
		Block:      block,
		Signer:     sm.self,
	}
	sig, err := sm.signer.Sign(proposalSignBytes(p))
	if err == nil {
		p.Signature = sig
		rs.proposal = &p
		sm.bc.BroadcastProposal(p)
	}
}

func proposalSignBytes(p Proposal) []byte {
	out := make([]byte, 0, 32)
	out = append(out, p.Block.Hash[:]...)
	return out
}

// HandleProposal processes an incoming Proposal.
func (sm *StateMachine) HandleProposal(p Proposal) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if p.Height != sm.height {
		return ErrWrongHeight
	}
	if _, ok := sm.weights[p.Signer]; !ok {
		return ErrUnknownValidator
	}
	if sm.proposer(p.Height, p.Round) != p.Signer {
		return ErrNotProposer
	}
	if p.ValidRound != nil && *p.ValidRound >= p.Round {
		sm.recordEvidence(Evidence{Kind: EvidenceInvalidValidRound, Height: p.Height, Offender: p.Signer})
		return ErrInvalidValidRound
	}
	if !sm.signer.Verify(p.Signer, proposalSignBytes(p), p.Signature) {
		return ErrBadSignature
	}

	key := seenKey{signer: p.Signer, height: p.Height, round: p.Round, step: StepPropose}
	if prior, ok := sm.seen[key]; ok {
		if !bytesEqual(prior, p.Signature) {
			sm.recordEvidence(Evidence{Kind: EvidenceConflictingMessages, Height: p.Height, Offender: p.Signer, MessageA: prior, MessageB: p.Signature})
		}
		return nil
	}
	sm.seen[key] = p.Signature

	rs := sm.round_(p.Round)
	rs.proposal = &p
	sm.roundProposalCache.Add(p.Block.Hash, p.Block)

	if p.Round == sm.round && rs.stepReached == StepPropose {
		sm.tryPrevote(p.Round)
	}
	return nil
}

// tryPrevote evaluates whether this validator can now cast its Prevote for
// `round`, following the algorithm: vote for the proposed block if it is
// either fresh (ValidRound == nil) or re-proposed from a round this
// validator already prevoted for (ValidRound present and the quorum
// condition held then); otherwise vote nil. Locking (lockedBlock) takes
// priority whenever it conflicts with the new proposal.
func (sm *StateMachine) tryPrevote(round uint64) {
	rs := sm.rounds[round]
	if rs == nil || rs.proposal == nil || rs.prevoteSent {
		return
	}
	rs.stepReached = StepPrevote

	validRoundOK := true
	if vr := rs.proposal.ValidRound; vr != nil {
		signers := make(map[ValidatorIndex]bool)
		if prior := sm.rounds[*vr]; prior != nil {
			for s, pv := range prior.prevotes {
				if pv.BlockHash == rs.proposal.Block.Hash {
					signers[s] = true
				}
			}
		}
		validRoundOK = sm.weightOf(signers) >= sm.quorum()
	}

	var vote Hash
	switch {
	case sm.lockedRound != nil && sm.lockedBlock != nil && sm.lockedBlock.Hash != rs.proposal.Block.Hash:
		vote = ZeroHash
	case !validRoundOK:
		vote = ZeroHash
	default:
		vote = rs.proposal.Block.Hash
	}

	sm.castVote(round, KindPrevote, vote)
	rs.prevoteSent = true
}

func (sm *StateMachine) castVote(round uint64, kind VoteKind, hash Hash) {
	v := Vote{Kind: kind, Height: sm.height, Round: round, BlockHash: hash, Signer: sm.self}
	if kind == KindPrecommit {
		v.EndTime = sm.roundEndTime(round)
		sig, err := sm.signer.Sign(CommitMessage(v.EndTime, hash))
		if err != nil {
			return
		}
		v.Signature = sig
	} else {
		sig, err := sm.signer.Sign(voteSignBytes(v))
		if err != nil {
			return
		}
		v.Signature = sig
	}
	rs := sm.round_(round)
	if kind == KindPrevote {
		rs.prevotes[sm.self] = v
	} else {
		rs.precommits[sm.self] = v
	}
	sm.bc.BroadcastVote(v)
}

func voteSignBytes(v Vote) []byte {
	out := make([]byte, 0, 40)
	out = append(out, byte(v.Kind))
	out = append(out, v.BlockHash[:]...)
	return out
}

// HandleVote processes an incoming Prevote or Precommit, and may advance
// the step or round as a side effect (prevote quorum -> lock/precommit;
// precommit quorum -> commit; f+1 distinct-round votes -> jump-ahead).
func (sm *StateMachine) HandleVote(v Vote) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if v.Height != sm.height {
		return ErrWrongHeight
	}
	if _, ok := sm.weights[v.Signer]; !ok {
		return ErrUnknownValidator
	}

	var signBytes []byte
	if v.Kind == KindPrecommit {
		if !v.EndTime.Equal(sm.roundEndTime(v.Round)) {
			return ErrBadEndTime
		}
		signBytes = CommitMessage(v.EndTime, v.BlockHash)
	} else {
		signBytes = voteSignBytes(v)
	}
	if !sm.signer.Verify(v.Signer, signBytes, v.Signature) {
		if v.Kind == KindPrecommit {
			sm.recordEvidence(Evidence{Kind: EvidenceBadCommitSignature, Height: v.Height, Offender: v.Signer})
		}
		return ErrBadSignature
	}

	step := StepPrevote
	if v.Kind == KindPrecommit {
		step = StepPrecommit
	}
	key := seenKey{signer: v.Signer, height: v.Height, round: v.Round, step: step}
	if prior, ok := sm.seen[key]; ok {
		if !bytesEqual(prior, v.Signature) {
			sm.recordEvidence(Evidence{Kind: EvidenceConflictingMessages, Height: v.Height, Offender: v.Signer, MessageA: prior, MessageB: v.Signature})
		}
		return nil
	}
	sm.seen[key] = v.Signature

	rs := sm.round_(v.Round)
	if v.Kind == KindPrevote {
		rs.prevotes[v.Signer] = v
	} else {
		rs.precommits[v.Signer] = v
	}

	sm.maybeJumpAhead(v.Round)

	if v.Round == sm.round {
		if v.Kind == KindPrevote {
			sm.evaluatePrevoteQuorum(v.Round)
		} else {
			sm.evaluatePrecommitQuorum(v.Round)
		}
	}
	return nil
}

// maybeJumpAhead advances to `round` immediately once f+1 distinct
// validators are observed voting there, even before a quorum is reached,
// per spec.md §4.B ("skip ahead on f+1 distinct-round participants").
// Signatures on jumped-to rounds are re-verified lazily as each vote
// already was above; nothing further to redo here since verification
// already happened before this call.
func (sm *StateMachine) maybeJumpAhead(round uint64) {
	if round <= sm.round {
		return
	}
	rs := sm.rounds[round]
	if rs == nil {
		return
	}
	signers := make(map[ValidatorIndex]bool)
	for s := range rs.prevotes {
		signers[s] = true
	}
	for s := range rs.precommits {
		signers[s] = true
	}
	if sm.weightOf(signers) > FaultWeight(sm.weights.total()) {
		sm.round = round
	}
}

func (sm *StateMachine) evaluatePrevoteQuorum(round uint64) {
	rs := sm.rounds[round]
	tally := make(map[Hash]map[ValidatorIndex]bool)
	for signer, v := range rs.prevotes {
		if tally[v.BlockHash] == nil {
			tally[v.BlockHash] = make(map[ValidatorIndex]bool)
		}
		tally[v.BlockHash][signer] = true
	}
	for hash, signers := range tally {
		if sm.weightOf(signers) < sm.quorum() {
			continue
		}
		if hash == ZeroHash {
			if !rs.precommitSent {
				sm.castVote(round, KindPrecommit, ZeroHash)
				rs.precommitSent = true
			}
			continue
		}
		sm.lockedRound = &round
		b := rs.proposal.Block
		sm.lockedBlock = &b
		sm.validRound = &round
		sm.validBlock = &b
		if !rs.precommitSent {
			sm.castVote(round, KindPrecommit, hash)
			rs.precommitSent = true
		}
	}
}

func (sm *StateMachine) evaluatePrecommitQuorum(round uint64) {
	rs := sm.rounds[round]
	tally := make(map[Hash]map[ValidatorIndex]bool)
	sigs := make(map[Hash]map[ValidatorIndex][]byte)
	// endTime is round_end_time(round), not sampled from any collected
	// vote: every precommit HandleVote accepts already carries this exact
	// value (non-matching EndTimes are rejected with ErrBadEndTime before
	// reaching rs.precommits), so the aggregated Commit always replays
	// correctly against every one of its Signatures.
	endTime := sm.roundEndTime(round)
	for signer, v := range rs.precommits {
		if v.BlockHash == ZeroHash {
			continue
		}
		if tally[v.BlockHash] == nil {
			tally[v.BlockHash] = make(map[ValidatorIndex]bool)
			sigs[v.BlockHash] = make(map[ValidatorIndex][]byte)
		}
		tally[v.BlockHash][signer] = true
		sigs[v.BlockHash][signer] = v.Signature
	}
	for hash, signers := range tally {
		if sm.weightOf(signers) < sm.quorum() {
			continue
		}
		if rs.proposal == nil || rs.proposal.Block.Hash != hash {
			continue
		}
		var validators []ValidatorIndex
		var signatures [][]byte
		for s, sig := range sigs[hash] {
			validators = append(validators, s)
			signatures = append(signatures, sig)
		}
		commit := Commit{Height: sm.height, Round: round, BlockHash: hash, EndTime: endTime, Validators: validators, Signatures: signatures}
		sm.lastCommit = &commit
		block := rs.proposal.Block
		sm.height++
		sm.round = 0
		sm.heightStart = endTime
		sm.lockedRound, sm.lockedBlock, sm.validRound, sm.validBlock = nil, nil, nil, nil
		sm.rounds = make(map[uint64]*roundState)
		if sm.onCommit != nil {
			sm.onCommit(commit, block)
		}
		return
	}
}

func (sm *StateMachine) recordEvidence(e Evidence) {
	sm.evidence = append(sm.evidence, e)
	if sm.onEvidence != nil {
		sm.onEvidence(e)
	}
}

// Evidence returns all equivocation evidence collected so far.
func (sm *StateMachine) Evidence() []Evidence {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return append([]Evidence(nil), sm.evidence...)
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
