package tendermint

import "time"

// OnProposeTimeout is driven by the caller's timer wheel when the Propose
// step's timeout fires with no valid proposal received: it casts a nil
// Prevote and records EvidenceFailToPropose against the round's elected
// proposer so a validator who persistently withholds proposals
// accumulates slashable evidence.
func (sm *StateMachine) OnProposeTimeout(round uint64) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	rs := sm.round_(round)
	if rs.proposal != nil || rs.prevoteSent {
		return
	}
	sm.recordEvidence(Evidence{Kind: EvidenceFailToPropose, Height: sm.height, Offender: sm.proposer(sm.height, round)})
	sm.castVote(round, KindPrevote, ZeroHash)
	rs.prevoteSent = true
}

// OnPrevoteTimeout is driven when the Prevote step's timeout fires without
// a single block reaching quorum (e.g. prevotes are split): it casts a
// nil Precommit, matching Tendermint's liveness rule that a stuck round
// always yields to the next one rather than stalling forever.
func (sm *StateMachine) OnPrevoteTimeout(round uint64) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	rs := sm.round_(round)
	if rs.precommitSent {
		return
	}
	sm.castVote(round, KindPrecommit, ZeroHash)
	rs.precommitSent = true
}

// OnPrecommitTimeout is driven when the Precommit step's timeout fires
// without quorum on any one block: the caller should then call StartRound
// for round+1.
func (sm *StateMachine) OnPrecommitTimeout(round uint64) uint64 {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return round + 1
}

// ProposeTimeout/VoteTimeout expose the configured per-step slot
// durations used to compute the deterministic ProposeDeadline/
// PrevoteDeadline/PrecommitDeadline for any round (statemachine.go); the
// caller's timer wheel should schedule On*Timeout against those
// round-relative absolute deadlines, not against a flat duration counted
// from whenever the caller happened to start its own timer, so that a
// validator driving round 3 waits the same wall-clock span as any other
// honest validator driving round 3 regardless of when each of them
// locally entered the round.
func (sm *StateMachine) ProposeTimeout() time.Duration {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.proposeTimeout
}

func (sm *StateMachine) VoteTimeout() time.Duration {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.voteTimeout
}

// RebroadcastEvery exposes the configured tape-replay interval (default
// 60s per spec.md §4.B).
func (sm *StateMachine) RebroadcastEvery() time.Duration {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.rebroadcastEvery
}
