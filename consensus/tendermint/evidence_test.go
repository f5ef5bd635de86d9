package tendermint

import (
	"errors"
	"testing"
)

// testSigner is a trivial Signer that "signs" a message by returning it
// unmodified tagged with the validator index, and verifies by checking
// the tag matches; good enough to exercise the state machine's message
// plumbing without pulling in a real signature scheme.
type testSigner struct {
	self ValidatorIndex
}

func (s *testSigner) Sign(message []byte) ([]byte, error) {
	out := append([]byte{byte(s.self)}, message...)
	return out, nil
}

func (s *testSigner) Verify(validator ValidatorIndex, message, signature []byte) bool {
	if len(signature) < 1 || signature[0] != byte(validator) {
		return false
	}
	rest := signature[1:]
	if len(rest) != len(message) {
		return false
	}
	for i := range rest {
		if rest[i] != message[i] {
			return false
		}
	}
	return true
}

type nopBroadcaster struct{}

func (nopBroadcaster) BroadcastProposal(Proposal) {}
func (nopBroadcaster) BroadcastVote(Vote)         {}

func newTestMachine(t *testing.T, self ValidatorIndex) *StateMachine {
	t.Helper()
	weights := Weights{0: 1, 1: 1, 2: 1, 3: 1}
	sm, err := NewStateMachine(Config{
		Self:    self,
		Weights: weights,
		Signer:  &testSigner{self: self},
		Proposer: func(height, round uint64) ValidatorIndex {
			return ValidatorIndex((height + round) % 4)
		},
		Broadcaster: nopBroadcaster{},
	})
	if err != nil {
		t.Fatalf("NewStateMachine: %v", err)
	}
	return sm
}

func TestRequiredQuorumWeight(t *testing.T) {
	if got := RequiredQuorumWeight(4); got != 3 {
		t.Fatalf("RequiredQuorumWeight(4) = %d, want 3", got)
	}
	if got := FaultWeight(4); got != 1 {
		t.Fatalf("FaultWeight(4) = %d, want 1", got)
	}
}

func TestHandleVoteRejectsWrongHeight(t *testing.T) {
	sm := newTestMachine(t, 0)
	v := Vote{Kind: KindPrevote, Height: 99, Round: 0, Signer: 1}
	if err := sm.HandleVote(v); !errors.Is(err, ErrWrongHeight) {
		t.Fatalf("expected ErrWrongHeight, got %v", err)
	}
}

func TestHandleVoteRejectsUnknownValidator(t *testing.T) {
	sm := newTestMachine(t, 0)
	v := Vote{Kind: KindPrevote, Height: sm.Height(), Round: 0, Signer: 99}
	if err := sm.HandleVote(v); !errors.Is(err, ErrUnknownValidator) {
		t.Fatalf("expected ErrUnknownValidator, got %v", err)
	}
}

func TestEquivocatingPrevoteRecordsEvidence(t *testing.T) {
	sm := newTestMachine(t, 0)
	signerSM := newTestMachine(t, 1)

	height := sm.Height()
	signA := signerSM.signer
	sigA, _ := signA.Sign(voteSignBytes(Vote{Kind: KindPrevote, BlockHash: Hash{1}}))
	sigB, _ := signA.Sign(voteSignBytes(Vote{Kind: KindPrevote, BlockHash: Hash{2}}))

	v1 := Vote{Kind: KindPrevote, Height: height, Round: 0, Signer: 1, BlockHash: Hash{1}, Signature: sigA}
	v2 := Vote{Kind: KindPrevote, Height: height, Round: 0, Signer: 1, BlockHash: Hash{2}, Signature: sigB}

	if err := sm.HandleVote(v1); err != nil {
		t.Fatalf("HandleVote(v1): %v", err)
	}
	if err := sm.HandleVote(v2); err != nil {
		t.Fatalf("HandleVote(v2): %v", err)
	}

	evidence := sm.Evidence()
	if len(evidence) != 1 {
		t.Fatalf("expected 1 piece of evidence, got %d", len(evidence))
	}
	if evidence[0].Kind != EvidenceConflictingMessages {
		t.Fatalf("expected EvidenceConflictingMessages, got %v", evidence[0].Kind)
	}
	if evidence[0].Offender != 1 {
		t.Fatalf("expected offender 1, got %d", evidence[0].Offender)
	}
}
