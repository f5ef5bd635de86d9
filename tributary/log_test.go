package tributary

import "testing"

func participants(n int) [][32]byte {
	out := make([][32]byte, n)
	for i := range out {
		out[i][0] = byte(i + 1)
	}
	return out
}

func TestRoundCompletesOnceEveryParticipantContributes(t *testing.T) {
	parts := participants(3)
	r := NewRound(RoundKey{Topic: Topic{Kind: TxDkgCommitments}, Label: LabelPreprocess}, parts)

	for _, p := range parts[:2] {
		if err := r.Add(p, SignData{Signer: p}); err != nil {
			t.Fatalf("Add: %v", err)
		}
		if r.Complete() {
			t.Fatalf("round should not be complete yet")
		}
	}
	if err := r.Add(parts[2], SignData{Signer: parts[2]}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if !r.Complete() {
		t.Fatalf("expected round complete after all participants contributed")
	}
}

func TestRoundRejectsDuplicateContribution(t *testing.T) {
	parts := participants(2)
	r := NewRound(RoundKey{Topic: Topic{Kind: TxDkgShares}}, parts)
	if err := r.Add(parts[0], SignData{}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := r.Add(parts[0], SignData{}); err != ErrDuplicateTx {
		t.Fatalf("expected ErrDuplicateTx, got %v", err)
	}
}

func TestLogAddTransactionEnforcesNonceOrder(t *testing.T) {
	l := NewLog()
	var signer [32]byte
	signer[0] = 1

	if err := l.AddTransaction(Transaction{Kind: TxSignPreprocess, Signer: signer, Nonce: 0}); err != nil {
		t.Fatalf("first tx at nonce 0: %v", err)
	}
	if err := l.AddTransaction(Transaction{Kind: TxSignPreprocess, Signer: signer, Nonce: 2}); err != ErrWrongNonce {
		t.Fatalf("expected ErrWrongNonce for skipped nonce, got %v", err)
	}
	if err := l.AddTransaction(Transaction{Kind: TxSignPreprocess, Signer: signer, Nonce: 1}); err != nil {
		t.Fatalf("second tx at nonce 1: %v", err)
	}
}

func TestVoteRemoveParticipantFatalSlashAtThreshold(t *testing.T) {
	l := NewLog()
	var offender [32]byte
	offender[0] = 9

	voters := participants(4)
	faultWeight := 1 // f = 1 tolerated out of 4

	var slashed bool
	for _, v := range voters[:2] {
		slashed = l.VoteRemoveParticipant(offender, v, faultWeight, len(voters))
		if slashed {
			break
		}
	}
	if !slashed {
		t.Fatalf("expected fatal slash once votes exceed faultWeight")
	}
	if !l.IsFatallySlashed(offender) {
		t.Fatalf("expected offender marked fatally slashed")
	}
}
