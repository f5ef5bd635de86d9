package tributary

import "testing"

func signerBytes(b byte) [32]byte {
	var s [32]byte
	s[0] = b
	return s
}

func TestProcessorFatalSlashesPublishedWithoutAttempt(t *testing.T) {
	log := NewLog()
	p := NewProcessor(log, StaticWeights{})

	tx := Transaction{Kind: TxDkgCommitments, Signer: signerBytes(1), TopicID: [32]byte{7}}
	_, _, err := p.Handle(tx)
	if err != ErrPublishedWithoutAttempt {
		t.Fatalf("expected ErrPublishedWithoutAttempt, got %v", err)
	}
	if !log.IsFatallySlashed(tx.Signer) {
		t.Fatalf("expected signer fatally slashed")
	}
}

func TestProcessorDropsLateAttempt(t *testing.T) {
	log := NewLog()
	weights := StaticWeights{signerBytes(1): 1, signerBytes(2): 1}
	p := NewProcessor(log, weights)

	topic := Topic{Kind: TxDkgCommitments, ID: [32]byte{7}}
	log.BeginWeightedRound(RoundKey{Topic: topic, Label: LabelPreprocess, Attempt: 1}, weights, weights.TotalWeight())

	tx := Transaction{Kind: TxDkgCommitments, Signer: signerBytes(1), TopicID: [32]byte{7}, Attempt: 0}
	ready, _, err := p.Handle(tx)
	if err != nil || ready {
		t.Fatalf("expected a silent drop, got ready=%v err=%v", ready, err)
	}
	if log.IsFatallySlashed(tx.Signer) {
		t.Fatalf("a late (not premature) attempt must not fatal-slash")
	}
}

func TestProcessorFatalSlashesPrematureAttempt(t *testing.T) {
	log := NewLog()
	weights := StaticWeights{signerBytes(1): 1}
	p := NewProcessor(log, weights)

	topic := Topic{Kind: TxDkgCommitments, ID: [32]byte{7}}
	log.BeginWeightedRound(RoundKey{Topic: topic, Label: LabelPreprocess, Attempt: 0}, weights, weights.TotalWeight())

	tx := Transaction{Kind: TxDkgCommitments, Signer: signerBytes(1), TopicID: [32]byte{7}, Attempt: 1}
	_, _, err := p.Handle(tx)
	if err != ErrPrematureAttempt {
		t.Fatalf("expected ErrPrematureAttempt, got %v", err)
	}
	if !log.IsFatallySlashed(tx.Signer) {
		t.Fatalf("expected signer fatally slashed")
	}
}

func TestProcessorFatalSlashesDuplicatePost(t *testing.T) {
	log := NewLog()
	weights := StaticWeights{signerBytes(1): 1, signerBytes(2): 1}
	p := NewProcessor(log, weights)

	topic := Topic{Kind: TxDkgCommitments, ID: [32]byte{7}}
	log.BeginWeightedRound(RoundKey{Topic: topic, Label: LabelPreprocess, Attempt: 0}, weights, weights.TotalWeight())

	tx := Transaction{Kind: TxDkgCommitments, Signer: signerBytes(1), TopicID: [32]byte{7}}
	if _, _, err := p.Handle(tx); err != nil {
		t.Fatalf("first post: %v", err)
	}
	_, _, err := p.Handle(tx)
	if err != ErrPublishedMultipleTimes {
		t.Fatalf("expected ErrPublishedMultipleTimes, got %v", err)
	}
	if !log.IsFatallySlashed(tx.Signer) {
		t.Fatalf("expected signer fatally slashed")
	}
}

func TestProcessorFatalSlashesShareCountMismatch(t *testing.T) {
	log := NewLog()
	weights := StaticWeights{signerBytes(1): 3}
	p := NewProcessor(log, weights)

	topic := Topic{Kind: TxSignPreprocess, ID: [32]byte{9}}
	log.BeginWeightedRound(RoundKey{Topic: topic, Label: LabelShare, Attempt: 0}, weights, weights.TotalWeight())

	tx := Transaction{Kind: TxSignShare, Signer: signerBytes(1), TopicID: [32]byte{9}, ShareCount: 2, Payload: []byte("abcdef")}
	_, _, err := p.Handle(tx)
	if err != ErrShareCountMismatch {
		t.Fatalf("expected ErrShareCountMismatch, got %v", err)
	}
	if !log.IsFatallySlashed(tx.Signer) {
		t.Fatalf("expected signer fatally slashed")
	}
}

func TestProcessorRoundReadyOnWeightedCompletion(t *testing.T) {
	log := NewLog()
	weights := StaticWeights{signerBytes(1): 2, signerBytes(2): 1}
	p := NewProcessor(log, weights)

	topic := Topic{Kind: TxSignPreprocess, ID: [32]byte{9}}
	key := RoundKey{Topic: topic, Label: LabelPreprocess, Attempt: 0}
	log.BeginWeightedRound(key, weights, weights.TotalWeight())

	ready, gotKey, err := p.Handle(Transaction{Kind: TxSignPreprocess, Signer: signerBytes(1), TopicID: [32]byte{9}})
	if err != nil {
		t.Fatalf("first contributor: %v", err)
	}
	if ready {
		t.Fatalf("round should not be ready after weight 2/3")
	}

	ready, gotKey, err = p.Handle(Transaction{Kind: TxSignPreprocess, Signer: signerBytes(2), TopicID: [32]byte{9}})
	if err != nil {
		t.Fatalf("second contributor: %v", err)
	}
	if !ready {
		t.Fatalf("expected round ready once weight reaches target 3/3")
	}
	if gotKey != key {
		t.Fatalf("expected ready round key %+v, got %+v", key, gotKey)
	}
}

func TestProcessorDropsTransactionsFromFatallySlashedSigner(t *testing.T) {
	log := NewLog()
	log.FatalSlash(signerBytes(1))
	p := NewProcessor(log, StaticWeights{})

	ready, _, err := p.Handle(Transaction{Kind: TxSignPreprocess, Signer: signerBytes(1), TopicID: [32]byte{1}})
	if ready || err != nil {
		t.Fatalf("expected silent drop, got ready=%v err=%v", ready, err)
	}
}
