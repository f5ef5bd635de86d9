package tributary

import "errors"

// WeightLookup resolves a validator's current key-share weight within a
// set, used both to determine signer-weighted round completion and to
// cross-check a round-based transaction's share-array length. Callers
// wire this to the validator-set ledger (validatorset.Ledger) that
// actually owns allocation/key-share bookkeeping.
type WeightLookup interface {
	Weight(validator [32]byte) uint64
	TotalWeight() uint64
}

// StaticWeights is a WeightLookup fixed at construction, used by tests
// and by any caller that already has the full weight map in hand.
type StaticWeights map[[32]byte]uint64

func (w StaticWeights) Weight(v [32]byte) uint64 { return w[v] }

func (w StaticWeights) TotalWeight() uint64 {
	var sum uint64
	for _, v := range w {
		sum += v
	}
	return sum
}

// Processor dispatches incoming Transactions per spec.md §4.C, the
// per-set transaction processor: drop transactions from fatally-slashed
// signers, accumulate round-based kinds into their Round (fatal-slashing
// on any protocol violation), and pass everything else straight through
// to the Log's nonce gating.
type Processor struct {
	log     *Log
	weights WeightLookup
}

// NewProcessor builds a Processor driving log, resolving key-share
// weights via weights.
func NewProcessor(log *Log, weights WeightLookup) *Processor {
	return &Processor{log: log, weights: weights}
}

// roundKind classifies a TxKind into the Topic kind and Label its round
// accumulates under, per spec.md §4.C's round-based transaction list
// (DkgCommitments, DkgShares, DkgConfirmed, BatchPreprocess/Share —
// this system's Substrate-signing analog — and SignPreprocess/Share).
// DkgShares and DkgConfirmed share DkgCommitments' Topic.Kind since all
// three stages concern the same DKG session id; only their Label
// differs.
func roundKind(kind TxKind) (topicKind TxKind, label Label, ok bool) {
	switch kind {
	case TxDkgCommitments:
		return TxDkgCommitments, LabelPreprocess, true
	case TxDkgShares:
		return TxDkgCommitments, LabelShare, true
	case TxDkgConfirmed:
		return TxDkgCommitments, LabelConfirm, true
	case TxSubstratePreprocess:
		return TxSubstratePreprocess, LabelPreprocess, true
	case TxSubstrateShare:
		return TxSubstratePreprocess, LabelShare, true
	case TxSignPreprocess:
		return TxSignPreprocess, LabelPreprocess, true
	case TxSignShare:
		return TxSignPreprocess, LabelShare, true
	default:
		return 0, 0, false
	}
}

// Handle dispatches tx per spec.md §4.C. For round-based kinds, ready
// reports whether the round just reached its signer-weighted target
// (round identifies it; its aggregated contributions are available via
// Handle's caller fetching Log.Round(round).Values()). err is non-nil
// both for ordinary nonce-gating failures and for the protocol
// violations this dispatch fatally slashes the signer for; callers
// should still report a slash to retirement bookkeeping even though
// Handle has already evicted the signer from this tributary.
func (p *Processor) Handle(tx Transaction) (ready bool, round RoundKey, err error) {
	if p.log.IsFatallySlashed(tx.Signer) {
		return false, RoundKey{}, nil
	}

	topicKind, label, roundBased := roundKind(tx.Kind)
	if !roundBased {
		return false, RoundKey{}, p.log.AddTransaction(tx)
	}

	topic := Topic{Kind: topicKind, ID: tx.TopicID}
	tl := topicLabel{Topic: topic, Label: label}

	current, started := p.log.currentAttemptFor(tl)
	if !started {
		p.log.FatalSlash(tx.Signer)
		return false, RoundKey{}, ErrPublishedWithoutAttempt
	}
	if tx.Attempt < current {
		return false, RoundKey{}, nil // drop (late)
	}
	if tx.Attempt > current {
		p.log.FatalSlash(tx.Signer)
		return false, RoundKey{}, ErrPrematureAttempt
	}

	key := RoundKey{Topic: topic, Label: label, Attempt: tx.Attempt}
	r := p.log.Round(key)
	if r == nil {
		p.log.FatalSlash(tx.Signer)
		return false, RoundKey{}, ErrPublishedWithoutAttempt
	}

	if tx.ShareCount != 0 {
		if expected := p.weights.Weight(tx.Signer); uint64(tx.ShareCount) != expected {
			p.log.FatalSlash(tx.Signer)
			return false, RoundKey{}, ErrShareCountMismatch
		}
	}

	data := SignData{Key: tx.TopicID, Data: splitShares(tx.Payload, tx.ShareCount), Signer: tx.Signer, Round: key}
	if addErr := r.Add(tx.Signer, data); addErr != nil {
		if errors.Is(addErr, ErrDuplicateTx) {
			p.log.FatalSlash(tx.Signer)
			return false, RoundKey{}, ErrPublishedMultipleTimes
		}
		return false, RoundKey{}, addErr
	}

	return r.Complete(), key, nil
}

// splitShares divides payload into count roughly-equal chunks, one per
// entry in a round-based transaction's share array. The wire codec for
// an individual share is owned by whichever crypto package produced it
// (crypto/frost); this only needs to preserve entry boundaries for the
// caller to re-decode.
func splitShares(payload []byte, count int) [][]byte {
	if count <= 0 || len(payload) == 0 {
		return nil
	}
	chunkLen := len(payload) / count
	if chunkLen == 0 {
		return nil
	}
	out := make([][]byte, 0, count)
	for i := 0; i < count; i++ {
		start := i * chunkLen
		end := start + chunkLen
		if i == count-1 {
			end = len(payload)
		}
		out = append(out, payload[start:end])
	}
	return out
}
