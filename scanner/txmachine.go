package scanner

import (
	"errors"
	"time"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/tos-network/custody/crypto/frost"
)

// TransactionMachine drives the three-round FROST signing protocol
// (preprocess / sign / aggregate, crypto/frost) for one SignableTransaction,
// per spec.md §4.F. It holds no chain-specific knowledge: AttachSignature
// on the owning ExternalChain turns its output into a broadcastable wire
// transaction.
type TransactionMachine struct {
	share    frost.KeyShare
	unsigned SignableTransaction

	session *frost.Session
	mine    frost.Commitments
}

// NewTransactionMachine starts a machine for `unsigned`, held by the
// signer owning `share`.
func NewTransactionMachine(share frost.KeyShare, unsigned SignableTransaction) *TransactionMachine {
	return &TransactionMachine{share: share, unsigned: unsigned}
}

// Preprocess runs round 1: generate this signer's nonce commitments.
func (m *TransactionMachine) Preprocess() (frost.Commitments, error) {
	session, commitments, err := frost.Preprocess(m.share)
	if err != nil {
		return frost.Commitments{}, err
	}
	m.session = session
	m.mine = commitments
	return commitments, nil
}

// Sign runs round 2: produce this signer's signature share over the
// unsigned transaction's sign-bytes, given every participant's round-1
// commitments.
func (m *TransactionMachine) Sign(participants []uint16, allCommitments []frost.Commitments, groupKey *secp256k1.PublicKey) (*secp256k1.ModNScalar, error) {
	if m.session == nil {
		return nil, errors.New("scanner: Preprocess must run before Sign")
	}
	return frost.Sign(m.session, participants, allCommitments, groupKey, m.unsigned.Data)
}

// Aggregate runs round 3: combine every signer's share into the final
// signature, ready for ExternalChain.AttachSignature.
func Aggregate(allCommitments []frost.Commitments, shares []*secp256k1.ModNScalar, message []byte) ([]byte, error) {
	return frost.Aggregate(allCommitments, shares, message)
}

// RebroadcastLoop periodically re-broadcasts signed-but-not-yet-confirmed
// transactions, matching spec.md §4.F's rebroadcast requirement for
// transactions whose original broadcast may have been dropped by the
// external network.
func RebroadcastLoop(interval time.Duration, pending func() [][]byte, broadcast func([]byte) error) *time.Ticker {
	if interval <= 0 {
		interval = time.Minute
	}
	t := time.NewTicker(interval)
	go func() {
		for range t.C {
			for _, tx := range pending() {
				_ = broadcast(tx)
			}
		}
	}()
	return t
}
