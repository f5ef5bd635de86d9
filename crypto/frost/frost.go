// Package frost implements FROST-style threshold Schnorr signing over
// the network curve (secp256k1, github.com/decred/dcrd/dcrec/secp256k1/v4
// — a direct teacher dependency promoted from indirect) as described in
// spec.md §4.A. Key shares come from the dual-curve DKG in crypto/evrf;
// this package only implements the three-round signing protocol
// (preprocess / sign / aggregate) that crypto/frost's callers (the
// scanner's TransactionMachine, spec.md §4.F) drive.
package frost

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

// KeyShare is one participant's share of a FROST key, produced by the
// key-gen orchestrator (component D) from an evrf DKG result.
type KeyShare struct {
	Index       uint16
	Secret      *secp256k1.ModNScalar
	GroupPublic *secp256k1.PublicKey
}

// Commitments is a signer's round-1 nonce commitment pair.
type Commitments struct {
	Index   uint16
	Hiding  *secp256k1.PublicKey
	Binding *secp256k1.PublicKey
}

type noncePair struct {
	hiding  *secp256k1.ModNScalar
	binding *secp256k1.ModNScalar
}

// Session tracks one signer's in-progress three-round signature.
type Session struct {
	share   KeyShare
	nonce   noncePair
}

// Preprocess produces this signer's round-1 commitment and retains the
// corresponding secret nonces for the later Sign call.
func Preprocess(share KeyShare) (*Session, Commitments, error) {
	hiding, err := randomScalar()
	if err != nil {
		return nil, Commitments{}, err
	}
	binding, err := randomScalar()
	if err != nil {
		return nil, Commitments{}, err
	}
	s := &Session{share: share, nonce: noncePair{hiding: hiding, binding: binding}}
	return s, Commitments{
		Index:   share.Index,
		Hiding:  pointFromScalar(hiding),
		Binding: pointFromScalar(binding),
	}, nil
}

// Sign produces this signer's signature share over message, given every
// signer's round-1 commitments and the full set of participating
// indices (needed for the Lagrange interpolation coefficient).
func Sign(s *Session, participants []uint16, allCommitments []Commitments, groupKey *secp256k1.PublicKey, message []byte) (*secp256k1.ModNScalar, error) {
	bindingFactors := computeBindingFactors(allCommitments, message)

	R := groupCommitment(allCommitments, bindingFactors)
	c := challenge(R, groupKey, message)

	lambda, err := lagrangeCoefficient(s.share.Index, participants)
	if err != nil {
		return nil, err
	}

	myBinding := bindingFactors[s.share.Index]
	z := new(secp256k1.ModNScalar).Mul2(c, lambda)
	z.Mul(s.share.Secret)
	z.Add(s.nonce.hiding)
	bindingTerm := new(secp256k1.ModNScalar).Mul2(myBinding, s.nonce.binding)
	z.Add(bindingTerm)
	return z, nil
}

// Aggregate sums signature shares into a final 64-byte Schnorr signature
// (32-byte R || 32-byte s), as consumed by the scanner's
// `attempt_sign` contract (spec.md §4.F).
func Aggregate(allCommitments []Commitments, shares []*secp256k1.ModNScalar, message []byte) ([]byte, error) {
	bindingFactors := computeBindingFactors(allCommitments, message)
	R := groupCommitment(allCommitments, bindingFactors)

	z := new(secp256k1.ModNScalar)
	for _, share := range shares {
		z.Add(share)
	}

	out := make([]byte, 0, 64)
	rBytes := R.X().Bytes()
	out = append(out, rBytes[:]...)
	zBytes := z.Bytes()
	out = append(out, zBytes[:]...)
	return out, nil
}

func randomScalar() (*secp256k1.ModNScalar, error) {
	var buf [32]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return nil, err
	}
	s := new(secp256k1.ModNScalar)
	s.SetBytes(&buf)
	return s, nil
}

func pointFromScalar(s *secp256k1.ModNScalar) *secp256k1.PublicKey {
	var j secp256k1.JacobianPoint
	secp256k1.ScalarBaseMultNonConst(s, &j)
	j.ToAffine()
	return secp256k1.NewPublicKey(&j.X, &j.Y)
}

func computeBindingFactors(commitments []Commitments, message []byte) map[uint16]*secp256k1.ModNScalar {
	out := make(map[uint16]*secp256k1.ModNScalar, len(commitments))
	for _, c := range commitments {
		h := sha256.New()
		h.Write(message)
		h.Write(c.Hiding.SerializeCompressed())
		h.Write(c.Binding.SerializeCompressed())
		var buf [32]byte
		copy(buf[:], h.Sum(nil))
		s := new(secp256k1.ModNScalar)
		s.SetBytes(&buf)
		out[c.Index] = s
	}
	return out
}

func groupCommitment(commitments []Commitments, bindingFactors map[uint16]*secp256k1.ModNScalar) *secp256k1.PublicKey {
	var acc secp256k1.JacobianPoint
	for _, c := range commitments {
		var hiding, binding secp256k1.JacobianPoint
		c.Hiding.AsJacobian(&hiding)
		c.Binding.AsJacobian(&binding)

		var scaled secp256k1.JacobianPoint
		secp256k1.ScalarMultNonConst(bindingFactors[c.Index], &binding, &scaled)

		var sum secp256k1.JacobianPoint
		secp256k1.AddNonConst(&hiding, &scaled, &sum)
		secp256k1.AddNonConst(&acc, &sum, &acc)
	}
	acc.ToAffine()
	return secp256k1.NewPublicKey(&acc.X, &acc.Y)
}

func challenge(R, groupKey *secp256k1.PublicKey, message []byte) *secp256k1.ModNScalar {
	h := sha256.New()
	h.Write(R.SerializeCompressed())
	h.Write(groupKey.SerializeCompressed())
	h.Write(message)
	var buf [32]byte
	copy(buf[:], h.Sum(nil))
	s := new(secp256k1.ModNScalar)
	s.SetBytes(&buf)
	return s
}

// lagrangeCoefficient computes the Lagrange basis coefficient for `index`
// over the x-coordinates `participants`, evaluated at x=0, which is what
// lets t-of-n FROST shares reconstruct the group secret's action without
// ever reconstructing the secret itself.
func lagrangeCoefficient(index uint16, participants []uint16) (*secp256k1.ModNScalar, error) {
	found := false
	for _, p := range participants {
		if p == index {
			found = true
			break
		}
	}
	if !found {
		return nil, errors.New("frost: index not among participants")
	}

	num := new(secp256k1.ModNScalar).SetInt(1)
	den := new(secp256k1.ModNScalar).SetInt(1)
	for _, p := range participants {
		if p == index {
			continue
		}
		pScalar := new(secp256k1.ModNScalar).SetInt(uint32(p))
		num.Mul2(num, pScalar)

		iScalar := new(secp256k1.ModNScalar).SetInt(uint32(index))
		diff := new(secp256k1.ModNScalar).NegateVal(iScalar)
		diff.Add(pScalar)
		den.Mul2(den, diff)
	}
	denInv := den.InverseValNonConst()
	return num.Mul2(num, denInv), nil
}
