// Package musig implements Schnorr multi-signature aggregation over the
// coordinator curve (Ristretto, github.com/gtank/ristretto255 — pulled
// from the discordwell-OnChainPoker example repo's own dependency on the
// same group) as described in spec.md §4.A: aggregate n public keys into
// one, then run preprocess/share/complete to produce a single Schnorr
// signature over a statement.
//
// This is the signature scheme behind `set_keys` (spec.md §4.G/§6) and
// DkgConfirmed's musig_share (spec.md §3).
package musig

import (
	"crypto/rand"
	"crypto/sha512"
	"errors"
	"sort"

	"github.com/gtank/ristretto255"
)

// PublicKey is a compressed Ristretto point (32 bytes).
type PublicKey [32]byte

// AggregateKey deterministically combines n public keys into one
// aggregate key using the MuSig key-aggregation coefficients
// `a_i = H(L, P_i)`, `L = H(P_1 || ... || P_n)` (sorted so the aggregate
// is independent of the caller's ordering).
func AggregateKey(keys []PublicKey) (PublicKey, error) {
	if len(keys) == 0 {
		return PublicKey{}, errors.New("musig: no keys to aggregate")
	}
	sorted := append([]PublicKey(nil), keys...)
	sort.Slice(sorted, func(i, j int) bool {
		for k := range sorted[i] {
			if sorted[i][k] != sorted[j][k] {
				return sorted[i][k] < sorted[j][k]
			}
		}
		return false
	})

	l := hashKeyList(sorted)

	acc := ristretto255.NewElement()
	for _, k := range sorted {
		p, err := decodePoint(k)
		if err != nil {
			return PublicKey{}, err
		}
		coeff := aggregationCoefficient(l, k)
		term := ristretto255.NewElement().ScalarMult(coeff, p)
		acc = ristretto255.NewElement().Add(acc, term)
	}
	var out PublicKey
	copy(out[:], acc.Encode(nil))
	return out, nil
}

// PreprocessState is one signer's first-round nonce material, kept secret
// until Share is called (the classic two-round Schnorr multi-signature
// pattern: preprocess produces public commitments, share consumes the
// aggregated commitment and statement to produce the final partial sig).
type PreprocessState struct {
	hidingNonce   *ristretto255.Scalar
	bindingNonce  *ristretto255.Scalar
	HidingPoint   PublicKey
	BindingPoint  PublicKey
}

// Preprocess generates this signer's round-1 nonce commitments.
func Preprocess() (*PreprocessState, error) {
	hiding, err := randomScalar()
	if err != nil {
		return nil, err
	}
	binding, err := randomScalar()
	if err != nil {
		return nil, err
	}
	st := &PreprocessState{hidingNonce: hiding, bindingNonce: binding}
	copy(st.HidingPoint[:], ristretto255.NewElement().ScalarBaseMult(hiding).Encode(nil))
	copy(st.BindingPoint[:], ristretto255.NewElement().ScalarBaseMult(binding).Encode(nil))
	return st, nil
}

// Share produces this signer's partial signature over message, given the
// full set of signers' preprocess commitments (by public key), this
// signer's own secret key and aggregate-key context.
func Share(state *PreprocessState, secretKey *ristretto255.Scalar, pubKey PublicKey,
	allCommitments map[PublicKey][2]PublicKey, aggregate PublicKey, message []byte) ([]byte, error) {

	bindingFactor := computeBindingFactor(allCommitments, message)

	R := ristretto255.NewElement()
	for pk, commitments := range allCommitments {
		hPoint, err := decodePoint(commitments[0])
		if err != nil {
			return nil, err
		}
		bPoint, err := decodePoint(commitments[1])
		if err != nil {
			return nil, err
		}
		bf := bindingFactor[pk]
		scaled := ristretto255.NewElement().ScalarMult(bf, bPoint)
		sum := ristretto255.NewElement().Add(hPoint, scaled)
		R = ristretto255.NewElement().Add(R, sum)
	}

	agg, err := decodePoint(aggregate)
	if err != nil {
		return nil, err
	}
	c := challenge(R, agg, message)

	l := hashKeyListFromMap(allCommitments)
	coeff := aggregationCoefficient(l, pubKey)

	myBF := bindingFactor[pubKey]
	z := ristretto255.NewScalar().Multiply(c, coeff)
	z.Multiply(z, secretKey)
	z.Add(z, state.hidingNonce)
	bindingTerm := ristretto255.NewScalar().Multiply(myBF, state.bindingNonce)
	z.Add(z, bindingTerm)

	return z.Encode(nil), nil
}

// Complete sums partial signatures into a final (R, z) Schnorr signature.
// Signature is 64 bytes: 32-byte R || 32-byte z.
func Complete(allCommitments map[PublicKey][2]PublicKey, partials [][]byte, message []byte) ([]byte, error) {
	bindingFactor := computeBindingFactor(allCommitments, message)
	R := ristretto255.NewElement()
	for pk, commitments := range allCommitments {
		hPoint, err := decodePoint(commitments[0])
		if err != nil {
			return nil, err
		}
		bPoint, err := decodePoint(commitments[1])
		if err != nil {
			return nil, err
		}
		// binding factor is per-signer but summed identically regardless
		// of iteration order since addition is commutative.
		bf := bindingFactor[pk]
		scaled := ristretto255.NewElement().ScalarMult(bf, bPoint)
		sum := ristretto255.NewElement().Add(hPoint, scaled)
		R = ristretto255.NewElement().Add(R, sum)
	}

	z := ristretto255.NewScalar()
	for _, p := range partials {
		s := ristretto255.NewScalar()
		if err := s.Decode(p); err != nil {
			return nil, err
		}
		z.Add(z, s)
	}

	out := make([]byte, 0, 64)
	out = append(out, R.Encode(nil)...)
	out = append(out, z.Encode(nil)...)
	return out, nil
}

// Verify checks a 64-byte MuSig Schnorr signature against aggregate over
// message.
func Verify(aggregate PublicKey, message, signature []byte) (bool, error) {
	if len(signature) != 64 {
		return false, errors.New("musig: signature must be 64 bytes")
	}
	R, err := decodePoint(pubKeyBytes(signature[:32]))
	if err != nil {
		return false, err
	}
	z := ristretto255.NewScalar()
	if err := z.Decode(signature[32:]); err != nil {
		return false, err
	}
	agg, err := decodePoint(aggregate)
	if err != nil {
		return false, err
	}
	c := challenge(R, agg, message)

	lhs := ristretto255.NewElement().ScalarBaseMult(z)
	rhs := ristretto255.NewElement().Add(R, ristretto255.NewElement().ScalarMult(c, agg))
	return lhs.Equal(rhs) == 1, nil
}

func pubKeyBytes(b []byte) PublicKey {
	var pk PublicKey
	copy(pk[:], b)
	return pk
}

func publicKeyOf(commitments [2]PublicKey) PublicKey { return commitments[0] }

func decodePoint(pk PublicKey) (*ristretto255.Element, error) {
	e := ristretto255.NewElement()
	if err := e.Decode(pk[:]); err != nil {
		return nil, errors.New("musig: invalid ristretto point encoding")
	}
	return e, nil
}

func randomScalar() (*ristretto255.Scalar, error) {
	var buf [64]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return nil, err
	}
	return ristretto255.NewScalar().FromUniformBytes(buf[:]), nil
}

func hashKeyList(keys []PublicKey) []byte {
	h := sha512.New()
	for _, k := range keys {
		h.Write(k[:])
	}
	return h.Sum(nil)
}

func hashKeyListFromMap(m map[PublicKey][2]PublicKey) []byte {
	keys := make([]PublicKey, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		for k := range keys[i] {
			if keys[i][k] != keys[j][k] {
				return keys[i][k] < keys[j][k]
			}
		}
		return false
	})
	return hashKeyList(keys)
}

func aggregationCoefficient(l []byte, key PublicKey) *ristretto255.Scalar {
	h := sha512.New()
	h.Write(l)
	h.Write(key[:])
	return ristretto255.NewScalar().FromUniformBytes(h.Sum(nil))
}

func challenge(R, aggregate *ristretto255.Element, message []byte) *ristretto255.Scalar {
	h := sha512.New()
	h.Write(R.Encode(nil))
	h.Write(aggregate.Encode(nil))
	h.Write(message)
	return ristretto255.NewScalar().FromUniformBytes(h.Sum(nil))
}

func computeBindingFactor(allCommitments map[PublicKey][2]PublicKey, message []byte) map[PublicKey]*ristretto255.Scalar {
	out := make(map[PublicKey]*ristretto255.Scalar, len(allCommitments))
	base := sha512.New()
	base.Write(message)
	for pk, c := range allCommitments {
		h := sha512.New()
		h.Write(base.Sum(nil))
		h.Write(pk[:])
		h.Write(c[0][:])
		h.Write(c[1][:])
		out[pk] = ristretto255.NewScalar().FromUniformBytes(h.Sum(nil))
	}
	return out
}
