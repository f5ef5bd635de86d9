package evrf

import "golang.org/x/crypto/blake2s"

// blake2sSum seeds CoerceKeys' deterministic-point derivation. blake2s is
// used rather than sha256 because it is the teacher's own hashing
// dependency (golang.org/x/crypto) and spec.md §9's concrete scenario 4
// names it explicitly ("Blake2s-seeded random point").
func blake2sSum(data []byte) [32]byte {
	return blake2s.Sum256(data)
}
