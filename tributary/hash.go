package tributary

import "github.com/decred/dcrd/crypto/blake256"

// TxID derives a Transaction's canonical identifier, hashed with
// blake256 rather than sha256: this module already depends on
// decred/dcrd for its secp256k1 arithmetic (crypto/frost), and blake256
// is the same hash family decred's own chain uses for transaction
// identifiers, so reusing it here keeps one hash family across the
// network-curve-adjacent parts of the codebase instead of introducing a
// second general-purpose hash for no reason.
func TxID(tx Transaction) [32]byte {
	h := blake256.New()
	h.Write([]byte{byte(tx.Kind)})
	h.Write(tx.Signer[:])
	var nonce [4]byte
	nonce[0] = byte(tx.Nonce >> 24)
	nonce[1] = byte(tx.Nonce >> 16)
	nonce[2] = byte(tx.Nonce >> 8)
	nonce[3] = byte(tx.Nonce)
	h.Write(nonce[:])
	h.Write(tx.Payload)
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}
