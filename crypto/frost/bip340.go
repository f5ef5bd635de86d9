package frost

import (
	"errors"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

// VerifyBIP340 checks that an Aggregate'd signature also verifies under
// BIP-340 rules, the convention Bitcoin-family ExternalChain
// implementations (spec.md §4.F's AttachSignature) need satisfied before
// broadcasting. It assumes the caller already negotiated the even-Y
// group-key/nonce convention BIP-340 requires (FROST over secp256k1 does
// not itself guarantee that); this is a verification layer, not a
// substitute for that negotiation.
//
// Uses github.com/btcsuite/btcd/btcec/v2's schnorr package, the same
// library the teacher's keystore tooling uses for Schnorr signature
// handling (accounts/keystore/key.go, cmd/toskey/generate.go), rather
// than hand-rolling BIP-340's x-only-pubkey parity rules.
func VerifyBIP340(groupKey *secp256k1.PublicKey, message, signature []byte) error {
	if len(signature) != 64 {
		return errors.New("frost: signature must be 64 bytes (R || s)")
	}
	pub, err := btcec.ParsePubKey(groupKey.SerializeCompressed())
	if err != nil {
		return err
	}
	sig, err := schnorr.ParseSignature(signature)
	if err != nil {
		return err
	}
	if !sig.Verify(message, pub) {
		return errors.New("frost: aggregate signature does not verify under BIP-340")
	}
	return nil
}
