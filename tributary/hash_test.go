package tributary

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTxIDDeterministic(t *testing.T) {
	var signer [32]byte
	signer[0] = 5
	tx := Transaction{Kind: TxDkgCommitments, Signer: signer, Nonce: 3, Payload: []byte("payload")}

	id1 := TxID(tx)
	id2 := TxID(tx)
	require.Equal(t, id1, id2, "TxID must be a pure function of the transaction's contents")
}

func TestTxIDDiffersOnNonce(t *testing.T) {
	var signer [32]byte
	signer[0] = 5
	tx1 := Transaction{Kind: TxDkgCommitments, Signer: signer, Nonce: 1}
	tx2 := Transaction{Kind: TxDkgCommitments, Signer: signer, Nonce: 2}

	require.NotEqual(t, TxID(tx1), TxID(tx2))
}
