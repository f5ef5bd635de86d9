package keygen

import (
	"testing"

	"github.com/tos-network/custody/crypto/evrf"
)

func testKeys(n int) []evrf.PublicKey {
	keys := make([]evrf.PublicKey, n)
	for i := range keys {
		// Zeroed/malformed keys are deliberately coerced by evrf.CoerceKeys
		// in the real pipeline; here we just need n distinct opaque byte
		// strings of the expected on-chain length for Participate's sizing.
		k := make([]byte, 48)
		k[0] = byte(i + 1)
		keys[i] = k
	}
	return keys
}

func TestSessionGenerateKeyProducesBothCurves(t *testing.T) {
	coordPub := testKeys(3)
	netPub := testKeys(3)
	coordCtx := evrf.NewContext([]byte("coord"))
	netCtx := evrf.NewContext([]byte("net"))

	privKey := make([]byte, 32)
	privKey[0] = 7

	weights := map[int]uint64{1: 1, 2: 1, 3: 1}
	s, _ := NewSession(2, coordPub, netPub, weights, 1, privKey, coordCtx, netCtx)
	coord, network, err := s.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	if len(coord) == 0 || len(network) == 0 {
		t.Fatalf("expected nonempty participations for both curves")
	}
}

func TestSessionConfirmedFalseBeforeVerify(t *testing.T) {
	coordPub := testKeys(3)
	netPub := testKeys(3)
	coordCtx := evrf.NewContext([]byte("coord"))
	netCtx := evrf.NewContext([]byte("net"))
	privKey := make([]byte, 32)

	weights := map[int]uint64{1: 1, 2: 1, 3: 1}
	s, _ := NewSession(2, coordPub, netPub, weights, 1, privKey, coordCtx, netCtx)
	if s.Confirmed() {
		t.Fatalf("expected Confirmed() == false before Verify runs")
	}
}

func TestSessionVerifyProducesGeneratedKeyPair(t *testing.T) {
	coordPub := testKeys(3)
	netPub := testKeys(3)
	coordCtx := evrf.NewContext([]byte("coord"))
	netCtx := evrf.NewContext([]byte("net"))
	weights := map[int]uint64{1: 1, 2: 1, 3: 1}

	priv1 := make([]byte, 32)
	priv1[0] = 1
	priv2 := make([]byte, 32)
	priv2[0] = 2

	s1, _ := NewSession(2, coordPub, netPub, weights, 1, priv1, coordCtx, netCtx)
	s2, _ := NewSession(2, coordPub, netPub, weights, 2, priv2, coordCtx, netCtx)

	coord1, net1, err := s1.GenerateKey()
	if err != nil {
		t.Fatalf("s1 GenerateKey: %v", err)
	}
	coord2, net2, err := s2.GenerateKey()
	if err != nil {
		t.Fatalf("s2 GenerateKey: %v", err)
	}

	raw2 := append(append([]byte(nil), coord2...), net2...)
	if _, err := s1.ReceiveParticipation(2, raw2); err != nil {
		t.Fatalf("s1 ReceiveParticipation: %v", err)
	}
	raw1 := append(append([]byte(nil), coord1...), net1...)
	if _, err := s2.ReceiveParticipation(1, raw1); err != nil {
		t.Fatalf("s2 ReceiveParticipation: %v", err)
	}

	blames, err := s1.Verify()
	if err != nil {
		t.Fatalf("s1 Verify: %v (blames=%v)", err, blames)
	}
	if !s1.Confirmed() {
		t.Fatalf("expected s1 confirmed after a successful Verify")
	}
	coordKey, netKey, coordShare, netShare, ok := s1.GeneratedKeyPair()
	if !ok || len(coordKey) == 0 || len(netKey) == 0 || len(coordShare) == 0 || len(netShare) == 0 {
		t.Fatalf("expected a nonempty generated key pair, got ok=%v", ok)
	}
}
