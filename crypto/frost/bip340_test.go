package frost

import "testing"

func TestVerifyBIP340RejectsWrongLength(t *testing.T) {
	key, err := randomScalar()
	if err != nil {
		t.Fatalf("randomScalar: %v", err)
	}
	groupKey := pointFromScalar(key)

	if err := VerifyBIP340(groupKey, []byte("msg"), make([]byte, 63)); err == nil {
		t.Fatalf("expected an error for a 63-byte signature")
	}
}

func TestVerifyBIP340RejectsGarbageSignature(t *testing.T) {
	key, err := randomScalar()
	if err != nil {
		t.Fatalf("randomScalar: %v", err)
	}
	groupKey := pointFromScalar(key)

	garbage := make([]byte, 64)
	for i := range garbage {
		garbage[i] = 0xff
	}
	if err := VerifyBIP340(groupKey, []byte("msg"), garbage); err == nil {
		t.Fatalf("expected an error for a garbage signature")
	}
}
