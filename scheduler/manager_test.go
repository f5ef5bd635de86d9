package scheduler

import "testing"

func TestMultisigManagerCreditAndBuildPlanConsumesOutputs(t *testing.T) {
	m := NewMultisigManager()
	key := [32]byte{1}
	m.RegisterKey(key)

	if err := m.CreditOutput(key, Output{ID: [32]byte{1}, Amount: 10000}); err != nil {
		t.Fatalf("CreditOutput: %v", err)
	}

	payments := []Payment{{Destination: []byte("dest"), Amount: 3000}}
	plan, _, err := m.BuildPlan(key, payments, 1, nil, fixedFee(100))
	if err != nil {
		t.Fatalf("BuildPlan: %v", err)
	}
	if len(plan.Inputs) != 1 {
		t.Fatalf("expected 1 input spent, got %d", len(plan.Inputs))
	}

	remaining, err := m.PendingOutputs(key)
	if err != nil {
		t.Fatalf("PendingOutputs: %v", err)
	}
	if len(remaining) != 0 {
		t.Fatalf("expected spent output removed from availability, got %v", remaining)
	}
}

func TestMultisigManagerRetireKeyBlockedByOutstandingEventuality(t *testing.T) {
	m := NewMultisigManager()
	key := [32]byte{2}
	m.RegisterKey(key)

	m.RegisterEventuality(100, Eventuality{Key: key, PlanID: [32]byte{9}, Fingerprint: [32]byte{7}})

	if err := m.RetireKey(key); err != ErrKeyHasOutstanding {
		t.Fatalf("expected ErrKeyHasOutstanding, got %v", err)
	}

	if _, ok := m.CompleteEventuality([32]byte{7}); !ok {
		t.Fatalf("expected the fingerprint to match the registered Eventuality")
	}

	if err := m.RetireKey(key); err != nil {
		t.Fatalf("expected RetireKey to succeed once the Eventuality completed, got %v", err)
	}
}

func TestMultisigManagerForwardOutputTagsForwarded(t *testing.T) {
	m := NewMultisigManager()
	oldKey, newKey := [32]byte{3}, [32]byte{4}
	m.RegisterKey(oldKey)
	m.RegisterKey(newKey)

	o := Output{ID: [32]byte{5}, Amount: 500, Tag: OutputExternal}
	if err := m.ForwardOutput(oldKey, newKey, o); err != nil {
		t.Fatalf("ForwardOutput: %v", err)
	}

	pending, err := m.PendingOutputs(newKey)
	if err != nil {
		t.Fatalf("PendingOutputs: %v", err)
	}
	if len(pending) != 1 || pending[0].Tag != OutputForwarded {
		t.Fatalf("expected forwarded output credited to newKey with OutputForwarded tag, got %v", pending)
	}
}

func TestMultisigManagerCursorFollowsEarliestRegistration(t *testing.T) {
	m := NewMultisigManager()
	key := [32]byte{6}
	m.RegisterKey(key)

	m.SetCursor(500)
	if m.Cursor() != 500 {
		t.Fatalf("expected cursor 500, got %d", m.Cursor())
	}

	m.RegisterEventuality(200, Eventuality{Key: key, PlanID: [32]byte{1}, Fingerprint: [32]byte{2}})
	if m.Cursor() != 200 {
		t.Fatalf("expected cursor lowered to registration block 200, got %d", m.Cursor())
	}
}
