package validatorset

import (
	"testing"

	"github.com/tos-network/custody/internal/common"
	"github.com/tos-network/custody/internal/database"
)

func TestQueueDeallocationDoesNotReduceAllocationImmediately(t *testing.T) {
	db := database.OpenMemory()
	defer db.Close()
	l := NewLedger(db)

	net := common.NetworkBitcoin
	v := validator(7)

	if err := l.Allocate(net, v, 1000); err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if _, err := l.QueueDeallocation(net, v, 400); err != nil {
		t.Fatalf("QueueDeallocation: %v", err)
	}

	alloc, err := l.allocation(net, v)
	if err != nil {
		t.Fatalf("allocation: %v", err)
	}
	if alloc != 1000 {
		t.Fatalf("expected allocation unchanged at 1000 before rotation applies it, got %d", alloc)
	}
}

func TestApplyDeallocationsReducesAllocation(t *testing.T) {
	db := database.OpenMemory()
	defer db.Close()
	l := NewLedger(db)

	net := common.NetworkBitcoin
	v := validator(9)

	if err := l.Allocate(net, v, 1000); err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	unlock, err := l.QueueDeallocation(net, v, 400)
	if err != nil {
		t.Fatalf("QueueDeallocation: %v", err)
	}
	if err := l.ApplyDeallocations(net, v, unlock); err != nil {
		t.Fatalf("ApplyDeallocations: %v", err)
	}

	alloc, err := l.allocation(net, v)
	if err != nil {
		t.Fatalf("allocation: %v", err)
	}
	if alloc != 600 {
		t.Fatalf("expected allocation reduced to 600, got %d", alloc)
	}
}

func TestQueueDeallocationRejectsOverAllocation(t *testing.T) {
	db := database.OpenMemory()
	defer db.Close()
	l := NewLedger(db)

	net := common.NetworkBitcoin
	v := validator(3)

	if err := l.Allocate(net, v, 100); err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if _, err := l.QueueDeallocation(net, v, 200); err != ErrInsufficientAllocation {
		t.Fatalf("expected ErrInsufficientAllocation, got %v", err)
	}
}

// TestDeallocationTimingScenario encodes spec.md §8 scenario 3 literally:
// validator A in a Serai set at Session=2 queues a deallocation of 3e6;
// the unlock session is current+3 == 5, and claim_deallocation(serai,5)
// must fail both before Session 5 is reached and, even once it is
// reached, before Session 4's handover has completed.
func TestDeallocationTimingScenario(t *testing.T) {
	db := database.OpenMemory()
	defer db.Close()
	l := NewLedger(db)

	net := common.NetworkSerai
	a := validator(1)

	if err := l.Allocate(net, a, 5_000_000); err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if err := l.db.Put(l.ks.CurrentSessionKey(net), database.Uint32Bytes(2)); err != nil {
		t.Fatalf("seeding CurrentSession: %v", err)
	}

	unlock, err := l.QueueDeallocation(net, a, 3_000_000)
	if err != nil {
		t.Fatalf("QueueDeallocation: %v", err)
	}
	if unlock != 5 {
		t.Fatalf("expected unlock session 2+3=5, got %d", unlock)
	}

	if err := l.ClaimDeallocation(net, a, 5); err != ErrDeallocationNotYetUnlocked {
		t.Fatalf("expected ErrDeallocationNotYetUnlocked before Session 5, got %v", err)
	}

	if err := l.db.Put(l.ks.CurrentSessionKey(net), database.Uint32Bytes(5)); err != nil {
		t.Fatalf("advancing CurrentSession: %v", err)
	}
	if err := l.ClaimDeallocation(net, a, 5); err != ErrHandoverNotCompleted {
		t.Fatalf("expected ErrHandoverNotCompleted before session 4's handover completes, got %v", err)
	}

	if err := l.MarkHandoverCompleted(common.ValidatorSet{Network: net, Session: 4}); err != nil {
		t.Fatalf("MarkHandoverCompleted: %v", err)
	}
	if err := l.ClaimDeallocation(net, a, 5); err != nil {
		t.Fatalf("expected claim to succeed at Session 5 after session 4's handover, got %v", err)
	}

	alloc, err := l.allocation(net, a)
	if err != nil {
		t.Fatalf("allocation: %v", err)
	}
	if alloc != 2_000_000 {
		t.Fatalf("expected allocation reduced to 2e6 after claim, got %d", alloc)
	}
}
