package scheduler

import (
	"testing"

	"github.com/tos-network/custody/internal/common"
)

func fixedFee(fee common.Amount) NeededFeeFunc {
	return func(inputs []Output, payments []Payment, change *common.Amount) (*common.Amount, error) {
		f := fee
		return &f, nil
	}
}

func TestBuildPlanSimpleChange(t *testing.T) {
	key := [32]byte{1}
	available := []Output{{ID: [32]byte{1}, Amount: 10000}}
	payments := []Payment{{Destination: []byte("dest"), Amount: 3000}}

	plan, next, branches, err := BuildPlan(key, available, payments, 1, nil, 0, fixedFee(100))
	if err != nil {
		t.Fatalf("BuildPlan: %v", err)
	}
	if len(branches) != 0 {
		t.Fatalf("expected no dropped branches, got %v", branches)
	}
	if len(plan.Payments) != 1 || plan.Payments[0].Amount != 2900 {
		t.Fatalf("expected payment reduced by the 100 fee to 2900, got %v", plan.Payments)
	}
	if plan.Change == nil || *plan.Change != 7000 {
		t.Fatalf("expected change 7000, got %v", plan.Change)
	}
	if next != 0 {
		t.Fatalf("expected amortizeStart to wrap back to 0 for a single payment, got %d", next)
	}
}

func TestBuildPlanUnfulfillableWhenFeeExceedsInputs(t *testing.T) {
	key := [32]byte{2}
	available := []Output{{ID: [32]byte{1}, Amount: 50}}
	payments := []Payment{{Destination: []byte("dest"), Amount: 40}}

	_, _, _, err := BuildPlan(key, available, payments, 1, nil, 0, fixedFee(1000))
	if err == nil {
		t.Fatalf("expected an error, got a plan")
	}
}

func TestBuildPlanInjectsSentinelWhenSingleOutputBelowMinimum(t *testing.T) {
	key := [32]byte{3}
	available := []Output{{ID: [32]byte{1}, Amount: 10000}}
	payments := []Payment{{Destination: []byte("dest"), Amount: 5000}}
	burn := []byte("burn-address")

	plan, _, _, err := BuildPlan(key, available, payments, 2, burn, 0, fixedFee(100))
	if err != nil {
		t.Fatalf("BuildPlan: %v", err)
	}
	if len(plan.Payments) != 2 {
		t.Fatalf("expected sentinel payment injected, got %d payments", len(plan.Payments))
	}
	found := false
	for _, p := range plan.Payments {
		if string(p.Destination) == string(burn) {
			found = true
			if p.Amount != DustThreshold {
				t.Fatalf("expected sentinel amount %d, got %d", DustThreshold, p.Amount)
			}
		}
	}
	if !found {
		t.Fatalf("expected a payment to the burn address")
	}
}

func TestBuildPlanReportsDroppedBranchPayment(t *testing.T) {
	key := [32]byte{4}
	available := []Output{{ID: [32]byte{1}, Amount: 11000}}
	payments := []Payment{
		{Destination: []byte("main"), Amount: 9000},
		{Destination: []byte("branch"), Amount: DustThreshold, Branch: true},
	}

	plan, _, branches, err := BuildPlan(key, available, payments, 1, nil, 0, fixedFee(50))
	if err != nil {
		t.Fatalf("BuildPlan: %v", err)
	}
	if len(branches) != 1 {
		t.Fatalf("expected 1 dropped branch reported, got %v", branches)
	}
	if branches[0].Expected != DustThreshold {
		t.Fatalf("expected dropped branch's Expected = %d, got %d", DustThreshold, branches[0].Expected)
	}
	if branches[0].Actual != nil {
		t.Fatalf("expected Actual nil for a dropped branch, got %v", *branches[0].Actual)
	}
	for _, p := range plan.Payments {
		if string(p.Destination) == "branch" {
			t.Fatalf("expected branch payment dropped from the plan")
		}
	}
}
