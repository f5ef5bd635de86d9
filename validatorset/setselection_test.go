package validatorset

import (
	"testing"

	"github.com/tos-network/custody/internal/common"
)

func validator(b byte) common.Validator {
	var v common.Validator
	v[0] = b
	return v
}

func TestSelectSetOrdersByAllocationDescending(t *testing.T) {
	candidates := []Candidate{
		{Validator: validator(1), Allocation: 100},
		{Validator: validator(2), Allocation: 300},
		{Validator: validator(3), Allocation: 200},
	}
	selected := SelectSet(candidates, 100, nil)
	if len(selected) != 3 {
		t.Fatalf("expected 3 selected, got %d", len(selected))
	}
	if selected[0].Validator != validator(2) || selected[1].Validator != validator(3) || selected[2].Validator != validator(1) {
		t.Fatalf("unexpected order: %v", selected)
	}
}

func TestSelectSetExcludesDisabled(t *testing.T) {
	candidates := []Candidate{
		{Validator: validator(1), Allocation: 100},
		{Validator: validator(2), Allocation: 300},
	}
	selected := SelectSet(candidates, 100, map[common.Validator]bool{validator(2): true})
	if len(selected) != 1 || selected[0].Validator != validator(1) {
		t.Fatalf("expected only validator(1) selected, got %v", selected)
	}
}

func TestSelectSetExcludesBelowAllocationPerShare(t *testing.T) {
	candidates := []Candidate{
		{Validator: validator(1), Allocation: 50},
		{Validator: validator(2), Allocation: 300},
	}
	selected := SelectSet(candidates, 100, nil)
	if len(selected) != 1 || selected[0].Validator != validator(2) {
		t.Fatalf("expected only validator(2) selected, got %v", selected)
	}
}

// TestSelectSetRotationScenario encodes spec.md §8 scenario 2's literal
// seed: AllocationPerKeyShare = 1_000_000, three validators with
// allocations 5e6/3e6/2e6 yield participants [(A,5),(B,3),(C,2)] and a
// TotalAllocatedStake of 10e6. A fourth validator joining afterwards
// with only 1e5 (below one full share) leaves the next rotation's set
// unchanged.
func TestSelectSetRotationScenario(t *testing.T) {
	a, b, c, d := validator(1), validator(2), validator(3), validator(4)
	const allocationPerShare = common.Amount(1_000_000)

	candidates := []Candidate{
		{Validator: a, Allocation: 5_000_000},
		{Validator: b, Allocation: 3_000_000},
		{Validator: c, Allocation: 2_000_000},
	}
	selected := SelectSet(candidates, allocationPerShare, nil)
	want := []Allocation{{Validator: a, Shares: 5}, {Validator: b, Shares: 3}, {Validator: c, Shares: 2}}
	if len(selected) != len(want) {
		t.Fatalf("expected %d participants, got %d: %+v", len(want), len(selected), selected)
	}
	var total uint64
	for i, got := range selected {
		if got != want[i] {
			t.Fatalf("participant %d: expected %+v, got %+v", i, want[i], got)
		}
		total += uint64(got.Shares)
	}
	if total != 10 {
		t.Fatalf("expected total shares 10 (TotalAllocatedStake 10e6 / 1e6 per share), got %d", total)
	}

	candidatesWithFourth := append(append([]Candidate(nil), candidates...), Candidate{Validator: d, Allocation: 100_000})
	again := SelectSet(candidatesWithFourth, allocationPerShare, nil)
	if len(again) != len(want) {
		t.Fatalf("fourth validator below one share should not change the selected set size, got %+v", again)
	}
	for i, got := range again {
		if got != want[i] {
			t.Fatalf("participant %d changed after sub-share validator joined: expected %+v, got %+v", i, want[i], got)
		}
	}
}

// TestSelectSetAmortizesExcessRoundRobin exercises the two-phase cap
// algorithm directly (spec.md §4.G: "amortize excess shares ... round
// robin subtracting 1 share from current top until total == cap") using
// a small local cap scaled down from common.MaxKeySharesPerSet by
// choosing allocationPerShare so the accumulated total overshoots it.
func TestSelectSetAmortizesExcessRoundRobin(t *testing.T) {
	a, b, c := validator(1), validator(2), validator(3)
	const allocationPerShare = common.Amount(1)
	candidates := []Candidate{
		{Validator: a, Allocation: 60},
		{Validator: b, Allocation: 60},
		{Validator: c, Allocation: 60},
	}
	selected := SelectSet(candidates, allocationPerShare, nil)

	var total uint16
	for _, s := range selected {
		total += s.Shares
	}
	if total != common.MaxKeySharesPerSet {
		t.Fatalf("expected amortized total == cap %d, got %d (%+v)", common.MaxKeySharesPerSet, total, selected)
	}
	// 180 accumulated shares over a 150 cap amortize 30 excess shares
	// round-robin across 3 equally-tied validators: 10 taken from each.
	for i, s := range selected {
		if s.Shares != 50 {
			t.Fatalf("participant %d: expected 50 shares after amortization, got %d (%+v)", i, s.Shares, selected)
		}
	}
}

func TestEconomicallySecureGate(t *testing.T) {
	// 1.5x floor plus 20% margin == 1.8x valueSecured.
	valueSecured := common.Amount(1000)
	required := common.Amount(1800)
	if EconomicallySecure(required-1, valueSecured) {
		t.Fatalf("expected gate to reject just-below-required allocation")
	}
	if !EconomicallySecure(required, valueSecured) {
		t.Fatalf("expected gate to accept exactly-required allocation")
	}
}
