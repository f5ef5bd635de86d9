package validatorset

import (
	"sort"

	"github.com/tos-network/custody/internal/common"
)

// Candidate is one validator's allocation as of the moment new_set runs.
type Candidate struct {
	Validator  common.Validator
	Allocation common.Amount
}

// Allocation is one validator's key-share count in a selected set, per
// spec.md §8 scenario 2's `[(A,5),(B,3),(C,2)]` — SelectSet's result
// must carry each participant's share count, not just its identity,
// since every downstream consumer (key-gen's participant weights,
// tributary's signer-weighted rounds) indexes by share count.
type Allocation struct {
	Validator common.Validator
	Shares    uint16
}

// SelectSet runs the new_set algorithm (spec.md §4.G/§8): sort
// candidates by allocation descending (ties broken by validator key
// ascending), excluding any validator present in `disabled`; for each,
// `shares = min(allocation/allocationPerShare, MaxKeySharesPerSet)`,
// accumulating until the iterator ends or the running total reaches the
// cap. If the accumulated total exceeds the cap, the excess is amortized
// round-robin: repeatedly take 1 share away from whichever selected
// validator currently holds the most, until total == cap exactly.
func SelectSet(candidates []Candidate, allocationPerShare common.Amount, disabled map[common.Validator]bool) []Allocation {
	eligible := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		if disabled[c.Validator] {
			continue
		}
		if allocationPerShare == 0 || c.Allocation < allocationPerShare {
			continue
		}
		eligible = append(eligible, c)
	}

	sort.Slice(eligible, func(i, j int) bool {
		if eligible[i].Allocation != eligible[j].Allocation {
			return eligible[i].Allocation > eligible[j].Allocation
		}
		return lessValidator(eligible[i].Validator, eligible[j].Validator)
	})

	var selected []Allocation
	var total uint64
	for _, c := range eligible {
		if total >= uint64(common.MaxKeySharesPerSet) {
			break
		}
		shares := uint64(c.Allocation / allocationPerShare)
		if shares == 0 {
			continue
		}
		if shares > uint64(common.MaxKeySharesPerSet) {
			shares = uint64(common.MaxKeySharesPerSet)
		}
		selected = append(selected, Allocation{Validator: c.Validator, Shares: uint16(shares)})
		total += shares
	}

	for total > uint64(common.MaxKeySharesPerSet) {
		top := 0
		for i := range selected {
			if selected[i].Shares > selected[top].Shares {
				top = i
			}
		}
		selected[top].Shares--
		total--
	}

	return selected
}

// Validators extracts the bare validator identities from a SelectSet
// result, in the same order, for callers that only need membership.
func Validators(selected []Allocation) []common.Validator {
	out := make([]common.Validator, len(selected))
	for i, a := range selected {
		out[i] = a.Validator
	}
	return out
}

func lessValidator(a, b common.Validator) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

// EconomicSecurityMargin is the fractional buffer required above the
// bare 1.5x collateralization floor, per spec.md §4.G's gate formula
// ("1.5x the value secured, plus a 20% margin").
const EconomicSecurityMargin = 0.20

// EconomicSecurityBaseMultiple is the bare collateralization floor a
// session's total allocation must clear before it is gated by margin.
const EconomicSecurityBaseMultiple = 1.5

// EconomicallySecure reports whether totalAllocated stake is sufficient
// to back valueSecured, applying both the 1.5x floor and the 20% margin
// on top of it: totalAllocated >= valueSecured * 1.5 * 1.20.
func EconomicallySecure(totalAllocated, valueSecured common.Amount) bool {
	required := float64(valueSecured) * EconomicSecurityBaseMultiple * (1 + EconomicSecurityMargin)
	return float64(totalAllocated) >= required
}
