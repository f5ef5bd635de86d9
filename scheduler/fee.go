package scheduler

import "github.com/tos-network/custody/internal/common"

// DustThreshold is the minimum payment amount a Plan will include; smaller
// amounts are dropped rather than executed at a loss, mirroring spec.md
// §8 scenario 5's "drop payments below dust rather than fail the whole
// batch" behavior.
const DustThreshold common.Amount = 1000

// AmortizeFee distributes `fee` across `payments` round-robin, one unit
// at a time, starting from `startIndex` (which advances between calls so
// repeated amortizations don't always penalize the same payment first),
// and drops any payment whose amount would fall to or below zero or below
// DustThreshold after amortization. It returns the adjusted payments (in
// their original relative order, dust-dropped entries removed) and the
// next startIndex to use.
//
// For example, a 300-unit fee split across 3 payments of 1000 each takes
// 100 off each payment, one unit per payment per pass over 100 passes,
// since 300 divides evenly by 3.
func AmortizeFee(payments []Payment, fee common.Amount, startIndex int) ([]Payment, int, []int) {
	if len(payments) == 0 || fee == 0 {
		return payments, startIndex, nil
	}

	out := append([]Payment(nil), payments...)
	remaining := fee
	n := len(out)
	idx := startIndex % n

	for remaining > 0 {
		anyAlive := false
		for range out {
			if out[idx].Amount > 0 {
				anyAlive = true
			}
			idx = (idx + 1) % n
		}
		if !anyAlive {
			break
		}
		idx = startIndex % n
		took := false
		for i := 0; i < n && remaining > 0; i++ {
			cur := (idx + i) % n
			if out[cur].Amount == 0 {
				continue
			}
			out[cur].Amount--
			remaining--
			took = true
		}
		if !took {
			break
		}
	}

	var dropped []int
	var final []Payment
	for i, p := range out {
		if p.Amount < DustThreshold {
			dropped = append(dropped, i)
			continue
		}
		final = append(final, p)
	}

	next := (startIndex + 1) % n
	return final, next, dropped
}

// EstimateChange computes the leftover amount after funding payments and
// fee from the available input total, returning nil if there's nothing
// left to return to the multisig (spec.md §4.E: a Plan with no leftover
// carries no change output).
func EstimateChange(inputTotal common.Amount, payments []Payment, fee common.Amount) (*common.Amount, error) {
	var spent common.Amount
	for _, p := range payments {
		spent += p.Amount
	}
	spent += fee
	if spent > inputTotal {
		return nil, ErrInsufficientFunds
	}
	change := inputTotal - spent
	if change == 0 {
		return nil, nil
	}
	return &change, nil
}

// SelectInputs greedily accumulates outputs (largest-first callers should
// pre-sort) until the running total covers target, returning
// ErrInsufficientFunds if the full set isn't enough.
func SelectInputs(available []Output, target common.Amount) ([]Output, error) {
	var selected []Output
	var total common.Amount
	for _, o := range available {
		if total >= target {
			break
		}
		selected = append(selected, o)
		total += o.Amount
	}
	if total < target {
		return nil, ErrInsufficientFunds
	}
	return selected, nil
}
