package scheduler

import (
	"github.com/decred/dcrd/crypto/blake256"

	"github.com/tos-network/custody/internal/common"
)

// NeededFeeFunc computes the fee a transaction spending inputs and
// satisfying payments (plus optional change) requires, returning nil if
// even a zero-payment transaction is unfulfillable from inputs alone.
// Implemented per-chain (scanner.ExternalChain.NeededFee); kept as a
// function type here so BuildPlan doesn't import the scanner package
// that defines the interface (scanner already imports scheduler for
// Plan/Output/Payment, so the reverse import would cycle).
type NeededFeeFunc func(inputs []Output, payments []Payment, change *common.Amount) (*common.Amount, error)

// planID derives a Plan's canonical identifier from its inputs, payments,
// and the multisig key producing it, the same blake256 idiom
// tributary.TxID uses for transaction identifiers.
func planID(key [32]byte, inputs []Output, payments []Payment) [32]byte {
	h := blake256.New()
	h.Write(key[:])
	for _, in := range inputs {
		h.Write(in.ID[:])
	}
	for _, p := range payments {
		h.Write(p.Destination)
		var amt [8]byte
		putUint64(amt[:], uint64(p.Amount))
		h.Write(amt[:])
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

func putUint64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (56 - 8*i))
	}
}

// sentinelPayment returns a dust-sized payment to burnAddress, injected
// when amortization would otherwise leave a Monero-style plan with only
// one external output (spec.md §4.E step 4: "inject sentinel payment to
// burn address if exactly one external output remains but chain needs
// >=2").
func sentinelPayment(burnAddress []byte) Payment {
	return Payment{Destination: burnAddress, Amount: DustThreshold}
}

// BuildPlan assembles the Burn -> Plan pipeline spec.md §4.E lays out:
// select enough of available to cover payments and fee, compute the fee
// via neededFee, amortize it round-robin across payments (dropping dust
// and reporting dropped branch payments), inject a burn-address sentinel
// if the chain requires more outputs than remain, and compute change from
// whatever's left. amortizeStart carries AmortizeFee's round-robin
// position across calls so repeated Plans for the same key don't always
// penalize the same payment index first.
//
// Grounded on original_source/processor/src/multisigs/scheduler/mod.rs's
// Scheduler::plan, generalized into a standalone function so
// MultisigManager can drive it per key without owning the fee/dust
// constants itself.
func BuildPlan(
	key [32]byte,
	available []Output,
	payments []Payment,
	minOutputs int,
	burnAddress []byte,
	amortizeStart int,
	neededFee NeededFeeFunc,
) (*Plan, int, []PostFeeBranch, error) {
	var target common.Amount
	for _, p := range payments {
		target += p.Amount
	}

	selected, err := SelectInputs(available, target)
	if err != nil {
		return nil, amortizeStart, nil, err
	}

	fee, err := neededFee(selected, payments, nil)
	if err != nil {
		return nil, amortizeStart, nil, err
	}
	if fee == nil {
		return nil, amortizeStart, nil, ErrPlanUnfulfillable
	}

	// The first selection only covered the payments; reselect to also
	// cover the fee if the cheap inputs weren't enough.
	if target+*fee > sumOutputs(selected) {
		selected, err = SelectInputs(available, target+*fee)
		if err != nil {
			return nil, amortizeStart, nil, err
		}
		fee, err = neededFee(selected, payments, nil)
		if err != nil {
			return nil, amortizeStart, nil, err
		}
		if fee == nil {
			return nil, amortizeStart, nil, ErrPlanUnfulfillable
		}
	}

	amortized, nextStart, droppedIdx := AmortizeFee(payments, *fee, amortizeStart)

	var branches []PostFeeBranch
	for _, idx := range droppedIdx {
		if payments[idx].Branch {
			branches = append(branches, PostFeeBranch{Expected: payments[idx].Amount, Actual: nil})
		}
	}

	externalOutputs := 0
	for _, p := range amortized {
		if !p.Branch {
			externalOutputs++
		}
	}
	if externalOutputs == 1 && externalOutputs < minOutputs {
		amortized = append(amortized, sentinelPayment(burnAddress))
	}

	if len(amortized) == 0 {
		return nil, nextStart, branches, ErrNoPayments
	}

	change, err := EstimateChange(sumOutputs(selected), amortized, *fee)
	if err != nil {
		return nil, nextStart, branches, err
	}

	plan := &Plan{
		ID:       planID(key, selected, amortized),
		Inputs:   selected,
		Payments: amortized,
		Change:   change,
	}
	return plan, nextStart, branches, nil
}

func sumOutputs(outputs []Output) common.Amount {
	var total common.Amount
	for _, o := range outputs {
		total += o.Amount
	}
	return total
}
