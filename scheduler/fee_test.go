package scheduler

import "testing"

func TestAmortizeFeeEvenlyDivides(t *testing.T) {
	payments := []Payment{
		{Amount: 1000},
		{Amount: 1000},
		{Amount: 1000},
	}
	out, _, dropped := AmortizeFee(payments, 300, 0)
	if len(dropped) != 0 {
		t.Fatalf("expected no drops, got %v", dropped)
	}
	if len(out) != 3 {
		t.Fatalf("expected 3 payments, got %d", len(out))
	}
	for _, p := range out {
		if p.Amount != 900 {
			t.Fatalf("expected each payment reduced to 900, got %d", p.Amount)
		}
	}
}

func TestAmortizeFeeDropsDustPayments(t *testing.T) {
	payments := []Payment{
		{Amount: DustThreshold + 50},
		{Amount: DustThreshold - 1},
	}
	out, _, dropped := AmortizeFee(payments, 10, 0)
	if len(dropped) != 1 {
		t.Fatalf("expected 1 dropped payment, got %v", dropped)
	}
	if len(out) != 1 {
		t.Fatalf("expected 1 remaining payment, got %d", len(out))
	}
}

func TestEstimateChangeNilWhenExact(t *testing.T) {
	payments := []Payment{{Amount: 500}}
	change, err := EstimateChange(600, payments, 100)
	if err != nil {
		t.Fatalf("EstimateChange: %v", err)
	}
	if change != nil {
		t.Fatalf("expected nil change, got %v", *change)
	}
}

func TestEstimateChangeInsufficientFunds(t *testing.T) {
	payments := []Payment{{Amount: 500}}
	_, err := EstimateChange(400, payments, 100)
	if err != ErrInsufficientFunds {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
}

func TestSelectInputsGreedyAccumulation(t *testing.T) {
	available := []Output{{Amount: 100}, {Amount: 200}, {Amount: 300}}
	selected, err := SelectInputs(available, 250)
	if err != nil {
		t.Fatalf("SelectInputs: %v", err)
	}
	var sum uint64
	for _, o := range selected {
		sum += uint64(o.Amount)
	}
	if sum < 250 {
		t.Fatalf("selected inputs do not cover target: %d", sum)
	}
}
