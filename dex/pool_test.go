package dex

import (
	"testing"

	"github.com/holiman/uint256"
)

func TestAddLiquidityFirstDepositBurnsMinLiquidity(t *testing.T) {
	p := NewPool()
	minted, err := p.AddLiquidity(uint256.NewInt(100000), uint256.NewInt(100000))
	if err != nil {
		t.Fatalf("AddLiquidity: %v", err)
	}
	// sqrt(100000*100000) = 100000; MintMinLiquidity (1000) is burned.
	want := uint256.NewInt(100000 - 1000)
	if minted.Cmp(want) != 0 {
		t.Fatalf("minted = %s, want %s", minted, want)
	}
}

func TestAddLiquidityBelowMinLiquidityRejected(t *testing.T) {
	p := NewPool()
	_, err := p.AddLiquidity(uint256.NewInt(10), uint256.NewInt(10))
	if err != ErrBelowMinLiquidity {
		t.Fatalf("expected ErrBelowMinLiquidity, got %v", err)
	}
}

func TestSwapExactTokensForTokensAppliesFee(t *testing.T) {
	p := NewPool()
	if _, err := p.AddLiquidity(uint256.NewInt(1_000_000), uint256.NewInt(1_000_000)); err != nil {
		t.Fatalf("AddLiquidity: %v", err)
	}
	out, err := p.SwapExactTokensForTokens(uint256.NewInt(1000), true, uint256.NewInt(0))
	if err != nil {
		t.Fatalf("swap: %v", err)
	}
	// Output must be strictly less than input since reserves are equal and
	// a fee is taken.
	if out.Cmp(uint256.NewInt(1000)) >= 0 {
		t.Fatalf("expected output below input after fee, got %s", out)
	}
	if out.IsZero() {
		t.Fatalf("expected nonzero output")
	}
}

func TestSwapRespectsSlippageBound(t *testing.T) {
	p := NewPool()
	if _, err := p.AddLiquidity(uint256.NewInt(1_000_000), uint256.NewInt(1_000_000)); err != nil {
		t.Fatalf("AddLiquidity: %v", err)
	}
	_, err := p.SwapExactTokensForTokens(uint256.NewInt(1000), true, uint256.NewInt(1_000_000))
	if err != ErrSlippage {
		t.Fatalf("expected ErrSlippage, got %v", err)
	}
}

func TestRemoveLiquidityReturnsProportionalShare(t *testing.T) {
	p := NewPool()
	minted, err := p.AddLiquidity(uint256.NewInt(100000), uint256.NewInt(100000))
	if err != nil {
		t.Fatalf("AddLiquidity: %v", err)
	}
	a, b, err := p.RemoveLiquidity(minted)
	if err != nil {
		t.Fatalf("RemoveLiquidity: %v", err)
	}
	if a.IsZero() || b.IsZero() {
		t.Fatalf("expected nonzero returns, got a=%s b=%s", a, b)
	}
}

// TestQuoteExactScenario encodes spec.md §8 scenario 1's literal seed:
// a pool of 10000 native / 200 X, quote_exact(3000) returns 60
// fee-exclusive and 46 fee-inclusive at the 3-per-mille LP fee, and
// executing that swap moves the reserves by exactly those amounts.
func TestQuoteExactScenario(t *testing.T) {
	p := NewPool()
	if _, err := p.AddLiquidity(uint256.NewInt(10000), uint256.NewInt(200)); err != nil {
		t.Fatalf("AddLiquidity: %v", err)
	}

	feeExclusive, feeInclusive, err := p.QuoteExact(uint256.NewInt(3000), true)
	if err != nil {
		t.Fatalf("QuoteExact: %v", err)
	}
	if feeExclusive.Cmp(uint256.NewInt(60)) != 0 {
		t.Fatalf("fee-exclusive quote = %s, want 60", feeExclusive)
	}
	if feeInclusive.Cmp(uint256.NewInt(46)) != 0 {
		t.Fatalf("fee-inclusive quote = %s, want 46", feeInclusive)
	}

	out, err := p.SwapExactTokensForTokens(uint256.NewInt(3000), true, uint256.NewInt(1))
	if err != nil {
		t.Fatalf("swap: %v", err)
	}
	if out.Cmp(uint256.NewInt(46)) != 0 {
		t.Fatalf("executed swap output = %s, want 46", out)
	}
	if p.ReserveA.Cmp(uint256.NewInt(13000)) != 0 {
		t.Fatalf("ReserveA after swap = %s, want 13000", p.ReserveA)
	}
	if p.ReserveB.Cmp(uint256.NewInt(154)) != 0 {
		t.Fatalf("ReserveB after swap = %s, want 154", p.ReserveB)
	}
}

func TestMedianWindowOddSizeSelectsMiddle(t *testing.T) {
	w := NewMedianWindow(5)
	for _, v := range []uint64{10, 30, 20, 50, 40} {
		w.Add(uint256.NewInt(v))
	}
	got := w.Median()
	want := uint256.NewInt(30)
	if got.Cmp(want) != 0 {
		t.Fatalf("median = %s, want %s", got, want)
	}
}

func TestMedianWindowEvictsOldest(t *testing.T) {
	w := NewMedianWindow(3)
	for _, v := range []uint64{100, 100, 100, 1, 1} {
		w.Add(uint256.NewInt(v))
	}
	if w.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", w.Len())
	}
	got := w.Median()
	want := uint256.NewInt(1)
	if got.Cmp(want) != 0 {
		t.Fatalf("median = %s, want %s", got, want)
	}
}
