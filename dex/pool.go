// Package dex implements the constant-product AMM from spec.md §4.H: the
// liquidity pools that feed validatorset's economic-security price oracle
// (spec.md §4.G), modeled after Uniswap-v2-style pallets.
//
// Grounded on original_source/substrate/dex/pallet/src/lib.rs for the
// exact constant-product formulas (swap fee application order,
// MintMinLiquidity burn-to-pool-account, the rolling median window) and
// on the teacher's holiman/uint256 usage (state.go balance arithmetic)
// for overflow-safe 256-bit math here, since swap amounts multiply two
// reserve quantities before dividing.
package dex

import (
	"errors"

	"github.com/holiman/uint256"
)

// LPFeePerMille is the swap fee taken in basis points-of-a-thousand
// (‰), applied to the input amount before the constant-product formula
// runs, per original_source/substrate/dex/pallet's fee model.
const LPFeePerMille = 3 // 0.3%, the Uniswap-v2 convention

// MintMinLiquidity is permanently burned (sent to the pool's own account,
// which nobody can later redeem) on a pool's first mint, preventing the
// "donate 1 wei, mint astronomically cheap LP shares" first-depositor
// attack.
var MintMinLiquidity = uint256.NewInt(1000)

// Pool is one constant-product liquidity pool between a base asset (Serai
// network currency) and a second asset (could be another network currency
// or a Serai-native asset).
type Pool struct {
	ReserveA  *uint256.Int
	ReserveB  *uint256.Int
	LPSupply  *uint256.Int
}

// NewPool returns an empty pool.
func NewPool() *Pool {
	return &Pool{ReserveA: uint256.NewInt(0), ReserveB: uint256.NewInt(0), LPSupply: uint256.NewInt(0)}
}

var (
	ErrZeroAmount       = errors.New("dex: amount must be nonzero")
	ErrInsufficientLiquidity = errors.New("dex: pool has insufficient liquidity")
	ErrBelowMinLiquidity     = errors.New("dex: initial deposit must exceed MintMinLiquidity")
	ErrSlippage              = errors.New("dex: output below minimum acceptable amount")
	ErrInsufficientLPShares  = errors.New("dex: burning more LP shares than held")
)

// AddLiquidity deposits amountA/amountB, minting LP shares proportional
// to the pool's existing reserves (or, on the very first deposit,
// minting sqrt(amountA*amountB) shares with MintMinLiquidity permanently
// burned, per the Uniswap-v2 bootstrap rule).
func (p *Pool) AddLiquidity(amountA, amountB *uint256.Int) (minted *uint256.Int, err error) {
	if amountA.IsZero() || amountB.IsZero() {
		return nil, ErrZeroAmount
	}

	if p.LPSupply.IsZero() {
		product := new(uint256.Int).Mul(amountA, amountB)
		liquidity := sqrt(product)
		if liquidity.Cmp(MintMinLiquidity) <= 0 {
			return nil, ErrBelowMinLiquidity
		}
		minted = new(uint256.Int).Sub(liquidity, MintMinLiquidity)
		p.LPSupply = liquidity
	} else {
		// mint = min(amountA * supply / reserveA, amountB * supply / reserveB)
		fromA := new(uint256.Int).Mul(amountA, p.LPSupply)
		fromA.Div(fromA, p.ReserveA)
		fromB := new(uint256.Int).Mul(amountB, p.LPSupply)
		fromB.Div(fromB, p.ReserveB)
		if fromA.Cmp(fromB) <= 0 {
			minted = fromA
		} else {
			minted = fromB
		}
		p.LPSupply.Add(p.LPSupply, minted)
	}

	p.ReserveA.Add(p.ReserveA, amountA)
	p.ReserveB.Add(p.ReserveB, amountB)
	return minted, nil
}

// RemoveLiquidity burns lpShares, returning the proportional share of
// both reserves.
func (p *Pool) RemoveLiquidity(lpShares *uint256.Int) (amountA, amountB *uint256.Int, err error) {
	if lpShares.IsZero() {
		return nil, nil, ErrZeroAmount
	}
	if lpShares.Cmp(p.LPSupply) > 0 {
		return nil, nil, ErrInsufficientLPShares
	}

	amountA = new(uint256.Int).Mul(p.ReserveA, lpShares)
	amountA.Div(amountA, p.LPSupply)
	amountB = new(uint256.Int).Mul(p.ReserveB, lpShares)
	amountB.Div(amountB, p.LPSupply)

	p.ReserveA.Sub(p.ReserveA, amountA)
	p.ReserveB.Sub(p.ReserveB, amountB)
	p.LPSupply.Sub(p.LPSupply, lpShares)
	return amountA, amountB, nil
}

// SwapExactTokensForTokens sells exactly amountIn of the `aIn` side for
// whatever of the other side the constant-product curve yields, after
// deducting the LP fee from amountIn, failing if the output would be
// below minOut.
func (p *Pool) SwapExactTokensForTokens(amountIn *uint256.Int, aIn bool, minOut *uint256.Int) (amountOut *uint256.Int, err error) {
	if amountIn.IsZero() {
		return nil, ErrZeroAmount
	}
	reserveIn, reserveOut := p.ReserveA, p.ReserveB
	if !aIn {
		reserveIn, reserveOut = p.ReserveB, p.ReserveA
	}
	if reserveIn.IsZero() || reserveOut.IsZero() {
		return nil, ErrInsufficientLiquidity
	}

	amountInWithFee := applyFee(amountIn)
	numerator := new(uint256.Int).Mul(amountInWithFee, reserveOut)
	denominator := new(uint256.Int).Mul(reserveIn, uint256.NewInt(1000))
	denominator.Add(denominator, amountInWithFee)
	amountOut = new(uint256.Int).Div(numerator, denominator)

	if amountOut.Cmp(minOut) < 0 {
		return nil, ErrSlippage
	}

	if aIn {
		p.ReserveA.Add(p.ReserveA, amountIn)
		p.ReserveB.Sub(p.ReserveB, amountOut)
	} else {
		p.ReserveB.Add(p.ReserveB, amountIn)
		p.ReserveA.Sub(p.ReserveA, amountOut)
	}
	return amountOut, nil
}

// QuoteExact returns both readings original_source's
// quote_price_exact_tokens_for_tokens(include_fee) splits into: the
// fee-exclusive quote is the plain spot-price ratio (amountIn *
// reserveOut / reserveIn, the same "quote" helper AddLiquidity's ratio
// math uses, ignoring both the constant-product curve and the LP fee),
// while the fee-inclusive quote is the amount this swap would actually
// execute at on SwapExactTokensForTokens (LP fee applied, full
// constant-product curve). Neither mutates the pool.
func (p *Pool) QuoteExact(amountIn *uint256.Int, aIn bool) (feeExclusive, feeInclusive *uint256.Int, err error) {
	if amountIn.IsZero() {
		return nil, nil, ErrZeroAmount
	}
	reserveIn, reserveOut := p.ReserveA, p.ReserveB
	if !aIn {
		reserveIn, reserveOut = p.ReserveB, p.ReserveA
	}
	if reserveIn.IsZero() || reserveOut.IsZero() {
		return nil, nil, ErrInsufficientLiquidity
	}

	feeExclusive = new(uint256.Int).Mul(amountIn, reserveOut)
	feeExclusive.Div(feeExclusive, reserveIn)

	amountInWithFee := applyFee(amountIn)
	numerator := new(uint256.Int).Mul(amountInWithFee, reserveOut)
	denominator := new(uint256.Int).Mul(reserveIn, uint256.NewInt(1000))
	denominator.Add(denominator, amountInWithFee)
	feeInclusive = new(uint256.Int).Div(numerator, denominator)

	return feeExclusive, feeInclusive, nil
}

// SwapTokensForExactTokens buys exactly amountOut of the non-`aIn` side,
// computing the required input (including fee) and failing if it would
// exceed maxIn.
func (p *Pool) SwapTokensForExactTokens(amountOut *uint256.Int, aIn bool, maxIn *uint256.Int) (amountIn *uint256.Int, err error) {
	if amountOut.IsZero() {
		return nil, ErrZeroAmount
	}
	reserveIn, reserveOut := p.ReserveA, p.ReserveB
	if !aIn {
		reserveIn, reserveOut = p.ReserveB, p.ReserveA
	}
	if amountOut.Cmp(reserveOut) >= 0 {
		return nil, ErrInsufficientLiquidity
	}

	numerator := new(uint256.Int).Mul(reserveIn, amountOut)
	numerator.Mul(numerator, uint256.NewInt(1000))
	denominator := new(uint256.Int).Sub(reserveOut, amountOut)
	denominator.Mul(denominator, uint256.NewInt(1000-LPFeePerMille))
	amountIn = new(uint256.Int).Div(numerator, denominator)
	amountIn.Add(amountIn, uint256.NewInt(1)) // round up in the pool's favor

	if amountIn.Cmp(maxIn) > 0 {
		return nil, ErrSlippage
	}

	if aIn {
		p.ReserveA.Add(p.ReserveA, amountIn)
		p.ReserveB.Sub(p.ReserveB, amountOut)
	} else {
		p.ReserveB.Add(p.ReserveB, amountIn)
		p.ReserveA.Sub(p.ReserveA, amountOut)
	}
	return amountIn, nil
}

// SpotPrice returns the current instantaneous price of A denominated in
// B, scaled by 1e18 for fixed-point precision.
func (p *Pool) SpotPrice() *uint256.Int {
	if p.ReserveA.IsZero() {
		return uint256.NewInt(0)
	}
	scale, _ := uint256.FromDecimal("1000000000000000000")
	price := new(uint256.Int).Mul(p.ReserveB, scale)
	return price.Div(price, p.ReserveA)
}

func applyFee(amountIn *uint256.Int) *uint256.Int {
	withFee := new(uint256.Int).Mul(amountIn, uint256.NewInt(1000-LPFeePerMille))
	return withFee
}

// sqrt computes the integer square root via Newton's method, matching
// the babylonian-method sqrt original_source/substrate/dex/pallet uses
// for its own first-mint liquidity calculation.
func sqrt(n *uint256.Int) *uint256.Int {
	if n.IsZero() {
		return uint256.NewInt(0)
	}
	x := new(uint256.Int).Set(n)
	y := new(uint256.Int).Add(x, uint256.NewInt(1))
	y.Div(y, uint256.NewInt(2))
	for y.Cmp(x) < 0 {
		x.Set(y)
		y.Div(n, x)
		y.Add(y, x)
		y.Div(y, uint256.NewInt(2))
	}
	return x
}
