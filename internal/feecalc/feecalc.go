// Package feecalc holds the exchange fee curve and the book-walk
// simulators as pure functions (spec §6, §4.5.3, §9 "fee curve is
// continuous — keep it as a pure function"). They are called identically
// at sizing, sell-placement verification, and resolution time.
package feecalc

import (
	"math"
	"sort"
)

// minFeePrecision is the smallest fee the exchange settles; anything
// smaller rounds to zero (spec §6).
const minFeePrecision = 0.0001

// clampProbability clamps p into [0.01, 0.99] as the fee curve requires.
func clampProbability(p float64) float64 {
	if p < 0.01 {
		return 0.01
	}
	if p > 0.99 {
		return 0.99
	}
	return p
}

// Fee computes fee = trade_value * 0.25 * (p*(1-p))^2, clamping p into
// [0.01, 0.99] and rounding sub-precision fees to zero.
func Fee(p, tradeValue float64) float64 {
	cp := clampProbability(p)
	variance := cp * (1 - cp)
	fee := tradeValue * 0.25 * variance * variance
	if fee < minFeePrecision {
		return 0
	}
	return fee
}

// SharesForNetFill converts a target net share count N into the gross
// order size N' that, after fees are deducted, nets N shares at price p:
// N' = N / (1 - fee_mult(p)), rounded up to whole shares (spec §4.5.1).
func SharesForNetFill(netShares, price float64) float64 {
	cp := clampProbability(price)
	variance := cp * (1 - cp)
	feeMult := 0.25 * variance * variance
	if feeMult >= 1 {
		feeMult = 0.999999
	}
	gross := netShares / (1 - feeMult)
	return math.Ceil(gross)
}

// BookLevel is one (price, size) pair in an orderbook.
type BookLevel struct {
	Price float64
	Size  float64
}

// WalkUpFromBidResult is the outcome of simulating a market order walking
// up the ask side of a book.
type WalkUpFromBidResult struct {
	AvgFillPrice  float64
	DollarsSpent  float64
	SharesFilled  float64
	FullyFilled   bool
}

// WalkUpFromBid simulates spending dollarAmount by consuming asks with
// price >= bidPrice, cheapest first, until dollarAmount is exhausted or
// the book runs out. Eligible asks are sorted ascending regardless of
// input order (spec §4.5.3).
func WalkUpFromBid(asks []BookLevel, bidPrice, dollarAmount float64) WalkUpFromBidResult {
	eligible := make([]BookLevel, 0, len(asks))
	for _, a := range asks {
		if a.Price >= bidPrice {
			eligible = append(eligible, a)
		}
	}
	sortAscending(eligible)

	var spent, shares float64
	remaining := dollarAmount
	for _, lvl := range eligible {
		if remaining <= 0 {
			break
		}
		levelValue := lvl.Price * lvl.Size
		if levelValue <= remaining {
			spent += levelValue
			shares += lvl.Size
			remaining -= levelValue
			continue
		}
		partialShares := remaining / lvl.Price
		spent += remaining
		shares += partialShares
		remaining = 0
	}

	result := WalkUpFromBidResult{DollarsSpent: spent, SharesFilled: shares}
	if shares > 0 {
		result.AvgFillPrice = spent / shares
	}
	result.FullyFilled = remaining <= 1e-9
	return result
}

// WalkDownFromAskResult is the outcome of simulating a sell walking down
// the bid side of a book.
type WalkDownFromAskResult struct {
	AvgFillPrice    float64
	DollarsReceived float64
	SharesFilled    float64
	FullyFilled     bool
}

// WalkDownFromAsk simulates selling shareAmount shares: first consuming
// bids >= askPrice, then (if shares remain) consuming bids below askPrice,
// both passes sorted descending by price (spec §4.5.3).
func WalkDownFromAsk(bids []BookLevel, askPrice, shareAmount float64) WalkDownFromAskResult {
	sorted := make([]BookLevel, len(bids))
	copy(sorted, bids)
	sortDescending(sorted)

	var received, filled float64
	remaining := shareAmount

	consume := func(pred func(BookLevel) bool) {
		for i := range sorted {
			if remaining <= 0 {
				return
			}
			lvl := sorted[i]
			if lvl.Size <= 0 || !pred(lvl) {
				continue
			}
			take := lvl.Size
			if take > remaining {
				take = remaining
			}
			received += take * lvl.Price
			filled += take
			remaining -= take
			sorted[i].Size -= take
		}
	}

	consume(func(l BookLevel) bool { return l.Price >= askPrice })
	consume(func(l BookLevel) bool { return l.Price < askPrice })

	result := WalkDownFromAskResult{DollarsReceived: received, SharesFilled: filled}
	if filled > 0 {
		result.AvgFillPrice = received / filled
	}
	result.FullyFilled = remaining <= 1e-9
	return result
}

func sortAscending(levels []BookLevel) {
	sort.Slice(levels, func(i, j int) bool { return levels[i].Price < levels[j].Price })
}

func sortDescending(levels []BookLevel) {
	sort.Slice(levels, func(i, j int) bool { return levels[i].Price > levels[j].Price })
}
