// Package ledger holds the deposit, fare and rating arithmetic shared by the
// gateway and services. Everything is big.Int because the contract's numeric
// domain is uint256; floating point would diverge from the contract's own
// integer truncation.
package ledger

import "math/big"

// OutstandingDeposit returns how much a party still has to escrow to reach
// the required deposit. Never negative.
func OutstandingDeposit(required, alreadyDeposited *big.Int) *big.Int {
	out := new(big.Int).Sub(required, alreadyDeposited)
	if out.Sign() < 0 {
		return big.NewInt(0)
	}
	return out
}

// TotalToEscrow is the value a rider attaches when creating a journey:
// their deposit plus the agreed fare, clamped at zero.
func TotalToEscrow(deposit, fare *big.Int) *big.Int {
	total := new(big.Int).Add(deposit, fare)
	if total.Sign() < 0 {
		return big.NewInt(0)
	}
	return total
}

// FareDelta is the additional amount a rider must escrow when confirming a
// renegotiated fare. Zero when the new fare is lower or equal.
func FareDelta(newFare, previouslyPaidFare *big.Int) *big.Int {
	delta := new(big.Int).Sub(newFare, previouslyPaidFare)
	if delta.Sign() < 0 {
		return big.NewInt(0)
	}
	return delta
}

// UpdatedRating folds a new rating value into a running average the same way
// the contract does: floor((oldRating*oldCount + newValue) / (oldCount+1)).
// Returns the new rating and the incremented count.
func UpdatedRating(oldRating uint8, oldCount *big.Int, newValue uint8) (uint8, *big.Int) {
	newCount := new(big.Int).Add(oldCount, big.NewInt(1))

	sum := new(big.Int).Mul(big.NewInt(int64(oldRating)), oldCount)
	sum.Add(sum, big.NewInt(int64(newValue)))
	sum.Quo(sum, newCount)

	return uint8(sum.Uint64()), newCount
}
