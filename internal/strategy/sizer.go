package strategy

import "math"

// DefaultContractMultiplier is the standard US equity option multiplier.
const DefaultContractMultiplier = 100

// ContractsForBudget returns the whole number of contracts a fixed notional
// budget buys at the given per-share premium. Zero is a valid result and
// means "do not trade". Non-positive, NaN or infinite prices size to zero;
// the function is total and never fails.
func ContractsForBudget(price, budgetUSD float64, multiplier int) int {
	if math.IsNaN(price) || math.IsInf(price, 0) || price <= 0 {
		return 0
	}
	if budgetUSD <= 0 || multiplier <= 0 {
		return 0
	}
	return int(budgetUSD / (price * float64(multiplier)))
}
