package sweep

import "math/big"

// Plan is the result of PlanSweep. When Feasible is false Amount is zero.
type Plan struct {
	Feasible bool
	Cost     *big.Int // fee price * gas units
	Amount   *big.Int // balance - cost
}

// PlanSweep decides whether a wallet holding balance can pay for a transfer
// costing feePrice*gasUnits and, if so, how much to send: everything left
// after the fee. A balance equal to the cost is infeasible since the
// transfer would move nothing. Nil or negative inputs are infeasible.
func PlanSweep(balance, feePrice *big.Int, gasUnits uint64) Plan {
	cost := new(big.Int)
	if feePrice != nil && feePrice.Sign() >= 0 {
		cost.Mul(feePrice, new(big.Int).SetUint64(gasUnits))
	}

	if balance == nil || feePrice == nil || balance.Sign() < 0 || feePrice.Sign() < 0 || balance.Cmp(cost) <= 0 {
		return Plan{Cost: cost, Amount: new(big.Int)}
	}

	return Plan{
		Feasible: true,
		Cost:     cost,
		Amount:   new(big.Int).Sub(balance, cost),
	}
}
