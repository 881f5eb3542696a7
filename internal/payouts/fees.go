package payouts

import "math"

// PayoutMethod is the disbursement channel for a payout
type PayoutMethod string

const (
	MethodBankTransfer PayoutMethod = "bank_transfer"
	MethodPayPal       PayoutMethod = "paypal"
	MethodCard         PayoutMethod = "card"
	MethodWire         PayoutMethod = "wire"
	MethodCheck        PayoutMethod = "check"
)

// feeRule is one entry of the fee schedule. Percentage rules scale with
// the payout total, flat rules charge a fixed amount in payout currency.
type feeRule struct {
	percentage float64
	flat       float64
}

var feeSchedule = map[PayoutMethod]feeRule{
	MethodBankTransfer: {percentage: 1.0},
	MethodPayPal:       {percentage: 2.5},
	MethodCard:         {percentage: 2.0},
	MethodWire:         {flat: 15},
	MethodCheck:        {flat: 5},
}

// ValidMethod reports whether the method is part of the fee schedule
func ValidMethod(method PayoutMethod) bool {
	_, ok := feeSchedule[method]
	return ok
}

// ComputeFee returns the disbursement fee for a payout total. The fee is
// capped at the total so net amounts never go negative on small payouts.
func ComputeFee(method PayoutMethod, totalAmount float64) float64 {
	rule, ok := feeSchedule[method]
	if !ok {
		return 0
	}
	fee := rule.flat
	if rule.percentage > 0 {
		fee = math.Round(totalAmount*rule.percentage) / 100
	}
	if fee > totalAmount {
		fee = totalAmount
	}
	return fee
}
