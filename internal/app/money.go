/**
 * @description
 * Fee-inclusive charge amount calculation. The gateway takes a percentage
 * plus a fixed fee out of every card charge, so members are charged a gross
 * amount sized so the pot still receives the full net share.
 */
package app

import "math"

const (
	// GatewayFeePercent is the proportional card processing fee.
	GatewayFeePercent = 0.0335
	// GatewayFixedFee is the flat per-charge fee in pounds.
	GatewayFixedFee = 0.20
)

// GrossChargeAmount returns the amount to charge a member so that the pot
// nets netShare after gateway fees: (netShare + fixed) / (1 - percent),
// rounded up to the next cent. Rounding up rather than half-up keeps the
// netting guarantee: the collected amount is never short of the share.
func GrossChargeAmount(netShare float64) float64 {
	gross := (netShare + GatewayFixedFee) / (1 - GatewayFeePercent)
	return ceilToCents(gross)
}

func ceilToCents(v float64) float64 {
	// The epsilon absorbs float representation error for values that are
	// already an exact number of cents.
	return math.Ceil(v*100-1e-9) / 100
}

// MinorUnits converts a pound amount to pence for gateway calls.
func MinorUnits(amount float64) int64 {
	return int64(math.Round(amount * 100))
}
