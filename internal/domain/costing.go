package domain

import "github.com/shopspring/decimal"

// WeightedAverageCost returns the new average unit cost after receiving qty
// units at unitCost on top of stock units carried at avgCost:
//
//	(avgCost*stock + unitCost*qty) / (stock + qty)
//
// A product with zero prior stock takes the incoming cost as-is. Only stock
// receipts move the average; sales and adjustments leave it untouched.
func WeightedAverageCost(stock int, avgCost decimal.Decimal, qty int, unitCost decimal.Decimal) decimal.Decimal {
	newStock := stock + qty
	if newStock <= 0 {
		return decimal.Zero
	}
	if stock <= 0 {
		return unitCost
	}
	carried := avgCost.Mul(decimal.NewFromInt(int64(stock)))
	incoming := unitCost.Mul(decimal.NewFromInt(int64(qty)))
	return carried.Add(incoming).Div(decimal.NewFromInt(int64(newStock)))
}
