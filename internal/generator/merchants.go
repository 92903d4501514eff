package generator

import (
	"cmp"
	"slices"
)

// Merchant pairs a merchant name with its prior fraud weight.
type Merchant struct {
	Name   string
	Weight float64
}

// MerchantTable is an ordered list of merchants. Order matters only for
// breaking ties between equal weights.
type MerchantTable []Merchant

// DefaultMerchants returns the production merchant weight table.
func DefaultMerchants() MerchantTable {
	return MerchantTable{
		{Name: "Amazon", Weight: 0.2},
		{Name: "Walmart", Weight: 0.15},
		{Name: "Target", Weight: 0.2},
		{Name: "Starbucks", Weight: 0.1},
		{Name: "McDonald's", Weight: 0.1},
		{Name: "Best Buy", Weight: 0.3},
		{Name: "Apple Store", Weight: 0.25},
		{Name: "Gas Station", Weight: 0.25},
		{Name: "Grocery Store", Weight: 0.3},
		{Name: "Restaurant", Weight: 0.3},
		{Name: "Hotel", Weight: 0.5},
		{Name: "Airline", Weight: 0.7},
		{Name: "Online Service", Weight: 0.55},
	}
}

// Weight returns the weight of the named merchant.
func (t MerchantTable) Weight(name string) (float64, bool) {
	for _, m := range t {
		if m.Name == name {
			return m.Weight, true
		}
	}
	return 0, false
}

// Highest returns the n merchants with the largest weights.
func (t MerchantTable) Highest(n int) MerchantTable {
	sorted := slices.Clone(t)
	slices.SortStableFunc(sorted, func(a, b Merchant) int {
		return cmp.Compare(b.Weight, a.Weight)
	})
	return sorted[:min(n, len(sorted))]
}

// Lowest returns the n merchants with the smallest weights.
func (t MerchantTable) Lowest(n int) MerchantTable {
	sorted := slices.Clone(t)
	slices.SortStableFunc(sorted, func(a, b Merchant) int {
		return cmp.Compare(a.Weight, b.Weight)
	})
	return sorted[:min(n, len(sorted))]
}
