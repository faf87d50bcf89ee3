package models

// Tier represents the organization subscription tier
type Tier string

const (
	TierFree     Tier = "free"
	TierStarter  Tier = "starter"
	TierPro      Tier = "pro"
	TierBusiness Tier = "business"
)

// TierOrder is the fixed upgrade path, cheapest first.
var TierOrder = []Tier{TierFree, TierStarter, TierPro, TierBusiness}

// Valid reports whether t is one of the known tiers.
func (t Tier) Valid() bool {
	for _, known := range TierOrder {
		if t == known {
			return true
		}
	}
	return false
}
