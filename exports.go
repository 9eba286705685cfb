package lease

import "github.com/xraph/lease/types"

// Re-export common types for convenience so users don't have to import
// the types package.

// Cost is re-exported from the types package.
type Cost = types.Cost

// Resources is re-exported from the types package.
type Resources = types.Resources

// Entity is re-exported from the types package.
type Entity = types.Entity

// Re-export constructors
var (
	CostOf    = types.CostOf
	ZeroCost  = types.ZeroCost
	SumCosts  = types.SumCosts
	NewEntity = types.NewEntity
)
