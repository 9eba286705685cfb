// Package quota defines per-tenant resource ceilings and the read-only
// source the engine consults on every admission decision.
package quota

import (
	"context"
	"fmt"
	"strings"

	"github.com/xraph/lease/types"
)

// Quota is the ceiling on total resources a tenant may have committed
// across all leases. A MaxLeases of zero means the lease count is not
// limited.
type Quota struct {
	Resources types.Resources `json:"resources" yaml:"resources"`
	MaxLeases int64           `json:"max_leases" yaml:"max_leases"`
}

// Source is the read-only lookup for a tenant's current quota.
// Quota changes (plan upgrades) happen outside the lease engine.
type Source interface {
	Quota(ctx context.Context, tenantID string) (Quota, error)
}

// StaticSource serves quotas from a fixed in-memory table with an
// optional default for unlisted tenants.
type StaticSource struct {
	Tenants map[string]Quota
	Default Quota
}

// Static builds a Source from a tenant table and a fallback quota.
func Static(tenants map[string]Quota, fallback Quota) *StaticSource {
	return &StaticSource{Tenants: tenants, Default: fallback}
}

func (s *StaticSource) Quota(_ context.Context, tenantID string) (Quota, error) {
	if q, ok := s.Tenants[tenantID]; ok {
		return q, nil
	}
	return s.Default, nil
}

// DimLeaseCount is the pseudo-dimension for the per-tenant lease count
// ceiling; it sits alongside the types.Resources axes in Breach reports.
const DimLeaseCount types.Dimension = "lease_count"

// Breach describes one quota dimension an admission request would exceed.
type Breach struct {
	Dimension types.Dimension `json:"dimension"`
	Requested int64           `json:"requested"`
	InUse     int64           `json:"in_use"`
	Limit     int64           `json:"limit"`
}

func (b Breach) String() string {
	return fmt.Sprintf("%s: requested %d with %d in use exceeds limit %d",
		b.Dimension, b.Requested, b.InUse, b.Limit)
}

// ExceededError is the admission rejection. It carries every breached
// dimension so callers can report exactly which resource did not fit.
// Rejection has no side effects; nothing is reserved partially.
type ExceededError struct {
	TenantID string
	Breaches []Breach
}

func (e *ExceededError) Error() string {
	parts := make([]string, len(e.Breaches))
	for i, b := range e.Breaches {
		parts[i] = b.String()
	}
	return "quota: tenant " + e.TenantID + " exceeded: " + strings.Join(parts, "; ")
}
