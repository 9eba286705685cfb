package quota

import (
	"context"
	"strings"
	"testing"

	"github.com/xraph/lease/types"
)

func TestStaticSource(t *testing.T) {
	src := Static(map[string]Quota{
		"acme": {Resources: types.Resources{CPUCores: 8}, MaxLeases: 4},
	}, Quota{MaxLeases: 1})

	q, err := src.Quota(context.Background(), "acme")
	if err != nil {
		t.Fatalf("quota: %v", err)
	}
	if q.Resources.CPUCores != 8 || q.MaxLeases != 4 {
		t.Errorf("acme quota = %+v", q)
	}

	fallback, err := src.Quota(context.Background(), "unknown")
	if err != nil {
		t.Fatalf("quota: %v", err)
	}
	if fallback.MaxLeases != 1 {
		t.Errorf("fallback quota = %+v", fallback)
	}
}

func TestExceededErrorMessage(t *testing.T) {
	err := &ExceededError{
		TenantID: "acme",
		Breaches: []Breach{
			{Dimension: types.DimCPU, Requested: 2, InUse: 3, Limit: 4},
			{Dimension: DimLeaseCount, Requested: 1, InUse: 5, Limit: 5},
		},
	}

	msg := err.Error()
	for _, want := range []string{"acme", "cpu_cores", "lease_count", "limit 4"} {
		if !strings.Contains(msg, want) {
			t.Errorf("message %q missing %q", msg, want)
		}
	}
}
