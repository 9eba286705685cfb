package types

import "fmt"

// Resources is a declared or consumed resource vector for a lease.
// CPU is counted in whole cores, RAM in MB, storage and bandwidth in GB.
type Resources struct {
	CPUCores    int64 `json:"cpu_cores" yaml:"cpu_cores"`
	RAMMB       int64 `json:"ram_mb" yaml:"ram_mb"`
	StorageGB   int64 `json:"storage_gb" yaml:"storage_gb"`
	BandwidthGB int64 `json:"bandwidth_gb" yaml:"bandwidth_gb"`
}

// Dimension names a single axis of a resource vector.
type Dimension string

const (
	DimCPU       Dimension = "cpu_cores"
	DimRAM       Dimension = "ram_mb"
	DimStorage   Dimension = "storage_gb"
	DimBandwidth Dimension = "bandwidth_gb"
)

// Dimensions lists every resource axis in a fixed order.
var Dimensions = []Dimension{DimCPU, DimRAM, DimStorage, DimBandwidth}

// Get returns the value of a single dimension.
func (r Resources) Get(d Dimension) int64 {
	switch d {
	case DimCPU:
		return r.CPUCores
	case DimRAM:
		return r.RAMMB
	case DimStorage:
		return r.StorageGB
	case DimBandwidth:
		return r.BandwidthGB
	}
	return 0
}

// Add returns the element-wise sum of two resource vectors.
func (r Resources) Add(o Resources) Resources {
	return Resources{
		CPUCores:    r.CPUCores + o.CPUCores,
		RAMMB:       r.RAMMB + o.RAMMB,
		StorageGB:   r.StorageGB + o.StorageGB,
		BandwidthGB: r.BandwidthGB + o.BandwidthGB,
	}
}

// Sub returns the element-wise difference r - o. The result may contain
// negative components; callers reserving a resize delta rely on that.
func (r Resources) Sub(o Resources) Resources {
	return Resources{
		CPUCores:    r.CPUCores - o.CPUCores,
		RAMMB:       r.RAMMB - o.RAMMB,
		StorageGB:   r.StorageGB - o.StorageGB,
		BandwidthGB: r.BandwidthGB - o.BandwidthGB,
	}
}

// ClampNonNegative floors every component at zero. The second return value
// reports whether any component was clamped.
func (r Resources) ClampNonNegative() (Resources, bool) {
	clamped := false
	for _, d := range Dimensions {
		if r.Get(d) < 0 {
			clamped = true
		}
	}
	if !clamped {
		return r, false
	}
	return Resources{
		CPUCores:    max(r.CPUCores, 0),
		RAMMB:       max(r.RAMMB, 0),
		StorageGB:   max(r.StorageGB, 0),
		BandwidthGB: max(r.BandwidthGB, 0),
	}, true
}

// IsZero reports whether every component is zero.
func (r Resources) IsZero() bool {
	return r == Resources{}
}

func (r Resources) String() string {
	return fmt.Sprintf("cpu=%d ram=%dMB storage=%dGB bandwidth=%dGB",
		r.CPUCores, r.RAMMB, r.StorageGB, r.BandwidthGB)
}
