// Package driver declares the container runtime capability the lease
// engine drives. The engine never talks to a hypervisor directly; every
// start, stop, restart, and utilization sample goes through this
// interface, and every call is assumed network-fallible. Callers bound
// each call with a context timeout.
package driver

import (
	"context"

	"github.com/xraph/lease/vm"
)

// StartResult is the runtime handle returned by a successful start.
type StartResult struct {
	// ContainerID identifies the running container for later stop,
	// restart, and sample calls.
	ContainerID string
	// IPAddress is the network address assigned to the container. The
	// lifecycle manager only stores it if the lease has none yet.
	IPAddress string
}

// UtilizationSample is a point-in-time reading of actual resource
// consumption for a running lease.
type UtilizationSample struct {
	CPUPercent      float64 `json:"cpu_percent"`
	RAMUsedMB       float64 `json:"ram_used_mb"`
	StorageUsedGB   float64 `json:"storage_used_gb"`
	BandwidthUsedMB float64 `json:"bandwidth_used_mb"`
}

// Driver is the external container runtime.
type Driver interface {
	// Start provisions and boots a container for the lease.
	Start(ctx context.Context, l *vm.Lease) (StartResult, error)
	// Stop halts the container identified by containerID.
	Stop(ctx context.Context, containerID string) error
	// Restart restarts the container in place.
	Restart(ctx context.Context, containerID string) error
	// Sample reads current utilization for a running container.
	Sample(ctx context.Context, containerID string) (UtilizationSample, error)
}
