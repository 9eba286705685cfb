// Package fake provides an in-memory container driver for tests and for
// running the daemon without a real hypervisor. Failures and samples are
// scriptable per lease or per container.
package fake

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/xraph/lease/driver"
	"github.com/xraph/lease/vm"
)

// ErrNoContainer is returned for operations on unknown container IDs.
var ErrNoContainer = errors.New("fake: no such container")

// Driver is a scriptable in-memory container runtime.
type Driver struct {
	mu sync.Mutex

	// Latency is applied to every call before it resolves, interruptible
	// by context cancellation.
	Latency time.Duration

	containers map[string]string // container ID -> lease ID

	startErrs   map[string]error // lease ID -> injected start failure
	stopErrs    map[string]error // container ID -> injected stop failure
	restartErrs map[string]error
	sampleErrs  map[string]error
	samples     map[string]driver.UtilizationSample

	// DefaultSample is returned when no per-container sample is scripted.
	DefaultSample driver.UtilizationSample
}

var _ driver.Driver = (*Driver)(nil)

// New returns an empty fake driver with a modest default sample.
func New() *Driver {
	return &Driver{
		containers:  make(map[string]string),
		startErrs:   make(map[string]error),
		stopErrs:    make(map[string]error),
		restartErrs: make(map[string]error),
		sampleErrs:  make(map[string]error),
		samples:     make(map[string]driver.UtilizationSample),
		DefaultSample: driver.UtilizationSample{
			CPUPercent:      25,
			RAMUsedMB:       256,
			StorageUsedGB:   5,
			BandwidthUsedMB: 128,
		},
	}
}

// FailStart scripts the next start of the lease to fail with err.
func (d *Driver) FailStart(leaseID string, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.startErrs[leaseID] = err
}

// FailStop scripts stop calls for the container to fail with err.
func (d *Driver) FailStop(containerID string, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopErrs[containerID] = err
}

// FailRestart scripts restart calls for the container to fail with err.
func (d *Driver) FailRestart(containerID string, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.restartErrs[containerID] = err
}

// FailSample scripts sample calls for the container to fail with err.
func (d *Driver) FailSample(containerID string, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sampleErrs[containerID] = err
}

// SetSample scripts the utilization returned for a container.
func (d *Driver) SetSample(containerID string, s driver.UtilizationSample) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.samples[containerID] = s
}

// Running reports whether the container is currently tracked as running.
func (d *Driver) Running(containerID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.containers[containerID]
	return ok
}

func (d *Driver) Start(ctx context.Context, l *vm.Lease) (driver.StartResult, error) {
	if err := d.wait(ctx); err != nil {
		return driver.StartResult{}, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if err, ok := d.startErrs[l.ID.String()]; ok {
		delete(d.startErrs, l.ID.String())
		return driver.StartResult{}, err
	}

	containerID := l.ContainerID
	if containerID == "" {
		containerID = uuid.NewString()
	}
	d.containers[containerID] = l.ID.String()

	return driver.StartResult{
		ContainerID: containerID,
		IPAddress:   fakeIP(containerID),
	}, nil
}

func (d *Driver) Stop(ctx context.Context, containerID string) error {
	if err := d.wait(ctx); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if err, ok := d.stopErrs[containerID]; ok {
		return err
	}
	if _, ok := d.containers[containerID]; !ok {
		return ErrNoContainer
	}
	delete(d.containers, containerID)
	return nil
}

func (d *Driver) Restart(ctx context.Context, containerID string) error {
	if err := d.wait(ctx); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if err, ok := d.restartErrs[containerID]; ok {
		return err
	}
	if _, ok := d.containers[containerID]; !ok {
		return ErrNoContainer
	}
	return nil
}

func (d *Driver) Sample(ctx context.Context, containerID string) (driver.UtilizationSample, error) {
	if err := d.wait(ctx); err != nil {
		return driver.UtilizationSample{}, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if err, ok := d.sampleErrs[containerID]; ok {
		return driver.UtilizationSample{}, err
	}
	if _, ok := d.containers[containerID]; !ok {
		return driver.UtilizationSample{}, ErrNoContainer
	}
	if s, ok := d.samples[containerID]; ok {
		return s, nil
	}
	return d.DefaultSample, nil
}

func (d *Driver) wait(ctx context.Context) error {
	if d.Latency <= 0 {
		return ctx.Err()
	}
	select {
	case <-time.After(d.Latency):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// fakeIP derives a stable 10.0.0.0/8 address from the container ID.
func fakeIP(containerID string) string {
	var sum uint32
	for _, b := range []byte(containerID) {
		sum = sum*31 + uint32(b)
	}
	return fmt.Sprintf("10.%d.%d.%d", byte(sum>>16), byte(sum>>8), byte(sum))
}
