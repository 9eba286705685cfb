// Package vm defines the leased virtual machine entity and its lifecycle
// state machine.
package vm

import (
	"time"

	"github.com/xraph/lease/id"
	"github.com/xraph/lease/types"
)

// Status is the lifecycle state of a lease.
type Status string

const (
	// StatusStopped is the initial, stable state of every lease.
	StatusStopped Status = "stopped"
	// StatusStarting is the in-flight state between a start request and
	// the container driver's response.
	StatusStarting Status = "starting"
	// StatusRunning means the container is up and the lease is metered.
	StatusRunning Status = "running"
	// StatusStopping is the in-flight state of a stop request.
	StatusStopping Status = "stopping"
	// StatusRestarting is the in-flight state of a restart request.
	StatusRestarting Status = "restarting"
	// StatusError is a stable state entered when a driver call fails.
	// The only operation permitted from it is deletion.
	StatusError Status = "error"
	// StatusSuspended is an administrative hold. Resuming lands in
	// StatusStopped.
	StatusSuspended Status = "suspended"
)

// Statuses lists every lifecycle state.
var Statuses = []Status{
	StatusStopped, StatusStarting, StatusRunning,
	StatusStopping, StatusRestarting, StatusError, StatusSuspended,
}

// InFlight reports whether the status is transitional, pending resolution
// by the container driver.
func (s Status) InFlight() bool {
	return s == StatusStarting || s == StatusStopping || s == StatusRestarting
}

// Valid reports whether s is one of the defined lifecycle states.
func (s Status) Valid() bool {
	for _, known := range Statuses {
		if s == known {
			return true
		}
	}
	return false
}

// Event is a lifecycle operation requested against a lease.
type Event string

const (
	EventStart   Event = "start"
	EventStop    Event = "stop"
	EventRestart Event = "restart"
	EventSuspend Event = "suspend"
	EventResume  Event = "resume"
	EventDelete  Event = "delete"
	EventResize  Event = "resize"
)

// CanApply reports whether ev is permitted from status s. Concurrent
// operations on the same lease serialize on the lifecycle manager's lock,
// so an in-flight state always rejects further events.
func CanApply(s Status, ev Event) bool {
	if s.InFlight() {
		return false
	}
	switch ev {
	case EventStart:
		return s == StatusStopped
	case EventStop, EventRestart:
		return s == StatusRunning
	case EventSuspend:
		return s != StatusSuspended
	case EventResume:
		return s == StatusSuspended
	case EventDelete:
		return s == StatusStopped || s == StatusError
	case EventResize:
		return true
	}
	return false
}

// InFlightFor returns the transitional state a permitted event moves
// through, or the empty status for synchronous events.
func InFlightFor(ev Event) Status {
	switch ev {
	case EventStart:
		return StatusStarting
	case EventStop:
		return StatusStopping
	case EventRestart:
		return StatusRestarting
	}
	return ""
}

// Lease is a tenant's leased virtual machine record and its declared
// resource allocation. The lifecycle manager is the only writer of Status.
type Lease struct {
	types.Entity
	ID        id.LeaseID      `json:"id"`
	TenantID  string          `json:"tenant_id"`
	Name      string          `json:"name"`
	Resources types.Resources `json:"resources"`
	Status    Status          `json:"status"`

	// HourlyRate is derived from the declared resources at create and
	// resize time; usage costing always uses the stored rate, so tariff
	// changes never reprice historical records.
	HourlyRate types.Cost `json:"hourly_rate"`

	ContainerID string `json:"container_id,omitempty"`
	IPAddress   string `json:"ip_address,omitempty"`

	StartedAt *time.Time `json:"started_at,omitempty"`
	StoppedAt *time.Time `json:"stopped_at,omitempty"`

	// LastError records the reason for the most recent transition into
	// StatusError.
	LastError string `json:"last_error,omitempty"`

	Metadata map[string]string `json:"metadata,omitempty"`
}

// Clone returns a deep copy of the lease.
func (l *Lease) Clone() *Lease {
	c := *l
	if l.StartedAt != nil {
		t := *l.StartedAt
		c.StartedAt = &t
	}
	if l.StoppedAt != nil {
		t := *l.StoppedAt
		c.StoppedAt = &t
	}
	if l.Metadata != nil {
		c.Metadata = make(map[string]string, len(l.Metadata))
		for k, v := range l.Metadata {
			c.Metadata[k] = v
		}
	}
	return &c
}

// TransitionError reports an operation that is not permitted from the
// lease's current state.
type TransitionError struct {
	LeaseID id.LeaseID
	Current Status
	Event   Event
}

func (e *TransitionError) Error() string {
	return "vm: cannot " + string(e.Event) + " lease " + e.LeaseID.String() +
		" in state " + string(e.Current)
}
