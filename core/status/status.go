// Copyright 2016 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package status

import (
	"time"

	"github.com/juju/errors"

	coreerrors "github.com/canonical/operator-sub000/core/errors"
)

// Status is the workload status of a unit or application, as reported by
// the charm.
type Status string

// String returns a string representation of the Status.
func (s Status) String() string {
	return string(s)
}

// StatusInfo holds a Status and associated information.
type StatusInfo struct {
	Status  Status     `yaml:"status"`
	Message string     `yaml:"message,omitempty"`
	Since   *time.Time `yaml:"since,omitempty"`
}

const (
	// Unknown is set when:
	// A unit-agent has finished calling install, config-changed, and start,
	// but the charm has not called status-set yet.
	Unknown Status = "unknown"

	// Maintenance is set when:
	// The unit is not yet providing services, but is actively doing stuff
	// in preparation for providing those services.
	// This is a "spinning" state, not an error state.
	// It reflects activity on the unit itself, not on peers or related units.
	Maintenance Status = "maintenance"

	// Waiting is set when:
	// The unit is unable to progress to an active state because an application to
	// which it is related is not running.
	Waiting Status = "waiting"

	// Blocked is set when:
	// The unit needs manual intervention to get back to the Running state.
	Blocked Status = "blocked"

	// Active is set when:
	// The unit believes it is correctly offering all the services it has
	// been asked to offer.
	Active Status = "active"

	// Error means the entity requires human intervention
	// in order to operate correctly. Only the controller sets it.
	Error Status = "error"
)

// KnownWorkloadStatus returns true if status has a known value for a workload.
func (s Status) KnownWorkloadStatus() bool {
	if ValidWorkloadStatus(s) {
		return true
	}
	return s == Error || s == Unknown
}

// ValidWorkloadStatus returns true if status has a valid value (that is to say,
// a value that it's OK for a charm to set) for units or applications.
func ValidWorkloadStatus(status Status) bool {
	switch status {
	case
		Blocked,
		Maintenance,
		Waiting,
		Active:
		return true
	default:
		return false
	}
}

// Ordering ranks workload statuses from the highest priority to the lowest.
// When a charm reports several statuses while collecting status, the one
// ranked first wins.
type Ordering []Status

// DefaultOrdering is the ranking used unless a context is configured with
// another one.
var DefaultOrdering = Ordering{Error, Blocked, Maintenance, Waiting, Active, Unknown}

// Validate checks that the ordering ranks every known workload status
// exactly once.
func (o Ordering) Validate() error {
	seen := make(map[Status]bool)
	for _, s := range o {
		if !s.KnownWorkloadStatus() {
			return errors.NotValidf("status %q in ordering", s)
		}
		if seen[s] {
			return errors.NotValidf("duplicate status %q in ordering", s)
		}
		seen[s] = true
	}
	for _, s := range DefaultOrdering {
		if !seen[s] {
			return errors.NotValidf("ordering missing status %q", s)
		}
	}
	return nil
}

// Rank returns the position of s in the ordering; lower is higher priority.
func (o Ordering) Rank(s Status) (int, error) {
	for i, candidate := range o {
		if candidate == s {
			return i, nil
		}
	}
	return -1, coreerrors.Errorf(coreerrors.NotValid, "status %q not ranked", s)
}

// Highest returns the highest priority status among statuses. When two
// statuses share a rank the first one added wins.
func (o Ordering) Highest(statuses []StatusInfo) (StatusInfo, error) {
	if len(statuses) == 0 {
		return StatusInfo{}, errors.NotFoundf("statuses")
	}
	best, bestRank := statuses[0], -1
	for _, s := range statuses {
		rank, err := o.Rank(s.Status)
		if err != nil {
			return StatusInfo{}, errors.Trace(err)
		}
		if bestRank == -1 || rank < bestRank {
			best, bestRank = s, rank
		}
	}
	return best, nil
}
