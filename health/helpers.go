package health

import (
	"fmt"
	"time"
)

// NewHealthy creates a new healthy status
func NewHealthy(component, message string) Status {
	return newStatus(component, StateHealthy, message)
}

// NewUnhealthy creates a new unhealthy status
func NewUnhealthy(component, message string) Status {
	return newStatus(component, StateUnhealthy, message)
}

// NewDegraded creates a new degraded status
func NewDegraded(component, message string) Status {
	return newStatus(component, StateDegraded, message)
}

func newStatus(component, state, message string) Status {
	return Status{
		Component: component,
		Healthy:   state == StateHealthy,
		Status:    state,
		Message:   message,
		Timestamp: time.Now(),
	}
}

// FromGroupResult classifies one group aggregation: every endpoint loaded is
// healthy, some failed is degraded, all failed (or aggErr) is unhealthy.
func FromGroupResult(component string, attempted, succeeded int, aggErr error) Status {
	var s Status
	switch {
	case aggErr != nil:
		s = FromError(component, aggErr, "")
	case attempted > 0 && succeeded == 0:
		s = NewUnhealthy(component, fmt.Sprintf("All %d endpoints failed", attempted))
	case succeeded < attempted:
		s = NewDegraded(component, fmt.Sprintf("%d of %d endpoints failed", attempted-succeeded, attempted))
	default:
		s = NewHealthy(component, fmt.Sprintf("%d endpoints loaded", attempted))
	}
	return s.WithMetrics(&Metrics{
		LastRefresh:     s.Timestamp,
		EndpointsTotal:  attempted,
		EndpointsFailed: attempted - succeeded,
	})
}

// Aggregate creates a status by aggregating sub-statuses: any unhealthy
// makes the aggregate unhealthy, otherwise any degraded makes it degraded.
func Aggregate(component string, subStatuses []Status) Status {
	if len(subStatuses) == 0 {
		return NewHealthy(component, "No sub-components to aggregate")
	}

	hasUnhealthy := false
	hasDegraded := false
	for _, sub := range subStatuses {
		if sub.IsUnhealthy() {
			hasUnhealthy = true
		} else if sub.IsDegraded() {
			hasDegraded = true
		}
	}

	var status Status
	switch {
	case hasUnhealthy:
		status = NewUnhealthy(component, "One or more sub-components are unhealthy")
	case hasDegraded:
		status = NewDegraded(component, "One or more sub-components are degraded")
	default:
		status = NewHealthy(component, "All sub-components are healthy")
	}

	status.SubStatuses = make([]Status, len(subStatuses))
	copy(status.SubStatuses, subStatuses)
	return status
}
