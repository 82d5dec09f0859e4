package simulate

import "errors"

var (
	// ErrInvariant is returned when a run result breaks an allocation invariant.
	ErrInvariant = errors.New("invariant violated")

	// ErrUnhealthy is returned when the service health check fails.
	ErrUnhealthy = errors.New("service unhealthy")
)
