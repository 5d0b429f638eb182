package provider

import "context"

// Provider is a named backend.
type Provider interface {
	Name() string
	// IsAvailable is a cheap check that the backend can take a request now.
	IsAvailable(ctx context.Context) bool
}

// Factory builds a provider from a loosely typed config map, as read from a
// config file.
type Factory[T Provider] func(cfg map[string]any) (T, error)

// Closeable providers own resources, such as a server process, that must be
// released.
type Closeable interface {
	Close(ctx context.Context) error
}

// CloseIfCloseable closes p when it implements Closeable.
func CloseIfCloseable(ctx context.Context, p any) error {
	if c, ok := p.(Closeable); ok {
		return c.Close(ctx)
	}
	return nil
}

// Status is the coarse health of a provider.
type Status int

const (
	StatusHealthy Status = iota
	StatusDegraded
	StatusUnavailable
)

func (s Status) String() string {
	switch s {
	case StatusHealthy:
		return "healthy"
	case StatusDegraded:
		return "degraded"
	case StatusUnavailable:
		return "unavailable"
	}
	return "unknown"
}

// HealthStatus is the report of a HealthChecker.
type HealthStatus struct {
	Status  Status
	Message string
	Details map[string]any
}

// HealthChecker providers report more than IsAvailable.
type HealthChecker interface {
	Health(ctx context.Context) HealthStatus
}
