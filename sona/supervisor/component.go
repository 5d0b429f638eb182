package supervisor

import (
	"context"

	"github.com/kbukum/sonago/component"
)

// serverComponent adapts a Supervisor to component.Component.
type serverComponent struct {
	s *Supervisor
}

var (
	_ component.Component   = serverComponent{}
	_ component.Describable = serverComponent{}
)

// Component returns s as a lifecycle component. Its Start launches on the
// configured port and waits for readiness.
func (s *Supervisor) Component() component.Component {
	return serverComponent{s: s}
}

func (c serverComponent) Name() string { return componentName }

func (c serverComponent) Start(ctx context.Context) error {
	if err := c.s.Start(ctx, c.s.cfg.Port); err != nil {
		return err
	}
	return c.s.WaitReady(ctx, 0)
}

func (c serverComponent) Stop(ctx context.Context) error {
	return c.s.Stop(ctx)
}

func (c serverComponent) Health(_ context.Context) component.Health {
	state := c.s.State()
	h := component.Health{Name: componentName, Message: state.String()}
	switch {
	case state == StateReady && c.s.Alive():
		h.Status = component.StatusHealthy
	case state == StateStarting:
		h.Status = component.StatusDegraded
	default:
		h.Status = component.StatusUnhealthy
	}
	return h
}

func (c serverComponent) Describe() component.Description {
	return component.Description{
		Name:    componentName,
		Type:    "process",
		Details: c.s.Binary(),
		Port:    c.s.Port(),
	}
}
