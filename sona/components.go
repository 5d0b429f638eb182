package sona

import (
	"context"
	"time"

	"github.com/kbukum/sonago/component"
	"github.com/kbukum/sonago/sona/client"
	"github.com/kbukum/sonago/sona/supervisor"
)

const clientComponentName = "sona-client"

// clientComponent creates the protocol client once the supervisor knows the
// server's port.
type clientComponent struct {
	sup  *supervisor.Supervisor
	cfg  client.Config
	opts []client.Option

	client *client.Client
}

var _ component.Component = (*clientComponent)(nil)

func (c *clientComponent) Name() string { return clientComponentName }

func (c *clientComponent) Start(_ context.Context) error {
	cfg := c.cfg
	cfg.BaseURL = c.sup.BaseURL()
	cl, err := client.New(cfg, c.opts...)
	if err != nil {
		return err
	}
	c.client = cl
	return nil
}

func (c *clientComponent) Stop(_ context.Context) error {
	if c.client == nil {
		return nil
	}
	return c.client.Close()
}

func (c *clientComponent) Health(ctx context.Context) component.Health {
	h := component.Health{Name: clientComponentName}
	switch {
	case c.client == nil:
		h.Status, h.Message = component.StatusUnhealthy, "not started"
	case c.client.Closed():
		h.Status, h.Message = component.StatusUnhealthy, "closed"
	default:
		ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if _, err := c.client.Health(ctx); err != nil {
			h.Status, h.Message = component.StatusUnhealthy, err.Error()
		} else {
			h.Status = component.StatusHealthy
		}
	}
	return h
}
