// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package pebble simulates the process supervisor of a workload container.
// A Client operates directly on the container's entry in the working state:
// plan changes, service status changes and notices are written back as they
// happen.
package pebble

import (
	"sort"

	"github.com/canonical/pebble/client"
	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/juju/loggo/v2"

	coreerrors "github.com/canonical/operator-sub000/core/errors"
	"github.com/canonical/operator-sub000/core/plan"
	"github.com/canonical/operator-sub000/internal/vfs"
	"github.com/canonical/operator-sub000/state"
)

var logger = loggo.GetLogger("scenario.pebble")

// Config holds the dependencies of a Client.
type Config struct {
	// Container is the working copy of the container. The client mutates
	// it in place.
	Container *state.Container

	// FS is the container filesystem.
	FS *vfs.FS

	// Clock stamps notices.
	Clock clock.Clock

	// OnExec is called with every resolved exec.
	OnExec func(ExecRecord)

	// OnMisuse, if set, is called with errors caused by the test setup
	// rather than the charm, such as a command no exec mock matches.
	OnMisuse func(error) error
}

// Validate checks the config.
func (c Config) Validate() error {
	if c.Container == nil {
		return errors.NotValidf("nil Container")
	}
	if c.FS == nil {
		return errors.NotValidf("nil FS")
	}
	if c.Clock == nil {
		return errors.NotValidf("nil Clock")
	}
	return nil
}

// Client is a simulated supervisor client bound to one container.
type Client struct {
	container *state.Container
	fs        *vfs.FS
	clock     clock.Clock
	onExec    func(ExecRecord)
	onMisuse  func(error) error
}

// New returns a client for the configured container.
func New(config Config) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	return &Client{
		container: config.Container,
		fs:        config.FS,
		clock:     config.Clock,
		onExec:    config.OnExec,
		onMisuse:  config.OnMisuse,
	}, nil
}

// Name returns the container name.
func (c *Client) Name() string {
	return c.container.Name
}

// CanConnect reports whether the supervisor is reachable.
func (c *Client) CanConnect() bool {
	return c.container.CanConnect
}

func (c *Client) connect() error {
	if !c.container.CanConnect {
		return coreerrors.Errorf(coreerrors.ConnectionError, "cannot connect to pebble in container %q", c.container.Name)
	}
	return nil
}

// AddLayer adds a layer to the plan. With combine, a layer with the same
// label is combined with the new one instead of being rejected.
func (c *Client) AddLayer(label string, layer *plan.Layer, combine bool) error {
	if err := c.connect(); err != nil {
		return errors.Trace(err)
	}
	layer = plan.CopyLayer(layer)
	layer.Label = label
	if err := plan.ValidateLayer(layer); err != nil {
		return errors.Trace(err)
	}

	layers := make(map[string]*plan.Layer, len(c.container.Layers)+1)
	maxOrder := 0
	for l, existing := range c.container.Layers {
		layers[l] = existing
		if existing.Order > maxOrder {
			maxOrder = existing.Order
		}
	}
	if existing, ok := layers[label]; ok {
		if !combine {
			return coreerrors.Errorf(coreerrors.ProtocolError, "layer %q already exists", label)
		}
		combined, err := plan.Combine(existing, layer)
		if err != nil {
			return errors.Trace(err)
		}
		layers[label] = combined
	} else {
		layer.Order = maxOrder + 1
		layers[label] = layer
	}

	updated := *c.container
	updated.Layers = layers
	if _, err := updated.Plan(); err != nil {
		return errors.Trace(err)
	}
	c.container.Layers = layers
	logger.Debugf("added layer %q to container %q", label, c.container.Name)
	return nil
}

// Plan returns the combined plan.
func (c *Client) Plan() (*plan.Plan, error) {
	if err := c.connect(); err != nil {
		return nil, errors.Trace(err)
	}
	return c.container.Plan()
}

// Services returns the status of the named services, or all services if
// names is empty. Names not in the plan are ignored.
func (c *Client) Services(names []string) ([]*client.ServiceInfo, error) {
	p, err := c.Plan()
	if err != nil {
		return nil, errors.Trace(err)
	}
	wanted := map[string]bool{}
	for _, name := range names {
		wanted[name] = true
	}
	var infos []*client.ServiceInfo
	for name, svc := range p.Services {
		if len(wanted) > 0 && !wanted[name] {
			continue
		}
		startup := client.StartupDisabled
		if svc.Startup == plan.StartupEnabled {
			startup = client.StartupEnabled
		}
		infos = append(infos, &client.ServiceInfo{
			Name:    name,
			Startup: startup,
			Current: c.container.ServiceStatus(name),
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos, nil
}

func (c *Client) setStatus(name string, status client.ServiceStatus) {
	statuses := make(map[string]client.ServiceStatus, len(c.container.ServiceStatuses)+1)
	for k, v := range c.container.ServiceStatuses {
		statuses[k] = v
	}
	statuses[name] = status
	c.container.ServiceStatuses = statuses
}

func (c *Client) checkNames(p *plan.Plan, names []string) error {
	if len(names) == 0 {
		return coreerrors.Errorf(coreerrors.ProtocolError, "must specify at least one service")
	}
	for _, name := range names {
		if _, ok := p.Services[name]; !ok {
			return coreerrors.Errorf(coreerrors.NotFound, "service %q does not exist", name)
		}
	}
	return nil
}

// Start starts the named services and the services they require.
func (c *Client) Start(names []string) error {
	p, err := c.Plan()
	if err != nil {
		return errors.Trace(err)
	}
	if err := c.checkNames(p, names); err != nil {
		return errors.Trace(err)
	}
	lanes, err := plan.StartOrder(p, names)
	if err != nil {
		return errors.Trace(err)
	}
	for _, lane := range lanes {
		for _, name := range lane {
			if c.container.ServiceStatus(name) == client.StatusActive {
				continue
			}
			logger.Debugf("starting service %q in container %q", name, c.container.Name)
			c.setStatus(name, client.StatusActive)
		}
	}
	return nil
}

// Stop stops the named services.
func (c *Client) Stop(names []string) error {
	p, err := c.Plan()
	if err != nil {
		return errors.Trace(err)
	}
	if err := c.checkNames(p, names); err != nil {
		return errors.Trace(err)
	}
	lanes, err := plan.StopOrder(p, names)
	if err != nil {
		return errors.Trace(err)
	}
	for _, lane := range lanes {
		for _, name := range lane {
			if c.container.ServiceStatus(name) != client.StatusActive {
				continue
			}
			logger.Debugf("stopping service %q in container %q", name, c.container.Name)
			c.setStatus(name, client.StatusInactive)
		}
	}
	return nil
}

// Restart stops then starts the named services.
func (c *Client) Restart(names []string) error {
	if err := c.Stop(names); err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(c.Start(names))
}

// AutoStart starts every service whose startup is enabled.
func (c *Client) AutoStart() error {
	p, err := c.Plan()
	if err != nil {
		return errors.Trace(err)
	}
	var names []string
	for name, svc := range p.Services {
		if svc.Startup == plan.StartupEnabled {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return nil
	}
	sort.Strings(names)
	return errors.Trace(c.Start(names))
}

// Replan brings services in line with the plan: services removed from the
// plan are stopped and every service in the plan is started, whatever its
// startup, in the plan's start order.
func (c *Client) Replan() error {
	p, err := c.Plan()
	if err != nil {
		return errors.Trace(err)
	}
	for name, status := range c.container.ServiceStatuses {
		if _, ok := p.Services[name]; !ok && status == client.StatusActive {
			c.setStatus(name, client.StatusInactive)
		}
	}
	if len(p.Services) == 0 {
		return nil
	}
	names := make([]string, 0, len(p.Services))
	for name := range p.Services {
		names = append(names, name)
	}
	sort.Strings(names)
	return errors.Trace(c.Start(names))
}

// SendSignal sends signal to the named running services.
func (c *Client) SendSignal(signal string, names []string) error {
	p, err := c.Plan()
	if err != nil {
		return errors.Trace(err)
	}
	if signal == "" {
		return coreerrors.Errorf(coreerrors.ProtocolError, "signal must be specified")
	}
	if err := c.checkNames(p, names); err != nil {
		return errors.Trace(err)
	}
	for _, name := range names {
		if c.container.ServiceStatus(name) != client.StatusActive {
			return coreerrors.Errorf(coreerrors.ProtocolError, "cannot send signal to %q: service is not running", name)
		}
	}
	logger.Debugf("sent %s to %v in container %q", signal, names, c.container.Name)
	return nil
}
