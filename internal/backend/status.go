// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package backend

import (
	"sort"

	"github.com/juju/errors"
	"github.com/juju/version/v2"

	coreerrors "github.com/canonical/operator-sub000/core/errors"
	"github.com/canonical/operator-sub000/core/status"
	"github.com/canonical/operator-sub000/state"
)

var minSecretsVersion = version.MustParse("3.0.2")

// StatusGet returns the unit or, for the leader, the application status.
func (b *Backend) StatusGet(app bool) (status.StatusInfo, error) {
	if !app {
		return b.state.UnitStatus, nil
	}
	if !b.state.Leader {
		return status.StatusInfo{}, coreerrors.Errorf(coreerrors.PermissionDenied,
			"unit %q cannot read application status: not the leader", b.unitName)
	}
	return b.state.AppStatus, nil
}

// StatusSet sets the unit or, for the leader, the application status.
func (b *Backend) StatusSet(info status.StatusInfo, app bool) error {
	if !status.ValidWorkloadStatus(info.Status) {
		return errors.NotValidf("status %q", info.Status)
	}
	if app && !b.state.Leader {
		return coreerrors.Errorf(coreerrors.PermissionDenied,
			"unit %q cannot set application status: not the leader", b.unitName)
	}
	now := b.clock.Now()
	info.Since = &now
	if app {
		if b.state.AppStatus.Status != "" {
			b.journal.AppStatusHistory = append(b.journal.AppStatusHistory, b.state.AppStatus)
		}
		b.state.AppStatus = info
		return nil
	}
	if b.state.UnitStatus.Status != "" {
		b.journal.UnitStatusHistory = append(b.journal.UnitStatusHistory, b.state.UnitStatus)
	}
	b.state.UnitStatus = info
	return nil
}

// ApplicationVersionSet sets the workload version shown for the unit.
func (b *Backend) ApplicationVersionSet(v string) error {
	if b.state.WorkloadVersion != "" {
		b.journal.WorkloadVersionHistory = append(b.journal.WorkloadVersionHistory, b.state.WorkloadVersion)
	}
	b.state.WorkloadVersion = v
	return nil
}

func validatePort(p state.Port) error {
	switch p.Protocol {
	case "tcp", "udp":
		if p.Port < 1 || p.Port > 65535 {
			return errors.NotValidf("port %d for protocol %q", p.Port, p.Protocol)
		}
	case "icmp":
		if p.Port != 0 {
			return errors.NotValidf("port %d for protocol icmp", p.Port)
		}
	default:
		return errors.NotValidf("protocol %q", p.Protocol)
	}
	return nil
}

// OpenPort opens a port. Opening an open port does nothing.
func (b *Backend) OpenPort(protocol string, port int) error {
	p := state.Port{Protocol: protocol, Port: port}
	if err := validatePort(p); err != nil {
		return errors.Trace(err)
	}
	for _, open := range b.state.OpenedPorts {
		if open == p {
			return nil
		}
	}
	ports := append(append([]state.Port(nil), b.state.OpenedPorts...), p)
	sortPorts(ports)
	b.state.OpenedPorts = ports
	return nil
}

// ClosePort closes a port. Closing a closed port does nothing.
func (b *Backend) ClosePort(protocol string, port int) error {
	p := state.Port{Protocol: protocol, Port: port}
	if err := validatePort(p); err != nil {
		return errors.Trace(err)
	}
	var ports []state.Port
	for _, open := range b.state.OpenedPorts {
		if open != p {
			ports = append(ports, open)
		}
	}
	b.state.OpenedPorts = ports
	return nil
}

// OpenedPorts returns the ports opened by the unit.
func (b *Backend) OpenedPorts() ([]state.Port, error) {
	return append([]state.Port(nil), b.state.OpenedPorts...), nil
}

func sortPorts(ports []state.Port) {
	sort.Slice(ports, func(i, j int) bool {
		if ports[i].Protocol != ports[j].Protocol {
			return ports[i].Protocol < ports[j].Protocol
		}
		return ports[i].Port < ports[j].Port
	})
}
