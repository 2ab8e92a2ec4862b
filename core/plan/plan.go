// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package plan models the layered configuration of a workload container's
// process supervisor on top of pebble's own plan package. Format errors
// reported by pebble are returned as ProtocolError.
package plan

import (
	"regexp"
	"sort"

	pebbleplan "github.com/canonical/pebble/internals/plan"
	"github.com/juju/errors"

	coreerrors "github.com/canonical/operator-sub000/core/errors"
)

type (
	Layer     = pebbleplan.Layer
	Plan      = pebbleplan.Plan
	Service   = pebbleplan.Service
	Check     = pebbleplan.Check
	HTTPCheck = pebbleplan.HTTPCheck
	TCPCheck  = pebbleplan.TCPCheck
	ExecCheck = pebbleplan.ExecCheck

	Override   = pebbleplan.Override
	Startup    = pebbleplan.ServiceStartup
	CheckLevel = pebbleplan.CheckLevel
	Duration   = pebbleplan.OptionalDuration
)

const (
	UnknownOverride = pebbleplan.UnknownOverride
	MergeOverride   = pebbleplan.MergeOverride
	ReplaceOverride = pebbleplan.ReplaceOverride

	StartupUnknown  = pebbleplan.StartupUnknown
	StartupEnabled  = pebbleplan.StartupEnabled
	StartupDisabled = pebbleplan.StartupDisabled

	UnsetLevel = pebbleplan.UnsetLevel
	AliveLevel = pebbleplan.AliveLevel
	ReadyLevel = pebbleplan.ReadyLevel
)

var labelRegexp = regexp.MustCompile(`^[a-z0-9](?:-?[a-z0-9])*$`)

func protocolError(err error) error {
	if err == nil {
		return nil
	}
	if fe, ok := errors.AsType[*pebbleplan.FormatError](err); ok {
		return coreerrors.Errorf(coreerrors.ProtocolError, "%s", fe.Message)
	}
	return errors.Trace(err)
}

// ParseLayer decodes a layer from YAML and validates it.
func ParseLayer(order int, label string, data []byte) (*Layer, error) {
	if !labelRegexp.MatchString(label) {
		return nil, coreerrors.Errorf(coreerrors.ProtocolError, "invalid layer label %q", label)
	}
	layer, err := pebbleplan.ParseLayer(order, label, data)
	if err != nil {
		return nil, protocolError(err)
	}
	return layer, nil
}

// ValidateLayer checks the label and structure of a single layer.
func ValidateLayer(layer *Layer) error {
	if !labelRegexp.MatchString(layer.Label) {
		return coreerrors.Errorf(coreerrors.ProtocolError, "invalid layer label %q", layer.Label)
	}
	return protocolError(layer.Validate())
}

// CopyLayer returns an independent copy of layer.
func CopyLayer(layer *Layer) *Layer {
	if layer == nil {
		return nil
	}
	result := *layer
	if layer.Services != nil {
		result.Services = make(map[string]*Service, len(layer.Services))
		for name, svc := range layer.Services {
			result.Services[name] = svc.Copy()
		}
	}
	if layer.Checks != nil {
		result.Checks = make(map[string]*Check, len(layer.Checks))
		for name, chk := range layer.Checks {
			result.Checks[name] = chk.Copy()
		}
	}
	if layer.LogTargets != nil {
		result.LogTargets = make(map[string]*pebbleplan.LogTarget, len(layer.LogTargets))
		for name, target := range layer.LogTargets {
			result.LogTargets[name] = target.Copy()
		}
	}
	if layer.Sections != nil {
		result.Sections = make(map[string]pebbleplan.Section, len(layer.Sections))
		for name, section := range layer.Sections {
			result.Sections[name] = section
		}
	}
	return &result
}

// Combine applies other on top of base, honouring each entry's override.
// The result keeps the label and order of base. Neither input is modified.
func Combine(base, other *Layer) (*Layer, error) {
	combined, err := pebbleplan.CombineLayers(base, other)
	if err != nil {
		return nil, protocolError(err)
	}
	combined.Label = base.Label
	combined.Order = base.Order
	return combined, nil
}

// CombineLayers combines the given layers, lowest order first, into a
// validated plan.
func CombineLayers(layers ...*Layer) (*Plan, error) {
	sorted := append([]*Layer(nil), layers...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Order < sorted[j].Order
	})
	combined, err := pebbleplan.CombineLayers(sorted...)
	if err != nil {
		return nil, protocolError(err)
	}
	p := &Plan{
		Layers:     sorted,
		Services:   combined.Services,
		Checks:     combined.Checks,
		LogTargets: combined.LogTargets,
		Sections:   combined.Sections,
	}
	if err := p.Validate(); err != nil {
		return nil, protocolError(err)
	}
	return p, nil
}

// StartOrder returns the services that must be started to start names,
// grouped in lanes of services that depend on each other. Each lane is in
// start order.
func StartOrder(p *Plan, names []string) ([][]string, error) {
	lanes, err := p.StartOrder(names)
	return lanes, protocolError(err)
}

// StopOrder returns the services that must be stopped to stop names,
// including the services requiring them, grouped as StartOrder does.
func StopOrder(p *Plan, names []string) ([][]string, error) {
	lanes, err := p.StopOrder(names)
	return lanes, protocolError(err)
}
