// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package pebble

import (
	"sort"

	"github.com/canonical/pebble/client"
	"github.com/juju/errors"
)

// ChecksOptions filters the result of Checks.
type ChecksOptions struct {
	// Level restricts the checks returned. Ready includes alive checks.
	Level client.CheckLevel

	// Names restricts the result to the named checks.
	Names []string
}

// Checks returns the status of the health checks. Checks are never run:
// their status is whatever the state injected, or up with no failures.
func (c *Client) Checks(opts ChecksOptions) ([]*client.CheckInfo, error) {
	p, err := c.Plan()
	if err != nil {
		return nil, errors.Trace(err)
	}
	infos := map[string]*client.CheckInfo{}
	for name, chk := range p.Checks {
		infos[name] = &client.CheckInfo{
			Name:      name,
			Level:     client.CheckLevel(chk.Level),
			Status:    client.CheckStatusUp,
			Threshold: chk.Threshold,
		}
	}
	for _, injected := range c.container.CheckInfos {
		info, ok := infos[injected.Name]
		if !ok {
			info = &client.CheckInfo{Name: injected.Name, Status: client.CheckStatusUp}
			infos[injected.Name] = info
		}
		if injected.Level != client.UnsetLevel {
			info.Level = injected.Level
		}
		if injected.Status != "" {
			info.Status = injected.Status
		}
		info.Failures = injected.Failures
		if injected.Threshold > 0 {
			info.Threshold = injected.Threshold
		}
	}

	wanted := map[string]bool{}
	for _, name := range opts.Names {
		wanted[name] = true
	}
	var result []*client.CheckInfo
	for name, info := range infos {
		if len(wanted) > 0 && !wanted[name] {
			continue
		}
		if !levelMatches(opts.Level, info.Level) {
			continue
		}
		result = append(result, info)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

func levelMatches(filter, level client.CheckLevel) bool {
	switch filter {
	case client.UnsetLevel:
		return true
	case client.AliveLevel:
		return level == client.AliveLevel
	case client.ReadyLevel:
		return level == client.ReadyLevel || level == client.AliveLevel
	}
	return false
}

