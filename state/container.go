// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package state

import (
	"os"
	"slices"
	"sort"
	"time"

	"github.com/canonical/pebble/client"
	"github.com/kballard/go-shellquote"

	"github.com/canonical/operator-sub000/core/plan"
)

// Mount binds a path inside a container to a path on the host.
type Mount struct {
	// Location is the absolute path inside the container.
	Location string `yaml:"location"`

	// Source is the host directory or file backing Location.
	Source string `yaml:"source"`

	ReadOnly bool `yaml:"read-only,omitempty"`
}

// File is an entry in a container's in-memory filesystem.
type File struct {
	Content string      `yaml:"content,omitempty"`
	Mode    os.FileMode `yaml:"mode,omitempty"`
	Dir     bool        `yaml:"dir,omitempty"`
}

// Exec is a canned result for commands starting with Command.
type Exec struct {
	Command    []string `yaml:"command"`
	ReturnCode int      `yaml:"return-code,omitempty"`
	Stdout     string   `yaml:"stdout,omitempty"`
	Stderr     string   `yaml:"stderr,omitempty"`
}

// String renders the command prefix as a shell line.
func (e Exec) String() string {
	return shellquote.Join(e.Command...)
}

// Prefixes returns command and each of its shorter prefixes, longest first,
// ending with the empty prefix.
func Prefixes(command []string) [][]string {
	result := make([][]string, 0, len(command)+1)
	for i := len(command); i >= 0; i-- {
		result = append(result, command[:i])
	}
	return result
}

// NoticeType is the type of a workload notice.
type NoticeType string

const (
	CustomNotice NoticeType = "custom"
)

// Notice is a workload notice as reported by the process supervisor.
type Notice struct {
	ID            string            `yaml:"id"`
	Key           string            `yaml:"key"`
	Type          NoticeType        `yaml:"type,omitempty"`
	FirstOccurred time.Time         `yaml:"first-occurred"`
	LastOccurred  time.Time         `yaml:"last-occurred"`
	LastRepeated  time.Time         `yaml:"last-repeated"`
	Occurrences   int               `yaml:"occurrences,omitempty"`
	LastData      map[string]string `yaml:"last-data,omitempty"`
	RepeatAfter   time.Duration     `yaml:"repeat-after,omitempty"`
	ExpireAfter   time.Duration     `yaml:"expire-after,omitempty"`
}

// CheckInfo is the injected status of a health check.
type CheckInfo struct {
	Name      string             `yaml:"name"`
	Level     client.CheckLevel  `yaml:"level,omitempty"`
	Status    client.CheckStatus `yaml:"status,omitempty"`
	Failures  int                `yaml:"failures,omitempty"`
	Threshold int                `yaml:"threshold,omitempty"`
}

// Container is a workload container of the unit under test.
type Container struct {
	Name string `yaml:"name"`

	// CanConnect reports whether the process supervisor is reachable.
	CanConnect bool `yaml:"can-connect"`

	// Layers holds the supervisor layers by label.
	Layers Layers `yaml:"layers,omitempty"`

	// ServiceStatuses holds the current status of services. Services of the
	// plan that have no entry here are inactive.
	ServiceStatuses map[string]client.ServiceStatus `yaml:"service-statuses,omitempty"`

	Mounts map[string]Mount `yaml:"mounts,omitempty"`

	// Files holds the container filesystem outside of mounts, keyed by
	// absolute path.
	Files map[string]File `yaml:"files,omitempty"`

	Execs      []Exec      `yaml:"execs,omitempty"`
	Notices    []Notice    `yaml:"notices,omitempty"`
	CheckInfos []CheckInfo `yaml:"check-infos,omitempty"`
}

// SortedLayers returns the layers ordered by their order field, then label.
func (c Container) SortedLayers() []*plan.Layer {
	layers := make([]*plan.Layer, 0, len(c.Layers))
	for _, layer := range c.Layers {
		layers = append(layers, layer)
	}
	sort.Slice(layers, func(i, j int) bool {
		if layers[i].Order != layers[j].Order {
			return layers[i].Order < layers[j].Order
		}
		return layers[i].Label < layers[j].Label
	})
	return layers
}

// Plan returns the combination of the container's layers.
func (c Container) Plan() (*plan.Plan, error) {
	return plan.CombineLayers(c.SortedLayers()...)
}

// ServiceStatus returns the status of the named service.
func (c Container) ServiceStatus(name string) client.ServiceStatus {
	if status, ok := c.ServiceStatuses[name]; ok {
		return status
	}
	return client.StatusInactive
}

// Notice returns the notice with the given id or key.
func (c Container) Notice(ref string) (Notice, bool) {
	for _, n := range c.Notices {
		if n.ID == ref || n.Key == ref {
			return n, true
		}
	}
	return Notice{}, false
}

// CheckInfo returns the injected status of the named check.
func (c Container) CheckInfo(name string) (CheckInfo, bool) {
	for _, info := range c.CheckInfos {
		if info.Name == name {
			return info, true
		}
	}
	return CheckInfo{}, false
}

// MatchExec returns the registered exec with the longest prefix of command.
func (c Container) MatchExec(command []string) (Exec, bool) {
	for _, prefix := range Prefixes(command) {
		for _, exec := range c.Execs {
			if slices.Equal(exec.Command, prefix) {
				return exec, true
			}
		}
	}
	return Exec{}, false
}
