// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package state

import (
	"fmt"
	"sort"

	"github.com/juju/naturalsort"
)

// DataBag is a relation databag.
type DataBag map[string]string

// Copy returns an independent copy of the databag.
func (b DataBag) Copy() DataBag {
	if b == nil {
		return nil
	}
	result := make(DataBag, len(b))
	for k, v := range b {
		result[k] = v
	}
	return result
}

// Relation is an established relation between the charm's application and
// a remote one, as seen from the unit under test.
type Relation struct {
	// Endpoint is the relation name declared in the charm metadata.
	Endpoint string `yaml:"endpoint"`

	// Interface is the relation interface. When empty it is taken from the
	// charm metadata.
	Interface string `yaml:"interface,omitempty"`

	// ID is the relation id, unique within a State.
	ID int `yaml:"id"`

	// RemoteAppName is the name of the related application. For peer
	// relations it is the charm's own application.
	RemoteAppName string `yaml:"remote-app-name"`

	LocalAppData    DataBag         `yaml:"local-app-data,omitempty"`
	LocalUnitData   DataBag         `yaml:"local-unit-data,omitempty"`
	RemoteAppData   DataBag         `yaml:"remote-app-data,omitempty"`
	RemoteUnitsData map[int]DataBag `yaml:"remote-units-data,omitempty"`

	// Suspended is set for cross-model relations that have been suspended.
	Suspended bool `yaml:"suspended,omitempty"`
}

// NewRelation returns a relation on endpoint with the given id, related to
// one remote unit (with id 0) of remoteApp.
func NewRelation(endpoint string, id int, remoteApp string) Relation {
	return Relation{
		Endpoint:        endpoint,
		ID:              id,
		RemoteAppName:   remoteApp,
		LocalAppData:    DataBag{},
		LocalUnitData:   DataBag{},
		RemoteAppData:   DataBag{},
		RemoteUnitsData: map[int]DataBag{0: {}},
	}
}

// RemoteUnitIDs returns the ids of the remote units in ascending order.
func (r Relation) RemoteUnitIDs() []int {
	ids := make([]int, 0, len(r.RemoteUnitsData))
	for id := range r.RemoteUnitsData {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// RemoteUnitNames returns the names of the remote units, sorted so that
// "app/10" follows "app/9".
func (r Relation) RemoteUnitNames() []string {
	names := make([]string, 0, len(r.RemoteUnitsData))
	for id := range r.RemoteUnitsData {
		names = append(names, r.RemoteUnitName(id))
	}
	naturalsort.Sort(names)
	return names
}

// RemoteUnitName returns the name of the remote unit with the given id.
func (r Relation) RemoteUnitName(id int) string {
	return fmt.Sprintf("%s/%d", r.RemoteAppName, id)
}

// String returns the relation's key as used in events and logs.
func (r Relation) String() string {
	return fmt.Sprintf("%s:%d", r.Endpoint, r.ID)
}
