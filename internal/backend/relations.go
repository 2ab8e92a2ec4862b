// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package backend

import (
	"github.com/juju/errors"
	"github.com/juju/names/v5"

	"github.com/canonical/operator-sub000/core/charm"
	coreerrors "github.com/canonical/operator-sub000/core/errors"
	"github.com/canonical/operator-sub000/core/hooks"
	"github.com/canonical/operator-sub000/state"
)

func (b *Backend) relationIndex(id int) (int, error) {
	for i, r := range b.state.Relations {
		if r.ID == id {
			return i, nil
		}
	}
	return -1, coreerrors.Errorf(coreerrors.NotFound, "relation %d not found", id)
}

func (b *Backend) relation(id int) (state.Relation, error) {
	i, err := b.relationIndex(id)
	if err != nil {
		return state.Relation{}, errors.Trace(err)
	}
	return b.state.Relations[i], nil
}

func (b *Backend) isPeer(rel state.Relation) bool {
	meta, ok := b.meta.Relation(rel.Endpoint)
	return ok && meta.Role == charm.RolePeer
}

// RelationEndpoint returns the metadata of a declared relation endpoint.
func (b *Backend) RelationEndpoint(endpoint string) (charm.Relation, error) {
	rel, ok := b.meta.Relation(endpoint)
	if !ok {
		return charm.Relation{}, b.journal.RecordMisuse(
			coreerrors.Errorf(coreerrors.NotDeclared, "relation endpoint %q", endpoint))
	}
	return rel, nil
}

// RelationIDs returns the ids of the relations established on a declared
// endpoint.
func (b *Backend) RelationIDs(endpoint string) ([]int, error) {
	if _, err := b.RelationEndpoint(endpoint); err != nil {
		return nil, errors.Trace(err)
	}
	var ids []int
	for _, r := range b.state.RelationsFor(endpoint) {
		ids = append(ids, r.ID)
	}
	return ids, nil
}

// Relation returns the relation with the given id.
func (b *Backend) Relation(id int) (state.Relation, error) {
	rel, err := b.relation(id)
	if err != nil {
		return state.Relation{}, errors.Trace(err)
	}
	return rel, nil
}

// RelationList returns the names of the remote units in a relation. A
// relation being broken has none.
func (b *Backend) RelationList(id int) ([]string, error) {
	rel, err := b.relation(id)
	if err != nil {
		return nil, errors.Trace(err)
	}
	if b.hook.Kind == hooks.RelationBroken && b.hook.RelationID == id {
		return nil, nil
	}
	var units []string
	for _, name := range rel.RemoteUnitNames() {
		if b.isPeer(rel) && name == b.unitName {
			continue
		}
		units = append(units, name)
	}
	return units, nil
}

// RelationRemoteApp returns the remote application of a relation.
func (b *Backend) RelationRemoteApp(id int) (string, error) {
	rel, err := b.relation(id)
	if err != nil {
		return "", errors.Trace(err)
	}
	return rel.RemoteAppName, nil
}

// RelationGet returns the databag of entity, a unit or application name,
// in a relation. Only the leader can read its own application databag,
// except on peer relations.
func (b *Backend) RelationGet(id int, entity string) (map[string]string, error) {
	rel, err := b.relation(id)
	if err != nil {
		return nil, errors.Trace(err)
	}
	bag, err := b.readableBag(rel, entity)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return bag.Copy(), nil
}

func (b *Backend) readableBag(rel state.Relation, entity string) (state.DataBag, error) {
	switch {
	case entity == b.unitName:
		return rel.LocalUnitData, nil
	case entity == b.appName:
		if !b.state.Leader && !b.isPeer(rel) {
			return nil, coreerrors.Errorf(coreerrors.PermissionDenied,
				"unit %q cannot read application data of %s: not the leader", b.unitName, rel)
		}
		return rel.LocalAppData, nil
	case entity == rel.RemoteAppName:
		return rel.RemoteAppData, nil
	case names.IsValidUnit(entity):
		if app, err := names.UnitApplication(entity); err != nil || app != rel.RemoteAppName {
			return nil, coreerrors.Errorf(coreerrors.NotFound, "unit %q is not in %s", entity, rel)
		}
		for _, id := range rel.RemoteUnitIDs() {
			if rel.RemoteUnitName(id) == entity {
				return rel.RemoteUnitsData[id], nil
			}
		}
		return nil, coreerrors.Errorf(coreerrors.NotFound, "unit %q is not in %s", entity, rel)
	}
	return nil, coreerrors.Errorf(coreerrors.NotFound, "%q is not in %s", entity, rel)
}

// RelationSet updates the databag of entity, which must be the unit under
// test or, for the leader, its application. Empty values delete keys.
func (b *Backend) RelationSet(id int, entity string, data map[string]string) error {
	i, err := b.relationIndex(id)
	if err != nil {
		return errors.Trace(err)
	}
	rel := b.state.Relations[i]
	if b.hook.Kind == hooks.RelationBroken && b.hook.RelationID == id {
		return coreerrors.Errorf(coreerrors.PermissionDenied, "cannot write to %s: relation is being broken", rel)
	}
	var bag state.DataBag
	switch entity {
	case b.unitName:
		bag = rel.LocalUnitData.Copy()
	case b.appName:
		if !b.state.Leader {
			return coreerrors.Errorf(coreerrors.PermissionDenied,
				"unit %q cannot write application data of %s: not the leader", b.unitName, rel)
		}
		bag = rel.LocalAppData.Copy()
	default:
		return coreerrors.Errorf(coreerrors.PermissionDenied, "cannot write the databag of %q in %s", entity, rel)
	}
	if bag == nil {
		bag = state.DataBag{}
	}
	for k, v := range data {
		if k == "" {
			return errors.NotValidf("empty relation data key")
		}
		if v == "" {
			delete(bag, k)
			continue
		}
		bag[k] = v
	}
	if entity == b.unitName {
		b.state.Relations[i].LocalUnitData = bag
	} else {
		b.state.Relations[i].LocalAppData = bag
	}
	return nil
}
