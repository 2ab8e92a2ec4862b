// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package scenario

import (
	"path"
	"sort"

	"github.com/juju/errors"
	"github.com/juju/names/v5"
	"github.com/juju/version/v2"

	"github.com/canonical/operator-sub000/core/charm"
	coreerrors "github.com/canonical/operator-sub000/core/errors"
	"github.com/canonical/operator-sub000/core/hooks"
	"github.com/canonical/operator-sub000/core/secrets"
	"github.com/canonical/operator-sub000/internal/backend"
	"github.com/canonical/operator-sub000/state"
)

// CharmSpec is what the consistency checks know about the charm and the
// controller being simulated.
type CharmSpec struct {
	Meta        *charm.Meta
	Config      *charm.Config
	Actions     *charm.Actions
	AppName     string
	JujuVersion version.Number
}

// CheckState returns every reason the state could not have been produced
// by a real controller for the charm. References to entities the charm
// does not declare satisfy errors.Is(err, coreerrors.NotDeclared); all
// other problems satisfy errors.Is(err, coreerrors.Inconsistent).
func CheckState(spec CharmSpec, st state.State) []error {
	var problems []error
	inconsistent := func(format string, args ...interface{}) {
		problems = append(problems, coreerrors.Errorf(coreerrors.Inconsistent, format, args...))
	}
	undeclared := func(format string, args ...interface{}) {
		problems = append(problems, coreerrors.Errorf(coreerrors.NotDeclared, format, args...))
	}

	if err := st.Validate(); err != nil {
		inconsistent("%v", err)
	}
	if spec.Config != nil {
		if _, err := spec.Config.ValidateSettings(st.Config); err != nil {
			inconsistent("config: %v", err)
		}
	}

	for _, rel := range st.Relations {
		declared, ok := spec.Meta.Relation(rel.Endpoint)
		if !ok {
			undeclared("relation endpoint %q", rel.Endpoint)
			continue
		}
		if rel.Interface != "" && rel.Interface != declared.Interface {
			inconsistent("relation %s has interface %q, endpoint declares %q", rel, rel.Interface, declared.Interface)
		}
		if !names.IsValidApplication(rel.RemoteAppName) {
			inconsistent("relation %s remote application %q not valid", rel, rel.RemoteAppName)
		}
		if declared.Role == charm.RolePeer && rel.RemoteAppName != spec.AppName {
			inconsistent("peer relation %s remote application %q is not %q", rel, rel.RemoteAppName, spec.AppName)
		}
		for _, id := range rel.RemoteUnitIDs() {
			if id < 0 {
				inconsistent("relation %s remote unit id %d", rel, id)
			}
		}
	}

	for _, c := range st.Containers {
		if _, ok := spec.Meta.Containers[c.Name]; !ok {
			undeclared("container %q", c.Name)
			continue
		}
		mounts := make([]string, 0, len(c.Mounts))
		for name := range c.Mounts {
			mounts = append(mounts, name)
		}
		sort.Strings(mounts)
		for _, name := range mounts {
			if location := c.Mounts[name].Location; !path.IsAbs(location) {
				inconsistent("container %q mount %q location %q is not absolute", c.Name, name, location)
			}
		}
		if _, err := c.Plan(); err != nil {
			inconsistent("container %q plan: %v", c.Name, err)
		}
		if (len(c.Notices) > 0 || len(c.CheckInfos) > 0) && !c.CanConnect {
			inconsistent("container %q has notices or checks but cannot connect", c.Name)
		}
	}

	for _, s := range st.Storages {
		declared, ok := spec.Meta.Storage[s.Name]
		if !ok {
			undeclared("storage %q", s.Name)
			continue
		}
		if s.Index < 0 || (declared.CountMax >= 0 && s.Index >= declared.CountMax) {
			inconsistent("storage %s index beyond the declared count", s.ID())
		}
	}

	if len(st.Secrets) > 0 {
		if err := hooks.SecretChanged.CheckSupported(spec.JujuVersion); err != nil {
			inconsistent("secrets in state: %v", err)
		}
	}
	for _, secret := range st.Secrets {
		if secret.Owner == secrets.OwnerNone && len(secret.Grants) > 0 {
			inconsistent("secret %q is granted by a unit that does not own it", secret.ID)
		}
	}

	for name := range st.Resources {
		if _, ok := spec.Meta.Resources[name]; !ok {
			undeclared("resource %q", name)
		}
	}
	bindings := map[string]bool{}
	for _, b := range spec.Meta.Bindings() {
		bindings[b] = true
	}
	for name := range st.Networks {
		if !bindings[name] {
			undeclared("network binding %q", name)
		}
	}

	for _, d := range st.DeferredEvents {
		info, err := backend.HookInfoFromSnapshot(d.Snapshot)
		if err != nil {
			inconsistent("deferred event %q: %v", d.Handle, err)
			continue
		}
		if info.EventID() != d.EventID {
			inconsistent("deferred event %q is %q, snapshot describes %q", d.Handle, d.EventID, info.EventID())
		}
	}
	return problems
}

// CheckEvent returns every reason the event could not be delivered by a
// real controller to a unit in the given state.
func CheckEvent(spec CharmSpec, ev Event, st state.State) []error {
	var problems []error
	inconsistent := func(format string, args ...interface{}) {
		problems = append(problems, coreerrors.Errorf(coreerrors.Inconsistent, format, args...))
	}
	undeclared := func(format string, args ...interface{}) {
		problems = append(problems, coreerrors.Errorf(coreerrors.NotDeclared, format, args...))
	}

	info := ev.info
	if err := info.Kind.Validate(info.Scope); err != nil {
		return []error{errors.Trace(err)}
	}
	if err := info.Kind.CheckSupported(spec.JujuVersion); err != nil {
		inconsistent("%v", err)
	}

	switch kind := info.Kind; {
	case kind.IsRelation():
		if _, ok := spec.Meta.Relation(info.Scope); !ok {
			undeclared("relation endpoint %q", info.Scope)
			break
		}
		rel, err := st.Relation(info.RelationID)
		if err != nil {
			inconsistent("%s event for relation %d missing from the state", kind, info.RelationID)
			break
		}
		if rel.Endpoint != info.Scope {
			inconsistent("relation %d is on endpoint %q, not %q", rel.ID, rel.Endpoint, info.Scope)
		}
		check := func(what string, id *int) {
			if id == nil {
				return
			}
			if _, ok := rel.RemoteUnitsData[*id]; !ok && kind != hooks.RelationDeparted {
				inconsistent("%s %s is not in %s", what, rel.RemoteUnitName(*id), rel)
			}
		}
		check("remote unit", ev.remoteUnitID)
		check("departing unit", ev.departingUnitID)

	case kind.IsSecret():
		secret, err := st.Secret(info.SecretID)
		if err != nil {
			inconsistent("%s event for secret %q missing from the state", kind, info.SecretID)
			break
		}
		owned := secret.Owner != secrets.OwnerNone
		switch kind {
		case hooks.SecretChanged:
			if owned {
				inconsistent("secret-changed is delivered to observers, not the owner of %q", secret.ID)
			}
		default:
			if !owned {
				inconsistent("%s is delivered to the owner of %q", kind, secret.ID)
			} else if secret.Owner == secrets.OwnerApp && !st.Leader {
				inconsistent("%s for application secret %q is delivered to the leader only", kind, secret.ID)
			}
		}
		if kind == hooks.SecretExpired || kind == hooks.SecretRemove {
			if info.SecretRevision < 1 || info.SecretRevision > secret.LatestRevision() {
				inconsistent("%s event for unknown revision %d of %q", kind, info.SecretRevision, secret.ID)
			}
		}

	case kind.IsStorage():
		if _, ok := spec.Meta.Storage[info.Scope]; !ok {
			undeclared("storage %q", info.Scope)
			break
		}
		if _, err := st.Storage(info.Scope, info.StorageIndex); err != nil {
			inconsistent("%s event for storage %s/%d missing from the state", kind, info.Scope, info.StorageIndex)
		}

	case kind.IsWorkload():
		if _, ok := spec.Meta.Containers[info.Scope]; !ok {
			undeclared("container %q", info.Scope)
			break
		}
		c, err := st.Container(info.Scope)
		if err != nil {
			inconsistent("%s event for container %q missing from the state", kind, info.Scope)
			break
		}
		if !c.CanConnect {
			inconsistent("%s event for container %q that cannot connect", kind, c.Name)
		}
		switch kind {
		case hooks.PebbleCustomNotice:
			if _, ok := c.Notice(info.NoticeID); !ok {
				inconsistent("notice %q is not in container %q", info.NoticeID, c.Name)
			}
		case hooks.PebbleCheckFailed, hooks.PebbleCheckRecovered:
			if _, ok := c.CheckInfo(info.CheckName); !ok {
				inconsistent("check %q is not in container %q", info.CheckName, c.Name)
			}
		}

	case kind.IsAction():
		if spec.Actions == nil {
			undeclared("action %q", info.Scope)
			break
		}
		action, ok := spec.Actions.ActionSpecs[info.Scope]
		if !ok {
			undeclared("action %q", info.Scope)
			break
		}
		if err := action.ValidateParams(info.ActionParams); err != nil {
			inconsistent("action %q params: %v", info.Scope, err)
		}
	}
	return problems
}
