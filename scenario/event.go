// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package scenario

import (
	"github.com/canonical/operator-sub000/core/hooks"
	"github.com/canonical/operator-sub000/internal/backend"
	"github.com/canonical/operator-sub000/state"
)

// Event describes the one event a run dispatches. Build events with the
// constructors below; the zero value is not a valid event.
type Event struct {
	info backend.HookInfo

	// remoteUnitID and departingUnitID are resolved against the relation
	// when the event is dispatched.
	remoteUnitID    *int
	departingUnitID *int
	relation        *state.Relation
}

// ID returns the event identifier, such as "db-relation-changed".
func (e Event) ID() string {
	return e.info.EventID()
}

// Kind returns the kind of the event.
func (e Event) Kind() hooks.Kind {
	return e.info.Kind
}

func lifecycle(kind hooks.Kind) Event {
	return Event{info: backend.HookInfo{Kind: kind}}
}

// Install returns an install event.
func Install() Event { return lifecycle(hooks.Install) }

// Start returns a start event.
func Start() Event { return lifecycle(hooks.Start) }

// Stop returns a stop event.
func Stop() Event { return lifecycle(hooks.Stop) }

// Remove returns a remove event.
func Remove() Event { return lifecycle(hooks.Remove) }

// ConfigChanged returns a config-changed event.
func ConfigChanged() Event { return lifecycle(hooks.ConfigChanged) }

// UpgradeCharm returns an upgrade-charm event.
func UpgradeCharm() Event { return lifecycle(hooks.UpgradeCharm) }

// UpdateStatus returns an update-status event.
func UpdateStatus() Event { return lifecycle(hooks.UpdateStatus) }

// LeaderElected returns a leader-elected event.
func LeaderElected() Event { return lifecycle(hooks.LeaderElected) }

// CollectUnitStatus returns an event that only collects status.
func CollectUnitStatus() Event { return lifecycle(hooks.CollectUnitStatus) }

func relationEvent(kind hooks.Kind, rel state.Relation) Event {
	r := rel
	return Event{
		info: backend.HookInfo{
			Kind:       kind,
			Scope:      rel.Endpoint,
			RelationID: rel.ID,
			RemoteApp:  rel.RemoteAppName,
		},
		relation: &r,
	}
}

// RelationCreated returns a relation-created event for rel.
func RelationCreated(rel state.Relation) Event {
	return relationEvent(hooks.RelationCreated, rel)
}

// RelationJoined returns a relation-joined event for rel. The remote unit
// defaults to the only remote unit of the relation.
func RelationJoined(rel state.Relation) Event {
	return relationEvent(hooks.RelationJoined, rel)
}

// RelationChanged returns a relation-changed event for rel. The remote
// unit defaults to the only remote unit of the relation.
func RelationChanged(rel state.Relation) Event {
	return relationEvent(hooks.RelationChanged, rel)
}

// RelationDeparted returns a relation-departed event for rel.
func RelationDeparted(rel state.Relation) Event {
	return relationEvent(hooks.RelationDeparted, rel)
}

// RelationBroken returns a relation-broken event for rel.
func RelationBroken(rel state.Relation) Event {
	return relationEvent(hooks.RelationBroken, rel)
}

// WithRemoteUnit returns the relation event about the remote unit with the
// given id.
func (e Event) WithRemoteUnit(id int) Event {
	e.remoteUnitID = &id
	return e
}

// WithDepartingUnit returns the relation-departed event with the given
// remote unit id departing.
func (e Event) WithDepartingUnit(id int) Event {
	e.departingUnitID = &id
	return e
}

func secretEvent(kind hooks.Kind, secret state.Secret, revision int) Event {
	return Event{info: backend.HookInfo{
		Kind:           kind,
		SecretID:       secret.ID,
		SecretLabel:    secret.Label,
		SecretRevision: revision,
	}}
}

// SecretChanged returns a secret-changed event, delivered to observers of
// a secret when a new revision is available.
func SecretChanged(secret state.Secret) Event {
	return secretEvent(hooks.SecretChanged, secret, 0)
}

// SecretRotate returns a secret-rotate event, delivered to the owner.
func SecretRotate(secret state.Secret) Event {
	return secretEvent(hooks.SecretRotate, secret, 0)
}

// SecretExpired returns a secret-expired event for a revision.
func SecretExpired(secret state.Secret, revision int) Event {
	return secretEvent(hooks.SecretExpired, secret, revision)
}

// SecretRemove returns a secret-remove event for a revision no longer
// tracked by any observer.
func SecretRemove(secret state.Secret, revision int) Event {
	return secretEvent(hooks.SecretRemove, secret, revision)
}

// StorageAttached returns a storage-attached event.
func StorageAttached(st state.Storage) Event {
	return Event{info: backend.HookInfo{Kind: hooks.StorageAttached, Scope: st.Name, StorageIndex: st.Index}}
}

// StorageDetaching returns a storage-detaching event.
func StorageDetaching(st state.Storage) Event {
	return Event{info: backend.HookInfo{Kind: hooks.StorageDetaching, Scope: st.Name, StorageIndex: st.Index}}
}

// PebbleReady returns a pebble-ready event for a container.
func PebbleReady(container state.Container) Event {
	return Event{info: backend.HookInfo{Kind: hooks.PebbleReady, Scope: container.Name}}
}

// PebbleCustomNotice returns a pebble-custom-notice event for a notice of
// a container.
func PebbleCustomNotice(container state.Container, notice state.Notice) Event {
	return Event{info: backend.HookInfo{Kind: hooks.PebbleCustomNotice, Scope: container.Name, NoticeID: notice.ID}}
}

// PebbleCheckFailed returns a pebble-check-failed event for a check of a
// container.
func PebbleCheckFailed(container state.Container, check state.CheckInfo) Event {
	return Event{info: backend.HookInfo{Kind: hooks.PebbleCheckFailed, Scope: container.Name, CheckName: check.Name}}
}

// PebbleCheckRecovered returns a pebble-check-recovered event for a check
// of a container.
func PebbleCheckRecovered(container state.Container, check state.CheckInfo) Event {
	return Event{info: backend.HookInfo{Kind: hooks.PebbleCheckRecovered, Scope: container.Name, CheckName: check.Name}}
}

// Action returns an action invocation with the given parameters.
func Action(name string, params map[string]interface{}) Event {
	copied := make(map[string]interface{}, len(params))
	for k, v := range params {
		copied[k] = v
	}
	return Event{info: backend.HookInfo{Kind: hooks.Action, Scope: name, ActionParams: copied}}
}

// WithActionID returns the action with the given id. Without one, the
// context numbers actions sequentially.
func (e Event) WithActionID(id string) Event {
	e.info.ActionID = id
	return e
}

// Custom returns a charm or library defined event.
func Custom(name string, data map[string]string) Event {
	copied := make(map[string]string, len(data))
	for k, v := range data {
		copied[k] = v
	}
	return Event{info: backend.HookInfo{Kind: hooks.Custom, Scope: name, Data: copied}}
}

// resolve fills in the remote and departing units of relation events.
func (e Event) resolve(appName string) backend.HookInfo {
	info := e.info
	if e.relation == nil {
		return info
	}
	rel := *e.relation
	ids := rel.RemoteUnitIDs()
	switch {
	case e.remoteUnitID != nil:
		info.RemoteUnit = rel.RemoteUnitName(*e.remoteUnitID)
	case len(ids) == 1 && info.Kind != hooks.RelationCreated && info.Kind != hooks.RelationBroken:
		info.RemoteUnit = rel.RemoteUnitName(ids[0])
	}
	if info.Kind == hooks.RelationDeparted {
		switch {
		case e.departingUnitID != nil:
			info.DepartingUnit = rel.RemoteUnitName(*e.departingUnitID)
		default:
			info.DepartingUnit = info.RemoteUnit
		}
	}
	if info.RemoteApp == "" {
		info.RemoteApp = appName
	}
	return info
}
