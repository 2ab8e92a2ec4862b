// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package hooks enumerates the events the controller can deliver to a charm
// and derives their identifiers from charm metadata.
package hooks

import (
	"sort"
	"strings"

	"github.com/juju/errors"
	"github.com/juju/version/v2"

	"github.com/canonical/operator-sub000/core/charm"
	coreerrors "github.com/canonical/operator-sub000/core/errors"
)

// Kind enumerates the different kinds of events that exist.
type Kind string

const (
	// None of these hooks are ever associated with a relation; each of them
	// represents a change to the state of the unit as a whole. The values
	// themselves are all valid hook names.
	Install       Kind = "install"
	Start         Kind = "start"
	ConfigChanged Kind = "config-changed"
	UpgradeCharm  Kind = "upgrade-charm"
	Stop          Kind = "stop"
	Remove        Kind = "remove"
	UpdateStatus  Kind = "update-status"
	LeaderElected Kind = "leader-elected"

	// These hooks require an associated relation, and the name of the relation
	// unit whose change triggered the hook. The hook file names that these
	// kinds represent will be prefixed by the relation name; for example,
	// "db-relation-joined".
	RelationCreated  Kind = "relation-created"
	RelationJoined   Kind = "relation-joined"
	RelationChanged  Kind = "relation-changed"
	RelationDeparted Kind = "relation-departed"

	// This hook requires an associated relation. The represented hook file name
	// will be prefixed by the relation name, just like the other Relation* Kind
	// values.
	RelationBroken Kind = "relation-broken"

	// These hooks require an associated storage. The hook file names that these
	// kinds represent will be prefixed by the storage name; for example,
	// "shared-fs-storage-attached".
	StorageAttached  Kind = "storage-attached"
	StorageDetaching Kind = "storage-detaching"

	// These hooks require an associated workload container. The hook file
	// names will be prefixed by the container name; for example
	// "db-pebble-ready".
	PebbleReady          Kind = "pebble-ready"
	PebbleCustomNotice   Kind = "pebble-custom-notice"
	PebbleCheckFailed    Kind = "pebble-check-failed"
	PebbleCheckRecovered Kind = "pebble-check-recovered"

	// These hooks require an associated secret.
	SecretChanged Kind = "secret-changed"
	SecretExpired Kind = "secret-expired"
	SecretRemove  Kind = "secret-remove"
	SecretRotate  Kind = "secret-rotate"

	// Action is run for a named action; the identifier is the action name
	// followed by "-action", for example "snapshot-action".
	Action Kind = "action"

	// Collect status events are emitted by the framework at the end of
	// every dispatch rather than by the controller.
	CollectUnitStatus Kind = "collect-unit-status"
	CollectAppStatus  Kind = "collect-app-status"

	// Custom events are defined and emitted by charm or library code. The
	// scope is the event name.
	Custom Kind = "custom"
)

var unitHooks = []Kind{
	Install,
	Start,
	ConfigChanged,
	UpgradeCharm,
	Stop,
	Remove,
	UpdateStatus,
	LeaderElected,
}

var relationHooks = []Kind{
	RelationCreated,
	RelationJoined,
	RelationChanged,
	RelationDeparted,
	RelationBroken,
}

var storageHooks = []Kind{
	StorageAttached,
	StorageDetaching,
}

var workloadHooks = []Kind{
	PebbleReady,
	PebbleCustomNotice,
	PebbleCheckFailed,
	PebbleCheckRecovered,
}

var secretHooks = []Kind{
	SecretChanged,
	SecretExpired,
	SecretRemove,
	SecretRotate,
}

// UnitHooks returns all known unit hook kinds.
func UnitHooks() []Kind {
	return append([]Kind(nil), unitHooks...)
}

// RelationHooks returns all known relation hook kinds.
func RelationHooks() []Kind {
	return append([]Kind(nil), relationHooks...)
}

// StorageHooks returns all known storage hook kinds.
func StorageHooks() []Kind {
	return append([]Kind(nil), storageHooks...)
}

// WorkloadHooks returns all known workload hook kinds.
func WorkloadHooks() []Kind {
	return append([]Kind(nil), workloadHooks...)
}

// SecretHooks returns all secret hook kinds.
func SecretHooks() []Kind {
	return append([]Kind(nil), secretHooks...)
}

func (kind Kind) in(kinds []Kind) bool {
	for _, k := range kinds {
		if k == kind {
			return true
		}
	}
	return false
}

// IsRelation returns whether the Kind represents a relation hook.
func (kind Kind) IsRelation() bool { return kind.in(relationHooks) }

// IsStorage returns whether the Kind represents a storage hook.
func (kind Kind) IsStorage() bool { return kind.in(storageHooks) }

// IsWorkload returns whether the Kind represents a workload hook.
func (kind Kind) IsWorkload() bool { return kind.in(workloadHooks) }

// IsSecret returns whether the Kind represents a secret hook.
func (kind Kind) IsSecret() bool { return kind.in(secretHooks) }

// IsAction returns whether the Kind is an action.
func (kind Kind) IsAction() bool { return kind == Action }

// IsCollectStatus returns whether the Kind is emitted by the framework to
// gather statuses.
func (kind Kind) IsCollectStatus() bool {
	return kind == CollectUnitStatus || kind == CollectAppStatus
}

// IsKnown returns whether kind is a member of the closed set of kinds.
func (kind Kind) IsKnown() bool {
	return kind.in(unitHooks) || kind.IsRelation() || kind.IsStorage() ||
		kind.IsWorkload() || kind.IsSecret() || kind.IsAction() ||
		kind.IsCollectStatus() || kind == Custom
}

// Scoped returns whether identifiers of this kind are prefixed (or, for
// actions and custom events, formed) by the name of a declared entity.
func (kind Kind) Scoped() bool {
	return kind.IsRelation() || kind.IsStorage() || kind.IsWorkload() ||
		kind.IsAction() || kind == Custom
}

// EventID returns the identifier of the event of this kind for the given
// scope: the relation endpoint, storage, container, action or custom event
// name. Unscoped kinds ignore scope.
func (kind Kind) EventID(scope string) string {
	switch {
	case kind == Custom:
		return scope
	case kind.IsAction():
		return scope + "-action"
	case kind.Scoped():
		return scope + "-" + string(kind)
	}
	return string(kind)
}

// Validate checks that scope is appropriate for the kind.
func (kind Kind) Validate(scope string) error {
	if !kind.IsKnown() {
		return errors.NotValidf("event kind %q", kind)
	}
	if kind.Scoped() && scope == "" {
		return errors.NotValidf("%q event without a scope", kind)
	}
	if !kind.Scoped() && scope != "" {
		return errors.NotValidf("%q event with scope %q", kind, scope)
	}
	return nil
}

// ParseEventID splits an identifier into its kind and scope, using the
// supplied metadata to resolve scoped identifiers. Identifiers that match no
// declared entity are reported as custom events.
func ParseEventID(id string, meta *charm.Meta, actions *charm.Actions) (Kind, string) {
	for _, kind := range unitHooks {
		if id == string(kind) {
			return kind, ""
		}
	}
	for _, kind := range secretHooks {
		if id == string(kind) {
			return kind, ""
		}
	}
	if id == string(CollectUnitStatus) || id == string(CollectAppStatus) {
		return Kind(id), ""
	}
	match := func(kinds []Kind, names []string) (Kind, string, bool) {
		for _, kind := range kinds {
			for _, name := range names {
				if id == kind.EventID(name) {
					return kind, name, true
				}
			}
		}
		return "", "", false
	}
	if meta != nil {
		if kind, scope, ok := match(relationHooks, keys(meta.CombinedRelations())); ok {
			return kind, scope
		}
		if kind, scope, ok := match(storageHooks, keys(meta.Storage)); ok {
			return kind, scope
		}
		if kind, scope, ok := match(workloadHooks, keys(meta.Containers)); ok {
			return kind, scope
		}
	}
	if actions != nil && strings.HasSuffix(id, "-action") {
		name := strings.TrimSuffix(id, "-action")
		if _, ok := actions.ActionSpecs[name]; ok {
			return Action, name
		}
	}
	return Custom, id
}

func keys[T any](m map[string]T) []string {
	result := make([]string, 0, len(m))
	for k := range m {
		result = append(result, k)
	}
	sort.Strings(result)
	return result
}

// Catalog returns the sorted identifiers of every controller event the
// charm described by meta and actions can receive.
func Catalog(meta *charm.Meta, actions *charm.Actions) []string {
	var ids []string
	for _, kind := range unitHooks {
		ids = append(ids, kind.EventID(""))
	}
	for _, kind := range secretHooks {
		ids = append(ids, kind.EventID(""))
	}
	ids = append(ids, CollectUnitStatus.EventID(""), CollectAppStatus.EventID(""))
	if meta != nil {
		for _, name := range keys(meta.CombinedRelations()) {
			for _, kind := range relationHooks {
				ids = append(ids, kind.EventID(name))
			}
		}
		for _, name := range keys(meta.Storage) {
			for _, kind := range storageHooks {
				ids = append(ids, kind.EventID(name))
			}
		}
		for _, name := range keys(meta.Containers) {
			for _, kind := range workloadHooks {
				ids = append(ids, kind.EventID(name))
			}
		}
	}
	if actions != nil {
		for _, name := range keys(actions.ActionSpecs) {
			ids = append(ids, Action.EventID(name))
		}
	}
	sort.Strings(ids)
	return ids
}

var minimumVersions = map[Kind]version.Number{
	SecretChanged:        version.MustParse("3.0.2"),
	SecretExpired:        version.MustParse("3.0.2"),
	SecretRemove:         version.MustParse("3.0.2"),
	SecretRotate:         version.MustParse("3.0.2"),
	PebbleCustomNotice:   version.MustParse("3.4.0"),
	PebbleCheckFailed:    version.MustParse("3.6.0"),
	PebbleCheckRecovered: version.MustParse("3.6.0"),
}

// MinimumJujuVersion returns the oldest controller version that can deliver
// events of this kind.
func (kind Kind) MinimumJujuVersion() version.Number {
	return minimumVersions[kind]
}

// CheckSupported returns an error satisfying errors.Is(err,
// coreerrors.NotSupported) if a controller at jujuVersion cannot deliver
// events of this kind.
func (kind Kind) CheckSupported(jujuVersion version.Number) error {
	min, ok := minimumVersions[kind]
	if !ok {
		return nil
	}
	if jujuVersion.Compare(min) < 0 {
		return coreerrors.Errorf(coreerrors.NotSupported, "%q events need juju %s or later, simulating %s", kind, min, jujuVersion)
	}
	return nil
}
