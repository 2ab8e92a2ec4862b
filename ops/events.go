// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package ops

import (
	"github.com/canonical/pebble/client"
	"github.com/juju/errors"

	coreerrors "github.com/canonical/operator-sub000/core/errors"
	"github.com/canonical/operator-sub000/core/hooks"
	"github.com/canonical/operator-sub000/core/status"
	"github.com/canonical/operator-sub000/internal/backend"
	"github.com/canonical/operator-sub000/internal/pebble"
)

// Event is delivered to observers. The set of implementations is closed:
// LifecycleEvent, RelationEvent, SecretEvent, StorageEvent, ActionEvent,
// WorkloadEvent, CheckEvent, NoticeEvent, CollectStatusEvent and
// CustomEvent.
type Event interface {
	// ID returns the event identifier, such as "db-relation-changed".
	ID() string

	// Kind returns the kind of event.
	Kind() hooks.Kind

	// Handle identifies this delivery of the event. A deferred event keeps
	// its handle when replayed.
	Handle() string

	// Framework returns the framework delivering the event.
	Framework() *Framework

	// Defer asks for the event to be delivered again, to the same
	// observer, at the start of the next dispatch.
	Defer()

	base() *baseEvent
}

type baseEvent struct {
	framework *Framework
	info      backend.HookInfo
	handle    string
	deferred  bool
}

func (e *baseEvent) ID() string            { return e.info.EventID() }
func (e *baseEvent) Kind() hooks.Kind      { return e.info.Kind }
func (e *baseEvent) Handle() string        { return e.handle }
func (e *baseEvent) Framework() *Framework { return e.framework }
func (e *baseEvent) Defer()                { e.deferred = true }
func (e *baseEvent) base() *baseEvent      { return e }

// LifecycleEvent is one of the unscoped unit hooks, such as install,
// config-changed or leader-elected.
type LifecycleEvent struct {
	baseEvent
}

// RelationEvent is a relation lifecycle hook.
type RelationEvent struct {
	baseEvent

	Relation *Relation

	// App is the remote application.
	App string

	// Unit is the remote unit the hook is about, if any.
	Unit string

	// DepartingUnit is set on relation-departed.
	DepartingUnit string
}

// SecretEvent is a secret hook.
type SecretEvent struct {
	baseEvent

	Secret *Secret

	// Revision is set on secret-remove and secret-expired.
	Revision int
}

// StorageEvent is a storage hook.
type StorageEvent struct {
	baseEvent

	Storage *Storage
}

// WorkloadEvent is delivered when a workload container is ready.
type WorkloadEvent struct {
	baseEvent

	Workload *Container
}

// CheckEvent is delivered when a health check starts failing or recovers.
type CheckEvent struct {
	baseEvent

	Workload *Container
	Info     *client.CheckInfo
}

// NoticeEvent is delivered for a custom workload notice.
type NoticeEvent struct {
	baseEvent

	Workload *Container
	Notice   *client.Notice
}

// ActionEvent is an action invocation. Actions cannot be deferred.
type ActionEvent struct {
	baseEvent
}

// Name returns the action name.
func (e *ActionEvent) Name() string {
	return e.info.Scope
}

// ActionID returns the id of the running action.
func (e *ActionEvent) ActionID() string {
	return e.info.ActionID
}

// Params returns the action parameters with defaults filled in.
func (e *ActionEvent) Params() (map[string]interface{}, error) {
	params, err := e.framework.backend.ActionGet()
	return params, errors.Trace(err)
}

// Log records a progress message.
func (e *ActionEvent) Log(message string) error {
	return errors.Trace(e.framework.backend.ActionLog(message))
}

// SetResults merges results into those of the action.
func (e *ActionEvent) SetResults(results map[string]interface{}) error {
	return errors.Trace(e.framework.backend.ActionSetResults(results))
}

// Fail marks the action as failed. The observer should return normally
// afterwards.
func (e *ActionEvent) Fail(message string) error {
	return errors.Trace(e.framework.backend.ActionFail(message))
}

// Defer is a misuse for actions; the run fails.
func (e *ActionEvent) Defer() {
	_ = e.framework.backend.RecordMisuse(coreerrors.Errorf(coreerrors.Inconsistent,
		"cannot defer action %q", e.info.Scope))
}

// CollectStatusEvent gathers the statuses the charm wants to report. The
// highest priority status added becomes the unit, or application, status.
type CollectStatusEvent struct {
	baseEvent

	// App is set for collect-app-status, which only the leader receives.
	App bool

	statuses []status.StatusInfo
}

// AddStatus adds a candidate status.
func (e *CollectStatusEvent) AddStatus(s status.Status, message string) {
	e.statuses = append(e.statuses, status.StatusInfo{Status: s, Message: message})
}

// Defer is a misuse for status collection; the run fails.
func (e *CollectStatusEvent) Defer() {
	_ = e.framework.backend.RecordMisuse(coreerrors.Errorf(coreerrors.Inconsistent,
		"cannot defer %q", e.ID()))
}

// CustomEvent is a charm or library defined event.
type CustomEvent struct {
	baseEvent
}

// Name returns the event name.
func (e *CustomEvent) Name() string {
	return e.info.Scope
}

// Data returns the event payload.
func (e *CustomEvent) Data() map[string]string {
	result := make(map[string]string, len(e.info.Data))
	for k, v := range e.info.Data {
		result[k] = v
	}
	return result
}

// newEvent builds the event variant for info.
func (f *Framework) newEvent(info backend.HookInfo) (Event, error) {
	base := baseEvent{framework: f, info: info}
	kind := info.Kind
	switch {
	case kind.IsRelation():
		rel, err := f.model.relationByID(info.RelationID)
		if err != nil {
			return nil, errors.Trace(err)
		}
		return &RelationEvent{
			baseEvent:     base,
			Relation:      rel,
			App:           info.RemoteApp,
			Unit:          info.RemoteUnit,
			DepartingUnit: info.DepartingUnit,
		}, nil
	case kind.IsSecret():
		return &SecretEvent{
			baseEvent: base,
			Secret:    &Secret{backend: f.backend, id: info.SecretID, label: info.SecretLabel},
			Revision:  info.SecretRevision,
		}, nil
	case kind.IsStorage():
		st, err := f.model.storage(info.Scope, info.StorageIndex)
		if err != nil {
			return nil, errors.Trace(err)
		}
		return &StorageEvent{baseEvent: base, Storage: st}, nil
	case kind == hooks.PebbleReady:
		container, err := f.model.Container(info.Scope)
		if err != nil {
			return nil, errors.Trace(err)
		}
		return &WorkloadEvent{baseEvent: base, Workload: container}, nil
	case kind == hooks.PebbleCheckFailed || kind == hooks.PebbleCheckRecovered:
		container, err := f.model.Container(info.Scope)
		if err != nil {
			return nil, errors.Trace(err)
		}
		checks, err := container.Checks(pebble.ChecksOptions{Names: []string{info.CheckName}})
		if err != nil {
			return nil, errors.Trace(err)
		}
		if len(checks) == 0 {
			return nil, coreerrors.Errorf(coreerrors.NotFound, "check %q in container %q", info.CheckName, info.Scope)
		}
		return &CheckEvent{baseEvent: base, Workload: container, Info: checks[0]}, nil
	case kind == hooks.PebbleCustomNotice:
		container, err := f.model.Container(info.Scope)
		if err != nil {
			return nil, errors.Trace(err)
		}
		notice, err := container.Notice(info.NoticeID)
		if err != nil {
			return nil, errors.Trace(err)
		}
		return &NoticeEvent{baseEvent: base, Workload: container, Notice: notice}, nil
	case kind.IsAction():
		return &ActionEvent{baseEvent: base}, nil
	case kind.IsCollectStatus():
		return &CollectStatusEvent{baseEvent: base, App: kind == hooks.CollectAppStatus}, nil
	case kind == hooks.Custom:
		return &CustomEvent{baseEvent: base}, nil
	}
	return &LifecycleEvent{baseEvent: base}, nil
}
