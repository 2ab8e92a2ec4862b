// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package ops is the surface charm code is written against: a Framework
// to observe events on, the event variants, and a Model giving access to
// the unit's view of the controller and its workload containers.
package ops

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/juju/collections/set"
	"github.com/juju/errors"
	"github.com/juju/loggo/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/canonical/operator-sub000/core/charm"
	coreerrors "github.com/canonical/operator-sub000/core/errors"
	"github.com/canonical/operator-sub000/core/hooks"
	"github.com/canonical/operator-sub000/core/status"
	"github.com/canonical/operator-sub000/internal/backend"
	"github.com/canonical/operator-sub000/state"
)

var logger = loggo.GetLogger("scenario.ops")

// Handler observes an event.
type Handler func(Event) error

// NewCharmFunc builds a charm on a fresh framework by registering its
// observers. It is called once per dispatch.
type NewCharmFunc func(*Framework) error

var customEventName = regexp.MustCompile(`^[a-z][a-z0-9]*(?:[_-][a-z0-9]+)*$`)

// FrameworkConfig holds the dependencies of a Framework.
type FrameworkConfig struct {
	Backend *backend.Backend

	// StatusOrdering picks the status reported when several are added
	// while collecting status.
	StatusOrdering status.Ordering
}

// Validate checks the config.
func (c FrameworkConfig) Validate() error {
	if c.Backend == nil {
		return errors.NotValidf("nil Backend")
	}
	if err := c.StatusOrdering.Validate(); err != nil {
		return errors.Annotate(err, "status ordering")
	}
	return nil
}

type observer struct {
	key     string
	handler Handler
}

// Framework dispatches events to the observers a charm registered.
type Framework struct {
	backend  *backend.Backend
	model    *Model
	ordering status.Ordering
	ctx      context.Context

	known     set.Strings
	custom    set.Strings
	observers map[string][]observer

	stored    []*StoredState
	deferred  []state.DeferredEvent
	handleSeq int
}

// NewFramework returns a framework bound to one dispatch.
func NewFramework(config FrameworkConfig) (*Framework, error) {
	if err := config.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	b := config.Backend
	f := &Framework{
		backend:   b,
		model:     &Model{backend: b},
		ordering:  config.StatusOrdering,
		ctx:       context.Background(),
		known:     set.NewStrings(hooks.Catalog(b.Meta(), b.Actions())...),
		custom:    set.NewStrings(),
		observers: map[string][]observer{},
		deferred:  b.DeferredEvents(),
	}
	for _, ev := range f.deferred {
		if n := handleNumber(ev.Handle); n >= f.handleSeq {
			f.handleSeq = n + 1
		}
	}
	return f, nil
}

func handleNumber(handle string) int {
	open := strings.LastIndex(handle, "[")
	if open < 0 || !strings.HasSuffix(handle, "]") {
		return -1
	}
	n, err := strconv.Atoi(handle[open+1 : len(handle)-1])
	if err != nil {
		return -1
	}
	return n
}

// Model returns the unit's view of the model.
func (f *Framework) Model() *Model {
	return f.model
}

// Meta returns the charm metadata.
func (f *Framework) Meta() *charm.Meta {
	return f.backend.Meta()
}

// Context returns the context of the event being observed. Spans started
// from it are children of the event span.
func (f *Framework) Context() context.Context {
	return f.ctx
}

// Tracer returns the tracer for charm spans.
func (f *Framework) Tracer() trace.Tracer {
	return f.backend.Tracer()
}

// Log logs a message at the given level, such as "INFO" or "WARNING".
func (f *Framework) Log(level, message string) error {
	return errors.Trace(f.backend.JujuLog(level, message))
}

// RegisterCustomEvent declares a charm or library defined event so it can
// be observed and emitted.
func (f *Framework) RegisterCustomEvent(name string) error {
	if !customEventName.MatchString(name) {
		return errors.NotValidf("custom event name %q", name)
	}
	if f.known.Contains(name) {
		return coreerrors.Errorf(coreerrors.AlreadyExists, "event %q is a controller event", name)
	}
	f.custom.Add(name)
	return nil
}

// Observe registers handler for the event with the given identifier, such
// as "start", "db-relation-changed" or "workload-pebble-ready".
// Observing an event the charm cannot receive is a misuse.
func (f *Framework) Observe(eventID string, handler Handler) error {
	if handler == nil {
		return errors.NotValidf("nil handler for %q", eventID)
	}
	if !f.known.Contains(eventID) && !f.custom.Contains(eventID) {
		return f.backend.RecordMisuse(coreerrors.Errorf(coreerrors.NotDeclared, "event %q", eventID))
	}
	key := fmt.Sprintf("%s[%d]", eventID, len(f.observers[eventID]))
	f.observers[eventID] = append(f.observers[eventID], observer{key: key, handler: handler})
	return nil
}

// Emit delivers a custom event to its observers immediately.
func (f *Framework) Emit(name string, data map[string]string) error {
	if !f.custom.Contains(name) {
		return f.backend.RecordMisuse(coreerrors.Errorf(coreerrors.NotDeclared, "custom event %q", name))
	}
	info := backend.HookInfo{Kind: hooks.Custom, Scope: name, Data: data}
	return f.emitTo(info, f.observers[name], "")
}

// Dispatch delivers one event: deferred events are re-emitted first, then
// the event itself, then status is collected and framework state saved.
// An error returned by an observer is returned unchanged.
func (f *Framework) Dispatch(ctx context.Context, info backend.HookInfo) error {
	if ctx != nil {
		f.ctx = ctx
	}
	if err := f.reemit(); err != nil {
		return err
	}
	// Status is collected below for every dispatch.
	if !info.Kind.IsCollectStatus() {
		if err := f.emitTo(info, f.observers[info.EventID()], ""); err != nil {
			return err
		}
	}
	if err := f.collectStatus(); err != nil {
		return err
	}
	f.commit()
	return nil
}

func (f *Framework) reemit() error {
	queue := f.deferred
	f.deferred = nil
	for _, pending := range queue {
		info, err := backend.HookInfoFromSnapshot(pending.Snapshot)
		if err != nil {
			logger.Warningf("dropping deferred event %q: %v", pending.Handle, err)
			continue
		}
		var target []observer
		for _, o := range f.observers[pending.EventID] {
			if o.key == pending.Observer {
				target = append(target, o)
			}
		}
		if len(target) == 0 {
			logger.Warningf("dropping deferred event %q: no observer %q", pending.Handle, pending.Observer)
			continue
		}
		if err := f.emitTo(info, target, pending.Handle); err != nil {
			return err
		}
	}
	return nil
}

// emitTo delivers info to observers. A non-empty handle marks a replay of
// a deferred event.
func (f *Framework) emitTo(info backend.HookInfo, observers []observer, handle string) error {
	eventID := info.EventID()
	parent := f.ctx
	ctx, span := f.backend.Tracer().Start(parent, eventID, trace.WithAttributes(
		attribute.String("juju.unit", f.backend.UnitName()),
		attribute.String("juju.event.kind", string(info.Kind)),
		attribute.Bool("juju.event.reemitted", handle != ""),
	))
	f.ctx = ctx
	defer func() {
		span.End()
		f.ctx = parent
	}()

	ev, err := f.newEvent(info)
	if err != nil {
		return errors.Trace(err)
	}
	record := backend.EmittedEvent{ID: eventID, Kind: info.Kind, Reemitted: handle != ""}
	for _, o := range observers {
		base := ev.base()
		base.deferred = false
		base.handle = handle
		if base.handle == "" {
			base.handle = fmt.Sprintf("%s[%d]", eventID, f.handleSeq)
		}
		logger.Tracef("emitting %q to %s", eventID, o.key)
		if err := o.handler(ev); err != nil {
			f.backend.RecordEvent(record)
			return err
		}
		if base.deferred {
			record.Deferred = true
			if handle == "" {
				f.handleSeq++
			}
			f.deferred = append(f.deferred, state.DeferredEvent{
				Handle:   base.handle,
				Observer: o.key,
				EventID:  eventID,
				Snapshot: info.Snapshot(),
			})
		}
	}
	f.backend.RecordEvent(record)
	return nil
}

func (f *Framework) collectStatus() error {
	leader, err := f.backend.IsLeader()
	if err != nil {
		return errors.Trace(err)
	}
	if leader {
		if err := f.collect(hooks.CollectAppStatus); err != nil {
			return err
		}
	}
	return f.collect(hooks.CollectUnitStatus)
}

func (f *Framework) collect(kind hooks.Kind) error {
	observers := f.observers[kind.EventID("")]
	if len(observers) == 0 {
		return nil
	}
	info := backend.HookInfo{Kind: kind}
	ctx, span := f.backend.Tracer().Start(f.ctx, info.EventID())
	parent := f.ctx
	f.ctx = ctx
	defer func() {
		span.End()
		f.ctx = parent
	}()
	ev := &CollectStatusEvent{baseEvent: baseEvent{framework: f, info: info}, App: kind == hooks.CollectAppStatus}
	for _, o := range observers {
		if err := o.handler(ev); err != nil {
			f.backend.RecordEvent(backend.EmittedEvent{ID: info.EventID(), Kind: kind})
			return err
		}
	}
	f.backend.RecordEvent(backend.EmittedEvent{ID: info.EventID(), Kind: kind})
	if len(ev.statuses) == 0 {
		return nil
	}
	highest, err := f.ordering.Highest(ev.statuses)
	if err != nil {
		return errors.Annotatef(err, "collecting %s", info.EventID())
	}
	return errors.Trace(f.backend.StatusSet(highest, ev.App))
}

// commit saves stored state and the deferred queue.
func (f *Framework) commit() {
	for _, st := range f.stored {
		if len(st.data) == 0 && !st.loaded {
			continue
		}
		f.backend.SetStoredState(st.owner, st.name, st.data)
	}
	f.backend.SetDeferredEvents(f.deferred)
}

// StoredState returns the persistent state of an owner, usually a charm
// or library type name. Repeated calls return the same value.
func (f *Framework) StoredState(owner, name string) *StoredState {
	for _, st := range f.stored {
		if st.owner == owner && st.name == name {
			return st
		}
	}
	data, ok := f.backend.StoredState(owner, name)
	if !ok {
		data = map[string]interface{}{}
	}
	st := &StoredState{owner: owner, name: name, data: data, loaded: ok}
	f.stored = append(f.stored, st)
	return st
}

// StoredState is charm data that persists across dispatches.
type StoredState struct {
	owner  string
	name   string
	data   map[string]interface{}
	loaded bool
}

// Get returns a stored value.
func (s *StoredState) Get(key string) (interface{}, bool) {
	v, ok := s.data[key]
	return v, ok
}

// Set stores a value.
func (s *StoredState) Set(key string, value interface{}) {
	s.data[key] = value
}

// SetDefault stores value unless key already has one.
func (s *StoredState) SetDefault(key string, value interface{}) {
	if _, ok := s.data[key]; !ok {
		s.data[key] = value
	}
}

// Delete removes a stored value.
func (s *StoredState) Delete(key string) {
	delete(s.data, key)
}
