// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package backend resolves every operation a charm performs against the
// controller or a workload container against a working copy of the state.
// Each operation either updates the working state, or appends to the
// journal, and returns a typed failure when the real controller would
// refuse it.
package backend

import (
	"fmt"
	"sort"

	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/juju/loggo/v2"
	"github.com/juju/names/v5"
	"github.com/juju/version/v2"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/canonical/operator-sub000/core/charm"
	coreerrors "github.com/canonical/operator-sub000/core/errors"
	"github.com/canonical/operator-sub000/internal/pebble"
	"github.com/canonical/operator-sub000/internal/vfs"
	"github.com/canonical/operator-sub000/state"
)

var logger = loggo.GetLogger("scenario.backend")

// charmLogger receives the messages charms log with juju-log.
var charmLogger = loggo.GetLogger("scenario.charm")

// ErrRestrictedContext is returned by operations that are not available in
// the current hook, such as action operations outside an action.
const ErrRestrictedContext = errors.ConstError("not available in this hook context")

// Config holds everything a Backend needs for one dispatch.
type Config struct {
	// State is the working copy the backend mutates.
	State *state.State

	Meta        *charm.Meta
	CharmConfig *charm.Config
	Actions     *charm.Actions

	AppName string
	UnitID  int

	Hook HookInfo

	Journal     *Journal
	Clock       clock.Clock
	Tracer      trace.Tracer
	JujuVersion version.Number

	// StorageLocations maps storage ids, such as "data/0", to the host
	// directories backing them.
	StorageLocations map[string]string

	// MountSources maps container name and mount name to the host path
	// backing mounts declared without a source.
	MountSources map[string]map[string]string
}

// Validate checks the config.
func (c Config) Validate() error {
	if c.State == nil {
		return errors.NotValidf("nil State")
	}
	if c.Meta == nil {
		return errors.NotValidf("nil Meta")
	}
	if !names.IsValidApplication(c.AppName) {
		return errors.NotValidf("application name %q", c.AppName)
	}
	if c.UnitID < 0 {
		return errors.NotValidf("unit id %d", c.UnitID)
	}
	if c.Journal == nil {
		return errors.NotValidf("nil Journal")
	}
	if c.Clock == nil {
		return errors.NotValidf("nil Clock")
	}
	return nil
}

// Backend is the simulated controller and workload supervisors for one
// dispatch. It must not be used after Close.
type Backend struct {
	state       *state.State
	meta        *charm.Meta
	charmConfig *charm.Config
	actions     *charm.Actions
	appName     string
	unitName    string
	hook        HookInfo
	journal     *Journal
	clock       clock.Clock
	tracer      trace.Tracer
	jujuVersion version.Number

	storageLocations map[string]string
	mountSources     map[string]map[string]string

	containers map[string]*containerHandle
	closed     bool
}

type containerHandle struct {
	fs     *vfs.FS
	client *pebble.Client
}

// New returns a Backend for one dispatch.
func New(config Config) (*Backend, error) {
	if err := config.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	tracer := config.Tracer
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("")
	}
	charmConfig := config.CharmConfig
	if charmConfig == nil {
		charmConfig = charm.NewConfig()
	}
	actions := config.Actions
	if actions == nil {
		actions = charm.NewActions()
	}
	return &Backend{
		state:            config.State,
		meta:             config.Meta,
		charmConfig:      charmConfig,
		actions:          actions,
		appName:          config.AppName,
		unitName:         fmt.Sprintf("%s/%d", config.AppName, config.UnitID),
		hook:             config.Hook,
		journal:          config.Journal,
		clock:            config.Clock,
		tracer:           tracer,
		jujuVersion:      config.JujuVersion,
		storageLocations: config.StorageLocations,
		mountSources:     config.MountSources,
		containers:       map[string]*containerHandle{},
	}, nil
}

// Close writes container filesystems back into the working state and
// detaches the backend from it.
func (b *Backend) Close() error {
	if b.closed {
		return nil
	}
	b.closed = true
	names := make([]string, 0, len(b.containers))
	for name := range b.containers {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		files, err := b.containers[name].fs.Snapshot()
		if err != nil {
			return errors.Annotatef(err, "saving container %q filesystem", name)
		}
		if len(files) == 0 {
			files = nil
		}
		container := b.containerEntry(name)
		container.Files = files
	}
	b.containers = nil
	b.state = nil
	return nil
}

// Hook returns the event being dispatched.
func (b *Backend) Hook() HookInfo {
	return b.hook
}

// Meta returns the charm metadata.
func (b *Backend) Meta() *charm.Meta {
	return b.meta
}

// Actions returns the charm actions.
func (b *Backend) Actions() *charm.Actions {
	return b.actions
}

// UnitName returns the name of the unit under test.
func (b *Backend) UnitName() string {
	return b.unitName
}

// AppName returns the application name of the unit under test.
func (b *Backend) AppName() string {
	return b.appName
}

// Model returns the model hosting the unit.
func (b *Backend) Model() state.Model {
	return b.state.Model
}

// JujuVersion returns the simulated controller version.
func (b *Backend) JujuVersion() version.Number {
	return b.jujuVersion
}

// Tracer returns the tracer charms record spans with.
func (b *Backend) Tracer() trace.Tracer {
	return b.tracer
}

// Clock returns the dispatch clock.
func (b *Backend) Clock() clock.Clock {
	return b.clock
}

// IsLeader reports whether the unit is the leader.
func (b *Backend) IsLeader() (bool, error) {
	return b.state.Leader, nil
}

// PlannedUnits returns the number of units the application should have.
func (b *Backend) PlannedUnits() (int, error) {
	if b.state.PlannedUnits > 0 {
		return b.state.PlannedUnits, nil
	}
	return 1, nil
}

// ConfigGet returns the charm config: defaults overlaid with the values set
// in the state.
func (b *Backend) ConfigGet() (charm.Settings, error) {
	settings := b.charmConfig.DefaultSettings()
	if settings == nil {
		settings = charm.Settings{}
	}
	validated, err := b.charmConfig.ValidateSettings(b.state.Config)
	if err != nil {
		return nil, b.journal.RecordMisuse(errors.Trace(err))
	}
	for k, v := range validated {
		settings[k] = v
	}
	return settings, nil
}

// JujuLog records a charm log message.
func (b *Backend) JujuLog(level, message string) error {
	lvl, ok := loggo.ParseLevel(level)
	if !ok {
		return errors.NotValidf("log level %q", level)
	}
	b.journal.JujuLogs = append(b.journal.JujuLogs, LogLine{Level: lvl.String(), Message: message})
	charmLogger.Logf(lvl, "%s", message)
	return nil
}

// NetworkGet returns the network of a declared binding.
func (b *Backend) NetworkGet(binding string, relationID *int) (state.Network, error) {
	declared := false
	for _, name := range b.meta.Bindings() {
		if name == binding {
			declared = true
			break
		}
	}
	if !declared {
		return state.Network{}, b.journal.RecordMisuse(
			coreerrors.Errorf(coreerrors.NotDeclared, "binding %q", binding))
	}
	if relationID != nil {
		rel, err := b.relation(*relationID)
		if err != nil {
			return state.Network{}, errors.Trace(err)
		}
		if rel.Endpoint != binding {
			return state.Network{}, errors.NotValidf("relation %d is not on binding %q", *relationID, binding)
		}
	}
	return b.state.Network(binding), nil
}

// ResourceGet returns the host path of a declared resource.
func (b *Backend) ResourceGet(name string) (string, error) {
	if _, ok := b.meta.Resources[name]; !ok {
		return "", b.journal.RecordMisuse(
			coreerrors.Errorf(coreerrors.NotDeclared, "resource %q", name))
	}
	path, ok := b.state.Resources[name]
	if !ok {
		return "", coreerrors.Errorf(coreerrors.NotFound, "resource %q not provided", name)
	}
	return path, nil
}

// StoredState returns the stored state content for an owner.
func (b *Backend) StoredState(owner, name string) (map[string]interface{}, bool) {
	st, ok := b.state.StoredState(owner, name)
	if !ok {
		return nil, false
	}
	result := make(map[string]interface{}, len(st.Content))
	for k, v := range st.Content {
		result[k] = v
	}
	return result, true
}

// SetStoredState replaces the stored state content for an owner.
func (b *Backend) SetStoredState(owner, name string, content map[string]interface{}) {
	stored := make([]state.StoredState, 0, len(b.state.StoredStates)+1)
	found := false
	for _, st := range b.state.StoredStates {
		if st.Owner == owner && st.Name == name {
			st.Content = content
			found = true
		}
		stored = append(stored, st)
	}
	if !found {
		stored = append(stored, state.StoredState{Owner: owner, Name: name, Content: content})
	}
	b.state.StoredStates = stored
}

// DeferredEvents returns the queue of deferred events.
func (b *Backend) DeferredEvents() []state.DeferredEvent {
	return append([]state.DeferredEvent(nil), b.state.DeferredEvents...)
}

// SetDeferredEvents replaces the queue of deferred events.
func (b *Backend) SetDeferredEvents(events []state.DeferredEvent) {
	if len(events) == 0 {
		events = nil
	}
	b.state.DeferredEvents = events
}

// RecordEvent appends an emitted event to the journal.
func (b *Backend) RecordEvent(ev EmittedEvent) {
	b.journal.EmittedEvents = append(b.journal.EmittedEvents, ev)
}

// RecordMisuse records a harness misuse detected outside the backend.
func (b *Backend) RecordMisuse(err error) error {
	return b.journal.RecordMisuse(err)
}
