// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package scenario runs charm code against one event at a time, with the
// controller and workload containers simulated from a declared state.
//
//	ctx, err := scenario.NewContext(scenario.ContextConfig{
//		NewCharm: newCharm,
//		Meta:     meta,
//	})
//	...
//	out, err := ctx.Run(scenario.Start(), state.State{Leader: true})
//
// A run never mutates its input state. Side effects that are not part of
// the state are kept in the context's journal.
package scenario

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/juju/clock"
	"github.com/juju/clock/testclock"
	"github.com/juju/errors"
	"github.com/juju/loggo/v2"
	"github.com/juju/names/v5"
	"github.com/juju/version/v2"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	"github.com/canonical/operator-sub000/core/charm"
	coreerrors "github.com/canonical/operator-sub000/core/errors"
	"github.com/canonical/operator-sub000/core/hooks"
	"github.com/canonical/operator-sub000/core/status"
	"github.com/canonical/operator-sub000/internal/backend"
	"github.com/canonical/operator-sub000/ops"
	"github.com/canonical/operator-sub000/state"
)

var logger = loggo.GetLogger("scenario")

// DefaultJujuVersion is the controller version simulated unless the
// context is configured with another.
var DefaultJujuVersion = version.MustParse("3.6.0")

// DefaultEpoch is the time reported by a context configured without a
// clock. It never advances, so timestamps written to the output state
// depend only on the input.
var DefaultEpoch = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

// ContextConfig holds the charm and the simulated environment of a
// Context.
type ContextConfig struct {
	// NewCharm builds the charm on a fresh framework for every run.
	NewCharm ops.NewCharmFunc

	// CharmDir is read for metadata.yaml, config.yaml and actions.yaml
	// when Meta is not set.
	CharmDir string

	Meta    *charm.Meta
	Config  *charm.Config
	Actions *charm.Actions

	// AppName defaults to the charm name.
	AppName string
	UnitID  int

	JujuVersion version.Number

	// Clock stamps status and secret times. A clock fixed at
	// DefaultEpoch is used if nil.
	Clock clock.Clock

	// StatusOrdering ranks statuses added while collecting status.
	// DefaultOrdering is used if empty.
	StatusOrdering status.Ordering

	// Collector, if set, records run metrics.
	Collector *Collector

	// TempDir is where directories backing storage and mounts are
	// created. The system default is used if empty.
	TempDir string
}

// Validate checks the config.
func (c ContextConfig) Validate() error {
	if c.NewCharm == nil {
		return errors.NotValidf("nil NewCharm")
	}
	if c.Meta == nil && c.CharmDir == "" {
		return errors.NotValidf("missing Meta and CharmDir")
	}
	if c.Meta != nil {
		if err := c.Meta.Check(); err != nil {
			return errors.Annotate(err, "charm metadata")
		}
	}
	if c.AppName != "" && !names.IsValidApplication(c.AppName) {
		return errors.NotValidf("application name %q", c.AppName)
	}
	if c.UnitID < 0 {
		return errors.NotValidf("unit id %d", c.UnitID)
	}
	if len(c.StatusOrdering) > 0 {
		if err := c.StatusOrdering.Validate(); err != nil {
			return errors.Trace(err)
		}
	}
	return nil
}

// Context runs a charm against events. Runs are sequential; a Context is
// not safe for concurrent use.
type Context struct {
	newCharm ops.NewCharmFunc
	spec     CharmSpec
	unitID   int
	clock    clock.Clock
	ordering status.Ordering
	metrics  *Collector
	tempDir  string

	journal  *backend.Journal
	spans    *tracetest.SpanRecorder
	provider *sdktrace.TracerProvider

	tempDirs         []string
	storageLocations map[string]string
	mountSources     map[string]map[string]string
	actionSeq        int
	closed           bool
}

// NewContext returns a Context for the configured charm.
func NewContext(config ContextConfig) (*Context, error) {
	if err := config.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	meta, charmConfig, actions := config.Meta, config.Config, config.Actions
	if meta == nil {
		dir, err := charm.ReadCharmDir(config.CharmDir)
		if err != nil {
			return nil, errors.Trace(err)
		}
		meta = dir.Meta
		if charmConfig == nil {
			charmConfig = dir.Config
		}
		if actions == nil {
			actions = dir.Actions
		}
	}
	if charmConfig == nil {
		charmConfig = charm.NewConfig()
	}
	if actions == nil {
		actions = charm.NewActions()
	}
	appName := config.AppName
	if appName == "" {
		appName = meta.Name
	}
	if !names.IsValidApplication(appName) {
		return nil, errors.NotValidf("application name %q", appName)
	}
	jujuVersion := config.JujuVersion
	if jujuVersion == version.Zero {
		jujuVersion = DefaultJujuVersion
	}
	clk := config.Clock
	if clk == nil {
		clk = testclock.NewClock(DefaultEpoch)
	}
	ordering := config.StatusOrdering
	if len(ordering) == 0 {
		ordering = status.DefaultOrdering
	}
	spans := tracetest.NewSpanRecorder()
	return &Context{
		newCharm: config.NewCharm,
		spec: CharmSpec{
			Meta:        meta,
			Config:      charmConfig,
			Actions:     actions,
			AppName:     appName,
			JujuVersion: jujuVersion,
		},
		unitID:           config.UnitID,
		clock:            clk,
		ordering:         ordering,
		metrics:          config.Collector,
		tempDir:          config.TempDir,
		journal:          backend.NewJournal(),
		spans:            spans,
		provider:         sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(spans)),
		storageLocations: map[string]string{},
		mountSources:     map[string]map[string]string{},
	}, nil
}

// UnitName returns the name of the simulated unit.
func (c *Context) UnitName() string {
	return fmt.Sprintf("%s/%d", c.spec.AppName, c.unitID)
}

// Spec returns what the context knows about the charm.
func (c *Context) Spec() CharmSpec {
	return c.spec
}

// ActionFailedError is returned by Run when the charm failed the action
// it was running. It carries what the action recorded before failing.
type ActionFailedError struct {
	Message string
	Logs    []string
	Results map[string]interface{}

	// State is the output state of the run.
	State state.State
}

// Error implements error.
func (e *ActionFailedError) Error() string {
	return fmt.Sprintf("action failed: %s", e.Message)
}

// Run dispatches one event to a freshly built charm and returns the
// resulting state. The input state is not modified.
//
// An error returned by the charm is returned unchanged. Harness misuse,
// such as referencing undeclared entities or running an unmatched
// command, fails the run even if the charm ignored the error. A failed
// action is reported as *ActionFailedError.
func (c *Context) Run(ev Event, input state.State) (state.State, error) {
	if c.closed {
		return state.State{}, errors.New("context closed")
	}
	started := c.clock.Now()
	out, outcome, err := c.run(ev, input)
	c.metrics.observe(ev.Kind(), outcome, c.clock.Now().Sub(started))
	if err == nil {
		c.metrics.setDeferred(len(out.DeferredEvents))
	}
	return out, err
}

func (c *Context) run(ev Event, input state.State) (state.State, string, error) {
	if problems := append(CheckState(c.spec, input), CheckEvent(c.spec, ev, input)...); len(problems) > 0 {
		for _, p := range problems[1:] {
			logger.Debugf("also: %v", p)
		}
		outcome := outcomeInconsistent
		if errors.Is(problems[0], coreerrors.NotDeclared) {
			outcome = outcomeMisuse
		}
		return state.State{}, outcome, problems[0]
	}

	working := input.Copy()
	info := ev.resolve(c.spec.AppName)
	if info.Kind == hooks.Action && info.ActionID == "" {
		c.actionSeq++
		info.ActionID = strconv.Itoa(c.actionSeq)
	}
	if err := c.prepareDirs(working); err != nil {
		return state.State{}, outcomeMisuse, errors.Trace(err)
	}

	c.journal.StartDispatch()
	logsBefore := len(c.journal.ActionLogs)
	tracer := c.provider.Tracer("charmscenario")
	b, err := backend.New(backend.Config{
		State:            &working,
		Meta:             c.spec.Meta,
		CharmConfig:      c.spec.Config,
		Actions:          c.spec.Actions,
		AppName:          c.spec.AppName,
		UnitID:           c.unitID,
		Hook:             info,
		Journal:          c.journal,
		Clock:            c.clock,
		Tracer:           tracer,
		JujuVersion:      c.spec.JujuVersion,
		StorageLocations: c.storageLocations,
		MountSources:     c.mountSources,
	})
	if err != nil {
		return state.State{}, outcomeMisuse, errors.Trace(err)
	}

	runErr := c.dispatch(b, tracer, info)
	if err := b.Close(); err != nil && runErr == nil {
		runErr = errors.Trace(err)
	}
	c.journal.Spans = c.spans.Ended()
	if runErr != nil {
		if len(c.journal.Misuse) > 0 && errors.Is(runErr, c.journal.Misuse[0]) {
			return state.State{}, outcomeMisuse, runErr
		}
		return state.State{}, outcomeCharmError, runErr
	}
	if len(c.journal.Misuse) > 0 {
		return state.State{}, outcomeMisuse, c.journal.Misuse[0]
	}
	if c.journal.ActionFailed {
		logs := append([]string(nil), c.journal.ActionLogs[logsBefore:]...)
		return state.State{}, outcomeActionFailed, &ActionFailedError{
			Message: c.journal.ActionFailureMessage,
			Logs:    logs,
			Results: c.journal.ActionResults,
			State:   working,
		}
	}
	return working, outcomeSuccess, nil
}

func (c *Context) dispatch(b *backend.Backend, tracer trace.Tracer, info backend.HookInfo) error {
	ctx, span := tracer.Start(context.Background(), "charmscenario.run", trace.WithAttributes(
		attribute.String("juju.charm", c.spec.Meta.Name),
		attribute.String("juju.event", info.EventID()),
	))
	defer span.End()

	f, err := ops.NewFramework(ops.FrameworkConfig{Backend: b, StatusOrdering: c.ordering})
	if err != nil {
		return errors.Trace(err)
	}
	if err := c.newCharm(f); err != nil {
		return err
	}
	logger.Debugf("dispatching %q to %s", info.EventID(), c.UnitName())
	return f.Dispatch(ctx, info)
}

// prepareDirs creates the host directories backing attached storage and
// mounts declared without a source. They are reused by later runs and
// removed by Close.
func (c *Context) prepareDirs(st state.State) error {
	for _, s := range st.Storages {
		if s.Location != "" {
			continue
		}
		if _, ok := c.storageLocations[s.ID()]; ok {
			continue
		}
		dir, err := c.mkdirTemp(fmt.Sprintf("storage-%s-%d-", s.Name, s.Index))
		if err != nil {
			return errors.Trace(err)
		}
		c.storageLocations[s.ID()] = dir
	}
	for _, container := range st.Containers {
		for name, m := range container.Mounts {
			if m.Source != "" {
				continue
			}
			if _, ok := c.mountSources[container.Name][name]; ok {
				continue
			}
			dir, err := c.mkdirTemp(fmt.Sprintf("mount-%s-%s-", container.Name, name))
			if err != nil {
				return errors.Trace(err)
			}
			if c.mountSources[container.Name] == nil {
				c.mountSources[container.Name] = map[string]string{}
			}
			c.mountSources[container.Name][name] = dir
		}
	}
	return nil
}

func (c *Context) mkdirTemp(pattern string) (string, error) {
	dir, err := os.MkdirTemp(c.tempDir, filepath.Base(pattern))
	if err != nil {
		return "", errors.Annotate(err, "creating temporary directory")
	}
	c.tempDirs = append(c.tempDirs, dir)
	return dir, nil
}

// StorageLocation returns the host directory backing an attached storage
// instance declared without a location, once a run has created it.
func (c *Context) StorageLocation(st state.Storage) (string, bool) {
	if st.Location != "" {
		return st.Location, true
	}
	dir, ok := c.storageLocations[st.ID()]
	return dir, ok
}

// MountSource returns the host path backing a container mount declared
// without a source, once a run has created it.
func (c *Context) MountSource(container, mount string) (string, bool) {
	dir, ok := c.mountSources[container][mount]
	return dir, ok
}

// RunInitialHooks runs the events a controller delivers to a new unit:
// install, relation-created for every relation, leader-elected if the
// unit is the leader, config-changed, start and pebble-ready for every
// container that can connect.
func (c *Context) RunInitialHooks(input state.State) (state.State, error) {
	events := []Event{Install()}
	for _, rel := range input.Relations {
		events = append(events, RelationCreated(rel))
	}
	if input.Leader {
		events = append(events, LeaderElected())
	}
	events = append(events, ConfigChanged(), Start())
	for _, container := range input.Containers {
		if container.CanConnect {
			events = append(events, PebbleReady(container))
		}
	}
	st := input
	for _, ev := range events {
		out, err := c.Run(ev, st)
		if err != nil {
			return state.State{}, err
		}
		st = out
	}
	return st, nil
}

// RunWithInitialHooks runs the initial hooks and then ev.
func (c *Context) RunWithInitialHooks(ev Event, input state.State) (state.State, error) {
	st, err := c.RunInitialHooks(input)
	if err != nil {
		return state.State{}, err
	}
	return c.Run(ev, st)
}

// Close removes the temporary directories created by runs and shuts down
// span capture.
func (c *Context) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	var firstErr error
	for _, dir := range c.tempDirs {
		if err := os.RemoveAll(dir); err != nil && firstErr == nil {
			firstErr = errors.Annotatef(err, "removing %q", dir)
		}
	}
	c.tempDirs = nil
	if err := c.provider.Shutdown(context.Background()); err != nil && firstErr == nil {
		firstErr = errors.Trace(err)
	}
	return firstErr
}
