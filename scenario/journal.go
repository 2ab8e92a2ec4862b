// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package scenario

import (
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/canonical/operator-sub000/core/status"
	"github.com/canonical/operator-sub000/internal/backend"
	"github.com/canonical/operator-sub000/internal/pebble"
)

// The accessors below read the journal the context accumulates across
// runs. Action results and failure describe the last run only.

// EmittedEvent records an event delivered to the charm.
type EmittedEvent = backend.EmittedEvent

// LogLine is a message the charm logged.
type LogLine = backend.LogLine

// SecretRevision identifies a removed secret revision.
type SecretRevision = backend.SecretRevision

// ExecRecord records a command the charm ran in a container.
type ExecRecord = pebble.ExecRecord

// EmittedEvents returns the events delivered to the charm, including
// replayed deferred events and emitted custom events.
func (c *Context) EmittedEvents() []EmittedEvent {
	return append([]EmittedEvent(nil), c.journal.EmittedEvents...)
}

// ActionLogs returns the messages logged by actions.
func (c *Context) ActionLogs() []string {
	return append([]string(nil), c.journal.ActionLogs...)
}

// ActionResults returns the results set by the action of the last run.
func (c *Context) ActionResults() map[string]interface{} {
	if c.journal.ActionResults == nil {
		return nil
	}
	result := make(map[string]interface{}, len(c.journal.ActionResults))
	for k, v := range c.journal.ActionResults {
		result[k] = v
	}
	return result
}

// ExecHistory returns the commands run in containers.
func (c *Context) ExecHistory() []ExecRecord {
	return append([]ExecRecord(nil), c.journal.ExecHistory...)
}

// RemovedSecretRevisions returns the secret revisions the charm removed.
func (c *Context) RemovedSecretRevisions() []SecretRevision {
	return append([]SecretRevision(nil), c.journal.RemovedSecretRevisions...)
}

// RequestedStorages returns the number of storage instances requested per
// storage name.
func (c *Context) RequestedStorages() map[string]int {
	result := make(map[string]int, len(c.journal.RequestedStorages))
	for k, v := range c.journal.RequestedStorages {
		result[k] = v
	}
	return result
}

// Spans returns the trace spans ended during runs.
func (c *Context) Spans() []sdktrace.ReadOnlySpan {
	return append([]sdktrace.ReadOnlySpan(nil), c.journal.Spans...)
}

// JujuLogs returns the messages the charm logged.
func (c *Context) JujuLogs() []LogLine {
	return append([]LogLine(nil), c.journal.JujuLogs...)
}

// UnitStatusHistory returns the unit statuses replaced during runs, oldest
// first.
func (c *Context) UnitStatusHistory() []status.StatusInfo {
	return append([]status.StatusInfo(nil), c.journal.UnitStatusHistory...)
}

// AppStatusHistory returns the application statuses replaced during runs,
// oldest first.
func (c *Context) AppStatusHistory() []status.StatusInfo {
	return append([]status.StatusInfo(nil), c.journal.AppStatusHistory...)
}

// WorkloadVersionHistory returns the workload versions replaced during
// runs, oldest first.
func (c *Context) WorkloadVersionHistory() []string {
	return append([]string(nil), c.journal.WorkloadVersionHistory...)
}
