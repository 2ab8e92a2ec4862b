// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package backend

import (
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/canonical/operator-sub000/core/hooks"
	"github.com/canonical/operator-sub000/core/status"
	"github.com/canonical/operator-sub000/internal/pebble"
)

// EmittedEvent records an event delivered to the charm.
type EmittedEvent struct {
	ID   string
	Kind hooks.Kind

	// Deferred is set when an observer deferred the event.
	Deferred bool

	// Reemitted is set when the event was replayed from the deferred
	// queue.
	Reemitted bool
}

// LogLine is a message logged by the charm with juju-log.
type LogLine struct {
	Level   string
	Message string
}

// SecretRevision identifies a removed secret revision.
type SecretRevision struct {
	ID       string
	Revision int
}

// Journal accumulates the side effects of dispatches that are not part of
// the state. It is not safe for concurrent use; dispatches are sequential.
type Journal struct {
	EmittedEvents          []EmittedEvent
	ActionLogs             []string
	ActionResults          map[string]interface{}
	ActionFailed           bool
	ActionFailureMessage   string
	ExecHistory            []pebble.ExecRecord
	RemovedSecretRevisions []SecretRevision
	RequestedStorages      map[string]int
	Spans                  []sdktrace.ReadOnlySpan
	JujuLogs               []LogLine
	UnitStatusHistory      []status.StatusInfo
	AppStatusHistory       []status.StatusInfo
	WorkloadVersionHistory []string

	// Misuse holds harness misuse detected during the last dispatch.
	Misuse []error
}

// NewJournal returns an empty journal.
func NewJournal() *Journal {
	return &Journal{
		RequestedStorages: map[string]int{},
	}
}

// StartDispatch resets the entries that describe a single dispatch.
func (j *Journal) StartDispatch() {
	j.ActionResults = nil
	j.ActionFailed = false
	j.ActionFailureMessage = ""
	j.Misuse = nil
}

// RecordMisuse appends a misuse error and returns it.
func (j *Journal) RecordMisuse(err error) error {
	j.Misuse = append(j.Misuse, err)
	return err
}
