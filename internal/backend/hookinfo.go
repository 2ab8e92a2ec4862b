// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package backend

import (
	"sort"
	"strconv"
	"strings"

	"github.com/juju/errors"

	"github.com/canonical/operator-sub000/core/hooks"
)

// HookInfo describes the event being dispatched: its kind, the entity it
// is scoped to and the payload the controller would pass in the hook
// environment.
type HookInfo struct {
	Kind hooks.Kind

	// Scope is the relation endpoint, container, storage, action or
	// custom event name.
	Scope string

	RelationID    int
	RemoteApp     string
	RemoteUnit    string
	DepartingUnit string

	SecretID       string
	SecretLabel    string
	SecretRevision int

	StorageIndex int

	NoticeID  string
	CheckName string

	ActionID     string
	ActionParams map[string]interface{}

	// Data is the payload of a custom event.
	Data map[string]string
}

// EventID returns the identifier of the event.
func (h HookInfo) EventID() string {
	return h.Kind.EventID(h.Scope)
}

const dataPrefix = "data."

// Snapshot flattens the hook info so the event can be deferred and rebuilt
// on a later dispatch. Action parameters are not preserved; actions cannot
// be deferred.
func (h HookInfo) Snapshot() map[string]string {
	snap := map[string]string{
		"kind": string(h.Kind),
	}
	set := func(key, value string) {
		if value != "" {
			snap[key] = value
		}
	}
	set("scope", h.Scope)
	if h.Kind.IsRelation() {
		set("relation-id", strconv.Itoa(h.RelationID))
	}
	set("remote-app", h.RemoteApp)
	set("remote-unit", h.RemoteUnit)
	set("departing-unit", h.DepartingUnit)
	set("secret-id", h.SecretID)
	set("secret-label", h.SecretLabel)
	if h.SecretRevision != 0 {
		set("secret-revision", strconv.Itoa(h.SecretRevision))
	}
	if h.Kind.IsStorage() {
		set("storage-index", strconv.Itoa(h.StorageIndex))
	}
	set("notice-id", h.NoticeID)
	set("check-name", h.CheckName)
	for k, v := range h.Data {
		snap[dataPrefix+k] = v
	}
	return snap
}

// HookInfoFromSnapshot rebuilds hook info saved by Snapshot.
func HookInfoFromSnapshot(snap map[string]string) (HookInfo, error) {
	info := HookInfo{
		Kind:          hooks.Kind(snap["kind"]),
		Scope:         snap["scope"],
		RemoteApp:     snap["remote-app"],
		RemoteUnit:    snap["remote-unit"],
		DepartingUnit: snap["departing-unit"],
		SecretID:      snap["secret-id"],
		SecretLabel:   snap["secret-label"],
		NoticeID:      snap["notice-id"],
		CheckName:     snap["check-name"],
	}
	if err := info.Kind.Validate(info.Scope); err != nil {
		return HookInfo{}, errors.Annotate(err, "deferred event")
	}
	atoi := func(key string) (int, error) {
		v, ok := snap[key]
		if !ok {
			return 0, nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0, errors.NotValidf("deferred event %s %q", key, v)
		}
		return n, nil
	}
	var err error
	if info.RelationID, err = atoi("relation-id"); err != nil {
		return HookInfo{}, errors.Trace(err)
	}
	if info.SecretRevision, err = atoi("secret-revision"); err != nil {
		return HookInfo{}, errors.Trace(err)
	}
	if info.StorageIndex, err = atoi("storage-index"); err != nil {
		return HookInfo{}, errors.Trace(err)
	}
	keys := make([]string, 0, len(snap))
	for k := range snap {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if !strings.HasPrefix(k, dataPrefix) {
			continue
		}
		if info.Data == nil {
			info.Data = map[string]string{}
		}
		info.Data[strings.TrimPrefix(k, dataPrefix)] = snap[k]
	}
	return info, nil
}
