// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package backend

import (
	"fmt"

	"github.com/juju/errors"

	coreerrors "github.com/canonical/operator-sub000/core/errors"
	"github.com/canonical/operator-sub000/internal/pebble"
	"github.com/canonical/operator-sub000/internal/vfs"
	"github.com/canonical/operator-sub000/state"
)

// containerEntry returns the working copy of a container in the state, or
// nil if the state has no such container.
func (b *Backend) containerEntry(name string) *state.Container {
	for i := range b.state.Containers {
		if b.state.Containers[i].Name == name {
			return &b.state.Containers[i]
		}
	}
	return nil
}

// Container returns the workload client of a container. The container
// filesystem is built on first use and written back to the state on Close.
func (b *Backend) Container(name string) (*pebble.Client, error) {
	if handle, ok := b.containers[name]; ok {
		return handle.client, nil
	}
	if _, ok := b.meta.Containers[name]; !ok {
		return nil, b.journal.RecordMisuse(coreerrors.Errorf(coreerrors.NotDeclared, "container %q", name))
	}
	container := b.containerEntry(name)
	if container == nil {
		return nil, b.journal.RecordMisuse(coreerrors.Errorf(coreerrors.Inconsistent,
			"container %q is declared but missing from the state", name))
	}
	mounts, err := b.containerMounts(container)
	if err != nil {
		return nil, errors.Trace(err)
	}
	fs, err := vfs.New(mounts, container.Files)
	if err != nil {
		return nil, errors.Annotatef(err, "building container %q filesystem", name)
	}
	client, err := pebble.New(pebble.Config{
		Container: container,
		FS:        fs,
		Clock:     b.clock,
		OnExec: func(record pebble.ExecRecord) {
			b.journal.ExecHistory = append(b.journal.ExecHistory, record)
		},
		OnMisuse: b.journal.RecordMisuse,
	})
	if err != nil {
		return nil, errors.Trace(err)
	}
	b.containers[name] = &containerHandle{fs: fs, client: client}
	return client, nil
}

// containerMounts combines the mounts set in the state with the storage
// mounts the charm metadata declares for the container.
func (b *Backend) containerMounts(container *state.Container) (map[string]state.Mount, error) {
	mounts := make(map[string]state.Mount, len(container.Mounts))
	for name, m := range container.Mounts {
		if m.Source == "" {
			m.Source = b.mountSources[container.Name][name]
		}
		if m.Source == "" {
			return nil, b.journal.RecordMisuse(coreerrors.Errorf(coreerrors.Inconsistent,
				"container %q mount %q has no source", container.Name, name))
		}
		mounts[name] = m
	}
	for _, m := range b.meta.Containers[container.Name].Mounts {
		if m.Storage == "" || m.Location == "" {
			continue
		}
		st, err := b.state.Storage(m.Storage, 0)
		if err != nil {
			// Unattached storage is simply not mounted.
			continue
		}
		source := st.Location
		if source == "" {
			source = b.storageLocations[st.ID()]
		}
		if source == "" {
			continue
		}
		key := fmt.Sprintf("storage:%s", m.Storage)
		if _, ok := mounts[key]; ok {
			continue
		}
		mounts[key] = state.Mount{Location: m.Location, Source: source}
	}
	return mounts, nil
}
