// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package backend

import (
	"fmt"

	"github.com/juju/errors"

	coreerrors "github.com/canonical/operator-sub000/core/errors"
	"github.com/canonical/operator-sub000/state"
)

func (b *Backend) checkStorageDeclared(name string) error {
	if _, ok := b.meta.Storage[name]; !ok {
		return b.journal.RecordMisuse(coreerrors.Errorf(coreerrors.NotDeclared, "storage %q", name))
	}
	return nil
}

// StorageList returns the attached instances of a declared storage.
func (b *Backend) StorageList(name string) ([]state.Storage, error) {
	if err := b.checkStorageDeclared(name); err != nil {
		return nil, errors.Trace(err)
	}
	var result []state.Storage
	for _, st := range b.state.Storages {
		if st.Name == name {
			result = append(result, st)
		}
	}
	return result, nil
}

// StorageLocation returns the host directory backing an attached storage
// instance.
func (b *Backend) StorageLocation(name string, index int) (string, error) {
	if err := b.checkStorageDeclared(name); err != nil {
		return "", errors.Trace(err)
	}
	st, err := b.state.Storage(name, index)
	if err != nil {
		return "", coreerrors.Errorf(coreerrors.NotFound, "storage %s/%d not attached", name, index)
	}
	if st.Location != "" {
		return st.Location, nil
	}
	if location, ok := b.storageLocations[st.ID()]; ok {
		return location, nil
	}
	return "", coreerrors.Errorf(coreerrors.NotFound, "storage %s has no location", st.ID())
}

// StorageAdd requests count more instances of a declared storage. The
// request is journaled; nothing is attached.
func (b *Backend) StorageAdd(name string, count int) error {
	if err := b.checkStorageDeclared(name); err != nil {
		return errors.Trace(err)
	}
	if count < 1 {
		return errors.NotValidf("storage count %d", count)
	}
	meta := b.meta.Storage[name]
	attached := 0
	for _, st := range b.state.Storages {
		if st.Name == name {
			attached++
		}
	}
	if meta.CountMax >= 0 && attached+b.journal.RequestedStorages[name]+count > meta.CountMax {
		return errors.NewNotValid(nil, fmt.Sprintf("adding %d %q storage beyond the maximum of %d", count, name, meta.CountMax))
	}
	b.journal.RequestedStorages[name] += count
	return nil
}
