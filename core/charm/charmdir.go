// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package charm

import (
	"os"
	"path/filepath"

	"github.com/juju/errors"
)

// CharmDir holds the declarations read from an unpacked charm directory.
type CharmDir struct {
	Path    string
	Meta    *Meta
	Config  *Config
	Actions *Actions
}

// ReadCharmDir reads metadata.yaml and, when present, config.yaml and
// actions.yaml from the charm directory at path.
func ReadCharmDir(path string) (*CharmDir, error) {
	dir := &CharmDir{Path: path}

	f, err := os.Open(filepath.Join(path, "metadata.yaml"))
	if err != nil {
		return nil, errors.Annotatef(err, "reading charm %q", path)
	}
	defer f.Close()
	if dir.Meta, err = ReadMeta(f); err != nil {
		return nil, errors.Annotatef(err, "reading charm %q", path)
	}

	dir.Config = NewConfig()
	if f, err := os.Open(filepath.Join(path, "config.yaml")); err == nil {
		defer f.Close()
		if dir.Config, err = ReadConfig(f); err != nil {
			return nil, errors.Annotatef(err, "reading charm %q", path)
		}
	} else if !os.IsNotExist(err) {
		return nil, errors.Trace(err)
	}

	dir.Actions = NewActions()
	if f, err := os.Open(filepath.Join(path, "actions.yaml")); err == nil {
		defer f.Close()
		if dir.Actions, err = ReadActionsYaml(f); err != nil {
			return nil, errors.Annotatef(err, "reading charm %q", path)
		}
	} else if !os.IsNotExist(err) {
		return nil, errors.Trace(err)
	}
	return dir, nil
}
