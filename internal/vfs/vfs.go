// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package vfs implements the filesystem of a simulated workload container.
// Paths under a declared mount are served from a directory or file on the
// host; every other path lives in an in-memory tree.
package vfs

import (
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"syscall"

	"github.com/juju/errors"
	"github.com/juju/loggo/v2"
	"github.com/spf13/afero"

	coreerrors "github.com/canonical/operator-sub000/core/errors"
	"github.com/canonical/operator-sub000/state"
)

var logger = loggo.GetLogger("scenario.vfs")

const (
	defaultFileMode = 0644
	defaultDirMode  = 0755
)

type mount struct {
	location string
	fs       afero.Fs
	// base is the path inside fs that location maps to.
	base     string
	readOnly bool
}

// FS is the filesystem of one container.
type FS struct {
	mem    afero.Fs
	host   afero.Fs
	mounts []mount
}

// New returns a filesystem populated with files and serving mounts from the
// host. Mount sources must exist.
func New(mounts map[string]state.Mount, files map[string]state.File) (*FS, error) {
	return newFS(afero.NewOsFs(), mounts, files)
}

func newFS(host afero.Fs, mounts map[string]state.Mount, files map[string]state.File) (*FS, error) {
	fs := &FS{
		mem:  afero.NewMemMapFs(),
		host: host,
	}
	if err := fs.mem.MkdirAll("/", defaultDirMode); err != nil {
		return nil, errors.Trace(err)
	}

	names := make([]string, 0, len(mounts))
	for name := range mounts {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		m := mounts[name]
		if err := fs.addMount(name, m); err != nil {
			return nil, errors.Trace(err)
		}
	}
	// Longest location first so nested mounts win.
	sort.SliceStable(fs.mounts, func(i, j int) bool {
		return len(fs.mounts[i].location) > len(fs.mounts[j].location)
	})

	paths := make([]string, 0, len(files))
	for p := range files {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	for _, p := range paths {
		if err := fs.restore(p, files[p]); err != nil {
			return nil, errors.Annotatef(err, "restoring %q", p)
		}
	}
	return fs, nil
}

func (fs *FS) addMount(name string, m state.Mount) error {
	if !path.IsAbs(m.Location) {
		return coreerrors.Errorf(coreerrors.ProtocolError, "mount %q location %q must be absolute", name, m.Location)
	}
	info, err := fs.host.Stat(m.Source)
	if err != nil {
		return errors.Annotatef(err, "mount %q source", name)
	}
	location := path.Clean(m.Location)
	var hostFs afero.Fs
	base := "/"
	if info.IsDir() {
		hostFs = afero.NewBasePathFs(fs.host, m.Source)
		if err := fs.mem.MkdirAll(location, defaultDirMode); err != nil {
			return errors.Trace(err)
		}
	} else {
		hostFs = afero.NewBasePathFs(fs.host, filepath.Dir(m.Source))
		base = "/" + filepath.Base(m.Source)
		if err := fs.mem.MkdirAll(path.Dir(location), defaultDirMode); err != nil {
			return errors.Trace(err)
		}
	}
	if m.ReadOnly {
		hostFs = afero.NewReadOnlyFs(hostFs)
	}
	fs.mounts = append(fs.mounts, mount{
		location: location,
		fs:       hostFs,
		base:     base,
		readOnly: m.ReadOnly,
	})
	return nil
}

func (fs *FS) restore(p string, f state.File) error {
	if f.Dir {
		mode := f.Mode.Perm()
		if mode == 0 {
			mode = defaultDirMode
		}
		return errors.Trace(fs.mem.MkdirAll(p, mode))
	}
	if err := fs.mem.MkdirAll(path.Dir(p), defaultDirMode); err != nil {
		return errors.Trace(err)
	}
	mode := f.Mode.Perm()
	if mode == 0 {
		mode = defaultFileMode
	}
	return errors.Trace(afero.WriteFile(fs.mem, p, []byte(f.Content), mode))
}

// resolve maps a container path onto the filesystem serving it.
func (fs *FS) resolve(p string) (afero.Fs, string, *mount, error) {
	if !path.IsAbs(p) {
		return nil, "", nil, coreerrors.Errorf(coreerrors.ProtocolError, "paths must be absolute, got %q", p)
	}
	p = path.Clean(p)
	for i := range fs.mounts {
		m := &fs.mounts[i]
		if p == m.location {
			return m.fs, m.base, m, nil
		}
		if strings.HasPrefix(p, m.location+"/") {
			return m.fs, path.Join(m.base, strings.TrimPrefix(p, m.location)), m, nil
		}
	}
	return fs.mem, p, nil, nil
}

func (fs *FS) stat(p string) (os.FileInfo, error) {
	target, inner, _, err := fs.resolve(p)
	if err != nil {
		return nil, errors.Trace(err)
	}
	info, err := target.Stat(inner)
	if err != nil {
		return nil, fs.mapError(p, err)
	}
	return info, nil
}

// checkParents fails with NotDirectory if an ancestor of p is not a
// directory. It reports whether the immediate parent exists.
func (fs *FS) checkParents(p string) (bool, error) {
	dir := path.Dir(p)
	var ancestors []string
	for d := dir; ; d = path.Dir(d) {
		ancestors = append(ancestors, d)
		if d == "/" {
			break
		}
	}
	for i := len(ancestors) - 1; i >= 0; i-- {
		info, err := fs.stat(ancestors[i])
		if errors.Is(err, coreerrors.NotFound) {
			return false, nil
		} else if err != nil {
			return false, errors.Trace(err)
		}
		if !info.IsDir() {
			return false, coreerrors.Errorf(coreerrors.NotDirectory, "%q is not a directory", ancestors[i])
		}
	}
	return true, nil
}

func (fs *FS) mapError(p string, err error) error {
	switch {
	case err == nil:
		return nil
	case os.IsNotExist(err):
		return coreerrors.Errorf(coreerrors.NotFound, "stat %s: no such file or directory", p)
	case os.IsPermission(err):
		return coreerrors.Errorf(coreerrors.PermissionDenied, "%s: permission denied", p)
	case errors.Is(err, syscall.ENOTDIR):
		return coreerrors.Errorf(coreerrors.NotDirectory, "%s: not a directory", p)
	case os.IsExist(err):
		return coreerrors.Errorf(coreerrors.AlreadyExists, "%s: file exists", p)
	}
	return errors.Annotatef(err, "%s", p)
}

func (fs *FS) writable(p string, m *mount) error {
	if m != nil && m.readOnly {
		return coreerrors.Errorf(coreerrors.PermissionDenied, "%s: read-only mount %q", p, m.location)
	}
	return nil
}
