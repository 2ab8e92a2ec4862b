// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package vfs

import (
	"os"
	"path"
	"path/filepath"
	"sort"

	"github.com/dustin/go-humanize"
	"github.com/juju/errors"
	"github.com/spf13/afero"

	coreerrors "github.com/canonical/operator-sub000/core/errors"
	"github.com/canonical/operator-sub000/state"
)

// FileType is the type of a directory entry.
type FileType string

const (
	TypeFile      FileType = "file"
	TypeDirectory FileType = "directory"
)

// FileInfo describes a file or directory.
type FileInfo struct {
	Path string
	Name string
	Type FileType
	Size int64
	Mode os.FileMode
}

// IsDir reports whether the entry is a directory.
func (i FileInfo) IsDir() bool {
	return i.Type == TypeDirectory
}

func newFileInfo(p string, info os.FileInfo) FileInfo {
	fi := FileInfo{
		Path: p,
		Name: path.Base(p),
		Type: TypeFile,
		Mode: info.Mode().Perm(),
	}
	if info.IsDir() {
		fi.Type = TypeDirectory
	} else {
		fi.Size = info.Size()
	}
	return fi
}

// PushOptions holds the options for Push.
type PushOptions struct {
	// MakeDirs creates missing parent directories.
	MakeDirs bool

	// Permissions of the written file. Zero means 0644.
	Permissions os.FileMode
}

// Push writes content to the file at p.
func (fs *FS) Push(p string, content []byte, opts PushOptions) error {
	target, inner, m, err := fs.resolve(p)
	if err != nil {
		return errors.Trace(err)
	}
	p = path.Clean(p)
	if err := fs.writable(p, m); err != nil {
		return errors.Trace(err)
	}
	exists, err := fs.checkParents(p)
	if err != nil {
		return errors.Trace(err)
	}
	if !exists {
		if !opts.MakeDirs {
			return coreerrors.Errorf(coreerrors.NotFound, "parent directory of %q not found", p)
		}
		if err := fs.MakeDir(path.Dir(p), MakeDirOptions{MakeParents: true}); err != nil {
			return errors.Trace(err)
		}
	}
	if info, err := target.Stat(inner); err == nil && info.IsDir() {
		return coreerrors.Errorf(coreerrors.ProtocolError, "cannot write to %q: is a directory", p)
	}
	mode := opts.Permissions.Perm()
	if mode == 0 {
		mode = defaultFileMode
	}
	if err := afero.WriteFile(target, inner, content, mode); err != nil {
		return fs.mapError(p, err)
	}
	// Ensure the requested mode when overwriting an existing file.
	if err := target.Chmod(inner, mode); err != nil {
		return fs.mapError(p, err)
	}
	logger.Tracef("pushed %s to %q", humanize.Bytes(uint64(len(content))), p)
	return nil
}

// Pull returns the content of the file at p.
func (fs *FS) Pull(p string) ([]byte, error) {
	target, inner, _, err := fs.resolve(p)
	if err != nil {
		return nil, errors.Trace(err)
	}
	p = path.Clean(p)
	if _, err := fs.checkParents(p); err != nil {
		return nil, errors.Trace(err)
	}
	info, err := target.Stat(inner)
	if err != nil {
		return nil, fs.mapError(p, err)
	}
	if info.IsDir() {
		return nil, coreerrors.Errorf(coreerrors.ProtocolError, "can only read a regular file: %q", p)
	}
	data, err := afero.ReadFile(target, inner)
	if err != nil {
		return nil, fs.mapError(p, err)
	}
	logger.Tracef("pulled %s from %q", humanize.Bytes(uint64(len(data))), p)
	return data, nil
}

// ListOptions holds the options for List.
type ListOptions struct {
	// Pattern filters entries by a filepath.Match glob on their name.
	Pattern string

	// Itself lists a directory itself rather than its contents.
	Itself bool
}

// List returns the entry at p if it is a file, or the entries of the
// directory at p.
func (fs *FS) List(p string, opts ListOptions) ([]FileInfo, error) {
	target, inner, _, err := fs.resolve(p)
	if err != nil {
		return nil, errors.Trace(err)
	}
	p = path.Clean(p)
	if opts.Pattern != "" {
		if _, err := filepath.Match(opts.Pattern, ""); err != nil {
			return nil, coreerrors.Errorf(coreerrors.ProtocolError, "invalid pattern %q", opts.Pattern)
		}
	}
	if _, err := fs.checkParents(p); err != nil {
		return nil, errors.Trace(err)
	}
	info, err := target.Stat(inner)
	if err != nil {
		return nil, fs.mapError(p, err)
	}
	if !info.IsDir() || opts.Itself {
		return []FileInfo{newFileInfo(p, info)}, nil
	}

	entries := map[string]FileInfo{}
	infos, err := afero.ReadDir(target, inner)
	if err != nil {
		return nil, fs.mapError(p, err)
	}
	for _, entry := range infos {
		child := path.Join(p, entry.Name())
		entries[entry.Name()] = newFileInfo(child, entry)
	}
	// Mount points show up in their parent's listing.
	for _, m := range fs.mounts {
		if m.location == p || path.Dir(m.location) != p {
			continue
		}
		info, err := fs.stat(m.location)
		if err != nil {
			return nil, errors.Trace(err)
		}
		entries[path.Base(m.location)] = newFileInfo(m.location, info)
	}

	result := make([]FileInfo, 0, len(entries))
	for name, entry := range entries {
		if opts.Pattern != "" {
			if ok, _ := filepath.Match(opts.Pattern, name); !ok {
				continue
			}
		}
		result = append(result, entry)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

// MakeDirOptions holds the options for MakeDir.
type MakeDirOptions struct {
	// MakeParents creates missing parents and tolerates an existing
	// directory.
	MakeParents bool

	// Permissions of the created directories. Zero means 0755.
	Permissions os.FileMode
}

// MakeDir creates the directory at p.
func (fs *FS) MakeDir(p string, opts MakeDirOptions) error {
	target, inner, m, err := fs.resolve(p)
	if err != nil {
		return errors.Trace(err)
	}
	p = path.Clean(p)
	if err := fs.writable(p, m); err != nil {
		return errors.Trace(err)
	}
	mode := opts.Permissions.Perm()
	if mode == 0 {
		mode = defaultDirMode
	}
	exists, err := fs.checkParents(p)
	if err != nil {
		return errors.Trace(err)
	}
	if info, err := target.Stat(inner); err == nil {
		if opts.MakeParents && info.IsDir() {
			return nil
		}
		return coreerrors.Errorf(coreerrors.AlreadyExists, "%q already exists", p)
	}
	if !exists {
		if !opts.MakeParents {
			return coreerrors.Errorf(coreerrors.NotFound, "parent directory of %q not found", p)
		}
		if err := fs.MakeDir(path.Dir(p), opts); err != nil {
			return errors.Trace(err)
		}
	}
	if err := target.Mkdir(inner, mode); err != nil {
		return fs.mapError(p, err)
	}
	return nil
}

// Remove deletes the file or directory at p. A directory must be empty
// unless recursive is set. Removing a missing path recursively succeeds.
func (fs *FS) Remove(p string, recursive bool) error {
	target, inner, m, err := fs.resolve(p)
	if err != nil {
		return errors.Trace(err)
	}
	p = path.Clean(p)
	if p == "/" {
		return coreerrors.Errorf(coreerrors.ProtocolError, "cannot remove the root directory")
	}
	if m != nil && m.location == p {
		return coreerrors.Errorf(coreerrors.ProtocolError, "cannot remove mount point %q", p)
	}
	if err := fs.writable(p, m); err != nil {
		return errors.Trace(err)
	}
	if _, err := fs.checkParents(p); err != nil {
		return errors.Trace(err)
	}
	info, err := target.Stat(inner)
	if os.IsNotExist(err) && recursive {
		return nil
	} else if err != nil {
		return fs.mapError(p, err)
	}
	if info.IsDir() {
		for _, other := range fs.mounts {
			if other.location != p && isWithin(other.location, p) {
				return coreerrors.Errorf(coreerrors.ProtocolError, "cannot remove %q: contains mount point %q", p, other.location)
			}
		}
	}
	if recursive {
		return fs.mapError(p, target.RemoveAll(inner))
	}
	if info.IsDir() {
		empty, err := afero.IsEmpty(target, inner)
		if err != nil {
			return fs.mapError(p, err)
		}
		if !empty {
			return coreerrors.Errorf(coreerrors.ProtocolError, "cannot remove %q: directory not empty", p)
		}
	}
	return fs.mapError(p, target.Remove(inner))
}

// Exists reports whether p exists.
func (fs *FS) Exists(p string) (bool, error) {
	_, err := fs.stat(p)
	if errors.Is(err, coreerrors.NotFound) {
		return false, nil
	}
	return err == nil, errors.Trace(err)
}

// IsDir reports whether p exists and is a directory.
func (fs *FS) IsDir(p string) (bool, error) {
	info, err := fs.stat(p)
	if errors.Is(err, coreerrors.NotFound) {
		return false, nil
	} else if err != nil {
		return false, errors.Trace(err)
	}
	return info.IsDir(), nil
}

// Snapshot returns the in-memory tree, excluding mounted paths, keyed by
// absolute path.
func (fs *FS) Snapshot() (map[string]state.File, error) {
	files := map[string]state.File{}
	err := afero.Walk(fs.mem, "/", func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return errors.Trace(err)
		}
		p = path.Clean(filepath.ToSlash(p))
		if p == "/" {
			return nil
		}
		for _, m := range fs.mounts {
			if isWithin(p, m.location) {
				if info.IsDir() && p != m.location {
					return filepath.SkipDir
				}
				return nil
			}
		}
		if info.IsDir() {
			files[p] = state.File{Dir: true, Mode: info.Mode().Perm()}
			return nil
		}
		data, err := afero.ReadFile(fs.mem, p)
		if err != nil {
			return errors.Trace(err)
		}
		files[p] = state.File{Content: string(data), Mode: info.Mode().Perm()}
		return nil
	})
	if err != nil {
		return nil, errors.Trace(err)
	}
	// Directories created only to hold mount points are implied.
	for _, m := range fs.mounts {
		for d := path.Dir(m.location); d != "/"; d = path.Dir(d) {
			if f, ok := files[d]; ok && f.Dir && !fs.hasOwnChildren(files, d) {
				delete(files, d)
			}
		}
	}
	return files, nil
}

func (fs *FS) hasOwnChildren(files map[string]state.File, dir string) bool {
	for p := range files {
		if p != dir && isWithin(p, dir) {
			return true
		}
	}
	return false
}

// isWithin reports whether p is dir or below it.
func isWithin(p, dir string) bool {
	return p == dir || dir == "/" || len(p) > len(dir) && p[:len(dir)] == dir && p[len(dir)] == '/'
}
