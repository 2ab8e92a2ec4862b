// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package vfs_test

import (
	"os"
	"path/filepath"

	"github.com/juju/testing"
	jc "github.com/juju/testing/checkers"
	gc "gopkg.in/check.v1"

	coreerrors "github.com/canonical/operator-sub000/core/errors"
	"github.com/canonical/operator-sub000/internal/vfs"
	"github.com/canonical/operator-sub000/state"
)

type vfsSuite struct {
	testing.IsolationSuite

	hostDir  string
	hostFile string
	fs       *vfs.FS
}

var _ = gc.Suite(&vfsSuite{})

func (s *vfsSuite) SetUpTest(c *gc.C) {
	s.IsolationSuite.SetUpTest(c)
	s.hostDir = c.MkDir()
	err := os.WriteFile(filepath.Join(s.hostDir, "seed.txt"), []byte("seeded"), 0644)
	c.Assert(err, jc.ErrorIsNil)

	s.hostFile = filepath.Join(c.MkDir(), "app.conf")
	err = os.WriteFile(s.hostFile, []byte("key=value"), 0644)
	c.Assert(err, jc.ErrorIsNil)
	readOnly := c.MkDir()

	s.fs, err = vfs.New(map[string]state.Mount{
		"data":   {Location: "/var/lib/data", Source: s.hostDir},
		"config": {Location: "/etc/app.conf", Source: s.hostFile},
		"ro":     {Location: "/opt/ro", Source: readOnly, ReadOnly: true},
	}, map[string]state.File{
		"/etc/motd":  {Content: "hello", Mode: 0600},
		"/home/user": {Dir: true},
	})
	c.Assert(err, jc.ErrorIsNil)
}

func (s *vfsSuite) TestPushPull(c *gc.C) {
	err := s.fs.Push("/tmp/x", []byte("content"), vfs.PushOptions{})
	c.Assert(err, jc.ErrorIs, coreerrors.NotFound)

	err = s.fs.Push("/tmp/x", []byte("content"), vfs.PushOptions{MakeDirs: true})
	c.Assert(err, jc.ErrorIsNil)
	data, err := s.fs.Pull("/tmp/x")
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(string(data), gc.Equals, "content")

	data, err = s.fs.Pull("/etc/motd")
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(string(data), gc.Equals, "hello")
}

func (s *vfsSuite) TestRelativePath(c *gc.C) {
	_, err := s.fs.Pull("etc/motd")
	c.Assert(err, jc.ErrorIs, coreerrors.ProtocolError)
	_, err = s.fs.Exists("motd")
	c.Assert(err, jc.ErrorIs, coreerrors.ProtocolError)
}

func (s *vfsSuite) TestPullErrors(c *gc.C) {
	_, err := s.fs.Pull("/missing")
	c.Assert(err, jc.ErrorIs, coreerrors.NotFound)
	_, err = s.fs.Pull("/home/user")
	c.Assert(err, jc.ErrorIs, coreerrors.ProtocolError)
	_, err = s.fs.Pull("/etc/motd/inner")
	c.Assert(err, jc.ErrorIs, coreerrors.NotDirectory)
}

func (s *vfsSuite) TestPushUnderFile(c *gc.C) {
	err := s.fs.Push("/etc/motd/inner", []byte("x"), vfs.PushOptions{MakeDirs: true})
	c.Assert(err, jc.ErrorIs, coreerrors.NotDirectory)
}

func (s *vfsSuite) TestMountedDirectory(c *gc.C) {
	data, err := s.fs.Pull("/var/lib/data/seed.txt")
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(string(data), gc.Equals, "seeded")

	err = s.fs.Push("/var/lib/data/sub/out.txt", []byte("written"), vfs.PushOptions{MakeDirs: true})
	c.Assert(err, jc.ErrorIsNil)
	host, err := os.ReadFile(filepath.Join(s.hostDir, "sub", "out.txt"))
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(string(host), gc.Equals, "written")
}

func (s *vfsSuite) TestMountedFile(c *gc.C) {
	data, err := s.fs.Pull("/etc/app.conf")
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(string(data), gc.Equals, "key=value")

	err = s.fs.Push("/etc/app.conf", []byte("key=other"), vfs.PushOptions{})
	c.Assert(err, jc.ErrorIsNil)
	host, err := os.ReadFile(s.hostFile)
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(string(host), gc.Equals, "key=other")
}

func (s *vfsSuite) TestReadOnlyMount(c *gc.C) {
	err := s.fs.Push("/opt/ro/file", []byte("x"), vfs.PushOptions{})
	c.Assert(err, jc.ErrorIs, coreerrors.PermissionDenied)
	err = s.fs.MakeDir("/opt/ro/dir", vfs.MakeDirOptions{})
	c.Assert(err, jc.ErrorIs, coreerrors.PermissionDenied)
}

func (s *vfsSuite) TestList(c *gc.C) {
	err := s.fs.Push("/etc/other.conf", []byte("1"), vfs.PushOptions{})
	c.Assert(err, jc.ErrorIsNil)

	entries, err := s.fs.List("/etc", vfs.ListOptions{})
	c.Assert(err, jc.ErrorIsNil)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name)
	}
	c.Assert(names, jc.DeepEquals, []string{"app.conf", "motd", "other.conf"})

	entries, err = s.fs.List("/etc", vfs.ListOptions{Pattern: "*.conf"})
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(entries, gc.HasLen, 2)

	entries, err = s.fs.List("/etc/motd", vfs.ListOptions{})
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(entries, gc.HasLen, 1)
	c.Assert(entries[0].Path, gc.Equals, "/etc/motd")
	c.Assert(entries[0].Size, gc.Equals, int64(5))
	c.Assert(entries[0].Mode, gc.Equals, os.FileMode(0600))

	entries, err = s.fs.List("/var/lib", vfs.ListOptions{})
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(entries, gc.HasLen, 1)
	c.Assert(entries[0].IsDir(), jc.IsTrue)
	c.Assert(entries[0].Name, gc.Equals, "data")

	entries, err = s.fs.List("/home/user", vfs.ListOptions{Itself: true})
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(entries, gc.HasLen, 1)
	c.Assert(entries[0].Type, gc.Equals, vfs.TypeDirectory)

	_, err = s.fs.List("/nowhere", vfs.ListOptions{})
	c.Assert(err, jc.ErrorIs, coreerrors.NotFound)
}

func (s *vfsSuite) TestMakeDir(c *gc.C) {
	err := s.fs.MakeDir("/a/b/c", vfs.MakeDirOptions{})
	c.Assert(err, jc.ErrorIs, coreerrors.NotFound)

	err = s.fs.MakeDir("/a/b/c", vfs.MakeDirOptions{MakeParents: true})
	c.Assert(err, jc.ErrorIsNil)
	isDir, err := s.fs.IsDir("/a/b")
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(isDir, jc.IsTrue)

	err = s.fs.MakeDir("/a/b/c", vfs.MakeDirOptions{})
	c.Assert(err, jc.ErrorIs, coreerrors.AlreadyExists)
	err = s.fs.MakeDir("/a/b/c", vfs.MakeDirOptions{MakeParents: true})
	c.Assert(err, jc.ErrorIsNil)
	err = s.fs.MakeDir("/etc/motd", vfs.MakeDirOptions{MakeParents: true})
	c.Assert(err, jc.ErrorIs, coreerrors.AlreadyExists)
}

func (s *vfsSuite) TestRemove(c *gc.C) {
	err := s.fs.Push("/srv/a/b.txt", []byte("x"), vfs.PushOptions{MakeDirs: true})
	c.Assert(err, jc.ErrorIsNil)

	err = s.fs.Remove("/srv/a", false)
	c.Assert(err, gc.ErrorMatches, `cannot remove "/srv/a": directory not empty`)
	err = s.fs.Remove("/srv/a", true)
	c.Assert(err, jc.ErrorIsNil)
	exists, err := s.fs.Exists("/srv/a/b.txt")
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(exists, jc.IsFalse)

	err = s.fs.Remove("/srv/a", false)
	c.Assert(err, jc.ErrorIs, coreerrors.NotFound)
	c.Assert(s.fs.Remove("/srv/a", true), jc.ErrorIsNil)

	err = s.fs.Remove("/var/lib/data", true)
	c.Assert(err, gc.ErrorMatches, `cannot remove mount point "/var/lib/data"`)
	err = s.fs.Remove("/var", true)
	c.Assert(err, jc.ErrorIs, coreerrors.ProtocolError)
}

func (s *vfsSuite) TestSnapshot(c *gc.C) {
	err := s.fs.Push("/tmp/x", []byte("content"), vfs.PushOptions{MakeDirs: true})
	c.Assert(err, jc.ErrorIsNil)
	err = s.fs.Push("/var/lib/data/out", []byte("on host"), vfs.PushOptions{})
	c.Assert(err, jc.ErrorIsNil)

	files, err := s.fs.Snapshot()
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(files["/tmp/x"], jc.DeepEquals, state.File{Content: "content", Mode: 0644})
	c.Assert(files["/etc/motd"], jc.DeepEquals, state.File{Content: "hello", Mode: 0600})
	c.Assert(files["/home/user"].Dir, jc.IsTrue)
	_, ok := files["/var/lib/data/out"]
	c.Assert(ok, jc.IsFalse)
	_, ok = files["/var/lib"]
	c.Assert(ok, jc.IsFalse)

	again, err := vfs.New(nil, files)
	c.Assert(err, jc.ErrorIsNil)
	data, err := again.Pull("/tmp/x")
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(string(data), gc.Equals, "content")
}
