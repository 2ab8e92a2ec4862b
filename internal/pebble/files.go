// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package pebble

import (
	"github.com/juju/errors"

	"github.com/canonical/operator-sub000/internal/vfs"
)

// Push writes content to path in the container.
func (c *Client) Push(path string, content []byte, opts vfs.PushOptions) error {
	if err := c.connect(); err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(c.fs.Push(path, content, opts))
}

// Pull reads the file at path in the container.
func (c *Client) Pull(path string) ([]byte, error) {
	if err := c.connect(); err != nil {
		return nil, errors.Trace(err)
	}
	data, err := c.fs.Pull(path)
	return data, errors.Trace(err)
}

// ListFiles lists path in the container.
func (c *Client) ListFiles(path string, opts vfs.ListOptions) ([]vfs.FileInfo, error) {
	if err := c.connect(); err != nil {
		return nil, errors.Trace(err)
	}
	infos, err := c.fs.List(path, opts)
	return infos, errors.Trace(err)
}

// MakeDir creates a directory in the container.
func (c *Client) MakeDir(path string, opts vfs.MakeDirOptions) error {
	if err := c.connect(); err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(c.fs.MakeDir(path, opts))
}

// RemovePath removes path in the container.
func (c *Client) RemovePath(path string, recursive bool) error {
	if err := c.connect(); err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(c.fs.Remove(path, recursive))
}

// Exists reports whether path exists in the container.
func (c *Client) Exists(path string) (bool, error) {
	if err := c.connect(); err != nil {
		return false, errors.Trace(err)
	}
	ok, err := c.fs.Exists(path)
	return ok, errors.Trace(err)
}

// IsDir reports whether path is a directory in the container.
func (c *Client) IsDir(path string) (bool, error) {
	if err := c.connect(); err != nil {
		return false, errors.Trace(err)
	}
	ok, err := c.fs.IsDir(path)
	return ok, errors.Trace(err)
}
