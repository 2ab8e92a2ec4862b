// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

/*
Package core holds the concepts and pure logic of the charm simulator's
domain: charm metadata, event kinds, workload statuses, secrets, workload
plans and the error kinds shared by every layer.

When adding to core:

  - it's fine to import from any subpackage of core
  - but never import from state, internal, ops or scenario
  - no mutable global state

Nothing in core touches the filesystem, except reading a charm directory.
*/
package core
