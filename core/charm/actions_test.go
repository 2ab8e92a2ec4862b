// Copyright 2014 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package charm_test

import (
	"strings"

	jc "github.com/juju/testing/checkers"
	gc "gopkg.in/check.v1"

	"github.com/canonical/operator-sub000/core/charm"
	coreerrors "github.com/canonical/operator-sub000/core/errors"
)

const sampleActions = `
snapshot:
  description: Take a snapshot of the database.
  params:
    filename:
      type: string
      description: The name of the snapshot file.
    compression:
      type: string
      default: gzip
  required: [filename]
  additionalProperties: false
backup:
  description: Back up everything.
  parallel: true
  execution-group: storage
`

type ActionsSuite struct{}

var _ = gc.Suite(&ActionsSuite{})

func (s *ActionsSuite) readActions(c *gc.C) *charm.Actions {
	actions, err := charm.ReadActionsYaml(strings.NewReader(sampleActions))
	c.Assert(err, jc.ErrorIsNil)
	return actions
}

func (s *ActionsSuite) TestReadActionsYaml(c *gc.C) {
	actions := s.readActions(c)
	c.Assert(actions.ActionSpecs, gc.HasLen, 2)
	snapshot := actions.ActionSpecs["snapshot"]
	c.Assert(snapshot.Description, gc.Equals, "Take a snapshot of the database.")
	c.Assert(snapshot.Params["title"], gc.Equals, "snapshot")
	c.Assert(snapshot.Params["type"], gc.Equals, "object")

	backup := actions.ActionSpecs["backup"]
	c.Assert(backup.Parallel, jc.IsTrue)
	c.Assert(backup.ExecutionGroup, gc.Equals, "storage")
}

func (s *ActionsSuite) TestValidateParams(c *gc.C) {
	spec := s.readActions(c).ActionSpecs["snapshot"]
	err := spec.ValidateParams(map[string]interface{}{"filename": "x.tar.gz"})
	c.Assert(err, jc.ErrorIsNil)
}

func (s *ActionsSuite) TestValidateParamsMissingRequired(c *gc.C) {
	spec := s.readActions(c).ActionSpecs["snapshot"]
	err := spec.ValidateParams(nil)
	c.Assert(err, jc.ErrorIs, coreerrors.NotValid)
	c.Assert(err, gc.ErrorMatches, "validation failed: .*filename.*")
}

func (s *ActionsSuite) TestValidateParamsAdditional(c *gc.C) {
	spec := s.readActions(c).ActionSpecs["snapshot"]
	err := spec.ValidateParams(map[string]interface{}{"filename": "x", "colour": "red"})
	c.Assert(err, jc.ErrorIs, coreerrors.NotValid)
}

func (s *ActionsSuite) TestInsertDefaults(c *gc.C) {
	spec := s.readActions(c).ActionSpecs["snapshot"]
	params, err := spec.InsertDefaults(map[string]interface{}{"filename": "x.tar.gz"})
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(params, jc.DeepEquals, map[string]interface{}{
		"filename":    "x.tar.gz",
		"compression": "gzip",
	})
}

func (s *ActionsSuite) TestBadActionName(c *gc.C) {
	_, err := charm.ReadActionsYaml(strings.NewReader("Snap_Shot:\n  description: nope\n"))
	c.Assert(err, gc.ErrorMatches, `action name "Snap_Shot" not valid`)
}
