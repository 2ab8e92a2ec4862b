// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package status_test

import (
	"github.com/juju/errors"
	"github.com/juju/testing"
	jc "github.com/juju/testing/checkers"
	gc "gopkg.in/check.v1"

	coreerrors "github.com/canonical/operator-sub000/core/errors"
	"github.com/canonical/operator-sub000/core/status"
)

type orderingSuite struct {
	testing.IsolationSuite
}

var _ = gc.Suite(&orderingSuite{})

func (s *orderingSuite) TestDefaultOrderingValid(c *gc.C) {
	c.Assert(status.DefaultOrdering.Validate(), jc.ErrorIsNil)
}

func (s *orderingSuite) TestHighestDefault(c *gc.C) {
	got, err := status.DefaultOrdering.Highest([]status.StatusInfo{
		{Status: status.Active, Message: "ready"},
		{Status: status.Waiting, Message: "for db"},
		{Status: status.Blocked, Message: "needs relation"},
		{Status: status.Maintenance},
	})
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(got, jc.DeepEquals, status.StatusInfo{Status: status.Blocked, Message: "needs relation"})
}

func (s *orderingSuite) TestHighestTieKeepsFirst(c *gc.C) {
	got, err := status.DefaultOrdering.Highest([]status.StatusInfo{
		{Status: status.Waiting, Message: "first"},
		{Status: status.Waiting, Message: "second"},
	})
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(got.Message, gc.Equals, "first")
}

func (s *orderingSuite) TestHighestCustomOrdering(c *gc.C) {
	ordering := status.Ordering{status.Error, status.Waiting, status.Blocked, status.Maintenance, status.Active, status.Unknown}
	c.Assert(ordering.Validate(), jc.ErrorIsNil)
	got, err := ordering.Highest([]status.StatusInfo{
		{Status: status.Blocked},
		{Status: status.Waiting},
	})
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(got.Status, gc.Equals, status.Waiting)
}

func (s *orderingSuite) TestHighestEmpty(c *gc.C) {
	_, err := status.DefaultOrdering.Highest(nil)
	c.Assert(err, jc.ErrorIs, errors.NotFound)
}

func (s *orderingSuite) TestValidateIncomplete(c *gc.C) {
	err := status.Ordering{status.Active, status.Blocked}.Validate()
	c.Assert(err, gc.ErrorMatches, `ordering missing status "error" not valid`)
}

func (s *orderingSuite) TestValidateDuplicate(c *gc.C) {
	err := status.Ordering{status.Active, status.Active}.Validate()
	c.Assert(err, gc.ErrorMatches, `duplicate status "active" in ordering not valid`)
}

func (s *orderingSuite) TestRankUnknownStatus(c *gc.C) {
	_, err := status.Ordering{status.Active}.Rank(status.Blocked)
	c.Assert(err, jc.ErrorIs, coreerrors.NotValid)
}

func (s *orderingSuite) TestValidWorkloadStatus(c *gc.C) {
	c.Check(status.ValidWorkloadStatus(status.Active), jc.IsTrue)
	c.Check(status.ValidWorkloadStatus(status.Error), jc.IsFalse)
	c.Check(status.ValidWorkloadStatus(status.Unknown), jc.IsFalse)
	c.Check(status.Error.KnownWorkloadStatus(), jc.IsTrue)
}
