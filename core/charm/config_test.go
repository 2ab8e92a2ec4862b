// Copyright 2011, 2012, 2013 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package charm_test

import (
	"strings"

	jc "github.com/juju/testing/checkers"
	gc "gopkg.in/check.v1"

	"github.com/canonical/operator-sub000/core/charm"
	coreerrors "github.com/canonical/operator-sub000/core/errors"
	"github.com/canonical/operator-sub000/core/secrets"
)

const sampleConfig = `
options:
  title:
    default: My Title
    description: A descriptive title used for the application.
    type: string
  skill-level:
    description: A number indicating skill.
    type: int
  agility-ratio:
    description: A number from 0 to 1 indicating agility.
    type: float
  reticulate-splines:
    description: Whether to reticulate splines on launch, or not.
    type: boolean
  password:
    description: The admin password.
    type: secret
`

type ConfigSuite struct {
	config *charm.Config
}

var _ = gc.Suite(&ConfigSuite{})

func (s *ConfigSuite) SetUpSuite(c *gc.C) {
	var err error
	s.config, err = charm.ReadConfig(strings.NewReader(sampleConfig))
	c.Assert(err, jc.ErrorIsNil)
}

func (s *ConfigSuite) TestDefaultSettings(c *gc.C) {
	c.Assert(s.config.DefaultSettings(), jc.DeepEquals, charm.Settings{
		"title":              "My Title",
		"skill-level":        nil,
		"agility-ratio":      nil,
		"reticulate-splines": nil,
		"password":           nil,
	})
}

func (s *ConfigSuite) TestNames(c *gc.C) {
	c.Assert(s.config.Names(), jc.DeepEquals, []string{
		"agility-ratio", "password", "reticulate-splines", "skill-level", "title",
	})
}

func (s *ConfigSuite) TestValidateSettings(c *gc.C) {
	uri := secrets.NewURI()
	settings, err := s.config.ValidateSettings(charm.Settings{
		"skill-level":        5,
		"agility-ratio":      "0.5",
		"reticulate-splines": true,
		"password":           uri.String(),
	})
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(settings, jc.DeepEquals, charm.Settings{
		"skill-level":        int64(5),
		"agility-ratio":      0.5,
		"reticulate-splines": true,
		"password":           uri.String(),
	})
}

func (s *ConfigSuite) TestValidateSettingsUnknownOption(c *gc.C) {
	_, err := s.config.ValidateSettings(charm.Settings{"colour": "blue"})
	c.Assert(err, jc.ErrorIs, coreerrors.NotDeclared)
	c.Assert(err, gc.ErrorMatches, `unknown option "colour"`)
}

func (s *ConfigSuite) TestValidateSettingsWrongType(c *gc.C) {
	_, err := s.config.ValidateSettings(charm.Settings{"skill-level": true})
	c.Assert(err, jc.ErrorIs, coreerrors.NotValid)
	c.Assert(err, gc.ErrorMatches, `option "skill-level" expected int, got true`)
}

func (s *ConfigSuite) TestValidateSettingsBadSecret(c *gc.C) {
	_, err := s.config.ValidateSettings(charm.Settings{"password": "hunter2"})
	c.Assert(err, jc.ErrorIs, coreerrors.NotValid)
}

func (s *ConfigSuite) TestReadConfigUnknownType(c *gc.C) {
	_, err := charm.ReadConfig(strings.NewReader("options:\n  x:\n    type: colour\n"))
	c.Assert(err, gc.ErrorMatches, `invalid config: option "x" has unknown type "colour"`)
}

func (s *ConfigSuite) TestReadConfigEmpty(c *gc.C) {
	_, err := charm.ReadConfig(strings.NewReader(""))
	c.Assert(err, gc.ErrorMatches, "invalid config: empty configuration")

	config, err := charm.ReadConfig(strings.NewReader("options: {}\n"))
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(config.Options, gc.HasLen, 0)
}

func (s *ConfigSuite) TestReadConfigBadDefault(c *gc.C) {
	_, err := charm.ReadConfig(strings.NewReader("options:\n  x:\n    type: int\n    default: lots\n"))
	c.Assert(err, gc.ErrorMatches, `invalid config default: option "x" expected int, got "lots"`)
}
