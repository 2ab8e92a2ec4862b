// Copyright 2011, 2012, 2013 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package charm

import (
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/juju/errors"
	"github.com/juju/schema"
	"gopkg.in/yaml.v2"

	coreerrors "github.com/canonical/operator-sub000/core/errors"
	"github.com/canonical/operator-sub000/core/secrets"
)

// Settings is a group of charm config option names and values. A Settings
// S is considered valid by the Config C if every key in S is an option in
// C, and every value either has the correct type or is nil.
type Settings map[string]interface{}

// Option represents a single charm config option.
type Option struct {
	Type        string      `yaml:"type"`
	Description string      `yaml:"description,omitempty"`
	Default     interface{} `yaml:"default,omitempty"`
}

// secretC checks that a value names a secret by URI.
type secretC struct{}

func (secretC) Coerce(v interface{}, path []string) (interface{}, error) {
	s, err := schema.String().Coerce(v, path)
	if err != nil {
		return nil, err
	}
	if _, err := secrets.ParseURI(s.(string)); err != nil {
		return nil, errors.Errorf("%s: expected secret URI, got %q", pathString(path), s)
	}
	return s, nil
}

func pathString(path []string) string {
	if len(path) == 0 {
		return "value"
	}
	return fmt.Sprint(path)
}

// optionTypeCheckers maps option types to the checkers that coerce values
// of that type.
var optionTypeCheckers = map[string]schema.Checker{
	"string":  schema.String(),
	"int":     schema.Int(),
	"float":   schema.Float(),
	"boolean": schema.Bool(),
	"secret":  secretC{},
}

func (option Option) error(err *error, name string, value interface{}) {
	if *err != nil {
		*err = errors.Errorf("option %q expected %s, got %#v", name, option.Type, value)
	}
}

// validate returns an appropriately-typed value for the supplied value, or
// returns an error if it cannot be converted to the correct type. Nil values
// are always considered valid.
func (option Option) validate(name string, value interface{}) (_ interface{}, err error) {
	if value == nil {
		return nil, nil
	}
	checker, ok := optionTypeCheckers[option.Type]
	if !ok {
		return nil, errors.Errorf("option %q has unknown type %q", name, option.Type)
	}
	defer option.error(&err, name, value)
	if value, err = checker.Coerce(value, nil); err != nil {
		return nil, err
	}
	return value, nil
}

// parse returns an appropriately-typed value for the supplied string, or
// returns an error if it cannot be parsed to the correct type.
func (option Option) parse(name, str string) (_ interface{}, err error) {
	defer option.error(&err, name, str)
	switch option.Type {
	case "string", "secret":
		return option.validate(name, str)
	case "int":
		return strconv.ParseInt(str, 10, 64)
	case "float":
		return strconv.ParseFloat(str, 64)
	case "boolean":
		return strconv.ParseBool(str)
	}
	return nil, errors.Errorf("option %q has unknown type %q", name, option.Type)
}

// Config represents the supported configuration options for a charm,
// as declared in its config.yaml file.
type Config struct {
	Options map[string]Option
}

// NewConfig returns a new Config without any options.
func NewConfig() *Config {
	return &Config{map[string]Option{}}
}

// ReadConfig reads a Config in YAML format.
func ReadConfig(r io.Reader) (*Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Trace(err)
	}
	var config *Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, errors.Annotate(err, "config")
	}
	if config == nil {
		return nil, errors.New("invalid config: empty configuration")
	}
	if config.Options == nil {
		// We are allowed an empty configuration if the options
		// field is explicitly specified, but there is no easy way
		// to tell if it was specified or not without unmarshaling
		// into interface{} and explicitly checking the field.
		var configInterface interface{}
		if err := yaml.Unmarshal(data, &configInterface); err != nil {
			return nil, errors.Annotate(err, "config")
		}
		m, _ := configInterface.(map[interface{}]interface{})
		if _, ok := m["options"]; !ok {
			return nil, errors.New("invalid config: empty configuration")
		}
	}
	for name, option := range config.Options {
		if _, ok := optionTypeCheckers[option.Type]; !ok {
			return nil, errors.Errorf("invalid config: option %q has unknown type %q", name, option.Type)
		}
		def, err := option.validate(name, option.Default)
		if err != nil {
			return nil, errors.Errorf("invalid config default: %v", err)
		}
		option.Default = def
		config.Options[name] = option
	}
	return config, nil
}

// Names returns the sorted option names.
func (c *Config) Names() []string {
	names := make([]string, 0, len(c.Options))
	for name := range c.Options {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultSettings returns settings containing the default value of every
// option in the config. Default values may be nil.
func (c *Config) DefaultSettings() Settings {
	out := make(Settings)
	for name, option := range c.Options {
		out[name] = option.Default
	}
	return out
}

// ValidateSettings returns a copy of the supplied settings with all values
// coerced to the types of the declared options. An error is returned if a
// setting names an undeclared option or has a value of the wrong type.
func (c *Config) ValidateSettings(settings Settings) (Settings, error) {
	out := make(Settings)
	for name, value := range settings {
		option, ok := c.Options[name]
		if !ok {
			return nil, coreerrors.Errorf(coreerrors.NotDeclared, "unknown option %q", name)
		}
		if str, ok := value.(string); ok && option.Type != "string" && option.Type != "secret" {
			parsed, err := option.parse(name, str)
			if err != nil {
				return nil, errors.WithType(err, coreerrors.NotValid)
			}
			out[name] = parsed
			continue
		}
		validated, err := option.validate(name, value)
		if err != nil {
			return nil, errors.WithType(err, coreerrors.NotValid)
		}
		out[name] = validated
	}
	return out, nil
}
