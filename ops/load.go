// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package ops

import (
	"github.com/juju/errors"
	"github.com/mitchellh/mapstructure"
)

// decodeInto fills the struct pointed to by target from values. Fields are
// matched by their `param` tag, or by name when untagged.
func decodeInto(values map[string]interface{}, target interface{}, what string) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           target,
		TagName:          "param",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return errors.Annotatef(err, "decoding %s", what)
	}
	if err := decoder.Decode(values); err != nil {
		return errors.NewNotValid(err, "decoding "+what)
	}
	return nil
}

// LoadParams decodes the action parameters, defaults included, into the
// struct pointed to by target.
func (e *ActionEvent) LoadParams(target interface{}) error {
	params, err := e.Params()
	if err != nil {
		return errors.Trace(err)
	}
	return decodeInto(params, target, "action "+e.Name()+" params")
}

// LoadConfig decodes the charm configuration into the struct pointed to by
// target.
func (m *Model) LoadConfig(target interface{}) error {
	settings, err := m.Config()
	if err != nil {
		return errors.Trace(err)
	}
	return decodeInto(settings, target, "charm config")
}
