// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package backend

import (
	"regexp"
	"strings"

	"github.com/juju/errors"

	"github.com/canonical/operator-sub000/core/hooks"
)

// defaultActionFailure is reported when an action fails without a message.
const defaultActionFailure = "action failed without reason given, check action for errors"

var (
	validActionKey = regexp.MustCompile("^[a-z0-9](?:[a-z0-9-]*[a-z0-9])?$")

	reservedActionKeys = []string{"stdout", "stdout-encoding", "stderr", "stderr-encoding"}
)

func (b *Backend) checkAction() error {
	if b.hook.Kind != hooks.Action {
		return errors.Annotatef(ErrRestrictedContext, "%q hook", b.hook.EventID())
	}
	return nil
}

// ActionGet returns the action parameters, with the declared defaults for
// those not given.
func (b *Backend) ActionGet() (map[string]interface{}, error) {
	if err := b.checkAction(); err != nil {
		return nil, errors.Trace(err)
	}
	params := make(map[string]interface{}, len(b.hook.ActionParams))
	for k, v := range b.hook.ActionParams {
		params[k] = v
	}
	spec, ok := b.actions.ActionSpecs[b.hook.Scope]
	if !ok {
		return params, nil
	}
	params, err := spec.InsertDefaults(params)
	if err != nil {
		return nil, errors.Annotatef(err, "action %q defaults", b.hook.Scope)
	}
	return params, nil
}

// ActionID returns the id of the running action.
func (b *Backend) ActionID() (string, error) {
	if err := b.checkAction(); err != nil {
		return "", errors.Trace(err)
	}
	return b.hook.ActionID, nil
}

// ActionLog records a progress message of the running action.
func (b *Backend) ActionLog(message string) error {
	if err := b.checkAction(); err != nil {
		return errors.Trace(err)
	}
	b.journal.ActionLogs = append(b.journal.ActionLogs, message)
	return nil
}

// ActionSetResults merges results into those of the running action. Dotted
// keys set nested values.
func (b *Backend) ActionSetResults(results map[string]interface{}) error {
	if err := b.checkAction(); err != nil {
		return errors.Trace(err)
	}
	for key := range results {
		if err := validateResultKey(key); err != nil {
			return errors.Trace(err)
		}
	}
	if b.journal.ActionResults == nil {
		b.journal.ActionResults = map[string]interface{}{}
	}
	for key, value := range results {
		addValueToMap(strings.Split(key, "."), value, b.journal.ActionResults)
	}
	return nil
}

// ActionFail marks the running action as failed.
func (b *Backend) ActionFail(message string) error {
	if err := b.checkAction(); err != nil {
		return errors.Trace(err)
	}
	if message == "" {
		message = defaultActionFailure
	}
	b.journal.ActionFailed = true
	b.journal.ActionFailureMessage = message
	return nil
}

func validateResultKey(key string) error {
	for _, part := range strings.Split(key, ".") {
		if !validActionKey.MatchString(part) {
			return errors.NotValidf("action result key %q", key)
		}
	}
	for _, reserved := range reservedActionKeys {
		if key == reserved {
			return errors.NotValidf("reserved action result key %q", key)
		}
	}
	return nil
}

// addValueToMap adds the given value to the map on which the method is run.
// This allows us to merge maps such as {foo: {bar: baz}} and {foo: {baz: faz}}
// into {foo: {bar: baz, baz: faz}}.
func addValueToMap(keys []string, value interface{}, target map[string]interface{}) {
	next := target
	for i := range keys {
		if i == len(keys)-1 {
			next[keys[i]] = value
			break
		}
		if iface, ok := next[keys[i]]; ok {
			switch typed := iface.(type) {
			case map[string]interface{}:
				next = typed
			default:
				m := map[string]interface{}{}
				next[keys[i]] = m
				next = m
			}
		} else {
			m := map[string]interface{}{}
			next[keys[i]] = m
			next = m
		}
	}
}
