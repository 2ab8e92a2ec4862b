// Copyright 2014 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package charm

import (
	"io"
	"regexp"
	"sort"
	"strings"

	"github.com/juju/errors"
	gjs "github.com/juju/gojsonschema"
	"gopkg.in/yaml.v2"

	coreerrors "github.com/canonical/operator-sub000/core/errors"
)

var actionNameRule = regexp.MustCompile(`^[a-z](?:[a-z0-9-]*[a-z0-9])?$`)

// Actions defines the available actions for the charm.
type Actions struct {
	ActionSpecs map[string]ActionSpec
}

// NewActions returns an Actions object without any defined content.
func NewActions() *Actions {
	return &Actions{map[string]ActionSpec{}}
}

// ActionSpec is a definition of the parameters and traits of an Action.
// The Params map is expected to conform to JSON-Schema Draft 4 as defined at
// http://json-schema.org/draft-04/schema# (see http://json-schema.org/latest/json-schema-core.html)
type ActionSpec struct {
	Description    string
	Parallel       bool
	ExecutionGroup string
	Params         map[string]interface{}
}

// ValidateParams validates the passed params map against the given ActionSpec
// and returns any error encountered.
func (spec *ActionSpec) ValidateParams(params map[string]interface{}) error {
	// Load the schema from the Charm.
	specLoader := gjs.NewGoLoader(spec.Params)

	// Load the params from the user.
	if params == nil {
		params = map[string]interface{}{}
	}
	paramsLoader := gjs.NewGoLoader(params)

	result, err := gjs.Validate(specLoader, paramsLoader)
	if err != nil {
		return errors.Trace(err)
	}

	if !result.Valid() {
		var errorStrings []string
		for _, validationError := range result.Errors() {
			errorStrings = append(errorStrings, validationError.String())
		}
		sort.Strings(errorStrings)
		return coreerrors.Errorf(coreerrors.NotValid, "validation failed: %s", strings.Join(errorStrings, "; "))
	}
	return nil
}

// InsertDefaults inserts the schema's default values in target using
// github.com/juju/gojsonschema. If a nil target is received, an empty map
// will be created as the target. The target is then mutated to include the
// defaults.
//
// The returned map will be the transformed or created target map.
func (spec *ActionSpec) InsertDefaults(target map[string]interface{}) (map[string]interface{}, error) {
	specLoader := gjs.NewGoLoader(spec.Params)
	schema, err := gjs.NewSchema(specLoader)
	if err != nil {
		return target, errors.Trace(err)
	}
	return schema.InsertDefaults(target)
}

// ReadActionsYaml builds an Actions spec from a charm's actions.yaml.
func ReadActionsYaml(r io.Reader) (*Actions, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Trace(err)
	}

	result := &Actions{
		ActionSpecs: map[string]ActionSpec{},
	}

	var unmarshaledActions map[string]map[string]interface{}
	if err := yaml.Unmarshal(data, &unmarshaledActions); err != nil {
		return nil, errors.Annotate(err, "actions")
	}

	for name, actionSpec := range unmarshaledActions {
		if !actionNameRule.MatchString(name) {
			return nil, errors.NotValidf("action name %q", name)
		}

		desc := "No description"
		parallel := false
		executionGroup := ""
		thisActionSchema := map[string]interface{}{
			"description": desc,
			"type":        "object",
			"title":       name,
			"properties":  map[string]interface{}{},
		}

		for key, value := range actionSpec {
			switch key {
			case "description":
				// These fields must be strings.
				typed, ok := value.(string)
				if !ok {
					return nil, errors.Errorf("value for schema key %q must be a string", key)
				}
				thisActionSchema[key] = typed
				desc = typed
			case "title":
				// These fields must be strings.
				typed, ok := value.(string)
				if !ok {
					return nil, errors.Errorf("value for schema key %q must be a string", key)
				}
				thisActionSchema[key] = typed
			case "required":
				typed, ok := value.([]interface{})
				if !ok {
					return nil, errors.Errorf("value for schema key %q must be a YAML list", key)
				}
				thisActionSchema[key] = typed
			case "parallel":
				typed, ok := value.(bool)
				if !ok {
					return nil, errors.Errorf("value for schema key %q must be a bool", key)
				}
				parallel = typed
			case "execution-group":
				typed, ok := value.(string)
				if !ok {
					return nil, errors.Errorf("value for schema key %q must be a string", key)
				}
				executionGroup = typed
			case "params":
				// Clean any map[interface{}]interface{}s out so they don't
				// cause problems with BSON serialization later.
				cleansedParams, err := cleanse(value)
				if err != nil {
					return nil, errors.Trace(err)
				}

				// JSON-Schema must be a map
				typed, ok := cleansedParams.(map[string]interface{})
				if !ok {
					return nil, errors.New("params failed to parse as a map")
				}
				thisActionSchema["properties"] = typed
			default:
				// In case this has sub-keys, we need to cleanse them.
				cleansed, err := cleanse(value)
				if err != nil {
					return nil, errors.Trace(err)
				}
				thisActionSchema[key] = cleansed
			}
		}

		// Make sure the new Params doc conforms to JSON-Schema
		// Draft 4 (http://json-schema.org/latest/json-schema-core.html)
		schemaLoader := gjs.NewGoLoader(thisActionSchema)
		if _, err := gjs.NewSchema(schemaLoader); err != nil {
			return nil, errors.Annotatef(err, "invalid params schema for action schema %s", name)
		}

		// Now assign the resulting schema to the final entry for the result.
		result.ActionSpecs[name] = ActionSpec{
			Description:    desc,
			Params:         thisActionSchema,
			Parallel:       parallel,
			ExecutionGroup: executionGroup,
		}
	}
	return result, nil
}

// cleanse rejects schemas containing references or maps keyed with non-
// strings, and coerces acceptable maps to contain only maps with string keys.
func cleanse(input interface{}) (interface{}, error) {
	switch typedInput := input.(type) {

	// In this case, recurse in.
	case map[string]interface{}:
		newMap := make(map[string]interface{})
		for key, value := range typedInput {

			if key == "$ref" {
				return nil, errors.New("schema key \"$ref\" not compatible with this version of juju")
			}

			newValue, err := cleanse(value)
			if err != nil {
				return nil, err
			}
			newMap[key] = newValue
		}
		return newMap, nil

	// Coerce keys to strings and error out if there's a problem; then recurse.
	case map[interface{}]interface{}:
		newMap := make(map[string]interface{})
		for key, value := range typedInput {
			typedKey, ok := key.(string)
			if !ok {
				return nil, errors.New("map keyed with non-string value")
			}

			if typedKey == "$ref" {
				return nil, errors.New("schema key \"$ref\" not compatible with this version of juju")
			}

			newValue, err := cleanse(value)
			if err != nil {
				return nil, err
			}
			newMap[typedKey] = newValue
		}
		return newMap, nil

	// Recurse
	case []interface{}:
		newSlice := make([]interface{}, 0)
		for _, sliceValue := range typedInput {
			newSliceValue, err := cleanse(sliceValue)
			if err != nil {
				return nil, errors.New("map keyed with non-string value")
			}
			newSlice = append(newSlice, newSliceValue)
		}
		return newSlice, nil

	// Other kinds of values are OK.
	default:
		return input, nil
	}
}
