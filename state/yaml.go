// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package state

import (
	"bytes"
	"io"
	"os"

	"github.com/juju/errors"
	"gopkg.in/yaml.v3"

	"github.com/canonical/operator-sub000/core/plan"
)

// Marshal renders the state as a YAML snapshot.
func Marshal(s State) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(s); err != nil {
		return nil, errors.Annotate(err, "encoding state")
	}
	if err := enc.Close(); err != nil {
		return nil, errors.Trace(err)
	}
	return buf.Bytes(), nil
}

// Unmarshal parses a YAML snapshot. Unknown fields are rejected.
func Unmarshal(data []byte) (State, error) {
	var s State
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil && !errors.Is(err, io.EOF) {
		return State{}, errors.Annotate(err, "decoding state")
	}
	return s, nil
}

// ReadFile reads a YAML snapshot from path.
func ReadFile(path string) (State, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return State{}, errors.Trace(err)
	}
	s, err := Unmarshal(data)
	return s, errors.Annotatef(err, "reading %q", path)
}

// Layers holds a container's supervisor layers by label. In a snapshot
// each layer is written with its order next to its content, and is parsed
// and validated again when read.
type Layers map[string]*plan.Layer

// MarshalYAML implements yaml.Marshaler.
func (l Layers) MarshalYAML() (interface{}, error) {
	docs := make(map[string]map[string]interface{}, len(l))
	for label, layer := range l {
		if layer == nil {
			return nil, errors.NotValidf("nil layer %q", label)
		}
		data, err := yaml.Marshal(layer)
		if err != nil {
			return nil, errors.Annotatef(err, "encoding layer %q", label)
		}
		doc := map[string]interface{}{}
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, errors.Annotatef(err, "encoding layer %q", label)
		}
		doc["order"] = layer.Order
		docs[label] = doc
	}
	return docs, nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (l *Layers) UnmarshalYAML(value *yaml.Node) error {
	var docs map[string]map[string]interface{}
	if err := value.Decode(&docs); err != nil {
		return errors.Trace(err)
	}
	layers := make(Layers, len(docs))
	for label, doc := range docs {
		order := 0
		if raw, ok := doc["order"]; ok {
			if order, ok = raw.(int); !ok {
				return errors.NotValidf("order %v of layer %q", raw, label)
			}
			delete(doc, "order")
		}
		data, err := yaml.Marshal(doc)
		if err != nil {
			return errors.Trace(err)
		}
		layer, err := plan.ParseLayer(order, label, data)
		if err != nil {
			return errors.Annotatef(err, "layer %q", label)
		}
		layers[label] = layer
	}
	*l = layers
	return nil
}
