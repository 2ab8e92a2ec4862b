// Copyright 2011, 2012, 2013 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package charm

import (
	"fmt"
	"io"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/juju/errors"
	"github.com/juju/names/v5"
	"github.com/juju/schema"
	"gopkg.in/yaml.v2"
)

// RelationScope describes the scope of a relation.
type RelationScope string

const (
	ScopeGlobal    RelationScope = "global"
	ScopeContainer RelationScope = "container"
)

// RelationRole defines the role of a relation.
type RelationRole string

const (
	RoleProvider RelationRole = "provider"
	RoleRequirer RelationRole = "requirer"
	RolePeer     RelationRole = "peer"
)

// Relation represents a single relation defined in the charm
// metadata.yaml file.
type Relation struct {
	Name      string
	Role      RelationRole
	Interface string
	Optional  bool
	Limit     int
	Scope     RelationScope
}

// ImplementedBy returns whether the relation is implemented by the supplied
// charm metadata.
func (r Relation) ImplementedBy(meta *Meta) bool {
	var m map[string]Relation
	switch r.Role {
	case RoleProvider:
		m = meta.Provides
	case RoleRequirer:
		m = meta.Requires
	case RolePeer:
		m = meta.Peers
	default:
		return false
	}
	rel, found := m[r.Name]
	return found && rel.Interface == r.Interface
}

// StorageType defines a storage type.
type StorageType string

const (
	StorageBlock      StorageType = "block"
	StorageFilesystem StorageType = "filesystem"
)

// Storage represents a charm's storage requirement.
type Storage struct {
	// Name is the name of the store.
	Name string

	// Description is a description of the store.
	Description string

	// Type is the storage type: filesystem or block-device.
	Type StorageType

	// Shared indicates that the storage is shared between all units of
	// an application deployed from the charm.
	Shared bool

	// ReadOnly indicates that the storage should be made read-only if
	// possible.
	ReadOnly bool

	// CountMin is the number of storage instances that must be attached
	// to the charm for it to be useful; the charm will not install until
	// this number has been satisfied.
	CountMin int

	// CountMax is the largest number of storage instances that can be
	// attached to the charm. If CountMax is -1, then there is no upper
	// bound.
	CountMax int

	// Location is the mount location for filesystem stores. For multi-
	// stores, the location acts as the parent directory for each mounted
	// store.
	Location string
}

// Mount represents a volume that should be mounted into a container.
type Mount struct {
	Storage  string
	Location string
}

// Container specifies the possible systems it supports and mounts it wants.
type Container struct {
	Resource string
	Mounts   []Mount
}

// ResourceType identifies the type of a charm resource.
type ResourceType string

const (
	ResourceFile     ResourceType = "file"
	ResourceOCIImage ResourceType = "oci-image"
)

// Resource is a resource declared by the charm.
type Resource struct {
	Name        string
	Type        ResourceType
	Filename    string
	Description string
}

// ExtraBinding represents an extra bindable endpoint that is not a relation.
type ExtraBinding struct {
	Name string
}

// Meta represents all the known content that may be defined
// within a charm's metadata.yaml file.
type Meta struct {
	Name          string
	Summary       string
	Description   string
	Subordinate   bool
	Provides      map[string]Relation
	Requires      map[string]Relation
	Peers         map[string]Relation
	ExtraBindings map[string]ExtraBinding
	Containers    map[string]Container
	Storage       map[string]Storage
	Resources     map[string]Resource
}

// ReadMeta reads the content of a metadata.yaml file and returns
// its representation.
func ReadMeta(r io.Reader) (*Meta, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Trace(err)
	}
	raw := make(map[interface{}]interface{})
	if err := yaml.Unmarshal(data, raw); err != nil {
		return nil, errors.Annotate(err, "metadata")
	}
	v, err := charmSchema.Coerce(raw, nil)
	if err != nil {
		return nil, errors.New("metadata: " + err.Error())
	}
	m := v.(map[string]interface{})
	meta := &Meta{
		Name:        m["name"].(string),
		Summary:     stringOr(m["summary"]),
		Description: stringOr(m["description"]),
		Provides:    parseRelations(m["provides"], RoleProvider),
		Requires:    parseRelations(m["requires"], RoleRequirer),
		Peers:       parseRelations(m["peers"], RolePeer),
	}
	if subordinate, ok := m["subordinate"].(bool); ok {
		meta.Subordinate = subordinate
	}
	meta.ExtraBindings = parseExtraBindings(m["extra-bindings"])
	if meta.Storage, err = parseStorage(m["storage"]); err != nil {
		return nil, errors.Annotate(err, "metadata")
	}
	meta.Containers = parseContainers(m["containers"])
	meta.Resources = parseResources(m["resources"])
	if err := meta.Check(); err != nil {
		return nil, errors.Trace(err)
	}
	return meta, nil
}

// Check checks that the metadata is well-formed.
func (meta *Meta) Check() error {
	if !names.IsValidApplication(meta.Name) {
		return errors.NotValidf("charm name %q", meta.Name)
	}
	// Subordinate charms must have at least one relation that
	// has container scope, otherwise they can't relate to the
	// principal.
	if meta.Subordinate {
		valid := false
		for _, relationData := range meta.Requires {
			if relationData.Scope == ScopeContainer {
				valid = true
				break
			}
		}
		if !valid {
			return errors.Errorf("subordinate charm %q lacks \"requires\" relation with container scope", meta.Name)
		}
	}
	seen := make(map[string]RelationRole)
	for _, relations := range []map[string]Relation{meta.Provides, meta.Requires, meta.Peers} {
		for name, rel := range relations {
			if role, ok := seen[name]; ok {
				return errors.Errorf("charm %q using a duplicated relation name: %q (%s and %s)", meta.Name, name, role, rel.Role)
			}
			seen[name] = rel.Role
			if name == "juju" || strings.HasPrefix(name, "juju-") {
				return errors.Errorf("charm %q using a reserved relation name: %q", meta.Name, name)
			}
		}
	}
	for name := range meta.ExtraBindings {
		if _, ok := seen[name]; ok {
			return errors.Errorf("charm %q has extra binding %q clashing with a relation name", meta.Name, name)
		}
	}
	for name, container := range meta.Containers {
		for _, mount := range container.Mounts {
			if _, ok := meta.Storage[mount.Storage]; !ok {
				return errors.NotValidf("container %q mount storage %q", name, mount.Storage)
			}
			if !strings.HasPrefix(mount.Location, "/") {
				return errors.NotValidf("container %q mount location %q", name, mount.Location)
			}
		}
	}
	return nil
}

// CombinedRelations returns all defined relations, regardless of their
// role, keyed by relation name.
func (meta *Meta) CombinedRelations() map[string]Relation {
	combined := make(map[string]Relation)
	for _, m := range []map[string]Relation{meta.Provides, meta.Requires, meta.Peers} {
		for name, rel := range m {
			combined[name] = rel
		}
	}
	return combined
}

// Relation returns the named relation endpoint, whatever its role.
func (meta *Meta) Relation(name string) (Relation, bool) {
	rel, ok := meta.CombinedRelations()[name]
	return rel, ok
}

// Bindings returns the sorted names of every endpoint the charm can be
// bound to a network space by: relations and extra bindings.
func (meta *Meta) Bindings() []string {
	var result []string
	for name := range meta.CombinedRelations() {
		result = append(result, name)
	}
	for name := range meta.ExtraBindings {
		result = append(result, name)
	}
	sort.Strings(result)
	return result
}

func stringOr(v interface{}) string {
	s, _ := v.(string)
	return s
}

func parseRelations(relations interface{}, role RelationRole) map[string]Relation {
	if relations == nil {
		return nil
	}
	result := make(map[string]Relation)
	for name, rel := range relations.(map[interface{}]interface{}) {
		relMap := rel.(map[string]interface{})
		relation := Relation{
			Name:      name.(string),
			Role:      role,
			Interface: relMap["interface"].(string),
			Optional:  relMap["optional"].(bool),
		}
		if scope := relMap["scope"]; scope != nil {
			relation.Scope = RelationScope(scope.(string))
		}
		if relMap["limit"] != nil {
			// Schema defaults to int64, but we know
			// the int range should be more than enough.
			relation.Limit = int(relMap["limit"].(int64))
		}
		result[relation.Name] = relation
	}
	return result
}

func parseExtraBindings(bindings interface{}) map[string]ExtraBinding {
	if bindings == nil {
		return nil
	}
	result := make(map[string]ExtraBinding)
	for name := range bindings.(map[interface{}]interface{}) {
		result[name.(string)] = ExtraBinding{Name: name.(string)}
	}
	return result
}

var storageCountRE = regexp.MustCompile(`^(\d+)(?:-(\d*))?$`)

func parseStorageCount(s string) (int, int, error) {
	match := storageCountRE.FindStringSubmatch(s)
	if match == nil {
		return 0, 0, errors.NotValidf("storage count range %q", s)
	}
	min, _ := strconv.Atoi(match[1])
	max := min
	if strings.Contains(s, "-") {
		max = -1
		if match[2] != "" {
			max, _ = strconv.Atoi(match[2])
			if max < min {
				return 0, 0, errors.NotValidf("storage count range %q", s)
			}
		}
	}
	return min, max, nil
}

func parseStorage(stores interface{}) (map[string]Storage, error) {
	if stores == nil {
		return nil, nil
	}
	result := make(map[string]Storage)
	for name, store := range stores.(map[interface{}]interface{}) {
		storeMap := store.(map[string]interface{})
		s := Storage{
			Name:     name.(string),
			Type:     StorageType(storeMap["type"].(string)),
			Shared:   storeMap["shared"].(bool),
			ReadOnly: storeMap["read-only"].(bool),
			CountMin: 1,
			CountMax: 1,
		}
		if desc, ok := storeMap["description"].(string); ok {
			s.Description = desc
		}
		if location, ok := storeMap["location"].(string); ok {
			s.Location = location
		}
		if multiple, ok := storeMap["multiple"].(map[string]interface{}); ok {
			min, max, err := parseStorageCount(fmt.Sprint(multiple["range"]))
			if err != nil {
				return nil, errors.Annotatef(err, "storage %q", s.Name)
			}
			s.CountMin, s.CountMax = min, max
		}
		result[s.Name] = s
	}
	return result, nil
}

func parseContainers(containers interface{}) map[string]Container {
	if containers == nil {
		return nil
	}
	result := make(map[string]Container)
	for name, container := range containers.(map[interface{}]interface{}) {
		// A container declared with no body is an empty container.
		containerMap, _ := container.(map[string]interface{})
		var c Container
		if resource, ok := containerMap["resource"].(string); ok {
			c.Resource = resource
		}
		if mounts, ok := containerMap["mounts"].([]interface{}); ok {
			for _, mount := range mounts {
				mountMap := mount.(map[string]interface{})
				c.Mounts = append(c.Mounts, Mount{
					Storage:  stringOr(mountMap["storage"]),
					Location: stringOr(mountMap["location"]),
				})
			}
		}
		result[name.(string)] = c
	}
	return result
}

func parseResources(resources interface{}) map[string]Resource {
	if resources == nil {
		return nil
	}
	result := make(map[string]Resource)
	for name, res := range resources.(map[interface{}]interface{}) {
		resMap := res.(map[string]interface{})
		r := Resource{
			Name: name.(string),
			Type: ResourceType(resMap["type"].(string)),
		}
		r.Filename = stringOr(resMap["filename"])
		r.Description = stringOr(resMap["description"])
		result[r.Name] = r
	}
	return result
}

// Schema coercer that expands the interface shorthand notation.
// A consistent format is easier to work with than considering the
// potential difference everywhere.
//
// Supports the following variants::
//
//	provides:
//	  server: riak
//	  admin: http
//	  foobar:
//	    interface: blah
//
//	provides:
//	  server:
//	    interface: mysql
//	    limit:
//	    optional: false
//
// In all input cases, the output is the fully specified interface
// representation as seen in the mysql interface description above.
func ifaceExpander(limit interface{}) schema.Checker {
	return ifaceExpC{limit}
}

type ifaceExpC struct {
	limit interface{}
}

var (
	stringC = schema.String()
	mapC    = schema.StringMap(schema.Any())
)

func (c ifaceExpC) Coerce(v interface{}, path []string) (newv interface{}, err error) {
	s, err := stringC.Coerce(v, path)
	if err == nil {
		newv = map[string]interface{}{
			"interface": s,
			"limit":     c.limit,
			"optional":  false,
			"scope":     string(ScopeGlobal),
		}
		return
	}

	// Optional values are context-sensitive and/or have
	// defaults, which is different than what KeyDict can
	// readily support. So just do it here first, then
	// coerce to the real schema.
	v, err = mapC.Coerce(v, path)
	if err != nil {
		return
	}
	m := v.(map[string]interface{})
	if _, ok := m["limit"]; !ok {
		m["limit"] = c.limit
	}
	if _, ok := m["optional"]; !ok {
		m["optional"] = false
	}
	if _, ok := m["scope"]; !ok {
		m["scope"] = string(ScopeGlobal)
	}
	return ifaceSchema.Coerce(m, path)
}

var ifaceSchema = schema.FieldMap(
	schema.Fields{
		"interface": schema.String(),
		"limit":     schema.OneOf(schema.Const(nil), schema.Int()),
		"scope":     schema.OneOf(schema.Const(string(ScopeGlobal)), schema.Const(string(ScopeContainer))),
		"optional":  schema.Bool(),
	},
	schema.Defaults{
		"scope": string(ScopeGlobal),
	},
)

var storageSchema = schema.FieldMap(
	schema.Fields{
		"type":         schema.OneOf(schema.Const(string(StorageBlock)), schema.Const(string(StorageFilesystem))),
		"shared":       schema.Bool(),
		"read-only":    schema.Bool(),
		"description":  schema.String(),
		"location":     schema.String(),
		"minimum-size": schema.String(),
		"multiple": schema.FieldMap(
			schema.Fields{"range": schema.OneOf(schema.Int(), schema.String())},
			schema.Defaults{},
		),
		"properties": schema.List(schema.String()),
	},
	schema.Defaults{
		"shared":       false,
		"read-only":    false,
		"description":  schema.Omit,
		"location":     schema.Omit,
		"minimum-size": schema.Omit,
		"multiple":     schema.Omit,
		"properties":   schema.Omit,
	},
)

var mountSchema = schema.FieldMap(
	schema.Fields{
		"storage":  schema.String(),
		"location": schema.String(),
	},
	schema.Defaults{},
)

var containerSchema = schema.FieldMap(
	schema.Fields{
		"resource": schema.String(),
		"mounts":   schema.List(mountSchema),
		"bases":    schema.List(schema.Any()),
	},
	schema.Defaults{
		"resource": schema.Omit,
		"mounts":   schema.Omit,
		"bases":    schema.Omit,
	},
)

var resourceSchema = schema.FieldMap(
	schema.Fields{
		"type":            schema.OneOf(schema.Const(string(ResourceFile)), schema.Const(string(ResourceOCIImage))),
		"filename":        schema.String(),
		"description":     schema.String(),
		"upstream-source": schema.String(),
	},
	schema.Defaults{
		"type":            string(ResourceFile),
		"filename":        schema.Omit,
		"description":     schema.Omit,
		"upstream-source": schema.Omit,
	},
)

var charmSchema = schema.FieldMap(
	schema.Fields{
		"name":           schema.String(),
		"summary":        schema.String(),
		"description":    schema.String(),
		"peers":          schema.Map(schema.String(), ifaceExpander(int64(1))),
		"provides":       schema.Map(schema.String(), ifaceExpander(nil)),
		"requires":       schema.Map(schema.String(), ifaceExpander(int64(1))),
		"extra-bindings": schema.Map(schema.String(), schema.Any()),
		"subordinate":    schema.Bool(),
		"storage":        schema.Map(schema.String(), storageSchema),
		"containers":     schema.Map(schema.String(), schema.OneOf(schema.Nil(""), containerSchema)),
		"resources":      schema.Map(schema.String(), resourceSchema),
		"assumes":        schema.List(schema.Any()),
		"maintainers":    schema.List(schema.String()),
		"tags":           schema.List(schema.String()),
		"docs":           schema.String(),
		"issues":         schema.String(),
		"source":         schema.Any(),
		"website":        schema.Any(),
	},
	schema.Defaults{
		"summary":        schema.Omit,
		"description":    schema.Omit,
		"provides":       schema.Omit,
		"requires":       schema.Omit,
		"peers":          schema.Omit,
		"extra-bindings": schema.Omit,
		"subordinate":    schema.Omit,
		"storage":        schema.Omit,
		"containers":     schema.Omit,
		"resources":      schema.Omit,
		"assumes":        schema.Omit,
		"maintainers":    schema.Omit,
		"tags":           schema.Omit,
		"docs":           schema.Omit,
		"issues":         schema.Omit,
		"source":         schema.Omit,
		"website":        schema.Omit,
	},
)

// String implements fmt.Stringer for debugging output.
func (r Relation) String() string {
	return fmt.Sprintf("%s:%s (%s)", r.Name, r.Interface, r.Role)
}
