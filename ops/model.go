// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package ops

import (
	"time"

	"github.com/juju/errors"
	"github.com/juju/names/v5"

	"github.com/canonical/operator-sub000/core/charm"
	"github.com/canonical/operator-sub000/core/secrets"
	"github.com/canonical/operator-sub000/core/status"
	"github.com/canonical/operator-sub000/internal/backend"
	"github.com/canonical/operator-sub000/internal/pebble"
	"github.com/canonical/operator-sub000/state"
)

// Model is the unit's view of the model it is deployed in.
type Model struct {
	backend *backend.Backend
}

// Name returns the model name.
func (m *Model) Name() string {
	return m.backend.Model().Name
}

// UUID returns the model uuid.
func (m *Model) UUID() string {
	return m.backend.Model().UUID
}

// Unit returns the unit under test.
func (m *Model) Unit() *Unit {
	return &Unit{backend: m.backend, name: m.backend.UnitName()}
}

// App returns the application of the unit under test.
func (m *Model) App() *Application {
	return &Application{backend: m.backend, name: m.backend.AppName()}
}

// Config returns the charm configuration.
func (m *Model) Config() (charm.Settings, error) {
	settings, err := m.backend.ConfigGet()
	return settings, errors.Trace(err)
}

// Relations returns the relations established on an endpoint.
func (m *Model) Relations(endpoint string) ([]*Relation, error) {
	ids, err := m.backend.RelationIDs(endpoint)
	if err != nil {
		return nil, errors.Trace(err)
	}
	result := make([]*Relation, 0, len(ids))
	for _, id := range ids {
		rel, err := m.relationByID(id)
		if err != nil {
			return nil, errors.Trace(err)
		}
		result = append(result, rel)
	}
	return result, nil
}

// Relation returns the single relation on an endpoint, or nil if there is
// none. Use Relations for endpoints with several relations.
func (m *Model) Relation(endpoint string) (*Relation, error) {
	rels, err := m.Relations(endpoint)
	if err != nil {
		return nil, errors.Trace(err)
	}
	switch len(rels) {
	case 0:
		return nil, nil
	case 1:
		return rels[0], nil
	}
	return nil, errors.Errorf("endpoint %q has %d relations", endpoint, len(rels))
}

// RelationByID returns the relation with the given id.
func (m *Model) RelationByID(id int) (*Relation, error) {
	return m.relationByID(id)
}

func (m *Model) relationByID(id int) (*Relation, error) {
	rel, err := m.backend.Relation(id)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return &Relation{backend: m.backend, id: rel.ID, endpoint: rel.Endpoint, app: rel.RemoteAppName}, nil
}

// GetSecret returns the secret with the given id or label. Passing both
// sets the label of the secret for this unit.
func (m *Model) GetSecret(id, label string) (*Secret, error) {
	resolved, err := m.backend.SecretID(backend.SecretRef{ID: id, Label: label})
	if err != nil {
		return nil, errors.Trace(err)
	}
	return &Secret{backend: m.backend, id: resolved, label: label}, nil
}

// Storages returns the attached instances of a storage.
func (m *Model) Storages(name string) ([]*Storage, error) {
	list, err := m.backend.StorageList(name)
	if err != nil {
		return nil, errors.Trace(err)
	}
	result := make([]*Storage, 0, len(list))
	for _, st := range list {
		result = append(result, &Storage{backend: m.backend, name: st.Name, index: st.Index})
	}
	return result, nil
}

// RequestStorage asks for count more instances of a storage.
func (m *Model) RequestStorage(name string, count int) error {
	return errors.Trace(m.backend.StorageAdd(name, count))
}

func (m *Model) storage(name string, index int) (*Storage, error) {
	list, err := m.backend.StorageList(name)
	if err != nil {
		return nil, errors.Trace(err)
	}
	for _, st := range list {
		if st.Index == index {
			return &Storage{backend: m.backend, name: st.Name, index: st.Index}, nil
		}
	}
	return nil, errors.NotFoundf("storage %s/%d", name, index)
}

// Container returns a workload container.
func (m *Model) Container(name string) (*Container, error) {
	client, err := m.backend.Container(name)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return &Container{Client: client}, nil
}

// NetworkGet returns the network of a binding, optionally as seen over a
// relation.
func (m *Model) NetworkGet(binding string, relation *Relation) (state.Network, error) {
	var id *int
	if relation != nil {
		relID := relation.id
		id = &relID
	}
	network, err := m.backend.NetworkGet(binding, id)
	return network, errors.Trace(err)
}

// Resource returns the path of a charm resource.
func (m *Model) Resource(name string) (string, error) {
	path, err := m.backend.ResourceGet(name)
	return path, errors.Trace(err)
}

// Unit is the unit under test.
type Unit struct {
	backend *backend.Backend
	name    string
}

// Name returns the unit name.
func (u *Unit) Name() string {
	return u.name
}

// IsLeader reports whether the unit is its application's leader.
func (u *Unit) IsLeader() (bool, error) {
	leader, err := u.backend.IsLeader()
	return leader, errors.Trace(err)
}

// Status returns the unit status.
func (u *Unit) Status() (status.StatusInfo, error) {
	info, err := u.backend.StatusGet(false)
	return info, errors.Trace(err)
}

// SetStatus sets the unit status.
func (u *Unit) SetStatus(s status.Status, message string) error {
	return errors.Trace(u.backend.StatusSet(status.StatusInfo{Status: s, Message: message}, false))
}

// SetWorkloadVersion sets the workload version shown for the unit.
func (u *Unit) SetWorkloadVersion(version string) error {
	return errors.Trace(u.backend.ApplicationVersionSet(version))
}

// OpenPort opens a port on the unit.
func (u *Unit) OpenPort(protocol string, port int) error {
	return errors.Trace(u.backend.OpenPort(protocol, port))
}

// ClosePort closes a port on the unit.
func (u *Unit) ClosePort(protocol string, port int) error {
	return errors.Trace(u.backend.ClosePort(protocol, port))
}

// OpenedPorts returns the ports open on the unit.
func (u *Unit) OpenedPorts() ([]state.Port, error) {
	ports, err := u.backend.OpenedPorts()
	return ports, errors.Trace(err)
}

// AddSecret creates a secret owned by the unit.
func (u *Unit) AddSecret(content map[string]string, opts SecretOptions) (*Secret, error) {
	return addSecret(u.backend, secrets.OwnerUnit, content, opts)
}

// Application is the application of the unit under test.
type Application struct {
	backend *backend.Backend
	name    string
}

// Name returns the application name.
func (a *Application) Name() string {
	return a.name
}

// Status returns the application status. Only the leader can read it.
func (a *Application) Status() (status.StatusInfo, error) {
	info, err := a.backend.StatusGet(true)
	return info, errors.Trace(err)
}

// SetStatus sets the application status. Only the leader can set it.
func (a *Application) SetStatus(s status.Status, message string) error {
	return errors.Trace(a.backend.StatusSet(status.StatusInfo{Status: s, Message: message}, true))
}

// PlannedUnits returns the number of units the application should have.
func (a *Application) PlannedUnits() (int, error) {
	n, err := a.backend.PlannedUnits()
	return n, errors.Trace(err)
}

// AddSecret creates a secret owned by the application. Only the leader can
// add application secrets.
func (a *Application) AddSecret(content map[string]string, opts SecretOptions) (*Secret, error) {
	return addSecret(a.backend, secrets.OwnerApp, content, opts)
}

// Relation is an established relation.
type Relation struct {
	backend  *backend.Backend
	id       int
	endpoint string
	app      string
}

// ID returns the relation id.
func (r *Relation) ID() int {
	return r.id
}

// Name returns the local endpoint name.
func (r *Relation) Name() string {
	return r.endpoint
}

// App returns the remote application name.
func (r *Relation) App() string {
	return r.app
}

// Units returns the remote units in the relation.
func (r *Relation) Units() ([]string, error) {
	units, err := r.backend.RelationList(r.id)
	return units, errors.Trace(err)
}

// Data returns the databag of entity, a unit or application name.
func (r *Relation) Data(entity string) *DataBag {
	return &DataBag{backend: r.backend, relationID: r.id, entity: entity}
}

// DataBag is a relation databag.
type DataBag struct {
	backend    *backend.Backend
	relationID int
	entity     string
}

// Items returns the content of the databag.
func (d *DataBag) Items() (map[string]string, error) {
	data, err := d.backend.RelationGet(d.relationID, d.entity)
	return data, errors.Trace(err)
}

// Get returns one value of the databag.
func (d *DataBag) Get(key string) (string, bool, error) {
	data, err := d.Items()
	if err != nil {
		return "", false, errors.Trace(err)
	}
	v, ok := data[key]
	return v, ok, nil
}

// Set sets one value. An empty value deletes the key.
func (d *DataBag) Set(key, value string) error {
	return d.Update(map[string]string{key: value})
}

// Update sets several values. Empty values delete keys.
func (d *DataBag) Update(data map[string]string) error {
	return errors.Trace(d.backend.RelationSet(d.relationID, d.entity, data))
}

// SecretOptions holds the optional attributes of a new secret.
type SecretOptions struct {
	Label        string
	Description  string
	Expire       *time.Time
	RotatePolicy secrets.RotatePolicy
}

func addSecret(b *backend.Backend, owner secrets.Owner, content map[string]string, opts SecretOptions) (*Secret, error) {
	id, err := b.SecretAdd(backend.SecretAddArgs{
		Owner:        owner,
		Content:      content,
		Label:        opts.Label,
		Description:  opts.Description,
		Expire:       opts.Expire,
		RotatePolicy: opts.RotatePolicy,
	})
	if err != nil {
		return nil, errors.Trace(err)
	}
	return &Secret{backend: b, id: id, label: opts.Label}, nil
}

// Secret is a secret the unit owns or was granted.
type Secret struct {
	backend *backend.Backend
	id      string
	label   string
}

// ID returns the secret id, if known.
func (s *Secret) ID() string {
	return s.id
}

// Label returns the secret label, if known.
func (s *Secret) Label() string {
	return s.label
}

func (s *Secret) ref() backend.SecretRef {
	return backend.SecretRef{ID: s.id, Label: s.label}
}

// Content returns the tracked revision of the secret or, with refresh, the
// latest revision which is then tracked.
func (s *Secret) Content(refresh bool) (map[string]string, error) {
	content, err := s.backend.SecretGet(s.ref(), false, refresh)
	return content, errors.Trace(err)
}

// PeekContent returns the latest revision without tracking it.
func (s *Secret) PeekContent() (map[string]string, error) {
	content, err := s.backend.SecretGet(s.ref(), true, false)
	return content, errors.Trace(err)
}

// Info returns the metadata of a secret the unit manages.
func (s *Secret) Info() (backend.SecretInfo, error) {
	info, err := s.backend.SecretInfoGet(s.ref())
	return info, errors.Trace(err)
}

func (s *Secret) resolve() (string, error) {
	if s.id != "" {
		return s.id, nil
	}
	id, err := s.backend.SecretID(s.ref())
	if err != nil {
		return "", errors.Trace(err)
	}
	s.id = id
	return id, nil
}

// SetContent creates a new revision of a secret the unit manages.
func (s *Secret) SetContent(content map[string]string) error {
	id, err := s.resolve()
	if err != nil {
		return errors.Trace(err)
	}
	if content == nil {
		content = map[string]string{}
	}
	return errors.Trace(s.backend.SecretSet(id, backend.SecretUpdateArgs{Content: content}))
}

// SetInfo updates the metadata of a secret the unit manages. Zero values
// are left unchanged.
func (s *Secret) SetInfo(opts SecretOptions) error {
	id, err := s.resolve()
	if err != nil {
		return errors.Trace(err)
	}
	args := backend.SecretUpdateArgs{Expire: opts.Expire}
	if opts.Label != "" {
		args.Label = &opts.Label
	}
	if opts.Description != "" {
		args.Description = &opts.Description
	}
	if opts.RotatePolicy != "" {
		args.RotatePolicy = &opts.RotatePolicy
	}
	if err := s.backend.SecretSet(id, args); err != nil {
		return errors.Trace(err)
	}
	if opts.Label != "" {
		s.label = opts.Label
	}
	return nil
}

// Grant gives the remote application of relation, or only unit if given,
// access to the secret.
func (s *Secret) Grant(relation *Relation, unit string) error {
	id, err := s.resolve()
	if err != nil {
		return errors.Trace(err)
	}
	if unit != "" && !names.IsValidUnit(unit) {
		return errors.NotValidf("unit name %q", unit)
	}
	return errors.Trace(s.backend.SecretGrant(id, relation.id, unit))
}

// Revoke removes a grant made with Grant.
func (s *Secret) Revoke(relation *Relation, unit string) error {
	id, err := s.resolve()
	if err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(s.backend.SecretRevoke(id, relation.id, unit))
}

// RemoveRevision removes one revision of the secret.
func (s *Secret) RemoveRevision(revision int) error {
	if revision < 1 {
		return errors.NotValidf("secret revision %d", revision)
	}
	id, err := s.resolve()
	if err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(s.backend.SecretRemove(id, revision))
}

// RemoveAll removes the secret.
func (s *Secret) RemoveAll() error {
	id, err := s.resolve()
	if err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(s.backend.SecretRemove(id, 0))
}

// Storage is an attached storage instance.
type Storage struct {
	backend *backend.Backend
	name    string
	index   int
}

// Name returns the storage name.
func (s *Storage) Name() string {
	return s.name
}

// Index returns the instance index.
func (s *Storage) Index() int {
	return s.index
}

// ID returns the storage id, such as "data/0".
func (s *Storage) ID() string {
	return state.Storage{Name: s.name, Index: s.index}.ID()
}

// Location returns the host directory backing the storage.
func (s *Storage) Location() (string, error) {
	location, err := s.backend.StorageLocation(s.name, s.index)
	return location, errors.Trace(err)
}

// Container is a workload container. Operations against a container that
// cannot be connected to fail with a connection error.
type Container struct {
	*pebble.Client
}
