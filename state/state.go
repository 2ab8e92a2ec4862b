// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package state holds the declarative snapshot of everything the controller
// exposes to a unit: the input and output of a simulated dispatch.
//
// A State is treated as an immutable value. Modifiers return a changed copy
// and never touch the receiver, so a State can be forked freely between
// dispatches.
package state

import (
	"fmt"
	"reflect"
	"sort"

	"github.com/juju/collections/set"
	"github.com/juju/errors"
	"github.com/kr/pretty"
	"github.com/mohae/deepcopy"

	"github.com/canonical/operator-sub000/core/secrets"
	"github.com/canonical/operator-sub000/core/status"
)

// Storage is an attached storage instance.
type Storage struct {
	Name  string `yaml:"name"`
	Index int    `yaml:"index,omitempty"`

	// Location is the host directory backing the storage. When empty a
	// temporary directory is provided for the duration of a dispatch.
	Location string `yaml:"location,omitempty"`
}

// ID returns the storage id, such as "data/0".
func (s Storage) ID() string {
	return fmt.Sprintf("%s/%d", s.Name, s.Index)
}

// Port is an opened port.
type Port struct {
	Protocol string `yaml:"protocol"`
	Port     int    `yaml:"port,omitempty"`
}

// Address is one address of a bound interface.
type Address struct {
	Hostname string `yaml:"hostname,omitempty"`
	Value    string `yaml:"value"`
	CIDR     string `yaml:"cidr,omitempty"`
}

// BindAddress is an interface bound to an endpoint.
type BindAddress struct {
	InterfaceName string    `yaml:"interface-name,omitempty"`
	MACAddress    string    `yaml:"mac-address,omitempty"`
	Addresses     []Address `yaml:"addresses"`
}

// Network is the network configuration of one endpoint binding.
type Network struct {
	BindAddresses    []BindAddress `yaml:"bind-addresses"`
	IngressAddresses []string      `yaml:"ingress-addresses,omitempty"`
	EgressSubnets    []string      `yaml:"egress-subnets,omitempty"`
}

// DefaultNetwork returns the network used for bindings the state does not
// configure.
func DefaultNetwork() Network {
	return Network{
		BindAddresses: []BindAddress{{
			InterfaceName: "eth0",
			MACAddress:    "00:00:00:00:00:00",
			Addresses:     []Address{{Hostname: "", Value: "192.0.2.0", CIDR: "192.0.2.0/24"}},
		}},
		IngressAddresses: []string{"192.0.2.0"},
		EgressSubnets:    []string{"192.0.2.0/24"},
	}
}

// ModelType is the type of model hosting the unit.
type ModelType string

const (
	IAAS ModelType = "iaas"
	CAAS ModelType = "caas"
)

// Model describes the model hosting the unit.
type Model struct {
	Name string    `yaml:"name,omitempty"`
	UUID string    `yaml:"uuid,omitempty"`
	Type ModelType `yaml:"type,omitempty"`
}

// StoredState is framework data persisted for a charm object between
// dispatches.
type StoredState struct {
	Owner   string                 `yaml:"owner"`
	Name    string                 `yaml:"name"`
	Content map[string]interface{} `yaml:"content,omitempty"`
}

// DeferredEvent is an event deferred by an observer, to be re-emitted at
// the start of the next dispatch.
type DeferredEvent struct {
	// Handle uniquely identifies the deferred notice.
	Handle string `yaml:"handle"`

	// Observer is the name the handler was registered under.
	Observer string `yaml:"observer"`

	// EventID is the identifier the event was emitted under.
	EventID string `yaml:"event-id"`

	// Snapshot holds what is needed to rebuild the event.
	Snapshot map[string]string `yaml:"snapshot,omitempty"`
}

// State is the declared state of a unit.
type State struct {
	Config          map[string]interface{} `yaml:"config,omitempty"`
	Relations       []Relation             `yaml:"relations,omitempty"`
	Networks        map[string]Network     `yaml:"networks,omitempty"`
	Containers      []Container            `yaml:"containers,omitempty"`
	Storages        []Storage              `yaml:"storages,omitempty"`
	OpenedPorts     []Port                 `yaml:"opened-ports,omitempty"`
	Leader          bool                   `yaml:"leader,omitempty"`
	Model           Model                  `yaml:"model,omitempty"`
	Secrets         []Secret               `yaml:"secrets,omitempty"`
	Resources       map[string]string      `yaml:"resources,omitempty"`
	PlannedUnits    int                    `yaml:"planned-units,omitempty"`
	UnitStatus      status.StatusInfo      `yaml:"unit-status,omitempty"`
	AppStatus       status.StatusInfo      `yaml:"app-status,omitempty"`
	WorkloadVersion string                 `yaml:"workload-version,omitempty"`
	StoredStates    []StoredState          `yaml:"stored-states,omitempty"`
	DeferredEvents  []DeferredEvent        `yaml:"deferred,omitempty"`
}

// Copy returns a structurally independent copy of the state.
func (s State) Copy() State {
	return deepcopy.Copy(s).(State)
}

// Equal reports whether two states are structurally equal.
func (s State) Equal(other State) bool {
	return reflect.DeepEqual(s, other)
}

// Diff returns a human readable list of the differences between two states.
func Diff(a, b State) []string {
	return pretty.Diff(a, b)
}

// Relation returns the relation with the given id.
func (s State) Relation(id int) (Relation, error) {
	for _, r := range s.Relations {
		if r.ID == id {
			return r, nil
		}
	}
	return Relation{}, errors.NotFoundf("relation %d", id)
}

// RelationsFor returns the relations established on an endpoint, ordered by
// id.
func (s State) RelationsFor(endpoint string) []Relation {
	var result []Relation
	for _, r := range s.Relations {
		if r.Endpoint == endpoint {
			result = append(result, r)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

// NextRelationID returns an id not used by any relation.
func (s State) NextRelationID() int {
	next := 1
	for _, r := range s.Relations {
		if r.ID >= next {
			next = r.ID + 1
		}
	}
	return next
}

// Container returns the named container.
func (s State) Container(name string) (Container, error) {
	for _, c := range s.Containers {
		if c.Name == name {
			return c, nil
		}
	}
	return Container{}, errors.NotFoundf("container %q", name)
}

// Secret returns the secret with the given id or label.
func (s State) Secret(ref string) (Secret, error) {
	for _, secret := range s.Secrets {
		if secret.Matches(ref) {
			return secret, nil
		}
	}
	return Secret{}, errors.NotFoundf("secret %q", ref)
}

// Storage returns the storage instance with the given name and index.
func (s State) Storage(name string, index int) (Storage, error) {
	for _, st := range s.Storages {
		if st.Name == name && st.Index == index {
			return st, nil
		}
	}
	return Storage{}, errors.NotFoundf("storage %s/%d", name, index)
}

// StoredState returns the stored state for an owner.
func (s State) StoredState(owner, name string) (StoredState, bool) {
	for _, st := range s.StoredStates {
		if st.Owner == owner && st.Name == name {
			return st, true
		}
	}
	return StoredState{}, false
}

// Network returns the network of a binding, or the default network.
func (s State) Network(binding string) Network {
	if network, ok := s.Networks[binding]; ok {
		return network
	}
	return DefaultNetwork()
}

// WithLeader returns a copy of the state with leadership set.
func (s State) WithLeader(leader bool) State {
	result := s.Copy()
	result.Leader = leader
	return result
}

// WithConfig returns a copy of the state with the given config values
// added to any already present.
func (s State) WithConfig(config map[string]interface{}) State {
	result := s.Copy()
	if result.Config == nil {
		result.Config = make(map[string]interface{}, len(config))
	}
	for k, v := range deepcopy.Copy(config).(map[string]interface{}) {
		result.Config[k] = v
	}
	return result
}

// WithRelation returns a copy of the state with r added, replacing any
// relation with the same id.
func (s State) WithRelation(r Relation) State {
	result := s.Copy()
	r = deepcopy.Copy(r).(Relation)
	for i := range result.Relations {
		if result.Relations[i].ID == r.ID {
			result.Relations[i] = r
			return result
		}
	}
	result.Relations = append(result.Relations, r)
	return result
}

// WithContainer returns a copy of the state with c added, replacing any
// container with the same name.
func (s State) WithContainer(c Container) State {
	result := s.Copy()
	c = deepcopy.Copy(c).(Container)
	for i := range result.Containers {
		if result.Containers[i].Name == c.Name {
			result.Containers[i] = c
			return result
		}
	}
	result.Containers = append(result.Containers, c)
	return result
}

// WithSecret returns a copy of the state with secret added, replacing any
// secret with the same id.
func (s State) WithSecret(secret Secret) State {
	result := s.Copy()
	secret = deepcopy.Copy(secret).(Secret)
	for i := range result.Secrets {
		if result.Secrets[i].ID == secret.ID {
			result.Secrets[i] = secret
			return result
		}
	}
	result.Secrets = append(result.Secrets, secret)
	return result
}

// WithStorage returns a copy of the state with st attached.
func (s State) WithStorage(st Storage) State {
	result := s.Copy()
	for i := range result.Storages {
		if result.Storages[i].Name == st.Name && result.Storages[i].Index == st.Index {
			result.Storages[i] = st
			return result
		}
	}
	result.Storages = append(result.Storages, st)
	return result
}

// WithDeferred returns a copy of the state with events queued for
// re-emission.
func (s State) WithDeferred(events ...DeferredEvent) State {
	result := s.Copy()
	result.DeferredEvents = append(result.DeferredEvents, deepcopy.Copy(events).([]DeferredEvent)...)
	return result
}

// Validate checks the internal consistency of the state, independent of
// any charm metadata.
func (s State) Validate() error {
	ids := set.NewInts()
	for _, r := range s.Relations {
		if ids.Contains(r.ID) {
			return errors.NotValidf("duplicate relation id %d", r.ID)
		}
		ids.Add(r.ID)
		if r.Endpoint == "" {
			return errors.NotValidf("relation %d without endpoint", r.ID)
		}
		if r.RemoteAppName == "" {
			return errors.NotValidf("relation %s without remote application", r)
		}
	}
	containers := set.NewStrings()
	for _, c := range s.Containers {
		if containers.Contains(c.Name) {
			return errors.NotValidf("duplicate container %q", c.Name)
		}
		containers.Add(c.Name)
		for label, layer := range c.Layers {
			if layer == nil || layer.Label != label {
				return errors.NotValidf("container %q layer %q label mismatch", c.Name, label)
			}
		}
	}
	secretIDs := set.NewStrings()
	for _, secret := range s.Secrets {
		if _, err := secrets.ParseURI(secret.ID); err != nil {
			return errors.Trace(err)
		}
		if secretIDs.Contains(secret.ID) {
			return errors.NotValidf("duplicate secret %q", secret.ID)
		}
		secretIDs.Add(secret.ID)
		if !secret.Owner.IsValid() {
			return errors.NotValidf("secret %q owner %q", secret.ID, secret.Owner)
		}
		if !secret.RotatePolicy.IsValid() {
			return errors.NotValidf("secret %q rotate policy %q", secret.ID, secret.RotatePolicy)
		}
	}
	storages := set.NewStrings()
	for _, st := range s.Storages {
		if storages.Contains(st.ID()) {
			return errors.NotValidf("duplicate storage %q", st.ID())
		}
		storages.Add(st.ID())
	}
	for _, p := range s.OpenedPorts {
		switch p.Protocol {
		case "tcp", "udp":
			if p.Port < 1 || p.Port > 65535 {
				return errors.NotValidf("port %d/%s", p.Port, p.Protocol)
			}
		case "icmp":
			if p.Port != 0 {
				return errors.NotValidf("icmp port %d", p.Port)
			}
		default:
			return errors.NotValidf("protocol %q", p.Protocol)
		}
	}
	handles := set.NewStrings()
	for _, d := range s.DeferredEvents {
		if handles.Contains(d.Handle) {
			return errors.NotValidf("duplicate deferred event %q", d.Handle)
		}
		handles.Add(d.Handle)
	}
	return nil
}
