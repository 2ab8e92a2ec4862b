// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package backend

import (
	"sort"
	"time"

	"github.com/juju/collections/set"
	"github.com/juju/errors"

	coreerrors "github.com/canonical/operator-sub000/core/errors"
	"github.com/canonical/operator-sub000/core/secrets"
	"github.com/canonical/operator-sub000/state"
)

// SecretRef identifies a secret by id, label or both.
type SecretRef struct {
	ID    string
	Label string
}

// SecretAddArgs holds the arguments of SecretAdd.
type SecretAddArgs struct {
	Owner        secrets.Owner
	Content      map[string]string
	Label        string
	Description  string
	Expire       *time.Time
	RotatePolicy secrets.RotatePolicy
}

// SecretUpdateArgs holds the arguments of SecretSet. Nil fields are left
// unchanged.
type SecretUpdateArgs struct {
	Content      map[string]string
	Label        *string
	Description  *string
	Expire       *time.Time
	RotatePolicy *secrets.RotatePolicy
}

// SecretInfo is the metadata of an owned secret.
type SecretInfo struct {
	ID           string
	Label        string
	Description  string
	Owner        secrets.Owner
	Revision     int
	Expire       *time.Time
	RotatePolicy secrets.RotatePolicy
	NextRotate   *time.Time
}

func (b *Backend) checkSecretsSupported() error {
	if b.jujuVersion.Compare(minSecretsVersion) < 0 {
		return coreerrors.Errorf(coreerrors.NotSupported, "secrets need juju %s or later, simulating %s", minSecretsVersion, b.jujuVersion)
	}
	return nil
}

func (b *Backend) secretIndex(ref SecretRef) (int, error) {
	if ref.ID == "" && ref.Label == "" {
		return -1, errors.NotValidf("secret reference without id or label")
	}
	for i, s := range b.state.Secrets {
		if ref.ID != "" && s.Matches(ref.ID) {
			return i, nil
		}
	}
	if ref.ID == "" {
		for i, s := range b.state.Secrets {
			if s.Label == ref.Label {
				return i, nil
			}
		}
	}
	name := ref.ID
	if name == "" {
		name = ref.Label
	}
	return -1, coreerrors.Errorf(coreerrors.NotFound, "secret %q not found", name)
}

func (b *Backend) managedSecretIndex(id string) (int, error) {
	i, err := b.secretIndex(SecretRef{ID: id})
	if err != nil {
		return -1, errors.Trace(err)
	}
	secret := b.state.Secrets[i]
	role := secrets.RoleFor(secret.Owner, b.state.Leader)
	if !role.Allowed(secrets.RoleManage) {
		return -1, coreerrors.Errorf(coreerrors.PermissionDenied,
			"unit %q cannot manage secret %q", b.unitName, secret.ID)
	}
	return i, nil
}

// SecretAdd creates a secret owned by the unit or its application. Only the
// leader can create application secrets.
func (b *Backend) SecretAdd(args SecretAddArgs) (string, error) {
	if err := b.checkSecretsSupported(); err != nil {
		return "", errors.Trace(err)
	}
	switch args.Owner {
	case secrets.OwnerUnit:
	case secrets.OwnerApp:
		if !b.state.Leader {
			return "", coreerrors.Errorf(coreerrors.PermissionDenied,
				"unit %q cannot add application secrets: not the leader", b.unitName)
		}
	default:
		return "", errors.NotValidf("secret owner %q", args.Owner)
	}
	if len(args.Content) == 0 {
		return "", errors.NotValidf("empty secret content")
	}
	if !args.RotatePolicy.IsValid() {
		return "", errors.NotValidf("rotate policy %q", args.RotatePolicy)
	}
	if args.Label != "" {
		if _, err := b.secretIndex(SecretRef{Label: args.Label}); err == nil {
			return "", coreerrors.Errorf(coreerrors.AlreadyExists, "secret with label %q already exists", args.Label)
		}
	}
	secret := state.Secret{
		ID:              secrets.NewURI().String(),
		Label:           args.Label,
		Description:     args.Description,
		Owner:           args.Owner,
		TrackedContent:  copyContent(args.Content),
		TrackedRevision: 1,
		RotatePolicy:    args.RotatePolicy,
		Expire:          args.Expire,
	}
	b.state.Secrets = append(append([]state.Secret(nil), b.state.Secrets...), secret)
	logger.Debugf("unit %q added secret %q", b.unitName, secret.ID)
	return secret.ID, nil
}

// SecretGet returns the content of a secret. With peek the latest revision
// is returned without tracking it; with refresh the latest revision is
// returned and tracked from now on. Passing both an id and a label sets the
// label.
func (b *Backend) SecretGet(ref SecretRef, peek, refresh bool) (map[string]string, error) {
	if err := b.checkSecretsSupported(); err != nil {
		return nil, errors.Trace(err)
	}
	i, err := b.secretIndex(ref)
	if err != nil {
		return nil, errors.Trace(err)
	}
	secret := b.state.Secrets[i]
	if ref.ID != "" && ref.Label != "" {
		secret.Label = ref.Label
	}
	content := secret.Content(peek || refresh)
	if refresh {
		secret = secret.Refreshed()
	}
	b.state.Secrets[i] = secret
	return content, nil
}

// SecretInfoGet returns the metadata of a secret the unit manages.
func (b *Backend) SecretInfoGet(ref SecretRef) (SecretInfo, error) {
	if err := b.checkSecretsSupported(); err != nil {
		return SecretInfo{}, errors.Trace(err)
	}
	i, err := b.secretIndex(ref)
	if err != nil {
		return SecretInfo{}, errors.Trace(err)
	}
	secret := b.state.Secrets[i]
	if !secrets.RoleFor(secret.Owner, b.state.Leader).Allowed(secrets.RoleManage) {
		return SecretInfo{}, coreerrors.Errorf(coreerrors.PermissionDenied,
			"unit %q cannot read metadata of secret %q", b.unitName, secret.ID)
	}
	return SecretInfo{
		ID:           secret.ID,
		Label:        secret.Label,
		Description:  secret.Description,
		Owner:        secret.Owner,
		Revision:     secret.LatestRevision(),
		Expire:       secret.Expire,
		RotatePolicy: secret.RotatePolicy,
		NextRotate:   secret.RotatePolicy.NextRotateTime(b.clock.Now()),
	}, nil
}

// SecretSet updates a secret the unit manages. New content becomes a new
// revision, which the owner tracks immediately.
func (b *Backend) SecretSet(id string, args SecretUpdateArgs) error {
	if err := b.checkSecretsSupported(); err != nil {
		return errors.Trace(err)
	}
	i, err := b.managedSecretIndex(id)
	if err != nil {
		return errors.Trace(err)
	}
	secret := b.state.Secrets[i]
	if args.Content != nil {
		if len(args.Content) == 0 {
			return errors.NotValidf("empty secret content")
		}
		secret.TrackedRevision = secret.LatestRevision() + 1
		secret.TrackedContent = copyContent(args.Content)
		secret.LatestContent = nil
	}
	if args.Label != nil {
		secret.Label = *args.Label
	}
	if args.Description != nil {
		secret.Description = *args.Description
	}
	if args.Expire != nil {
		expire := *args.Expire
		secret.Expire = &expire
	}
	if args.RotatePolicy != nil {
		if !args.RotatePolicy.IsValid() {
			return errors.NotValidf("rotate policy %q", *args.RotatePolicy)
		}
		secret.RotatePolicy = *args.RotatePolicy
	}
	b.state.Secrets[i] = secret
	return nil
}

// SecretGrant grants access to a secret the unit manages to the remote
// application of a relation or, if unit is set, one of its units.
func (b *Backend) SecretGrant(id string, relationID int, unit string) error {
	i, rel, err := b.grantTarget(id, relationID, unit)
	if err != nil {
		return errors.Trace(err)
	}
	secret := b.state.Secrets[i]
	grants := copyGrants(secret.Grants)
	if grants == nil {
		grants = map[int]set.Strings{}
	}
	entities, ok := grants[rel.ID]
	if !ok {
		entities = set.NewStrings()
	}
	if unit != "" {
		entities.Add(unit)
	} else {
		entities.Add(rel.RemoteAppName)
	}
	grants[rel.ID] = entities
	secret.Grants = grants
	b.state.Secrets[i] = secret
	return nil
}

// SecretRevoke revokes a grant made with SecretGrant.
func (b *Backend) SecretRevoke(id string, relationID int, unit string) error {
	i, rel, err := b.grantTarget(id, relationID, unit)
	if err != nil {
		return errors.Trace(err)
	}
	secret := b.state.Secrets[i]
	grants := copyGrants(secret.Grants)
	entities, ok := grants[rel.ID]
	if !ok {
		return nil
	}
	if unit != "" {
		entities.Remove(unit)
	} else {
		entities.Remove(rel.RemoteAppName)
	}
	if entities.IsEmpty() {
		delete(grants, rel.ID)
	}
	if len(grants) == 0 {
		grants = nil
	}
	secret.Grants = grants
	b.state.Secrets[i] = secret
	return nil
}

func (b *Backend) grantTarget(id string, relationID int, unit string) (int, state.Relation, error) {
	if err := b.checkSecretsSupported(); err != nil {
		return -1, state.Relation{}, errors.Trace(err)
	}
	i, err := b.managedSecretIndex(id)
	if err != nil {
		return -1, state.Relation{}, errors.Trace(err)
	}
	rel, err := b.relation(relationID)
	if err != nil {
		return -1, state.Relation{}, errors.Trace(err)
	}
	if unit != "" {
		found := false
		for _, name := range rel.RemoteUnitNames() {
			if name == unit {
				found = true
				break
			}
		}
		if !found {
			return -1, state.Relation{}, coreerrors.Errorf(coreerrors.NotFound, "unit %q is not in %s", unit, rel)
		}
	}
	return i, rel, nil
}

// SecretRemove removes one revision of a secret the unit manages, or the
// whole secret if revision is zero.
func (b *Backend) SecretRemove(id string, revision int) error {
	if err := b.checkSecretsSupported(); err != nil {
		return errors.Trace(err)
	}
	i, err := b.managedSecretIndex(id)
	if err != nil {
		return errors.Trace(err)
	}
	secret := b.state.Secrets[i]
	if revision != 0 {
		if revision < 1 || revision > secret.LatestRevision() {
			return coreerrors.Errorf(coreerrors.NotFound, "secret %q revision %d not found", secret.ID, revision)
		}
		b.journal.RemovedSecretRevisions = append(b.journal.RemovedSecretRevisions,
			SecretRevision{ID: secret.ID, Revision: revision})
		return nil
	}
	for rev := 1; rev <= secret.LatestRevision(); rev++ {
		b.journal.RemovedSecretRevisions = append(b.journal.RemovedSecretRevisions,
			SecretRevision{ID: secret.ID, Revision: rev})
	}
	remaining := make([]state.Secret, 0, len(b.state.Secrets)-1)
	remaining = append(remaining, b.state.Secrets[:i]...)
	remaining = append(remaining, b.state.Secrets[i+1:]...)
	if len(remaining) == 0 {
		remaining = nil
	}
	b.state.Secrets = remaining
	return nil
}

// SecretIDs returns the ids of the secrets the unit's application or the
// unit itself owns.
func (b *Backend) SecretIDs() ([]string, error) {
	if err := b.checkSecretsSupported(); err != nil {
		return nil, errors.Trace(err)
	}
	var ids []string
	for _, s := range b.state.Secrets {
		if s.Owner == secrets.OwnerUnit || s.Owner == secrets.OwnerApp {
			ids = append(ids, s.ID)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func copyContent(content map[string]string) map[string]string {
	result := make(map[string]string, len(content))
	for k, v := range content {
		result[k] = v
	}
	return result
}

func copyGrants(grants map[int]set.Strings) map[int]set.Strings {
	if grants == nil {
		return nil
	}
	result := make(map[int]set.Strings, len(grants))
	for id, entities := range grants {
		result[id] = set.NewStrings(entities.Values()...)
	}
	return result
}

// SecretID resolves a reference to the id of the secret it names.
func (b *Backend) SecretID(ref SecretRef) (string, error) {
	if err := b.checkSecretsSupported(); err != nil {
		return "", errors.Trace(err)
	}
	i, err := b.secretIndex(ref)
	if err != nil {
		return "", errors.Trace(err)
	}
	if ref.ID != "" && ref.Label != "" {
		b.state.Secrets[i].Label = ref.Label
	}
	return b.state.Secrets[i].ID, nil
}
