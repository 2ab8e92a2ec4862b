// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package state

import (
	"time"

	"github.com/juju/collections/set"

	"github.com/canonical/operator-sub000/core/secrets"
)

// Secret is a secret known to the unit under test.
type Secret struct {
	// ID is the secret URI.
	ID string `yaml:"id"`

	Label       string `yaml:"label,omitempty"`
	Description string `yaml:"description,omitempty"`

	// Owner is "unit", "app" or empty for a secret owned elsewhere and
	// granted to this unit.
	Owner secrets.Owner `yaml:"owner,omitempty"`

	// TrackedContent is the content of the revision the unit currently
	// observes.
	TrackedContent map[string]string `yaml:"tracked-content"`

	// LatestContent is the content of a newer revision the unit has not
	// yet consumed, if any.
	LatestContent map[string]string `yaml:"latest-content,omitempty"`

	// TrackedRevision is the revision number of TrackedContent.
	TrackedRevision int `yaml:"tracked-revision,omitempty"`

	// Grants maps relation ids to the remote application and unit names
	// the secret has been granted to.
	Grants map[int]set.Strings `yaml:"grants,omitempty"`

	RotatePolicy secrets.RotatePolicy `yaml:"rotate,omitempty"`
	Expire       *time.Time           `yaml:"expire,omitempty"`
}

// NewSecret returns a secret with the given tracked content and a new id.
func NewSecret(content map[string]string) Secret {
	return Secret{
		ID:              secrets.NewURI().String(),
		TrackedContent:  content,
		TrackedRevision: 1,
	}
}

// Revision returns the tracked revision, counting from 1.
func (s Secret) Revision() int {
	if s.TrackedRevision < 1 {
		return 1
	}
	return s.TrackedRevision
}

// LatestRevision returns the newest revision number of the secret.
func (s Secret) LatestRevision() int {
	if s.LatestContent != nil {
		return s.Revision() + 1
	}
	return s.Revision()
}

// Content returns the content observed by the unit. With refresh the latest
// revision is returned; without a newer revision that is the tracked one.
func (s Secret) Content(refresh bool) map[string]string {
	content := s.TrackedContent
	if refresh && s.LatestContent != nil {
		content = s.LatestContent
	}
	result := make(map[string]string, len(content))
	for k, v := range content {
		result[k] = v
	}
	return result
}

// Refreshed returns the secret with the latest revision tracked.
func (s Secret) Refreshed() Secret {
	if s.LatestContent == nil {
		return s
	}
	s.TrackedRevision = s.LatestRevision()
	s.TrackedContent = s.LatestContent
	s.LatestContent = nil
	return s
}

// Matches reports whether ref names this secret by id or label.
func (s Secret) Matches(ref string) bool {
	if ref == "" {
		return false
	}
	if ref == s.ID || (s.Label != "" && ref == s.Label) {
		return true
	}
	uri, err := secrets.ParseURI(ref)
	if err != nil {
		return false
	}
	own, err := secrets.ParseURI(s.ID)
	return err == nil && uri.ID == own.ID
}
