// Copyright 2021 Canonical Ltd.
// Licensed under the LGPLv3, see LICENCE file for details.

package secrets

// SecretRole is an access role on a secret.
type SecretRole string

const (
	RoleNone   = SecretRole("")
	RoleView   = SecretRole("view")
	RoleRotate = SecretRole("rotate")
	RoleManage = SecretRole("manage")
)

// Allowed returns true if r allows the permissions granted by r2.
func (r SecretRole) Allowed(r2 SecretRole) bool {
	switch r {
	case RoleView:
		return r2 == RoleView
	case RoleRotate:
		return r2 == RoleView || r2 == RoleRotate
	case RoleManage:
		return r2 == RoleView || r2 == RoleRotate || r2 == RoleManage
	}
	return false
}

// RoleFor returns the role a unit holds on a secret with the given owner.
// Unit owned secrets are managed by the unit itself; application owned
// secrets are managed by the leader and only viewed by other units.
// Secrets owned elsewhere are only ever viewed.
func RoleFor(owner Owner, leader bool) SecretRole {
	switch owner {
	case OwnerUnit:
		return RoleManage
	case OwnerApp:
		if leader {
			return RoleManage
		}
		return RoleView
	}
	return RoleView
}
