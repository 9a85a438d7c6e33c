// Copyright 2024 The Authors (see AUTHORS file)
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package usersync defines the contract for converging external identity and
// collaboration providers to a single canonical description of users and
// groups. Canonical state is the source of truth: adapters drive remote
// state toward it and never the reverse.
package usersync

import "context"

// Provider is the capability set implemented once per external system.
//
// Every operation is idempotent: invoking the same Ensure* twice without an
// intervening canonical change performs no additional remote mutation. On
// error the remaining steps of that call are abandoned and any steps already
// completed are left as-is; the next reconciliation pass converges them.
// Nothing is rolled back and nothing is retried here.
type Provider interface {
	// EnsureUser creates or updates the remote user record to match the
	// canonical user and then reconciles that user's group memberships.
	// It returns the provider-native user identifier. An empty identifier
	// with a nil error means the user is intentionally not provisioned on
	// this provider (for example, no GitHub handle).
	EnsureUser(ctx context.Context, company *Company, user *User) (string, error)

	// EnsureGroup creates or updates the remote group record (name,
	// description, aliases, provider-specific extras) to match the
	// canonical group.
	EnsureGroup(ctx context.Context, company *Company, group *Group) error

	// UserIsGroupMember reports whether the user currently holds the
	// correct role in the named remote group.
	UserIsGroupMember(ctx context.Context, company *Company, user *User, group string) (bool, error)

	// AddUserToGroup adds the user to the named group, or updates their
	// role if they are already a member with a divergent role.
	AddUserToGroup(ctx context.Context, company *Company, user *User, group string) error

	// RemoveUserFromGroup removes the user from the named group.
	RemoveUserFromGroup(ctx context.Context, company *Company, user *User, group string) error

	// ListUsers returns a full snapshot of the provider's user records.
	ListUsers(ctx context.Context, company *Company) ([]*RemoteUser, error)

	// ListGroups returns a full snapshot of the provider's group records.
	// It is the only way to enumerate remote-only groups, so the
	// membership reconciliation algorithm depends on it.
	ListGroups(ctx context.Context, company *Company) ([]*RemoteGroup, error)

	// DeleteUser removes the user in the provider-appropriate way, which
	// may be a hard delete, an organization removal, or a suspension.
	DeleteUser(ctx context.Context, company *Company, user *User) error

	// DeleteGroup removes the group. Deleting a group that no longer
	// exists is a success.
	DeleteGroup(ctx context.Context, company *Company, group *Group) error
}

// User is a canonical user record, owned by the directory. Adapters read it
// and never mutate it.
type User struct {
	Email         string   `yaml:"email" json:"email"`
	FirstName     string   `yaml:"first_name" json:"first_name"`
	LastName      string   `yaml:"last_name" json:"last_name"`
	RecoveryEmail string   `yaml:"recovery_email,omitempty" json:"recovery_email,omitempty"`
	RecoveryPhone string   `yaml:"recovery_phone,omitempty" json:"recovery_phone,omitempty"`
	Department    string   `yaml:"department,omitempty" json:"department,omitempty"`
	// Manager is the manager's canonical email, resolved via a Directory.
	Manager string `yaml:"manager,omitempty" json:"manager,omitempty"`

	// Groups is the set of canonical group names the user should belong
	// to on every provider that has a group concept.
	Groups []string `yaml:"groups,omitempty" json:"groups,omitempty"`
	// IsGroupAdmin selects the provider's elevated role when the user is
	// added to a group (for example Maintainer or OWNER).
	IsGroupAdmin bool `yaml:"is_group_admin,omitempty" json:"is_group_admin,omitempty"`

	// GitHub and GitLab are provider handles. An empty handle means the
	// user is not provisioned on that provider and every operation for
	// them is a successful no-op there.
	GitHub string `yaml:"github,omitempty" json:"github,omitempty"`
	GitLab string `yaml:"gitlab,omitempty" json:"gitlab,omitempty"`
	// RampID is the Ramp user id, when known to the directory. It is
	// needed to reference this user as someone's manager on Ramp.
	RampID string `yaml:"ramp_id,omitempty" json:"ramp_id,omitempty"`

	Aliases []string `yaml:"aliases,omitempty" json:"aliases,omitempty"`
}

// FullName returns the user's display name.
func (u *User) FullName() string {
	if u.FirstName == "" {
		return u.LastName
	}
	if u.LastName == "" {
		return u.FirstName
	}
	return u.FirstName + " " + u.LastName
}

// Group is a canonical group record. Name is the primary key on every
// provider: adapters resolve it to a provider-native identifier themselves.
type Group struct {
	Name        string   `yaml:"name" json:"name"`
	Description string   `yaml:"description,omitempty" json:"description,omitempty"`
	Aliases     []string `yaml:"aliases,omitempty" json:"aliases,omitempty"`
	// Repos are repository names granted to the group at creation time.
	// Only the org-membership provider consumes them.
	Repos []string `yaml:"repos,omitempty" json:"repos,omitempty"`

	// Groupware mailing list settings.
	AllowExternalMembers bool `yaml:"allow_external_members,omitempty" json:"allow_external_members,omitempty"`
	AllowWebPosting      bool `yaml:"allow_web_posting,omitempty" json:"allow_web_posting,omitempty"`
}

// Company scopes adapter calls to one provider account. It is supplied per
// call; adapters hold no account state of their own.
type Company struct {
	Name string `yaml:"name" json:"name"`

	GitHubOrg         string `yaml:"github_org,omitempty" json:"github_org,omitempty"`
	GSuiteDomain      string `yaml:"gsuite_domain,omitempty" json:"gsuite_domain,omitempty"`
	GSuiteCustomerID  string `yaml:"gsuite_customer_id,omitempty" json:"gsuite_customer_id,omitempty"`
	GitLabParentGroup string `yaml:"gitlab_parent_group,omitempty" json:"gitlab_parent_group,omitempty"`
}

// RemoteUser is a provider-native user record from a ListUsers snapshot.
type RemoteUser struct {
	// ID is the provider-native identifier.
	ID string `json:"id,omitempty"`
	// Attributes is the raw provider record. This field is typically set
	// by the adapter that produced the snapshot.
	Attributes any `json:"attributes,omitempty"`
}

// RemoteGroup is a provider-native group record from a ListGroups snapshot.
type RemoteGroup struct {
	// Name is the provider-side name comparable to a canonical group name.
	Name string `json:"name,omitempty"`
	// Attributes is the raw provider record.
	Attributes any `json:"attributes,omitempty"`
}

// Directory resolves references between canonical records. It is the
// read-only boundary to whatever stores canonical state.
type Directory interface {
	// Manager returns the canonical record for the user's manager, or
	// nil when the user has none.
	Manager(ctx context.Context, user *User) (*User, error)
}

// Notifier delivers out-of-band notifications for provisioning side effects.
type Notifier interface {
	// NewUser is invoked after a remote user account was created for the
	// first time. An error fails the EnsureUser call that triggered it.
	NewUser(ctx context.Context, user *User, password string) error
}
