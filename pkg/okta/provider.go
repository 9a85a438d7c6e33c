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

package okta

import (
	"context"
	"fmt"

	"github.com/abcxyz/pkg/logging"
	"github.com/abcxyz/provider-link/pkg/usersync"
)

// Provider adheres to the usersync.Provider interface and converges Okta
// users, groups and group memberships.
type Provider struct {
	client    *Client
	directory usersync.Directory
}

// NewProvider creates an Okta provider. The directory resolves manager
// references when building user profiles; it may be nil when manager
// attributes are not managed.
func NewProvider(client *Client, directory usersync.Directory) *Provider {
	return &Provider{
		client:    client,
		directory: directory,
	}
}

// EnsureUser upserts the Okta user profile keyed by login email and then
// reconciles their group memberships. The returned identifier is the Okta
// user id.
func (p *Provider) EnsureUser(ctx context.Context, company *usersync.Company, user *usersync.User) (string, error) {
	logger := logging.FromContext(ctx)

	profile, err := p.buildProfile(ctx, company, user)
	if err != nil {
		return "", err
	}

	existing, err := p.client.GetUser(ctx, user.Email)
	if err != nil {
		return "", fmt.Errorf("okta: failed to look up user %q: %w", user.Email, err)
	}

	var id string
	if existing != nil {
		updated, err := p.client.UpdateUser(ctx, existing.ID, profile)
		if err != nil {
			return "", fmt.Errorf("okta: failed to update user %q: %w", user.Email, err)
		}
		id = updated.ID
		logger.InfoContext(ctx, "updated user", "user", user.Email)
	} else {
		created, err := p.client.CreateUser(ctx, profile)
		if err != nil {
			return "", fmt.Errorf("okta: failed to create user %q: %w", user.Email, err)
		}
		id = created.ID
		logger.InfoContext(ctx, "created user", "user", user.Email)
	}

	if err := usersync.SyncMemberships(ctx, p, company, user); err != nil {
		return "", fmt.Errorf("okta: failed to reconcile group memberships for %q: %w", user.Email, err)
	}
	return id, nil
}

// EnsureGroup upserts the group. Because groups can only be resolved by
// scanning the listing, an update is only issued when the description
// actually diverges.
func (p *Provider) EnsureGroup(ctx context.Context, company *usersync.Company, group *usersync.Group) error {
	logger := logging.FromContext(ctx)

	existing, err := p.findGroup(ctx, group.Name)
	if err != nil {
		return err
	}

	profile := &GroupProfile{
		Name:        group.Name,
		Description: group.Description,
	}
	if existing != nil {
		if existing.Profile.Description == group.Description {
			return nil
		}
		if _, err := p.client.UpdateGroup(ctx, existing.ID, profile); err != nil {
			return fmt.Errorf("okta: failed to update group %q: %w", group.Name, err)
		}
		logger.InfoContext(ctx, "updated group", "group", group.Name)
		return nil
	}

	if _, err := p.client.CreateGroup(ctx, profile); err != nil {
		return fmt.Errorf("okta: failed to create group %q: %w", group.Name, err)
	}
	logger.InfoContext(ctx, "created group", "group", group.Name)
	return nil
}

// UserIsGroupMember reports whether the user is in the named group. A group
// that does not exist remotely has no members.
func (p *Provider) UserIsGroupMember(ctx context.Context, company *usersync.Company, user *usersync.User, group string) (bool, error) {
	g, err := p.findGroup(ctx, group)
	if err != nil {
		return false, err
	}
	if g == nil {
		return false, nil
	}

	members, err := p.client.ListGroupUsers(ctx, g.ID)
	if err != nil {
		return false, fmt.Errorf("okta: failed to list members of group %q: %w", group, err)
	}
	for _, m := range members {
		if m.Profile.Login == user.Email {
			return true, nil
		}
	}
	return false, nil
}

// AddUserToGroup adds the user to the named group. Both the user and the
// group must already exist.
func (p *Provider) AddUserToGroup(ctx context.Context, company *usersync.Company, user *usersync.User, group string) error {
	u, err := p.client.GetUser(ctx, user.Email)
	if err != nil {
		return fmt.Errorf("okta: failed to look up user %q: %w", user.Email, err)
	}
	if u == nil {
		return &usersync.NotFoundError{Provider: "okta", Resource: "user", Name: user.Email}
	}

	g, err := p.findGroup(ctx, group)
	if err != nil {
		return err
	}
	if g == nil {
		return &usersync.NotFoundError{Provider: "okta", Resource: "group", Name: group}
	}

	if err := p.client.AddUserToGroup(ctx, g.ID, u.ID); err != nil {
		return fmt.Errorf("okta: failed to add %q to group %q: %w", user.Email, group, err)
	}
	return nil
}

// RemoveUserFromGroup removes the user from the named group. A missing user
// or group means there is nothing to remove.
func (p *Provider) RemoveUserFromGroup(ctx context.Context, company *usersync.Company, user *usersync.User, group string) error {
	u, err := p.client.GetUser(ctx, user.Email)
	if err != nil {
		return fmt.Errorf("okta: failed to look up user %q: %w", user.Email, err)
	}
	if u == nil {
		return nil
	}

	g, err := p.findGroup(ctx, group)
	if err != nil {
		return err
	}
	if g == nil {
		return nil
	}

	if err := p.client.RemoveUserFromGroup(ctx, g.ID, u.ID); err != nil {
		return fmt.Errorf("okta: failed to remove %q from group %q: %w", user.Email, group, err)
	}
	return nil
}

// ListUsers returns every user in the organization.
func (p *Provider) ListUsers(ctx context.Context, company *usersync.Company) ([]*usersync.RemoteUser, error) {
	users, err := p.client.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("okta: failed to list users: %w", err)
	}
	out := make([]*usersync.RemoteUser, 0, len(users))
	for _, u := range users {
		out = append(out, &usersync.RemoteUser{ID: u.ID, Attributes: u})
	}
	return out, nil
}

// ListGroups returns every group in the organization.
func (p *Provider) ListGroups(ctx context.Context, company *usersync.Company) ([]*usersync.RemoteGroup, error) {
	groups, err := p.client.ListGroups(ctx)
	if err != nil {
		return nil, fmt.Errorf("okta: failed to list groups: %w", err)
	}
	out := make([]*usersync.RemoteGroup, 0, len(groups))
	for _, g := range groups {
		out = append(out, &usersync.RemoteGroup{Name: g.Profile.Name, Attributes: g})
	}
	return out, nil
}

// DeleteUser deactivates the user. A user that does not exist is a success.
func (p *Provider) DeleteUser(ctx context.Context, company *usersync.Company, user *usersync.User) error {
	u, err := p.client.GetUser(ctx, user.Email)
	if err != nil {
		return fmt.Errorf("okta: failed to look up user %q: %w", user.Email, err)
	}
	if u == nil {
		return nil
	}
	if err := p.client.DeactivateUser(ctx, u.ID); err != nil {
		return fmt.Errorf("okta: failed to deactivate user %q: %w", user.Email, err)
	}
	logging.FromContext(ctx).InfoContext(ctx, "deactivated user", "user", user.Email)
	return nil
}

// DeleteGroup deletes the group. A group that does not exist is a success.
func (p *Provider) DeleteGroup(ctx context.Context, company *usersync.Company, group *usersync.Group) error {
	g, err := p.findGroup(ctx, group.Name)
	if err != nil {
		return err
	}
	if g == nil {
		return nil
	}
	if err := p.client.DeleteGroup(ctx, g.ID); err != nil {
		return fmt.Errorf("okta: failed to delete group %q: %w", group.Name, err)
	}
	logging.FromContext(ctx).InfoContext(ctx, "deleted group", "group", group.Name)
	return nil
}

// findGroup resolves a group name by scanning the full listing. It returns
// the first exact profile name match, or nil when no group carries the name.
func (p *Provider) findGroup(ctx context.Context, name string) (*Group, error) {
	groups, err := p.client.ListGroups(ctx)
	if err != nil {
		return nil, fmt.Errorf("okta: failed to list groups: %w", err)
	}
	for _, g := range groups {
		if g.Profile.Name == name {
			return g, nil
		}
	}
	return nil, nil
}

// buildProfile maps the canonical user onto the Okta profile schema.
func (p *Provider) buildProfile(ctx context.Context, company *usersync.Company, user *usersync.User) (*UserProfile, error) {
	profile := &UserProfile{
		Login:        user.Email,
		Email:        user.Email,
		FirstName:    user.FirstName,
		LastName:     user.LastName,
		DisplayName:  user.FullName(),
		Department:   user.Department,
		MobilePhone:  user.RecoveryPhone,
		PrimaryPhone: user.RecoveryPhone,
		SecondEmail:  user.RecoveryEmail,
		Organization: company.Name,
	}
	if p.directory != nil {
		manager, err := p.directory.Manager(ctx, user)
		if err != nil {
			return nil, fmt.Errorf("okta: failed to resolve manager for %q: %w", user.Email, err)
		}
		if manager != nil {
			profile.Manager = manager.Email
		}
	}
	return profile, nil
}
