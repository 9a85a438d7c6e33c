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

package ramp

import (
	"context"
	"fmt"

	"github.com/abcxyz/pkg/logging"
	"github.com/abcxyz/provider-link/pkg/usersync"
)

// defaultRole is the Ramp role granted to invited users.
const defaultRole = "BUSINESS_USER"

// Provider adheres to the usersync.Provider interface for Ramp. Only user
// provisioning carries semantics here; Ramp has no groups.
type Provider struct {
	client    *Client
	directory usersync.Directory
}

// NewProvider creates a Ramp provider. The directory resolves manager
// references for invitations; it may be nil.
func NewProvider(client *Client, directory usersync.Directory) *Provider {
	return &Provider{
		client:    client,
		directory: directory,
	}
}

// EnsureUser invites the user to Ramp if no account with their email
// exists. An existing account is left untouched and its id returned, so
// repeated calls do not send duplicate invitations. For a new invitation
// the returned identifier is the asynchronous provisioning task id.
func (p *Provider) EnsureUser(ctx context.Context, company *usersync.Company, user *usersync.User) (string, error) {
	logger := logging.FromContext(ctx)

	users, err := p.client.ListUsers(ctx)
	if err != nil {
		return "", fmt.Errorf("ramp: failed to list users: %w", err)
	}
	for _, u := range users {
		if u.Email == user.Email {
			return u.ID, nil
		}
	}

	req := &DeferredUserRequest{
		Email:     user.Email,
		FirstName: user.FirstName,
		LastName:  user.LastName,
		Phone:     user.RecoveryPhone,
		Role:      defaultRole,
	}

	if user.Department != "" {
		departments, err := p.client.ListDepartments(ctx)
		if err != nil {
			return "", fmt.Errorf("ramp: failed to list departments: %w", err)
		}
		for _, d := range departments {
			if d.Name == user.Department {
				req.DepartmentID = d.ID
				break
			}
		}
	}

	if p.directory != nil {
		manager, err := p.directory.Manager(ctx, user)
		if err != nil {
			return "", fmt.Errorf("ramp: failed to resolve manager for %q: %w", user.Email, err)
		}
		if manager != nil {
			req.DirectManagerID = manager.RampID
		}
	}

	resp, err := p.client.CreateDeferredUser(ctx, req)
	if err != nil {
		return "", fmt.Errorf("ramp: failed to invite user %q: %w", user.Email, err)
	}
	logger.InfoContext(ctx, "invited user", "user", user.Email)
	return resp.ID, nil
}

// EnsureGroup is a successful no-op: Ramp has no groups.
func (p *Provider) EnsureGroup(ctx context.Context, company *usersync.Company, group *usersync.Group) error {
	return nil
}

// UserIsGroupMember always reports false: Ramp has no groups.
func (p *Provider) UserIsGroupMember(ctx context.Context, company *usersync.Company, user *usersync.User, group string) (bool, error) {
	return false, nil
}

// AddUserToGroup is a successful no-op: Ramp has no groups.
func (p *Provider) AddUserToGroup(ctx context.Context, company *usersync.Company, user *usersync.User, group string) error {
	return nil
}

// RemoveUserFromGroup is a successful no-op: Ramp has no groups.
func (p *Provider) RemoveUserFromGroup(ctx context.Context, company *usersync.Company, user *usersync.User, group string) error {
	return nil
}

// ListUsers returns every user on the Ramp account.
func (p *Provider) ListUsers(ctx context.Context, company *usersync.Company) ([]*usersync.RemoteUser, error) {
	users, err := p.client.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("ramp: failed to list users: %w", err)
	}
	out := make([]*usersync.RemoteUser, 0, len(users))
	for _, u := range users {
		out = append(out, &usersync.RemoteUser{ID: u.ID, Attributes: u})
	}
	return out, nil
}

// ListGroups returns an empty snapshot: Ramp has no groups.
func (p *Provider) ListGroups(ctx context.Context, company *usersync.Company) ([]*usersync.RemoteGroup, error) {
	return nil, nil
}

// DeleteUser is a successful no-op.
//
// TODO: suspend the user through the Ramp users API once write access to
// user status is provisioned for this integration.
func (p *Provider) DeleteUser(ctx context.Context, company *usersync.Company, user *usersync.User) error {
	return nil
}

// DeleteGroup is a successful no-op: Ramp has no groups.
func (p *Provider) DeleteGroup(ctx context.Context, company *usersync.Company, group *usersync.Group) error {
	return nil
}
