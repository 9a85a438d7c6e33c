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

// Package github implements the provider contract for a GitHub organization.
// Canonical groups map to teams; the canonical group name is used as the
// team slug. Users are addressed by their GitHub handle: a user with no
// handle is not provisioned here and every operation for them is a no-op.
package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/go-github/v61/github"
	"google.golang.org/protobuf/proto"

	"github.com/abcxyz/pkg/cache"
	"github.com/abcxyz/pkg/logging"
	"github.com/abcxyz/provider-link/pkg/usersync"
)

const (
	orgRoleAdmin  = "admin"
	orgRoleMember = "member"

	teamRoleMaintainer = "maintainer"
	teamRoleMember     = "member"

	teamPrivacyClosed = "closed"

	// DefaultListCacheDuration is the default time to live for the team
	// snapshot cache. The snapshot is re-read once per EnsureUser, so a
	// short TTL lets one reconciliation pass over many users share it
	// without masking changes between passes.
	DefaultListCacheDuration = time.Minute
)

type Config struct {
	listCacheDuration time.Duration
}

type Opt func(config *Config)

// WithListCacheDuration sets the time to live for the team snapshot cache.
func WithListCacheDuration(duration time.Duration) Opt {
	return func(config *Config) {
		config.listCacheDuration = duration
	}
}

// Provider adheres to the usersync.Provider interface and converges GitHub
// organization membership and teams.
type Provider struct {
	client    *github.Client
	teamCache *cache.Cache[[]*usersync.RemoteGroup]
}

// NewProvider creates a Provider around an authenticated client. The client
// is the only state held; the org is supplied per call via the company.
func NewProvider(client *github.Client, opts ...Opt) *Provider {
	config := &Config{
		listCacheDuration: DefaultListCacheDuration,
	}
	for _, opt := range opts {
		opt(config)
	}
	return &Provider{
		client:    client,
		teamCache: cache.New[[]*usersync.RemoteGroup](config.listCacheDuration),
	}
}

// EnsureUser converges the user's organization membership and role, then
// reconciles their team memberships. GitHub users are keyed by handle, so
// the handle is the identifier reported back.
func (p *Provider) EnsureUser(ctx context.Context, company *usersync.Company, user *usersync.User) (string, error) {
	if user.GitHub == "" {
		// This user is not provisioned on GitHub.
		return "", nil
	}
	logger := logging.FromContext(ctx)

	role := orgRoleMember
	if user.IsGroupAdmin {
		role = orgRoleAdmin
	}

	current := ""
	membership, _, err := p.client.Organizations.GetOrgMembership(ctx, user.GitHub, company.GitHubOrg)
	if err != nil && !notFound(err) {
		return "", fmt.Errorf("github: failed to check membership of %q in org %q: %w", user.GitHub, company.GitHubOrg, err)
	}
	if err == nil {
		current = membership.GetRole()
	}

	if current != role {
		if _, _, err := p.client.Organizations.EditOrgMembership(ctx, user.GitHub, company.GitHubOrg, &github.Membership{
			Role: github.String(role),
		}); err != nil {
			return "", fmt.Errorf("github: failed to set membership of %q in org %q: %w", user.GitHub, company.GitHubOrg, err)
		}
		logger.InfoContext(ctx, "set org membership",
			"user", user.GitHub,
			"org", company.GitHubOrg,
			"role", role,
		)
	} else {
		logger.InfoContext(ctx, "org membership already correct",
			"user", user.GitHub,
			"org", company.GitHubOrg,
			"role", role,
		)
	}

	if err := usersync.SyncMemberships(ctx, p, company, user); err != nil {
		return "", fmt.Errorf("github: failed to reconcile team memberships for %q: %w", user.GitHub, err)
	}
	return user.GitHub, nil
}

// EnsureGroup converges the team named by the canonical group. Repos are
// granted only when the team is first created; updates never touch them.
func (p *Provider) EnsureGroup(ctx context.Context, company *usersync.Company, group *usersync.Group) error {
	logger := logging.FromContext(ctx)

	team, _, err := p.client.Teams.GetTeamBySlug(ctx, company.GitHubOrg, group.Name)
	if err != nil && !notFound(err) {
		return fmt.Errorf("github: failed to check team %q in org %q: %w", group.Name, company.GitHubOrg, err)
	}
	if err == nil {
		update := github.NewTeam{
			Name:        group.Name,
			Description: github.String(group.Description),
			Privacy:     github.String(teamPrivacyClosed),
		}
		if parent := team.GetParent(); parent != nil {
			update.ParentTeamID = proto.Int64(parent.GetID())
		}
		if _, _, err := p.client.Teams.EditTeamBySlug(ctx, company.GitHubOrg, group.Name, update, false); err != nil {
			return fmt.Errorf("github: failed to update team %q in org %q: %w", group.Name, company.GitHubOrg, err)
		}
		logger.InfoContext(ctx, "updated team",
			"team", group.Name,
			"org", company.GitHubOrg,
		)
		return nil
	}

	create := github.NewTeam{
		Name:        group.Name,
		Description: github.String(group.Description),
		Privacy:     github.String(teamPrivacyClosed),
		RepoNames:   group.Repos,
	}
	if _, _, err := p.client.Teams.CreateTeam(ctx, company.GitHubOrg, create); err != nil {
		return fmt.Errorf("github: failed to create team %q in org %q: %w", group.Name, company.GitHubOrg, err)
	}
	logger.InfoContext(ctx, "created team",
		"team", group.Name,
		"org", company.GitHubOrg,
	)
	return nil
}

// UserIsGroupMember reports whether the user is an active member of the team
// with the role their admin flag selects.
func (p *Provider) UserIsGroupMember(ctx context.Context, company *usersync.Company, user *usersync.User, group string) (bool, error) {
	if user.GitHub == "" {
		return false, nil
	}
	role := teamRoleMember
	if user.IsGroupAdmin {
		role = teamRoleMaintainer
	}
	membership, _, err := p.client.Teams.GetTeamMembershipBySlug(ctx, company.GitHubOrg, group, user.GitHub)
	if err != nil {
		if notFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("github: failed to check membership of %q in team %q: %w", user.GitHub, group, err)
	}
	return membership.GetRole() == role, nil
}

// AddUserToGroup adds the user to the team, or updates their role if they
// are already a member with a divergent role.
func (p *Provider) AddUserToGroup(ctx context.Context, company *usersync.Company, user *usersync.User, group string) error {
	if user.GitHub == "" {
		return nil
	}
	role := teamRoleMember
	if user.IsGroupAdmin {
		role = teamRoleMaintainer
	}
	// The membership endpoint upserts, so this covers both join and role
	// change.
	if _, _, err := p.client.Teams.AddTeamMembershipBySlug(ctx, company.GitHubOrg, group, user.GitHub, &github.TeamAddTeamMembershipOptions{
		Role: role,
	}); err != nil {
		return fmt.Errorf("github: failed to add %q to team %q with role %q: %w", user.GitHub, group, role, err)
	}
	logging.FromContext(ctx).InfoContext(ctx, "set team membership",
		"user", user.GitHub,
		"team", group,
		"role", role,
	)
	return nil
}

// RemoveUserFromGroup removes the user from the team.
func (p *Provider) RemoveUserFromGroup(ctx context.Context, company *usersync.Company, user *usersync.User, group string) error {
	if user.GitHub == "" {
		return nil
	}
	if _, err := p.client.Teams.RemoveTeamMembershipBySlug(ctx, company.GitHubOrg, group, user.GitHub); err != nil {
		return fmt.Errorf("github: failed to remove %q from team %q: %w", user.GitHub, group, err)
	}
	logging.FromContext(ctx).InfoContext(ctx, "removed team membership",
		"user", user.GitHub,
		"team", group,
	)
	return nil
}

// ListUsers returns every member of the organization.
func (p *Provider) ListUsers(ctx context.Context, company *usersync.Company) ([]*usersync.RemoteUser, error) {
	var users []*usersync.RemoteUser
	if err := paginate(func(listOpts *github.ListOptions) (*github.Response, error) {
		members, resp, err := p.client.Organizations.ListMembers(ctx, company.GitHubOrg, &github.ListMembersOptions{
			ListOptions: *listOpts,
		})
		if err != nil {
			return nil, err
		}
		for _, m := range members {
			users = append(users, &usersync.RemoteUser{ID: m.GetLogin(), Attributes: m})
		}
		return resp, nil
	}); err != nil {
		return nil, fmt.Errorf("github: failed to list members of org %q: %w", company.GitHubOrg, err)
	}
	return users, nil
}

// ListGroups returns every team in the organization, keyed by slug. The
// snapshot is cached briefly so a reconciliation pass over many users does
// not re-list the org for each one.
func (p *Provider) ListGroups(ctx context.Context, company *usersync.Company) ([]*usersync.RemoteGroup, error) {
	groups, err := p.teamCache.WriteThruLookup(company.GitHubOrg, func() ([]*usersync.RemoteGroup, error) {
		var groups []*usersync.RemoteGroup
		if err := paginate(func(listOpts *github.ListOptions) (*github.Response, error) {
			teams, resp, err := p.client.Teams.ListTeams(ctx, company.GitHubOrg, listOpts)
			if err != nil {
				return nil, err
			}
			for _, t := range teams {
				groups = append(groups, &usersync.RemoteGroup{Name: t.GetSlug(), Attributes: t})
			}
			return resp, nil
		}); err != nil {
			return nil, err
		}
		return groups, nil
	})
	if err != nil {
		return nil, fmt.Errorf("github: failed to list teams of org %q: %w", company.GitHubOrg, err)
	}
	return groups, nil
}

// DeleteUser removes the user from the organization, which cascades them out
// of every team and revokes repository access.
func (p *Provider) DeleteUser(ctx context.Context, company *usersync.Company, user *usersync.User) error {
	if user.GitHub == "" {
		return nil
	}
	if _, err := p.client.Organizations.RemoveMember(ctx, company.GitHubOrg, user.GitHub); err != nil {
		return fmt.Errorf("github: failed to remove %q from org %q: %w", user.GitHub, company.GitHubOrg, err)
	}
	logging.FromContext(ctx).InfoContext(ctx, "removed user from org",
		"user", user.GitHub,
		"org", company.GitHubOrg,
	)
	return nil
}

// DeleteGroup deletes the team. Organization memberships are untouched.
func (p *Provider) DeleteGroup(ctx context.Context, company *usersync.Company, group *usersync.Group) error {
	if _, err := p.client.Teams.DeleteTeamBySlug(ctx, company.GitHubOrg, group.Name); err != nil {
		return fmt.Errorf("github: failed to delete team %q in org %q: %w", group.Name, company.GitHubOrg, err)
	}
	logging.FromContext(ctx).InfoContext(ctx, "deleted team",
		"team", group.Name,
		"org", company.GitHubOrg,
	)
	return nil
}

// notFound classifies a go-github error by its response status code.
func notFound(err error) bool {
	var ghErr *github.ErrorResponse
	return errors.As(err, &ghErr) && ghErr.Response != nil && ghErr.Response.StatusCode == http.StatusNotFound
}
