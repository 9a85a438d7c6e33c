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

package gitlab

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	gitlab "gitlab.com/gitlab-org/api/client-go"

	"github.com/abcxyz/pkg/logging"
	"github.com/abcxyz/pkg/pointer"
	"github.com/abcxyz/provider-link/pkg/usersync"
)

// Provider adheres to the usersync.Provider interface and converges
// subgroups and memberships under the company's parent group.
type Provider struct {
	client *gitlab.Client
}

// NewProvider creates a GitLab provider.
func NewProvider(client *gitlab.Client) *Provider {
	return &Provider{client: client}
}

// EnsureUser converges the user's membership in the parent group and then
// their subgroup memberships. A user with no GitLab handle is intentionally
// not provisioned and the call is a successful no-op. GitLab accounts are
// self-service; a handle that does not resolve to an account is a
// not-found error.
func (p *Provider) EnsureUser(ctx context.Context, company *usersync.Company, user *usersync.User) (string, error) {
	logger := logging.FromContext(ctx)

	if user.GitLab == "" {
		return "", nil
	}

	remote, err := p.findUser(ctx, user.GitLab)
	if err != nil {
		return "", err
	}
	if remote == nil {
		return "", &usersync.NotFoundError{Provider: "gitlab", Resource: "user", Name: user.GitLab}
	}

	want := accessLevel(user)
	member, resp, err := p.client.GroupMembers.GetGroupMember(company.GitLabParentGroup, remote.ID, gitlab.WithContext(ctx))
	if err != nil && !notFound(resp) {
		return "", fmt.Errorf("gitlab: failed to check membership of %q in group %q: %w", user.GitLab, company.GitLabParentGroup, err)
	}
	switch {
	case err != nil:
		if _, _, err := p.client.GroupMembers.AddGroupMember(company.GitLabParentGroup, &gitlab.AddGroupMemberOptions{
			UserID:      pointer.To(remote.ID),
			AccessLevel: want,
		}, gitlab.WithContext(ctx)); err != nil {
			return "", fmt.Errorf("gitlab: failed to add %q to group %q: %w", user.GitLab, company.GitLabParentGroup, err)
		}
		logger.InfoContext(ctx, "added user to parent group", "user", user.GitLab)
	case member.AccessLevel != *want:
		if _, _, err := p.client.GroupMembers.EditGroupMember(company.GitLabParentGroup, remote.ID, &gitlab.EditGroupMemberOptions{
			AccessLevel: want,
		}, gitlab.WithContext(ctx)); err != nil {
			return "", fmt.Errorf("gitlab: failed to update access of %q in group %q: %w", user.GitLab, company.GitLabParentGroup, err)
		}
		logger.InfoContext(ctx, "updated user access in parent group", "user", user.GitLab)
	}

	if err := usersync.SyncMemberships(ctx, p, company, user); err != nil {
		return "", fmt.Errorf("gitlab: failed to reconcile group memberships for %q: %w", user.GitLab, err)
	}
	return strconv.Itoa(remote.ID), nil
}

// EnsureGroup upserts the subgroup at `parent/name`.
func (p *Provider) EnsureGroup(ctx context.Context, company *usersync.Company, group *usersync.Group) error {
	logger := logging.FromContext(ctx)
	path := p.fullPath(company, group.Name)

	existing, resp, err := p.client.Groups.GetGroup(path, &gitlab.GetGroupOptions{}, gitlab.WithContext(ctx))
	if err != nil && !notFound(resp) {
		return fmt.Errorf("gitlab: failed to look up group %q: %w", path, err)
	}

	if err == nil {
		if _, _, err := p.client.Groups.UpdateGroup(existing.ID, &gitlab.UpdateGroupOptions{
			Name:        pointer.To(group.Name),
			Description: pointer.To(group.Description),
		}, gitlab.WithContext(ctx)); err != nil {
			return fmt.Errorf("gitlab: failed to update group %q: %w", path, err)
		}
		logger.InfoContext(ctx, "updated group", "group", group.Name)
		return nil
	}

	parent, _, err := p.client.Groups.GetGroup(company.GitLabParentGroup, &gitlab.GetGroupOptions{}, gitlab.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("gitlab: failed to look up parent group %q: %w", company.GitLabParentGroup, err)
	}
	if _, _, err := p.client.Groups.CreateGroup(&gitlab.CreateGroupOptions{
		Name:        pointer.To(group.Name),
		Path:        pointer.To(group.Name),
		Description: pointer.To(group.Description),
		ParentID:    pointer.To(parent.ID),
	}, gitlab.WithContext(ctx)); err != nil {
		return fmt.Errorf("gitlab: failed to create group %q: %w", path, err)
	}
	logger.InfoContext(ctx, "created group", "group", group.Name)
	return nil
}

// UserIsGroupMember reports whether the user is in the subgroup at the
// expected access level.
func (p *Provider) UserIsGroupMember(ctx context.Context, company *usersync.Company, user *usersync.User, group string) (bool, error) {
	remote, err := p.findUser(ctx, user.GitLab)
	if err != nil {
		return false, err
	}
	if remote == nil {
		return false, nil
	}

	member, resp, err := p.client.GroupMembers.GetGroupMember(p.fullPath(company, group), remote.ID, gitlab.WithContext(ctx))
	if err != nil {
		if notFound(resp) {
			return false, nil
		}
		return false, fmt.Errorf("gitlab: failed to check membership of %q in group %q: %w", user.GitLab, group, err)
	}
	return member.AccessLevel == *accessLevel(user), nil
}

// AddUserToGroup adds the user to the subgroup, or updates their access
// level if they are already a member.
func (p *Provider) AddUserToGroup(ctx context.Context, company *usersync.Company, user *usersync.User, group string) error {
	remote, err := p.findUser(ctx, user.GitLab)
	if err != nil {
		return err
	}
	if remote == nil {
		return &usersync.NotFoundError{Provider: "gitlab", Resource: "user", Name: user.GitLab}
	}
	path := p.fullPath(company, group)

	_, resp, err := p.client.GroupMembers.GetGroupMember(path, remote.ID, gitlab.WithContext(ctx))
	if err != nil && !notFound(resp) {
		return fmt.Errorf("gitlab: failed to check membership of %q in group %q: %w", user.GitLab, group, err)
	}
	if err == nil {
		if _, _, err := p.client.GroupMembers.EditGroupMember(path, remote.ID, &gitlab.EditGroupMemberOptions{
			AccessLevel: accessLevel(user),
		}, gitlab.WithContext(ctx)); err != nil {
			return fmt.Errorf("gitlab: failed to update access of %q in group %q: %w", user.GitLab, group, err)
		}
		return nil
	}
	if _, _, err := p.client.GroupMembers.AddGroupMember(path, &gitlab.AddGroupMemberOptions{
		UserID:      pointer.To(remote.ID),
		AccessLevel: accessLevel(user),
	}, gitlab.WithContext(ctx)); err != nil {
		return fmt.Errorf("gitlab: failed to add %q to group %q: %w", user.GitLab, group, err)
	}
	return nil
}

// RemoveUserFromGroup removes the user from the subgroup.
func (p *Provider) RemoveUserFromGroup(ctx context.Context, company *usersync.Company, user *usersync.User, group string) error {
	remote, err := p.findUser(ctx, user.GitLab)
	if err != nil {
		return err
	}
	if remote == nil {
		return nil
	}
	if _, err := p.client.GroupMembers.RemoveGroupMember(p.fullPath(company, group), remote.ID, &gitlab.RemoveGroupMemberOptions{}, gitlab.WithContext(ctx)); err != nil {
		return fmt.Errorf("gitlab: failed to remove %q from group %q: %w", user.GitLab, group, err)
	}
	return nil
}

// ListUsers returns the members of the parent group.
func (p *Provider) ListUsers(ctx context.Context, company *usersync.Company) ([]*usersync.RemoteUser, error) {
	var users []*usersync.RemoteUser
	if err := paginate(func(opts *gitlab.ListOptions) (*gitlab.Response, error) {
		members, resp, err := p.client.Groups.ListGroupMembers(company.GitLabParentGroup, &gitlab.ListGroupMembersOptions{
			ListOptions: *opts,
		}, gitlab.WithContext(ctx))
		if err != nil {
			return resp, err
		}
		for _, m := range members {
			users = append(users, &usersync.RemoteUser{ID: strconv.Itoa(m.ID), Attributes: m})
		}
		return resp, nil
	}); err != nil {
		return nil, fmt.Errorf("gitlab: failed to list members of group %q: %w", company.GitLabParentGroup, err)
	}
	return users, nil
}

// ListGroups returns the subgroups of the parent group, named by their
// path component.
func (p *Provider) ListGroups(ctx context.Context, company *usersync.Company) ([]*usersync.RemoteGroup, error) {
	var groups []*usersync.RemoteGroup
	if err := paginate(func(opts *gitlab.ListOptions) (*gitlab.Response, error) {
		subgroups, resp, err := p.client.Groups.ListSubGroups(company.GitLabParentGroup, &gitlab.ListSubGroupsOptions{
			ListOptions: *opts,
		}, gitlab.WithContext(ctx))
		if err != nil {
			return resp, err
		}
		for _, g := range subgroups {
			groups = append(groups, &usersync.RemoteGroup{Name: g.Path, Attributes: g})
		}
		return resp, nil
	}); err != nil {
		return nil, fmt.Errorf("gitlab: failed to list subgroups of %q: %w", company.GitLabParentGroup, err)
	}
	return groups, nil
}

// DeleteUser removes the user from the parent group, which cascades to
// every subgroup. A user that does not exist or is not a member is a
// success.
func (p *Provider) DeleteUser(ctx context.Context, company *usersync.Company, user *usersync.User) error {
	if user.GitLab == "" {
		return nil
	}
	remote, err := p.findUser(ctx, user.GitLab)
	if err != nil {
		return err
	}
	if remote == nil {
		return nil
	}

	_, resp, err := p.client.GroupMembers.GetGroupMember(company.GitLabParentGroup, remote.ID, gitlab.WithContext(ctx))
	if err != nil {
		if notFound(resp) {
			return nil
		}
		return fmt.Errorf("gitlab: failed to check membership of %q in group %q: %w", user.GitLab, company.GitLabParentGroup, err)
	}
	if _, err := p.client.GroupMembers.RemoveGroupMember(company.GitLabParentGroup, remote.ID, &gitlab.RemoveGroupMemberOptions{}, gitlab.WithContext(ctx)); err != nil {
		return fmt.Errorf("gitlab: failed to remove %q from group %q: %w", user.GitLab, company.GitLabParentGroup, err)
	}
	logging.FromContext(ctx).InfoContext(ctx, "removed user from parent group", "user", user.GitLab)
	return nil
}

// DeleteGroup deletes the subgroup. A subgroup that does not exist is a
// success.
func (p *Provider) DeleteGroup(ctx context.Context, company *usersync.Company, group *usersync.Group) error {
	path := p.fullPath(company, group.Name)
	existing, resp, err := p.client.Groups.GetGroup(path, &gitlab.GetGroupOptions{}, gitlab.WithContext(ctx))
	if err != nil {
		if notFound(resp) {
			return nil
		}
		return fmt.Errorf("gitlab: failed to look up group %q: %w", path, err)
	}
	if _, err := p.client.Groups.DeleteGroup(existing.ID, &gitlab.DeleteGroupOptions{}, gitlab.WithContext(ctx)); err != nil {
		return fmt.Errorf("gitlab: failed to delete group %q: %w", path, err)
	}
	logging.FromContext(ctx).InfoContext(ctx, "deleted group", "group", group.Name)
	return nil
}

// findUser resolves a GitLab username to an account. A username with no
// account is (nil, nil).
func (p *Provider) findUser(ctx context.Context, username string) (*gitlab.User, error) {
	if username == "" {
		return nil, nil
	}
	users, _, err := p.client.Users.ListUsers(&gitlab.ListUsersOptions{
		Username: pointer.To(username),
	}, gitlab.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("gitlab: failed to look up user %q: %w", username, err)
	}
	if len(users) == 0 {
		return nil, nil
	}
	return users[0], nil
}

func (p *Provider) fullPath(company *usersync.Company, group string) string {
	return company.GitLabParentGroup + "/" + group
}

// notFound classifies a GitLab response by its status code.
func notFound(resp *gitlab.Response) bool {
	return resp != nil && resp.Response != nil && resp.StatusCode == http.StatusNotFound
}
