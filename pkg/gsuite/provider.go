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

// Package gsuite implements the provider contract for Google Workspace.
// Users are addressed by primary email and groups by the email-style address
// `name@domain`. Alias lists on both are synchronized as a secondary step
// after the primary upsert, and mailing list settings are applied through
// the group settings API.
package gsuite

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"

	admin "google.golang.org/api/admin/directory/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/groupssettings/v1"

	"github.com/abcxyz/pkg/logging"
	"github.com/abcxyz/pkg/sets"
	"github.com/abcxyz/provider-link/pkg/usersync"
)

const (
	roleOwner  = "OWNER"
	roleMember = "MEMBER"

	deliverAllMail = "ALL_MAIL"

	suspensionReason = "No longer in the canonical directory."
)

// Provider adheres to the usersync.Provider interface and converges Google
// Workspace users, groups, aliases and group settings.
type Provider struct {
	directory *admin.Service
	settings  *groupssettings.Service
	notifier  usersync.Notifier
}

type Opt func(p *Provider)

// WithNotifier sets the notifier invoked after a first-time user creation.
func WithNotifier(n usersync.Notifier) Opt {
	return func(p *Provider) {
		p.notifier = n
	}
}

// NewProvider creates a Provider around authenticated directory and group
// settings services.
func NewProvider(directoryService *admin.Service, settingsService *groupssettings.Service, opts ...Opt) *Provider {
	p := &Provider{
		directory: directoryService,
		settings:  settingsService,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// EnsureUser upserts the Workspace user, synchronizes their alias list and
// reconciles their group memberships. On first-time creation a random
// password is generated, the account is flagged to change it at next login,
// and the notifier (if any) is told about the new account; a notifier
// failure fails the call.
func (p *Provider) EnsureUser(ctx context.Context, company *usersync.Company, user *usersync.User) (string, error) {
	logger := logging.FromContext(ctx)

	existing, err := p.directory.Users.Get(user.Email).Context(ctx).Do()
	if err != nil && !notFound(err) {
		return "", fmt.Errorf("gsuite: failed to look up user %q: %w", user.Email, err)
	}

	if err == nil {
		existing.Name = &admin.UserName{
			GivenName:  user.FirstName,
			FamilyName: user.LastName,
		}
		existing.RecoveryEmail = user.RecoveryEmail
		existing.RecoveryPhone = user.RecoveryPhone
		if _, err := p.directory.Users.Update(existing.Id, existing).Context(ctx).Do(); err != nil {
			return "", fmt.Errorf("gsuite: failed to update user %q: %w", user.Email, err)
		}
		if err := p.syncAliases(ctx, userAliasTarget{p}, existing.Id, existing.Aliases, qualify(user.Aliases, company.GSuiteDomain)); err != nil {
			return "", fmt.Errorf("gsuite: failed to sync aliases for user %q: %w", user.Email, err)
		}
		if err := usersync.SyncMemberships(ctx, p, company, user); err != nil {
			return "", fmt.Errorf("gsuite: failed to reconcile group memberships for %q: %w", user.Email, err)
		}
		logger.InfoContext(ctx, "updated user", "user", user.Email)
		return existing.Id, nil
	}

	password, err := newPassword()
	if err != nil {
		return "", fmt.Errorf("gsuite: failed to generate password for %q: %w", user.Email, err)
	}
	created, err := p.directory.Users.Insert(&admin.User{
		PrimaryEmail: user.Email,
		Name: &admin.UserName{
			GivenName:  user.FirstName,
			FamilyName: user.LastName,
		},
		Password:                  password,
		ChangePasswordAtNextLogin: true,
		RecoveryEmail:             user.RecoveryEmail,
		RecoveryPhone:             user.RecoveryPhone,
	}).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("gsuite: failed to create user %q: %w", user.Email, err)
	}

	// Tell the user about their new account before any remaining step can
	// fail; the account exists now whether or not alias or membership sync
	// below succeeds.
	if p.notifier != nil {
		if err := p.notifier.NewUser(ctx, user, password); err != nil {
			return "", fmt.Errorf("gsuite: failed to notify new user %q: %w", user.Email, err)
		}
	}

	if err := p.syncAliases(ctx, userAliasTarget{p}, created.Id, nil, qualify(user.Aliases, company.GSuiteDomain)); err != nil {
		return "", fmt.Errorf("gsuite: failed to sync aliases for user %q: %w", user.Email, err)
	}
	if err := usersync.SyncMemberships(ctx, p, company, user); err != nil {
		return "", fmt.Errorf("gsuite: failed to reconcile group memberships for %q: %w", user.Email, err)
	}
	logger.InfoContext(ctx, "created user", "user", user.Email)
	return created.Id, nil
}

// EnsureGroup upserts the group at `name@domain`, synchronizes its alias
// list and applies its mailing list settings.
func (p *Provider) EnsureGroup(ctx context.Context, company *usersync.Company, group *usersync.Group) error {
	logger := logging.FromContext(ctx)
	email := groupEmail(group.Name, company)
	wantAliases := qualify(group.Aliases, company.GSuiteDomain)

	existing, err := p.directory.Groups.Get(email).Context(ctx).Do()
	if err != nil && !notFound(err) {
		return fmt.Errorf("gsuite: failed to look up group %q: %w", group.Name, err)
	}

	if err == nil {
		existing.Name = group.Name
		existing.Description = group.Description
		if _, err := p.directory.Groups.Update(email, existing).Context(ctx).Do(); err != nil {
			return fmt.Errorf("gsuite: failed to update group %q: %w", group.Name, err)
		}
		if err := p.syncAliases(ctx, groupAliasTarget{p}, email, existing.Aliases, wantAliases); err != nil {
			return fmt.Errorf("gsuite: failed to sync aliases for group %q: %w", group.Name, err)
		}
		if err := p.applyGroupSettings(ctx, email, group); err != nil {
			return err
		}
		logger.InfoContext(ctx, "updated group", "group", group.Name)
		return nil
	}

	created, err := p.directory.Groups.Insert(&admin.Group{
		Email:       email,
		Name:        group.Name,
		Description: group.Description,
	}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("gsuite: failed to create group %q: %w", group.Name, err)
	}
	if err := p.syncAliases(ctx, groupAliasTarget{p}, email, created.Aliases, wantAliases); err != nil {
		return fmt.Errorf("gsuite: failed to sync aliases for group %q: %w", group.Name, err)
	}
	if err := p.applyGroupSettings(ctx, email, group); err != nil {
		return err
	}
	logger.InfoContext(ctx, "created group", "group", group.Name)
	return nil
}

// UserIsGroupMember reports whether the user is a member of the group with
// the role their admin flag selects.
func (p *Provider) UserIsGroupMember(ctx context.Context, company *usersync.Company, user *usersync.User, group string) (bool, error) {
	member, err := p.directory.Members.Get(groupEmail(group, company), user.Email).Context(ctx).Do()
	if err != nil {
		if notFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("gsuite: failed to check membership of %q in group %q: %w", user.Email, group, err)
	}
	return member.Role == memberRole(user), nil
}

// AddUserToGroup adds the user to the group, or updates their role if they
// are already a member with a divergent role.
func (p *Provider) AddUserToGroup(ctx context.Context, company *usersync.Company, user *usersync.User, group string) error {
	email := groupEmail(group, company)
	member := &admin.Member{
		Email:            user.Email,
		Role:             memberRole(user),
		DeliverySettings: deliverAllMail,
	}

	_, err := p.directory.Members.Get(email, user.Email).Context(ctx).Do()
	if err != nil && !notFound(err) {
		return fmt.Errorf("gsuite: failed to check membership of %q in group %q: %w", user.Email, group, err)
	}
	if err == nil {
		if _, err := p.directory.Members.Update(email, user.Email, member).Context(ctx).Do(); err != nil {
			return fmt.Errorf("gsuite: failed to update membership of %q in group %q: %w", user.Email, group, err)
		}
		return nil
	}
	if _, err := p.directory.Members.Insert(email, member).Context(ctx).Do(); err != nil {
		return fmt.Errorf("gsuite: failed to add %q to group %q: %w", user.Email, group, err)
	}
	return nil
}

// RemoveUserFromGroup removes the user from the group. Callers guard this
// with a membership check; removing a non-member is an error here.
func (p *Provider) RemoveUserFromGroup(ctx context.Context, company *usersync.Company, user *usersync.User, group string) error {
	if err := p.directory.Members.Delete(groupEmail(group, company), user.Email).Context(ctx).Do(); err != nil {
		return fmt.Errorf("gsuite: failed to remove %q from group %q: %w", user.Email, group, err)
	}
	return nil
}

// ListUsers returns every user in the Workspace account.
func (p *Provider) ListUsers(ctx context.Context, company *usersync.Company) ([]*usersync.RemoteUser, error) {
	call := p.directory.Users.List().OrderBy("email")
	if company.GSuiteCustomerID != "" {
		call = call.Customer(company.GSuiteCustomerID)
	} else {
		call = call.Domain(company.GSuiteDomain)
	}
	var users []*usersync.RemoteUser
	if err := call.Pages(ctx, func(page *admin.Users) error {
		for _, u := range page.Users {
			users = append(users, &usersync.RemoteUser{ID: u.PrimaryEmail, Attributes: u})
		}
		return nil
	}); err != nil {
		return nil, fmt.Errorf("gsuite: failed to list users: %w", err)
	}
	return users, nil
}

// ListGroups returns every group in the Workspace account, named by the
// local part of the group address.
func (p *Provider) ListGroups(ctx context.Context, company *usersync.Company) ([]*usersync.RemoteGroup, error) {
	call := p.directory.Groups.List()
	if company.GSuiteCustomerID != "" {
		call = call.Customer(company.GSuiteCustomerID)
	} else {
		call = call.Domain(company.GSuiteDomain)
	}
	var groups []*usersync.RemoteGroup
	if err := call.Pages(ctx, func(page *admin.Groups) error {
		for _, g := range page.Groups {
			name, _, _ := strings.Cut(g.Email, "@")
			groups = append(groups, &usersync.RemoteGroup{Name: name, Attributes: g})
		}
		return nil
	}); err != nil {
		return nil, fmt.Errorf("gsuite: failed to list groups: %w", err)
	}
	return groups, nil
}

// DeleteUser suspends the user rather than deleting the account, preserving
// their mail and documents.
func (p *Provider) DeleteUser(ctx context.Context, company *usersync.Company, user *usersync.User) error {
	existing, err := p.directory.Users.Get(user.Email).Context(ctx).Do()
	if err != nil {
		if notFound(err) {
			return &usersync.NotFoundError{Provider: "gsuite", Resource: "user", Name: user.Email}
		}
		return fmt.Errorf("gsuite: failed to look up user %q: %w", user.Email, err)
	}
	existing.Suspended = true
	existing.SuspensionReason = suspensionReason
	existing.ForceSendFields = append(existing.ForceSendFields, "Suspended")
	if _, err := p.directory.Users.Update(existing.Id, existing).Context(ctx).Do(); err != nil {
		return fmt.Errorf("gsuite: failed to suspend user %q: %w", user.Email, err)
	}
	logging.FromContext(ctx).InfoContext(ctx, "suspended user", "user", user.Email)
	return nil
}

// DeleteGroup hard-deletes the group.
func (p *Provider) DeleteGroup(ctx context.Context, company *usersync.Company, group *usersync.Group) error {
	if err := p.directory.Groups.Delete(groupEmail(group.Name, company)).Context(ctx).Do(); err != nil {
		return fmt.Errorf("gsuite: failed to delete group %q: %w", group.Name, err)
	}
	logging.FromContext(ctx).InfoContext(ctx, "deleted group", "group", group.Name)
	return nil
}

func (p *Provider) applyGroupSettings(ctx context.Context, email string, group *usersync.Group) error {
	settings := &groupssettings.Groups{
		AllowExternalMembers: boolString(group.AllowExternalMembers),
		AllowWebPosting:      boolString(group.AllowWebPosting),
		WhoCanJoin:           "INVITED_CAN_JOIN",
		WhoCanViewGroup:      "ALL_IN_DOMAIN_CAN_VIEW",
	}
	if _, err := p.settings.Groups.Update(email, settings).Context(ctx).Do(); err != nil {
		return fmt.Errorf("gsuite: failed to apply settings for group %q: %w", email, err)
	}
	return nil
}

// aliasTarget abstracts the user and group alias endpoints, which are
// shaped identically.
type aliasTarget interface {
	insert(ctx context.Context, key, alias string) error
	remove(ctx context.Context, key, alias string) error
}

type userAliasTarget struct{ p *Provider }

func (t userAliasTarget) insert(ctx context.Context, key, alias string) error {
	_, err := t.p.directory.Users.Aliases.Insert(key, &admin.Alias{Alias: alias}).Context(ctx).Do()
	return err
}

func (t userAliasTarget) remove(ctx context.Context, key, alias string) error {
	return t.p.directory.Users.Aliases.Delete(key, alias).Context(ctx).Do()
}

type groupAliasTarget struct{ p *Provider }

func (t groupAliasTarget) insert(ctx context.Context, key, alias string) error {
	_, err := t.p.directory.Groups.Aliases.Insert(key, &admin.Alias{Alias: alias}).Context(ctx).Do()
	return err
}

func (t groupAliasTarget) remove(ctx context.Context, key, alias string) error {
	return t.p.directory.Groups.Aliases.Delete(key, alias).Context(ctx).Do()
}

// syncAliases adds the missing aliases and removes the extraneous ones.
func (p *Provider) syncAliases(ctx context.Context, target aliasTarget, key string, have, want []string) error {
	for _, alias := range sets.Subtract(want, have) {
		if err := target.insert(ctx, key, alias); err != nil {
			return fmt.Errorf("failed to add alias %q: %w", alias, err)
		}
	}
	for _, alias := range sets.Subtract(have, want) {
		if err := target.remove(ctx, key, alias); err != nil {
			return fmt.Errorf("failed to remove alias %q: %w", alias, err)
		}
	}
	return nil
}

func memberRole(user *usersync.User) string {
	if user.IsGroupAdmin {
		return roleOwner
	}
	return roleMember
}

func groupEmail(name string, company *usersync.Company) string {
	return name + "@" + company.GSuiteDomain
}

func qualify(names []string, domain string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		out = append(out, n+"@"+domain)
	}
	return out
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

func newPassword() (string, error) {
	b := make([]byte, 18)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// notFound classifies a Google API error by its status code.
func notFound(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusNotFound
}
