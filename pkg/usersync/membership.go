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

package usersync

import (
	"context"
	"fmt"
	"slices"

	"github.com/abcxyz/pkg/logging"
	"github.com/abcxyz/pkg/sets"
)

// SyncMemberships drives one user's remote group memberships to exactly
// match their canonical group set. Adapters with a group concept call it
// from EnsureUser after the user record itself has been upserted.
//
// First every canonical group is checked and joined if missing, then one
// full ListGroups snapshot is taken and the user is removed from every
// remote group that is not canonical. The snapshot is what makes removals
// detectable at all: remote-only group names are not otherwise enumerable.
// Steps run strictly sequentially because each decision depends on the
// previous remote read; the first fatal error aborts the rest.
func SyncMemberships(ctx context.Context, p Provider, company *Company, user *User) error {
	logger := logging.FromContext(ctx)

	desired := make(map[string]struct{}, len(user.Groups))
	for _, name := range user.Groups {
		desired[name] = struct{}{}
		member, err := p.UserIsGroupMember(ctx, company, user, name)
		if err != nil {
			return fmt.Errorf("failed to check membership of %q in group %q: %w", user.Email, name, err)
		}
		if member {
			continue
		}
		if err := p.AddUserToGroup(ctx, company, user, name); err != nil {
			return fmt.Errorf("failed to add %q to group %q: %w", user.Email, name, err)
		}
		logger.InfoContext(ctx, "added user to group",
			"user", user.Email,
			"group", name,
		)
	}

	remote, err := p.ListGroups(ctx, company)
	if err != nil {
		return fmt.Errorf("failed to list provider groups: %w", err)
	}
	remoteNames := make(map[string]struct{}, len(remote))
	for _, g := range remote {
		remoteNames[g.Name] = struct{}{}
	}

	// Only groups the provider knows and the canonical set does not are
	// removal candidates.
	extraneous := mapKeys(sets.SubtractMapKeys(remoteNames, desired))
	for _, name := range extraneous {
		member, err := p.UserIsGroupMember(ctx, company, user, name)
		if err != nil {
			return fmt.Errorf("failed to check membership of %q in group %q: %w", user.Email, name, err)
		}
		if !member {
			continue
		}
		if err := p.RemoveUserFromGroup(ctx, company, user, name); err != nil {
			return fmt.Errorf("failed to remove %q from group %q: %w", user.Email, name, err)
		}
		logger.InfoContext(ctx, "removed user from group",
			"user", user.Email,
			"group", name,
		)
	}
	return nil
}

func mapKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
