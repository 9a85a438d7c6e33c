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
	"sync"
)

// testProvider is an in-memory Provider for exercising the reconciliation
// algorithm. memberships maps group name to the role the user holds there;
// the empty string means not a member.
type testProvider struct {
	groups      []*RemoteGroup
	memberships map[string]string
	adminRole   string
	memberRole  string

	checkErrs  map[string]error
	addErrs    map[string]error
	removeErrs map[string]error
	listErr    error

	calls []string
	mutex sync.Mutex
}

func newTestProvider(groupNames []string, memberships map[string]string) *testProvider {
	groups := make([]*RemoteGroup, 0, len(groupNames))
	for _, name := range groupNames {
		groups = append(groups, &RemoteGroup{Name: name})
	}
	return &testProvider{
		groups:      groups,
		memberships: memberships,
		adminRole:   "admin",
		memberRole:  "member",
	}
}

func (tp *testProvider) record(format string, args ...any) {
	tp.mutex.Lock()
	defer tp.mutex.Unlock()
	tp.calls = append(tp.calls, fmt.Sprintf(format, args...))
}

func (tp *testProvider) role(user *User) string {
	if user.IsGroupAdmin {
		return tp.adminRole
	}
	return tp.memberRole
}

func (tp *testProvider) EnsureUser(ctx context.Context, company *Company, user *User) (string, error) {
	tp.record("EnsureUser(%s)", user.Email)
	if err := SyncMemberships(ctx, tp, company, user); err != nil {
		return "", err
	}
	return user.Email, nil
}

func (tp *testProvider) EnsureGroup(ctx context.Context, company *Company, group *Group) error {
	tp.record("EnsureGroup(%s)", group.Name)
	return nil
}

func (tp *testProvider) UserIsGroupMember(ctx context.Context, company *Company, user *User, group string) (bool, error) {
	tp.record("UserIsGroupMember(%s)", group)
	if err := tp.checkErrs[group]; err != nil {
		return false, err
	}
	return tp.memberships[group] == tp.role(user), nil
}

func (tp *testProvider) AddUserToGroup(ctx context.Context, company *Company, user *User, group string) error {
	tp.record("AddUserToGroup(%s)", group)
	if err := tp.addErrs[group]; err != nil {
		return err
	}
	tp.memberships[group] = tp.role(user)
	return nil
}

func (tp *testProvider) RemoveUserFromGroup(ctx context.Context, company *Company, user *User, group string) error {
	tp.record("RemoveUserFromGroup(%s)", group)
	if err := tp.removeErrs[group]; err != nil {
		return err
	}
	delete(tp.memberships, group)
	return nil
}

func (tp *testProvider) ListUsers(ctx context.Context, company *Company) ([]*RemoteUser, error) {
	tp.record("ListUsers()")
	return nil, nil
}

func (tp *testProvider) ListGroups(ctx context.Context, company *Company) ([]*RemoteGroup, error) {
	tp.record("ListGroups()")
	if tp.listErr != nil {
		return nil, tp.listErr
	}
	return tp.groups, nil
}

func (tp *testProvider) DeleteUser(ctx context.Context, company *Company, user *User) error {
	tp.record("DeleteUser(%s)", user.Email)
	return nil
}

func (tp *testProvider) DeleteGroup(ctx context.Context, company *Company, group *Group) error {
	tp.record("DeleteGroup(%s)", group.Name)
	return nil
}
