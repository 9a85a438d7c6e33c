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

package gsuite

import (
	"context"
	"fmt"

	admin "google.golang.org/api/admin/directory/v1"
	"google.golang.org/api/groupssettings/v1"
	"google.golang.org/api/option"
)

// NewServices creates the Workspace admin directory and group settings
// services. With no extra options this uses application default credentials;
// the credentials must be delegated to a Workspace admin subject.
// See:
// https://cloud.google.com/docs/authentication/application-default-credentials
func NewServices(ctx context.Context, opts ...option.ClientOption) (*admin.Service, *groupssettings.Service, error) {
	scopes := option.WithScopes(
		admin.AdminDirectoryUserScope,
		admin.AdminDirectoryGroupScope,
		admin.AdminDirectoryGroupMemberScope,
		groupssettings.AppsGroupsSettingsScope,
	)
	directoryService, err := admin.NewService(ctx, append([]option.ClientOption{scopes}, opts...)...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create admin directory service: %w", err)
	}
	settingsService, err := groupssettings.NewService(ctx, append([]option.ClientOption{scopes}, opts...)...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create group settings service: %w", err)
	}
	return directoryService, settingsService, nil
}
