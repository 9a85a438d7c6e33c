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
	gitlab "gitlab.com/gitlab-org/api/client-go"

	"github.com/abcxyz/pkg/pointer"
	"github.com/abcxyz/provider-link/pkg/usersync"
)

// accessLevel maps the canonical user onto a GitLab access level. Group
// admins get Maintainer, everyone else Developer.
func accessLevel(user *usersync.User) *gitlab.AccessLevelValue {
	if user.IsGroupAdmin {
		return pointer.To(gitlab.MaintainerPermissions)
	}
	return pointer.To(gitlab.DeveloperPermissions)
}
