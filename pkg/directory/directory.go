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

// Package directory loads the canonical description of users and groups
// from a YAML file. The file is the source of truth every provider is
// converged toward.
package directory

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/abcxyz/provider-link/pkg/usersync"
)

// Directory is an immutable snapshot of canonical state.
type Directory struct {
	users  map[string]*usersync.User
	groups map[string]*usersync.Group
}

type fileFormat struct {
	Users  []*usersync.User  `yaml:"users"`
	Groups []*usersync.Group `yaml:"groups"`
}

// Load reads and validates a directory file.
func Load(path string) (*Directory, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory file: %w", err)
	}
	return Parse(b)
}

// Parse validates raw directory YAML.
func Parse(b []byte) (*Directory, error) {
	var file fileFormat
	if err := yaml.Unmarshal(b, &file); err != nil {
		return nil, fmt.Errorf("failed to parse directory file: %w", err)
	}

	d := &Directory{
		users:  make(map[string]*usersync.User, len(file.Users)),
		groups: make(map[string]*usersync.Group, len(file.Groups)),
	}

	var merr error
	for _, g := range file.Groups {
		if g.Name == "" {
			merr = errors.Join(merr, fmt.Errorf("group with empty name"))
			continue
		}
		if _, ok := d.groups[g.Name]; ok {
			merr = errors.Join(merr, fmt.Errorf("duplicate group %q", g.Name))
			continue
		}
		d.groups[g.Name] = g
	}
	for _, u := range file.Users {
		if u.Email == "" {
			merr = errors.Join(merr, fmt.Errorf("user with empty email"))
			continue
		}
		if _, ok := d.users[u.Email]; ok {
			merr = errors.Join(merr, fmt.Errorf("duplicate user %q", u.Email))
			continue
		}
		for _, g := range u.Groups {
			if _, ok := d.groups[g]; !ok {
				merr = errors.Join(merr, fmt.Errorf("user %q references unknown group %q", u.Email, g))
			}
		}
		d.users[u.Email] = u
	}
	for _, u := range file.Users {
		if u.Manager == "" {
			continue
		}
		if _, ok := d.users[u.Manager]; !ok {
			merr = errors.Join(merr, fmt.Errorf("user %q references unknown manager %q", u.Email, u.Manager))
		}
	}
	if merr != nil {
		return nil, fmt.Errorf("invalid directory file: %w", merr)
	}
	return d, nil
}

// Users returns every user, ordered by email.
func (d *Directory) Users() []*usersync.User {
	out := make([]*usersync.User, 0, len(d.users))
	for _, u := range d.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	return out
}

// Groups returns every group, ordered by name.
func (d *Directory) Groups() []*usersync.Group {
	out := make([]*usersync.Group, 0, len(d.groups))
	for _, g := range d.groups {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// User returns the user with the given email, or nil.
func (d *Directory) User(email string) *usersync.User {
	return d.users[email]
}

// Group returns the group with the given name, or nil.
func (d *Directory) Group(name string) *usersync.Group {
	return d.groups[name]
}

// Manager implements usersync.Directory. A user with no manager resolves to
// (nil, nil); validation guarantees a set manager reference resolves.
func (d *Directory) Manager(ctx context.Context, user *usersync.User) (*usersync.User, error) {
	if user.Manager == "" {
		return nil, nil
	}
	manager, ok := d.users[user.Manager]
	if !ok {
		return nil, fmt.Errorf("directory: user %q references unknown manager %q", user.Email, user.Manager)
	}
	return manager, nil
}
