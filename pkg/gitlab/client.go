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

// Package gitlab implements the provider contract for a GitLab instance.
// All managed groups live under one parent group; canonical group names map
// to subgroup paths beneath it.
package gitlab

import (
	"fmt"

	gitlab "gitlab.com/gitlab-org/api/client-go"

	"github.com/abcxyz/pkg/cli"
)

// DefaultInstanceURL is the gitlab.com API endpoint.
const DefaultInstanceURL = "https://gitlab.com"

// ClientConfig holds the flag-configurable connection settings.
type ClientConfig struct {
	InstanceURL string
	Token       string
}

func (c *ClientConfig) RegisterFlags(set *cli.FlagSet) {
	f := set.NewSection("GITLAB OPTIONS")

	f.StringVar(&cli.StringVar{
		Name:    "gitlab-instance-url",
		Target:  &c.InstanceURL,
		EnvVar:  "GITLAB_INSTANCE_URL",
		Default: DefaultInstanceURL,
		Usage:   "Base URL of the GitLab instance.",
	})

	f.StringVar(&cli.StringVar{
		Name:   "gitlab-token",
		Target: &c.Token,
		EnvVar: "GITLAB_TOKEN",
		Usage:  "GitLab token with owner access to the parent group.",
	})
}

// NewGitLabClient creates a GitLab client initialized with a PAT.
func NewGitLabClient(token, instanceURL string) (*gitlab.Client, error) {
	client, err := gitlab.NewClient(token, gitlab.WithBaseURL(instanceURL))
	if err != nil {
		return nil, fmt.Errorf("failed to create GitLab client: %w", err)
	}
	return client, nil
}

// NewProviderFromConfig creates a Provider from flag configuration.
func NewProviderFromConfig(cfg *ClientConfig) (*Provider, error) {
	client, err := NewGitLabClient(cfg.Token, cfg.InstanceURL)
	if err != nil {
		return nil, err
	}
	return NewProvider(client), nil
}
