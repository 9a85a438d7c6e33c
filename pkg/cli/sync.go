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

// Package cli implements the provider sync command line.
package cli

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/abcxyz/pkg/cli"
	"github.com/abcxyz/pkg/logging"
	"github.com/abcxyz/provider-link/pkg/directory"
	"github.com/abcxyz/provider-link/pkg/github"
	"github.com/abcxyz/provider-link/pkg/gitlab"
	"github.com/abcxyz/provider-link/pkg/gsuite"
	"github.com/abcxyz/provider-link/pkg/okta"
	"github.com/abcxyz/provider-link/pkg/ramp"
	"github.com/abcxyz/provider-link/pkg/usersync"
)

var (
	_ cli.Command = (*SyncCommand)(nil)

	allowedProviders = []string{"GITHUB", "GITLAB", "GSUITE", "OKTA", "RAMP"}
)

// SyncCommand converges the selected providers to the directory file.
type SyncCommand struct {
	cli.BaseCommand

	directoryPath string
	providers     string

	companyName       string
	githubOrg         string
	gsuiteDomain      string
	gsuiteCustomerID  string
	gitlabParentGroup string

	githubConfig github.ClientConfig
	gitlabConfig gitlab.ClientConfig
	oktaConfig   okta.ClientConfig
	rampConfig   ramp.ClientConfig
}

func (c *SyncCommand) Desc() string {
	return `Converge external providers to the canonical directory`
}

func (c *SyncCommand) Help() string {
	return `
Usage: {{ COMMAND }} [options]

  Read the canonical directory file and converge each selected provider's
  users, groups and memberships to it.

  Converge GitHub and Google Workspace:

  plctl sync run \
	-directory directory.yaml \
	-providers github,gsuite \
	-company-name Example \
	-github-org example \
	-gsuite-domain example.com
`
}

func (c *SyncCommand) Flags() *cli.FlagSet {
	set := c.NewFlagSet()

	f := set.NewSection("COMMAND OPTIONS")

	f.StringVar(&cli.StringVar{
		Name:    "directory",
		Target:  &c.directoryPath,
		Example: "directory.yaml",
		Usage:   `Path to the canonical directory file.`,
	})

	f.StringVar(&cli.StringVar{
		Name:    "providers",
		Target:  &c.providers,
		Example: "github,gsuite",
		Usage:   `Comma-separated providers to converge: ` + strings.Join(allowedProviders, ", ") + `.`,
	})

	f.StringVar(&cli.StringVar{
		Name:   "company-name",
		Target: &c.companyName,
		Usage:  `Company display name, applied to provider records that carry one.`,
	})

	f.StringVar(&cli.StringVar{
		Name:    "github-org",
		Target:  &c.githubOrg,
		Example: "example",
		Usage:   `GitHub organization to converge.`,
	})

	f.StringVar(&cli.StringVar{
		Name:    "gsuite-domain",
		Target:  &c.gsuiteDomain,
		Example: "example.com",
		Usage:   `Google Workspace primary domain.`,
	})

	f.StringVar(&cli.StringVar{
		Name:   "gsuite-customer-id",
		Target: &c.gsuiteCustomerID,
		Usage:  `Google Workspace customer id, used instead of the domain for account-wide listings.`,
	})

	f.StringVar(&cli.StringVar{
		Name:    "gitlab-parent-group",
		Target:  &c.gitlabParentGroup,
		Example: "acme",
		Usage:   `GitLab parent group path holding all managed subgroups.`,
	})

	c.githubConfig.RegisterFlags(set)
	c.gitlabConfig.RegisterFlags(set)
	c.oktaConfig.RegisterFlags(set)
	c.rampConfig.RegisterFlags(set)

	return set
}

func (c *SyncCommand) Run(ctx context.Context, args []string) error {
	f := c.Flags()
	if err := f.Parse(args); err != nil {
		return fmt.Errorf("failed to parse flags: %w", err)
	}
	args = f.Args()
	if len(args) > 0 {
		return fmt.Errorf("unexpected arguments: %q", args)
	}

	if c.directoryPath == "" {
		return fmt.Errorf("directory file is not provided")
	}
	if c.providers == "" {
		return fmt.Errorf("no providers selected")
	}

	selected := strings.Split(c.providers, ",")
	for _, name := range selected {
		if !slices.Contains(allowedProviders, strings.ToUpper(strings.TrimSpace(name))) {
			return fmt.Errorf("provider %s not in allowed list: %s", name, strings.Join(allowedProviders, ","))
		}
	}

	dir, err := directory.Load(c.directoryPath)
	if err != nil {
		return err
	}

	company := &usersync.Company{
		Name:              c.companyName,
		GitHubOrg:         c.githubOrg,
		GSuiteDomain:      c.gsuiteDomain,
		GSuiteCustomerID:  c.gsuiteCustomerID,
		GitLabParentGroup: c.gitlabParentGroup,
	}

	providers, err := c.buildProviders(ctx, selected, dir)
	if err != nil {
		return err
	}

	return syncAll(ctx, providers, company, dir)
}

// buildProviders constructs the selected providers in listing order.
func (c *SyncCommand) buildProviders(ctx context.Context, selected []string, dir *directory.Directory) (map[string]usersync.Provider, error) {
	providers := make(map[string]usersync.Provider, len(selected))
	for _, name := range selected {
		name = strings.ToUpper(strings.TrimSpace(name))
		switch name {
		case "GITHUB":
			p, err := github.NewProviderFromConfig(ctx, &c.githubConfig)
			if err != nil {
				return nil, fmt.Errorf("failed to create github provider: %w", err)
			}
			providers[name] = p
		case "GITLAB":
			p, err := gitlab.NewProviderFromConfig(&c.gitlabConfig)
			if err != nil {
				return nil, fmt.Errorf("failed to create gitlab provider: %w", err)
			}
			providers[name] = p
		case "GSUITE":
			directoryService, settingsService, err := gsuite.NewServices(ctx)
			if err != nil {
				return nil, fmt.Errorf("failed to create gsuite provider: %w", err)
			}
			providers[name] = gsuite.NewProvider(directoryService, settingsService)
		case "OKTA":
			providers[name] = okta.NewProvider(okta.NewClient(c.oktaConfig.OrgURL, c.oktaConfig.Token), dir)
		case "RAMP":
			client := ramp.NewClient(ctx, c.rampConfig.BaseURL, c.rampConfig.ClientID, c.rampConfig.ClientSecret)
			providers[name] = ramp.NewProvider(client, dir)
		}
	}
	return providers, nil
}

// syncAll converges every selected provider. A failure on one entity or
// provider does not stop the others; all errors are reported together.
func syncAll(ctx context.Context, providers map[string]usersync.Provider, company *usersync.Company, dir *directory.Directory) error {
	logger := logging.FromContext(ctx)

	var merr error
	for _, name := range slices.Sorted(maps.Keys(providers)) {
		p := providers[name]
		logger.InfoContext(ctx, "converging provider", "provider", name)

		// Groups first, so membership reconciliation during user
		// convergence sees every canonical group.
		for _, group := range dir.Groups() {
			if err := p.EnsureGroup(ctx, company, group); err != nil {
				merr = errors.Join(merr, fmt.Errorf("provider %s group %q: %w", name, group.Name, err))
			}
		}
		for _, user := range dir.Users() {
			if _, err := p.EnsureUser(ctx, company, user); err != nil {
				merr = errors.Join(merr, fmt.Errorf("provider %s user %q: %w", name, user.Email, err))
			}
		}
	}
	return merr
}
