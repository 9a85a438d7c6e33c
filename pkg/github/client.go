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

package github

import (
	"context"
	"fmt"

	"github.com/google/go-github/v61/github"
	"golang.org/x/oauth2"

	"github.com/abcxyz/pkg/cli"
)

const DefaultGitHubServerEndpoint = "https://github.com"

// ClientConfig is the config for a github client.
type ClientConfig struct {
	Endpoint string
	Token    string
}

func (c *ClientConfig) RegisterFlags(set *cli.FlagSet) {
	f := set.NewSection("GITHUB OPTIONS")

	f.StringVar(&cli.StringVar{
		Name:    "github-server-endpoint",
		EnvVar:  "GITHUB_SERVER_URL",
		Target:  &c.Endpoint,
		Default: DefaultGitHubServerEndpoint,
		Usage:   `URL for github endpoint, example: "https://github.com"`,
	})

	f.StringVar(&cli.StringVar{
		Name:   "github-client-auth-token",
		EnvVar: "GITHUB_TOKEN",
		Target: &c.Token,
		Usage:  `Token to authenticate with github`,
	})

	set.AfterParse(func(merr error) error {
		// In case user export GITHUB_SERVER_URL to empty string.
		if c.Endpoint == "" {
			c.Endpoint = DefaultGitHubServerEndpoint
		}
		return nil
	})
}

// NewGitHubClient creates a github.Client based on ClientConfig.
func NewGitHubClient(ctx context.Context, c *ClientConfig) (*github.Client, error) {
	ghc := github.NewClient(oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: c.Token,
	})))
	var err error
	if c.Endpoint != DefaultGitHubServerEndpoint {
		if ghc, err = ghc.WithEnterpriseURLs(c.Endpoint, c.Endpoint); err != nil {
			return nil, fmt.Errorf("failed to create github client with enterprise endpoint %s: %w", c.Endpoint, err)
		}
	}
	return ghc, nil
}

// NewProviderFromConfig creates a Provider authenticated with a static token.
func NewProviderFromConfig(ctx context.Context, c *ClientConfig, opts ...Opt) (*Provider, error) {
	ghc, err := NewGitHubClient(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("failed to create github provider: %w", err)
	}
	return NewProvider(ghc, opts...), nil
}

// NewProviderFromApp creates a Provider whose client authenticates as a
// GitHub App installation for the given org.
func NewProviderFromApp(ctx context.Context, ts *AppTokenSource, org string, opts ...Opt) (*Provider, error) {
	token, err := ts.TokenForOrg(ctx, org)
	if err != nil {
		return nil, fmt.Errorf("failed to mint app token for org %q: %w", org, err)
	}
	ghc := github.NewClient(nil).WithAuthToken(token)
	return NewProvider(ghc, opts...), nil
}
