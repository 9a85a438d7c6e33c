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

	"github.com/abcxyz/pkg/githubauth"
)

// KeyProvider provides a private key.
type KeyProvider interface {
	Key(ctx context.Context) ([]byte, error)
}

// AppTokenSource mints installation tokens for a GitHub App with org member
// write access.
type AppTokenSource struct {
	keyProvider KeyProvider
	appID       string
	appOpts     []githubauth.Option
}

// NewAppTokenSource creates a token source for the app. Options are passed
// through to the app, for example githubauth.WithBaseURL for GitHub
// Enterprise.
func NewAppTokenSource(keyProvider KeyProvider, appID string, opts ...githubauth.Option) *AppTokenSource {
	return &AppTokenSource{
		keyProvider: keyProvider,
		appID:       appID,
		appOpts:     opts,
	}
}

func (s *AppTokenSource) TokenForOrg(ctx context.Context, org string) (string, error) {
	privateKey, err := s.keyProvider.Key(ctx)
	if err != nil {
		return "", fmt.Errorf("unable to get GitHub app private key: %w", err)
	}
	signer, err := githubauth.NewPrivateKeySigner(privateKey)
	if err != nil {
		return "", fmt.Errorf("unable to parse GitHub app private key: %w", err)
	}
	app, err := githubauth.NewApp(s.appID, signer, s.appOpts...)
	if err != nil {
		return "", fmt.Errorf("unable to create GitHub app: %w", err)
	}
	appInstallation, err := app.InstallationForOrg(ctx, org)
	if err != nil {
		return "", fmt.Errorf("failed to get installation for org %q: %w", org, err)
	}
	token, err := appInstallation.AccessTokenAllRepos(ctx, &githubauth.TokenRequestAllRepos{
		Permissions: map[string]string{
			"members": "write",
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to get access token for org %q: %w", org, err)
	}
	return token, nil
}
