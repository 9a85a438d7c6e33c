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

// Package ramp implements the provider contract for the Ramp spend
// platform. Ramp has no group concept, so every group operation is a
// successful no-op and reconciliation degenerates to user provisioning.
package ramp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"golang.org/x/oauth2/clientcredentials"

	"github.com/abcxyz/pkg/cli"
)

// DefaultBaseURL is the production Ramp API endpoint.
const DefaultBaseURL = "https://api.ramp.com"

// Client is a minimal Ramp developer API client covering the user and
// department endpoints.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// ClientConfig holds the flag-configurable connection settings.
type ClientConfig struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
}

func (c *ClientConfig) RegisterFlags(set *cli.FlagSet) {
	f := set.NewSection("RAMP OPTIONS")

	f.StringVar(&cli.StringVar{
		Name:    "ramp-base-url",
		Target:  &c.BaseURL,
		EnvVar:  "RAMP_BASE_URL",
		Default: DefaultBaseURL,
		Usage:   "Base URL of the Ramp API.",
	})

	f.StringVar(&cli.StringVar{
		Name:   "ramp-client-id",
		Target: &c.ClientID,
		EnvVar: "RAMP_CLIENT_ID",
		Usage:  "OAuth client id for the Ramp developer API.",
	})

	f.StringVar(&cli.StringVar{
		Name:   "ramp-client-secret",
		Target: &c.ClientSecret,
		EnvVar: "RAMP_CLIENT_SECRET",
		Usage:  "OAuth client secret for the Ramp developer API.",
	})
}

// NewClient creates a Ramp client authenticating with the client
// credentials grant.
func NewClient(ctx context.Context, baseURL, clientID, clientSecret string) *Client {
	cfg := &clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     baseURL + "/developer/v1/token",
		Scopes:       []string{"users:read", "users:write", "departments:read"},
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: cfg.Client(ctx),
	}
}

// User is a Ramp user record.
type User struct {
	ID           string `json:"id"`
	Email        string `json:"email"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	Role         string `json:"role"`
	DepartmentID string `json:"department_id,omitempty"`
}

// Department is a Ramp department record.
type Department struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// DeferredUserRequest invites a user to Ramp. Provisioning completes
// asynchronously when the user accepts.
type DeferredUserRequest struct {
	Email           string `json:"email"`
	FirstName       string `json:"first_name"`
	LastName        string `json:"last_name"`
	Phone           string `json:"phone,omitempty"`
	Role            string `json:"role"`
	DirectManagerID string `json:"direct_manager_id,omitempty"`
	DepartmentID    string `json:"department_id,omitempty"`
	LocationID      string `json:"location_id,omitempty"`
}

// DeferredUserResponse identifies the asynchronous provisioning task.
type DeferredUserResponse struct {
	ID string `json:"id"`
}

type listResponse[T any] struct {
	Data []T      `json:"data"`
	Page listPage `json:"page"`
}

// listPage carries the cursor to the next page; empty on the last page.
type listPage struct {
	Next string `json:"next"`
}

// listAll fetches every page of a listing endpoint, following the page.next
// cursor until the listing is exhausted.
func listAll[T any](ctx context.Context, c *Client, path string) ([]*T, error) {
	var all []*T
	for next := path; next != ""; {
		var resp listResponse[*T]
		if err := c.do(ctx, http.MethodGet, next, nil, &resp); err != nil {
			return nil, err
		}
		all = append(all, resp.Data...)
		next = resp.Page.Next
	}
	return all, nil
}

// ListUsers returns every user on the Ramp account.
func (c *Client) ListUsers(ctx context.Context) ([]*User, error) {
	return listAll[User](ctx, c, "/developer/v1/users")
}

// ListDepartments returns every department on the Ramp account.
func (c *Client) ListDepartments(ctx context.Context) ([]*Department, error) {
	return listAll[Department](ctx, c, "/developer/v1/departments")
}

// CreateDeferredUser invites a user to the Ramp account.
func (c *Client) CreateDeferredUser(ctx context.Context, req *DeferredUserRequest) (*DeferredUserResponse, error) {
	var resp DeferredUserResponse
	if err := c.do(ctx, http.MethodPost, "/developer/v1/users/deferred", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		jsn, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("ramp: failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(jsn)
	}

	// The page.next cursor is an absolute URL.
	target := c.baseURL + path
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		target = path
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reqBody)
	if err != nil {
		return fmt.Errorf("ramp: failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("ramp: %s %s failed: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		return fmt.Errorf("ramp: %s %s returned %d: %s", method, path, resp.StatusCode, string(b))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("ramp: failed to decode %s %s response: %w", method, path, err)
		}
	}
	return nil
}
