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

// Package okta implements the provider contract for an Okta organization.
// Okta has no lookup-by-name endpoint for groups, so group resolution is a
// linear scan of the full group listing.
package okta

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/abcxyz/pkg/cli"
)

const defaultPageLimit = "200"

// Client is a minimal Okta management API client covering the user, group
// and membership endpoints.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// ClientConfig holds the flag-configurable connection settings.
type ClientConfig struct {
	OrgURL string
	Token  string
}

func (c *ClientConfig) RegisterFlags(set *cli.FlagSet) {
	f := set.NewSection("OKTA OPTIONS")

	f.StringVar(&cli.StringVar{
		Name:   "okta-org-url",
		Target: &c.OrgURL,
		EnvVar: "OKTA_ORG_URL",
		Usage:  "Base URL of the Okta organization, such as https://example.okta.com.",
	})

	f.StringVar(&cli.StringVar{
		Name:   "okta-token",
		Target: &c.Token,
		EnvVar: "OKTA_API_TOKEN",
		Usage:  "Okta API token with user and group management permission.",
	})
}

// NewClient creates an Okta client for the organization at orgURL.
func NewClient(orgURL, token string) *Client {
	return &Client{
		baseURL:    strings.TrimSuffix(orgURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

// APIError is a non-2xx response from the Okta API.
type APIError struct {
	StatusCode int
	Method     string
	Path       string
	Summary    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("okta: %s %s returned %d: %s", e.Method, e.Path, e.StatusCode, e.Summary)
}

type apiErrorBody struct {
	ErrorSummary string `json:"errorSummary"`
}

// User is an Okta user record.
type User struct {
	ID      string      `json:"id"`
	Status  string      `json:"status"`
	Profile UserProfile `json:"profile"`
}

// UserProfile is the default Okta user profile schema, limited to the
// attributes this package manages.
type UserProfile struct {
	Login        string `json:"login"`
	Email        string `json:"email"`
	FirstName    string `json:"firstName"`
	LastName     string `json:"lastName"`
	DisplayName  string `json:"displayName,omitempty"`
	Department   string `json:"department,omitempty"`
	Manager      string `json:"manager,omitempty"`
	MobilePhone  string `json:"mobilePhone,omitempty"`
	PrimaryPhone string `json:"primaryPhone,omitempty"`
	SecondEmail  string `json:"secondEmail,omitempty"`
	Organization string `json:"organization,omitempty"`
}

// Group is an Okta group record.
type Group struct {
	ID      string       `json:"id"`
	Profile GroupProfile `json:"profile"`
}

// GroupProfile is the Okta group profile.
type GroupProfile struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// GetUser fetches a user by login. A missing user is (nil, nil).
func (c *Client) GetUser(ctx context.Context, login string) (*User, error) {
	var user User
	err := c.do(ctx, http.MethodGet, "/api/v1/users/"+url.PathEscape(login), nil, &user)
	if err != nil {
		if isStatus(err, http.StatusNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &user, nil
}

// CreateUser creates and activates a user.
func (c *Client) CreateUser(ctx context.Context, profile *UserProfile) (*User, error) {
	var user User
	body := map[string]any{"profile": profile}
	if err := c.do(ctx, http.MethodPost, "/api/v1/users?activate=true", body, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// UpdateUser replaces the user's profile. The strict PUT update is used so
// that attributes absent from the profile are cleared remotely instead of
// keeping their old values, as the partial POST update would.
func (c *Client) UpdateUser(ctx context.Context, id string, profile *UserProfile) (*User, error) {
	var user User
	body := map[string]any{"profile": profile}
	if err := c.do(ctx, http.MethodPut, "/api/v1/users/"+url.PathEscape(id), body, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// DeactivateUser deactivates the user. The record remains listable.
func (c *Client) DeactivateUser(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, "/api/v1/users/"+url.PathEscape(id)+"/lifecycle/deactivate", nil, nil)
}

// ListUsers returns every user in the organization.
func (c *Client) ListUsers(ctx context.Context) ([]*User, error) {
	return listAll[User](ctx, c, "/api/v1/users?limit="+defaultPageLimit)
}

// ListGroups returns every group in the organization.
func (c *Client) ListGroups(ctx context.Context) ([]*Group, error) {
	return listAll[Group](ctx, c, "/api/v1/groups?limit="+defaultPageLimit)
}

// CreateGroup creates a group.
func (c *Client) CreateGroup(ctx context.Context, profile *GroupProfile) (*Group, error) {
	var group Group
	body := map[string]any{"profile": profile}
	if err := c.do(ctx, http.MethodPost, "/api/v1/groups", body, &group); err != nil {
		return nil, err
	}
	return &group, nil
}

// UpdateGroup replaces the group's profile.
func (c *Client) UpdateGroup(ctx context.Context, id string, profile *GroupProfile) (*Group, error) {
	var group Group
	body := map[string]any{"profile": profile}
	if err := c.do(ctx, http.MethodPut, "/api/v1/groups/"+url.PathEscape(id), body, &group); err != nil {
		return nil, err
	}
	return &group, nil
}

// DeleteGroup deletes a group by id.
func (c *Client) DeleteGroup(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/v1/groups/"+url.PathEscape(id), nil, nil)
}

// ListGroupUsers returns the members of a group.
func (c *Client) ListGroupUsers(ctx context.Context, groupID string) ([]*User, error) {
	path := "/api/v1/groups/" + url.PathEscape(groupID) + "/users?limit=" + defaultPageLimit
	return listAll[User](ctx, c, path)
}

// AddUserToGroup adds a user to a group. Adding an existing member is a
// success.
func (c *Client) AddUserToGroup(ctx context.Context, groupID, userID string) error {
	path := "/api/v1/groups/" + url.PathEscape(groupID) + "/users/" + url.PathEscape(userID)
	return c.do(ctx, http.MethodPut, path, nil, nil)
}

// RemoveUserFromGroup removes a user from a group.
func (c *Client) RemoveUserFromGroup(ctx context.Context, groupID, userID string) error {
	path := "/api/v1/groups/" + url.PathEscape(groupID) + "/users/" + url.PathEscape(userID)
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

// listAll fetches every page of a listing endpoint, following the
// Link rel="next" header until the listing is exhausted.
func listAll[T any](ctx context.Context, c *Client, path string) ([]*T, error) {
	var all []*T
	for next := path; next != ""; {
		var page []*T
		nextPage, err := c.doPage(ctx, http.MethodGet, next, nil, &page)
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
		next = nextPage
	}
	return all, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	_, err := c.doPage(ctx, method, path, body, out)
	return err
}

// doPage issues a single request and reports the next page URL from the
// Link response header, if any. path may be a path relative to the org base
// URL or the absolute URL of a follow-up page.
func (c *Client) doPage(ctx context.Context, method, path string, body, out any) (string, error) {
	var reqBody io.Reader
	if body != nil {
		jsn, err := json.Marshal(body)
		if err != nil {
			return "", fmt.Errorf("okta: failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(jsn)
	}

	target := c.baseURL + path
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		target = path
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reqBody)
	if err != nil {
		return "", fmt.Errorf("okta: failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "SSWS "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("okta: %s %s failed: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errBody apiErrorBody
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		_ = json.Unmarshal(b, &errBody)
		return "", &APIError{
			StatusCode: resp.StatusCode,
			Method:     method,
			Path:       req.URL.Path,
			Summary:    errBody.ErrorSummary,
		}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return "", fmt.Errorf("okta: failed to decode %s %s response: %w", method, path, err)
		}
	}
	return nextLink(resp.Header), nil
}

// nextLink extracts the rel="next" URL from a Link header.
func nextLink(header http.Header) string {
	for _, value := range header.Values("Link") {
		for _, link := range strings.Split(value, ",") {
			target, params, ok := strings.Cut(link, ";")
			if !ok {
				continue
			}
			if !strings.Contains(params, `rel="next"`) {
				continue
			}
			return strings.Trim(strings.TrimSpace(target), "<>")
		}
	}
	return ""
}

func isStatus(err error, code int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == code
}
