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
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	admin "google.golang.org/api/admin/directory/v1"
	"google.golang.org/api/groupssettings/v1"
	"google.golang.org/api/option"
)

// WorkspaceData is the in-memory state behind the fake Workspace server. It
// serves both the admin directory API and the group settings API.
type WorkspaceData struct {
	// users maps primary email to the user record. Records also resolve
	// by their Id, matching the real API's userKey semantics.
	users map[string]*admin.User
	// groups maps group email to the group record.
	groups map[string]*admin.Group
	// members maps group email to member email to the member record.
	members map[string]map[string]*admin.Member
	// settings holds the last settings update per group email.
	settings map[string]*groupssettings.Groups

	// failures maps "METHOD path" to a status code to force.
	failures map[string]int

	// calls records every request as "METHOD path".
	calls []string
	// createdUsers records the body of every user insert call.
	createdUsers []admin.User
}

func workspaceServices(t *testing.T, server *httptest.Server) (*admin.Service, *groupssettings.Service) {
	t.Helper()
	ctx := context.Background()
	dir, err := admin.NewService(ctx,
		option.WithHTTPClient(server.Client()),
		option.WithEndpoint(server.URL))
	if err != nil {
		t.Fatalf("failed to build directory service: %v", err)
	}
	gs, err := groupssettings.NewService(ctx,
		option.WithHTTPClient(server.Client()),
		option.WithEndpoint(server.URL+"/groups/v1/groups/"))
	if err != nil {
		t.Fatalf("failed to build settings service: %v", err)
	}
	return dir, gs
}

func fakeWorkspace(data *WorkspaceData) *httptest.Server {
	if data.users == nil {
		data.users = map[string]*admin.User{}
	}
	if data.groups == nil {
		data.groups = map[string]*admin.Group{}
	}
	if data.members == nil {
		data.members = map[string]map[string]*admin.Member{}
	}
	if data.settings == nil {
		data.settings = map[string]*groupssettings.Groups{}
	}

	writeJSON := func(w http.ResponseWriter, v any) {
		jsn, err := json.Marshal(v)
		if err != nil {
			w.WriteHeader(500)
			fmt.Fprintf(w, "failed to marshal response")
			return
		}
		_, _ = w.Write(jsn)
	}
	notFound := func(w http.ResponseWriter, what string) {
		w.WriteHeader(404)
		fmt.Fprintf(w, `{"error": {"code": 404, "message": %q}}`, what+" not found")
	}
	intercept := func(w http.ResponseWriter, r *http.Request) bool {
		data.calls = append(data.calls, r.Method+" "+r.URL.Path)
		if code, ok := data.failures[r.Method+" "+r.URL.Path]; ok {
			w.WriteHeader(code)
			fmt.Fprintf(w, `{"error": {"code": %d, "message": "forced failure"}}`, code)
			return true
		}
		return false
	}

	// findUser resolves a userKey, which may be an email or an id.
	findUser := func(key string) *admin.User {
		if u, ok := data.users[key]; ok {
			return u
		}
		for _, u := range data.users {
			if u.Id == key {
				return u
			}
		}
		return nil
	}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /admin/directory/v1/users/{userKey}", func(w http.ResponseWriter, r *http.Request) {
		if intercept(w, r) {
			return
		}
		u := findUser(r.PathValue("userKey"))
		if u == nil {
			notFound(w, "user")
			return
		}
		writeJSON(w, u)
	})
	mux.HandleFunc("PUT /admin/directory/v1/users/{userKey}", func(w http.ResponseWriter, r *http.Request) {
		if intercept(w, r) {
			return
		}
		u := findUser(r.PathValue("userKey"))
		if u == nil {
			notFound(w, "user")
			return
		}
		var update admin.User
		if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
			w.WriteHeader(400)
			return
		}
		update.Id = u.Id
		update.PrimaryEmail = u.PrimaryEmail
		data.users[u.PrimaryEmail] = &update
		writeJSON(w, &update)
	})
	mux.HandleFunc("POST /admin/directory/v1/users", func(w http.ResponseWriter, r *http.Request) {
		if intercept(w, r) {
			return
		}
		var u admin.User
		if err := json.NewDecoder(r.Body).Decode(&u); err != nil {
			w.WriteHeader(400)
			return
		}
		data.createdUsers = append(data.createdUsers, u)
		u.Id = fmt.Sprintf("uid-%d", len(data.createdUsers))
		data.users[u.PrimaryEmail] = &u
		writeJSON(w, &u)
	})
	mux.HandleFunc("GET /admin/directory/v1/users", func(w http.ResponseWriter, r *http.Request) {
		if intercept(w, r) {
			return
		}
		resp := &admin.Users{}
		for _, u := range data.users {
			resp.Users = append(resp.Users, u)
		}
		writeJSON(w, resp)
	})
	mux.HandleFunc("POST /admin/directory/v1/users/{userKey}/aliases", func(w http.ResponseWriter, r *http.Request) {
		if intercept(w, r) {
			return
		}
		u := findUser(r.PathValue("userKey"))
		if u == nil {
			notFound(w, "user")
			return
		}
		var alias admin.Alias
		if err := json.NewDecoder(r.Body).Decode(&alias); err != nil {
			w.WriteHeader(400)
			return
		}
		u.Aliases = append(u.Aliases, alias.Alias)
		writeJSON(w, &alias)
	})
	mux.HandleFunc("DELETE /admin/directory/v1/users/{userKey}/aliases/{alias}", func(w http.ResponseWriter, r *http.Request) {
		if intercept(w, r) {
			return
		}
		u := findUser(r.PathValue("userKey"))
		if u == nil {
			notFound(w, "user")
			return
		}
		alias := r.PathValue("alias")
		kept := u.Aliases[:0]
		for _, a := range u.Aliases {
			if a != alias {
				kept = append(kept, a)
			}
		}
		u.Aliases = kept
		w.WriteHeader(204)
	})

	mux.HandleFunc("GET /admin/directory/v1/groups/{groupKey}", func(w http.ResponseWriter, r *http.Request) {
		if intercept(w, r) {
			return
		}
		g, ok := data.groups[r.PathValue("groupKey")]
		if !ok {
			notFound(w, "group")
			return
		}
		writeJSON(w, g)
	})
	mux.HandleFunc("PUT /admin/directory/v1/groups/{groupKey}", func(w http.ResponseWriter, r *http.Request) {
		if intercept(w, r) {
			return
		}
		key := r.PathValue("groupKey")
		if _, ok := data.groups[key]; !ok {
			notFound(w, "group")
			return
		}
		var update admin.Group
		if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
			w.WriteHeader(400)
			return
		}
		update.Email = key
		data.groups[key] = &update
		writeJSON(w, &update)
	})
	mux.HandleFunc("POST /admin/directory/v1/groups", func(w http.ResponseWriter, r *http.Request) {
		if intercept(w, r) {
			return
		}
		var g admin.Group
		if err := json.NewDecoder(r.Body).Decode(&g); err != nil {
			w.WriteHeader(400)
			return
		}
		data.groups[g.Email] = &g
		writeJSON(w, &g)
	})
	mux.HandleFunc("DELETE /admin/directory/v1/groups/{groupKey}", func(w http.ResponseWriter, r *http.Request) {
		if intercept(w, r) {
			return
		}
		key := r.PathValue("groupKey")
		if _, ok := data.groups[key]; !ok {
			notFound(w, "group")
			return
		}
		delete(data.groups, key)
		delete(data.members, key)
		w.WriteHeader(204)
	})
	mux.HandleFunc("GET /admin/directory/v1/groups", func(w http.ResponseWriter, r *http.Request) {
		if intercept(w, r) {
			return
		}
		resp := &admin.Groups{}
		for _, g := range data.groups {
			resp.Groups = append(resp.Groups, g)
		}
		writeJSON(w, resp)
	})
	mux.HandleFunc("POST /admin/directory/v1/groups/{groupKey}/aliases", func(w http.ResponseWriter, r *http.Request) {
		if intercept(w, r) {
			return
		}
		g, ok := data.groups[r.PathValue("groupKey")]
		if !ok {
			notFound(w, "group")
			return
		}
		var alias admin.Alias
		if err := json.NewDecoder(r.Body).Decode(&alias); err != nil {
			w.WriteHeader(400)
			return
		}
		g.Aliases = append(g.Aliases, alias.Alias)
		writeJSON(w, &alias)
	})
	mux.HandleFunc("DELETE /admin/directory/v1/groups/{groupKey}/aliases/{alias}", func(w http.ResponseWriter, r *http.Request) {
		if intercept(w, r) {
			return
		}
		g, ok := data.groups[r.PathValue("groupKey")]
		if !ok {
			notFound(w, "group")
			return
		}
		alias := r.PathValue("alias")
		kept := g.Aliases[:0]
		for _, a := range g.Aliases {
			if a != alias {
				kept = append(kept, a)
			}
		}
		g.Aliases = kept
		w.WriteHeader(204)
	})

	mux.HandleFunc("GET /admin/directory/v1/groups/{groupKey}/members/{memberKey}", func(w http.ResponseWriter, r *http.Request) {
		if intercept(w, r) {
			return
		}
		m, ok := data.members[r.PathValue("groupKey")][r.PathValue("memberKey")]
		if !ok {
			notFound(w, "member")
			return
		}
		writeJSON(w, m)
	})
	mux.HandleFunc("POST /admin/directory/v1/groups/{groupKey}/members", func(w http.ResponseWriter, r *http.Request) {
		if intercept(w, r) {
			return
		}
		key := r.PathValue("groupKey")
		var m admin.Member
		if err := json.NewDecoder(r.Body).Decode(&m); err != nil {
			w.WriteHeader(400)
			return
		}
		if data.members[key] == nil {
			data.members[key] = map[string]*admin.Member{}
		}
		data.members[key][m.Email] = &m
		writeJSON(w, &m)
	})
	mux.HandleFunc("PUT /admin/directory/v1/groups/{groupKey}/members/{memberKey}", func(w http.ResponseWriter, r *http.Request) {
		if intercept(w, r) {
			return
		}
		key := r.PathValue("groupKey")
		if _, ok := data.members[key][r.PathValue("memberKey")]; !ok {
			notFound(w, "member")
			return
		}
		var m admin.Member
		if err := json.NewDecoder(r.Body).Decode(&m); err != nil {
			w.WriteHeader(400)
			return
		}
		data.members[key][m.Email] = &m
		writeJSON(w, &m)
	})
	mux.HandleFunc("DELETE /admin/directory/v1/groups/{groupKey}/members/{memberKey}", func(w http.ResponseWriter, r *http.Request) {
		if intercept(w, r) {
			return
		}
		key := r.PathValue("groupKey")
		member := r.PathValue("memberKey")
		if _, ok := data.members[key][member]; !ok {
			notFound(w, "member")
			return
		}
		delete(data.members[key], member)
		w.WriteHeader(204)
	})

	// Group settings API.
	mux.HandleFunc("PUT /groups/v1/groups/{groupUniqueId}", func(w http.ResponseWriter, r *http.Request) {
		if intercept(w, r) {
			return
		}
		var s groupssettings.Groups
		if err := json.NewDecoder(r.Body).Decode(&s); err != nil {
			w.WriteHeader(400)
			return
		}
		data.settings[r.PathValue("groupUniqueId")] = &s
		writeJSON(w, &s)
	})

	return httptest.NewServer(mux)
}

// mutations returns the recorded calls that change state.
func (d *WorkspaceData) mutations() []string {
	var out []string
	for _, c := range d.calls {
		if !strings.HasPrefix(c, "GET ") {
			out = append(out, c)
		}
	}
	return out
}
