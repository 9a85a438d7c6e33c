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
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"

	gitlab "gitlab.com/gitlab-org/api/client-go"
)

// GitLabData is the in-memory state behind the fake GitLab server.
type GitLabData struct {
	// users maps username to the user record.
	users map[string]*gitlab.User
	// groups maps full path to the group record.
	groups map[string]*gitlab.Group
	// groupMembers maps full path to user id to access level.
	groupMembers map[string]map[int]gitlab.AccessLevelValue

	// failures maps "METHOD path" to a status code to force.
	failures map[string]int

	// calls records every request as "METHOD path".
	calls []string
}

func (d *GitLabData) findGroup(key string) (string, *gitlab.Group) {
	if g, ok := d.groups[key]; ok {
		return key, g
	}
	if id, err := strconv.Atoi(key); err == nil {
		for path, g := range d.groups {
			if g.ID == id {
				return path, g
			}
		}
	}
	return "", nil
}

func fakeGitLab(data *GitLabData) *httptest.Server {
	if data.users == nil {
		data.users = map[string]*gitlab.User{}
	}
	if data.groups == nil {
		data.groups = map[string]*gitlab.Group{}
	}
	if data.groupMembers == nil {
		data.groupMembers = map[string]map[int]gitlab.AccessLevelValue{}
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
		fmt.Fprintf(w, `{"message": %q}`, what+" not found")
	}
	intercept := func(w http.ResponseWriter, r *http.Request) bool {
		data.calls = append(data.calls, r.Method+" "+r.URL.Path)
		if code, ok := data.failures[r.Method+" "+r.URL.Path]; ok {
			w.WriteHeader(code)
			fmt.Fprintf(w, `{"message": "forced failure"}`)
			return true
		}
		return false
	}
	findUserByID := func(id int) *gitlab.User {
		for _, u := range data.users {
			if u.ID == id {
				return u
			}
		}
		return nil
	}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v4/users", func(w http.ResponseWriter, r *http.Request) {
		if intercept(w, r) {
			return
		}
		matches := []*gitlab.User{}
		if u, ok := data.users[r.FormValue("username")]; ok {
			matches = append(matches, u)
		}
		writeJSON(w, matches)
	})

	mux.HandleFunc("GET /api/v4/groups/{group_id}", func(w http.ResponseWriter, r *http.Request) {
		if intercept(w, r) {
			return
		}
		_, g := data.findGroup(r.PathValue("group_id"))
		if g == nil {
			notFound(w, "group")
			return
		}
		writeJSON(w, g)
	})
	mux.HandleFunc("PUT /api/v4/groups/{group_id}", func(w http.ResponseWriter, r *http.Request) {
		if intercept(w, r) {
			return
		}
		_, g := data.findGroup(r.PathValue("group_id"))
		if g == nil {
			notFound(w, "group")
			return
		}
		payload := map[string]any{}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			w.WriteHeader(400)
			return
		}
		if name, ok := payload["name"].(string); ok {
			g.Name = name
		}
		if description, ok := payload["description"].(string); ok {
			g.Description = description
		}
		writeJSON(w, g)
	})
	mux.HandleFunc("POST /api/v4/groups", func(w http.ResponseWriter, r *http.Request) {
		if intercept(w, r) {
			return
		}
		payload := map[string]any{}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			w.WriteHeader(400)
			return
		}
		path, _ := payload["path"].(string)
		name, _ := payload["name"].(string)
		description, _ := payload["description"].(string)
		parentID, _ := payload["parent_id"].(float64)

		fullPath := path
		if parentID != 0 {
			parentPath, parent := data.findGroup(strconv.Itoa(int(parentID)))
			if parent == nil {
				notFound(w, "parent group")
				return
			}
			fullPath = parentPath + "/" + path
		}
		g := &gitlab.Group{
			ID:          len(data.groups) + 1000,
			Name:        name,
			Path:        path,
			FullPath:    fullPath,
			Description: description,
			ParentID:    int(parentID),
		}
		data.groups[fullPath] = g
		writeJSON(w, g)
	})
	mux.HandleFunc("DELETE /api/v4/groups/{group_id}", func(w http.ResponseWriter, r *http.Request) {
		if intercept(w, r) {
			return
		}
		path, g := data.findGroup(r.PathValue("group_id"))
		if g == nil {
			notFound(w, "group")
			return
		}
		delete(data.groups, path)
		delete(data.groupMembers, path)
		w.WriteHeader(http.StatusAccepted)
	})
	mux.HandleFunc("GET /api/v4/groups/{group_id}/subgroups", func(w http.ResponseWriter, r *http.Request) {
		if intercept(w, r) {
			return
		}
		_, parent := data.findGroup(r.PathValue("group_id"))
		if parent == nil {
			notFound(w, "group")
			return
		}
		subgroups := []*gitlab.Group{}
		for _, g := range data.groups {
			if g.ParentID == parent.ID {
				subgroups = append(subgroups, g)
			}
		}
		writeJSON(w, subgroups)
	})

	mux.HandleFunc("GET /api/v4/groups/{group_id}/members", func(w http.ResponseWriter, r *http.Request) {
		if intercept(w, r) {
			return
		}
		path, g := data.findGroup(r.PathValue("group_id"))
		if g == nil {
			notFound(w, "group")
			return
		}
		members := []*gitlab.GroupMember{}
		for id, level := range data.groupMembers[path] {
			u := findUserByID(id)
			if u == nil {
				w.WriteHeader(500)
				fmt.Fprintf(w, "user data inconsistency")
				return
			}
			members = append(members, &gitlab.GroupMember{
				ID:          u.ID,
				Username:    u.Username,
				AccessLevel: level,
			})
		}
		writeJSON(w, members)
	})
	mux.HandleFunc("GET /api/v4/groups/{group_id}/members/{user_id}", func(w http.ResponseWriter, r *http.Request) {
		if intercept(w, r) {
			return
		}
		path, g := data.findGroup(r.PathValue("group_id"))
		if g == nil {
			notFound(w, "group")
			return
		}
		id, _ := strconv.Atoi(r.PathValue("user_id"))
		level, ok := data.groupMembers[path][id]
		if !ok {
			notFound(w, "member")
			return
		}
		u := findUserByID(id)
		writeJSON(w, &gitlab.GroupMember{ID: id, Username: u.Username, AccessLevel: level})
	})
	mux.HandleFunc("POST /api/v4/groups/{group_id}/members", func(w http.ResponseWriter, r *http.Request) {
		if intercept(w, r) {
			return
		}
		path, g := data.findGroup(r.PathValue("group_id"))
		if g == nil {
			notFound(w, "group")
			return
		}
		payload := map[string]any{}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			w.WriteHeader(400)
			return
		}
		id, _ := payload["user_id"].(float64)
		level, _ := payload["access_level"].(float64)
		u := findUserByID(int(id))
		if u == nil {
			notFound(w, "user")
			return
		}
		if data.groupMembers[path] == nil {
			data.groupMembers[path] = map[int]gitlab.AccessLevelValue{}
		}
		data.groupMembers[path][u.ID] = gitlab.AccessLevelValue(level)
		writeJSON(w, &gitlab.GroupMember{ID: u.ID, Username: u.Username, AccessLevel: gitlab.AccessLevelValue(level)})
	})
	mux.HandleFunc("PUT /api/v4/groups/{group_id}/members/{user_id}", func(w http.ResponseWriter, r *http.Request) {
		if intercept(w, r) {
			return
		}
		path, g := data.findGroup(r.PathValue("group_id"))
		if g == nil {
			notFound(w, "group")
			return
		}
		id, _ := strconv.Atoi(r.PathValue("user_id"))
		if _, ok := data.groupMembers[path][id]; !ok {
			notFound(w, "member")
			return
		}
		payload := map[string]any{}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			w.WriteHeader(400)
			return
		}
		level, _ := payload["access_level"].(float64)
		data.groupMembers[path][id] = gitlab.AccessLevelValue(level)
		u := findUserByID(id)
		writeJSON(w, &gitlab.GroupMember{ID: id, Username: u.Username, AccessLevel: gitlab.AccessLevelValue(level)})
	})
	mux.HandleFunc("DELETE /api/v4/groups/{group_id}/members/{user_id}", func(w http.ResponseWriter, r *http.Request) {
		if intercept(w, r) {
			return
		}
		path, g := data.findGroup(r.PathValue("group_id"))
		if g == nil {
			notFound(w, "group")
			return
		}
		id, _ := strconv.Atoi(r.PathValue("user_id"))
		if _, ok := data.groupMembers[path][id]; !ok {
			notFound(w, "member")
			return
		}
		delete(data.groupMembers[path], id)
		w.WriteHeader(http.StatusNoContent)
	})

	return httptest.NewServer(mux)
}

// mutations returns the recorded calls that change state.
func (d *GitLabData) mutations() []string {
	var out []string
	for _, c := range d.calls {
		if !strings.HasPrefix(c, "GET ") {
			out = append(out, c)
		}
	}
	return out
}
