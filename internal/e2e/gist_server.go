package e2e

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	gosync "sync"
	"testing"
	"time"

	json "github.com/goccy/go-json"

	"github.com/klauern/agentsync/internal/gist"
)

// GistServer is an in-memory GitHub Gist API shared by every device in a
// test. It accepts a single bearer token.
type GistServer struct {
	URL string

	mu       gosync.Mutex
	token    string
	gists    map[string]*gist.Gist
	nextID   int
	last     time.Time
	requests map[string]int
}

type gistWrite struct {
	Description string `json:"description"`
	Public      bool   `json:"public"`
	Files       map[string]struct {
		Content string `json:"content"`
	} `json:"files"`
}

// NewGistServer starts a server that is closed when the test ends.
func NewGistServer(t *testing.T, token string) *GistServer {
	t.Helper()
	s := &GistServer{
		token:    token,
		gists:    make(map[string]*gist.Gist),
		requests: make(map[string]int),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /user", s.authed(s.handleUser))
	mux.HandleFunc("GET /gists", s.authed(s.handleList))
	mux.HandleFunc("POST /gists", s.authed(s.handleCreate))
	mux.HandleFunc("GET /gists/{id}", s.authed(s.handleGet))
	mux.HandleFunc("PATCH /gists/{id}", s.authed(s.handleUpdate))

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	s.URL = srv.URL
	return s
}

// Count returns the number of gists stored.
func (s *GistServer) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.gists)
}

// Requests returns how often a route such as "PATCH /gists/{id}" was served.
func (s *GistServer) Requests(route string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[route]
}

// Document returns the sync document stored in gist id, or "".
func (s *GistServer) Document(id string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.gists[id]
	if !ok {
		return ""
	}
	return g.Files[gist.FileName].Content
}

// IDs returns the stored gist ids in creation order.
func (s *GistServer) IDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.gists))
	for id := range s.gists {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (s *GistServer) authed(h func(w http.ResponseWriter, r *http.Request)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.requests[r.Pattern]++
		s.mu.Unlock()

		if r.Header.Get("Authorization") != "Bearer "+s.token {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Bad credentials"})
			return
		}
		h(w, r)
	}
}

// tick returns a strictly increasing timestamp. Callers hold s.mu.
func (s *GistServer) tick() time.Time {
	now := time.Now().UTC()
	if !now.After(s.last) {
		now = s.last.Add(time.Millisecond)
	}
	s.last = now
	return now
}

func (s *GistServer) handleUser(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("X-OAuth-Scopes", "gist, read:user")
	writeJSON(w, http.StatusOK, map[string]string{"login": "octocat"})
}

func (s *GistServer) handleList(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]gist.Gist, 0, len(s.gists))
	for _, g := range s.gists {
		cp := *g
		cp.Files = make(map[string]gist.File, len(g.Files))
		for name, f := range g.Files {
			f.Content = ""
			cp.Files[name] = f
		}
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	writeJSON(w, http.StatusOK, out)
}

func (s *GistServer) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req gistWrite
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"message": err.Error()})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	now := s.tick()
	id := fmt.Sprintf("e2e%04d", s.nextID)
	g := &gist.Gist{
		ID:          id,
		Description: req.Description,
		HTMLURL:     "https://gist.github.com/" + id,
		Public:      req.Public,
		Files:       make(map[string]gist.File, len(req.Files)),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	for name, f := range req.Files {
		g.Files[name] = gist.File{Filename: name, Content: f.Content, Size: len(f.Content)}
	}
	s.gists[id] = g
	writeJSON(w, http.StatusCreated, g)
}

func (s *GistServer) handleGet(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.gists[r.PathValue("id")]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "Not Found"})
		return
	}
	writeJSON(w, http.StatusOK, g)
}

func (s *GistServer) handleUpdate(w http.ResponseWriter, r *http.Request) {
	var req gistWrite
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"message": err.Error()})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.gists[r.PathValue("id")]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "Not Found"})
		return
	}
	if req.Description != "" {
		g.Description = req.Description
	}
	for name, f := range req.Files {
		g.Files[name] = gist.File{Filename: name, Content: f.Content, Size: len(f.Content)}
	}
	g.UpdatedAt = s.tick()
	writeJSON(w, http.StatusOK, g)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
