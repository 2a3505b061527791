// Package searchtest provides an in-process stand-in for Elasticsearch.
package searchtest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
)

// Server answers the handful of Elasticsearch endpoints the app uses.
// Matching is a case-insensitive substring test over string fields, and
// hits come back newest id first.
type Server struct {
	*httptest.Server

	mu   sync.Mutex
	docs map[string]map[string]map[string]interface{}
	// Fail makes every document request return 500.
	Fail bool
}

// NewServer starts a fake cluster that is closed with the test.
func NewServer(t testing.TB) *Server {
	t.Helper()
	s := &Server{docs: make(map[string]map[string]map[string]interface{})}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.Close)
	return s
}

// Doc returns a stored document.
func (s *Server) Doc(index, id string) (map[string]interface{}, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[index][id]
	return doc, ok
}

// Count is the number of documents in index.
func (s *Server) Count(index string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.docs[index])
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("X-Elastic-Product", "Elasticsearch")
	w.Header().Set("Content-Type", "application/json")

	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if r.URL.Path == "/" || r.URL.Path == "" {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"version": map[string]string{"number": "8.17.0"},
			"tagline": "You Know, for Search",
		})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Fail {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "boom"})
		return
	}

	switch {
	case len(parts) == 3 && parts[1] == "_doc" && (r.Method == http.MethodPut || r.Method == http.MethodPost):
		var doc map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&doc); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		if s.docs[parts[0]] == nil {
			s.docs[parts[0]] = make(map[string]map[string]interface{})
		}
		s.docs[parts[0]][parts[2]] = doc
		writeJSON(w, http.StatusCreated, map[string]string{"_id": parts[2], "result": "created"})
	case len(parts) == 3 && parts[1] == "_doc" && r.Method == http.MethodDelete:
		if _, ok := s.docs[parts[0]][parts[2]]; !ok {
			writeJSON(w, http.StatusNotFound, map[string]string{"result": "not_found"})
			return
		}
		delete(s.docs[parts[0]], parts[2])
		writeJSON(w, http.StatusOK, map[string]string{"result": "deleted"})
	case len(parts) == 2 && parts[1] == "_search":
		s.search(w, r, parts[0])
	default:
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unsupported " + r.Method + " " + r.URL.Path})
	}
}

func (s *Server) search(w http.ResponseWriter, r *http.Request, index string) {
	var req struct {
		Query struct {
			MultiMatch struct {
				Query string `json:"query"`
			} `json:"multi_match"`
		} `json:"query"`
		From int `json:"from"`
		Size int `json:"size"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	docs, ok := s.docs[index]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "index_not_found_exception"})
		return
	}

	needle := strings.ToLower(req.Query.MultiMatch.Query)
	var ids []string
	for id, doc := range docs {
		for _, v := range doc {
			if str, ok := v.(string); ok && strings.Contains(strings.ToLower(str), needle) {
				ids = append(ids, id)
				break
			}
		}
	}
	sort.Slice(ids, func(i, j int) bool {
		a, _ := strconv.Atoi(ids[i])
		b, _ := strconv.Atoi(ids[j])
		return a > b
	})

	total := len(ids)
	if req.From > len(ids) {
		req.From = len(ids)
	}
	ids = ids[req.From:]
	if req.Size > 0 && req.Size < len(ids) {
		ids = ids[:req.Size]
	}

	hits := make([]map[string]interface{}, 0, len(ids))
	for _, id := range ids {
		hits = append(hits, map[string]interface{}{"_id": id, "_source": docs[id]})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"hits": map[string]interface{}{
			"total": map[string]interface{}{"value": total, "relation": "eq"},
			"hits":  hits,
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
