// Package testutil provides testing utilities for the term sync packages.
package testutil

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
)

// MockTerm is one term served by the mock taxonomy service.
type MockTerm struct {
	ID   string
	Name string
}

// TermRequest records one call to a children endpoint.
type TermRequest struct {
	Path      string
	GUID      string
	Digest    string
	TermSetID string
	Body      map[string]any
}

// MockGO is a configurable mock of the remote taxonomy site for one case type.
type MockGO struct {
	server   *httptest.Server
	caseType string

	mu        sync.RWMutex
	handlers  map[string]func(w http.ResponseWriter, r *http.Request)
	digest    string
	children  map[string][]MockTerm
	failures  map[string]int
	listPages [][]map[string]any

	// Tracking
	RequestCount int
	TermRequests []TermRequest
	ListRequests []string
}

// NewMockGO creates a new mock site serving caseType.
func NewMockGO(caseType string) *MockGO {
	mock := &MockGO{
		caseType: caseType,
		handlers: make(map[string]func(w http.ResponseWriter, r *http.Request)),
		digest:   "0xMOCKDIGEST,15 Oct 2026 06:00:00 -0000",
		children: make(map[string][]MockTerm),
		failures: make(map[string]int),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.RequestCount++
		handler, exists := mock.handlers[r.URL.Path]
		mock.mu.Unlock()

		if exists {
			handler(w, r)
			return
		}
		mock.route(w, r)
	}))

	return mock
}

// URL returns the mock server URL.
func (m *MockGO) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockGO) Close() {
	m.server.Close()
}

// SetHandler sets a custom handler for a specific path.
func (m *MockGO) SetHandler(path string, handler func(w http.ResponseWriter, r *http.Request)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetDigest sets the form digest value served by the management page. An empty
// value makes the page omit the token.
func (m *MockGO) SetDigest(digest string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.digest = digest
}

// Digest returns the form digest value currently served.
func (m *MockGO) Digest() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.digest
}

// AddTerms registers children under parentID ("" is the term-set root).
func (m *MockGO) AddTerms(parentID string, terms ...MockTerm) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.children[parentID] = append(m.children[parentID], terms...)
}

// FailChildren makes lookups of parentID's children answer with status.
func (m *MockGO) FailChildren(parentID string, status int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[parentID] = status
}

// SetListPages configures the paginated taxonomy list. Every page but the last
// carries a NextHref.
func (m *MockGO) SetListPages(pages ...[]map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listPages = pages
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockGO) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RequestCount
}

// GetTermRequests returns a copy of the recorded children requests.
func (m *MockGO) GetTermRequests() []TermRequest {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]TermRequest(nil), m.TermRequests...)
}

// GetListRequests returns the raw queries of the recorded list requests.
func (m *MockGO) GetListRequests() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.ListRequests...)
}

func (m *MockGO) route(w http.ResponseWriter, r *http.Request) {
	prefix := "/" + m.caseType
	path := r.URL.Path

	switch {
	case r.Method != http.MethodPost:
		w.WriteHeader(http.StatusMethodNotAllowed)
	case path == prefix+"/_layouts/15/termstoremanager.aspx":
		m.serveDigest(w)
	case path == prefix+"/_vti_bin/taxonomyinternalservice.json/GetChildTermsInTermSetWithPaging",
		path == prefix+"/_vti_bin/taxonomyinternalservice.json/GetChildTermsInTermWithPaging":
		m.serveChildren(w, r)
	case strings.HasPrefix(path, prefix+"/_api/web/GetList(") && strings.HasSuffix(path, "/RenderListDataAsStream"):
		m.serveList(w, r)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (m *MockGO) serveDigest(w http.ResponseWriter) {
	digest := m.Digest()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if digest == "" {
		w.Write([]byte(`<html><body>no context</body></html>`))
		return
	}
	fmt.Fprintf(w, `<html><script>var _spPageContextInfo={"webTitle":"GO","formDigestValue":"%s"};</script></html>`, digest)
}

func (m *MockGO) serveChildren(w http.ResponseWriter, r *http.Request) {
	data, _ := io.ReadAll(r.Body)
	var body map[string]any
	if err := json.Unmarshal(data, &body); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	guid, _ := body["guid"].(string)
	termSetID, _ := body["termsetId"].(string)

	m.mu.Lock()
	m.TermRequests = append(m.TermRequests, TermRequest{
		Path:      r.URL.Path,
		GUID:      guid,
		Digest:    r.Header.Get("X-RequestDigest"),
		TermSetID: termSetID,
		Body:      body,
	})
	status, failing := m.failures[guid]
	terms := m.children[guid]
	content := make([]map[string]any, 0, len(terms))
	for _, t := range terms {
		content = append(content, map[string]any{
			"Nm": t.Name,
			"Id": t.ID,
			"Cc": len(m.children[t.ID]),
		})
	}
	m.mu.Unlock()

	if failing {
		w.WriteHeader(status)
		w.Write([]byte(`{"error":"mock failure"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	json.NewEncoder(w).Encode(map[string]any{
		"d": map[string]any{"Content": content},
	})
}

func (m *MockGO) serveList(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	m.ListRequests = append(m.ListRequests, r.URL.RawQuery)
	pages := m.listPages
	m.mu.Unlock()

	idx, err := strconv.Atoi(r.URL.Query().Get("p_ID"))
	if err != nil || idx < 0 || idx >= len(pages) {
		if len(pages) == 0 && idx == 0 {
			json.NewEncoder(w).Encode(map[string]any{"Row": []any{}})
			return
		}
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	resp := map[string]any{"Row": pages[idx]}
	if idx+1 < len(pages) {
		resp["NextHref"] = fmt.Sprintf("?Paged=TRUE&p_ID=%d&PageFirstRow=%d&View=%s",
			idx+1, (idx+1)*30+1, r.URL.Query().Get("View"))
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	json.NewEncoder(w).Encode(resp)
}

// NewServerErrorResponse writes a 500 response.
func NewServerErrorResponse(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusInternalServerError)
	w.Write([]byte(`{"error": "Internal server error"}`))
}
