// Package mockrest is an in-process HAL+JSON backend with just enough of the
// REST API to drive the submission pages locally and in tests.
package mockrest

import (
	"encoding/json"
	"fmt"
	"html/template"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/dspace-go/dsfront/internal/logging"
)

// APIPath is where the REST API is mounted.
const APIPath = "/server/api"

// XSRFHeader carries the token issued by the backend.
const XSRFHeader = "DSPACE-XSRF-TOKEN"

// Config holds configuration for the mock backend.
type Config struct {
	// Port is the port on which the mock backend listens.
	Port int

	// CurrentUser is the eperson setOwner assigns. Defaults to the second
	// fixture user.
	CurrentUser string
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{Port: 8089}
}

// MockREST serves fixture data as HAL documents.
type MockREST struct {
	cfg    Config
	logger logging.Logger
	router chi.Router
	xsrf   string

	mu             sync.RWMutex
	fixtures       Fixtures
	currentUser    string
	failSetOwner   bool
	failSearch     bool
	searchDelay    time.Duration
	searchCount    atomic.Int64
	setOwnerCount  atomic.Int64
	rootFetchCount atomic.Int64
}

// New creates a mock backend over fx.
func New(cfg Config, fx Fixtures, logger logging.Logger) *MockREST {
	if logger == nil {
		logger = logging.Nop{}
	}
	m := &MockREST{
		cfg:         cfg,
		logger:      logger.With(logging.Component("MockREST")),
		xsrf:        uuid.NewString(),
		fixtures:    fx,
		currentUser: cfg.CurrentUser,
	}
	if m.currentUser == "" && len(fx.EPersons) > 1 {
		m.currentUser = fx.EPersons[1].UUID
	}
	m.router = m.routes()
	return m
}

func (m *MockREST) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(m.xsrfMiddleware)

	r.Route(APIPath, func(r chi.Router) {
		r.Get("/", m.handleRoot)
		r.Get("/submission/workspaceitems/search/shareToken", m.handleSearchByShareToken)
		r.Get("/submission/workspaceitems/{id}", m.handleWorkspaceItem)
		r.Get("/submission/setOwner", m.handleSetOwner)
		r.Get("/core/items/{uuid}", m.handleItem)
		r.Get("/eperson/epersons/{uuid}", m.handleEPerson)
	})

	// Control panel for switching the logged in user and injecting failures
	r.Get("/mock/control", m.handleControlPanel)
	r.Get("/mock/state", m.handleState)
	r.Post("/mock/current-user", m.handleSetCurrentUser)
	r.Post("/mock/fail-set-owner", m.handleFailSetOwner)
	return r
}

// ServeHTTP implements http.Handler.
func (m *MockREST) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	m.logger.Debug("mock request",
		logging.Field{Key: "method", Value: r.Method},
		logging.Field{Key: "path", Value: r.URL.Path})
	m.router.ServeHTTP(w, r)
}

// Start listens on the configured port.
func (m *MockREST) Start() error {
	addr := fmt.Sprintf(":%d", m.cfg.Port)
	m.logger.Info("mock REST backend starting",
		logging.Field{Key: "api", Value: fmt.Sprintf("http://localhost%s%s", addr, APIPath)},
		logging.Field{Key: "control", Value: fmt.Sprintf("http://localhost%s/mock/control", addr)})
	return http.ListenAndServe(addr, m)
}

// SearchCount is the number of share token searches served.
func (m *MockREST) SearchCount() int { return int(m.searchCount.Load()) }

// SetOwnerCount is the number of setOwner calls served.
func (m *MockREST) SetOwnerCount() int { return int(m.setOwnerCount.Load()) }

// RootFetchCount is the number of root document requests served.
func (m *MockREST) RootFetchCount() int { return int(m.rootFetchCount.Load()) }

// SetFailSetOwner makes setOwner answer 500.
func (m *MockREST) SetFailSetOwner(fail bool) {
	m.mu.Lock()
	m.failSetOwner = fail
	m.mu.Unlock()
}

// SetFailSearch makes the share token search answer 503.
func (m *MockREST) SetFailSearch(fail bool) {
	m.mu.Lock()
	m.failSearch = fail
	m.mu.Unlock()
}

// SetSearchDelay holds every share token search for d before answering.
func (m *MockREST) SetSearchDelay(d time.Duration) {
	m.mu.Lock()
	m.searchDelay = d
	m.mu.Unlock()
}

// SetCurrentUser changes the eperson setOwner assigns.
func (m *MockREST) SetCurrentUser(id string) {
	m.mu.Lock()
	m.currentUser = id
	m.mu.Unlock()
}

// Submitter returns the submitter uuid of workspace item id.
func (m *MockREST) Submitter(id int) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, w := range m.fixtures.WorkspaceItems {
		if w.ID == id {
			return w.SubmitterID, true
		}
	}
	return "", false
}

func (m *MockREST) xsrfMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(XSRFHeader, m.xsrf)
		next.ServeHTTP(w, r)
	})
}

func apiBase(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + r.Host + APIPath
}

func writeHAL(w http.ResponseWriter, status int, doc any) {
	w.Header().Set("Content-Type", "application/hal+json;charset=UTF-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(doc)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeHAL(w, status, map[string]any{
		"status":  status,
		"error":   http.StatusText(status),
		"message": msg,
	})
}

func (m *MockREST) handleRoot(w http.ResponseWriter, r *http.Request) {
	m.rootFetchCount.Add(1)
	api := apiBase(r)
	writeHAL(w, http.StatusOK, map[string]any{
		"dspaceUI":      "http://localhost:4000",
		"dspaceName":    "Mock repository",
		"dspaceServer":  api,
		"dspaceVersion": "DSpace 7.6",
		"type":          "root",
		"_links": map[string]any{
			"workspaceitems": link(api + "/submission/workspaceitems"),
			"items":          link(api + "/core/items"),
			"epersons":       link(api + "/eperson/epersons"),
			"self":           link(api),
		},
	})
}

func (m *MockREST) handleSearchByShareToken(w http.ResponseWriter, r *http.Request) {
	m.searchCount.Add(1)
	token := r.URL.Query().Get("shareToken")
	embeds := r.URL.Query()["embed"]
	api := apiBase(r)

	m.mu.RLock()
	delay := m.searchDelay
	m.mu.RUnlock()
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return
		}
	}

	m.mu.RLock()
	if m.failSearch {
		m.mu.RUnlock()
		writeError(w, http.StatusServiceUnavailable, "search is unavailable")
		return
	}
	found := []map[string]any{}
	for _, ws := range m.fixtures.WorkspaceItems {
		if token != "" && ws.ShareToken == token {
			found = append(found, m.workspaceItemDocLocked(api, ws, embeds))
		}
	}
	m.mu.RUnlock()

	self := api + "/submission/workspaceitems/search/shareToken?" + r.URL.RawQuery
	writeHAL(w, http.StatusOK, map[string]any{
		"_embedded": map[string]any{"workspaceitems": found},
		"_links":    map[string]any{"self": link(self)},
		"page": map[string]any{
			"size":          20,
			"totalElements": len(found),
			"totalPages":    min(1, len(found)),
			"number":        0,
		},
	})
}

func (m *MockREST) handleWorkspaceItem(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid workspace item id")
		return
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, ws := range m.fixtures.WorkspaceItems {
		if ws.ID == id {
			writeHAL(w, http.StatusOK, m.workspaceItemDocLocked(apiBase(r), ws, r.URL.Query()["embed"]))
			return
		}
	}
	writeError(w, http.StatusNotFound, fmt.Sprintf("workspace item %d not found", id))
}

// handleSetOwner assigns the current user as submitter of the workspace item
// identified by workspaceitemid, provided the share token matches.
func (m *MockREST) handleSetOwner(w http.ResponseWriter, r *http.Request) {
	m.setOwnerCount.Add(1)
	q := r.URL.Query()
	token := q.Get("shareToken")
	id, err := strconv.Atoi(q.Get("workspaceitemid"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "workspaceitemid must be a number")
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failSetOwner {
		writeError(w, http.StatusInternalServerError, "cannot change the submitter")
		return
	}
	for i, ws := range m.fixtures.WorkspaceItems {
		if ws.ID != id {
			continue
		}
		if ws.ShareToken != token {
			writeError(w, http.StatusForbidden, "share token does not match")
			return
		}
		m.fixtures.WorkspaceItems[i].SubmitterID = m.currentUser
		m.logger.Info("submitter changed",
			logging.Field{Key: "workspaceitem", Value: id},
			logging.Field{Key: "submitter", Value: m.currentUser})
		writeHAL(w, http.StatusOK, m.workspaceItemDocLocked(apiBase(r), m.fixtures.WorkspaceItems[i], nil))
		return
	}
	writeError(w, http.StatusNotFound, fmt.Sprintf("workspace item %d not found", id))
}

func (m *MockREST) handleItem(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "uuid")
	m.mu.RLock()
	it, ok := m.itemLocked(id)
	m.mu.RUnlock()
	if !ok {
		writeError(w, http.StatusNotFound, "item not found")
		return
	}
	writeHAL(w, http.StatusOK, itemDoc(apiBase(r), it))
}

func (m *MockREST) handleEPerson(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "uuid")
	m.mu.RLock()
	ep, ok := m.epersonLocked(id)
	m.mu.RUnlock()
	if !ok {
		writeError(w, http.StatusNotFound, "eperson not found")
		return
	}
	writeHAL(w, http.StatusOK, epersonDoc(apiBase(r), ep))
}

func (m *MockREST) itemLocked(id string) (Item, bool) {
	for _, it := range m.fixtures.Items {
		if it.UUID == id {
			return it, true
		}
	}
	return Item{}, false
}

func (m *MockREST) epersonLocked(id string) (EPerson, bool) {
	for _, e := range m.fixtures.EPersons {
		if e.UUID == id {
			return e, true
		}
	}
	return EPerson{}, false
}

func (m *MockREST) workspaceItemDocLocked(api string, ws WorkspaceItem, embeds []string) map[string]any {
	self := fmt.Sprintf("%s/submission/workspaceitems/%d", api, ws.ID)
	doc := map[string]any{
		"id":           ws.ID,
		"lastModified": ws.LastModified.Format("2006-01-02T15:04:05.000+00:00"),
		"type":         "workspaceitem",
		"sections":     map[string]any{},
		"_links": map[string]any{
			"self":      link(self),
			"item":      link(fmt.Sprintf("%s/core/items/%s", api, ws.ItemUUID)),
			"submitter": link(fmt.Sprintf("%s/eperson/epersons/%s", api, ws.SubmitterID)),
		},
	}
	embedded := map[string]any{}
	for _, e := range embeds {
		switch strings.SplitN(e, "/", 2)[0] {
		case "item":
			if it, ok := m.itemLocked(ws.ItemUUID); ok {
				embedded["item"] = itemDoc(api, it)
			}
		case "submitter":
			if ep, ok := m.epersonLocked(ws.SubmitterID); ok {
				embedded["submitter"] = epersonDoc(api, ep)
			}
		}
	}
	if len(embedded) > 0 {
		doc["_embedded"] = embedded
	}
	return doc
}

// ─── Control panel ────────────────────────────────────────────────────

type stateView struct {
	CurrentUser    string          `json:"currentUser"`
	FailSetOwner   bool            `json:"failSetOwner"`
	EPersons       []EPerson       `json:"epersons"`
	WorkspaceItems []WorkspaceItem `json:"workspaceItems"`
}

func (m *MockREST) snapshot() stateView {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return stateView{
		CurrentUser:    m.currentUser,
		FailSetOwner:   m.failSetOwner,
		EPersons:       append([]EPerson(nil), m.fixtures.EPersons...),
		WorkspaceItems: append([]WorkspaceItem(nil), m.fixtures.WorkspaceItems...),
	}
}

func (m *MockREST) handleState(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(m.snapshot())
}

func (m *MockREST) handleSetCurrentUser(w http.ResponseWriter, r *http.Request) {
	id := r.FormValue("eperson")
	m.mu.RLock()
	_, ok := m.epersonLocked(id)
	m.mu.RUnlock()
	if !ok {
		http.Error(w, "Unknown eperson", http.StatusBadRequest)
		return
	}
	m.SetCurrentUser(id)
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"success": true, "currentUser": id})
}

func (m *MockREST) handleFailSetOwner(w http.ResponseWriter, r *http.Request) {
	fail, err := strconv.ParseBool(r.FormValue("enabled"))
	if err != nil {
		http.Error(w, "Invalid enabled flag", http.StatusBadRequest)
		return
	}
	m.SetFailSetOwner(fail)
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"success": true, "failSetOwner": fail})
}

var controlPanel = template.Must(template.New("control").Parse(controlPanelHTML))

func (m *MockREST) handleControlPanel(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	_ = controlPanel.Execute(w, m.snapshot())
}

const controlPanelHTML = `<!DOCTYPE html>
<html>
<head>
    <title>Mock REST Control Panel</title>
    <style>
        body { font-family: system-ui, -apple-system, sans-serif; max-width: 960px; margin: 0 auto; padding: 20px; background: #f5f5f5; }
        h1 { color: #333; border-bottom: 2px solid #007bff; padding-bottom: 10px; }
        .card { background: white; border-radius: 8px; padding: 20px; margin: 15px 0; box-shadow: 0 2px 4px rgba(0,0,0,0.1); }
        .current { font-weight: bold; color: #28a745; }
        button { padding: 8px 16px; border: none; border-radius: 4px; cursor: pointer; background: #e9ecef; }
    </style>
</head>
<body>
    <h1>Mock REST Control Panel</h1>
    <div class="card">
        <h2>Logged in user</h2>
        {{range .EPersons}}
        <form method="post" action="/mock/current-user">
            <input type="hidden" name="eperson" value="{{.UUID}}">
            <button type="submit">{{.FirstName}} {{.LastName}} &lt;{{.Email}}&gt;</button>
            {{if eq .UUID $.CurrentUser}}<span class="current">current</span>{{end}}
        </form>
        {{end}}
    </div>
    <div class="card">
        <h2>Failure injection</h2>
        <form method="post" action="/mock/fail-set-owner">
            <input type="hidden" name="enabled" value="{{if .FailSetOwner}}false{{else}}true{{end}}">
            <button type="submit">{{if .FailSetOwner}}Let setOwner succeed{{else}}Make setOwner fail{{end}}</button>
        </form>
    </div>
    <div class="card">
        <h2>Workspace items</h2>
        <ul>
        {{range .WorkspaceItems}}
            <li>#{{.ID}} token <code>{{.ShareToken}}</code> submitter <code>{{.SubmitterID}}</code></li>
        {{end}}
        </ul>
    </div>
</body>
</html>`
