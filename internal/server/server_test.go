package server_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gorilla/websocket"

	"github.com/dspace-go/dsfront/internal/app"
	"github.com/dspace-go/dsfront/internal/config"
	"github.com/dspace-go/dsfront/internal/mockrest"
	"github.com/dspace-go/dsfront/internal/notifications"
	"github.com/dspace-go/dsfront/internal/server"
	"github.com/dspace-go/dsfront/internal/testutil"
)

const shareToken = "share-4f1c9b"

func newTestServer(t *testing.T, matomo bool, mutate ...func(*config.Environment)) (*server.Server, *mockrest.MockREST) {
	t.Helper()

	mock := mockrest.New(mockrest.DefaultConfig(), mockrest.DefaultFixtures(), nil)
	backend := httptest.NewServer(mock)
	t.Cleanup(backend.Close)

	rc, err := config.ParseRestURL(backend.URL + mockrest.APIPath)
	if err != nil {
		t.Fatalf("ParseRestURL: %v", err)
	}
	env := config.Production()
	env.Rest = rc
	env.WebClient.Timeout = "5s"
	if !matomo {
		env.Matomo = config.MatomoConfig{}
	}
	for _, m := range mutate {
		m(&env)
	}

	logger := &testutil.DummyLogger{}
	a, err := app.NewApplication(&env, nil, logger)
	if err != nil {
		t.Fatalf("NewApplication: %v", err)
	}
	t.Cleanup(a.Close)

	s, err := server.NewServer(server.Config{ListenAddr: ":0", App: a, Logger: logger})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	return s, mock
}

func do(t *testing.T, s http.Handler, method, path, contentType, body string, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(v); err != nil {
		t.Fatalf("decode JSON response: %v (body: %s)", err, rec.Body.String())
	}
}

func parseHTML(t *testing.T, rec *httptest.ResponseRecorder) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(rec.Body)
	if err != nil {
		t.Fatalf("parse HTML: %v", err)
	}
	return doc
}

// ─── CORS ──────────────────────────────────────────────────────────────

func TestServer_CORS_HeaderPresent(t *testing.T) {
	t.Parallel()
	s, _ := newTestServer(t, false)

	rec := do(t, s, "GET", "/jobs", "", "")
	if origin := rec.Header().Get("Access-Control-Allow-Origin"); origin != "*" {
		t.Errorf("expected CORS origin *, got %q", origin)
	}
}

func TestServer_CORS_Preflight(t *testing.T) {
	t.Parallel()
	s, _ := newTestServer(t, false)

	rec := do(t, s, "OPTIONS", "/change-submitter", "", "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if m := rec.Header().Get("Access-Control-Allow-Methods"); m != "GET, POST" {
		t.Errorf("unexpected methods %q", m)
	}
}

// ─── App config ────────────────────────────────────────────────────────

func TestServer_AppConfig(t *testing.T) {
	t.Parallel()
	s, _ := newTestServer(t, true)

	rec := do(t, s, "GET", config.AppConfigPath, "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	raw, err := config.ParseAppConfig(rec.Body.Bytes())
	if err != nil {
		t.Fatalf("ParseAppConfig: %v", err)
	}
	env, err := config.ExtendEnvironmentWithAppConfig(config.Production(), raw)
	if err != nil {
		t.Fatalf("ExtendEnvironmentWithAppConfig: %v", err)
	}
	if env.Matomo.SiteID != "1" {
		t.Errorf("expected site id 1, got %q", env.Matomo.SiteID)
	}
	if env.RootHref() != s.App().Env.RootHref() {
		t.Errorf("expected rest root %q, got %q", s.App().Env.RootHref(), env.RootHref())
	}
}

// ─── Change submitter page ─────────────────────────────────────────────

func TestServer_ChangeSubmitterPage(t *testing.T) {
	t.Parallel()
	s, _ := newTestServer(t, true)

	rec := do(t, s, "GET", "/change-submitter?share_token="+shareToken+"&workspaceitemid=42", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	doc := parseHTML(t, rec)
	if got := doc.Find(".submitter-name").Text(); got != "Doe, John" {
		t.Errorf("expected submitter Doe, John, got %q", got)
	}
	if got := doc.Find(".item-name").Text(); got != "Draft of a shared submission" {
		t.Errorf("unexpected item name %q", got)
	}
	action, _ := doc.Find("form").Attr("action")
	if !strings.Contains(action, "share_token="+shareToken) {
		t.Errorf("form action misses share token: %q", action)
	}
	if doc.Find(`script[src="http://localhost:8135/matomo.js"]`).Length() != 1 {
		t.Error("expected tracker script on rendered page")
	}
}

func TestServer_ChangeSubmitterPage_UnknownToken(t *testing.T) {
	t.Parallel()
	s, _ := newTestServer(t, false)

	rec := do(t, s, "GET", "/change-submitter?share_token=nope&lang=cs", "", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	doc := parseHTML(t, rec)
	if doc.Find(".not-found").Length() != 1 {
		t.Error("expected not found message")
	}
	if lang, _ := doc.Find("html").Attr("lang"); lang != "cs" {
		t.Errorf("expected lang cs, got %q", lang)
	}
}

func TestServer_ChangeSubmitter_JSON(t *testing.T) {
	t.Parallel()
	s, mock := newTestServer(t, false)

	rec := do(t, s, "POST", "/change-submitter", "application/json",
		`{"share_token":"`+shareToken+`","workspaceitemid":"42"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp server.ChangeSubmitterResponse
	decodeJSON(t, rec, &resp)
	if resp.Page.SubmitterName != "Roe, Jane" {
		t.Errorf("expected new submitter Roe, Jane, got %q", resp.Page.SubmitterName)
	}
	if len(resp.Notifications) != 1 || resp.Notifications[0].Type != notifications.TypeSuccess {
		t.Fatalf("expected one success notification, got %+v", resp.Notifications)
	}
	if resp.Notifications[0].Title != "The submitter was changed successfully." {
		t.Errorf("unexpected title %q", resp.Notifications[0].Title)
	}
	if mock.SetOwnerCount() != 1 {
		t.Errorf("expected one setOwner call, got %d", mock.SetOwnerCount())
	}

	// The application wide list keeps the notification too.
	rec = do(t, s, "GET", "/notifications", "", "")
	var all []notifications.Notification
	decodeJSON(t, rec, &all)
	if len(all) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(all))
	}
	rec = do(t, s, "DELETE", "/notifications/"+all[0].ID, "", "")
	if rec.Code != http.StatusNoContent {
		t.Errorf("expected 204, got %d", rec.Code)
	}
	rec = do(t, s, "DELETE", "/notifications/"+all[0].ID, "", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 on second delete, got %d", rec.Code)
	}
}

func TestServer_ChangeSubmitter_BackendFailure(t *testing.T) {
	t.Parallel()
	s, mock := newTestServer(t, false)
	mock.SetFailSetOwner(true)

	rec := do(t, s, "POST", "/change-submitter?share_token="+shareToken+"&workspaceitemid=42", "", "")
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rec.Code)
	}
	var resp server.ChangeSubmitterResponse
	decodeJSON(t, rec, &resp)
	if len(resp.Notifications) != 1 || resp.Notifications[0].Type != notifications.TypeError {
		t.Fatalf("expected one error notification, got %+v", resp.Notifications)
	}
	if resp.Page.SubmitterName != "Doe, John" {
		t.Errorf("submitter should be unchanged, got %q", resp.Page.SubmitterName)
	}
	if resp.Error == "" {
		t.Error("expected error message")
	}
}

func TestServer_ChangeSubmitter_HTMLForm(t *testing.T) {
	t.Parallel()
	s, _ := newTestServer(t, false)

	rec := do(t, s, "POST", "/change-submitter?share_token="+shareToken+"&workspaceitemid=42",
		"application/x-www-form-urlencoded", "", "Accept", "text/html")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	doc := parseHTML(t, rec)
	if doc.Find(".notification-success").Length() != 1 {
		t.Error("expected success notification on page")
	}
	if got := doc.Find(".submitter-name").Text(); got != "Roe, Jane" {
		t.Errorf("expected Roe, Jane, got %q", got)
	}
}

func TestServer_ChangeSubmitter_Validation(t *testing.T) {
	t.Parallel()
	s, _ := newTestServer(t, false)

	if rec := do(t, s, "POST", "/change-submitter", "application/json", "{"); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for invalid JSON, got %d", rec.Code)
	}
	if rec := do(t, s, "POST", "/change-submitter", "application/json", "{}"); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for missing token, got %d", rec.Code)
	}
	rec := do(t, s, "POST", "/change-submitter", "application/json", `{"share_token":"nope"}`)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown token, got %d", rec.Code)
	}
}

// ─── Journal volume page ───────────────────────────────────────────────

func TestServer_JournalVolumePage(t *testing.T) {
	t.Parallel()
	s, _ := newTestServer(t, false)

	rec := do(t, s, "GET", "/entities/journalvolume/9a8b7c6d-5e4f-4321-9876-0fedcba98765", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	doc := parseHTML(t, rec)
	if n := doc.Find(".item-page-fields").Length(); n != 3 {
		t.Errorf("expected 3 fields, got %d", n)
	}
	if !strings.HasPrefix(doc.Find("title").Text(), "Journal Volume: ") {
		t.Errorf("unexpected title %q", doc.Find("title").Text())
	}
}

func TestServer_JournalVolumePage_NotFound(t *testing.T) {
	t.Parallel()
	s, _ := newTestServer(t, false)

	id := "00000000-0000-0000-0000-000000000000"
	rec := do(t, s, "GET", "/entities/journalvolume/"+id, "", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	var resp server.ErrorResponse
	decodeJSON(t, rec, &resp)
	if resp.Error != "Item "+id+" was not found." {
		t.Errorf("unexpected error %q", resp.Error)
	}
}

// ─── Requests ──────────────────────────────────────────────────────────

func TestServer_GetRequest(t *testing.T) {
	t.Parallel()
	s, _ := newTestServer(t, false)

	if rec := do(t, s, "GET", "/requests/missing", "", ""); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}

	// Loading the page populates the request cache with the root request.
	do(t, s, "GET", "/change-submitter?share_token="+shareToken, "", "")
	e, ok := s.App().Requests.GetByHref(s.App().Env.RootHref())
	if !ok {
		t.Fatal("root request not cached")
	}
	rec := do(t, s, "GET", "/requests/"+e.RequestID, "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var got struct {
		State string `json:"state"`
	}
	decodeJSON(t, rec, &got)
	if got.State != "Success" {
		t.Errorf("expected Success, got %q", got.State)
	}
	if !strings.HasPrefix(e.RequestID, "client/") {
		t.Errorf("request id %q should carry the client/ prefix", e.RequestID)
	}
}

func TestServer_GetRequest_CacheStats(t *testing.T) {
	t.Parallel()
	s, _ := newTestServer(t, false, func(env *config.Environment) {
		env.Cache.Path = filepath.Join(t.TempDir(), "cache.db")
	})

	do(t, s, "GET", "/change-submitter?share_token="+shareToken, "", "")
	e, ok := s.App().Requests.GetByHref(s.App().Env.RootHref())
	if !ok {
		t.Fatal("root request not cached")
	}
	rec := do(t, s, "GET", "/requests/"+e.RequestID, "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var got struct {
		UUID  string `json:"uuid"`
		Cache *struct {
			Href     string `json:"href"`
			Revision int    `json:"revision"`
		} `json:"cache"`
	}
	decodeJSON(t, rec, &got)
	if got.UUID != e.RequestID {
		t.Errorf("uuid = %q, want %q", got.UUID, e.RequestID)
	}
	if got.Cache == nil {
		t.Fatal("expected cache stats for a cached href")
	}
	if got.Cache.Href != s.App().Env.RootHref() || got.Cache.Revision != 1 {
		t.Errorf("unexpected cache stats %+v", *got.Cache)
	}
}

func TestServer_RequestWebSocket(t *testing.T) {
	t.Parallel()
	s, _ := newTestServer(t, false)
	ts := httptest.NewServer(s)
	defer ts.Close()

	do(t, s, "GET", "/change-submitter?share_token="+shareToken, "", "")
	e, ok := s.App().Requests.GetByHref(s.App().Env.RootHref())
	if !ok {
		t.Fatal("root request not cached")
	}

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/requests/" + e.RequestID
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var got struct {
		UUID  string `json:"uuid"`
		State string `json:"state"`
	}
	if err := conn.ReadJSON(&got); err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.UUID != e.RequestID || got.State != "Success" {
		t.Errorf("unexpected entry %+v", got)
	}
}

func TestServer_WebSocketOrigin(t *testing.T) {
	t.Parallel()
	s, _ := newTestServer(t, false)
	ts := httptest.NewServer(s)
	defer ts.Close()

	do(t, s, "GET", "/change-submitter?share_token="+shareToken, "", "")
	e, ok := s.App().Requests.GetByHref(s.App().Env.RootHref())
	if !ok {
		t.Fatal("root request not cached")
	}
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/requests/" + e.RequestID

	cases := []struct {
		origin string
		ok     bool
	}{
		{"", true},
		{ts.URL, true},
		{s.App().Env.UI.BaseURL(), true},
		{"http://elsewhere.example.org", false},
	}
	for _, tc := range cases {
		header := http.Header{}
		if tc.origin != "" {
			header.Set("Origin", tc.origin)
		}
		conn, resp, err := websocket.DefaultDialer.Dial(wsURL, header)
		if tc.ok {
			if err != nil {
				t.Errorf("origin %q: dial: %v", tc.origin, err)
				continue
			}
			conn.Close()
			continue
		}
		if err == nil {
			conn.Close()
			t.Errorf("origin %q: expected the handshake to be refused", tc.origin)
			continue
		}
		if resp == nil || resp.StatusCode != http.StatusForbidden {
			t.Errorf("origin %q: expected 403, got %v", tc.origin, resp)
		}
	}
}

// ─── Jobs ──────────────────────────────────────────────────────────────

func TestServer_Jobs(t *testing.T) {
	t.Parallel()
	s, _ := newTestServer(t, false)

	if rec := do(t, s, "POST", "/jobs/change-submitter", "application/json", `{}`); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}

	rec := do(t, s, "POST", "/jobs/change-submitter", "application/json", `{"share_token":"`+shareToken+`","workspaceitemid":"42"}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	var job app.Job
	decodeJSON(t, rec, &job)
	if job.ID == "" || job.Type != app.JobTypeChangeSubmitter {
		t.Fatalf("unexpected job %+v", job)
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		rec = do(t, s, "GET", "/jobs/"+job.ID, "", "")
		decodeJSON(t, rec, &job)
		if job.Status == app.JobDone || job.Status == app.JobFailed {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("job did not finish, status %q", job.Status)
		}
		time.Sleep(10 * time.Millisecond)
	}
	if job.Status != app.JobDone {
		t.Fatalf("expected done, got %q (%s)", job.Status, job.Error)
	}

	rec = do(t, s, "GET", "/jobs", "", "")
	var jobs []app.Job
	decodeJSON(t, rec, &jobs)
	if len(jobs) != 1 {
		t.Errorf("expected 1 job, got %d", len(jobs))
	}

	if rec := do(t, s, "GET", "/jobs/missing", "", ""); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
	if rec := do(t, s, "DELETE", "/jobs/"+job.ID, "", ""); rec.Code != http.StatusNoContent {
		t.Errorf("expected 204, got %d", rec.Code)
	}
}

func TestServer_ChangeSubmitterWS(t *testing.T) {
	t.Parallel()
	s, _ := newTestServer(t, false)
	ts := httptest.NewServer(s)
	t.Cleanup(ts.Close)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/jobs/change-submitter?share_token=" + shareToken + "&workspaceitemid=42"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var initial app.Job
	if err := conn.ReadJSON(&initial); err != nil {
		t.Fatalf("read job: %v", err)
	}
	if initial.ID == "" {
		t.Fatal("expected job id")
	}

	var sawResult bool
	for {
		var msg map[string]any
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("read event: %v", err)
		}
		if msg["type"] == string(app.JobEventResult) {
			sawResult = true
		}
		if _, final := msg["started_at"]; final {
			if msg["status"] != string(app.JobDone) {
				t.Errorf("expected final status done, got %v", msg["status"])
			}
			break
		}
	}
	if !sawResult {
		t.Error("expected a result event")
	}
}

// ─── Swagger ───────────────────────────────────────────────────────────

func TestServer_SwaggerDoc(t *testing.T) {
	t.Parallel()
	s, _ := newTestServer(t, false)

	rec := do(t, s, "GET", "/swagger/doc.json", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var doc struct {
		Paths map[string]any `json:"paths"`
	}
	decodeJSON(t, rec, &doc)
	if _, ok := doc.Paths["/change-submitter"]; !ok {
		t.Error("expected /change-submitter in swagger doc")
	}
}
