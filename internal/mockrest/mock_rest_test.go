package mockrest

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dspace-go/dsfront/internal/testutil"
)

func newTestServer(t *testing.T) (*MockREST, *httptest.Server) {
	t.Helper()
	m := New(DefaultConfig(), DefaultFixtures(), &testutil.DummyLogger{})
	ts := httptest.NewServer(m)
	t.Cleanup(ts.Close)
	return m, ts
}

func getJSON(t *testing.T, u string) (int, map[string]any, http.Header) {
	t.Helper()
	resp, err := http.Get(u)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var doc map[string]any
	require.NoError(t, json.Unmarshal(body, &doc), string(body))
	return resp.StatusCode, doc, resp.Header
}

func TestRoot_ListsEndpointsAndIssuesXSRF(t *testing.T) {
	m, ts := newTestServer(t)

	status, doc, hdr := getJSON(t, ts.URL+APIPath)
	assert.Equal(t, http.StatusOK, status)
	assert.NotEmpty(t, hdr.Get(XSRFHeader))

	links := doc["_links"].(map[string]any)
	ws := links["workspaceitems"].(map[string]any)
	assert.Equal(t, ts.URL+APIPath+"/submission/workspaceitems", ws["href"])
	assert.Equal(t, 1, m.RootFetchCount())
}

func TestSearchByShareToken_EmbedsRequestedLinks(t *testing.T) {
	m, ts := newTestServer(t)
	fx := DefaultFixtures()

	q := url.Values{"shareToken": {fx.WorkspaceItems[0].ShareToken}, "embed": {"item", "submitter"}}
	status, doc, _ := getJSON(t, ts.URL+APIPath+"/submission/workspaceitems/search/shareToken?"+q.Encode())
	require.Equal(t, http.StatusOK, status)

	list := doc["_embedded"].(map[string]any)["workspaceitems"].([]any)
	require.Len(t, list, 1)
	wsi := list[0].(map[string]any)
	emb := wsi["_embedded"].(map[string]any)
	assert.Contains(t, emb, "item")
	assert.Contains(t, emb, "submitter")
	assert.EqualValues(t, 1, doc["page"].(map[string]any)["totalElements"])
	assert.Equal(t, 1, m.SearchCount())
}

func TestSearchByShareToken_UnknownTokenIsEmptyPage(t *testing.T) {
	_, ts := newTestServer(t)
	status, doc, _ := getJSON(t, ts.URL+APIPath+"/submission/workspaceitems/search/shareToken?shareToken=nope")
	require.Equal(t, http.StatusOK, status)
	assert.Empty(t, doc["_embedded"].(map[string]any)["workspaceitems"])
	assert.EqualValues(t, 0, doc["page"].(map[string]any)["totalPages"])
}

func TestSetOwner(t *testing.T) {
	m, ts := newTestServer(t)
	fx := DefaultFixtures()
	ws := fx.WorkspaceItems[0]

	cases := []struct {
		name   string
		query  string
		status int
	}{
		{"wrong token", "shareToken=bad&workspaceitemid=42", http.StatusForbidden},
		{"unknown item", "shareToken=" + ws.ShareToken + "&workspaceitemid=7", http.StatusNotFound},
		{"bad id", "shareToken=" + ws.ShareToken + "&workspaceitemid=x", http.StatusBadRequest},
		{"ok", "shareToken=" + ws.ShareToken + "&workspaceitemid=42", http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, _, _ := getJSON(t, ts.URL+APIPath+"/submission/setOwner?"+tc.query)
			assert.Equal(t, tc.status, status)
		})
	}

	sub, ok := m.Submitter(42)
	require.True(t, ok)
	assert.Equal(t, fx.EPersons[1].UUID, sub)
	assert.Equal(t, len(cases), m.SetOwnerCount())
}

func TestSetOwner_FailureInjection(t *testing.T) {
	m, ts := newTestServer(t)
	resp, err := http.PostForm(ts.URL+"/mock/fail-set-owner", url.Values{"enabled": {"true"}})
	require.NoError(t, err)
	resp.Body.Close()

	status, doc, _ := getJSON(t, ts.URL+APIPath+"/submission/setOwner?shareToken=share-4f1c9b&workspaceitemid=42")
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "cannot change the submitter", doc["message"])

	sub, _ := m.Submitter(42)
	assert.Equal(t, DefaultFixtures().WorkspaceItems[0].SubmitterID, sub)
}

func TestControlPanel(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.PostForm(ts.URL+"/mock/current-user", url.Values{"eperson": {"unknown"}})
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/mock/control")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	assert.True(t, strings.Contains(string(body), "john.doe@example.com"))
}
