package webclient_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dspace-go/dsfront/internal/logging"
	"github.com/dspace-go/dsfront/internal/webclient"
)

func newClient(t *testing.T, hc *http.Client) *webclient.NetHTTPClient {
	t.Helper()
	client, err := webclient.NewNetHTTPClient(webclient.Config{}, logging.Nop{}, hc)
	if err != nil {
		t.Fatalf("NewNetHTTPClient: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

// ─── Do: real HTTP round-trip via httptest ──────────────────────────────

func TestNetHTTPClient_Do_GET_ReturnsBody(t *testing.T) {
	t.Parallel()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/hal+json")
		_, _ = io.WriteString(w, `{"id":1}`)
	}))
	defer ts.Close()

	client := newClient(t, ts.Client())
	resp, err := client.Do(context.Background(), &webclient.Request{URL: ts.URL + "/server/api"})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if !resp.OK() {
		t.Errorf("expected 2xx, got %d", resp.StatusCode)
	}
	if string(resp.Body) != `{"id":1}` {
		t.Errorf("unexpected body %q", resp.Body)
	}
	if resp.Headers.Get("Content-Type") != "application/hal+json" {
		t.Errorf("unexpected content type %q", resp.Headers.Get("Content-Type"))
	}
}

func TestNetHTTPClient_Do_DefaultsToGETAndJSON(t *testing.T) {
	t.Parallel()
	var method, accept string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method = r.Method
		accept = r.Header.Get("Accept")
	}))
	defer ts.Close()

	client := newClient(t, ts.Client())
	if _, err := client.Do(context.Background(), &webclient.Request{URL: ts.URL}); err != nil {
		t.Fatalf("Do: %v", err)
	}
	if method != http.MethodGet {
		t.Errorf("expected GET, got %s", method)
	}
	if accept != "application/json" {
		t.Errorf("expected JSON accept header, got %q", accept)
	}
}

func TestNetHTTPClient_Do_ForwardsHeaders(t *testing.T) {
	t.Parallel()
	var shareToken string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		shareToken = r.Header.Get("shareToken")
	}))
	defer ts.Close()

	client := newClient(t, ts.Client())
	hdrs := http.Header{}
	hdrs.Set("shareToken", "tok-1")
	if _, err := client.Do(context.Background(), &webclient.Request{URL: ts.URL, Headers: hdrs}); err != nil {
		t.Fatalf("Do: %v", err)
	}
	if shareToken != "tok-1" {
		t.Errorf("expected shareToken header forwarded, got %q", shareToken)
	}
}

func TestNetHTTPClient_Do_EchoesXSRFToken(t *testing.T) {
	t.Parallel()
	var seen []string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = append(seen, r.Header.Get(webclient.XSRFRequestHeader))
		w.Header().Set(webclient.XSRFResponseHeader, "xsrf-1")
	}))
	defer ts.Close()

	client := newClient(t, ts.Client())
	for i := 0; i < 2; i++ {
		if _, err := client.Get(context.Background(), ts.URL); err != nil {
			t.Fatalf("Get: %v", err)
		}
	}
	if seen[0] != "" || seen[1] != "xsrf-1" {
		t.Errorf("expected token echoed on second request, got %v", seen)
	}
	if client.XSRFToken() != "xsrf-1" {
		t.Errorf("expected stored token, got %q", client.XSRFToken())
	}
}

func TestNetHTTPClient_Do_PropagatesStatusCode(t *testing.T) {
	t.Parallel()
	for _, code := range []int{200, 204, 401, 404, 422, 500} {
		code := code
		t.Run(http.StatusText(code), func(t *testing.T) {
			t.Parallel()
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(code)
			}))
			defer ts.Close()

			client := newClient(t, ts.Client())
			resp, err := client.Get(context.Background(), ts.URL)
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			if resp.StatusCode != code {
				t.Errorf("expected %d, got %d", code, resp.StatusCode)
			}
			if resp.OK() != (code < 300) {
				t.Errorf("OK() mismatch for %d", code)
			}
		})
	}
}

func TestNetHTTPClient_Do_NilRequest_ReturnsError(t *testing.T) {
	t.Parallel()
	client := newClient(t, nil)
	_, err := client.Do(context.Background(), nil)
	if !errors.Is(err, webclient.ErrNilRequest) {
		t.Fatalf("expected ErrNilRequest, got %v", err)
	}
}

func TestNetHTTPClient_Do_ConnectionRefused_ReturnsError(t *testing.T) {
	t.Parallel()
	client := newClient(t, &http.Client{Timeout: time.Second})
	if _, err := client.Get(context.Background(), "http://127.0.0.1:1"); err == nil {
		t.Fatal("expected error for connection refused")
	}
}

func TestNetHTTPClient_Do_ContextCanceled_ReturnsError(t *testing.T) {
	t.Parallel()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(time.Second)
	}))
	defer ts.Close()

	client := newClient(t, ts.Client())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := client.Get(ctx, ts.URL); err == nil {
		t.Fatal("expected error for canceled context")
	}
}

func TestNewNetHTTPClient_HTTP2Transport(t *testing.T) {
	t.Parallel()
	client, err := webclient.NewNetHTTPClient(webclient.Config{HTTP2: true, Timeout: 5 * time.Second}, logging.Nop{}, nil)
	if err != nil {
		t.Fatalf("NewNetHTTPClient: %v", err)
	}
	defer client.Close()
	if client.HTTPClient().Jar == nil {
		t.Error("expected cookie jar on default client")
	}
	if client.HTTPClient().Timeout != 5*time.Second {
		t.Errorf("expected 5s timeout, got %s", client.HTTPClient().Timeout)
	}
}
