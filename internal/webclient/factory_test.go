package webclient_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dspace-go/dsfront/internal/logging"
	"github.com/dspace-go/dsfront/internal/testutil"
	"github.com/dspace-go/dsfront/internal/webclient"
)

func TestNewWebClient_DefaultBackend(t *testing.T) {
	t.Parallel()
	client, err := webclient.NewWebClient(webclient.Config{}, nil)
	require.NoError(t, err)
	defer client.Close()
	assert.IsType(t, &webclient.NetHTTPClient{}, client)
}

func TestNewWebClient_BackendNameIsCaseInsensitive(t *testing.T) {
	t.Parallel()
	client, err := webclient.NewWebClient(webclient.Config{Client: " NetHTTP "}, logging.Nop{})
	require.NoError(t, err)
	defer client.Close()
	assert.IsType(t, &webclient.NetHTTPClient{}, client)
}

// Construction does not launch a browser, so this runs in CI too.
func TestNewWebClient_ChromeDP(t *testing.T) {
	t.Parallel()
	client, err := webclient.NewWebClient(webclient.Config{Client: webclient.ClientChromedp}, logging.Nop{})
	if err != nil {
		t.Skipf("Skipping chromedp test: %v", err)
	}
	defer client.Close()
}

func TestNewWebClient_UnknownBackend(t *testing.T) {
	t.Parallel()
	client, err := webclient.NewWebClient(webclient.Config{Client: "curl"}, logging.Nop{})
	assert.ErrorIs(t, err, webclient.ErrUnknownBackend)
	assert.ErrorContains(t, err, "nethttp")
	assert.Nil(t, client)
}

func TestRegisterBackend(t *testing.T) {
	t.Parallel()
	dummy := &testutil.DummyWebClient{Responses: map[string]*webclient.Response{
		"http://rest/server/api": testutil.JSONResponse(200, `{"_links":{}}`),
	}}
	webclient.RegisterBackend("Recording", func(webclient.Config, logging.Logger) (webclient.WebClient, error) {
		return dummy, nil
	})
	webclient.RegisterBackend("", nil)

	assert.Contains(t, webclient.ListBackends(), "recording")
	client, err := webclient.NewWebClient(webclient.Config{Client: "recording"}, nil)
	require.NoError(t, err)
	resp, err := client.Get(context.Background(), "http://rest/server/api")
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, 1, dummy.CallCount("http://rest/server/api"))
}

func TestListBackends(t *testing.T) {
	t.Parallel()
	got := webclient.ListBackends()
	assert.Contains(t, got, "chromedp")
	assert.Contains(t, got, "nethttp")
	assert.IsNonDecreasing(t, got)
}
