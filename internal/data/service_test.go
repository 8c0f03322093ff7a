package data_test

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dspace-go/dsfront/internal/data"
	"github.com/dspace-go/dsfront/internal/hal"
	"github.com/dspace-go/dsfront/internal/mockrest"
	"github.com/dspace-go/dsfront/internal/remotedata"
	"github.com/dspace-go/dsfront/internal/request"
	"github.com/dspace-go/dsfront/internal/testutil"
	"github.com/dspace-go/dsfront/internal/webclient"
)

type fixture struct {
	mock     *mockrest.MockREST
	wsis     *data.WorkspaceItemDataService
	items    *data.ItemDataService
	epersons *data.EPersonDataService
	requests *request.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := &testutil.DummyLogger{}
	mock := mockrest.New(mockrest.DefaultConfig(), mockrest.DefaultFixtures(), logger)
	ts := httptest.NewServer(mock)
	t.Cleanup(ts.Close)

	wc, err := webclient.NewNetHTTPClient(webclient.Config{Timeout: 5 * time.Second}, logger, nil)
	require.NoError(t, err)
	rs := request.NewService(wc, nil, request.DefaultConfig(), logger)
	rdb := remotedata.NewBuildService(rs, logger)
	t.Cleanup(func() {
		rdb.Close()
		rs.Close()
		wc.Close()
	})

	deps := data.Deps{
		Endpoints:  hal.NewEndpointService(ts.URL+mockrest.APIPath, rs, rdb, logger),
		Requests:   rs,
		RemoteData: rdb,
		Logger:     logger,
	}
	items := data.NewItemDataService(deps)
	epersons := data.NewEPersonDataService(deps)
	return &fixture{
		mock:     mock,
		wsis:     data.NewWorkspaceItemDataService(deps, items, epersons),
		items:    items,
		epersons: epersons,
		requests: rs,
	}
}

func ctxT(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func shareToken() string {
	return mockrest.DefaultFixtures().WorkspaceItems[0].ShareToken
}

func TestSearchBy_ShareTokenWithEmbeds(t *testing.T) {
	f := newFixture(t)
	ctx := ctxT(t)

	stream, err := f.wsis.SearchBy(ctx, "shareToken",
		data.FindListOptions{SearchParams: []data.RequestParam{{FieldName: "shareToken", FieldValue: shareToken()}}},
		false, false, hal.FollowLink("item"), hal.FollowLink("submitter"))
	require.NoError(t, err)

	list, err := remotedata.FirstSucceededListPayload(ctx, stream)
	require.NoError(t, err)
	require.Len(t, list, 1)

	wsi := list[0]
	assert.Equal(t, 42, wsi.ID)
	assert.Equal(t, data.TypeWorkspaceItem, wsi.Type)
	assert.Equal(t, 2024, wsi.LastModified.Year())

	require.True(t, wsi.Item.IsEmbedded())
	assert.Equal(t, "Draft of a shared submission", wsi.Item.Value.FirstMetadataValue("dc.title"))
	require.True(t, wsi.Submitter.IsEmbedded())
	assert.Equal(t, "john.doe@example.com", wsi.Submitter.Value.Email)
	assert.Equal(t, "Doe", wsi.Submitter.Value.Metadata.First("eperson.lastname"))
}

func TestSearchBy_LinksResolveLazilyWithoutEmbeds(t *testing.T) {
	f := newFixture(t)
	ctx := ctxT(t)

	stream, err := f.wsis.SearchBy(ctx, "shareToken",
		data.FindListOptions{SearchParams: []data.RequestParam{{FieldName: "shareToken", FieldValue: shareToken()}}},
		false, false)
	require.NoError(t, err)
	list, err := remotedata.FirstSucceededListPayload(ctx, stream)
	require.NoError(t, err)
	require.Len(t, list, 1)

	wsi := list[0]
	assert.False(t, wsi.Submitter.IsEmbedded())
	assert.NotEmpty(t, wsi.Submitter.Href)

	ep, err := remotedata.FirstSucceededPayload(ctx, wsi.Submitter.Stream())
	require.NoError(t, err)
	assert.Equal(t, "John", ep.FirstMetadataValue("eperson.firstname"))

	it, err := remotedata.FirstSucceededPayload(ctx, wsi.Item.Stream())
	require.NoError(t, err)
	assert.Equal(t, data.TypeItem, it.ObjectType())
}

func TestSearchBy_EachCallRequestsAgainWhenNotCached(t *testing.T) {
	f := newFixture(t)
	ctx := ctxT(t)
	opts := data.FindListOptions{SearchParams: []data.RequestParam{{FieldName: "shareToken", FieldValue: shareToken()}}}

	for i := 0; i < 2; i++ {
		s, err := f.wsis.SearchBy(ctx, "shareToken", opts, false, false)
		require.NoError(t, err)
		_, err = remotedata.FirstSucceededListPayload(ctx, s)
		require.NoError(t, err)
	}
	assert.Equal(t, 2, f.mock.SearchCount())
	assert.Equal(t, 1, f.mock.RootFetchCount())
}

func TestItemFindByID(t *testing.T) {
	f := newFixture(t)
	ctx := ctxT(t)

	s, err := f.items.FindByID(ctx, "9a8b7c6d-5e4f-4321-9876-0fedcba98765", true)
	require.NoError(t, err)
	it, err := remotedata.FirstSucceededPayload(ctx, s)
	require.NoError(t, err)
	assert.Equal(t, "JournalVolume", it.EntityType)
	assert.Equal(t, []string{"12"}, it.Metadata.All("journalvolume.identifier.volume"))

	s, err = f.items.FindByID(ctx, "missing", true)
	require.NoError(t, err)
	rd, err := remotedata.FirstCompleted(ctx, s)
	require.NoError(t, err)
	assert.True(t, rd.HasFailed())
	assert.Equal(t, 404, rd.StatusCode)
	assert.Equal(t, "item not found", rd.ErrorMessage)
}

func TestWorkspaceItemFindByID(t *testing.T) {
	f := newFixture(t)
	ctx := ctxT(t)

	s, err := f.wsis.FindByID(ctx, "42", false, hal.FollowLink("submitter"))
	require.NoError(t, err)
	wsi, err := remotedata.FirstSucceededPayload(ctx, s)
	require.NoError(t, err)
	assert.True(t, wsi.Submitter.IsEmbedded())
	assert.False(t, wsi.Item.IsEmbedded())
}

func TestLinkedStream_Unresolvable(t *testing.T) {
	ctx := ctxT(t)
	var l *data.Linked[data.Item]
	rd, err := remotedata.FirstCompleted(ctx, l.Stream())
	require.NoError(t, err)
	assert.True(t, rd.HasFailed())

	rd, err = remotedata.FirstCompleted(ctx, (&data.Linked[data.Item]{}).Stream())
	require.NoError(t, err)
	assert.True(t, rd.HasFailed())
}

func TestMetadataMap(t *testing.T) {
	m := data.MetadataMap{"dc.title": {{Value: "A"}, {Value: "B"}}}
	assert.Equal(t, "A", m.First("dc.title"))
	assert.Equal(t, "", m.First("dc.creator"))
	assert.Equal(t, []string{"A", "B"}, m.All("dc.title"))
}
