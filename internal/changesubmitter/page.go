// Package changesubmitter implements the page that lets a user holding a
// share link take over as submitter of a workspace item.
package changesubmitter

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"golang.org/x/sync/errgroup"

	"github.com/dspace-go/dsfront/internal/data"
	"github.com/dspace-go/dsfront/internal/dsoname"
	"github.com/dspace-go/dsfront/internal/hal"
	"github.com/dspace-go/dsfront/internal/logging"
	"github.com/dspace-go/dsfront/internal/notifications"
	"github.com/dspace-go/dsfront/internal/observe"
	"github.com/dspace-go/dsfront/internal/remotedata"
	"github.com/dspace-go/dsfront/internal/request"
)

// Query parameters read from the page URL.
const (
	ParamShareToken      = "share_token"
	ParamWorkspaceItemID = "workspaceitemid"
)

// Translation keys.
const (
	KeyChangedSuccessfully = "change.submitter.page.changed-successfully"
	KeyChangedError        = "change.submitter.page.changed-error"
)

// SetOwnerPath is appended to the REST root to change the submitter.
const SetOwnerPath = "/submission/setOwner"

// ErrNoWorkspaceItem is returned when the share token matches nothing.
var ErrNoWorkspaceItem = errors.New("workspace item is nil")

// Notifier raises user-facing notifications.
type Notifier interface {
	Success(title, content string) notifications.Notification
	Error(title, content string) notifications.Notification
}

// Translator renders translation keys.
type Translator interface {
	Instant(key string, params map[string]string) string
}

// Deps are the services the page talks to.
type Deps struct {
	WorkspaceItems *data.WorkspaceItemDataService
	Endpoints      *hal.EndpointService
	Requests       *request.Service
	RemoteData     *remotedata.BuildService
	Notifications  Notifier
	Translate      Translator
	Names          *dsoname.Service
	Logger         logging.Logger
}

// Page holds the state of one change submitter page.
type Page struct {
	deps   Deps
	logger logging.Logger

	shareToken      string
	workspaceItemID string

	Submitter     *observe.Subject[*data.EPerson]
	Item          *observe.Subject[*data.Item]
	WorkspaceItem *observe.Subject[*data.WorkspaceItem]
	Spinner       *observe.Subject[bool]
}

// NewPage reads the share token and workspace item id from query.
func NewPage(deps Deps, query url.Values) *Page {
	logger := deps.Logger
	if logger == nil {
		logger = logging.Nop{}
	}
	return &Page{
		deps:            deps,
		logger:          logger.With(logging.Component("ChangeSubmitterPage")),
		shareToken:      query.Get(ParamShareToken),
		workspaceItemID: query.Get(ParamWorkspaceItemID),
		Submitter:       observe.NewSubject[*data.EPerson](nil),
		Item:            observe.NewSubject[*data.Item](nil),
		WorkspaceItem:   observe.NewSubject[*data.WorkspaceItem](nil),
		Spinner:         observe.NewSubject(false),
	}
}

// ShareToken is the token taken from the page URL.
func (p *Page) ShareToken() string { return p.shareToken }

// WorkspaceItemID is the id taken from the page URL.
func (p *Page) WorkspaceItemID() string { return p.workspaceItemID }

// Init loads the workspace item behind the share token.
func (p *Page) Init(ctx context.Context) error {
	return p.LoadWorkspaceItemAndAssignSubmitter(ctx, p.shareToken)
}

// LoadWorkspaceItemAndAssignSubmitter finds the workspace item for
// shareToken, publishes it and then loads its item and submitter.
func (p *Page) LoadWorkspaceItemAndAssignSubmitter(ctx context.Context, shareToken string) error {
	wsi, err := p.FindWorkspaceItemByShareToken(ctx, shareToken)
	if err != nil {
		p.logger.Warn("workspace item lookup failed", logging.Err(err))
		return err
	}
	p.WorkspaceItem.Next(wsi)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return p.LoadItemFromWorkspaceItem(gctx, wsi) })
	g.Go(func() error { return p.LoadAndAssignSubmitter(gctx, wsi) })
	return g.Wait()
}

// FindWorkspaceItemByShareToken returns the first workspace item matching
// shareToken, or nil when the search comes back empty. The search bypasses
// the cache and embeds the item and submitter.
func (p *Page) FindWorkspaceItemByShareToken(ctx context.Context, shareToken string) (*data.WorkspaceItem, error) {
	stream, err := p.deps.WorkspaceItems.SearchBy(ctx, "shareToken", data.FindListOptions{
		SearchParams: []data.RequestParam{{FieldName: "shareToken", FieldValue: shareToken}},
	}, false, false, hal.FollowLink("item"), hal.FollowLink("submitter"))
	if err != nil {
		return nil, err
	}
	list, err := remotedata.FirstSucceededListPayload(ctx, stream)
	if err != nil {
		return nil, fmt.Errorf("search workspace item by share token: %w", err)
	}
	if len(list) == 0 {
		return nil, nil
	}
	wsi := list[0]
	return &wsi, nil
}

// LoadItemFromWorkspaceItem publishes the item of wsi once it has loaded.
func (p *Page) LoadItemFromWorkspaceItem(ctx context.Context, wsi *data.WorkspaceItem) error {
	if wsi == nil || wsi.Item == nil {
		return nil
	}
	item, err := remotedata.FirstSucceededPayload(ctx, wsi.Item.Stream())
	if err != nil {
		p.logger.Warn("loading item failed", logging.Field{Key: "workspaceitem", Value: wsi.ID}, logging.Err(err))
		return fmt.Errorf("load item: %w", err)
	}
	p.Item.Next(&item)
	return nil
}

// LoadAndAssignSubmitter publishes the submitter of wsi. An embedded
// submitter is assigned directly; a linked one is requested first.
func (p *Page) LoadAndAssignSubmitter(ctx context.Context, wsi *data.WorkspaceItem) error {
	if wsi == nil {
		p.logger.Error("Cannot load submitter because WorkspaceItem is nil")
		return ErrNoWorkspaceItem
	}
	if wsi.Submitter.IsEmbedded() {
		p.AssignSubmitter(wsi.Submitter.Value)
		return nil
	}
	submitter, err := remotedata.FirstSucceededPayload(ctx, wsi.Submitter.Stream())
	if err != nil {
		p.logger.Warn("loading submitter failed", logging.Field{Key: "workspaceitem", Value: wsi.ID}, logging.Err(err))
		return fmt.Errorf("load submitter: %w", err)
	}
	p.AssignSubmitter(&submitter)
	return nil
}

// AssignSubmitter publishes eperson as the current submitter.
func (p *Page) AssignSubmitter(eperson *data.EPerson) {
	p.Submitter.Next(eperson)
}

// GetName returns the display name of obj, or "" for nil.
func (p *Page) GetName(obj dsoname.Object) string {
	switch v := obj.(type) {
	case nil:
		return ""
	case *data.EPerson:
		if v == nil {
			return ""
		}
	case *data.Item:
		if v == nil {
			return ""
		}
	}
	return p.deps.Names.GetName(obj)
}

// SetOwnerHref is the URL that makes the caller the submitter.
func (p *Page) SetOwnerHref() string {
	q := url.Values{}
	q.Set("shareToken", p.shareToken)
	q.Set("workspaceitemid", p.workspaceItemID)
	return p.deps.Endpoints.RootHref() + SetOwnerPath + "?" + q.Encode()
}

// ChangeSubmitter asks the backend to make the current user the submitter.
// On success it raises one success notification and reloads the workspace
// item; on failure it raises one error notification. The spinner is on while
// the request is in flight. The result is that of setOwner alone: a failed
// reload is logged and leaves the previous page state in place.
func (p *Page) ChangeSubmitter(ctx context.Context) error {
	id := p.deps.Requests.GenerateRequestID()
	p.deps.Requests.Send(request.NewGetRequest(id, p.SetOwnerHref(), nil), false)
	p.Spinner.Next(true)

	stream := remotedata.BuildFromRequestUUID(p.deps.RemoteData, id, p.deps.WorkspaceItems.Decoder())
	rd, err := remotedata.FirstCompleted(ctx, stream)
	if err != nil {
		p.Spinner.Next(false)
		return err
	}

	if !rd.HasSucceeded() {
		p.deps.Notifications.Error(p.deps.Translate.Instant(KeyChangedError, nil), "")
		p.logger.Warn("changing submitter failed",
			logging.Field{Key: "status", Value: rd.StatusCode},
			logging.Field{Key: "message", Value: rd.ErrorMessage})
		p.Spinner.Next(false)
		return rd.Err()
	}

	p.deps.Notifications.Success(p.deps.Translate.Instant(KeyChangedSuccessfully, nil), "")
	p.logger.Info("submitter changed", logging.Field{Key: "workspaceitem", Value: p.workspaceItemID})
	p.Spinner.Next(false)
	if err := p.LoadWorkspaceItemAndAssignSubmitter(ctx, p.shareToken); err != nil {
		p.logger.Warn("reloading workspace item after submitter change", logging.Err(err))
	}
	return nil
}

// View is a point-in-time copy of the page state.
type View struct {
	ShareToken      string              `json:"shareToken"`
	WorkspaceItemID string              `json:"workspaceItemId"`
	WorkspaceItem   *data.WorkspaceItem `json:"workspaceItem"`
	Item            *data.Item          `json:"item"`
	ItemName        string              `json:"itemName"`
	Submitter       *data.EPerson       `json:"submitter"`
	SubmitterName   string              `json:"submitterName"`
	Spinner         bool                `json:"spinner"`
}

// Snapshot returns the current state.
func (p *Page) Snapshot() View {
	item := p.Item.Value()
	sub := p.Submitter.Value()
	return View{
		ShareToken:      p.shareToken,
		WorkspaceItemID: p.workspaceItemID,
		WorkspaceItem:   p.WorkspaceItem.Value(),
		Item:            item,
		ItemName:        p.GetName(item),
		Submitter:       sub,
		SubmitterName:   p.GetName(sub),
		Spinner:         p.Spinner.Value(),
	}
}
