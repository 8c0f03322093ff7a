package data

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dspace-go/dsfront/internal/hal"
	"github.com/dspace-go/dsfront/internal/logging"
	"github.com/dspace-go/dsfront/internal/remotedata"
	"github.com/dspace-go/dsfront/internal/request"
)

// Deps are the pipeline pieces every data service shares.
type Deps struct {
	Endpoints  *hal.EndpointService
	Requests   *request.Service
	RemoteData *remotedata.BuildService
	Logger     logging.Logger
}

type base struct {
	Deps
	linkPath string
	logger   logging.Logger
	now      func() time.Time
}

func newBase(d Deps, linkPath, component string) base {
	logger := d.Logger
	if logger == nil {
		logger = logging.Nop{}
	}
	return base{
		Deps:     d,
		linkPath: linkPath,
		logger:   logger.With(logging.Component(component)),
		now:      time.Now,
	}
}

// send issues a GET for href and returns the id of the request carrying it.
// With reRequestOnStale a stale cached entry is bypassed.
func (b *base) send(href string, useCached, reRequestOnStale bool) string {
	if useCached && reRequestOnStale {
		if e, ok := b.Requests.GetByHref(href); ok && e.Stale(b.now()) {
			b.logger.Debug("cached entry is stale, re-requesting", logging.Field{Key: "href", Value: href})
			useCached = false
		}
	}
	id := b.Requests.GenerateRequestID()
	b.Requests.Send(request.NewGetRequest(id, href, nil), useCached)
	return id
}

func (b *base) endpoint(ctx context.Context) (string, error) {
	href, err := b.Endpoints.GetEndpoint(ctx, b.linkPath)
	if err != nil {
		return "", fmt.Errorf("resolve %s endpoint: %w", b.linkPath, err)
	}
	return href, nil
}

// buildHref appends list options and embeds to href.
func buildHref(href string, opts *FindListOptions, links ...hal.FollowLinkConfig) string {
	q := url.Values{}
	if opts != nil {
		for _, p := range opts.SearchParams {
			q.Add(p.FieldName, p.FieldValue)
		}
		if opts.CurrentPage > 0 {
			q.Set("page", strconv.Itoa(opts.CurrentPage))
		}
		if opts.ElementsPerPage > 0 {
			q.Set("size", strconv.Itoa(opts.ElementsPerPage))
		}
		if opts.Sort != nil && opts.Sort.Field != "" {
			dir := opts.Sort.Direction
			if dir == "" {
				dir = "ASC"
			}
			q.Set("sort", opts.Sort.Field+","+dir)
		}
	}
	for _, e := range hal.EmbedParams(links...) {
		q.Add("embed", e)
	}
	if len(q) == 0 {
		return href
	}
	sep := "?"
	if strings.Contains(href, "?") {
		sep = "&"
	}
	return href + sep + q.Encode()
}

func resourceDecoder[T any](fn func(*hal.Resource) (T, error)) remotedata.Decoder[T] {
	return func(body []byte) (T, error) {
		res, err := hal.Parse(body)
		if err != nil {
			var zero T
			return zero, err
		}
		return fn(res)
	}
}

func listDecoder[T any](embedKey string, fn func(*hal.Resource) (T, error)) remotedata.Decoder[remotedata.PaginatedList[T]] {
	return func(body []byte) (remotedata.PaginatedList[T], error) {
		var list remotedata.PaginatedList[T]
		res, err := hal.Parse(body)
		if err != nil {
			return list, err
		}
		if page, ok := res.Attributes["page"].(map[string]any); ok {
			if err := hal.DecodeMap(page, &list.PageInfo); err != nil {
				return list, fmt.Errorf("decode page info: %w", err)
			}
		}
		items, err := res.EmbeddedList(embedKey)
		if err != nil {
			return list, err
		}
		list.Page = make([]T, 0, len(items))
		for _, item := range items {
			v, err := fn(item)
			if err != nil {
				return list, err
			}
			list.Page = append(list.Page, v)
		}
		return list, nil
	}
}

func decodeItem(res *hal.Resource) (Item, error) {
	var it Item
	if err := res.Decode(&it); err != nil {
		return it, fmt.Errorf("decode item: %w", err)
	}
	return it, nil
}

func decodeEPerson(res *hal.Resource) (EPerson, error) {
	var ep EPerson
	if err := res.Decode(&ep); err != nil {
		return ep, fmt.Errorf("decode eperson: %w", err)
	}
	return ep, nil
}

// ─── Items ────────────────────────────────────────────────────────────

// ItemDataService requests items.
type ItemDataService struct {
	base
}

func NewItemDataService(d Deps) *ItemDataService {
	return &ItemDataService{base: newBase(d, "items", "ItemDataService")}
}

// FindByID requests the item with the given uuid.
func (s *ItemDataService) FindByID(ctx context.Context, uuid string, useCached bool, links ...hal.FollowLinkConfig) (*remotedata.Stream[Item], error) {
	href, err := s.endpoint(ctx)
	if err != nil {
		return nil, err
	}
	return s.FindByHref(buildHref(href+"/"+url.PathEscape(uuid), nil, links...), useCached, true), nil
}

// FindByHref requests the item at href.
func (s *ItemDataService) FindByHref(href string, useCached, reRequestOnStale bool) *remotedata.Stream[Item] {
	id := s.send(href, useCached, reRequestOnStale)
	return remotedata.BuildFromRequestUUID(s.RemoteData, id, resourceDecoder(decodeItem))
}

func (s *ItemDataService) resolve(href string) *remotedata.Stream[Item] {
	return s.FindByHref(href, true, true)
}

// ─── EPersons ─────────────────────────────────────────────────────────

// EPersonDataService requests epersons.
type EPersonDataService struct {
	base
}

func NewEPersonDataService(d Deps) *EPersonDataService {
	return &EPersonDataService{base: newBase(d, "epersons", "EPersonDataService")}
}

// FindByHref requests the eperson at href.
func (s *EPersonDataService) FindByHref(href string, useCached, reRequestOnStale bool) *remotedata.Stream[EPerson] {
	id := s.send(href, useCached, reRequestOnStale)
	return remotedata.BuildFromRequestUUID(s.RemoteData, id, resourceDecoder(decodeEPerson))
}

func (s *EPersonDataService) resolve(href string) *remotedata.Stream[EPerson] {
	return s.FindByHref(href, true, true)
}

// ─── Workspace items ──────────────────────────────────────────────────

// WorkspaceItemDataService requests workspace items.
type WorkspaceItemDataService struct {
	base
	items    *ItemDataService
	epersons *EPersonDataService
}

func NewWorkspaceItemDataService(d Deps, items *ItemDataService, epersons *EPersonDataService) *WorkspaceItemDataService {
	return &WorkspaceItemDataService{
		base:     newBase(d, "workspaceitems", "WorkspaceItemDataService"),
		items:    items,
		epersons: epersons,
	}
}

// SearchHref builds the href of the search named method.
func (s *WorkspaceItemDataService) SearchHref(ctx context.Context, method string, opts FindListOptions, links ...hal.FollowLinkConfig) (string, error) {
	href, err := s.endpoint(ctx)
	if err != nil {
		return "", err
	}
	return buildHref(href+"/search/"+method, &opts, links...), nil
}

// SearchBy runs the search named method, e.g. "shareToken".
func (s *WorkspaceItemDataService) SearchBy(ctx context.Context, method string, opts FindListOptions, useCached, reRequestOnStale bool, links ...hal.FollowLinkConfig) (*remotedata.Stream[remotedata.PaginatedList[WorkspaceItem]], error) {
	href, err := s.SearchHref(ctx, method, opts, links...)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("searching workspace items",
		logging.Field{Key: "method", Value: method},
		logging.Field{Key: "useCached", Value: useCached})
	id := s.send(href, useCached, reRequestOnStale)
	return remotedata.BuildFromRequestUUID(s.RemoteData, id, s.ListDecoder()), nil
}

// FindByID requests the workspace item with the given id.
func (s *WorkspaceItemDataService) FindByID(ctx context.Context, id string, useCached bool, links ...hal.FollowLinkConfig) (*remotedata.Stream[WorkspaceItem], error) {
	href, err := s.endpoint(ctx)
	if err != nil {
		return nil, err
	}
	return s.FindByHref(buildHref(href+"/"+url.PathEscape(id), nil, links...), useCached, true), nil
}

// FindByHref requests the workspace item at href.
func (s *WorkspaceItemDataService) FindByHref(href string, useCached, reRequestOnStale bool) *remotedata.Stream[WorkspaceItem] {
	id := s.send(href, useCached, reRequestOnStale)
	return remotedata.BuildFromRequestUUID(s.RemoteData, id, s.Decoder())
}

// Decoder decodes a single workspace item document.
func (s *WorkspaceItemDataService) Decoder() remotedata.Decoder[WorkspaceItem] {
	return resourceDecoder(s.decode)
}

// ListDecoder decodes a page of workspace items.
func (s *WorkspaceItemDataService) ListDecoder() remotedata.Decoder[remotedata.PaginatedList[WorkspaceItem]] {
	return listDecoder("workspaceitems", s.decode)
}

func (s *WorkspaceItemDataService) decode(res *hal.Resource) (WorkspaceItem, error) {
	var wsi WorkspaceItem
	if err := res.Decode(&wsi); err != nil {
		return wsi, fmt.Errorf("decode workspace item: %w", err)
	}

	wsi.Item = &Linked[Item]{resolve: s.items.resolve}
	wsi.Item.Href, _ = res.Href("item")
	if emb, err := res.EmbeddedResource("item"); err == nil {
		it, err := decodeItem(emb)
		if err != nil {
			return wsi, err
		}
		wsi.Item.Value = &it
	}

	wsi.Submitter = &Linked[EPerson]{resolve: s.epersons.resolve}
	wsi.Submitter.Href, _ = res.Href("submitter")
	if emb, err := res.EmbeddedResource("submitter"); err == nil {
		ep, err := decodeEPerson(emb)
		if err != nil {
			return wsi, err
		}
		wsi.Submitter.Value = &ep
	}
	return wsi, nil
}
