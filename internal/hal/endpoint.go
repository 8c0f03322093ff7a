package hal

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/dspace-go/dsfront/internal/logging"
	"github.com/dspace-go/dsfront/internal/remotedata"
	"github.com/dspace-go/dsfront/internal/request"
)

var ErrLinkNotFound = errors.New("endpoint link not found")

// EndpointService resolves REST endpoints through the links of the root
// resource. The root document is requested once and reused from the request
// cache afterwards.
type EndpointService struct {
	rootHref string
	requests *request.Service
	rdb      *remotedata.BuildService
	logger   logging.Logger

	mu    sync.RWMutex
	links map[string]string
}

func NewEndpointService(rootHref string, requests *request.Service, rdb *remotedata.BuildService, logger logging.Logger) *EndpointService {
	if logger == nil {
		logger = logging.Nop{}
	}
	return &EndpointService{
		rootHref: strings.TrimRight(rootHref, "/"),
		requests: requests,
		rdb:      rdb,
		logger:   logger.With(logging.Component("HALEndpointService")),
	}
}

// RootHref is the base URL of the REST API, without trailing slash.
func (s *EndpointService) RootHref() string {
	return s.rootHref
}

// GetEndpoint returns the href of the root link named linkPath. Nested paths
// ("submission/workspaceitems") are not links; only the first segment is
// looked up and the rest appended.
func (s *EndpointService) GetEndpoint(ctx context.Context, linkPath string) (string, error) {
	linkPath = strings.Trim(linkPath, "/")
	head, rest, _ := strings.Cut(linkPath, "/")

	links, err := s.rootLinks(ctx)
	if err != nil {
		return "", err
	}
	href, ok := links[head]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrLinkNotFound, head)
	}
	if rest != "" {
		href = strings.TrimRight(href, "/") + "/" + rest
	}
	return href, nil
}

func (s *EndpointService) rootLinks(ctx context.Context) (map[string]string, error) {
	s.mu.RLock()
	links := s.links
	s.mu.RUnlock()
	if links != nil {
		return links, nil
	}

	id := s.requests.GenerateRequestID()
	s.requests.Send(request.NewGetRequest(id, s.rootHref, nil), true)
	root, err := remotedata.FirstSucceededPayload(ctx, remotedata.BuildFromRequestUUID(s.rdb, id, decodeResource))
	if err != nil {
		s.logger.Warn("loading root endpoint", logging.Field{Key: "href", Value: s.rootHref}, logging.Err(err))
		return nil, fmt.Errorf("load root endpoint: %w", err)
	}

	links = make(map[string]string, len(root.Links))
	for name := range root.Links {
		if href, ok := root.Href(name); ok {
			links[name] = href
		}
	}

	s.mu.Lock()
	s.links = links
	s.mu.Unlock()
	s.logger.Debug("resolved root links", logging.Field{Key: "count", Value: len(links)})
	return links, nil
}

// Reset forgets the cached root links.
func (s *EndpointService) Reset() {
	s.mu.Lock()
	s.links = nil
	s.mu.Unlock()
}

func decodeResource(body []byte) (*Resource, error) {
	return Parse(body)
}
