// Package request issues uuid-identified calls to the REST backend and
// tracks each one through RequestPending -> ResponsePending -> Success|Error.
// Every request id owns an observe.Subject so any number of consumers share
// one execution.
package request

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dspace-go/dsfront/internal/logging"
	"github.com/dspace-go/dsfront/internal/observe"
	"github.com/dspace-go/dsfront/internal/webclient"
)

// ErrCacheMiss is returned by a ResponseCache that holds nothing for an href.
var ErrCacheMiss = errors.New("response cache miss")

// ResponseCache persists successful GET responses across restarts.
type ResponseCache interface {
	Get(ctx context.Context, href string) (*Response, int64, error)
	Put(ctx context.Context, href string, resp *Response, msToLive int64) error
}

type Config struct {
	// MsToLive is how long a successful response may be reused by requests
	// that accept cached versions.
	MsToLive int64

	// Timeout bounds the network call of one request. Zero means 30s.
	Timeout time.Duration
}

// DefaultConfig mirrors the client's default cache settings: 15 minutes.
func DefaultConfig() Config {
	return Config{MsToLive: 15 * 60 * 1000, Timeout: 30 * time.Second}
}

type Service struct {
	wc     webclient.WebClient
	cache  ResponseCache
	cfg    Config
	logger logging.Logger
	now    func() time.Time

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	mu        sync.Mutex
	entries   map[string]*observe.Subject[Entry]
	hrefIndex map[string]string
}

// NewService wires a request service. cache may be nil.
func NewService(wc webclient.WebClient, cache ResponseCache, cfg Config, logger logging.Logger) *Service {
	if logger == nil {
		logger = logging.Nop{}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		wc:        wc,
		cache:     cache,
		cfg:       cfg,
		logger:    logger.With(logging.Component("RequestService")),
		now:       time.Now,
		baseCtx:   ctx,
		cancel:    cancel,
		entries:   make(map[string]*observe.Subject[Entry]),
		hrefIndex: make(map[string]string),
	}
}

// GenerateRequestID returns a fresh request uuid.
func (s *Service) GenerateRequestID() string {
	return "client/" + uuid.New().String()
}

// Observe returns the live entry for id. Ids that were never sent observe a
// RequestPending placeholder until Send is called for them.
func (s *Service) Observe(id string) *observe.Subject[Entry] {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.observeLocked(id)
}

func (s *Service) observeLocked(id string) *observe.Subject[Entry] {
	subj, ok := s.entries[id]
	if !ok {
		subj = observe.NewSubject(Entry{
			RequestID:   id,
			State:       StateRequestPending,
			LastUpdated: s.now(),
			MsToLive:    s.cfg.MsToLive,
		})
		s.entries[id] = subj
	}
	return subj
}

// Get returns the current entry for id.
func (s *Service) Get(id string) (Entry, bool) {
	s.mu.Lock()
	subj, ok := s.entries[id]
	s.mu.Unlock()
	if !ok {
		return Entry{}, false
	}
	return subj.Value(), true
}

// GetByHref returns the entry of the latest GET sent for href.
func (s *Service) GetByHref(href string) (Entry, bool) {
	s.mu.Lock()
	id, ok := s.hrefIndex[href]
	s.mu.Unlock()
	if !ok {
		return Entry{}, false
	}
	return s.Get(id)
}

// Send registers req for execution and returns immediately. Observers of
// req.ID see every state transition. With useCachedVersionIfAvailable a GET
// reuses a pending or fresh successful request for the same href instead of
// hitting the network again.
func (s *Service) Send(req *Request, useCachedVersionIfAvailable bool) {
	if req == nil || req.ID == "" || req.Href == "" {
		s.logger.Warn("ignoring request without id or href")
		return
	}
	if req.Method == "" {
		req.Method = http.MethodGet
	}
	isGet := req.Method == http.MethodGet
	msToLive := req.MsToLive
	if msToLive <= 0 {
		msToLive = s.cfg.MsToLive
	}

	s.mu.Lock()
	subj := s.observeLocked(req.ID)
	if cur := subj.Value(); cur.Request != nil {
		s.mu.Unlock()
		s.logger.Warn("request id already sent", logging.Field{Key: "uuid", Value: req.ID})
		return
	}
	if useCachedVersionIfAvailable && isGet {
		if srcID, ok := s.hrefIndex[req.Href]; ok && srcID != req.ID {
			src := s.entries[srcID]
			if e := src.Value(); e.State != StateError && !e.Stale(s.now()) {
				e.RequestID = req.ID
				e.Request = req
				subj.Next(e)
				s.mu.Unlock()
				s.logger.Debug("reusing request for href",
					logging.Field{Key: "uuid", Value: req.ID},
					logging.Field{Key: "source", Value: srcID},
					logging.Field{Key: "href", Value: req.Href})
				s.mirror(src, subj, req, e)
				return
			}
		}
	}
	if isGet {
		s.hrefIndex[req.Href] = req.ID
	}
	subj.Next(Entry{
		RequestID:   req.ID,
		Request:     req,
		State:       StateRequestPending,
		LastUpdated: s.now(),
		MsToLive:    msToLive,
	})
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.execute(req, subj, msToLive, useCachedVersionIfAvailable && isGet)
	}()
}

func (s *Service) execute(req *Request, subj *observe.Subject[Entry], msToLive int64, tryCache bool) {
	if tryCache && s.cache != nil {
		resp, ttl, err := s.cache.Get(s.baseCtx, req.Href)
		switch {
		case err == nil:
			e := Entry{State: StateSuccess, Response: resp, MsToLive: ttl}
			if !e.Stale(s.now()) {
				s.logger.Debug("serving href from response cache", logging.Field{Key: "href", Value: req.Href})
				s.finish(req, subj, resp, ttl)
				return
			}
		case !errors.Is(err, ErrCacheMiss):
			s.logger.Warn("reading response cache", logging.Field{Key: "href", Value: req.Href}, logging.Err(err))
		}
	}

	subj.Update(func(cur Entry) (Entry, bool) {
		cur.State = StateResponsePending
		cur.LastUpdated = s.now()
		return cur, true
	})

	ctx, cancel := context.WithTimeout(s.baseCtx, s.cfg.Timeout)
	defer cancel()

	s.logger.Debug("sending request",
		logging.Field{Key: "uuid", Value: req.ID},
		logging.Field{Key: "method", Value: req.Method},
		logging.Field{Key: "href", Value: req.Href})

	wresp, err := s.wc.Do(ctx, &webclient.Request{
		Method:  req.Method,
		URL:     req.Href,
		Headers: req.Headers,
		Body:    req.Body,
	})

	resp := &Response{TimeCompleted: s.now()}
	if err != nil {
		resp.ErrorMessage = err.Error()
	} else {
		resp.StatusCode = wresp.StatusCode
		resp.Headers = wresp.Headers
		resp.Body = wresp.Body
		if !wresp.OK() {
			resp.ErrorMessage = errorMessage(wresp.StatusCode, wresp.Body)
		}
	}

	if resp.Succeeded() && req.Method == http.MethodGet && s.cache != nil {
		if err := s.cache.Put(s.baseCtx, req.Href, resp, msToLive); err != nil {
			s.logger.Warn("writing response cache", logging.Field{Key: "href", Value: req.Href}, logging.Err(err))
		}
	}
	s.finish(req, subj, resp, msToLive)
}

// finish publishes the terminal entry and completes the subject; the
// outcome is immutable from here on.
func (s *Service) finish(req *Request, subj *observe.Subject[Entry], resp *Response, msToLive int64) {
	state := StateSuccess
	if !resp.Succeeded() {
		state = StateError
		s.logger.Warn("request failed",
			logging.Field{Key: "uuid", Value: req.ID},
			logging.Field{Key: "href", Value: req.Href},
			logging.Field{Key: "status", Value: resp.StatusCode},
			logging.Field{Key: "error", Value: resp.ErrorMessage})
	}
	subj.Next(Entry{
		RequestID:   req.ID,
		Request:     req,
		State:       state,
		Response:    resp,
		LastUpdated: s.now(),
		MsToLive:    msToLive,
	})
	subj.Complete()
}

// mirror forwards the transitions of src to dst under dst's request id.
// first is the value already published on dst.
func (s *Service) mirror(src, dst *observe.Subject[Entry], req *Request, first Entry) {
	if first.State.Terminal() {
		dst.Complete()
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer dst.Complete()
		for e := range src.Subscribe(s.baseCtx) {
			if e.State == first.State && e.LastUpdated.Equal(first.LastUpdated) {
				continue
			}
			e.RequestID = req.ID
			e.Request = req
			dst.Next(e)
			if e.State.Terminal() {
				return
			}
		}
	}()
}

// Remove forgets id. Existing subscribers keep what they already received.
func (s *Service) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(id)
}

func (s *Service) removeLocked(id string) {
	subj, ok := s.entries[id]
	if !ok {
		return
	}
	if e := subj.Value(); e.Request != nil && s.hrefIndex[e.Request.Href] == id {
		delete(s.hrefIndex, e.Request.Href)
	}
	delete(s.entries, id)
}

// Prune drops terminal entries whose time to live has passed and returns how
// many were removed.
func (s *Service) Prune() int {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, subj := range s.entries {
		if subj.Value().Stale(now) {
			s.removeLocked(id)
			n++
		}
	}
	return n
}

// RunJanitor prunes stale entries every interval until ctx is done.
func (s *Service) RunJanitor(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := s.Prune(); n > 0 {
				s.logger.Debug("pruned stale requests", logging.Field{Key: "count", Value: n})
			}
		}
	}
}

// Close cancels in-flight requests and waits for their goroutines.
func (s *Service) Close() {
	s.cancel()
	s.wg.Wait()
}

// errorMessage extracts the backend's error message, falling back to the
// status text.
func errorMessage(status int, body []byte) string {
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if len(body) > 0 && json.Unmarshal(body, &payload) == nil {
		if msg := strings.TrimSpace(payload.Message); msg != "" {
			return msg
		}
		if msg := strings.TrimSpace(payload.Error); msg != "" {
			return msg
		}
	}
	if txt := http.StatusText(status); txt != "" {
		return txt
	}
	return fmt.Sprintf("unexpected status %d", status)
}
