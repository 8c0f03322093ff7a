package remotedata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/dspace-go/dsfront/internal/logging"
	"github.com/dspace-go/dsfront/internal/observe"
	"github.com/dspace-go/dsfront/internal/request"
)

// ErrRequestNotFound is returned when no request was sent for an href.
var ErrRequestNotFound = errors.New("no request found")

// Decoder turns a successful response body into a payload.
type Decoder[T any] func(body []byte) (T, error)

// JSONDecoder decodes plain JSON bodies.
func JSONDecoder[T any]() Decoder[T] {
	return func(body []byte) (T, error) {
		var v T
		if len(body) == 0 {
			return v, nil
		}
		err := json.Unmarshal(body, &v)
		return v, err
	}
}

// BuildService turns request entries into typed RemoteData streams. Streams
// are memoized per request id: building twice for the same id returns the
// same stream and never re-issues the request.
type BuildService struct {
	requests *request.Service
	logger   logging.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	streams map[string]any
}

func NewBuildService(requests *request.Service, logger logging.Logger) *BuildService {
	if logger == nil {
		logger = logging.Nop{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &BuildService{
		requests: requests,
		logger:   logger.With(logging.Component("RemoteDataBuildService")),
		ctx:      ctx,
		cancel:   cancel,
		streams:  make(map[string]any),
	}
}

// BuildFromRequestUUID returns the live RemoteData view of request id.
func BuildFromRequestUUID[T any](b *BuildService, id string, dec Decoder[T]) *Stream[T] {
	b.mu.Lock()
	defer b.mu.Unlock()

	if existing, ok := b.streams[id]; ok {
		if s, ok := existing.(*Stream[T]); ok {
			return s
		}
		// A different payload type was requested for the same id; the
		// stream cannot be shared, but the request still is.
		b.logger.Debug("building unshared stream for differently typed payload",
			logging.Field{Key: "uuid", Value: id})
		return buildTyped(b, id, dec, false)
	}
	return buildTyped(b, id, dec, true)
}

// BuildFromHref builds the stream of the latest request sent for href.
func BuildFromHref[T any](b *BuildService, href string, dec Decoder[T]) (*Stream[T], error) {
	e, ok := b.requests.GetByHref(href)
	if !ok {
		return nil, fmt.Errorf("%w for href %s", ErrRequestNotFound, href)
	}
	return BuildFromRequestUUID(b, e.RequestID, dec), nil
}

// buildTyped must be called with b.mu held.
func buildTyped[T any](b *BuildService, id string, dec Decoder[T], memo bool) *Stream[T] {
	entries := b.requests.Observe(id)
	out := observe.NewSubject(toRemoteData(entries.Value(), dec))
	stream := &Stream[T]{subject: out}
	if memo {
		b.streams[id] = stream
	}

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		defer out.Complete()
		for e := range entries.Subscribe(b.ctx) {
			rd := toRemoteData(e, dec)
			out.Update(func(cur RemoteData[T]) (RemoteData[T], bool) {
				// The initial value may already be terminal; never publish
				// after that.
				if cur.HasCompleted() {
					return cur, false
				}
				return rd, cur.State != rd.State || rd.HasCompleted()
			})
			if e.State.Terminal() {
				return
			}
		}
	}()
	return stream
}

func toRemoteData[T any](e request.Entry, dec Decoder[T]) RemoteData[T] {
	rd := RemoteData[T]{
		RequestID: e.RequestID,
		State:     e.State,
		MsToLive:  e.MsToLive,
	}
	if e.Response != nil {
		rd.StatusCode = e.Response.StatusCode
		rd.ErrorMessage = e.Response.ErrorMessage
		rd.TimeCompleted = e.Response.TimeCompleted
	}
	if e.State == request.StateSuccess && e.Response != nil {
		payload, err := dec(e.Response.Body)
		if err != nil {
			rd.State = request.StateError
			rd.ErrorMessage = fmt.Sprintf("decode response: %v", err)
			return rd
		}
		rd.Payload = payload
	}
	return rd
}

// Prune drops memoized streams whose request entry is gone.
func (b *BuildService) Prune() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for id := range b.streams {
		if _, ok := b.requests.Get(id); !ok {
			delete(b.streams, id)
			n++
		}
	}
	return n
}

// Close stops all conversions; open streams complete.
func (b *BuildService) Close() {
	b.cancel()
	b.wg.Wait()
}
