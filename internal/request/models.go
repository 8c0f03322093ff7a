package request

import (
	"net/http"
	"time"
)

// State is the lifecycle position of one request entry.
type State string

const (
	StateRequestPending  State = "RequestPending"
	StateResponsePending State = "ResponsePending"
	StateSuccess         State = "Success"
	StateError           State = "Error"
)

// Terminal reports whether no further transition can happen.
func (s State) Terminal() bool {
	return s == StateSuccess || s == StateError
}

// Request is one outgoing call to the REST backend, identified by a
// generated uuid.
type Request struct {
	ID      string      `json:"uuid"`
	Href    string      `json:"href"`
	Method  string      `json:"method"`
	Headers http.Header `json:"headers,omitempty"`
	Body    []byte      `json:"body,omitempty"`

	// MsToLive overrides the service default for how long a successful
	// response may be reused. Zero uses the default.
	MsToLive int64 `json:"msToLive,omitempty"`
}

// NewGetRequest builds a GET for href under the given id.
func NewGetRequest(id, href string, headers http.Header) *Request {
	return &Request{ID: id, Href: href, Method: http.MethodGet, Headers: headers}
}

// Response is the recorded outcome of a request.
type Response struct {
	StatusCode    int                 `json:"statusCode" msgpack:"status"`
	Headers       map[string][]string `json:"headers,omitempty" msgpack:"headers"`
	Body          []byte              `json:"-" msgpack:"body"`
	ErrorMessage  string              `json:"errorMessage,omitempty" msgpack:"error"`
	TimeCompleted time.Time           `json:"timeCompleted" msgpack:"completed"`
}

// Succeeded reports a 2xx outcome without transport error.
func (r *Response) Succeeded() bool {
	return r != nil && r.ErrorMessage == "" && r.StatusCode >= 200 && r.StatusCode < 300
}

// Entry is the state of one request id as seen by observers.
type Entry struct {
	RequestID   string    `json:"uuid"`
	Request     *Request  `json:"request,omitempty"`
	State       State     `json:"state"`
	Response    *Response `json:"response,omitempty"`
	LastUpdated time.Time `json:"lastUpdated"`
	MsToLive    int64     `json:"msToLive"`
}

// Stale reports whether a terminal entry outlived its time to live.
func (e Entry) Stale(now time.Time) bool {
	if !e.State.Terminal() || e.Response == nil || e.MsToLive <= 0 {
		return false
	}
	return now.Sub(e.Response.TimeCompleted) > time.Duration(e.MsToLive)*time.Millisecond
}
