// Package remotedata exposes the lifecycle of one backend request as a
// typed, evolving value and provides the operators that wait for its first
// terminal state.
package remotedata

import (
	"errors"
	"fmt"
	"time"

	"github.com/dspace-go/dsfront/internal/request"
)

// ErrRequestFailed is wrapped by every *FailedError.
var ErrRequestFailed = errors.New("remote data request failed")

// RemoteData wraps the state and, once available, the payload of a request.
// Exactly one of pending, succeeded and failed holds for any value.
type RemoteData[T any] struct {
	RequestID     string        `json:"requestId"`
	State         request.State `json:"state"`
	StatusCode    int           `json:"statusCode,omitempty"`
	ErrorMessage  string        `json:"errorMessage,omitempty"`
	TimeCompleted time.Time     `json:"timeCompleted,omitempty"`
	MsToLive      int64         `json:"msToLive,omitempty"`
	Payload       T             `json:"payload,omitempty"`
}

func (rd RemoteData[T]) IsRequestPending() bool  { return rd.State == request.StateRequestPending }
func (rd RemoteData[T]) IsResponsePending() bool { return rd.State == request.StateResponsePending }

// IsLoading is true while either the request or the response is pending.
func (rd RemoteData[T]) IsLoading() bool { return rd.IsRequestPending() || rd.IsResponsePending() }

func (rd RemoteData[T]) HasSucceeded() bool { return rd.State == request.StateSuccess }
func (rd RemoteData[T]) HasFailed() bool    { return rd.State == request.StateError }

// HasCompleted is true once the request succeeded or failed.
func (rd RemoteData[T]) HasCompleted() bool { return rd.HasSucceeded() || rd.HasFailed() }

// IsStale reports whether a completed value outlived its time to live.
func (rd RemoteData[T]) IsStale(now time.Time) bool {
	if !rd.HasCompleted() || rd.MsToLive <= 0 || rd.TimeCompleted.IsZero() {
		return false
	}
	return now.Sub(rd.TimeCompleted) > time.Duration(rd.MsToLive)*time.Millisecond
}

// Err returns a *FailedError for failed values and nil otherwise.
func (rd RemoteData[T]) Err() error {
	if !rd.HasFailed() {
		return nil
	}
	return &FailedError{RequestID: rd.RequestID, StatusCode: rd.StatusCode, Message: rd.ErrorMessage}
}

// FailedError describes a request that reached the Error state.
type FailedError struct {
	RequestID  string
	StatusCode int
	Message    string
}

func (e *FailedError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("request %s failed with status %d: %s", e.RequestID, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("request %s failed: %s", e.RequestID, e.Message)
}

func (e *FailedError) Unwrap() error { return ErrRequestFailed }

// Succeeded builds a successful value, for services that already hold a
// payload and tests.
func Succeeded[T any](payload T) RemoteData[T] {
	return RemoteData[T]{State: request.StateSuccess, StatusCode: 200, Payload: payload, TimeCompleted: time.Now()}
}

// Failed builds a failed value.
func Failed[T any](status int, msg string) RemoteData[T] {
	return RemoteData[T]{State: request.StateError, StatusCode: status, ErrorMessage: msg, TimeCompleted: time.Now()}
}

// Pending builds a value whose response has not arrived yet.
func Pending[T any]() RemoteData[T] {
	return RemoteData[T]{State: request.StateResponsePending}
}

// PageInfo describes one page of a paginated list.
type PageInfo struct {
	ElementsPerPage int `json:"size" mapstructure:"size"`
	TotalElements   int `json:"totalElements" mapstructure:"totalElements"`
	TotalPages      int `json:"totalPages" mapstructure:"totalPages"`
	CurrentPage     int `json:"number" mapstructure:"number"`
}

// PaginatedList is one page of results.
type PaginatedList[T any] struct {
	PageInfo PageInfo `json:"pageInfo"`
	Page     []T      `json:"page"`
}
