package server

import (
	"github.com/dspace-go/dsfront/internal/changesubmitter"
	"github.com/dspace-go/dsfront/internal/notifications"
	"github.com/dspace-go/dsfront/internal/objectcache"
	"github.com/dspace-go/dsfront/internal/request"
)

// ChangeSubmitterRequest names the share link whose submitter is changed.
type ChangeSubmitterRequest struct {
	ShareToken      string `json:"share_token" example:"share-4f1c9b"`
	WorkspaceItemID string `json:"workspaceitemid" example:"42"`
	Lang            string `json:"lang,omitempty" example:"en"`
}

// ChangeSubmitterResponse is the page state after a change attempt together
// with the notifications it raised.
type ChangeSubmitterResponse struct {
	Page          changesubmitter.View         `json:"page"`
	Notifications []notifications.Notification `json:"notifications"`
	Error         string                       `json:"error,omitempty" example:"The submitter could not be changed."`
}

// ErrorResponse is a uniform error payload returned by the API.
type ErrorResponse struct {
	Error string `json:"error" example:"not found"`
}

// RequestResponse is a request entry and, when the response cache is enabled,
// the stored revision of its href.
type RequestResponse struct {
	request.Entry
	Cache *objectcache.Stats `json:"cache,omitempty"`
}
