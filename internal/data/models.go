// Package data holds the REST resource models and the data services that
// request them through the request pipeline.
package data

import (
	"time"

	"github.com/dspace-go/dsfront/internal/remotedata"
)

const (
	TypeItem          = "item"
	TypeEPerson       = "eperson"
	TypeWorkspaceItem = "workspaceitem"
)

// MetadataValue is a single metadata entry.
type MetadataValue struct {
	Value      string `json:"value"`
	Language   string `json:"language,omitempty"`
	Authority  string `json:"authority,omitempty"`
	Confidence int    `json:"confidence"`
	Place      int    `json:"place"`
}

// MetadataMap maps a metadata key such as "dc.title" to its values.
type MetadataMap map[string][]MetadataValue

// First returns the first value for key, or "".
func (m MetadataMap) First(key string) string {
	if vs := m[key]; len(vs) > 0 {
		return vs[0].Value
	}
	return ""
}

// All returns every value for key in place order.
func (m MetadataMap) All(key string) []string {
	vs := m[key]
	out := make([]string, 0, len(vs))
	for _, v := range vs {
		out = append(out, v.Value)
	}
	return out
}

// DSpaceObject carries the fields shared by items, people and collections.
type DSpaceObject struct {
	UUID     string      `json:"uuid"`
	ID       string      `json:"id"`
	Name     string      `json:"name"`
	Handle   string      `json:"handle,omitempty"`
	Metadata MetadataMap `json:"metadata"`
	Type     string      `json:"type"`
}

// FirstMetadataValue returns the first value for key.
func (d *DSpaceObject) FirstMetadataValue(key string) string {
	if d == nil {
		return ""
	}
	return d.Metadata.First(key)
}

// ObjectType returns the resource type, e.g. "item".
func (d *DSpaceObject) ObjectType() string {
	if d == nil {
		return ""
	}
	return d.Type
}

// Item is an archived or in-progress item.
type Item struct {
	DSpaceObject `json:",squash"`
	InArchive    bool      `json:"inArchive"`
	Discoverable bool      `json:"discoverable"`
	Withdrawn    bool      `json:"withdrawn"`
	LastModified time.Time `json:"lastModified"`
	EntityType   string    `json:"entityType,omitempty"`
}

// EPerson is a registered user.
type EPerson struct {
	DSpaceObject       `json:",squash"`
	Email              string    `json:"email"`
	NetID              string    `json:"netid,omitempty"`
	CanLogIn           bool      `json:"canLogIn"`
	RequireCertificate bool      `json:"requireCertificate"`
	SelfRegistered     bool      `json:"selfRegistered"`
	LastActive         time.Time `json:"lastActive"`
}

// WorkspaceItem is an in-progress submission. Item and Submitter are either
// embedded in the response or resolved lazily through their link.
type WorkspaceItem struct {
	ID           int            `json:"id"`
	LastModified time.Time      `json:"lastModified"`
	Type         string         `json:"type"`
	Sections     map[string]any `json:"sections,omitempty"`

	Item      *Linked[Item]    `json:"-"`
	Submitter *Linked[EPerson] `json:"-"`
}

// Linked is a related resource that may already be embedded.
type Linked[T any] struct {
	Href  string
	Value *T

	resolve func(href string) *remotedata.Stream[T]
}

// IsEmbedded reports whether the value arrived embedded in the parent.
func (l *Linked[T]) IsEmbedded() bool {
	return l != nil && l.Value != nil
}

// Stream returns the resource as remote data. Embedded values are returned
// as an already succeeded stream; otherwise the link is requested.
func (l *Linked[T]) Stream() *remotedata.Stream[T] {
	switch {
	case l == nil:
		return remotedata.Of(remotedata.Failed[T](0, "no link"))
	case l.Value != nil:
		return remotedata.Of(remotedata.Succeeded(*l.Value))
	case l.Href == "" || l.resolve == nil:
		return remotedata.Of(remotedata.Failed[T](0, "link cannot be resolved"))
	default:
		return l.resolve(l.Href)
	}
}

// FindListOptions configures a paginated search.
type FindListOptions struct {
	CurrentPage     int
	ElementsPerPage int
	Sort            *SortOptions
	SearchParams    []RequestParam
}

// SortOptions orders search results.
type SortOptions struct {
	Field     string
	Direction string
}

// RequestParam is one search query parameter.
type RequestParam struct {
	FieldName  string
	FieldValue string
}
