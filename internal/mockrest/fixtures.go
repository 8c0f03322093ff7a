package mockrest

import (
	"fmt"
	"time"
)

// EPerson is a fixture user.
type EPerson struct {
	UUID      string
	Email     string
	FirstName string
	LastName  string
}

// Item is a fixture item.
type Item struct {
	UUID       string
	EntityType string
	Metadata   map[string][]string
}

// WorkspaceItem is a fixture submission.
type WorkspaceItem struct {
	ID           int
	ShareToken   string
	ItemUUID     string
	SubmitterID  string
	LastModified time.Time
}

// Fixtures is the data the mock backend serves.
type Fixtures struct {
	EPersons       []EPerson
	Items          []Item
	WorkspaceItems []WorkspaceItem
}

// DefaultFixtures returns a small consistent data set: two users, a draft
// item shared through a token and a journal volume.
func DefaultFixtures() Fixtures {
	modified := time.Date(2024, 3, 1, 10, 20, 30, 0, time.UTC)
	return Fixtures{
		EPersons: []EPerson{
			{UUID: "5e8a3f6c-0b1a-4c1e-9f39-6f0f1d4e2a01", Email: "john.doe@example.com", FirstName: "John", LastName: "Doe"},
			{UUID: "8d2b7c90-3e4f-4a5b-8c6d-7e8f9a0b1c02", Email: "jane.roe@example.com", FirstName: "Jane", LastName: "Roe"},
		},
		Items: []Item{
			{
				UUID: "1f6e2d3c-4b5a-4968-8776-655443322110",
				Metadata: map[string][]string{
					"dc.title": {"Draft of a shared submission"},
				},
			},
			{
				UUID:       "9a8b7c6d-5e4f-4321-9876-0fedcba98765",
				EntityType: "JournalVolume",
				Metadata: map[string][]string{
					"dc.title":                            {"Volume 12"},
					"journalvolume.identifier.volume":      {"12"},
					"journalvolume.issuedate":              {"2023-05-01"},
					"journalvolume.identifier.description": {"Special issue on research data repositories"},
				},
			},
		},
		WorkspaceItems: []WorkspaceItem{
			{
				ID:           42,
				ShareToken:   "share-4f1c9b",
				ItemUUID:     "1f6e2d3c-4b5a-4968-8776-655443322110",
				SubmitterID:  "5e8a3f6c-0b1a-4c1e-9f39-6f0f1d4e2a01",
				LastModified: modified,
			},
		},
	}
}

func link(href string) map[string]any {
	return map[string]any{"href": href}
}

func metadataDoc(md map[string][]string) map[string]any {
	out := make(map[string]any, len(md))
	for k, vs := range md {
		values := make([]any, 0, len(vs))
		for i, v := range vs {
			values = append(values, map[string]any{
				"value":      v,
				"language":   nil,
				"authority":  nil,
				"confidence": -1,
				"place":      i,
			})
		}
		out[k] = values
	}
	return out
}

func epersonDoc(api string, e EPerson) map[string]any {
	self := fmt.Sprintf("%s/eperson/epersons/%s", api, e.UUID)
	return map[string]any{
		"id":                 e.UUID,
		"uuid":               e.UUID,
		"name":               e.Email,
		"handle":             nil,
		"email":              e.Email,
		"netid":              nil,
		"canLogIn":           true,
		"requireCertificate": false,
		"selfRegistered":     false,
		"lastActive":         "2024-02-28T08:00:00.000+00:00",
		"type":               "eperson",
		"metadata": metadataDoc(map[string][]string{
			"eperson.firstname": {e.FirstName},
			"eperson.lastname":  {e.LastName},
		}),
		"_links": map[string]any{"self": link(self)},
	}
}

func itemDoc(api string, it Item) map[string]any {
	self := fmt.Sprintf("%s/core/items/%s", api, it.UUID)
	name := ""
	if t := it.Metadata["dc.title"]; len(t) > 0 {
		name = t[0]
	}
	doc := map[string]any{
		"id":           it.UUID,
		"uuid":         it.UUID,
		"name":         name,
		"handle":       nil,
		"inArchive":    it.EntityType != "",
		"discoverable": true,
		"withdrawn":    false,
		"lastModified": "2024-03-01T10:20:30.000+00:00",
		"type":         "item",
		"metadata":     metadataDoc(it.Metadata),
		"_links":       map[string]any{"self": link(self)},
	}
	if it.EntityType != "" {
		doc["entityType"] = it.EntityType
	}
	return doc
}
