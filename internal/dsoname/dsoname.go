// Package dsoname derives display names for repository objects.
package dsoname

import (
	"strings"

	"github.com/dspace-go/dsfront/internal/data"
)

// UntitledKey is the translation key used when an object has no name.
const UntitledKey = "dso.name.untitled"

// Object is anything with metadata and a resource type.
type Object interface {
	FirstMetadataValue(key string) string
	ObjectType() string
}

// Translator renders a translation key.
type Translator interface {
	Instant(key string, params map[string]string) string
}

// Service picks a name per entity type: people by family and given name,
// epersons by last and first name or email, everything else by title.
type Service struct {
	tr Translator
}

func NewService(tr Translator) *Service {
	return &Service{tr: tr}
}

// GetName returns the display name of obj.
func (s *Service) GetName(obj Object) string {
	if obj == nil {
		return ""
	}
	var name string
	switch v := obj.(type) {
	case *data.EPerson:
		if v == nil {
			return ""
		}
		name = joinName(v.FirstMetadataValue("eperson.lastname"), v.FirstMetadataValue("eperson.firstname"))
		if name == "" {
			name = v.Email
		}
	case *data.Item:
		if v == nil {
			return ""
		}
		switch v.EntityType {
		case "Person":
			name = joinName(v.FirstMetadataValue("person.familyName"), v.FirstMetadataValue("person.givenName"))
		case "OrgUnit":
			name = v.FirstMetadataValue("organization.legalName")
		}
	}
	if name == "" {
		name = obj.FirstMetadataValue("dc.title")
	}
	if name == "" {
		return s.untitled()
	}
	return name
}

func (s *Service) untitled() string {
	if s.tr == nil {
		return "(Untitled)"
	}
	return s.tr.Instant(UntitledKey, nil)
}

func joinName(family, given string) string {
	family, given = strings.TrimSpace(family), strings.TrimSpace(given)
	switch {
	case family != "" && given != "":
		return family + ", " + given
	default:
		return family + given
	}
}
