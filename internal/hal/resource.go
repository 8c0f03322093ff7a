// Package hal parses HAL+JSON resources returned by the REST backend and
// resolves endpoints from the root resource's links.
package hal

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/mitchellh/mapstructure"
)

var ErrNotEmbedded = errors.New("resource not embedded")

// Link is one HAL link.
type Link struct {
	Href      string `json:"href" mapstructure:"href"`
	Templated bool   `json:"templated,omitempty" mapstructure:"templated"`
	Name      string `json:"name,omitempty" mapstructure:"name"`
}

// Resource is a parsed HAL document. Attributes holds every property that is
// neither _links nor _embedded.
type Resource struct {
	Links      map[string][]Link
	Embedded   map[string]any
	Attributes map[string]any
}

// Parse decodes a HAL+JSON body.
func Parse(body []byte) (*Resource, error) {
	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("parse hal document: %w", err)
	}
	return FromMap(raw)
}

// FromMap builds a Resource from an already decoded JSON object.
func FromMap(raw map[string]any) (*Resource, error) {
	r := &Resource{
		Links:      map[string][]Link{},
		Embedded:   map[string]any{},
		Attributes: map[string]any{},
	}
	for k, v := range raw {
		switch k {
		case "_links":
			links, ok := v.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("_links is %T, want object", v)
			}
			for name, lv := range links {
				parsed, err := decodeLinks(lv)
				if err != nil {
					return nil, fmt.Errorf("link %q: %w", name, err)
				}
				r.Links[name] = parsed
			}
		case "_embedded":
			emb, ok := v.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("_embedded is %T, want object", v)
			}
			r.Embedded = emb
		default:
			r.Attributes[k] = v
		}
	}
	return r, nil
}

// HAL allows a link relation to be a single object or an array of them.
func decodeLinks(v any) ([]Link, error) {
	switch t := v.(type) {
	case []any:
		out := make([]Link, 0, len(t))
		for _, item := range t {
			var l Link
			if err := mapstructure.Decode(item, &l); err != nil {
				return nil, err
			}
			out = append(out, l)
		}
		return out, nil
	default:
		var l Link
		if err := mapstructure.Decode(t, &l); err != nil {
			return nil, err
		}
		return []Link{l}, nil
	}
}

// Href returns the first href of the named link relation.
func (r *Resource) Href(name string) (string, bool) {
	ls := r.Links[name]
	if len(ls) == 0 || ls[0].Href == "" {
		return "", false
	}
	return ls[0].Href, true
}

// EmbeddedResource returns the single embedded resource under name.
func (r *Resource) EmbeddedResource(name string) (*Resource, error) {
	v, ok := r.Embedded[name]
	if !ok || v == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotEmbedded, name)
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("embedded %q is %T, want object", name, v)
	}
	return FromMap(m)
}

// EmbeddedList returns the embedded resources under name. A missing key
// yields an empty list.
func (r *Resource) EmbeddedList(name string) ([]*Resource, error) {
	v, ok := r.Embedded[name]
	if !ok || v == nil {
		return nil, nil
	}
	items, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("embedded %q is %T, want array", name, v)
	}
	out := make([]*Resource, 0, len(items))
	for i, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("embedded %q[%d] is %T, want object", name, i, item)
		}
		res, err := FromMap(m)
		if err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, nil
}

// Decode maps the attributes onto out using json struct tags. RFC 3339
// strings decode into time.Time fields and numbers into strings where needed.
func (r *Resource) Decode(out any) error {
	return DecodeMap(r.Attributes, out)
}

// DecodeMap decodes an arbitrary JSON object onto out the way Decode does.
func DecodeMap(in map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		WeaklyTypedInput: true,
		Squash:           true,
		Result:           out,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			timeHook,
			mapstructure.StringToTimeDurationHookFunc(),
		),
	})
	if err != nil {
		return fmt.Errorf("build decoder: %w", err)
	}
	if err := dec.Decode(in); err != nil {
		return fmt.Errorf("decode attributes: %w", err)
	}
	return nil
}

// timeHook accepts the timestamp layouts the backend emits.
func timeHook(from reflect.Type, to reflect.Type, data any) (any, error) {
	if to != reflect.TypeOf(time.Time{}) || from.Kind() != reflect.String {
		return data, nil
	}
	s := data.(string)
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.000-0700", "2006-01-02T15:04:05.000+00:00", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return nil, fmt.Errorf("unrecognized time %q", s)
}
