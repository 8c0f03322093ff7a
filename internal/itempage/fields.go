// Package itempage renders the metadata fields of entity item pages.
package itempage

import (
	"embed"
	"fmt"
	"html/template"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/dspace-go/dsfront/internal/data"
)

// EntityJournalVolume is the entity type of journal volumes.
const EntityJournalVolume = "JournalVolume"

// DefaultTruncateLimit bounds long field values.
const DefaultTruncateLimit = 300

//go:embed templates/*.html
var templateFS embed.FS

// FieldDef is one metadata field on an entity page.
type FieldDef struct {
	Key      string
	Label    string
	Truncate bool
}

// Fields per entity type.
var entityFields = map[string][]FieldDef{
	EntityJournalVolume: {
		{Key: "journalvolume.identifier.volume", Label: "journalvolume.page.volume"},
		{Key: "journalvolume.issuedate", Label: "journalvolume.page.issuedate"},
		{Key: "journalvolume.identifier.description", Label: "journalvolume.page.description", Truncate: true},
	},
}

// FieldDefs returns the fields shown for entityType.
func FieldDefs(entityType string) ([]FieldDef, bool) {
	f, ok := entityFields[entityType]
	return f, ok
}

// Field is a resolved field ready to render.
type Field struct {
	Key       string
	Label     string
	Values    []string
	Truncated bool
}

// Translator renders translation keys.
type Translator interface {
	Instant(key string, params map[string]string) string
}

// Renderer renders entity pages.
type Renderer struct {
	tr    Translator
	limit int
	tmpl  *template.Template
}

func NewRenderer(tr Translator, limit int) (*Renderer, error) {
	if limit <= 0 {
		limit = DefaultTruncateLimit
	}
	r := &Renderer{tr: tr, limit: limit}
	tmpl, err := template.New("").Funcs(template.FuncMap{
		"t": func(key string) string { return r.tr.Instant(key, nil) },
	}).ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse item page templates: %w", err)
	}
	r.tmpl = tmpl
	return r, nil
}

// Fields resolves the field values of item. Fields without values are
// skipped.
func (r *Renderer) Fields(item *data.Item) []Field {
	if item == nil {
		return nil
	}
	defs, _ := FieldDefs(item.EntityType)
	out := make([]Field, 0, len(defs))
	for _, d := range defs {
		values := item.Metadata.All(d.Key)
		if len(values) == 0 {
			continue
		}
		f := Field{Key: d.Key, Label: r.tr.Instant(d.Label, nil)}
		for _, v := range values {
			if d.Truncate {
				t := Truncate(v, r.limit)
				f.Truncated = f.Truncated || t != v
				v = t
			}
			f.Values = append(f.Values, v)
		}
		out = append(out, f)
	}
	return out
}

type pageData struct {
	Title       string
	TitlePrefix string
	EntityType  string
	UUID        string
	Fields      []Field
}

// Render writes the entity page of item.
func (r *Renderer) Render(w io.Writer, item *data.Item) error {
	if item == nil {
		return fmt.Errorf("render item page: nil item")
	}
	prefix := ""
	if item.EntityType == EntityJournalVolume {
		prefix = r.tr.Instant("journalvolume.page.titleprefix", nil)
	}
	return r.tmpl.ExecuteTemplate(w, "entity.html", pageData{
		Title:       item.FirstMetadataValue("dc.title"),
		TitlePrefix: prefix,
		EntityType:  item.EntityType,
		UUID:        item.UUID,
		Fields:      r.Fields(item),
	})
}

// Truncate shortens s to at most limit characters, cutting at the last word
// boundary and appending an ellipsis.
func Truncate(s string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)[:limit]
	// Only break at a word boundary in the back half.
	for i := len(runes) - 1; i > limit/2; i-- {
		if strings.ContainsRune(" \t\n", runes[i]) {
			runes = runes[:i]
			break
		}
	}
	return strings.TrimRight(string(runes), " \t\n.,;:") + "..."
}
