// Package i18n loads translation catalogs and renders keys.
package i18n

import (
	"embed"
	"fmt"
	"path"
	"regexp"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// DefaultLanguage is used when a requested language has no catalog.
const DefaultLanguage = "en"

//go:embed catalogs/*.yaml
var catalogFS embed.FS

var placeholder = regexp.MustCompile(`{{\s*([A-Za-z0-9_.-]+)\s*}}`)

// Catalogs holds every loaded language.
type Catalogs struct {
	mu    sync.RWMutex
	langs map[string]map[string]string
}

// Load parses the embedded catalogs.
func Load() (*Catalogs, error) {
	entries, err := catalogFS.ReadDir("catalogs")
	if err != nil {
		return nil, fmt.Errorf("read catalogs: %w", err)
	}
	c := &Catalogs{langs: map[string]map[string]string{}}
	for _, e := range entries {
		if e.IsDir() || path.Ext(e.Name()) != ".yaml" {
			continue
		}
		raw, err := catalogFS.ReadFile("catalogs/" + e.Name())
		if err != nil {
			return nil, fmt.Errorf("read catalog %s: %w", e.Name(), err)
		}
		if err := c.Add(strings.TrimSuffix(e.Name(), ".yaml"), raw); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// MustLoad is Load for package initialisation and tests.
func MustLoad() *Catalogs {
	c, err := Load()
	if err != nil {
		panic(err)
	}
	return c
}

// Add merges a YAML catalog for lang, overriding existing keys.
func (c *Catalogs) Add(lang string, raw []byte) error {
	var msgs map[string]string
	if err := yaml.Unmarshal(raw, &msgs); err != nil {
		return fmt.Errorf("parse catalog %s: %w", lang, err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.langs[lang] == nil {
		c.langs[lang] = map[string]string{}
	}
	for k, v := range msgs {
		c.langs[lang][k] = v
	}
	return nil
}

// Languages returns the loaded language codes in order.
func (c *Catalogs) Languages() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.langs))
	for l := range c.langs {
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}

// Translator renders keys in one language, falling back to DefaultLanguage
// and then to the key itself.
func (c *Catalogs) Translator(lang string) *Translator {
	lang = strings.ToLower(strings.TrimSpace(lang))
	if i := strings.IndexAny(lang, "-_"); i > 0 {
		lang = lang[:i]
	}
	return &Translator{catalogs: c, lang: lang}
}

// Translator is bound to a language.
type Translator struct {
	catalogs *Catalogs
	lang     string
}

// Lang is the language this translator renders.
func (t *Translator) Lang() string { return t.lang }

// Instant returns the translation of key with {{ name }} placeholders
// replaced from params.
func (t *Translator) Instant(key string, params map[string]string) string {
	msg, ok := t.lookup(key)
	if !ok {
		return key
	}
	if len(params) == 0 {
		return msg
	}
	return placeholder.ReplaceAllStringFunc(msg, func(m string) string {
		name := placeholder.FindStringSubmatch(m)[1]
		if v, ok := params[name]; ok {
			return v
		}
		return m
	})
}

func (t *Translator) lookup(key string) (string, bool) {
	t.catalogs.mu.RLock()
	defer t.catalogs.mu.RUnlock()
	for _, lang := range []string{t.lang, DefaultLanguage} {
		if msg, ok := t.catalogs.langs[lang][key]; ok {
			return msg, true
		}
	}
	return "", false
}
