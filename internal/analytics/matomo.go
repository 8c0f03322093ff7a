// Package analytics bootstraps Matomo statistics on rendered pages.
package analytics

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html/template"
	"net/http"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/dspace-go/dsfront/internal/config"
	"github.com/dspace-go/dsfront/internal/logging"
)

// Matomo renders the tracker bootstrap for one site.
type Matomo struct {
	cfg    config.MatomoConfig
	logger logging.Logger
}

func NewMatomo(cfg config.MatomoConfig, logger logging.Logger) *Matomo {
	if logger == nil {
		logger = logging.Nop{}
	}
	return &Matomo{cfg: cfg, logger: logger.With(logging.Component("Matomo"))}
}

// Enabled reports whether a tracker host is configured.
func (m *Matomo) Enabled() bool {
	return m.cfg.Enabled()
}

// TrackerURL is the host with matomo.php appended.
func (m *Matomo) TrackerURL() string {
	return m.cfg.HostURL + "matomo.php"
}

// ScriptSrc is the host with matomo.js appended.
func (m *Matomo) ScriptSrc() string {
	return m.cfg.HostURL + "matomo.js"
}

// Commands is the tracker command queue, pushed before the script loads.
func (m *Matomo) Commands() [][]any {
	return [][]any{
		{"setTrackerUrl", m.TrackerURL()},
		{"setSiteId", m.cfg.SiteID},
		{"enableLinkTracking"},
	}
}

// Snippet returns the inline queue setup and the async, deferred script tag.
func (m *Matomo) Snippet() (string, error) {
	var b strings.Builder
	b.WriteString("<script>window._paq = window._paq || [];")
	for _, cmd := range m.Commands() {
		raw, err := json.Marshal(cmd)
		if err != nil {
			return "", fmt.Errorf("encode tracker command: %w", err)
		}
		b.WriteString("window._paq.push(")
		b.Write(raw)
		b.WriteString(");")
	}
	b.WriteString("</script>")
	b.WriteString(`<script type="text/javascript" async="" defer="" src="`)
	b.WriteString(template.HTMLEscapeString(m.ScriptSrc()))
	b.WriteString(`"></script>`)
	return b.String(), nil
}

// Inject adds the tracker to the head of page. Pages that already load the
// tracker script, or any page while tracking is disabled, come back unchanged.
func (m *Matomo) Inject(page []byte) ([]byte, error) {
	if !m.Enabled() {
		return page, nil
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		return nil, fmt.Errorf("parse page: %w", err)
	}
	src := m.ScriptSrc()
	already := false
	doc.Find("script[src]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if v, _ := s.Attr("src"); v == src {
			already = true
		}
		return !already
	})
	if already {
		return page, nil
	}

	snippet, err := m.Snippet()
	if err != nil {
		return nil, err
	}
	doc.Find("head").First().AppendHtml(snippet)
	out, err := goquery.OuterHtml(doc.Selection)
	if err != nil {
		return nil, fmt.Errorf("render page: %w", err)
	}
	return []byte(out), nil
}

// Middleware injects the tracker into every text/html response of next.
func (m *Matomo) Middleware(next http.Handler) http.Handler {
	if !m.Enabled() {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &bufferedWriter{header: http.Header{}, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		body := rec.buf.Bytes()
		if strings.HasPrefix(rec.header.Get("Content-Type"), "text/html") {
			injected, err := m.Inject(body)
			if err != nil {
				m.logger.Warn("tracker injection failed", logging.Field{Key: "path", Value: r.URL.Path}, logging.Err(err))
			} else {
				body = injected
			}
		}
		for k, vs := range rec.header {
			w.Header()[k] = vs
		}
		w.Header().Set("Content-Length", strconv.Itoa(len(body)))
		w.WriteHeader(rec.status)
		_, _ = w.Write(body)
	})
}

type bufferedWriter struct {
	header      http.Header
	status      int
	wroteHeader bool
	buf         bytes.Buffer
}

func (b *bufferedWriter) Header() http.Header { return b.header }

func (b *bufferedWriter) WriteHeader(status int) {
	if b.wroteHeader {
		return
	}
	b.status = status
	b.wroteHeader = true
}

func (b *bufferedWriter) Write(p []byte) (int, error) {
	b.wroteHeader = true
	return b.buf.Write(p)
}
