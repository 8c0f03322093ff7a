package server

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	httpSwagger "github.com/swaggo/http-swagger/v2"

	"github.com/dspace-go/dsfront/internal/app"
	"github.com/dspace-go/dsfront/internal/changesubmitter"
	"github.com/dspace-go/dsfront/internal/config"
	"github.com/dspace-go/dsfront/internal/logging"
	"github.com/dspace-go/dsfront/internal/notifications"
	"github.com/dspace-go/dsfront/internal/remotedata"
	"github.com/dspace-go/dsfront/internal/request"
	_ "github.com/dspace-go/dsfront/internal/server/docs" // swagger spec
)

//go:embed templates/*.html
var templateFS embed.FS

// Server serves the rendered pages, the job API and their WebSocket streams.
type Server struct {
	cfg      Config
	app      *app.Application
	router   chi.Router
	upgrader websocket.Upgrader
	logger   logging.Logger
	pages    *template.Template
}

// NewServer builds the router around an already wired application.
func NewServer(cfg Config) (*Server, error) {
	if cfg.App == nil {
		return nil, errors.New("server needs an application")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewStdoutLogger("Server")
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = cfg.App.Env.UI.Addr()
	}

	// "t" is rebound per request to the caller's language.
	pages, err := template.New("").Funcs(template.FuncMap{
		"t": func(key string) string { return key },
	}).ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse page templates: %w", err)
	}

	s := &Server{
		cfg:    cfg,
		app:    cfg.App,
		router: chi.NewRouter(),
		logger: logger.With(logging.Component("Server")),
		pages:  pages,
	}
	s.upgrader.CheckOrigin = s.checkOrigin
	s.routes()
	return s, nil
}

// App returns the application the server runs against.
func (s *Server) App() *app.Application {
	return s.app
}

func (s *Server) routes() {
	r := s.router

	r.Use(s.corsMiddleware)

	// CORS preflight
	r.Options("/change-submitter", s.optionsHandler("GET, POST"))
	r.Options("/jobs", s.optionsHandler("GET"))
	r.Options("/jobs/change-submitter", s.optionsHandler("POST"))
	r.Options("/jobs/{jobID}", s.optionsHandler("GET, DELETE"))
	r.Options("/notifications", s.optionsHandler("GET"))
	r.Options("/notifications/{id}", s.optionsHandler("DELETE"))

	r.Get(config.AppConfigPath, s.handleAppConfig)

	// Rendered pages carry the tracker.
	r.Group(func(r chi.Router) {
		r.Use(s.app.Matomo.Middleware)
		r.Get("/change-submitter", s.handleChangeSubmitterPage)
		r.Get("/entities/journalvolume/{id}", s.handleJournalVolumePage)
	})
	r.Post("/change-submitter", s.handleChangeSubmitter)

	// Request cache inspection
	// Request ids contain a slash, so the id is the rest of the path.
	r.Get("/requests/*", s.handleGetRequest)
	r.Get("/ws/requests/*", s.handleRequestWS)

	// Jobs over REST
	r.Post("/jobs/change-submitter", s.handleStartChangeSubmitterJob)
	r.Get("/jobs", s.handleListJobs)
	r.Get("/jobs/{jobID}", s.handleGetJob)
	r.Delete("/jobs/{jobID}", s.handleCancelJob)

	// WebSocket for job progress
	r.Get("/ws/jobs/change-submitter", s.handleChangeSubmitterWS)

	r.Get("/notifications", s.handleListNotifications)
	r.Delete("/notifications/{id}", s.handleRemoveNotification)

	r.Get("/swagger/*", httpSwagger.Handler(httpSwagger.URL("/swagger/doc.json")))
}

// checkOrigin admits websocket clients that send no Origin, pages served by
// this host and pages served from the configured UI base URL.
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return false
	}
	if strings.EqualFold(u.Host, r.Host) {
		return true
	}
	ui, err := url.Parse(s.app.Env.UI.BaseURL())
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Scheme, ui.Scheme) && strings.EqualFold(u.Host, ui.Host)
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "86400")

		next.ServeHTTP(w, r)
	})
}

func (s *Server) optionsHandler(methods string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Methods", methods)
		w.WriteHeader(http.StatusNoContent)
	}
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	fields := []logging.Field{
		{Key: "method", Value: r.Method},
		{Key: "path", Value: r.URL.Path},
	}

	if q := r.URL.Query(); len(q) > 0 {
		fields = append(fields, logging.Field{Key: "query", Value: q})
	}

	if r.Body != nil && (r.Method == http.MethodPost || r.Method == http.MethodPut || r.Method == http.MethodPatch) {
		if bodyBytes, err := io.ReadAll(r.Body); err == nil {
			fields = append(fields, logging.Field{Key: "body", Value: string(bodyBytes)})
			r.Body = io.NopCloser(bytes.NewReader(bodyBytes))
		}
	}

	s.logger.Info("http_request", fields...)

	s.router.ServeHTTP(w, r)
}

// HTTPServer creates an *http.Server ready to ListenAndServe.
func (s *Server) HTTPServer() *http.Server {
	return &http.Server{
		Addr:         s.cfg.ListenAddr,
		Handler:      s,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // allow streaming
	}
}

// --- JSON helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

// requestLang picks the page language from ?lang= or the first
// Accept-Language tag.
func requestLang(r *http.Request) string {
	if l := r.URL.Query().Get("lang"); l != "" {
		return l
	}
	al := r.Header.Get("Accept-Language")
	if i := strings.IndexAny(al, ",;"); i >= 0 {
		al = al[:i]
	}
	return strings.TrimSpace(al)
}

func wantsHTML(r *http.Request) bool {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		return false
	}
	return strings.Contains(r.Header.Get("Accept"), "text/html")
}

// statusFor maps a change submitter outcome to a response status.
func statusFor(err error) int {
	var failed *remotedata.FailedError
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, changesubmitter.ErrNoWorkspaceItem):
		return http.StatusNotFound
	case errors.As(err, &failed):
		if failed.StatusCode >= 400 && failed.StatusCode < 500 {
			return failed.StatusCode
		}
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// teeNotifier records notifications for the response and on the
// application wide list.
type teeNotifier struct {
	local  *notifications.Service
	global *notifications.Service
}

func (t teeNotifier) Success(title, content string) notifications.Notification {
	t.global.Success(title, content)
	return t.local.Success(title, content)
}

func (t teeNotifier) Error(title, content string) notifications.Notification {
	t.global.Error(title, content)
	return t.local.Error(title, content)
}

// --- Pages ---

type changeSubmitterPageData struct {
	Lang          string
	Action        string
	View          changesubmitter.View
	Notifications []notifications.Notification
}

func (s *Server) renderChangeSubmitter(w http.ResponseWriter, status int, lang string, page *changesubmitter.Page, notes []notifications.Notification) {
	tr := s.app.Translator(lang)
	tmpl, err := s.pages.Clone()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	tmpl.Funcs(template.FuncMap{
		"t": func(key string) string { return tr.Instant(key, nil) },
	})

	q := url.Values{
		changesubmitter.ParamShareToken:      {page.ShareToken()},
		changesubmitter.ParamWorkspaceItemID: {page.WorkspaceItemID()},
	}
	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "change_submitter.html", changeSubmitterPageData{
		Lang:          tr.Lang(),
		Action:        "/change-submitter?" + q.Encode(),
		View:          page.Snapshot(),
		Notifications: notes,
	}); err != nil {
		s.logger.Warn("rendering change submitter page", logging.Err(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

// handleChangeSubmitterPage godoc
// @Summary Change submitter page
// @Description Renders the workspace item behind a share link with its current submitter.
// @Tags pages
// @Produce html
// @Param share_token query string true "Share token"
// @Param workspaceitemid query string true "Workspace item id"
// @Success 200 {string} string "HTML page"
// @Failure 404 {string} string "HTML page without a submission"
// @Router /change-submitter [get]
func (s *Server) handleChangeSubmitterPage(w http.ResponseWriter, r *http.Request) {
	lang := requestLang(r)
	page := s.app.ChangeSubmitterPage(r.URL.Query(), lang, nil)
	err := page.Init(r.Context())
	if err != nil {
		s.logger.Warn("loading change submitter page", logging.Field{Key: "share_token", Value: page.ShareToken()}, logging.Err(err))
	}
	s.renderChangeSubmitter(w, statusFor(err), lang, page, nil)
}

// handleChangeSubmitter godoc
// @Summary Change submitter
// @Description Makes the current user the submitter of the workspace item behind a share link.
// @Tags pages
// @Accept json
// @Produce json
// @Param body body ChangeSubmitterRequest false "Share link, when not given as query parameters"
// @Success 200 {object} ChangeSubmitterResponse
// @Failure 403 {object} ChangeSubmitterResponse
// @Failure 404 {object} ChangeSubmitterResponse
// @Failure 502 {object} ChangeSubmitterResponse
// @Router /change-submitter [post]
func (s *Server) handleChangeSubmitter(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	body := ChangeSubmitterRequest{
		ShareToken:      q.Get(changesubmitter.ParamShareToken),
		WorkspaceItemID: q.Get(changesubmitter.ParamWorkspaceItemID),
		Lang:            requestLang(r),
	}
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		var in ChangeSubmitterRequest
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			s.logger.Warn("decoding change submitter body", logging.Err(err))
			writeError(w, http.StatusBadRequest, "invalid JSON")
			return
		}
		if in.ShareToken != "" {
			body.ShareToken = in.ShareToken
		}
		if in.WorkspaceItemID != "" {
			body.WorkspaceItemID = in.WorkspaceItemID
		}
		if in.Lang != "" {
			body.Lang = in.Lang
		}
	}
	if body.ShareToken == "" {
		writeError(w, http.StatusBadRequest, "missing share_token")
		return
	}

	local := notifications.NewService(0, s.logger)
	page := s.app.ChangeSubmitterPage(url.Values{
		changesubmitter.ParamShareToken:      {body.ShareToken},
		changesubmitter.ParamWorkspaceItemID: {body.WorkspaceItemID},
	}, body.Lang, teeNotifier{local: local, global: s.app.Notifications})

	err := page.Init(r.Context())
	if err == nil {
		err = page.ChangeSubmitter(r.Context())
	}
	status := statusFor(err)
	if err != nil {
		s.logger.Warn("changing submitter", logging.Field{Key: "share_token", Value: body.ShareToken}, logging.Err(err))
	} else {
		s.logger.Info("changed submitter", logging.Field{Key: "workspaceitem", Value: body.WorkspaceItemID})
	}

	if wantsHTML(r) {
		s.renderChangeSubmitter(w, status, body.Lang, page, local.List())
		return
	}
	resp := ChangeSubmitterResponse{Page: page.Snapshot(), Notifications: local.List()}
	if err != nil {
		resp.Error = err.Error()
	}
	writeJSON(w, status, resp)
}

// handleJournalVolumePage godoc
// @Summary Journal volume page
// @Description Renders the metadata fields of a journal volume entity.
// @Tags pages
// @Produce html
// @Param id path string true "Item uuid"
// @Success 200 {string} string "HTML page"
// @Failure 404 {object} ErrorResponse
// @Router /entities/journalvolume/{id} [get]
func (s *Server) handleJournalVolumePage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	lang := requestLang(r)

	item, err := s.app.FindItem(r.Context(), id)
	if err != nil {
		s.logger.Warn("loading journal volume", logging.Field{Key: "id", Value: id}, logging.Err(err))
		msg := s.app.Translator(lang).Instant("item.page.not-found", map[string]string{"id": id})
		status := statusFor(err)
		if status == http.StatusBadGateway || status == http.StatusOK {
			status = http.StatusNotFound
		}
		writeError(w, status, msg)
		return
	}

	renderer, err := s.app.ItemPageRenderer(lang)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	var buf bytes.Buffer
	if err := renderer.Render(&buf, item); err != nil {
		s.logger.Warn("rendering journal volume", logging.Field{Key: "id", Value: id}, logging.Err(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// handleAppConfig godoc
// @Summary Runtime configuration
// @Description The configuration the browser bundle extends its environment with.
// @Tags config
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /assets/config.json [get]
func (s *Server) handleAppConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, config.AppConfigFor(*s.app.Env))
}

// --- Request cache ---

// handleGetRequest godoc
// @Summary Request entry
// @Tags requests
// @Produce json
// @Param id path string true "Request uuid"
// @Success 200 {object} RequestResponse
// @Failure 404 {object} ErrorResponse
// @Router /requests/{id} [get]
func (s *Server) handleGetRequest(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "*")
	e, ok := s.app.Requests.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "request not found")
		return
	}
	resp := RequestResponse{Entry: e}
	if s.app.Cache != nil && e.Request != nil {
		st, err := s.app.Cache.Stat(r.Context(), e.Request.Href)
		switch {
		case err == nil:
			resp.Cache = st
		case !errors.Is(err, request.ErrCacheMiss):
			s.logger.Warn("reading cache stats", logging.Field{Key: "href", Value: e.Request.Href}, logging.Err(err))
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRequestWS(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "*")
	if _, ok := s.app.Requests.Get(id); !ok {
		writeError(w, http.StatusNotFound, "request not found")
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("upgrading to websocket", logging.Err(err))
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	for e := range s.app.Requests.Observe(id).Subscribe(ctx) {
		if err := conn.WriteJSON(e); err != nil {
			return
		}
		if e.State.Terminal() {
			return
		}
	}
}

// --- Jobs ---

// handleStartChangeSubmitterJob godoc
// @Summary Start a change submitter job
// @Tags jobs
// @Accept json
// @Produce json
// @Param body body ChangeSubmitterRequest true "Share link"
// @Success 202 {object} app.Job
// @Failure 400 {object} ErrorResponse
// @Router /jobs/change-submitter [post]
func (s *Server) handleStartChangeSubmitterJob(w http.ResponseWriter, r *http.Request) {
	var body ChangeSubmitterRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if body.ShareToken == "" {
		writeError(w, http.StatusBadRequest, "missing share_token")
		return
	}
	if body.Lang == "" {
		body.Lang = requestLang(r)
	}

	job, err := s.app.Orch.StartChangeSubmitterJob(context.Background(), body.ShareToken, body.WorkspaceItemID, body.Lang)
	if err != nil {
		s.logger.Warn("starting change submitter job", logging.Err(err))
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	s.logger.Info("started change submitter job", logging.Field{Key: "job_id", Value: job.ID})
	snap, _ := s.app.Orch.JobSnapshot(job.ID)
	writeJSON(w, http.StatusAccepted, snap)
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	job, ok := s.app.Orch.JobSnapshot(jobID)
	if !ok {
		s.logger.Warn("getting job: not found", logging.Field{Key: "job_id", Value: jobID})
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	s.app.Orch.CancelJob(jobID)
	s.logger.Info("canceled job", logging.Field{Key: "job_id", Value: jobID})
	writeJSON(w, http.StatusNoContent, nil)
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	jobs := s.app.Orch.ListJobs()
	writeJSON(w, http.StatusOK, jobs)
}

func (s *Server) handleChangeSubmitterWS(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	token := q.Get(changesubmitter.ParamShareToken)
	id := q.Get(changesubmitter.ParamWorkspaceItemID)

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("upgrading to websocket", logging.Err(err))
		return
	}
	defer conn.Close()

	job, err := s.app.Orch.StartChangeSubmitterJob(r.Context(), token, id, requestLang(r))
	if err != nil {
		s.logger.Warn("starting change submitter job", logging.Err(err))
		_ = conn.WriteJSON(ErrorResponse{Error: err.Error()})
		return
	}

	s.logger.Info("started change submitter job", logging.Field{Key: "job_id", Value: job.ID})
	snap, _ := s.app.Orch.JobSnapshot(job.ID)
	_ = conn.WriteJSON(snap)

	for ev := range job.Events {
		if err := conn.WriteJSON(ev); err != nil {
			// Assume client disconnected; cancel job
			s.app.Orch.CancelJob(job.ID)
			return
		}
	}
	final, _ := s.app.Orch.JobSnapshot(job.ID)
	_ = conn.WriteJSON(final)
}

// --- Notifications ---

func (s *Server) handleListNotifications(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.app.Notifications.List())
}

func (s *Server) handleRemoveNotification(w http.ResponseWriter, r *http.Request) {
	if !s.app.Notifications.Remove(chi.URLParam(r, "id")) {
		writeError(w, http.StatusNotFound, "notification not found")
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}
