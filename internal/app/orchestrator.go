package app

import (
	"context"
	"errors"
	"net/url"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dspace-go/dsfront/internal/changesubmitter"
	"github.com/dspace-go/dsfront/internal/logging"
	"github.com/dspace-go/dsfront/internal/notifications"
)

// ErrOrchestratorClosed is returned when a job is started after Close.
var ErrOrchestratorClosed = errors.New("orchestrator is closed")

type JobEventType string

const (
	JobEventStatus   JobEventType = "status"
	JobEventProgress JobEventType = "progress"
	JobEventResult   JobEventType = "result"
)

type JobEvent struct {
	JobID string       `json:"job_id"`
	Type  JobEventType `json:"type"`

	// For status changes
	Status JobStatus `json:"status,omitempty"`
	Error  string    `json:"error,omitempty"`

	// For progress: the step reached and the page spinner.
	Step    string `json:"step,omitempty"`
	Spinner bool   `json:"spinner,omitempty"`
}

type JobStatus string

const (
	JobPending  JobStatus = "pending"
	JobRunning  JobStatus = "running"
	JobDone     JobStatus = "done"
	JobFailed   JobStatus = "failed"
	JobCanceled JobStatus = "canceled"
)

// JobTypeChangeSubmitter loads a share link and takes over its submission.
const JobTypeChangeSubmitter = "change-submitter"

// Steps reported by progress events.
const (
	StepLoad   = "load"
	StepChange = "change"
)

type Job struct {
	ID              string        `json:"id"`
	Type            string        `json:"type"`
	ShareToken      string        `json:"share_token"`
	WorkspaceItemID string        `json:"workspace_item_id"`
	Status          JobStatus     `json:"status"`
	Error           string        `json:"error,omitempty"`
	StartedAt       time.Time     `json:"started_at"`
	EndedAt         time.Time     `json:"ended_at"`
	Events          chan JobEvent `json:"-"`

	Result        *changesubmitter.View          `json:"result,omitempty"`
	Notifications []notifications.Notification `json:"notifications,omitempty"`

	finished bool
}

// Orchestrator runs change submitter jobs in the background and tracks
// their status.
type Orchestrator struct {
	app    *Application
	logger logging.Logger

	jobsMu     sync.Mutex
	jobs       map[string]*Job
	jobCancels map[string]context.CancelFunc
	closed     bool
	wg         sync.WaitGroup
}

func NewOrchestrator(a *Application, logger logging.Logger) *Orchestrator {
	if logger == nil {
		logger = logging.Nop{}
	}
	return &Orchestrator{
		app:        a,
		logger:     logger.With(logging.Component("Orchestrator")),
		jobs:       make(map[string]*Job),
		jobCancels: make(map[string]context.CancelFunc),
	}
}

func (o *Orchestrator) newJob(token, workspaceItemID string) *Job {
	return &Job{
		ID:              uuid.New().String(),
		Type:            JobTypeChangeSubmitter,
		ShareToken:      token,
		WorkspaceItemID: workspaceItemID,
		Status:          JobPending,
		StartedAt:       time.Now().UTC(),
		Events:          make(chan JobEvent, 16),
	}
}

func (o *Orchestrator) emitJobEvent(jobID string, ev JobEvent) {
	o.jobsMu.Lock()
	defer o.jobsMu.Unlock()
	job, ok := o.jobs[jobID]
	if !ok || job == nil || job.Events == nil || job.finished {
		return
	}

	// Non-blocking send; drop if buffer is full.
	select {
	case job.Events <- ev:
	default:
	}
}

func (o *Orchestrator) setStatus(jobID string, status JobStatus, errMsg string) {
	o.jobsMu.Lock()
	if j, ok := o.jobs[jobID]; ok {
		j.Status = status
		j.Error = errMsg
	}
	o.jobsMu.Unlock()

	evType := JobEventStatus
	if status == JobDone {
		evType = JobEventResult
	}
	o.emitJobEvent(jobID, JobEvent{JobID: jobID, Type: evType, Status: status, Error: errMsg})
}

// StartChangeSubmitterJob loads the workspace item behind token and makes
// the current user its submitter. lang selects the notification language.
func (o *Orchestrator) StartChangeSubmitterJob(ctx context.Context, token, workspaceItemID, lang string) (*Job, error) {
	job := o.newJob(token, workspaceItemID)
	jobCtx, cancel := context.WithCancel(ctx)

	o.jobsMu.Lock()
	if o.closed {
		o.jobsMu.Unlock()
		cancel()
		return nil, ErrOrchestratorClosed
	}
	o.jobs[job.ID] = job
	o.jobCancels[job.ID] = cancel
	o.wg.Add(1)
	o.jobsMu.Unlock()

	o.emitJobEvent(job.ID, JobEvent{JobID: job.ID, Type: JobEventStatus, Status: JobPending})

	go func() {
		defer o.wg.Done()
		defer o.finishJob(job.ID)

		o.setStatus(job.ID, JobRunning, "")

		notes := notifications.NewService(0, o.logger)
		page := o.app.ChangeSubmitterPage(url.Values{
			changesubmitter.ParamShareToken:      {token},
			changesubmitter.ParamWorkspaceItemID: {workspaceItemID},
		}, lang, notes)
		go o.forwardSpinner(jobCtx, job.ID, page)

		err := o.runChangeSubmitter(jobCtx, job.ID, page)

		o.jobsMu.Lock()
		view := page.Snapshot()
		job.Result = &view
		job.Notifications = notes.List()
		o.jobsMu.Unlock()

		// A change that went through is done even if the job was canceled
		// while the page reloaded.
		switch {
		case err != nil && jobCtx.Err() != nil:
			o.setStatus(job.ID, JobCanceled, jobCtx.Err().Error())
		case err != nil:
			o.logger.Warn("change submitter job failed", logging.Field{Key: "job_id", Value: job.ID}, logging.Err(err))
			o.setStatus(job.ID, JobFailed, err.Error())
		default:
			o.setStatus(job.ID, JobDone, "")
		}
	}()

	return job, nil
}

func (o *Orchestrator) runChangeSubmitter(ctx context.Context, jobID string, page *changesubmitter.Page) error {
	o.emitJobEvent(jobID, JobEvent{JobID: jobID, Type: JobEventProgress, Step: StepLoad})
	if err := page.Init(ctx); err != nil {
		return err
	}
	o.emitJobEvent(jobID, JobEvent{JobID: jobID, Type: JobEventProgress, Step: StepChange})
	return page.ChangeSubmitter(ctx)
}

func (o *Orchestrator) forwardSpinner(ctx context.Context, jobID string, page *changesubmitter.Page) {
	for on := range page.Spinner.Subscribe(ctx) {
		o.emitJobEvent(jobID, JobEvent{JobID: jobID, Type: JobEventProgress, Step: StepChange, Spinner: on})
	}
}

// finishJob stamps the end time and closes the events channel so websocket
// loops terminate.
func (o *Orchestrator) finishJob(jobID string) {
	o.jobsMu.Lock()
	defer o.jobsMu.Unlock()
	if cancel, ok := o.jobCancels[jobID]; ok {
		cancel()
		delete(o.jobCancels, jobID)
	}
	j, ok := o.jobs[jobID]
	if !ok {
		return
	}
	j.EndedAt = time.Now().UTC()
	j.finished = true
	if j.Events != nil {
		close(j.Events)
	}
}

func (o *Orchestrator) CancelJob(jobID string) {
	o.jobsMu.Lock()
	cancel := o.jobCancels[jobID]
	o.jobsMu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (o *Orchestrator) GetJob(jobID string) *Job {
	o.jobsMu.Lock()
	defer o.jobsMu.Unlock()
	j, ok := o.jobs[jobID]
	if !ok {
		return nil
	}
	return j
}

// JobSnapshot returns a copy of the job safe to encode while it runs.
func (o *Orchestrator) JobSnapshot(jobID string) (Job, bool) {
	o.jobsMu.Lock()
	defer o.jobsMu.Unlock()
	j, ok := o.jobs[jobID]
	if !ok {
		return Job{}, false
	}
	cp := *j
	cp.Events = nil
	cp.Notifications = append([]notifications.Notification(nil), j.Notifications...)
	return cp, true
}

// ListJobs returns copies of all jobs, newest first.
func (o *Orchestrator) ListJobs() []Job {
	o.jobsMu.Lock()
	out := make([]Job, 0, len(o.jobs))
	for _, j := range o.jobs {
		cp := *j
		cp.Events = nil
		out = append(out, cp)
	}
	o.jobsMu.Unlock()
	sort.Slice(out, func(i, k int) bool { return out[i].StartedAt.After(out[k].StartedAt) })
	return out
}

// Shutdown cancels running jobs and waits for them until ctx is done.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.cancelAll()
	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close rejects new jobs, cancels running ones and waits for them. It is
// idempotent.
func (o *Orchestrator) Close() {
	o.cancelAll()
	o.wg.Wait()
}

func (o *Orchestrator) cancelAll() {
	o.jobsMu.Lock()
	o.closed = true
	cancels := make([]context.CancelFunc, 0, len(o.jobCancels))
	for _, c := range o.jobCancels {
		cancels = append(cancels, c)
	}
	o.jobsMu.Unlock()
	for _, c := range cancels {
		c()
	}
}
