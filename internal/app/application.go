package app

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/dspace-go/dsfront/internal/analytics"
	"github.com/dspace-go/dsfront/internal/changesubmitter"
	"github.com/dspace-go/dsfront/internal/config"
	"github.com/dspace-go/dsfront/internal/data"
	"github.com/dspace-go/dsfront/internal/dsoname"
	"github.com/dspace-go/dsfront/internal/hal"
	"github.com/dspace-go/dsfront/internal/i18n"
	"github.com/dspace-go/dsfront/internal/itempage"
	"github.com/dspace-go/dsfront/internal/logging"
	"github.com/dspace-go/dsfront/internal/notifications"
	"github.com/dspace-go/dsfront/internal/objectcache"
	"github.com/dspace-go/dsfront/internal/remotedata"
	"github.com/dspace-go/dsfront/internal/request"
	"github.com/dspace-go/dsfront/internal/webclient"
)

// Application is the global runtime state container. It owns the REST
// pipeline (web client, request cache, remote data builder, HAL endpoints)
// and the data services built on top of it. Pass Application into modules
// that need shared state rather than using package-level variables.
type Application struct {
	Env    *config.Environment
	Logger logging.Logger

	WebClient      webclient.WebClient
	Cache          *objectcache.SQLiteCache
	Requests       *request.Service
	RemoteData     *remotedata.BuildService
	Endpoints      *hal.EndpointService
	Items          *data.ItemDataService
	EPersons       *data.EPersonDataService
	WorkspaceItems *data.WorkspaceItemDataService
	Notifications  *notifications.Service
	Catalogs       *i18n.Catalogs
	Matomo         *analytics.Matomo
	Orch           *Orchestrator

	ownsWebClient bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	closeOnce sync.Once
}

// NewApplication wires the pipeline described by env. When wc is nil the
// client configured under webclient is constructed and closed with the
// application.
func NewApplication(env *config.Environment, wc webclient.WebClient, logger logging.Logger) (*Application, error) {
	if env == nil {
		return nil, errors.New("environment is nil")
	}
	if logger == nil {
		logger = logging.Nop{}
	}
	if err := env.Validate(); err != nil {
		return nil, err
	}

	a := &Application{Env: env, Logger: logger}
	a.ctx, a.cancel = context.WithCancel(context.Background())

	timeout, err := env.WebClientTimeout()
	if err != nil {
		return nil, err
	}
	if wc == nil {
		wc, err = webclient.NewWebClient(webclient.Config{
			Client:    webclient.Client(env.WebClient.Backend),
			Timeout:   timeout,
			HTTP2:     env.WebClient.HTTP2,
			UserAgent: env.WebClient.UserAgent,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("create web client: %w", err)
		}
		a.ownsWebClient = true
	}
	a.WebClient = wc

	// A nil *SQLiteCache must not reach the service as a non-nil interface.
	var cache request.ResponseCache
	if env.Cache.Path != "" {
		c, err := objectcache.Open(env.Cache.Path, logger)
		if err != nil {
			a.closeWebClient()
			return nil, fmt.Errorf("open response cache: %w", err)
		}
		a.Cache = c
		cache = c
	}

	a.Requests = request.NewService(wc, cache, request.Config{
		MsToLive: env.Cache.MsToLive,
		Timeout:  timeout,
	}, logger)
	a.RemoteData = remotedata.NewBuildService(a.Requests, logger)
	a.Endpoints = hal.NewEndpointService(env.RootHref(), a.Requests, a.RemoteData, logger)

	dd := data.Deps{Endpoints: a.Endpoints, Requests: a.Requests, RemoteData: a.RemoteData, Logger: logger}
	a.Items = data.NewItemDataService(dd)
	a.EPersons = data.NewEPersonDataService(dd)
	a.WorkspaceItems = data.NewWorkspaceItemDataService(dd, a.Items, a.EPersons)

	a.Notifications = notifications.NewService(0, logger)
	if a.Catalogs, err = i18n.Load(); err != nil {
		a.Close()
		return nil, err
	}
	a.Matomo = analytics.NewMatomo(env.Matomo, logger)
	a.Orch = NewOrchestrator(a, logger)
	return a, nil
}

// Start launches the janitor that drops stale request entries, memoized
// streams and expired cache rows.
func (a *Application) Start() error {
	if a == nil {
		return errors.New("application is nil")
	}
	interval, err := a.Env.JanitorInterval()
	if err != nil {
		return err
	}
	a.Logger.Info("application starting",
		logging.Field{Key: "rest", Value: a.Env.RootHref()},
		logging.Field{Key: "janitor", Value: interval.String()})

	a.wg.Add(2)
	go func() {
		defer a.wg.Done()
		a.Requests.RunJanitor(a.ctx, interval)
	}()
	go func() {
		defer a.wg.Done()
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-a.ctx.Done():
				return
			case <-t.C:
				a.sweep(a.ctx)
			}
		}
	}()
	return nil
}

func (a *Application) sweep(ctx context.Context) {
	if n := a.RemoteData.Prune(); n > 0 {
		a.Logger.Debug("pruned remote data streams", logging.Field{Key: "count", Value: n})
	}
	if a.Cache == nil {
		return
	}
	n, err := a.Cache.Evict(ctx)
	if err != nil {
		a.Logger.Warn("cache eviction failed", logging.Err(err))
		return
	}
	if n > 0 {
		a.Logger.Debug("evicted cached responses", logging.Field{Key: "count", Value: n})
	}
}

// Shutdown cancels running jobs, waits for them within ctx and then releases
// the pipeline.
func (a *Application) Shutdown(ctx context.Context) error {
	if a == nil {
		return errors.New("application is nil")
	}
	a.Logger.Info("application shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if err := a.Orch.Shutdown(shutdownCtx); err != nil {
		a.Logger.Warn("orchestrator shutdown returned error", logging.Err(err))
	}
	a.Close()
	return nil
}

// Close stops background work and closes the pipeline. It is safe to call
// more than once.
func (a *Application) Close() {
	a.closeOnce.Do(func() {
		a.cancel()
		a.wg.Wait()
		if a.Orch != nil {
			a.Orch.Close()
		}
		if a.RemoteData != nil {
			a.RemoteData.Close()
		}
		if a.Requests != nil {
			a.Requests.Close()
		}
		if a.Cache != nil {
			if err := a.Cache.Close(); err != nil {
				a.Logger.Warn("closing response cache", logging.Err(err))
			}
		}
		a.closeWebClient()
	})
}

func (a *Application) closeWebClient() {
	if !a.ownsWebClient || a.WebClient == nil {
		return
	}
	if err := a.WebClient.Close(); err != nil {
		a.Logger.Warn("closing web client", logging.Err(err))
	}
}

// Translator returns the catalog for lang, or the configured default
// language when lang is empty.
func (a *Application) Translator(lang string) *i18n.Translator {
	if lang == "" {
		lang = a.Env.DefaultLanguage
	}
	return a.Catalogs.Translator(lang)
}

// Names returns a name service translating in lang.
func (a *Application) Names(lang string) *dsoname.Service {
	return dsoname.NewService(a.Translator(lang))
}

// ChangeSubmitterPage builds the page for the share link query. A nil
// notifier raises notifications on the application service.
func (a *Application) ChangeSubmitterPage(query url.Values, lang string, notifier changesubmitter.Notifier) *changesubmitter.Page {
	if notifier == nil {
		notifier = a.Notifications
	}
	tr := a.Translator(lang)
	return changesubmitter.NewPage(changesubmitter.Deps{
		WorkspaceItems: a.WorkspaceItems,
		Endpoints:      a.Endpoints,
		Requests:       a.Requests,
		RemoteData:     a.RemoteData,
		Notifications:  notifier,
		Translate:      tr,
		Names:          dsoname.NewService(tr),
		Logger:         a.Logger,
	}, query)
}

// ItemPageRenderer returns an entity page renderer for lang.
func (a *Application) ItemPageRenderer(lang string) (*itempage.Renderer, error) {
	return itempage.NewRenderer(a.Translator(lang), itempage.DefaultTruncateLimit)
}

// FindItem loads the item with the given uuid, reusing a cached response
// when one is available.
func (a *Application) FindItem(ctx context.Context, id string) (*data.Item, error) {
	stream, err := a.Items.FindByID(ctx, id, true)
	if err != nil {
		return nil, err
	}
	item, err := remotedata.FirstSucceededPayload(ctx, stream)
	if err != nil {
		return nil, err
	}
	return &item, nil
}
