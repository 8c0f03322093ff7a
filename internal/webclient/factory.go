package webclient

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/dspace-go/dsfront/internal/logging"
)

// ErrUnknownBackend is returned for a backend name nothing registered.
var ErrUnknownBackend = errors.New("unknown webclient backend")

// BackendConstructor constructs a WebClient given the config and logger.
type BackendConstructor func(cfg Config, logger logging.Logger) (WebClient, error)

type backendSet struct {
	mu    sync.RWMutex
	ctors map[Client]BackendConstructor
}

var backends = &backendSet{ctors: map[Client]BackendConstructor{
	ClientNetHTTP: func(cfg Config, logger logging.Logger) (WebClient, error) {
		return NewNetHTTPClient(cfg, logger, nil)
	},
	ClientChromedp: func(cfg Config, logger logging.Logger) (WebClient, error) {
		return NewChromedpClient(cfg, logger)
	},
}}

// normalize lower-cases name; empty selects the nethttp backend.
func normalize(name Client) Client {
	n := Client(strings.ToLower(strings.TrimSpace(string(name))))
	if n == "" {
		return ClientNetHTTP
	}
	return n
}

func (b *backendSet) lookup(name Client) (BackendConstructor, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	ctor, ok := b.ctors[normalize(name)]
	return ctor, ok && ctor != nil
}

// RegisterBackend adds or replaces a named backend, e.g. a recording client
// in tests.
func RegisterBackend(name string, ctor BackendConstructor) {
	if strings.TrimSpace(name) == "" || ctor == nil {
		return
	}
	backends.mu.Lock()
	defer backends.mu.Unlock()
	backends.ctors[normalize(Client(name))] = ctor
}

// NewWebClient constructs the backend named by cfg.Client.
func NewWebClient(cfg Config, logger logging.Logger) (WebClient, error) {
	if logger == nil {
		logger = logging.Nop{}
	}
	name := normalize(cfg.Client)
	ctor, ok := backends.lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w %q (available: %s)", ErrUnknownBackend, name, strings.Join(ListBackends(), ", "))
	}

	wc, err := ctor(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("construct webclient backend %q: %w", name, err)
	}
	if wc == nil {
		return nil, fmt.Errorf("webclient backend %q returned no client", name)
	}
	logger.Debug("web client ready", logging.Field{Key: "backend", Value: string(name)})
	return wc, nil
}

// ListBackends returns the sorted backend names.
func ListBackends() []string {
	backends.mu.RLock()
	defer backends.mu.RUnlock()
	out := make([]string, 0, len(backends.ctors))
	for k := range backends.ctors {
		out = append(out, string(k))
	}
	sort.Strings(out)
	return out
}
