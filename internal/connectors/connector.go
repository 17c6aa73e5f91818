// Package connectors implements the pluggable source adapters. Each source
// kind registers a factory; connector code is the only place that knows
// provider specifics.
package connectors

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"
)

// Item is a normalized unit of fetched content, before persistence.
type Item struct {
	ContentType string
	Title       string
	Content     string
	URL         string
	PublishedAt time.Time
	Metadata    map[string]interface{}
}

// Connector is the capability set every source adapter implements.
type Connector interface {
	// Kind returns the registry key this connector serves.
	Kind() string

	// RequiredCredentials lists credential keys the adapter needs.
	RequiredCredentials() []string

	// RequiredConfig lists config keys the adapter needs.
	RequiredConfig() []string

	// Validate checks credentials and config against the provider. It may
	// normalize config in place (e.g. resolving a YouTube handle to a
	// channel ID); the orchestrator persists the normalized form.
	Validate(ctx context.Context) error

	// Fetch returns items with timestamps strictly after since, when since
	// is non-nil. A nil since fetches everything the provider offers.
	Fetch(ctx context.Context, since *time.Time) ([]Item, error)
}

// Factory builds a connector for one configured source.
type Factory func(sourceID uint, config, credentials map[string]interface{}) (Connector, error)

// ErrRateLimited signals provider-side rate-limit exhaustion. Call sites
// must return it immediately, never sleep on it.
var ErrRateLimited = fmt.Errorf("provider rate limit exceeded, retry in 15 minutes")

// ValidationError reports missing or invalid source configuration. It is
// surfaced synchronously and never retried.
type ValidationError struct {
	Kind    string
	Missing []string
	Reason  string
}

func (e *ValidationError) Error() string {
	if len(e.Missing) > 0 {
		return fmt.Sprintf("%s source is missing required fields: %s", e.Kind, strings.Join(e.Missing, ", "))
	}
	return fmt.Sprintf("%s source configuration invalid: %s", e.Kind, e.Reason)
}

// Registry maps source kinds to connector factories. It is populated once at
// startup and read-only afterwards.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register installs a factory for kind, replacing any previous one.
func (r *Registry) Register(kind string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[kind] = factory
}

// New builds a connector for the given source kind.
func (r *Registry) New(kind string, sourceID uint, config, credentials map[string]interface{}) (Connector, error) {
	r.mu.RLock()
	factory, ok := r.factories[kind]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown source kind %q", kind)
	}
	return factory(sourceID, config, credentials)
}

// Kinds returns the registered kinds, sorted, for UI introspection.
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]string, 0, len(r.factories))
	for k := range r.factories {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// CredentialSchema returns the required credential and config keys for a
// kind by instantiating a throwaway connector. Factories never fail on
// empty maps; shape checks happen in Validate.
func (r *Registry) CredentialSchema(kind string) (credentials, config []string, err error) {
	c, err := r.New(kind, 0, map[string]interface{}{}, map[string]interface{}{})
	if err != nil {
		return nil, nil, err
	}
	return c.RequiredCredentials(), c.RequiredConfig(), nil
}

// DefaultRegistry builds the process-wide registry with every built-in kind.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(KindRSS, NewRSSConnector)
	r.Register(KindYouTube, NewYouTubeConnector)
	r.Register(KindReddit, NewRedditConnector)
	r.Register(KindGitHub, NewGitHubConnector)
	r.Register(KindTwitter, NewTwitterConnector)
	return r
}

// httpClient is shared by the HTTP-based adapters.
var httpClient = &http.Client{Timeout: 30 * time.Second}

// configString reads a string key from an open-shape config map.
func configString(m map[string]interface{}, key string) string {
	if m == nil {
		return ""
	}
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

// configInt reads an int key, tolerating the float64 that JSON decoding
// produces.
func configInt(m map[string]interface{}, key string, def int) int {
	if m == nil {
		return def
	}
	switch v := m[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return def
}

// missingKeys returns the required keys absent or empty in m.
func missingKeys(m map[string]interface{}, required []string) []string {
	var missing []string
	for _, k := range required {
		if configString(m, k) == "" {
			missing = append(missing, k)
		}
	}
	return missing
}

// afterCutoff reports whether ts is strictly after since. A nil since
// accepts everything; a zero ts is kept so items without timestamps are
// never silently dropped on delta crawls.
func afterCutoff(ts time.Time, since *time.Time) bool {
	if since == nil || ts.IsZero() {
		return true
	}
	return ts.After(*since)
}
