package config

import (
	"path/filepath"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/ankittk/usagi/internal/org"
)

const (
	runtimeCacheKey = "runtime"
	orgCacheKey     = "org"
)

// Loader reloads the runtime policy and org chart for each control-loop round,
// serving cached values for ttl so the files are not reparsed every tick.
type Loader struct {
	root  string
	cache *cache.Cache
}

// NewLoader returns a Loader rooted at root.
func NewLoader(root string, ttl time.Duration) *Loader {
	if ttl <= 0 {
		ttl = 2 * time.Second
	}
	return &Loader{root: root, cache: cache.New(ttl, 2*ttl)}
}

// Runtime returns the current runtime policy.
func (l *Loader) Runtime() (Runtime, error) {
	if v, ok := l.cache.Get(runtimeCacheKey); ok {
		return v.(Runtime), nil
	}
	rt, err := LoadRuntime(filepath.Join(l.root, RuntimeFile))
	if err != nil {
		return Runtime{}, err
	}
	l.cache.SetDefault(runtimeCacheKey, rt)
	return rt, nil
}

// Org returns the current organization chart, falling back to org.Default when no chart file exists.
func (l *Loader) Org() (*org.Organization, error) {
	if v, ok := l.cache.Get(orgCacheKey); ok {
		return v.(*org.Organization), nil
	}
	rt, err := l.Runtime()
	if err != nil {
		return nil, err
	}
	o, err := org.LoadOrDefault(Resolve(l.root, rt.OrgPath))
	if err != nil {
		return nil, err
	}
	l.cache.SetDefault(orgCacheKey, o)
	return o, nil
}

// Invalidate drops cached values.
func (l *Loader) Invalidate() { l.cache.Flush() }
