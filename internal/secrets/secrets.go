// Package secrets loads per-provider OAuth credentials from a YAML file.
//
// The file maps provider names to their secrets:
//
//	github:
//	  clientId: "..."
//	  secretKey: "..."
//	  redirectUri: "https://app.example.com/login"
//	bitbucket:
//	  clientId: "..."
//	  secretKey: "..."
//	  loginLink: "https://app.example.com/login"
//
// Loaded files are cached per path with an explicit lifecycle (Invalidate),
// so secrets never live in hidden package-level state.
package secrets

import (
	"fmt"
	"os"
	"sync"

	"golang.org/x/sync/singleflight"
	"gopkg.in/yaml.v3"

	"github.com/jxmono/login-providers/internal/provider"
)

// File is the parsed content of a secrets file.
type File map[string]provider.Secrets

// Loader reads and caches secrets files.
// Thread-safe; usa singleflight para evitar lecturas duplicadas del mismo path.
type Loader struct {
	mu    sync.RWMutex
	cache map[string]File
	sf    singleflight.Group
}

// NewLoader creates an empty loader.
func NewLoader() *Loader {
	return &Loader{cache: make(map[string]File)}
}

// Load reads and parses the secrets file at path, returning the cached copy
// when available.
func (l *Loader) Load(path string) (File, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: missing secrets file path", provider.ErrInvalidConfiguration)
	}

	l.mu.RLock()
	if f, ok := l.cache[path]; ok {
		l.mu.RUnlock()
		return f, nil
	}
	l.mu.RUnlock()

	v, err, _ := l.sf.Do(path, func() (any, error) {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("%w: read secrets file %s: %v", provider.ErrInvalidConfiguration, path, err)
		}
		var f File
		if err := yaml.Unmarshal(raw, &f); err != nil {
			return nil, fmt.Errorf("%w: parse secrets file %s: %v", provider.ErrInvalidConfiguration, path, err)
		}
		l.mu.Lock()
		l.cache[path] = f
		l.mu.Unlock()
		return f, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(File), nil
}

// ForProvider returns the secrets for one provider out of the file at path.
func (l *Loader) ForProvider(path, name string) (provider.Secrets, error) {
	f, err := l.Load(path)
	if err != nil {
		return provider.Secrets{}, err
	}
	s, ok := f[name]
	if !ok {
		return provider.Secrets{}, fmt.Errorf("%w: missing secrets for provider: %s",
			provider.ErrInvalidConfiguration, name)
	}
	return s, nil
}

// Invalidate drops the cached copy for path, forcing a re-read on next Load.
func (l *Loader) Invalidate(path string) {
	l.mu.Lock()
	delete(l.cache, path)
	l.mu.Unlock()
}
