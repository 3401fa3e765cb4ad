// Package adapters routes sends to the platform integration that owns the
// campaign's platform. Concrete integrations live in subpackages; each one
// implements dispatch.Adapter for a single platform.
package adapters

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	"campbot/internal/dispatch"
)

// Mux fans Send calls out by platform name. Platform names are
// case-insensitive.
type Mux struct {
	mu  sync.RWMutex
	byP map[string]dispatch.Adapter
}

func NewMux() *Mux {
	return &Mux{byP: map[string]dispatch.Adapter{}}
}

// Register installs the adapter for a platform, replacing any previous one.
func (m *Mux) Register(platform string, a dispatch.Adapter) {
	m.mu.Lock()
	m.byP[normalize(platform)] = a
	m.mu.Unlock()
}

// Platforms lists the registered platform names, sorted.
func (m *Mux) Platforms() []string {
	m.mu.RLock()
	out := make([]string, 0, len(m.byP))
	for p := range m.byP {
		out = append(out, p)
	}
	m.mu.RUnlock()
	sort.Strings(out)
	return out
}

// Send implements dispatch.Adapter. An unregistered platform is a
// permanent error: retrying cannot make the integration appear.
func (m *Mux) Send(ctx context.Context, platform, targetID, text string) error {
	m.mu.RLock()
	a, ok := m.byP[normalize(platform)]
	m.mu.RUnlock()
	if !ok {
		return dispatch.Permanent(errors.New("no adapter registered for platform " + platform))
	}
	return a.Send(ctx, platform, targetID, text)
}

func normalize(platform string) string {
	return strings.ToLower(strings.TrimSpace(platform))
}
