// Package source implements discovery over configured web pages using
// per-site scanner strategies.
package source

import (
	"context"
	"fmt"

	"StreamPulse/internal/config"
	"StreamPulse/internal/domain"
)

// Scanner captures a single strategy implementation for one kind of page.
type Scanner interface {
	Name() string
	Scan(ctx context.Context, site config.SourceSite) ([]domain.Source, error)
}

// Registry keeps a mapping from scanner names to their implementations.
type Registry struct {
	scanners map[string]Scanner
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{scanners: map[string]Scanner{}}
}

// Register adds or replaces a scanner implementation.
func (r *Registry) Register(scanner Scanner) {
	if r.scanners == nil {
		r.scanners = map[string]Scanner{}
	}
	r.scanners[scanner.Name()] = scanner
}

// Resolve returns a scanner by name or an error if it is absent.
func (r *Registry) Resolve(name string) (Scanner, error) {
	if scanner, ok := r.scanners[name]; ok {
		return scanner, nil
	}
	return nil, fmt.Errorf("scanner %s is not registered", name)
}
