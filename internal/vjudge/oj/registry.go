// Package oj is the "polymorphic site adapter" of spec.md §9: a static
// registry of per-OJ SiteClient constructors, keyed by OJ name, standing in
// for the original project's importlib-based dynamic dispatch
// (vjudge/base.py's _get_oj_client). The core never imports a concrete OJ
// package directly; it looks the constructor up here.
//
// Concrete per-site scraping adapters (HDU, SCU, ...) are external
// collaborators per spec.md §1 ("the per-site site client adapter... the
// core depends only on its capability contract"); this package owns only
// the registry and one self-contained demo adapter ("local", demo.go) for
// local development.
package oj

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/time/rate"

	"vjudge-orchestrator/internal/vjudge/siteclient"
)

// defaultRateLimit bounds each borrowed account to 2 requests/second with a
// burst of 4, a conservative default to avoid tripping an OJ's own abuse
// detection regardless of local queue depth.
const (
	defaultRateLimit = rate.Limit(2)
	defaultRateBurst = 4
)

// Registry maps an OJ's base name (never contest-qualified — contest
// qualification is stripped by the caller per spec.md §4.4) to constructors.
type Registry struct {
	mu    sync.RWMutex
	anon  map[string]siteclient.Constructor
	auth  map[string]siteclient.AuthConstructor
}

// NewRegistry builds an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		anon: make(map[string]siteclient.Constructor),
		auth: make(map[string]siteclient.AuthConstructor),
	}
}

// Register installs both constructors for ojName. Re-registering replaces
// the previous entry.
func (r *Registry) Register(ojName string, anon siteclient.Constructor, auth siteclient.AuthConstructor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.anon[ojName] = anon
	r.auth[ojName] = auth
}

// NewAnonymous builds an anonymous client for ojName (used by ProblemCrawler).
func (r *Registry) NewAnonymous(ctx context.Context, ojName string) (siteclient.Client, error) {
	r.mu.RLock()
	ctor, ok := r.anon[ojName]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("oj %q is unavailable: %w", ojName, siteclient.ErrJudgeException)
	}
	client, err := ctor(ctx)
	if err != nil {
		return nil, err
	}
	return siteclient.NewRateLimited(client, defaultRateLimit, defaultRateBurst), nil
}

// NewAuthenticated builds an authenticated client for ojName, logging in
// eagerly. Callers must treat ErrLoginFailed/ErrConnection as
// "skip this account" per spec.md §4.4.
func (r *Registry) NewAuthenticated(ctx context.Context, ojName, username, password string) (siteclient.Client, error) {
	r.mu.RLock()
	ctor, ok := r.auth[ojName]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("oj %q is unavailable: %w", ojName, siteclient.ErrJudgeException)
	}
	client, err := ctor(ctx, username, password)
	if err != nil {
		return nil, err
	}
	return siteclient.NewRateLimited(client, defaultRateLimit, defaultRateBurst), nil
}

// Known reports whether ojName has any registered constructor.
func (r *Registry) Known(ojName string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.anon[ojName]
	return ok
}
