// Package stt provides speech-to-text provider interface and implementations.
package stt

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
)

// ErrNotReady is returned by Transcribe when the provider has not been set up.
var ErrNotReady = errors.New("stt provider not ready")

// Result is the outcome of a transcription.
type Result struct {
	Text     string // Transcribed text, trimmed
	Language string // Detected language code, if the provider reports one
}

// Provider defines the interface for speech-to-text providers.
// Both local (whisper.cpp) and remote (OpenAI API) implementations
// must satisfy this interface.
type Provider interface {
	// Name returns the provider identifier.
	Name() string

	// DisplayName returns the human-readable provider name.
	DisplayName() string

	// IsLocal returns true if the provider runs locally without API calls.
	IsLocal() bool

	// IsReady returns true if the provider is ready to use.
	IsReady() bool

	// SetupProgress returns the setup progress (0-100), -1 if not started.
	SetupProgress() int

	// Setup performs initialization (e.g., download model).
	// The progress callback receives percentage (0-100).
	Setup(ctx context.Context, progress func(percent int)) error

	// Transcribe converts a WAV recording to text.
	// language: source language code (empty or "auto" for auto-detect)
	Transcribe(ctx context.Context, wavPath, language string) (*Result, error)

	// Close releases resources held by the provider.
	Close() error
}

// Registry holds registered STT providers.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

// NewRegistry creates a new provider registry.
func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[string]Provider),
	}
}

// Register adds a provider to the registry.
func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.Name()] = p
}

// Get returns a provider by name.
func (r *Registry) Get(name string) Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.providers[name]
}

// Select returns the named provider, or an error listing what is available.
func (r *Registry) Select(name string) (Provider, error) {
	if p := r.Get(name); p != nil {
		return p, nil
	}
	names := make([]string, 0)
	for _, p := range r.List() {
		names = append(names, p.Name())
	}
	return nil, fmt.Errorf("stt provider %q not registered (have %s)", name, strings.Join(names, ", "))
}

// List returns all registered providers sorted by name.
func (r *Registry) List() []Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]Provider, 0, len(r.providers))
	for _, p := range r.providers {
		result = append(result, p)
	}
	slices.SortFunc(result, func(a, b Provider) int { return strings.Compare(a.Name(), b.Name()) })
	return result
}

// Close releases all providers, continuing past failures.
func (r *Registry) Close() error {
	var errs []error
	for _, p := range r.List() {
		if err := p.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", p.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// autoLanguage reports whether language asks for auto-detection.
func autoLanguage(language string) bool {
	return language == "" || strings.EqualFold(language, "auto")
}
