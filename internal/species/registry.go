package species

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/agnivade/levenshtein"

	"srf-carbon/internal/growth"
)

// ErrInvalidDefinition is returned for species definitions that can build
// neither a predefined nor a fitted growth model.
var ErrInvalidDefinition = errors.New("invalid species definition")

// Definition is the reference data of one species. A species with
// Parameters skips fitting; otherwise its Points are fitted on first use.
type Definition struct {
	Name             string             `json:"name" toml:"name"`
	CommonName       string             `json:"common_name,omitempty" toml:"common_name"`
	Aliases          []string           `json:"aliases,omitempty" toml:"aliases"`
	Points           []growth.Point     `json:"points,omitempty" toml:"points"`
	Parameters       *growth.Parameters `json:"parameters,omitempty" toml:"parameters"`
	ConversionFactor float64            `json:"conversion_factor,omitempty" toml:"conversion_factor"`
}

// Conversion returns the volume to mass factor, defaulting to biochar.
func (d Definition) Conversion() float64 {
	if d.ConversionFactor > 0 {
		return d.ConversionFactor
	}
	return growth.BiocharFactor
}

// Validate checks that the definition can produce a model.
func (d Definition) Validate() error {
	if strings.TrimSpace(d.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidDefinition)
	}
	if d.ConversionFactor < 0 {
		return fmt.Errorf("%w: %s: conversion factor %v is negative", ErrInvalidDefinition, d.Name, d.ConversionFactor)
	}
	if d.Parameters == nil && len(d.Points) < 2 {
		return fmt.Errorf("%w: %s: needs parameters or at least 2 growth points", ErrInvalidDefinition, d.Name)
	}
	if d.Parameters != nil {
		if err := d.Parameters.Validate(); err != nil {
			return fmt.Errorf("%w: %s: %w", ErrInvalidDefinition, d.Name, err)
		}
	}
	return nil
}

// NotFoundError is returned when a species name or alias is unknown.
type NotFoundError struct {
	Name        string
	Suggestions []string
}

func (e *NotFoundError) Error() string {
	if len(e.Suggestions) == 0 {
		return fmt.Sprintf("unknown species %q", e.Name)
	}
	return fmt.Sprintf("unknown species %q (did you mean %s?)", e.Name, strings.Join(e.Suggestions, ", "))
}

// IsTransient returns false as a missing species will not appear on retry
func (e *NotFoundError) IsTransient() bool {
	return false
}

// FitHook is called once for every species whose model had to be fitted.
type FitHook func(species string, res *growth.FitResult)

// Registry maps species names and aliases to their definitions and lazily
// built growth models. It is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	fitter  growth.Fitter
	onFit   FitHook
	defs    map[string]Definition
	aliases map[string]string
	models  map[string]*growth.Model
	// gens counts Register calls per key so a model built from a
	// replaced definition is never cached.
	gens map[string]uint64
}

// Option configures a Registry.
type Option func(*Registry)

// WithFitter sets the fitter used for species without parameters.
func WithFitter(f growth.Fitter) Option {
	return func(r *Registry) { r.fitter = f }
}

// WithFitHook reports every fit performed by the registry.
func WithFitHook(hook FitHook) Option {
	return func(r *Registry) { r.onFit = hook }
}

// NewRegistry returns an empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		defs:    make(map[string]Definition),
		aliases: make(map[string]string),
		models:  make(map[string]*growth.Model),
		gens:    make(map[string]uint64),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Default returns a registry holding the built-in reference species.
func Default(opts ...Option) *Registry {
	r := NewRegistry(opts...)
	for _, def := range Builtin() {
		if err := r.Register(def); err != nil {
			panic(fmt.Sprintf("species: built-in definition %s: %v", def.Name, err))
		}
	}
	return r
}

// Register adds or replaces a definition. Replacing drops any cached model.
func (r *Registry) Register(def Definition) error {
	if err := def.Validate(); err != nil {
		return err
	}

	key := Normalize(def.Name)

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, alias := range def.Aliases {
		a := Normalize(alias)
		if owner, ok := r.aliases[a]; ok && owner != key {
			return fmt.Errorf("%w: %s: alias %q already used by %s", ErrInvalidDefinition, def.Name, alias, r.defs[owner].Name)
		}
	}

	if old, ok := r.defs[key]; ok {
		for _, alias := range old.Aliases {
			delete(r.aliases, Normalize(alias))
		}
	}
	r.defs[key] = def
	r.aliases[key] = key
	for _, alias := range def.Aliases {
		r.aliases[Normalize(alias)] = key
	}
	delete(r.models, key)
	r.gens[key]++
	return nil
}

// Lookup resolves a name or alias to its definition.
func (r *Registry) Lookup(name string) (Definition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	key, ok := r.aliases[Normalize(name)]
	if !ok {
		return Definition{}, &NotFoundError{Name: name, Suggestions: r.suggestLocked(name)}
	}
	return r.defs[key], nil
}

// Model returns the growth model of a species, fitting it on first use.
func (r *Registry) Model(name string) (*growth.Model, error) {
	r.mu.RLock()
	key, ok := r.aliases[Normalize(name)]
	if !ok {
		err := &NotFoundError{Name: name, Suggestions: r.suggestLocked(name)}
		r.mu.RUnlock()
		return nil, err
	}
	def, gen := r.defs[key], r.gens[key]
	m, ok := r.models[key]
	r.mu.RUnlock()
	if ok {
		return m, nil
	}

	m, err := r.build(def)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.gens[key] != gen {
		return m, nil
	}
	if cached, ok := r.models[key]; ok {
		return cached, nil
	}
	r.models[key] = m
	return m, nil
}

func (r *Registry) build(def Definition) (*growth.Model, error) {
	if def.Parameters != nil {
		return growth.NewModel(def.Name, *def.Parameters, def.Conversion())
	}

	m, res, err := growth.NewModelFromPoints(def.Name, def.Points, def.Conversion(), r.fitter)
	if err != nil {
		return nil, err
	}
	if r.onFit != nil {
		r.onFit(def.Name, res)
	}
	return m, nil
}

// Definitions returns every definition sorted by name.
func (r *Registry) Definitions() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]Definition, 0, len(r.defs))
	for _, def := range r.defs {
		defs = append(defs, def)
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

// Suggest returns up to three known names close to name.
func (r *Registry) Suggest(name string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.suggestLocked(name)
}

func (r *Registry) suggestLocked(name string) []string {
	query := Normalize(name)
	if query == "" {
		return nil
	}

	best := make(map[string]int)
	for alias, key := range r.aliases {
		dist := levenshtein.ComputeDistance(query, alias)
		if dist > suggestionLimit(len(alias)) {
			continue
		}
		if d, ok := best[key]; !ok || dist < d {
			best[key] = dist
		}
	}

	names := make([]string, 0, len(best))
	for key := range best {
		names = append(names, key)
	}
	sort.Slice(names, func(i, j int) bool {
		if best[names[i]] != best[names[j]] {
			return best[names[i]] < best[names[j]]
		}
		return names[i] < names[j]
	})
	if len(names) > 3 {
		names = names[:3]
	}
	for i, key := range names {
		names[i] = r.defs[key].Name
	}
	return names
}

func suggestionLimit(length int) int {
	switch {
	case length <= 4:
		return 1
	case length <= 8:
		return 2
	default:
		return 3
	}
}

// Normalize folds a species name for lookup: lower case, with runs of
// spaces, underscores and hyphens collapsed to one space.
func Normalize(name string) string {
	fields := strings.FieldsFunc(strings.ToLower(name), func(r rune) bool {
		return r == ' ' || r == '_' || r == '-' || r == '\t'
	})
	return strings.Join(fields, " ")
}
